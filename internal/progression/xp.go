package progression

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// XPType classifies the source of an experience gain.
type XPType string

const (
	XPQuizCorrect          XPType = "quiz-correct"
	XPQuizStreak           XPType = "quiz-streak"
	XPDifficultyMultiplier XPType = "difficulty-multiplier"
	XPForumHelpful         XPType = "forum-helpful"
	XPBadgeUnlock          XPType = "badge-unlock"
	XPDailyStreak          XPType = "daily-streak"
)

// XP award amounts for learning-activity events.
const (
	XPPerCorrectAnswer  = 10
	XPPerQuizStreakStep = 5
	XPHelpfulAnswer     = 15
	CoinsHelpfulAnswer  = 1
)

const (
	xpStateName  = "xp"
	maxXPEntries = 800

	// gainBatchWindow coalesces near-simultaneous gains into one
	// notification unit for the UI animation. It has no effect on totals.
	gainBatchWindow = 800 * time.Millisecond

	// dailyResetHour is the local hour at which the daily XP pool zeroes.
	dailyResetHour = 1
)

// XPEntry is an immutable audit record of a single gain.
type XPEntry struct {
	ID          string    `json:"id"`
	Type        XPType    `json:"type"`
	Amount      int       `json:"amount"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
}

// XPItem is one requested gain inside a batch, before filtering and rounding.
type XPItem struct {
	Amount      float64
	Type        XPType
	Description string
}

// XPGain is a coalesced batch of entries awarded within gainBatchWindow of
// each other. Purely a presentation aid; not persisted.
type XPGain struct {
	Amount    int       `json:"amount"`
	Entries   []XPEntry `json:"entries"`
	Timestamp time.Time `json:"timestamp"`
}

// XPState is the persistent experience ledger document.
type XPState struct {
	Version        int       `json:"version"`
	TotalXP        int       `json:"totalXP"`
	DailyXP        int       `json:"dailyXP"`
	LastDailyReset time.Time `json:"lastDailyReset"`
	Entries        []XPEntry `json:"entries"` // newest first, capped at maxXPEntries
}

// RankNotifier receives the new lifetime total after every XP change.
type RankNotifier interface {
	UpdateFromXP(totalXP int)
}

// XPLedger is the append-only experience ledger. The lifetime total always
// equals the sum of all recorded entry amounts.
type XPLedger struct {
	mu       sync.Mutex
	state    XPState
	dirty    bool
	lastGain *XPGain

	rank   RankNotifier
	onGain func(XPGain)
}

func newXPLedger() *XPLedger {
	return &XPLedger{state: XPState{Version: stateVersion}}
}

func loadXPLedger(persist *Store) (*XPLedger, error) {
	l := newXPLedger()
	if _, err := persist.Load(xpStateName, &l.state); err != nil {
		return nil, err
	}
	l.state.Version = stateVersion
	return l, nil
}

// OnGain registers a callback invoked with the coalesced gain batch after
// every successful AddXPBatch. Must be set before the ledger is used.
func (l *XPLedger) OnGain(cb func(XPGain)) {
	l.onGain = cb
}

// AddXP records a single gain. Convenience wrapper for a one-item batch.
func (l *XPLedger) AddXP(amount float64, typ XPType, description string) {
	l.AddXPBatch([]XPItem{{Amount: amount, Type: typ, Description: description}})
}

// AddXPBatch filters out non-finite or zero amounts, rounds the survivors to
// whole XP, records one entry per item under a shared timestamp, and updates
// the lifetime and daily totals. If every item is filtered the call is a
// complete no-op. The rank engine is notified with the new lifetime total
// unconditionally, even when no tier boundary was crossed.
func (l *XPLedger) AddXPBatch(items []XPItem) {
	l.addBatch(items, time.Now())
}

func (l *XPLedger) addBatch(items []XPItem, now time.Time) {
	kept := make([]XPItem, 0, len(items))
	for _, it := range items {
		if validAmount(it.Amount) {
			kept = append(kept, it)
		}
	}
	if len(kept) == 0 {
		return
	}

	entries := make([]XPEntry, len(kept))
	sum := 0
	for i, it := range kept {
		n := int(math.Round(it.Amount))
		entries[i] = XPEntry{
			ID:          uuid.NewString(),
			Type:        it.Type,
			Amount:      n,
			Timestamp:   now,
			Description: it.Description,
		}
		sum += n
	}

	l.mu.Lock()
	l.rollDailyWindow(now)
	l.state.TotalXP += sum
	l.state.DailyXP += sum
	l.state.Entries = prependCapped(entries, l.state.Entries, maxXPEntries)

	if l.lastGain != nil && now.Sub(l.lastGain.Timestamp) <= gainBatchWindow && !now.Before(l.lastGain.Timestamp) {
		l.lastGain.Amount += sum
		l.lastGain.Entries = append(l.lastGain.Entries, entries...)
	} else {
		l.lastGain = &XPGain{Amount: sum, Entries: entries, Timestamp: now}
	}
	gain := *l.lastGain
	gain.Entries = make([]XPEntry, len(l.lastGain.Entries))
	copy(gain.Entries, l.lastGain.Entries)

	total := l.state.TotalXP
	l.dirty = true
	l.mu.Unlock()

	if l.rank != nil {
		l.rank.UpdateFromXP(total)
	}
	if l.onGain != nil {
		l.onGain(gain)
	}
}

// rollDailyWindow zeroes the daily pool once the current time has passed the
// day's reset boundary and the stored last-reset predates it. Called with
// the lock held.
func (l *XPLedger) rollDailyWindow(now time.Time) {
	boundary := dailyResetBoundary(now)
	if l.state.LastDailyReset.Before(boundary) {
		l.state.DailyXP = 0
		l.state.LastDailyReset = boundary
		l.dirty = true
	}
}

// dailyResetBoundary returns the most recent 1:00 AM local time at or before
// now. A recurring daily window, not a rolling 24h one, so late-night study
// before 1 AM counts toward the prior day's pool.
//
// Note: this is a different day-boundary convention than the streak engine's
// midnight calendar keys. Both match the shipped client behavior and are
// deliberately not unified.
func dailyResetBoundary(now time.Time) time.Time {
	b := time.Date(now.Year(), now.Month(), now.Day(), dailyResetHour, 0, 0, 0, now.Location())
	if now.Before(b) {
		b = b.AddDate(0, 0, -1)
	}
	return b
}

// TotalXP returns the lifetime experience total.
func (l *XPLedger) TotalXP() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.TotalXP
}

// DailyXP returns the XP earned since the last daily reset boundary,
// lazily applying the boundary check first (self-healing read).
func (l *XPLedger) DailyXP() int {
	return l.dailyXP(time.Now())
}

func (l *XPLedger) dailyXP(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollDailyWindow(now)
	return l.state.DailyXP
}

// Entries returns a copy of the gain history, newest first.
func (l *XPLedger) Entries() []XPEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]XPEntry, len(l.state.Entries))
	copy(out, l.state.Entries)
	return out
}

// LastGain returns the most recent coalesced gain batch, if any.
func (l *XPLedger) LastGain() (XPGain, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lastGain == nil {
		return XPGain{}, false
	}
	gain := *l.lastGain
	gain.Entries = make([]XPEntry, len(l.lastGain.Entries))
	copy(gain.Entries, l.lastGain.Entries)
	return gain, true
}

func (l *XPLedger) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = XPState{Version: stateVersion}
	l.lastGain = nil
	l.dirty = true
}

func (l *XPLedger) flush(persist *Store) error {
	l.mu.Lock()
	if !l.dirty {
		l.mu.Unlock()
		return nil
	}
	snap := l.state
	snap.Entries = make([]XPEntry, len(l.state.Entries))
	copy(snap.Entries, l.state.Entries)
	l.dirty = false
	l.mu.Unlock()
	return persist.Save(xpStateName, &snap)
}

// validAmount reports whether v is a finite, non-zero amount.
func validAmount(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v != 0
}
