package progression

import (
	"fmt"
	"math"
	"sync"
	"time"
)

const (
	streakStateName = "streak"

	streakRewardXP      = 25
	streakRewardCoins   = 2
	protectionCost      = 50
	protectionMinStreak = 7
	protectionWindow    = 24 * time.Hour

	dayKeyLayout = "2006-01-02"
)

// streakMilestoneBackgrounds are the background cosmetics granted free at
// exact milestone streak values, independent of badge-triggered grants.
var streakMilestoneBackgrounds = map[int]string{
	7:   "bg-sunrise",
	30:  "bg-ember",
	100: "bg-cosmos",
}

// StreakState is the persistent streak document.
type StreakState struct {
	Version             int             `json:"version"`
	Current             int             `json:"current"`
	Longest             int             `json:"longest"`
	LastActivity        time.Time       `json:"lastActivityDate"` // zero = never
	ProtectionActive    bool            `json:"streakProtectionActive"`
	ProtectionExpiresAt time.Time       `json:"streakProtectionExpiresAt,omitempty"`
	Calendar            map[string]bool `json:"calendar"` // local YYYY-MM-DD keys, append-only
}

// StreakStatus is a read-only snapshot for the UI.
type StreakStatus struct {
	Current             int       `json:"current"`
	Longest             int       `json:"longest"`
	LastActivity        time.Time `json:"lastActivityDate"`
	ProtectionActive    bool      `json:"streakProtectionActive"`
	ProtectionExpiresAt time.Time `json:"streakProtectionExpiresAt,omitempty"`
	ActiveDays          int       `json:"activeDays"`
}

// StreakEngine tracks day-granularity study continuity. The streak day
// boundary is local midnight via calendar-day keys, unlike the XP ledger's
// 1 AM reset window.
type StreakEngine struct {
	mu    sync.Mutex
	state StreakState
	dirty bool

	xp       XPGranter
	coins    CoinWallet
	badges   BadgeChecker
	avatar   CosmeticGranter
	onUpdate func(StreakStatus)
}

func newStreakEngine() *StreakEngine {
	return &StreakEngine{state: StreakState{
		Version:  stateVersion,
		Calendar: make(map[string]bool),
	}}
}

func loadStreakEngine(persist *Store) (*StreakEngine, error) {
	e := newStreakEngine()
	if _, err := persist.Load(streakStateName, &e.state); err != nil {
		return nil, err
	}
	e.state.Version = stateVersion
	if e.state.Calendar == nil {
		e.state.Calendar = make(map[string]bool)
	}
	return e, nil
}

// OnUpdate registers a callback invoked after every processed streak update.
// Must be set before the engine is used.
func (e *StreakEngine) OnUpdate(cb func(StreakStatus)) {
	e.onUpdate = cb
}

// UpdateStreak processes today's activity. At most one streak transition
// happens per calendar day; repeated calls on the same day are no-ops
// beyond the (already true) calendar mark, so rewards are never duplicated.
//
// Continuation rules: a 1-day gap extends the streak; a 2-day gap extends
// it only when an unexpired protection token is active, consuming the
// token; any other gap resets the streak to 1. Only continuations earn the
// daily XP and coin reward. Whatever the transition, the new streak value
// feeds the badge engine, and exact 7/30/100 milestones grant a background.
func (e *StreakEngine) UpdateStreak() {
	e.updateStreak(time.Now())
}

func (e *StreakEngine) updateStreak(now time.Time) {
	today := dayKey(now)

	e.mu.Lock()
	if !e.state.Calendar[today] {
		e.state.Calendar[today] = true
		e.dirty = true
	}

	if !e.state.LastActivity.IsZero() && dayKey(e.state.LastActivity) == today {
		// Already processed today. Still expire an overdue protection
		// token so it cannot bridge a later gap.
		e.checkProtectionLocked(now)
		e.mu.Unlock()
		return
	}

	continued := false
	switch gap := dayGap(e.state.LastActivity, now); {
	case e.state.LastActivity.IsZero():
		e.state.Current = 1
	case gap == 1:
		e.state.Current++
		continued = true
	case gap == 2 && e.checkProtectionLocked(now):
		e.state.Current++
		e.state.ProtectionActive = false // grace token consumed
		continued = true
	default:
		e.state.Current = 1
	}
	if e.state.Current > e.state.Longest {
		e.state.Longest = e.state.Current
	}
	e.state.LastActivity = now
	current := e.state.Current
	e.dirty = true
	e.mu.Unlock()

	if continued {
		if e.xp != nil {
			e.xp.AddXP(streakRewardXP, XPDailyStreak, fmt.Sprintf("Daily streak: day %d", current))
		}
		if e.coins != nil {
			e.coins.AddCoins(streakRewardCoins, CoinDailyBonus, "Daily streak bonus")
		}
	}
	if e.badges != nil {
		e.badges.CheckAndUnlockBadges(CriterionStreakDays, current)
	}
	if bg, ok := streakMilestoneBackgrounds[current]; ok && e.avatar != nil {
		e.avatar.GrantCosmetic(bg)
	}
	if e.onUpdate != nil {
		e.onUpdate(e.Status())
	}
}

// ActivateStreakProtection buys a single grace token for 50 coins. Rejected
// when the streak is under 7 days, a token is already active, or the coin
// spend fails. The token survives exactly one missed day before being
// consumed, or expires unused after 24 hours.
func (e *StreakEngine) ActivateStreakProtection() bool {
	return e.activateProtection(time.Now())
}

func (e *StreakEngine) activateProtection(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Current < protectionMinStreak || e.checkProtectionLocked(now) {
		return false
	}
	if e.coins == nil || !e.coins.SubtractCoins(protectionCost, "Streak protection") {
		return false
	}
	e.state.ProtectionActive = true
	e.state.ProtectionExpiresAt = now.Add(protectionWindow)
	e.dirty = true
	return true
}

// CheckStreakProtection reports whether an unexpired protection token is
// active, lazily deactivating an expired one.
func (e *StreakEngine) CheckStreakProtection() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checkProtectionLocked(time.Now())
}

func (e *StreakEngine) checkProtectionLocked(now time.Time) bool {
	if !e.state.ProtectionActive {
		return false
	}
	if !e.state.ProtectionExpiresAt.IsZero() && now.After(e.state.ProtectionExpiresAt) {
		e.state.ProtectionActive = false
		e.dirty = true
		return false
	}
	return true
}

// Status returns a snapshot of the streak state.
func (e *StreakEngine) Status() StreakStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return StreakStatus{
		Current:             e.state.Current,
		Longest:             e.state.Longest,
		LastActivity:        e.state.LastActivity,
		ProtectionActive:    e.state.ProtectionActive,
		ProtectionExpiresAt: e.state.ProtectionExpiresAt,
		ActiveDays:          len(e.state.Calendar),
	}
}

// Calendar returns a copy of the active-day record.
func (e *StreakEngine) Calendar() map[string]bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]bool, len(e.state.Calendar))
	for k, v := range e.state.Calendar {
		out[k] = v
	}
	return out
}

func (e *StreakEngine) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = StreakState{Version: stateVersion, Calendar: make(map[string]bool)}
	e.dirty = true
}

func (e *StreakEngine) flush(persist *Store) error {
	e.mu.Lock()
	if !e.dirty {
		e.mu.Unlock()
		return nil
	}
	snap := e.state
	snap.Calendar = make(map[string]bool, len(e.state.Calendar))
	for k, v := range e.state.Calendar {
		snap.Calendar[k] = v
	}
	e.dirty = false
	e.mu.Unlock()
	return persist.Save(streakStateName, &snap)
}

// dayKey returns the calendar-day key for t in its own location.
func dayKey(t time.Time) string {
	return t.Format(dayKeyLayout)
}

// dayGap returns the number of calendar days between from and to.
// Rounded so DST transitions (23h/25h days) do not skew the count.
func dayGap(from, to time.Time) int {
	h := midnightOf(to).Sub(midnightOf(from)).Hours()
	return int(math.Round(h / 24))
}

func midnightOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
