package progression

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	rankStateName    = "rank"
	maxRankUpEntries = 50
)

// Rank is a static progression tier. MaxXP is exclusive; the top tier uses
// math.MaxInt to mark its open upper bound.
type Rank struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MinXP       int    `json:"minXP"`
	MaxXP       int    `json:"maxXP"`
	Icon        string `json:"icon"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

// rankTable is the ordered tier table. Tiers span [0, +inf) with no gaps or
// overlaps: for any non-negative XP exactly one tier matches
// minXP <= xp < maxXP. RankForXP relies on this for totality.
var rankTable = []Rank{
	{ID: "novice", Name: "Novice", MinXP: 0, MaxXP: 500, Icon: "🌱", Color: "#8BC34A", Description: "Just getting started"},
	{ID: "seeker", Name: "Seeker", MinXP: 500, MaxXP: 1500, Icon: "🔍", Color: "#03A9F4", Description: "Building a study habit"},
	{ID: "scholar", Name: "Scholar", MinXP: 1500, MaxXP: 4000, Icon: "📚", Color: "#9C27B0", Description: "Serious about learning"},
	{ID: "sage", Name: "Sage", MinXP: 4000, MaxXP: 10000, Icon: "🦉", Color: "#FF9800", Description: "Deep knowledge across subjects"},
	{ID: "luminary", Name: "Luminary", MinXP: 10000, MaxXP: math.MaxInt, Icon: "⭐", Color: "#FFD700", Description: "An inspiration to every learner"},
}

// Ranks returns a copy of the ordered tier table.
func Ranks() []Rank {
	out := make([]Rank, len(rankTable))
	copy(out, rankTable)
	return out
}

// RankForXP derives the tier for a lifetime XP value. Negative values clamp
// to zero. The table invariant makes the final return unreachable.
func RankForXP(xp int) Rank {
	if xp < 0 {
		xp = 0
	}
	for _, r := range rankTable {
		if xp >= r.MinXP && xp < r.MaxXP {
			return r
		}
	}
	return rankTable[len(rankTable)-1]
}

// nextRank returns the table successor of r, or ok=false at the top tier.
func nextRank(r Rank) (Rank, bool) {
	for i, cur := range rankTable {
		if cur.ID == r.ID && i+1 < len(rankTable) {
			return rankTable[i+1], true
		}
	}
	return Rank{}, false
}

func rankByID(id string) (Rank, bool) {
	for _, r := range rankTable {
		if r.ID == id {
			return r, true
		}
	}
	return Rank{}, false
}

// progressPercent is the position within the current tier, 0-100.
// Always 100 at the top tier.
func progressPercent(xp int, r Rank) float64 {
	next, ok := nextRank(r)
	if !ok {
		return 100
	}
	pct := float64(xp-r.MinXP) / float64(next.MinXP-r.MinXP) * 100
	return math.Min(math.Max(pct, 0), 100)
}

// RankUpEntry is an immutable history record of one tier transition.
type RankUpEntry struct {
	ID         string    `json:"id"`
	FromRankID string    `json:"fromRankId"`
	ToRankID   string    `json:"toRankId"`
	Timestamp  time.Time `json:"timestamp"`
	TotalXP    int       `json:"totalXP"`
}

// RankState is the persistent rank document. CurrentRankID and
// ProgressPercent are derived caches; the source of truth is lifetime XP.
type RankState struct {
	Version         int           `json:"version"`
	CurrentRankID   string        `json:"currentRankId"`
	ProgressPercent float64       `json:"progressPercent"`
	History         []RankUpEntry `json:"history"` // newest first, capped at maxRankUpEntries
	LastRankUp      *RankUpEntry  `json:"lastRankUp,omitempty"`
}

// RankEngine derives the current tier from lifetime XP and records
// transitions. UpdateFromXP is idempotent: calling it twice with the same
// value never produces a duplicate transition.
type RankEngine struct {
	mu    sync.Mutex
	state RankState
	dirty bool

	chat     ChatSink
	onRankUp func(RankUpEntry)
}

func newRankEngine() *RankEngine {
	return &RankEngine{state: RankState{Version: stateVersion, CurrentRankID: rankTable[0].ID}}
}

func loadRankEngine(persist *Store) (*RankEngine, error) {
	e := newRankEngine()
	if _, err := persist.Load(rankStateName, &e.state); err != nil {
		return nil, err
	}
	e.state.Version = stateVersion
	if _, ok := rankByID(e.state.CurrentRankID); !ok {
		e.state.CurrentRankID = rankTable[0].ID
	}
	return e, nil
}

// OnRankUp registers a callback invoked on every tier transition.
// Must be set before the engine is used.
func (e *RankEngine) OnRankUp(cb func(RankUpEntry)) {
	e.onRankUp = cb
}

// UpdateFromXP recomputes the derived tier and progress for the given
// lifetime total. On a genuine tier transition it appends a history entry,
// records the consumable rank-up event, and posts a celebratory message.
func (e *RankEngine) UpdateFromXP(totalXP int) {
	e.updateFromXP(totalXP, time.Now())
}

func (e *RankEngine) updateFromXP(totalXP int, now time.Time) {
	next := RankForXP(totalXP)
	pct := progressPercent(totalXP, next)

	e.mu.Lock()
	if next.ID == e.state.CurrentRankID {
		if pct != e.state.ProgressPercent {
			e.state.ProgressPercent = pct
			e.dirty = true
		}
		e.mu.Unlock()
		return
	}

	entry := RankUpEntry{
		ID:         uuid.NewString(),
		FromRankID: e.state.CurrentRankID,
		ToRankID:   next.ID,
		Timestamp:  now,
		TotalXP:    totalXP,
	}
	e.state.CurrentRankID = next.ID
	e.state.ProgressPercent = pct
	e.state.History = prependCapped([]RankUpEntry{entry}, e.state.History, maxRankUpEntries)
	e.state.LastRankUp = &entry
	e.dirty = true
	e.mu.Unlock()

	if e.chat != nil {
		e.chat.Post("system", fmt.Sprintf("Rank up! You are now a %s %s", next.Icon, next.Name))
	}
	if e.onRankUp != nil {
		e.onRankUp(entry)
	}
}

// CheckRankUp applies the same update as UpdateFromXP and additionally
// reports the before/after tiers and whether a transition occurred.
func (e *RankEngine) CheckRankUp(newXP int) (from, to Rank, changed bool) {
	e.mu.Lock()
	fromID := e.state.CurrentRankID
	e.mu.Unlock()

	e.UpdateFromXP(newXP)

	from, _ = rankByID(fromID)
	to = RankForXP(newXP)
	return from, to, from.ID != to.ID
}

// ConsumeLastRankUp returns the pending rank-up event and clears it.
// Single-reader semantics: the UI shows the celebratory modal exactly once.
func (e *RankEngine) ConsumeLastRankUp() (RankUpEntry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.LastRankUp == nil {
		return RankUpEntry{}, false
	}
	entry := *e.state.LastRankUp
	e.state.LastRankUp = nil
	e.dirty = true
	return entry, true
}

// CurrentRank returns the cached derived tier.
func (e *RankEngine) CurrentRank() Rank {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := rankByID(e.state.CurrentRankID)
	if !ok {
		return rankTable[0]
	}
	return r
}

// NextRank returns the successor of the current tier, or ok=false at the top.
func (e *RankEngine) NextRank() (Rank, bool) {
	return nextRank(e.CurrentRank())
}

// Progress returns the cached within-tier progress percentage.
func (e *RankEngine) Progress() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.ProgressPercent
}

// History returns a copy of the rank-up history, newest first.
func (e *RankEngine) History() []RankUpEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]RankUpEntry, len(e.state.History))
	copy(out, e.state.History)
	return out
}

func (e *RankEngine) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = RankState{Version: stateVersion, CurrentRankID: rankTable[0].ID}
	e.dirty = true
}

func (e *RankEngine) flush(persist *Store) error {
	e.mu.Lock()
	if !e.dirty {
		e.mu.Unlock()
		return nil
	}
	snap := e.state
	snap.History = make([]RankUpEntry, len(e.state.History))
	copy(snap.History, e.state.History)
	if e.state.LastRankUp != nil {
		cp := *e.state.LastRankUp
		snap.LastRankUp = &cp
	}
	e.dirty = false
	e.mu.Unlock()
	return persist.Save(rankStateName, &snap)
}
