// Package progression implements the gamification core of the LearnSmart
// app: experience and coin ledgers, rank derivation, badge unlocking,
// streak continuity, and avatar cosmetics. Engines notify each other
// through explicit interfaces wired once at startup; there are no package
// singletons. Every public operation is a synchronous state transition.
package progression

import (
	"context"
	"log"
	"time"
)

const saveInterval = 30 * time.Second

// ChatSink receives free-text celebratory messages (rank-up, badge-unlock).
// Fire-and-forget; no acknowledgement is required.
type ChatSink interface {
	Post(role, content string)
}

// XPGranter grants experience. Implemented by XPLedger.
type XPGranter interface {
	AddXP(amount float64, typ XPType, description string)
}

// XPReader exposes the lifetime total. Implemented by XPLedger.
type XPReader interface {
	TotalXP() int
}

// CoinGranter credits coins. Implemented by CoinLedger.
type CoinGranter interface {
	AddCoins(amount float64, typ CoinType, description string)
}

// CoinSpender performs a conditional coin debit. Implemented by CoinLedger.
type CoinSpender interface {
	SubtractCoins(amount float64, reason string) bool
}

// CoinWallet both credits and conditionally debits coins.
type CoinWallet interface {
	CoinGranter
	CoinSpender
}

// BadgeChecker evaluates badge thresholds for a criterion counter value.
// Implemented by BadgeEngine.
type BadgeChecker interface {
	CheckAndUnlockBadges(criterion string, value int) []Badge
}

// CosmeticGranter unlocks a cosmetic free of charge. Implemented by
// AvatarStore.
type CosmeticGranter interface {
	GrantCosmetic(id string) bool
}

// Engine is the application-state container holding one instance of each
// store for the lifetime of the session. Construction loads every persisted
// document and wires the cross-store notification graph:
//
//	XP -> Rank -> chat
//	Streak -> XP/Coins, Badges, Avatar
//	Badges -> XP, Coins, chat, Avatar
//	Avatar -> XP (read), Coins (spend)
type Engine struct {
	persist *Store

	Coins  *CoinLedger
	XP     *XPLedger
	Rank   *RankEngine
	Badges *BadgeEngine
	Streak *StreakEngine
	Avatar *AvatarStore
}

// NewEngine loads all persisted state from persist and wires the engines.
// chat may be nil when no notification sink is attached.
func NewEngine(persist *Store, chat ChatSink) (*Engine, error) {
	coins, err := loadCoinLedger(persist)
	if err != nil {
		return nil, err
	}
	xp, err := loadXPLedger(persist)
	if err != nil {
		return nil, err
	}
	rank, err := loadRankEngine(persist)
	if err != nil {
		return nil, err
	}
	badges, err := loadBadgeEngine(persist)
	if err != nil {
		return nil, err
	}
	streak, err := loadStreakEngine(persist)
	if err != nil {
		return nil, err
	}
	avatar, err := loadAvatarStore(persist)
	if err != nil {
		return nil, err
	}

	rank.chat = chat
	xp.rank = rank
	avatar.xp = xp
	avatar.coins = coins
	badges.xp = xp
	badges.coins = coins
	badges.avatar = avatar
	badges.chat = chat
	streak.xp = xp
	streak.coins = coins
	streak.badges = badges
	streak.avatar = avatar

	return &Engine{
		persist: persist,
		Coins:   coins,
		XP:      xp,
		Rank:    rank,
		Badges:  badges,
		Streak:  streak,
		Avatar:  avatar,
	}, nil
}

// Run persists dirty engines periodically and performs a final save when
// ctx is cancelled. Run blocks; start it in a goroutine.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(saveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.SaveNow()
			return
		case <-ticker.C:
			e.SaveNow()
		}
	}
}

// SaveNow flushes every engine with unsaved changes to the store.
func (e *Engine) SaveNow() {
	type flusher interface {
		flush(*Store) error
	}
	for _, f := range []flusher{e.Coins, e.XP, e.Rank, e.Badges, e.Streak, e.Avatar} {
		if err := f.flush(e.persist); err != nil {
			log.Printf("Failed to save progression state: %v", err)
		}
	}
}

// ResetAll returns every store to its first-run default and persists the
// cleared documents. Used for account reset and tests.
func (e *Engine) ResetAll() {
	e.XP.reset()
	e.Rank.reset()
	e.Coins.reset()
	e.Badges.reset()
	e.Streak.reset()
	e.Avatar.reset()
	e.SaveNow()
}

// Snapshot is a cross-store summary for the UI.
type Snapshot struct {
	TotalXP         int          `json:"totalXP"`
	DailyXP         int          `json:"dailyXP"`
	Rank            Rank         `json:"rank"`
	NextRank        *Rank        `json:"nextRank,omitempty"`
	ProgressPercent float64      `json:"progressPercent"`
	CoinBalance     int          `json:"coinBalance"`
	Streak          StreakStatus `json:"streak"`
	BadgesUnlocked  int          `json:"badgesUnlocked"`
	BadgesTotal     int          `json:"badgesTotal"`
	Avatar          Appearance   `json:"avatar"`
}

// Snapshot assembles the current summary across all stores.
func (e *Engine) Snapshot() Snapshot {
	snap := Snapshot{
		TotalXP:         e.XP.TotalXP(),
		DailyXP:         e.XP.DailyXP(),
		Rank:            e.Rank.CurrentRank(),
		ProgressPercent: e.Rank.Progress(),
		CoinBalance:     e.Coins.Balance(),
		Streak:          e.Streak.Status(),
		BadgesUnlocked:  len(e.Badges.Unlocked()),
		BadgesTotal:     len(e.Badges.Catalog()),
		Avatar:          e.Avatar.Appearance(),
	}
	if next, ok := e.Rank.NextRank(); ok {
		snap.NextRank = &next
	}
	return snap
}

// prependCapped places newest in front of older and drops the oldest
// entries beyond max.
func prependCapped[T any](newest, older []T, max int) []T {
	out := make([]T, 0, len(newest)+len(older))
	out = append(out, newest...)
	out = append(out, older...)
	if len(out) > max {
		out = out[:max]
	}
	return out
}
