package progression

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CoinType classifies why coins moved.
type CoinType string

const (
	CoinBadgeUnlock  CoinType = "badge-unlock"
	CoinForumHelpful CoinType = "forum-helpful"
	CoinAchievement  CoinType = "achievement"
	CoinDailyBonus   CoinType = "daily-bonus"
)

const (
	coinStateName  = "coins"
	maxCoinEntries = 800
)

// CoinEntry is an immutable ledger record. Amount is negative for spends.
type CoinEntry struct {
	ID          string    `json:"id"`
	Type        CoinType  `json:"type"`
	Amount      int       `json:"amount"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
}

// CoinState is the persistent SmartCoin ledger document.
type CoinState struct {
	Version int         `json:"version"`
	Balance int         `json:"balance"`
	Entries []CoinEntry `json:"entries"` // newest first, capped at maxCoinEntries
}

// CoinLedger holds the SmartCoin balance and its append-only transaction log.
// SubtractCoins is the sole mutual-exclusion point for every coin-funded
// purchase: the read-then-write of the balance happens under one lock.
type CoinLedger struct {
	mu    sync.Mutex
	state CoinState
	dirty bool
}

func newCoinLedger() *CoinLedger {
	return &CoinLedger{state: CoinState{Version: stateVersion}}
}

func loadCoinLedger(persist *Store) (*CoinLedger, error) {
	l := newCoinLedger()
	if _, err := persist.Load(coinStateName, &l.state); err != nil {
		return nil, err
	}
	l.state.Version = stateVersion
	return l, nil
}

// AddCoins credits the balance and records a ledger entry. Non-finite or
// zero amounts are silently dropped: grants are always internally triggered,
// never untrusted input. The amount is rounded to the nearest whole coin.
func (l *CoinLedger) AddCoins(amount float64, typ CoinType, description string) {
	l.addCoins(amount, typ, description, time.Now())
}

func (l *CoinLedger) addCoins(amount float64, typ CoinType, description string, now time.Time) {
	if !validAmount(amount) {
		return
	}
	n := int(math.Round(amount))

	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.Entries = prependCapped([]CoinEntry{{
		ID:          uuid.NewString(),
		Type:        typ,
		Amount:      n,
		Timestamp:   now,
		Description: description,
	}}, l.state.Entries, maxCoinEntries)
	l.state.Balance += n
	if l.state.Balance < 0 {
		l.state.Balance = 0
	}
	l.dirty = true
}

// SubtractCoins performs a conditional spend. It returns false without any
// mutation when amount is non-finite, non-positive, or exceeds the current
// balance. On success it records a negative-amount entry and debits the
// balance by exactly the rounded amount.
func (l *CoinLedger) SubtractCoins(amount float64, reason string) bool {
	return l.subtractCoins(amount, reason, time.Now())
}

func (l *CoinLedger) subtractCoins(amount float64, reason string, now time.Time) bool {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return false
	}
	n := int(math.Round(amount))
	if n <= 0 {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if n > l.state.Balance {
		return false
	}
	l.state.Entries = prependCapped([]CoinEntry{{
		ID:          uuid.NewString(),
		Type:        CoinAchievement,
		Amount:      -n,
		Timestamp:   now,
		Description: reason,
	}}, l.state.Entries, maxCoinEntries)
	l.state.Balance -= n
	l.dirty = true
	return true
}

// Balance returns the current coin balance.
func (l *CoinLedger) Balance() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Balance
}

// Entries returns a copy of the ledger, newest first.
func (l *CoinLedger) Entries() []CoinEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]CoinEntry, len(l.state.Entries))
	copy(out, l.state.Entries)
	return out
}

func (l *CoinLedger) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = CoinState{Version: stateVersion}
	l.dirty = true
}

func (l *CoinLedger) flush(persist *Store) error {
	l.mu.Lock()
	if !l.dirty {
		l.mu.Unlock()
		return nil
	}
	snap := l.state
	snap.Entries = make([]CoinEntry, len(l.state.Entries))
	copy(snap.Entries, l.state.Entries)
	l.dirty = false
	l.mu.Unlock()
	return persist.Save(coinStateName, &snap)
}
