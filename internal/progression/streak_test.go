package progression

import (
	"testing"
	"time"
)

// streakFixture wires a streak engine to real in-memory collaborators so
// reward side effects can be asserted end to end.
type streakFixture struct {
	streak *StreakEngine
	xp     *XPLedger
	coins  *CoinLedger
	badges *BadgeEngine
	avatar *AvatarStore
}

func newStreakFixture() *streakFixture {
	f := &streakFixture{
		streak: newStreakEngine(),
		xp:     newXPLedger(),
		coins:  newCoinLedger(),
		badges: newBadgeEngine(),
		avatar: newAvatarStore(),
	}
	f.streak.xp = f.xp
	f.streak.coins = f.coins
	f.streak.badges = f.badges
	f.streak.avatar = f.avatar
	return f
}

func day(n int) time.Time {
	return time.Date(2026, 3, n, 12, 0, 0, 0, time.UTC)
}

func TestUpdateStreak_FirstActivityStartsAtOneWithoutReward(t *testing.T) {
	f := newStreakFixture()
	f.streak.updateStreak(day(1))

	st := f.streak.Status()
	if st.Current != 1 || st.Longest != 1 {
		t.Errorf("current=%d longest=%d, want 1 and 1", st.Current, st.Longest)
	}
	if got := f.xp.TotalXP(); got != 0 {
		t.Errorf("XP = %d, want 0 (no reward for starting a streak)", got)
	}
	if got := f.coins.Balance(); got != 0 {
		t.Errorf("coins = %d, want 0", got)
	}
	if !f.streak.Calendar()["2026-03-01"] {
		t.Error("calendar missing today's key")
	}
}

func TestUpdateStreak_ConsecutiveDayRewards(t *testing.T) {
	f := newStreakFixture()
	f.streak.updateStreak(day(1))
	f.streak.updateStreak(day(2))

	st := f.streak.Status()
	if st.Current != 2 {
		t.Fatalf("current = %d, want 2", st.Current)
	}
	if got := f.xp.TotalXP(); got != streakRewardXP {
		t.Errorf("XP = %d, want %d", got, streakRewardXP)
	}
	if got := f.coins.Balance(); got != streakRewardCoins {
		t.Errorf("coins = %d, want %d", got, streakRewardCoins)
	}
	entries := f.xp.Entries()
	if len(entries) != 1 || entries[0].Type != XPDailyStreak {
		t.Errorf("XP entries = %v, want one %s entry", entries, XPDailyStreak)
	}
}

func TestUpdateStreak_SameDayIdempotent(t *testing.T) {
	f := newStreakFixture()
	f.streak.updateStreak(day(1))
	f.streak.updateStreak(day(2))
	f.streak.updateStreak(day(2).Add(3 * time.Hour))
	f.streak.updateStreak(day(2).Add(9 * time.Hour))

	if got := f.streak.Status().Current; got != 2 {
		t.Errorf("current = %d, want 2 (same-day repeats are no-ops)", got)
	}
	if got := f.xp.TotalXP(); got != streakRewardXP {
		t.Errorf("XP = %d, want %d (reward granted once)", got, streakRewardXP)
	}
	if got := f.streak.Status().ActiveDays; got != 2 {
		t.Errorf("active days = %d, want 2", got)
	}
}

func TestUpdateStreak_GapResetsToOne(t *testing.T) {
	f := newStreakFixture()
	f.streak.updateStreak(day(1))
	f.streak.updateStreak(day(2))
	f.streak.updateStreak(day(6))

	st := f.streak.Status()
	if st.Current != 1 {
		t.Errorf("current = %d, want 1 (reset, not 0)", st.Current)
	}
	if st.Longest != 2 {
		t.Errorf("longest = %d, want 2 (preserved across reset)", st.Longest)
	}
	if got := f.xp.TotalXP(); got != streakRewardXP {
		t.Errorf("XP = %d, want %d (no reward on reset)", got, streakRewardXP)
	}
}

func TestUpdateStreak_ProtectionBridgesOneMissedDay(t *testing.T) {
	f := newStreakFixture()
	f.streak.state.Current = 10
	f.streak.state.Longest = 10
	f.streak.state.LastActivity = day(10)
	f.streak.state.Calendar["2026-03-10"] = true
	f.streak.state.ProtectionActive = true
	f.streak.state.ProtectionExpiresAt = day(12).Add(time.Hour)

	// Day 11 missed, return on day 12 with an unexpired token.
	f.streak.updateStreak(day(12))

	st := f.streak.Status()
	if st.Current != 11 {
		t.Errorf("current = %d, want 11 (protection bridges the gap)", st.Current)
	}
	if st.ProtectionActive {
		t.Error("protection still active, want consumed")
	}
	if got := f.xp.TotalXP(); got != streakRewardXP {
		t.Errorf("XP = %d, want %d (bridged day counts as a continuation)", got, streakRewardXP)
	}
}

func TestUpdateStreak_ExpiredProtectionDoesNotBridge(t *testing.T) {
	f := newStreakFixture()
	f.streak.state.Current = 10
	f.streak.state.Longest = 10
	f.streak.state.LastActivity = day(10)
	f.streak.state.ProtectionActive = true
	f.streak.state.ProtectionExpiresAt = day(11)

	f.streak.updateStreak(day(12))

	st := f.streak.Status()
	if st.Current != 1 {
		t.Errorf("current = %d, want 1 (expired token cannot bridge)", st.Current)
	}
	if st.ProtectionActive {
		t.Error("expired protection should be deactivated")
	}
}

func TestUpdateStreak_ProtectionNeverBridgesLongerGaps(t *testing.T) {
	f := newStreakFixture()
	f.streak.state.Current = 10
	f.streak.state.LastActivity = day(10)
	f.streak.state.ProtectionActive = true
	f.streak.state.ProtectionExpiresAt = day(20)

	f.streak.updateStreak(day(14))

	if got := f.streak.Status().Current; got != 1 {
		t.Errorf("current = %d, want 1 (token covers exactly one missed day)", got)
	}
}

func TestUpdateStreak_BadgeAndMilestoneGrants(t *testing.T) {
	f := newStreakFixture()
	f.streak.state.Current = 6
	f.streak.state.Longest = 6
	f.streak.state.LastActivity = day(6)

	f.streak.updateStreak(day(7))

	if got := f.streak.Status().Current; got != 7 {
		t.Fatalf("current = %d, want 7", got)
	}
	if !f.badges.IsUnlocked("streak-week") {
		t.Error("streak-week badge not unlocked at 7 days")
	}
	if !f.badges.IsUnlocked("streak-spark") {
		t.Error("streak-spark (3 days) not retro-unlocked when counter jumps past it")
	}
	if !f.avatar.IsUnlocked("bg-sunrise") {
		t.Error("7-day milestone background not granted")
	}
}

func TestActivateStreakProtection(t *testing.T) {
	now := day(10)

	t.Run("RejectsShortStreak", func(t *testing.T) {
		f := newStreakFixture()
		f.coins.AddCoins(100, CoinDailyBonus, "seed")
		f.streak.state.Current = 5
		if f.streak.activateProtection(now) {
			t.Error("activation succeeded with a 5-day streak, want rejection below 7")
		}
		if got := f.coins.Balance(); got != 100 {
			t.Errorf("coins = %d, want 100 (no charge on rejection)", got)
		}
	})

	t.Run("RejectsInsufficientCoins", func(t *testing.T) {
		f := newStreakFixture()
		f.coins.AddCoins(protectionCost-1, CoinDailyBonus, "seed")
		f.streak.state.Current = 8
		if f.streak.activateProtection(now) {
			t.Error("activation succeeded without enough coins")
		}
		if f.streak.Status().ProtectionActive {
			t.Error("protection active despite failed spend")
		}
	})

	t.Run("SpendsAndSetsExpiry", func(t *testing.T) {
		f := newStreakFixture()
		f.coins.AddCoins(60, CoinDailyBonus, "seed")
		f.streak.state.Current = 8
		if !f.streak.activateProtection(now) {
			t.Fatal("activation should succeed")
		}
		if got := f.coins.Balance(); got != 60-protectionCost {
			t.Errorf("coins = %d, want %d", got, 60-protectionCost)
		}
		st := f.streak.Status()
		if !st.ProtectionActive {
			t.Error("protection not active after purchase")
		}
		if want := now.Add(protectionWindow); !st.ProtectionExpiresAt.Equal(want) {
			t.Errorf("expiry = %v, want %v", st.ProtectionExpiresAt, want)
		}
	})

	t.Run("RejectsDoubleActivation", func(t *testing.T) {
		f := newStreakFixture()
		f.coins.AddCoins(200, CoinDailyBonus, "seed")
		f.streak.state.Current = 8
		f.streak.activateProtection(now)
		if f.streak.activateProtection(now.Add(time.Hour)) {
			t.Error("second activation succeeded while a token is active")
		}
		if got := f.coins.Balance(); got != 200-protectionCost {
			t.Errorf("coins = %d, want single charge of %d", got, protectionCost)
		}
	})
}

func TestDayGap(t *testing.T) {
	tests := []struct {
		name string
		from time.Time
		to   time.Time
		want int
	}{
		{"SameDay", day(1), day(1).Add(6 * time.Hour), 0},
		{"NextDay", day(1), day(2), 1},
		{"NextDayLateToEarly", day(1).Add(11 * time.Hour), day(2).Add(-11 * time.Hour), 1},
		{"TwoDays", day(1), day(3), 2},
		{"Week", day(1), day(8), 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := dayGap(tt.from, tt.to); got != tt.want {
				t.Errorf("dayGap(%v, %v) = %d, want %d", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestUpdateStreak_LongestNeverBelowCurrent(t *testing.T) {
	f := newStreakFixture()
	for i := 1; i <= 5; i++ {
		f.streak.updateStreak(day(i))
		st := f.streak.Status()
		if st.Longest < st.Current {
			t.Fatalf("day %d: longest %d < current %d", i, st.Longest, st.Current)
		}
	}
}
