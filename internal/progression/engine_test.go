package progression

import (
	"testing"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(NewStore(t.TempDir()), nil)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return e
}

func TestEngine_BadgeUnlockCascadesRewards(t *testing.T) {
	e := newTestEngine(t)

	// Five quizzes unlock quiz-rookie, worth 50 XP and 5 coins.
	unlocked := e.Badges.IncrementProgress(CriterionQuizzesCompleted, 5)
	if len(unlocked) != 1 || unlocked[0].ID != "quiz-rookie" {
		t.Fatalf("unlocked = %v, want [quiz-rookie]", unlocked)
	}
	if got := e.XP.TotalXP(); got != 50 {
		t.Errorf("TotalXP = %d, want 50 from badge reward", got)
	}
	if got := e.Coins.Balance(); got != 5 {
		t.Errorf("coins = %d, want 5 from badge reward", got)
	}
}

func TestEngine_XPGainDrivesRank(t *testing.T) {
	e := newTestEngine(t)

	e.XP.AddXP(600, XPQuizCorrect, "big quiz day")

	if got := e.Rank.CurrentRank().ID; got != "seeker" {
		t.Errorf("rank = %s, want seeker at 600 XP", got)
	}
	if got := len(e.Rank.History()); got != 1 {
		t.Errorf("got %d rank transitions, want 1", got)
	}
}

func TestEngine_CosmeticPurchaseSpendsCoins(t *testing.T) {
	e := newTestEngine(t)
	e.Coins.AddCoins(100, CoinDailyBonus, "seed")

	if !e.Avatar.UnlockCosmetic("acc-halo") {
		t.Fatal("purchase should succeed with 100 coins")
	}
	if got := e.Coins.Balance(); got != 50 {
		t.Errorf("coins = %d, want 50 after the 50-coin purchase", got)
	}
}

func TestEngine_Snapshot(t *testing.T) {
	e := newTestEngine(t)
	e.XP.AddXP(600, XPQuizCorrect, "quiz")
	e.Coins.AddCoins(30, CoinDailyBonus, "seed")
	e.Badges.UnlockBadge("lesson-first")

	snap := e.Snapshot()
	// lesson-first pays 25 XP on top of the 600.
	if snap.TotalXP != 625 {
		t.Errorf("snapshot TotalXP = %d, want 625", snap.TotalXP)
	}
	if snap.Rank.ID != "seeker" {
		t.Errorf("snapshot rank = %s, want seeker", snap.Rank.ID)
	}
	if snap.NextRank == nil || snap.NextRank.ID != "scholar" {
		t.Errorf("snapshot next rank = %v, want scholar", snap.NextRank)
	}
	if snap.CoinBalance != 35 {
		t.Errorf("snapshot coins = %d, want 35 (30 seed + 5 badge reward)", snap.CoinBalance)
	}
	if snap.BadgesUnlocked != 1 {
		t.Errorf("snapshot badges unlocked = %d, want 1", snap.BadgesUnlocked)
	}
	if snap.BadgesTotal != len(badgeCatalog()) {
		t.Errorf("snapshot badges total = %d, want %d", snap.BadgesTotal, len(badgeCatalog()))
	}
	if snap.Avatar.BaseCharacter != "owl" {
		t.Errorf("snapshot avatar base = %q, want owl default", snap.Avatar.BaseCharacter)
	}
}

func TestEngine_StateSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	e1, err := NewEngine(store, nil)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	e1.XP.AddXP(2000, XPQuizCorrect, "study marathon")
	e1.Coins.AddCoins(75, CoinDailyBonus, "seed")
	e1.Badges.UnlockBadge("helper-first")
	e1.Streak.UpdateStreak()
	e1.Avatar.GrantCosmetic("bg-aurora")
	e1.SaveNow()

	e2, err := NewEngine(NewStore(dir), nil)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if got, want := e2.XP.TotalXP(), e1.XP.TotalXP(); got != want {
		t.Errorf("reloaded TotalXP = %d, want %d", got, want)
	}
	if got := e2.Rank.CurrentRank().ID; got != "scholar" {
		t.Errorf("reloaded rank = %s, want scholar", got)
	}
	if got, want := e2.Coins.Balance(), e1.Coins.Balance(); got != want {
		t.Errorf("reloaded coins = %d, want %d", got, want)
	}
	if !e2.Badges.IsUnlocked("helper-first") {
		t.Error("badge unlock lost across reload")
	}
	if got := e2.Streak.Status().Current; got != 1 {
		t.Errorf("reloaded streak = %d, want 1", got)
	}
	if !e2.Avatar.IsUnlocked("bg-aurora") {
		t.Error("cosmetic unlock lost across reload")
	}
}

func TestEngine_ResetAll(t *testing.T) {
	dir := t.TempDir()
	e, err := NewEngine(NewStore(dir), nil)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	e.XP.AddXP(2000, XPQuizCorrect, "quiz")
	e.Coins.AddCoins(75, CoinDailyBonus, "seed")
	e.Badges.UnlockBadge("helper-first")
	e.Streak.UpdateStreak()

	e.ResetAll()

	if got := e.XP.TotalXP(); got != 0 {
		t.Errorf("TotalXP after reset = %d, want 0", got)
	}
	if got := e.Rank.CurrentRank().ID; got != "novice" {
		t.Errorf("rank after reset = %s, want novice", got)
	}
	if got := e.Coins.Balance(); got != 0 {
		t.Errorf("coins after reset = %d, want 0", got)
	}
	if len(e.Badges.Unlocked()) != 0 {
		t.Error("badges survived reset")
	}
	if got := e.Streak.Status().Current; got != 0 {
		t.Errorf("streak after reset = %d, want 0", got)
	}

	// Reset is persisted, not just in-memory.
	e2, err := NewEngine(NewStore(dir), nil)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if got := e2.XP.TotalXP(); got != 0 {
		t.Errorf("reloaded TotalXP after reset = %d, want 0", got)
	}
}

func TestPrependCapped(t *testing.T) {
	out := prependCapped([]int{1, 2}, []int{3, 4, 5}, 4)
	want := []int{1, 2, 3, 4}
	if len(out) != len(want) {
		t.Fatalf("len = %d, want %d", len(out), len(want))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out = %v, want %v", out, want)
			break
		}
	}
}
