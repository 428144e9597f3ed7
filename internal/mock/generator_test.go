package mock

import (
	"testing"

	"github.com/learnsmart/backend/internal/progression"
)

func newTestGenerator(t *testing.T) (*MockGenerator, *progression.Engine) {
	t.Helper()
	engine, err := progression.NewEngine(progression.NewStore(t.TempDir()), nil)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return NewGenerator(engine), engine
}

func TestSimulateQuiz_AdvancesProgress(t *testing.T) {
	g, engine := newTestGenerator(t)

	g.simulateQuiz()

	if got := engine.Badges.Progress(progression.CriterionQuizzesCompleted); got != 1 {
		t.Errorf("quizzes progress = %d, want 1", got)
	}
	if engine.XP.TotalXP() <= 0 {
		t.Error("quiz simulation granted no XP")
	}
}

func TestSimulateHelpfulAnswer(t *testing.T) {
	g, engine := newTestGenerator(t)

	g.simulateHelpfulAnswer()

	if got := engine.Badges.Progress(progression.CriterionHelpfulAnswers); got != 1 {
		t.Errorf("helpful progress = %d, want 1", got)
	}
	if engine.Coins.Balance() <= 0 {
		t.Error("helpful answer granted no coins")
	}
}

func TestSimulateLesson_LearnsConcepts(t *testing.T) {
	g, engine := newTestGenerator(t)

	g.simulateLesson()

	if got := engine.Badges.Progress(progression.CriterionLessonsCompleted); got != 1 {
		t.Errorf("lessons progress = %d, want 1", got)
	}
	if engine.Badges.LearnedConceptCount() == 0 {
		t.Error("lesson simulation learned no concepts")
	}
}

func TestSimulateShopping_BuysCheapestAffordable(t *testing.T) {
	g, engine := newTestGenerator(t)
	engine.Coins.AddCoins(25, progression.CoinDailyBonus, "seed")

	g.simulateShopping()

	// Smart Glasses at 20 coins is the cheapest purchasable item.
	if !engine.Avatar.IsUnlocked("acc-glasses") {
		t.Error("cheapest affordable cosmetic not purchased")
	}
	if got := engine.Coins.Balance(); got != 5 {
		t.Errorf("coins = %d, want 5 after the 20-coin purchase", got)
	}
}

func TestSimulateShopping_ToleratesEmptyWallet(t *testing.T) {
	g, engine := newTestGenerator(t)

	g.simulateShopping()

	if got := len(engine.Avatar.Unlocked()); got != 0 {
		t.Errorf("unlocked %d cosmetics with an empty wallet, want 0", got)
	}
}
