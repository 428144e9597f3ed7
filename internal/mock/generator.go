package mock

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/learnsmart/backend/internal/progression"
)

// MockGenerator drives the progression engine with a simulated learner so
// the client can be demoed without a real study session. Events arrive on a
// short ticker and cycle through quizzes, lessons, forum activity and the
// occasional cosmetic purchase.
type MockGenerator struct {
	engine *progression.Engine

	concepts []string
	tick     int
}

var demoConcepts = []string{
	"photosynthesis", "mitosis", "newton-first-law", "newton-second-law",
	"pythagorean-theorem", "quadratic-formula", "french-revolution",
	"supply-and-demand", "covalent-bonds", "plate-tectonics",
	"binary-search", "recursion", "derivatives", "integrals",
	"roman-empire", "cell-membrane", "dna-replication", "ohms-law",
	"probability-basics", "trigonometric-identities",
}

func NewGenerator(engine *progression.Engine) *MockGenerator {
	return &MockGenerator{
		engine:   engine,
		concepts: demoConcepts,
	}
}

func (g *MockGenerator) Start(ctx context.Context) {
	// A demo session always counts as today's activity.
	g.engine.Streak.UpdateStreak()

	go g.run(ctx)
}

func (g *MockGenerator) run(ctx context.Context) {
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.tick++
			g.step()
		}
	}
}

func (g *MockGenerator) step() {
	switch {
	case g.tick%7 == 0:
		g.simulateLesson()
	case g.tick%5 == 0:
		g.simulateHelpfulAnswer()
	case g.tick%11 == 0:
		g.simulateShopping()
	default:
		g.simulateQuiz()
	}
}

func (g *MockGenerator) simulateQuiz() {
	total := 5 + rand.Intn(6)
	correct := total - rand.Intn(3)
	if correct < 0 {
		correct = 0
	}

	items := []progression.XPItem{{
		Amount:      float64(progression.XPPerCorrectAnswer * correct),
		Type:        progression.XPQuizCorrect,
		Description: fmt.Sprintf("Quiz: %d/%d correct", correct, total),
	}}
	if streak := rand.Intn(correct + 1); streak > 1 {
		items = append(items, progression.XPItem{
			Amount:      float64(progression.XPPerQuizStreakStep * streak),
			Type:        progression.XPQuizStreak,
			Description: fmt.Sprintf("Answer streak x%d", streak),
		})
	}
	g.engine.XP.AddXPBatch(items)

	g.engine.Badges.IncrementProgress(progression.CriterionQuizzesCompleted, 1)
	if correct == total {
		g.engine.Badges.IncrementProgress(progression.CriterionPerfectQuizzes, 1)
	}
}

func (g *MockGenerator) simulateLesson() {
	g.engine.Badges.IncrementProgress(progression.CriterionLessonsCompleted, 1)

	n := 1 + rand.Intn(3)
	learned := make([]string, 0, n)
	for i := 0; i < n; i++ {
		learned = append(learned, g.concepts[rand.Intn(len(g.concepts))])
	}
	g.engine.Badges.AddLearnedConcepts(learned)
}

func (g *MockGenerator) simulateHelpfulAnswer() {
	g.engine.XP.AddXP(progression.XPHelpfulAnswer, progression.XPForumHelpful, "Answer marked helpful")
	g.engine.Coins.AddCoins(progression.CoinsHelpfulAnswer, progression.CoinForumHelpful, "Answer marked helpful")
	g.engine.Badges.IncrementProgress(progression.CriterionHelpfulAnswers, 1)
}

// simulateShopping tries to buy the cheapest cosmetic the learner can
// afford but does not own yet. Failed purchases are fine, that path is
// part of the demo too.
func (g *MockGenerator) simulateShopping() {
	var pick *progression.Cosmetic
	for _, c := range g.engine.Avatar.Catalog() {
		if !c.Purchaseable || g.engine.Avatar.IsUnlocked(c.ID) {
			continue
		}
		if pick == nil || c.Cost < pick.Cost {
			copy := c
			pick = &copy
		}
	}
	if pick == nil {
		return
	}

	if g.engine.Avatar.UnlockCosmetic(pick.ID) {
		g.engine.Avatar.EquipCosmetic(pick.ID)
	}
}
