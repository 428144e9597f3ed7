package progression

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// BadgeCategory groups related badges in the UI.
type BadgeCategory string

const (
	CategoryLearning    BadgeCategory = "learning"
	CategoryCommunity   BadgeCategory = "community"
	CategoryStreak      BadgeCategory = "streak"
	CategoryAchievement BadgeCategory = "achievement"
)

// Rarity indicates how hard a badge or cosmetic is to earn.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// Progress criterion keys fed by learning-activity events.
const (
	CriterionQuizzesCompleted = "quizzes_completed"
	CriterionPerfectQuizzes   = "perfect_quizzes"
	CriterionStreakDays       = "streak_days"
	CriterionHelpfulAnswers   = "helpful_answers"
	CriterionConceptsLearned  = "concepts_learned"
	CriterionLessonsCompleted = "lessons_completed"
)

const badgeStateName = "badges"

// Badge describes a single unlockable achievement in the static catalog.
// Only the unlock timestamp and progress counters are per-user state.
type Badge struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Icon        string        `json:"icon"`
	Description string        `json:"description"`
	Category    BadgeCategory `json:"category"`
	Rarity      Rarity        `json:"rarity"`
	Criterion   string        `json:"criterion"`
	Requirement int           `json:"requirement"`
	XPReward    int           `json:"xpReward"`
	CoinReward  int           `json:"smartCoinReward"`
}

// UnlockedBadge is a catalog entry plus its unlock timestamp.
type UnlockedBadge struct {
	Badge
	UnlockedAt time.Time `json:"unlockedAt"`
}

// BadgeState is the persistent badge document.
type BadgeState struct {
	Version         int                  `json:"version"`
	Unlocked        map[string]time.Time `json:"unlocked"`
	Progress        map[string]int       `json:"progress"`
	LearnedConcepts map[string]bool      `json:"learnedConcepts"`
}

// badgeCatalog is the authoritative badge set, immutable at runtime.
func badgeCatalog() []Badge {
	return []Badge{

		// ── Quizzes ────────────────────────────────────────────────────────

		{
			ID: "quiz-rookie", Name: "Quiz Rookie", Icon: "📝",
			Description: "Complete 5 quizzes",
			Category:    CategoryLearning, Rarity: RarityCommon,
			Criterion: CriterionQuizzesCompleted, Requirement: 5,
			XPReward: 50, CoinReward: 5,
		},
		{
			ID: "quiz-adept", Name: "Quiz Adept", Icon: "🎯",
			Description: "Complete 25 quizzes",
			Category:    CategoryLearning, Rarity: RarityRare,
			Criterion: CriterionQuizzesCompleted, Requirement: 25,
			XPReward: 150, CoinReward: 15,
		},
		{
			ID: "quiz-master", Name: "Quiz Master", Icon: "🏆",
			Description: "Complete 100 quizzes",
			Category:    CategoryLearning, Rarity: RarityEpic,
			Criterion: CriterionQuizzesCompleted, Requirement: 100,
			XPReward: 400, CoinReward: 40,
		},
		{
			ID: "perfectionist", Name: "Perfectionist", Icon: "💯",
			Description: "Score 100% on 10 quizzes",
			Category:    CategoryAchievement, Rarity: RarityEpic,
			Criterion: CriterionPerfectQuizzes, Requirement: 10,
			XPReward: 300, CoinReward: 30,
		},

		// ── Streaks ────────────────────────────────────────────────────────

		{
			ID: "streak-spark", Name: "Spark", Icon: "✨",
			Description: "Study 3 days in a row",
			Category:    CategoryStreak, Rarity: RarityCommon,
			Criterion: CriterionStreakDays, Requirement: 3,
			XPReward: 30, CoinReward: 5,
		},
		{
			ID: "streak-week", Name: "Week of Fire", Icon: "🔥",
			Description: "Study 7 days in a row",
			Category:    CategoryStreak, Rarity: RarityRare,
			Criterion: CriterionStreakDays, Requirement: 7,
			XPReward: 100, CoinReward: 10,
		},
		{
			ID: "streak-month", Name: "Unbroken Month", Icon: "🌙",
			Description: "Study 30 days in a row",
			Category:    CategoryStreak, Rarity: RarityEpic,
			Criterion: CriterionStreakDays, Requirement: 30,
			XPReward: 300, CoinReward: 30,
		},
		{
			ID: "streak-century", Name: "Centurion", Icon: "👑",
			Description: "Study 100 days in a row",
			Category:    CategoryStreak, Rarity: RarityLegendary,
			Criterion: CriterionStreakDays, Requirement: 100,
			XPReward: 1000, CoinReward: 100,
		},

		// ── Community ──────────────────────────────────────────────────────

		{
			ID: "helper-first", Name: "First Helper", Icon: "🤝",
			Description: "Have a forum answer marked helpful",
			Category:    CategoryCommunity, Rarity: RarityCommon,
			Criterion: CriterionHelpfulAnswers, Requirement: 1,
			XPReward: 25, CoinReward: 5,
		},
		{
			ID: "helper-ten", Name: "Trusted Helper", Icon: "💬",
			Description: "10 answers marked helpful",
			Category:    CategoryCommunity, Rarity: RarityRare,
			Criterion: CriterionHelpfulAnswers, Requirement: 10,
			XPReward: 100, CoinReward: 20,
		},
		{
			ID: "helper-fifty", Name: "Community Pillar", Icon: "🏛️",
			Description: "50 answers marked helpful",
			Category:    CategoryCommunity, Rarity: RarityEpic,
			Criterion: CriterionHelpfulAnswers, Requirement: 50,
			XPReward: 350, CoinReward: 50,
		},

		// ── Concepts & lessons ─────────────────────────────────────────────

		{
			ID: "concepts-ten", Name: "Curious Mind", Icon: "💡",
			Description: "Learn 10 distinct concepts",
			Category:    CategoryLearning, Rarity: RarityCommon,
			Criterion: CriterionConceptsLearned, Requirement: 10,
			XPReward: 50, CoinReward: 5,
		},
		{
			ID: "concepts-fifty", Name: "Knowledge Collector", Icon: "🧠",
			Description: "Learn 50 distinct concepts",
			Category:    CategoryLearning, Rarity: RarityRare,
			Criterion: CriterionConceptsLearned, Requirement: 50,
			XPReward: 200, CoinReward: 20,
		},
		{
			ID: "concepts-two-hundred", Name: "Walking Encyclopedia", Icon: "📖",
			Description: "Learn 200 distinct concepts",
			Category:    CategoryLearning, Rarity: RarityLegendary,
			Criterion: CriterionConceptsLearned, Requirement: 200,
			XPReward: 800, CoinReward: 80,
		},
		{
			ID: "lesson-first", Name: "First Steps", Icon: "👣",
			Description: "Complete your first lesson",
			Category:    CategoryLearning, Rarity: RarityCommon,
			Criterion: CriterionLessonsCompleted, Requirement: 1,
			XPReward: 25, CoinReward: 5,
		},
		{
			ID: "lesson-twenty", Name: "Course Charger", Icon: "🚀",
			Description: "Complete 20 lessons",
			Category:    CategoryLearning, Rarity: RarityRare,
			Criterion: CriterionLessonsCompleted, Requirement: 20,
			XPReward: 150, CoinReward: 15,
		},
	}
}

// badgeBackgrounds maps badge IDs to the background cosmetic granted for
// free when that badge unlocks. Partially overlaps with the streak engine's
// milestone grants; both paths are independently idempotent.
var badgeBackgrounds = map[string]string{
	"quiz-master":          "bg-library",
	"streak-century":       "bg-aurora",
	"concepts-two-hundred": "bg-constellation",
	"perfectionist":        "bg-laurels",
}

// BadgeEngine tracks criterion progress counters and unlocks badges when
// thresholds are crossed. Unlocking is idempotent per badge id.
type BadgeEngine struct {
	mu      sync.Mutex
	state   BadgeState
	dirty   bool
	catalog []Badge

	xp       XPGranter
	coins    CoinGranter
	avatar   CosmeticGranter
	chat     ChatSink
	onUnlock func(UnlockedBadge)
}

func newBadgeEngine() *BadgeEngine {
	e := &BadgeEngine{catalog: badgeCatalog()}
	e.state = BadgeState{Version: stateVersion}
	e.initMaps()
	return e
}

func loadBadgeEngine(persist *Store) (*BadgeEngine, error) {
	e := newBadgeEngine()
	if _, err := persist.Load(badgeStateName, &e.state); err != nil {
		return nil, err
	}
	e.state.Version = stateVersion
	e.initMaps()
	return e, nil
}

// initMaps ensures all map fields are non-nil after deserialization.
func (e *BadgeEngine) initMaps() {
	if e.state.Unlocked == nil {
		e.state.Unlocked = make(map[string]time.Time)
	}
	if e.state.Progress == nil {
		e.state.Progress = make(map[string]int)
	}
	if e.state.LearnedConcepts == nil {
		e.state.LearnedConcepts = make(map[string]bool)
	}
}

// OnUnlock registers a callback invoked for every newly unlocked badge.
// Must be set before the engine is used.
func (e *BadgeEngine) OnUnlock(cb func(UnlockedBadge)) {
	e.onUnlock = cb
}

// Catalog returns a copy of the full badge catalog.
func (e *BadgeEngine) Catalog() []Badge {
	out := make([]Badge, len(e.catalog))
	copy(out, e.catalog)
	return out
}

// IncrementProgress adds delta to the named criterion counter and evaluates
// unlocks against the new value. Non-positive deltas are dropped; counters
// only ever grow. Returns the badges unlocked by this increment.
func (e *BadgeEngine) IncrementProgress(criterion string, delta int) []Badge {
	if delta <= 0 {
		return nil
	}
	e.mu.Lock()
	v := e.state.Progress[criterion] + delta
	e.state.Progress[criterion] = v
	e.dirty = true
	e.mu.Unlock()
	return e.CheckAndUnlockBadges(criterion, v)
}

// CheckAndUnlockBadges unlocks every still-locked badge for the criterion
// whose requirement the value meets, in ascending requirement order. A
// counter that jumps several thresholds in one update (retroactive streak
// catch-up, bulk concept import) unlocks every crossed badge in one pass.
func (e *BadgeEngine) CheckAndUnlockBadges(criterion string, value int) []Badge {
	now := time.Now()

	e.mu.Lock()
	var unlocked []UnlockedBadge
	for {
		b, ok := e.nextLockedBadge(criterion, value)
		if !ok {
			break
		}
		e.state.Unlocked[b.ID] = now
		unlocked = append(unlocked, UnlockedBadge{Badge: b, UnlockedAt: now})
	}
	if len(unlocked) > 0 {
		e.dirty = true
	}
	e.mu.Unlock()

	badges := make([]Badge, 0, len(unlocked))
	for _, ub := range unlocked {
		e.applyRewards(ub)
		badges = append(badges, ub.Badge)
	}
	return badges
}

// nextLockedBadge returns the lowest-requirement locked badge for the
// criterion with requirement <= value. Called with the lock held.
func (e *BadgeEngine) nextLockedBadge(criterion string, value int) (Badge, bool) {
	var best Badge
	found := false
	for _, b := range e.catalog {
		if b.Criterion != criterion || b.Requirement > value {
			continue
		}
		if _, already := e.state.Unlocked[b.ID]; already {
			continue
		}
		if !found || b.Requirement < best.Requirement {
			best = b
			found = true
		}
	}
	return best, found
}

// UnlockBadge unlocks the badge by id and performs its reward side effects.
// A no-op returning true when already unlocked (no duplicate rewards), and
// false for ids not in the catalog.
func (e *BadgeEngine) UnlockBadge(id string) bool {
	b, ok := e.badgeByID(id)
	if !ok {
		return false
	}

	e.mu.Lock()
	if _, already := e.state.Unlocked[id]; already {
		e.mu.Unlock()
		return true
	}
	now := time.Now()
	e.state.Unlocked[id] = now
	e.dirty = true
	e.mu.Unlock()

	e.applyRewards(UnlockedBadge{Badge: b, UnlockedAt: now})
	return true
}

// applyRewards performs the unlock side effects in fixed order: XP grant,
// coin grant, chat message, then free background cosmetic if mapped.
// Called without the lock held.
func (e *BadgeEngine) applyRewards(ub UnlockedBadge) {
	if e.xp != nil && ub.XPReward > 0 {
		e.xp.AddXP(float64(ub.XPReward), XPBadgeUnlock, "Badge unlocked: "+ub.Name)
	}
	if e.coins != nil && ub.CoinReward > 0 {
		e.coins.AddCoins(float64(ub.CoinReward), CoinBadgeUnlock, "Badge unlocked: "+ub.Name)
	}
	if e.chat != nil {
		e.chat.Post("system", fmt.Sprintf("%s Badge unlocked: %s! %s", ub.Icon, ub.Name, ub.Description))
	}
	if bg, ok := badgeBackgrounds[ub.ID]; ok && e.avatar != nil {
		e.avatar.GrantCosmetic(bg)
	}
	if e.onUnlock != nil {
		e.onUnlock(ub)
	}
}

// AddLearnedConcepts merges concept ids into the deduplicated learned set
// and evaluates concept badges against the new count, which it returns.
func (e *BadgeEngine) AddLearnedConcepts(ids []string) int {
	e.mu.Lock()
	for _, id := range ids {
		if id != "" {
			e.state.LearnedConcepts[id] = true
		}
	}
	count := len(e.state.LearnedConcepts)
	e.state.Progress[CriterionConceptsLearned] = count
	e.dirty = true
	e.mu.Unlock()

	e.CheckAndUnlockBadges(CriterionConceptsLearned, count)
	return count
}

// LearnedConceptCount returns the size of the deduplicated concept set.
func (e *BadgeEngine) LearnedConceptCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.state.LearnedConcepts)
}

// IsUnlocked reports whether the badge has been unlocked.
func (e *BadgeEngine) IsUnlocked(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.state.Unlocked[id]
	return ok
}

// Unlocked returns the unlocked badges, newest first.
func (e *BadgeEngine) Unlocked() []UnlockedBadge {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]UnlockedBadge, 0, len(e.state.Unlocked))
	for _, b := range e.catalog {
		if ts, ok := e.state.Unlocked[b.ID]; ok {
			out = append(out, UnlockedBadge{Badge: b, UnlockedAt: ts})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnlockedAt.After(out[j].UnlockedAt) })
	return out
}

// Progress returns the current counter value for a criterion.
func (e *BadgeEngine) Progress(criterion string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Progress[criterion]
}

func (e *BadgeEngine) badgeByID(id string) (Badge, bool) {
	for _, b := range e.catalog {
		if b.ID == id {
			return b, true
		}
	}
	return Badge{}, false
}

func (e *BadgeEngine) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = BadgeState{Version: stateVersion}
	e.initMaps()
	e.dirty = true
}

func (e *BadgeEngine) flush(persist *Store) error {
	e.mu.Lock()
	if !e.dirty {
		e.mu.Unlock()
		return nil
	}
	snap := BadgeState{
		Version:         e.state.Version,
		Unlocked:        make(map[string]time.Time, len(e.state.Unlocked)),
		Progress:        make(map[string]int, len(e.state.Progress)),
		LearnedConcepts: make(map[string]bool, len(e.state.LearnedConcepts)),
	}
	for k, v := range e.state.Unlocked {
		snap.Unlocked[k] = v
	}
	for k, v := range e.state.Progress {
		snap.Progress[k] = v
	}
	for k, v := range e.state.LearnedConcepts {
		snap.LearnedConcepts[k] = v
	}
	e.dirty = false
	e.mu.Unlock()
	return persist.Save(badgeStateName, &snap)
}
