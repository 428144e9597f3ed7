package progression

import (
	"sort"
	"sync"
	"time"
)

// CosmeticType identifies which appearance slot a cosmetic occupies.
type CosmeticType string

const (
	CosmeticOutfit     CosmeticType = "outfit"
	CosmeticAccessory  CosmeticType = "accessory"
	CosmeticBackground CosmeticType = "background"
)

// CostType selects the purchase currency. XP purchases are a lifetime-total
// gate, never a debit; coin purchases are a real conditional spend.
type CostType string

const (
	CostXP    CostType = "xp"
	CostCoins CostType = "coins"
)

const (
	avatarStateName = "avatar"
	maxAccessories  = 3
)

// Cosmetic is a static catalog item. Purchaseable=false items are grant-only,
// awarded by badge or streak milestones and never buyable.
type Cosmetic struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Type         CosmeticType `json:"type"`
	Cost         int          `json:"cost"`
	CostType     CostType     `json:"costType"`
	Rarity       Rarity       `json:"rarity"`
	Purchaseable bool         `json:"purchaseable"`
}

// UnlockedCosmetic is a catalog item plus its unlock timestamp.
type UnlockedCosmetic struct {
	Cosmetic
	UnlockedAt time.Time `json:"unlockedAt"`
}

// Appearance is the mutable "currently worn" projection. Equip state never
// references a cosmetic the player has not unlocked.
type Appearance struct {
	BaseCharacter string   `json:"baseCharacter"`
	SkinTone      string   `json:"skinTone"`
	Expression    string   `json:"expression"`
	Outfit        string   `json:"outfit,omitempty"`
	Accessories   []string `json:"accessories"` // oldest equipped first, max 3
	Background    string   `json:"background,omitempty"`
}

// AvatarState is the persistent avatar document.
type AvatarState struct {
	Version    int                  `json:"version"`
	Appearance Appearance           `json:"appearance"`
	Unlocked   map[string]time.Time `json:"unlocked"`
}

// buildCosmeticList returns the authoritative cosmetic catalog. Grant-only
// backgrounds must cover every id referenced by badgeBackgrounds and
// streakMilestoneBackgrounds.
func buildCosmeticList() []Cosmetic {
	return []Cosmetic{

		// ── Outfits (lifetime-XP gated) ────────────────────────────────────

		{ID: "outfit-scholar", Name: "Scholar Robe", Type: CosmeticOutfit, Cost: 500, CostType: CostXP, Rarity: RarityCommon, Purchaseable: true},
		{ID: "outfit-explorer", Name: "Explorer Jacket", Type: CosmeticOutfit, Cost: 1200, CostType: CostXP, Rarity: RarityRare, Purchaseable: true},
		{ID: "outfit-wizard", Name: "Wizard Cloak", Type: CosmeticOutfit, Cost: 4000, CostType: CostXP, Rarity: RarityEpic, Purchaseable: true},

		// ── Accessories ────────────────────────────────────────────────────

		{ID: "acc-glasses", Name: "Smart Glasses", Type: CosmeticAccessory, Cost: 20, CostType: CostCoins, Rarity: RarityCommon, Purchaseable: true},
		{ID: "acc-halo", Name: "Golden Halo", Type: CosmeticAccessory, Cost: 50, CostType: CostCoins, Rarity: RarityRare, Purchaseable: true},
		{ID: "acc-crown", Name: "Crown of Wisdom", Type: CosmeticAccessory, Cost: 120, CostType: CostCoins, Rarity: RarityEpic, Purchaseable: true},
		{ID: "acc-scarf", Name: "Lucky Scarf", Type: CosmeticAccessory, Cost: 200, CostType: CostXP, Rarity: RarityCommon, Purchaseable: true},

		// ── Backgrounds (purchaseable) ─────────────────────────────────────

		{ID: "bg-sunset", Name: "Sunset Beach", Type: CosmeticBackground, Cost: 80, CostType: CostCoins, Rarity: RarityRare, Purchaseable: true},
		{ID: "bg-mountains", Name: "Mountain Peak", Type: CosmeticBackground, Cost: 1000, CostType: CostXP, Rarity: RarityRare, Purchaseable: true},

		// ── Backgrounds (grant-only) ───────────────────────────────────────
		// Streak milestones: 7, 30, 100 days.

		{ID: "bg-sunrise", Name: "First Light", Type: CosmeticBackground, Rarity: RarityRare, Purchaseable: false},
		{ID: "bg-ember", Name: "Ember Glow", Type: CosmeticBackground, Rarity: RarityEpic, Purchaseable: false},
		{ID: "bg-cosmos", Name: "Deep Cosmos", Type: CosmeticBackground, Rarity: RarityLegendary, Purchaseable: false},

		// Badge rewards.

		{ID: "bg-library", Name: "Grand Library", Type: CosmeticBackground, Rarity: RarityEpic, Purchaseable: false},
		{ID: "bg-aurora", Name: "Aurora Sky", Type: CosmeticBackground, Rarity: RarityLegendary, Purchaseable: false},
		{ID: "bg-constellation", Name: "Constellation Map", Type: CosmeticBackground, Rarity: RarityLegendary, Purchaseable: false},
		{ID: "bg-laurels", Name: "Laurel Hall", Type: CosmeticBackground, Rarity: RarityEpic, Purchaseable: false},
	}
}

// AvatarStore holds cosmetic unlock and equip state. Purchases spend from
// the coin ledger or gate on lifetime XP; grants bypass cost entirely.
type AvatarStore struct {
	mu      sync.Mutex
	state   AvatarState
	dirty   bool
	catalog map[string]Cosmetic

	xp    XPReader
	coins CoinSpender
}

func newAvatarStore() *AvatarStore {
	s := &AvatarStore{catalog: make(map[string]Cosmetic)}
	for _, c := range buildCosmeticList() {
		s.catalog[c.ID] = c
	}
	s.state = AvatarState{
		Version: stateVersion,
		Appearance: Appearance{
			BaseCharacter: "owl",
			SkinTone:      "default",
			Expression:    "happy",
			Accessories:   []string{},
		},
		Unlocked: make(map[string]time.Time),
	}
	return s
}

func loadAvatarStore(persist *Store) (*AvatarStore, error) {
	s := newAvatarStore()
	if _, err := persist.Load(avatarStateName, &s.state); err != nil {
		return nil, err
	}
	s.state.Version = stateVersion
	if s.state.Unlocked == nil {
		s.state.Unlocked = make(map[string]time.Time)
	}
	if s.state.Appearance.Accessories == nil {
		s.state.Appearance.Accessories = []string{}
	}
	return s, nil
}

// Catalog returns the cosmetic catalog sorted by id.
func (s *AvatarStore) Catalog() []Cosmetic {
	out := make([]Cosmetic, 0, len(s.catalog))
	for _, c := range s.catalog {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UnlockCosmetic purchases the cosmetic. It returns false for unknown ids,
// grant-only items, an insufficient lifetime-XP gate, or a failed coin
// spend; true when already unlocked (idempotent) or newly purchased.
// XP purchases never decrement the XP total.
func (s *AvatarStore) UnlockCosmetic(id string) bool {
	c, ok := s.catalog[id]
	if !ok {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, have := s.state.Unlocked[id]; have {
		return true
	}
	if !c.Purchaseable {
		return false
	}

	switch c.CostType {
	case CostXP:
		if s.xp == nil || s.xp.TotalXP() < c.Cost {
			return false
		}
	case CostCoins:
		if s.coins == nil || !s.coins.SubtractCoins(float64(c.Cost), "Cosmetic: "+c.Name) {
			return false
		}
	default:
		return false
	}

	s.state.Unlocked[id] = time.Now()
	s.dirty = true
	return true
}

// GrantCosmetic unlocks the cosmetic for free, bypassing any cost. Used by
// badge and streak milestones. Idempotent: true when already unlocked.
func (s *AvatarStore) GrantCosmetic(id string) bool {
	if _, ok := s.catalog[id]; !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, have := s.state.Unlocked[id]; have {
		return true
	}
	s.state.Unlocked[id] = time.Now()
	s.dirty = true
	return true
}

// EquipCosmetic places an unlocked cosmetic into its appearance slot.
// Accessories cap at three worn simultaneously; equipping a fourth evicts
// the oldest. Returns false for unknown or still-locked ids.
func (s *AvatarStore) EquipCosmetic(id string) bool {
	c, ok := s.catalog[id]
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, have := s.state.Unlocked[id]; !have {
		return false
	}

	switch c.Type {
	case CosmeticOutfit:
		s.state.Appearance.Outfit = id
	case CosmeticBackground:
		s.state.Appearance.Background = id
	case CosmeticAccessory:
		for _, worn := range s.state.Appearance.Accessories {
			if worn == id {
				return true
			}
		}
		s.state.Appearance.Accessories = append(s.state.Appearance.Accessories, id)
		if len(s.state.Appearance.Accessories) > maxAccessories {
			s.state.Appearance.Accessories = s.state.Appearance.Accessories[1:]
		}
	}
	s.dirty = true
	return true
}

// RemoveCosmetic takes the cosmetic off whichever slot it occupies.
// Returns false when it was not equipped.
func (s *AvatarStore) RemoveCosmetic(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state.Appearance.Outfit == id:
		s.state.Appearance.Outfit = ""
	case s.state.Appearance.Background == id:
		s.state.Appearance.Background = ""
	default:
		for i, worn := range s.state.Appearance.Accessories {
			if worn == id {
				s.state.Appearance.Accessories = append(
					s.state.Appearance.Accessories[:i],
					s.state.Appearance.Accessories[i+1:]...)
				s.dirty = true
				return true
			}
		}
		return false
	}
	s.dirty = true
	return true
}

// Customize updates the base appearance fields. Empty arguments leave the
// corresponding field unchanged.
func (s *AvatarStore) Customize(baseCharacter, skinTone, expression string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if baseCharacter != "" {
		s.state.Appearance.BaseCharacter = baseCharacter
	}
	if skinTone != "" {
		s.state.Appearance.SkinTone = skinTone
	}
	if expression != "" {
		s.state.Appearance.Expression = expression
	}
	s.dirty = true
}

// IsUnlocked reports whether the cosmetic has been unlocked.
func (s *AvatarStore) IsUnlocked(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.state.Unlocked[id]
	return ok
}

// Unlocked returns the unlocked cosmetics, newest first.
func (s *AvatarStore) Unlocked() []UnlockedCosmetic {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]UnlockedCosmetic, 0, len(s.state.Unlocked))
	for id, ts := range s.state.Unlocked {
		if c, ok := s.catalog[id]; ok {
			out = append(out, UnlockedCosmetic{Cosmetic: c, UnlockedAt: ts})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnlockedAt.After(out[j].UnlockedAt) })
	return out
}

// Appearance returns a copy of the currently worn projection.
func (s *AvatarStore) Appearance() Appearance {
	s.mu.Lock()
	defer s.mu.Unlock()
	app := s.state.Appearance
	app.Accessories = make([]string, len(s.state.Appearance.Accessories))
	copy(app.Accessories, s.state.Appearance.Accessories)
	return app
}

func (s *AvatarStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = AvatarState{
		Version: stateVersion,
		Appearance: Appearance{
			BaseCharacter: "owl",
			SkinTone:      "default",
			Expression:    "happy",
			Accessories:   []string{},
		},
		Unlocked: make(map[string]time.Time),
	}
	s.dirty = true
}

func (s *AvatarStore) flush(persist *Store) error {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	snap := s.state
	snap.Unlocked = make(map[string]time.Time, len(s.state.Unlocked))
	for k, v := range s.state.Unlocked {
		snap.Unlocked[k] = v
	}
	snap.Appearance.Accessories = make([]string, len(s.state.Appearance.Accessories))
	copy(snap.Appearance.Accessories, s.state.Appearance.Accessories)
	s.dirty = false
	s.mu.Unlock()
	return persist.Save(avatarStateName, &snap)
}
