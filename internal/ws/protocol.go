package ws

import (
	"time"

	"github.com/learnsmart/backend/internal/progression"
)

type MessageType string

const (
	MsgSnapshot      MessageType = "snapshot"
	MsgXPGain        MessageType = "xp_gain"
	MsgRankUp        MessageType = "rank_up"
	MsgBadgeUnlocked MessageType = "badge_unlocked"
	MsgStreak        MessageType = "streak"
	MsgChat          MessageType = "chat"
)

type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

type SnapshotPayload struct {
	Progress progression.Snapshot `json:"progress"`
}

type XPGainPayload struct {
	Amount    int                   `json:"amount"`
	Entries   []progression.XPEntry `json:"entries"`
	Timestamp time.Time             `json:"timestamp"`
}

type RankUpPayload struct {
	FromRankID string           `json:"fromRankId"`
	ToRankID   string           `json:"toRankId"`
	Rank       progression.Rank `json:"rank"`
	TotalXP    int              `json:"totalXP"`
	Timestamp  time.Time        `json:"timestamp"`
}

type BadgeUnlockedPayload struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Icon        string    `json:"icon"`
	Description string    `json:"description"`
	Rarity      string    `json:"rarity"`
	XPReward    int       `json:"xpReward"`
	CoinReward  int       `json:"smartCoinReward"`
	UnlockedAt  time.Time `json:"unlockedAt"`
}

type StreakPayload struct {
	Streak progression.StreakStatus `json:"streak"`
}

type ChatPayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
