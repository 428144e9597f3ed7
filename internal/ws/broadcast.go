package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/learnsmart/backend/internal/progression"
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, 64),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) close() {
	close(c.send)
}

// SnapshotSource provides the cross-store progression summary sent to newly
// connected clients and on the periodic refresh tick.
type SnapshotSource interface {
	Snapshot() progression.Snapshot
}

// Broadcaster fans progression events out to connected WebSocket clients.
// It also implements progression.ChatSink, delivering celebratory messages
// as chat frames.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*client]bool
	source  SnapshotSource
}

func NewBroadcaster(snapshotInterval time.Duration) *Broadcaster {
	b := &Broadcaster{
		clients: make(map[*client]bool),
	}

	if snapshotInterval > 0 {
		go b.snapshotLoop(snapshotInterval)
	}

	return b
}

// SetSource attaches the snapshot source. Must be called before clients
// connect; the engine is constructed after the broadcaster because the
// broadcaster is the engine's chat sink.
func (b *Broadcaster) SetSource(source SnapshotSource) {
	b.mu.Lock()
	b.source = source
	b.mu.Unlock()
}

func (b *Broadcaster) snapshotSource() SnapshotSource {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.source
}

func (b *Broadcaster) AddClient(conn *websocket.Conn) *client {
	c := newClient(conn)

	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	if source := b.snapshotSource(); source != nil {
		msg := WSMessage{
			Type:    MsgSnapshot,
			Payload: SnapshotPayload{Progress: source.Snapshot()},
		}
		data, _ := json.Marshal(msg)
		select {
		case c.send <- data:
		default:
			// Client too slow, drop the snapshot
		}
	}

	return c
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

// Post implements progression.ChatSink.
func (b *Broadcaster) Post(role, content string) {
	b.broadcast(WSMessage{Type: MsgChat, Payload: ChatPayload{Role: role, Content: content}})
}

// BroadcastXPGain sends a coalesced gain batch to all clients.
func (b *Broadcaster) BroadcastXPGain(g progression.XPGain) {
	b.broadcast(WSMessage{Type: MsgXPGain, Payload: XPGainPayload{
		Amount:    g.Amount,
		Entries:   g.Entries,
		Timestamp: g.Timestamp,
	}})
}

// BroadcastRankUp announces a tier transition.
func (b *Broadcaster) BroadcastRankUp(e progression.RankUpEntry) {
	rank := progression.RankForXP(e.TotalXP)
	b.broadcast(WSMessage{Type: MsgRankUp, Payload: RankUpPayload{
		FromRankID: e.FromRankID,
		ToRankID:   e.ToRankID,
		Rank:       rank,
		TotalXP:    e.TotalXP,
		Timestamp:  e.Timestamp,
	}})
}

// BroadcastBadge announces a badge unlock.
func (b *Broadcaster) BroadcastBadge(ub progression.UnlockedBadge) {
	b.broadcast(WSMessage{Type: MsgBadgeUnlocked, Payload: BadgeUnlockedPayload{
		ID:          ub.ID,
		Name:        ub.Name,
		Icon:        ub.Icon,
		Description: ub.Description,
		Rarity:      string(ub.Rarity),
		XPReward:    ub.XPReward,
		CoinReward:  ub.CoinReward,
		UnlockedAt:  ub.UnlockedAt,
	}})
}

// BroadcastStreak sends the updated streak state.
func (b *Broadcaster) BroadcastStreak(st progression.StreakStatus) {
	b.broadcast(WSMessage{Type: MsgStreak, Payload: StreakPayload{Streak: st}})
}

func (b *Broadcaster) snapshotLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		source := b.snapshotSource()
		if source == nil || b.ClientCount() == 0 {
			continue
		}
		b.broadcast(WSMessage{
			Type:    MsgSnapshot,
			Payload: SnapshotPayload{Progress: source.Snapshot()},
		})
	}
}

func (b *Broadcaster) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("broadcast marshal error: %v", err)
		return
	}

	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			// Client can't keep up, disconnect it
			log.Printf("ws client too slow, disconnecting")
			b.RemoveClient(c)
		}
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
