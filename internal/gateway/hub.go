package gateway

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/you/kick-relay/internal/badges"
	"github.com/you/kick-relay/internal/core"
	"github.com/you/kick-relay/internal/discovery"
)

// ChannelManager is what the hub needs from the connection manager.
type ChannelManager interface {
	Acquire(ctx context.Context, channel string) error
	Release(channel string)
	Hint(ctx context.Context, channel string, ids discovery.Identifiers)
}

// Recorder observes every broadcast message, for history endpoints.
type Recorder interface {
	Append(msg core.ChatMessage)
}

// Hub routes server events to the clients watching each channel room and
// handles the client-side protocol (join, leave, badge data). It is the
// manager's Broadcaster.
type Hub struct {
	Manager ChannelManager
	Badges  *badges.Resolver
	History Recorder

	mu    sync.Mutex
	rooms map[string]map[*Client]bool
}

func NewHub(mgr ChannelManager, badgeResolver *badges.Resolver, history Recorder) *Hub {
	return &Hub{
		Manager: mgr,
		Badges:  badgeResolver,
		History: history,
		rooms:   map[string]map[*Client]bool{},
	}
}

func roomKey(channel string) string {
	return strings.ToLower(strings.TrimSpace(channel))
}

func (h *Hub) join(c *Client, channel string) {
	key := roomKey(channel)
	h.mu.Lock()
	room, ok := h.rooms[key]
	if !ok {
		room = map[*Client]bool{}
		h.rooms[key] = room
	}
	room[c] = true
	h.mu.Unlock()
}

func (h *Hub) leave(c *Client, channel string) {
	key := roomKey(channel)
	h.mu.Lock()
	if room, ok := h.rooms[key]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, key)
		}
	}
	h.mu.Unlock()
}

// broadcast sends a marshalled event to every client in a room. Delivery
// is fire and forget: a client whose send buffer is full misses the
// message rather than holding up the rest of the room.
func (h *Hub) broadcast(channel, event string, data any) {
	frame, err := marshalEvent(event, data)
	if err != nil {
		log.Printf("gateway: marshal %s: %v", event, err)
		return
	}

	key := roomKey(channel)
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.rooms[key]))
	for c := range h.rooms[key] {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.trySend(frame)
	}
}

func (h *Hub) ChatMessage(channel string, msg core.ChatMessage) {
	if h.History != nil {
		h.History.Append(msg)
	}
	h.broadcast(channel, eventChatMessage, msg)
}

func (h *Hub) ChannelConnected(channel string, info core.ChannelInfo) {
	h.broadcast(channel, eventChannelConnected, info)
}

func (h *Hub) ConnectionError(channel, reason string) {
	h.broadcast(channel, eventConnectionError, reason)
}

func (h *Hub) EmotesLoaded(channel string, emotes []core.CatalogEmote) {
	h.broadcast(channel, eventEmotesLoaded, emotes)
}

// RoomSize reports how many clients watch a channel.
func (h *Hub) RoomSize(channel string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[roomKey(channel)])
}
