package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/ruangobrol/backend/internal/presence"
	"github.com/ruangobrol/backend/internal/store"
)

// Hub owns the realtime side of fan-out: one connection binding per user
// (last-writer-wins) and per-conversation rooms for members actively
// viewing a chat. Emits never block: a slow client gets dropped.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]*Client          // userID -> current connection
	rooms   map[int64]map[*Client]bool // conversationID -> occupants

	store    *store.Store
	registry *presence.Registry
	logger   *slog.Logger
}

func NewHub(st *store.Store, registry *presence.Registry) *Hub {
	return &Hub{
		clients:  make(map[int64]*Client),
		rooms:    make(map[int64]map[*Client]bool),
		store:    st,
		registry: registry,
		logger:   slog.With("component", "hub"),
	}
}

// Register binds the connection as the user's current one. A previous
// binding is superseded: it is detached from every room and closed, and
// is logically offline for fan-out from this point even if the socket is
// still draining.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	prev := h.clients[c.UserID]
	h.clients[c.UserID] = c
	if prev != nil {
		h.detachLocked(prev)
	}
	h.mu.Unlock()

	h.registry.MarkOnline(context.Background(), c.UserID)
	if prev == nil {
		h.broadcastPresence(c.UserID, "online")
	}
}

// Unregister removes the connection. A superseded connection only gets
// detached; the user stays online on the newer binding.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	current := h.clients[c.UserID] == c
	if current {
		delete(h.clients, c.UserID)
	}
	h.detachLocked(c)
	h.mu.Unlock()

	if !current {
		return
	}
	h.registry.MarkOffline(context.Background(), c.UserID)
	h.broadcastPresence(c.UserID, "offline")
}

// detachLocked removes the client from all rooms and closes its send
// channel. Caller holds h.mu.
func (h *Hub) detachLocked(c *Client) {
	for cid, occupants := range h.rooms {
		if occupants[c] {
			delete(occupants, c)
			if len(occupants) == 0 {
				delete(h.rooms, cid)
			}
		}
	}
	c.closeSend()
}

// JoinRoom puts the connection into a conversation's room after
// re-validating membership. Not a member (or archived): silent no-op.
// Other occupants are told the user is now actively viewing.
func (h *Hub) JoinRoom(c *Client, convID int64) {
	ok, err := h.store.IsActiveMember(context.Background(), convID, c.UserID)
	if err != nil {
		h.logger.Error("join room membership check", "conversation_id", convID, "user_id", c.UserID, "err", err)
		return
	}
	if !ok {
		return
	}

	h.mu.Lock()
	if h.rooms[convID] == nil {
		h.rooms[convID] = make(map[*Client]bool)
	}
	h.rooms[convID][c] = true
	h.mu.Unlock()

	h.emitToRoomExcept(convID, c.UserID, "room_presence", RoomPresence{
		ConversationID: convID, UserID: c.UserID, Status: "joined",
	})
}

func (h *Hub) LeaveRoom(c *Client, convID int64) {
	h.mu.Lock()
	occupants := h.rooms[convID]
	if occupants == nil || !occupants[c] {
		h.mu.Unlock()
		return
	}
	delete(occupants, c)
	if len(occupants) == 0 {
		delete(h.rooms, convID)
	}
	h.mu.Unlock()

	h.emitToRoomExcept(convID, c.UserID, "room_presence", RoomPresence{
		ConversationID: convID, UserID: c.UserID, Status: "left",
	})
}

// RoomOccupants returns the users currently joined to the room.
func (h *Hub) RoomOccupants(convID int64) map[int64]bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[int64]bool, len(h.rooms[convID]))
	for c := range h.rooms[convID] {
		out[c.UserID] = true
	}
	return out
}

// EmitToUser delivers an event to the user's current connection.
// Offline users are a no-op (push notifications are their only path).
func (h *Hub) EmitToUser(userID int64, event string, payload any) bool {
	data, err := json.Marshal(Event{Type: event, Data: payload})
	if err != nil {
		h.logger.Error("marshal event", "event", event, "err", err)
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	c := h.clients[userID]
	if c == nil {
		return false
	}
	if !c.trySend(data) {
		h.logger.Warn("dropping slow client", "user_id", userID)
		delete(h.clients, userID)
		h.detachLocked(c)
		return false
	}
	return true
}

// EmitToRoom delivers to every connection joined to the conversation's
// room, independent of archive or history-clear state.
func (h *Hub) EmitToRoom(convID int64, event string, payload any) {
	h.emitToRoomExcept(convID, 0, event, payload)
}

func (h *Hub) emitToRoomExcept(convID, exceptUserID int64, event string, payload any) {
	data, err := json.Marshal(Event{Type: event, Data: payload})
	if err != nil {
		h.logger.Error("marshal event", "event", event, "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[convID] {
		if exceptUserID != 0 && c.UserID == exceptUserID {
			continue
		}
		if !c.trySend(data) {
			h.logger.Warn("dropping slow client", "user_id", c.UserID)
			if h.clients[c.UserID] == c {
				delete(h.clients, c.UserID)
			}
			h.detachLocked(c)
		}
	}
}

// broadcastPresence tells everyone sharing a conversation with the user
// about the online/offline transition.
func (h *Hub) broadcastPresence(userID int64, status string) {
	ids, err := h.store.CoMemberIDs(context.Background(), userID)
	if err != nil {
		h.logger.Error("presence co-members", "user_id", userID, "err", err)
		return
	}
	for _, id := range ids {
		h.EmitToUser(id, "presence", UserPresence{UserID: userID, Status: status})
	}
}

// relayTyping forwards a typing signal to the other room occupants.
func (h *Hub) relayTyping(c *Client, convID int64, event string) {
	h.emitToRoomExcept(convID, c.UserID, event, Typing{ConversationID: convID, UserID: c.UserID})
}
