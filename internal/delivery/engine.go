package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ruangobrol/backend/internal/presence"
	"github.com/ruangobrol/backend/internal/store"
	"github.com/ruangobrol/backend/internal/unread"
)

// Transport is the realtime side of fan-out. The hub implements it.
type Transport interface {
	EmitToUser(userID int64, event string, payload any) bool
	EmitToRoom(conversationID int64, event string, payload any)
	RoomOccupants(conversationID int64) map[int64]bool
}

// Pusher dispatches external push notifications. Implementations must be
// best-effort: log failures, never return them into the send path.
type Pusher interface {
	MessagePush(ctx context.Context, conv *store.Conversation, msg *store.Message, recipientIDs []int64)
}

// Engine orchestrates a message send: persist, derive per-member read
// state from room presence, update counters, build per-member inbox
// views, fan out over the realtime channel and push.
type Engine struct {
	store     *store.Store
	counter   *unread.Counter
	transport Transport
	presence  *presence.Registry
	push      Pusher
	logger    *slog.Logger
}

func NewEngine(st *store.Store, counter *unread.Counter, transport Transport, reg *presence.Registry, push Pusher) *Engine {
	return &Engine{
		store:     st,
		counter:   counter,
		transport: transport,
		presence:  reg,
		push:      push,
		logger:    slog.With("component", "delivery"),
	}
}

// MessagePayload is the wire shape of a message, broadcast to the room
// and embedded in history responses.
type MessagePayload struct {
	ID             int64               `json:"id"`
	ConversationID int64               `json:"conversation_id"`
	SenderID       int64               `json:"sender_id"`
	SenderName     string              `json:"sender_name"`
	Content        string              `json:"content"`
	Type           string              `json:"type"`
	Time           string              `json:"time"`
	CreatedAt      time.Time           `json:"created_at"`
	Reads          []store.ReadReceipt `json:"reads"`
}

func NewMessagePayload(m *store.Message, loc *time.Location) MessagePayload {
	return MessagePayload{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderName:     m.SenderName,
		Content:        m.Content,
		Type:           m.Type,
		Time:           m.CreatedAt.In(loc).Format("15:04"),
		CreatedAt:      m.CreatedAt,
		Reads:          m.Reads,
	}
}

// SendMessage runs the full delivery pipeline. The persist step is the
// only strongly consistent one; if it fails nothing has been emitted.
// Everything after it degrades per-member and never rolls the message
// back.
func (e *Engine) SendMessage(ctx context.Context, senderID, convID int64, content, msgType string, loc *time.Location) (*store.Message, error) {
	msg, err := e.store.CreateMessage(ctx, convID, senderID, content, msgType)
	if err != nil {
		return nil, err
	}

	conv, err := e.store.Conversation(ctx, convID)
	if err != nil {
		return msg, fmt.Errorf("load conversation after send: %w", err)
	}
	members, err := e.store.ActiveMembers(ctx, convID)
	if err != nil {
		return msg, fmt.Errorf("enumerate members after send: %w", err)
	}

	occupants := e.transport.RoomOccupants(convID)
	var recipients []int64

	for _, m := range members {
		if m.UserID == msg.SenderID {
			continue
		}
		recipients = append(recipients, m.UserID)

		if occupants[m.UserID] {
			// actively viewing: instant read, counter stays down
			if err := e.counter.Reset(ctx, m.UserID, convID, msg.CreatedAt); err != nil {
				e.logger.Error("instant read", "user_id", m.UserID, "conversation_id", convID, "err", err)
				continue
			}
			msg.Reads = append(msg.Reads, store.ReadReceipt{
				MessageID: msg.ID, UserID: m.UserID, ReadAt: msg.CreatedAt,
			})
		} else {
			if _, err := e.counter.Increment(ctx, m.UserID, convID); err != nil {
				e.logger.Error("increment unread", "user_id", m.UserID, "conversation_id", convID, "err", err)
			}
		}
	}

	for _, m := range members {
		item, err := e.buildInboxItem(ctx, m, conv, msg, loc)
		if err != nil {
			e.logger.Error("build inbox item", "user_id", m.UserID, "err", err)
			continue
		}
		e.transport.EmitToUser(m.UserID, "inbox", item)
	}

	e.transport.EmitToRoom(convID, "message", NewMessagePayload(msg, loc))

	if len(recipients) > 0 {
		go e.push.MessagePush(context.WithoutCancel(ctx), conv, msg, recipients)
	}

	return msg, nil
}

func (e *Engine) buildInboxItem(ctx context.Context, m store.Membership, conv *store.Conversation, msg *store.Message, loc *time.Location) (InboxItem, error) {
	n, err := e.counter.Get(ctx, m.UserID, conv.ID)
	if err != nil {
		return InboxItem{}, err
	}

	item := InboxItem{
		ConversationID: conv.ID,
		Kind:           conv.Kind,
		Name:           conv.Name,
		Image:          conv.Icon,
		Unread:         n,
		LastMessage:    NewLastMessage(msg, loc),
	}
	if conv.Kind != store.KindGroup {
		// direct chats are named after the other party
		other, err := e.otherMember(ctx, conv.ID, m.UserID)
		if err != nil {
			return InboxItem{}, err
		}
		if other != nil {
			item.Name = other.Username
			item.Image = other.Image
			item.OtherUserID = other.ID
			item.OtherOnline = e.presence.IsOnline(ctx, other.ID)
		}
	}
	return item, nil
}

func (e *Engine) otherMember(ctx context.Context, convID, userID int64) (*store.User, error) {
	members, err := e.store.ActiveMembers(ctx, convID)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if m.UserID != userID {
			return e.store.UserByID(ctx, m.UserID)
		}
	}
	return nil, nil
}

// Inbox builds the list view for a member: conversations of the given
// kind (empty = any), archived or not, newest activity first.
func (e *Engine) Inbox(ctx context.Context, userID int64, kind string, archived bool, loc *time.Location) ([]InboxItem, error) {
	rows, err := e.store.Inbox(ctx, userID, kind, archived)
	if err != nil {
		return nil, err
	}

	items := make([]InboxItem, 0, len(rows))
	for _, r := range rows {
		n, err := e.counter.Get(ctx, userID, r.Conversation.ID)
		if err != nil {
			e.logger.Error("unread for inbox", "conversation_id", r.Conversation.ID, "err", err)
		}
		item := InboxItem{
			ConversationID: r.Conversation.ID,
			Kind:           r.Conversation.Kind,
			Name:           r.Conversation.Name,
			Image:          r.Conversation.Icon,
			Unread:         n,
			LastMessage:    NewLastMessage(r.LastMessage, loc),
		}
		if r.Conversation.Kind != store.KindGroup && r.OtherUserID != 0 {
			item.Name = r.OtherName
			item.Image = r.OtherImage
			item.OtherUserID = r.OtherUserID
			item.OtherOnline = e.presence.IsOnline(ctx, r.OtherUserID)
		}
		items = append(items, item)
	}
	return items, nil
}

// History returns the member's visible messages grouped by local day,
// lazily marking everything fetched as read (receipts + counter reset).
func (e *Engine) History(ctx context.Context, userID, convID int64, limit, offset int, loc *time.Location) ([]DayGroup, error) {
	msgs, err := e.store.Messages(ctx, convID, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	if err := e.counter.Reset(ctx, userID, convID, time.Now()); err != nil {
		e.logger.Error("lazy read on history fetch", "user_id", userID, "conversation_id", convID, "err", err)
	}
	return GroupByDay(msgs, loc), nil
}
