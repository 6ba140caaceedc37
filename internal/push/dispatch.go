package push

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/ruangobrol/backend/internal/store"
)

// ImagePlaceholder is what an image message renders as in a
// notification; raw content (the hosted URL) never leaves the server
// this way.
const ImagePlaceholder = "📷 Foto"

const dispatchTimeout = 5 * time.Second

// Dispatcher resolves recipient device tokens and sends one notification
// per distinct recipient token. Strictly best-effort: every failure is
// logged and swallowed, and the whole call is time-bounded so it can
// never hold up a send.
type Dispatcher struct {
	store   *store.Store
	gateway Gateway
	timeout time.Duration
	logger  *slog.Logger
}

func NewDispatcher(st *store.Store, gw Gateway) *Dispatcher {
	return &Dispatcher{
		store:   st,
		gateway: gw,
		timeout: dispatchTimeout,
		logger:  slog.With("component", "push"),
	}
}

func (d *Dispatcher) MessagePush(ctx context.Context, conv *store.Conversation, msg *store.Message, recipientIDs []int64) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	tokens, err := d.store.PushTokens(ctx, recipientIDs)
	if err != nil {
		d.logger.Error("load push tokens", "conversation_id", conv.ID, "err", err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	body := msg.Content
	if msg.Type == store.TypeImage {
		body = ImagePlaceholder
	}
	title := msg.SenderName
	if conv.Kind == store.KindGroup {
		title = conv.Name
		body = msg.SenderName + ": " + body
	}

	results, err := d.gateway.Send(ctx, tokens, Notification{
		Title: title,
		Body:  body,
		Data: map[string]string{
			"conversation_id": strconv.FormatInt(conv.ID, 10),
			"message_id":      strconv.FormatInt(msg.ID, 10),
			"type":            msg.Type,
		},
	})
	if err != nil {
		d.logger.Error("push dispatch", "conversation_id", conv.ID, "message_id", msg.ID, "err", err)
		return
	}
	for _, r := range results {
		if r.Err != nil {
			d.logger.Warn("push token failed", "message_id", msg.ID, "err", r.Err)
		}
	}
}
