package push_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ruangobrol/backend/internal/push"
	"github.com/ruangobrol/backend/internal/storage/sqlite"
	"github.com/ruangobrol/backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentBatch struct {
	tokens []string
	n      push.Notification
}

type captureGateway struct {
	mu   sync.Mutex
	sent []sentBatch
}

func (g *captureGateway) Send(_ context.Context, tokens []string, n push.Notification) ([]push.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, sentBatch{tokens, n})
	results := make([]push.Result, len(tokens))
	for i, t := range tokens {
		results[i] = push.Result{Token: t}
	}
	return results, nil
}

func (g *captureGateway) batches() []sentBatch {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]sentBatch(nil), g.sent...)
}

type pushFixture struct {
	store   *store.Store
	gateway *captureGateway
	disp    *push.Dispatcher
	andi    int64
	budi    int64
}

func newPushFixture(t *testing.T) *pushFixture {
	t.Helper()
	ctx := context.Background()

	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_pragma=foreign_keys(ON)"
	db, err := sqlite.New(dsn)
	require.NoError(t, err)
	require.NoError(t, db.Migrate("../../sql/schema.sql"))
	t.Cleanup(func() { db.Db.Close() })
	st := store.New(db.Db)

	f := &pushFixture{store: st, gateway: &captureGateway{}}
	f.disp = push.NewDispatcher(st, f.gateway)

	f.andi, err = st.CreateUser(ctx, "andi", "x")
	require.NoError(t, err)
	f.budi, err = st.CreateUser(ctx, "budi", "x")
	require.NoError(t, err)
	require.NoError(t, st.SetPushToken(ctx, f.budi, "tok-budi"))
	return f
}

func TestDirectMessagePush(t *testing.T) {
	f := newPushFixture(t)
	conv := &store.Conversation{ID: 1, Kind: store.KindPrivate}
	msg := &store.Message{ID: 10, SenderID: f.andi, SenderName: "andi", Content: "halo", Type: store.TypeText, CreatedAt: time.Now()}

	f.disp.MessagePush(context.Background(), conv, msg, []int64{f.budi})

	batches := f.gateway.batches()
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"tok-budi"}, batches[0].tokens)
	assert.Equal(t, "andi", batches[0].n.Title)
	assert.Equal(t, "halo", batches[0].n.Body)
	assert.Equal(t, "10", batches[0].n.Data["message_id"])
}

func TestGroupMessagePushPrefixesSender(t *testing.T) {
	f := newPushFixture(t)
	conv := &store.Conversation{ID: 2, Kind: store.KindGroup, Name: "kelas"}
	msg := &store.Message{ID: 11, SenderID: f.andi, SenderName: "andi", Content: "halo semua", Type: store.TypeText}

	f.disp.MessagePush(context.Background(), conv, msg, []int64{f.budi})

	batches := f.gateway.batches()
	require.Len(t, batches, 1)
	assert.Equal(t, "kelas", batches[0].n.Title)
	assert.Equal(t, "andi: halo semua", batches[0].n.Body)
}

func TestImageMessageUsesPlaceholder(t *testing.T) {
	f := newPushFixture(t)
	conv := &store.Conversation{ID: 3, Kind: store.KindPrivate}
	msg := &store.Message{ID: 12, SenderID: f.andi, SenderName: "andi", Content: "/uploads/a.jpg", Type: store.TypeImage}

	f.disp.MessagePush(context.Background(), conv, msg, []int64{f.budi})

	batches := f.gateway.batches()
	require.Len(t, batches, 1)
	assert.Equal(t, push.ImagePlaceholder, batches[0].n.Body,
		"hosted URLs never leak into notifications")
}

func TestNoTokensNoDispatch(t *testing.T) {
	f := newPushFixture(t)
	conv := &store.Conversation{ID: 4, Kind: store.KindPrivate}
	msg := &store.Message{ID: 13, SenderID: f.budi, SenderName: "budi", Content: "hi", Type: store.TypeText}

	// andi never registered a token
	f.disp.MessagePush(context.Background(), conv, msg, []int64{f.andi})
	assert.Empty(t, f.gateway.batches())
}
