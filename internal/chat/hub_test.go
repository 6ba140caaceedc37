package chat_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/ruangobrol/backend/internal/cache"
	"github.com/ruangobrol/backend/internal/chat"
	"github.com/ruangobrol/backend/internal/presence"
	"github.com/ruangobrol/backend/internal/storage/sqlite"
	"github.com/ruangobrol/backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hubFixture struct {
	hub      *chat.Hub
	store    *store.Store
	registry *presence.Registry
	convID   int64
	andi     int64
	budi     int64
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()
	ctx := context.Background()

	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_pragma=foreign_keys(ON)"
	db, err := sqlite.New(dsn)
	require.NoError(t, err)
	require.NoError(t, db.Migrate("../../sql/schema.sql"))
	t.Cleanup(func() { db.Db.Close() })
	st := store.New(db.Db)

	mr := miniredis.RunT(t)
	c := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { c.Close() })
	reg := presence.NewRegistry(c)

	f := &hubFixture{store: st, registry: reg, hub: chat.NewHub(st, reg)}
	f.andi, err = st.CreateUser(ctx, "andi", "x")
	require.NoError(t, err)
	f.budi, err = st.CreateUser(ctx, "budi", "x")
	require.NoError(t, err)
	f.convID, _, err = st.CreateDirect(ctx, f.andi, f.budi)
	require.NoError(t, err)
	return f
}

func (f *hubFixture) client(userID int64) *chat.Client {
	return &chat.Client{Hub: f.hub, Send: make(chan []byte, 16), UserID: userID}
}

func drain(t *testing.T, c *chat.Client) []chat.Event {
	t.Helper()
	var events []chat.Event
	for {
		select {
		case data, ok := <-c.Send:
			if !ok {
				return events
			}
			var ev chat.Event
			require.NoError(t, json.Unmarshal(data, &ev))
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestRegisterMarksOnlineAndNotifiesCoMembers(t *testing.T) {
	f := newHubFixture(t)
	ctx := context.Background()

	budi := f.client(f.budi)
	f.hub.Register(budi)
	drain(t, budi)

	andi := f.client(f.andi)
	f.hub.Register(andi)
	assert.True(t, f.registry.IsOnline(ctx, f.andi))

	events := drain(t, budi)
	require.Len(t, events, 1)
	assert.Equal(t, "presence", events[0].Type)

	f.hub.Unregister(andi)
	assert.False(t, f.registry.IsOnline(ctx, f.andi))
	events = drain(t, budi)
	require.Len(t, events, 1)
	assert.Equal(t, "presence", events[0].Type)
}

func TestSecondConnectionSupersedesFirst(t *testing.T) {
	f := newHubFixture(t)
	ctx := context.Background()

	first := f.client(f.andi)
	f.hub.Register(first)
	second := f.client(f.andi)
	f.hub.Register(second)

	// the old binding is detached and its channel closed
	for range first.Send {
	}

	ok := f.hub.EmitToUser(f.andi, "ping", nil)
	assert.True(t, ok)
	events := drain(t, second)
	require.Len(t, events, 1)
	assert.Equal(t, "ping", events[0].Type)

	// a stale unregister must not take the user offline
	f.hub.Unregister(first)
	assert.True(t, f.registry.IsOnline(ctx, f.andi))

	f.hub.Unregister(second)
	assert.False(t, f.registry.IsOnline(ctx, f.andi))
}

func TestJoinRoomRequiresActiveMembership(t *testing.T) {
	f := newHubFixture(t)
	ctx := context.Background()

	outsider, err := f.store.CreateUser(ctx, "citra", "x")
	require.NoError(t, err)
	c := f.client(outsider)
	f.hub.Register(c)

	f.hub.JoinRoom(c, f.convID)
	assert.Empty(t, f.hub.RoomOccupants(f.convID), "non-members never enter the room")

	// archived membership is treated the same
	_, err = f.store.ToggleArchive(ctx, f.convID, f.budi)
	require.NoError(t, err)
	budi := f.client(f.budi)
	f.hub.Register(budi)
	f.hub.JoinRoom(budi, f.convID)
	assert.Empty(t, f.hub.RoomOccupants(f.convID))
}

func TestRoomJoinLeaveAndBroadcast(t *testing.T) {
	f := newHubFixture(t)

	andi := f.client(f.andi)
	budi := f.client(f.budi)
	f.hub.Register(andi)
	f.hub.Register(budi)
	f.hub.JoinRoom(andi, f.convID)
	drain(t, andi)
	drain(t, budi)

	f.hub.JoinRoom(budi, f.convID)
	occ := f.hub.RoomOccupants(f.convID)
	assert.True(t, occ[f.andi])
	assert.True(t, occ[f.budi])

	// the join is announced to the other occupant only
	events := drain(t, andi)
	require.Len(t, events, 1)
	assert.Equal(t, "room_presence", events[0].Type)
	assert.Empty(t, drain(t, budi))

	f.hub.EmitToRoom(f.convID, "message", map[string]string{"content": "halo"})
	require.Len(t, drain(t, andi), 1)
	require.Len(t, drain(t, budi), 1)

	f.hub.LeaveRoom(budi, f.convID)
	occ = f.hub.RoomOccupants(f.convID)
	assert.False(t, occ[f.budi])
	events = drain(t, andi)
	require.Len(t, events, 1)
	assert.Equal(t, "room_presence", events[0].Type)
}

func TestEmitToUserOfflineIsNoop(t *testing.T) {
	f := newHubFixture(t)
	assert.False(t, f.hub.EmitToUser(f.andi, "ping", nil))
}

func TestSlowClientIsDropped(t *testing.T) {
	f := newHubFixture(t)

	slow := &chat.Client{Hub: f.hub, Send: make(chan []byte), UserID: f.andi}
	f.hub.Register(slow)

	// nothing reads slow.Send, so the first emit fails and drops the binding
	assert.False(t, f.hub.EmitToUser(f.andi, "ping", nil))
	assert.False(t, f.hub.EmitToUser(f.andi, "ping", nil))
}

func TestUnregisterLeavesRooms(t *testing.T) {
	f := newHubFixture(t)

	andi := f.client(f.andi)
	f.hub.Register(andi)
	f.hub.JoinRoom(andi, f.convID)
	require.True(t, f.hub.RoomOccupants(f.convID)[f.andi])

	f.hub.Unregister(andi)
	assert.Empty(t, f.hub.RoomOccupants(f.convID))
}
