package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ruangobrol/backend/internal/storage/sqlite"
	"github.com/ruangobrol/backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_pragma=foreign_keys(ON)"
	db, err := sqlite.New(dsn)
	require.NoError(t, err)
	require.NoError(t, db.Migrate("../../sql/schema.sql"))
	t.Cleanup(func() { db.Db.Close() })
	return store.New(db.Db)
}

func seedUsers(t *testing.T, st *store.Store, names ...string) []int64 {
	t.Helper()
	ctx := context.Background()
	ids := make([]int64, len(names))
	for i, n := range names {
		id, err := st.CreateUser(ctx, n, "x")
		require.NoError(t, err)
		ids[i] = id
	}
	return ids
}

func TestCreateDirectFindOrCreate(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	ids := seedUsers(t, st, "andi", "budi")

	convID, created, err := st.CreateDirect(ctx, ids[0], ids[1])
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := st.CreateDirect(ctx, ids[1], ids[0])
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, convID, again)
}

func TestCreateDirectRejectsSelfPair(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	ids := seedUsers(t, st, "andi", "budi")

	// an existing chat with someone else must never be returned as a
	// self-conversation
	existing, _, err := st.CreateDirect(ctx, ids[0], ids[1])
	require.NoError(t, err)

	id, created, err := st.CreateDirect(ctx, ids[0], ids[0])
	assert.ErrorIs(t, err, store.ErrSelfConversation)
	assert.False(t, created)
	assert.NotEqual(t, existing, id)
	assert.Zero(t, id)
}

func TestCreateNearbyRejectsSelfPair(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	ids := seedUsers(t, st, "andi")

	_, err := st.CreateNearby(ctx, ids[0], ids[0], time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, store.ErrSelfConversation)
}

func TestCreateGroupCreatorIsAdmin(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	ids := seedUsers(t, st, "andi", "budi", "citra")

	convID, err := st.CreateGroup(ctx, ids[0], "kelas", "", ids[1:])
	require.NoError(t, err)

	mem, err := st.Membership(ctx, convID, ids[0])
	require.NoError(t, err)
	assert.Equal(t, store.RoleAdmin, mem.Role)

	mem, err = st.Membership(ctx, convID, ids[1])
	require.NoError(t, err)
	assert.Equal(t, store.RoleMember, mem.Role)
}

func TestCreateGroupDedupesMemberIDs(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	ids := seedUsers(t, st, "andi", "budi", "citra")

	convID, err := st.CreateGroup(ctx, ids[0], "kelas", "",
		[]int64{ids[1], ids[1], ids[2], ids[0], ids[2]})
	require.NoError(t, err)

	members, err := st.ActiveMembers(ctx, convID)
	require.NoError(t, err)
	assert.Len(t, members, 3)
}

func TestAddMembersRequiresAdmin(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	ids := seedUsers(t, st, "andi", "budi", "citra")

	convID, err := st.CreateGroup(ctx, ids[0], "kelas", "", []int64{ids[1]})
	require.NoError(t, err)

	err = st.AddMembers(ctx, convID, ids[1], []int64{ids[2]})
	assert.ErrorIs(t, err, store.ErrNotAMember)

	require.NoError(t, st.AddMembers(ctx, convID, ids[0], []int64{ids[2]}))
	ok, err := st.IsActiveMember(ctx, convID, ids[2])
	require.NoError(t, err)
	assert.True(t, ok)

	// re-adding an existing member is a no-op
	require.NoError(t, st.AddMembers(ctx, convID, ids[0], []int64{ids[2]}))
}

func TestCreateMessageSelfReceipt(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	ids := seedUsers(t, st, "andi", "budi")
	convID, _, err := st.CreateDirect(ctx, ids[0], ids[1])
	require.NoError(t, err)

	msg, err := st.CreateMessage(ctx, convID, ids[0], "halo", store.TypeText)
	require.NoError(t, err)
	assert.Equal(t, "andi", msg.SenderName)
	require.Len(t, msg.Reads, 1)
	assert.Equal(t, ids[0], msg.Reads[0].UserID)

	// the sender never counts their own message as unread
	n, err := st.CountUnread(ctx, convID, ids[0])
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = st.CountUnread(ctx, convID, ids[1])
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCreateMessageMonotonicTimestamps(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	ids := seedUsers(t, st, "andi", "budi")
	convID, _, err := st.CreateDirect(ctx, ids[0], ids[1])
	require.NoError(t, err)

	var prev time.Time
	for i := 0; i < 20; i++ {
		msg, err := st.CreateMessage(ctx, convID, ids[0], "msg", store.TypeText)
		require.NoError(t, err)
		if i > 0 {
			assert.True(t, msg.CreatedAt.After(prev),
				"timestamps must be strictly increasing within a conversation")
		}
		prev = msg.CreatedAt
	}

	conv, err := st.Conversation(ctx, convID)
	require.NoError(t, err)
	assert.Equal(t, prev.UnixMilli(), conv.UpdatedAt.UnixMilli())
}

func TestCreateMessageMembershipChecks(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	ids := seedUsers(t, st, "andi", "budi", "citra")
	convID, _, err := st.CreateDirect(ctx, ids[0], ids[1])
	require.NoError(t, err)

	_, err = st.CreateMessage(ctx, convID, ids[2], "hi", store.TypeText)
	assert.ErrorIs(t, err, store.ErrNotAMember)

	_, err = st.ToggleArchive(ctx, convID, ids[0])
	require.NoError(t, err)
	_, err = st.CreateMessage(ctx, convID, ids[0], "hi", store.TypeText)
	assert.ErrorIs(t, err, store.ErrNotAMember)
}

func TestMarkAllReadIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	ids := seedUsers(t, st, "andi", "budi")
	convID, _, err := st.CreateDirect(ctx, ids[0], ids[1])
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := st.CreateMessage(ctx, convID, ids[0], "msg", store.TypeText)
		require.NoError(t, err)
	}

	n, err := st.MarkAllRead(ctx, convID, ids[1], time.Now())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = st.MarkAllRead(ctx, convID, ids[1], time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	unread, err := st.CountUnread(ctx, convID, ids[1])
	require.NoError(t, err)
	assert.Equal(t, 0, unread)

	mem, err := st.Membership(ctx, convID, ids[1])
	require.NoError(t, err)
	assert.Equal(t, 0, mem.UnreadCount)
	assert.NotNil(t, mem.LastReadAt)
}

func TestClearHistoryScopesVisibilityAndUnread(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	ids := seedUsers(t, st, "andi", "budi")
	convID, _, err := st.CreateDirect(ctx, ids[0], ids[1])
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := st.CreateMessage(ctx, convID, ids[0], "old", store.TypeText)
		require.NoError(t, err)
	}

	require.NoError(t, st.ClearHistory(ctx, convID, ids[1], time.Now()))

	n, err := st.CountUnread(ctx, convID, ids[1])
	require.NoError(t, err)
	assert.Equal(t, 0, n, "messages before the cursor stop counting")

	msgs, err := st.Messages(ctx, convID, ids[1], 50, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	// the other member still sees everything
	msgs, err = st.Messages(ctx, convID, ids[0], 50, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	// messages after the cursor count again
	_, err = st.CreateMessage(ctx, convID, ids[0], "new", store.TypeText)
	require.NoError(t, err)
	n, err = st.CountUnread(ctx, convID, ids[1])
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	err = st.ClearHistory(ctx, convID, int64(999), time.Now())
	assert.ErrorIs(t, err, store.ErrNotAMember)
}

func TestToggleArchive(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	ids := seedUsers(t, st, "andi", "budi")
	convID, _, err := st.CreateDirect(ctx, ids[0], ids[1])
	require.NoError(t, err)

	archived, err := st.ToggleArchive(ctx, convID, ids[0])
	require.NoError(t, err)
	assert.True(t, archived)

	mem, err := st.Membership(ctx, convID, ids[0])
	require.NoError(t, err)
	assert.True(t, mem.IsArchived)
	assert.NotNil(t, mem.ArchivedAt)

	archived, err = st.ToggleArchive(ctx, convID, ids[0])
	require.NoError(t, err)
	assert.False(t, archived)

	mem, err = st.Membership(ctx, convID, ids[0])
	require.NoError(t, err)
	assert.Nil(t, mem.ArchivedAt)

	_, err = st.ToggleArchive(ctx, convID, int64(999))
	assert.ErrorIs(t, err, store.ErrNotAMember)
}

func TestMessagesOrderAndReceipts(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	ids := seedUsers(t, st, "andi", "budi")
	convID, _, err := st.CreateDirect(ctx, ids[0], ids[1])
	require.NoError(t, err)

	first, err := st.CreateMessage(ctx, convID, ids[0], "first", store.TypeText)
	require.NoError(t, err)
	_, err = st.CreateMessage(ctx, convID, ids[1], "second", store.TypeText)
	require.NoError(t, err)

	require.NoError(t, st.MarkRead(ctx, first.ID, ids[1], time.Now()))
	require.NoError(t, st.MarkRead(ctx, first.ID, ids[1], time.Now()))

	msgs, err := st.Messages(ctx, convID, ids[0], 50, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "second", msgs[0].Content)
	assert.Equal(t, "first", msgs[1].Content)
	assert.Len(t, msgs[1].Reads, 2, "self receipt plus one reader, duplicates ignored")

	_, err = st.Messages(ctx, convID, int64(999), 50, 0)
	assert.ErrorIs(t, err, store.ErrNotAMember)
}

func TestInbox(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	ids := seedUsers(t, st, "andi", "budi", "citra")

	direct, _, err := st.CreateDirect(ctx, ids[0], ids[1])
	require.NoError(t, err)
	group, err := st.CreateGroup(ctx, ids[0], "kelas", "", []int64{ids[1], ids[2]})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	_, err = st.CreateMessage(ctx, direct, ids[1], "halo andi", store.TypeText)
	require.NoError(t, err)

	rows, err := st.Inbox(ctx, ids[0], "", false)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, direct, rows[0].Conversation.ID, "newest activity first")
	require.NotNil(t, rows[0].LastMessage)
	assert.Equal(t, "halo andi", rows[0].LastMessage.Content)
	assert.Equal(t, "budi", rows[0].OtherName)

	rows, err = st.Inbox(ctx, ids[0], store.KindGroup, false)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, group, rows[0].Conversation.ID)

	_, err = st.ToggleArchive(ctx, direct, ids[0])
	require.NoError(t, err)
	rows, err = st.Inbox(ctx, ids[0], "", false)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	rows, err = st.Inbox(ctx, ids[0], "", true)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestSweepExpiredNearby(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	ids := seedUsers(t, st, "andi", "budi")

	expired, err := st.CreateNearby(ctx, ids[0], ids[1], time.Now().Add(-time.Hour))
	require.NoError(t, err)
	_, err = st.CreateMessage(ctx, expired, ids[0], "hi", store.TypeText)
	require.NoError(t, err)
	alive, err := st.CreateNearby(ctx, ids[0], ids[1], time.Now().Add(time.Hour))
	require.NoError(t, err)

	n, err := st.SweepExpiredNearby(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = st.Conversation(ctx, expired)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.Conversation(ctx, alive)
	require.NoError(t, err)

	// members and messages go with the conversation
	_, err = st.Membership(ctx, expired, ids[0])
	assert.ErrorIs(t, err, store.ErrNotFound)

	n, err = st.SweepExpiredNearby(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPushTokens(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	ids := seedUsers(t, st, "andi", "budi", "citra")

	require.NoError(t, st.SetPushToken(ctx, ids[0], "tok-a"))
	require.NoError(t, st.SetPushToken(ctx, ids[1], ""))

	tokens, err := st.PushTokens(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-a"}, tokens)

	assert.ErrorIs(t, st.SetPushToken(ctx, int64(999), "t"), store.ErrNotFound)
}
