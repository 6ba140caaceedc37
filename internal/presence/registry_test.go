package presence_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/ruangobrol/backend/internal/cache"
	"github.com/ruangobrol/backend/internal/presence"
	"github.com/stretchr/testify/assert"
)

func newTestRegistry(t *testing.T) (*presence.Registry, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { c.Close() })
	return presence.NewRegistry(c), mr
}

func TestOnlineOfflineFlag(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	assert.False(t, reg.IsOnline(ctx, 7))

	reg.MarkOnline(ctx, 7)
	assert.True(t, reg.IsOnline(ctx, 7))
	assert.False(t, reg.IsOnline(ctx, 8))

	reg.MarkOffline(ctx, 7)
	assert.False(t, reg.IsOnline(ctx, 7))
}

func TestFlagExpiresWithoutTouch(t *testing.T) {
	reg, mr := newTestRegistry(t)
	ctx := context.Background()

	reg.MarkOnline(ctx, 7)
	mr.FastForward(cache.OnlineTTL + time.Second)
	assert.False(t, reg.IsOnline(ctx, 7), "a lost disconnect must age out")
}

func TestTouchRefreshesTTL(t *testing.T) {
	reg, mr := newTestRegistry(t)
	ctx := context.Background()

	reg.MarkOnline(ctx, 7)
	mr.FastForward(cache.OnlineTTL - 10*time.Second)
	reg.Touch(ctx, 7)
	mr.FastForward(cache.OnlineTTL - 10*time.Second)
	assert.True(t, reg.IsOnline(ctx, 7))
}

func TestCacheFailureReadsAsOffline(t *testing.T) {
	reg, mr := newTestRegistry(t)
	ctx := context.Background()

	reg.MarkOnline(ctx, 7)
	mr.SetError("boom")
	assert.False(t, reg.IsOnline(ctx, 7))
}
