package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisKeyCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisKeyCache(rdb, "lms:catalog:", time.Hour), mr
}

func TestRedisKeyCache_MissThenHit(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "book|go|1|10")
	require.NoError(t, err)
	assert.False(t, ok, "empty cache must miss")

	id := uuid.New()
	require.NoError(t, c.Set(ctx, "book|go|1|10", id))

	got, ok, err := c.Get(ctx, "book|go|1|10")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, id, got)

	assert.True(t, mr.Exists("lms:catalog:book|go|1|10"), "key is stored under the prefix")
	assert.Equal(t, time.Hour, mr.TTL("lms:catalog:book|go|1|10"))
}

func TestRedisKeyCache_CorruptEntry(t *testing.T) {
	c, mr := newTestCache(t)
	require.NoError(t, mr.Set("lms:catalog:dept|cs", "not-a-uuid"))

	_, ok, err := c.Get(context.Background(), "dept|cs")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestRedisKeyCache_ServerDown(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()

	_, ok, err := c.Get(context.Background(), "dept|cs")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestNoop(t *testing.T) {
	var c KeyCache = Noop{}
	require.NoError(t, c.Set(context.Background(), "k", uuid.New()))
	_, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
