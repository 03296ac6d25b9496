package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roniherschmann/linkpulse/internal/store"
)

var sample = []store.Link{
	{Slug: "abc", LongURL: "https://example.com", Clicks: 3, CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(time.Minute)
	m.now = func() time.Time { return now }

	_, ok := m.Get(ctx, 20, 0)
	assert.False(t, ok)

	m.Set(ctx, 20, 0, sample)
	got, ok := m.Get(ctx, 20, 0)
	require.True(t, ok)
	assert.Equal(t, sample, got)

	_, ok = m.Get(ctx, 20, 20)
	assert.False(t, ok, "pages are cached independently")

	now = now.Add(time.Minute)
	_, ok = m.Get(ctx, 20, 0)
	assert.False(t, ok, "entries expire at the TTL")

	m.Set(ctx, 20, 0, sample)
	m.Invalidate(ctx)
	_, ok = m.Get(ctx, 20, 0)
	assert.False(t, ok)
}

func TestMemoryDisabled(t *testing.T) {
	m := NewMemory(0)
	m.Set(context.Background(), 20, 0, sample)
	_, ok := m.Get(context.Background(), 20, 0)
	assert.False(t, ok)
}

func TestRedis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	c := NewRedis(client, time.Minute)

	_, ok := c.Get(ctx, 20, 0)
	assert.False(t, ok)

	c.Set(ctx, 20, 0, sample)
	c.Set(ctx, 20, 20, sample)
	got, ok := c.Get(ctx, 20, 0)
	require.True(t, ok)
	assert.Equal(t, sample, got)
	assert.True(t, mr.Exists(redisPrefix+"recent:20:0"))

	mr.FastForward(2 * time.Minute)
	_, ok = c.Get(ctx, 20, 0)
	assert.False(t, ok)

	c.Set(ctx, 20, 0, sample)
	require.NoError(t, client.Set(ctx, "unrelated", "keep", 0).Err())
	c.Invalidate(ctx)
	_, ok = c.Get(ctx, 20, 0)
	assert.False(t, ok)
	assert.True(t, mr.Exists("unrelated"))
}

func TestRedisDownIsAMiss(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	c := NewRedis(client, time.Minute)

	mr.Close()
	c.Set(ctx, 20, 0, sample)
	_, ok := c.Get(ctx, 20, 0)
	assert.False(t, ok)
	c.Invalidate(ctx)
}

func TestDialRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := DialRedis(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	client.Close()

	addr := mr.Addr()
	mr.Close()
	_, err = DialRedis(context.Background(), addr, "", 0)
	assert.Error(t, err)
}
