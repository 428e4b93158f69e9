package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock {
	return &clock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func TestMemorySlidingExpiration(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	m := NewMemory()
	m.now = clk.now

	require.NoError(t, m.Set(ctx, "k", []byte("v"), Options{Sliding: 10 * time.Second}))

	// каждое чтение продлевает срок
	for i := 0; i < 5; i++ {
		clk.advance(8 * time.Second)
		got, err := m.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "v", string(got))
	}

	clk.advance(11 * time.Second)
	_, err := m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryAbsoluteWinsOverSliding(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	m := NewMemory()
	m.now = clk.now

	require.NoError(t, m.Set(ctx, "k", []byte("v"), Options{Sliding: 10 * time.Second, Absolute: 25 * time.Second}))
	clk.advance(9 * time.Second)
	_, err := m.Get(ctx, "k")
	require.NoError(t, err)
	clk.advance(9 * time.Second)
	_, err = m.Get(ctx, "k")
	require.NoError(t, err)

	clk.advance(8 * time.Second) // 26s от записи
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryNoExpiryAndDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Set(ctx, "a", []byte("1"), Options{}))
	require.NoError(t, m.Set(ctx, "b", []byte("2"), Options{}))
	require.NoError(t, m.Delete(ctx, "a"))

	_, err := m.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrMiss)
	got, err := m.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "2", string(got))
	assert.Len(t, m.items, 1)
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, SetJSON(ctx, m, "perms", []string{"Users_Read", "Users_Update"}, Options{}))
	got, err := GetJSON[[]string](ctx, m, "perms")
	require.NoError(t, err)
	assert.Equal(t, []string{"Users_Read", "Users_Update"}, got)

	_, err = GetJSON[[]string](ctx, m, "missing")
	assert.ErrorIs(t, err, ErrMiss)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *Redis, *clock) {
	t.Helper()
	mr := miniredis.RunT(t)
	clk := newClock()
	r := NewRedis(NewRedisClient(mr.Addr(), "", 0), "test:")
	r.now = clk.now
	return mr, r, clk
}

func TestRedisRoundTripAndPrefix(t *testing.T) {
	ctx := context.Background()
	mr, r, _ := newTestRedis(t)
	require.NoError(t, r.Ping(ctx))

	require.NoError(t, r.Set(ctx, "k", []byte("hello"), Options{}))
	assert.True(t, mr.Exists("test:k"))

	got, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	require.NoError(t, r.Delete(ctx, "k"))
	_, err = r.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisSlidingExtendsTTL(t *testing.T) {
	ctx := context.Background()
	mr, r, clk := newTestRedis(t)

	require.NoError(t, r.Set(ctx, "k", []byte("v"), Options{Sliding: 10 * time.Second}))
	assert.Equal(t, 10*time.Second, mr.TTL("test:k"))

	mr.FastForward(8 * time.Second)
	clk.advance(8 * time.Second)
	_, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, mr.TTL("test:k"))

	mr.FastForward(11 * time.Second)
	_, err = r.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisAbsoluteCapsSliding(t *testing.T) {
	ctx := context.Background()
	mr, r, clk := newTestRedis(t)

	require.NoError(t, r.Set(ctx, "k", []byte("v"), Options{Sliding: 10 * time.Second, Absolute: 15 * time.Second}))
	mr.FastForward(9 * time.Second)
	clk.advance(9 * time.Second)
	_, err := r.Get(ctx, "k")
	require.NoError(t, err)
	// до absolute осталось 6s, sliding не продлевает дальше
	assert.Equal(t, 6*time.Second, mr.TTL("test:k"))
}
