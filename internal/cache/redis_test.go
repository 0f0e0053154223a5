package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pgstay/internal/domain"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client, time.Minute), mr
}

func TestRedisCache_SetGet(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	p := &domain.Property{
		ID:        "prop-1",
		Name:      "Sunrise PG",
		OwnerName: "Ravi",
		Rooms:     []domain.Room{{ID: "r1", AvailableBeds: 3}},
	}
	require.NoError(t, c.Set(ctx, p))
	assert.True(t, mr.Exists("property:prop-1"))

	ttl := mr.TTL("property:prop-1")
	assert.GreaterOrEqual(t, ttl, time.Minute)

	got, err := c.Get(ctx, "prop-1")
	require.NoError(t, err)
	assert.Equal(t, "Sunrise PG", got.Name)
	assert.Empty(t, got.Rooms)
}

func TestRedisCache_Miss(t *testing.T) {
	c, _ := setupTestRedis(t)
	_, err := c.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_InvalidJSON(t *testing.T) {
	c, mr := setupTestRedis(t)
	require.NoError(t, mr.Set("property:bad", "{not json"))

	_, err := c.Get(context.Background(), "bad")
	assert.ErrorContains(t, err, "unmarshal property failed")
}

func TestRedisCache_Delete(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, &domain.Property{ID: "p"}))
	require.NoError(t, c.Delete(ctx, "p"))
	assert.False(t, mr.Exists("property:p"))
}

type countingSource struct {
	calls int
	err   error
}

func (s *countingSource) GetByID(_ context.Context, id string) (*domain.Property, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Property{ID: id, Name: "Green Nest"}, nil
}

func TestReadThrough_CachesAfterFirstLookup(t *testing.T) {
	c, _ := setupTestRedis(t)
	src := &countingSource{}
	rt := NewReadThrough(src, c)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p, err := rt.GetByID(ctx, "prop-9")
		require.NoError(t, err)
		assert.Equal(t, "Green Nest", p.Name)
	}
	assert.Equal(t, 1, src.calls)
}

func TestReadThrough_NopCacheAlwaysHitsSource(t *testing.T) {
	src := &countingSource{}
	rt := NewReadThrough(src, nil)

	_, _ = rt.GetByID(context.Background(), "a")
	_, _ = rt.GetByID(context.Background(), "a")
	assert.Equal(t, 2, src.calls)
}

func TestReadThrough_SourceErrorNotCached(t *testing.T) {
	c, mr := setupTestRedis(t)
	src := &countingSource{err: domain.ErrPropertyNotFound}
	rt := NewReadThrough(src, c)

	_, err := rt.GetByID(context.Background(), "gone")
	assert.True(t, errors.Is(err, domain.ErrPropertyNotFound))
	assert.False(t, mr.Exists("property:gone"))
}

func TestReadThrough_RedisDownFallsBack(t *testing.T) {
	c, mr := setupTestRedis(t)
	mr.Close()
	src := &countingSource{}
	rt := NewReadThrough(src, c)
	rt.loggerf = func(string, ...interface{}) {}

	p, err := rt.GetByID(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "x", p.ID)
}
