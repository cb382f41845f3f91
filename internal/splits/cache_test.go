package splits

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tipsplit-backend/pkg/enums"
	"github.com/angelmondragon/tipsplit-backend/pkg/redis/redistest"
)

func TestCacheRoundTripsSnapshot(t *testing.T) {
	ctx := context.Background()
	fake := redistest.New()
	cache, err := NewCache(fake, 30*time.Minute, 0)
	require.NoError(t, err)

	split := pendingSplit("p1", 1000, 100, strPtr("alice@tips.example"))
	require.NoError(t, cache.Set(ctx, split))
	assert.Equal(t, 30*time.Minute, fake.TTL("ts:split:p1"))

	raw, ok := fake.Raw("ts:split:p1")
	require.True(t, ok)
	assert.Contains(t, raw, `"status":"pending"`)

	got, err := cache.Get(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, split.PaymentHash, got.PaymentHash)
	assert.Equal(t, split.TipAmount, got.TipAmount)
	assert.Equal(t, "alice@tips.example", got.Recipient())
	assert.True(t, split.CreatedAt.Equal(got.CreatedAt))

	miss, err := cache.Get(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, miss)
}

func TestCacheFillNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	cache, err := NewCache(redistest.New(), 0, 0)
	require.NoError(t, err)

	claimed := pendingSplit("p1", 500, 0, nil)
	claimed.Status = enums.SplitStatusClaimed
	require.NoError(t, cache.Set(ctx, claimed))

	stale := pendingSplit("p1", 500, 0, nil)
	filled, err := cache.Fill(ctx, stale)
	require.NoError(t, err)
	assert.False(t, filled)

	got, err := cache.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, enums.SplitStatusClaimed, got.Status)
}

func TestCacheSurfacesOutages(t *testing.T) {
	ctx := context.Background()
	fake := redistest.New()
	cache, err := NewCache(fake, 0, 0)
	require.NoError(t, err)
	fake.SetDown(true)

	_, err = cache.Get(ctx, "p1")
	require.ErrorIs(t, err, redistest.ErrUnavailable)
	require.ErrorIs(t, cache.Set(ctx, pendingSplit("p1", 1, 0, nil)), redistest.ErrUnavailable)
	require.ErrorIs(t, cache.Delete(ctx, "p1"), redistest.ErrUnavailable)
	require.NoError(t, cache.Delete(ctx))
}

func TestNewCacheRequiresClient(t *testing.T) {
	_, err := NewCache(nil, 0, 0)
	require.Error(t, err)
}
