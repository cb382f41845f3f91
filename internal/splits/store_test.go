package splits

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tipsplit-backend/pkg/db/dbtest"
	"github.com/angelmondragon/tipsplit-backend/pkg/db/models"
	"github.com/angelmondragon/tipsplit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tipsplit-backend/pkg/errors"
)

func TestStorePutWritesDurableThenCache(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t)

	require.NoError(t, f.store.Put(ctx, pendingSplit("p1", 1000, 100, strPtr("alice"))))

	durable, err := f.repo.FindByPaymentHash(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, durable)
	_, cached := f.redis.Raw("ts:split:p1")
	assert.True(t, cached)

	err = f.store.Put(ctx, pendingSplit("p1", 1000, 100, strPtr("alice")))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestStorePutSurvivesCacheOutage(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t)
	f.redis.SetDown(true)

	require.NoError(t, f.store.Put(ctx, pendingSplit("p1", 500, 0, nil)))

	got, err := f.store.Get(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(500), got.BaseAmount)
}

func TestStoreGetReadsThroughOnMiss(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t)
	require.NoError(t, f.repo.Create(ctx, pendingSplit("p1", 500, 0, nil)))

	_, cached := f.redis.Raw("ts:split:p1")
	require.False(t, cached)

	got, err := f.store.Get(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, got)

	_, cached = f.redis.Raw("ts:split:p1")
	assert.True(t, cached, "miss should repopulate the cache")

	missing, err := f.store.Get(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStoreUpdateStatusRefreshesCache(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t)
	require.NoError(t, f.store.Put(ctx, pendingSplit("p1", 500, 0, nil)))

	now := time.Now().UTC()
	ok, err := f.store.UpdateStatus(ctx, "p1", enums.SplitStatusPending, enums.SplitStatusClaimed, &now)
	require.NoError(t, err)
	assert.True(t, ok)

	cached, err := f.cache.Get(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, enums.SplitStatusClaimed, cached.Status)
	assert.NotNil(t, cached.ProcessedAt)

	ok, err = f.store.UpdateStatus(ctx, "p1", enums.SplitStatusPending, enums.SplitStatusClaimed, &now)
	require.NoError(t, err)
	assert.False(t, ok, "stale expected status must not match")

	_, err = f.store.UpdateStatus(ctx, "p1", enums.SplitStatusCompleted, enums.SplitStatusPending, nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestStoreCacheOutageDoesNotResurrectStaleSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t)
	require.NoError(t, f.store.Put(ctx, pendingSplit("p1", 500, 0, nil)))

	f.redis.SetDown(true)
	got, err := f.store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, enums.SplitStatusPending, got.Status)

	now := time.Now().UTC()
	ok, err := f.store.UpdateStatus(ctx, "p1", enums.SplitStatusPending, enums.SplitStatusClaimed, &now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, f.store.backlog.size())

	got, err = f.store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, enums.SplitStatusClaimed, got.Status, "outage reads come from the durable store")

	raw, ok := f.redis.Raw("ts:split:p1")
	require.True(t, ok)
	assert.Contains(t, raw, `"status":"pending"`, "the stale snapshot is still in redis")

	f.redis.SetDown(false)
	got, err = f.store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, enums.SplitStatusClaimed, got.Status)
	assert.Zero(t, f.store.backlog.size())

	cached, err := f.cache.Get(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, enums.SplitStatusClaimed, cached.Status)
}

func TestStoreRemoveEvictsCacheOnly(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t)
	require.NoError(t, f.store.Put(ctx, pendingSplit("p1", 500, 0, nil)))

	f.store.Remove(ctx, "p1")
	_, cached := f.redis.Raw("ts:split:p1")
	assert.False(t, cached)

	durable, err := f.repo.FindByPaymentHash(ctx, "p1")
	require.NoError(t, err)
	assert.NotNil(t, durable)
}

func TestStoreEventsAreDurableOnly(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t)

	require.NoError(t, f.store.AppendEvent(ctx, &models.PaymentEvent{
		PaymentHash: "p1",
		EventType:   enums.PaymentEventClaimAttempt,
		EventStatus: enums.PaymentEventStatusOK,
	}))
	require.NoError(t, f.store.AppendEvent(ctx, &models.PaymentEvent{
		PaymentHash: "p1",
		EventType:   enums.PaymentEventReceived,
		EventStatus: enums.PaymentEventStatusOK,
	}))

	events, err := f.store.Events(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.False(t, events[0].CreatedAt.IsZero())
	assert.False(t, events[1].CreatedAt.Before(events[0].CreatedAt))
	_, cached := f.redis.Raw("ts:split:p1")
	assert.False(t, cached)
}

func TestStoreDurableOutageIsDependencyError(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.NewSQLite(t)
	store, err := NewStore(StoreParams{Repo: NewRepository(conn), Logger: newTestLogger()})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = store.Get(ctx, "p1")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	err = store.Put(ctx, pendingSplit("p1", 1, 0, nil))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	_, err = store.UpdateStatus(ctx, "p1", enums.SplitStatusPending, enums.SplitStatusClaimed, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestInvalidationBacklogIsBounded(t *testing.T) {
	backlog := newInvalidationBacklog(2)

	_, dropped := backlog.add("a")
	assert.False(t, dropped)
	_, dropped = backlog.add("a")
	assert.False(t, dropped)
	backlog.add("b")

	oldest, dropped := backlog.add("c")
	assert.True(t, dropped)
	assert.Equal(t, "a", oldest)
	assert.Equal(t, []string{"b", "c"}, backlog.items())
	assert.False(t, backlog.contains("a"))

	backlog.remove([]string{"b"})
	assert.Equal(t, []string{"c"}, backlog.items())
}
