package splits

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/angelmondragon/tipsplit-backend/pkg/db"
	"github.com/angelmondragon/tipsplit-backend/pkg/db/dbtest"
	"github.com/angelmondragon/tipsplit-backend/pkg/db/models"
	"github.com/angelmondragon/tipsplit-backend/pkg/enums"
)

func TestRepositoryCreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.NewSQLite(t))

	split := pendingSplit("p1", 1000, 100, strPtr("alice@tips.example"))
	require.NoError(t, repo.Create(ctx, split))

	found, err := repo.FindByPaymentHash(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, int64(1100), found.TotalAmount)
	assert.Equal(t, "alice@tips.example", found.Recipient())
	assert.Equal(t, enums.SplitStatusPending, found.Status)
	assert.Nil(t, found.ProcessedAt)

	missing, err := repo.FindByPaymentHash(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	err = repo.Create(ctx, pendingSplit("p1", 10, 0, nil))
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, ""))
}

func TestRepositoryCompareAndSwapStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.NewSQLite(t))
	require.NoError(t, repo.Create(ctx, pendingSplit("p1", 500, 0, nil)))

	processed := time.Now().UTC()
	ok, err := repo.CompareAndSwapStatus(ctx, "p1", enums.SplitStatusPending, enums.SplitStatusClaimed, &processed, processed)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.CompareAndSwapStatus(ctx, "p1", enums.SplitStatusPending, enums.SplitStatusClaimed, &processed, processed)
	require.NoError(t, err)
	assert.False(t, ok, "second claim must lose")

	ok, err = repo.CompareAndSwapStatus(ctx, "unknown", enums.SplitStatusPending, enums.SplitStatusClaimed, nil, processed)
	require.NoError(t, err)
	assert.False(t, ok)

	found, err := repo.FindByPaymentHash(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, enums.SplitStatusClaimed, found.Status)
	require.NotNil(t, found.ProcessedAt)
	assert.WithinDuration(t, processed, *found.ProcessedAt, time.Millisecond)
}

func TestRepositoryEventsAreOrderedByInsertion(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.NewSQLite(t))
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, eventType := range []enums.PaymentEventType{
		enums.PaymentEventClaimAttempt,
		enums.PaymentEventReceived,
		enums.PaymentEventBaseTransfer,
	} {
		require.NoError(t, repo.AppendEvent(ctx, &models.PaymentEvent{
			PaymentHash: "p1",
			EventType:   eventType,
			EventStatus: enums.PaymentEventStatusOK,
			EventData:   datatypes.JSON(`{"amount":1}`),
			CreatedAt:   at,
		}))
	}
	require.NoError(t, repo.AppendEvent(ctx, &models.PaymentEvent{
		PaymentHash: "other",
		EventType:   enums.PaymentEventReceived,
		EventStatus: enums.PaymentEventStatusOK,
		CreatedAt:   at,
	}))

	events, err := repo.ListEvents(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, enums.PaymentEventClaimAttempt, events[0].EventType)
	assert.Equal(t, enums.PaymentEventReceived, events[1].EventType)
	assert.Equal(t, enums.PaymentEventBaseTransfer, events[2].EventType)
	assert.JSONEq(t, `{"amount":1}`, string(events[0].EventData))
}

func TestRepositoryListStale(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.NewSQLite(t))
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	old := pendingSplit("old-pending", 100, 0, nil)
	old.CreatedAt = now.Add(-30 * time.Hour)
	oldClaimed := pendingSplit("old-claimed", 100, 0, nil)
	oldClaimed.CreatedAt = now.Add(-26 * time.Hour)
	oldClaimed.Status = enums.SplitStatusClaimed
	oldDone := pendingSplit("old-completed", 100, 0, nil)
	oldDone.CreatedAt = now.Add(-40 * time.Hour)
	oldDone.Status = enums.SplitStatusCompleted
	fresh := pendingSplit("fresh", 100, 0, nil)
	fresh.CreatedAt = now.Add(-time.Hour)

	for _, split := range []*models.PaymentSplit{old, oldClaimed, oldDone, fresh} {
		require.NoError(t, repo.Create(ctx, split))
	}

	cutoff := now.Add(-24 * time.Hour)
	rows, err := repo.ListStale(ctx, StaleFilter{Status: enums.SplitStatusPending, Before: cutoff, Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "old-pending", rows[0].PaymentHash)

	rows, err = repo.ListStale(ctx, StaleFilter{Status: enums.SplitStatusClaimed, Before: cutoff, Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "old-claimed", rows[0].PaymentHash)

	rows, err = repo.ListStale(ctx, StaleFilter{Status: enums.SplitStatusPending, Before: now, Limit: 1})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "old-pending", rows[0].PaymentHash)

	rows, err = repo.ListStale(ctx, StaleFilter{Before: now, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRepositoryListStaleAgesClaimsFromClaimTime(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.NewSQLite(t))
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	lateClaim := pendingSplit("late-claim", 100, 0, nil)
	lateClaim.CreatedAt = now.Add(-30 * time.Hour)
	lateClaim.Status = enums.SplitStatusClaimed
	claimedAt := now.Add(-10 * time.Minute)
	lateClaim.ProcessedAt = &claimedAt

	earlyClaim := pendingSplit("early-claim", 100, 0, nil)
	earlyClaim.CreatedAt = now.Add(-30 * time.Hour)
	earlyClaim.Status = enums.SplitStatusClaimed
	earlyAt := now.Add(-29 * time.Hour)
	earlyClaim.ProcessedAt = &earlyAt

	for _, split := range []*models.PaymentSplit{lateClaim, earlyClaim} {
		require.NoError(t, repo.Create(ctx, split))
	}

	rows, err := repo.ListStale(ctx, StaleFilter{Status: enums.SplitStatusClaimed, Before: now.Add(-24 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "early-claim", rows[0].PaymentHash)
}

func TestRepositoryListStaleAgesTipRetriesFromLastUpdate(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.NewSQLite(t))
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	abandoned := pendingSplit("abandoned-retry", 100, 10, strPtr("tips@example.com"))
	abandoned.CreatedAt = now.Add(-2 * time.Hour)
	abandoned.UpdatedAt = now.Add(-time.Hour)
	abandoned.Status = enums.SplitStatusRetryingTip

	running := pendingSplit("running-retry", 100, 10, strPtr("tips@example.com"))
	running.CreatedAt = now.Add(-2 * time.Hour)
	running.UpdatedAt = now.Add(-time.Minute)
	running.Status = enums.SplitStatusRetryingTip

	for _, split := range []*models.PaymentSplit{abandoned, running} {
		require.NoError(t, repo.Create(ctx, split))
	}

	rows, err := repo.ListStale(ctx, StaleFilter{Status: enums.SplitStatusRetryingTip, Before: now.Add(-15 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "abandoned-retry", rows[0].PaymentHash)
}
