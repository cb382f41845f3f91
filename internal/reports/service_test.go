package reports

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/tipsplit-backend/pkg/db/dbtest"
	"github.com/angelmondragon/tipsplit-backend/pkg/db/models"
	"github.com/angelmondragon/tipsplit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tipsplit-backend/pkg/errors"
	"github.com/angelmondragon/tipsplit-backend/pkg/logger"
)

var day1 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newReportsService(t *testing.T) (*service, *gorm.DB) {
	t.Helper()
	conn := dbtest.NewSQLite(t)
	svc, err := NewService(NewRepository(conn), logger.New(logger.Options{ServiceName: "reports-test", Output: io.Discard}))
	require.NoError(t, err)
	impl := svc.(*service)
	impl.now = func() time.Time { return day1.Add(72 * time.Hour) }
	return impl, conn
}

func insertSplit(t *testing.T, conn *gorm.DB, hash, currency string, base, tip int64, recipient string, status enums.SplitStatus, createdAt time.Time) {
	t.Helper()
	split := &models.PaymentSplit{
		PaymentHash:     hash,
		TotalAmount:     base + tip,
		BaseAmount:      base,
		TipAmount:       tip,
		DisplayCurrency: currency,
		Status:          status,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
	if recipient != "" {
		split.TipRecipient = &recipient
	}
	require.NoError(t, conn.Create(split).Error)
}

func seedReports(t *testing.T, conn *gorm.DB) {
	insertSplit(t, conn, "a", "USD", 1000, 100, "alice@tips.example", enums.SplitStatusCompleted, day1)
	insertSplit(t, conn, "b", "USD", 2000, 0, "", enums.SplitStatusCompleted, day1.Add(2*time.Hour))
	insertSplit(t, conn, "c", "EUR", 900, 100, "alice@tips.example", enums.SplitStatusPartiallyCompleted, day1.Add(3*time.Hour))
	insertSplit(t, conn, "d", "USD", 500, 50, "bob@tips.example", enums.SplitStatusExpired, day1.Add(24*time.Hour))
	insertSplit(t, conn, "old", "USD", 500, 50, "bob@tips.example", enums.SplitStatusCompleted, day1.Add(-90*24*time.Hour))
}

func TestDailyBucketsByDayAndCurrency(t *testing.T) {
	svc, conn := newReportsService(t)
	seedReports(t, conn)

	rows, err := svc.Daily(context.Background(), Window{})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, DailySummary{Day: "2026-03-01", Currency: "EUR", SplitCount: 1, TotalAmount: 1000, BaseAmount: 900, TipAmount: 100, PartiallyCompletedCount: 1}, rows[0])
	assert.Equal(t, DailySummary{Day: "2026-03-01", Currency: "USD", SplitCount: 2, TotalAmount: 3100, BaseAmount: 3000, TipAmount: 100, CompletedCount: 2}, rows[1])
	assert.Equal(t, "2026-03-02", rows[2].Day)
	assert.Equal(t, int64(1), rows[2].ExpiredCount)
}

func TestDailyBucketsAtUTCMidnight(t *testing.T) {
	svc, conn := newReportsService(t)
	midnight := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	insertSplit(t, conn, "late", "USD", 100, 0, "", enums.SplitStatusFailed, midnight.Add(-time.Second))
	insertSplit(t, conn, "early", "USD", 200, 0, "", enums.SplitStatusFailed, midnight)

	rows, err := svc.Daily(context.Background(), Window{From: day1, To: day1.Add(48 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, DailySummary{Day: "2026-03-01", Currency: "USD", SplitCount: 1, TotalAmount: 100, BaseAmount: 100, FailedCount: 1}, rows[0])
	assert.Equal(t, DailySummary{Day: "2026-03-02", Currency: "USD", SplitCount: 1, TotalAmount: 200, BaseAmount: 200, FailedCount: 1}, rows[1])
}

func TestCurrenciesComputesTipRatio(t *testing.T) {
	svc, conn := newReportsService(t)
	seedReports(t, conn)

	rows, err := svc.Currencies(context.Background(), Window{})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "EUR", rows[0].Currency)
	assert.True(t, rows[0].TipRatio.Equal(decimal.RequireFromString("0.1")))
	assert.Equal(t, "USD", rows[1].Currency)
	assert.Equal(t, int64(3), rows[1].SplitCount)
	assert.Equal(t, int64(3650), rows[1].TotalAmount)
	assert.Equal(t, int64(2), rows[1].TippedCount)
	assert.True(t, rows[1].TipRatio.Equal(decimal.RequireFromString("0.0411")), rows[1].TipRatio.String())
}

func TestRecipientsCountsPendingRetries(t *testing.T) {
	svc, conn := newReportsService(t)
	seedReports(t, conn)

	rows, err := svc.Recipients(context.Background(), Window{})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "alice@tips.example", rows[0].Recipient)
	assert.Equal(t, int64(2), rows[0].SplitCount)
	assert.Equal(t, int64(200), rows[0].TipAmount)
	assert.Equal(t, int64(1), rows[0].PendingRetryCount)
	assert.Equal(t, "bob@tips.example", rows[1].Recipient)
	assert.Equal(t, int64(50), rows[1].TipAmount)
}

func TestPaymentReturnsOrderedEvents(t *testing.T) {
	svc, conn := newReportsService(t)
	seedReports(t, conn)
	for _, evt := range []models.PaymentEvent{
		{PaymentHash: "a", EventType: enums.PaymentEventClaimAttempt, EventStatus: enums.PaymentEventStatusOK, EventData: datatypes.JSON(`{}`), CreatedAt: day1.Add(time.Minute)},
		{PaymentHash: "a", EventType: enums.PaymentEventReceived, EventStatus: enums.PaymentEventStatusOK, EventData: datatypes.JSON(`{}`), CreatedAt: day1.Add(time.Minute)},
		{PaymentHash: "a", EventType: enums.PaymentEventFinalized, EventStatus: enums.PaymentEventStatusOK, EventData: datatypes.JSON(`{}`), CreatedAt: day1.Add(2 * time.Minute)},
	} {
		evt := evt
		require.NoError(t, conn.Create(&evt).Error)
	}

	history, err := svc.Payment(context.Background(), " a ")
	require.NoError(t, err)
	assert.Equal(t, "a", history.Split.PaymentHash)
	require.Len(t, history.Events, 3)
	assert.Equal(t, enums.PaymentEventClaimAttempt, history.Events[0].EventType)
	assert.Equal(t, enums.PaymentEventReceived, history.Events[1].EventType)
	assert.Equal(t, enums.PaymentEventFinalized, history.Events[2].EventType)

	_, err = svc.Payment(context.Background(), "missing")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	_, err = svc.Payment(context.Background(), "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestWindowValidation(t *testing.T) {
	svc, _ := newReportsService(t)

	_, err := svc.Daily(context.Background(), Window{From: day1, To: day1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.Daily(context.Background(), Window{From: day1.Add(-400 * 24 * time.Hour), To: day1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

type brokenRepo struct{ Repository }

func (brokenRepo) DailyTotals(context.Context, Window) ([]DailySummary, error) {
	return nil, errors.New("db down")
}

func (brokenRepo) CurrencyTotals(context.Context, Window) ([]CurrencySummary, error) {
	return nil, errors.New("db down")
}

func TestRepositoryFailureIsDependencyError(t *testing.T) {
	svc, err := NewService(brokenRepo{}, logger.New(logger.Options{ServiceName: "reports-test", Output: io.Discard}))
	require.NoError(t, err)

	_, err = svc.Currencies(context.Background(), Window{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	_, err = svc.Daily(context.Background(), Window{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestTipRatio(t *testing.T) {
	assert.True(t, tipRatio(0, 0).IsZero())
	assert.Equal(t, "0.3333", tipRatio(1, 3).String())
}
