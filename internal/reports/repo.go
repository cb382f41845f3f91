package reports

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/angelmondragon/tipsplit-backend/pkg/db/models"
	"github.com/angelmondragon/tipsplit-backend/pkg/enums"
)

// Repository reads reporting projections from the durable store. Aggregates are
// computed in SQL with functions Postgres and SQLite share; timestamps are
// stored in UTC, so DATE() buckets by UTC day.
type Repository interface {
	DailyTotals(ctx context.Context, window Window) ([]DailySummary, error)
	CurrencyTotals(ctx context.Context, window Window) ([]CurrencySummary, error)
	RecipientTotals(ctx context.Context, window Window) ([]RecipientSummary, error)
	FindSplit(ctx context.Context, paymentHash string) (*models.PaymentSplit, error)
	ListEvents(ctx context.Context, paymentHash string) ([]models.PaymentEvent, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the reports repository to a gorm connection.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) windowed(ctx context.Context, window Window) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.PaymentSplit{}).
		Where("created_at >= ? AND created_at < ?", window.From.UTC(), window.To.UTC())
}

func (r *repository) DailyTotals(ctx context.Context, window Window) ([]DailySummary, error) {
	day := "CAST(DATE(created_at) AS TEXT)"
	var rows []DailySummary
	err := r.windowed(ctx, window).
		Select(day+` AS day,
			display_currency AS currency,
			COUNT(*) AS split_count,
			CAST(COALESCE(SUM(total_amount), 0) AS BIGINT) AS total_amount,
			CAST(COALESCE(SUM(base_amount), 0) AS BIGINT) AS base_amount,
			CAST(COALESCE(SUM(tip_amount), 0) AS BIGINT) AS tip_amount,
			CAST(COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS BIGINT) AS completed_count,
			CAST(COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS BIGINT) AS partially_completed_count,
			CAST(COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS BIGINT) AS failed_count,
			CAST(COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS BIGINT) AS expired_count`,
			enums.SplitStatusCompleted, enums.SplitStatusPartiallyCompleted, enums.SplitStatusFailed, enums.SplitStatusExpired).
		Group(day + ", display_currency").
		Order("day ASC, currency ASC").
		Scan(&rows).Error
	return rows, err
}

func (r *repository) CurrencyTotals(ctx context.Context, window Window) ([]CurrencySummary, error) {
	var rows []CurrencySummary
	err := r.windowed(ctx, window).
		Select(`display_currency AS currency,
			COUNT(*) AS split_count,
			CAST(COALESCE(SUM(total_amount), 0) AS BIGINT) AS total_amount,
			CAST(COALESCE(SUM(tip_amount), 0) AS BIGINT) AS tip_amount,
			CAST(COALESCE(SUM(CASE WHEN tip_amount > 0 THEN 1 ELSE 0 END), 0) AS BIGINT) AS tipped_count`).
		Group("display_currency").
		Order("display_currency ASC").
		Scan(&rows).Error
	return rows, err
}

func (r *repository) RecipientTotals(ctx context.Context, window Window) ([]RecipientSummary, error) {
	var rows []RecipientSummary
	err := r.windowed(ctx, window).
		Select(`tip_recipient AS recipient,
			COUNT(*) AS split_count,
			CAST(COALESCE(SUM(tip_amount), 0) AS BIGINT) AS tip_amount,
			CAST(COALESCE(SUM(total_amount), 0) AS BIGINT) AS total_amount,
			CAST(COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS BIGINT) AS pending_retry_count`,
			enums.SplitStatusPartiallyCompleted).
		Where("tip_recipient IS NOT NULL AND tip_amount > 0").
		Group("tip_recipient").
		Order("tip_amount DESC, tip_recipient ASC").
		Scan(&rows).Error
	return rows, err
}

func (r *repository) FindSplit(ctx context.Context, paymentHash string) (*models.PaymentSplit, error) {
	var split models.PaymentSplit
	err := r.db.WithContext(ctx).Where("payment_hash = ?", paymentHash).First(&split).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &split, nil
}

func (r *repository) ListEvents(ctx context.Context, paymentHash string) ([]models.PaymentEvent, error) {
	var events []models.PaymentEvent
	err := r.db.WithContext(ctx).
		Where("payment_hash = ?", paymentHash).
		Order("created_at ASC, id ASC").
		Find(&events).Error
	return events, err
}
