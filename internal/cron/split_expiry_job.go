package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/datatypes"

	"github.com/angelmondragon/tipsplit-backend/internal/splits"
	"github.com/angelmondragon/tipsplit-backend/pkg/db/models"
	"github.com/angelmondragon/tipsplit-backend/pkg/enums"
	"github.com/angelmondragon/tipsplit-backend/pkg/logger"
	"github.com/angelmondragon/tipsplit-backend/pkg/metrics"
)

const (
	splitExpiryJobName      = "split-expiry"
	defaultSplitRetention   = 24 * time.Hour
	defaultSplitExpiryBatch = 500
	defaultTipRetryLease    = 15 * time.Minute
)

// SplitExpiryJobParams configure the stale split sweep.
type SplitExpiryJobParams struct {
	Logger    *logger.Logger
	Store     expiryStore
	Retention time.Duration
	// TipRetryLease is how long a split may sit in retrying_tip before the sweep
	// hands it back to partially_completed.
	TipRetryLease time.Duration
	BatchSize     int
	Clock         func() time.Time
	Metrics       *metrics.CronJobMetrics
}

type expiryStore interface {
	ListStale(ctx context.Context, filter splits.StaleFilter) ([]models.PaymentSplit, error)
	UpdateStatus(ctx context.Context, paymentHash string, expected, next enums.SplitStatus, processedAt *time.Time) (bool, error)
	AppendEvent(ctx context.Context, event *models.PaymentEvent) error
	Remove(ctx context.Context, paymentHash string)
}

// SplitExpiryReport summarizes one sweep.
type SplitExpiryReport struct {
	Scanned int
	Expired int
	// Released counts abandoned tip retries returned to partially_completed.
	Released int
	Skipped  int
	Failed   int
}

// NewSplitExpiryJob builds the job that expires splits stuck in pending or claimed
// and releases tip retries whose worker went away.
func NewSplitExpiryJob(params SplitExpiryJobParams) (*SplitExpiryJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("split store required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultSplitRetention
	}
	lease := params.TipRetryLease
	if lease <= 0 {
		lease = defaultTipRetryLease
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSplitExpiryBatch
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SplitExpiryJob{
		logg:      params.Logger,
		store:     params.Store,
		retention: retention,
		lease:     lease,
		batch:     batch,
		now:       clock,
		metrics:   params.Metrics,
	}, nil
}

// SplitExpiryJob moves abandoned splits to expired. Rows are kept for audit.
type SplitExpiryJob struct {
	logg      *logger.Logger
	store     expiryStore
	retention time.Duration
	lease     time.Duration
	batch     int
	now       func() time.Time
	metrics   *metrics.CronJobMetrics
}

func (j *SplitExpiryJob) Name() string { return splitExpiryJobName }

func (j *SplitExpiryJob) Run(ctx context.Context) error {
	_, err := j.Sweep(ctx)
	return err
}

// Sweep runs one pass and reports what it did. Per-record failures do not stop
// the pass; they are combined into the returned error.
func (j *SplitExpiryJob) Sweep(ctx context.Context) (SplitExpiryReport, error) {
	now := j.now().UTC()
	cutoff := now.Add(-j.retention)

	var (
		report SplitExpiryReport
		errs   error
	)
	for _, status := range enums.ExpirableSplitStatuses() {
		stale, err := j.store.ListStale(ctx, splits.StaleFilter{Status: status, Before: cutoff, Limit: j.batch})
		if err != nil {
			return report, fmt.Errorf("query stale %s splits: %w", status, err)
		}
		report.Scanned += len(stale)
		for i := range stale {
			expired, err := j.expire(ctx, &stale[i], now)
			switch {
			case err != nil:
				report.Failed++
				errs = multierr.Append(errs, err)
			case expired:
				report.Expired++
			default:
				report.Skipped++
			}
		}
	}

	abandoned, err := j.store.ListStale(ctx, splits.StaleFilter{
		Status: enums.SplitStatusRetryingTip,
		Before: now.Add(-j.lease),
		Limit:  j.batch,
	})
	if err != nil {
		return report, multierr.Append(errs, fmt.Errorf("query abandoned tip retries: %w", err))
	}
	report.Scanned += len(abandoned)
	for i := range abandoned {
		released, err := j.releaseTipRetry(ctx, &abandoned[i], now)
		switch {
		case err != nil:
			report.Failed++
			errs = multierr.Append(errs, err)
		case released:
			report.Released++
		default:
			report.Skipped++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":   cutoff,
		"scanned":  report.Scanned,
		"expired":  report.Expired,
		"released": report.Released,
		"skipped":  report.Skipped,
		"failed":   report.Failed,
	})
	j.logg.Info(logCtx, "split expiry sweep complete")
	j.metrics.AddSwept("expired", report.Expired)
	j.metrics.AddSwept("released", report.Released)
	j.metrics.AddSwept("skipped", report.Skipped)
	j.metrics.AddSwept("failed", report.Failed)
	return report, errs
}

// heldSince is when the split entered its current status.
func heldSince(split *models.PaymentSplit) time.Time {
	switch {
	case split.Status == enums.SplitStatusClaimed && split.ProcessedAt != nil:
		return split.ProcessedAt.UTC()
	case split.Status == enums.SplitStatusRetryingTip:
		return split.UpdatedAt.UTC()
	default:
		return split.CreatedAt.UTC()
	}
}

func (j *SplitExpiryJob) expire(ctx context.Context, split *models.PaymentSplit, now time.Time) (bool, error) {
	ctx = j.logg.WithPaymentID(ctx, split.PaymentHash)
	swapped, err := j.store.UpdateStatus(ctx, split.PaymentHash, split.Status, enums.SplitStatusExpired, &now)
	if err != nil {
		return false, fmt.Errorf("expire %s: %w", split.PaymentHash, err)
	}
	if !swapped {
		j.logg.Debug(ctx, "split moved on before expiry; skipping")
		return false, nil
	}

	age := now.Sub(heldSince(split))
	var errs error
	if err := j.record(ctx, split.PaymentHash, enums.PaymentEventCleanup, enums.PaymentEventStatusOK, now, map[string]any{
		"previous_status": split.Status,
		"age_seconds":     int64(age.Seconds()),
	}); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("record cleanup for %s: %w", split.PaymentHash, err))
	}
	j.store.Remove(ctx, split.PaymentHash)

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"previous_status": split.Status,
		"age":             age.String(),
	}), "split expired")
	return true, errs
}

// releaseTipRetry hands a tip retry whose lease lapsed back to partially_completed
// so RetryTip can run again. The base leg is never touched.
func (j *SplitExpiryJob) releaseTipRetry(ctx context.Context, split *models.PaymentSplit, now time.Time) (bool, error) {
	ctx = j.logg.WithPaymentID(ctx, split.PaymentHash)
	swapped, err := j.store.UpdateStatus(ctx, split.PaymentHash, enums.SplitStatusRetryingTip, enums.SplitStatusPartiallyCompleted, nil)
	if err != nil {
		return false, fmt.Errorf("release tip retry %s: %w", split.PaymentHash, err)
	}
	if !swapped {
		j.logg.Debug(ctx, "tip retry finished before release; skipping")
		return false, nil
	}

	held := now.Sub(heldSince(split))
	if err := j.record(ctx, split.PaymentHash, enums.PaymentEventTipRetry, enums.PaymentEventStatusError, now, map[string]any{
		"reason":       "lease expired",
		"from":         enums.SplitStatusRetryingTip,
		"to":           enums.SplitStatusPartiallyCompleted,
		"held_seconds": int64(held.Seconds()),
	}); err != nil {
		return true, fmt.Errorf("record tip retry release for %s: %w", split.PaymentHash, err)
	}
	j.logg.Warn(j.logg.WithField(ctx, "held", held.String()), "abandoned tip retry released")
	return true, nil
}

func (j *SplitExpiryJob) record(ctx context.Context, hash string, eventType enums.PaymentEventType, status enums.PaymentEventStatus, at time.Time, data map[string]any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", eventType, err)
	}
	return j.store.AppendEvent(ctx, &models.PaymentEvent{
		PaymentHash: hash,
		EventType:   eventType,
		EventStatus: status,
		EventData:   datatypes.JSON(payload),
		CreatedAt:   at,
	})
}
