package splits

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/tipsplit-backend/pkg/db"
	"github.com/angelmondragon/tipsplit-backend/pkg/db/models"
	"github.com/angelmondragon/tipsplit-backend/pkg/enums"
)

// Repository manages durable persistence for splits and their audit events.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, split *models.PaymentSplit) error
	FindByPaymentHash(ctx context.Context, paymentHash string) (*models.PaymentSplit, error)
	CompareAndSwapStatus(ctx context.Context, paymentHash string, expected, next enums.SplitStatus, processedAt *time.Time, now time.Time) (bool, error)
	AppendEvent(ctx context.Context, event *models.PaymentEvent) error
	ListEvents(ctx context.Context, paymentHash string) ([]models.PaymentEvent, error)
	ListStale(ctx context.Context, filter StaleFilter) ([]models.PaymentSplit, error)
}

// StaleFilter selects splits that have held Status since before Before.
type StaleFilter struct {
	Status enums.SplitStatus
	Before time.Time
	Limit  int
}

// staleSinceColumn is the timestamp a split entered status. A claim stamps
// processed_at; a tip retry only moves updated_at.
func staleSinceColumn(status enums.SplitStatus) string {
	switch status {
	case enums.SplitStatusClaimed:
		return "COALESCE(processed_at, created_at)"
	case enums.SplitStatusRetryingTip:
		return "updated_at"
	default:
		return "created_at"
	}
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a split repository bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, split *models.PaymentSplit) error {
	return r.db.WithContext(ctx).Create(split).Error
}

// FindByPaymentHash returns (nil, nil) when the split does not exist.
func (r *repository) FindByPaymentHash(ctx context.Context, paymentHash string) (*models.PaymentSplit, error) {
	var split models.PaymentSplit
	err := r.db.WithContext(ctx).
		Where("payment_hash = ?", paymentHash).
		Take(&split).Error
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &split, nil
}

// CompareAndSwapStatus moves the split to next only while its stored status still
// equals expected. A nil processedAt leaves the column untouched.
func (r *repository) CompareAndSwapStatus(ctx context.Context, paymentHash string, expected, next enums.SplitStatus, processedAt *time.Time, now time.Time) (bool, error) {
	updates := map[string]any{
		"status":     next,
		"updated_at": now.UTC(),
	}
	if processedAt != nil {
		updates["processed_at"] = processedAt.UTC()
	}

	res := r.db.WithContext(ctx).
		Model(&models.PaymentSplit{}).
		Where("payment_hash = ? AND status = ?", paymentHash, expected).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) AppendEvent(ctx context.Context, event *models.PaymentEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// ListEvents returns the audit trail in insertion order.
func (r *repository) ListEvents(ctx context.Context, paymentHash string) ([]models.PaymentEvent, error) {
	var events []models.PaymentEvent
	if err := r.db.WithContext(ctx).
		Where("payment_hash = ?", paymentHash).
		Order("created_at ASC").
		Order("id ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// ListStale returns splits that have been in filter.Status since before the
// cutoff, oldest first.
func (r *repository) ListStale(ctx context.Context, filter StaleFilter) ([]models.PaymentSplit, error) {
	if filter.Status == "" {
		return nil, nil
	}
	since := staleSinceColumn(filter.Status)
	query := r.db.WithContext(ctx).
		Where("status = ?", filter.Status).
		Where(since+" < ?", filter.Before.UTC()).
		Order(since + " ASC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []models.PaymentSplit
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
