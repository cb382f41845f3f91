package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tipsplit-backend/pkg/db/models"
)

// Window bounds a report to splits created in [From, To).
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// DailySummary aggregates one UTC day for one display currency.
type DailySummary struct {
	Day                     string `json:"day"`
	Currency                string `json:"currency"`
	SplitCount              int64  `json:"split_count"`
	TotalAmount             int64  `json:"total_amount"`
	BaseAmount              int64  `json:"base_amount"`
	TipAmount               int64  `json:"tip_amount"`
	CompletedCount          int64  `json:"completed_count"`
	PartiallyCompletedCount int64  `json:"partially_completed_count"`
	FailedCount             int64  `json:"failed_count"`
	ExpiredCount            int64  `json:"expired_count"`
}

// CurrencySummary aggregates all splits in a display currency.
type CurrencySummary struct {
	Currency    string          `json:"currency"`
	SplitCount  int64           `json:"split_count"`
	TotalAmount int64           `json:"total_amount"`
	TipAmount   int64           `json:"tip_amount"`
	TippedCount int64           `json:"tipped_count"`
	TipRatio    decimal.Decimal `json:"tip_ratio"`
}

// RecipientSummary aggregates tips routed to one recipient.
type RecipientSummary struct {
	Recipient         string          `json:"recipient"`
	SplitCount        int64           `json:"split_count"`
	TipAmount         int64           `json:"tip_amount"`
	TotalAmount       int64           `json:"total_amount"`
	PendingRetryCount int64           `json:"pending_retry_count"`
	TipRatio          decimal.Decimal `json:"tip_ratio"`
}

// PaymentHistory is a split with its audit trail in insertion order.
type PaymentHistory struct {
	Split  *models.PaymentSplit  `json:"split"`
	Events []models.PaymentEvent `json:"events"`
}
