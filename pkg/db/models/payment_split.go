package models

import (
	"time"

	"github.com/angelmondragon/tipsplit-backend/pkg/enums"
)

// PaymentSplit is the durable record of how one Lightning payment divides into
// a merchant share and a gratuity. Amounts are in the smallest settlement unit.
type PaymentSplit struct {
	PaymentHash     string            `gorm:"column:payment_hash;type:text;primaryKey"`
	TotalAmount     int64             `gorm:"column:total_amount;not null"`
	BaseAmount      int64             `gorm:"column:base_amount;not null"`
	TipAmount       int64             `gorm:"column:tip_amount;not null;default:0"`
	TipRecipient    *string           `gorm:"column:tip_recipient;type:text"`
	DisplayCurrency string            `gorm:"column:display_currency;type:text;not null"`
	Memo            string            `gorm:"column:memo;type:text;not null;default:''"`
	Bolt11          *string           `gorm:"column:bolt11;type:text"`
	Status          enums.SplitStatus `gorm:"column:status;type:text;not null;default:'pending';index:idx_payment_splits_status"`
	CreatedAt       time.Time         `gorm:"column:created_at;not null;autoCreateTime;index:idx_payment_splits_created_at"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;not null;autoUpdateTime"`
	ProcessedAt     *time.Time        `gorm:"column:processed_at"`
}

func (PaymentSplit) TableName() string {
	return "payment_splits"
}

// HasTip reports whether a tip leg must be forwarded.
func (p PaymentSplit) HasTip() bool {
	return p.TipAmount > 0
}

// Recipient returns the tip destination or an empty string.
func (p PaymentSplit) Recipient() string {
	if p.TipRecipient == nil {
		return ""
	}
	return *p.TipRecipient
}
