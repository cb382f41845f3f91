package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/angelmondragon/tipsplit-backend/pkg/enums"
)

// PaymentEvent is an append-only audit entry for a split. PaymentHash carries no
// foreign key so events can be recorded for payments that were never registered.
type PaymentEvent struct {
	ID          int64                    `gorm:"column:id;primaryKey;autoIncrement"`
	PaymentHash string                   `gorm:"column:payment_hash;type:text;not null;index:idx_payment_events_payment_hash"`
	EventType   enums.PaymentEventType   `gorm:"column:event_type;type:text;not null"`
	EventStatus enums.PaymentEventStatus `gorm:"column:event_status;type:text;not null"`
	EventData   datatypes.JSON           `gorm:"column:event_data"`
	CreatedAt   time.Time                `gorm:"column:created_at;not null;autoCreateTime"`
}

func (PaymentEvent) TableName() string {
	return "payment_events"
}
