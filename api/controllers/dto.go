package controllers

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/tipsplit-backend/internal/reports"
	"github.com/angelmondragon/tipsplit-backend/pkg/db/models"
)

type splitResponse struct {
	PaymentHash     string     `json:"payment_hash"`
	TotalAmount     int64      `json:"total_amount"`
	BaseAmount      int64      `json:"base_amount"`
	TipAmount       int64      `json:"tip_amount"`
	TipRecipient    *string    `json:"tip_recipient,omitempty"`
	DisplayCurrency string     `json:"display_currency"`
	Memo            string     `json:"memo"`
	Bolt11          *string    `json:"bolt11,omitempty"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
}

func newSplitResponse(split *models.PaymentSplit) splitResponse {
	return splitResponse{
		PaymentHash:     split.PaymentHash,
		TotalAmount:     split.TotalAmount,
		BaseAmount:      split.BaseAmount,
		TipAmount:       split.TipAmount,
		TipRecipient:    split.TipRecipient,
		DisplayCurrency: split.DisplayCurrency,
		Memo:            split.Memo,
		Bolt11:          split.Bolt11,
		Status:          split.Status.String(),
		CreatedAt:       split.CreatedAt.UTC(),
		ProcessedAt:     split.ProcessedAt,
	}
}

type eventResponse struct {
	ID        int64           `json:"id"`
	Type      string          `json:"event_type"`
	Status    string          `json:"event_status"`
	Data      json.RawMessage `json:"event_data,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type paymentHistoryResponse struct {
	Split  splitResponse   `json:"split"`
	Events []eventResponse `json:"events"`
}

func newPaymentHistoryResponse(history *reports.PaymentHistory) paymentHistoryResponse {
	out := paymentHistoryResponse{
		Split:  newSplitResponse(history.Split),
		Events: make([]eventResponse, 0, len(history.Events)),
	}
	for _, evt := range history.Events {
		var data json.RawMessage
		if len(evt.EventData) > 0 {
			data = json.RawMessage(evt.EventData)
		}
		out.Events = append(out.Events, eventResponse{
			ID:        evt.ID,
			Type:      string(evt.EventType),
			Status:    string(evt.EventStatus),
			Data:      data,
			CreatedAt: evt.CreatedAt.UTC(),
		})
	}
	return out
}
