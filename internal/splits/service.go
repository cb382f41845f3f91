package splits

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/tipsplit-backend/pkg/db/models"
	"github.com/angelmondragon/tipsplit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tipsplit-backend/pkg/errors"
	"github.com/angelmondragon/tipsplit-backend/pkg/logger"
)

// Service is the only creation path for payment splits.
type Service interface {
	RegisterSplit(ctx context.Context, input RegisterSplitInput) (*models.PaymentSplit, error)
	GetSplit(ctx context.Context, paymentHash string) (*models.PaymentSplit, error)
}

// splitStore is the hybrid store surface the service relies on.
type splitStore interface {
	Put(ctx context.Context, split *models.PaymentSplit) error
	Get(ctx context.Context, paymentHash string) (*models.PaymentSplit, error)
}

// RegisterSplitInput carries amounts already converted to the smallest settlement unit.
type RegisterSplitInput struct {
	PaymentHash     string  `json:"payment_hash"`
	TotalAmount     int64   `json:"total_amount"`
	BaseAmount      int64   `json:"base_amount"`
	TipAmount       int64   `json:"tip_amount"`
	TipRecipient    *string `json:"tip_recipient,omitempty"`
	DisplayCurrency string  `json:"display_currency"`
	Memo            string  `json:"memo"`
	Bolt11          *string `json:"bolt11,omitempty"`
}

type service struct {
	store splitStore
	logg  *logger.Logger
	now   func() time.Time
}

// NewService wires the registration service.
func NewService(store splitStore, logg *logger.Logger) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("split store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{store: store, logg: logg, now: time.Now}, nil
}

func (s *service) RegisterSplit(ctx context.Context, input RegisterSplitInput) (*models.PaymentSplit, error) {
	split, err := buildSplit(input, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, split); err != nil {
		return nil, err
	}

	ctx = s.logg.WithPaymentID(ctx, split.PaymentHash)
	ctx = s.logg.WithFields(ctx, map[string]any{
		"total_amount": split.TotalAmount,
		"tip_amount":   split.TipAmount,
	})
	s.logg.Info(ctx, "split registered")
	return split, nil
}

func (s *service) GetSplit(ctx context.Context, paymentHash string) (*models.PaymentSplit, error) {
	hash := strings.TrimSpace(paymentHash)
	if hash == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment hash is required")
	}
	split, err := s.store.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	if split == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("payment %s not found", hash))
	}
	return split, nil
}

// buildSplit enforces total = base + tip (all non-negative) and that a recipient is
// present exactly when a tip is.
func buildSplit(input RegisterSplitInput, now time.Time) (*models.PaymentSplit, error) {
	problems := map[string]string{}

	hash := strings.TrimSpace(input.PaymentHash)
	if hash == "" {
		problems["payment_hash"] = "is required"
	}
	if input.TotalAmount <= 0 {
		problems["total_amount"] = "must be greater than zero"
	}
	if input.BaseAmount < 0 {
		problems["base_amount"] = "must not be negative"
	}
	if input.TipAmount < 0 {
		problems["tip_amount"] = "must not be negative"
	}
	if input.TotalAmount > 0 && input.BaseAmount >= 0 && input.TipAmount >= 0 &&
		input.BaseAmount != input.TotalAmount-input.TipAmount {
		problems["total_amount"] = "must equal base_amount + tip_amount"
	}

	var recipient *string
	if input.TipRecipient != nil {
		if trimmed := strings.TrimSpace(*input.TipRecipient); trimmed != "" {
			recipient = &trimmed
		}
	}
	switch {
	case input.TipAmount > 0 && recipient == nil:
		problems["tip_recipient"] = "is required when tip_amount is positive"
	case input.TipAmount == 0 && recipient != nil:
		problems["tip_recipient"] = "must be empty when there is no tip"
	}

	currency := strings.TrimSpace(input.DisplayCurrency)
	if currency == "" {
		problems["display_currency"] = "is required"
	}

	if len(problems) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid split").WithDetails(problems)
	}

	var bolt11 *string
	if input.Bolt11 != nil {
		if trimmed := strings.TrimSpace(*input.Bolt11); trimmed != "" {
			bolt11 = &trimmed
		}
	}

	return &models.PaymentSplit{
		PaymentHash:     hash,
		TotalAmount:     input.TotalAmount,
		BaseAmount:      input.BaseAmount,
		TipAmount:       input.TipAmount,
		TipRecipient:    recipient,
		DisplayCurrency: currency,
		Memo:            strings.TrimSpace(input.Memo),
		Bolt11:          bolt11,
		Status:          enums.SplitStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}
