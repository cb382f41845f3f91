package invoices

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/tipsplit-backend/internal/splits"
	"github.com/angelmondragon/tipsplit-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tipsplit-backend/pkg/errors"
	"github.com/angelmondragon/tipsplit-backend/pkg/lightning"
	"github.com/angelmondragon/tipsplit-backend/pkg/logger"
)

// InvoiceCreator issues incoming Lightning invoices.
type InvoiceCreator interface {
	CreateInvoice(ctx context.Context, amount int64, memo string) (lightning.Invoice, error)
}

type splitRegistrar interface {
	RegisterSplit(ctx context.Context, input splits.RegisterSplitInput) (*models.PaymentSplit, error)
}

// Service issues an invoice for base + tip and records the expected split.
type Service interface {
	Issue(ctx context.Context, input IssueInput) (*models.PaymentSplit, error)
}

// IssueInput carries amounts already converted by the caller.
type IssueInput struct {
	BaseAmount      int64   `json:"base_amount"`
	TipAmount       int64   `json:"tip_amount"`
	TipRecipient    *string `json:"tip_recipient,omitempty"`
	DisplayCurrency string  `json:"display_currency"`
	Memo            string  `json:"memo"`
}

type service struct {
	creator InvoiceCreator
	splits  splitRegistrar
	logg    *logger.Logger
}

// NewService wires invoice issuance.
func NewService(creator InvoiceCreator, registrar splitRegistrar, logg *logger.Logger) (Service, error) {
	if creator == nil {
		return nil, fmt.Errorf("invoice creator required")
	}
	if registrar == nil {
		return nil, fmt.Errorf("split registrar required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{creator: creator, splits: registrar, logg: logg}, nil
}

func (s *service) Issue(ctx context.Context, input IssueInput) (*models.PaymentSplit, error) {
	if input.BaseAmount < 0 || input.TipAmount < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amounts must not be negative")
	}
	total := input.BaseAmount + input.TipAmount
	if total <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice total must be greater than zero")
	}
	if input.TipAmount > 0 && (input.TipRecipient == nil || strings.TrimSpace(*input.TipRecipient) == "") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tip recipient is required when a tip is set").
			WithDetails(map[string]string{"tip_recipient": "is required when tip_amount is positive"})
	}

	invoice, err := s.creator.CreateInvoice(ctx, total, input.Memo)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create invoice")
	}

	ctx = s.logg.WithPaymentID(ctx, invoice.PaymentHash)
	bolt11 := invoice.Bolt11
	split, err := s.splits.RegisterSplit(ctx, splits.RegisterSplitInput{
		PaymentHash:     invoice.PaymentHash,
		TotalAmount:     total,
		BaseAmount:      input.BaseAmount,
		TipAmount:       input.TipAmount,
		TipRecipient:    input.TipRecipient,
		DisplayCurrency: input.DisplayCurrency,
		Memo:            input.Memo,
		Bolt11:          &bolt11,
	})
	if err != nil {
		// The invoice stays unregistered and lapses at expiry; a settlement for it claims nothing.
		s.logg.Error(ctx, "invoice issued but split registration failed", err)
		return nil, err
	}

	s.logg.Info(s.logg.WithField(ctx, "total_amount", total), "invoice issued")
	return split, nil
}
