package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/tipsplit-backend/api/responses"
	"github.com/angelmondragon/tipsplit-backend/api/validators"
	"github.com/angelmondragon/tipsplit-backend/internal/forwarding"
	"github.com/angelmondragon/tipsplit-backend/internal/splits"
	pkgerrors "github.com/angelmondragon/tipsplit-backend/pkg/errors"
	"github.com/angelmondragon/tipsplit-backend/pkg/logger"
)

const maxMemoLen = 639

// TipRetrier re-runs the tip leg of a partially completed split.
type TipRetrier interface {
	RetryTip(ctx context.Context, paymentHash string) (forwarding.Result, error)
}

type registerSplitRequest struct {
	PaymentHash     string  `json:"payment_hash" validate:"required,max=128"`
	TotalAmount     int64   `json:"total_amount" validate:"gt=0"`
	BaseAmount      int64   `json:"base_amount" validate:"gte=0"`
	TipAmount       int64   `json:"tip_amount" validate:"gte=0"`
	TipRecipient    *string `json:"tip_recipient,omitempty" validate:"omitempty,max=320,lnaddress"`
	DisplayCurrency string  `json:"display_currency" validate:"required,currency"`
	Memo            string  `json:"memo" validate:"max=639"`
	Bolt11          *string `json:"bolt11,omitempty"`
}

// RegisterSplit records the expected split for an invoice issued elsewhere.
func RegisterSplit(svc splits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "split service unavailable"))
			return
		}

		var body registerSplitRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		split, err := svc.RegisterSplit(r.Context(), splits.RegisterSplitInput{
			PaymentHash:     body.PaymentHash,
			TotalAmount:     body.TotalAmount,
			BaseAmount:      body.BaseAmount,
			TipAmount:       body.TipAmount,
			TipRecipient:    body.TipRecipient,
			DisplayCurrency: body.DisplayCurrency,
			Memo:            validators.SanitizeMemo(body.Memo, maxMemoLen),
			Bolt11:          body.Bolt11,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newSplitResponse(split))
	}
}

// GetSplit reads a split through the hybrid store.
func GetSplit(svc splits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "split service unavailable"))
			return
		}

		hash := strings.TrimSpace(chi.URLParam(r, "paymentHash"))
		split, err := svc.GetSplit(r.Context(), hash)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSplitResponse(split))
	}
}

// RetryTip triggers the tip-only retry for a partially completed split.
func RetryTip(retrier TipRetrier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if retrier == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tip retry unavailable"))
			return
		}

		hash := strings.TrimSpace(chi.URLParam(r, "paymentHash"))
		result, err := retrier.RetryTip(r.Context(), hash)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
