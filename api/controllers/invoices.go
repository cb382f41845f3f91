package controllers

import (
	"net/http"

	"github.com/angelmondragon/tipsplit-backend/api/responses"
	"github.com/angelmondragon/tipsplit-backend/api/validators"
	"github.com/angelmondragon/tipsplit-backend/internal/invoices"
	pkgerrors "github.com/angelmondragon/tipsplit-backend/pkg/errors"
	"github.com/angelmondragon/tipsplit-backend/pkg/logger"
)

type issueInvoiceRequest struct {
	BaseAmount      int64   `json:"base_amount" validate:"gte=0"`
	TipAmount       int64   `json:"tip_amount" validate:"gte=0"`
	TipRecipient    *string `json:"tip_recipient,omitempty" validate:"omitempty,max=320,lnaddress"`
	DisplayCurrency string  `json:"display_currency" validate:"required,currency"`
	Memo            string  `json:"memo" validate:"max=639"`
}

// IssueInvoice creates a Lightning invoice for base + tip and registers the split.
func IssueInvoice(svc invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoice service unavailable"))
			return
		}

		var body issueInvoiceRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		split, err := svc.Issue(r.Context(), invoices.IssueInput{
			BaseAmount:      body.BaseAmount,
			TipAmount:       body.TipAmount,
			TipRecipient:    body.TipRecipient,
			DisplayCurrency: body.DisplayCurrency,
			Memo:            validators.SanitizeMemo(body.Memo, maxMemoLen),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newSplitResponse(split))
	}
}
