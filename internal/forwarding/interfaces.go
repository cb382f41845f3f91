package forwarding

import (
	"context"
	"time"

	"github.com/angelmondragon/tipsplit-backend/pkg/db/models"
	"github.com/angelmondragon/tipsplit-backend/pkg/enums"
	"github.com/angelmondragon/tipsplit-backend/pkg/lightning"
)

// PaymentNetwork executes outbound transfers. Amounts are in the smallest unit.
type PaymentNetwork interface {
	SendBaseTransfer(ctx context.Context, destination string, amount int64) (string, error)
	SendTipTransfer(ctx context.Context, address string, amount int64, memo string) (string, error)
}

// TransferResolver is implemented by networks that can split a transfer into
// resolving an invoice and paying it, so retries can pay the same invoice.
type TransferResolver interface {
	ResolvePayment(ctx context.Context, destination string, amount int64, comment string) (lightning.PaymentRequest, error)
	PayRequest(ctx context.Context, req lightning.PaymentRequest) (string, error)
}

// splitStore is the hybrid store surface the orchestrator relies on.
type splitStore interface {
	Get(ctx context.Context, paymentHash string) (*models.PaymentSplit, error)
	UpdateStatus(ctx context.Context, paymentHash string, expected, next enums.SplitStatus, processedAt *time.Time) (bool, error)
	AppendEvent(ctx context.Context, event *models.PaymentEvent) error
}

// Handler processes settlement notifications.
type Handler interface {
	HandleSettlement(ctx context.Context, settlement Settlement) (Result, error)
}
