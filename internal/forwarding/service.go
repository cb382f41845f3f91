package forwarding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/angelmondragon/tipsplit-backend/pkg/db/models"
	"github.com/angelmondragon/tipsplit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tipsplit-backend/pkg/errors"
	"github.com/angelmondragon/tipsplit-backend/pkg/lightning"
	"github.com/angelmondragon/tipsplit-backend/pkg/logger"
	"github.com/angelmondragon/tipsplit-backend/pkg/metrics"
)

const (
	legBase = "base"
	legTip  = "tip"
)

// Settlement is an inbound "payment settled" notification. Delivery is at-least-once.
type Settlement struct {
	PaymentHash string `json:"payment_hash"`
	Amount      int64  `json:"amount"`
}

// Outcome summarizes what a handled settlement or tip retry did.
type Outcome string

const (
	OutcomeCompleted          Outcome = "completed"
	OutcomePartiallyCompleted Outcome = "partially_completed"
	OutcomeFailed             Outcome = "failed"
	OutcomeDuplicate          Outcome = "duplicate"
	OutcomeUnderpaid          Outcome = "underpaid"
	OutcomeLost               Outcome = "lost_race"
	// OutcomeInterrupted leaves the split claimed: shutdown began before the
	// base leg succeeded and nothing was finalized.
	OutcomeInterrupted Outcome = "interrupted"
)

// Result reports the final state reached for a payment.
type Result struct {
	PaymentHash    string            `json:"payment_hash"`
	Outcome        Outcome           `json:"outcome"`
	Status         enums.SplitStatus `json:"status"`
	BaseTransferID string            `json:"base_transfer_id,omitempty"`
	TipTransferID  string            `json:"tip_transfer_id,omitempty"`
}

// ServiceParams configure the forwarding orchestrator.
type ServiceParams struct {
	Store               splitStore
	Network             PaymentNetwork
	MerchantDestination string
	Policy              RetryPolicy
	Logger              *logger.Logger
	Metrics             *metrics.ForwardingMetrics
	Clock               func() time.Time
	Sleep               func(ctx context.Context, d time.Duration) error
}

// Service claims settled splits and forwards the base and tip legs. The durable
// compare-and-swap claim is its only mutual exclusion.
type Service struct {
	store       splitStore
	network     PaymentNetwork
	destination string
	policy      RetryPolicy
	logg        *logger.Logger
	metrics     *metrics.ForwardingMetrics
	now         func() time.Time
	sleep       sleepFunc
}

// NewService builds the orchestrator.
func NewService(params ServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("split store required")
	}
	if params.Network == nil {
		return nil, fmt.Errorf("payment network required")
	}
	if strings.TrimSpace(params.MerchantDestination) == "" {
		return nil, fmt.Errorf("merchant destination required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	wait := sleepFunc(params.Sleep)
	if wait == nil {
		wait = sleep
	}
	return &Service{
		store:       params.Store,
		network:     params.Network,
		destination: strings.TrimSpace(params.MerchantDestination),
		policy:      params.Policy.normalized(),
		logg:        params.Logger,
		metrics:     params.Metrics,
		now:         clock,
		sleep:       wait,
	}, nil
}

// HandleSettlement claims the split and runs both legs. Duplicate or unknown
// notifications are not errors; they return OutcomeDuplicate. Only durable store
// failures before the claim are returned, so the caller can redeliver.
func (s *Service) HandleSettlement(ctx context.Context, settlement Settlement) (Result, error) {
	hash := strings.TrimSpace(settlement.PaymentHash)
	if hash == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "settlement payment hash is required")
	}
	ctx = s.logg.WithPaymentID(ctx, hash)
	ctx = s.logg.WithField(ctx, "settled_amount", settlement.Amount)

	split, err := s.store.Get(ctx, hash)
	if err != nil {
		return Result{}, err
	}
	if split == nil || split.Status != enums.SplitStatusPending {
		return s.skipDuplicate(ctx, hash, split)
	}

	claimedAt := s.now().UTC()
	claimed, err := s.store.UpdateStatus(ctx, hash, enums.SplitStatusPending, enums.SplitStatusClaimed, &claimedAt)
	if err != nil {
		return Result{}, err
	}
	if !claimed {
		return s.skipDuplicate(ctx, hash, split)
	}

	// From here on the claim is owned; state writes must land even if ctx is canceled.
	persistCtx := context.WithoutCancel(ctx)
	s.record(persistCtx, hash, enums.PaymentEventClaimAttempt, enums.PaymentEventStatusOK, map[string]any{
		"from": enums.SplitStatusPending,
		"to":   enums.SplitStatusClaimed,
	})

	receivedData := map[string]any{
		"settled_amount":  settlement.Amount,
		"expected_amount": split.TotalAmount,
	}
	if settlement.Amount < split.TotalAmount {
		s.record(persistCtx, hash, enums.PaymentEventReceived, enums.PaymentEventStatusError, receivedData)
		s.logg.Warn(ctx, "settled amount below split total; no transfers attempted")
		result := s.finalize(persistCtx, split, enums.SplitStatusClaimed, enums.SplitStatusFailed, Result{PaymentHash: hash})
		if result.Outcome == OutcomeFailed {
			result.Outcome = OutcomeUnderpaid
		}
		s.metrics.IncSettlement(string(result.Outcome))
		return result, nil
	}
	if err := s.appendEvent(persistCtx, hash, enums.PaymentEventReceived, enums.PaymentEventStatusOK, receivedData); err != nil {
		// Nothing has moved yet; the split stays claimed and the expiry sweep surfaces it.
		s.logg.Error(ctx, "failed to record received event; aborting before transfers", err)
		return Result{}, err
	}

	result := Result{PaymentHash: hash}
	baseID, baseErr := s.runBaseLeg(ctx, persistCtx, split)
	if errors.Is(baseErr, errInterrupted) {
		s.record(persistCtx, hash, enums.PaymentEventFinalized, enums.PaymentEventStatusSkipped, map[string]any{
			"reason": "interrupted",
			"status": enums.SplitStatusClaimed,
		})
		s.logg.Warn(ctx, "shutdown interrupted base leg; split left claimed")
		s.metrics.IncSettlement(string(OutcomeInterrupted))
		return Result{PaymentHash: hash, Outcome: OutcomeInterrupted, Status: enums.SplitStatusClaimed}, nil
	}
	if baseErr != nil {
		result = s.finalize(persistCtx, split, enums.SplitStatusClaimed, enums.SplitStatusFailed, result)
		s.metrics.IncSettlement(string(result.Outcome))
		return result, nil
	}
	result.BaseTransferID = baseID

	final := enums.SplitStatusCompleted
	if split.HasTip() {
		tipID, tipErr := s.runTipLeg(ctx, persistCtx, split)
		if tipErr != nil {
			final = enums.SplitStatusPartiallyCompleted
		} else {
			result.TipTransferID = tipID
		}
	} else {
		s.record(persistCtx, hash, enums.PaymentEventTipTransfer, enums.PaymentEventStatusSkipped, map[string]any{
			"reason": "no tip",
		})
	}

	result = s.finalize(persistCtx, split, enums.SplitStatusClaimed, final, result)
	s.metrics.IncSettlement(string(result.Outcome))
	return result, nil
}

// RetryTip re-runs only the tip leg of a partially completed split.
func (s *Service) RetryTip(ctx context.Context, paymentHash string) (Result, error) {
	hash := strings.TrimSpace(paymentHash)
	if hash == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "payment hash is required")
	}
	ctx = s.logg.WithPaymentID(ctx, hash)

	split, err := s.store.Get(ctx, hash)
	if err != nil {
		return Result{}, err
	}
	if split == nil {
		return Result{}, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("payment %s not found", hash))
	}
	if split.Status != enums.SplitStatusPartiallyCompleted {
		return Result{}, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("tip retry requires status %s, payment is %s", enums.SplitStatusPartiallyCompleted, split.Status))
	}

	locked, err := s.store.UpdateStatus(ctx, hash, enums.SplitStatusPartiallyCompleted, enums.SplitStatusRetryingTip, nil)
	if err != nil {
		return Result{}, err
	}
	if !locked {
		return Result{}, pkgerrors.New(pkgerrors.CodeStateConflict, "tip retry already in progress or status changed")
	}

	persistCtx := context.WithoutCancel(ctx)
	s.record(persistCtx, hash, enums.PaymentEventTipRetry, enums.PaymentEventStatusOK, map[string]any{
		"from": enums.SplitStatusPartiallyCompleted,
		"to":   enums.SplitStatusRetryingTip,
	})

	result := Result{PaymentHash: hash}
	final := enums.SplitStatusCompleted
	tipID, tipErr := s.runTipLeg(ctx, persistCtx, split)
	if tipErr != nil {
		final = enums.SplitStatusPartiallyCompleted
	} else {
		result.TipTransferID = tipID
	}
	return s.finalize(persistCtx, split, enums.SplitStatusRetryingTip, final, result), nil
}

func (s *Service) skipDuplicate(ctx context.Context, hash string, split *models.PaymentSplit) (Result, error) {
	data := map[string]any{"reason": "unknown_payment"}
	result := Result{PaymentHash: hash, Outcome: OutcomeDuplicate}
	if split != nil {
		data = map[string]any{"reason": "already_claimed", "current_status": split.Status}
		result.Status = split.Status
	}
	s.record(ctx, hash, enums.PaymentEventClaimAttempt, enums.PaymentEventStatusSkipped, data)
	s.logg.Info(s.logg.WithFields(ctx, data), "duplicate settlement dropped")
	s.metrics.IncSettlement(string(OutcomeDuplicate))
	return result, nil
}

func (s *Service) runBaseLeg(ctx, persistCtx context.Context, split *models.PaymentSplit) (string, error) {
	return s.runLeg(ctx, persistCtx, split.PaymentHash, legBase, enums.PaymentEventBaseTransfer, split.BaseAmount, s.destination,
		s.sender(s.destination, split.BaseAmount, "", func(attemptCtx context.Context) (string, error) {
			return s.network.SendBaseTransfer(attemptCtx, s.destination, split.BaseAmount)
		}))
}

func (s *Service) runTipLeg(ctx, persistCtx context.Context, split *models.PaymentSplit) (string, error) {
	recipient := split.Recipient()
	return s.runLeg(ctx, persistCtx, split.PaymentHash, legTip, enums.PaymentEventTipTransfer, split.TipAmount, recipient,
		s.sender(recipient, split.TipAmount, split.Memo, func(attemptCtx context.Context) (string, error) {
			return s.network.SendTipTransfer(attemptCtx, recipient, split.TipAmount, split.Memo)
		}))
}

// sender returns the per-attempt transfer call for one leg. When the network can
// resolve invoices, the invoice is fetched once and every attempt pays that same
// invoice; otherwise each attempt calls send.
func (s *Service) sender(destination string, amount int64, comment string, send func(context.Context) (string, error)) func(context.Context) (string, error) {
	resolver, ok := s.network.(TransferResolver)
	if !ok {
		return send
	}
	var (
		req      lightning.PaymentRequest
		resolved bool
	)
	return func(attemptCtx context.Context) (string, error) {
		if !resolved {
			r, err := resolver.ResolvePayment(attemptCtx, destination, amount, comment)
			if err != nil {
				return "", err
			}
			req, resolved = r, true
		}
		return resolver.PayRequest(attemptCtx, req)
	}
}

// runLeg drives one transfer leg through the retry policy, recording an event per attempt.
func (s *Service) runLeg(ctx, persistCtx context.Context, hash, leg string, eventType enums.PaymentEventType, amount int64, destination string, send func(context.Context) (string, error)) (string, error) {
	start := time.Now()
	var transferID string
	attempts, err := s.policy.run(ctx, s.sleep, func(attemptCtx context.Context, attempt int) error {
		id, err := send(attemptCtx)
		data := map[string]any{
			"attempt":     attempt,
			"amount":      amount,
			"destination": destination,
		}
		if err != nil {
			data["error"] = err.Error()
			if outgoing := pkgerrors.PaymentHashOf(err); outgoing != "" {
				data["outgoing_payment_hash"] = outgoing
			}
			s.record(persistCtx, hash, eventType, enums.PaymentEventStatusError, data)
			s.metrics.IncTransferAttempt(leg, "error")
			return err
		}
		transferID = id
		data["transfer_id"] = id
		s.record(persistCtx, hash, eventType, enums.PaymentEventStatusOK, data)
		s.metrics.IncTransferAttempt(leg, "ok")
		return nil
	})
	s.metrics.ObserveLeg(leg, time.Since(start))

	logCtx := s.logg.WithFields(ctx, map[string]any{"leg": leg, "attempts": attempts})
	if errors.Is(err, errInterrupted) {
		s.logg.Warn(logCtx, "transfer leg interrupted by shutdown")
		return "", err
	}
	if err != nil {
		s.logg.Error(logCtx, "transfer leg exhausted", err)
		return "", err
	}
	s.logg.Info(s.logg.WithField(logCtx, "transfer_id", transferID), "transfer leg completed")
	return transferID, nil
}

// finalize moves the split from expected to final and records the finalized event.
func (s *Service) finalize(ctx context.Context, split *models.PaymentSplit, expected, final enums.SplitStatus, result Result) Result {
	processedAt := s.now().UTC()
	result.Status = final
	result.Outcome = Outcome(final)

	ok, err := s.store.UpdateStatus(ctx, split.PaymentHash, expected, final, &processedAt)
	if err != nil || !ok {
		data := map[string]any{"from": expected, "intended": final}
		if err != nil {
			data["error"] = err.Error()
			s.logg.Error(s.logg.WithFields(ctx, data), "failed to finalize split", err)
		} else {
			data["reason"] = "status changed concurrently"
			s.logg.Warn(s.logg.WithFields(ctx, data), "split status changed before finalize")
		}
		s.record(ctx, split.PaymentHash, enums.PaymentEventFinalized, enums.PaymentEventStatusError, data)
		result.Outcome = OutcomeLost
		if current, getErr := s.store.Get(ctx, split.PaymentHash); getErr == nil && current != nil {
			result.Status = current.Status
		} else {
			result.Status = expected
		}
		return result
	}

	status := enums.PaymentEventStatusOK
	if final != enums.SplitStatusCompleted {
		status = enums.PaymentEventStatusError
	}
	s.record(ctx, split.PaymentHash, enums.PaymentEventFinalized, status, map[string]any{
		"from":           expected,
		"status":         final,
		"base_transfer":  result.BaseTransferID,
		"tip_transfer":   result.TipTransferID,
		"total_amount":   split.TotalAmount,
		"processed_time": processedAt,
	})
	s.metrics.IncFinalized(string(final))
	s.logg.Info(s.logg.WithField(ctx, "status", final), "split finalized")
	return result
}

// record appends an event and logs instead of failing when the write is lost.
func (s *Service) record(ctx context.Context, hash string, eventType enums.PaymentEventType, status enums.PaymentEventStatus, data map[string]any) {
	if err := s.appendEvent(ctx, hash, eventType, status, data); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "event_type", eventType), "failed to append payment event", err)
	}
}

func (s *Service) appendEvent(ctx context.Context, hash string, eventType enums.PaymentEventType, status enums.PaymentEventStatus, data map[string]any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode event data")
	}
	return s.store.AppendEvent(ctx, &models.PaymentEvent{
		PaymentHash: hash,
		EventType:   eventType,
		EventStatus: status,
		EventData:   datatypes.JSON(payload),
		CreatedAt:   s.now().UTC(),
	})
}
