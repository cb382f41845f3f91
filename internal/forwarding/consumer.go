package forwarding

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	pkgerrors "github.com/angelmondragon/tipsplit-backend/pkg/errors"
	"github.com/angelmondragon/tipsplit-backend/pkg/logger"
)

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Consumer feeds settlement notifications from Pub/Sub into the orchestrator.
type Consumer struct {
	handler      Handler
	subscription receiver
	logg         *logger.Logger
}

// NewConsumer builds a settlement consumer.
func NewConsumer(handler Handler, subscription receiver, logg *logger.Logger) (*Consumer, error) {
	if handler == nil {
		return nil, fmt.Errorf("settlement handler required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("settlement subscription required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{handler: handler, subscription: subscription, logg: logg}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	logCtx := c.logg.WithField(ctx, "message_id", msg.ID)

	var settlement Settlement
	if err := json.Unmarshal(msg.Data, &settlement); err != nil {
		c.logg.Error(logCtx, "failed to decode settlement", err)
		return processResult{ack: true}
	}
	if settlement.PaymentHash == "" {
		if hash := msg.Attributes["payment_hash"]; hash != "" {
			settlement.PaymentHash = hash
		}
	}

	result, err := c.handler.HandleSettlement(ctx, settlement)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			c.logg.Warn(logCtx, "dropping invalid settlement: "+err.Error())
			return processResult{ack: true}
		}
		c.logg.Error(logCtx, "settlement handling failed; redelivering", err)
		return processResult{nack: true}
	}

	c.logg.Info(c.logg.WithFields(logCtx, map[string]any{
		"payment_hash": result.PaymentHash,
		"outcome":      result.Outcome,
		"status":       result.Status,
	}), "settlement processed")
	return processResult{ack: true}
}
