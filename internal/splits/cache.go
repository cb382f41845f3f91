package splits

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/angelmondragon/tipsplit-backend/pkg/db/models"
	"github.com/angelmondragon/tipsplit-backend/pkg/enums"
	"github.com/angelmondragon/tipsplit-backend/pkg/redis"
)

const (
	defaultCacheTTL     = time.Hour
	defaultCacheTimeout = 250 * time.Millisecond
)

// cacheClient is the subset of pkg/redis.Client the hot cache needs.
type cacheClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	SplitKey(paymentHash string) string
}

// Cache stores JSON snapshots of splits under ts:split:<payment_hash>.
type Cache struct {
	client  cacheClient
	ttl     time.Duration
	timeout time.Duration
}

// NewCache builds the hot cache. Zero ttl/timeout fall back to defaults.
func NewCache(client cacheClient, ttl, timeout time.Duration) (*Cache, error) {
	if client == nil {
		return nil, fmt.Errorf("cache client required")
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if timeout <= 0 {
		timeout = defaultCacheTimeout
	}
	return &Cache{client: client, ttl: ttl, timeout: timeout}, nil
}

type snapshot struct {
	PaymentHash     string            `json:"payment_hash"`
	TotalAmount     int64             `json:"total_amount"`
	BaseAmount      int64             `json:"base_amount"`
	TipAmount       int64             `json:"tip_amount"`
	TipRecipient    *string           `json:"tip_recipient,omitempty"`
	DisplayCurrency string            `json:"display_currency"`
	Memo            string            `json:"memo"`
	Bolt11          *string           `json:"bolt11,omitempty"`
	Status          enums.SplitStatus `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	ProcessedAt     *time.Time        `json:"processed_at,omitempty"`
}

func toSnapshot(split *models.PaymentSplit) snapshot {
	return snapshot{
		PaymentHash:     split.PaymentHash,
		TotalAmount:     split.TotalAmount,
		BaseAmount:      split.BaseAmount,
		TipAmount:       split.TipAmount,
		TipRecipient:    split.TipRecipient,
		DisplayCurrency: split.DisplayCurrency,
		Memo:            split.Memo,
		Bolt11:          split.Bolt11,
		Status:          split.Status,
		CreatedAt:       split.CreatedAt,
		UpdatedAt:       split.UpdatedAt,
		ProcessedAt:     split.ProcessedAt,
	}
}

func (s snapshot) model() *models.PaymentSplit {
	return &models.PaymentSplit{
		PaymentHash:     s.PaymentHash,
		TotalAmount:     s.TotalAmount,
		BaseAmount:      s.BaseAmount,
		TipAmount:       s.TipAmount,
		TipRecipient:    s.TipRecipient,
		DisplayCurrency: s.DisplayCurrency,
		Memo:            s.Memo,
		Bolt11:          s.Bolt11,
		Status:          s.Status,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
		ProcessedAt:     s.ProcessedAt,
	}
}

// Key returns the cache key for a payment.
func (c *Cache) Key(paymentHash string) string {
	return c.client.SplitKey(paymentHash)
}

// Get returns (nil, nil) on a miss.
func (c *Cache) Get(ctx context.Context, paymentHash string) (*models.PaymentSplit, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.client.Get(ctx, c.Key(paymentHash))
	if redis.IsNil(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("decode cached split: %w", err)
	}
	return snap.model(), nil
}

// Set overwrites the cached snapshot.
func (c *Cache) Set(ctx context.Context, split *models.PaymentSplit) error {
	payload, err := json.Marshal(toSnapshot(split))
	if err != nil {
		return fmt.Errorf("encode split snapshot: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.client.Set(ctx, c.Key(split.PaymentHash), string(payload), c.ttl); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Fill writes the snapshot only when no entry exists, so a read-through never
// replaces a snapshot written by a newer status update.
func (c *Cache) Fill(ctx context.Context, split *models.PaymentSplit) (bool, error) {
	payload, err := json.Marshal(toSnapshot(split))
	if err != nil {
		return false, fmt.Errorf("encode split snapshot: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ok, err := c.client.SetNX(ctx, c.Key(split.PaymentHash), string(payload), c.ttl)
	if err != nil {
		return false, fmt.Errorf("cache fill: %w", err)
	}
	return ok, nil
}

// Delete evicts the given payments.
func (c *Cache) Delete(ctx context.Context, paymentHashes ...string) error {
	if len(paymentHashes) == 0 {
		return nil
	}
	keys := make([]string, 0, len(paymentHashes))
	for _, hash := range paymentHashes {
		keys = append(keys, c.Key(hash))
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.client.Del(ctx, keys...); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}
