// Package redistest provides an in-memory stand-in for pkg/redis.Client.
package redistest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/tipsplit-backend/pkg/redis"
)

// ErrUnavailable is returned by every operation while the fake is down.
var ErrUnavailable = errors.New("redis unavailable")

// Client keeps string values in a map. SetDown simulates an outage.
type Client struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
	down bool
}

func New() *Client {
	return &Client{
		data: make(map[string]string),
		ttls: make(map[string]time.Duration),
	}
}

// SetDown toggles the simulated outage.
func (c *Client) SetDown(down bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.down = down
}

func (c *Client) Ping(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return ErrUnavailable
	}
	return nil
}

func (c *Client) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return "", ErrUnavailable
	}
	v, ok := c.data[key]
	if !ok {
		return "", redis.ErrNil
	}
	return v, nil
}

func (c *Client) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return ErrUnavailable
	}
	c.data[key] = fmt.Sprint(value)
	c.ttls[key] = ttl
	return nil
}

func (c *Client) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return false, ErrUnavailable
	}
	if _, ok := c.data[key]; ok {
		return false, nil
	}
	c.data[key] = fmt.Sprint(value)
	c.ttls[key] = ttl
	return true, nil
}

func (c *Client) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return ErrUnavailable
	}
	for _, key := range keys {
		delete(c.data, key)
		delete(c.ttls, key)
	}
	return nil
}

func (c *Client) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return false, ErrUnavailable
	}
	if v, ok := c.data[key]; !ok || v != expected {
		return false, nil
	}
	delete(c.data, key)
	delete(c.ttls, key)
	return true, nil
}

// Swap overwrites key regardless of the outage flag, as another writer would.
func (c *Client) Swap(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
}

func (c *Client) SplitKey(paymentHash string) string {
	return "ts:split:" + strings.TrimSpace(paymentHash)
}

// Raw returns the stored value regardless of the outage flag.
func (c *Client) Raw(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok
}

// TTL returns the ttl recorded for key.
func (c *Client) TTL(key string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttls[key]
}
