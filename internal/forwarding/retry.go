package forwarding

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/angelmondragon/tipsplit-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/tipsplit-backend/pkg/errors"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 5 * time.Second
	defaultMultiplier     = 2.0
	defaultJitter         = 250 * time.Millisecond
	defaultAttemptTimeout = 15 * time.Second
)

// RetryPolicy bounds how a transfer leg is retried. Backoff grows by Multiplier
// from InitialBackoff up to MaxBackoff, plus up to Jitter of random delay.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Jitter         time.Duration
	AttemptTimeout time.Duration
}

// DefaultRetryPolicy returns the policy used when nothing is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    defaultMaxAttempts,
		InitialBackoff: defaultInitialBackoff,
		MaxBackoff:     defaultMaxBackoff,
		Multiplier:     defaultMultiplier,
		Jitter:         defaultJitter,
		AttemptTimeout: defaultAttemptTimeout,
	}
}

// RetryPolicyFromConfig maps forwarding settings onto a policy.
func RetryPolicyFromConfig(cfg config.ForwardingConfig) RetryPolicy {
	policy := DefaultRetryPolicy()
	policy.MaxAttempts = cfg.MaxAttempts
	policy.InitialBackoff = cfg.InitialBackoff
	policy.MaxBackoff = cfg.MaxBackoff
	policy.Multiplier = cfg.BackoffMultiplier
	policy.Jitter = cfg.BackoffJitter
	policy.AttemptTimeout = cfg.AttemptTimeout
	return policy.normalized()
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.InitialBackoff < 0 {
		p.InitialBackoff = 0
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	if p.Multiplier < 1 {
		p.Multiplier = defaultMultiplier
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = defaultAttemptTimeout
	}
	return p
}

// backoff returns the delay after the given failed attempt (1-based), without jitter.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	delay := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * p.Multiplier)
		if delay >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if delay > p.MaxBackoff {
		return p.MaxBackoff
	}
	return delay
}

// Budget is the longest one leg can take: every attempt timing out, with a
// maximal backoff and jitter between attempts.
func (p RetryPolicy) Budget() time.Duration {
	p = p.normalized()
	total := time.Duration(p.MaxAttempts) * p.AttemptTimeout
	for attempt := 1; attempt < p.MaxAttempts; attempt++ {
		total += p.backoff(attempt) + p.Jitter
	}
	return total
}

func (p RetryPolicy) withJitter(d time.Duration) time.Duration {
	if d <= 0 || p.Jitter <= 0 {
		return d
	}
	return d + time.Duration(rand.Int64N(int64(p.Jitter)))
}

type sleepFunc func(ctx context.Context, d time.Duration) error

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// errInterrupted reports that ctx was canceled before a leg could finish. An
// attempt already on the wire is allowed to complete; no new attempt starts.
var errInterrupted = errors.New("transfer leg interrupted")

// run calls fn until it succeeds, the attempts are exhausted, the error is
// permanent, or ctx is canceled. Attempts run detached from ctx and are bounded
// only by AttemptTimeout, so a shutdown never cuts a payment off mid-flight; a
// timeout counts as a transport error. It returns the number of attempts made
// and the last error, joined with errInterrupted when ctx ended the loop.
func (p RetryPolicy) run(ctx context.Context, wait sleepFunc, fn func(ctx context.Context, attempt int) error) (int, error) {
	p = p.normalized()
	if wait == nil {
		wait = sleep
	}
	detached := context.WithoutCancel(ctx)

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return attempt - 1, interrupted(lastErr, ctx.Err())
		}
		attemptCtx, cancel := context.WithTimeout(detached, p.AttemptTimeout)
		err := fn(attemptCtx, attempt)
		timedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
		cancel()
		if err == nil {
			return attempt, nil
		}
		if timedOut && !errors.Is(err, context.DeadlineExceeded) {
			err = errors.Join(err, context.DeadlineExceeded)
		}
		lastErr = err

		if !isRetryable(err) || attempt == p.MaxAttempts {
			return attempt, lastErr
		}
		if ctx.Err() != nil {
			return attempt, interrupted(lastErr, ctx.Err())
		}
		if err := wait(ctx, p.withJitter(p.backoff(attempt))); err != nil {
			return attempt, interrupted(lastErr, err)
		}
	}
	return p.MaxAttempts, lastErr
}

func interrupted(lastErr, cause error) error {
	if lastErr == nil {
		return fmt.Errorf("%w: %w", errInterrupted, cause)
	}
	return fmt.Errorf("%w: %w: %w", errInterrupted, cause, lastErr)
}
func isRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return pkgerrors.IsRetryable(err)
}
