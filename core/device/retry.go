package device

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kilianp07/energysched/core/logger"
	"github.com/kilianp07/energysched/core/model"
)

// RetryPolicy bounds how a busy device is retried.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts"`
	Initial     time.Duration `json:"initial"`
	Max         time.Duration `json:"max"`
	Multiplier  float64       `json:"multiplier"`
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Initial: time.Second, Max: 10 * time.Second, Multiplier: 2}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.Initial
	eb.MaxInterval = p.Max
	eb.Multiplier = p.Multiplier
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)
}

// RetryClient retries commands the device rejected as busy. Every other
// error is returned at once.
type RetryClient struct {
	next   Client
	policy RetryPolicy
	log    logger.Logger
}

// NewRetryClient wraps next with policy.
func NewRetryClient(next Client, policy RetryPolicy, log logger.Logger) *RetryClient {
	return &RetryClient{next: next, policy: policy, log: logger.OrNop(log)}
}

func (c *RetryClient) do(ctx context.Context, op string, f func(context.Context) error) error {
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := f(ctx)
		if err == nil {
			return nil
		}
		if IsBusy(err) {
			c.log.Warnf("%s: device busy (attempt %d/%d)", op, attempt, c.policy.MaxAttempts)
			return err
		}
		return backoff.Permanent(err)
	}, c.policy.backOff(ctx))
}

func (c *RetryClient) Push(ctx context.Context, slots []model.CompiledSlot) error {
	return c.do(ctx, "push", func(ctx context.Context) error { return c.next.Push(ctx, slots) })
}

func (c *RetryClient) Clear(ctx context.Context, slotIDs []int) error {
	return c.do(ctx, "clear", func(ctx context.Context) error { return c.next.Clear(ctx, slotIDs) })
}

func (c *RetryClient) ReadTelemetry(ctx context.Context) (model.Telemetry, error) {
	var t model.Telemetry
	err := c.do(ctx, "read telemetry", func(ctx context.Context) error {
		var err error
		t, err = c.next.ReadTelemetry(ctx)
		return err
	})
	return t, err
}

// SetChargeMode forwards to the wrapped client when it supports modes.
func (c *RetryClient) SetChargeMode(ctx context.Context, mode int) error {
	ms, ok := c.next.(ModeSetter)
	if !ok {
		return ErrModeUnsupported
	}
	return c.do(ctx, "set charge mode", func(ctx context.Context) error { return ms.SetChargeMode(ctx, mode) })
}
