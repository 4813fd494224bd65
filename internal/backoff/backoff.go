// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backoff

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"
)

// ErrExhausted is returned once the attempt count reaches the policy's
// retry budget. Further retries are refused until Reset.
var ErrExhausted = errors.New("backoff: retries exhausted")

// =============================================================================
// POLICY
// =============================================================================

// Policy holds the immutable parameters of a backoff schedule.
type Policy struct {
	// BaseDelay is the delay for attempt 0.
	BaseDelay time.Duration

	// Multiplier grows the delay per attempt: base × multiplier^attempt.
	Multiplier float64

	// MaxRetries is the number of attempts allowed before exhaustion.
	// Zero means unlimited.
	MaxRetries int
}

// RequestPolicy returns the policy for generic backend request retries.
func RequestPolicy() Policy {
	return Policy{
		BaseDelay:  500 * time.Millisecond,
		Multiplier: 2,
		MaxRetries: 3,
	}
}

// StreamPolicy returns the policy for stream reconnection. Streams get
// more attempts with a gentler growth curve since a dropped stream is
// usually transient.
func StreamPolicy() Policy {
	return Policy{
		BaseDelay:  time.Second,
		Multiplier: 1.5,
		MaxRetries: 5,
	}
}

// Delay computes the delay for a given attempt number without any
// controller state. Exposed for tests and for callers that manage their
// own attempt counters.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return p.BaseDelay
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt)))
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller tracks the attempt count for one retry loop. Each consumer
// owns its own Controller; sharing one across loops would race resets.
type Controller struct {
	mu      sync.Mutex
	policy  Policy
	attempt int
}

// NewController creates a controller for the given policy.
func NewController(p Policy) *Controller {
	return &Controller{policy: p}
}

// NextDelay returns the delay before the next attempt and advances the
// attempt counter. Returns ErrExhausted once the retry budget is spent.
func (c *Controller) NextDelay() (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.policy.MaxRetries > 0 && c.attempt >= c.policy.MaxRetries {
		return 0, ErrExhausted
	}

	delay := c.policy.Delay(c.attempt)
	c.attempt++
	return delay, nil
}

// Attempts returns the number of attempts consumed since the last reset.
func (c *Controller) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt
}

// Exhausted reports whether the retry budget is spent.
func (c *Controller) Exhausted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.policy.MaxRetries > 0 && c.attempt >= c.policy.MaxRetries
}

// Reset zeroes the attempt counter. Call exactly once per successful
// operation.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempt = 0
}

// Wait computes the next delay and sleeps it out, honoring context
// cancellation. Returns ErrExhausted without sleeping when the budget is
// spent.
func (c *Controller) Wait(ctx context.Context) error {
	delay, err := c.NextDelay()
	if err != nil {
		return err
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
