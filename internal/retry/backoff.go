// Package retry runs operations with exponential backoff.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// Backoff retries a function with exponentially growing, jittered delays.
type Backoff struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Jitter     bool
}

// NewBackoff returns a Backoff with defaults suited to reconnecting to
// infrastructure: 5 retries from 100ms up to 30s.
func NewBackoff() *Backoff {
	return &Backoff{
		MaxRetries: 5,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// Forever returns a copy of b that never gives up. Only ctx ends it.
func (b *Backoff) Forever() *Backoff {
	c := *b
	c.MaxRetries = -1
	return &c
}

// Retry executes fn until it succeeds, the retries are exhausted or ctx ends.
func (b *Backoff) Retry(ctx context.Context, name string, fn func() error) error {
	var lastErr error
	for attempt := 0; b.MaxRetries < 0 || attempt <= b.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == b.MaxRetries {
			break
		}

		delay := b.Delay(attempt)
		slog.WarnContext(ctx, "Attempt failed, waiting before next attempt",
			"operation", name, "attempt", attempt+1, "delay_ms", delay.Milliseconds(), "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", name, b.MaxRetries+1, lastErr)
}

// Delay returns the wait before the attempt following attempt.
func (b *Backoff) Delay(attempt int) time.Duration {
	delay := float64(b.BaseDelay) * math.Pow(b.Multiplier, float64(attempt))
	if delay > float64(b.MaxDelay) {
		delay = float64(b.MaxDelay)
	}

	if b.Jitter {
		// up to 25% extra
		delay += rand.Float64() * delay * 0.25
	}

	return time.Duration(delay)
}
