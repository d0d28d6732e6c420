package pubsub

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/huddle/internal/retry"
)

func TestSubscribeWithRetry(t *testing.T) {
	backoff := &retry.Backoff{BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}

	t.Run("first attempt succeeds", func(t *testing.T) {
		var calls atomic.Int32
		ok := SubscribeWithRetry(context.Background(), backoff, "chat", func(context.Context) error {
			calls.Add(1)
			return nil
		})
		assert.True(t, ok)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("recovers in background", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var calls atomic.Int32
		ok := SubscribeWithRetry(ctx, backoff, "chat", func(context.Context) error {
			if calls.Add(1) < 3 {
				return errors.New("backbone down")
			}
			return nil
		})
		assert.False(t, ok)
		require.Eventually(t, func() bool { return calls.Load() == 3 }, time.Second, 5*time.Millisecond)
	})
}
