package pubsub

import (
	"context"
	"log/slog"

	"github.com/nfrund/huddle/internal/retry"
)

// SubscribeWithRetry runs subscribe once and, if it fails, keeps retrying in
// the background with backoff until it succeeds or ctx ends. The caller stays
// alive but deaf to that subscription in the meantime. It reports whether the
// first attempt succeeded.
func SubscribeWithRetry(ctx context.Context, backoff *retry.Backoff, name string, subscribe func(ctx context.Context) error) bool {
	err := subscribe(ctx)
	if err == nil {
		return true
	}

	slog.Error("Subscription failed, retrying in background", "subscription", name, "error", err)
	go func() {
		err := backoff.Forever().Retry(ctx, "subscribe "+name, func() error {
			return subscribe(ctx)
		})
		if err != nil {
			slog.Warn("Gave up resubscribing", "subscription", name, "error", err)
			return
		}
		slog.Info("Subscription restored", "subscription", name)
	}()
	return false
}
