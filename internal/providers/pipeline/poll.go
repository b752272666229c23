package pipeline

import (
	"context"
	"fmt"
	"time"
)

// WaitForResult polls the adapter until the provider job finishes, the
// timeout elapses or the context is cancelled.
func WaitForResult(ctx context.Context, adapter Adapter, providerJobID string, interval, timeout time.Duration) (*PollResult, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		result, err := adapter.Poll(ctx, providerJobID)
		if err != nil {
			return nil, err
		}
		if result.Status.Done() {
			return result, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("pipeline: wait for %s: %w", providerJobID, ctx.Err())
		case <-ticker.C:
		}
	}
}
