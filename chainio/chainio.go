// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chainio

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/luxfi/backrun/log"
)

var logger = log.New("component", "chainio")

// retryBudget is the bounded-retry policy of §4.2: "with bounded retries
// (3, 100 ms spacing) before dropping a header".
type retryBudget struct {
	attempts int
	spacing  time.Duration
}

var defaultRetryBudget = retryBudget{attempts: 3, spacing: 100 * time.Millisecond}

// withRetry runs fn up to b.attempts times, sleeping b.spacing between
// attempts, returning the last error if every attempt fails. A
// golang.org/x/time/rate limiter paces retries so a burst of failing
// hashes doesn't hammer the upstream node.
func withRetry(ctx context.Context, b retryBudget, limiter *rate.Limiter, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < b.attempts; attempt++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}
		if err := fn(); err != nil {
			lastErr = err
			select {
			case <-time.After(b.spacing):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		return nil
	}
	return lastErr
}
