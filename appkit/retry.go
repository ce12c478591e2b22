package appkit

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// Retry calls fn until it succeeds, retrying up to attempts extra times with
// exponential backoff starting at interval. The app kit never retries on its
// own; wrap calls with Retry where retries are safe.
func Retry(ctx context.Context, attempts uint64, interval time.Duration, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(attempts, retry.NewExponential(interval))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}
