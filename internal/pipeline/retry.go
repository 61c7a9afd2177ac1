package pipeline

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/dgallion1/prdbuilder/internal/llm"
)

// MaxRetries is the number of provider calls made for one generation.
const MaxRetries = 3

const maxBackoff = 30 * time.Second

// Backoff returns the wait before retry attempt n (0-indexed): 1s, 2s, 4s...
// capped at 30s, plus up to 50% jitter.
func Backoff(attempt int) time.Duration {
	base := min(time.Duration(1<<uint(attempt))*time.Second, maxBackoff)
	return base + time.Duration(rand.Int64N(int64(base)/2))
}

// shouldRetry reports whether a failed attempt may be repeated. Once any
// text has reached the client a retry would duplicate it.
func shouldRetry(err error, attempt int, gotDelta bool) bool {
	return err != nil && !gotDelta && attempt < MaxRetries-1 && llm.IsRetryable(err)
}

// sleep waits for d or until ctx ends, returning ctx's error in that case.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
