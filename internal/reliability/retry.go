package reliability

import (
	"context"
	"time"
)

const retryPause = 200 * time.Millisecond

// RetryOnce runs op and retries it exactly once when the failure classifies as
// a transient network abort. Any other failure is returned as-is. This is the
// single retry policy applied at every gateway boundary; there is no retry
// loop anywhere else.
func RetryOnce(ctx context.Context, op func(context.Context) error) error {
	err := op(ctx)
	if err == nil || !IsTransientAbort(err) {
		return err
	}

	select {
	case <-ctx.Done():
		return err
	case <-time.After(retryPause):
	}
	return op(ctx)
}
