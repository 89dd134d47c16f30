package retrieval

import (
	"context"
	"time"
)

// Throttle delays successive retrievals, typically to respect rate limits on
// the embedding endpoint.
type Throttle interface {
	// Wait blocks until the next retrieval may proceed or ctx is done.
	Wait(ctx context.Context) error
}

// FixedDelay waits a constant duration on every call.
type FixedDelay struct {
	Delay time.Duration
}

func (f FixedDelay) Wait(ctx context.Context) error {
	if f.Delay <= 0 {
		return nil
	}
	timer := time.NewTimer(f.Delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NoThrottle never waits.
type NoThrottle struct{}

func (NoThrottle) Wait(context.Context) error { return nil }
