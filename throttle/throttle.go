// Package throttle paces batch mutations against shared storage.
//
// Large fan-out operations (relabeling thousands of messages, cascading
// mailbox deletes) are spread over time instead of being issued at full
// speed, so background maintenance never starves interactive traffic.
package throttle

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// Default pacing: at most 100 storage operations per 500ms window.
const (
	DefaultOpsPerWindow = 100
	DefaultWindow       = 500 * time.Millisecond
)

// ErrInvalidRate is returned when a limiter is configured with a
// non-positive rate.
var ErrInvalidRate = errors.New("throttle: ops per window and window must be positive")

// Limiter spreads a batch of n operations over at least
// n/opsPerWindow windows. The first operation proceeds immediately;
// each subsequent operation waits one inter-op interval.
type Limiter struct {
	lim *rate.Limiter
}

// New creates a Limiter allowing opsPerWindow operations per window.
func New(opsPerWindow int, window time.Duration) (*Limiter, error) {
	if opsPerWindow <= 0 || window <= 0 {
		return nil, ErrInvalidRate
	}

	interval := window / time.Duration(opsPerWindow)
	return &Limiter{lim: rate.NewLimiter(rate.Every(interval), 1)}, nil
}

// Wait blocks until the next operation may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.lim.Wait(ctx)
}

// Each runs fn for each index in [0, n), pacing the calls through the
// limiter. The first error stops the batch.
func (l *Limiter) Each(ctx context.Context, n int, fn func(i int) error) error {
	for i := 0; i < n; i++ {
		if err := l.Wait(ctx); err != nil {
			return err
		}
		if err := fn(i); err != nil {
			return err
		}
	}
	return nil
}
