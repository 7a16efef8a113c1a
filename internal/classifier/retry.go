// internal/classifier/retry.go
package classifier

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"time"

	"github.com/signalnine/logsentry/internal/protocol"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// Retrying wraps a Client with bounded exponential backoff.
// Every Classify call starts with a fresh attempt counter.
type Retrying struct {
	Client      Client
	MaxAttempts int
	BaseDelay   time.Duration
	// Jitter adds up to this fraction of each delay, e.g. 0.2 for +20%
	Jitter float64
	// Sleep waits between attempts; tests replace it to avoid real delays
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrying wraps c with the default policy: 3 attempts, 1s base delay
func NewRetrying(c Client) *Retrying {
	return &Retrying{Client: c, MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay}
}

func (r *Retrying) Classify(ctx context.Context, batch []protocol.LogEntry) ([]Item, error) {
	attempts := r.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		items, err := r.Client.Classify(ctx, batch)
		if err == nil {
			return items, nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			return nil, &ExhaustedError{Attempts: attempt + 1, Err: lastErr}
		}

		log.Printf("Classifier call failed on attempt %d/%d: %v", attempt+1, attempts, err)
		if attempt < attempts-1 {
			if err := r.sleep(ctx, r.Backoff(attempt)); err != nil {
				return nil, &ExhaustedError{Attempts: attempt + 1, Err: errors.Join(lastErr, err)}
			}
		}
	}

	return nil, &ExhaustedError{Attempts: attempts, Err: lastErr}
}

// Backoff returns the delay after the given 0-based attempt: base * 2^attempt
func (r *Retrying) Backoff(attempt int) time.Duration {
	base := r.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	d := base << attempt
	if r.Jitter > 0 {
		d += time.Duration(float64(d) * r.Jitter * rand.Float64())
	}
	return d
}

func (r *Retrying) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
