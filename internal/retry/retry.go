// Package retry retries idempotent operations with exponential backoff.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Policy controls how often and how patiently an operation is retried.
type Policy struct {
	Attempts int           // total tries, at least 1
	Initial  time.Duration // wait after the first failure
	Max      time.Duration // cap on a single wait
	Jitter   float64       // fraction of each wait randomized, 0..1
}

// Default suits opening a stored object or connecting to a database.
var Default = Policy{
	Attempts: 3,
	Initial:  100 * time.Millisecond,
	Max:      2 * time.Second,
	Jitter:   0.1,
}

type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }

// Permanent marks err so Do returns it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanent{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanent
	return errors.As(err, &p)
}

// Do calls fn until it succeeds, returns a permanent error, ctx ends, or
// the policy runs out of attempts. Permanent errors are returned unwrapped.
func Do[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	wait := p.Initial
	var err error
	for attempt := 1; ; attempt++ {
		var v T
		v, err = fn(ctx)
		if err == nil {
			return v, nil
		}
		var perm permanent
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		if attempt >= attempts {
			return zero, err
		}

		d := wait
		if p.Jitter > 0 {
			d += time.Duration(float64(d) * p.Jitter * (rand.Float64()*2 - 1))
		}
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, ctx.Err()
		case <-t.C:
		}

		wait *= 2
		if p.Max > 0 && wait > p.Max {
			wait = p.Max
		}
	}
}
