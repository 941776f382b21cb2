// Package retry runs bounded, exponentially spaced attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted is returned when every attempt has been used.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy bounds a retry loop. With WaitFirst the first attempt is also
// delayed, which suits polling for a change made elsewhere.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	WaitFirst bool
}

// CheckoutPolling waits 2s, 2s, 4s, 8s, 16s before its five profile reads.
var CheckoutPolling = Policy{Attempts: 5, BaseDelay: 2 * time.Second, WaitFirst: true}

// BackendWrite retries a write three times, 100ms then 200ms apart.
var BackendWrite = Policy{Attempts: 3, BaseDelay: 100 * time.Millisecond}

// Schedule returns the wait before each attempt.
func (p Policy) Schedule() []time.Duration {
	if p.Attempts <= 0 {
		return nil
	}
	out := make([]time.Duration, p.Attempts)
	if p.WaitFirst {
		out[0] = p.BaseDelay
	}
	for i := 1; i < p.Attempts; i++ {
		out[i] = p.BaseDelay << (i - 1)
	}
	return out
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real-time Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Runner executes policies with a given Sleeper.
type Runner struct {
	Sleep Sleeper
}

func (r Runner) sleeper() Sleeper {
	if r.Sleep == nil {
		return Sleep
	}
	return r.Sleep
}

// Until calls check until it reports true. Errors from check count as a
// failed attempt and do not stop the loop.
func (r Runner) Until(ctx context.Context, p Policy, check func(ctx context.Context) (bool, error)) error {
	var lastErr error
	for i, wait := range p.Schedule() {
		if err := r.sleeper()(ctx, wait); err != nil {
			return err
		}
		ok, err := check(ctx)
		if err != nil {
			lastErr = fmt.Errorf("attempt %d: %w", i+1, err)
			continue
		}
		if ok {
			return nil
		}
	}
	if lastErr != nil {
		return fmt.Errorf("%w: %w", ErrExhausted, lastErr)
	}
	return ErrExhausted
}

// Do calls op until it returns nil or retryable reports false.
// A nil retryable retries every error.
func (r Runner) Do(ctx context.Context, p Policy, retryable func(error) bool, op func(ctx context.Context) error) error {
	var lastErr error
	for i, wait := range p.Schedule() {
		if i > 0 || p.WaitFirst {
			if err := r.sleeper()(ctx, wait); err != nil {
				return err
			}
		}
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if retryable != nil && !retryable(err) {
			return err
		}
	}
	if lastErr == nil {
		return ErrExhausted
	}
	return fmt.Errorf("%w: %w", ErrExhausted, lastErr)
}

// Until runs p with the real-time sleeper.
func Until(ctx context.Context, p Policy, check func(ctx context.Context) (bool, error)) error {
	return Runner{}.Until(ctx, p, check)
}

// Do runs p with the real-time sleeper, retrying every error.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	return Runner{}.Do(ctx, p, nil, op)
}
