package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	waits []time.Duration
}

func (r *recorder) sleep(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return ctx.Err()
}

func TestScheduleCheckoutPolling(t *testing.T) {
	want := []time.Duration{2 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	assert.Equal(t, want, CheckoutPolling.Schedule())
}

func TestScheduleBackendWrite(t *testing.T) {
	want := []time.Duration{0, 100 * time.Millisecond, 200 * time.Millisecond}
	assert.Equal(t, want, BackendWrite.Schedule())
}

func TestScheduleZeroAttempts(t *testing.T) {
	assert.Empty(t, Policy{}.Schedule())
}

func TestUntilStopsOnSuccess(t *testing.T) {
	rec := &recorder{}
	calls := 0
	err := Runner{Sleep: rec.sleep}.Until(context.Background(), CheckoutPolling, func(context.Context) (bool, error) {
		calls++
		return calls == 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 4 * time.Second}, rec.waits)
}

func TestUntilExhausts(t *testing.T) {
	rec := &recorder{}
	calls := 0
	boom := errors.New("boom")
	err := Runner{Sleep: rec.sleep}.Until(context.Background(), CheckoutPolling, func(context.Context) (bool, error) {
		calls++
		if calls == 5 {
			return false, boom
		}
		return false, nil
	})
	require.ErrorIs(t, err, ErrExhausted)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 5, calls)
	assert.Equal(t, CheckoutPolling.Schedule(), rec.waits)
}

func TestUntilHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Runner{Sleep: Sleep}.Until(ctx, CheckoutPolling, func(context.Context) (bool, error) {
		calls++
		return true, nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	rec := &recorder{}
	calls := 0
	err := Runner{Sleep: rec.sleep}.Do(context.Background(), BackendWrite, nil, func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond}, rec.waits)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("not found")
	calls := 0
	err := Runner{Sleep: (&recorder{}).sleep}.Do(context.Background(), BackendWrite,
		func(err error) bool { return !errors.Is(err, permanent) },
		func(context.Context) error {
			calls++
			return permanent
		})
	require.ErrorIs(t, err, permanent)
	assert.NotErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 1, calls)
}

func TestDoExhausts(t *testing.T) {
	calls := 0
	err := Runner{Sleep: (&recorder{}).sleep}.Do(context.Background(), BackendWrite, nil, func(context.Context) error {
		calls++
		return errors.New("down")
	})
	require.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 3, calls)
}
