package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("backend down")

func TestCircuitBreakerLifecycle(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("redis", CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute})
	cb.now = func() time.Time { return now }
	fail := func() error { return errBackend }
	ok := func() error { return nil }

	assert.ErrorIs(t, cb.Execute(fail), errBackend)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(fail), errBackend)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	now = now.Add(time.Minute)
	assert.ErrorIs(t, cb.Execute(fail), errBackend, "probe runs once the reset timeout passed")
	assert.Equal(t, StateOpen, cb.State())

	now = now.Add(time.Minute)
	require.NoError(t, cb.Execute(ok))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerSuccessResetsCount(t *testing.T) {
	cb := NewCircuitBreaker("redis", CircuitBreakerConfig{FailureThreshold: 2})
	_ = cb.Execute(func() error { return errBackend })
	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(func() error { return errBackend })
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerIgnoresNonFailures(t *testing.T) {
	errMiss := errors.New("key not found")
	cb := NewCircuitBreaker("redis", CircuitBreakerConfig{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return !errors.Is(err, errMiss) },
	})
	assert.ErrorIs(t, cb.Execute(func() error { return errMiss }), errMiss)
	assert.Equal(t, StateClosed, cb.State())

	def := NewCircuitBreaker("redis", CircuitBreakerConfig{FailureThreshold: 1})
	_ = def.Execute(func() error { return context.Canceled })
	assert.Equal(t, StateClosed, def.State(), "client cancellation says nothing about the backend")
	_ = def.Execute(func() error { return context.DeadlineExceeded })
	assert.Equal(t, StateOpen, def.State())
}

func TestCircuitBreakerStateChanges(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var transitions []string
	cb := NewCircuitBreaker("kafka", CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Second,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, name+":"+from.String()+">"+to.String())
		},
	})
	cb.now = func() time.Time { return now }

	_ = cb.Execute(func() error { return errBackend })
	now = now.Add(time.Second)
	_ = cb.Execute(func() error { return nil })

	assert.Equal(t, []string{
		"kafka:closed>open",
		"kafka:open>half-open",
		"kafka:half-open>closed",
	}, transitions)
}

func TestDo(t *testing.T) {
	cb := NewCircuitBreaker("redis", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})

	n, err := Do(cb, func() (int64, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	_, err = Do(cb, func() (string, error) { return "", errBackend })
	assert.ErrorIs(t, err, errBackend)

	v, err := Do(cb, func() (string, error) { return "never", nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Empty(t, v)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}

func TestRetry(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}

	attempts := 0
	err := Retry(context.Background(), "connect", cfg, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errBackend
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	attempts = 0
	err = Retry(context.Background(), "connect", cfg, func(context.Context) error {
		attempts++
		return errBackend
	})
	assert.ErrorIs(t, err, errBackend)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := Retry(ctx, "connect", RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour}, func(context.Context) error {
		attempts++
		cancel()
		return errBackend
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestBackoffCapped(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Second, MaxDelay: 3 * time.Second}.withDefaults()
	cfg.JitterFraction = 0
	assert.Equal(t, time.Second, backoff(1, cfg))
	assert.Equal(t, 2*time.Second, backoff(2, cfg))
	assert.Equal(t, 3*time.Second, backoff(5, cfg))
}
