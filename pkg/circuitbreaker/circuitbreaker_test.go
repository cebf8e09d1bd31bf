package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errUpstream = errors.New("upstream down")

func newTestBreaker() *CircuitBreaker {
	return New(Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          20 * time.Millisecond,
	})
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	cb := newTestBreaker()

	for i := 0; i < 3; i++ {
		err := cb.Execute(func() error { return errUpstream })
		assert.ErrorIs(t, err, errUpstream)
	}
	assert.Equal(t, StateOpen, cb.State())

	err := cb.Execute(func() error {
		t.Fatal("must not run while open")
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
}

func TestBreakerRecoversViaHalfOpen(t *testing.T) {
	cb := newTestBreaker()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errUpstream })
	}
	assert.Equal(t, StateOpen, cb.State())

	time.Sleep(30 * time.Millisecond)

	assert.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	cb := newTestBreaker()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errUpstream })
	}
	time.Sleep(30 * time.Millisecond)

	err := cb.Execute(func() error { return errUpstream })
	assert.ErrorIs(t, err, errUpstream)
	assert.Equal(t, StateOpen, cb.State())
}

func TestBreakerStaysClosedOnSuccess(t *testing.T) {
	cb := newTestBreaker()

	for i := 0; i < 10; i++ {
		assert.NoError(t, cb.Execute(func() error { return nil }))
	}
	assert.Equal(t, StateClosed, cb.State())
}
