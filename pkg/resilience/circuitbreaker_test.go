package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var (
	errTransport = errors.New("connection reset")
	errClient    = errors.New("400 bad request")
)

func newTestBreaker(clock *time.Time) *CircuitBreaker {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 2,
		SuccessThreshold: 1,
		RetryTimeout:     time.Minute,
		IsFailure:        func(err error) bool { return errors.Is(err, errTransport) },
	}, nil)
	cb.now = func() time.Time { return *clock }
	return cb
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	clock := time.Now()
	cb := newTestBreaker(&clock)

	assert.ErrorIs(t, cb.Execute(func() error { return errTransport }), errTransport)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.ErrorIs(t, cb.Execute(func() error { return errTransport }), errTransport)
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerIgnoresUnclassifiedErrors(t *testing.T) {
	clock := time.Now()
	cb := newTestBreaker(&clock)

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, cb.Execute(func() error { return errClient }), errClient)
	}
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestBreakerHalfOpenRecovers(t *testing.T) {
	clock := time.Now()
	cb := newTestBreaker(&clock)

	_ = cb.Execute(func() error { return errTransport })
	_ = cb.Execute(func() error { return errTransport })
	assert.Equal(t, StateOpen, cb.GetState())

	clock = clock.Add(2 * time.Minute)
	assert.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
}
