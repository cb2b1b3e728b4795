package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream down")

func TestClosedPassesThrough(t *testing.T) {
	cb := New(DefaultConfig("test"))

	err := cb.Execute(func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, uint32(1), cb.Counts().TotalSuccesses)
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	cb := New(Config{Name: "test", FailureThreshold: 3})

	for i := 0; i < 3; i++ {
		err := cb.Execute(func() error { return errUpstream })
		assert.ErrorIs(t, err, errUpstream)
	}
	assert.Equal(t, StateOpen, cb.State())

	// Rejected without running fn.
	ran := false
	err := cb.Execute(func() error { ran = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, ran)
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	cb := New(Config{Name: "test", FailureThreshold: 3})

	cb.Execute(func() error { return errUpstream })
	cb.Execute(func() error { return errUpstream })
	cb.Execute(func() error { return nil })
	cb.Execute(func() error { return errUpstream })

	assert.Equal(t, StateClosed, cb.State())
}

func TestHalfOpenRecovery(t *testing.T) {
	cb := New(Config{Name: "test", FailureThreshold: 1, Cooldown: 10 * time.Millisecond})

	require.Error(t, cb.Execute(func() error { return errUpstream }))
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())

	// One probe success closes the breaker again.
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	cb := New(Config{Name: "test", FailureThreshold: 1, Cooldown: 10 * time.Millisecond})

	require.Error(t, cb.Execute(func() error { return errUpstream }))
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	require.Error(t, cb.Execute(func() error { return errUpstream }))
	assert.Equal(t, StateOpen, cb.State())
}
