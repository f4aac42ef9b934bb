package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := New("test", Config{FailureThreshold: 3, ResetTimeout: time.Minute})
	for i := 0; i < 2; i++ {
		b.RecordFailure()
		assert.Equal(t, StateClosed, b.State())
	}
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrBreakerOpen)
}

func TestBreaker_HalfOpenAfterResetTimeout(t *testing.T) {
	b := New("test", Config{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond})
	b.RecordFailure()
	require.Equal(t, StateOpen, b.State())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, b.State())
	require.NoError(t, b.Allow())
}

func TestBreaker_SuccessInHalfOpenCloses(t *testing.T) {
	b := New("test", Config{FailureThreshold: 1, ResetTimeout: time.Millisecond})
	b.RecordFailure()
	time.Sleep(5 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())
	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_FailureInHalfOpenReopens(t *testing.T) {
	b := New("test", Config{FailureThreshold: 5, ResetTimeout: time.Millisecond})
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	time.Sleep(5 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_Do_RejectsWhenOpen(t *testing.T) {
	b := New("test", Config{FailureThreshold: 1, ResetTimeout: time.Minute})
	b.RecordFailure()
	called := false
	err := b.Do(context.Background(), nil, func(context.Context) error {
		called = true
		return nil
	})
	assert.False(t, called)
	assert.ErrorIs(t, err, ErrBreakerOpen)
}

func TestLLMShouldTrip_ExcludesRateLimit(t *testing.T) {
	rle := &RateLimitError{Err: errors.New("429")}
	assert.False(t, LLMShouldTrip(rle))
	assert.True(t, LLMShouldTrip(errors.New("boom")))
}

func TestRegistry_GetOrCreateReturnsSameInstance(t *testing.T) {
	r := NewRegistry()
	a := r.GetOrCreate(LLMBreakerName, Config{})
	b := r.GetOrCreate(LLMBreakerName, Config{FailureThreshold: 99})
	assert.Same(t, a, b)
}
