package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_InitialState(t *testing.T) {
	b := NewBreaker(3, time.Minute)
	assert.True(t, b.Allow())
	assert.False(t, b.IsOpen())
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	assert.False(t, b.IsOpen())

	b.RecordFailure()
	assert.True(t, b.IsOpen())
	assert.False(t, b.Allow())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()

	b.RecordFailure()
	b.RecordFailure()
	assert.False(t, b.IsOpen())
}

func TestBreaker_HalfOpenAfterCooldown(t *testing.T) {
	b := NewBreaker(1, 10*time.Millisecond)

	b.RecordFailure()
	assert.False(t, b.Allow())

	time.Sleep(20 * time.Millisecond)
	assert.True(t, b.Allow())

	// A failure in half-open reopens immediately.
	b.RecordFailure()
	assert.True(t, b.IsOpen())
}

func TestBreaker_Reset(t *testing.T) {
	b := NewBreaker(1, time.Minute)
	b.RecordFailure()
	assert.True(t, b.IsOpen())

	b.Reset()
	assert.True(t, b.Allow())
}
