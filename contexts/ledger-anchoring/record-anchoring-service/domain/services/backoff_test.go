package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelayDoublesAndCaps(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 10, BaseDelay: time.Second, MaxDelay: 10 * time.Second}

	assert.Equal(t, time.Second, policy.Delay(1))
	assert.Equal(t, 2*time.Second, policy.Delay(2))
	assert.Equal(t, 4*time.Second, policy.Delay(3))
	assert.Equal(t, 8*time.Second, policy.Delay(4))
	assert.Equal(t, 10*time.Second, policy.Delay(5))
	assert.Equal(t, 10*time.Second, policy.Delay(400))
}

func TestDelayIsBoundedAndNonDecreasing(t *testing.T) {
	policy := RetryPolicy{BaseDelay: 3 * time.Second, MaxDelay: 7 * time.Minute}
	previous := time.Duration(0)
	for n := 1; n <= 64; n++ {
		delay := policy.Delay(n)
		assert.GreaterOrEqual(t, delay, policy.BaseDelay, "n=%d", n)
		assert.LessOrEqual(t, delay, policy.MaxDelay, "n=%d", n)
		assert.GreaterOrEqual(t, delay, previous, "n=%d", n)
		previous = delay
	}
}

func TestNormalizedAppliesDefaults(t *testing.T) {
	policy := RetryPolicy{}.Normalized()
	assert.Equal(t, 5, policy.MaxRetries)
	assert.Equal(t, 2*time.Second, policy.BaseDelay)
	assert.Equal(t, 5*time.Minute, policy.MaxDelay)

	inverted := RetryPolicy{BaseDelay: time.Minute, MaxDelay: time.Second}.Normalized()
	assert.Equal(t, time.Minute, inverted.MaxDelay)
}

func TestNextEligibleAtAddsBoundedJitter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	policy := RetryPolicy{BaseDelay: 4 * time.Second, MaxDelay: time.Minute, Jitter: RandomJitter(42)}

	for n := 1; n <= 8; n++ {
		delay := policy.Delay(n)
		for i := 0; i < 50; i++ {
			at := policy.NextEligibleAt(now, n)
			assert.False(t, at.Before(now.Add(delay)))
			assert.True(t, at.Before(now.Add(delay+delay/2)))
		}
	}

	noJitter := RetryPolicy{BaseDelay: 4 * time.Second, MaxDelay: time.Minute}
	assert.Equal(t, now.Add(8*time.Second), noJitter.NextEligibleAt(now, 2))
}
