package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func succeed(t *testing.T, b *Breaker) {
	t.Helper()
	done, ok := b.Allow()
	require.True(t, ok, "breaker unexpectedly open")
	done(true)
}

func fail(t *testing.T, b *Breaker) {
	t.Helper()
	done, ok := b.Allow()
	require.True(t, ok, "breaker unexpectedly open")
	done(false)
}

func checkClosed(t *testing.T, b *Breaker) {
	t.Helper()
	done, ok := b.Allow()
	require.True(t, ok, "breaker open, expected closed")
	done(true)
}

func checkOpen(t *testing.T, b *Breaker) {
	t.Helper()
	_, ok := b.Allow()
	assert.False(t, ok, "breaker closed, expected open")
}

func TestConsecutiveFailuresOpen(t *testing.T) {
	b := newBreaker(BreakerSettings{
		Name:     "test",
		Type:     ConsecutiveFailures,
		Failures: 3,
	})

	fail(t, b)
	fail(t, b)
	fail(t, b)
	checkOpen(t, b)
}

func TestConsecutiveFailuresResetOnSuccess(t *testing.T) {
	b := newBreaker(BreakerSettings{
		Name:     "test",
		Type:     ConsecutiveFailures,
		Failures: 3,
	})

	fail(t, b)
	fail(t, b)
	succeed(t, b)
	fail(t, b)
	fail(t, b)
	checkClosed(t, b)

	fail(t, b)
	fail(t, b)
	fail(t, b)
	checkOpen(t, b)
}

func TestConsecutiveFailuresHalfOpenRecovery(t *testing.T) {
	b := newBreaker(BreakerSettings{
		Name:             "test",
		Type:             ConsecutiveFailures,
		Failures:         2,
		Timeout:          10 * time.Millisecond,
		HalfOpenRequests: 2,
	})

	fail(t, b)
	fail(t, b)
	checkOpen(t, b)

	time.Sleep(30 * time.Millisecond)

	// half-open, the configured number of successes closes it
	succeed(t, b)
	succeed(t, b)
	checkClosed(t, b)
}

func TestConsecutiveFailuresHalfOpenReopens(t *testing.T) {
	b := newBreaker(BreakerSettings{
		Name:             "test",
		Type:             ConsecutiveFailures,
		Failures:         2,
		Timeout:          10 * time.Millisecond,
		HalfOpenRequests: 2,
	})

	fail(t, b)
	fail(t, b)
	checkOpen(t, b)

	time.Sleep(30 * time.Millisecond)

	fail(t, b)
	checkOpen(t, b)
}

func TestRateBreakerOpensAtFailureCount(t *testing.T) {
	b := newBreaker(BreakerSettings{
		Name:     "test",
		Type:     FailureRate,
		Window:   10,
		Failures: 5,
	})

	for i := 0; i < 4; i++ {
		fail(t, b)
	}

	checkClosed(t, b)

	// fifth failure within the window
	fail(t, b)
	checkOpen(t, b)
}

func TestRateBreakerOnlyCountsWindow(t *testing.T) {
	b := newBreaker(BreakerSettings{
		Name:     "test",
		Type:     FailureRate,
		Window:   5,
		Failures: 3,
	})

	// two failures drop out of the window before the count is reached
	fail(t, b)
	fail(t, b)
	for i := 0; i < 5; i++ {
		succeed(t, b)
	}

	fail(t, b)
	fail(t, b)
	checkClosed(t, b)

	fail(t, b)
	checkOpen(t, b)
}

func TestVoidBreakerAlwaysAllows(t *testing.T) {
	b := newBreaker(BreakerSettings{Name: "test"})
	for i := 0; i < 10; i++ {
		fail(t, b)
	}

	checkClosed(t, b)
}

func TestSettingsString(t *testing.T) {
	s := BreakerSettings{
		Type:             FailureRate,
		Name:             "payments",
		Window:           300,
		Failures:         30,
		Timeout:          time.Minute,
		HalfOpenRequests: 15,
		IdleTTL:          time.Hour,
		CommandTimeout:   250 * time.Millisecond,
	}

	assert.Equal(
		t,
		"type=rate,name=payments,window=300,failures=30,timeout=1m0s,"+
			"half-open-requests=15,idle-ttl=1h0m0s,command-timeout=250ms",
		s.String(),
	)

	assert.Equal(t, "disabled", BreakerSettings{Type: BreakerDisabled}.String())
	assert.Equal(t, "none", BreakerSettings{}.String())
}

func TestSettingsMerge(t *testing.T) {
	defaults := BreakerSettings{
		Type:             FailureRate,
		Window:           100,
		Failures:         10,
		Timeout:          time.Minute,
		HalfOpenRequests: 5,
		IdleTTL:          time.Hour,
		CommandTimeout:   time.Second,
	}

	merged := BreakerSettings{Name: "payments", Timeout: 3 * time.Minute}.mergeSettings(defaults)
	assert.Equal(t, BreakerSettings{
		Type:             FailureRate,
		Name:             "payments",
		Window:           100,
		Failures:         10,
		Timeout:          3 * time.Minute,
		HalfOpenRequests: 5,
		IdleTTL:          time.Hour,
		CommandTimeout:   time.Second,
	}, merged)

	// an explicit type does not inherit the failure thresholds
	merged = BreakerSettings{Name: "payments", Type: ConsecutiveFailures}.mergeSettings(defaults)
	assert.Equal(t, 0, merged.Failures)
	assert.Equal(t, 0, merged.Window)
}
