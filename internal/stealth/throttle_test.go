package stealth

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives a throttle deterministically: time only advances when
// the throttle sleeps.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newThrottleWithClock(minDelay, maxDelay time.Duration, burst int) (*Throttle, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	th := NewThrottle(minDelay, maxDelay, burst, rand.New(rand.NewSource(1)), zerolog.Nop())
	th.now = func() time.Time { return clock.now }
	th.sleep = func(_ context.Context, d time.Duration) error {
		clock.sleeps = append(clock.sleeps, d)
		clock.now = clock.now.Add(d)
		return nil
	}
	return th, clock
}

func TestWaitDelaysWithinBounds(t *testing.T) {
	th, clock := newThrottleWithClock(2*time.Second, 5*time.Second, 100)

	// First wait starts from a long-idle state; delay is the full target
	require.NoError(t, th.Wait(context.Background()))
	require.Len(t, clock.sleeps, 0, "long-idle first request should not sleep")

	for i := 0; i < 20; i++ {
		prev := len(clock.sleeps)
		require.NoError(t, th.Wait(context.Background()))
		require.Len(t, clock.sleeps, prev+1)
		d := clock.sleeps[prev]
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.LessOrEqual(t, d, 5*time.Second)
	}
}

func TestWaitCountsElapsedTime(t *testing.T) {
	th, clock := newThrottleWithClock(2*time.Second, 2*time.Second, 100)

	require.NoError(t, th.Wait(context.Background()))

	// Half the gap already passed; only the remainder is slept
	clock.now = clock.now.Add(time.Second)
	require.NoError(t, th.Wait(context.Background()))
	require.Len(t, clock.sleeps, 1)
	assert.Equal(t, time.Second, clock.sleeps[0])
}

func TestBurstThresholdRaisesMultiplier(t *testing.T) {
	th, _ := newThrottleWithClock(time.Second, time.Second, 10)

	for i := 0; i < 9; i++ {
		require.NoError(t, th.Wait(context.Background()))
	}
	assert.Equal(t, 1.0, th.Multiplier())

	require.NoError(t, th.Wait(context.Background()))
	assert.Equal(t, 1.5, th.Multiplier())

	// Capped at 3.0 no matter how many bursts accumulate
	for i := 0; i < 100; i++ {
		require.NoError(t, th.Wait(context.Background()))
	}
	assert.Equal(t, 3.0, th.Multiplier())
}

func TestReportSuccessDecaysTowardOne(t *testing.T) {
	th, _ := newThrottleWithClock(time.Second, time.Second, 10)
	th.ReportError(ErrorRateLimit)
	assert.Equal(t, 2.0, th.Multiplier())

	th.ReportSuccess()
	assert.InDelta(t, 1.8, th.Multiplier(), 1e-9)

	for i := 0; i < 100; i++ {
		th.ReportSuccess()
	}
	assert.Equal(t, 1.0, th.Multiplier())
}

func TestReportErrorSeverity(t *testing.T) {
	th, _ := newThrottleWithClock(time.Second, time.Second, 10)

	th.ReportError(ErrorGeneric)
	assert.Equal(t, 1.0, th.Multiplier(), "generic errors do not change pacing")

	th.ReportError(ErrorRateLimit)
	assert.Equal(t, 2.0, th.Multiplier())

	for i := 0; i < 10; i++ {
		th.ReportError(ErrorRateLimit)
	}
	assert.Equal(t, 5.0, th.Multiplier(), "rate limit backoff caps at 5x")

	th.Reset()
	for i := 0; i < 10; i++ {
		th.ReportError(ErrorBlock)
	}
	assert.Equal(t, 10.0, th.Multiplier(), "block backoff caps at 10x")
}

func TestWaitHonorsContextCancellation(t *testing.T) {
	th, _ := newThrottleWithClock(time.Second, time.Second, 10)
	th.sleep = sleepCtx

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, th.Wait(ctx), "long-idle first request does not sleep")
	err := th.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReset(t *testing.T) {
	th, _ := newThrottleWithClock(time.Second, time.Second, 10)
	th.ReportError(ErrorBlock)
	require.Equal(t, 3.0, th.Multiplier())

	th.Reset()
	assert.Equal(t, 1.0, th.Multiplier())
}
