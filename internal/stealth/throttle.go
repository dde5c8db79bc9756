package stealth

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// ErrorKind classifies failures for backoff purposes
type ErrorKind string

const (
	ErrorGeneric   ErrorKind = "generic"
	ErrorRateLimit ErrorKind = "rate_limit"
	ErrorBlock     ErrorKind = "block"
)

// Throttle paces navigations with randomized delays and an adaptive
// backoff multiplier. Sustained bursts raise the multiplier, successes
// decay it back toward 1.0, and detected blocks spike it.
type Throttle struct {
	minDelay       time.Duration
	maxDelay       time.Duration
	burstThreshold int

	requestCount int
	lastRequest  time.Time
	multiplier   float64

	rng    *rand.Rand
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	logger zerolog.Logger
}

// NewThrottle creates a throttle with the given pacing bounds
func NewThrottle(minDelay, maxDelay time.Duration, burstThreshold int, rng *rand.Rand, logger zerolog.Logger) *Throttle {
	return &Throttle{
		minDelay:       minDelay,
		maxDelay:       maxDelay,
		burstThreshold: burstThreshold,
		multiplier:     1.0,
		rng:            rng,
		now:            time.Now,
		sleep:          sleepCtx,
		logger:         logger.With().Str("component", "throttle").Logger(),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Wait blocks until enough time has passed since the previous request.
// The target gap is a random delay in [min, max] scaled by the current
// backoff multiplier; time already elapsed counts toward it.
func (t *Throttle) Wait(ctx context.Context) error {
	t.requestCount++

	if t.burstThreshold > 0 && t.requestCount%t.burstThreshold == 0 {
		t.multiplier = minf(t.multiplier*1.5, 3.0)
		t.logger.Info().
			Float64("multiplier", t.multiplier).
			Msg("Burst threshold reached, increasing delay")
	}

	base := t.minDelay + time.Duration(t.rng.Int63n(int64(t.maxDelay-t.minDelay)+1))
	target := time.Duration(float64(base) * t.multiplier)

	elapsed := t.now().Sub(t.lastRequest)
	if elapsed < target {
		wait := target - elapsed
		t.logger.Debug().
			Dur("wait", wait).
			Msg("Throttling before next action")
		if err := t.sleep(ctx, wait); err != nil {
			return err
		}
	}

	t.lastRequest = t.now()
	return nil
}

// ReportSuccess decays the backoff multiplier toward 1.0
func (t *Throttle) ReportSuccess() {
	if t.multiplier > 1.0 {
		t.multiplier = maxf(1.0, t.multiplier*0.9)
	}
}

// ReportError raises the backoff multiplier according to severity.
// Generic errors leave the pacing unchanged.
func (t *Throttle) ReportError(kind ErrorKind) {
	switch kind {
	case ErrorRateLimit:
		t.multiplier = minf(t.multiplier*2.0, 5.0)
		t.logger.Warn().
			Float64("multiplier", t.multiplier).
			Msg("Rate limit reported, backing off")
	case ErrorBlock:
		t.multiplier = minf(t.multiplier*3.0, 10.0)
		t.logger.Warn().
			Float64("multiplier", t.multiplier).
			Msg("Block reported, major backoff")
	}
}

// Reset clears the request count and backoff state
func (t *Throttle) Reset() {
	t.requestCount = 0
	t.multiplier = 1.0
}

// Multiplier returns the current backoff multiplier
func (t *Throttle) Multiplier() float64 {
	return t.multiplier
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
