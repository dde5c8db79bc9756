package stealth

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"amazon-scraper/internal/browser"
	"amazon-scraper/internal/config"
)

// ErrClickFailed is returned when both the trusted click and the script
// fallback fail. The element was located; the caller decides what to do.
var ErrClickFailed = errors.New("click failed")

// Interactor drives the page the way a person would: incremental smooth
// scrolling with reading pauses, occasional scroll-backs, and centered
// clicks with a script fallback.
type Interactor struct {
	cfg    config.ScrollConfig
	rng    *rand.Rand
	sleep  func(ctx context.Context, d time.Duration) error
	logger zerolog.Logger
}

// NewInteractor creates an interaction driver
func NewInteractor(cfg config.ScrollConfig, rng *rand.Rand, logger zerolog.Logger) *Interactor {
	return &Interactor{
		cfg:    cfg,
		rng:    rng,
		sleep:  sleepCtx,
		logger: logger.With().Str("component", "interactor").Logger(),
	}
}

// RandomWait sleeps for a random duration between min and max seconds
func (in *Interactor) RandomWait(ctx context.Context, minSec, maxSec float64, reason string) error {
	wait := minSec + in.rng.Float64()*(maxSec-minSec)
	d := time.Duration(wait * float64(time.Second))
	if reason != "" {
		in.logger.Debug().Dur("wait", d).Str("reason", reason).Msg("Waiting")
	}
	return in.sleep(ctx, d)
}

// ScrollAndLocate scrolls down the page in human-like increments while
// looking for the target selector. Page height is re-read every tick
// because reviews pages lazy-load content as they scroll. Returns the
// element once it is present and inside the viewport, or nil when the
// bottom is reached without finding it. An empty selector scrolls to
// the bottom unconditionally.
func (in *Interactor) ScrollAndLocate(ctx context.Context, sess browser.Session, targetSelector string) (browser.Element, error) {
	in.logger.Debug().Str("target", targetSelector).Msg("Starting human-like scrolling")

	totalHeight, err := in.pageHeight(sess)
	if err != nil {
		return nil, err
	}
	viewportHeight, err := sess.EvalNumber(`window.innerHeight`)
	if err != nil {
		return nil, fmt.Errorf("failed to read viewport height: %w", err)
	}

	pos := 0
	ticks := 0

	for float64(pos) < totalHeight-viewportHeight {
		ticks++

		step := in.cfg.StepMinPx + in.rng.Intn(in.cfg.StepMaxPx-in.cfg.StepMinPx+1)
		pos += step

		if err := sess.Eval(fmt.Sprintf(`window.scrollTo({top: %d, behavior: 'smooth'})`, pos)); err != nil {
			return nil, err
		}

		if err := in.RandomWait(ctx, in.cfg.PauseMinSec, in.cfg.PauseMaxSec, ""); err != nil {
			return nil, err
		}

		progress := int(float64(pos) / totalHeight * 100)
		if progress > 100 {
			progress = 100
		}
		in.logger.Debug().
			Int("tick", ticks).
			Int("positionPx", pos).
			Int("progressPct", progress).
			Msg("Scrolled")

		if targetSelector != "" {
			el, err := in.visibleMatch(sess, targetSelector)
			if err != nil {
				return nil, err
			}
			if el != nil {
				in.logger.Info().
					Int("ticks", ticks).
					Str("target", targetSelector).
					Msg("Target found in viewport")
				return el, nil
			}
		}

		// Occasional tiny scroll-back, like a human re-reading
		if in.rng.Float64() < in.cfg.ScrollBackChance {
			back := 30 + in.rng.Intn(51)
			pos -= back
			if pos < 0 {
				pos = 0
			}
			if err := sess.Eval(fmt.Sprintf(`window.scrollTo(0, %d)`, pos)); err != nil {
				return nil, err
			}
			if err := in.sleep(ctx, 300*time.Millisecond); err != nil {
				return nil, err
			}
		}

		// Lazy-loading may have grown the page
		totalHeight, err = in.pageHeight(sess)
		if err != nil {
			return nil, err
		}
	}

	in.logger.Debug().Int("ticks", ticks).Msg("Reached bottom of page")
	return nil, nil
}

// ClickTarget centers the element, pauses briefly, and clicks it. A
// failed trusted click falls back to a script click; if both fail the
// error wraps ErrClickFailed.
func (in *Interactor) ClickTarget(ctx context.Context, el browser.Element) error {
	if err := el.ScrollIntoCenter(); err != nil {
		in.logger.Debug().Err(err).Msg("Failed to center element, clicking anyway")
	}

	if err := in.RandomWait(ctx, 0.5, 1.5, "before click"); err != nil {
		return err
	}

	if err := el.Click(); err != nil {
		in.logger.Warn().Err(err).Msg("Click failed, trying script click")
		if err := el.ClickViaScript(); err != nil {
			return fmt.Errorf("%w: %v", ErrClickFailed, err)
		}
	}
	return nil
}

// visibleMatch returns the first match that is visible and in viewport
func (in *Interactor) visibleMatch(sess browser.Session, selector string) (browser.Element, error) {
	els, err := sess.Elements(selector)
	if err != nil {
		return nil, err
	}
	for _, el := range els {
		visible, err := el.Visible()
		if err != nil || !visible {
			continue
		}
		inView, err := el.InViewport()
		if err != nil || !inView {
			continue
		}
		return el, nil
	}
	return nil, nil
}

func (in *Interactor) pageHeight(sess browser.Session) (float64, error) {
	h, err := sess.EvalNumber(`Math.max(document.body.scrollHeight, document.documentElement.scrollHeight)`)
	if err != nil {
		return 0, fmt.Errorf("failed to read page height: %w", err)
	}
	return h, nil
}
