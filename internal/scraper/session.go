// Package scraper implements the protected browsing session and the
// review pagination engine built on top of it.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"amazon-scraper/internal/browser"
	"amazon-scraper/internal/detect"
	"amazon-scraper/internal/models"
	"amazon-scraper/internal/stealth"
)

// ErrIdentityExhausted is returned when every retry attempt failed even
// after rotating through the proxy pool.
var ErrIdentityExhausted = errors.New("identity pool exhausted within retry budget")

// BlockedError reports a page the detector classified as blocked
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return "blocked: " + e.Reason
}

// CaptchaError reports an unresolved CAPTCHA challenge
type CaptchaError struct {
	Kind   models.CaptchaKind
	Reason string
}

func (e *CaptchaError) Error() string {
	return fmt.Sprintf("captcha (%s): %s", e.Kind, e.Reason)
}

// SessionFactory launches a browser session bound to one identity. The
// proxy is nil for a direct connection.
type SessionFactory func(fp *stealth.Fingerprint, proxy *stealth.Proxy) (browser.Session, error)

// Pacer paces navigations and reacts to their outcomes. Implemented by
// stealth.Throttle.
type Pacer interface {
	Wait(ctx context.Context) error
	ReportSuccess()
	ReportError(kind stealth.ErrorKind)
}

// Classifier inspects pages for blocks and challenges. Implemented by
// detect.Detector.
type Classifier interface {
	Classify(sess browser.Session) (detect.Verdict, error)
	WaitForResolution(ctx context.Context, sess browser.Session, timeout time.Duration) error
}

// Interactor drives human-like page interaction. Implemented by
// stealth.Interactor.
type Interactor interface {
	ScrollAndLocate(ctx context.Context, sess browser.Session, targetSelector string) (browser.Element, error)
	ClickTarget(ctx context.Context, el browser.Element) error
	RandomWait(ctx context.Context, minSec, maxSec float64, reason string) error
}

// ProtectedSession wraps a browser session with throttling, block and
// CAPTCHA detection, and identity rotation. At most one browser is live
// at a time; rotation tears it down and launches a fresh one on a new
// network egress.
type ProtectedSession struct {
	factory  SessionFactory
	pool     *stealth.ProxyPool
	throttle Pacer
	detector Classifier

	fingerprint *stealth.Fingerprint
	proxy       *stealth.Proxy
	sess        browser.Session

	solveTimeout      time.Duration
	rotateFingerprint bool

	newFingerprint func() *stealth.Fingerprint
	rng            *rand.Rand
	sleep          func(ctx context.Context, d time.Duration) error
	logger         zerolog.Logger
}

// NewProtectedSession creates a session controller. No browser is
// launched until the first navigation.
func NewProtectedSession(
	factory SessionFactory,
	pool *stealth.ProxyPool,
	throttle Pacer,
	detector Classifier,
	fp *stealth.Fingerprint,
	solveTimeout time.Duration,
	rotateFingerprint bool,
	rng *rand.Rand,
	logger zerolog.Logger,
) *ProtectedSession {
	return &ProtectedSession{
		factory:           factory,
		pool:              pool,
		throttle:          throttle,
		detector:          detector,
		fingerprint:       fp,
		solveTimeout:      solveTimeout,
		rotateFingerprint: rotateFingerprint,
		newFingerprint:    func() *stealth.Fingerprint { return stealth.NewFingerprint(0) },
		rng:               rng,
		sleep:             sleepCtx,
		logger:            logger.With().Str("component", "session").Logger(),
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

// Session returns the live browser session, launching one if needed
func (p *ProtectedSession) Session() (browser.Session, error) {
	if err := p.ensureSession(); err != nil {
		return nil, err
	}
	return p.sess, nil
}

// Fingerprint returns the identity currently in use
func (p *ProtectedSession) Fingerprint() *stealth.Fingerprint {
	return p.fingerprint
}

func (p *ProtectedSession) ensureSession() error {
	if p.sess != nil {
		return nil
	}

	if p.proxy == nil {
		p.proxy = p.pool.Next()
	}

	sess, err := p.factory(p.fingerprint, p.proxy)
	if err != nil {
		return fmt.Errorf("failed to create browser session: %w", err)
	}

	if err := sess.InstallOnNewDocument(p.fingerprint.InjectionScript()); err != nil {
		_ = sess.Close()
		return fmt.Errorf("failed to install fingerprint script: %w", err)
	}

	p.sess = sess
	return nil
}

// NavigateWithProtection navigates to a URL with full protection: the
// throttle paces the request, the detector classifies the landing page,
// and a blocked or challenged result rotates identity and retries.
// Exhausting maxRetries returns the last failure wrapped in
// ErrIdentityExhausted rather than panicking.
func (p *ProtectedSession) NavigateWithProtection(ctx context.Context, url string, maxRetries int) error {
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err := p.throttle.Wait(ctx); err != nil {
			return err
		}

		if err := p.ensureSession(); err != nil {
			return err
		}

		p.logger.Info().
			Str("url", url).
			Int("attempt", attempt).
			Int("maxRetries", maxRetries).
			Msg("Navigating")

		if err := p.navigate(url); err != nil {
			p.logger.Warn().Err(err).Msg("Navigation failed")
			p.throttle.ReportError(stealth.ErrorGeneric)
			lastErr = err
			if attempt < maxRetries {
				if err := p.RotateIdentity(ctx, p.rotateFingerprint); err != nil {
					return err
				}
			}
			continue
		}

		verdict, err := p.detector.Classify(p.sess)
		if err != nil {
			return fmt.Errorf("page classification failed: %w", err)
		}

		switch verdict.Status {
		case detect.StatusClean:
			p.throttle.ReportSuccess()
			return nil

		case detect.StatusBlocked:
			p.logger.Warn().Str("reason", verdict.Reason).Msg("Blocked")
			p.throttle.ReportError(stealth.ErrorBlock)
			lastErr = &BlockedError{Reason: verdict.Reason}
			if attempt < maxRetries {
				if err := p.RotateIdentity(ctx, p.rotateFingerprint); err != nil {
					return err
				}
			}

		case detect.StatusCaptcha:
			p.logger.Warn().
				Str("kind", string(verdict.CaptchaKind)).
				Str("reason", verdict.Reason).
				Msg("CAPTCHA challenge")

			solveErr := p.detector.WaitForResolution(ctx, p.sess, p.solveTimeout)
			if solveErr == nil {
				p.throttle.ReportSuccess()
				return nil
			}
			if errors.Is(solveErr, context.Canceled) || errors.Is(solveErr, context.DeadlineExceeded) {
				return solveErr
			}

			p.throttle.ReportError(stealth.ErrorRateLimit)
			lastErr = &CaptchaError{Kind: verdict.CaptchaKind, Reason: verdict.Reason}
			if attempt < maxRetries {
				if err := p.RotateIdentity(ctx, p.rotateFingerprint); err != nil {
					return err
				}
			}
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrIdentityExhausted, maxRetries, lastErr)
}

func (p *ProtectedSession) navigate(url string) error {
	if err := p.sess.Navigate(url); err != nil {
		return err
	}
	return p.sess.WaitLoad()
}

// RotateIdentity discards the live browser, marks the current proxy
// failed, picks a new one, and relaunches after a short cooldown. The
// fingerprint is kept by default so only the network path changes;
// regenFingerprint forces a new device identity too.
func (p *ProtectedSession) RotateIdentity(ctx context.Context, regenFingerprint bool) error {
	p.logger.Info().Bool("newFingerprint", regenFingerprint).Msg("Rotating identity")

	if p.sess != nil {
		if err := p.sess.Close(); err != nil {
			p.logger.Warn().Err(err).Msg("Failed to close session during rotation")
		}
		p.sess = nil
	}

	p.pool.MarkFailed(p.proxy)
	p.proxy = p.pool.Next()

	if regenFingerprint {
		p.fingerprint = p.newFingerprint()
		p.fingerprint.LogSummary(p.logger)
	}

	// Short cooldown so the relaunch does not look instant
	cooldown := time.Duration(2+p.rng.Intn(4)) * time.Second
	if err := p.sleep(ctx, cooldown); err != nil {
		return err
	}

	return p.ensureSession()
}

// NewIdentity forces a full identity change: new fingerprint and new
// network egress together.
func (p *ProtectedSession) NewIdentity(ctx context.Context) error {
	return p.RotateIdentity(ctx, true)
}

// Close shuts down the live browser session, if any
func (p *ProtectedSession) Close() error {
	if p.sess == nil {
		return nil
	}
	err := p.sess.Close()
	p.sess = nil
	return err
}
