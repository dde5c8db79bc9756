// Package detect classifies live pages as clean, CAPTCHA-challenged, or
// blocked, and waits out manual CAPTCHA resolution.
package detect

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"amazon-scraper/internal/browser"
	"amazon-scraper/internal/models"
)

// ErrManualSolveTimeout is returned when a CAPTCHA stays unsolved past
// the configured deadline.
var ErrManualSolveTimeout = errors.New("timed out waiting for manual captcha solve")

// Status is the overall page classification
type Status string

const (
	StatusClean   Status = "clean"
	StatusCaptcha Status = "captcha"
	StatusBlocked Status = "blocked"
)

// Verdict is the result of classifying one page
type Verdict struct {
	Status      Status
	CaptchaKind models.CaptchaKind
	Reason      string
}

// Clean reports whether the page passed every check
func (v Verdict) Clean() bool {
	return v.Status == StatusClean
}

// URL substrings that mark a challenge page
var captchaURLPatterns = []string{
	"/captcha/",
	"/validatecaptcha",
	"/errors/validatecaptcha",
	"captcha",
}

// DOM markers for challenge widgets, including the storefront's own
// character-entry challenge and PerimeterX
var captchaSelectors = []string{
	`img[src*="captcha"]`,
	`form[action*="captcha"]`,
	`[id*="captcha"]`,
	`iframe[src*="recaptcha"]`,
	`div.g-recaptcha`,
	`div#px-captcha`,
	`input#captchacharacters`,
	`div.a-box-inner.a-padding-extra-large img`,
}

// Phrases that only appear on challenge pages. Generic words are
// excluded to avoid false positives on product text.
var captchaPhrases = []string{
	"enter the characters you see below",
	"type the characters you see in this image",
	"sorry, we just need to make sure you're not a robot",
	"to continue, please type the characters below",
	"please enable cookies to continue",
	"access to this page has been denied",
}

var blockPhrases = []string{
	"access denied",
	"blocked",
	"forbidden",
	"banned",
	"too many requests",
	"rate limit",
	"service unavailable",
	"please try again later",
	"automated access",
	"suspicious activity",
}

// Detector classifies pages. Checks run in fixed priority order, most
// reliable signal first, so a cheap URL match short-circuits a full
// text scan.
type Detector struct {
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
	logger zerolog.Logger
}

// NewDetector creates a page classifier
func NewDetector(logger zerolog.Logger) *Detector {
	return &Detector{
		sleep:  sleepCtx,
		now:    time.Now,
		logger: logger.With().Str("component", "detector").Logger(),
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

// Classify inspects the current page and returns its verdict. Check
// order: URL, title, challenge DOM markers, strong challenge phrases,
// small page with challenge content, block phrases, then page size.
func (d *Detector) Classify(sess browser.Session) (Verdict, error) {
	pageURL, err := sess.URL()
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to read URL: %w", err)
	}
	lowerURL := strings.ToLower(pageURL)
	for _, pattern := range captchaURLPatterns {
		if strings.Contains(lowerURL, pattern) {
			d.logger.Warn().Str("pattern", pattern).Str("url", pageURL).Msg("Captcha page detected in URL")
			return Verdict{Status: StatusCaptcha, CaptchaKind: models.CaptchaKindURL, Reason: "url matches " + pattern}, nil
		}
	}

	title, err := sess.Title()
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to read title: %w", err)
	}
	lowerTitle := strings.ToLower(title)
	if strings.Contains(lowerTitle, "robot") || strings.Contains(lowerTitle, "captcha") {
		d.logger.Warn().Str("title", title).Msg("Captcha detected in page title")
		return Verdict{Status: StatusCaptcha, CaptchaKind: models.CaptchaKindTitle, Reason: "title: " + title}, nil
	}

	visible, err := d.visibleCaptchaMarker(sess)
	if err != nil {
		return Verdict{}, err
	}
	if visible != "" {
		d.logger.Warn().Str("selector", visible).Msg("Captcha element detected")
		return Verdict{Status: StatusCaptcha, CaptchaKind: models.CaptchaKindElement, Reason: "element " + visible}, nil
	}

	html, err := sess.HTML()
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to read page content: %w", err)
	}
	lowerHTML := strings.ToLower(html)

	for _, phrase := range captchaPhrases {
		if strings.Contains(lowerHTML, phrase) {
			d.logger.Warn().Str("phrase", phrase).Msg("Captcha detected by text pattern")
			return Verdict{Status: StatusCaptcha, CaptchaKind: models.CaptchaKindTextPattern, Reason: "phrase: " + phrase}, nil
		}
	}

	// Normal product pages are large; a tiny page mentioning captchas
	// is almost certainly a challenge interstitial
	if len(lowerHTML) < 10000 {
		if strings.Contains(lowerHTML, "captcha") || strings.Contains(lowerHTML, "robot check") {
			d.logger.Warn().Int("bytes", len(lowerHTML)).Msg("Captcha detected on small page")
			return Verdict{Status: StatusCaptcha, CaptchaKind: models.CaptchaKindSmallPage, Reason: "small page with captcha content"}, nil
		}
	}

	for _, phrase := range blockPhrases {
		if strings.Contains(lowerTitle, phrase) {
			d.logger.Warn().Str("phrase", phrase).Msg("Block detected in title")
			return Verdict{Status: StatusBlocked, Reason: "title contains: " + phrase}, nil
		}
	}

	sample := lowerHTML
	if len(sample) > 5000 {
		sample = sample[:5000]
	}
	for _, phrase := range blockPhrases {
		if strings.Contains(sample, phrase) {
			d.logger.Warn().Str("phrase", phrase).Msg("Block detected in page content")
			return Verdict{Status: StatusBlocked, Reason: "page contains: " + phrase}, nil
		}
	}

	if len(lowerHTML) < 1000 {
		d.logger.Warn().Int("bytes", len(lowerHTML)).Msg("Page suspiciously small")
		return Verdict{Status: StatusBlocked, Reason: "page suspiciously small"}, nil
	}

	return Verdict{Status: StatusClean}, nil
}

// captchaPresent is the quiet variant used while polling for a solve
func (d *Detector) captchaPresent(sess browser.Session) (bool, error) {
	pageURL, err := sess.URL()
	if err != nil {
		return false, err
	}
	lowerURL := strings.ToLower(pageURL)
	for _, pattern := range captchaURLPatterns {
		if strings.Contains(lowerURL, pattern) {
			return true, nil
		}
	}

	title, err := sess.Title()
	if err != nil {
		return false, err
	}
	lowerTitle := strings.ToLower(title)
	if strings.Contains(lowerTitle, "robot") || strings.Contains(lowerTitle, "captcha") {
		return true, nil
	}

	visible, err := d.visibleCaptchaMarker(sess)
	if err != nil {
		return false, err
	}
	if visible != "" {
		return true, nil
	}

	html, err := sess.HTML()
	if err != nil {
		return false, err
	}
	lowerHTML := strings.ToLower(html)
	for _, phrase := range captchaPhrases {
		if strings.Contains(lowerHTML, phrase) {
			return true, nil
		}
	}
	if len(lowerHTML) < 10000 {
		if strings.Contains(lowerHTML, "captcha") || strings.Contains(lowerHTML, "robot check") {
			return true, nil
		}
	}

	return false, nil
}

// visibleCaptchaMarker returns the first challenge selector with a
// visible match, or "" when none match
func (d *Detector) visibleCaptchaMarker(sess browser.Session) (string, error) {
	for _, selector := range captchaSelectors {
		els, err := sess.Elements(selector)
		if err != nil {
			continue
		}
		for _, el := range els {
			visible, err := el.Visible()
			if err == nil && visible {
				return selector, nil
			}
		}
	}
	return "", nil
}

// WaitForResolution polls the page every few seconds until the CAPTCHA
// disappears, assuming a human is solving it in a visible browser.
// Returns ErrManualSolveTimeout when the deadline passes.
func (d *Detector) WaitForResolution(ctx context.Context, sess browser.Session, timeout time.Duration) error {
	d.logger.Info().
		Dur("timeout", timeout).
		Msg("CAPTCHA detected, solve it manually in the browser window")

	start := d.now()
	checks := 0

	for d.now().Sub(start) < timeout {
		present, err := d.captchaPresent(sess)
		if err != nil {
			return fmt.Errorf("captcha poll failed: %w", err)
		}
		if !present {
			d.logger.Info().Msg("Captcha appears solved, continuing")
			// Give the post-solve redirect a moment to settle
			return d.sleep(ctx, 2*time.Second)
		}

		checks++
		if checks%10 == 0 {
			d.logger.Info().
				Dur("elapsed", d.now().Sub(start)).
				Msg("Still waiting for captcha solve")
		}

		if err := d.sleep(ctx, 3*time.Second); err != nil {
			return err
		}
	}

	d.logger.Warn().Msg("Timed out waiting for captcha solve")
	return ErrManualSolveTimeout
}

// IsLoginRedirect reports whether the URL landed on the sign-in page,
// which means the session has been flagged and must abort.
func IsLoginRedirect(url string) bool {
	return strings.Contains(url, "/ap/signin")
}
