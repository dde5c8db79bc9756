package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog"
)

// Options controls how a Chrome session is launched. ExtraFlags carries
// identity-specific switches (window-size, proxy-server, lang) supplied
// by the caller; keys are flag names without the leading dashes.
type Options struct {
	Headless        bool
	UserDataDir     string
	BinaryPath      string
	UserAgent       string
	ExtraFlags      map[string]string
	PageLoadTimeout time.Duration
}

// Chrome is the rod-backed Session implementation. One Chrome owns one
// browser process and one page; identity rotation tears the whole thing
// down and launches a fresh one.
type Chrome struct {
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
	opts     Options
	logger   zerolog.Logger
}

// Launch starts a Chrome process with stealth flags applied and opens a
// single stealth page ready for navigation.
func Launch(opts Options, logger zerolog.Logger) (*Chrome, error) {
	logger = logger.With().Str("component", "browser").Logger()
	logger.Info().Bool("headless", opts.Headless).Msg("Launching browser")

	if opts.UserDataDir != "" {
		if err := os.MkdirAll(opts.UserDataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create user data directory: %w", err)
		}
	}

	l := launcher.New()

	if opts.UserDataDir != "" {
		absPath, err := filepath.Abs(opts.UserDataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for user data dir: %w", err)
		}
		l = l.UserDataDir(absPath)
	}

	if opts.BinaryPath != "" {
		l = l.Bin(opts.BinaryPath)
	}

	l = l.Headless(opts.Headless)

	// Baseline stealth flags
	l = l.Set("disable-blink-features", "AutomationControlled")
	l = l.Set("disable-infobars")
	l = l.Set("disable-dev-shm-usage")
	l = l.Set("no-first-run")
	l = l.Set("no-default-browser-check")

	if opts.UserAgent != "" {
		l = l.Set("user-agent", opts.UserAgent)
		logger.Debug().Str("userAgent", opts.UserAgent).Msg("Set user agent")
	}

	for flag, value := range opts.ExtraFlags {
		if value == "" {
			l = l.Set(flags.Flag(flag))
		} else {
			l = l.Set(flags.Flag(flag), value)
		}
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	page, err := stealth.Page(b)
	if err != nil {
		_ = b.Close()
		l.Kill()
		return nil, fmt.Errorf("failed to create stealth page: %w", err)
	}

	if opts.PageLoadTimeout > 0 {
		page = page.Timeout(opts.PageLoadTimeout)
	}

	logger.Info().Msg("Browser launched")

	return &Chrome{
		browser:  b,
		page:     page,
		launcher: l,
		opts:     opts,
		logger:   logger,
	}, nil
}

// wrapTimeout maps the page timeout's deadline error to ErrTimeout so
// callers can match it without knowing the driver.
func wrapTimeout(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// Navigate loads the given URL
func (c *Chrome) Navigate(url string) error {
	c.logger.Debug().Str("url", url).Msg("Navigating")

	if err := c.page.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, wrapTimeout(err))
	}
	return nil
}

// WaitLoad waits for the load event and DOM stability
func (c *Chrome) WaitLoad() error {
	if err := c.page.WaitLoad(); err != nil {
		c.logger.Warn().Err(err).Msg("WaitLoad failed, continuing anyway")
	}

	// Additional stability wait for late-rendering content
	if err := c.page.WaitDOMStable(time.Second, 0.1); err != nil {
		c.logger.Debug().Err(err).Msg("DOM did not stabilize")
	}
	return nil
}

// URL returns the current page URL
func (c *Chrome) URL() (string, error) {
	info, err := c.page.Info()
	if err != nil {
		return "", fmt.Errorf("failed to get page info: %w", err)
	}
	return info.URL, nil
}

// Title returns the current document title
func (c *Chrome) Title() (string, error) {
	info, err := c.page.Info()
	if err != nil {
		return "", fmt.Errorf("failed to get page info: %w", err)
	}
	return info.Title, nil
}

// HTML returns the serialized document
func (c *Chrome) HTML() (string, error) {
	html, err := c.page.HTML()
	if err != nil {
		return "", fmt.Errorf("failed to get page HTML: %w", wrapTimeout(err))
	}
	return html, nil
}

// Eval runs a JavaScript expression, discarding the result
func (c *Chrome) Eval(js string) error {
	if _, err := c.page.Eval(js); err != nil {
		return fmt.Errorf("eval failed: %w", wrapTimeout(err))
	}
	return nil
}

// EvalNumber runs a JavaScript expression and returns its numeric result
func (c *Chrome) EvalNumber(js string) (float64, error) {
	result, err := c.page.Eval(js)
	if err != nil {
		return 0, fmt.Errorf("eval failed: %w", wrapTimeout(err))
	}
	return result.Value.Num(), nil
}

// Elements returns all matches for a CSS selector
func (c *Chrome) Elements(selector string) ([]Element, error) {
	els, err := c.page.Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("failed to query %q: %w", selector, wrapTimeout(err))
	}

	out := make([]Element, len(els))
	for i, el := range els {
		out[i] = &chromeElement{el: el}
	}
	return out, nil
}

// InstallOnNewDocument registers a script to run before page scripts
func (c *Chrome) InstallOnNewDocument(js string) error {
	if _, err := c.page.EvalOnNewDocument(js); err != nil {
		return fmt.Errorf("failed to install document script: %w", err)
	}
	return nil
}

// Browser exposes the underlying rod browser for cookie persistence.
func (c *Chrome) Browser() *rod.Browser {
	return c.browser
}

// Close shuts down the page, the browser, and the launched process
func (c *Chrome) Close() error {
	c.logger.Info().Msg("Closing browser")

	if err := c.browser.Close(); err != nil {
		c.launcher.Kill()
		return fmt.Errorf("failed to close browser: %w", err)
	}
	c.launcher.Cleanup()
	return nil
}

// chromeElement wraps a rod element behind the Element interface
type chromeElement struct {
	el *rod.Element
}

func (e *chromeElement) Visible() (bool, error) {
	return e.el.Visible()
}

func (e *chromeElement) InViewport() (bool, error) {
	result, err := e.el.Eval(`() => {
		const rect = this.getBoundingClientRect();
		return rect.top >= 0 && rect.top < window.innerHeight;
	}`)
	if err != nil {
		return false, fmt.Errorf("viewport check failed: %w", err)
	}
	return result.Value.Bool(), nil
}

func (e *chromeElement) ScrollIntoCenter() error {
	_, err := e.el.Eval(`() => this.scrollIntoView({block: "center", behavior: "smooth"})`)
	if err != nil {
		return fmt.Errorf("scroll into view failed: %w", err)
	}
	return nil
}

func (e *chromeElement) Click() error {
	return e.el.Click(proto.InputMouseButtonLeft, 1)
}

func (e *chromeElement) ClickViaScript() error {
	if _, err := e.el.Eval(`() => this.click()`); err != nil {
		return fmt.Errorf("script click failed: %w", err)
	}
	return nil
}

func (e *chromeElement) Attribute(name string) (string, error) {
	attr, err := e.el.Attribute(name)
	if err != nil {
		return "", err
	}
	if attr == nil {
		return "", nil
	}
	return *attr, nil
}

func (e *chromeElement) Text() (string, error) {
	return e.el.Text()
}
