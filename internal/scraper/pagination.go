package scraper

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"amazon-scraper/internal/browser"
	"amazon-scraper/internal/config"
	"amazon-scraper/internal/detect"
	"amazon-scraper/internal/models"
	"amazon-scraper/internal/stealth"
)

const seeAllReviewsSelector = `a[data-hook="see-all-reviews-link-foot"]`

// nextPageSelectors is tried in order until one yields a visible link
var nextPageSelectors = []string{
	"li.a-last a",
	".a-pagination .a-last a",
	"a[href*='pageNumber'][class*='a-last']",
}

var asinPattern = regexp.MustCompile(`/product-reviews/([A-Z0-9]{10})`)

// PageSink receives raw page content in traversal order
type PageSink interface {
	WritePage(label, url, content string) (int, error)
	Path() string
}

// Result summarizes a finished run. Aborted runs are clean returns; the
// pages persisted before the abort remain valid output.
type Result struct {
	State      models.RunState
	Pages      int
	Bytes      int64
	Reason     string
	OutputFile string
}

// Engine walks a product page and its review pages, persisting each
// page's raw content through the sink as it goes.
type Engine struct {
	session    *ProtectedSession
	interactor Interactor
	sink       PageSink

	baseURL    string
	maxPages   int
	maxRetries int
	waits      config.ScrollConfig

	sleep  func(ctx context.Context, d time.Duration) error
	logger zerolog.Logger
}

// NewEngine creates a pagination engine
func NewEngine(
	session *ProtectedSession,
	interactor Interactor,
	sink PageSink,
	target config.TargetConfig,
	maxRetries int,
	waits config.ScrollConfig,
	logger zerolog.Logger,
) *Engine {
	return &Engine{
		session:    session,
		interactor: interactor,
		sink:       sink,
		baseURL:    target.BaseURL,
		maxPages:   target.MaxReviewPages,
		maxRetries: maxRetries,
		waits:      waits,
		sleep:      sleepCtx,
		logger:     logger.With().Str("component", "pagination").Logger(),
	}
}

// Run scrapes the product page and every reachable review page. A run
// that hits an unrecoverable block returns an aborted result, not an
// error; errors are reserved for faults like a dead browser or a failed
// disk write, and those runs finish in the failed state.
func (e *Engine) Run(ctx context.Context, productURL string) (*Result, error) {
	res, err := e.run(ctx, productURL)
	if err != nil {
		res.State = models.RunStateFailed
		if res.Reason == "" {
			res.Reason = err.Error()
		}
	}
	return res, err
}

func (e *Engine) run(ctx context.Context, productURL string) (*Result, error) {
	res := &Result{State: models.RunStateDone, OutputFile: e.sink.Path()}

	e.logger.Info().Str("url", truncateURL(productURL)).Msg("Loading product page")

	if err := e.session.NavigateWithProtection(ctx, productURL, e.maxRetries); err != nil {
		if isAbort(err) {
			return e.abort(res, "product page: "+err.Error()), nil
		}
		return res, err
	}
	if err := e.waitRandom(ctx, e.waits.PageLoadWaitMinSec, e.waits.PageLoadWaitMaxSec, "page load"); err != nil {
		return res, err
	}
	if err := e.persistPage(res, "product_page"); err != nil {
		return res, err
	}

	sess, err := e.session.Session()
	if err != nil {
		return res, err
	}

	e.logger.Info().Msg("Scrolling to find the reviews link")
	seeAll, err := e.interactor.ScrollAndLocate(ctx, sess, seeAllReviewsSelector)
	if err != nil {
		return res, err
	}
	if seeAll == nil {
		// One direct lookup in case the link never entered the viewport
		seeAll, err = firstMatch(sess, seeAllReviewsSelector)
		if err != nil {
			return res, err
		}
	}
	if seeAll == nil {
		return e.abort(res, "see-all-reviews link not found"), nil
	}

	href, err := seeAll.Attribute("href")
	if err != nil || href == "" {
		return e.abort(res, "see-all-reviews link has no href"), nil
	}
	if strings.HasPrefix(href, "/") {
		href = e.baseURL + href
	}

	if err := e.waitRandom(ctx, e.waits.ActionWaitMinSec, e.waits.ActionWaitMaxSec, "before navigation"); err != nil {
		return res, err
	}

	e.logger.Info().Str("url", truncateURL(href)).Msg("Navigating to reviews")
	if err := e.session.NavigateWithProtection(ctx, href, e.maxRetries); err != nil {
		if isAbort(err) {
			return e.abort(res, "reviews page: "+err.Error()), nil
		}
		return res, err
	}
	if err := e.waitRandom(ctx, e.waits.AfterClickWaitMin, e.waits.AfterClickWaitMax, "reviews page load"); err != nil {
		return res, err
	}

	// Rotation may have replaced the browser
	sess, err = e.session.Session()
	if err != nil {
		return res, err
	}

	if url, err := sess.URL(); err == nil {
		if m := asinPattern.FindStringSubmatch(url); m != nil {
			e.logger.Info().Str("asin", m[1]).Msg("Detected ASIN")
		}
	}

	// Read the first reviews page top to bottom before saving it
	if _, err := e.interactor.ScrollAndLocate(ctx, sess, ""); err != nil {
		return res, err
	}
	if err := sess.Eval(`window.scrollTo(0, 0)`); err == nil {
		_ = e.sleep(ctx, time.Second)
	}
	if err := e.persistPage(res, "reviews_page_1"); err != nil {
		return res, err
	}

	return e.paginate(ctx, res)
}

// paginate runs the next-page loop until a terminal condition
func (e *Engine) paginate(ctx context.Context, res *Result) (*Result, error) {
	pageNumber := 1

	for pageNumber < e.maxPages {
		e.logger.Info().Int("page", pageNumber).Msg("Processing reviews page")

		sess, err := e.session.Session()
		if err != nil {
			return res, err
		}

		next, err := e.interactor.ScrollAndLocate(ctx, sess, nextPageSelectors[0])
		if err != nil {
			return res, err
		}
		if next == nil {
			next, err = e.findNextFallback(sess)
			if err != nil {
				return res, err
			}
		}
		if next == nil {
			e.logger.Info().Msg("No next-page link, reached last page")
			break
		}

		if reason := e.blockedOrRedirected(sess); reason != "" {
			return e.abort(res, reason), nil
		}

		e.logReviewCount(sess, pageNumber)

		preClickURL, err := sess.URL()
		if err != nil {
			return res, err
		}
		nextHref, _ := next.Attribute("href")

		if err := e.waitRandom(ctx, e.waits.ActionWaitMinSec, e.waits.ActionWaitMaxSec, "before clicking next"); err != nil {
			return res, err
		}

		if err := e.interactor.ClickTarget(ctx, next); err != nil {
			if !errors.Is(err, stealth.ErrClickFailed) {
				return res, err
			}
			if nextHref == "" {
				e.logger.Warn().Msg("Next-page link unclickable and has no href, stopping")
				break
			}
			e.logger.Info().Msg("Click failed, navigating to href directly")
			if err := sess.Navigate(absoluteURL(e.baseURL, nextHref)); err != nil {
				return res, err
			}
		}

		if err := e.waitRandom(ctx, e.waits.AfterClickWaitMin, e.waits.AfterClickWaitMax, "page load"); err != nil {
			return res, err
		}

		currentURL, err := sess.URL()
		if err != nil {
			return res, err
		}
		if currentURL == preClickURL {
			e.logger.Warn().Msg("URL unchanged after click, confirming")
			if err := e.sleep(ctx, 3*time.Second); err != nil {
				return res, err
			}
			currentURL, err = sess.URL()
			if err != nil {
				return res, err
			}
			if currentURL == preClickURL {
				e.logger.Info().Msg("Page did not change, reached last page")
				break
			}
		}

		pageNumber++
		e.logger.Info().Str("url", truncateURL(currentURL)).Int("page", pageNumber).Msg("Advanced to next page")

		last, err := e.looksLikeLastPage(sess)
		if err != nil {
			return res, err
		}
		if last {
			break
		}

		if err := e.persistPage(res, "reviews_page_"+strconv.Itoa(pageNumber)); err != nil {
			return res, err
		}
	}

	e.logger.Info().
		Int("pages", res.Pages).
		Int64("bytes", res.Bytes).
		Msg("Scraping complete")
	return res, nil
}

// persistPage appends the current page's raw content to the sink
func (e *Engine) persistPage(res *Result, label string) error {
	sess, err := e.session.Session()
	if err != nil {
		return err
	}
	html, err := sess.HTML()
	if err != nil {
		return err
	}
	url, err := sess.URL()
	if err != nil {
		return err
	}

	n, err := e.sink.WritePage(label, url, html)
	if err != nil {
		return err
	}
	res.Pages++
	res.Bytes += int64(n)
	e.logger.Info().Str("label", label).Int("bytes", n).Msg("Page persisted")
	return nil
}

func (e *Engine) findNextFallback(sess browser.Session) (browser.Element, error) {
	for _, selector := range nextPageSelectors {
		el, err := firstVisible(sess, selector)
		if err != nil {
			return nil, err
		}
		if el != nil {
			e.logger.Debug().Str("selector", selector).Msg("Next-page link found via fallback")
			return el, nil
		}
	}
	return nil, nil
}

// blockedOrRedirected checks the URL for mid-run challenge or login
// redirects; returns a reason string or "" when clean
func (e *Engine) blockedOrRedirected(sess browser.Session) string {
	url, err := sess.URL()
	if err != nil {
		return ""
	}
	if strings.Contains(strings.ToLower(url), "captcha") {
		return "captcha redirect mid-pagination"
	}
	if detect.IsLoginRedirect(url) {
		return "login redirect mid-pagination"
	}
	return ""
}

func (e *Engine) logReviewCount(sess browser.Session, pageNumber int) {
	els, err := sess.Elements(`div[data-hook="review"]`)
	if err != nil || len(els) == 0 {
		els, err = sess.Elements(`[data-hook="review-body"]`)
		if err != nil {
			return
		}
	}
	if len(els) > 0 {
		e.logger.Info().
			Int("reviews", len(els)).
			Int("page", pageNumber).
			Msg("Reviews on page")
	}
}

// looksLikeLastPage checks for the storefront's end-of-reviews signals
func (e *Engine) looksLikeLastPage(sess browser.Session) (bool, error) {
	html, err := sess.HTML()
	if err != nil {
		return false, err
	}
	lower := strings.ToLower(html)
	sample := lower
	if len(sample) > 5000 {
		sample = sample[:5000]
	}
	if strings.Contains(lower, "there are no customer reviews") || strings.Contains(sample, "no reviews") {
		e.logger.Info().Msg("No-reviews message, last page reached")
		return true, nil
	}

	title, err := sess.Title()
	if err != nil {
		return false, err
	}
	lowerTitle := strings.ToLower(title)
	if strings.Contains(lowerTitle, "page not found") || strings.Contains(lowerTitle, "404") {
		e.logger.Info().Msg("Not-found title, last page reached")
		return true, nil
	}
	return false, nil
}

func (e *Engine) abort(res *Result, reason string) *Result {
	e.logger.Warn().Str("reason", reason).Msg("Run aborted")
	res.State = models.RunStateAborted
	res.Reason = reason
	return res
}

func (e *Engine) waitRandom(ctx context.Context, minSec, maxSec float64, reason string) error {
	return e.interactor.RandomWait(ctx, minSec, maxSec, reason)
}

// isAbort reports whether a navigation error is a protection failure
// (clean abort) rather than an infrastructure fault
func isAbort(err error) bool {
	var blocked *BlockedError
	var captcha *CaptchaError
	return errors.Is(err, ErrIdentityExhausted) ||
		errors.As(err, &blocked) ||
		errors.As(err, &captcha) ||
		errors.Is(err, detect.ErrManualSolveTimeout)
}

func firstMatch(sess browser.Session, selector string) (browser.Element, error) {
	els, err := sess.Elements(selector)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, nil
	}
	return els[0], nil
}

func firstVisible(sess browser.Session, selector string) (browser.Element, error) {
	els, err := sess.Elements(selector)
	if err != nil {
		return nil, err
	}
	for _, el := range els {
		visible, err := el.Visible()
		if err == nil && visible {
			return el, nil
		}
	}
	return nil, nil
}

func absoluteURL(base, href string) string {
	if strings.HasPrefix(href, "/") {
		return base + href
	}
	return href
}

func truncateURL(url string) string {
	if len(url) > 80 {
		return url[:80]
	}
	return url
}
