package scraper

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amazon-scraper/internal/browser"
	"amazon-scraper/internal/browser/browsertest"
	"amazon-scraper/internal/config"
	"amazon-scraper/internal/detect"
	"amazon-scraper/internal/models"
	"amazon-scraper/internal/stealth"
)

// fakeInteractor locates elements without scrolling or sleeping
type fakeInteractor struct{}

func (fakeInteractor) ScrollAndLocate(_ context.Context, sess browser.Session, selector string) (browser.Element, error) {
	if selector == "" {
		return nil, nil
	}
	els, err := sess.Elements(selector)
	if err != nil {
		return nil, err
	}
	for _, el := range els {
		if visible, _ := el.Visible(); visible {
			return el, nil
		}
	}
	return nil, nil
}

func (fakeInteractor) ClickTarget(_ context.Context, el browser.Element) error {
	if err := el.Click(); err != nil {
		if err := el.ClickViaScript(); err != nil {
			return fmt.Errorf("%w: %v", stealth.ErrClickFailed, err)
		}
	}
	return nil
}

func (fakeInteractor) RandomWait(context.Context, float64, float64, string) error { return nil }

// memSink records persisted pages in memory
type memSink struct {
	labels []string
	urls   []string
}

func (m *memSink) WritePage(label, url, content string) (int, error) {
	m.labels = append(m.labels, label)
	m.urls = append(m.urls, url)
	return len(content), nil
}

func (m *memSink) Path() string { return "memory" }

// failSink starts erroring once failAfter pages have been written
type failSink struct {
	memSink
	failAfter int
}

func (f *failSink) WritePage(label, url, content string) (int, error) {
	if len(f.labels) >= f.failAfter {
		return 0, assert.AnError
	}
	return f.memSink.WritePage(label, url, content)
}

// pageState is one URL's worth of fake site
type pageState struct {
	title string
	html  string
	dom   map[string][]*browsertest.FakeElement
}

// fakeSite wires a FakeSession to a URL-keyed page map
type fakeSite struct {
	sess  *browsertest.FakeSession
	pages map[string]*pageState
}

func newFakeSite() *fakeSite {
	site := &fakeSite{pages: make(map[string]*pageState)}
	site.sess = &browsertest.FakeSession{}
	site.sess.NavigateFunc = func(url string) error {
		site.show(url)
		return nil
	}
	return site
}

func (s *fakeSite) show(url string) {
	s.sess.PageURL = url
	if p, ok := s.pages[url]; ok {
		s.sess.PageTitle = p.title
		s.sess.PageHTML = p.html
		s.sess.DOM = p.dom
	} else {
		s.sess.PageTitle = "Page Not Found"
		s.sess.PageHTML = "<html>gone</html>"
		s.sess.DOM = nil
	}
}

func (s *fakeSite) addPage(url, title, html string) *pageState {
	p := &pageState{title: title, html: html, dom: make(map[string][]*browsertest.FakeElement)}
	s.pages[url] = p
	return p
}

const (
	productURL = "https://www.amazon.in/dp/B0TESTASIN"
	baseURL    = "https://www.amazon.in"
)

func reviewsURL(n int) string {
	return fmt.Sprintf("https://www.amazon.in/product-reviews/B0TESTASIN?pageNumber=%d", n)
}

// buildStore creates a product page plus n review pages chained by
// next-page links
func buildStore(site *fakeSite, reviewPages int) {
	product := site.addPage(productURL, "Test Product", "<html>product details</html>")
	product.dom[seeAllReviewsSelector] = []*browsertest.FakeElement{{
		IsVisible: true,
		IsInView:  true,
		Attrs:     map[string]string{"href": "/product-reviews/B0TESTASIN?pageNumber=1"},
	}}

	for n := 1; n <= reviewPages; n++ {
		page := site.addPage(reviewsURL(n), "Customer reviews",
			fmt.Sprintf("<html>customer feedback page %d</html>", n))
		if n < reviewPages {
			target := reviewsURL(n + 1)
			page.dom[nextPageSelectors[0]] = []*browsertest.FakeElement{{
				IsVisible: true,
				Attrs:     map[string]string{"href": target},
				ClickFunc: func() error {
					site.show(target)
					return nil
				},
			}}
		}
	}
}

type engineHarness struct {
	engine     *Engine
	site       *fakeSite
	sink       *memSink
	sleeps     []time.Duration
	classifier *fakeClassifier
}

func newEngineHarness(t *testing.T, maxPages int) *engineHarness {
	t.Helper()

	h := &engineHarness{
		site:       newFakeSite(),
		sink:       &memSink{},
		classifier: &fakeClassifier{verdicts: []detect.Verdict{clean()}},
	}

	factory := func(*stealth.Fingerprint, *stealth.Proxy) (browser.Session, error) {
		return h.site.sess, nil
	}

	pool, err := stealth.NewProxyPool(nil, rand.New(rand.NewSource(1)), zerolog.Nop())
	require.NoError(t, err)

	ctrl := NewProtectedSession(
		factory, pool, &fakePacer{}, h.classifier,
		stealth.NewFingerprint(42),
		time.Minute, false,
		rand.New(rand.NewSource(1)), zerolog.Nop(),
	)
	ctrl.sleep = func(context.Context, time.Duration) error { return nil }

	h.engine = NewEngine(
		ctrl, fakeInteractor{}, h.sink,
		config.TargetConfig{BaseURL: baseURL, MaxReviewPages: maxPages},
		3, config.ScrollConfig{}, zerolog.Nop(),
	)
	h.engine.sleep = func(_ context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return nil
	}
	return h
}

func TestRunFivePagesToCompletion(t *testing.T) {
	h := newEngineHarness(t, 500)
	buildStore(h.site, 5)

	res, err := h.engine.Run(context.Background(), productURL)
	require.NoError(t, err)

	assert.Equal(t, models.RunStateDone, res.State)
	assert.Equal(t, 6, res.Pages)
	assert.Greater(t, res.Bytes, int64(0))
	assert.Equal(t, []string{
		"product_page",
		"reviews_page_1",
		"reviews_page_2",
		"reviews_page_3",
		"reviews_page_4",
		"reviews_page_5",
	}, h.sink.labels)
	assert.Equal(t, "memory", res.OutputFile)
}

func TestRunStopsWhenURLNeverChanges(t *testing.T) {
	h := newEngineHarness(t, 500)
	buildStore(h.site, 1)

	// A next link whose click silently no-ops
	page1 := h.site.pages[reviewsURL(1)]
	page1.dom[nextPageSelectors[0]] = []*browsertest.FakeElement{{
		IsVisible: true,
		Attrs:     map[string]string{"href": reviewsURL(2)},
		ClickFunc: func() error { return nil },
	}}

	res, err := h.engine.Run(context.Background(), productURL)
	require.NoError(t, err)

	assert.Equal(t, models.RunStateDone, res.State, "a stalled URL is the last page, not an error")
	assert.Equal(t, []string{"product_page", "reviews_page_1"}, h.sink.labels)

	// Exactly one confirmation wait before giving up
	confirmations := 0
	for _, d := range h.sleeps {
		if d == 3*time.Second {
			confirmations++
		}
	}
	assert.Equal(t, 1, confirmations)
}

func TestRunAbortsWhenProductPageBlocked(t *testing.T) {
	h := newEngineHarness(t, 500)
	buildStore(h.site, 1)
	h.classifier.verdicts = []detect.Verdict{blocked()}

	res, err := h.engine.Run(context.Background(), productURL)
	require.NoError(t, err, "an exhausted retry budget is a clean abort")

	assert.Equal(t, models.RunStateAborted, res.State)
	assert.Contains(t, res.Reason, "product page")
	assert.Empty(t, h.sink.labels)
}

func TestRunAbortPreservesPartialOutput(t *testing.T) {
	h := newEngineHarness(t, 500)
	buildStore(h.site, 1)
	// Product page loads clean, then every reviews navigation is blocked
	h.classifier.verdicts = []detect.Verdict{clean(), blocked()}

	res, err := h.engine.Run(context.Background(), productURL)
	require.NoError(t, err)

	assert.Equal(t, models.RunStateAborted, res.State)
	assert.Equal(t, []string{"product_page"}, h.sink.labels, "pages persisted before the abort remain")
	assert.Equal(t, 1, res.Pages)
}

func TestRunAbortsWithoutReviewsLink(t *testing.T) {
	h := newEngineHarness(t, 500)
	h.site.addPage(productURL, "Test Product", "<html>no reviews section at all</html>")

	res, err := h.engine.Run(context.Background(), productURL)
	require.NoError(t, err)

	assert.Equal(t, models.RunStateAborted, res.State)
	assert.Contains(t, res.Reason, "see-all-reviews")
	assert.Equal(t, 1, res.Pages, "the product page itself is still persisted")
}

func TestRunAbortsOnLoginRedirect(t *testing.T) {
	h := newEngineHarness(t, 500)
	buildStore(h.site, 1)

	signinURL := baseURL + "/ap/signin?openid=1"
	page1 := h.site.pages[reviewsURL(1)]
	page1.dom[nextPageSelectors[0]] = []*browsertest.FakeElement{{
		IsVisible: true,
		Attrs:     map[string]string{"href": signinURL},
		ClickFunc: func() error {
			h.site.show(signinURL)
			return nil
		},
	}}
	// The sign-in page still renders a pagination-looking link
	signin := h.site.addPage(signinURL, "Amazon Sign-In", "<html>sign in please</html>")
	signin.dom[nextPageSelectors[0]] = []*browsertest.FakeElement{{IsVisible: true}}

	res, err := h.engine.Run(context.Background(), productURL)
	require.NoError(t, err)

	assert.Equal(t, models.RunStateAborted, res.State)
	assert.Contains(t, res.Reason, "login redirect")
}

func TestRunClickFailureFallsBackToHref(t *testing.T) {
	h := newEngineHarness(t, 500)
	buildStore(h.site, 2)

	// Both click paths fail; the engine should navigate to the href
	page1 := h.site.pages[reviewsURL(1)]
	page1.dom[nextPageSelectors[0]] = []*browsertest.FakeElement{{
		IsVisible: true,
		Attrs:     map[string]string{"href": reviewsURL(2)},
		ClickErr:  assert.AnError,
		ClickFunc: func() error { return assert.AnError },
	}}

	res, err := h.engine.Run(context.Background(), productURL)
	require.NoError(t, err)

	assert.Equal(t, models.RunStateDone, res.State)
	assert.Contains(t, h.sink.labels, "reviews_page_2")
}

func TestRunStopsOnNoReviewsMessage(t *testing.T) {
	h := newEngineHarness(t, 500)
	buildStore(h.site, 2)
	h.site.pages[reviewsURL(2)].html = "<html>There are no customer reviews here</html>"

	res, err := h.engine.Run(context.Background(), productURL)
	require.NoError(t, err)

	assert.Equal(t, models.RunStateDone, res.State)
	assert.Equal(t, []string{"product_page", "reviews_page_1"}, h.sink.labels,
		"the no-reviews page itself is not persisted")
}

func TestRunHonorsMaxPageBound(t *testing.T) {
	h := newEngineHarness(t, 3)
	buildStore(h.site, 10)

	res, err := h.engine.Run(context.Background(), productURL)
	require.NoError(t, err)

	assert.Equal(t, models.RunStateDone, res.State)
	assert.Equal(t, []string{
		"product_page",
		"reviews_page_1",
		"reviews_page_2",
		"reviews_page_3",
	}, h.sink.labels)
}

func TestRunDiskFaultMarksRunFailed(t *testing.T) {
	h := newEngineHarness(t, 500)
	buildStore(h.site, 3)

	sink := &failSink{failAfter: 2}
	h.engine.sink = sink

	res, err := h.engine.Run(context.Background(), productURL)
	require.Error(t, err)

	assert.Equal(t, models.RunStateFailed, res.State, "a fatal fault must not be recorded as done")
	assert.Equal(t, []string{"product_page", "reviews_page_1"}, sink.labels,
		"pages persisted before the fault remain")
	assert.Equal(t, 2, res.Pages)
	assert.NotEmpty(t, res.Reason)
}

func TestRunCancelledContextSurfaces(t *testing.T) {
	h := newEngineHarness(t, 500)
	buildStore(h.site, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.engine.Run(ctx, productURL)
	assert.Error(t, err)
}
