package detect

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amazon-scraper/internal/browser/browsertest"
	"amazon-scraper/internal/models"
)

// cleanHTML is big enough to pass the size checks and carries none of
// the challenge or block markers
var cleanHTML = "<html><body>" + strings.Repeat("<p>Great product, works well.</p>", 500) + "</body></html>"

func cleanSession() *browsertest.FakeSession {
	return &browsertest.FakeSession{
		PageURL:   "https://www.amazon.in/dp/B0TESTASIN",
		PageTitle: "Test Product : Electronics",
		PageHTML:  cleanHTML,
	}
}

func TestClassifyCleanPage(t *testing.T) {
	d := NewDetector(zerolog.Nop())

	v, err := d.Classify(cleanSession())
	require.NoError(t, err)
	assert.True(t, v.Clean())
}

func TestClassifyCaptchaURL(t *testing.T) {
	d := NewDetector(zerolog.Nop())
	sess := cleanSession()
	sess.PageURL = "https://www.amazon.in/errors/validatecaptcha?ref=xyz"

	v, err := d.Classify(sess)
	require.NoError(t, err)
	assert.Equal(t, StatusCaptcha, v.Status)
	assert.Equal(t, models.CaptchaKindURL, v.CaptchaKind)
}

func TestClassifyCaptchaTitle(t *testing.T) {
	d := NewDetector(zerolog.Nop())
	sess := cleanSession()
	sess.PageTitle = "Robot Check"

	v, err := d.Classify(sess)
	require.NoError(t, err)
	assert.Equal(t, StatusCaptcha, v.Status)
	assert.Equal(t, models.CaptchaKindTitle, v.CaptchaKind)
}

func TestClassifyCaptchaElement(t *testing.T) {
	d := NewDetector(zerolog.Nop())
	sess := cleanSession()
	sess.DOM = map[string][]*browsertest.FakeElement{
		`input#captchacharacters`: {{IsVisible: true}},
	}

	v, err := d.Classify(sess)
	require.NoError(t, err)
	assert.Equal(t, StatusCaptcha, v.Status)
	assert.Equal(t, models.CaptchaKindElement, v.CaptchaKind)
}

func TestClassifyIgnoresHiddenCaptchaElement(t *testing.T) {
	d := NewDetector(zerolog.Nop())
	sess := cleanSession()
	sess.DOM = map[string][]*browsertest.FakeElement{
		`input#captchacharacters`: {{IsVisible: false}},
	}

	v, err := d.Classify(sess)
	require.NoError(t, err)
	assert.True(t, v.Clean())
}

func TestClassifyCaptchaTextPattern(t *testing.T) {
	d := NewDetector(zerolog.Nop())
	sess := cleanSession()
	sess.PageHTML = cleanHTML + "<p>Enter the characters you see below</p>"

	v, err := d.Classify(sess)
	require.NoError(t, err)
	assert.Equal(t, StatusCaptcha, v.Status)
	assert.Equal(t, models.CaptchaKindTextPattern, v.CaptchaKind)
}

func TestClassifySmallPageWithCaptchaContent(t *testing.T) {
	d := NewDetector(zerolog.Nop())
	sess := cleanSession()
	sess.PageHTML = "<html><body>robot check</body></html>"

	v, err := d.Classify(sess)
	require.NoError(t, err)
	assert.Equal(t, StatusCaptcha, v.Status)
	assert.Equal(t, models.CaptchaKindSmallPage, v.CaptchaKind)
}

func TestClassifyBlockedTitleBeforeTextScan(t *testing.T) {
	d := NewDetector(zerolog.Nop())
	sess := cleanSession()
	sess.PageTitle = "Access Denied"
	// Block phrase buried deep in the body would not be sampled
	sess.PageHTML = cleanHTML

	v, err := d.Classify(sess)
	require.NoError(t, err)
	assert.Equal(t, StatusBlocked, v.Status)
	assert.Contains(t, v.Reason, "access denied")
}

func TestClassifyBlockedContentSample(t *testing.T) {
	d := NewDetector(zerolog.Nop())
	sess := cleanSession()
	sess.PageHTML = "<html><body><h1>Too many requests from your network</h1>" +
		strings.Repeat("<p>padding</p>", 200) + "</body></html>"

	v, err := d.Classify(sess)
	require.NoError(t, err)
	assert.Equal(t, StatusBlocked, v.Status)
	assert.Contains(t, v.Reason, "too many requests")
}

func TestClassifyBlockPhraseBeyondSampleIsClean(t *testing.T) {
	d := NewDetector(zerolog.Nop())
	sess := cleanSession()
	// Phrase appears only past the 5000-byte sample window
	sess.PageHTML = cleanHTML + "<p>too many requests</p>"

	v, err := d.Classify(sess)
	require.NoError(t, err)
	assert.True(t, v.Clean())
}

func TestClassifyTinyPageIsBlocked(t *testing.T) {
	d := NewDetector(zerolog.Nop())
	sess := cleanSession()
	sess.PageHTML = "<html></html>"

	v, err := d.Classify(sess)
	require.NoError(t, err)
	assert.Equal(t, StatusBlocked, v.Status)
	assert.Contains(t, v.Reason, "suspiciously small")
}

func TestClassifyCaptchaOutranksBlock(t *testing.T) {
	d := NewDetector(zerolog.Nop())
	sess := cleanSession()
	// Both signals present; the challenge URL wins
	sess.PageURL = "https://www.amazon.in/captcha/verify"
	sess.PageTitle = "Access Denied"

	v, err := d.Classify(sess)
	require.NoError(t, err)
	assert.Equal(t, StatusCaptcha, v.Status)
	assert.Equal(t, models.CaptchaKindURL, v.CaptchaKind)
}

func TestWaitForResolutionSolved(t *testing.T) {
	d := NewDetector(zerolog.Nop())

	sess := cleanSession()
	sess.PageTitle = "Robot Check"

	clock := time.Unix(1000, 0)
	d.now = func() time.Time { return clock }

	// Solve the captcha after three polls by fixing the title
	polls := 0
	d.sleep = func(_ context.Context, dur time.Duration) error {
		clock = clock.Add(dur)
		polls++
		if polls >= 3 {
			sess.PageTitle = "Test Product : Electronics"
		}
		return nil
	}

	err := d.WaitForResolution(context.Background(), sess, 5*time.Minute)
	require.NoError(t, err)
}

func TestWaitForResolutionTimesOut(t *testing.T) {
	d := NewDetector(zerolog.Nop())

	clock := time.Unix(1000, 0)
	d.now = func() time.Time { return clock }
	d.sleep = func(_ context.Context, dur time.Duration) error {
		clock = clock.Add(dur)
		return nil
	}

	sess := cleanSession()
	sess.PageTitle = "Robot Check"

	err := d.WaitForResolution(context.Background(), sess, 30*time.Second)
	assert.ErrorIs(t, err, ErrManualSolveTimeout)
}

func TestWaitForResolutionHonorsCancellation(t *testing.T) {
	d := NewDetector(zerolog.Nop())

	sess := cleanSession()
	sess.PageTitle = "Robot Check"

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.WaitForResolution(ctx, sess, 5*time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsLoginRedirect(t *testing.T) {
	assert.True(t, IsLoginRedirect("https://www.amazon.in/ap/signin?openid=1"))
	assert.False(t, IsLoginRedirect("https://www.amazon.in/product-reviews/B0TESTASIN"))
}
