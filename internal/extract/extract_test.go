package extract

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amazon-scraper/internal/models"
	"amazon-scraper/internal/storage"
)

const productPageHTML = `<html><body>
<span id="productTitle">  Wireless Optical Mouse (Black)  </span>
<span class="a-price-whole">1,299.</span>
<h3>About this item</h3>
<ul class="a-unordered-list a-vertical a-spacing-mini">
  <li><span class="a-list-item">2.4 GHz wireless connectivity</span></li>
  <li><span class="a-list-item">12 month battery life</span></li>
  <li><span class="a-list-item"></span></li>
</ul>
</body></html>`

const featureBulletsHTML = `<html><body>
<span id="productTitle">Desk Lamp</span>
<div id="feature-bullets">
  <ul>
    <li><span class="a-list-item">Adjustable arm</span></li>
    <li><span class="a-list-item">Warm white light</span></li>
  </ul>
</div>
</body></html>`

const reviewsPageHTML = `<html><body><ul>
<li data-hook="review">
  <span class="a-profile-name">Asha</span>
  <i data-hook="review-star-rating"><span class="a-icon-alt">5.0 out of 5 stars</span></i>
  <a data-hook="review-title"><span class="a-icon-alt">5.0 out of 5 stars</span><span>Great value</span></a>
  <span data-hook="review-date">Reviewed in India on 1 August 2026</span>
  <span data-hook="review-body"><div class="review-text-content"><span>Works well for the price.</span></div></span>
</li>
<li data-hook="review">
  <span class="a-profile-name">Ravi</span>
  <i data-hook="review-star-rating"><span class="a-icon-alt">3.0 out of 5 stars</span></i>
  <a data-hook="review-title"><span>Average build</span></a>
  <span data-hook="review-date">Reviewed in India on 2 August 2026</span>
  <span data-hook="review-body">It is fine.</span>
</li>
</ul></body></html>`

const divReviewsHTML = `<html><body>
<div id="customer_review-R1ABCDEF">
  <span class="a-profile-name">Meena</span>
  <span data-hook="review-body">Solid product.</span>
</div>
</body></html>`

func parseHTML(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestProductTitleTrimmed(t *testing.T) {
	doc := parseHTML(t, productPageHTML)
	assert.Equal(t, "Wireless Optical Mouse (Black)", ProductTitle(doc))
}

func TestPriceStripsTrailingDot(t *testing.T) {
	doc := parseHTML(t, productPageHTML)
	assert.Equal(t, "1,299", Price(doc))
}

func TestAboutItemsViaHeading(t *testing.T) {
	doc := parseHTML(t, productPageHTML)
	assert.Equal(t, []string{
		"2.4 GHz wireless connectivity",
		"12 month battery life",
	}, AboutItems(doc), "empty bullets are dropped")
}

func TestAboutItemsViaFeatureBullets(t *testing.T) {
	doc := parseHTML(t, featureBulletsHTML)
	assert.Equal(t, []string{"Adjustable arm", "Warm white light"}, AboutItems(doc))
}

func TestAboutItemsAbsent(t *testing.T) {
	doc := parseHTML(t, "<html><body><p>nothing here</p></body></html>")
	assert.Empty(t, AboutItems(doc))
}

func TestReviewsFromListBlocks(t *testing.T) {
	doc := parseHTML(t, reviewsPageHTML)
	reviews := Reviews(doc)
	require.Len(t, reviews, 2)

	assert.Equal(t, "Asha", reviews[0].ProfileName)
	assert.Equal(t, "5.0", reviews[0].Rating)
	assert.Equal(t, "Great value", reviews[0].ReviewTag, "the star-rating span in the title link is skipped")
	assert.Equal(t, "Reviewed in India on 1 August 2026", reviews[0].ReviewDate)
	assert.Equal(t, "Works well for the price.", reviews[0].ReviewText)

	assert.Equal(t, "Ravi", reviews[1].ProfileName)
	assert.Equal(t, "3.0", reviews[1].Rating)
	assert.Equal(t, "Average build", reviews[1].ReviewTag)
	assert.Equal(t, "It is fine.", reviews[1].ReviewText, "body text used when no inner content div exists")
}

func TestReviewsFromDivFallback(t *testing.T) {
	doc := parseHTML(t, divReviewsHTML)
	reviews := Reviews(doc)
	require.Len(t, reviews, 1)
	assert.Equal(t, "Meena", reviews[0].ProfileName)
	assert.Equal(t, "Solid product.", reviews[0].ReviewText)
}

func TestDedupeKeepsFirstOccurrence(t *testing.T) {
	reviews := []models.Review{
		{ProfileName: "Asha", ReviewTag: "Great value", ReviewText: "first"},
		{ProfileName: "Ravi", ReviewTag: "Average"},
		{ProfileName: "Asha", ReviewTag: "Great value", ReviewText: "repeat"},
	}
	got := Dedupe(reviews)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].ReviewText)
	assert.Equal(t, "Ravi", got[1].ProfileName)
}

// writeScrapeFixture builds a delimited scrape file through the real writer
func writeScrapeFixture(t *testing.T) string {
	t.Helper()
	w, err := storage.NewPageWriter(t.TempDir())
	require.NoError(t, err)

	_, err = w.WritePage("product_page", "https://www.amazon.in/dp/B0TESTASIN", productPageHTML)
	require.NoError(t, err)
	_, err = w.WritePage("reviews_page_1", "https://www.amazon.in/product-reviews/B0TESTASIN?pageNumber=1", reviewsPageHTML)
	require.NoError(t, err)
	// Page 2 re-serves one of page 1's reviews
	_, err = w.WritePage("reviews_page_2", "https://www.amazon.in/product-reviews/B0TESTASIN?pageNumber=2", reviewsPageHTML)
	require.NoError(t, err)

	return w.Path()
}

func TestPipelineFromFile(t *testing.T) {
	path := writeScrapeFixture(t)
	p := NewPipeline(nil, nil, zerolog.Nop())

	result, err := p.FromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "Wireless Optical Mouse (Black)", result.ProductTitle)
	assert.Equal(t, "1,299", result.Price)
	assert.Len(t, result.AboutThisItem, 2)
	assert.Len(t, result.Reviews, 2, "repeated reviews across pages collapse to one")
}

func TestPipelineRunPersists(t *testing.T) {
	path := writeScrapeFixture(t)
	outputDir := t.TempDir()

	db, err := storage.Open(filepath.Join(t.TempDir(), "scraper.db"))
	require.NoError(t, err)
	defer db.Close()

	products := storage.NewProductStore(db)
	reviews := storage.NewReviewStore(db)
	p := NewPipeline(products, reviews, zerolog.Nop())

	jsonPath, err := p.Run(path, outputDir, "run-1")
	require.NoError(t, err)

	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var result models.ExtractResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, "Wireless Optical Mouse (Black)", result.ProductTitle)

	productCount, err := products.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, productCount)

	reviewCount, err := reviews.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, reviewCount)

	product, err := products.GetByID(1)
	require.NoError(t, err)
	require.NotNil(t, product)
	assert.Equal(t, "B0TESTASIN", product.ASIN)
	assert.Equal(t, "run-1", product.RunID)
}
