package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"amazon-scraper/internal/models"
)

var ratingPattern = regexp.MustCompile(`([\d.]+)\s*out of`)

// Reviews extracts every review block on a page. The storefront renders
// reviews as li[data-hook=review]; some page variants use div containers
// with customer_review- ids instead.
func Reviews(doc *goquery.Document) []models.Review {
	blocks := doc.Find(`li[data-hook="review"]`)
	if blocks.Length() == 0 {
		blocks = doc.Find(`div[id^="customer_review-"]`)
	}

	var reviews []models.Review
	blocks.Each(func(_ int, block *goquery.Selection) {
		reviews = append(reviews, models.Review{
			ProfileName: strings.TrimSpace(block.Find("span.a-profile-name").First().Text()),
			Rating:      extractRating(block),
			ReviewTag:   extractReviewTag(block),
			ReviewDate:  strings.TrimSpace(block.Find(`span[data-hook="review-date"]`).First().Text()),
			ReviewText:  extractReviewText(block),
		})
	})
	return reviews
}

// Dedupe drops reviews already seen under the same (profile name, tag)
// pair, keeping first occurrences in order. Paginated review lists
// repeat entries when the storefront re-serves a page.
func Dedupe(reviews []models.Review) []models.Review {
	seen := make(map[[2]string]bool, len(reviews))
	out := reviews[:0]
	for _, r := range reviews {
		key := r.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

func extractRating(block *goquery.Selection) string {
	alt := block.Find(`i[data-hook="review-star-rating"] span.a-icon-alt`).First().Text()
	alt = strings.TrimSpace(alt)
	if m := ratingPattern.FindStringSubmatch(alt); m != nil {
		return m[1]
	}
	return alt
}

// extractReviewTag returns the headline text, skipping the star-rating
// span that shares the title link
func extractReviewTag(block *goquery.Selection) string {
	tag := ""
	block.Find(`a[data-hook="review-title"] span`).EachWithBreak(func(_ int, span *goquery.Selection) bool {
		if span.HasClass("a-icon-alt") {
			return true
		}
		text := strings.TrimSpace(span.Text())
		if text == "" {
			return true
		}
		tag = text
		return false
	})
	return tag
}

func extractReviewText(block *goquery.Selection) string {
	body := block.Find(`span[data-hook="review-body"]`).First()
	if body.Length() == 0 {
		return ""
	}
	inner := body.Find(`div[class*="review-text-content"]`).First()
	if inner.Length() > 0 {
		return strings.TrimSpace(inner.Text())
	}
	return strings.TrimSpace(body.Text())
}
