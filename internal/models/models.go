// Package models contains shared data structures for the Amazon scraper.
package models

import (
	"time"
)

// RunState represents the terminal state of a scrape run
type RunState string

const (
	RunStateDone    RunState = "done"    // Pagination exhausted naturally
	RunStateAborted RunState = "aborted" // Unrecovered block/captcha/timeout
	RunStateFailed  RunState = "failed"  // Infrastructure fault (browser, disk)
)

// CaptchaKind identifies which detector check flagged the challenge
type CaptchaKind string

const (
	CaptchaKindURL         CaptchaKind = "url"
	CaptchaKindTitle       CaptchaKind = "title"
	CaptchaKindElement     CaptchaKind = "element"
	CaptchaKindTextPattern CaptchaKind = "text_pattern"
	CaptchaKindSmallPage   CaptchaKind = "small_page"
)

// PageRecord is one raw page recovered from a scrape output file
type PageRecord struct {
	Label     string `json:"label"`
	URL       string `json:"url"`
	Timestamp string `json:"timestamp"`
	Content   string `json:"content"`
}

// ScrapeRun records one end-to-end scrape of a product and its review pages
type ScrapeRun struct {
	ID         string    `json:"id"`
	ProductURL string    `json:"product_url"`
	OutputFile string    `json:"output_file"`
	State      RunState  `json:"state"`
	Pages      int       `json:"pages"`
	Bytes      int64     `json:"bytes"`
	Reason     string    `json:"reason,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Product holds the attributes extracted from a product page
type Product struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	ASIN      string    `json:"asin"`
	Title     string    `json:"title"`
	Price     string    `json:"price"`
	CreatedAt time.Time `json:"created_at"`
}

// Review holds one customer review extracted from a reviews page
type Review struct {
	ID          int64     `json:"-"`
	ProductID   int64     `json:"-"`
	ProfileName string    `json:"profile_name"`
	Rating      string    `json:"rating"`
	ReviewTag   string    `json:"review_tag"`
	ReviewDate  string    `json:"review_date"`
	ReviewText  string    `json:"review_text"`
	CreatedAt   time.Time `json:"-"`
}

// Key identifies a review for deduplication across pages
func (r *Review) Key() [2]string {
	return [2]string{r.ProfileName, r.ReviewTag}
}

// ExtractResult is the JSON document produced by the extraction pipeline
type ExtractResult struct {
	ProductTitle  string   `json:"product_title"`
	Price         string   `json:"price"`
	AboutThisItem []string `json:"about_this_item"`
	Reviews       []Review `json:"reviews"`
}
