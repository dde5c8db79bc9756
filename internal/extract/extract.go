package extract

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"amazon-scraper/internal/models"
	"amazon-scraper/internal/storage"
)

var asinPattern = regexp.MustCompile(`/(?:dp|product-reviews)/([A-Z0-9]{10})`)

// Pipeline turns a raw scrape file into structured records: a JSON
// document on disk plus product and review rows in the database.
type Pipeline struct {
	products *storage.ProductStore
	reviews  *storage.ReviewStore
	logger   zerolog.Logger
}

// NewPipeline creates an extraction pipeline. The stores may be nil, in
// which case only the JSON document is produced.
func NewPipeline(products *storage.ProductStore, reviews *storage.ReviewStore, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		products: products,
		reviews:  reviews,
		logger:   logger.With().Str("component", "extract").Logger(),
	}
}

// FromFile extracts product info and reviews from one scrape file
func (p *Pipeline) FromFile(path string) (*models.ExtractResult, error) {
	pages, err := storage.SplitPages(path)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("scrape file %s contains no pages", path)
	}
	p.logger.Info().Int("pages", len(pages)).Str("file", filepath.Base(path)).Msg("Loaded scrape file")
	return p.fromPages(pages)
}

func (p *Pipeline) fromPages(pages []models.PageRecord) (*models.ExtractResult, error) {
	result := &models.ExtractResult{}

	for _, page := range pages {
		if page.Label != "product_page" && page.Label != "full_file" {
			continue
		}
		doc, err := parsePage(page)
		if err != nil {
			return nil, err
		}
		result.ProductTitle = ProductTitle(doc)
		result.Price = Price(doc)
		result.AboutThisItem = AboutItems(doc)
		p.logger.Info().
			Str("title", result.ProductTitle).
			Str("price", result.Price).
			Int("bullets", len(result.AboutThisItem)).
			Msg("Product info extracted")
		break
	}

	var all []models.Review
	for _, page := range pages {
		doc, err := parsePage(page)
		if err != nil {
			return nil, err
		}
		all = append(all, Reviews(doc)...)
	}
	result.Reviews = Dedupe(all)
	p.logger.Info().Int("reviews", len(result.Reviews)).Msg("Reviews extracted")

	return result, nil
}

// Run extracts a scrape file, writes the JSON document under outputDir,
// and persists the records when stores are configured. Returns the JSON
// file path.
func (p *Pipeline) Run(path, outputDir, runID string) (string, error) {
	pages, err := storage.SplitPages(path)
	if err != nil {
		return "", err
	}
	if len(pages) == 0 {
		return "", fmt.Errorf("scrape file %s contains no pages", path)
	}
	result, err := p.fromPages(pages)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	jsonPath := filepath.Join(outputDir, fmt.Sprintf("product_%s.json", time.Now().Format("20060102_150405")))

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode extraction result: %w", err)
	}
	if err := os.WriteFile(jsonPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write extraction result: %w", err)
	}
	p.logger.Info().Str("file", jsonPath).Msg("Extraction result saved")

	if p.products != nil && result.ProductTitle != "" {
		product := &models.Product{
			RunID: runID,
			ASIN:  detectASIN(pages),
			Title: result.ProductTitle,
			Price: result.Price,
		}
		if err := p.products.Save(product); err != nil {
			return "", err
		}
		if p.reviews != nil {
			saved, err := p.reviews.SaveAll(product.ID, result.Reviews)
			if err != nil {
				return "", err
			}
			p.logger.Info().Int("saved", saved).Int64("productID", product.ID).Msg("Reviews persisted")
		}
	}

	return jsonPath, nil
}

// detectASIN scans the page URLs for an ASIN
func detectASIN(pages []models.PageRecord) string {
	for _, page := range pages {
		if m := asinPattern.FindStringSubmatch(page.URL); m != nil {
			return m[1]
		}
	}
	return ""
}

func parsePage(page models.PageRecord) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page %s: %w", page.Label, err)
	}
	return doc, nil
}
