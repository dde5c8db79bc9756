// Package storage provides the raw page sink and SQLite persistence for
// extracted records.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"amazon-scraper/internal/models"
)

const pageSeparator = "================================================================================"

// pageHeaderPattern matches one page delimiter block in a scrape file
var pageHeaderPattern = regexp.MustCompile(
	`={80}\nPAGE:\s*(.+?)\nURL:\s*(.+?)\nTIMESTAMP:\s*(.+?)\nSIZE:\s*(.+?)\n={80}\n`)

// PageWriter appends raw page content to a single scrape file, one
// delimited block per page. The file survives an aborted run; whatever
// pages were written before the abort stay readable.
type PageWriter struct {
	path string
	now  func() time.Time
}

// NewPageWriter creates a writer for a timestamped scrape file under dir
func NewPageWriter(dir string) (*PageWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	name := fmt.Sprintf("scrape_%s.txt", time.Now().Format("20060102_150405"))
	return &PageWriter{
		path: filepath.Join(dir, name),
		now:  time.Now,
	}, nil
}

// Path returns the scrape file location
func (w *PageWriter) Path() string {
	return w.path
}

// WritePage appends one page block and returns the content size in bytes
func (w *PageWriter) WritePage(label, url, content string) (int, error) {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to open scrape file: %w", err)
	}
	defer f.Close()

	header := fmt.Sprintf("\n\n%s\nPAGE: %s\nURL: %s\nTIMESTAMP: %s\nSIZE: %d bytes\n%s\n\n",
		pageSeparator, label, url, w.now().Format("2006-01-02 15:04:05"), len(content), pageSeparator)

	if _, err := f.WriteString(header + content); err != nil {
		return 0, fmt.Errorf("failed to write page block: %w", err)
	}
	return len(content), nil
}

// SplitPages recovers the page blocks from a scrape file. A file with no
// delimiters at all is treated as a single page labeled "full_file".
func SplitPages(path string) ([]models.PageRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scrape file: %w", err)
	}
	content := string(data)

	matches := pageHeaderPattern.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		if strings.TrimSpace(content) == "" {
			return nil, nil
		}
		return []models.PageRecord{{Label: "full_file", Content: content}}, nil
	}

	pages := make([]models.PageRecord, 0, len(matches))
	for i, m := range matches {
		end := len(content)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		pages = append(pages, models.PageRecord{
			Label:     content[m[2]:m[3]],
			URL:       content[m[4]:m[5]],
			Timestamp: content[m[6]:m[7]],
			Content:   strings.TrimSpace(content[m[1]:end]),
		})
	}
	return pages, nil
}

// NewestScrapeFile returns the most recently modified scrape file in dir
func NewestScrapeFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read output directory: %w", err)
	}

	var newest string
	var newestTime time.Time
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "scrape_") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestTime) {
			newest = filepath.Join(dir, entry.Name())
			newestTime = info.ModTime()
		}
	}
	if newest == "" {
		return "", fmt.Errorf("no scrape files found in %s", dir)
	}
	return newest, nil
}
