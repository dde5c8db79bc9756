package storage

import (
	"database/sql"
	"fmt"

	"amazon-scraper/internal/models"
)

// RunStore handles scrape run database operations
type RunStore struct {
	db *Database
}

// NewRunStore creates a new RunStore
func NewRunStore(db *Database) *RunStore {
	return &RunStore{db: db}
}

// Save inserts or updates a run record
func (s *RunStore) Save(run *models.ScrapeRun) error {
	_, err := s.db.db.Exec(`
		INSERT INTO runs (id, product_url, output_file, state, pages, bytes, reason, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			output_file = excluded.output_file,
			state = excluded.state,
			pages = excluded.pages,
			bytes = excluded.bytes,
			reason = excluded.reason,
			finished_at = excluded.finished_at
	`, run.ID, run.ProductURL, run.OutputFile, run.State,
		run.Pages, run.Bytes, run.Reason, run.StartedAt, run.FinishedAt)

	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetByID retrieves a run by its identifier
func (s *RunStore) GetByID(id string) (*models.ScrapeRun, error) {
	run := &models.ScrapeRun{}

	err := s.db.db.QueryRow(`
		SELECT id, product_url, output_file, state, pages, bytes, reason, started_at, finished_at
		FROM runs WHERE id = ?
	`, id).Scan(
		&run.ID, &run.ProductURL, &run.OutputFile, &run.State,
		&run.Pages, &run.Bytes, &run.Reason, &run.StartedAt, &run.FinishedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// Recent retrieves the most recent runs, newest first
func (s *RunStore) Recent(limit int) ([]*models.ScrapeRun, error) {
	rows, err := s.db.db.Query(`
		SELECT id, product_url, output_file, state, pages, bytes, reason, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)

	if err != nil {
		return nil, fmt.Errorf("failed to get recent runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.ScrapeRun
	for rows.Next() {
		run := &models.ScrapeRun{}
		err := rows.Scan(
			&run.ID, &run.ProductURL, &run.OutputFile, &run.State,
			&run.Pages, &run.Bytes, &run.Reason, &run.StartedAt, &run.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Count returns the total number of recorded runs
func (s *RunStore) Count() (int, error) {
	var count int
	err := s.db.db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return count, nil
}
