package storage

import (
	"database/sql"
	"fmt"
	"time"

	"amazon-scraper/internal/models"
)

// ReviewStore handles review database operations
type ReviewStore struct {
	db *Database
}

// NewReviewStore creates a new ReviewStore
func NewReviewStore(db *Database) *ReviewStore {
	return &ReviewStore{db: db}
}

// SaveAll inserts the reviews for one product in a single transaction.
// A review already present for the product is skipped, so re-running the
// extraction over the same scrape file does not duplicate rows.
func (s *ReviewStore) SaveAll(productID int64, reviews []models.Review) (int, error) {
	saved := 0

	err := s.db.Transaction(func(tx *sql.Tx) error {
		for _, review := range reviews {
			result, err := tx.Exec(`
				INSERT OR IGNORE INTO reviews (product_id, profile_name, rating, review_tag, review_date, review_text, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, productID, review.ProfileName, review.Rating,
				review.ReviewTag, review.ReviewDate, review.ReviewText, time.Now())
			if err != nil {
				return fmt.Errorf("failed to save review: %w", err)
			}
			if n, err := result.RowsAffected(); err == nil {
				saved += int(n)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return saved, nil
}

// GetByProduct retrieves every review stored for a product
func (s *ReviewStore) GetByProduct(productID int64) ([]models.Review, error) {
	rows, err := s.db.db.Query(`
		SELECT id, product_id, profile_name, rating, review_tag, review_date, review_text, created_at
		FROM reviews
		WHERE product_id = ?
		ORDER BY id ASC
	`, productID)

	if err != nil {
		return nil, fmt.Errorf("failed to get reviews: %w", err)
	}
	defer rows.Close()

	var reviews []models.Review
	for rows.Next() {
		var review models.Review
		err := rows.Scan(
			&review.ID, &review.ProductID, &review.ProfileName, &review.Rating,
			&review.ReviewTag, &review.ReviewDate, &review.ReviewText, &review.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, review)
	}
	return reviews, rows.Err()
}

// Count returns the total number of reviews
func (s *ReviewStore) Count() (int, error) {
	var count int
	err := s.db.db.QueryRow(`SELECT COUNT(*) FROM reviews`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count reviews: %w", err)
	}
	return count, nil
}
