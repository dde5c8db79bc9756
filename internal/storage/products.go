package storage

import (
	"database/sql"
	"fmt"
	"time"

	"amazon-scraper/internal/models"
)

// ProductStore handles product database operations
type ProductStore struct {
	db *Database
}

// NewProductStore creates a new ProductStore
func NewProductStore(db *Database) *ProductStore {
	return &ProductStore{db: db}
}

// Save inserts a product and fills in its generated ID
func (s *ProductStore) Save(product *models.Product) error {
	result, err := s.db.db.Exec(`
		INSERT INTO products (run_id, asin, title, price, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, product.RunID, product.ASIN, product.Title, product.Price, time.Now())

	if err != nil {
		return fmt.Errorf("failed to save product: %w", err)
	}

	id, err := result.LastInsertId()
	if err == nil {
		product.ID = id
	}
	return nil
}

// GetByID retrieves a product by ID
func (s *ProductStore) GetByID(id int64) (*models.Product, error) {
	product := &models.Product{}

	err := s.db.db.QueryRow(`
		SELECT id, run_id, asin, title, price, created_at
		FROM products WHERE id = ?
	`, id).Scan(
		&product.ID, &product.RunID, &product.ASIN,
		&product.Title, &product.Price, &product.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return product, nil
}

// Count returns the total number of products
func (s *ProductStore) Count() (int, error) {
	var count int
	err := s.db.db.QueryRow(`SELECT COUNT(*) FROM products`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return count, nil
}
