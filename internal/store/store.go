// Package store persists the pricewatch catalogue, price history, capture
// jobs, and browser session blobs in SQLite.
package store

import "database/sql"

// Store wraps a *sql.DB with pricewatch queries.
type Store struct {
	DB *sql.DB
}

// NewStore creates a Store for the given database.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}
