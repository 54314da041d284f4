package store

import (
	"context"
	"database/sql"
	"time"
)

// SessionState loads the serialized browsing session for a store.
// Returns nil, nil when no session has been saved yet.
func (s *Store) SessionState(ctx context.Context, storeName string) ([]byte, error) {
	var blob []byte
	err := s.DB.QueryRowContext(ctx,
		`SELECT state FROM browser_sessions WHERE store = ?`, storeName).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return blob, nil
}

// SaveSessionState persists a store's session blob, replacing any previous one.
func (s *Store) SaveSessionState(ctx context.Context, storeName string, blob []byte) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO browser_sessions (store, state, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (store) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		storeName, blob, time.Now().UnixMilli())
	return err
}

// Sessions adapts the Store to the scrape.SessionStore interface.
type Sessions struct {
	S *Store
}

// Load implements scrape.SessionStore.
func (ss Sessions) Load(ctx context.Context, storeName string) ([]byte, error) {
	return ss.S.SessionState(ctx, storeName)
}

// Save implements scrape.SessionStore.
func (ss Sessions) Save(ctx context.Context, storeName string, blob []byte) error {
	return ss.S.SaveSessionState(ctx, storeName, blob)
}
