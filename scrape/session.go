package scrape

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SessionStore persists one opaque session blob per store (cookies and
// local browsing data serialized by the scraper). Reusing a session across
// runs reduces repeated challenge/verification friction on the target
// sites. Load returns nil, nil when no blob exists yet.
type SessionStore interface {
	Load(ctx context.Context, store string) ([]byte, error)
	Save(ctx context.Context, store string, blob []byte) error
}

// DirSessionStore keeps session blobs as files under a directory, one
// <store>.json per store.
type DirSessionStore struct {
	Dir string
}

func (d DirSessionStore) path(store string) string {
	return filepath.Join(d.Dir, strings.ToLower(store)+".json")
}

// Load implements SessionStore.
func (d DirSessionStore) Load(_ context.Context, store string) ([]byte, error) {
	blob, err := os.ReadFile(d.path(store))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scrape: read session: %w", err)
	}
	return blob, nil
}

// Save implements SessionStore.
func (d DirSessionStore) Save(_ context.Context, store string, blob []byte) error {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("scrape: session dir: %w", err)
	}
	if err := os.WriteFile(d.path(store), blob, 0o600); err != nil {
		return fmt.Errorf("scrape: write session: %w", err)
	}
	return nil
}
