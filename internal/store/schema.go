package store

import "database/sql"

// Schema is the complete pricewatch schema. Timestamps are milliseconds
// since epoch (INTEGER), prices are REAL, nullable where a capture may not
// have produced a value.
const Schema = `
-- Catalogue items
CREATE TABLE IF NOT EXISTS items (
    id              INTEGER PRIMARY KEY,
    name            TEXT NOT NULL,
    category        TEXT,
    brand           TEXT,
    buy_freq        TEXT,
    buy_qty         REAL,
    preferred_store TEXT
);

-- Per-store product pages for an item
CREATE TABLE IF NOT EXISTS store_links (
    id          INTEGER PRIMARY KEY,
    item_id     INTEGER NOT NULL REFERENCES items(id) ON DELETE CASCADE,
    store       TEXT NOT NULL,
    label       TEXT NOT NULL DEFAULT '',
    url         TEXT NOT NULL DEFAULT '',
    UNIQUE (item_id, store)
);
CREATE INDEX IF NOT EXISTS idx_store_links_item ON store_links(item_id);

-- Append-only price history. Rows are never updated or deleted.
CREATE TABLE IF NOT EXISTS price_history (
    id               TEXT PRIMARY KEY,
    item_id          INTEGER NOT NULL REFERENCES items(id) ON DELETE CASCADE,
    store            TEXT NOT NULL,
    captured_at      INTEGER NOT NULL,
    price            REAL,
    was_price        REAL,
    unit_price       REAL,
    promo_text       TEXT,
    discount_percent REAL
);
CREATE INDEX IF NOT EXISTS idx_price_history_item_store ON price_history(item_id, store, captured_at);

-- Capture jobs. Status transitions strictly queued -> running -> done|error.
CREATE TABLE IF NOT EXISTS capture_jobs (
    id           TEXT PRIMARY KEY,
    status       TEXT NOT NULL DEFAULT 'queued',
    store_filter TEXT NOT NULL DEFAULT '',
    created_at   INTEGER NOT NULL,
    started_at   INTEGER,
    finished_at  INTEGER,
    message      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_capture_jobs_status ON capture_jobs(status, created_at);

-- Serialized browsing sessions, one blob per store.
CREATE TABLE IF NOT EXISTS browser_sessions (
    store      TEXT PRIMARY KEY,
    state      BLOB NOT NULL,
    updated_at INTEGER NOT NULL
);
`

// ApplySchema creates all tables and indexes on the given database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
