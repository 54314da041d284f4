package store

import (
	"context"
	"database/sql"
	"fmt"
)

// InsertItem adds a catalogue item. If item.ID is zero the database assigns
// one and the struct is updated in place.
func (s *Store) InsertItem(ctx context.Context, item *Item) error {
	if item.ID != 0 {
		_, err := s.DB.ExecContext(ctx,
			`INSERT INTO items (id, name, category, brand, buy_freq, buy_qty, preferred_store)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			item.ID, item.Name, item.Category, item.Brand, item.BuyFreq, item.BuyQty, item.PreferredStore)
		return err
	}
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO items (name, category, brand, buy_freq, buy_qty, preferred_store)
		VALUES (?, ?, ?, ?, ?, ?)`,
		item.Name, item.Category, item.Brand, item.BuyFreq, item.BuyQty, item.PreferredStore)
	if err != nil {
		return err
	}
	item.ID, err = res.LastInsertId()
	return err
}

// GetItem retrieves an item by ID. Returns nil, nil when not found.
func (s *Store) GetItem(ctx context.Context, id int64) (*Item, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, name, category, brand, buy_freq, buy_qty, preferred_store
		FROM items WHERE id = ?`, id)
	var it Item
	err := row.Scan(&it.ID, &it.Name, &it.Category, &it.Brand, &it.BuyFreq, &it.BuyQty, &it.PreferredStore)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan item: %w", err)
	}
	return &it, nil
}

// ListItems returns all catalogue items ordered by id.
func (s *Store) ListItems(ctx context.Context) ([]*Item, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, name, category, brand, buy_freq, buy_qty, preferred_store
		FROM items ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Name, &it.Category, &it.Brand, &it.BuyFreq, &it.BuyQty, &it.PreferredStore); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}

// CountItems returns the catalogue size.
func (s *Store) CountItems(ctx context.Context) (int, error) {
	var count int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&count)
	return count, err
}

// UpsertLink inserts or replaces an item's store link.
func (s *Store) UpsertLink(ctx context.Context, link *StoreLink) error {
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO store_links (item_id, store, label, url) VALUES (?, ?, ?, ?)
		ON CONFLICT (item_id, store) DO UPDATE SET label = excluded.label, url = excluded.url`,
		link.ItemID, link.Store, link.Label, link.URL)
	if err != nil {
		return err
	}
	if link.ID == 0 {
		link.ID, _ = res.LastInsertId()
	}
	return nil
}

// LinksForItem returns an item's store links ordered by store name.
func (s *Store) LinksForItem(ctx context.Context, itemID int64) ([]*StoreLink, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, item_id, store, label, url
		FROM store_links WHERE item_id = ? ORDER BY store ASC`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []*StoreLink
	for rows.Next() {
		var l StoreLink
		if err := rows.Scan(&l.ID, &l.ItemID, &l.Store, &l.Label, &l.URL); err != nil {
			return nil, fmt.Errorf("scan store link: %w", err)
		}
		links = append(links, &l)
	}
	return links, rows.Err()
}
