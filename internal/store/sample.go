package store

import (
	"context"
	"database/sql"
	"fmt"
)

const sampleColumns = `id, item_id, store, captured_at, price, was_price, unit_price, promo_text, discount_percent`

// InsertSample appends a price sample to the history.
func (s *Store) InsertSample(ctx context.Context, sample *PriceSample) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO price_history (`+sampleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sample.ID, sample.ItemID, sample.Store, sample.CapturedAt,
		sample.Price, sample.WasPrice, sample.UnitPrice, sample.PromoText, sample.DiscountPercent)
	return err
}

// InsertSampleTx is InsertSample inside a caller-owned transaction. The
// capture worker commits one transaction per item so a crash mid-job keeps
// every previously committed item.
func (s *Store) InsertSampleTx(ctx context.Context, tx *sql.Tx, sample *PriceSample) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO price_history (`+sampleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sample.ID, sample.ItemID, sample.Store, sample.CapturedAt,
		sample.Price, sample.WasPrice, sample.UnitPrice, sample.PromoText, sample.DiscountPercent)
	return err
}

// History returns an item's samples in chronological order, optionally
// filtered to one store (empty store = all stores).
func (s *Store) History(ctx context.Context, itemID int64, storeName string) ([]*PriceSample, error) {
	query := `SELECT ` + sampleColumns + ` FROM price_history WHERE item_id = ?`
	args := []any{itemID}
	if storeName != "" {
		query += ` AND store = ?`
		args = append(args, storeName)
	}
	query += ` ORDER BY captured_at ASC, id ASC`

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSamples(rows)
}

// AllSamples returns the complete price history in chronological order.
// The catalogue is small and fixed; analytics reads the whole history.
func (s *Store) AllSamples(ctx context.Context) ([]*PriceSample, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+sampleColumns+` FROM price_history ORDER BY captured_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSamples(rows)
}

// LatestSamples returns, for every (item, store) pair, the sample with the
// greatest captured_at. Ties break on rowid, i.e. insertion order.
func (s *Store) LatestSamples(ctx context.Context) ([]*PriceSample, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+sampleColumns+` FROM price_history
		WHERE rowid IN (
			SELECT MAX(rowid) FROM price_history p2
			WHERE p2.captured_at = (
				SELECT MAX(captured_at) FROM price_history p3
				WHERE p3.item_id = p2.item_id AND p3.store = p2.store
			)
			GROUP BY p2.item_id, p2.store
		)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSamples(rows)
}

func scanSamples(rows *sql.Rows) ([]*PriceSample, error) {
	var samples []*PriceSample
	for rows.Next() {
		var p PriceSample
		err := rows.Scan(&p.ID, &p.ItemID, &p.Store, &p.CapturedAt,
			&p.Price, &p.WasPrice, &p.UnitPrice, &p.PromoText, &p.DiscountPercent)
		if err != nil {
			return nil, fmt.Errorf("scan price sample: %w", err)
		}
		samples = append(samples, &p)
	}
	return samples, rows.Err()
}
