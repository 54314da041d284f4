package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/hazyhaar/pricewatch/internal/store"
)

// seedRow mirrors one entry in the catalogue seed file.
type seedRow struct {
	Name           string   `json:"name"`
	Category       *string  `json:"category"`
	Brand          *string  `json:"brand"`
	BuyFreq        *string  `json:"buy_freq"`
	BuyQty         *float64 `json:"buy_qty"`
	PreferredStore *string  `json:"preferred_store"`
	Stores         map[string]*seedLink `json:"stores"`
}

type seedLink struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// seedFromJSONIfEmpty loads the catalogue from a JSON file the first time
// the database comes up. A populated items table makes this a no-op, so
// hand edits are never clobbered on restart.
func seedFromJSONIfEmpty(ctx context.Context, st *store.Store, path string) (int, error) {
	count, err := st.CountItems(ctx)
	if err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}
	var rows []seedRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return 0, fmt.Errorf("parse seed file: %w", err)
	}

	seeded := 0
	for _, r := range rows {
		item := &store.Item{
			Name:           r.Name,
			Category:       r.Category,
			Brand:          r.Brand,
			BuyFreq:        r.BuyFreq,
			BuyQty:         r.BuyQty,
			PreferredStore: r.PreferredStore,
		}
		if err := st.InsertItem(ctx, item); err != nil {
			return seeded, fmt.Errorf("seed item %q: %w", r.Name, err)
		}
		for storeName, link := range r.Stores {
			if link == nil || link.URL == "" {
				continue
			}
			err := st.UpsertLink(ctx, &store.StoreLink{
				ItemID: item.ID,
				Store:  storeName,
				Label:  link.Label,
				URL:    link.URL,
			})
			if err != nil {
				return seeded, fmt.Errorf("seed link %q/%s: %w", r.Name, storeName, err)
			}
		}
		seeded++
	}
	return seeded, nil
}
