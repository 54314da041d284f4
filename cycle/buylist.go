package cycle

import (
	"fmt"
	"sort"

	"github.com/hazyhaar/pricewatch/internal/store"
)

// UnpricedGroup collects items with no priced store at all.
const UnpricedGroup = "UNPRICED"

// waitWindowDays is how far out a predicted discount still justifies
// holding off a purchase.
const waitWindowDays = 14

// waitPriceMargin: waiting is only worth it when the current price sits
// more than 5% above the historical minimum.
const waitPriceMargin = 1.05

// Entry is one item's placement in the buylist.
type Entry struct {
	Item *store.Item `json:"item"`
	// Store is the cheapest currently-priced store. Empty for UNPRICED.
	Store string `json:"store,omitempty"`
	// Price is the latest price at Store. Nil for UNPRICED.
	Price *float64 `json:"price,omitempty"`
	// Sample is the latest observation backing Price.
	Sample *store.PriceSample `json:"sample,omitempty"`
	Wait   bool               `json:"wait"`
	Note   string             `json:"note,omitempty"`
}

// BuylistGroups places every item under its cheapest currently-priced store,
// or under UNPRICED when no store has a price. An entry is tagged wait=true
// when the next expected discount falls within the next two weeks and the
// current price exceeds the historical minimum by more than 5%.
//
// now anchors the "days until discount" arithmetic; pass time.Now().UnixMilli()
// outside tests. Groups are sorted by (category, name) for stable display.
func BuylistGroups(items []*store.Item, latest map[int64]map[string]*store.PriceSample, insights map[int64]map[string]*Insight, now int64) map[string][]*Entry {
	groups := map[string][]*Entry{
		"ALDI":        {},
		"COLES":       {},
		"WOOLWORTHS":  {},
		UnpricedGroup: {},
	}

	for _, item := range items {
		lp := latest[item.ID]
		storeName, price, ok := BestStore(lp)
		if !ok {
			groups[UnpricedGroup] = append(groups[UnpricedGroup], &Entry{
				Item: item,
				Note: "No captured prices yet",
			})
			continue
		}

		entry := &Entry{
			Item:   item,
			Store:  storeName,
			Price:  &price,
			Sample: lp[storeName],
		}

		if in := insights[item.ID][storeName]; in != nil && in.NextExpectedAt != nil && in.MinPrice != nil {
			daysTo := daysBetween(now, *in.NextExpectedAt)
			if daysTo >= 0 && daysTo <= waitWindowDays && price > *in.MinPrice*waitPriceMargin {
				entry.Wait = true
				entry.Note = fmt.Sprintf("Likely discount in ~%d days (based on history)", daysTo)
			}
		}

		groups[storeName] = append(groups[storeName], entry)
	}

	for _, entries := range groups {
		sort.Slice(entries, func(i, j int) bool {
			ci, cj := sortCategory(entries[i].Item), sortCategory(entries[j].Item)
			if ci != cj {
				return ci < cj
			}
			return entries[i].Item.Name < entries[j].Item.Name
		})
	}
	return groups
}

// sortCategory sinks uncategorised items to the bottom of their group.
func sortCategory(item *store.Item) string {
	if item.Category == nil || *item.Category == "" {
		return "ZZZ"
	}
	return *item.Category
}
