// Package cycle mines captured price history for discount patterns: how
// often an item goes on special at each store, when the next special is
// likely, and where to buy right now.
//
// Everything here is a pure function over already-fetched samples. Nothing
// writes; the functions are safe to call while a capture job is appending
// history.
package cycle

import (
	"math"
	"sort"
	"time"

	"github.com/hazyhaar/pricewatch/internal/store"
)

const msPerDay = 24 * 60 * 60 * 1000

// minEventsForCadence is the smallest history that yields an interval.
const minEventsForCadence = 2

// discountThresholdPercent classifies a sample as a discount event on its
// own, without a was-price to compare against.
const discountThresholdPercent = 10

// Insight summarizes the discount cadence for one (item, store) pair.
// Recomputed on demand; never persisted.
type Insight struct {
	// MinPrice is the lowest non-null price ever observed.
	MinPrice *float64 `json:"min_price"`
	// LastDiscountAt is the newest discount event, ms since epoch.
	LastDiscountAt *int64 `json:"last_discount"`
	// AvgIntervalDays is the mean of positive day-gaps between consecutive
	// discount events, rounded to 0.1. Nil with fewer than two events.
	AvgIntervalDays *float64 `json:"avg_discount_interval_days"`
	// NextExpectedAt extrapolates the last event by the average interval.
	// Nil whenever AvgIntervalDays is nil.
	NextExpectedAt *int64 `json:"next_expected_discount"`
}

// IsDiscountEvent reports whether a sample looks like a promotional drop:
// a discount of at least 10%, or a was-price above the current price.
func IsDiscountEvent(s *store.PriceSample) bool {
	if s.DiscountPercent != nil && *s.DiscountPercent >= discountThresholdPercent {
		return true
	}
	if s.WasPrice != nil && s.Price != nil && *s.WasPrice > *s.Price {
		return true
	}
	return false
}

// ComputeInsight derives the cycle summary from one (item, store) history.
// Samples may arrive in any order; they are read oldest-first.
func ComputeInsight(history []*store.PriceSample) *Insight {
	in := &Insight{}

	var events []int64
	for _, s := range sortedByTime(history) {
		if s.Price != nil && (in.MinPrice == nil || *s.Price < *in.MinPrice) {
			p := *s.Price
			in.MinPrice = &p
		}
		if IsDiscountEvent(s) {
			events = append(events, s.CapturedAt)
		}
	}
	if len(events) == 0 {
		return in
	}

	last := events[len(events)-1]
	in.LastDiscountAt = &last

	if len(events) < minEventsForCadence {
		return in
	}

	// Whole-day gaps between consecutive events; gaps of zero days (same-day
	// or sub-day re-observations) carry no cadence signal and are dropped.
	var gaps []int64
	for i := 1; i < len(events); i++ {
		if g := (events[i] - events[i-1]) / msPerDay; g > 0 {
			gaps = append(gaps, g)
		}
	}
	if len(gaps) == 0 {
		return in
	}

	var sum int64
	for _, g := range gaps {
		sum += g
	}
	avg := math.Round(float64(sum)/float64(len(gaps))*10) / 10
	in.AvgIntervalDays = &avg

	next := last + int64(math.Round(avg*msPerDay))
	in.NextExpectedAt = &next
	return in
}

// LatestPrices picks, per (item, store), the sample with the greatest
// captured_at. Tie order is unspecified.
func LatestPrices(samples []*store.PriceSample) map[int64]map[string]*store.PriceSample {
	out := make(map[int64]map[string]*store.PriceSample)
	for _, s := range samples {
		byStore := out[s.ItemID]
		if byStore == nil {
			byStore = make(map[string]*store.PriceSample)
			out[s.ItemID] = byStore
		}
		if cur := byStore[s.Store]; cur == nil || s.CapturedAt > cur.CapturedAt {
			byStore[s.Store] = s
		}
	}
	return out
}

// ComputeInsights runs ComputeInsight for every (item, store) pair present
// in the sample set.
func ComputeInsights(samples []*store.PriceSample) map[int64]map[string]*Insight {
	type key struct {
		itemID int64
		store  string
	}
	grouped := make(map[key][]*store.PriceSample)
	for _, s := range samples {
		k := key{s.ItemID, s.Store}
		grouped[k] = append(grouped[k], s)
	}

	out := make(map[int64]map[string]*Insight)
	for k, history := range grouped {
		byStore := out[k.itemID]
		if byStore == nil {
			byStore = make(map[string]*Insight)
			out[k.itemID] = byStore
		}
		byStore[k.store] = ComputeInsight(history)
	}
	return out
}

// BestStore returns the cheapest currently-priced store for an item, or
// ok=false when no store has a priced latest sample. Candidates are walked
// in sorted store-name order, so a price tie always resolves to the same
// store and repeated buylist renders stay stable.
func BestStore(latest map[string]*store.PriceSample) (string, float64, bool) {
	names := make([]string, 0, len(latest))
	for name := range latest {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		bestStore string
		bestPrice float64
		found     bool
	)
	for _, name := range names {
		s := latest[name]
		if s == nil || s.Price == nil {
			continue
		}
		if !found || *s.Price < bestPrice {
			bestStore, bestPrice, found = name, *s.Price, true
		}
	}
	return bestStore, bestPrice, found
}

func sortedByTime(samples []*store.PriceSample) []*store.PriceSample {
	out := make([]*store.PriceSample, len(samples))
	copy(out, samples)
	sort.Slice(out, func(i, j int) bool { return out[i].CapturedAt < out[j].CapturedAt })
	return out
}

// daysBetween is a calendar-date difference in whole days, UTC.
func daysBetween(fromMs, toMs int64) int {
	from := time.UnixMilli(fromMs).UTC().Truncate(24 * time.Hour)
	to := time.UnixMilli(toMs).UTC().Truncate(24 * time.Hour)
	return int(to.Sub(from) / (24 * time.Hour))
}
