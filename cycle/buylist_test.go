package cycle

import (
	"strings"
	"testing"

	"github.com/hazyhaar/pricewatch/internal/store"
)

func item(id int64, name string, category string) *store.Item {
	it := &store.Item{ID: id, Name: name}
	if category != "" {
		it.Category = &category
	}
	return it
}

func TestBuylistWaitWhenDiscountDue(t *testing.T) {
	// WHAT: $5.00 now, $4.00 historical minimum, discount expected in 7
	// days: placed under the store with wait=true and a "7 days" note.
	now := ms(day(100))
	it := item(1, "Tim Tams", "Snacks")
	latest := map[int64]map[string]*store.PriceSample{
		1: {"COLES": sample(1, "COLES", day(99), 5.00)},
	}
	insights := map[int64]map[string]*Insight{
		1: {"COLES": {
			MinPrice:        ptr(4.00),
			AvgIntervalDays: ptr(14.0),
			NextExpectedAt:  ptr(ms(day(107))),
		}},
	}

	groups := BuylistGroups([]*store.Item{it}, latest, insights, now)
	entries := groups["COLES"]
	if len(entries) != 1 {
		t.Fatalf("COLES entries = %d", len(entries))
	}
	e := entries[0]
	if !e.Wait {
		t.Error("expected wait=true")
	}
	if !strings.Contains(e.Note, "7 days") {
		t.Errorf("note = %q", e.Note)
	}
	if e.Price == nil || *e.Price != 5.00 {
		t.Errorf("price = %v", e.Price)
	}
}

func TestBuylistNoWaitNearMinimum(t *testing.T) {
	// WHAT: $4.10 against a $4.00 minimum sits inside the 5% margin, so
	// buying now is fine even with a discount due.
	now := ms(day(100))
	it := item(1, "Tim Tams", "Snacks")
	latest := map[int64]map[string]*store.PriceSample{
		1: {"COLES": sample(1, "COLES", day(99), 4.10)},
	}
	insights := map[int64]map[string]*Insight{
		1: {"COLES": {
			MinPrice:       ptr(4.00),
			NextExpectedAt: ptr(ms(day(107))),
		}},
	}

	groups := BuylistGroups([]*store.Item{it}, latest, insights, now)
	e := groups["COLES"][0]
	if e.Wait {
		t.Errorf("expected wait=false, note = %q", e.Note)
	}
	if e.Note != "" {
		t.Errorf("note = %q", e.Note)
	}
}

func TestBuylistNoWaitOutsideWindow(t *testing.T) {
	// WHAT: A discount predicted 20 days out is too far to wait for; one
	// predicted in the past does not trigger either.
	now := ms(day(100))
	it := item(1, "Tim Tams", "Snacks")
	latest := map[int64]map[string]*store.PriceSample{
		1: {"COLES": sample(1, "COLES", day(99), 5.00)},
	}

	for name, next := range map[string]int64{
		"far future": ms(day(120)),
		"in the past": ms(day(95)),
	} {
		insights := map[int64]map[string]*Insight{
			1: {"COLES": {MinPrice: ptr(4.00), NextExpectedAt: ptr(next)}},
		}
		groups := BuylistGroups([]*store.Item{it}, latest, insights, now)
		if e := groups["COLES"][0]; e.Wait {
			t.Errorf("%s: expected wait=false", name)
		}
	}
}

func TestBuylistUnpricedBucket(t *testing.T) {
	// WHAT: Items with no priced store land in UNPRICED with a note.
	items := []*store.Item{
		item(1, "New Item", ""),
		item(2, "Milk", "Dairy"),
	}
	latest := map[int64]map[string]*store.PriceSample{
		2: {"ALDI": sample(2, "ALDI", day(0), 3.10)},
	}

	groups := BuylistGroups(items, latest, nil, ms(day(1)))
	if len(groups[UnpricedGroup]) != 1 {
		t.Fatalf("UNPRICED = %d entries", len(groups[UnpricedGroup]))
	}
	e := groups[UnpricedGroup][0]
	if e.Item.ID != 1 || e.Note != "No captured prices yet" || e.Wait {
		t.Errorf("entry = %+v", e)
	}
	if len(groups["ALDI"]) != 1 {
		t.Errorf("ALDI = %d entries", len(groups["ALDI"]))
	}
}

func TestBuylistTiedPricePlacementIsStable(t *testing.T) {
	// WHAT: An item tied across two stores lands in the same group on
	// every render.
	it := item(1, "Tim Tams", "Snacks")
	latest := map[int64]map[string]*store.PriceSample{
		1: {
			"WOOLWORTHS": sample(1, "WOOLWORTHS", day(0), 4.50),
			"COLES":      sample(1, "COLES", day(0), 4.50),
		},
	}

	for i := 0; i < 50; i++ {
		groups := BuylistGroups([]*store.Item{it}, latest, nil, ms(day(1)))
		if len(groups["COLES"]) != 1 || len(groups["WOOLWORTHS"]) != 0 {
			t.Fatalf("render %d: COLES=%d WOOLWORTHS=%d, want stable COLES placement",
				i, len(groups["COLES"]), len(groups["WOOLWORTHS"]))
		}
	}
}

func TestBuylistGroupOrdering(t *testing.T) {
	// WHAT: Entries sort by (category, name); uncategorised sink last.
	items := []*store.Item{
		item(1, "Zucchini", "Veg"),
		item(2, "Apples", ""),
		item(3, "Bread", "Bakery"),
		item(4, "Bagels", "Bakery"),
	}
	latest := map[int64]map[string]*store.PriceSample{}
	for _, it := range items {
		latest[it.ID] = map[string]*store.PriceSample{
			"COLES": sample(it.ID, "COLES", day(0), 2.00),
		}
	}

	groups := BuylistGroups(items, latest, nil, ms(day(1)))
	var names []string
	for _, e := range groups["COLES"] {
		names = append(names, e.Item.Name)
	}
	want := []string{"Bagels", "Bread", "Zucchini", "Apples"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("order = %v, want %v", names, want)
		}
	}
}
