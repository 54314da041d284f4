package store

// Job statuses. Transitions are strictly queued -> running -> done|error;
// terminal states are never revisited.
const (
	JobQueued  = "queued"
	JobRunning = "running"
	JobDone    = "done"
	JobError   = "error"
)

// Item is a catalogue entry. The catalogue is fixed and hand-maintained;
// pricewatch only reads it.
type Item struct {
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	Category       *string  `json:"category"`
	Brand          *string  `json:"brand"`
	BuyFreq        *string  `json:"buy_freq"`
	BuyQty         *float64 `json:"buy_qty"`
	PreferredStore *string  `json:"preferred_store"`
}

// StoreLink is an item's product page at one store.
type StoreLink struct {
	ID     int64  `json:"id"`
	ItemID int64  `json:"item_id"`
	Store  string `json:"store"`
	Label  string `json:"label"`
	URL    string `json:"url"`
}

// PriceSample is one captured price observation. Append-only: samples are
// never mutated or deleted.
//
// DiscountPercent is set only when was_price > price > 0, computed as
// round((was_price-price)/was_price*100, 1).
type PriceSample struct {
	ID              string   `json:"id"`
	ItemID          int64    `json:"item_id"`
	Store           string   `json:"store"`
	CapturedAt      int64    `json:"captured_at"` // ms since epoch
	Price           *float64 `json:"price"`
	WasPrice        *float64 `json:"was_price"`
	UnitPrice       *float64 `json:"unit_price"`
	PromoText       *string  `json:"promo_text"`
	DiscountPercent *float64 `json:"discount_percent"`
}

// CaptureJob is a scrape run owned by the capture scheduler.
type CaptureJob struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	StoreFilter string `json:"store"` // empty = all stores
	CreatedAt   int64  `json:"created_at"`
	StartedAt   *int64 `json:"started_at"`
	FinishedAt  *int64 `json:"finished_at"`
	Message     string `json:"message"`
}
