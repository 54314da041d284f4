package scrape

// Profile is the ordered extraction policy for one store. Price selectors
// are tried in order on every attempt; the first one that matches an element
// whose text parses as a number wins. Optional field selectors are
// best-effort: extraction errors leave the field nil.
type Profile struct {
	Price     []string `yaml:"price"`
	WasPrice  string   `yaml:"was_price"`
	PromoText string   `yaml:"promo_text"`
	UnitPrice string   `yaml:"unit_price"`

	// GeoOrigin, when set, is the origin granted the geolocation permission
	// before navigating. Some stores gate pricing on a store-locator check.
	GeoOrigin string `yaml:"geo_origin"`
}

// DefaultProfiles returns the selector policies for the three target stores.
// Selectors are hand-curated against the live sites and expected to rot;
// config can override them without a rebuild.
func DefaultProfiles() map[string]Profile {
	return map[string]Profile{
		"WOOLWORTHS": {
			Price: []string{"div.product-price_component_price-lead__vlm8f"},
		},
		"COLES": {
			Price: []string{
				`span.price__value[data-testid="pricing"]`,
				`span[data-testid="pricing"]`,
				`[data-testid="pricing"] span.price__value`,
			},
			WasPrice:  `span.price__was`,
			GeoOrigin: "https://www.coles.com.au",
		},
		"ALDI": {
			Price: []string{"span.base-price__regular span"},
		},
	}
}
