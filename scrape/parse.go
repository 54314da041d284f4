package scrape

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	priceRE = regexp.MustCompile(`[0-9]+(?:\.[0-9]{1,2})?`)

	// Some price elements carry both prices in one text node, e.g.
	// "was $5.00, now $3.50". The current price is the one after "now".
	nowPriceRE = regexp.MustCompile(`(?i)now\s*\$?\s*([0-9]+(?:\.[0-9]{1,2})?)`)
)

// ParsePrice extracts the price from a price field's text, stripping
// thousands separators first. When the text carries a was/now pair the
// "now" price wins; otherwise the first numeric token with an optional
// 1-2 digit cent part is taken. Returns nil when text contains no number.
func ParsePrice(text string) *float64 {
	if text == "" {
		return nil
	}
	cleaned := strings.ReplaceAll(text, ",", "")

	var m string
	if g := nowPriceRE.FindStringSubmatch(cleaned); g != nil {
		m = g[1]
	} else {
		m = priceRE.FindString(cleaned)
	}
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return nil
	}
	return &v
}
