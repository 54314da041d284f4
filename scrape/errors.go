package scrape

import "errors"

// ErrSelectorExhausted is returned when every candidate selector failed
// across all retry attempts for a target. Hard failure: the capture worker
// counts the item as failed.
var ErrSelectorExhausted = errors.New("scrape: no selector matched")

// ErrNavigationTimeout marks a navigation that never reached the required
// load state. It is NOT returned from Scrape: the target degrades to a
// partial result with a " [timeout]" promo marker instead. Exposed so tests
// and logs can name the condition.
var ErrNavigationTimeout = errors.New("scrape: navigation timeout")
