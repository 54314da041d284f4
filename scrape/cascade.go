package scrape

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// elementTexter is the single page operation the selector cascade needs.
// It waits for selector to appear (bounded by timeout) and returns the
// element's inner text. Narrow on purpose: the retry driver is testable
// without a browser.
type elementTexter interface {
	ElementText(ctx context.Context, selector string, timeout time.Duration) (string, error)
}

// runCascade drives the selector policy for one target: up to cfg.Attempts
// rounds, each preceded by an increasing settle delay (client-rendered price
// injection can lag the selector appearing), each trying the ordered
// selectors until one matches an element whose text parses as a number.
// The first parseable match short-circuits remaining selectors and attempts.
//
// A selector that never appears within its wait window just moves the
// cascade to the next candidate. Exhausting every selector on every attempt
// returns ErrSelectorExhausted. Cancellation of ctx aborts immediately.
func (s *Scraper) runCascade(ctx context.Context, pg elementTexter, selectors []string) (*float64, string, error) {
	for attempt := 0; attempt < s.cfg.Attempts; attempt++ {
		settle := s.cfg.SettleBase + time.Duration(attempt)*s.cfg.SettleStep
		if err := sleepCtx(ctx, settle); err != nil {
			return nil, "", err
		}

		for _, sel := range selectors {
			text, err := pg.ElementText(ctx, sel, s.cfg.SelectorTimeout)
			if err != nil {
				if ctx.Err() != nil {
					return nil, "", ctx.Err()
				}
				if errors.Is(err, context.DeadlineExceeded) {
					continue // selector never appeared, try the next one
				}
				// Element lookup failed for another reason (detached node,
				// page churn). Treat like a miss and keep cascading.
				s.cfg.Logger.Debug("scrape: selector lookup failed", "selector", sel, "error", err)
				continue
			}

			if price := ParsePrice(text); price != nil {
				return price, sel, nil
			}
		}
	}
	return nil, "", fmt.Errorf("%w: %v", ErrSelectorExhausted, selectors)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
