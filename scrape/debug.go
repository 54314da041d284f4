package scrape

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-rod/rod"
)

// captureDebug writes a full-page screenshot and the serialized page content
// to the debug directory, overwriting any previous artifact for the same
// store/reason pair. Debug capture runs on its own failure channel: errors
// here are logged and never alter the primary extraction outcome.
func (s *Scraper) captureDebug(page *rod.Page, store, reason string) {
	if page == nil {
		return
	}
	base := filepath.Join(s.cfg.DebugDir, strings.ToLower(store)+"_"+reason)
	if err := os.MkdirAll(s.cfg.DebugDir, 0o755); err != nil {
		s.cfg.Logger.Debug("scrape: debug dir", "error", err)
		return
	}

	if png, err := page.Screenshot(true, nil); err != nil {
		s.cfg.Logger.Debug("scrape: debug screenshot", "store", store, "error", err)
	} else if err := os.WriteFile(base+".png", png, 0o644); err != nil {
		s.cfg.Logger.Debug("scrape: write debug screenshot", "store", store, "error", err)
	}

	if html, err := page.HTML(); err != nil {
		s.cfg.Logger.Debug("scrape: debug html", "store", store, "error", err)
	} else if err := os.WriteFile(base+".html", []byte(html), 0o644); err != nil {
		s.cfg.Logger.Debug("scrape: write debug html", "store", store, "error", err)
	}
}
