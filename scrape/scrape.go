// Package scrape drives headless Chrome against the target store sites and
// extracts price fields from product pages.
//
// One isolated incognito context per store, one tab per target URL. Session
// cookies are persisted per store between runs to reduce anti-automation
// friction. Extraction follows an ordered selector policy with retries to
// tolerate client-rendered price injection.
package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Target is one page to price: an (item, store, URL) tuple. Constructed by
// the caller from the catalogue's store links; never persisted here.
type Target struct {
	ItemID int64
	Store  string
	URL    string
	Label  string
}

// Key identifies one target's result. Results are keyed by (item, store) so
// multiple items sharing a store in one invocation never clobber each other.
type Key struct {
	ItemID int64
	Store  string
}

// Result holds the extracted price fields for one target.
type Result struct {
	Price           *float64 `json:"price"`
	WasPrice        *float64 `json:"was_price"`
	UnitPrice       *float64 `json:"unit_price"`
	PromoText       *string  `json:"promo_text"`
	DiscountPercent *float64 `json:"discount_percent"`
	URL             string   `json:"url"`
}

// Settings are the per-run toggles. Use DefaultSettings as the base.
type Settings struct {
	// Headful runs a visible browser window (debugging).
	Headful bool
	// SlowmoMS slows every browser action by this many milliseconds.
	// Only applied in headful mode.
	SlowmoMS int
	// DebugCapture writes a screenshot + page HTML on extraction failure.
	DebugCapture bool
	// SaveStorageState persists the per-store session blob after each run.
	SaveStorageState bool
}

// DefaultSettings returns the production defaults: headless, no slow
// motion, debug capture and session persistence enabled.
func DefaultSettings() Settings {
	return Settings{DebugCapture: true, SaveStorageState: true}
}

// Config configures the scraper engine.
type Config struct {
	// DebugDir receives failure artifacts. Default: "scrape_debug".
	DebugDir string

	// GeoLat/GeoLon are emulated on every page. Defaults: Melbourne CBD.
	GeoLat float64
	GeoLon float64

	// BrowserBin is the path of a preferred browser binary. Some stores
	// behave differently in bundled headless Chromium than in an installed
	// browser. Empty = rod's managed browser. Launch failures with a
	// preferred binary fall back to the managed browser.
	BrowserBin string

	// NavTimeout bounds navigation + load wait per page. Default: 45s.
	NavTimeout time.Duration
	// SelectorTimeout bounds each selector wait. Default: 15s.
	SelectorTimeout time.Duration
	// Attempts is the number of extraction rounds per target. Default: 3.
	Attempts int
	// SettleBase/SettleStep shape the pre-extraction settle delay:
	// base + attempt*step. Defaults: 2.5s base, 1s step.
	SettleBase time.Duration
	SettleStep time.Duration

	// Profiles maps store name to its selector policy.
	// Default: DefaultProfiles().
	Profiles map[string]Profile

	// Sessions persists per-store session blobs. Nil disables session reuse.
	Sessions SessionStore

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.DebugDir == "" {
		c.DebugDir = "scrape_debug"
	}
	if c.GeoLat == 0 && c.GeoLon == 0 {
		c.GeoLat, c.GeoLon = -37.8136, 144.9631
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 45 * time.Second
	}
	if c.SelectorTimeout <= 0 {
		c.SelectorTimeout = 15 * time.Second
	}
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.SettleBase <= 0 {
		c.SettleBase = 2500 * time.Millisecond
	}
	if c.SettleStep <= 0 {
		c.SettleStep = time.Second
	}
	if c.Profiles == nil {
		c.Profiles = DefaultProfiles()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// optionalFieldTimeout bounds best-effort lookups (was price, promo text):
// the price is already on the page, so these either resolve fast or not at all.
const optionalFieldTimeout = 2 * time.Second

// Scraper extracts price fields from store product pages.
type Scraper struct {
	cfg Config
}

// New creates a Scraper.
func New(cfg Config) *Scraper {
	cfg.defaults()
	return &Scraper{cfg: cfg}
}

// Scrape processes targets grouped by store and returns one Result per
// (item, store) pair. A navigation timeout degrades that target to a
// partial result with a " [timeout]" promo marker; selector exhaustion or
// any other extraction failure aborts the whole call with an error — the
// caller treats the item as failed.
func (s *Scraper) Scrape(ctx context.Context, targets []Target, set Settings) (map[Key]*Result, error) {
	byStore := make(map[string][]Target)
	var order []string
	for _, t := range targets {
		if strings.TrimSpace(t.URL) == "" {
			continue
		}
		if _, seen := byStore[t.Store]; !seen {
			order = append(order, t.Store)
		}
		byStore[t.Store] = append(byStore[t.Store], t)
	}
	if len(order) == 0 {
		return map[Key]*Result{}, nil
	}

	browser, cleanup, err := s.launch(set)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	results := make(map[Key]*Result)
	for _, storeName := range order {
		if err := s.scrapeStore(ctx, browser, storeName, byStore[storeName], set, results); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (s *Scraper) launch(set Settings) (*rod.Browser, func(), error) {
	newLauncher := func(bin string) *launcher.Launcher {
		l := launcher.New().Headless(!set.Headful)
		l = l.Set("disable-blink-features", "AutomationControlled")
		if bin != "" {
			l = l.Bin(bin)
		}
		return l
	}

	l := newLauncher(s.cfg.BrowserBin)
	u, err := l.Launch()
	if err != nil && s.cfg.BrowserBin != "" {
		s.cfg.Logger.Warn("scrape: preferred browser failed, falling back",
			"bin", s.cfg.BrowserBin, "error", err)
		l = newLauncher("")
		u, err = l.Launch()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("scrape: launch browser: %w", err)
	}

	b := rod.New().ControlURL(u)
	if set.Headful && set.SlowmoMS > 0 {
		b = b.SlowMotion(time.Duration(set.SlowmoMS) * time.Millisecond)
	}
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, nil, fmt.Errorf("scrape: connect browser: %w", err)
	}

	return b, func() {
		b.Close()
		l.Cleanup()
	}, nil
}

func (s *Scraper) scrapeStore(ctx context.Context, b *rod.Browser, storeName string, targets []Target, set Settings, results map[Key]*Result) error {
	profile, ok := s.cfg.Profiles[storeName]
	if !ok || len(profile.Price) == 0 {
		s.cfg.Logger.Warn("scrape: skipping store without selector profile", "store", storeName)
		return nil
	}

	ictx, err := b.Incognito()
	if err != nil {
		return fmt.Errorf("scrape: browser context for %s: %w", storeName, err)
	}
	defer func() {
		if err := (proto.TargetDisposeBrowserContext{BrowserContextID: ictx.BrowserContextID}).Call(ictx); err != nil {
			s.cfg.Logger.Debug("scrape: dispose context", "store", storeName, "error", err)
		}
	}()

	s.restoreSession(ctx, ictx, storeName)

	if profile.GeoOrigin != "" {
		err := proto.BrowserGrantPermissions{
			Permissions:      []proto.BrowserPermissionType{proto.BrowserPermissionTypeGeolocation},
			Origin:           profile.GeoOrigin,
			BrowserContextID: ictx.BrowserContextID,
		}.Call(ictx)
		if err != nil {
			s.cfg.Logger.Warn("scrape: grant geolocation", "store", storeName, "error", err)
		}
	}

	for _, t := range targets {
		res, err := s.scrapeTarget(ctx, ictx, storeName, profile, t, set)
		if err != nil {
			return fmt.Errorf("scrape: item %d at %s: %w", t.ItemID, storeName, err)
		}
		results[Key{ItemID: t.ItemID, Store: storeName}] = res
	}

	if set.SaveStorageState {
		s.saveSession(ctx, ictx, storeName)
	}
	return nil
}

func (s *Scraper) scrapeTarget(ctx context.Context, ictx *rod.Browser, storeName string, profile Profile, t Target, set Settings) (*Result, error) {
	res := &Result{URL: t.URL}

	page, err := stealth.Page(ictx)
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			s.cfg.Logger.Debug("scrape: close page", "error", err)
		}
	}()

	lat, lon, acc := s.cfg.GeoLat, s.cfg.GeoLon, 100.0
	err = proto.EmulationSetGeolocationOverride{Latitude: &lat, Longitude: &lon, Accuracy: &acc}.Call(page)
	if err != nil {
		s.cfg.Logger.Debug("scrape: geolocation override", "error", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavTimeout)
	defer cancel()

	npg := page.Context(navCtx)
	// DOMContentLoaded is enough: the price selectors target elements the
	// page scripts inject, and the cascade's settle delays absorb the rest.
	// Waiting for the full load event stalls on slow store assets and
	// inflates spurious timeout degradations. Subscribe before navigating
	// so the event cannot fire in between.
	domReady := npg.WaitEvent(&proto.PageDomContentEventFired{})
	if err := npg.Navigate(t.URL); err != nil {
		if navTimedOut(err, ctx) {
			s.degradeTimeout(page, storeName, res, set)
			return res, nil
		}
		return nil, fmt.Errorf("navigate %s: %w", t.URL, err)
	}
	domReady()
	if err := navCtx.Err(); err != nil {
		if navTimedOut(err, ctx) {
			s.degradeTimeout(page, storeName, res, set)
			return res, nil
		}
		return nil, fmt.Errorf("wait dom ready %s: %w", t.URL, err)
	}

	tab := rodTab{page: page}
	price, matched, err := s.runCascade(ctx, tab, profile.Price)
	if err != nil {
		if errors.Is(err, ErrSelectorExhausted) {
			if set.DebugCapture {
				s.captureDebug(page, storeName, "no_match")
			}
		}
		return nil, err
	}
	res.Price = price
	s.cfg.Logger.Debug("scrape: price extracted",
		"store", storeName, "item_id", t.ItemID, "selector", matched, "price", *price)

	// Optional fields, best-effort: any failure leaves the field nil.
	if profile.WasPrice != "" {
		if text, err := tab.ElementText(ctx, profile.WasPrice, optionalFieldTimeout); err == nil {
			res.WasPrice = ParsePrice(text)
		}
	}
	if profile.PromoText != "" {
		if text, err := tab.ElementText(ctx, profile.PromoText, optionalFieldTimeout); err == nil && text != "" {
			res.PromoText = &text
		}
	}
	if profile.UnitPrice != "" {
		if text, err := tab.ElementText(ctx, profile.UnitPrice, optionalFieldTimeout); err == nil {
			res.UnitPrice = ParsePrice(text)
		}
	}

	res.DiscountPercent = DiscountPercent(res.Price, res.WasPrice)
	return res, nil
}

// degradeTimeout turns a navigation timeout into a partial, non-fatal
// result row: price stays nil and promo_text gains a " [timeout]" marker.
// Selector exhaustion raises; timeouts degrade — callers rely on that
// asymmetry.
func (s *Scraper) degradeTimeout(page *rod.Page, storeName string, res *Result, set Settings) {
	s.cfg.Logger.Warn("scrape: degrading to partial result",
		"store", storeName, "url", res.URL, "reason", ErrNavigationTimeout)
	if set.DebugCapture {
		s.captureDebug(page, storeName, "error")
	}
	promo := ""
	if res.PromoText != nil {
		promo = *res.PromoText
	}
	promo += " [timeout]"
	res.PromoText = &promo
}

// navTimedOut reports whether err is the navigation deadline expiring, as
// opposed to the caller's ctx being cancelled or a genuine page failure.
func navTimedOut(err error, ctx context.Context) bool {
	return errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil
}

// DiscountPercent computes the discount from a was/now price pair, rounded
// to one decimal. Set only when was > price > 0; nil otherwise.
func DiscountPercent(price, was *float64) *float64 {
	if price == nil || was == nil {
		return nil
	}
	if *price <= 0 || *was <= *price {
		return nil
	}
	v := math.Round((*was-*price) / *was * 100 * 10) / 10
	return &v
}

// rodTab adapts a rod page to the elementTexter interface.
type rodTab struct {
	page *rod.Page
}

func (r rodTab) ElementText(ctx context.Context, selector string, timeout time.Duration) (string, error) {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	el, err := r.page.Context(tctx).Element(selector)
	if err != nil {
		return "", err
	}
	text, err := el.Text()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (s *Scraper) restoreSession(ctx context.Context, ictx *rod.Browser, storeName string) {
	if s.cfg.Sessions == nil {
		return
	}
	blob, err := s.cfg.Sessions.Load(ctx, storeName)
	if err != nil {
		s.cfg.Logger.Warn("scrape: load session", "store", storeName, "error", err)
		return
	}
	if len(blob) == 0 {
		return
	}
	var cookies []*proto.NetworkCookie
	if err := json.Unmarshal(blob, &cookies); err != nil {
		s.cfg.Logger.Warn("scrape: decode session", "store", storeName, "error", err)
		return
	}
	if err := ictx.SetCookies(proto.CookiesToParams(cookies)); err != nil {
		s.cfg.Logger.Warn("scrape: restore session", "store", storeName, "error", err)
	}
}

// saveSession persists the store's cookies, best-effort: a failed save is
// logged and the run result stands.
func (s *Scraper) saveSession(ctx context.Context, ictx *rod.Browser, storeName string) {
	if s.cfg.Sessions == nil {
		return
	}
	cookies, err := ictx.GetCookies()
	if err != nil {
		s.cfg.Logger.Warn("scrape: read cookies", "store", storeName, "error", err)
		return
	}
	blob, err := json.Marshal(cookies)
	if err != nil {
		s.cfg.Logger.Warn("scrape: encode session", "store", storeName, "error", err)
		return
	}
	if err := s.cfg.Sessions.Save(ctx, storeName, blob); err != nil {
		s.cfg.Logger.Warn("scrape: save session", "store", storeName, "error", err)
	}
}
