package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/pricewatch/capture"
	"github.com/hazyhaar/pricewatch/cycle"
	"github.com/hazyhaar/pricewatch/dbopen"
	"github.com/hazyhaar/pricewatch/internal/store"
	"github.com/hazyhaar/pricewatch/scrape"
)

func main() {
	// .env is optional; real env always wins.
	_ = godotenv.Load()

	cfg := &Config{}
	if path := os.Getenv("CONFIG"); path != "" {
		loaded, err := LoadConfigFile(path)
		if err != nil {
			slog.Error("load config", "path", path, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	cfg.Port = env("PORT", cfg.Port)
	cfg.DBPath = env("DB_PATH", cfg.DBPath)
	cfg.SeedPath = env("SEED_PATH", cfg.SeedPath)
	cfg.Scrape.DebugDir = env("DEBUG_DIR", cfg.Scrape.DebugDir)
	cfg.Scrape.StateDir = env("STATE_DIR", cfg.Scrape.StateDir)
	cfg.Scrape.BrowserBin = env("BROWSER_BIN", cfg.Scrape.BrowserBin)
	if v := os.Getenv("GEO_LAT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Scrape.GeoLat = f
		}
	}
	if v := os.Getenv("GEO_LON"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Scrape.GeoLon = f
		}
	}
	cfg.defaults()

	// Logging.
	var lvl slog.Level
	switch env("LOG_LEVEL", "info") {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := dbopen.Open(cfg.DBPath, dbopen.WithMkdirAll(), dbopen.WithSchema(store.Schema))
	if err != nil {
		slog.Error("open db", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	st := store.NewStore(db)

	if cfg.SeedPath != "" {
		n, err := seedFromJSONIfEmpty(ctx, st, cfg.SeedPath)
		if err != nil {
			slog.Warn("seed catalogue", "path", cfg.SeedPath, "error", err)
		} else if n > 0 {
			slog.Info("seeded catalogue", "items", n)
		}
	}

	// Session blobs live in the database unless a state dir is configured.
	var sessions scrape.SessionStore = store.Sessions{S: st}
	if cfg.Scrape.StateDir != "" {
		sessions = scrape.DirSessionStore{Dir: cfg.Scrape.StateDir}
	}

	scraper := scrape.New(scrape.Config{
		DebugDir:   cfg.Scrape.DebugDir,
		GeoLat:     cfg.Scrape.GeoLat,
		GeoLon:     cfg.Scrape.GeoLon,
		BrowserBin: cfg.Scrape.BrowserBin,
		Profiles:   cfg.Scrape.Profiles,
		Sessions:   sessions,
		Logger:     logger,
	})

	scrapeSettings := cfg.Scrape.Settings()
	sched := capture.New(st, scraper, capture.Config{
		QueueSize: cfg.Capture.QueueSize,
		Settings:  &scrapeSettings,
		Logger:    logger,
	})
	if _, err := sched.Reconcile(ctx); err != nil {
		slog.Error("reconcile jobs", "error", err)
		os.Exit(1)
	}
	sched.Start(ctx)

	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Post("/api/scrape-jobs", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Store string `json:"store"`
		}
		if r.Body != nil {
			// An empty body means "all stores".
			_ = json.NewDecoder(r.Body).Decode(&req)
		}
		id, err := sched.Enqueue(r.Context(), req.Store)
		if err != nil {
			if errors.Is(err, capture.ErrQueueFull) {
				writeError(w, 503, err)
				return
			}
			writeError(w, 500, err)
			return
		}
		job, err := sched.Job(r.Context(), id)
		if err != nil || job == nil {
			writeJSON(w, 202, map[string]string{"id": id, "status": store.JobQueued})
			return
		}
		writeJSON(w, 202, job)
	})

	r.Get("/api/scrape-jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		job, err := sched.Job(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, 500, err)
			return
		}
		if job == nil {
			writeError(w, 404, errors.New("job not found"))
			return
		}
		writeJSON(w, 200, job)
	})

	r.Post("/api/scrape-jobs/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		job, err := sched.Job(r.Context(), id)
		if err != nil {
			writeError(w, 500, err)
			return
		}
		if job == nil {
			writeError(w, 404, errors.New("job not found"))
			return
		}
		writeJSON(w, 200, map[string]any{"id": id, "cancelled": sched.Cancel(id)})
	})

	r.Get("/api/items", func(w http.ResponseWriter, r *http.Request) {
		items, err := st.ListItems(r.Context())
		if err != nil {
			writeError(w, 500, err)
			return
		}
		out := make([]map[string]any, 0, len(items))
		for _, item := range items {
			links, err := st.LinksForItem(r.Context(), item.ID)
			if err != nil {
				writeError(w, 500, err)
				return
			}
			out = append(out, map[string]any{"item": item, "links": links})
		}
		writeJSON(w, 200, out)
	})

	r.Get("/api/items/{id}/history", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeError(w, 400, fmt.Errorf("bad item id"))
			return
		}
		item, err := st.GetItem(r.Context(), id)
		if err != nil {
			writeError(w, 500, err)
			return
		}
		if item == nil {
			writeError(w, 404, errors.New("item not found"))
			return
		}
		samples, err := st.History(r.Context(), id, r.URL.Query().Get("store"))
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, map[string]any{"item": item, "history": samples})
	})

	r.Get("/api/buylist", func(w http.ResponseWriter, r *http.Request) {
		items, err := st.ListItems(r.Context())
		if err != nil {
			writeError(w, 500, err)
			return
		}
		samples, err := st.AllSamples(r.Context())
		if err != nil {
			writeError(w, 500, err)
			return
		}
		latest := cycle.LatestPrices(samples)
		insights := cycle.ComputeInsights(samples)
		groups := cycle.BuylistGroups(items, latest, insights, time.Now().UnixMilli())
		writeJSON(w, 200, groups)
	})

	// HTTP server.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	sched.Close()
	slog.Info("server stopped")
}

// --- Helpers ---

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
