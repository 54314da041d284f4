// Package capture owns the scrape job lifecycle: a durable job record per
// run and a single dedicated worker so capture runs never overlap.
//
// Enqueue is non-blocking: it persists a queued job and returns before
// execution starts. Jobs run strictly in submission order. One bad item
// never aborts a run — per-item failures are counted and the job continues;
// a persistence failure aborts the whole job.
package capture

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/pricewatch/dbopen"
	"github.com/hazyhaar/pricewatch/idgen"
	"github.com/hazyhaar/pricewatch/internal/store"
	"github.com/hazyhaar/pricewatch/scrape"
)

// Scraper is the slice of the scrape engine the worker needs.
type Scraper interface {
	Scrape(ctx context.Context, targets []scrape.Target, settings scrape.Settings) (map[scrape.Key]*scrape.Result, error)
}

// Sentinel errors returned by Enqueue.
var (
	ErrNotStarted = errors.New("capture: scheduler not started")
	ErrClosed     = errors.New("capture: scheduler closed")
	ErrQueueFull  = errors.New("capture: job queue full")
)

// Config configures the scheduler.
type Config struct {
	// QueueSize bounds how many jobs may wait behind the worker. Default: 16.
	QueueSize int
	// Settings are passed to every scrape run. Nil = scrape.DefaultSettings().
	// A pointer so an explicit all-false Settings is honoured, not mistaken
	// for unset.
	Settings *scrape.Settings
	Logger   *slog.Logger
}

func (c *Config) defaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 16
	}
	if c.Settings == nil {
		s := scrape.DefaultSettings()
		c.Settings = &s
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

type jobHandle struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Scheduler runs capture jobs one at a time on a dedicated worker.
type Scheduler struct {
	store   *store.Store
	scraper Scraper
	cfg     Config

	jobs chan string
	done chan struct{}

	mu      sync.Mutex
	handles map[string]jobHandle
	runCtx  context.Context
	started bool
	closed  bool
}

// New creates a Scheduler. Call Reconcile then Start before enqueueing.
func New(st *store.Store, scraper Scraper, cfg Config) *Scheduler {
	cfg.defaults()
	return &Scheduler{
		store:   st,
		scraper: scraper,
		cfg:     cfg,
		jobs:    make(chan string, cfg.QueueSize),
		done:    make(chan struct{}),
		handles: make(map[string]jobHandle),
	}
}

// Reconcile marks any job left running by a previous process as errored
// with a "worker restarted" message. Run once at startup, before Start.
func (s *Scheduler) Reconcile(ctx context.Context) (int64, error) {
	n, err := s.store.ResetRunningJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("capture: reconcile: %w", err)
	}
	if n > 0 {
		s.cfg.Logger.Warn("capture: reset stale running jobs", "count", n)
	}
	return n, nil
}

// Start launches the worker goroutine. The worker stops when ctx is
// cancelled or Close is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.runCtx = ctx

	go func() {
		defer close(s.done)
		for {
			select {
			case <-ctx.Done():
				return
			case id, ok := <-s.jobs:
				if !ok {
					return
				}
				s.run(id)
			}
		}
	}()
}

// Close stops accepting jobs and waits for the worker to drain the queue.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	close(s.jobs)
	s.mu.Unlock()
	<-s.done
}

// Enqueue creates a job in the queued state and schedules it on the worker.
// storeFilter restricts the run to one store; empty or "ALL" captures every
// store. Returns immediately with the new job id; jobs run in strict FIFO
// order.
func (s *Scheduler) Enqueue(ctx context.Context, storeFilter string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return "", ErrNotStarted
	}
	if s.closed {
		return "", ErrClosed
	}

	filter := strings.ToUpper(strings.TrimSpace(storeFilter))
	if filter == "ALL" {
		filter = ""
	}

	id := idgen.New()
	if err := s.store.CreateJob(ctx, id, filter); err != nil {
		return "", fmt.Errorf("capture: create job: %w", err)
	}

	jobCtx, cancel := context.WithCancel(s.runCtx)
	s.handles[id] = jobHandle{ctx: jobCtx, cancel: cancel}

	select {
	case s.jobs <- id:
	default:
		cancel()
		delete(s.handles, id)
		// The row must still reach a terminal state: a job that never made
		// it onto the worker queue would otherwise sit queued forever.
		if err := s.store.FinishJob(ctx, id, store.JobError, "queue full"); err != nil {
			s.cfg.Logger.Error("capture: finish rejected job", "job_id", id, "error", err)
		}
		return "", ErrQueueFull
	}

	s.cfg.Logger.Info("capture: job enqueued", "job_id", id, "store_filter", filter)
	return id, nil
}

// Cancel requests cancellation of a job. The worker honours it at the next
// suspension point (before each item). Reports whether the job was known
// and not yet finished.
func (s *Scheduler) Cancel(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[jobID]
	if !ok {
		return false
	}
	h.cancel()
	return true
}

// Job returns a read-only snapshot of a job, or nil when unknown. Safe to
// call concurrently with an in-flight run.
func (s *Scheduler) Job(ctx context.Context, jobID string) (*store.CaptureJob, error) {
	return s.store.GetJob(ctx, jobID)
}

func (s *Scheduler) jobContext(jobID string) context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.handles[jobID]; ok {
		return h.ctx
	}
	return s.runCtx
}

func (s *Scheduler) release(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.handles[jobID]; ok {
		h.cancel()
		delete(s.handles, jobID)
	}
}

// run executes one job to a terminal state. Status writes use a background
// context: the job must reach done/error even when its own context is
// cancelled mid-run.
func (s *Scheduler) run(jobID string) {
	log := s.cfg.Logger
	ctx := s.jobContext(jobID)
	defer s.release(jobID)

	bg := context.Background()

	if err := s.store.MarkJobRunning(bg, jobID); err != nil {
		log.Error("capture: mark running", "job_id", jobID, "error", err)
		return
	}
	job, err := s.store.GetJob(bg, jobID)
	if err != nil || job == nil {
		log.Error("capture: load job", "job_id", jobID, "error", err)
		return
	}

	log.Info("capture: job started", "job_id", jobID, "store_filter", job.StoreFilter)

	items, err := s.store.ListItems(bg)
	if err != nil {
		s.finish(jobID, store.JobError, errSummary(err))
		return
	}

	saved, failed := 0, 0
	for _, item := range items {
		if ctx.Err() != nil {
			s.finish(jobID, store.JobError, "cancelled")
			return
		}

		links, err := s.store.LinksForItem(bg, item.ID)
		if err != nil {
			s.finish(jobID, store.JobError, errSummary(err))
			return
		}
		targets := eligibleTargets(item.ID, links, job.StoreFilter)
		if len(targets) == 0 {
			continue
		}

		results, err := s.scraper.Scrape(ctx, targets, *s.cfg.Settings)
		if err != nil {
			if ctx.Err() != nil {
				s.finish(jobID, store.JobError, "cancelled")
				return
			}
			// Per-item failure: count it, record progress, move on.
			failed++
			msg := fmt.Sprintf("Partial failures so far. Last: item_id=%d %s", item.ID, errCategory(err))
			if err := s.store.SetJobMessage(bg, jobID, msg); err != nil {
				s.finish(jobID, store.JobError, errSummary(err))
				return
			}
			log.Warn("capture: item failed", "job_id", jobID, "item_id", item.ID, "error", err)
			continue
		}

		now := time.Now().UnixMilli()
		err = dbopen.RunTx(bg, s.store.DB, func(tx *sql.Tx) error {
			for key, r := range results {
				sample := &store.PriceSample{
					ID:              idgen.New(),
					ItemID:          key.ItemID,
					Store:           key.Store,
					CapturedAt:      now,
					Price:           r.Price,
					WasPrice:        r.WasPrice,
					UnitPrice:       r.UnitPrice,
					PromoText:       r.PromoText,
					DiscountPercent: r.DiscountPercent,
				}
				if err := s.store.InsertSampleTx(bg, tx, sample); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			// Persistence failure escapes the per-item boundary and aborts
			// the whole job. Items committed before this point are kept.
			log.Error("capture: persist samples", "job_id", jobID, "item_id", item.ID, "error", err)
			s.finish(jobID, store.JobError, errSummary(err))
			return
		}
		saved += len(results)
	}

	status, msg := store.JobDone, fmt.Sprintf("OK (%d price rows saved)", saved)
	if failed > 0 {
		status = store.JobError
		msg = fmt.Sprintf("Completed with failures (%d saved, %d failed items)", saved, failed)
	}
	s.finish(jobID, status, msg)
	log.Info("capture: job finished", "job_id", jobID, "status", status, "saved", saved, "failed", failed)
}

func (s *Scheduler) finish(jobID, status, message string) {
	if err := s.store.FinishJob(context.Background(), jobID, status, message); err != nil {
		s.cfg.Logger.Error("capture: finish job", "job_id", jobID, "error", err)
	}
}

// eligibleTargets keeps links with a non-empty URL matching the job's store
// filter (empty filter = every store).
func eligibleTargets(itemID int64, links []*store.StoreLink, filter string) []scrape.Target {
	var targets []scrape.Target
	for _, l := range links {
		if strings.TrimSpace(l.URL) == "" {
			continue
		}
		if filter != "" && l.Store != filter {
			continue
		}
		targets = append(targets, scrape.Target{
			ItemID: itemID,
			Store:  l.Store,
			URL:    l.URL,
			Label:  l.Label,
		})
	}
	return targets
}

// errCategory names the failure class for the job's progress message.
func errCategory(err error) string {
	switch {
	case errors.Is(err, scrape.ErrSelectorExhausted):
		return "SelectorExhausted"
	case errors.Is(err, context.DeadlineExceeded):
		return "Timeout"
	default:
		return "ScrapeError"
	}
}

// errSummary keeps job messages human-readable when an error carries a
// long wrapped chain.
func errSummary(err error) string {
	msg := err.Error()
	if len(msg) > 200 {
		msg = msg[:200] + "…"
	}
	return msg
}
