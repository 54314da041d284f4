package store

import (
	"context"
	"testing"
	"time"

	"github.com/hazyhaar/pricewatch/dbopen"
	_ "modernc.org/sqlite"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	return NewStore(db)
}

func ptr[T any](v T) *T { return &v }

func TestApplySchema(t *testing.T) {
	// WHAT: Verify schema creates all tables without error.
	// WHY: Everything else sits on top of these tables.
	st := openTestStore(t)
	for _, table := range []string{"items", "store_links", "price_history", "capture_jobs", "browser_sessions"} {
		var name string
		err := st.DB.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestInsertAndGetItem(t *testing.T) {
	// WHAT: Insert an item and read it back by id.
	// WHY: The catalogue is read on every capture run.
	st := openTestStore(t)
	ctx := context.Background()

	item := &Item{
		Name:     "Whole Milk 2L",
		Category: ptr("Dairy"),
		Brand:    ptr("Dairy Farmers"),
		BuyQty:   ptr(2.0),
	}
	if err := st.InsertItem(ctx, item); err != nil {
		t.Fatalf("insert item: %v", err)
	}
	if item.ID == 0 {
		t.Fatal("expected assigned id")
	}

	got, err := st.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if got == nil || got.Name != "Whole Milk 2L" {
		t.Fatalf("got %+v", got)
	}
	if got.Category == nil || *got.Category != "Dairy" {
		t.Errorf("category = %v", got.Category)
	}

	missing, err := st.GetItem(ctx, 9999)
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing item, got %+v", missing)
	}
}

func TestUpsertLinkReplacesURL(t *testing.T) {
	// WHAT: Upserting a link for the same (item, store) updates in place.
	// WHY: Each item has at most one page per store.
	st := openTestStore(t)
	ctx := context.Background()

	item := &Item{Name: "Eggs 12pk"}
	if err := st.InsertItem(ctx, item); err != nil {
		t.Fatalf("insert item: %v", err)
	}

	link := &StoreLink{ItemID: item.ID, Store: "COLES", Label: "Free Range", URL: "https://example.com/old"}
	if err := st.UpsertLink(ctx, link); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	link.URL = "https://example.com/new"
	if err := st.UpsertLink(ctx, link); err != nil {
		t.Fatalf("upsert again: %v", err)
	}

	links, err := st.LinksForItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("links: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("expected 1 link, got %d", len(links))
	}
	if links[0].URL != "https://example.com/new" {
		t.Errorf("url = %q", links[0].URL)
	}
}

func TestHistoryFiltersByStore(t *testing.T) {
	// WHAT: History returns chronological rows, optionally for one store.
	// WHY: The API exposes per-item, per-store price history.
	st := openTestStore(t)
	ctx := context.Background()

	item := &Item{Name: "Butter 500g"}
	if err := st.InsertItem(ctx, item); err != nil {
		t.Fatalf("insert item: %v", err)
	}

	base := time.Now().UnixMilli()
	rows := []*PriceSample{
		{ID: "s1", ItemID: item.ID, Store: "COLES", CapturedAt: base - 2000, Price: ptr(6.50)},
		{ID: "s2", ItemID: item.ID, Store: "WOOLWORTHS", CapturedAt: base - 1000, Price: ptr(6.00)},
		{ID: "s3", ItemID: item.ID, Store: "COLES", CapturedAt: base, Price: ptr(5.00), WasPrice: ptr(6.50)},
	}
	for _, r := range rows {
		if err := st.InsertSample(ctx, r); err != nil {
			t.Fatalf("insert sample %s: %v", r.ID, err)
		}
	}

	all, err := st.History(ctx, item.ID, "")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(all))
	}
	if all[0].ID != "s1" || all[2].ID != "s3" {
		t.Errorf("expected chronological order, got %s..%s", all[0].ID, all[2].ID)
	}

	coles, err := st.History(ctx, item.ID, "COLES")
	if err != nil {
		t.Fatalf("history coles: %v", err)
	}
	if len(coles) != 2 {
		t.Fatalf("expected 2 coles rows, got %d", len(coles))
	}
	for _, r := range coles {
		if r.Store != "COLES" {
			t.Errorf("unexpected store %s", r.Store)
		}
	}
}

func TestLatestSamplesPicksNewestPerStore(t *testing.T) {
	// WHAT: LatestSamples returns one row per (item, store), the newest.
	// WHY: Buylist analytics start from the latest observation.
	st := openTestStore(t)
	ctx := context.Background()

	item := &Item{Name: "Coffee 1kg"}
	if err := st.InsertItem(ctx, item); err != nil {
		t.Fatalf("insert item: %v", err)
	}

	base := time.Now().UnixMilli()
	rows := []*PriceSample{
		{ID: "a", ItemID: item.ID, Store: "ALDI", CapturedAt: base - 5000, Price: ptr(17.99)},
		{ID: "b", ItemID: item.ID, Store: "ALDI", CapturedAt: base, Price: ptr(15.99)},
		{ID: "c", ItemID: item.ID, Store: "WOOLWORTHS", CapturedAt: base - 1000, Price: ptr(20.00)},
	}
	for _, r := range rows {
		if err := st.InsertSample(ctx, r); err != nil {
			t.Fatalf("insert sample %s: %v", r.ID, err)
		}
	}

	latest, err := st.LatestSamples(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(latest))
	}
	byStore := map[string]*PriceSample{}
	for _, r := range latest {
		byStore[r.Store] = r
	}
	if got := byStore["ALDI"]; got == nil || got.ID != "b" {
		t.Errorf("ALDI latest = %+v", got)
	}
	if got := byStore["WOOLWORTHS"]; got == nil || got.ID != "c" {
		t.Errorf("WOOLWORTHS latest = %+v", got)
	}
}

func TestJobLifecycle(t *testing.T) {
	// WHAT: Walk a job through queued -> running -> done.
	// WHY: The scheduler relies on these transitions and their timestamps.
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.CreateJob(ctx, "job-1", "COLES"); err != nil {
		t.Fatalf("create: %v", err)
	}
	job, err := st.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != JobQueued || job.StoreFilter != "COLES" {
		t.Fatalf("after create: %+v", job)
	}
	if job.StartedAt != nil || job.FinishedAt != nil {
		t.Errorf("fresh job has timestamps: %+v", job)
	}

	if err := st.MarkJobRunning(ctx, "job-1"); err != nil {
		t.Fatalf("mark running: %v", err)
	}
	job, _ = st.GetJob(ctx, "job-1")
	if job.Status != JobRunning || job.StartedAt == nil {
		t.Fatalf("after running: %+v", job)
	}

	if err := st.SetJobMessage(ctx, "job-1", "working"); err != nil {
		t.Fatalf("set message: %v", err)
	}
	if err := st.FinishJob(ctx, "job-1", JobDone, "OK (3 price rows saved)"); err != nil {
		t.Fatalf("finish: %v", err)
	}
	job, _ = st.GetJob(ctx, "job-1")
	if job.Status != JobDone || job.FinishedAt == nil {
		t.Fatalf("after finish: %+v", job)
	}
	if job.Message != "OK (3 price rows saved)" {
		t.Errorf("message = %q", job.Message)
	}
}

func TestMarkJobRunningRequiresQueued(t *testing.T) {
	// WHAT: MarkJobRunning fails for jobs not in the queued state.
	// WHY: Terminal states must never be revisited.
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.CreateJob(ctx, "job-1", ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.MarkJobRunning(ctx, "job-1"); err != nil {
		t.Fatalf("first mark: %v", err)
	}
	if err := st.MarkJobRunning(ctx, "job-1"); err == nil {
		t.Fatal("expected error marking a running job")
	}

	if err := st.FinishJob(ctx, "job-1", JobDone, "ok"); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if err := st.MarkJobRunning(ctx, "job-1"); err == nil {
		t.Fatal("expected error marking a done job")
	}
}

func TestFinishJobKeepsTerminalState(t *testing.T) {
	// WHAT: Finishing an already-finished job fails and changes nothing.
	// WHY: Terminal states are never revisited; the database enforces it,
	// not just the worker.
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.CreateJob(ctx, "job-1", ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.MarkJobRunning(ctx, "job-1"); err != nil {
		t.Fatalf("mark running: %v", err)
	}
	if err := st.FinishJob(ctx, "job-1", JobDone, "OK (1 price rows saved)"); err != nil {
		t.Fatalf("finish: %v", err)
	}

	if err := st.FinishJob(ctx, "job-1", JobError, "late failure"); err == nil {
		t.Fatal("expected error finishing a done job")
	}
	job, _ := st.GetJob(ctx, "job-1")
	if job.Status != JobDone || job.Message != "OK (1 price rows saved)" {
		t.Fatalf("terminal state rewritten: %+v", job)
	}

	// A queued job may still be finished directly: a row rejected at
	// enqueue time goes straight to error.
	if err := st.CreateJob(ctx, "job-2", ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.FinishJob(ctx, "job-2", JobError, "queue full"); err != nil {
		t.Fatalf("finish queued: %v", err)
	}
}

func TestResetRunningJobs(t *testing.T) {
	// WHAT: ResetRunningJobs moves running rows to error with a restart note.
	// WHY: A crash mid-run must not leave jobs stuck running forever.
	st := openTestStore(t)
	ctx := context.Background()

	st.CreateJob(ctx, "stuck", "")
	st.MarkJobRunning(ctx, "stuck")
	st.CreateJob(ctx, "waiting", "")

	n, err := st.ResetRunningJobs(ctx)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reset, got %d", n)
	}

	stuck, _ := st.GetJob(ctx, "stuck")
	if stuck.Status != JobError || stuck.Message != "worker restarted" {
		t.Errorf("stuck job: %+v", stuck)
	}
	if stuck.FinishedAt == nil {
		t.Error("reset job has no finished_at")
	}
	waiting, _ := st.GetJob(ctx, "waiting")
	if waiting.Status != JobQueued {
		t.Errorf("queued job touched: %+v", waiting)
	}
}

func TestSessionStateRoundTrip(t *testing.T) {
	// WHAT: Save session state twice and read the latest blob back.
	// WHY: Browser cookies persist across runs keyed by store.
	st := openTestStore(t)
	ctx := context.Background()

	blob, err := st.SessionState(ctx, "COLES")
	if err != nil {
		t.Fatalf("read empty: %v", err)
	}
	if blob != nil {
		t.Fatalf("expected nil for unknown store, got %q", blob)
	}

	if err := st.SaveSessionState(ctx, "COLES", []byte(`[{"name":"a"}]`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := st.SaveSessionState(ctx, "COLES", []byte(`[{"name":"b"}]`)); err != nil {
		t.Fatalf("save again: %v", err)
	}

	blob, err = st.SessionState(ctx, "COLES")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(blob) != `[{"name":"b"}]` {
		t.Errorf("blob = %q", blob)
	}
}
