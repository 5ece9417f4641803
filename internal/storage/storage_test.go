package storage

import (
	"context"
	"testing"
	"time"
)

func TestStore_UpsertAndRecordRoundTrip(t *testing.T) {
	store, err := Open(":memory:", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	if err := store.UpsertPrinter(ctx, PrinterRow{
		ID: 1, Name: "office", DeviceURI: "socket://printer.local", Driver: "generic",
		State: "idle", ConfigTime: time.Now(),
	}); err != nil {
		t.Fatalf("UpsertPrinter: %v", err)
	}

	now := time.Now()
	job := JobRow{
		ID: 1, PrinterID: 1, Username: "alice", Name: "report.pdf", Format: "application/pdf",
		State: "completed", Impressions: 3, Created: now.Add(-time.Minute), Completed: now,
		Attributes: map[string]interface{}{"copies": 1},
	}
	if err := store.RecordJob(ctx, job); err != nil {
		t.Fatalf("RecordJob: %v", err)
	}

	rows, err := store.CompletedJobs(ctx, 1, 0)
	if err != nil {
		t.Fatalf("CompletedJobs: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 completed job, got %d", len(rows))
	}
	if rows[0].Username != "alice" || rows[0].State != "completed" {
		t.Errorf("unexpected row: %+v", rows[0])
	}
}

func TestStore_RecordJobUpdatesExistingRow(t *testing.T) {
	store, err := Open(":memory:", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	base := JobRow{ID: 5, PrinterID: 2, State: "pending", Created: time.Now()}
	if err := store.RecordJob(ctx, base); err != nil {
		t.Fatalf("RecordJob (pending): %v", err)
	}

	base.State = "completed"
	base.Completed = time.Now()
	if err := store.RecordJob(ctx, base); err != nil {
		t.Fatalf("RecordJob (completed): %v", err)
	}

	rows, err := store.CompletedJobs(ctx, 2, 0)
	if err != nil {
		t.Fatalf("CompletedJobs: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected exactly one mirrored row after update, got %d", len(rows))
	}
}

func TestStore_PruneJobsOlderThan(t *testing.T) {
	store, err := Open(":memory:", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	old := JobRow{ID: 1, PrinterID: 1, State: "completed", Created: time.Now().Add(-48 * time.Hour), Completed: time.Now().Add(-48 * time.Hour)}
	recent := JobRow{ID: 2, PrinterID: 1, State: "completed", Created: time.Now(), Completed: time.Now()}
	store.RecordJob(ctx, old)
	store.RecordJob(ctx, recent)

	n, err := store.PruneJobsOlderThan(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("PruneJobsOlderThan: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row pruned, got %d", n)
	}

	rows, err := store.CompletedJobs(ctx, 1, 0)
	if err != nil {
		t.Fatalf("CompletedJobs: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != 2 {
		t.Fatalf("expected only the recent job to survive, got %+v", rows)
	}
}

func TestStore_NilIsNoOp(t *testing.T) {
	var store *Store
	ctx := context.Background()

	if err := store.UpsertPrinter(ctx, PrinterRow{}); err != nil {
		t.Fatalf("nil store UpsertPrinter should be a no-op: %v", err)
	}
	if err := store.RecordJob(ctx, JobRow{}); err != nil {
		t.Fatalf("nil store RecordJob should be a no-op: %v", err)
	}
	if rows, err := store.CompletedJobs(ctx, 1, 0); err != nil || rows != nil {
		t.Fatalf("nil store CompletedJobs should return (nil, nil), got (%v, %v)", rows, err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("nil store Close should be a no-op: %v", err)
	}
}
