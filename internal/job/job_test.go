package job

import (
	"testing"
	"time"
)

func TestJobCancelIdempotent(t *testing.T) {
	j := New(1, 1, "urn:uuid:x", "alice", "report.pdf", "application/pdf")
	j.Release()
	if err := j.StartProcessing(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	j.Finish(true, "")

	if ok := j.Cancel(); ok {
		t.Fatalf("Cancel on completed job should report not-possible")
	}
	if j.State() != StateCompleted {
		t.Fatalf("state changed after no-op cancel: %s", j.State())
	}
}

func TestJobCancelDuringProcessing(t *testing.T) {
	j := New(1, 1, "urn:uuid:x", "alice", "report.pdf", "application/pdf")
	j.Release()
	if err := j.StartProcessing(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ok := j.Cancel(); !ok {
		t.Fatalf("Cancel on processing job should succeed")
	}
	if !j.IsCanceled() {
		t.Fatalf("expected canceled flag set")
	}
	if j.State() != StateProcessing {
		t.Fatalf("job should remain processing until driver returns, got %s", j.State())
	}

	j.Finish(true, "")
	if j.State() != StateCanceled {
		t.Fatalf("expected canceled after Finish, got %s", j.State())
	}
	if j.Completed.IsZero() {
		t.Fatalf("expected completed timestamp to be set")
	}
}

func TestJobHoldRelease(t *testing.T) {
	j := New(1, 1, "urn:uuid:x", "alice", "report.pdf", "application/pdf")
	j.SetHoldUntil(time.Now().Add(time.Hour))
	if j.State() != StateHeld {
		t.Fatalf("expected held, got %s", j.State())
	}
	if j.ReadyToRelease(time.Now()) {
		t.Fatalf("should not be ready to release yet")
	}
	if !j.ReadyToRelease(time.Now().Add(2 * time.Hour)) {
		t.Fatalf("should be ready to release after hold elapses")
	}
}

func TestResolveHoldUntilIndefinite(t *testing.T) {
	when, err := ResolveHoldUntil("indefinite", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !when.IsZero() {
		t.Fatalf("expected zero time for indefinite hold")
	}
}

func TestResolveHoldUntilNightWraps(t *testing.T) {
	noon := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	when, err := ResolveHoldUntil("night", noon)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if when.Hour() != 22 || when.Day() != 15 {
		t.Fatalf("expected same-day 22:00, got %v", when)
	}
}

func TestResolveHoldUntilUnknownShift(t *testing.T) {
	if _, err := ResolveHoldUntil("bogus-shift", time.Now()); err == nil {
		t.Fatalf("expected error for unknown shift name")
	}
}
