package job

import (
	"strings"
	"testing"
)

func TestIngestSpoolsFileAndPreservesPendingState(t *testing.T) {
	j := New(1, 1, "urn:uuid:x", "alice", "report.pdf", "application/pdf")
	j.Release()

	if err := j.Ingest(t.TempDir(), "report-00001", strings.NewReader("hello")); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if j.State() != StatePending {
		t.Fatalf("expected pending, got %s", j.State())
	}
	if j.SpoolFile == "" {
		t.Fatalf("expected SpoolFile to be set")
	}
}

func TestIngestDoesNotReleaseAnIndefinitelyHeldJob(t *testing.T) {
	j := New(1, 1, "urn:uuid:x", "alice", "report.pdf", "application/pdf")
	// HoldUntil stays zero: an explicit "indefinite" hold, per
	// ResolveHoldUntil's "indefinite" case.

	if err := j.Ingest(t.TempDir(), "report-00001", strings.NewReader("hello")); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if j.State() != StateHeld {
		t.Fatalf("expected an indefinitely-held job to stay held after ingest, got %s", j.State())
	}
}

func TestIngestAbortsOnWriteFailure(t *testing.T) {
	j := New(1, 1, "urn:uuid:x", "alice", "report.pdf", "application/pdf")
	if err := j.Ingest("/nonexistent/spool/dir", "report-00001", strings.NewReader("hello")); err == nil {
		t.Fatalf("expected an error spooling into a nonexistent directory")
	}
	if j.State() != StateAborted {
		t.Fatalf("expected aborted after a spool failure, got %s", j.State())
	}
}
