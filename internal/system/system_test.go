package system

import (
	"strings"
	"testing"
	"time"

	"ippd/internal/config"
	"ippd/internal/eventbus"
	"ippd/internal/logger"
)

func newTestSystem(t *testing.T) *System {
	t.Helper()
	cfg := config.Default()
	cfg.SpoolDir = t.TempDir()
	log := logger.New(logger.ERROR, "", "test", 10)
	log.SetConsoleOutput(false)
	bus := eventbus.NewHub()
	t.Cleanup(bus.Stop)
	t.Cleanup(func() { log.Close() })

	sys, err := New(cfg, log, bus, nil, []string{"generic"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return sys
}

func TestCreatePrinterAndFind(t *testing.T) {
	sys := newTestSystem(t)
	if err := sys.CreatePrinter("office", "file:///dev/null", "generic"); err != nil {
		t.Fatalf("CreatePrinter: %v", err)
	}
	summary, ok := sys.FindPrinter("office")
	if !ok {
		t.Fatal("expected to find the created printer")
	}
	if summary.Name != "office" {
		t.Errorf("got %q, want %q", summary.Name, "office")
	}
}

func TestCreatePrinterDuplicateNameFails(t *testing.T) {
	sys := newTestSystem(t)
	if err := sys.CreatePrinter("office", "file:///dev/null", "generic"); err != nil {
		t.Fatalf("CreatePrinter: %v", err)
	}
	if err := sys.CreatePrinter("office", "file:///dev/null", "generic"); err == nil {
		t.Fatal("expected an error creating a duplicate printer name")
	}
}

func TestDeletePrinterRemovesIt(t *testing.T) {
	sys := newTestSystem(t)
	if err := sys.CreatePrinter("office", "file:///dev/null", "generic"); err != nil {
		t.Fatalf("CreatePrinter: %v", err)
	}
	if err := sys.DeletePrinter("office"); err != nil {
		t.Fatalf("DeletePrinter: %v", err)
	}
	if _, ok := sys.FindPrinter("office"); ok {
		t.Fatal("expected printer to be gone after DeletePrinter")
	}
}

func TestCreateJobAndFind(t *testing.T) {
	sys := newTestSystem(t)
	if err := sys.CreatePrinter("office", "file:///dev/null", "generic"); err != nil {
		t.Fatalf("CreatePrinter: %v", err)
	}

	job, err := sys.CreateJob("office", "alice", "report.pdf", "application/pdf", nil, false, time.Time{})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if job.Username != "alice" {
		t.Errorf("got %q, want %q", job.Username, "alice")
	}

	found, ok := sys.FindJob("office", job.ID)
	if !ok {
		t.Fatal("expected to find the created job")
	}
	if found.ID != job.ID {
		t.Errorf("got job id %d, want %d", found.ID, job.ID)
	}
}

func TestIngestDocumentUnknownJobFails(t *testing.T) {
	sys := newTestSystem(t)
	if err := sys.CreatePrinter("office", "file:///dev/null", "generic"); err != nil {
		t.Fatalf("CreatePrinter: %v", err)
	}
	if err := sys.IngestDocument("office", 999, strings.NewReader("")); err == nil {
		t.Fatal("expected an error ingesting a document for an unknown job")
	}
}

func TestCancelJob(t *testing.T) {
	sys := newTestSystem(t)
	if err := sys.CreatePrinter("office", "file:///dev/null", "generic"); err != nil {
		t.Fatalf("CreatePrinter: %v", err)
	}
	job, err := sys.CreateJob("office", "alice", "report.pdf", "application/pdf", nil, true, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := sys.CancelJob("office", job.ID); err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
}

func TestActiveJobCountSumsAcrossPrinters(t *testing.T) {
	sys := newTestSystem(t)
	if err := sys.CreatePrinter("office", "file:///dev/null", "generic"); err != nil {
		t.Fatalf("CreatePrinter: %v", err)
	}
	if err := sys.CreatePrinter("lobby", "file:///dev/null", "generic"); err != nil {
		t.Fatalf("CreatePrinter: %v", err)
	}
	if _, err := sys.CreateJob("office", "alice", "a.pdf", "application/pdf", nil, false, time.Time{}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	job2, err := sys.CreateJob("lobby", "bob", "b.pdf", "application/pdf", nil, false, time.Time{})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	if got := sys.activeJobCount(); got != 2 {
		t.Fatalf("expected 2 active jobs across printers, got %d", got)
	}

	if err := sys.CancelJob("lobby", job2.ID); err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	if got := sys.activeJobCount(); got != 1 {
		t.Fatalf("expected 1 active job after canceling one, got %d", got)
	}
}

func TestShutdownDeadlineOrDefault(t *testing.T) {
	sys := newTestSystem(t)
	if d := sys.shutdownDeadlineOrDefault(); time.Until(d) < 50*time.Second {
		t.Fatalf("expected ~60s default deadline, got %v from now", time.Until(d))
	}

	want := time.Now().Add(5 * time.Second)
	sys.Shutdown(want)
	if got := sys.shutdownDeadlineOrDefault(); !got.Equal(want) {
		t.Fatalf("expected the operator-set deadline %v, got %v", want, got)
	}
}

func TestFindDriversReturnsRegistered(t *testing.T) {
	sys := newTestSystem(t)
	found := sys.FindDrivers()
	var ok bool
	for _, d := range found {
		if d == "generic" {
			ok = true
		}
	}
	if !ok {
		t.Errorf("expected %q among FindDrivers() results, got %v", "generic", found)
	}
}
