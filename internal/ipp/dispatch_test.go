package ipp

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/OpenPrinting/goipp"
)

// fakeSystem is a minimal in-memory ipp.System used to exercise dispatch.go
// without pulling in internal/system, mirroring the shape of spec.md §4.3's
// job record.
type fakeSystem struct {
	nextID  int
	jobs    map[int]*fakeJob
	created []createdJob
}

type fakeJob struct {
	id        int
	format    string
	held      bool
	holdUntil time.Time
	body      []byte
}

type createdJob struct {
	held      bool
	holdUntil time.Time
	format    string
}

func newFakeSystem() *fakeSystem {
	return &fakeSystem{jobs: make(map[int]*fakeJob)}
}

func (f *fakeSystem) SystemAttributes() map[string]AttrValue                { return nil }
func (f *fakeSystem) SetSystemAttributes(map[string]AttrValue) error        { return nil }
func (f *fakeSystem) Printers() []PrinterSummary                            { return nil }
func (f *fakeSystem) FindPrinter(string) (PrinterSummary, bool)             { return PrinterSummary{}, true }
func (f *fakeSystem) CreatePrinter(string, string, string) error            { return nil }
func (f *fakeSystem) DeletePrinter(string) error                            { return nil }
func (f *fakeSystem) SetPrinterAttributes(string, map[string]AttrValue) error { return nil }
func (f *fakeSystem) IdentifyPrinter(string) error                          { return nil }
func (f *fakeSystem) Shutdown(time.Time)                                    {}
func (f *fakeSystem) FindDevices() []string                                 { return nil }
func (f *fakeSystem) FindDrivers() []string                                 { return nil }

func (f *fakeSystem) CreateJob(printer, username, name, format string, attrs map[string]AttrValue, held bool, holdUntil time.Time) (JobSummary, error) {
	f.nextID++
	id := f.nextID
	f.jobs[id] = &fakeJob{id: id, format: format, held: held, holdUntil: holdUntil}
	f.created = append(f.created, createdJob{held: held, holdUntil: holdUntil, format: format})
	state := "pending"
	if held {
		state = "held"
	}
	return JobSummary{ID: id, State: state, Format: format, Attributes: map[string]AttrValue{}}, nil
}

func (f *fakeSystem) IngestDocument(printer string, jobID int, body io.Reader) error {
	j, ok := f.jobs[jobID]
	if !ok {
		return errNoSuchJob
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	j.body = b
	return nil
}

func (f *fakeSystem) UpdateJobFormat(printer string, jobID int, format string) error {
	j, ok := f.jobs[jobID]
	if !ok {
		return errNoSuchJob
	}
	j.format = format
	return nil
}

func (f *fakeSystem) FindJob(printer string, jobID int) (JobSummary, bool) {
	j, ok := f.jobs[jobID]
	if !ok {
		return JobSummary{}, false
	}
	return JobSummary{ID: j.id, Format: j.format, Attributes: map[string]AttrValue{}}, true
}

func (f *fakeSystem) Jobs(printer, whichJobs string, limit, firstJobID int, myUser string) []JobSummary {
	return nil
}
func (f *fakeSystem) CancelJob(string, int) error         { return nil }
func (f *fakeSystem) CancelJobs(string, string, bool) int { return 0 }
func (f *fakeSystem) CloseJob(string, int) error          { return nil }

var errNoSuchJob = &ValidationError{Status: goipp.StatusErrorNotFound, Message: "no such job"}

func jobGroupMessage(code goipp.Op, jobAttrs, opAttrs goipp.Attributes) *goipp.Message {
	req := &goipp.Message{Code: goipp.Code(code)}
	*req.Operation() = opAttrs
	*req.Job() = jobAttrs
	return req
}

func TestCreateAndIngestHoldsIndefiniteHoldUntil(t *testing.T) {
	f := newFakeSystem()
	e := &Engine{Sys: f}
	req := jobGroupMessage(goipp.OpPrintJob,
		goipp.Attributes{{Name: "job-hold-until", Values: goipp.Values{{T: goipp.TagKeyword, V: goipp.String("indefinite")}}}},
		goipp.Attributes{},
	)

	resp := createAndIngest(e, req, Target{PrinterName: "office"}, strings.NewReader("hello"), false)
	if resp.Code != goipp.Code(goipp.StatusOk) {
		t.Fatalf("expected StatusOk, got %v", resp.Code)
	}
	if len(f.created) != 1 {
		t.Fatalf("expected one job created, got %d", len(f.created))
	}
	got := f.created[0]
	if !got.held {
		t.Fatalf("expected job-hold-until=indefinite to hold the job")
	}
	if !got.holdUntil.IsZero() {
		t.Fatalf("expected indefinite to resolve to the zero time, got %v", got.holdUntil)
	}
}

func TestCreateAndIngestRejectsUnknownHoldUntilShift(t *testing.T) {
	f := newFakeSystem()
	e := &Engine{Sys: f}
	req := jobGroupMessage(goipp.OpPrintJob,
		goipp.Attributes{{Name: "job-hold-until", Values: goipp.Values{{T: goipp.TagKeyword, V: goipp.String("not-a-shift")}}}},
		goipp.Attributes{},
	)

	resp := createAndIngest(e, req, Target{PrinterName: "office"}, strings.NewReader("hello"), false)
	if resp.Code == goipp.Code(goipp.StatusOk) {
		t.Fatalf("expected an error status for an unknown job-hold-until shift")
	}
	if len(f.created) != 0 {
		t.Fatalf("expected no job to be created for a rejected request")
	}
}

func TestCreateAndIngestSniffsUndeclaredFormat(t *testing.T) {
	f := newFakeSystem()
	e := &Engine{Sys: f}
	req := jobGroupMessage(goipp.OpPrintJob, goipp.Attributes{}, goipp.Attributes{})

	resp := createAndIngest(e, req, Target{PrinterName: "office"}, strings.NewReader("%PDF-1.7 rest of the file"), false)
	if resp.Code != goipp.Code(goipp.StatusOk) {
		t.Fatalf("expected StatusOk, got %v", resp.Code)
	}
	if f.created[0].format != "application/pdf" {
		t.Fatalf("expected sniffed format application/pdf, got %q", f.created[0].format)
	}
	if got := string(f.jobs[1].body); got != "%PDF-1.7 rest of the file" {
		t.Fatalf("expected the full body to still reach IngestDocument, got %q", got)
	}
}

func TestHandleSendDocumentUpdatesDetectedFormat(t *testing.T) {
	f := newFakeSystem()
	f.jobs[1] = &fakeJob{id: 1, format: "application/octet-stream"}
	f.nextID = 1
	e := &Engine{Sys: f}
	req := jobGroupMessage(goipp.OpSendDocument, goipp.Attributes{}, goipp.Attributes{})

	resp := handleSendDocument(e, req, Target{PrinterName: "office", JobID: 1}, strings.NewReader("%!PS-Adobe-3.0"))
	if resp.Code != goipp.Code(goipp.StatusOk) {
		t.Fatalf("expected StatusOk, got %v", resp.Code)
	}
	if f.jobs[1].format != "application/postscript" {
		t.Fatalf("expected job format to be updated to application/postscript, got %q", f.jobs[1].format)
	}
}
