package ipp

import (
	"io"
	"time"

	"github.com/OpenPrinting/goipp"
)

// AttrValue is a lightweight attribute value carrier so internal/system
// doesn't need to import goipp directly for every field; Engine converts
// to/from goipp.Value at the wire boundary.
type AttrValue struct {
	Tag goipp.Tag
	V   interface{} // string, int, bool, time.Time, [2]int (range), etc.
}

// JobSummary is the subset of job state the IPP engine needs to assemble
// a response, decoupling internal/ipp from internal/job's concrete type.
type JobSummary struct {
	ID          int
	PrinterName string
	State       string // "held", "pending", ...
	StateReason uint32
	Username    string
	Format      string
	Attributes  map[string]AttrValue
}

// PrinterSummary is the subset of printer state the engine needs.
type PrinterSummary struct {
	Name       string
	State      string
	Attributes map[string]AttrValue
}

// System is the interface the IPP engine dispatches into; internal/system
// supplies the implementation, keeping internal/ipp free of a dependency
// on job-manager internals (accept-interfaces idiom).
type System interface {
	SystemAttributes() map[string]AttrValue
	SetSystemAttributes(attrs map[string]AttrValue) error
	Printers() []PrinterSummary
	FindPrinter(name string) (PrinterSummary, bool)
	CreatePrinter(name, deviceURI, driver string) error
	DeletePrinter(name string) error
	SetPrinterAttributes(name string, attrs map[string]AttrValue) error
	IdentifyPrinter(name string) error
	Shutdown(deadline time.Time)

	CreateJob(printer, username, name, format string, attrs map[string]AttrValue, held bool, holdUntil time.Time) (JobSummary, error)
	IngestDocument(printer string, jobID int, body io.Reader) error
	UpdateJobFormat(printer string, jobID int, format string) error
	FindJob(printer string, jobID int) (JobSummary, bool)
	Jobs(printer, whichJobs string, limit, firstJobID int, myUser string) []JobSummary
	CancelJob(printer string, jobID int) error
	CancelJobs(printer, user string, all bool) int
	CloseJob(printer string, jobID int) error

	FindDevices() []string
	FindDrivers() []string
}

// Engine dispatches validated IPP requests to a System implementation and
// assembles responses, per spec.md §4.2.
type Engine struct {
	Sys System
}

func NewEngine(sys System) *Engine {
	return &Engine{Sys: sys}
}

// Dispatch validates req, resolves its target, and runs the matching
// handler, returning a fully formed response message. It never panics on
// malformed input: validation failures become well-formed error
// responses, per spec.md §7's "protocol errors ... request rejected with
// no state change."
func (e *Engine) Dispatch(req *goipp.Message, body io.Reader) *goipp.Message {
	if err := Validate(req); err != nil {
		return errorResponse(req, err)
	}

	target, err := ResolveTarget(req)
	if err != nil {
		return errorResponse(req, err)
	}

	op := goipp.Op(req.Code)
	h, ok := handlers[op]
	if !ok {
		return newResponse(req, goipp.StatusErrorOperationNotSupported, "unsupported operation")
	}
	return h(e, req, target, body)
}

func errorResponse(req *goipp.Message, err error) *goipp.Message {
	status := goipp.StatusErrorBadRequest
	if ve, ok := err.(*ValidationError); ok {
		status = ve.Status
	}
	return newResponse(req, status, err.Error())
}

func newResponse(req *goipp.Message, status goipp.Status, message string) *goipp.Message {
	resp := goipp.NewResponse(goipp.DefaultVersion, status, req.RequestID)
	op := resp.Operation()
	op.Add(makeAttr("attributes-charset", goipp.TagCharset, goipp.String("utf-8")))
	op.Add(makeAttr("attributes-natural-language", goipp.TagLanguage, goipp.String("en")))
	if message != "" {
		op.Add(makeAttr("status-message", goipp.TagText, goipp.String(message)))
	}
	return resp
}

func toGoippValue(v AttrValue) goipp.Value {
	switch t := v.V.(type) {
	case string:
		return goipp.String(t)
	case int:
		return goipp.Integer(t)
	case bool:
		return goipp.Boolean(t)
	case time.Time:
		return goipp.Time{Time: t}
	default:
		return goipp.String("")
	}
}

func addAttrs(attrs *goipp.Attributes, m map[string]AttrValue, requested []string) {
	all := len(requested) == 0
	want := make(map[string]bool, len(requested))
	for _, r := range requested {
		want[r] = true
	}
	for name, v := range m {
		if !all && !want[name] {
			continue
		}
		attrs.Add(makeAttr(name, v.Tag, toGoippValue(v)))
	}
}

// makeAttr builds a single-value Attribute; goipp exposes no such
// constructor, only the Values.Add append method.
func makeAttr(name string, tag goipp.Tag, v goipp.Value) goipp.Attribute {
	a := goipp.Attribute{Name: name}
	a.AddValue(tag, v)
	return a
}

func requestedAttributes(op goipp.Attributes) []string {
	var out []string
	for _, a := range op {
		if a.Name != "requested-attributes" {
			continue
		}
		for _, v := range a.Values {
			if s, ok := v.V.(goipp.String); ok {
				out = append(out, string(s))
			}
		}
	}
	return out
}
