// Package ipp implements the IPP protocol engine of spec.md §4.2: request
// validation, object-URI resolution, operation dispatch, and response
// assembly on top of github.com/OpenPrinting/goipp's wire codec.
package ipp

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/OpenPrinting/goipp"
)

// ValidationError carries the IPP status a failed validation step must
// produce, per spec.md §4.2's "Request validation (in order, first-failure
// wins)".
type ValidationError struct {
	Status  goipp.Status
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func fail(status goipp.Status, format string, args ...interface{}) error {
	return &ValidationError{Status: status, Message: fmt.Sprintf(format, args...)}
}

// noTargetOps enumerate without a target object, per spec.md §4.2 item 7's
// exception ("except for operations that enumerate printers without a
// target").
var noTargetOps = map[goipp.Op]bool{
	goipp.OpGetPrinters:    true,
	goipp.OpCupsGetPrinters: true,
	OpFindDevices:          true,
	OpFindDrivers:          true,
	OpCreatePrinters:       true,
}

// Validate runs spec.md §4.2's ordered request-validation checks and
// returns the first failure, if any, as a *ValidationError.
func Validate(m *goipp.Message) error {
	major := m.Version.Major()
	if major != 1 && major != 2 {
		return fail(goipp.StatusErrorVersionNotSupported, "unsupported IPP version %s", m.Version)
	}

	if m.RequestID == 0 {
		return fail(goipp.StatusErrorBadRequest, "request-id must be positive")
	}

	op := m.Operation()
	if len(*op) == 0 {
		return fail(goipp.StatusErrorBadRequest, "no operation attributes present")
	}

	if err := checkGroupOrder(m); err != nil {
		return err
	}

	attrs := *op
	if len(attrs) < 1 || attrs[0].Name != "attributes-charset" {
		return fail(goipp.StatusErrorBadRequest, "first attribute must be attributes-charset")
	}
	if !isCharsetOk(attrs[0]) {
		return fail(goipp.StatusErrorCharset, "unsupported charset")
	}

	if len(attrs) < 2 || attrs[1].Name != "attributes-natural-language" {
		return fail(goipp.StatusErrorBadRequest, "second attribute must be attributes-natural-language")
	}

	if !noTargetOps[goipp.Op(m.Code)] {
		if _, ok := findURIAttr(attrs); !ok {
			return fail(goipp.StatusErrorBadRequest, "missing system-uri/printer-uri/job-uri")
		}
	}

	return nil
}

func isCharsetOk(a goipp.Attribute) bool {
	for _, v := range a.Values {
		if s, ok := v.V.(goipp.String); ok {
			low := strings.ToLower(string(s))
			if low == "us-ascii" || low == "utf-8" {
				return true
			}
		}
	}
	return false
}

// checkGroupOrder enforces "attribute groups must be in non-decreasing tag
// order (zero-tag separators permitted)" per spec.md §4.2 item 4.
func checkGroupOrder(m *goipp.Message) error {
	last := goipp.TagZero
	for _, grp := range m.Groups {
		if grp.Tag == goipp.TagZero {
			continue
		}
		if grp.Tag < last {
			return fail(goipp.StatusErrorBadRequest, "attribute groups out of order")
		}
		last = grp.Tag
	}
	return nil
}

func findURIAttr(attrs goipp.Attributes) (string, bool) {
	for _, name := range []string{"system-uri", "printer-uri", "job-uri"} {
		for _, a := range attrs {
			if a.Name == name && len(a.Values) > 0 {
				if s, ok := a.Values[0].V.(goipp.String); ok {
					return string(s), true
				}
			}
		}
	}
	return "", false
}

// TargetKind identifies which object kind a request's URI resolved to,
// per spec.md §4.2's "Object resolution".
type TargetKind int

const (
	TargetSystem TargetKind = iota
	TargetPrinter
	TargetJob
)

// Target is the resolved object a request operates on.
type Target struct {
	Kind        TargetKind
	PrinterName string // from /ipp/print/<name>
	JobID       int    // from job-uri trailing segment or job-id attribute
}

// ResolveTarget implements spec.md §4.2's object resolution: it extracts
// the operation-targeting URI, separates scheme/host/port/resource, and
// classifies it as system/printer/job. A job-id operation attribute is
// consulted if no job-uri is present.
func ResolveTarget(m *goipp.Message) (Target, error) {
	op := *m.Operation()

	if uri, ok := attrString(op, "job-uri"); ok {
		u, err := url.Parse(uri)
		if err != nil {
			return Target{}, fail(goipp.StatusErrorBadRequest, "malformed job-uri")
		}
		seg := lastPathSegment(u.Path)
		id, err := parseJobID(seg)
		if err != nil {
			return Target{}, fail(goipp.StatusErrorBadRequest, "malformed job-uri job id")
		}
		return Target{Kind: TargetJob, JobID: id}, nil
	}

	if uri, ok := attrString(op, "printer-uri"); ok {
		u, err := url.Parse(uri)
		if err != nil {
			return Target{}, fail(goipp.StatusErrorBadRequest, "malformed printer-uri")
		}
		name := strings.TrimPrefix(u.Path, "/ipp/print/")
		if name == u.Path {
			return Target{}, fail(goipp.StatusErrorNotFound, "unrecognized printer resource path")
		}
		if id, ok := attrInteger(op, "job-id"); ok {
			return Target{Kind: TargetJob, PrinterName: name, JobID: id}, nil
		}
		return Target{Kind: TargetPrinter, PrinterName: name}, nil
	}

	if uri, ok := attrString(op, "system-uri"); ok {
		u, err := url.Parse(uri)
		if err != nil || u.Path != "/ipp/system" {
			return Target{}, fail(goipp.StatusErrorNotFound, "unrecognized system resource path")
		}
		return Target{Kind: TargetSystem}, nil
	}

	return Target{Kind: TargetSystem}, nil
}

func attrString(attrs goipp.Attributes, name string) (string, bool) {
	for _, a := range attrs {
		if a.Name == name && len(a.Values) > 0 {
			if s, ok := a.Values[0].V.(goipp.String); ok {
				return string(s), true
			}
		}
	}
	return "", false
}

func attrInteger(attrs goipp.Attributes, name string) (int, bool) {
	for _, a := range attrs {
		if a.Name == name && len(a.Values) > 0 {
			if n, ok := a.Values[0].V.(goipp.Integer); ok {
				return int(n), true
			}
		}
	}
	return 0, false
}

func lastPathSegment(p string) string {
	p = strings.TrimRight(p, "/")
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}

func parseJobID(seg string) (int, error) {
	var id int
	_, err := fmt.Sscanf(seg, "%d", &id)
	return id, err
}
