package ipp

import (
	"bytes"
	"io"
	"time"

	"github.com/OpenPrinting/goipp"

	"ippd/internal/job"
)

// formatPeekBytes is how many leading document-body bytes createAndIngest
// and handleSendDocument sniff before handing the (reconstructed) body to
// IngestDocument; large enough to cover every magic number DetectFormat
// matches (the longest is "RaS2PwgR", 8 bytes).
const formatPeekBytes = 16

type handlerFunc func(e *Engine, req *goipp.Message, target Target, body io.Reader) *goipp.Message

// handlers implements spec.md §4.2's dispatch table.
var handlers = map[goipp.Op]handlerFunc{
	goipp.OpPrintJob:              handlePrintJob,
	goipp.OpValidateJob:           handleValidateJob,
	goipp.OpCreateJob:             handleCreateJob,
	goipp.OpSendDocument:          handleSendDocument,
	goipp.OpCancelJob:             handleCancelJob,
	goipp.OpCancelCurrentJob:      handleCancelJob,
	goipp.OpCancelJobs:            handleCancelJobs,
	goipp.OpCancelMyJobs:          handleCancelJobs,
	goipp.OpCloseJob:              handleCloseJob,
	goipp.OpGetJobAttributes:      handleGetJobAttributes,
	goipp.OpGetJobs:               handleGetJobs,
	goipp.OpGetPrinterAttributes:  handleGetPrinterAttributes,
	goipp.OpSetPrinterAttributes:  handleSetPrinterAttributes,
	goipp.OpGetPrinters:           handleGetPrinters,
	goipp.OpGetSystemAttributes:   handleGetSystemAttributes,
	goipp.OpSetSystemAttributes:   handleSetSystemAttributes,
	goipp.OpCreatePrinter:         handleCreatePrinter,
	OpCreatePrinters:              handleCreatePrinters,
	goipp.OpDeletePrinter:         handleDeletePrinter,
	goipp.OpIdentifyPrinter:       handleIdentifyPrinter,
	goipp.OpShutdownAllPrinters:   handleShutdownAllPrinters,
	OpFindDevices:                 handleFindDevices,
	OpFindDrivers:                 handleFindDrivers,
}

func handlePrintJob(e *Engine, req *goipp.Message, target Target, body io.Reader) *goipp.Message {
	if err := RequireBody(body); err != nil {
		return newResponse(req, goipp.StatusErrorBadRequest, err.Error())
	}
	return createAndIngest(e, req, target, body, false)
}

func handleValidateJob(e *Engine, req *goipp.Message, target Target, body io.Reader) *goipp.Message {
	// Validation-only: spec.md's dispatch table says "validate only; no
	// job created." Request attributes have already passed Validate(); we
	// just confirm the target printer exists.
	if _, ok := e.Sys.FindPrinter(target.PrinterName); !ok {
		return newResponse(req, goipp.StatusErrorNotFound, "no such printer")
	}
	return newResponse(req, goipp.StatusOk, "")
}

func handleCreateJob(e *Engine, req *goipp.Message, target Target, body io.Reader) *goipp.Message {
	if body != nil {
		return newResponse(req, goipp.StatusErrorBadRequest, "Create-Job must not carry a document body")
	}
	return createAndIngest(e, req, target, nil, true)
}

func createAndIngest(e *Engine, req *goipp.Message, target Target, body io.Reader, held bool) *goipp.Message {
	rawJob := *req.Job()
	if unsupported := ValidateSettable(rawJob, JobSettableAttrs); len(unsupported) > 0 {
		return unsupportedResponse(req, unsupported)
	}
	if copies, ok := intAttr(rawJob, "copies"); ok && (copies < 1 || copies > 999) {
		return unsupportedResponse(req, []string{"copies"})
	}

	jobAttrs := fromGoippAttrs(rawJob)
	username, _ := stringAttr(*req.Operation(), "requesting-user-name")
	supplied, _ := stringAttr(*req.Operation(), "document-format")
	name, _ := stringAttr(*req.Operation(), "job-name")

	format := supplied
	if body != nil {
		format, body = sniffFormat(supplied, body)
	}

	var holdUntil time.Time
	if hu, ok := stringAttr(rawJob, "job-hold-until"); ok && hu != "" && hu != "no-hold" {
		resolved, err := job.ResolveHoldUntil(hu, time.Now())
		if err != nil {
			return unsupportedResponse(req, []string{"job-hold-until"})
		}
		held = true
		holdUntil = resolved
	}

	jb, err := e.Sys.CreateJob(target.PrinterName, username, name, format, jobAttrs, held, holdUntil)
	if err != nil {
		return newResponse(req, goipp.StatusErrorNotFound, err.Error())
	}

	if body != nil {
		if err := e.Sys.IngestDocument(target.PrinterName, jb.ID, body); err != nil {
			return newResponse(req, goipp.StatusErrorDocumentFormatError, err.Error())
		}
	}

	resp := newResponse(req, goipp.StatusOk, "")
	jg := resp.Job()
	addAttrs(jg, jb.Attributes, nil)
	jg.Add(makeAttr("job-id", goipp.TagInteger, goipp.Integer(jb.ID)))
	jg.Add(makeAttr("job-state", goipp.TagEnum, goipp.Integer(jobStateEnum(jb.State))))
	if supplied != "" {
		jg.Add(makeAttr("document-format-supplied", goipp.TagMimeType, goipp.String(supplied)))
	}
	if format != "" {
		jg.Add(makeAttr("document-format-detected", goipp.TagMimeType, goipp.String(format)))
	}
	return resp
}

// sniffFormat peeks body's leading bytes and runs DetectFormat against
// them when supplied is empty or the generic "application/octet-stream",
// per spec.md §4.2's document-format auto-typing rule. It returns the
// resolved format alongside a reader that replays the peeked bytes ahead
// of the rest of body, so the peek doesn't lose data for ingestion.
func sniffFormat(supplied string, body io.Reader) (string, io.Reader) {
	buf := make([]byte, formatPeekBytes)
	n, _ := io.ReadFull(body, buf)
	peek := buf[:n]
	detected := DetectFormat(supplied, peek, nil, "application/octet-stream")
	return detected, io.MultiReader(bytes.NewReader(peek), body)
}

func handleSendDocument(e *Engine, req *goipp.Message, target Target, body io.Reader) *goipp.Message {
	jb, ok := e.Sys.FindJob(target.PrinterName, target.JobID)
	if !ok {
		return newResponse(req, goipp.StatusErrorNotFound, "no such job")
	}

	supplied, hasSupplied := stringAttr(*req.Operation(), "document-format")
	declared := jb.Format
	if hasSupplied {
		declared = supplied
	}

	format := declared
	if body != nil {
		format, body = sniffFormat(declared, body)
		if format != jb.Format {
			if err := e.Sys.UpdateJobFormat(target.PrinterName, target.JobID, format); err != nil {
				return newResponse(req, goipp.StatusErrorNotFound, err.Error())
			}
		}
	}

	if err := e.Sys.IngestDocument(target.PrinterName, target.JobID, body); err != nil {
		return newResponse(req, goipp.StatusErrorDocumentFormatError, err.Error())
	}

	resp := newResponse(req, goipp.StatusOk, "")
	op := resp.Operation()
	if supplied != "" {
		op.Add(makeAttr("document-format-supplied", goipp.TagMimeType, goipp.String(supplied)))
	}
	if format != "" {
		op.Add(makeAttr("document-format-detected", goipp.TagMimeType, goipp.String(format)))
	}
	return resp
}

func handleCancelJob(e *Engine, req *goipp.Message, target Target, body io.Reader) *goipp.Message {
	if err := e.Sys.CancelJob(target.PrinterName, target.JobID); err != nil {
		return newResponse(req, goipp.StatusErrorNotPossible, err.Error())
	}
	return newResponse(req, goipp.StatusOk, "")
}

func handleCancelJobs(e *Engine, req *goipp.Message, target Target, body io.Reader) *goipp.Message {
	user, _ := stringAttr(*req.Operation(), "requesting-user-name")
	all := req.Code == goipp.Code(goipp.OpCancelJobs)
	n := e.Sys.CancelJobs(target.PrinterName, user, all)
	resp := newResponse(req, goipp.StatusOk, "")
	resp.Operation().Add(makeAttr("job-count", goipp.TagInteger, goipp.Integer(n)))
	return resp
}

func handleCloseJob(e *Engine, req *goipp.Message, target Target, body io.Reader) *goipp.Message {
	if err := e.Sys.CloseJob(target.PrinterName, target.JobID); err != nil {
		return newResponse(req, goipp.StatusErrorNotPossible, err.Error())
	}
	return newResponse(req, goipp.StatusOk, "")
}

func handleGetJobAttributes(e *Engine, req *goipp.Message, target Target, body io.Reader) *goipp.Message {
	j, ok := e.Sys.FindJob(target.PrinterName, target.JobID)
	if !ok {
		return newResponse(req, goipp.StatusErrorNotFound, "no such job")
	}
	resp := newResponse(req, goipp.StatusOk, "")
	requested := requestedAttributes(*req.Operation())
	addAttrs(resp.Job(), j.Attributes, requested)
	return resp
}

func handleGetJobs(e *Engine, req *goipp.Message, target Target, body io.Reader) *goipp.Message {
	op := *req.Operation()
	which, _ := stringAttr(op, "which-jobs")
	limit, _ := intAttr(op, "limit")
	first, _ := intAttr(op, "first-job-id")
	myUser := ""
	if b, ok := boolAttr(op, "my-jobs"); ok && b {
		myUser, _ = stringAttr(op, "requesting-user-name")
	}

	jobs := e.Sys.Jobs(target.PrinterName, which, limit, first, myUser)
	resp := newResponse(req, goipp.StatusOk, "")
	for _, j := range jobs {
		jg := resp.EnsureGroup(goipp.TagJobGroup)
		addAttrs(jg, j.Attributes, requestedAttributes(op))
	}
	return resp
}

func handleGetPrinterAttributes(e *Engine, req *goipp.Message, target Target, body io.Reader) *goipp.Message {
	p, ok := e.Sys.FindPrinter(target.PrinterName)
	if !ok {
		return newResponse(req, goipp.StatusErrorNotFound, "no such printer")
	}
	resp := newResponse(req, goipp.StatusOk, "")
	addAttrs(resp.Printer(), p.Attributes, requestedAttributes(*req.Operation()))
	return resp
}

func handleSetPrinterAttributes(e *Engine, req *goipp.Message, target Target, body io.Reader) *goipp.Message {
	raw := *req.Printer()
	if unsupported := ValidateSettable(raw, PrinterSettableAttrs); len(unsupported) > 0 {
		return unsupportedResponse(req, unsupported)
	}
	attrs := fromGoippAttrs(raw)
	if err := e.Sys.SetPrinterAttributes(target.PrinterName, attrs); err != nil {
		return newResponse(req, goipp.StatusErrorNotFound, err.Error())
	}
	return newResponse(req, goipp.StatusOk, "")
}

func unsupportedResponse(req *goipp.Message, unsupported []string) *goipp.Message {
	resp := newResponse(req, goipp.StatusErrorAttributesOrValues, "unsupported attributes")
	u := resp.Unsupported()
	for _, name := range unsupported {
		u.Add(makeAttr(name, goipp.TagUnsupportedValue, goipp.Void{}))
	}
	return resp
}

func handleGetPrinters(e *Engine, req *goipp.Message, target Target, body io.Reader) *goipp.Message {
	resp := newResponse(req, goipp.StatusOk, "")
	requested := requestedAttributes(*req.Operation())
	for _, p := range e.Sys.Printers() {
		pg := resp.EnsureGroup(goipp.TagPrinterGroup)
		addAttrs(pg, p.Attributes, requested)
	}
	return resp
}

func handleGetSystemAttributes(e *Engine, req *goipp.Message, target Target, body io.Reader) *goipp.Message {
	resp := newResponse(req, goipp.StatusOk, "")
	addAttrs(resp.System(), e.Sys.SystemAttributes(), requestedAttributes(*req.Operation()))
	return resp
}

func handleSetSystemAttributes(e *Engine, req *goipp.Message, target Target, body io.Reader) *goipp.Message {
	raw := *req.System()
	if unsupported := ValidateSettable(raw, SystemSettableAttrs); len(unsupported) > 0 {
		return unsupportedResponse(req, unsupported)
	}
	attrs := fromGoippAttrs(raw)
	if err := e.Sys.SetSystemAttributes(attrs); err != nil {
		return newResponse(req, goipp.StatusErrorBadRequest, err.Error())
	}
	return newResponse(req, goipp.StatusOk, "")
}

func handleCreatePrinter(e *Engine, req *goipp.Message, target Target, body io.Reader) *goipp.Message {
	op := *req.Operation()
	name, _ := stringAttr(op, "printer-name")
	deviceURI, _ := stringAttr(op, "device-uri")
	driver, _ := stringAttr(op, "smi2699-device-command")
	if err := e.Sys.CreatePrinter(name, deviceURI, driver); err != nil {
		return newResponse(req, goipp.StatusErrorBadRequest, err.Error())
	}
	return newResponse(req, goipp.StatusOk, "")
}

// handleCreatePrinters implements the custom batch "create-printers"
// operation of spec.md §6 by repeating single-printer creation for each
// printer-name/device-uri pair found in the operation attributes.
func handleCreatePrinters(e *Engine, req *goipp.Message, target Target, body io.Reader) *goipp.Message {
	op := *req.Operation()
	var names, uris []string
	for _, a := range op {
		switch a.Name {
		case "printer-name":
			for _, v := range a.Values {
				if s, ok := v.V.(goipp.String); ok {
					names = append(names, string(s))
				}
			}
		case "device-uri":
			for _, v := range a.Values {
				if s, ok := v.V.(goipp.String); ok {
					uris = append(uris, string(s))
				}
			}
		}
	}
	for i, name := range names {
		uri := ""
		if i < len(uris) {
			uri = uris[i]
		}
		if err := e.Sys.CreatePrinter(name, uri, ""); err != nil {
			return newResponse(req, goipp.StatusErrorBadRequest, err.Error())
		}
	}
	return newResponse(req, goipp.StatusOk, "")
}

func handleDeletePrinter(e *Engine, req *goipp.Message, target Target, body io.Reader) *goipp.Message {
	if err := e.Sys.DeletePrinter(target.PrinterName); err != nil {
		return newResponse(req, goipp.StatusErrorNotFound, err.Error())
	}
	return newResponse(req, goipp.StatusOk, "")
}

func handleIdentifyPrinter(e *Engine, req *goipp.Message, target Target, body io.Reader) *goipp.Message {
	if err := e.Sys.IdentifyPrinter(target.PrinterName); err != nil {
		return newResponse(req, goipp.StatusErrorNotFound, err.Error())
	}
	return newResponse(req, goipp.StatusOk, "")
}

func handleShutdownAllPrinters(e *Engine, req *goipp.Message, target Target, body io.Reader) *goipp.Message {
	e.Sys.Shutdown(time.Now().Add(60 * time.Second))
	return newResponse(req, goipp.StatusOk, "")
}

func handleFindDevices(e *Engine, req *goipp.Message, target Target, body io.Reader) *goipp.Message {
	resp := newResponse(req, goipp.StatusOk, "")
	op := resp.Operation()
	for _, uri := range e.Sys.FindDevices() {
		op.Add(makeAttr("device-uri", goipp.TagURI, goipp.String(uri)))
	}
	return resp
}

func handleFindDrivers(e *Engine, req *goipp.Message, target Target, body io.Reader) *goipp.Message {
	resp := newResponse(req, goipp.StatusOk, "")
	op := resp.Operation()
	for _, drv := range e.Sys.FindDrivers() {
		op.Add(makeAttr("smi2699-device-command", goipp.TagKeyword, goipp.String(drv)))
	}
	return resp
}

func stringAttr(attrs goipp.Attributes, name string) (string, bool) {
	for _, a := range attrs {
		if a.Name == name && len(a.Values) > 0 {
			if s, ok := a.Values[0].V.(goipp.String); ok {
				return string(s), true
			}
		}
	}
	return "", false
}

func intAttr(attrs goipp.Attributes, name string) (int, bool) {
	for _, a := range attrs {
		if a.Name == name && len(a.Values) > 0 {
			if n, ok := a.Values[0].V.(goipp.Integer); ok {
				return int(n), true
			}
		}
	}
	return 0, false
}

func boolAttr(attrs goipp.Attributes, name string) (bool, bool) {
	for _, a := range attrs {
		if a.Name == name && len(a.Values) > 0 {
			if b, ok := a.Values[0].V.(goipp.Boolean); ok {
				return bool(b), true
			}
		}
	}
	return false, false
}

func fromGoippAttrs(attrs goipp.Attributes) map[string]AttrValue {
	out := make(map[string]AttrValue, len(attrs))
	for _, a := range attrs {
		if len(a.Values) == 0 {
			continue
		}
		v := a.Values[0]
		out[a.Name] = AttrValue{Tag: v.T, V: goippValueToGo(v.V)}
	}
	return out
}

func goippValueToGo(v goipp.Value) interface{} {
	switch t := v.(type) {
	case goipp.String:
		return string(t)
	case goipp.Integer:
		return int(t)
	case goipp.Boolean:
		return bool(t)
	case goipp.Time:
		return t.Time
	default:
		return v.String()
	}
}

// jobStateEnum maps the engine's string job state to the IPP job-state
// enum values (3=pending,4=held,5=processing,6=stopped,7=canceled,
// 8=aborted,9=completed), per RFC 8011.
func jobStateEnum(state string) int {
	switch state {
	case "pending":
		return 3
	case "held":
		return 4
	case "processing":
		return 5
	case "stopped":
		return 6
	case "canceled":
		return 7
	case "aborted":
		return 8
	case "completed":
		return 9
	default:
		return 3
	}
}
