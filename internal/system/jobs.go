package system

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/OpenPrinting/goipp"

	"ippd/internal/eventbus"
	"ippd/internal/idutil"
	"ippd/internal/ipp"
	"ippd/internal/job"
	"ippd/internal/storage"
)

// recordJob mirrors j's current snapshot into the history store whenever it
// reaches (or re-reaches, for a Get-Jobs-visible intermediate state) a
// terminal state, per SPEC_FULL.md §4.3.
func (p *Printer) recordJob(j *job.Job) {
	if p.sys.store == nil {
		return
	}
	row := storage.JobRow{
		ID: j.ID, PrinterID: j.PrinterID, Username: j.Username, Name: j.Name,
		Format: j.Format, State: j.State().String(), Impressions: j.ImpressionsCompleted,
		Created: j.Created, Completed: j.Completed, Message: j.Message, Attributes: j.Attributes,
	}
	if err := p.sys.store.RecordJob(context.Background(), row); err != nil {
		p.sys.log.Warn("failed to mirror job to storage", "job", j.ID, "printer", p.id, "error", err.Error())
	}
}

// summary converts a Printer's current state to the engine-facing
// ipp.PrinterSummary, the seam between internal/system and internal/ipp.
func (p *Printer) summary() ipp.PrinterSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return ipp.PrinterSummary{
		Name:  p.name,
		State: p.state.String(),
		Attributes: map[string]ipp.AttrValue{
			"printer-name":     {Tag: goipp.TagName, V: p.name},
			"printer-uuid":     {Tag: goipp.TagURI, V: p.uuid},
			"printer-state":    {Tag: goipp.TagEnum, V: printerStateEnum(p.state)},
			"device-uri":       {Tag: goipp.TagURI, V: p.deviceURI},
			"printer-resource": {Tag: goipp.TagURI, V: p.resource},
		},
	}
}

func printerStateEnum(s PrinterState) int {
	switch s {
	case PrinterProcessing:
		return 4
	case PrinterStopped:
		return 5
	default:
		return 3
	}
}

// applyAttributes stores a whitelisted subset of printer attributes, per
// spec.md §4.2's Set-Printer-Attributes. Values already passed
// ipp.ValidateSettable before reaching here.
func (p *Printer) applyAttributes(attrs map[string]ipp.AttrValue) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := attrs["printer-name"]; ok {
		if s, ok := v.V.(string); ok {
			p.name = s
		}
	}
	p.configTime = time.Now()
}

func (p *Printer) identify() error {
	p.mu.RLock()
	conn := p.device
	p.mu.RUnlock()
	if conn == nil {
		return nil // spec.md §4.2: identify is best-effort when device is idle
	}
	_, err := conn.Write([]byte{0x1b, '@'}) // printer reset sequence, a harmless "flash" for identify
	return err
}

func (p *Printer) createJob(username, name, format string, attrs map[string]ipp.AttrValue, held bool, holdUntil time.Time) (ipp.JobSummary, error) {
	p.mu.Lock()
	if p.queue.ActiveCount() >= p.queue.MaxActive && p.queue.MaxActive > 0 {
		p.mu.Unlock()
		return ipp.JobSummary{}, fmt.Errorf("system: printer %q has too many active jobs", p.name)
	}

	id := p.queue.NextJobID()
	uuid, err := idutil.DeriveJobUUID(p.sys.cfg.Hostname, p.sys.cfg.Port, p.name, id)
	if err != nil {
		p.mu.Unlock()
		return ipp.JobSummary{}, err
	}

	j := job.New(id, p.id, uuid, username, idutil.DecodeOctetString([]byte(name)), format)
	j.Attributes = make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		j.Attributes[k] = v.V
	}
	if held {
		j.HoldUntil = holdUntil
	} else {
		j.Release()
	}
	p.queue.Add(j)
	p.mu.Unlock()

	p.sys.bus.Publish(eventbus.Event{Kind: eventbus.JobCreated, PrinterID: p.id, JobID: id})
	return jobSummary(j), nil
}

func (p *Printer) ingestDocument(jobID int, body io.Reader) error {
	p.mu.Lock()
	j, ok := p.queue.ByID(jobID)
	spoolDir := p.sys.spoolDir
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("system: job %d not found", jobID)
	}

	filename := fmt.Sprintf("%s-%05d", p.uriSafeName, j.ID)
	err := j.Ingest(spoolDir, filename, body)
	if j.State().Terminal() {
		p.recordJob(j)
	}
	return err
}

func (p *Printer) updateJobFormat(jobID int, format string) error {
	p.mu.RLock()
	j, ok := p.queue.ByID(jobID)
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("system: job %d not found", jobID)
	}
	j.SetFormat(format)
	return nil
}

func (p *Printer) findJob(jobID int) (ipp.JobSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	j, ok := p.queue.ByID(jobID)
	if !ok {
		return ipp.JobSummary{}, false
	}
	return jobSummary(j), true
}

func (p *Printer) jobs(whichJobs string, limit, firstJobID int, myUser string) []ipp.JobSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var src []*job.Job
	switch whichJobs {
	case "completed":
		src = p.queue.Completed()
	case "aborted", "canceled":
		for _, j := range p.queue.Completed() {
			if j.State().String() == whichJobs {
				src = append(src, j)
			}
		}
	default: // "not-completed" or unset
		src = p.queue.Active()
	}

	var out []ipp.JobSummary
	for _, j := range src {
		if j.ID < firstJobID {
			continue
		}
		if myUser != "" && j.Username != myUser {
			continue
		}
		out = append(out, jobSummary(j))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func (p *Printer) cancelJob(jobID int) error {
	p.mu.Lock()
	j, ok := p.queue.ByID(jobID)
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("system: job %d not found", jobID)
	}
	if !j.Cancel() {
		return fmt.Errorf("system: job %d cannot be canceled in its current state", jobID)
	}
	p.mu.Lock()
	p.queue.Reap()
	p.mu.Unlock()
	if j.State().Terminal() {
		p.recordJob(j)
	}
	p.sys.bus.Publish(eventbus.Event{Kind: eventbus.JobStateChanged, PrinterID: p.id, JobID: jobID})
	return nil
}

func (p *Printer) cancelJobs(user string, all bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	count := 0
	for _, j := range p.queue.Active() {
		if !all && j.Username != user {
			continue
		}
		if j.Cancel() {
			count++
			if j.State().Terminal() {
				p.recordJob(j)
			}
		}
	}
	p.queue.Reap()
	return count
}

func (p *Printer) closeJob(jobID int) error {
	p.mu.Lock()
	j, ok := p.queue.ByID(jobID)
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("system: job %d not found", jobID)
	}
	j.CloseSpoolFD()
	j.Release()
	return nil
}

func jobSummary(j *job.Job) ipp.JobSummary {
	attrs := make(map[string]ipp.AttrValue, len(j.Attributes))
	for k, v := range j.Attributes {
		attrs[k] = ipp.AttrValue{Tag: goipp.TagUnknown, V: v}
	}
	return ipp.JobSummary{
		ID:          j.ID,
		PrinterName: "",
		State:       j.State().String(),
		StateReason: uint32(j.Reasons()),
		Username:    j.Username,
		Format:      j.Format,
		Attributes:  attrs,
	}
}
