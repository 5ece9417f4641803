// Package system implements the System supervisor of spec.md §4.4: the
// top-level System/Printer objects, listener/worker dispatch, DNS-SD
// reconciliation, config-change tracking, and graceful shutdown, on top of
// internal/job's queue and internal/device's registry.
//
// The rwlock-guarded struct plus background goroutine pattern is grounded
// on the teacher's usbproxy.Manager (mu sync.RWMutex, ctx/cancel/wg,
// scanLoop/cleanupLoop-style background goroutines); the lock-ordering
// discipline (system -> printer -> job) has no teacher analogue and is
// modeled directly on spec.md §5.
package system

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"ippd/internal/device"
	"ippd/internal/eventbus"
	"ippd/internal/idutil"
	"ippd/internal/job"
	"ippd/internal/logger"
)

// PrinterState mirrors spec.md §3's Printer.state: idle/processing/stopped.
type PrinterState int

const (
	PrinterIdle PrinterState = iota
	PrinterProcessing
	PrinterStopped
)

func (s PrinterState) String() string {
	switch s {
	case PrinterProcessing:
		return "processing"
	case PrinterStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// Printer is a service-bearing object, per spec.md §3's Printer data model.
type Printer struct {
	mu sync.RWMutex

	id          int
	name        string
	dnssdName   string
	resource    string // /ipp/print/<name>
	uriSafeName string
	deviceURI   string
	deviceID    string
	driverName  string
	driverData  map[string]interface{}

	state      PrinterState
	stateTime  time.Time
	configTime time.Time
	startTime  time.Time

	uuid string

	device *device.Connection
	queue  *job.Queue

	maxActiveJobs int

	sys *System
}

func newPrinter(sys *System, id int, name, deviceURI, driverName string, host string, port int) *Printer {
	now := time.Now()
	safe := uriSafeName(name)
	return &Printer{
		id:          id,
		name:        name,
		dnssdName:   name,
		resource:    "/ipp/print/" + safe,
		uriSafeName: safe,
		deviceURI:   deviceURI,
		driverName:  driverName,
		driverData:  make(map[string]interface{}),
		state:       PrinterIdle,
		stateTime:   now,
		configTime:  now,
		startTime:   now,
		uuid:        idutil.DerivePrinterUUID(host, port, name),
		queue:       job.NewQueue(sys.cfg.MaxActiveJobs, sys.cfg.MaxCompletedJobs, sys.cfg.MaxPreservedJobs),
		sys:         sys,
	}
}

// printerDriverAdapter adapts Printer to job.Driver, invoking the document
// pipeline stored in Printer.driverData["pipeline"] (or the passthrough
// default), per
// spec.md §4.3's "Processing thread" description.
type printerDriverAdapter struct{ p *Printer }

func (a printerDriverAdapter) Process(j *job.Job) error {
	return a.p.processOneJob(j)
}

// processOneJob acquires the printer's device (retrying if busy, per
// spec.md's device-acquisition rule enforced one level up by job.Run's
// retry loop) and drives the document pipeline for j.
func (p *Printer) processOneJob(j *job.Job) error {
	p.mu.Lock()
	if p.device == nil {
		conn, err := p.sys.devices.Open(p.deviceURI, nil)
		if err != nil {
			p.mu.Unlock()
			return job.DeviceBusy{}
		}
		p.device = conn
	}
	p.state = PrinterProcessing
	p.stateTime = time.Now()
	p.mu.Unlock()

	pipeline, _ := p.driverData["pipeline"].(DocumentPipeline)

	var err error
	if pipeline != nil {
		err = pipeline.Run(p.device, j)
	} else {
		err = defaultPassthroughPipeline(p.device, j)
	}

	p.mu.Lock()
	if p.device != nil {
		p.device.Close()
		p.device = nil
	}
	p.state = PrinterIdle
	p.stateTime = time.Now()
	p.mu.Unlock()

	p.sys.bus.Publish(eventbus.Event{
		Kind:      eventKindFor(j),
		Timestamp: time.Now(),
		PrinterID: p.id,
		JobID:     j.ID,
	})
	return err
}

func eventKindFor(j *job.Job) eventbus.EventKind {
	switch j.State() {
	case job.StateCompleted:
		return eventbus.JobCompleted
	default:
		return eventbus.JobStateChanged
	}
}

// DocumentPipeline is the start-job/start-page/write-line/end-page/end-job
// callback set of spec.md's Glossary entry "Driver data"; a concrete
// printer application supplies one per driver.
type DocumentPipeline interface {
	Run(conn *device.Connection, j *job.Job) error
}

// defaultPassthroughPipeline streams the job's spooled file to the device
// verbatim, the minimal behavior for raw/PDL-passthrough printers (the
// common case for IPP Everywhere raster-capable devices).
func defaultPassthroughPipeline(conn *device.Connection, j *job.Job) error {
	if j.SpoolFile == "" {
		return nil
	}
	return streamFile(conn, j.SpoolFile, j)
}

// Tick runs the scheduler for this printer's queue once, launching a
// processing goroutine if a job became runnable, per spec.md §4.3's
// "Scheduler (runs on every printer state change and periodically)".
func (p *Printer) Tick() {
	p.mu.Lock()
	if p.state != PrinterIdle {
		p.mu.Unlock()
		return
	}
	picked := p.queue.Tick(time.Now())
	p.mu.Unlock()

	if picked == nil {
		return
	}
	go func() {
		job.Run(picked, printerDriverAdapter{p})
		p.mu.Lock()
		p.queue.Reap()
		p.mu.Unlock()
		p.recordJob(picked)
		p.sys.log.Info(fmt.Sprintf("job %d on printer %s finished: %s", picked.ID, p.name, picked.State()))
	}()
}

func (p *Printer) Clean(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue.Clean(now, func(path string) { removeSpoolFile(p.sys.log, path) })
}

func removeSpoolFile(log *logger.Logger, path string) {
	if err := deleteFile(path); err != nil {
		log.Warn("failed to remove spool file", "path", path, "error", err.Error())
	}
}

// uriSafeName lowercases name and replaces characters unsafe for a URI path
// segment with '-', per spec.md §4.4's printer resource-path derivation.
func uriSafeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}
