package system

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/OpenPrinting/goipp"

	"ippd/internal/config"
	"ippd/internal/device"
	"ippd/internal/eventbus"
	"ippd/internal/idutil"
	"ippd/internal/ipp"
	"ippd/internal/logger"
	"ippd/internal/storage"
)

// System is the top-level container of spec.md §3's "System" data model:
// human-readable name, DNS-SD name, hostname/port, spool directory, the
// registered device-scheme and job set, and supervisor bookkeeping
// (config-change counter, start time, shutdown deadline).
//
// Lock ordering follows spec.md §5: System.mu is acquired before any
// Printer.mu, which is acquired before a job's own lock (job.Job guards
// itself internally). Callers must never acquire System.mu while already
// holding a Printer lock.
type System struct {
	mu sync.RWMutex

	cfg       config.File
	spoolDir  string
	log       *logger.Logger
	bus       *eventbus.Hub
	devices   *device.Registry
	store     *storage.Store

	uuid      string
	startTime time.Time

	printers      map[string]*Printer
	printersByID  map[int]*Printer
	nextPrinterID int
	defaultName   string

	configChangeCount uint64
	shutdownDeadline  time.Time

	drivers        []string // known driver identifiers, per spec.md §6 find-drivers
	driverRegistry *driverRegistry

	dnssd *dnssdRegistrar
}

// New constructs a System from cfg, creating its spool directory and
// statically-configured printers. Grounded on the teacher's agent
// constructor pattern (build dependencies, then wire config-driven state).
func New(cfg config.File, log *logger.Logger, bus *eventbus.Hub, store *storage.Store, drivers []string) (*System, error) {
	spoolDir, err := config.SpoolDirectory(cfg)
	if err != nil {
		return nil, fmt.Errorf("system: %w", err)
	}

	sys := &System{
		cfg:           cfg,
		spoolDir:      spoolDir,
		log:           log,
		bus:           bus,
		devices:       device.NewRegistry(),
		store:         store,
		uuid:          idutil.DeriveSystemUUID(cfg.Hostname, cfg.Port),
		startTime:     time.Now(),
		printers:      make(map[string]*Printer),
		printersByID:  make(map[int]*Printer),
		nextPrinterID: 1,
		drivers:       drivers,
		dnssd:         newDNSSDRegistrar(),
	}

	for _, pf := range cfg.Printers {
		if _, err := sys.addPrinterLocked(pf.Name, pf.DeviceURI, pf.Driver); err != nil {
			log.Warn("failed to configure static printer", "name", pf.Name, "error", err.Error())
		}
	}
	if len(sys.printers) > 0 && sys.defaultName == "" {
		for name := range sys.printers {
			sys.defaultName = name
			break
		}
	}

	return sys, nil
}

// addPrinterLocked creates and registers a Printer; the caller must hold
// sys.mu for writing.
func (sys *System) addPrinterLocked(name, deviceURI, driver string) (*Printer, error) {
	if _, exists := sys.printers[name]; exists {
		return nil, fmt.Errorf("system: printer %q already exists", name)
	}
	id := sys.nextPrinterID
	sys.nextPrinterID++
	p := newPrinter(sys, id, name, deviceURI, driver, sys.cfg.Hostname, sys.cfg.Port)
	if sys.driverRegistry != nil {
		if rec, ok := sys.driverRegistry.records[driver]; ok && rec.Pipeline != nil {
			p.driverData["pipeline"] = rec.Pipeline
		}
	}
	sys.printers[name] = p
	sys.printersByID[id] = p
	sys.recordPrinter(p)
	return p, nil
}

// recordPrinter mirrors a printer's configuration into the history store,
// per SPEC_FULL.md §3's persistence row shapes. Best-effort: a mirroring
// failure is logged but never blocks the IPP operation that triggered it.
func (sys *System) recordPrinter(p *Printer) {
	if sys.store == nil {
		return
	}
	p.mu.RLock()
	row := storage.PrinterRow{
		ID: p.id, Name: p.name, DeviceURI: p.deviceURI, Driver: p.driverName,
		State: p.state.String(), ConfigTime: p.configTime,
	}
	p.mu.RUnlock()
	if err := sys.store.UpsertPrinter(context.Background(), row); err != nil {
		sys.log.Warn("failed to mirror printer to storage", "printer", p.name, "error", err.Error())
	}
}

// Tick runs one scheduler pass over every printer, per spec.md §4.3's
// "runs on every printer state change and periodically" description;
// intended to be called by the supervisor on a ~1s ticker and also
// immediately after any state-changing IPP operation.
func (sys *System) Tick() {
	sys.mu.RLock()
	printers := make([]*Printer, 0, len(sys.printers))
	for _, p := range sys.printers {
		printers = append(printers, p)
	}
	sys.mu.RUnlock()

	for _, p := range printers {
		p.Tick()
	}
}

// Clean runs retention cleanup across every printer's completed-job
// history, per spec.md §4.3's cleanup policy.
func (sys *System) Clean() {
	sys.mu.RLock()
	printers := make([]*Printer, 0, len(sys.printers))
	for _, p := range sys.printers {
		printers = append(printers, p)
	}
	sys.mu.RUnlock()

	now := time.Now()
	for _, p := range printers {
		p.Clean(now)
	}
}

func (sys *System) bumpConfigChange() {
	sys.mu.Lock()
	sys.configChangeCount++
	sys.mu.Unlock()
}

// ---- ipp.System implementation ----

var _ ipp.System = (*System)(nil)

func (sys *System) SystemAttributes() map[string]ipp.AttrValue {
	sys.mu.RLock()
	defer sys.mu.RUnlock()

	return map[string]ipp.AttrValue{
		"system-name":               {Tag: goipp.TagName, V: sys.cfg.SystemName},
		"system-uuid":               {Tag: goipp.TagURI, V: sys.uuid},
		"system-default-printer-id": {Tag: goipp.TagInteger, V: sys.defaultPrinterIDLocked()},
		"system-up-time":            {Tag: goipp.TagInteger, V: int(time.Since(sys.startTime).Seconds())},
		"system-config-change-time": {Tag: goipp.TagInteger, V: int(sys.startTime.Unix())},
		"system-state":              {Tag: goipp.TagEnum, V: 3}, // idle
	}
}

func (sys *System) defaultPrinterIDLocked() int {
	if p, ok := sys.printers[sys.defaultName]; ok {
		return p.id
	}
	return 0
}

func (sys *System) SetSystemAttributes(attrs map[string]ipp.AttrValue) error {
	sys.mu.Lock()
	defer sys.mu.Unlock()

	if v, ok := attrs["system-name"]; ok {
		if s, ok := v.V.(string); ok {
			sys.cfg.SystemName = s
		}
	}
	if v, ok := attrs["system-default-printer-id"]; ok {
		if id, ok := v.V.(int); ok {
			if p, ok := sys.printersByID[id]; ok {
				sys.defaultName = p.name
			}
		}
	}
	sys.configChangeCount++
	return nil
}

func (sys *System) Printers() []ipp.PrinterSummary {
	sys.mu.RLock()
	defer sys.mu.RUnlock()

	out := make([]ipp.PrinterSummary, 0, len(sys.printers))
	for _, p := range sys.printers {
		out = append(out, p.summary())
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

func (sys *System) FindPrinter(name string) (ipp.PrinterSummary, bool) {
	sys.mu.RLock()
	p, ok := sys.printers[name]
	sys.mu.RUnlock()
	if !ok {
		return ipp.PrinterSummary{}, false
	}
	return p.summary(), true
}

func (sys *System) CreatePrinter(name, deviceURI, driver string) error {
	sys.mu.Lock()
	_, err := sys.addPrinterLocked(name, deviceURI, driver)
	if err == nil && sys.defaultName == "" {
		sys.defaultName = name
	}
	sys.configChangeCount++
	sys.mu.Unlock()
	if err != nil {
		return err
	}
	sys.bus.Publish(eventbus.Event{Kind: eventbus.PrinterCreated, Message: name})
	return nil
}

func (sys *System) DeletePrinter(name string) error {
	sys.mu.Lock()
	p, ok := sys.printers[name]
	if !ok {
		sys.mu.Unlock()
		return fmt.Errorf("system: printer %q not found", name)
	}
	delete(sys.printers, name)
	delete(sys.printersByID, p.id)
	if sys.defaultName == name {
		sys.defaultName = ""
	}
	sys.configChangeCount++
	sys.mu.Unlock()

	sys.bus.Publish(eventbus.Event{Kind: eventbus.PrinterDeleted, PrinterID: p.id, Message: name})
	return nil
}

func (sys *System) SetPrinterAttributes(name string, attrs map[string]ipp.AttrValue) error {
	sys.mu.RLock()
	p, ok := sys.printers[name]
	sys.mu.RUnlock()
	if !ok {
		return fmt.Errorf("system: printer %q not found", name)
	}
	p.applyAttributes(attrs)
	sys.bumpConfigChange()
	sys.recordPrinter(p)
	sys.bus.Publish(eventbus.Event{Kind: eventbus.PrinterConfigChanged, PrinterID: p.id})
	return nil
}

func (sys *System) IdentifyPrinter(name string) error {
	sys.mu.RLock()
	p, ok := sys.printers[name]
	sys.mu.RUnlock()
	if !ok {
		return fmt.Errorf("system: printer %q not found", name)
	}
	return p.identify()
}

func (sys *System) Shutdown(deadline time.Time) {
	sys.mu.Lock()
	sys.shutdownDeadline = deadline
	sys.mu.Unlock()
	sys.bus.Publish(eventbus.Event{Kind: eventbus.SystemShutdown})
}

// shutdownDeadlineOrDefault returns the operator-set shutdown deadline (via
// Shutdown), or now+60s if none was set, per spec.md §4.4's "shutdown
// grace: 60s" timeout table entry.
func (sys *System) shutdownDeadlineOrDefault() time.Time {
	sys.mu.RLock()
	d := sys.shutdownDeadline
	sys.mu.RUnlock()
	if d.IsZero() {
		d = time.Now().Add(60 * time.Second)
	}
	return d
}

// activeJobCount sums ActiveCount across every printer's queue, per
// spec.md §4.4/§8 scenario 5's "wait ... for active jobs across all
// printers to reach zero" shutdown-drain rule.
func (sys *System) activeJobCount() int {
	sys.mu.RLock()
	defer sys.mu.RUnlock()
	total := 0
	for _, p := range sys.printers {
		p.mu.RLock()
		total += p.queue.ActiveCount()
		p.mu.RUnlock()
	}
	return total
}

func (sys *System) CreateJob(printer, username, name, format string, attrs map[string]ipp.AttrValue, held bool, holdUntil time.Time) (ipp.JobSummary, error) {
	sys.mu.RLock()
	p, ok := sys.printers[printer]
	sys.mu.RUnlock()
	if !ok {
		return ipp.JobSummary{}, fmt.Errorf("system: printer %q not found", printer)
	}
	return p.createJob(username, name, format, attrs, held, holdUntil)
}

func (sys *System) IngestDocument(printer string, jobID int, body io.Reader) error {
	sys.mu.RLock()
	p, ok := sys.printers[printer]
	sys.mu.RUnlock()
	if !ok {
		return fmt.Errorf("system: printer %q not found", printer)
	}
	return p.ingestDocument(jobID, body)
}

func (sys *System) UpdateJobFormat(printer string, jobID int, format string) error {
	sys.mu.RLock()
	p, ok := sys.printers[printer]
	sys.mu.RUnlock()
	if !ok {
		return fmt.Errorf("system: printer %q not found", printer)
	}
	return p.updateJobFormat(jobID, format)
}

func (sys *System) FindJob(printer string, jobID int) (ipp.JobSummary, bool) {
	sys.mu.RLock()
	p, ok := sys.printers[printer]
	sys.mu.RUnlock()
	if !ok {
		return ipp.JobSummary{}, false
	}
	return p.findJob(jobID)
}

func (sys *System) Jobs(printer, whichJobs string, limit, firstJobID int, myUser string) []ipp.JobSummary {
	sys.mu.RLock()
	p, ok := sys.printers[printer]
	sys.mu.RUnlock()
	if !ok {
		return nil
	}
	return p.jobs(whichJobs, limit, firstJobID, myUser)
}

func (sys *System) CancelJob(printer string, jobID int) error {
	sys.mu.RLock()
	p, ok := sys.printers[printer]
	sys.mu.RUnlock()
	if !ok {
		return fmt.Errorf("system: printer %q not found", printer)
	}
	return p.cancelJob(jobID)
}

func (sys *System) CancelJobs(printer, user string, all bool) int {
	sys.mu.RLock()
	p, ok := sys.printers[printer]
	sys.mu.RUnlock()
	if !ok {
		return 0
	}
	return p.cancelJobs(user, all)
}

func (sys *System) CloseJob(printer string, jobID int) error {
	sys.mu.RLock()
	p, ok := sys.printers[printer]
	sys.mu.RUnlock()
	if !ok {
		return fmt.Errorf("system: printer %q not found", printer)
	}
	return p.closeJob(jobID)
}

func (sys *System) FindDevices() []string {
	var uris []string
	sys.devices.List(device.TypeAll, func(uri, id string, _ interface{}) bool {
		uris = append(uris, uri)
		return true
	}, nil, sys.log.ErrCallback())
	return uris
}

func (sys *System) FindDrivers() []string {
	sys.mu.RLock()
	defer sys.mu.RUnlock()
	return append([]string(nil), sys.drivers...)
}

// SpoolDir returns the system's spool directory, used when deriving a new
// job's SpoolFile path.
func (sys *System) SpoolDir() string { return sys.spoolDir }
