// Package job implements the per-printer job queue and state machine of
// spec.md §4.3: held/pending/processing/completed/canceled/aborted, with
// hold-until release, FIFO scheduling, and history cleanup.
//
// The mutex-guarded struct follows the shape of the teacher's
// usbproxy.Manager; the state-machine
// transitions themselves have no teacher analogue and are modeled directly
// on spec.md's diagram.
package job

import (
	"fmt"
	"sync"
	"time"
)

// State is a job's position in the lifecycle state machine (spec.md §4.3).
type State int

const (
	StateHeld State = iota
	StatePending
	StateProcessing
	StateStopped
	StateCanceled
	StateAborted
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateHeld:
		return "held"
	case StatePending:
		return "pending"
	case StateProcessing:
		return "processing"
	case StateStopped:
		return "stopped"
	case StateCanceled:
		return "canceled"
	case StateAborted:
		return "aborted"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Terminal reports whether a state is one of the three terminal states
// named in spec.md §3 ("canceled, aborted, completed").
func (s State) Terminal() bool {
	return s == StateCanceled || s == StateAborted || s == StateCompleted
}

// Active reports whether a job in this state belongs in a printer's
// active_jobs queue (spec.md §3: "exists in active_jobs iff state <=
// stopped").
func (s State) Active() bool {
	return s <= StateStopped
}

// Reason is a bit in a job's state-reasons bitfield.
type Reason uint32

const (
	ReasonNone                  Reason = 0
	ReasonJobIncoming           Reason = 1 << 0
	ReasonDocumentFormatError   Reason = 1 << 1
	ReasonAborted               Reason = 1 << 2
	ReasonCanceledByUser        Reason = 1 << 3
	ReasonCanceledAtDevice      Reason = 1 << 4
	ReasonProcessingToStopPoint Reason = 1 << 5
	ReasonQueuedForMarker       Reason = 1 << 6
)

// Job is a unit of work, grounded on spec.md §3's "Job" data model.
type Job struct {
	mu sync.Mutex

	ID          int
	PrinterID   int
	UUID        string
	Username    string
	Name        string // as supplied by the caller; not sanitized for filenames
	Format      string // document MIME format

	Copies               int
	Impressions          int
	ImpressionsCompleted int

	state        State
	reasons      Reason
	Created      time.Time
	Processing   time.Time
	Completed    time.Time
	HoldUntil    time.Time // zero = indefinite-or-none
	RetainUntil  time.Time

	Attributes map[string]interface{}

	SpoolFile string
	fd        int // -1 when not ingesting

	canceled bool
	Message  string
}

// New creates a job in the HELD state. Release moves it to PENDING; the
// scheduler releases it only once a non-zero HoldUntil has elapsed.
func New(id, printerID int, uuid, username, name, format string) *Job {
	return &Job{
		ID:        id,
		PrinterID: printerID,
		UUID:      uuid,
		Username:  username,
		Name:      name,
		Format:    format,
		Copies:    1,
		state:     StateHeld,
		Created:   time.Now(),
		fd:        -1,
	}
}

func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

func (j *Job) Reasons() Reason {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.reasons
}

func (j *Job) AddReason(r Reason) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.reasons |= r
}

// Release moves a HELD job to PENDING, per spec.md §4.3's hold-release
// transition. No-op if not currently held.
func (j *Job) Release() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == StateHeld {
		j.state = StatePending
	}
}

// StartProcessing transitions PENDING -> PROCESSING.
func (j *Job) StartProcessing() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StatePending {
		return fmt.Errorf("job: cannot start processing from state %s", j.state)
	}
	j.state = StateProcessing
	j.Processing = time.Now()
	return nil
}

// Cancel implements spec.md §4.3/§8's cancellation semantics: a HELD or
// PENDING job is canceled immediately; a PROCESSING job only has its
// is_canceled flag set, and transitions to CANCELED once the driver
// observes it and Finish is called. Canceling an already-terminal job is
// idempotent and reports "not possible" via the returned bool.
func (j *Job) Cancel() (ok bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	switch {
	case j.state.Terminal():
		return false
	case j.state == StateProcessing:
		j.canceled = true
		j.reasons |= ReasonProcessingToStopPoint
		return true
	default:
		j.state = StateCanceled
		j.reasons |= ReasonCanceledByUser
		j.Completed = time.Now()
		return true
	}
}

// IsCanceled reports whether Cancel was called on a processing job; driver
// callbacks poll this cooperatively (spec.md §5, "cancellation semantics").
func (j *Job) IsCanceled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.canceled
}

// Finish transitions a PROCESSING job to its terminal state: CANCELED if
// IsCanceled was set, ABORTED if success is false, else COMPLETED. Per
// spec.md §4.3's "Processing thread" step.
func (j *Job) Finish(success bool, message string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	switch {
	case j.canceled:
		j.state = StateCanceled
	case !success:
		j.state = StateAborted
		j.reasons |= ReasonAborted
	default:
		j.state = StateCompleted
	}
	j.Completed = time.Now()
	j.Message = message
}

// SetFormat updates the job's document MIME format, e.g. after
// document-format auto-typing sniffs the real type from the spooled
// body's magic number (spec.md §4.2).
func (j *Job) SetFormat(format string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Format = format
}

// SetHoldUntil sets the job's release time and moves a PENDING job back to
// HELD; jobs in other states keep their state.
func (j *Job) SetHoldUntil(t time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.HoldUntil = t
	if j.state == StatePending {
		j.state = StateHeld
	}
}

// ReadyToRelease reports whether a HELD job's hold has elapsed.
func (j *Job) ReadyToRelease(now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state == StateHeld && !j.HoldUntil.IsZero() && !j.HoldUntil.After(now)
}

func (j *Job) OpenSpoolFD(fd int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fd = fd
}

func (j *Job) CloseSpoolFD() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fd = -1
}
