package job

import "time"

// DeviceBusy is returned by a Driver's Process when the printer's device is
// currently held by another processing job; Run retries at ~1Hz per
// spec.md §4.3's "Processing thread" description ("acquires the printer's
// device (blocking if busy, retrying ~1 Hz with cancellation checks)").
type DeviceBusy struct{}

func (DeviceBusy) Error() string { return "job: device busy" }

// Driver is the set of callbacks the scheduler invokes to actually run a
// job once picked from the queue; internal/system's Printer supplies an
// implementation that opens/closes the printer's device and calls into
// the document pipeline. Kept as an interface (rather than the raw
// function-pointer vtable of spec.md's source) to fit Go's "accept
// interfaces" idiom.
type Driver interface {
	// Process runs start-job -> start-page -> write-line* -> end-page ->
	// end-job for j, returning nil on success. It must poll j.IsCanceled()
	// between pages and return promptly when set.
	Process(j *Job) error
}

// Tick runs one scheduler pass over a printer's active queue, per spec.md
// §4.3: "under the printer's writer lock, for each active job in
// submission order: if HELD and hold_until <= now, release to PENDING; if
// PENDING, spawn the processing thread with this job and stop." The
// caller holds the printer's writer lock around this call and launches the
// returned job's processing in its own goroutine if non-nil.
func (q *Queue) Tick(now time.Time) *Job {
	if q.Processing() != nil {
		return nil
	}
	for _, j := range q.active {
		if j.ReadyToRelease(now) {
			j.Release()
		}
	}
	for _, j := range q.active {
		if j.State() == StatePending {
			return j
		}
	}
	return nil
}

// Run drives one job through Driver.Process to completion, handling the
// device-busy retry loop described in spec.md §4.3/§5 ("retrying ~1 Hz
// with cancellation checks"). Intended to run in its own goroutine, one
// per printer at a time.
func Run(j *Job, d Driver) {
	if err := j.StartProcessing(); err != nil {
		return
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var err error
	for {
		err = d.Process(j)
		if _, busy := err.(DeviceBusy); !busy {
			break
		}
		if j.IsCanceled() {
			break
		}
		<-ticker.C
	}

	j.Finish(err == nil, errMessage(err))
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
