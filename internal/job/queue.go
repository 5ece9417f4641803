package job

import (
	"sort"
	"time"
)

// Queue holds one printer's jobs: an active FIFO (held/pending/processing/
// stopped), a capped completed history, and an all-jobs index, per spec.md
// §3's Printer data model. The caller (internal/system's Printer) is
// responsible for holding its writer lock around mutating calls; Queue
// itself is not safe for concurrent use without that external lock, the
// same way the teacher's printer-level state is protected by one
// surrounding mutex rather than many small ones.
type Queue struct {
	active    []*Job // ordered by submission
	completed []*Job // ordered by completion, capped
	all       map[int]*Job

	nextID int

	MaxActive    int
	MaxCompleted int
	MaxPreserved int
}

func NewQueue(maxActive, maxCompleted, maxPreserved int) *Queue {
	return &Queue{
		all:          make(map[int]*Job),
		nextID:       1,
		MaxActive:    maxActive,
		MaxCompleted: maxCompleted,
		MaxPreserved: maxPreserved,
	}
}

// NextJobID returns the next monotonic job id and advances the counter,
// per spec.md §3's "job ids are never reused within a printer".
func (q *Queue) NextJobID() int {
	id := q.nextID
	q.nextID++
	return id
}

// Add inserts a newly created job into the active queue and all-jobs index.
func (q *Queue) Add(j *Job) {
	q.active = append(q.active, j)
	q.all[j.ID] = j
}

func (q *Queue) ByID(id int) (*Job, bool) {
	j, ok := q.all[id]
	return j, ok
}

func (q *Queue) Active() []*Job {
	return append([]*Job(nil), q.active...)
}

func (q *Queue) Completed() []*Job {
	return append([]*Job(nil), q.completed...)
}

// ActiveCount reports the number of jobs currently in the active queue,
// checked against MaxActive per spec.md §3's capacity invariant.
func (q *Queue) ActiveCount() int {
	return len(q.active)
}

// Processing returns the single job currently in StateProcessing, if any,
// enforcing spec.md §8's "at most one processing job per printer"
// invariant by construction (the scheduler never starts a second one).
func (q *Queue) Processing() *Job {
	for _, j := range q.active {
		if j.State() == StateProcessing {
			return j
		}
	}
	return nil
}

// Reap moves every job whose state has become terminal from active to
// completed, keeping the completed slice ordered by completion time, per
// spec.md §3's "exists in completed_jobs iff state >= canceled".
func (q *Queue) Reap() {
	var stillActive []*Job
	for _, j := range q.active {
		if j.State().Terminal() {
			q.completed = append(q.completed, j)
		} else {
			stillActive = append(stillActive, j)
		}
	}
	q.active = stillActive
	sort.SliceStable(q.completed, func(i, k int) bool {
		return q.completed[i].Completed.Before(q.completed[k].Completed)
	})
}

// Clean implements spec.md §4.3's cleanup policy: jobs older than 60s in
// the completed queue beyond MaxCompleted are dropped outright; beyond
// MaxPreserved their spool files are unlinked but metadata remains; jobs
// whose RetainUntil has elapsed also lose their spool file. unlink is
// supplied by the caller (ties this package to no particular filesystem
// API).
func (q *Queue) Clean(now time.Time, unlink func(path string)) {
	const minAge = 60 * time.Second

	if q.MaxCompleted > 0 && len(q.completed) > q.MaxCompleted {
		drop := len(q.completed) - q.MaxCompleted
		for i := 0; i < drop; i++ {
			j := q.completed[i]
			if now.Sub(j.Completed) < minAge {
				drop = i
				break
			}
			if j.SpoolFile != "" && unlink != nil {
				unlink(j.SpoolFile)
			}
			delete(q.all, j.ID)
		}
		q.completed = q.completed[drop:]
	}

	preserveFrom := len(q.completed) - q.MaxPreserved
	for i, j := range q.completed {
		if j.SpoolFile == "" {
			continue
		}
		expired := !j.RetainUntil.IsZero() && !j.RetainUntil.After(now)
		beyondPreserved := q.MaxPreserved > 0 && i < preserveFrom
		if expired || beyondPreserved {
			if unlink != nil {
				unlink(j.SpoolFile)
			}
			j.SpoolFile = ""
		}
	}
}
