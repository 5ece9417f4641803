package job

import (
	"testing"
	"time"
)

type fakeDriver struct {
	fail bool
}

func (d *fakeDriver) Process(j *Job) error {
	if d.fail {
		return errNoDocument
	}
	return nil
}

func TestQueueFIFOOrdering(t *testing.T) {
	q := NewQueue(0, 0, 0)
	var ids []int
	for i := 0; i < 3; i++ {
		id := q.NextJobID()
		j := New(id, 1, "urn:uuid:x", "alice", "doc", "application/pdf")
		j.Release()
		q.Add(j)
		ids = append(ids, id)
	}

	for range ids {
		picked := q.Tick(time.Now())
		if picked == nil {
			t.Fatalf("expected a pending job to pick")
		}
		Run(picked, &fakeDriver{})
		q.Reap()
	}

	if len(q.Active()) != 0 {
		t.Fatalf("expected empty active queue, got %d", len(q.Active()))
	}
	completed := q.Completed()
	if len(completed) != 3 {
		t.Fatalf("expected 3 completed jobs, got %d", len(completed))
	}
	for i, j := range completed {
		if j.ID != ids[i] {
			t.Fatalf("expected FIFO completion order, job %d at position %d", j.ID, i)
		}
	}
}

func TestQueueSingleProcessingAtATime(t *testing.T) {
	q := NewQueue(0, 0, 0)
	a := New(q.NextJobID(), 1, "u", "alice", "a", "application/pdf")
	b := New(q.NextJobID(), 1, "u", "alice", "b", "application/pdf")
	a.Release()
	b.Release()
	q.Add(a)
	q.Add(b)

	picked := q.Tick(time.Now())
	if picked != a {
		t.Fatalf("expected job a picked first")
	}
	a.StartProcessing()

	if second := q.Tick(time.Now()); second != nil {
		t.Fatalf("scheduler must not start a second job while one is processing")
	}
}

func TestQueueCleanDropsBeyondMaxCompleted(t *testing.T) {
	q := NewQueue(0, 1, 0)
	old := time.Now().Add(-time.Hour)
	for i := 0; i < 2; i++ {
		j := New(q.NextJobID(), 1, "u", "alice", "doc", "application/pdf")
		j.Release()
		j.StartProcessing()
		j.Finish(true, "")
		j.Completed = old
		q.completed = append(q.completed, j)
		q.all[j.ID] = j
	}

	var unlinked []string
	q.Clean(time.Now(), func(path string) { unlinked = append(unlinked, path) })

	if len(q.completed) != 1 {
		t.Fatalf("expected MaxCompleted=1 to retain only 1 job, got %d", len(q.completed))
	}
}
