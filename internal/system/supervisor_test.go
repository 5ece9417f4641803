package system

import (
	"testing"
	"time"
)

func TestDrainActiveJobsReturnsImmediatelyWhenIdle(t *testing.T) {
	sys := newTestSystem(t)
	sup := NewSupervisor(sys, sys.log, ":0")

	done := make(chan struct{})
	go func() {
		sup.drainActiveJobs()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("drainActiveJobs blocked with no active jobs")
	}
}

func TestDrainActiveJobsWaitsForJobsToFinish(t *testing.T) {
	sys := newTestSystem(t)
	sup := NewSupervisor(sys, sys.log, ":0")
	if err := sys.CreatePrinter("office", "file:///dev/null", "generic"); err != nil {
		t.Fatalf("CreatePrinter: %v", err)
	}
	job, err := sys.CreateJob("office", "alice", "a.pdf", "application/pdf", nil, false, time.Time{})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	sys.Shutdown(time.Now().Add(2 * time.Second))

	done := make(chan struct{})
	go func() {
		sup.drainActiveJobs()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("drainActiveJobs returned while a job was still active")
	case <-time.After(150 * time.Millisecond):
	}

	if err := sys.CancelJob("office", job.ID); err != nil {
		t.Fatalf("CancelJob: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("drainActiveJobs did not return after the active job finished")
	}
}
