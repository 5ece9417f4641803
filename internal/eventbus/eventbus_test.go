package eventbus

import (
	"testing"
	"time"
)

func TestHubPublishDelivers(t *testing.T) {
	h := NewHub()
	defer h.Stop()

	ch := make(chan Event, 1)
	h.Register("sub", ch)
	defer h.Unregister("sub")

	h.Publish(Event{Kind: JobCreated, PrinterID: 1, JobID: 2})

	select {
	case evt := <-ch:
		if evt.Kind != JobCreated || evt.PrinterID != 1 || evt.JobID != 2 {
			t.Errorf("unexpected event: %+v", evt)
		}
		if evt.Seq == 0 {
			t.Error("expected Publish to assign a nonzero sequence number")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestHubUnregisterStopsDelivery(t *testing.T) {
	h := NewHub()
	defer h.Stop()

	ch := make(chan Event, 1)
	h.Register("sub", ch)
	h.Unregister("sub")

	h.Publish(Event{Kind: JobCreated})

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected the channel to be closed after Unregister")
		}
	case <-time.After(time.Second):
		t.Fatal("expected the channel to be closed promptly after Unregister")
	}
}

func TestSubscriptionMatchesFiltersByPrinter(t *testing.T) {
	h := NewHub()
	defer h.Stop()

	sub := NewSubscription(1, "operator", 5, 0, nil, 60)
	sub.Attach(h, "sub-1")

	h.Publish(Event{Kind: JobCompleted, PrinterID: 5, JobID: 9})
	h.Publish(Event{Kind: JobCompleted, PrinterID: 6, JobID: 10})

	deadline := time.After(time.Second)
	for {
		sub.mu.Lock()
		n := len(sub.pending)
		sub.mu.Unlock()
		if n >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for matching event to be queued")
		case <-time.After(10 * time.Millisecond):
		}
	}

	events := sub.Drain()
	if len(events) != 1 {
		t.Fatalf("expected exactly one matching event, got %d", len(events))
	}
	if events[0].PrinterID != 5 {
		t.Errorf("expected the printer-5 event to match, got %+v", events[0])
	}
}

func TestSubscriptionExpired(t *testing.T) {
	sub := NewSubscription(1, "operator", 0, 0, nil, -1)
	if !sub.Expired() {
		t.Fatal("expected a subscription with a negative lease to be expired")
	}
}

func TestHubStopClosesAllSubscribers(t *testing.T) {
	h := NewHub()
	ch := make(chan Event, 1)
	h.Register("sub", ch)
	h.Stop()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected channel to be closed after Stop")
		}
	case <-time.After(time.Second):
		t.Fatal("expected channel to close promptly after Stop")
	}
}
