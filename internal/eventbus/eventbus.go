// Package eventbus fans state-change events out to pull/push subscribers,
// implementing spec.md §3's Subscription object and the "Subscription/event
// bus" component of §2's system overview.
//
// The hub itself is adapted from the teacher's common/ws.Hub: the same
// register/unregister/broadcast channel pattern used there to fan UI
// websocket traffic out to admin clients, reused here for IPP event
// notification instead.
package eventbus

import (
	"sync"
	"time"
)

// EventKind enumerates the job/printer/system state changes a Subscription
// can be notified about (RFC 8010 'notify-events' keywords, abbreviated to
// the subset the job manager and supervisor actually emit).
type EventKind string

const (
	JobCreated         EventKind = "job-created"
	JobCompleted       EventKind = "job-completed"
	JobStateChanged    EventKind = "job-state-changed"
	JobProgress        EventKind = "job-progress"
	PrinterStateChanged EventKind = "printer-state-changed"
	PrinterConfigChanged EventKind = "printer-config-changed"
	PrinterCreated     EventKind = "printer-created"
	PrinterDeleted     EventKind = "printer-deleted"
	SystemShutdown     EventKind = "system-shutdown"
)

// Event is a single notification delivered to subscribers.
type Event struct {
	Kind      EventKind
	Timestamp time.Time
	PrinterID int
	JobID     int
	Seq       uint64
	Message   string
}

type registration struct {
	id string
	ch chan Event
}

// Hub is the in-process fan-out point. One Hub serves the whole system;
// Subscriptions filter the stream they're interested in at the consumer
// side (matching printer/job, event mask) rather than the Hub maintaining
// per-subscriber filters, keeping the broadcast path allocation-free.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]chan Event
	register   chan registration
	unregister chan string
	broadcast  chan Event
	shutdown   chan struct{}
	seq        uint64
}

// NewHub creates and starts a Hub; call Stop when the system shuts down.
func NewHub() *Hub {
	h := &Hub{
		clients:    make(map[string]chan Event),
		register:   make(chan registration),
		unregister: make(chan string),
		broadcast:  make(chan Event, 256),
		shutdown:   make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case reg := <-h.register:
			h.mu.Lock()
			h.clients[reg.id] = reg.ch
			h.mu.Unlock()
		case id := <-h.unregister:
			h.mu.Lock()
			if ch, ok := h.clients[id]; ok {
				close(ch)
				delete(h.clients, id)
			}
			h.mu.Unlock()
		case evt := <-h.broadcast:
			h.mu.RLock()
			for _, ch := range h.clients {
				select {
				case ch <- evt:
				default:
					// Subscriber's pending-events queue is full; drop rather
					// than block event emission for the whole system.
				}
			}
			h.mu.RUnlock()
		case <-h.shutdown:
			h.mu.Lock()
			for id, ch := range h.clients {
				close(ch)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Register subscribes id to the event stream. ch should be buffered
// (NewSubscription uses a capacity of 32).
func (h *Hub) Register(id string, ch chan Event) { h.register <- registration{id: id, ch: ch} }

// Unregister removes a subscriber, e.g. on lease expiration or Job deletion.
func (h *Hub) Unregister(id string) { h.unregister <- id }

// Publish emits an event to all subscribers; non-blocking.
func (h *Hub) Publish(evt Event) {
	h.mu.Lock()
	h.seq++
	evt.Seq = h.seq
	h.mu.Unlock()
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	select {
	case h.broadcast <- evt:
	default:
	}
}

// Stop shuts the hub down, closing every subscriber channel.
func (h *Hub) Stop() { close(h.shutdown) }

// Subscription is a persistent request to be notified of specified
// state-change events, per spec.md §3.
type Subscription struct {
	ID                 int
	Owner              string
	Language            string
	EventMask          map[EventKind]bool
	PrinterID          int // 0 = system-wide
	JobID              int // 0 = not job-scoped
	LeaseExpiration    time.Time
	NotifyInterval     time.Duration
	LastSequenceNumber uint64

	mu      sync.Mutex
	pending []Event
	ch      chan Event
}

// NewSubscription creates a Subscription bound to hub's event stream,
// filtering by printerID/jobID/eventMask (nil mask means "all events").
func NewSubscription(id int, owner string, printerID, jobID int, mask map[EventKind]bool, leaseSeconds int) *Subscription {
	s := &Subscription{
		ID:              id,
		Owner:           owner,
		EventMask:       mask,
		PrinterID:       printerID,
		JobID:           jobID,
		LeaseExpiration: time.Now().Add(time.Duration(leaseSeconds) * time.Second),
		ch:              make(chan Event, 32),
	}
	return s
}

// Attach registers the subscription's channel with hub and starts pumping
// matching events into its pending-events queue.
func (s *Subscription) Attach(hub *Hub, id string) {
	hub.Register(id, s.ch)
	go s.pump()
}

func (s *Subscription) pump() {
	for evt := range s.ch {
		if s.matches(evt) {
			s.mu.Lock()
			s.pending = append(s.pending, evt)
			s.LastSequenceNumber = evt.Seq
			s.mu.Unlock()
		}
	}
}

func (s *Subscription) matches(evt Event) bool {
	if s.PrinterID != 0 && evt.PrinterID != 0 && s.PrinterID != evt.PrinterID {
		return false
	}
	if s.JobID != 0 && evt.JobID != 0 && s.JobID != evt.JobID {
		return false
	}
	if s.EventMask == nil {
		return true
	}
	return s.EventMask[evt.Kind]
}

// Expired reports whether the subscription's lease has elapsed.
func (s *Subscription) Expired() bool { return time.Now().After(s.LeaseExpiration) }

// Drain returns and clears all pending events, for Get-Notifications-style
// pull delivery.
func (s *Subscription) Drain() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending
	s.pending = nil
	return out
}
