package jobs

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"sra-fetch/internal/domain"
)

// EventType classifies messages emitted during batch execution.
type EventType string

const (
	EventTypeStatus EventType = "status"
	EventTypeLog    EventType = "log"
	EventTypeResult EventType = "result"
	EventTypeError  EventType = "error"
)

// Event is a sequenced record of something that happened to one job.
type Event struct {
	Seq       int64            `json:"seq"`
	Timestamp time.Time        `json:"timestamp"`
	JobID     string           `json:"jobId"`
	Accession string           `json:"accession,omitempty"`
	Type      EventType        `json:"type"`
	Status    domain.JobStatus `json:"status,omitempty"`
	Step      domain.Step      `json:"step,omitempty"`
	Message   string           `json:"message,omitempty"`
	Command   string           `json:"command,omitempty"`
	Args      []string         `json:"args,omitempty"`
	ExitCode  int              `json:"exitCode,omitempty"`
	Stderr    string           `json:"stderr,omitempty"`
}

// EventBus is a fixed-capacity ring of the most recent events. Workers
// publish concurrently; readers get copies in sequence order.
type EventBus struct {
	mu      sync.RWMutex
	ring    []Event
	head    int // index of the oldest retained event
	size    int
	nextSeq int64
	dropped int64
	now     func() time.Time
}

// NewEventBus creates a ring holding up to capacity events (500 if <= 0).
func NewEventBus(capacity int) *EventBus {
	if capacity <= 0 {
		capacity = 500
	}
	return &EventBus{
		ring: make([]Event, capacity),
		now:  time.Now,
	}
}

// Publish stamps event with the next sequence number and the current time
// (unless already set) and stores it, evicting the oldest when full.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = b.now().UTC()
	}

	capacity := len(b.ring)
	if b.size < capacity {
		b.ring[(b.head+b.size)%capacity] = event
		b.size++
	} else {
		b.ring[b.head] = event
		b.head = (b.head + 1) % capacity
		b.dropped++
	}
	return event
}

// Since returns retained events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	return b.filter(func(e Event) bool { return e.Seq > seq })
}

// ForJob returns the retained events of one job.
func (b *EventBus) ForJob(jobID string) []Event {
	return b.filter(func(e Event) bool { return e.JobID == jobID })
}

// Dropped reports how many events were evicted because the ring was full.
func (b *EventBus) Dropped() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

func (b *EventBus) filter(keep func(Event) bool) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return nil
	}
	out := make([]Event, 0, b.size)
	for i := 0; i < b.size; i++ {
		event := b.ring[(b.head+i)%len(b.ring)]
		if keep(event) {
			out = append(out, event)
		}
	}
	return out
}

// WriteJSONLines writes every retained event as one JSON object per line.
func (b *EventBus) WriteJSONLines(w io.Writer) error {
	enc := json.NewEncoder(w)
	for _, event := range b.Since(0) {
		if err := enc.Encode(event); err != nil {
			return err
		}
	}
	return nil
}
