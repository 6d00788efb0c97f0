package router

import (
	"sync"

	"examwatch/pkg/events"
)

// EventLog is a fixed-capacity ring of envelopes. Once full, every append
// overwrites the oldest entry; reads return newest first. Append is O(1)
// so logging never delays reduction.
type EventLog struct {
	mu      sync.RWMutex
	entries []*events.Envelope
	next    int
	size    int
}

// NewEventLog creates a log retaining the most recent capacity entries.
func NewEventLog(capacity int) *EventLog {
	if capacity <= 0 {
		capacity = 1
	}
	return &EventLog{
		entries: make([]*events.Envelope, capacity),
	}
}

// Append records an envelope, evicting the oldest entry when full.
func (l *EventLog) Append(env *events.Envelope) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[l.next] = env
	l.next = (l.next + 1) % len(l.entries)
	if l.size < len(l.entries) {
		l.size++
	}
}

// Entries returns the retained envelopes, newest first. The returned slice
// is a copy; callers may hold it across further appends.
func (l *EventLog) Entries() []*events.Envelope {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*events.Envelope, 0, l.size)
	for i := 1; i <= l.size; i++ {
		idx := (l.next - i + len(l.entries)) % len(l.entries)
		out = append(out, l.entries[idx])
	}
	return out
}

// Len returns the number of retained entries.
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}
