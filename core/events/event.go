package events

import (
	"sync"

	"github.com/google/uuid"

	"github.com/starlay-finance/starlay-protocol-wasm-sub000/core/types"
)

// Event represents a structured state change emitted by the protocol.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. HTTP, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Payload converts evt into its wire form and assigns it a fresh identifier.
func Payload(evt Event) *types.Event {
	if evt == nil {
		return nil
	}
	var payload *types.Event
	if provider, ok := evt.(interface{ Event() *types.Event }); ok {
		payload = provider.Event()
	}
	if payload == nil {
		payload = &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
	}
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}
	return payload
}

// Buffer holds events raised while an action is in flight. They only reach
// the sink once the action commits; a failed action discards them.
type Buffer struct {
	mu      sync.Mutex
	pending []*types.Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	payload := Payload(evt)
	if b == nil || payload == nil {
		return
	}
	b.mu.Lock()
	b.pending = append(b.pending, payload)
	b.mu.Unlock()
}

// Flush stamps the pending events with now, hands them to sink and clears
// the buffer. The flushed events are returned.
func (b *Buffer) Flush(now uint64, sink Sink) []*types.Event {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()
	for _, evt := range pending {
		evt.Timestamp = now
		if sink != nil {
			sink.Append(evt)
		}
	}
	return pending
}

// Discard drops the pending events.
func (b *Buffer) Discard() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.pending = nil
	b.mu.Unlock()
}

// Sink receives committed events.
type Sink interface {
	Append(*types.Event)
}

// Journal is a bounded in-memory Sink keeping the most recent events.
type Journal struct {
	mu       sync.RWMutex
	capacity int
	events   []*types.Event
}

// NewJournal returns a journal retaining at most capacity events.
func NewJournal(capacity int) *Journal {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Journal{capacity: capacity}
}

// Append implements Sink.
func (j *Journal) Append(evt *types.Event) {
	if j == nil || evt == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, evt.Clone())
	if overflow := len(j.events) - j.capacity; overflow > 0 {
		j.events = append([]*types.Event(nil), j.events[overflow:]...)
	}
}

// Recent returns up to limit of the newest events, oldest first.
func (j *Journal) Recent(limit int) []*types.Event {
	if j == nil {
		return nil
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	start := 0
	if limit > 0 && len(j.events) > limit {
		start = len(j.events) - limit
	}
	out := make([]*types.Event, 0, len(j.events)-start)
	for _, evt := range j.events[start:] {
		out = append(out, evt.Clone())
	}
	return out
}
