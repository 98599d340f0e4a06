// Package bus is a synchronous in-process event bus used to decouple the
// controller's main loop from the MQTT bridge, status server, and
// automation hooks.
package bus

import (
	"log/slog"
	"sync"
)

// EventType identifies the kind of event published on the bus.
type EventType string

const (
	// PartitionTransition fires whenever a partition's derived state changes.
	PartitionTransition EventType = "partition_transition"
	// ZoneTransition fires whenever a zone's faulted/bypassed/trouble flags change.
	ZoneTransition EventType = "zone_transition"
	// LogEvent fires for every Log Event Response the panel reports.
	LogEvent EventType = "log_event"
	// CommandFailed fires when a queued command is rejected, fails, or times out.
	CommandFailed EventType = "command_failed"
	// PanelSynced fires once, when startup sync completes.
	PanelSynced EventType = "panel_synced"
	// RepublishTick fires periodically (see controller.republishInterval)
	// so subscribers rebroadcast current state for broker-restart
	// resilience, independent of any panel state change.
	RepublishTick EventType = "republish_tick"
)

// Event is a single notification published on the bus. Payload's concrete
// type depends on Type (see the payload structs in internal/controller).
type Event struct {
	Type    EventType
	Payload any
}

// Handler processes a published event. Handlers run synchronously on the
// publishing goroutine and must not block or call back into the Controller.
type Handler func(Event)

// Bus fans a published Event out to every subscribed handler. Safe for
// concurrent use; Emit recovers panics from individual handlers so one
// broken subscriber cannot take down the publisher.
type Bus struct {
	mu          sync.RWMutex
	handlers    map[EventType]map[uint64]Handler
	allHandlers map[uint64]Handler
	nextID      uint64
	logger      *slog.Logger
}

// New creates an empty Bus. logger is used to report handler panics.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers:    make(map[EventType]map[uint64]Handler),
		allHandlers: make(map[uint64]Handler),
		logger:      logger,
	}
}

// On subscribes handler to events of the given type. The returned function
// unsubscribes it.
func (b *Bus) On(eventType EventType, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[uint64]Handler)
	}
	b.handlers[eventType][id] = handler
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[eventType], id)
	}
}

// OnAll subscribes handler to every event type. The returned function
// unsubscribes it.
func (b *Bus) OnAll(handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.allHandlers[id] = handler
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.allHandlers, id)
	}
}

// Emit delivers event to every matching subscriber: type-specific handlers
// first, then all-handlers. The order within each group is not defined. A
// handler that panics is logged and skipped; it does not stop delivery to
// the rest.
func (b *Bus) Emit(event Event) {
	b.mu.RLock()
	typed := make([]Handler, 0, len(b.handlers[event.Type]))
	for _, h := range b.handlers[event.Type] {
		typed = append(typed, h)
	}
	all := make([]Handler, 0, len(b.allHandlers))
	for _, h := range b.allHandlers {
		all = append(all, h)
	}
	b.mu.RUnlock()

	for _, h := range typed {
		b.callSafely(h, event)
	}
	for _, h := range all {
		b.callSafely(h, event)
	}
}

func (b *Bus) callSafely(h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "event_type", event.Type, "panic", r)
		}
	}()
	h(event)
}
