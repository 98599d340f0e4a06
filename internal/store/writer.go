package store

import (
	"log/slog"
	"time"

	"caddx-mqtt-controller/internal/bus"
	"caddx-mqtt-controller/internal/controller"
)

// Writer subscribes to the event bus and persists log events and
// partition/zone state to a Store. Writes happen on their own goroutine so a
// slow or failing disk never blocks the bus's emitting goroutine (the
// Controller's main loop); failures are logged and otherwise swallowed.
type Writer struct {
	store  Store
	logger *slog.Logger
	jobs   chan func()
	done   chan struct{}
}

// NewWriter starts a Writer's background goroutine. Call Unsubscribe (the
// returned funcs from Attach) and then Close to shut it down.
func NewWriter(st Store, logger *slog.Logger) *Writer {
	w := &Writer{
		store:  st,
		logger: logger.With("component", "store_writer"),
		jobs:   make(chan func(), 256),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Writer) run() {
	for {
		select {
		case job := <-w.jobs:
			job()
		case <-w.done:
			return
		}
	}
}

// Close stops the writer's background goroutine. Safe to call once.
func (w *Writer) Close() {
	close(w.done)
}

func (w *Writer) enqueue(job func()) {
	select {
	case w.jobs <- job:
	default:
		w.logger.Warn("store writer queue full, dropping write")
	}
}

// Attach subscribes the writer to the bus's partition/zone transition and
// log event notifications. Returns an unsubscribe function.
func (w *Writer) Attach(b *bus.Bus) func() {
	unsubPartition := b.On(bus.PartitionTransition, w.handlePartitionTransition)
	unsubZone := b.On(bus.ZoneTransition, w.handleZoneTransition)
	unsubLog := b.On(bus.LogEvent, w.handleLogEvent)
	return func() {
		unsubPartition()
		unsubZone()
		unsubLog()
	}
}

func (w *Writer) handlePartitionTransition(e bus.Event) {
	payload, ok := e.Payload.(controller.PartitionTransitionPayload)
	if !ok {
		return
	}
	state := PartitionState{
		UniqueID:  payload.UniqueID,
		Index:     payload.Index,
		State:     payload.State.String(),
		UpdatedAt: time.Now(),
	}
	w.enqueue(func() {
		if err := w.store.SavePartitionState(&state); err != nil {
			w.logger.Warn("save partition state", "index", state.Index, "err", err)
		}
	})
}

func (w *Writer) handleZoneTransition(e bus.Event) {
	payload, ok := e.Payload.(controller.ZoneTransitionPayload)
	if !ok {
		return
	}
	state := ZoneState{
		UniqueID:  payload.UniqueID,
		Index:     payload.Index,
		Name:      payload.Name,
		Faulted:   payload.Faulted,
		Bypassed:  payload.Bypassed,
		Trouble:   payload.Trouble,
		UpdatedAt: time.Now(),
	}
	w.enqueue(func() {
		if err := w.store.SaveZoneState(&state); err != nil {
			w.logger.Warn("save zone state", "index", state.Index, "err", err)
		}
	})
}

func (w *Writer) handleLogEvent(e bus.Event) {
	payload, ok := e.Payload.(controller.LogEventPayload)
	if !ok {
		return
	}
	entry := LogEvent{
		EventType:     payload.EventType,
		GroupType:     payload.GroupType,
		Parameter:     payload.Parameter,
		PartitionMask: payload.PartitionMask,
		Timestamp:     time.Now(),
	}
	w.enqueue(func() {
		if err := w.store.AppendLogEvent(&entry); err != nil {
			w.logger.Warn("append log event", "err", err)
		}
	})
}
