package bus

import (
	"sync"
	"testing"
)

func TestOnReceivesOnlyMatchingType(t *testing.T) {
	b := New(nil)
	var got []EventType
	var mu sync.Mutex
	b.On(PartitionTransition, func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.Type)
	})

	b.Emit(Event{Type: PartitionTransition})
	b.Emit(Event{Type: ZoneTransition})
	b.Emit(Event{Type: PartitionTransition})

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("expected 2 matching events, got %d", len(got))
	}
}

func TestOnAllReceivesEverything(t *testing.T) {
	b := New(nil)
	count := 0
	var mu sync.Mutex
	b.OnAll(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		count++
	})

	b.Emit(Event{Type: PartitionTransition})
	b.Emit(Event{Type: ZoneTransition})
	b.Emit(Event{Type: LogEvent})

	mu.Lock()
	defer mu.Unlock()
	if count != 3 {
		t.Fatalf("expected 3 events delivered, got %d", count)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(nil)
	count := 0
	unsub := b.On(CommandFailed, func(e Event) { count++ })

	b.Emit(Event{Type: CommandFailed})
	unsub()
	b.Emit(Event{Type: CommandFailed})

	if count != 1 {
		t.Fatalf("expected 1 delivery before unsubscribe, got %d", count)
	}
}

func TestPanicInHandlerDoesNotStopOtherHandlers(t *testing.T) {
	b := New(nil)
	called := false
	b.On(LogEvent, func(e Event) { panic("boom") })
	b.On(LogEvent, func(e Event) { called = true })

	b.Emit(Event{Type: LogEvent})

	if !called {
		t.Fatal("second handler should still run after the first panics")
	}
}
