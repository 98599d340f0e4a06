package store

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndRecentLogEvents(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 3; i++ {
		e := &LogEvent{
			EventType:     byte(i),
			GroupType:     1,
			Parameter:     0,
			PartitionMask: 0x01,
			Timestamp:     time.Now().Truncate(time.Millisecond),
		}
		if err := s.AppendLogEvent(e); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.RecentLogEvents(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("count = %d, want 3", len(got))
	}
	// newest first
	if got[0].EventType != 2 || got[2].EventType != 0 {
		t.Errorf("order wrong: got event types %d, %d, %d", got[0].EventType, got[1].EventType, got[2].EventType)
	}
}

func TestAppendLogEventEvictsOldest(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < maxLogEvents+50; i++ {
		e := &LogEvent{EventType: byte(i % 256), PartitionMask: 0x01}
		if err := s.AppendLogEvent(e); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.RecentLogEvents(maxLogEvents + 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != maxLogEvents {
		t.Fatalf("count = %d, want %d", len(got), maxLogEvents)
	}
	// The oldest 50 should have been evicted, so the oldest retained
	// entry (last in newest-first order) should have sequence number 51.
	if got[len(got)-1].Seq != 51 {
		t.Errorf("oldest retained seq = %d, want 51", got[len(got)-1].Seq)
	}
}

func TestRecentLogEventsRespectsLimit(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 20; i++ {
		if err := s.AppendLogEvent(&LogEvent{EventType: byte(i)}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.RecentLogEvents(5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 5 {
		t.Fatalf("count = %d, want 5", len(got))
	}
}

func TestSaveAndListPartitionStates(t *testing.T) {
	s := newTestStore(t)

	states := []*PartitionState{
		{UniqueID: "panel_partition_2", Index: 2, State: "ARMED_AWAY", UpdatedAt: time.Now().Truncate(time.Millisecond)},
		{UniqueID: "panel_partition_1", Index: 1, State: "DISARMED", UpdatedAt: time.Now().Truncate(time.Millisecond)},
	}
	for _, st := range states {
		if err := s.SavePartitionState(st); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.PartitionStates()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("count = %d, want 2", len(got))
	}
	if got[0].Index != 1 || got[1].Index != 2 {
		t.Errorf("expected states ordered by index, got %d, %d", got[0].Index, got[1].Index)
	}
}

func TestSaveAndListZoneStates(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveZoneState(&ZoneState{UniqueID: "panel_zone_1", Index: 1, Name: "Front Door", Faulted: true}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveZoneState(&ZoneState{UniqueID: "panel_zone_2", Index: 2, Name: "Kitchen Motion"}); err != nil {
		t.Fatal(err)
	}

	got, err := s.ZoneStates()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("count = %d, want 2", len(got))
	}
	if !got[0].Faulted {
		t.Error("expected zone 1 to be faulted")
	}
}

func TestPartitionStatesEmptyBeforeAnyWrite(t *testing.T) {
	s := newTestStore(t)

	got, err := s.PartitionStates()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("count = %d, want 0", len(got))
	}
}
