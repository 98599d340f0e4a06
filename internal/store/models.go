package store

import "time"

// LogEvent is one decoded Log Event Notification (message type 0x0A). The
// wire format carries event_type/group_type/parameter/partition_mask in the
// first four body bytes; a wire-level timestamp encoding isn't documented
// anywhere the reference implementation checks against (it never wires a
// handler for this message type), so Timestamp is stamped at receipt time
// rather than decoded from the frame.
type LogEvent struct {
	Seq           uint64    `json:"seq"`
	EventType     byte      `json:"event_type"`
	GroupType     byte      `json:"group_type"`
	Parameter     byte      `json:"parameter"`
	PartitionMask byte      `json:"partition_mask"`
	Timestamp     time.Time `json:"timestamp"`
}

// PartitionState is the last known derived state for one partition, kept for
// post-crash inspection only; it is never read back to seed a fresh sync.
type PartitionState struct {
	UniqueID  string    `json:"unique_id"`
	Index     int       `json:"index"`
	State     string    `json:"state"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ZoneState is the last known faulted/bypassed/trouble snapshot for one zone.
type ZoneState struct {
	UniqueID  string    `json:"unique_id"`
	Index     int       `json:"index"`
	Name      string    `json:"name"`
	Faulted   bool      `json:"faulted"`
	Bypassed  bool      `json:"bypassed"`
	Trouble   bool      `json:"trouble"`
	UpdatedAt time.Time `json:"updated_at"`
}
