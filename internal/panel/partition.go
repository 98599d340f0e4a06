package panel

import "fmt"

// State is a partition's derived alarm state.
type State int

const (
	StateUnknown State = iota
	StateDisarmed
	StateArmedHome
	StateArmedAway
	StatePending
	StateTriggered
	StateArming
	StateDisarming
)

func (s State) String() string {
	switch s {
	case StateDisarmed:
		return "DISARMED"
	case StateArmedHome:
		return "ARMED_HOME"
	case StateArmedAway:
		return "ARMED_AWAY"
	case StatePending:
		return "PENDING"
	case StateTriggered:
		return "TRIGGERED"
	case StateArming:
		return "ARMING"
	case StateDisarming:
		return "DISARMING"
	default:
		return "UNKNOWN"
	}
}

// Partition is one of the panel's 1-8 arming partitions.
type Partition struct {
	Index     int // 1-based server index
	UniqueID  string
	Condition PartitionCondition
	Valid     bool // set once the panel has confirmed this partition exists
}

// NewPartition constructs a partition with its unique ID derived from panelID and index.
func NewPartition(panelID string, index int) *Partition {
	return &Partition{
		Index:    index,
		UniqueID: fmt.Sprintf("%s_partition_%d", panelID, index),
		Valid:    true,
	}
}

// State derives the partition's alarm state from its current condition
// bitfield by the fixed priority cascade. Pure and side-effect free.
func (p *Partition) State() State {
	return DeriveState(p.Condition)
}

// DeriveState is the priority cascade from a 48-bit condition bitfield to a
// partition State. First matching rule wins.
func DeriveState(c PartitionCondition) State {
	if c.Any(CondSirenOn | CondPreviousAlarm) {
		return StateTriggered
	}
	if c.Has(CondEntryDelay) {
		return StatePending
	}
	if c.Any(CondExitDelay1|CondExitDelay2) && !c.Has(CondArmed) {
		return StateArming
	}
	if c.Has(CondArmed) && c.Has(CondStayMode) {
		return StateArmedHome
	}
	if c.Has(CondArmed) {
		return StateArmedAway
	}
	return StateDisarmed
}
