package panel

import (
	"fmt"
	"strings"
)

// Zone is a physical sensor input monitored by one or more partitions.
type Zone struct {
	Index         int // 1-based server index
	UniqueID      string
	Name          string
	PartitionMask byte
	Type          ZoneType
	Condition     ZoneCondition
}

// NewZone constructs a zone with its unique ID derived from panelID and index.
func NewZone(panelID string, index int, name string) *Zone {
	return &Zone{
		Index:    index,
		UniqueID: fmt.Sprintf("%s_zone_%d", panelID, index),
		Name:     strings.TrimRight(name, "\x00 "),
	}
}

// Faulted reports whether the zone is currently faulted (bit 0).
func (z *Zone) Faulted() bool {
	return z.Condition.Has(ZCondFaulted)
}

// Bypassed reports whether the zone is currently bypassed (bit 3).
func (z *Zone) Bypassed() bool {
	return z.Condition.Has(ZCondBypassed)
}

// Trouble reports whether any trouble-rollup bit (1,2,4,5,6,7) is set.
func (z *Zone) Trouble() bool {
	return z.Condition.Any(troubleBits)
}

// InPartition reports whether this zone belongs to the given 1-based partition index.
func (z *Zone) InPartition(partitionIndex int) bool {
	return z.PartitionMask&(1<<uint(partitionIndex-1)) != 0
}

// SetMasks updates the zone's partition, type, and condition fields from a
// decoded Zone Status Response.
func (z *Zone) SetMasks(partitionMask byte, zoneType ZoneType, condition ZoneCondition) {
	z.PartitionMask = partitionMask
	z.Type = zoneType
	z.Condition = condition
}

// IsEmptyZoneName reports whether a raw zone name (16 ASCII bytes) represents an
// unprogrammed/inactive zone: empty or all-zero after trimming.
func IsEmptyZoneName(raw string) bool {
	return strings.TrimRight(raw, "\x00 ") == ""
}
