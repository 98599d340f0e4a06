package panel

import (
	"fmt"
)

// Model owns the partition and zone registries for a single panel. It is
// exclusively mutated by the Controller's main loop (see the concurrency
// model); nothing else should hold a pointer to it for writes.
type Model struct {
	PanelID string

	Synced bool

	partitionsByIndex map[int]*Partition
	partitionsByUID   map[string]*Partition

	zonesByIndex map[int]*Zone
	zonesByUID   map[string]*Zone
}

// NewModel creates an empty registry set for a panel identified by panelID
// (used to build every entity's UniqueID).
func NewModel(panelID string) *Model {
	return &Model{
		PanelID:           panelID,
		partitionsByIndex: make(map[int]*Partition),
		partitionsByUID:   make(map[string]*Partition),
		zonesByIndex:      make(map[int]*Zone),
		zonesByUID:        make(map[string]*Zone),
	}
}

// AddPartition registers a new partition. Returns an error if called after
// Synced is true, or if the index is already registered.
func (m *Model) AddPartition(index int) (*Partition, error) {
	if m.Synced {
		return nil, fmt.Errorf("panel: refusing to register partition %d after sync", index)
	}
	if _, exists := m.partitionsByIndex[index]; exists {
		return nil, fmt.Errorf("panel: partition %d already registered", index)
	}
	p := NewPartition(m.PanelID, index)
	m.partitionsByIndex[index] = p
	m.partitionsByUID[p.UniqueID] = p
	return p, nil
}

// Partition looks up a partition by its 1-based server index.
func (m *Model) Partition(index int) (*Partition, bool) {
	p, ok := m.partitionsByIndex[index]
	return p, ok
}

// Partitions returns every registered partition, ordered by index.
func (m *Model) Partitions() []*Partition {
	out := make([]*Partition, 0, len(m.partitionsByIndex))
	for i := 1; i <= 8; i++ {
		if p, ok := m.partitionsByIndex[i]; ok {
			out = append(out, p)
		}
	}
	return out
}

// AddZone registers a new zone. Returns an error if called after Synced is
// true, or if the index is already registered.
func (m *Model) AddZone(index int, name string) (*Zone, error) {
	if m.Synced {
		return nil, fmt.Errorf("panel: refusing to register zone %d after sync", index)
	}
	if _, exists := m.zonesByIndex[index]; exists {
		return nil, fmt.Errorf("panel: zone %d already registered", index)
	}
	z := NewZone(m.PanelID, index, name)
	m.zonesByIndex[index] = z
	m.zonesByUID[z.UniqueID] = z
	return z, nil
}

// Zone looks up a zone by its 1-based server index.
func (m *Model) Zone(index int) (*Zone, bool) {
	z, ok := m.zonesByIndex[index]
	return z, ok
}

// Zones returns every registered zone, ordered by index.
func (m *Model) Zones() []*Zone {
	indices := make([]int, 0, len(m.zonesByIndex))
	for i := range m.zonesByIndex {
		indices = append(indices, i)
	}
	// Simple insertion sort: zone counts are small (<=192) and this runs
	// only for snapshot/debug paths, never the hot loop.
	for i := 1; i < len(indices); i++ {
		for j := i; j > 0 && indices[j-1] > indices[j]; j-- {
			indices[j-1], indices[j] = indices[j], indices[j-1]
		}
	}
	out := make([]*Zone, 0, len(indices))
	for _, i := range indices {
		out = append(out, m.zonesByIndex[i])
	}
	return out
}
