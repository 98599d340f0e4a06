package controller

import (
	"encoding/binary"
	"strings"

	"caddx-mqtt-controller/internal/bus"
	"caddx-mqtt-controller/internal/panel"
	"caddx-mqtt-controller/internal/protocol"
)

// PartitionTransitionPayload is the bus.Event payload for bus.PartitionTransition.
type PartitionTransitionPayload struct {
	Index     int
	UniqueID  string
	State     panel.State
	Condition panel.PartitionCondition
}

// ZoneTransitionPayload is the bus.Event payload for bus.ZoneTransition.
type ZoneTransitionPayload struct {
	Index    int
	UniqueID string
	Name     string
	Faulted  bool
	Bypassed bool
	Trouble  bool
}

// LogEventPayload is the bus.Event payload for bus.LogEvent. The wire body
// carries no documented timestamp field (the original panel-control source
// never wired a handler for this message type), so the payload carries no
// timestamp; the store writer stamps store.LogEvent.Timestamp with the host's
// receipt time rather than inventing one from undocumented bytes.
type LogEventPayload struct {
	EventType     byte
	GroupType     byte
	Parameter     byte
	PartitionMask byte
}

// handleTransition applies one unsolicited (or post-command) frame to the
// panel model and republishes the resulting change on the event bus. It is
// only ever called from the Controller's own goroutine.
func (c *Controller) handleTransition(frame rxFrame) {
	entry, ok := protocol.Catalog[frame.msgType]
	if !ok || len(frame.body)+1 != entry.ValidBodyLength {
		c.logger.Warn("dropping malformed transition frame", "type", frame.msgType.Name())
		return
	}

	switch frame.msgType {
	case protocol.MsgPartitionStatusRsp:
		c.applyPartitionStatus(frame.body)
	case protocol.MsgPartitionSnapshotRsp:
		// Not decoded beyond acknowledging the broadcast; no per-field model.
	case protocol.MsgZoneStatusRsp:
		c.applyZoneStatus(frame.body)
	case protocol.MsgZoneSnapshotRsp:
		// Bitmap snapshot across many zones; left undecoded (see design notes).
	case protocol.MsgSystemStatusRsp:
		c.applySystemStatus(frame.body)
	case protocol.MsgLogEventInd:
		c.applyLogEvent(frame.body)
	case protocol.MsgInterfaceConfigRsp:
		// Only validated once, during sync; ignored if rebroadcast later.
	default:
		c.logger.Debug("unhandled transition", "type", frame.msgType.Name())
	}
}

func (c *Controller) applyPartitionStatus(body []byte) {
	index := panelPartitionToServer(int(body[0]))
	p, ok := c.model.Partition(index)
	if !ok {
		if c.model.Synced {
			c.logger.Error("partition status for unknown partition", "index", index)
			return
		}
		var err error
		p, err = c.model.AddPartition(index)
		if err != nil {
			c.logger.Error("register partition", "index", index, "err", err)
			return
		}
	}

	low := uint64(binary.LittleEndian.Uint32(body[1:5]))
	high := uint64(binary.LittleEndian.Uint16(body[6:8])) << 32
	p.Condition = panel.PartitionCondition(low | high)

	if c.model.Synced {
		c.bus.Emit(bus.Event{Type: bus.PartitionTransition, Payload: PartitionTransitionPayload{
			Index:     p.Index,
			UniqueID:  p.UniqueID,
			State:     p.State(),
			Condition: p.Condition,
		}})
	}
}

func (c *Controller) applyZoneStatus(body []byte) {
	index := panelZoneToServer(int(body[0]))
	z, ok := c.model.Zone(index)
	if !ok {
		c.logger.Error("zone status for unknown zone", "index", index)
		return
	}

	partitionMask := body[1]
	typeMask := panel.ZoneType(uint32(body[2]) | uint32(body[3])<<8 | uint32(body[4])<<16)
	conditionMask := panel.ZoneCondition(binary.LittleEndian.Uint16(body[5:7]))
	z.SetMasks(partitionMask, typeMask, conditionMask)

	if c.model.Synced {
		c.bus.Emit(bus.Event{Type: bus.ZoneTransition, Payload: ZoneTransitionPayload{
			Index:    z.Index,
			UniqueID: z.UniqueID,
			Name:     z.Name,
			Faulted:  z.Faulted(),
			Bypassed: z.Bypassed(),
			Trouble:  z.Trouble(),
		}})
	}
}

func (c *Controller) applyLogEvent(body []byte) {
	c.bus.Emit(bus.Event{Type: bus.LogEvent, Payload: LogEventPayload{
		EventType:     body[0],
		GroupType:     body[1],
		Parameter:     body[2],
		PartitionMask: body[3],
	}})
}

func (c *Controller) applySystemStatus(body []byte) {
	partitionMask := body[9]
	if c.model.Synced {
		return
	}
	for i := 0; i < numPartitions; i++ {
		if partitionMask&(1<<uint(i)) == 0 {
			continue
		}
		index := i + 1
		if _, ok := c.model.Partition(index); ok {
			continue
		}
		if _, err := c.model.AddPartition(index); err != nil {
			c.logger.Error("register partition from system status", "index", index, "err", err)
		}
	}
}

// parseZoneName trims the fixed 16-byte ASCII field and reports whether the
// result represents an unprogrammed zone.
func parseZoneName(raw []byte) (name string, empty bool) {
	name = strings.TrimRight(string(raw), "\x00 ")
	return name, panel.IsEmptyZoneName(string(raw))
}

// panelZoneToServer / panelPartitionToServer / serverZoneToPanel /
// serverPartitionToPanel translate between the wire's 0-based panel index
// and this system's 1-based server index.
func panelZoneToServer(panelIndex int) int      { return panelIndex + 1 }
func panelPartitionToServer(panelIndex int) int { return panelIndex + 1 }
func serverZoneToPanel(serverIndex int) int      { return serverIndex - 1 }
func serverPartitionToPanel(serverIndex int) int { return serverIndex - 1 }
