// Package protocol implements the NX-584 binary serial wire format: byte
// stuffing, Fletcher-16 checksumming, and the static per-message-type
// catalog used to validate frames in both directions.
package protocol

// MsgType is the 6-bit NX-584 message type code (ACK-request bit stripped).
type MsgType byte

// Response message types (panel -> host).
const (
	MsgInterfaceConfigRsp  MsgType = 0x01
	MsgZoneNameRsp         MsgType = 0x03
	MsgZoneStatusRsp       MsgType = 0x04
	MsgZoneSnapshotRsp     MsgType = 0x05
	MsgPartitionStatusRsp  MsgType = 0x06
	MsgPartitionSnapshotRsp MsgType = 0x07
	MsgSystemStatusRsp     MsgType = 0x08
	MsgLogEventInd         MsgType = 0x0A
	MsgFailed              MsgType = 0x1C
	MsgACK                 MsgType = 0x1D
	MsgNACK                MsgType = 0x1E
	MsgRejected            MsgType = 0x1F
)

// Request message types (host -> panel).
const (
	MsgInterfaceConfigReq  MsgType = 0x21
	MsgZoneNameReq         MsgType = 0x23
	MsgZoneStatusReq       MsgType = 0x24
	MsgZoneSnapshotReq     MsgType = 0x25
	MsgPartitionStatusReq  MsgType = 0x26
	MsgPartitionSnapshotReq MsgType = 0x27
	MsgSystemStatusReq     MsgType = 0x28
	MsgLogEventReq         MsgType = 0x2A
	MsgSetClockCalendar    MsgType = 0x3B
	MsgPrimaryKeypadPin    MsgType = 0x3C
	MsgPrimaryKeypadNoPin  MsgType = 0x3D
)

// Keypad function codes carried in the body of a Primary Keypad Function request.
const (
	KeypadDisarm   byte = 0x00
	KeypadArmAway  byte = 0x02
	KeypadArmStay  byte = 0x03
)

// CatalogEntry is the static metadata for one message type.
type CatalogEntry struct {
	Name            string
	ExpectsAck      bool
	ValidBodyLength int
}

// Catalog maps every message type this system understands to its metadata.
// A frame whose type is present here but whose body length doesn't match is
// a BadLength framing error, not a decode-time application error.
var Catalog = map[MsgType]CatalogEntry{
	MsgInterfaceConfigRsp:   {"InterfaceConfigRsp", false, 11},
	MsgZoneNameRsp:          {"ZoneNameRsp", false, 18},
	MsgZoneStatusRsp:        {"ZoneStatusRsp", false, 8},
	MsgZoneSnapshotRsp:      {"ZoneSnapshotRsp", false, 6},
	MsgPartitionStatusRsp:   {"PartitionStatusRsp", false, 9},
	MsgPartitionSnapshotRsp: {"PartitionSnapshotRsp", false, 9},
	MsgSystemStatusRsp:      {"SystemStatusRsp", false, 12},
	MsgLogEventInd:          {"LogEventInd", false, 10},
	MsgFailed:               {"Failed", false, 1},
	MsgACK:                  {"ACK", false, 1},
	MsgNACK:                 {"NACK", false, 1},
	MsgRejected:             {"Rejected", false, 1},

	MsgInterfaceConfigReq:   {"InterfaceConfigReq", false, 1},
	MsgZoneNameReq:          {"ZoneNameReq", false, 2},
	MsgZoneStatusReq:        {"ZoneStatusReq", false, 2},
	MsgZoneSnapshotReq:      {"ZoneSnapshotReq", false, 1},
	MsgPartitionStatusReq:   {"PartitionStatusReq", false, 2},
	MsgPartitionSnapshotReq: {"PartitionSnapshotReq", false, 1},
	MsgSystemStatusReq:      {"SystemStatusReq", false, 1},
	MsgLogEventReq:          {"LogEventReq", false, 2},
	MsgSetClockCalendar:     {"SetClockCalendar", false, 8},
	MsgPrimaryKeypadPin:     {"PrimaryKeypadFuncPin", true, 6},
	MsgPrimaryKeypadNoPin:   {"PrimaryKeypadFuncNoPin", true, 4},
}

// TransitionTypes are the broadcast message types the Controller dispatches
// as unsolicited transitions rather than treating as a command response.
var TransitionTypes = map[MsgType]bool{
	MsgPartitionStatusRsp:   true,
	MsgPartitionSnapshotRsp: true,
	MsgZoneStatusRsp:        true,
	MsgZoneSnapshotRsp:      true,
	MsgSystemStatusRsp:      true,
	MsgLogEventInd:          true,
}

// Interface Configuration response, transition-message-flags field (2 bytes, LE).
const (
	TransInterfaceConfig  uint16 = 1 << 1
	TransZoneStatus       uint16 = 1 << 4
	TransZoneSnapshot     uint16 = 1 << 5
	TransPartitionStatus  uint16 = 1 << 6
	TransPartitionSnapshot uint16 = 1 << 7
	TransSystemStatus     uint16 = 1 << 8
	TransLogEvent         uint16 = 1 << 10
)

// RequiredTransitionFlags is the minimum set of enabled broadcast types this
// system requires; if any bit is missing, startup sync fails as PanelMisconfigured.
const RequiredTransitionFlags = TransInterfaceConfig | TransZoneStatus | TransPartitionStatus | TransSystemStatus | TransPartitionSnapshot | TransZoneSnapshot

// Interface Configuration response, request-command-flags field (4 bytes, LE).
const (
	ReqInterfaceConfig  uint32 = 1 << 1
	ReqZoneName         uint32 = 1 << 3
	ReqZoneStatus       uint32 = 1 << 4
	ReqZoneSnapshot     uint32 = 1 << 5
	ReqPartitionStatus  uint32 = 1 << 6
	ReqPartitionSnapshot uint32 = 1 << 7
	ReqSystemStatus     uint32 = 1 << 8
	ReqLogEvent         uint32 = 1 << 10
	ReqSetClockCalendar uint32 = 1 << 27
	ReqPrimaryKeypadPin uint32 = 1 << 28
	ReqPrimaryKeypadNoPin uint32 = 1 << 29
)

// AdvisoryRequestFlags is checked but not fatal on mismatch (see interface
// config validation note in the controller sync sequence).
const AdvisoryRequestFlags = ReqInterfaceConfig | ReqZoneName | ReqZoneStatus | ReqPartitionStatus | ReqSystemStatus | ReqSetClockCalendar | ReqPrimaryKeypadNoPin

// Name returns a human-readable name for a message type, or "unknown".
func (t MsgType) Name() string {
	if e, ok := Catalog[t]; ok {
		return e.Name
	}
	return "unknown"
}
