//go:build !no_mqtt

package mqtt

import (
	"fmt"
	"strings"

	"caddx-mqtt-controller/internal/panel"
)

// discoveryMsg is a Home Assistant MQTT discovery payload; a nil Payload is
// an empty retained publish, which HA treats as entity removal.
type discoveryMsg struct {
	Topic   string
	Payload []byte
}

// haDevice is the "device" block shared by every entity this bridge
// publishes, so Home Assistant groups every partition and zone under one
// device card.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	Name         string   `json:"name"`
}

func haDeviceFor(panelID string) haDevice {
	return haDevice{
		Identifiers:  []string{panelID},
		Manufacturer: "Caddx/GE/Interlogix",
		Model:        "NX-584",
		Name:         "Alarm Panel",
	}
}

// haAlarmPanel is the discovery payload for a partition's alarm_control_panel entity.
type haAlarmPanel struct {
	Name                 string   `json:"name"`
	UniqueID             string   `json:"unique_id"`
	StateTopic           string   `json:"state_topic"`
	CommandTopic         string   `json:"command_topic"`
	AvailabilityTopic    string   `json:"availability_topic"`
	CodeDisarmRequired   bool     `json:"code_disarm_required"`
	SupportedFeatures    []string `json:"supported_features"`
	PayloadDisarm        string   `json:"payload_disarm"`
	PayloadArmHome       string   `json:"payload_arm_home"`
	PayloadArmAway       string   `json:"payload_arm_away"`
	Device               haDevice `json:"device"`
}

// haBinarySensor is the discovery payload for one zone flag (faulted/bypassed/trouble).
type haBinarySensor struct {
	Name              string   `json:"name"`
	UniqueID          string   `json:"unique_id"`
	StateTopic        string   `json:"state_topic"`
	AvailabilityTopic string   `json:"availability_topic"`
	PayloadOn         string   `json:"payload_on"`
	PayloadOff        string   `json:"payload_off"`
	DeviceClass       string   `json:"device_class,omitempty"`
	Device            haDevice `json:"device"`
}

// sanitizeIdentifier reduces s to [A-Za-z0-9_-], replacing every other rune
// with '_'. Case-preserving: this system's own unique IDs are already
// generated in a fixed case, unlike a device's free-text friendly name.
func sanitizeIdentifier(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}

func partitionDiscoveryTopic(topicRoot, panelID, partitionUID string) string {
	return fmt.Sprintf("%s/alarm_control_panel/%s/%s/config", topicRoot, panelID, partitionUID)
}

func partitionStateTopic(topicRoot, panelID, partitionUID string) string {
	return fmt.Sprintf("%s/alarm_control_panel/%s/%s/state", topicRoot, panelID, partitionUID)
}

func partitionCommandTopic(topicRoot, panelID, partitionUID string) string {
	return fmt.Sprintf("%s/alarm_control_panel/%s/%s/set", topicRoot, panelID, partitionUID)
}

func availabilityTopic(topicRoot, panelID string) string {
	return fmt.Sprintf("%s/alarm_control_panel/%s/availability", topicRoot, panelID)
}

func buildPartitionDiscovery(topicRoot, panelID string, p *panel.Partition) discoveryMsg {
	uid := sanitizeIdentifier(p.UniqueID)
	avail := availabilityTopic(topicRoot, panelID)
	payload := haAlarmPanel{
		Name:               fmt.Sprintf("Partition %d", p.Index),
		UniqueID:           uid,
		StateTopic:         partitionStateTopic(topicRoot, panelID, uid),
		CommandTopic:       partitionCommandTopic(topicRoot, panelID, uid),
		AvailabilityTopic:  avail,
		CodeDisarmRequired: false,
		SupportedFeatures:  []string{"arm_home", "arm_away"},
		PayloadDisarm:      "DISARM",
		PayloadArmHome:     "ARM_HOME",
		PayloadArmAway:     "ARM_AWAY",
		Device:             haDeviceFor(panelID),
	}
	return discoveryMsg{Topic: partitionDiscoveryTopic(topicRoot, panelID, uid), Payload: mustJSON(payload)}
}

// zoneFlagKinds enumerates the three binary_sensor entities published per zone.
var zoneFlagKinds = []struct {
	kind        string
	suffix      string
	deviceClass string
}{
	{"faulted", "Faulted", "motion"},
	{"bypassed", "Bypassed", "safety"},
	{"trouble", "Trouble", "tamper"},
}

func zoneDiscoveryTopic(topicRoot, panelID, zoneUID, kind string) string {
	return fmt.Sprintf("%s/binary_sensor/%s/%s_%s/config", topicRoot, panelID, zoneUID, kind)
}

func zoneStateTopic(topicRoot, panelID, zoneUID, kind string) string {
	return fmt.Sprintf("%s/binary_sensor/%s/%s_%s/state", topicRoot, panelID, zoneUID, kind)
}

func buildZoneDiscovery(topicRoot, panelID string, z *panel.Zone) []discoveryMsg {
	uid := sanitizeIdentifier(z.UniqueID)
	avail := availabilityTopic(topicRoot, panelID)
	msgs := make([]discoveryMsg, 0, len(zoneFlagKinds))
	for _, fk := range zoneFlagKinds {
		payload := haBinarySensor{
			Name:              fmt.Sprintf("%s %s", z.Name, fk.suffix),
			UniqueID:          uid + "_" + fk.kind,
			StateTopic:        zoneStateTopic(topicRoot, panelID, uid, fk.kind),
			AvailabilityTopic: avail,
			PayloadOn:         "ON",
			PayloadOff:        "OFF",
			DeviceClass:       fk.deviceClass,
			Device:            haDeviceFor(panelID),
		}
		msgs = append(msgs, discoveryMsg{
			Topic:   zoneDiscoveryTopic(topicRoot, panelID, uid, fk.kind),
			Payload: mustJSON(payload),
		})
	}
	return msgs
}
