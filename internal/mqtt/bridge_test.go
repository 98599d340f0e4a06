//go:build !no_mqtt

package mqtt

import (
	"encoding/json"
	"testing"

	"caddx-mqtt-controller/internal/panel"
)

func TestSanitizeIdentifierIsCasePreserving(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Home_Panel-1", "Home_Panel-1"},
		{"panel one", "panel_one"},
		{"nx584/panel#1", "nx584_panel_1"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := sanitizeIdentifier(tt.in); got != tt.want {
			t.Errorf("sanitizeIdentifier(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildPartitionDiscoveryTopicsAndPayload(t *testing.T) {
	p := panel.NewPartition("mypanel", 1)
	msg := buildPartitionDiscovery("homeassistant", "mypanel", p)

	wantTopic := "homeassistant/alarm_control_panel/mypanel/mypanel_partition_1/config"
	if msg.Topic != wantTopic {
		t.Errorf("topic = %q, want %q", msg.Topic, wantTopic)
	}

	var payload haAlarmPanel
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.UniqueID != "mypanel_partition_1" {
		t.Errorf("unique_id = %q", payload.UniqueID)
	}
	if payload.CodeDisarmRequired {
		t.Error("code_disarm_required should be false")
	}
	if len(payload.SupportedFeatures) != 2 {
		t.Errorf("supported_features = %v, want 2 entries", payload.SupportedFeatures)
	}
	if payload.CommandTopic != "homeassistant/alarm_control_panel/mypanel/mypanel_partition_1/set" {
		t.Errorf("command_topic = %q", payload.CommandTopic)
	}
	if payload.Device.Identifiers[0] != "mypanel" {
		t.Errorf("device identifier = %v", payload.Device.Identifiers)
	}
}

func TestBuildZoneDiscoveryProducesThreeEntities(t *testing.T) {
	z := panel.NewZone("mypanel", 3, "Front Door")
	msgs := buildZoneDiscovery("homeassistant", "mypanel", z)

	if len(msgs) != 3 {
		t.Fatalf("expected 3 discovery messages, got %d", len(msgs))
	}

	topics := extractTopics(msgs)
	for _, kind := range []string{"faulted", "bypassed", "trouble"} {
		want := "homeassistant/binary_sensor/mypanel/mypanel_zone_3_" + kind + "/config"
		if !topics[want] {
			t.Errorf("missing discovery topic %q", want)
		}
	}
}

func TestBuildZoneDiscoveryPayloadFields(t *testing.T) {
	z := panel.NewZone("mypanel", 5, "Kitchen Motion")
	msgs := buildZoneDiscovery("homeassistant", "mypanel", z)

	var payload haBinarySensor
	found := false
	for _, m := range msgs {
		if m.Topic == "homeassistant/binary_sensor/mypanel/mypanel_zone_5_trouble/config" {
			if err := json.Unmarshal(m.Payload, &payload); err != nil {
				t.Fatal(err)
			}
			found = true
		}
	}
	if !found {
		t.Fatal("trouble discovery not found")
	}
	if payload.Name != "Kitchen Motion Trouble" {
		t.Errorf("name = %q", payload.Name)
	}
	if payload.PayloadOn != "ON" || payload.PayloadOff != "OFF" {
		t.Errorf("payload_on/off = %q/%q", payload.PayloadOn, payload.PayloadOff)
	}
	if payload.DeviceClass != "tamper" {
		t.Errorf("device_class = %q, want tamper", payload.DeviceClass)
	}
}

func TestAvailabilityAndStateTopics(t *testing.T) {
	if got, want := availabilityTopic("homeassistant", "mypanel"), "homeassistant/alarm_control_panel/mypanel/availability"; got != want {
		t.Errorf("availabilityTopic = %q, want %q", got, want)
	}
	if got, want := partitionStateTopic("homeassistant", "mypanel", "mypanel_partition_1"), "homeassistant/alarm_control_panel/mypanel/mypanel_partition_1/state"; got != want {
		t.Errorf("partitionStateTopic = %q, want %q", got, want)
	}
}

func TestMustJSON(t *testing.T) {
	result := mustJSON(map[string]string{"hello": "world"})
	var parsed map[string]string
	if err := json.Unmarshal(result, &parsed); err != nil {
		t.Fatalf("mustJSON output not valid JSON: %v", err)
	}
	if parsed["hello"] != "world" {
		t.Errorf("parsed value = %q", parsed["hello"])
	}
}

func extractTopics(msgs []discoveryMsg) map[string]bool {
	topics := make(map[string]bool)
	for _, m := range msgs {
		topics[m.Topic] = true
	}
	return topics
}
