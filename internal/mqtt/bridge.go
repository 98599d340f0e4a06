//go:build !no_mqtt

package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"caddx-mqtt-controller/internal/bus"
	"caddx-mqtt-controller/internal/controller"
	"caddx-mqtt-controller/internal/panel"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker    string
	Username  string
	Password  string
	TopicRoot string
	PanelID   string
	Auth      controller.Auth

	// DiscoverySpacing paces per-zone discovery publishes (default 1s) so a
	// panel with many zones doesn't overrun the broker with a publish burst
	// on connect/reconnect.
	DiscoverySpacing time.Duration

	// OnConnectionChange, if set, is called with true/false whenever the
	// broker connection is established or lost, so callers (the status
	// server) can report broker_connected without the bridge depending on
	// them directly.
	OnConnectionChange func(connected bool)
}

// Bridge connects the alarm Controller to MQTT with Home Assistant
// autodiscovery: one alarm_control_panel entity per partition, plus three
// binary_sensor entities per zone (faulted/bypassed/trouble).
type Bridge struct {
	client pahomqtt.Client
	ctrl   *controller.Controller
	bus    *bus.Bus
	cfg    Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	unsubs []func()
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}

// NewBridge creates and connects an MQTT bridge, but publishes nothing and
// subscribes to no event-bus topics until Start is called.
func NewBridge(ctrl *controller.Controller, b *bus.Bus, cfg Config, logger *slog.Logger) (*Bridge, error) {
	if cfg.TopicRoot == "" {
		cfg.TopicRoot = "homeassistant"
	}
	if cfg.DiscoverySpacing <= 0 {
		cfg.DiscoverySpacing = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	br := &Bridge{
		ctrl:   ctrl,
		bus:    b,
		cfg:    cfg,
		logger: logger.With("component", "mqtt"),
		ctx:    ctx,
		cancel: cancel,
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID("caddx-mqtt-controller").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(availabilityTopic(cfg.TopicRoot, cfg.PanelID), "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			br.logger.Info("MQTT connected")
			br.publishAvailability("online")
			br.publishAllDiscovery()
			br.subscribeCommands()
			br.subscribeHARestart()
			if cfg.OnConnectionChange != nil {
				cfg.OnConnectionChange(true)
			}
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			br.logger.Warn("MQTT connection lost", "err", err)
			if cfg.OnConnectionChange != nil {
				cfg.OnConnectionChange(false)
			}
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	br.client = client
	return br, nil
}

// Start subscribes to controller transitions and begins publishing.
func (b *Bridge) Start() {
	b.addUnsub(b.bus.On(bus.PartitionTransition, b.handlePartitionTransition))
	b.addUnsub(b.bus.On(bus.ZoneTransition, b.handleZoneTransition))
	b.addUnsub(b.bus.On(bus.CommandFailed, b.handleCommandFailed))
	b.addUnsub(b.bus.On(bus.RepublishTick, b.handleRepublishTick))
	b.logger.Info("MQTT bridge started", "topic_root", b.cfg.TopicRoot)
}

// Stop publishes offline availability, unsubscribes, and disconnects.
func (b *Bridge) Stop() {
	b.cancel()
	b.mu.Lock()
	unsubs := b.unsubs
	b.unsubs = nil
	b.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
	b.publishAvailability("offline")
	b.client.Disconnect(1000)
	b.logger.Info("MQTT bridge stopped")
}

func (b *Bridge) addUnsub(unsub func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unsubs = append(b.unsubs, unsub)
}

func (b *Bridge) handlePartitionTransition(e bus.Event) {
	payload, ok := e.Payload.(controller.PartitionTransitionPayload)
	if !ok {
		return
	}
	p, ok := b.ctrl.Model().Partition(payload.Index)
	if !ok {
		return
	}
	b.publishPartitionState(p)
}

func (b *Bridge) handleZoneTransition(e bus.Event) {
	payload, ok := e.Payload.(controller.ZoneTransitionPayload)
	if !ok {
		return
	}
	z, ok := b.ctrl.Model().Zone(payload.Index)
	if !ok {
		return
	}
	b.publishZoneState(z)
}

func (b *Bridge) handleCommandFailed(e bus.Event) {
	if err, ok := e.Payload.(*controller.CommandFailedError); ok {
		b.logger.Warn("command failed", "type", err.MsgType.Name(), "err", err.Err)
	}
}

// handleRepublishTick fires every republishInterval; it republishes current
// partition/zone state (not discovery) so a broker that dropped retained
// messages, or a fresh HA instance, recovers state without a panel re-sync.
func (b *Bridge) handleRepublishTick(bus.Event) {
	b.publishAllStates()
}

func (b *Bridge) publishAllStates() {
	for _, p := range b.ctrl.Model().Partitions() {
		b.publishPartitionState(p)
	}
	for _, z := range b.ctrl.Model().Zones() {
		b.publishZoneState(z)
	}
	b.logger.Info("republished partition/zone state",
		"partitions", len(b.ctrl.Model().Partitions()), "zones", len(b.ctrl.Model().Zones()))
}

func (b *Bridge) publishAvailability(state string) {
	b.publish(availabilityTopic(b.cfg.TopicRoot, b.cfg.PanelID), []byte(state), true)
}

func (b *Bridge) publishAllDiscovery() {
	for _, p := range b.ctrl.Model().Partitions() {
		msg := buildPartitionDiscovery(b.cfg.TopicRoot, b.cfg.PanelID, p)
		b.publish(msg.Topic, msg.Payload, true)
		b.publishPartitionState(p)
	}
	for i, z := range b.ctrl.Model().Zones() {
		if i > 0 {
			time.Sleep(b.cfg.DiscoverySpacing)
		}
		for _, msg := range buildZoneDiscovery(b.cfg.TopicRoot, b.cfg.PanelID, z) {
			b.publish(msg.Topic, msg.Payload, true)
		}
		b.publishZoneState(z)
	}
	b.logger.Info("published HA discovery",
		"partitions", len(b.ctrl.Model().Partitions()), "zones", len(b.ctrl.Model().Zones()))
}

func (b *Bridge) publishPartitionState(p *panel.Partition) {
	uid := sanitizeIdentifier(p.UniqueID)
	topic := partitionStateTopic(b.cfg.TopicRoot, b.cfg.PanelID, uid)
	b.publish(topic, []byte(p.State().String()), true)
}

func (b *Bridge) publishZoneState(z *panel.Zone) {
	uid := sanitizeIdentifier(z.UniqueID)
	flags := map[string]bool{"faulted": z.Faulted(), "bypassed": z.Bypassed(), "trouble": z.Trouble()}
	for _, fk := range zoneFlagKinds {
		payload := "OFF"
		if flags[fk.kind] {
			payload = "ON"
		}
		topic := zoneStateTopic(b.cfg.TopicRoot, b.cfg.PanelID, uid, fk.kind)
		b.publish(topic, []byte(payload), true)
	}
}

func (b *Bridge) subscribeCommands() {
	for _, p := range b.ctrl.Model().Partitions() {
		b.subscribePartitionCommands(p)
	}
}

func (b *Bridge) subscribePartitionCommands(p *panel.Partition) {
	uid := sanitizeIdentifier(p.UniqueID)
	topic := partitionCommandTopic(b.cfg.TopicRoot, b.cfg.PanelID, uid)
	index := p.Index
	b.client.Subscribe(topic, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		payload := append([]byte(nil), msg.Payload()...)
		go b.handleCommand(index, payload)
	})
}

// subscribeHARestart republishes discovery and current state when Home
// Assistant comes back online, without re-syncing the panel.
func (b *Bridge) subscribeHARestart() {
	b.client.Subscribe("homeassistant/status", 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		if strings.TrimSpace(string(msg.Payload())) != "online" {
			return
		}
		b.logger.Info("Home Assistant restarted, republishing discovery and state")
		b.publishAvailability("online")
		b.publishAllDiscovery()
	})
}

// handleCommand runs on its own goroutine, spawned by the paho subscription
// callback so the callback itself returns immediately without blocking on
// command completion. It never touches the panel model directly, only the
// Controller's exported, goroutine-safe Disarm/ArmHome/ArmAway methods,
// which enqueue onto the main loop.
func (b *Bridge) handleCommand(partitionIndex int, payload []byte) {
	cmd := strings.TrimSpace(strings.ToUpper(string(payload)))
	ctx, cancel := context.WithTimeout(b.ctx, 10*time.Second)
	defer cancel()

	var err error
	switch cmd {
	case "DISARM":
		err = b.ctrl.Disarm(ctx, partitionIndex, b.cfg.Auth)
	case "ARM_HOME":
		err = b.ctrl.ArmHome(ctx, partitionIndex, b.cfg.Auth)
	case "ARM_AWAY":
		err = b.ctrl.ArmAway(ctx, partitionIndex, b.cfg.Auth)
	default:
		b.logger.Warn("unrecognized partition command", "partition", partitionIndex, "payload", cmd)
		return
	}
	if err != nil {
		b.logger.Warn("partition command failed", "partition", partitionIndex, "command", cmd, "err", err)
	}
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	token := b.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}
