//go:build !no_mqtt

package main

import (
	"fmt"
	"log/slog"
	"time"

	"caddx-mqtt-controller/internal/bus"
	"caddx-mqtt-controller/internal/controller"
	mqttbridge "caddx-mqtt-controller/internal/mqtt"
	"caddx-mqtt-controller/internal/status"
)

type mqttStopper struct {
	bridge *mqttbridge.Bridge
}

func (m *mqttStopper) Stop() {
	if m.bridge != nil {
		m.bridge.Stop()
	}
}

func initMQTT(ctrl *controller.Controller, b *bus.Bus, cfg *Config, statusSrv *status.Server, logger *slog.Logger) *mqttStopper {
	auth := controller.Auth{PIN: cfg.Panel.Code, UserNumber: byte(cfg.Panel.User)}

	spacing, err := time.ParseDuration(cfg.Panel.ZoneDiscoverySpacing)
	if err != nil {
		spacing = time.Second
	}

	bridge, err := mqttbridge.NewBridge(ctrl, b, mqttbridge.Config{
		Broker:             fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Host, cfg.MQTT.Port),
		Username:           cfg.MQTT.Username,
		Password:           cfg.MQTT.Password,
		TopicRoot:          cfg.MQTT.TopicRoot,
		PanelID:            cfg.Panel.UniqueID,
		Auth:               auth,
		DiscoverySpacing:   spacing,
		OnConnectionChange: statusSrv.SetBrokerConnected,
	}, logger)
	if err != nil {
		logger.Error("mqtt bridge", "err", err)
		return &mqttStopper{}
	}
	bridge.Start()
	return &mqttStopper{bridge: bridge}
}
