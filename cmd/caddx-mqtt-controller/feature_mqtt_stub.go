//go:build no_mqtt

package main

import (
	"log/slog"

	"caddx-mqtt-controller/internal/bus"
	"caddx-mqtt-controller/internal/controller"
	"caddx-mqtt-controller/internal/status"
)

type mqttStopper struct{}

func (m *mqttStopper) Stop() {}

func initMQTT(_ *controller.Controller, _ *bus.Bus, _ *Config, _ *status.Server, _ *slog.Logger) *mqttStopper {
	return &mqttStopper{}
}
