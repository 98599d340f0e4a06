//go:build no_automation

package main

import (
	"log/slog"

	"caddx-mqtt-controller/internal/bus"
)

type autoStopper struct{}

func (a *autoStopper) Stop() {}

func initAutomation(_ *bus.Bus, _ *Config, _ *slog.Logger) *autoStopper {
	return &autoStopper{}
}
