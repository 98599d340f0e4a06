//go:build !no_automation

package main

import (
	"log/slog"
	"time"

	"caddx-mqtt-controller/internal/automation"
	"caddx-mqtt-controller/internal/bus"
)

type autoStopper struct {
	engine *automation.Engine
}

func (a *autoStopper) Stop() {
	if a.engine != nil {
		a.engine.Stop()
	}
}

func initAutomation(b *bus.Bus, cfg *Config, logger *slog.Logger) *autoStopper {
	if !cfg.Automation.Enabled {
		return &autoStopper{}
	}

	mgr, err := automation.NewManager(cfg.Automation.ScriptsDir)
	if err != nil {
		logger.Error("create script manager", "err", err)
		return &autoStopper{}
	}

	engine := automation.NewEngine(b, mgr, logger, 2*time.Second)
	engine.Start()
	return &autoStopper{engine: engine}
}
