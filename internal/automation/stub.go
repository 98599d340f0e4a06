//go:build no_automation

package automation

import (
	"log/slog"
	"time"

	"caddx-mqtt-controller/internal/bus"
)

// Script is a no-op placeholder when automation is compiled out.
type Script struct {
	ID       string
	LuaCode  string
	FilePath string
}

// Manager is a no-op stub when automation is disabled.
type Manager struct{}

// NewManager returns a nil manager when automation is disabled.
func NewManager(_ string) (*Manager, error) { return nil, nil }

// List returns nil.
func (m *Manager) List() ([]*Script, error) { return nil, nil }

// Get returns nil.
func (m *Manager) Get(_ string) (*Script, error) { return nil, nil }

// Engine is a no-op stub when automation is disabled.
type Engine struct{}

// NewEngine returns a no-op engine when automation is disabled.
func NewEngine(_ *bus.Bus, _ *Manager, _ *slog.Logger, _ time.Duration) *Engine {
	return &Engine{}
}

// Start is a no-op.
func (e *Engine) Start() {}

// Stop is a no-op.
func (e *Engine) Stop() {}
