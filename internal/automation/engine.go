//go:build !no_automation

package automation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"caddx-mqtt-controller/internal/bus"
	"caddx-mqtt-controller/internal/controller"

	lua "github.com/yuin/gopher-lua"
)

const defaultScriptTimeout = 2 * time.Second

// TransitionEvent is the table handed to a script's on_transition callback.
type TransitionEvent struct {
	Kind     string
	UniqueID string
	OldState string
	NewState string
}

// scriptVM is a running, sandboxed Lua state for a single script. All access
// to state goes through commands so the VM is never touched from two
// goroutines at once (gopher-lua's *LState is not safe for concurrent use).
type scriptVM struct {
	id       string
	state    *lua.LState
	commands chan func(*lua.LState)
	handler  *lua.LFunction // set by on_transition; nil if the script never calls it
	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
}

// Engine loads scripts from a Manager and dispatches partition/zone
// transitions from the event bus to each script's on_transition handler.
type Engine struct {
	bus     *bus.Bus
	manager *Manager
	logger  *slog.Logger
	timeout time.Duration

	mu        sync.Mutex
	vms       map[string]*scriptVM
	lastState map[string]string // "kind|unique_id" -> last seen state string
	unsub     func()
}

// NewEngine creates an automation engine. timeout of zero uses
// defaultScriptTimeout.
func NewEngine(b *bus.Bus, mgr *Manager, logger *slog.Logger, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = defaultScriptTimeout
	}
	return &Engine{
		bus:       b,
		manager:   mgr,
		logger:    logger.With("component", "automation"),
		timeout:   timeout,
		vms:       make(map[string]*scriptVM),
		lastState: make(map[string]string),
	}
}

// Start loads every script in the manager's directory and subscribes to the
// event bus. A script that fails to load is logged and skipped; it does not
// prevent the others from starting.
func (e *Engine) Start() {
	unsubPartition := e.bus.On(bus.PartitionTransition, e.onPartitionTransition)
	unsubZone := e.bus.On(bus.ZoneTransition, e.onZoneTransition)
	e.unsub = func() {
		unsubPartition()
		unsubZone()
	}

	scripts, err := e.manager.List()
	if err != nil {
		e.logger.Error("load scripts", "err", err)
		return
	}
	for _, s := range scripts {
		if err := e.startScript(s); err != nil {
			e.logger.Error("start script", "id", s.ID, "err", err)
		}
	}
	e.logger.Info("automation engine started", "scripts", len(e.vms))
}

// Stop cancels every running VM and unsubscribes from the bus.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, vm := range e.vms {
		vm.cancel()
		delete(e.vms, id)
	}
	if e.unsub != nil {
		e.unsub()
	}
	e.logger.Info("automation engine stopped")
}

func (e *Engine) startScript(s *Script) error {
	ctx, cancel := context.WithCancel(context.Background())

	L := lua.NewState(lua.Options{SkipOpenLibs: false})
	sandbox(L)

	vm := &scriptVM{
		id:       s.ID,
		state:    L,
		commands: make(chan func(*lua.LState), 64),
		ctx:      ctx,
		cancel:   cancel,
	}
	registerHooks(L, vm, e)

	if err := L.DoString(s.LuaCode); err != nil {
		cancel()
		L.Close()
		return fmt.Errorf("load script %s: %w", s.ID, err)
	}

	e.mu.Lock()
	e.vms[s.ID] = vm
	e.mu.Unlock()

	go func() {
		defer L.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case fn := <-vm.commands:
				fn(L)
			}
		}
	}()

	e.logger.Info("script started", "id", s.ID)
	return nil
}

// sandbox removes every binding that would let a script touch the
// filesystem, network, or process: scripts get arithmetic, strings, tables,
// and the two hooks registerHooks adds, nothing else.
func sandbox(L *lua.LState) {
	L.SetGlobal("os", lua.LNil)
	L.SetGlobal("io", lua.LNil)
	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("require", lua.LNil)
	L.SetGlobal("load", lua.LNil)
	L.SetGlobal("debug", lua.LNil)
	L.SetGlobal("package", lua.LNil)
}

// registerHooks binds the two functions a script may call: on_transition to
// register its callback, log to write through the host logger.
func registerHooks(L *lua.LState, vm *scriptVM, e *Engine) {
	L.SetGlobal("on_transition", L.NewFunction(func(L *lua.LState) int {
		fn := L.CheckFunction(1)
		vm.mu.Lock()
		vm.handler = fn
		vm.mu.Unlock()
		return 0
	}))
	L.SetGlobal("log", L.NewFunction(func(L *lua.LState) int {
		msg := L.CheckString(1)
		e.logger.Info("script log", "id", vm.id, "msg", msg)
		return 0
	}))
}

func (e *Engine) onPartitionTransition(ev bus.Event) {
	payload, ok := ev.Payload.(controller.PartitionTransitionPayload)
	if !ok {
		return
	}
	e.dispatch("partition", payload.UniqueID, payload.State.String())
}

func (e *Engine) onZoneTransition(ev bus.Event) {
	payload, ok := ev.Payload.(controller.ZoneTransitionPayload)
	if !ok {
		return
	}
	e.dispatch("zone", payload.UniqueID, zoneStateString(payload))
}

// zoneStateString summarizes a zone's three independent flags into a single
// comma-joined state string (e.g. "faulted,trouble"), or "clear" if none are
// set, so zones fit the same {kind, unique_id, old_state, new_state} shape
// partitions use.
func zoneStateString(p controller.ZoneTransitionPayload) string {
	var flags []string
	if p.Faulted {
		flags = append(flags, "faulted")
	}
	if p.Bypassed {
		flags = append(flags, "bypassed")
	}
	if p.Trouble {
		flags = append(flags, "trouble")
	}
	if len(flags) == 0 {
		return "clear"
	}
	return strings.Join(flags, ",")
}

// dispatch records the new state and, if it changed, fans the transition out
// to every script's handler on that script's own command channel.
func (e *Engine) dispatch(kind, uniqueID, newState string) {
	key := kind + "|" + uniqueID
	e.mu.Lock()
	oldState := e.lastState[key]
	if oldState == newState {
		e.mu.Unlock()
		return
	}
	e.lastState[key] = newState
	vmsCopy := make([]*scriptVM, 0, len(e.vms))
	for _, vm := range e.vms {
		vmsCopy = append(vmsCopy, vm)
	}
	e.mu.Unlock()

	evt := TransitionEvent{Kind: kind, UniqueID: uniqueID, OldState: oldState, NewState: newState}
	for _, vm := range vmsCopy {
		vm.mu.Lock()
		fn := vm.handler
		vm.mu.Unlock()
		if fn == nil {
			continue
		}
		select {
		case <-vm.ctx.Done():
			continue
		case vm.commands <- func(L *lua.LState) {
			e.callHandler(L, vm, fn, evt)
		}:
		default:
			e.logger.Warn("script command channel full, dropping event", "id", vm.id)
		}
	}
}

func (e *Engine) callHandler(L *lua.LState, vm *scriptVM, fn *lua.LFunction, evt TransitionEvent) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("script handler panic", "id", vm.id, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	L.SetContext(ctx)
	defer L.RemoveContext()

	t := L.NewTable()
	t.RawSetString("kind", lua.LString(evt.Kind))
	t.RawSetString("unique_id", lua.LString(evt.UniqueID))
	t.RawSetString("old_state", lua.LString(evt.OldState))
	t.RawSetString("new_state", lua.LString(evt.NewState))

	if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, t); err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "context deadline exceeded") {
			errStr = fmt.Sprintf("timeout (%s)", e.timeout)
		}
		e.logger.Warn("script handler error", "id", vm.id, "err", errStr)
	}
}
