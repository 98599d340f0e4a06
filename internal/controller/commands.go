package controller

import (
	"context"
	"fmt"

	"caddx-mqtt-controller/internal/bus"
	"caddx-mqtt-controller/internal/panel"
	"caddx-mqtt-controller/internal/protocol"
)

// Auth is the credential used to authorize an arm/disarm command: either a
// PIN (producing a 0x3C frame) or a user number (producing a 0x3D frame).
// Exactly one of PIN or UserNumber should be set.
type Auth struct {
	PIN        string
	UserNumber byte
}

// CommandFailedError reports that a queued command exhausted its retries.
type CommandFailedError struct {
	MsgType protocol.MsgType
	Err     error
}

func (e *CommandFailedError) Error() string {
	return fmt.Sprintf("command failed: %s: %v", e.MsgType.Name(), e.Err)
}

func (e *CommandFailedError) Unwrap() error { return e.Err }

// Disarm, ArmHome, and ArmAway queue a Primary Keypad Function command for
// the given 1-based server partition index, authorized with auth. They
// refuse no-op resends the same way the panel's own keypad would: calling
// Disarm on an already-disarmed partition, or Arm* on one already armed or
// arming, returns an error without emitting a frame.
func (c *Controller) Disarm(ctx context.Context, partitionIndex int, auth Auth) error {
	return c.sendKeypadFunction(ctx, partitionIndex, protocol.KeypadDisarm, auth, func(s panel.State) bool {
		return s == panel.StateDisarmed
	})
}

func (c *Controller) ArmHome(ctx context.Context, partitionIndex int, auth Auth) error {
	return c.sendKeypadFunction(ctx, partitionIndex, protocol.KeypadArmStay, auth, isArmedOrArming)
}

func (c *Controller) ArmAway(ctx context.Context, partitionIndex int, auth Auth) error {
	return c.sendKeypadFunction(ctx, partitionIndex, protocol.KeypadArmAway, auth, isArmedOrArming)
}

func isArmedOrArming(s panel.State) bool {
	return s == panel.StateArmedHome || s == panel.StateArmedAway || s == panel.StateArming
}

func (c *Controller) sendKeypadFunction(ctx context.Context, partitionIndex int, function byte, auth Auth, alreadyDone func(panel.State) bool) error {
	p, ok := c.model.Partition(partitionIndex)
	if !ok {
		return fmt.Errorf("controller: unknown partition %d", partitionIndex)
	}
	if alreadyDone(p.State()) {
		return fmt.Errorf("controller: partition %d already in state %s, ignoring command", partitionIndex, p.State())
	}

	mask := byte(1 << uint(partitionIndex-1))

	var msgType protocol.MsgType
	var body []byte
	switch {
	case auth.PIN != "":
		pin, err := protocol.PackPIN(auth.PIN)
		if err != nil {
			return fmt.Errorf("controller: %w", err)
		}
		msgType = protocol.MsgPrimaryKeypadPin
		body = append(append([]byte{}, pin...), mask, function)
	default:
		msgType = protocol.MsgPrimaryKeypadNoPin
		body = []byte{auth.UserNumber, mask, function}
	}

	if _, err := c.enqueue(ctx, msgType, body, protocol.MsgACK); err != nil {
		c.bus.Emit(bus.Event{Type: bus.CommandFailed, Payload: &CommandFailedError{MsgType: msgType, Err: err}})
		return &CommandFailedError{MsgType: msgType, Err: err}
	}
	return nil
}
