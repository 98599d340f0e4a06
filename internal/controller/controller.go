// Package controller owns the NX-584 panel connection: the command queue,
// ACK/response matching, startup sync, and transition-message dispatch.
// It is the single writer of the panel.Model it owns.
package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"caddx-mqtt-controller/internal/bus"
	"caddx-mqtt-controller/internal/panel"
	"caddx-mqtt-controller/internal/protocol"
)

const (
	ackTimeout      = 1 * time.Second
	retryBackoff    = 250 * time.Millisecond
	maxRetries      = 3
	DefaultNumZones = 192
	numPartitions   = 8

	// republishInterval is how often the steady-state loop emits
	// bus.RepublishTick so subscribers (the MQTT bridge) rebroadcast
	// current partition/zone states for broker-restart resilience.
	republishInterval = 60 * time.Minute
)

// rxFrame is one decoded frame handed from the read loop to the main loop.
type rxFrame struct {
	msgType      protocol.MsgType
	ackRequested bool
	body         []byte
}

// Controller drains frames from the panel's serial link, runs the command
// queue, keeps panel.Model up to date, and publishes transitions on the
// event bus. Run must only be invoked once; its other exported methods are
// safe to call from any goroutine.
type Controller struct {
	conn   io.ReadWriteCloser
	rd     *protocol.Reader
	logger *slog.Logger

	model    *panel.Model
	bus      *bus.Bus
	numZones int

	cmdCh    chan *command
	incoming chan rxFrame
	readErrs chan error

	ignoredZones map[int]bool

	mu     sync.Mutex
	closed bool
}

// New creates a Controller bound to an already-open connection (typically a
// go.bug.st/serial.Port). panelID seeds every entity's unique ID; numZones
// bounds how many zones are interrogated during startup sync.
func New(conn io.ReadWriteCloser, panelID string, numZones int, b *bus.Bus, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		conn:     conn,
		rd:       protocol.NewReader(conn),
		logger:   logger,
		model:    panel.NewModel(panelID),
		bus:      b,
		numZones: numZones,
		cmdCh:    make(chan *command),
		incoming: make(chan rxFrame, 32),
		readErrs: make(chan error, 1),
	}
}

// Model returns the panel registry. Callers outside the Controller's own
// goroutine must treat it as read-only.
func (c *Controller) Model() *panel.Model {
	return c.model
}

// SetIgnoredZones excludes the given zone indices from startup sync: no Zone
// Name/Status request is sent for them and they never appear in the
// registry. Call before Run.
func (c *Controller) SetIgnoredZones(zones []int) {
	if len(zones) == 0 {
		return
	}
	c.ignoredZones = make(map[int]bool, len(zones))
	for _, z := range zones {
		c.ignoredZones[z] = true
	}
}

// command is a single queued request, awaiting exactly one expected
// response type (which may itself be protocol.MsgACK).
type command struct {
	msgType  protocol.MsgType
	body     []byte
	respType protocol.MsgType
	result   chan error
	response chan rxFrame
}

// abortError marks a command failure the panel explicitly signaled
// (NACK/Rejected/Failed) that must not be retried.
type abortError struct{ err error }

func (e *abortError) Error() string { return e.err.Error() }
func (e *abortError) Unwrap() error { return e.err }

var (
	errNACK     = errors.New("panel: NACK")
	errRejected = errors.New("panel: command rejected")
	errFailed   = errors.New("panel: command failed")
)

// Run drives the read loop and the sequential command processor until ctx
// is cancelled. It performs startup sync before entering the steady-state
// loop. Run blocks until ctx is done or an unrecoverable read error occurs.
func (c *Controller) Run(ctx context.Context) error {
	go c.readLoop(ctx)

	c.drainStale(ctx)

	if err := c.sync(ctx, c.numZones); err != nil {
		return fmt.Errorf("controller: startup sync: %w", err)
	}
	c.model.Synced = true
	c.bus.Emit(bus.Event{Type: bus.PanelSynced})
	c.logger.Info("panel sync complete",
		"partitions", len(c.model.Partitions()), "zones", len(c.model.Zones()))

	republishTicker := time.NewTicker(republishInterval)
	defer republishTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-c.readErrs:
			return fmt.Errorf("controller: read loop: %w", err)
		case frame := <-c.incoming:
			c.handleTransition(frame)
			if frame.ackRequested {
				c.sendAck()
			}
		case cmd := <-c.cmdCh:
			c.runCommand(ctx, cmd)
		case <-republishTicker.C:
			c.bus.Emit(bus.Event{Type: bus.RepublishTick})
		}
	}
}

// drainStale discards any frames buffered on the link from before this
// process attached, mirroring the panel's habit of replaying its last
// transition message on a fresh connection.
func (c *Controller) drainStale(ctx context.Context) {
	for {
		select {
		case <-c.incoming:
		case <-time.After(200 * time.Millisecond):
			return
		case <-ctx.Done():
			return
		}
	}
}

// readLoop continuously decodes frames off the wire and forwards them to
// incoming. It never blocks handling; a full incoming channel means the
// main loop has fallen behind and frames are dropped with a warning.
func (c *Controller) readLoop(ctx context.Context) {
	backoff := 10 * time.Millisecond
	const maxBackoff = 2 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgType, ackRequested, body, err := c.rd.ReadFrame()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			c.logger.Warn("frame read error", "err", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = 10 * time.Millisecond

		select {
		case c.incoming <- rxFrame{msgType: msgType, ackRequested: ackRequested, body: body}:
		default:
			c.logger.Warn("incoming queue full, dropping frame", "type", msgType.Name())
		}
	}
}

// enqueue builds and submits a command, blocking until it completes or ctx
// is done. It requires the main loop in Run to be draining c.cmdCh; callers
// running on any goroutine other than the one executing sync (before Run's
// loop starts) must use this, not enqueueDirect.
func (c *Controller) enqueue(ctx context.Context, msgType protocol.MsgType, body []byte, respType protocol.MsgType) (rxFrame, error) {
	cmd := &command{
		msgType:  msgType,
		body:     body,
		respType: respType,
		result:   make(chan error, 1),
		response: make(chan rxFrame, 1),
	}
	select {
	case c.cmdCh <- cmd:
	case <-ctx.Done():
		return rxFrame{}, ctx.Err()
	}
	return c.awaitCommand(ctx, cmd)
}

// enqueueDirect runs a command synchronously in the calling goroutine
// instead of handing it to the main loop via c.cmdCh. Startup sync uses
// this: sync runs before Run's for-select loop starts, so nothing is ever
// reading c.cmdCh yet, and a channel-based enqueue from sync would block
// forever waiting for a reader that doesn't exist.
func (c *Controller) enqueueDirect(ctx context.Context, msgType protocol.MsgType, body []byte, respType protocol.MsgType) (rxFrame, error) {
	cmd := &command{
		msgType:  msgType,
		body:     body,
		respType: respType,
		result:   make(chan error, 1),
		response: make(chan rxFrame, 1),
	}
	c.runCommand(ctx, cmd)
	return c.awaitCommand(ctx, cmd)
}

func (c *Controller) awaitCommand(ctx context.Context, cmd *command) (rxFrame, error) {
	select {
	case err := <-cmd.result:
		if err != nil {
			return rxFrame{}, err
		}
		return <-cmd.response, nil
	case <-ctx.Done():
		return rxFrame{}, ctx.Err()
	}
}

// runCommand sends one command and waits for its expected response,
// making at most maxRetries attempts at the whole exchange. A panel-signaled
// NACK/Rejected/Failed aborts immediately without retry, matching the
// panel's own "don't resend" contract. Any frame that arrives while
// waiting and isn't the awaited response is dispatched as a transition
// message, since the panel freely interleaves broadcasts with replies.
func (c *Controller) runCommand(ctx context.Context, cmd *command) {
	entry, ok := protocol.Catalog[cmd.msgType]
	if !ok {
		cmd.result <- fmt.Errorf("command: unknown message type %v", cmd.msgType)
		return
	}
	frame, err := protocol.WriteFrame(cmd.msgType, cmd.body, entry.ExpectsAck)
	if err != nil {
		cmd.result <- fmt.Errorf("command: %w", err)
		return
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if _, err := c.conn.Write(frame); err != nil {
			cmd.result <- fmt.Errorf("write: %w", err)
			return
		}

		resp, err := c.waitForReply(ctx, cmd)
		if err == nil {
			cmd.result <- nil
			cmd.response <- resp
			return
		}
		var abort *abortError
		if errors.As(err, &abort) {
			cmd.result <- fmt.Errorf("command %s: %w", cmd.msgType.Name(), abort)
			return
		}
		if ctx.Err() != nil {
			cmd.result <- fmt.Errorf("command %s: %w", cmd.msgType.Name(), err)
			return
		}
		lastErr = err
		c.logger.Warn("command retry", "type", cmd.msgType.Name(), "attempt", attempt+1, "err", err)
		if attempt+1 < maxRetries {
			select {
			case <-time.After(retryBackoff):
			case <-ctx.Done():
				cmd.result <- fmt.Errorf("command %s: %w", cmd.msgType.Name(), ctx.Err())
				return
			}
		}
	}
	cmd.result <- fmt.Errorf("command %s failed after %d attempts: %w", cmd.msgType.Name(), maxRetries, lastErr)
}

func (c *Controller) waitForReply(ctx context.Context, cmd *command) (rxFrame, error) {
	deadline := time.NewTimer(ackTimeout)
	defer deadline.Stop()

	for {
		select {
		case frame := <-c.incoming:
			switch frame.msgType {
			case protocol.MsgNACK:
				return rxFrame{}, &abortError{errNACK}
			case protocol.MsgRejected:
				return rxFrame{}, &abortError{errRejected}
			case protocol.MsgFailed:
				return rxFrame{}, &abortError{errFailed}
			}
			if frame.msgType == cmd.respType && !frame.ackRequested {
				return frame, nil
			}
			c.handleTransition(frame)
			if frame.ackRequested {
				c.sendAck()
			}
		case <-deadline.C:
			return rxFrame{}, fmt.Errorf("timed out waiting for reply to %s", cmd.msgType.Name())
		case <-ctx.Done():
			return rxFrame{}, ctx.Err()
		}
	}
}

// sendAck transmits a bare ACK frame in response to a broadcast that
// requested one.
func (c *Controller) sendAck() {
	frame, err := protocol.WriteFrame(protocol.MsgACK, nil, false)
	if err != nil {
		c.logger.Error("build ack frame", "err", err)
		return
	}
	if _, err := c.conn.Write(frame); err != nil {
		c.logger.Error("send ack", "err", err)
	}
}

// Close shuts down the underlying connection. Safe to call more than once.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
