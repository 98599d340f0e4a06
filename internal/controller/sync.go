package controller

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"caddx-mqtt-controller/internal/protocol"
)

// sync runs the fixed startup sequence: Interface Configuration (validated
// against the required/advisory flag sets), System Status (discovers active
// partitions), per-zone Name + Status for every configured zone, and
// finally Set Clock/Calendar, whose failure is logged and does not fail
// sync. It populates c.model but does not mark it Synced; the caller does
// that once sync returns successfully.
func (c *Controller) sync(ctx context.Context, numConfiguredZones int) error {
	if err := c.syncInterfaceConfig(ctx); err != nil {
		return err
	}
	if err := c.syncSystemStatus(ctx); err != nil {
		return err
	}
	if err := c.syncPartitionStatuses(ctx); err != nil {
		return err
	}
	for i := 1; i <= numConfiguredZones; i++ {
		if c.ignoredZones[i] {
			continue
		}
		if err := c.syncZone(ctx, i); err != nil {
			return fmt.Errorf("zone %d: %w", i, err)
		}
	}
	if err := c.syncClock(ctx); err != nil {
		c.logger.Warn("set clock/calendar failed; continuing sync", "err", err)
	}
	return nil
}

// PanelMisconfiguredError reports that the panel's own Interface
// Configuration lacks a message type this system requires to operate.
type PanelMisconfiguredError struct {
	Missing string
}

func (e *PanelMisconfiguredError) Error() string {
	return fmt.Sprintf("panel misconfigured: required interface flag not enabled: %s", e.Missing)
}

func (c *Controller) syncInterfaceConfig(ctx context.Context) error {
	resp, err := c.enqueueDirect(ctx, protocol.MsgInterfaceConfigReq, nil, protocol.MsgInterfaceConfigRsp)
	if err != nil {
		return fmt.Errorf("interface config request: %w", err)
	}
	body := resp.body

	firmware := trimASCII(body[0:4])
	transitionFlags := binary.LittleEndian.Uint16(body[4:6])
	requestFlags := binary.LittleEndian.Uint32(body[6:10])

	if transitionFlags&protocol.RequiredTransitionFlags != protocol.RequiredTransitionFlags {
		return &PanelMisconfiguredError{Missing: "transition message flags"}
	}
	if requestFlags&protocol.AdvisoryRequestFlags != protocol.AdvisoryRequestFlags {
		c.logger.Warn("panel under-reports supported request types; proceeding anyway",
			"want", protocol.AdvisoryRequestFlags, "got", requestFlags)
	}

	c.logger.Info("panel interface configuration accepted", "firmware", firmware)
	return nil
}

func (c *Controller) syncSystemStatus(ctx context.Context) error {
	resp, err := c.enqueueDirect(ctx, protocol.MsgSystemStatusReq, nil, protocol.MsgSystemStatusRsp)
	if err != nil {
		return fmt.Errorf("system status request: %w", err)
	}
	c.applySystemStatus(resp.body)
	return nil
}

// syncPartitionStatuses requests a status frame for every partition that
// System Status reported active, populating each one's condition flags
// before sync completes.
func (c *Controller) syncPartitionStatuses(ctx context.Context) error {
	for _, p := range c.model.Partitions() {
		panelIndex := serverPartitionToPanel(p.Index)
		resp, err := c.enqueueDirect(ctx, protocol.MsgPartitionStatusReq, []byte{byte(panelIndex)}, protocol.MsgPartitionStatusRsp)
		if err != nil {
			return fmt.Errorf("partition %d status request: %w", p.Index, err)
		}
		c.applyPartitionStatus(resp.body)
	}
	return nil
}

func (c *Controller) syncZone(ctx context.Context, serverIndex int) error {
	panelIndex := serverZoneToPanel(serverIndex)

	nameResp, err := c.enqueueDirect(ctx, protocol.MsgZoneNameReq, []byte{byte(panelIndex)}, protocol.MsgZoneNameRsp)
	if err != nil {
		return fmt.Errorf("zone name request: %w", err)
	}
	name, empty := parseZoneName(nameResp.body[1:17])
	if empty {
		return nil
	}
	if _, err := c.model.AddZone(serverIndex, name); err != nil {
		return fmt.Errorf("register zone: %w", err)
	}

	statusResp, err := c.enqueueDirect(ctx, protocol.MsgZoneStatusReq, []byte{byte(panelIndex)}, protocol.MsgZoneStatusRsp)
	if err != nil {
		return fmt.Errorf("zone status request: %w", err)
	}
	c.applyZoneStatus(statusResp.body)
	return nil
}

// syncClock sends the panel's current-time sync once, using an explicit
// seconds byte (a 7-byte body, catalog length 8 with the type byte, one
// wider than the reference implementation's 6-byte body, which omits
// seconds).
func (c *Controller) syncClock(ctx context.Context) error {
	now := time.Now()
	body := []byte{
		byte(now.Year() - 2000),
		byte(now.Month()),
		byte(now.Day()),
		byte(now.Hour()),
		byte(now.Minute()),
		correctedWeekday(now.Weekday()),
		byte(now.Second()),
	}
	if _, err := c.enqueueDirect(ctx, protocol.MsgSetClockCalendar, body, protocol.MsgACK); err != nil {
		return fmt.Errorf("set clock/calendar: %w", err)
	}
	return nil
}

// correctedWeekday maps Go's time.Weekday (Sunday=0) to the panel's
// expected encoding (Monday=1 ... Sunday=7).
func correctedWeekday(w time.Weekday) byte {
	if w == time.Sunday {
		return 7
	}
	return byte(w)
}

func trimASCII(b []byte) string {
	end := len(b)
	for end > 0 && (b[end-1] == 0 || b[end-1] == ' ') {
		end--
	}
	return string(b[:end])
}
