// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package masterflex

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Direction is the pump rotation
type Direction string

const (
	Clockwise        Direction = "cw"
	CounterClockwise Direction = "ccw"
)

// ParseDirection accepts "cw" or "ccw" in any case
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case Clockwise:
		return Clockwise, nil
	case CounterClockwise:
		return CounterClockwise, nil
	}
	return "", newValidationError(s, "Invalid param. Valid inputs: 'cw' or 'ccw'")
}

// DispenseMode selects continuous running or timed dispensing
type DispenseMode string

const (
	DispenseContinuous DispenseMode = "continuous"
	DispenseTime       DispenseMode = "time"
)

// ParseDispenseMode accepts "continuous" or "time"
func ParseDispenseMode(s string) (DispenseMode, error) {
	switch DispenseMode(strings.ToLower(strings.TrimSpace(s))) {
	case DispenseContinuous:
		return DispenseContinuous, nil
	case DispenseTime:
		return DispenseTime, nil
	}
	return "", newValidationError(s, "Invalid param. Valid inputs: 'continuous' or 'time'")
}

// FormatFullTime renders d as HH:MM:SS.D, truncated to tenths
func FormatFullTime(d time.Duration) string {
	tenths := int64(d / (100 * time.Millisecond))
	h := tenths / 36000
	m := tenths / 600 % 60
	s := tenths / 10 % 60
	return fmt.Sprintf("%02d:%02d:%02d.%d", h, m, s, tenths%10)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// invalidOperation turns a rejected typed argument into the result Invoke
// would have produced
func invalidOperation(cmd Command, err error) (Result, error) {
	if verr, ok := err.(*ValidationError); ok {
		verr.Command = cmd
		return verr.Result(), nil
	}
	return Result{}, err
}

// Enable puts the pump under serial control
func (c *Client) Enable(ctx context.Context) (Result, error) {
	return c.Invoke(ctx, CmdEnable)
}

// Disable returns the pump to local control
func (c *Client) Disable(ctx context.Context) (Result, error) {
	return c.Invoke(ctx, CmdDisable)
}

// Status queries address, motor state and direction
func (c *Client) Status(ctx context.Context) (Result, error) {
	return c.Invoke(ctx, CmdStatus)
}

// StatusAt queries the pump at address without changing the client address
func (c *Client) StatusAt(ctx context.Context, address int) (Result, error) {
	if address < MinAddress || address > MaxAddress {
		return Result{}, fmt.Errorf("pump address %d out of range %d-%d", address, MinAddress, MaxAddress)
	}
	return c.do(ctx, Request{Command: CmdStatus, Mode: ModeQuery}, address)
}

// Discover sends STATUS to every pump address in turn and returns the
// addresses that answered with status data. A timeout means nothing is at
// that address; any other failure ends the scan.
func (c *Client) Discover(ctx context.Context) ([]int, error) {
	var found []int
	for addr := MinAddress; addr <= MaxAddress; addr++ {
		res, err := c.StatusAt(ctx, addr)
		switch {
		case errors.Is(err, ErrTimeout):
		case err != nil:
			return found, err
		case res.IsData():
			found = append(found, addr)
		}
	}
	return found, nil
}

func (c *Client) Start(ctx context.Context) (Result, error) {
	return c.Invoke(ctx, CmdStart)
}

func (c *Client) Stop(ctx context.Context) (Result, error) {
	return c.Invoke(ctx, CmdStop)
}

// SetDirection selects the rotation
func (c *Client) SetDirection(ctx context.Context, dir Direction) (Result, error) {
	switch dir {
	case Clockwise:
		return c.Invoke(ctx, CmdDirCW)
	case CounterClockwise:
		return c.Invoke(ctx, CmdDirCCW)
	}
	_, err := ParseDirection(string(dir))
	return invalidOperation(CmdDirCW, err)
}

// SetAddress assigns a new address. The client follows the pump to it once
// the change is acknowledged.
func (c *Client) SetAddress(ctx context.Context, address int) (Result, error) {
	return c.Invoke(ctx, CmdSetAddress, strconv.Itoa(address))
}

func (c *Client) SpeedPercent(ctx context.Context) (Result, error) {
	return c.Invoke(ctx, CmdSpeedPercent)
}

// SetSpeedPercent sets speed as a percentage of maximum, 0 to 100
func (c *Client) SetSpeedPercent(ctx context.Context, percent float64) (Result, error) {
	return c.Invoke(ctx, CmdSpeedPercent, formatFloat(percent))
}

func (c *Client) SpeedRPM(ctx context.Context) (Result, error) {
	return c.Invoke(ctx, CmdSpeedRPM)
}

// SetSpeedRPM sets speed in revolutions per minute, up to 9999.99
func (c *Client) SetSpeedRPM(ctx context.Context, rpm float64) (Result, error) {
	return c.Invoke(ctx, CmdSpeedRPM, formatFloat(rpm))
}

// Volume queries the cumulative volume dispensed
func (c *Client) Volume(ctx context.Context) (Result, error) {
	return c.Invoke(ctx, CmdVolume)
}

// VolumeRev queries the volume dispensed per revolution
func (c *Client) VolumeRev(ctx context.Context) (Result, error) {
	return c.Invoke(ctx, CmdVolumeRev)
}

func (c *Client) UnitIndex(ctx context.Context) (Result, error) {
	return c.Invoke(ctx, CmdUnitIndex)
}

// SetUnitIndex selects the flow unit, 1 to 32
func (c *Client) SetUnitIndex(ctx context.Context, index int) (Result, error) {
	return c.Invoke(ctx, CmdUnitIndex, strconv.Itoa(index))
}

func (c *Client) ResetCumulative(ctx context.Context) (Result, error) {
	return c.Invoke(ctx, CmdResetCumulative)
}

// SetPanelActive enables or locks out the front panel keys
func (c *Client) SetPanelActive(ctx context.Context, active bool) (Result, error) {
	if active {
		return c.Invoke(ctx, CmdPanelActive)
	}
	return c.Invoke(ctx, CmdPanelInactive)
}

func (c *Client) SetDispenseMode(ctx context.Context, mode DispenseMode) (Result, error) {
	switch mode {
	case DispenseContinuous:
		return c.Invoke(ctx, CmdDispenseContinuous)
	case DispenseTime:
		return c.Invoke(ctx, CmdDispenseTime)
	}
	_, err := ParseDispenseMode(string(mode))
	return invalidOperation(CmdDispenseContinuous, err)
}

// OnTime queries the dispense on-time as HH:MM:SS.X
func (c *Client) OnTime(ctx context.Context) (Result, error) {
	return c.Invoke(ctx, CmdOnTimeFull)
}

// SetOnTime accepts HH:MM:SS.D
func (c *Client) SetOnTime(ctx context.Context, hhmmss string) (Result, error) {
	return c.Invoke(ctx, CmdOnTimeFull, hhmmss)
}

func (c *Client) OffTime(ctx context.Context) (Result, error) {
	return c.Invoke(ctx, CmdOffTimeFull)
}

// SetOffTime accepts HH:MM:SS.D
func (c *Client) SetOffTime(ctx context.Context, hhmmss string) (Result, error) {
	return c.Invoke(ctx, CmdOffTimeFull, hhmmss)
}

func (c *Client) OnTimeDeciseconds(ctx context.Context) (Result, error) {
	return c.Invoke(ctx, CmdOnTimeDecisec)
}

func (c *Client) SetOnTimeDeciseconds(ctx context.Context, ds int) (Result, error) {
	return c.Invoke(ctx, CmdOnTimeDecisec, strconv.Itoa(ds))
}

func (c *Client) SetOnTimeMinutes(ctx context.Context, minutes int) (Result, error) {
	return c.Invoke(ctx, CmdSetOnTimeMinutes, strconv.Itoa(minutes))
}

func (c *Client) SetOnTimeHours(ctx context.Context, hours int) (Result, error) {
	return c.Invoke(ctx, CmdSetOnTimeHours, strconv.Itoa(hours))
}

// DispenseStatus reports whether a timed dispense is running
func (c *Client) DispenseStatus(ctx context.Context) (Result, error) {
	return c.Invoke(ctx, CmdDispenseStatus)
}

func (c *Client) SoftwareVersion(ctx context.Context) (Result, error) {
	return c.Invoke(ctx, CmdSoftwareVersion)
}

func (c *Client) ModelAndVersion(ctx context.Context) (Result, error) {
	return c.Invoke(ctx, CmdModelAndVersion)
}

// StoreConfigs saves the current settings to pump memory
func (c *Client) StoreConfigs(ctx context.Context) (Result, error) {
	return c.Invoke(ctx, CmdStoreConfigs)
}

func (c *Client) RestoreConfigs(ctx context.Context) (Result, error) {
	return c.Invoke(ctx, CmdRestoreConfigs)
}

// BatchCount queries completed batches against the batch total
func (c *Client) BatchCount(ctx context.Context) (Result, error) {
	return c.Invoke(ctx, CmdBatchCount)
}

// SetBatchTotal sets the number of batches to dispense, 0 to 99999
func (c *Client) SetBatchTotal(ctx context.Context, total int) (Result, error) {
	return c.Invoke(ctx, CmdBatchCount, strconv.Itoa(total))
}

func (c *Client) ResetBatchCount(ctx context.Context) (Result, error) {
	return c.Invoke(ctx, CmdResetBatchCount)
}
