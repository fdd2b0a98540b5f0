// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package masterflex

import (
	"fmt"
	"sort"
	"strings"
)

// Command identifies one pump opcode
type Command int

// Supported commands
const (
	CmdEnable Command = iota
	CmdDisable
	CmdStatus
	CmdStart
	CmdStop
	CmdDirCW
	CmdDirCCW
	CmdSpeedRPM
	CmdSpeedPercent
	CmdSetAddress
	CmdVolume
	CmdVolumeRev
	CmdUnitIndex
	CmdResetCumulative
	CmdDispenseStatus
	CmdPanelActive
	CmdPanelInactive
	CmdDispenseContinuous
	CmdDispenseTime
	CmdOnTimeDecisec
	CmdSetOnTimeMinutes
	CmdSetOnTimeHours
	CmdOnTimeFull
	CmdOffTimeFull
	CmdBatchCount
	CmdResetBatchCount
	CmdSoftwareVersion
	CmdModelAndVersion
	CmdStoreConfigs
	CmdRestoreConfigs

	commandCount
)

// Mode is the set of ways a command can be sent
type Mode uint8

const (
	// ModeQuery expects a data payload in reply
	ModeQuery Mode = 1 << iota
	// ModeMutate expects a single acknowledgement character in reply
	ModeMutate
)

// Dual commands are queries without a parameter and mutations with one.
const modeDual = ModeQuery | ModeMutate

func (m Mode) String() string {
	switch m {
	case ModeQuery:
		return "query"
	case ModeMutate:
		return "mutate"
	case modeDual:
		return "query|mutate"
	default:
		return "none"
	}
}

// paramRule validates a caller parameter and returns the wire payload
type paramRule func(param string) (string, *ValidationError)

// decodeRule interprets a query reply
type decodeRule func(reply string) Result

// commandSpec is one row of the dispatch table
type commandSpec struct {
	label    string // upper case name used in logs
	name     string // console name
	token    string
	modes    Mode
	fixed    string // payload for parameterless mutations (enable/disable)
	noPrefix bool   // frame omits the address digit
	param    paramRule
	decode   decodeRule
}

var commandTable = [commandCount]commandSpec{
	CmdEnable:             {label: "ENABLE", name: "enable", token: "RE", modes: ModeMutate, fixed: "1"},
	CmdDisable:            {label: "DISABLE", name: "disable", token: "RE", modes: ModeMutate, fixed: "0"},
	CmdStatus:             {label: "STATUS", name: "status", token: "RC", modes: ModeQuery, decode: decodeStatus},
	CmdStart:              {label: "START", name: "start", token: "H", modes: ModeMutate},
	CmdStop:               {label: "STOP", name: "stop", token: "I", modes: ModeMutate},
	CmdDirCW:              {label: "DIR_CW", name: "dir-cw", token: "J", modes: ModeMutate},
	CmdDirCCW:             {label: "DIR_CCW", name: "dir-ccw", token: "K", modes: ModeMutate},
	CmdSpeedRPM:           {label: "SPEEDR", name: "speedr", token: "R", modes: modeDual, param: normalizeSpeedRPM, decode: decodeSpeedRPM},
	CmdSpeedPercent:       {label: "SPEEDP", name: "speedp", token: "S", modes: modeDual, param: normalizeSpeedPercent, decode: decodeSpeedPercent},
	CmdSetAddress:         {label: "SET_ADDR", name: "id", token: "@", modes: ModeMutate, noPrefix: true, param: normalizeAddress},
	CmdVolume:             {label: "VOLUME", name: "volume", token: ":", modes: ModeQuery, decode: decodeVolume},
	CmdVolumeRev:          {label: "VOLUME_REV", name: "volume-rev", token: "RB", modes: ModeQuery, decode: decodeVolume},
	CmdUnitIndex:          {label: "UNIT_INDEX", name: "unit-index", token: "RA", modes: modeDual, param: normalizeUnitIndex, decode: decodeUnitIndex},
	CmdResetCumulative:    {label: "RESET_CUMULATIVE", name: "reset-cumulative", token: "W", modes: ModeMutate},
	CmdDispenseStatus:     {label: "DISPENSE_STATUS", name: "dispense-status", token: "E", modes: ModeQuery, decode: decodeDispenseStatus},
	CmdPanelActive:        {label: "SET_PANEL_ACTIVE", name: "panel-active", token: "A", modes: ModeMutate},
	CmdPanelInactive:      {label: "SET_PANEL_INACTIVE", name: "panel-inactive", token: "B", modes: ModeMutate},
	CmdDispenseContinuous: {label: "SET_DISPENSE_CONTINUOUS", name: "mode-continuous", token: "L", modes: ModeMutate},
	CmdDispenseTime:       {label: "SET_DISPENSE_TIME", name: "mode-time", token: "N", modes: ModeMutate},
	CmdOnTimeDecisec:      {label: "ON_TIME_DECISEC", name: "on-time-ds", token: "V", modes: modeDual, param: normalizeOnTimeDecisec, decode: decodeOnTimeDecisec},
	CmdSetOnTimeMinutes:   {label: "SET_ON_TIME_MIN", name: "on-time-m", token: "VM", modes: ModeMutate, param: normalizeOnTimeMinutes},
	CmdSetOnTimeHours:     {label: "SET_ON_TIME_HR", name: "on-time-hr", token: "VH", modes: ModeMutate, param: normalizeOnTimeHours},
	CmdOnTimeFull:         {label: "ON_TIME_FULL", name: "on-time", token: "VT", modes: modeDual, param: normalizeFullTime, decode: decodeOnTimeFull},
	CmdOffTimeFull:        {label: "OFF_TIME_FULL", name: "off-time", token: "T", modes: modeDual, param: normalizeFullTime, decode: decodeOffTimeFull},
	CmdBatchCount:         {label: "BATCH_COUNT", name: "batch-count", token: "U", modes: modeDual, param: normalizeBatchTotal, decode: decodeBatchCount},
	CmdResetBatchCount:    {label: "RESET_BATCH_COUNT", name: "reset-batch", token: "UW", modes: ModeMutate},
	CmdSoftwareVersion:    {label: "GET_SOFTWARE_VERSION", name: "software-version", token: "(", modes: ModeQuery, decode: decodeSoftwareVersion},
	CmdModelAndVersion:    {label: "MODEL_AND_VERSION", name: "model-serial-version", token: "#", modes: ModeQuery, decode: decodeModelAndVersion},
	CmdStoreConfigs:       {label: "STORE_CONFIGS", name: "store-configs", token: "XS", modes: ModeMutate},
	CmdRestoreConfigs:     {label: "RESTORE_CONFIGS", name: "restore-configs", token: "XR", modes: ModeMutate},
}

// commandAliases maps extra console words onto commands
var commandAliases = map[string]Command{
	"batch-total": CmdBatchCount,
	"set-addr":    CmdSetAddress,
}

func (c Command) spec() (commandSpec, bool) {
	if c < 0 || c >= commandCount {
		return commandSpec{}, false
	}
	return commandTable[c], true
}

// String returns the protocol label for the command
func (c Command) String() string {
	if s, ok := c.spec(); ok {
		return s.label
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(c))
}

// Name returns the console name of the command
func (c Command) Name() string {
	if s, ok := c.spec(); ok {
		return s.name
	}
	return ""
}

// Token returns the wire opcode token
func (c Command) Token() string {
	if s, ok := c.spec(); ok {
		return s.token
	}
	return ""
}

// Modes returns the ways the command can be sent
func (c Command) Modes() Mode {
	if s, ok := c.spec(); ok {
		return s.modes
	}
	return 0
}

// TakesParam reports whether the command accepts a caller parameter
func (c Command) TakesParam() bool {
	s, ok := c.spec()
	return ok && s.param != nil
}

// Valid reports whether c is a known command
func (c Command) Valid() bool {
	_, ok := c.spec()
	return ok
}

// ParseCommand looks up a command by console name, alias or label
func ParseCommand(name string) (Command, error) {
	name = strings.TrimSpace(name)
	if cmd, ok := commandAliases[strings.ToLower(name)]; ok {
		return cmd, nil
	}
	for i := Command(0); i < commandCount; i++ {
		s := commandTable[i]
		if strings.EqualFold(name, s.name) || strings.EqualFold(name, s.label) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown command: %s", name)
}

// Commands returns every supported command in table order
func Commands() []Command {
	cmds := make([]Command, 0, commandCount)
	for i := Command(0); i < commandCount; i++ {
		cmds = append(cmds, i)
	}
	return cmds
}

// CommandNames returns the sorted console names, aliases included
func CommandNames() []string {
	names := make([]string, 0, int(commandCount)+len(commandAliases))
	for i := Command(0); i < commandCount; i++ {
		names = append(names, commandTable[i].name)
	}
	for alias := range commandAliases {
		names = append(names, alias)
	}
	sort.Strings(names)
	return names
}

// Request is a command resolved against its parameter: the mode it is sent
// in and the normalized payload
type Request struct {
	Command Command
	Mode    Mode
	Payload string
}

// NewRequest validates args for cmd. At most one parameter is accepted; its
// presence selects mutate mode on dual commands. A validation failure is
// returned as an Invalid result.
func NewRequest(cmd Command, args ...string) (Request, *Result) {
	s, ok := cmd.spec()
	if !ok {
		r := invalidResult(cmd, fmt.Sprintf("Unknown command %d", int(cmd)))
		return Request{}, &r
	}
	if len(args) > 1 {
		r := invalidResult(cmd, "Too many parameters")
		return Request{}, &r
	}

	if len(args) == 1 {
		if s.param == nil {
			r := invalidResult(cmd, fmt.Sprintf("%s does not take a parameter", s.name))
			return Request{}, &r
		}
		payload, verr := s.param(strings.TrimSpace(args[0]))
		if verr != nil {
			verr.Command = cmd
			r := verr.Result()
			return Request{}, &r
		}
		return Request{Command: cmd, Mode: ModeMutate, Payload: payload}, nil
	}

	if s.modes&ModeQuery != 0 {
		return Request{Command: cmd, Mode: ModeQuery}, nil
	}
	if s.param != nil {
		r := invalidResult(cmd, fmt.Sprintf("%s requires a parameter", s.name))
		return Request{}, &r
	}
	return Request{Command: cmd, Mode: ModeMutate, Payload: s.fixed}, nil
}
