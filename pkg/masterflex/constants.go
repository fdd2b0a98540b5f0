// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package masterflex implements the Masterflex serial protocol used by
// peristaltic pump drives.
//
// The protocol is ASCII request/response over a duplex serial link. Every
// outgoing frame is <address><token><payload>\r. The pump answers a mutate
// command with a single acknowledgement character and a query command with a
// text payload. Frames carry no request identifiers, so only one command may
// be in flight at a time; Client enforces that and pairs each command with the
// next inbound frame.
package masterflex

import "time"

// Frame delimiters
const (
	CR = '\r'
	LF = '\n'
)

// Acknowledgement characters sent in reply to mutate commands
const (
	AckOK                = "*"
	AckInvalid           = "#"
	AckNotInSerialMode   = "~"
	delimiters           = "\r\n"
	maxFrameBufferLength = 4096
)

// Pump address range
const (
	MinAddress     = 1
	MaxAddress     = 8
	DefaultAddress = 1
)

// Timing defaults
const (
	DefaultDiscardTimeout  = 2 * time.Second
	DefaultResponseTimeout = 3 * time.Second
)

// Units reported in decoded results
const (
	UnitPercent  = "%"
	UnitRPM      = "rpm"
	UnitFullTime = "HH:MM:SS.X"
	UnitDecisec  = "1/10 sec"
)

// Parameter ranges
const (
	maxSpeedPercent    = 100.0
	maxSpeedRPM        = 9999.99
	maxUnitIndex       = 32
	maxOnTimeMinutes   = 999
	maxOnTimeHours     = 99
	maxOnTimeDecisec   = 9999
	maxBatchTotal      = 99999
	maxFullTimeDecisec = 3599999 // 99:59:59.9
)
