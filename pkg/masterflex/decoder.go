// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package masterflex

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

var motorStatusNames = map[string]string{
	"0": "stopped",
	"1": "running",
}

var directionNames = map[string]string{
	"0": "cw",
	"1": "ccw",
}

var dispenseStatusNames = map[string]string{
	"+": "running",
	"-": "stopped",
}

const (
	errInvalidDataFormat = "Invalid data format"
	errNotSupported      = "Pump data is not supported"
)

// Decode interprets a reply frame against the request it answers
func Decode(req Request, reply string) Result {
	reply = cleanFrame([]byte(reply))
	cmd := req.Command

	if req.Mode == ModeMutate {
		switch reply {
		case AckOK:
			return Result{Command: cmd, Status: StatusOK}
		case AckInvalid:
			return Result{Command: cmd, Status: StatusInvalid}
		case AckNotInSerialMode:
			return Result{Command: cmd, Status: StatusNotInSerialMode}
		default:
			return Result{Command: cmd, Status: StatusNotPumpMessage}
		}
	}

	if reply == AckNotInSerialMode {
		return Result{Command: cmd, Status: StatusNotInSerialMode}
	}

	s, ok := cmd.spec()
	if !ok || s.decode == nil {
		return invalidResult(cmd, errNotSupported)
	}
	r := s.decode(reply)
	r.Command = cmd
	return r
}

// cleanFrame trims whitespace and drops invalid UTF-8
func cleanFrame(b []byte) string {
	return strings.TrimSpace(strings.ToValidUTF8(string(b), ""))
}

func decodeStatus(reply string) Result {
	fields := strings.Split(reply, ",")
	if len(fields) != 3 {
		return invalidResult(0, errInvalidDataFormat)
	}

	addr, err := strconv.Atoi(fields[0])
	if err != nil || addr < MinAddress || addr > MaxAddress {
		return invalidResult(0, "Invalid serial address")
	}

	motor, ok := motorStatusNames[fields[1]]
	if !ok {
		return invalidResult(0, "Invalid motor status")
	}

	dir, ok := directionNames[fields[2]]
	if !ok {
		return invalidResult(0, "Invalid pump direction")
	}

	return dataResult(0, map[string]interface{}{
		FieldAddress:     fields[0],
		FieldMotorStatus: motor,
		FieldDirection:   dir,
	})
}

func decodeSpeedPercent(reply string) Result {
	speed, err := strconv.ParseFloat(reply, 64)
	if err != nil {
		return invalidResult(0, errInvalidDataFormat)
	}
	whole := math.Trunc(speed)
	if !(whole >= 0 && whole <= maxSpeedPercent) {
		return invalidResult(0, "Invalid percentage value")
	}
	return dataResult(0, map[string]interface{}{
		FieldSpeed: speed,
		FieldUnit:  UnitPercent,
	})
}

func decodeSpeedRPM(reply string) Result {
	speed, err := strconv.ParseFloat(reply, 64)
	if err != nil {
		return invalidResult(0, errInvalidDataFormat)
	}
	return dataResult(0, map[string]interface{}{
		FieldSpeed: speed,
		FieldUnit:  UnitRPM,
	})
}

// decodeVolume parses "<number> <unit>"
func decodeVolume(reply string) Result {
	parts := strings.Split(reply, " ")
	if len(parts) != 2 {
		return invalidResult(0, errInvalidDataFormat)
	}
	volume, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return invalidResult(0, errInvalidDataFormat)
	}
	unit := parts[1]
	if unit == "" || isNumeric(unit) {
		return invalidResult(0, errInvalidDataFormat)
	}
	return dataResult(0, map[string]interface{}{
		FieldVolume: volume,
		FieldUnit:   unit,
	})
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

func decodeUnitIndex(reply string) Result {
	index, err := strconv.Atoi(reply)
	if err != nil {
		return invalidResult(0, errInvalidDataFormat)
	}
	return dataResult(0, map[string]interface{}{FieldIndex: index})
}

func decodeOnTimeFull(reply string) Result {
	return dataResult(0, map[string]interface{}{
		FieldOnTime: reply,
		FieldUnit:   UnitFullTime,
	})
}

func decodeOffTimeFull(reply string) Result {
	return dataResult(0, map[string]interface{}{
		FieldOffTime: reply,
		FieldUnit:    UnitFullTime,
	})
}

func decodeOnTimeDecisec(reply string) Result {
	v, err := strconv.Atoi(reply)
	if err != nil {
		return invalidResult(0, errInvalidDataFormat)
	}
	return dataResult(0, map[string]interface{}{
		FieldOnTime: v,
		FieldUnit:   UnitDecisec,
	})
}

func decodeSoftwareVersion(reply string) Result {
	return dataResult(0, map[string]interface{}{FieldVersion: reply})
}

// decodeModelAndVersion parses "<model> <serial comm version>"
func decodeModelAndVersion(reply string) Result {
	parts := strings.Split(reply, " ")
	if len(parts) != 2 {
		return invalidResult(0, errInvalidDataFormat)
	}
	version, err := strconv.Atoi(parts[1])
	if err != nil {
		return invalidResult(0, errInvalidDataFormat)
	}
	return dataResult(0, map[string]interface{}{
		FieldModel:             parts[0],
		FieldSerialCommVersion: version,
	})
}

func decodeDispenseStatus(reply string) Result {
	status, ok := dispenseStatusNames[reply]
	if !ok {
		return invalidResult(0, "Invalid motor status")
	}
	return dataResult(0, map[string]interface{}{FieldStatus: status})
}

// decodeBatchCount parses "<count>/<total>"
func decodeBatchCount(reply string) Result {
	parts := strings.Split(reply, "/")
	if len(parts) != 2 {
		return invalidResult(0, errInvalidDataFormat)
	}
	count, err := strconv.Atoi(parts[0])
	if err != nil {
		return invalidResult(0, errInvalidDataFormat)
	}
	total, err := strconv.Atoi(parts[1])
	if err != nil {
		return invalidResult(0, errInvalidDataFormat)
	}
	return dataResult(0, map[string]interface{}{
		FieldCount: count,
		FieldTotal: total,
	})
}
