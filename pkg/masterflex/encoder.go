// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package masterflex

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
)

var (
	fullTimePattern = regexp.MustCompile(`^(\d{2}):(\d{2}):(\d{2})\.(\d)$`)
	signedDigits    = regexp.MustCompile(`^-?\d+$`)
)

// BuildFrame assembles <address><token><payload>\r. When noPrefix is set the
// address digit is omitted (set-address command).
func BuildFrame(address int, token, payload string, noPrefix bool) []byte {
	frame := make([]byte, 0, 2+len(token)+len(payload))
	if !noPrefix {
		frame = strconv.AppendInt(frame, int64(address), 10)
	}
	frame = append(frame, token...)
	frame = append(frame, payload...)
	return append(frame, CR)
}

// EncodeRequest produces the wire frame for a resolved request
func EncodeRequest(address int, req Request) ([]byte, error) {
	s, ok := req.Command.spec()
	if !ok {
		return nil, fmt.Errorf("unknown command %d", int(req.Command))
	}
	if address < MinAddress || address > MaxAddress {
		return nil, fmt.Errorf("pump address %d out of range %d-%d", address, MinAddress, MaxAddress)
	}
	return BuildFrame(address, s.token, req.Payload, s.noPrefix), nil
}

// Encode validates the optional parameter and returns the wire frame. A
// parameter that fails validation yields an Invalid result and no bytes.
func Encode(cmd Command, address int, args ...string) ([]byte, *Result) {
	req, invalid := NewRequest(cmd, args...)
	if invalid != nil {
		return nil, invalid
	}
	frame, err := EncodeRequest(address, req)
	if err != nil {
		r := invalidResult(cmd, err.Error())
		return nil, &r
	}
	return frame, nil
}

//////////////////////////////////////////////////////////////
// Parameter rules
//////////////////////////////////////////////////////////////

func parseFloatParam(param string) (float64, bool) {
	v, err := strconv.ParseFloat(param, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// scaled rounds v*scale half to even and zero pads it to width digits
func scaled(v, scale float64, width int) string {
	return fmt.Sprintf("%0*d", width, int64(math.RoundToEven(v*scale)))
}

func normalizeSpeedPercent(param string) (string, *ValidationError) {
	v, ok := parseFloatParam(param)
	if !ok {
		return "", newValidationError(param, "Not a number. Speed in percent must be from 0 to 100")
	}
	if !(v >= 0 && v <= maxSpeedPercent) {
		return "", newValidationError(param, "Speed in percent must be from 0 to 100")
	}
	return scaled(v, 10, 5), nil
}

func normalizeSpeedRPM(param string) (string, *ValidationError) {
	v, ok := parseFloatParam(param)
	if !ok {
		return "", newValidationError(param, "Invalid param. Valid inputs: int or float")
	}
	if !(v > 0 && v <= maxSpeedRPM) {
		return "", newValidationError(param, "Value out of range. Pumps range in RPM: 0 to 9999.99")
	}
	return scaled(v, 100, 6), nil
}

// intRule builds a rule for integers in [min, max] padded to width digits
func intRule(min, max, width int, rangeMsg, typeMsg string) paramRule {
	return func(param string) (string, *ValidationError) {
		v, err := strconv.Atoi(param)
		if err != nil {
			return "", newValidationError(param, typeMsg)
		}
		if v < min || v > max {
			return "", newValidationError(param, rangeMsg)
		}
		return fmt.Sprintf("%0*d", width, v), nil
	}
}

var (
	normalizeUnitIndex = intRule(1, maxUnitIndex, 2,
		"Value out of range. Pumps flow unit index range: 0 to 32",
		"Invalid param. Valid inputs: integer")
	normalizeAddress = intRule(MinAddress, MaxAddress, 1,
		"Address must be between 1 and 8",
		"Not a valid number. Address must be integer between 1 and 8")
	normalizeOnTimeMinutes = intRule(1, maxOnTimeMinutes, 3,
		"Value out of range. On time in minutes: 1 to 999",
		"Invalid param. Valid inputs: integer")
	normalizeOnTimeHours = intRule(1, maxOnTimeHours, 2,
		"Value out of range. On time in hours: 1 to 99",
		"Invalid param. Valid inputs: integer")
	normalizeOnTimeDecisec = intRule(1, maxOnTimeDecisec, 4,
		"Value out of range. On time in 1/10 seconds: 1 to 9999",
		"Invalid param. Valid inputs: integer")
)

func normalizeBatchTotal(param string) (string, *ValidationError) {
	if !signedDigits.MatchString(param) {
		return "", newValidationError(param, "Invalid param. Valid inputs: integer")
	}
	v, err := strconv.Atoi(param)
	if err != nil || v < 0 || v > maxBatchTotal {
		return "", newValidationError(param, "Value out of range. Batch total: 0 to 99999")
	}
	return fmt.Sprintf("%05d", v), nil
}

// normalizeFullTime accepts HH:MM:SS.D with a total in (0, 99:59:59.9]
func normalizeFullTime(param string) (string, *ValidationError) {
	m := fullTimePattern.FindStringSubmatch(param)
	if m == nil {
		return "", newValidationError(param, "Invalid format. Valid input: HH:MM:SS.s")
	}
	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])
	tenths, _ := strconv.Atoi(m[4])

	total := ((hours*60+minutes)*60+seconds)*10 + tenths
	if total <= 0 || total > maxFullTimeDecisec {
		return "", newValidationError(param, "Value out of range. Time must be from 00:00:00.1 to 99:59:59.9")
	}
	return m[1] + m[2] + m[3] + m[4], nil
}
