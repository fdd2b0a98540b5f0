// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package masterflex

import "errors"

// Link and protocol errors returned by Client
var (
	// ErrNotConnected is returned when a command is invoked without a transport
	ErrNotConnected = errors.New("pump link not connected")
	// ErrLinkLost is returned when the transport drops while a command is pending
	ErrLinkLost = errors.New("pump link lost")
	// ErrTimeout is returned when no reply arrives within the response window
	ErrTimeout = errors.New("pump response timeout")
	// ErrUnsolicited reports a frame that arrived with no command pending
	ErrUnsolicited = errors.New("unsolicited frame")
)

// ValidationError reports a caller parameter that failed a range, format or
// type check. It never reaches the transport.
type ValidationError struct {
	Command Command
	Param   string
	Message string
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// Result converts the error into an Invalid result
func (v *ValidationError) Result() Result {
	return invalidResult(v.Command, v.Message)
}

func newValidationError(param, message string) *ValidationError {
	return &ValidationError{Param: param, Message: message}
}

// Normalize validates a parameter for cmd and returns the wire payload.
func Normalize(cmd Command, param string) (string, error) {
	s, ok := cmd.spec()
	if !ok || s.param == nil {
		return "", &ValidationError{Command: cmd, Param: param, Message: "Command does not take a parameter"}
	}
	payload, verr := s.param(param)
	if verr != nil {
		verr.Command = cmd
		return "", verr
	}
	return payload, nil
}
