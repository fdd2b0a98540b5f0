// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package masterflex

import (
	"fmt"
	"io"
)

// LinkState is the connection state published by a connection manager
type LinkState int

const (
	LinkDisconnected LinkState = iota
	LinkConnecting
	LinkConnected
)

func (s LinkState) String() string {
	switch s {
	case LinkDisconnected:
		return "disconnected"
	case LinkConnecting:
		return "connecting"
	case LinkConnected:
		return "connected"
	default:
		return fmt.Sprintf("LinkState(%d)", int(s))
	}
}

// LinkEvent announces a connection state change. Writer is set for
// LinkConnected; Err carries the cause of a LinkDisconnected.
type LinkEvent struct {
	State  LinkState
	Writer io.Writer
	Info   string
	Err    error
}
