// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Peristat - Masterflex Peristaltic Pump Controller
//
// A CLI tool for driving Masterflex pumps over their serial command protocol
// and watching the exchange in human-readable format.

package main

import (
	"os"

	"github.com/Thermoquad/peristat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
