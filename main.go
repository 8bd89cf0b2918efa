// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// ndirstat - MH-Z19B CO2 Sensor Tool
//
// A CLI tool for reading, monitoring and reporting the CO2 concentration
// measured by an MH-Z19B NDIR sensor over its UART.

package main

import (
	"os"

	"github.com/Thermoquad/ndirstat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
