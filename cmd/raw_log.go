// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/ndirstat/pkg/mhz19"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw sensor frames in human-readable format",
	Long: `Passively decode and display MH-Z19B frames seen on the UART.

Nothing is written to the sensor. Attach to a line shared with another host
(or a bridge that mirrors both directions) to watch its exchanges. Commands
and responses are told apart by byte 1: 0x01 is the sensor address used by
commands, anything else is the echoed command of a response.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenTransport()
	if err != nil {
		return err
	}
	if c, ok := conn.(interface{ Close() error }); ok {
		defer c.Close()
	}

	fmt.Printf("ndirstat - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder := mhz19.NewFrameDecoder()
	buf := make([]byte, 128)

	for {
		n, err := conn.ReadTimeout(buf, time.Second)
		if err != nil {
			// For WebSocket connections, a read error usually means
			// the connection is permanently closed - exit gracefully
			if errors.Is(err, ErrConnectionClosed) {
				log.Info("Connection closed")
				return nil
			}
			log.WithError(err).Warn("Read error")
			continue
		}

		for i := 0; i < n; i++ {
			frame, err := decoder.DecodeByte(buf[i])
			if err != nil {
				fmt.Printf("[%s] [ERROR] %v\n", time.Now().Format("15:04:05.000"), err)
				continue
			}
			if frame != nil {
				fmt.Printf("[%s] %s\n", time.Now().Format("15:04:05.000"), mhz19.FormatFrame(*frame))
			}
		}
	}
}
