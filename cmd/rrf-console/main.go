// rrf-console talks to a running firmware over its serial host link:
// one-shot commands, an interactive console, and G-code file upload,
// all using the numbered-line checksum protocol so a noisy link gets
// resend requests instead of corrupted moves.
//
// Connection defaults come from flags, the environment (RRF_PORT,
// RRF_BAUD) or a .env file in the working directory, in that order.
//
// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	portName string
	baudRate int
	quiet    bool
)

var rootCmd = &cobra.Command{
	Use:   "rrf-console",
	Short: "Serial console for the RepRap firmware host link",
	Long: `rrf-console sends G-code to a running firmware over its serial host
link. Lines are numbered and checksummed; the firmware answers "ok"
or asks for a resend, and the console retransmits from its history.

Connection:
  --port /dev/ttyACM0 [--baud 115200]

The port and baud rate can also come from the RRF_PORT and RRF_BAUD
environment variables or a .env file in the working directory.`,
}

func init() {
	// A missing .env is fine; flags and the environment still apply.
	godotenv.Load()

	defaultPort := os.Getenv("RRF_PORT")
	defaultBaud := 115200
	if s := os.Getenv("RRF_BAUD"); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			defaultBaud = v
		}
	}

	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", defaultPort, "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", defaultBaud, "Baud rate")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress firmware chatter, print replies only")

	rootCmd.AddCommand(sendCmd, consoleCmd, uploadCmd, portsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
