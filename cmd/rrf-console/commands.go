// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.bug.st/serial"
)

var sendCmd = &cobra.Command{
	Use:   "send <gcode>...",
	Short: "Send one or more G-code commands and wait for each ok",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.close()

		for _, line := range args {
			if err := s.send(line); err != nil {
				return err
			}
		}
		return nil
	},
}

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive G-code console",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.close()

		fmt.Printf("connected to %s at %d baud, Ctrl-D to exit\n", portName, baudRate)
		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				fmt.Println()
				return scanner.Err()
			}
			if err := s.send(scanner.Text()); err != nil {
				return err
			}
		}
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file> [remote-name]",
	Short: "Upload a G-code file to the machine's storage (M28/M29)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		local := args[0]
		remote := filepath.Base(local)
		if len(args) == 2 {
			remote = args[1]
		}

		f, err := os.Open(local)
		if err != nil {
			return err
		}
		defer f.Close()

		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.close()

		if err := s.send("M28 " + remote); err != nil {
			return err
		}

		lines := 0
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, ";") {
				continue
			}
			if err := s.send(line); err != nil {
				return fmt.Errorf("line %d: %w", lines+1, err)
			}
			lines++
		}
		if err := scanner.Err(); err != nil {
			return err
		}

		if err := s.send("M29"); err != nil {
			return err
		}
		fmt.Printf("uploaded %s as %s (%d lines)\n", local, remote, lines)
		return nil
	},
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List available serial ports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := serial.GetPortsList()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Println("no serial ports found")
			return nil
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return nil
	},
}
