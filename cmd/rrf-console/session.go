// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package main

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"
)

const (
	readPoll     = 100 * time.Millisecond
	replyTimeout = 30 * time.Second
	maxResends   = 5
)

// session is one open host link with line numbering state.
type session struct {
	port serial.Port

	lineNumber int
	history    map[int]string
	pending    []byte
	resends    int
}

// openSession opens the port and switches the firmware to the "ok"
// acknowledgement dialect.
func openSession() (*session, error) {
	if portName == "" {
		return nil, fmt.Errorf("no serial port given: use --port, RRF_PORT or a .env file")
	}
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(readPoll); err != nil {
		port.Close()
		return nil, err
	}

	s := &session{port: port, history: make(map[int]string)}

	// Unnumbered so it is accepted whatever state the link is in. The
	// native dialect stays silent on success, so there is no
	// acknowledgement to wait for here.
	if _, err := port.Write([]byte("M555 P2\n")); err != nil {
		port.Close()
		return nil, err
	}
	time.Sleep(200 * time.Millisecond)
	s.drain()
	return s, nil
}

func (s *session) close() {
	s.port.Close()
}

// checksum XORs every byte of the line, the RepRap serial protocol.
func checksum(line string) int {
	cs := 0
	for i := 0; i < len(line); i++ {
		cs ^= int(line[i])
	}
	return cs & 0xff
}

func frameLine(n int, cmd string) string {
	numbered := fmt.Sprintf("N%d %s", n, cmd)
	return fmt.Sprintf("%s*%d", numbered, checksum(numbered))
}

// send transmits one command and blocks until the firmware
// acknowledges it, retransmitting on resend requests. Informational
// lines that arrive before the ack are printed as they come.
func (s *session) send(cmd string) error {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" || strings.HasPrefix(cmd, ";") {
		return nil
	}
	s.lineNumber++
	framed := frameLine(s.lineNumber, cmd)
	s.history[s.lineNumber] = framed
	delete(s.history, s.lineNumber-50) // keep a bounded window
	s.resends = 0
	if _, err := s.port.Write([]byte(framed + "\n")); err != nil {
		return err
	}
	return s.awaitAck()
}

func (s *session) awaitAck() error {
	deadline := time.Now().Add(replyTimeout)
	for time.Now().Before(deadline) {
		line, ok, err := s.readLine(deadline)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		switch {
		case line == "ok":
			return nil
		case strings.HasPrefix(line, "ok "):
			fmt.Println(strings.TrimPrefix(line, "ok "))
			return nil
		case strings.HasPrefix(line, "rs "):
			if err := s.resend(strings.TrimSpace(strings.TrimPrefix(line, "rs "))); err != nil {
				return err
			}
		case strings.HasPrefix(line, "Resend:"):
			if err := s.resend(strings.TrimSpace(strings.TrimPrefix(line, "Resend:"))); err != nil {
				return err
			}
		default:
			if !quiet {
				fmt.Println(line)
			}
		}
	}
	return fmt.Errorf("no acknowledgement within %v", replyTimeout)
}

func (s *session) resend(numText string) error {
	n, err := strconv.Atoi(numText)
	if err != nil {
		return fmt.Errorf("unparseable resend request %q", numText)
	}
	framed, kept := s.history[n]
	if !kept {
		return fmt.Errorf("firmware asked for line %d, no longer in history", n)
	}
	s.resends++
	if s.resends > maxResends {
		return fmt.Errorf("line %d rejected %d times, giving up", n, maxResends)
	}
	if !quiet {
		fmt.Printf("resending line %d\n", n)
	}
	_, err = s.port.Write([]byte(framed + "\n"))
	return err
}

// readLine accumulates port bytes into lines across the read timeout
// boundary. ok is false when no complete line is ready yet.
func (s *session) readLine(deadline time.Time) (string, bool, error) {
	if line, ok := s.takeLine(); ok {
		return line, line != "", nil
	}
	buf := make([]byte, 256)
	for time.Now().Before(deadline) {
		n, err := s.port.Read(buf)
		if err != nil {
			return "", false, err
		}
		if n == 0 {
			return "", false, nil // poll timeout, caller re-checks its deadline
		}
		s.pending = append(s.pending, buf[:n]...)
		if line, ok := s.takeLine(); ok {
			return line, line != "", nil
		}
	}
	return "", false, nil
}

func (s *session) takeLine() (string, bool) {
	i := bytes.IndexByte(s.pending, '\n')
	if i < 0 {
		return "", false
	}
	line := strings.TrimRight(string(s.pending[:i]), "\r")
	s.pending = s.pending[i+1:]
	return line, true
}

// drain discards whatever the firmware had buffered.
func (s *session) drain() {
	buf := make([]byte, 256)
	for {
		n, err := s.port.Read(buf)
		if err != nil || n == 0 {
			return
		}
	}
}
