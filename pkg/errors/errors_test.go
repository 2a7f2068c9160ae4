// Error taxonomy tests
//
// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestOverheatError(t *testing.T) {
	err := OverheatError(1)
	if !Is(err, ErrFatalOverheat) {
		t.Errorf("Code = %s, want %s", err.Code, ErrFatalOverheat)
	}
	if !IsFatal(err) {
		t.Error("overheat should be fatal")
	}
	if !strings.Contains(err.Error(), "heater 1") {
		t.Errorf("message %q should name the heater", err.Error())
	}
}

func TestCommandErrors(t *testing.T) {
	cases := []struct {
		err  *FirmwareError
		code ErrorCode
	}{
		{ParseError("G1 X??", "bad float"), ErrCommandParse},
		{UnknownCommandError("M9999"), ErrCommandUnknown},
		{ParamError("M220", "S", "must be positive"), ErrCommandParam},
		{StateError("must home X and Y before homing Z"), ErrCommandState},
	}
	for _, c := range cases {
		if c.err.Code != c.code {
			t.Errorf("Code = %s, want %s", c.err.Code, c.code)
		}
		if !IsCommand(c.err) {
			t.Errorf("%s should classify as command error", c.code)
		}
		if IsFatal(c.err) {
			t.Errorf("%s should not classify as fatal", c.code)
		}
	}
}

func TestWrapUnwrap(t *testing.T) {
	err := WriteError("0:/sys/config.g", io.ErrShortWrite)
	if !IsTransient(err) {
		t.Error("write failure should be transient")
	}
	if !errors.Is(err, io.ErrShortWrite) {
		t.Error("wrapped error should unwrap to the cause")
	}
}

func TestChecksumErrorCarriesLine(t *testing.T) {
	err := ChecksumError(5)
	if err.Line != 5 {
		t.Errorf("Line = %d, want 5", err.Line)
	}
	if !Is(err, ErrProtocolChecksum) {
		t.Error("wrong code")
	}
}

func TestSourceInMessage(t *testing.T) {
	err := OverflowError("serial")
	if !strings.Contains(err.Error(), "serial") {
		t.Errorf("message %q should name the source", err.Error())
	}
}

func TestRecoverPanic(t *testing.T) {
	var got *FirmwareError
	func() {
		defer func() {
			got = RecoverPanic()
		}()
		panic("boom")
	}()
	if got == nil {
		t.Fatal("RecoverPanic returned nil after panic")
	}
	if !IsFatal(got) {
		t.Error("recovered panic should be fatal")
	}
}
