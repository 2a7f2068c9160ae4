// Unified error handling for the firmware core
//
// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	"fmt"
	"runtime"
)

// ErrorCode represents the category of error
type ErrorCode string

const (
	// Fatal runtime errors: overheat, watchdog, stack misuse, suspected
	// RAM corruption. These record a reset reason and trigger a software
	// reset.
	ErrFatalOverheat ErrorCode = "FATAL_OVERHEAT"
	ErrFatalWatchdog ErrorCode = "FATAL_WATCHDOG"
	ErrFatalStack    ErrorCode = "FATAL_STACK"
	ErrFatalRuntime  ErrorCode = "FATAL_RUNTIME"

	// Command errors: reported on the reply channel, the command is
	// marked done and the dispatcher advances.
	ErrCommandParse   ErrorCode = "COMMAND_PARSE"
	ErrCommandUnknown ErrorCode = "COMMAND_UNKNOWN"
	ErrCommandParam   ErrorCode = "COMMAND_PARAM"
	ErrCommandState   ErrorCode = "COMMAND_STATE"

	// Transient errors: storage or I/O failures the caller may retry.
	ErrTransientWrite ErrorCode = "TRANSIENT_WRITE"
	ErrTransientRead  ErrorCode = "TRANSIENT_READ"
	ErrTransientOpen  ErrorCode = "TRANSIENT_OPEN"

	// Protocol mismatch: checksum failure on an incoming line. Surfaced
	// as an M998 resend request, never as a reply-channel error.
	ErrProtocolChecksum ErrorCode = "PROTOCOL_CHECKSUM"
	ErrProtocolOverflow ErrorCode = "PROTOCOL_OVERFLOW"

	// Subsystem errors
	ErrProbe   ErrorCode = "PROBE"
	ErrHoming  ErrorCode = "HOMING"
	ErrHeater  ErrorCode = "HEATER"
	ErrMacro   ErrorCode = "MACRO"
	ErrNetwork ErrorCode = "NETWORK"
)

// FirmwareError is the unified error type for the firmware core
type FirmwareError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Source identifies the G-code source the error belongs to
	// (web, serial, file, macro), when known.
	Source string

	// Line is the protocol line number, when the error came from a
	// numbered line.
	Line int

	// Err wraps the underlying error
	Err error

	// Context provides additional context
	Context map[string]interface{}
}

// Error implements the error interface
func (e *FirmwareError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("[%s:%s] %s", e.Code, e.Source, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *FirmwareError) Unwrap() error {
	return e.Err
}

// SetSource sets the originating G-code source
func (e *FirmwareError) SetSource(source string) *FirmwareError {
	e.Source = source
	return e
}

// SetLine sets the protocol line number
func (e *FirmwareError) SetLine(line int) *FirmwareError {
	e.Line = line
	return e
}

// SetContext adds additional context
func (e *FirmwareError) SetContext(key string, value interface{}) *FirmwareError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code ErrorCode, message string) *FirmwareError {
	return &FirmwareError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// New creates a new FirmwareError
func New(code ErrorCode, message string) *FirmwareError {
	return &FirmwareError{
		Code:    code,
		Message: message,
	}
}

// Fatal errors

// OverheatError creates an error for a thermistor overheat cutoff
func OverheatError(heater int) *FirmwareError {
	return New(ErrFatalOverheat, fmt.Sprintf("heater %d over temperature, output forced off", heater)).
		SetContext("heater", heater)
}

// StackError creates an error for execution stack overflow or underflow
func StackError(op string) *FirmwareError {
	return New(ErrFatalStack, fmt.Sprintf("%s(): stack fault", op))
}

// FatalError creates a general fatal runtime error
func FatalError(message string) *FirmwareError {
	return New(ErrFatalRuntime, message)
}

// Command errors

// ParseError creates an error for a malformed G-code line
func ParseError(line string, reason string) *FirmwareError {
	return New(ErrCommandParse, fmt.Sprintf("cannot parse %q: %s", line, reason))
}

// UnknownCommandError creates an error for an unrecognized code
func UnknownCommandError(command string) *FirmwareError {
	return New(ErrCommandUnknown, fmt.Sprintf("invalid or unsupported command %s", command))
}

// ParamError creates an error for a missing or out-of-range parameter
func ParamError(command, param string, reason string) *FirmwareError {
	return New(ErrCommandParam, fmt.Sprintf("%s parameter %s: %s", command, param, reason))
}

// StateError creates an error for a command rejected by machine state
// (e.g. homing Z before X and Y, re-enabling a faulted heater).
func StateError(message string) *FirmwareError {
	return New(ErrCommandState, message)
}

// Transient errors

// WriteError creates an error for a storage write failure
func WriteError(name string, err error) *FirmwareError {
	return Wrap(err, ErrTransientWrite, fmt.Sprintf("cannot write %s", name))
}

// ReadError creates an error for a storage read failure
func ReadError(name string, err error) *FirmwareError {
	return Wrap(err, ErrTransientRead, fmt.Sprintf("cannot read %s", name))
}

// OpenError creates an error for a file open failure
func OpenError(name string, err error) *FirmwareError {
	return Wrap(err, ErrTransientOpen, fmt.Sprintf("cannot open %s", name))
}

// Protocol errors

// ChecksumError creates an error for a checksum mismatch on line n
func ChecksumError(line int) *FirmwareError {
	return New(ErrProtocolChecksum, fmt.Sprintf("checksum mismatch on line %d", line)).
		SetLine(line)
}

// OverflowError creates an error for a line exceeding the buffer length
func OverflowError(source string) *FirmwareError {
	return New(ErrProtocolOverflow, "G-code buffer length overflow").
		SetSource(source)
}

// Subsystem errors

// ProbeError creates a Z-probe error
func ProbeError(message string) *FirmwareError {
	return New(ErrProbe, message)
}

// HomingError creates a homing error
func HomingError(message string) *FirmwareError {
	return New(ErrHoming, message)
}

// HeaterError creates a heater error
func HeaterError(message string) *FirmwareError {
	return New(ErrHeater, message)
}

// MacroError creates a macro playback error
func MacroError(name string, reason string) *FirmwareError {
	return New(ErrMacro, fmt.Sprintf("macro %s: %s", name, reason))
}

// NetworkError creates a network configuration error
func NetworkError(message string) *FirmwareError {
	return New(ErrNetwork, message)
}

// RecoverPanic safely recovers from panic and converts to error.
// Handlers never panic by contract; this is the backstop at the
// dispatcher boundary.
func RecoverPanic() *FirmwareError {
	if r := recover(); r != nil {
		var err error
		switch x := r.(type) {
		case string:
			err = FatalError(fmt.Sprintf("panic: %s", x))
		case runtime.Error:
			err = FatalError(x.Error())
		case error:
			err = FatalError(x.Error())
		default:
			err = FatalError(fmt.Sprintf("panic: %v", x))
		}
		return err.(*FirmwareError)
	}
	return nil
}

// Is checks if error matches given error code
func Is(err error, code ErrorCode) bool {
	if fwErr, ok := err.(*FirmwareError); ok {
		return fwErr.Code == code
	}
	return false
}

// IsFatal checks if error requires a software reset
func IsFatal(err error) bool {
	return Is(err, ErrFatalOverheat) ||
		Is(err, ErrFatalWatchdog) ||
		Is(err, ErrFatalStack) ||
		Is(err, ErrFatalRuntime)
}

// IsCommand checks if error is a command error (report and advance)
func IsCommand(err error) bool {
	return Is(err, ErrCommandParse) ||
		Is(err, ErrCommandUnknown) ||
		Is(err, ErrCommandParam) ||
		Is(err, ErrCommandState)
}

// IsTransient checks if error is a retryable I/O error
func IsTransient(err error) bool {
	return Is(err, ErrTransientWrite) ||
		Is(err, ErrTransientRead) ||
		Is(err, ErrTransientOpen)
}
