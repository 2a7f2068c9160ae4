// Package safety owns the machine's shutdown paths: emergency stop
// (M112), the over-temperature cutoff escalation, and the watchdog
// that the tick interrupt pets. It never touches hardware itself;
// subsystems register disablers and the manager calls them in safety
// order (heaters first, then drives, then the print job).
package safety

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State represents the machine's shutdown state.
type State int

const (
	// StateRunning indicates normal operation.
	StateRunning State = iota

	// StateShuttingDown indicates shutdown is in progress.
	StateShuttingDown

	// StateShutdown indicates an orderly stop.
	StateShutdown

	// StateError indicates a fault-triggered stop.
	StateError
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateShutdown:
		return "shutdown"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Reason describes why the machine was stopped.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonEmergencyStop Reason = "emergency_stop"
	ReasonOverheat      Reason = "overheat"
	ReasonWatchdog      Reason = "watchdog_timeout"
	ReasonStackFault    Reason = "stack_fault"
	ReasonUserRequest   Reason = "user_request"
)

// Common errors
var (
	ErrShutdown      = errors.New("safety: machine is shut down")
	ErrEmergencyStop = errors.New("safety: emergency stop triggered")
)

// HeaterStandby puts every heater into its standby (cold) state.
type HeaterStandby interface {
	StandbyAll()
}

// DriveDisabler removes power from the stepper drives.
type DriveDisabler interface {
	DisableDrives()
}

// PrintAborter cancels any in-flight file print.
type PrintAborter interface {
	AbortPrint()
}

// Manager manages the shutdown state and the watchdog.
type Manager struct {
	mu sync.RWMutex

	state      State
	reason     Reason
	reasonMsg  string
	reasonTime time.Time

	heaters  []HeaterStandby
	drives   []DriveDisabler
	aborters []PrintAborter

	watchdogCtx     context.Context
	watchdogCancel  context.CancelFunc
	watchdogTimeout time.Duration
	lastPet         time.Time
	watchdogMu      sync.Mutex

	onShutdown []func(reason Reason, msg string)
}

// New creates a safety Manager.
func New() *Manager {
	return &Manager{
		state:           StateRunning,
		watchdogTimeout: 5 * time.Second,
	}
}

// SetWatchdogTimeout overrides the default 5 s window.
func (m *Manager) SetWatchdogTimeout(d time.Duration) {
	m.watchdogMu.Lock()
	defer m.watchdogMu.Unlock()
	if d > 0 {
		m.watchdogTimeout = d
	}
}

// RegisterHeaters registers the heater subsystem for emergency standby.
func (m *Manager) RegisterHeaters(h HeaterStandby) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heaters = append(m.heaters, h)
}

// RegisterDrives registers the motion subsystem for drive disable.
func (m *Manager) RegisterDrives(d DriveDisabler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drives = append(m.drives, d)
}

// RegisterPrintAborter registers the file-print owner.
func (m *Manager) RegisterPrintAborter(a PrintAborter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aborters = append(m.aborters, a)
}

// OnShutdown registers a callback invoked after the disablers ran.
func (m *Manager) OnShutdown(fn func(reason Reason, msg string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onShutdown = append(m.onShutdown, fn)
}

// GetState returns the current shutdown state.
func (m *Manager) GetState() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// ShutdownInfo returns stop details for diagnostics.
func (m *Manager) ShutdownInfo() (Reason, string, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reason, m.reasonMsg, m.reasonTime
}

// IsOperational returns true while the machine runs normally.
func (m *Manager) IsOperational() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateRunning
}

// CheckOperational returns an error if the machine is stopped.
func (m *Manager) CheckOperational() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateRunning {
		return fmt.Errorf("%w: %s - %s", ErrShutdown, m.reason, m.reasonMsg)
	}
	return nil
}

// EmergencyStop is the M112 path: heaters to standby, drives off,
// print aborted, all immediately and regardless of dispatcher state.
func (m *Manager) EmergencyStop(msg string) {
	m.invokeShutdown(ReasonEmergencyStop, msg)
}

// Overheat escalates a latched over-temperature cutoff. The tick
// already forced the heater PWM to zero; this records the stop.
func (m *Manager) Overheat(heater int) {
	m.invokeShutdown(ReasonOverheat, fmt.Sprintf("heater %d over temperature", heater))
}

// StackFault records an execution-stack overflow or underflow.
func (m *Manager) StackFault(msg string) {
	m.invokeShutdown(ReasonStackFault, msg)
}

// RequestShutdown performs an orderly user-requested stop.
func (m *Manager) RequestShutdown(msg string) {
	m.invokeShutdown(ReasonUserRequest, msg)
}

func (m *Manager) invokeShutdown(reason Reason, msg string) {
	m.mu.Lock()

	if m.state == StateShutdown || m.state == StateError {
		m.mu.Unlock()
		return
	}

	m.state = StateShuttingDown
	m.reason = reason
	m.reasonMsg = msg
	m.reasonTime = time.Now()

	// Copy registrations so the disablers run without the lock held.
	heaters := make([]HeaterStandby, len(m.heaters))
	copy(heaters, m.heaters)
	drives := make([]DriveDisabler, len(m.drives))
	copy(drives, m.drives)
	aborters := make([]PrintAborter, len(m.aborters))
	copy(aborters, m.aborters)

	m.mu.Unlock()

	m.StopWatchdog()

	// Heaters first.
	for _, h := range heaters {
		h.StandbyAll()
	}
	for _, d := range drives {
		d.DisableDrives()
	}
	for _, a := range aborters {
		a.AbortPrint()
	}

	m.mu.Lock()
	finalState := StateShutdown
	if reason == ReasonEmergencyStop || reason == ReasonOverheat ||
		reason == ReasonWatchdog || reason == ReasonStackFault {
		finalState = StateError
	}
	m.state = finalState
	onShutdown := make([]func(Reason, string), len(m.onShutdown))
	copy(onShutdown, m.onShutdown)
	m.mu.Unlock()

	for _, fn := range onShutdown {
		fn(reason, msg)
	}
}

// StartWatchdog starts the watchdog timer.
func (m *Manager) StartWatchdog() {
	m.watchdogMu.Lock()
	defer m.watchdogMu.Unlock()

	if m.watchdogCancel != nil {
		return
	}

	m.watchdogCtx, m.watchdogCancel = context.WithCancel(context.Background())
	m.lastPet = time.Now()

	go m.watchdogLoop()
}

// StopWatchdog stops the watchdog timer.
func (m *Manager) StopWatchdog() {
	m.watchdogMu.Lock()
	defer m.watchdogMu.Unlock()

	if m.watchdogCancel != nil {
		m.watchdogCancel()
		m.watchdogCancel = nil
	}
}

// Pet feeds the watchdog. The tick sampler calls this every
// millisecond; the main loop must not be the only petter or a stalled
// tick would go unnoticed.
func (m *Manager) Pet() {
	m.watchdogMu.Lock()
	defer m.watchdogMu.Unlock()
	m.lastPet = time.Now()
}

func (m *Manager) watchdogLoop() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-m.watchdogCtx.Done():
			return
		case <-ticker.C:
			m.watchdogMu.Lock()
			elapsed := time.Since(m.lastPet)
			timeout := m.watchdogTimeout
			m.watchdogMu.Unlock()

			if elapsed > timeout {
				m.invokeShutdown(ReasonWatchdog, "tick heartbeat timeout")
				return
			}
		}
	}
}

// Reset re-arms the manager after a stop, for M999.
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateRunning || m.state == StateShuttingDown {
		return errors.New("safety: cannot reset while running or shutting down")
	}

	m.state = StateRunning
	m.reason = ReasonNone
	m.reasonMsg = ""
	m.reasonTime = time.Time{}

	return nil
}

// Status is a snapshot for diagnostics output.
type Status struct {
	State         string
	Reason        string
	Message       string
	Time          time.Time
	IsOperational bool
}

// GetStatus returns the current status.
func (m *Manager) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Status{
		State:         m.state.String(),
		Reason:        string(m.reason),
		Message:       m.reasonMsg,
		Time:          m.reasonTime,
		IsOperational: m.state == StateRunning,
	}
}
