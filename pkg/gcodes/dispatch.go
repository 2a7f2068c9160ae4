// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package gcodes

import (
	"fmt"

	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/gcode"
)

// result is the tri-state a handler returns: still working, done, or
// done with an error message. resend asks the sender to repeat a line.
type result struct {
	done    bool
	err     bool
	resend  bool
	message string
}

var working = result{}

func ok() result {
	return result{done: true}
}

func okMsg(format string, args ...interface{}) result {
	return result{done: true, message: fmt.Sprintf(format, args...)}
}

func fail(format string, args ...interface{}) result {
	return result{done: true, err: true, message: fmt.Sprintf(format, args...)}
}

// handler runs one command against a source buffer. It is re-invoked
// every spin until it reports done.
type handler func(g *GCodes, b *gcode.Buffer) result

type commandKey struct {
	letter byte
	code   int
}

// commandTable maps (letter, code) to its handler. Keeping the
// dispatch in data instead of one giant switch makes the surface
// testable command by command.
var commandTable map[commandKey]handler

// The table is filled in init rather than a composite literal so the
// handlers may themselves reach dispatch without an initialization
// cycle.
func init() {
	commandTable = map[commandKey]handler{
		{'G', 0}:   (*GCodes).doG1,
		{'G', 1}:   (*GCodes).doG1,
		{'G', 4}:   (*GCodes).doDwell,
		{'G', 10}:  (*GCodes).doG10,
		{'G', 20}:  (*GCodes).doG20,
		{'G', 21}:  (*GCodes).doG21,
		{'G', 28}:  (*GCodes).doHome,
		{'G', 30}:  (*GCodes).doSingleProbe,
		{'G', 31}:  (*GCodes).doProbeParams,
		{'G', 32}:  (*GCodes).doMultiProbe,
		{'G', 90}:  (*GCodes).doG90,
		{'G', 91}:  (*GCodes).doG91,
		{'G', 92}:  (*GCodes).doG92,
		{'G', 998}: (*GCodes).doResend,

		{'M', 0}:   (*GCodes).doStop,
		{'M', 1}:   (*GCodes).doStop,
		{'M', 18}:  (*GCodes).doMotorsOff,
		{'M', 84}:  (*GCodes).doMotorsOff,
		{'M', 20}:  (*GCodes).doListFiles,
		{'M', 23}:  (*GCodes).doSelectFile,
		{'M', 24}:  (*GCodes).doStartPrint,
		{'M', 25}:  (*GCodes).doPausePrint,
		{'M', 27}:  (*GCodes).doPrintStatus,
		{'M', 28}:  (*GCodes).doBeginWrite,
		{'M', 29}:  (*GCodes).doEndWrite,
		{'M', 30}:  (*GCodes).doDeleteFile,
		{'M', 80}:  (*GCodes).doAtxOn,
		{'M', 81}:  (*GCodes).doAtxOff,
		{'M', 82}:  (*GCodes).doExtruderAbsolute,
		{'M', 83}:  (*GCodes).doExtruderRelative,
		{'M', 92}:  (*GCodes).doStepsPerUnit,
		{'M', 98}:  (*GCodes).doMacroCall,
		{'M', 99}:  (*GCodes).doMacroReturn,
		{'M', 104}: (*GCodes).doSetExtruderTemp,
		{'M', 105}: (*GCodes).doReportTemps,
		{'M', 106}: (*GCodes).doFanOn,
		{'M', 107}: (*GCodes).doFanOff,
		{'M', 109}: (*GCodes).doSetExtruderTempWait,
		{'M', 126}: (*GCodes).doValveOpen,
		{'M', 127}: (*GCodes).doValveClosed,
		{'M', 110}: (*GCodes).doSetLineNumber,
		{'M', 111}: (*GCodes).doDebug,
		{'M', 112}: (*GCodes).doEmergencyStop,
		{'M', 114}: (*GCodes).doReportPosition,
		{'M', 115}: (*GCodes).doVersion,
		{'M', 116}: (*GCodes).doWaitForTemps,
		{'M', 120}: (*GCodes).doPush,
		{'M', 121}: (*GCodes).doPop,
		{'M', 122}: (*GCodes).doDiagnostics,
		{'M', 140}: (*GCodes).doSetBedTemp,
		{'M', 190}: (*GCodes).doSetBedTempWait,
		{'M', 201}: (*GCodes).doAccelerations,
		{'M', 203}: (*GCodes).doMaxFeedrates,
		{'M', 208}: (*GCodes).doAxisLimits,
		{'M', 210}: (*GCodes).doHomeFeedrates,
		{'M', 220}: (*GCodes).doSpeedFactor,
		{'M', 221}: (*GCodes).doExtrusionFactor,
		{'M', 301}: (*GCodes).doHeaterPID,
		{'M', 304}: (*GCodes).doBedPID,
		{'M', 305}: (*GCodes).doThermistor,
		{'M', 503}: (*GCodes).doPrintSettings,
		{'M', 540}: (*GCodes).doMacAddress,
		{'M', 550}: (*GCodes).doMachineName,
		{'M', 551}: (*GCodes).doPassword,
		{'M', 552}: (*GCodes).doIPAddress,
		{'M', 553}: (*GCodes).doNetMask,
		{'M', 554}: (*GCodes).doGateway,
		{'M', 555}: (*GCodes).doEmulation,
		{'M', 556}: (*GCodes).doAxisCompensation,
		{'M', 557}: (*GCodes).doProbePoint,
		{'M', 558}: (*GCodes).doProbeType,
		{'M', 559}: (*GCodes).doUploadSys,
		{'M', 560}: (*GCodes).doUploadWeb,
		{'M', 561}: (*GCodes).doClearBedTransform,
		{'M', 562}: (*GCodes).doResetHeaterFault,
		{'M', 563}: (*GCodes).doDefineTool,
		{'M', 564}: (*GCodes).doLimitAxes,
		{'M', 566}: (*GCodes).doInstantDv,
		{'M', 906}: (*GCodes).doMotorCurrents,
		{'M', 998}: (*GCodes).doResendRequest,
		{'M', 999}: (*GCodes).doRestart,
	}
}

// actOnGcode runs the buffer's command. Unknown commands are reported
// and treated as done so the source keeps flowing.
func (g *GCodes) actOnGcode(b *gcode.Buffer) result {
	letter, code, okCmd := b.Command()
	if !okCmd {
		return fail("invalid G Code: %s", b.Line())
	}
	if letter == 'T' {
		return g.doToolChange(b, code)
	}
	h, found := commandTable[commandKey{letter, code}]
	if !found {
		return fail("invalid %c Code: %s", letter, b.Line())
	}
	return h(g, b)
}
