package machine

import (
	"errors"
	"io"
)

// ErrReset is reported by adapters when the controller resets while
// commands are outstanding.
var ErrReset = errors.New("controller reset")

// An Adapter is the transport to a CNC controller. Implementations
// handle flow control and report parsing, the machine layer drives
// them with raw gcode.
type Adapter interface {
	// Probes returns every probe report received since the last
	// ResetProbes call.
	Probes() []ProbeResult
	ResetProbes()

	// State delivers status reports as they arrive.
	State() chan State
	CurrentState() State

	// WriteByte sends a realtime command, bypassing line buffering.
	WriteByte(byte) error
	Write([]byte) (int, error)
	ReadFrom(io.Reader) (int64, error)
}
