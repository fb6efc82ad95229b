// Package flightlink provides a façade to the ground controller link: the
// frame codec, the controller and its collaborator types.
package flightlink

import (
	"github.com/ystepanoff/flightlink/protocol"
	"github.com/ystepanoff/flightlink/transport"
)

// Host constructors live in constructors_host.go.

type (
	Controller    = transport.Controller
	Config        = transport.Config
	Option        = transport.Option
	Link          = transport.Link
	Inputs        = transport.Inputs
	Sticks        = transport.Sticks
	Telemetry     = transport.Telemetry
	Status        = transport.Status
	Gains         = transport.Gains
	PID           = transport.PID
	Vec3          = transport.Vec3
	Mode          = transport.Mode
	LinkState     = transport.LinkState
	Opcode        = protocol.Opcode
	Frame         = protocol.Frame
	FirmwareChunk = protocol.FirmwareChunk
)

// Error constants exposed in the public API
var (
	ErrShortPayload   = protocol.ErrShortPayload
	ErrInvalidPayload = protocol.ErrInvalidPayload
	ErrInvalidFrame   = protocol.ErrInvalidFrame
	ErrChecksum       = protocol.ErrChecksum
	ErrNotCalibrated  = protocol.ErrNotCalibrated
	ErrNotConnected   = protocol.ErrNotConnected
	ErrNotConfirmed   = protocol.ErrNotConfirmed
	ErrTimeout        = protocol.ErrTimeout
)

// Constants exposed in the public API
const (
	ModeRate      = transport.ModeRate
	ModeStabilize = transport.ModeStabilize

	Disconnected = transport.Disconnected
	Connecting   = transport.Connecting
	Connected    = transport.Connected

	HistoryCapacity = transport.HistoryCapacity
	SwitchCount     = transport.SwitchCount
)

var (
	WithLogger = transport.WithLogger
	WithClock  = transport.WithClock
)
