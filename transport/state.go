package transport

import (
	"sync"

	proto "github.com/ystepanoff/flightlink/protocol"
)

// Mode is the stabilizer flight mode.
type Mode uint32

const (
	ModeRate Mode = iota
	ModeStabilize
)

func (m Mode) String() string {
	switch m {
	case ModeRate:
		return "rate"
	case ModeStabilize:
		return "stabilize"
	}
	return "unknown"
}

// LinkState is the transmit loop connection state.
type LinkState uint32

const (
	Disconnected LinkState = iota
	Connecting
	Connected
)

func (s LinkState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

// Telemetry is the latest value of every telemetry field. Fields are updated
// independently by whichever record last reported them.
type Telemetry struct {
	BatteryVoltage      float32 // V
	BatteryLevel        float32 // 0-1
	TotalCurrent        float32 // mAh
	CurrentDraw         float32 // A
	CPULoad             uint32  // %
	CPUTemp             uint32  // °C
	RxQuality           int32   // vehicle side, %
	RxLevel             int32   // vehicle side, dBm
	StabilizerFrequency uint32  // Hz
	MotorsSpeed         []float32
}

// Status is the operational state as last reported by the vehicle, with
// local optimistic updates applied in between.
type Status struct {
	Armed          bool
	Calibrated     bool
	Calibrating    bool
	NightMode      bool
	VideoRecording bool
	CameraMissing  bool
	Mode           Mode
}

type Vec3 struct {
	X, Y, Z float32
}

// PID is one (P, I, D) gain triple.
type PID struct {
	P, I, D float32
}

func (p PID) within(q PID, tol float32) bool {
	return absf(p.P-q.P) <= tol && absf(p.I-q.I) <= tol && absf(p.D-q.D) <= tol
}

func absf(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// Gains are the vehicle stabilizer gains.
type Gains struct {
	Roll, Pitch, Yaw, Outer PID
	HorizonOffset           [2]float32
	Loaded                  bool
}

const recordingsBroken = "broken"

// state is every field the receive loop writes and the API reads. One
// RWMutex guards all of it; history and the outgoing frame have their own
// locks.
type state struct {
	mu sync.RWMutex

	telemetry Telemetry
	status    Status
	gains     Gains

	ping       uint16
	pinged     bool
	username   string
	thrust     float32
	controlRPY Vec3
	rpy        Vec3
	altitude   float32
	accel      float32

	// results written by the receive loop and polled by blocking calls
	boardInfos        string
	sensorsInfos      string
	configFile        string
	recordingsList    string
	recordingsValid   bool
	whiteBalance      string
	configUploadValid bool
	updateUploadValid bool
}

func (s *state) read(fn func(st *state)) {
	s.mu.RLock()
	fn(s)
	s.mu.RUnlock()
}

func (s *state) write(fn func(st *state)) {
	s.mu.Lock()
	fn(s)
	s.mu.Unlock()
}

func (s *state) applyStatus(bits uint32) {
	s.status.Armed = bits&proto.StatusArmed != 0
	s.status.Calibrated = bits&proto.StatusCalibrated != 0
	s.status.Calibrating = bits&proto.StatusCalibrating != 0
	s.status.NightMode = bits&proto.StatusNightMode != 0
}

func (s *state) applyTelemetry(rec proto.TelemetryRecord) {
	s.telemetry.BatteryVoltage = rec.Volts()
	s.telemetry.TotalCurrent = float32(rec.TotalCurrent)
	s.telemetry.CurrentDraw = rec.Amps()
	s.telemetry.BatteryLevel = rec.Level()
	s.telemetry.CPULoad = uint32(rec.CPULoad)
	s.telemetry.CPUTemp = uint32(rec.CPUTemp)
	s.telemetry.RxQuality = int32(rec.RxQuality)
	s.telemetry.RxLevel = int32(rec.RxLevel)
}
