package stub

import (
	"sync"

	proto "github.com/ystepanoff/flightlink/protocol"
)

// Vehicle is a minimal simulated vehicle for loopback use. It answers
// pings, confirms transfers and reports its status after every frame.
type Vehicle struct {
	mu         sync.Mutex
	armed      bool
	calibrated bool
	night      bool
	mode       uint32
	config     string
	username   string
	battery    uint16
	firmware   map[uint32][]byte
	gains      map[proto.Opcode]float32
}

func NewVehicle(username string) *Vehicle {
	return &Vehicle{
		username: username,
		battery:  10000,
		firmware: make(map[uint32][]byte),
		gains:    make(map[proto.Opcode]float32),
	}
}

// Responder adapts the vehicle for NewLoopback.
func (v *Vehicle) Responder() Responder { return v.Handle }

// Firmware returns the chunks received so far, keyed by offset.
func (v *Vehicle) Firmware() map[uint32][]byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[uint32][]byte, len(v.firmware))
	for off, b := range v.firmware {
		out[off] = b
	}
	return out
}

func (v *Vehicle) Config() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.config
}

// Handle consumes one uplink frame and returns the downlink reply.
func (v *Vehicle) Handle(frame []byte) [][]byte {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := proto.NewFrame()
	for op, r := range proto.Uplink.Records(frame) {
		v.apply(op, r, out)
	}

	out.WriteOpcode(proto.Status)
	out.WriteU32(v.statusBits())
	rec := proto.TelemetryRecord{BatteryVoltage: 1260, BatteryLevel: v.battery, RxQuality: 100, RxLevel: -40}
	b, _ := rec.MarshalBinary()
	out.WriteOpcode(proto.Telemetry)
	out.WriteBytes(b)
	return [][]byte{out.Bytes()}
}

func (v *Vehicle) statusBits() uint32 {
	var bits uint32
	if v.armed {
		bits |= proto.StatusArmed
	}
	if v.calibrated {
		bits |= proto.StatusCalibrated
	}
	if v.night {
		bits |= proto.StatusNightMode
	}
	return bits
}

func (v *Vehicle) apply(op proto.Opcode, r *proto.Reader, out *proto.Frame) {
	switch op {
	case proto.Ping:
		tick, err := r.ReadU16()
		if err != nil {
			return
		}
		out.WriteOpcode(proto.Ping)
		out.WriteU16(tick)
		out.WriteU16(0)
	case proto.GetUsername:
		out.WriteOpcode(proto.GetUsername)
		out.WriteString(v.username)
	case proto.Calibrate:
		v.calibrated = true
		out.WriteOpcode(proto.Calibrate)
		out.WriteU32(proto.CalibrationSuccess)
	case proto.Arm:
		v.armed = v.calibrated
		out.WriteOpcode(proto.Arm)
		out.WriteBool(v.armed)
	case proto.Disarm:
		v.armed = false
		out.WriteOpcode(proto.Disarm)
		out.WriteBool(false)
	case proto.SetMode:
		if m, err := r.ReadU32(); err == nil {
			v.mode = m
			out.WriteOpcode(proto.SetMode)
			out.WriteU32(m)
		}
	case proto.VideoNightMode:
		if n, err := r.ReadBool(); err == nil {
			v.night = n
		}
	case proto.ResetBattery:
		v.battery = 10000
	case proto.SetConfigFile:
		crc, err := r.ReadU32()
		if err != nil {
			return
		}
		content, err := r.ReadString()
		if err != nil || !proto.VerifyChecksum([]byte(content), crc) {
			return
		}
		v.config = content
		out.WriteOpcode(proto.SetConfigFile)
		out.WriteU32(0)
	case proto.GetConfigFile:
		out.WriteOpcode(proto.GetConfigFile)
		out.WriteU32(proto.Checksum([]byte(v.config)))
		out.WriteString(v.config)
	case proto.UpdateUploadData:
		chunk, err := proto.ReadFirmwareChunk(r)
		ok := err == nil
		if ok {
			v.firmware[chunk.Offset] = chunk.Data
		}
		out.WriteOpcode(proto.UpdateUploadData)
		out.WriteBool(ok)
	case proto.RollPIDFactors, proto.PitchPIDFactors, proto.YawPIDFactors, proto.OuterPIDFactors:
		base := pidBase[op]
		out.WriteOpcode(op)
		for i := range proto.Opcode(3) {
			out.WriteF32(v.gains[base+i])
		}
	case proto.SetRollPIDP, proto.SetRollPIDI, proto.SetRollPIDD,
		proto.SetPitchPIDP, proto.SetPitchPIDI, proto.SetPitchPIDD,
		proto.SetYawPIDP, proto.SetYawPIDI, proto.SetYawPIDD,
		proto.SetOuterPIDP, proto.SetOuterPIDI, proto.SetOuterPIDD:
		if g, err := r.ReadF32(); err == nil {
			v.gains[op] = g
			out.WriteOpcode(op)
			out.WriteF32(g)
		}
	}
}

var pidBase = map[proto.Opcode]proto.Opcode{
	proto.RollPIDFactors:  proto.SetRollPIDP,
	proto.PitchPIDFactors: proto.SetPitchPIDP,
	proto.YawPIDFactors:   proto.SetYawPIDP,
	proto.OuterPIDFactors: proto.SetOuterPIDP,
}
