package transport

import (
	proto "github.com/ystepanoff/flightlink/protocol"
)

// Every command here is queued on the accumulator and goes out with the next
// transmit tick.

// Arm queues ARM. It is refused with ErrNotCalibrated while the vehicle has
// not reported a valid calibration; nothing is queued in that case.
func (c *Controller) Arm() error {
	var calibrated bool
	c.st.read(func(s *state) { calibrated = s.status.Calibrated })
	if !calibrated {
		return proto.ErrNotCalibrated
	}
	c.tx.AppendOpcodes(proto.Arm)
	return nil
}

// Disarm queues DISARM and zeroes the cached thrust setpoint.
func (c *Controller) Disarm() {
	c.tx.AppendOpcodes(proto.Disarm)
	c.st.write(func(s *state) { s.thrust = 0 })
}

func (c *Controller) SetMode(m Mode) {
	c.tx.Append(func(f *proto.Frame) {
		f.WriteOpcode(proto.SetMode)
		f.WriteU32(uint32(m))
	})
}

func (c *Controller) SetNightMode(night bool) {
	c.tx.Append(func(f *proto.Frame) {
		f.WriteOpcode(proto.VideoNightMode)
		f.WriteBool(night)
	})
}

func (c *Controller) CalibrateESCs() { c.tx.AppendOpcodes(proto.CalibrateESCs) }

// SetFullTelemetry toggles the extended telemetry set. The record is
// repeated so a single lost frame does not drop it.
func (c *Controller) SetFullTelemetry(full bool) {
	c.tx.Append(func(f *proto.Frame) {
		for range 8 {
			f.WriteOpcode(proto.SetFullTelemetry)
			f.WriteBool(full)
		}
	})
}

func (c *Controller) ResetBattery() {
	c.tx.Append(func(f *proto.Frame) {
		f.WriteOpcode(proto.ResetBattery)
		f.WriteU32(0)
	})
}

// MotorTest spins motor id briefly.
func (c *Controller) MotorTest(id uint32) {
	c.tx.Append(func(f *proto.Frame) {
		f.WriteOpcode(proto.MotorTest)
		f.WriteU32(id)
	})
}

func (c *Controller) EnableTunDevice() { c.tx.AppendOpcodes(proto.EnableTunDevice) }

func (c *Controller) DisableTunDevice() { c.tx.AppendOpcodes(proto.DisableTunDevice) }

func (c *Controller) SetHorizonOffset(x, y float32) {
	c.tx.Append(func(f *proto.Frame) {
		f.WriteOpcode(proto.SetHorizonOffset)
		f.WriteF32(x)
		f.WriteF32(y)
	})
}

func (c *Controller) SetThrust(v float32) {
	c.tx.Append(func(f *proto.Frame) {
		f.WriteOpcode(proto.SetThrust)
		f.WriteF32(v)
	})
	c.st.write(func(s *state) { s.thrust = v })
}

// SetThrustRelative adds dv to the cached thrust setpoint and sends the
// result.
func (c *Controller) SetThrustRelative(dv float32) {
	var v float32
	c.st.write(func(s *state) {
		s.thrust += dv
		v = s.thrust
	})
	c.tx.Append(func(f *proto.Frame) {
		f.WriteOpcode(proto.SetThrust)
		f.WriteF32(v)
	})
}

func (c *Controller) SetRoll(v float32) {
	c.setAxis(proto.SetRoll, v, func(r *Vec3) { r.X = v })
}

func (c *Controller) SetPitch(v float32) {
	c.setAxis(proto.SetPitch, v, func(r *Vec3) { r.Y = v })
}

func (c *Controller) SetYaw(v float32) {
	c.setAxis(proto.SetYaw, v, func(r *Vec3) { r.Z = v })
}

func (c *Controller) setAxis(op proto.Opcode, v float32, cache func(*Vec3)) {
	c.tx.Append(func(f *proto.Frame) {
		f.WriteOpcode(op)
		f.WriteF32(v)
	})
	c.st.write(func(s *state) { cache(&s.controlRPY) })
}

func (c *Controller) VideoPause()       { c.tx.AppendOpcodes(proto.VideoPause) }
func (c *Controller) VideoResume()      { c.tx.AppendOpcodes(proto.VideoResume) }
func (c *Controller) VideoTakePicture() { c.tx.AppendOpcodes(proto.VideoTakePicture) }
func (c *Controller) VideoStartRecord() { c.tx.AppendOpcodes(proto.VideoStartRecord) }
func (c *Controller) VideoStopRecord()  { c.tx.AppendOpcodes(proto.VideoStopRecord) }

func (c *Controller) VideoBrightnessIncrease() { c.tx.AppendOpcodes(proto.VideoBrightnessIncrease) }
func (c *Controller) VideoBrightnessDecrease() { c.tx.AppendOpcodes(proto.VideoBrightnessDecrease) }
func (c *Controller) VideoContrastIncrease()   { c.tx.AppendOpcodes(proto.VideoContrastIncrease) }
func (c *Controller) VideoContrastDecrease()   { c.tx.AppendOpcodes(proto.VideoContrastDecrease) }
func (c *Controller) VideoSaturationIncrease() { c.tx.AppendOpcodes(proto.VideoSaturationIncrease) }
func (c *Controller) VideoSaturationDecrease() { c.tx.AppendOpcodes(proto.VideoSaturationDecrease) }
