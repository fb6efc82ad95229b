package transport

import (
	"context"

	proto "github.com/ystepanoff/flightlink/protocol"
)

func (c *Controller) rxLoop(ctx context.Context) {
	defer c.wg.Done()
	defer c.lockThread()()
	c.raise(rxPriority, "rx")

	buf := make([]byte, rxBufferSize)
	for ctx.Err() == nil {
		if c.cfg.Spectate && !c.link.IsConnected() {
			c.connect(ctx)
			continue
		}
		n, err := c.link.Read(buf)
		if err != nil {
			c.logger.Debug("read failed", "err", err)
		}
		if err != nil || n <= 0 {
			_ = c.clock.Sleep(ctx, rxBackoff)
			continue
		}
		c.dispatcher.Dispatch(buf[:n])
	}
}

func readF32s(r *proto.Reader, n int) ([]float32, error) {
	out := make([]float32, n)
	for i := range out {
		v, err := r.ReadF32()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func readPID(r *proto.Reader) (PID, error) {
	v, err := readF32s(r, 3)
	if err != nil {
		return PID{}, err
	}
	return PID{P: v[0], I: v[1], D: v[2]}, nil
}

func readVec3(r *proto.Reader) (Vec3, error) {
	v, err := readF32s(r, 3)
	if err != nil {
		return Vec3{}, err
	}
	return Vec3{X: v[0], Y: v[1], Z: v[2]}, nil
}

// u32Handler reads one u32 and applies it under the state lock.
func (c *Controller) u32Handler(apply func(s *state, v uint32)) Handler {
	return func(r *proto.Reader) error {
		v, err := r.ReadU32()
		if err != nil {
			return err
		}
		c.st.write(func(s *state) { apply(s, v) })
		return nil
	}
}

func (c *Controller) f32Handler(apply func(s *state, v float32)) Handler {
	return func(r *proto.Reader) error {
		v, err := r.ReadF32()
		if err != nil {
			return err
		}
		c.st.write(func(s *state) { apply(s, v) })
		return nil
	}
}

func (c *Controller) strHandler(apply func(s *state, v string)) Handler {
	return func(r *proto.Reader) error {
		v, err := r.ReadString()
		if err != nil {
			return err
		}
		c.st.write(func(s *state) { apply(s, v) })
		return nil
	}
}

// checkedStrHandler reads a (crc, string) pair and passes ok=false when the
// checksum does not match the content.
func (c *Controller) checkedStrHandler(apply func(s *state, v string, ok bool)) Handler {
	return func(r *proto.Reader) error {
		crc, err := r.ReadU32()
		if err != nil {
			return err
		}
		v, err := r.ReadString()
		if err != nil {
			return err
		}
		ok := proto.VerifyChecksum([]byte(v), crc)
		c.st.write(func(s *state) { apply(s, v, ok) })
		return nil
	}
}

// pidTerms maps the single-term PID records to the gain they set.
var pidTerms = map[proto.Opcode]func(g *Gains) *float32{
	proto.SetRollPIDP:  func(g *Gains) *float32 { return &g.Roll.P },
	proto.SetRollPIDI:  func(g *Gains) *float32 { return &g.Roll.I },
	proto.SetRollPIDD:  func(g *Gains) *float32 { return &g.Roll.D },
	proto.SetPitchPIDP: func(g *Gains) *float32 { return &g.Pitch.P },
	proto.SetPitchPIDI: func(g *Gains) *float32 { return &g.Pitch.I },
	proto.SetPitchPIDD: func(g *Gains) *float32 { return &g.Pitch.D },
	proto.SetYawPIDP:   func(g *Gains) *float32 { return &g.Yaw.P },
	proto.SetYawPIDI:   func(g *Gains) *float32 { return &g.Yaw.I },
	proto.SetYawPIDD:   func(g *Gains) *float32 { return &g.Yaw.D },
	proto.SetOuterPIDP: func(g *Gains) *float32 { return &g.Outer.P },
	proto.SetOuterPIDI: func(g *Gains) *float32 { return &g.Outer.I },
	proto.SetOuterPIDD: func(g *Gains) *float32 { return &g.Outer.D },
}

var pidTriples = map[proto.Opcode]func(g *Gains) *PID{
	proto.RollPIDFactors:  func(g *Gains) *PID { return &g.Roll },
	proto.PitchPIDFactors: func(g *Gains) *PID { return &g.Pitch },
	proto.YawPIDFactors:   func(g *Gains) *PID { return &g.Yaw },
	proto.OuterPIDFactors: func(g *Gains) *PID { return &g.Outer },
}

func (c *Controller) registerHandlers() {
	d := c.dispatcher

	d.Register(proto.Ping, func(r *proto.Reader) error {
		echoed, err := r.ReadU16()
		if err != nil {
			return err
		}
		reported, err := r.ReadU16()
		if err != nil {
			return err
		}
		rtt := c.tick16() - echoed
		if c.cfg.Spectate {
			rtt = reported
		}
		c.st.write(func(s *state) {
			s.ping = rtt
			s.pinged = true
		})
		return nil
	})

	d.Register(proto.Status, c.u32Handler(func(s *state, v uint32) { s.applyStatus(v) }))

	d.Register(proto.Telemetry, func(r *proto.Reader) error {
		b, err := r.ReadBytes(proto.TelemetrySize)
		if err != nil {
			return err
		}
		var rec proto.TelemetryRecord
		if err := rec.UnmarshalBinary(b); err != nil {
			return err
		}
		c.st.write(func(s *state) { s.applyTelemetry(rec) })
		return nil
	})

	d.Register(proto.DebugOutput, func(r *proto.Reader) error {
		v, err := r.ReadString()
		if err != nil {
			return err
		}
		c.debugMu.Lock()
		c.debug.WriteString(v)
		c.debugMu.Unlock()
		c.logger.Debug("vehicle output", "text", v)
		return nil
	})

	d.Register(proto.Calibrate, c.u32Handler(func(s *state, v uint32) {
		switch v {
		case proto.CalibrationSuccess:
			s.status.Calibrated = true
			c.logger.Info("calibration success")
		case proto.CalibrationStillValid:
			s.status.Calibrated = true
		case proto.CalibrationNotCalibrated:
			s.status.Calibrated = false
		default:
			c.logger.Warn("calibration failed", "code", v)
		}
	}))
	d.Register(proto.Calibrating, c.u32Handler(func(s *state, v uint32) { s.status.Calibrating = v != 0 }))
	d.Register(proto.Arm, c.u32Handler(func(s *state, v uint32) { s.status.Armed = v != 0 }))
	d.Register(proto.Disarm, c.u32Handler(func(s *state, v uint32) { s.status.Armed = v != 0 }))
	d.Register(proto.ResetBattery, c.u32Handler(func(*state, uint32) {}))

	d.Register(proto.GetBoardInfos, c.strHandler(func(s *state, v string) { s.boardInfos = v }))
	d.Register(proto.GetSensorsInfos, c.strHandler(func(s *state, v string) { s.sensorsInfos = v }))
	d.Register(proto.GetConfigFile, c.checkedStrHandler(func(s *state, v string, ok bool) {
		if !ok {
			c.logger.Warn("broken config file received")
			s.configFile = ""
			return
		}
		s.configFile = v
	}))
	d.Register(proto.SetConfigFile, c.u32Handler(func(s *state, v uint32) { s.configUploadValid = v == 0 }))
	d.Register(proto.UpdateUploadData, c.u32Handler(func(s *state, v uint32) {
		s.updateUploadValid = v == 1
		c.logger.Debug("firmware chunk status", "ok", v == 1)
	}))

	d.Register(proto.VBat, c.f32Handler(func(s *state, v float32) { s.telemetry.BatteryVoltage = v }))
	d.Register(proto.TotalCurrent, c.f32Handler(func(s *state, v float32) {
		// reported in Ah
		s.telemetry.TotalCurrent = float32(uint32(v * 1000))
	}))
	d.Register(proto.CurrentDraw, c.f32Handler(func(s *state, v float32) { s.telemetry.CurrentDraw = v }))
	d.Register(proto.BatteryLevel, c.f32Handler(func(s *state, v float32) { s.telemetry.BatteryLevel = v }))
	d.Register(proto.CPULoad, c.u32Handler(func(s *state, v uint32) { s.telemetry.CPULoad = v }))
	d.Register(proto.CPUTemp, c.u32Handler(func(s *state, v uint32) { s.telemetry.CPUTemp = v }))
	d.Register(proto.RxQuality, c.u32Handler(func(s *state, v uint32) { s.telemetry.RxQuality = int32(v) }))
	d.Register(proto.RxLevel, c.u32Handler(func(s *state, v uint32) { s.telemetry.RxLevel = int32(v) }))
	d.Register(proto.StabilizerFrequency, c.u32Handler(func(s *state, v uint32) { s.telemetry.StabilizerFrequency = v }))
	d.Register(proto.MotorsSpeed, func(r *proto.Reader) error {
		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		if uint64(n)*4 > uint64(r.Remaining()) {
			return proto.ErrShortPayload
		}
		speeds, err := readF32s(r, int(n))
		if err != nil {
			return err
		}
		c.st.write(func(s *state) { s.telemetry.MotorsSpeed = speeds })
		return nil
	})

	for op, gain := range pidTriples {
		d.Register(op, func(r *proto.Reader) error {
			pid, err := readPID(r)
			if err != nil {
				return err
			}
			c.st.write(func(s *state) {
				*gain(&s.gains) = pid
				s.gains.Loaded = true
			})
			return nil
		})
	}
	for op, term := range pidTerms {
		d.Register(op, c.f32Handler(func(s *state, v float32) { *term(&s.gains) = v }))
	}
	horizon := func(r *proto.Reader) error {
		v, err := readF32s(r, 2)
		if err != nil {
			return err
		}
		c.st.write(func(s *state) { s.gains.HorizonOffset = [2]float32{v[0], v[1]} })
		return nil
	}
	d.Register(proto.HorizonOffset, horizon)
	d.Register(proto.SetHorizonOffset, horizon)

	d.Register(proto.SetThrust, c.f32Handler(func(s *state, v float32) {
		// only an observer follows the primary controller's thrust
		if c.cfg.Spectate {
			s.thrust = v
		}
	}))

	d.Register(proto.RollPitchYaw, func(r *proto.Reader) error {
		v, err := readVec3(r)
		if err != nil {
			return err
		}
		c.st.write(func(s *state) { s.rpy = v })
		c.history.AddAttitude(Vec3Sample{X: v.X, Y: v.Y, Z: v.Z, Millis: c.millis()})
		return nil
	})
	d.Register(proto.Gyro, func(r *proto.Reader) error {
		v, err := readVec3(r)
		if err != nil {
			return err
		}
		c.history.AddRates(Vec3Sample{X: v.X, Y: v.Y, Z: v.Z, Millis: c.millis()})
		return nil
	})
	d.Register(proto.CurrentAcceleration, c.f32Handler(func(s *state, v float32) { s.accel = v }))
	d.Register(proto.Altitude, func(r *proto.Reader) error {
		v, err := r.ReadF32()
		if err != nil {
			return err
		}
		c.st.write(func(s *state) { s.altitude = v })
		c.history.AddAltitude(ScalarSample{Value: v, Millis: c.millis()})
		return nil
	})
	d.Register(proto.SetMode, c.u32Handler(func(s *state, v uint32) { s.status.Mode = Mode(v) }))

	d.Register(proto.VideoStartRecord, c.u32Handler(func(s *state, v uint32) { s.status.VideoRecording = v != 0 }))
	d.Register(proto.VideoStopRecord, c.u32Handler(func(s *state, v uint32) { s.status.VideoRecording = v != 0 }))
	d.Register(proto.VideoWhiteBalance, c.strHandler(func(s *state, v string) { s.whiteBalance = v }))
	d.Register(proto.VideoNightMode, c.u32Handler(func(s *state, v uint32) {
		night := v != 0
		if night != s.status.NightMode {
			s.status.NightMode = night
			c.logger.Info("video mode changed", "night", night)
		}
	}))
	d.Register(proto.GetRecordingsList, c.checkedStrHandler(func(s *state, v string, ok bool) {
		if !ok {
			c.logger.Warn("broken recordings list received")
			s.recordingsList = recordingsBroken
			s.recordingsValid = false
			return
		}
		s.recordingsList = v
		s.recordingsValid = true
	}))
	d.Register(proto.GetUsername, c.strHandler(func(s *state, v string) { s.username = v }))

	d.Register(proto.ErrorCameraMissing, func(*proto.Reader) error {
		c.st.write(func(s *state) { s.status.CameraMissing = true })
		return nil
	})
}
