package transport

import (
	"context"

	proto "github.com/ystepanoff/flightlink/protocol"
)

func (c *Controller) txLoop(ctx context.Context) {
	defer c.wg.Done()
	defer c.lockThread()()

	raised := false
	for ctx.Err() == nil {
		if !c.link.IsConnected() {
			if c.LinkState() == Connected {
				c.logger.Warn("link lost")
				c.setLinkState(Disconnected)
			}
			if c.cfg.Spectate {
				// the receive loop owns the connection in spectate mode
				_ = c.clock.Sleep(ctx, c.cfg.ConnectRetry)
				continue
			}
			c.connect(ctx)
			if c.link.IsConnected() && !raised {
				c.raise(txPriority, "tx")
				raised = true
			}
			continue
		}
		if c.cfg.Spectate {
			c.flush(ctx)
			continue
		}
		c.tick(ctx)
	}
}

// flush forwards whatever the command API queued, at 100 Hz.
func (c *Controller) flush(ctx context.Context) {
	if frame := c.tx.Drain(); frame != nil {
		if err := c.link.Write(frame, false); err != nil {
			c.logger.Debug("write failed", "err", err)
		}
	}
	_ = c.clock.Sleep(ctx, spectatePeriod)
}

// tick runs one control loop iteration: sample inputs, queue the control
// sample and keep-alive records, write the frame once and sleep out the
// rest of the period.
func (c *Controller) tick(ctx context.Context) {
	began := c.clock.Now()

	c.pollSwitches()

	sample := c.shaper.Shape(c.inputs.Thrust(), c.inputs.Yaw(), c.inputs.Pitch(), c.inputs.Roll())
	c.tx.Append(func(f *proto.Frame) {
		b, _ := sample.MarshalBinary()
		f.WriteOpcode(proto.Controls)
		f.WriteBytes(b)
	})

	requestAck := false
	if began.Sub(c.lastPing) >= c.cfg.PingInterval {
		requestAck = true
		c.queuePing()
		c.lastPing = c.clock.Now()
	}

	if frame := c.tx.Drain(); frame != nil {
		if err := c.link.Write(frame, c.requestAck); err != nil {
			c.logger.Debug("write failed", "err", err)
		}
		c.requestAck = requestAck
	}

	if rest := c.cfg.tickPeriod() - c.clock.Now().Sub(began); rest > 0 {
		_ = c.clock.Sleep(ctx, rest)
	}
}

func (c *Controller) queuePing() {
	var rtt uint16
	var username string
	c.st.read(func(s *state) {
		rtt = s.ping
		username = s.username
	})
	now := c.tick16()
	c.tx.Append(func(f *proto.Frame) {
		f.WriteOpcode(proto.Ping)
		f.WriteU16(now)
		f.WriteU16(rtt)
	})

	if !c.rxRunning.Load() {
		c.bootstrapRx()
	}
	if username == "" {
		c.tx.AppendOpcodes(proto.GetUsername)
	}
}

// bootstrapRx starts the receive loop on the first ping after connecting
// and asks for the current gains.
func (c *Controller) bootstrapRx() {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.runCtx == nil || c.rxRunning.Load() {
		return
	}
	c.startRx(c.runCtx)
	c.tx.AppendOpcodes(proto.RollPIDFactors, proto.PitchPIDFactors, proto.YawPIDFactors, proto.OuterPIDFactors, proto.HorizonOffset)
}

// pollSwitches samples the switch bank, logs edges and reconciles the
// vehicle state with the switch levels.
func (c *Controller) pollSwitches() {
	prev := c.switches
	for i := range c.switches {
		on := c.inputs.Switch(i)
		switch {
		case on && !prev[i]:
			c.logger.Info("switch on", "switch", i)
		case !on && prev[i]:
			c.logger.Info("switch off", "switch", i)
		}
		c.switches[i] = on
	}
	sw := c.switches

	if sw[1] && !prev[1] {
		c.VideoTakePicture()
	}

	st := c.Status()
	switch {
	case sw[2] && !st.Armed && st.Calibrated:
		_ = c.Arm()
	case !sw[2] && st.Armed:
		c.logger.Info("disarming")
		c.Disarm()
	}

	switch {
	case sw[3] && st.Mode != ModeStabilize:
		c.SetMode(ModeStabilize)
	case !sw[3] && st.Mode != ModeRate:
		c.SetMode(ModeRate)
	}

	switch {
	case sw[4] && !st.NightMode:
		c.SetNightMode(true)
	case !sw[4] && st.NightMode:
		c.SetNightMode(false)
	}

	switch {
	case sw[5] && !st.VideoRecording:
		c.VideoStartRecord()
	case !sw[5] && st.VideoRecording:
		c.VideoStopRecord()
	}
}
