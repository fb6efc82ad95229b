package transport

import (
	"context"
	"fmt"
	"strings"
	"time"

	proto "github.com/ystepanoff/flightlink/protocol"
)

// Clock is the time source of the controller loops and retry waits.
type Clock interface {
	Now() time.Time
	// Sleep pauses for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

func SystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retryPolicy describes one confirmed-delivery loop.
type retryPolicy struct {
	backoff time.Duration // after every send
	penalty time.Duration // extra wait when the send was not confirmed
	limit   int           // attempts before ErrNotConfirmed; 0 = unbounded
}

// retryUntil repeats send until done reports true. Without a deadline or
// cancellation on ctx it blocks for as long as the vehicle stays silent.
func retryUntil(ctx context.Context, clk Clock, p retryPolicy, send func(), done func() bool) error {
	for attempt := 0; ; attempt++ {
		if done() {
			return nil
		}
		if p.limit > 0 && attempt >= p.limit {
			return proto.ErrNotConfirmed
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		send()
		if err := clk.Sleep(ctx, p.backoff); err != nil {
			return err
		}
		if p.penalty > 0 && !done() {
			if err := clk.Sleep(ctx, p.penalty); err != nil {
				return err
			}
		}
	}
}

// repeat sends a fixed number of times with a pause after each send.
func repeat(ctx context.Context, clk Clock, n int, pause time.Duration, send func()) error {
	for range n {
		if err := ctx.Err(); err != nil {
			return err
		}
		send()
		if err := clk.Sleep(ctx, pause); err != nil {
			return err
		}
	}
	return nil
}

var (
	calibratePolicy = retryPolicy{backoff: 50 * time.Millisecond, penalty: 250 * time.Millisecond}
	fetchPolicy     = retryPolicy{backoff: 250 * time.Millisecond}
	chunkPolicy     = retryPolicy{backoff: 50 * time.Millisecond, penalty: 10 * time.Millisecond}
	pidPolicy       = retryPolicy{backoff: 100 * time.Millisecond}

	burstCount = 8
	burstPause = 50 * time.Millisecond

	recordingsWindow = time.Second
)

func (c *Controller) calibrated() bool {
	var ok bool
	c.st.read(func(s *state) { ok = s.status.Calibrating || s.status.Calibrated })
	return ok
}

// Calibrate asks the vehicle to calibrate its attitude reference and blocks
// until it reports calibrating or calibrated.
func (c *Controller) Calibrate(ctx context.Context) error {
	return c.calibrate(ctx, 0)
}

// CalibrateAll is Calibrate with a full sensor recalibration.
func (c *Controller) CalibrateAll(ctx context.Context) error {
	return c.calibrate(ctx, 1)
}

func (c *Controller) calibrate(ctx context.Context, full uint32) error {
	c.logger.Info("calibrating", "full", full == 1)
	c.st.write(func(s *state) {
		s.status.Calibrated = false
		s.status.Calibrating = false
	})
	return retryUntil(ctx, c.clock, calibratePolicy, func() {
		c.tx.Append(func(f *proto.Frame) {
			f.WriteOpcode(proto.Calibrate)
			f.WriteU32(full)
			f.WriteF32(0)
		})
	}, c.calibrated)
}

// fetchString queues op until get returns a non-empty string.
func (c *Controller) fetchString(ctx context.Context, op proto.Opcode, get func(s *state) string) (string, error) {
	var v string
	err := retryUntil(ctx, c.clock, fetchPolicy, func() {
		c.tx.AppendOpcodes(op)
	}, func() bool {
		c.st.read(func(s *state) { v = get(s) })
		return v != ""
	})
	if err != nil {
		return "", err
	}
	return v, nil
}

// BoardInfos returns the vehicle board description, fetching it once.
func (c *Controller) BoardInfos(ctx context.Context) (string, error) {
	return c.fetchString(ctx, proto.GetBoardInfos, func(s *state) string { return s.boardInfos })
}

// SensorsInfos returns the vehicle sensor list, fetching it once.
func (c *Controller) SensorsInfos(ctx context.Context) (string, error) {
	return c.fetchString(ctx, proto.GetSensorsInfos, func(s *state) string { return s.sensorsInfos })
}

// ConfigFile downloads the vehicle configuration. Blobs that fail their
// checksum are discarded and requested again.
func (c *Controller) ConfigFile(ctx context.Context) (string, error) {
	c.st.write(func(s *state) { s.configFile = "" })
	return c.fetchString(ctx, proto.GetConfigFile, func(s *state) string { return s.configFile })
}

// VideoWhiteBalance asks the camera for its white balance mode.
func (c *Controller) VideoWhiteBalance(ctx context.Context) (string, error) {
	c.st.write(func(s *state) { s.whiteBalance = "" })
	return c.fetchString(ctx, proto.VideoWhiteBalance, func(s *state) string { return s.whiteBalance })
}

// SetConfigFile uploads a configuration and blocks until the vehicle
// confirms it stored the file.
func (c *Controller) SetConfigFile(ctx context.Context, content string) error {
	frame := proto.NewFrame(proto.SetConfigFile)
	frame.WriteU32(proto.Checksum([]byte(content)))
	frame.WriteString(content)

	c.logger.Info("uploading config file", "bytes", len(content))
	c.st.write(func(s *state) { s.configUploadValid = false })
	err := retryUntil(ctx, c.clock, fetchPolicy, func() {
		c.writeDirect(frame)
	}, func() bool {
		var ok bool
		c.st.read(func(s *state) { ok = s.configUploadValid })
		return ok
	})
	if err != nil {
		return fmt.Errorf("set config file: %w", err)
	}
	c.st.write(func(s *state) { s.configFile = "" })
	c.logger.Info("config file uploaded")
	return nil
}

// UploadUpdateInit announces a firmware upload.
func (c *Controller) UploadUpdateInit(ctx context.Context) error {
	frame := proto.NewFrame(proto.UpdateUploadInit)
	return repeat(ctx, c.clock, burstCount, burstPause, func() { c.writeDirect(frame) })
}

// UploadUpdateData sends one firmware chunk and blocks until the vehicle
// acknowledges it. The link's own retries are lowered to one for the
// duration of the chunk and restored afterwards.
func (c *Controller) UploadUpdateData(ctx context.Context, data []byte, offset uint32) error {
	frame := proto.NewFrame()
	proto.FirmwareChunk{Offset: offset, Data: data}.AppendTo(frame)

	c.st.write(func(s *state) { s.updateUploadValid = false })
	prev := c.link.RetriesCount()
	c.link.SetRetriesCount(1)
	defer c.link.SetRetriesCount(prev)

	err := retryUntil(ctx, c.clock, chunkPolicy, func() {
		c.writeDirect(frame)
	}, func() bool {
		var ok bool
		c.st.read(func(s *state) { ok = s.updateUploadValid })
		return ok
	})
	if err != nil {
		return fmt.Errorf("upload chunk at %d: %w", offset, err)
	}
	return nil
}

// UploadUpdateProcess asks the vehicle to verify and apply the uploaded
// image.
func (c *Controller) UploadUpdateProcess(ctx context.Context, image []byte) error {
	frame := proto.NewFrame(proto.UpdateUploadProcess)
	frame.WriteU32(proto.Checksum(image))
	return repeat(ctx, c.clock, burstCount, burstPause, func() { c.writeDirect(frame) })
}

// RecordingsList returns the names of the videos stored on the vehicle. A
// request is repeated every second until a list with a valid checksum
// arrives.
func (c *Controller) RecordingsList(ctx context.Context) ([]string, error) {
	c.st.write(func(s *state) {
		s.recordingsList = ""
		s.recordingsValid = false
	})
	var list string
	valid := func() bool {
		var ok bool
		c.st.read(func(s *state) {
			ok = s.recordingsValid
			list = s.recordingsList
		})
		return ok
	}
	poll := fetchPolicy
	poll.limit = int(recordingsWindow / fetchPolicy.backoff)
	err := retryUntil(ctx, c.clock, retryPolicy{}, func() {
		c.tx.AppendOpcodes(proto.GetRecordingsList)
		// wait out the window; a timeout here just means another request
		_ = retryUntil(ctx, c.clock, poll, func() {}, valid)
	}, valid)
	if err != nil {
		return nil, err
	}
	return splitRecordings(list), nil
}

func splitRecordings(list string) []string {
	var out []string
	for _, name := range strings.Split(list, ";") {
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

// ReloadPIDs requests every PID triple again. The requests are repeated a
// few times 10 ms apart.
func (c *Controller) ReloadPIDs(ctx context.Context) error {
	return repeat(ctx, c.clock, 4, 10*time.Millisecond, func() {
		c.tx.AppendOpcodes(proto.RollPIDFactors, proto.PitchPIDFactors, proto.YawPIDFactors, proto.OuterPIDFactors)
	})
}

func (c *Controller) SetRollPID(ctx context.Context, g PID) error {
	return c.setPID(ctx, "roll", g, [3]proto.Opcode{proto.SetRollPIDP, proto.SetRollPIDI, proto.SetRollPIDD},
		func(gs *Gains) PID { return gs.Roll })
}

func (c *Controller) SetPitchPID(ctx context.Context, g PID) error {
	return c.setPID(ctx, "pitch", g, [3]proto.Opcode{proto.SetPitchPIDP, proto.SetPitchPIDI, proto.SetPitchPIDD},
		func(gs *Gains) PID { return gs.Pitch })
}

func (c *Controller) SetYawPID(ctx context.Context, g PID) error {
	return c.setPID(ctx, "yaw", g, [3]proto.Opcode{proto.SetYawPIDP, proto.SetYawPIDI, proto.SetYawPIDD},
		func(gs *Gains) PID { return gs.Yaw })
}

func (c *Controller) SetOuterPID(ctx context.Context, g PID) error {
	return c.setPID(ctx, "outer", g, [3]proto.Opcode{proto.SetOuterPIDP, proto.SetOuterPIDI, proto.SetOuterPIDD},
		func(gs *Gains) PID { return gs.Outer })
}

// setPID resends the three terms until the vehicle echoes values within
// PIDTolerance, giving up after PIDRetries attempts.
func (c *Controller) setPID(ctx context.Context, name string, g PID, ops [3]proto.Opcode, get func(*Gains) PID) error {
	p := pidPolicy
	p.limit = c.cfg.PIDRetries
	err := retryUntil(ctx, c.clock, p, func() {
		c.tx.Append(func(f *proto.Frame) {
			for i, v := range [3]float32{g.P, g.I, g.D} {
				f.WriteOpcode(ops[i])
				f.WriteF32(v)
			}
		})
	}, func() bool {
		var cur PID
		c.st.read(func(s *state) { cur = get(&s.gains) })
		return cur.within(g, c.cfg.PIDTolerance)
	})
	if err != nil {
		c.logger.Warn("pid not applied", "loop", name, "err", err)
		return fmt.Errorf("set %s pid: %w", name, err)
	}
	c.logger.Info("pid applied", "loop", name)
	return nil
}
