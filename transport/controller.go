package transport

import (
	"context"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	proto "github.com/ystepanoff/flightlink/protocol"
)

const (
	rxBackoff      = 500 * time.Microsecond
	spectatePeriod = 10 * time.Millisecond
	rxBufferSize   = 1 << 16
	establishPoll  = 10 * time.Millisecond
)

// priority is a loop's SCHED_FIFO level and the nice value used when the
// process may not enter the real-time class.
type priority struct {
	realtime int
	nice     int
}

// the receive loop runs above the transmit loop
var (
	txPriority = priority{realtime: 98, nice: -10}
	rxPriority = priority{realtime: 99, nice: -15}
)

// Controller owns the link to one vehicle: the fixed-rate transmit loop,
// the receive loop and all state they share.
type Controller struct {
	link   Link
	inputs Inputs
	cfg    Config
	logger *slog.Logger
	clock  Clock

	tx         *Accumulator
	st         state
	history    *History
	dispatcher *Dispatcher

	debugMu sync.Mutex
	debug   strings.Builder

	start     time.Time
	linkState atomic.Uint32

	// transmit loop only
	shaper     proto.Shaper
	switches   [SwitchCount]bool
	requestAck bool
	lastPing   time.Time

	runMu     sync.Mutex
	runCtx    context.Context
	cancel    context.CancelFunc
	rxRunning atomic.Bool
	wg        sync.WaitGroup
}

type Option func(*Controller)

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock replaces the wall clock used for ticks, timestamps and retry
// sleeps.
func WithClock(clk Clock) Option {
	return func(c *Controller) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// New creates a controller for link. A nil inputs is treated as centred
// sticks with every switch off.
func New(link Link, inputs Inputs, cfg Config, opts ...Option) *Controller {
	if inputs == nil {
		inputs = &Sticks{}
	}
	c := &Controller{
		link:    link,
		inputs:  inputs,
		cfg:     cfg.withDefaults(),
		logger:  slog.Default().With("component", "controller"),
		clock:   SystemClock(),
		tx:      NewAccumulator(),
		history: NewHistory(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.start = c.clock.Now()
	c.dispatcher = NewDispatcher(proto.Downlink, c.logger)
	c.registerHandlers()
	return c
}

// Start launches the transmit loop. The receive loop is started by the
// transmit loop once the link is up, or immediately in spectate mode.
// Start is a no-op on a running controller.
func (c *Controller) Start(ctx context.Context) {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.runCtx = ctx
	c.wg.Add(1)
	go c.txLoop(ctx)
	if c.cfg.Spectate {
		c.startRx(ctx)
	}
}

// Stop cancels both loops and waits for them to return.
func (c *Controller) Stop() {
	c.runMu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.runCtx = nil
	c.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	c.wg.Wait()
	c.rxRunning.Store(false)
}

func (c *Controller) startRx(ctx context.Context) bool {
	if !c.rxRunning.CompareAndSwap(false, true) {
		return false
	}
	c.wg.Add(1)
	go c.rxLoop(ctx)
	return true
}

// millis returns milliseconds since the controller was created.
func (c *Controller) millis() int64 {
	return c.clock.Now().Sub(c.start).Milliseconds()
}

func (c *Controller) tick16() uint16 { return uint16(c.millis()) }

func (c *Controller) setLinkState(s LinkState) { c.linkState.Store(uint32(s)) }

// LinkState reports the transmit loop connection state.
func (c *Controller) LinkState() LinkState { return LinkState(c.linkState.Load()) }

// connect makes one connection attempt and backs off on failure.
func (c *Controller) connect(ctx context.Context) {
	c.setLinkState(Connecting)
	if err := c.link.Connect(); err != nil {
		c.logger.Debug("connect failed", "err", err)
		c.setLinkState(Disconnected)
		_ = c.clock.Sleep(ctx, c.cfg.ConnectRetry)
		return
	}
	c.setLinkState(Connected)
	c.logger.Info("connected")
}

func (c *Controller) lockThread() func() {
	if !c.cfg.RealtimePriority {
		return func() {}
	}
	runtime.LockOSThread()
	return runtime.UnlockOSThread
}

func (c *Controller) raise(p priority, loop string) {
	if !c.cfg.RealtimePriority {
		return
	}
	if err := raisePriority(p); err != nil {
		c.logger.Debug("priority unchanged", "loop", loop, "err", err)
	}
}

// writeDirect sends frame immediately, bypassing the accumulator. Write
// errors are transport-level and left to the caller's retry loop.
func (c *Controller) writeDirect(frame *proto.Frame) {
	if frame.Len() == 0 {
		return
	}
	if err := c.link.Write(frame.Bytes(), false); err != nil {
		c.logger.Debug("write failed", "err", err)
	}
}

func (c *Controller) Telemetry() Telemetry {
	var t Telemetry
	c.st.read(func(s *state) {
		t = s.telemetry
		t.MotorsSpeed = append([]float32(nil), s.telemetry.MotorsSpeed...)
	})
	return t
}

func (c *Controller) Status() Status {
	var st Status
	c.st.read(func(s *state) { st = s.status })
	return st
}

func (c *Controller) Gains() Gains {
	var g Gains
	c.st.read(func(s *state) { g = s.gains })
	return g
}

// Ping returns the last measured round-trip time.
func (c *Controller) Ping() time.Duration {
	var p uint16
	c.st.read(func(s *state) { p = s.ping })
	return time.Duration(p) * time.Millisecond
}

// Established reports whether a PING reply has been received.
func (c *Controller) Established() bool {
	var ok bool
	c.st.read(func(s *state) { ok = s.pinged })
	return ok
}

// WaitEstablished blocks until a PING reply has been received. It returns
// ErrTimeout once timeout has passed and ctx.Err() when ctx is done.
func (c *Controller) WaitEstablished(ctx context.Context, timeout time.Duration) error {
	deadline := c.clock.Now().Add(timeout)
	for !c.Established() {
		if !c.clock.Now().Before(deadline) {
			return proto.ErrTimeout
		}
		if err := c.clock.Sleep(ctx, establishPoll); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) Username() string {
	var u string
	c.st.read(func(s *state) { u = s.username })
	return u
}

// Thrust returns the cached thrust setpoint.
func (c *Controller) Thrust() float32 {
	var v float32
	c.st.read(func(s *state) { v = s.thrust })
	return v
}

// ControlRPY returns the last roll/pitch/yaw setpoints sent.
func (c *Controller) ControlRPY() Vec3 {
	var v Vec3
	c.st.read(func(s *state) { v = s.controlRPY })
	return v
}

// RPY returns the last attitude reported by the vehicle.
func (c *Controller) RPY() Vec3 {
	var v Vec3
	c.st.read(func(s *state) { v = s.rpy })
	return v
}

func (c *Controller) Altitude() float32 {
	var v float32
	c.st.read(func(s *state) { v = s.altitude })
	return v
}

func (c *Controller) Acceleration() float32 {
	var v float32
	c.st.read(func(s *state) { v = s.accel })
	return v
}

func (c *Controller) Connected() bool { return c.link.IsConnected() }

// LinkQuality returns the local link receive quality (%) and level (dBm).
func (c *Controller) LinkQuality() (quality, level int) {
	return c.link.RxQuality(), c.link.RxLevel()
}

// DebugOutput returns and clears the text the vehicle has printed since
// the previous call.
func (c *Controller) DebugOutput() string {
	c.debugMu.Lock()
	defer c.debugMu.Unlock()
	out := c.debug.String()
	c.debug.Reset()
	return out
}

func (c *Controller) AttitudeHistory() []Vec3Sample { return c.history.Attitude() }

func (c *Controller) RatesHistory() []Vec3Sample { return c.history.Rates() }

func (c *Controller) AltitudeHistory() []ScalarSample { return c.history.Altitude() }

// Receive applies an inbound frame as if it had been read from the link.
func (c *Controller) Receive(frame []byte) int { return c.dispatcher.Dispatch(frame) }
