// Package serial implements transport.Link over a UART (a telemetry radio
// or a USB cable). Envelopes are written back to back; the reader
// resynchronises on the length prefix, terminal byte and CRC.
package serial

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.bug.st/serial"

	proto "github.com/ystepanoff/flightlink/protocol"
	"github.com/ystepanoff/flightlink/transport"
)

const (
	DefaultBaudRate    = 115200
	defaultReadTimeout = 10 * time.Millisecond
	readChunk          = 4096
)

// Port is the part of serial.Port the driver uses.
type Port interface {
	io.ReadWriteCloser
}

// Opener opens the named device.
type Opener func(path string, baud int, timeout time.Duration) (Port, error)

func openPort(path string, baud int, timeout time.Duration) (Port, error) {
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set timeout: %w", err)
	}
	return port, nil
}

type Config struct {
	Path        string
	BaudRate    int
	ReadTimeout time.Duration
	Level       int
}

type Driver struct {
	cfg     Config
	open    Opener
	logger  *slog.Logger
	session *transport.Session

	// mu guards port and serialises writes. It is never held across a
	// port read.
	mu   sync.Mutex
	port Port

	// owned by the single reader
	rxPort  Port
	pending []byte
	chunk   []byte
}

var _ transport.Link = (*Driver)(nil)

type Option func(*Driver)

// WithOpener replaces the device opener, mostly for tests.
func WithOpener(open Opener) Option {
	return func(d *Driver) { d.open = open }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

func New(cfg Config, opts ...Option) *Driver {
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	d := &Driver{
		cfg:     cfg,
		open:    openPort,
		logger:  slog.Default().With("component", "serial"),
		session: transport.NewSession(),
		chunk:   make([]byte, readChunk),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Ports lists the serial devices present on the host.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}

func (d *Driver) Connect() error {
	port, err := d.open(d.cfg.Path, d.cfg.BaudRate, d.cfg.ReadTimeout)
	if err != nil {
		return fmt.Errorf("serial: open %s: %w", d.cfg.Path, err)
	}
	d.mu.Lock()
	if d.port != nil {
		d.port.Close()
	}
	d.port = port
	d.mu.Unlock()
	d.session.Reset()
	d.logger.Info("port open", "path", d.cfg.Path, "baud", d.cfg.BaudRate)
	return nil
}

func (d *Driver) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.port != nil
}

func (d *Driver) current() Port {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.port
}

// drop closes port unless it has already been replaced.
func (d *Driver) drop(port Port, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.port == port {
		d.dropLocked(err)
	}
}

func (d *Driver) dropLocked(err error) {
	d.port.Close()
	d.port = nil
	d.logger.Warn("port closed", "err", err)
}

// Read returns at most one frame. It returns 0 when the port timed out
// without completing an envelope.
func (d *Driver) Read(p []byte) (int, error) {
	port := d.current()
	if port == nil {
		return 0, proto.ErrNotConnected
	}
	if port != d.rxPort {
		d.rxPort = port
		d.pending = d.pending[:0]
	}

	if n, ok := d.extract(port, p); ok {
		return n, nil
	}
	n, err := port.Read(d.chunk)
	if err != nil && !errors.Is(err, io.EOF) {
		d.drop(port, err)
		return 0, err
	}
	d.pending = append(d.pending, d.chunk[:n]...)
	n, _ = d.extract(port, p)
	return n, nil
}

// extract decodes buffered envelopes until one carries a frame.
func (d *Driver) extract(port Port, p []byte) (int, bool) {
	for len(d.pending) > 0 {
		e, used, err := proto.DecodeEnvelope(d.pending)
		switch {
		case errors.Is(err, proto.ErrShortPayload):
			// a corrupt length can claim more than will ever arrive
			skip := nextEnvelope(d.pending)
			if skip < 0 {
				return 0, false
			}
			d.pending = d.pending[skip:]
			continue
		case err != nil:
			// not an envelope boundary; slide by one byte
			d.pending = d.pending[1:]
			continue
		}
		d.pending = d.pending[used:]

		payload, reply := d.session.Open(e)
		if reply != nil {
			d.ack(port, reply)
		}
		if payload == nil {
			continue
		}
		return copy(p, payload), true
	}
	d.pending = d.pending[:0]
	return 0, false
}

func (d *Driver) ack(port Port, reply []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.port != port {
		return
	}
	if _, err := port.Write(reply); err != nil {
		d.logger.Debug("ack failed", "err", err)
	}
}

// nextEnvelope returns the offset of the first complete envelope after
// the head of buf, or -1.
func nextEnvelope(buf []byte) int {
	for i := 1; i+proto.EnvelopeOverhead <= len(buf); i++ {
		if _, _, err := proto.DecodeEnvelope(buf[i:]); err == nil {
			return i
		}
	}
	return -1
}

func (d *Driver) Write(p []byte, requestAck bool) error {
	data, err := d.session.Seal(p, requestAck)
	if err != nil {
		return err
	}
	retries := d.session.Retries()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.port == nil {
		return proto.ErrNotConnected
	}
	for range retries {
		if _, err := d.port.Write(data); err != nil {
			d.dropLocked(err)
			return err
		}
	}
	return nil
}

func (d *Driver) RxQuality() int { return d.session.Quality() }

func (d *Driver) RxLevel() int { return d.cfg.Level }

func (d *Driver) SetRetriesCount(n int) { d.session.SetRetries(n) }

func (d *Driver) RetriesCount() int { return d.session.Retries() }

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.port == nil {
		return nil
	}
	err := d.port.Close()
	d.port = nil
	return err
}
