// Package udp implements transport.Link over a UDP socket. Every frame
// travels in one envelope datagram.
package udp

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	proto "github.com/ystepanoff/flightlink/protocol"
	"github.com/ystepanoff/flightlink/transport"
)

const defaultReadTimeout = 10 * time.Millisecond

type Config struct {
	// Remote is the vehicle address, host:port.
	Remote string
	// Local optionally binds the local end, host:port.
	Local string
	// ReadTimeout bounds one Read call. Zero selects 10 ms.
	ReadTimeout time.Duration
	// Level is reported by RxLevel; plain sockets carry no signal level.
	Level int
}

type Driver struct {
	cfg     Config
	logger  *slog.Logger
	session *transport.Session

	mu   sync.Mutex
	conn *net.UDPConn
	buf  []byte
}

var _ transport.Link = (*Driver)(nil)

func New(cfg Config, logger *slog.Logger) *Driver {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if logger == nil {
		logger = slog.Default().With("component", "udp")
	}
	return &Driver{
		cfg:     cfg,
		logger:  logger,
		session: transport.NewSession(),
		buf:     make([]byte, proto.MaxEnvelopeSize),
	}
}

func (d *Driver) Connect() error {
	raddr, err := net.ResolveUDPAddr("udp", d.cfg.Remote)
	if err != nil {
		return fmt.Errorf("udp: resolve %s: %w", d.cfg.Remote, err)
	}
	var laddr *net.UDPAddr
	if d.cfg.Local != "" {
		if laddr, err = net.ResolveUDPAddr("udp", d.cfg.Local); err != nil {
			return fmt.Errorf("udp: resolve %s: %w", d.cfg.Local, err)
		}
	}
	conn, err := net.DialUDP("udp", laddr, raddr)
	if err != nil {
		return fmt.Errorf("udp: dial %s: %w", d.cfg.Remote, err)
	}

	d.mu.Lock()
	if d.conn != nil {
		d.conn.Close()
	}
	d.conn = conn
	d.mu.Unlock()
	d.session.Reset()
	d.logger.Info("socket open", "remote", raddr.String())
	return nil
}

func (d *Driver) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn != nil
}

func (d *Driver) current() *net.UDPConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn
}

// drop closes conn if it is still the active socket.
func (d *Driver) drop(conn *net.UDPConn, err error) {
	d.mu.Lock()
	if d.conn == conn {
		d.conn = nil
		conn.Close()
	}
	d.mu.Unlock()
	d.logger.Warn("socket closed", "err", err)
}

func (d *Driver) Read(p []byte) (int, error) {
	conn := d.current()
	if conn == nil {
		return 0, proto.ErrNotConnected
	}
	if err := conn.SetReadDeadline(time.Now().Add(d.cfg.ReadTimeout)); err != nil {
		return 0, err
	}
	n, err := conn.Read(d.buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return 0, nil
		}
		d.drop(conn, err)
		return 0, err
	}

	e, _, err := proto.DecodeEnvelope(d.buf[:n])
	if err != nil {
		d.logger.Debug("datagram dropped", "err", err)
		return 0, nil
	}
	payload, reply := d.session.Open(e)
	if reply != nil {
		if _, err := conn.Write(reply); err != nil {
			d.logger.Debug("ack failed", "err", err)
		}
	}
	return copy(p, payload), nil
}

func (d *Driver) Write(p []byte, requestAck bool) error {
	conn := d.current()
	if conn == nil {
		return proto.ErrNotConnected
	}
	data, err := d.session.Seal(p, requestAck)
	if err != nil {
		return err
	}
	for range d.session.Retries() {
		if _, err := conn.Write(data); err != nil {
			d.drop(conn, err)
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
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}
