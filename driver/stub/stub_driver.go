package stub

import (
	"errors"
	"sync"

	"github.com/ystepanoff/flightlink/transport"
)

var ErrConnectRefused = errors.New("stub: connect refused")

// Sent is one frame handed to Write.
type Sent struct {
	Data       []byte
	RequestAck bool
}

// Responder plays the vehicle: it receives every written frame and returns
// the frames to deliver back to the reader.
type Responder func(frame []byte) [][]byte

// Driver implements an in-memory transport.Link for host-side testing.
type Driver struct {
	mu           sync.Mutex
	connected    bool
	failConnects int
	quality      int
	level        int
	retries      int
	respond      Responder
	rxBuf        ringBuffer
	txBuf        ringBuffer
}

var _ transport.Link = (*Driver)(nil)

func New() *Driver { return &Driver{quality: 100, retries: 1} }

// NewLoopback returns a driver whose writes are answered by respond.
func NewLoopback(respond Responder) *Driver {
	d := New()
	d.respond = respond
	return d
}

// FailConnects makes the next n Connect calls fail.
func (d *Driver) FailConnects(n int) {
	d.mu.Lock()
	d.failConnects = n
	d.mu.Unlock()
}

func (d *Driver) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failConnects > 0 {
		d.failConnects--
		return ErrConnectRefused
	}
	d.connected = true
	return nil
}

// Disconnect simulates a dropped link.
func (d *Driver) Disconnect() {
	d.mu.Lock()
	d.connected = false
	d.mu.Unlock()
}

func (d *Driver) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

func (d *Driver) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return 0, nil
	}
	sent, ok := d.rxBuf.pop()
	if !ok {
		return 0, nil
	}
	return copy(p, sent.Data), nil
}

func (d *Driver) Write(p []byte, requestAck bool) error {
	d.mu.Lock()
	frame := make([]byte, len(p))
	copy(frame, p)
	d.txBuf.push(Sent{Data: frame, RequestAck: requestAck})
	respond := d.respond
	d.mu.Unlock()

	if respond != nil {
		for _, reply := range respond(frame) {
			d.InjectRx(reply)
		}
	}
	return nil
}

func (d *Driver) SetQuality(quality, level int) {
	d.mu.Lock()
	d.quality, d.level = quality, level
	d.mu.Unlock()
}

func (d *Driver) RxQuality() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.quality
}

func (d *Driver) RxLevel() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.level
}

func (d *Driver) SetRetriesCount(n int) {
	d.mu.Lock()
	d.retries = n
	d.mu.Unlock()
}

func (d *Driver) RetriesCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.retries
}

// InjectRx queues a frame for the next Read.
func (d *Driver) InjectRx(data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	frame := make([]byte, len(data))
	copy(frame, data)
	d.rxBuf.push(Sent{Data: frame})
}

// TxLog returns the most recent written frames, oldest first.
func (d *Driver) TxLog() []Sent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.txBuf.snapshot()
}

const ringCapacity = 64

type ringBuffer struct {
	data       [ringCapacity]Sent
	head, tail int // head = next pop, tail = next push
	count      int
}

func (rb *ringBuffer) push(s Sent) {
	if rb.count == ringCapacity {
		// Overwrite the oldest when buffer is full to keep memory bounded
		rb.data[rb.head] = Sent{}
		rb.head = (rb.head + 1) % ringCapacity
		rb.count--
	}
	rb.data[rb.tail] = s
	rb.tail = (rb.tail + 1) % ringCapacity
	rb.count++
}

func (rb *ringBuffer) pop() (Sent, bool) {
	if rb.count == 0 {
		return Sent{}, false
	}
	s := rb.data[rb.head]
	rb.data[rb.head] = Sent{}
	rb.head = (rb.head + 1) % ringCapacity
	rb.count--
	return s, true
}

func (rb *ringBuffer) snapshot() []Sent {
	out := make([]Sent, 0, rb.count)
	i := rb.head
	for c := 0; c < rb.count; c++ {
		s := rb.data[i]
		out = append(out, Sent{Data: append([]byte(nil), s.Data...), RequestAck: s.RequestAck})
		i = (i + 1) % ringCapacity
	}
	return out
}
