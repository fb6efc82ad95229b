package transport

import (
	"sync"

	proto "github.com/ystepanoff/flightlink/protocol"
)

// Accumulator is the outgoing frame shared by the transmit loop and the
// command API. It is drained once per transmit tick.
type Accumulator struct {
	mu    sync.Mutex
	frame *proto.Frame
}

func NewAccumulator() *Accumulator {
	return &Accumulator{frame: proto.NewFrame()}
}

// Append runs fn with exclusive access to the pending frame.
func (a *Accumulator) Append(fn func(f *proto.Frame)) {
	a.mu.Lock()
	fn(a.frame)
	a.mu.Unlock()
}

// AppendOpcodes queues records that carry no payload.
func (a *Accumulator) AppendOpcodes(ops ...proto.Opcode) {
	a.mu.Lock()
	for _, op := range ops {
		a.frame.WriteOpcode(op)
	}
	a.mu.Unlock()
}

// Drain returns a copy of the pending bytes and resets the frame. It
// returns nil when nothing was queued.
func (a *Accumulator) Drain() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.frame.Len() == 0 {
		return nil
	}
	out := make([]byte, a.frame.Len())
	copy(out, a.frame.Bytes())
	a.frame.Reset()
	return out
}

// Pending returns a copy of the queued bytes without draining them.
func (a *Accumulator) Pending() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]byte, a.frame.Len())
	copy(out, a.frame.Bytes())
	return out
}
