package transport

import (
	"log/slog"
	"sync"

	proto "github.com/ystepanoff/flightlink/protocol"
)

// Handler applies one decoded record. Read errors are returned so the
// dispatcher can log them; the remaining records are still dispatched.
type Handler func(r *proto.Reader) error

// Dispatcher routes inbound records to the handler registered for their
// opcode.
type Dispatcher struct {
	layouts proto.Layouts
	logger  *slog.Logger

	mu       sync.RWMutex
	handlers map[proto.Opcode]Handler
}

func NewDispatcher(layouts proto.Layouts, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		layouts:  layouts,
		logger:   logger,
		handlers: make(map[proto.Opcode]Handler),
	}
}

// Register installs h for op, replacing any previous handler.
func (d *Dispatcher) Register(op proto.Opcode, h Handler) {
	d.mu.Lock()
	d.handlers[op] = h
	d.mu.Unlock()
}

// Dispatch decodes frame and runs the handler of every record. It returns
// the number of records that were applied without error.
func (d *Dispatcher) Dispatch(frame []byte) int {
	applied := 0
	for op, r := range d.layouts.Records(frame) {
		if op == proto.Unknown {
			continue
		}
		d.mu.RLock()
		h, ok := d.handlers[op]
		d.mu.RUnlock()
		if !ok || !d.layouts.Known(op) {
			d.logger.Warn("unknown record", "opcode", op)
			continue
		}
		if err := h(r); err != nil {
			d.logger.Debug("record dropped", "opcode", op, "err", err)
			continue
		}
		applied++
	}
	return applied
}
