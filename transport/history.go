package transport

import "sync"

// HistoryCapacity bounds every history ring.
const HistoryCapacity = 256

// Ring is a bounded FIFO. Pushing into a full ring evicts the oldest entry.
type Ring[T any] struct {
	data       []T
	head, tail int // head = oldest, tail = next push
	count      int
}

func NewRing[T any](capacity int) *Ring[T] {
	return &Ring[T]{data: make([]T, capacity)}
}

func (r *Ring[T]) Push(v T) {
	if len(r.data) == 0 {
		return
	}
	if r.count == len(r.data) {
		r.head = (r.head + 1) % len(r.data)
		r.count--
	}
	r.data[r.tail] = v
	r.tail = (r.tail + 1) % len(r.data)
	r.count++
}

func (r *Ring[T]) Len() int { return r.count }

// Snapshot copies the entries, oldest first.
func (r *Ring[T]) Snapshot() []T {
	out := make([]T, r.count)
	i := r.head
	for c := 0; c < r.count; c++ {
		out[c] = r.data[i]
		i = (i + 1) % len(r.data)
	}
	return out
}

// Vec3Sample is a timestamped three-axis reading. Millis counts
// milliseconds since the controller session started.
type Vec3Sample struct {
	X, Y, Z float32
	Millis  int64
}

type ScalarSample struct {
	Value  float32
	Millis int64
}

// History keeps the attitude, angular rate and altitude series behind one
// lock, separate from the telemetry state lock.
type History struct {
	mu       sync.Mutex
	attitude *Ring[Vec3Sample]
	rates    *Ring[Vec3Sample]
	altitude *Ring[ScalarSample]
}

func NewHistory() *History {
	return &History{
		attitude: NewRing[Vec3Sample](HistoryCapacity),
		rates:    NewRing[Vec3Sample](HistoryCapacity),
		altitude: NewRing[ScalarSample](HistoryCapacity),
	}
}

func (h *History) AddAttitude(s Vec3Sample) {
	h.mu.Lock()
	h.attitude.Push(s)
	h.mu.Unlock()
}

func (h *History) AddRates(s Vec3Sample) {
	h.mu.Lock()
	h.rates.Push(s)
	h.mu.Unlock()
}

func (h *History) AddAltitude(s ScalarSample) {
	h.mu.Lock()
	h.altitude.Push(s)
	h.mu.Unlock()
}

func (h *History) Attitude() []Vec3Sample {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attitude.Snapshot()
}

func (h *History) Rates() []Vec3Sample {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rates.Snapshot()
}

func (h *History) Altitude() []ScalarSample {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.altitude.Snapshot()
}
