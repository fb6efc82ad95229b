package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	proto "github.com/ystepanoff/flightlink/protocol"
)

type sentFrame struct {
	data       []byte
	requestAck bool
	retries    int
}

// mockLink implements Link for testing
type mockLink struct {
	mu           sync.Mutex
	connected    bool
	failConnects int
	connects     int
	rx           [][]byte
	tx           []sentFrame
	retries      int
	onWrite      func(p []byte)
}

func newMockLink() *mockLink { return &mockLink{retries: 3} }

func (l *mockLink) Connect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connects++
	if l.failConnects > 0 {
		l.failConnects--
		return errors.New("no route")
	}
	l.connected = true
	return nil
}

func (l *mockLink) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

func (l *mockLink) Read(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.rx) == 0 {
		return 0, nil
	}
	n := copy(p, l.rx[0])
	l.rx = l.rx[1:]
	return n, nil
}

func (l *mockLink) Write(p []byte, requestAck bool) error {
	l.mu.Lock()
	data := append([]byte(nil), p...)
	l.tx = append(l.tx, sentFrame{data: data, requestAck: requestAck, retries: l.retries})
	hook := l.onWrite
	l.mu.Unlock()
	if hook != nil {
		hook(data)
	}
	return nil
}

func (l *mockLink) RxQuality() int { return 87 }
func (l *mockLink) RxLevel() int   { return -42 }

func (l *mockLink) SetRetriesCount(n int) {
	l.mu.Lock()
	l.retries = n
	l.mu.Unlock()
}

func (l *mockLink) RetriesCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.retries
}

func (l *mockLink) InjectRx(data []byte) {
	l.mu.Lock()
	l.rx = append(l.rx, append([]byte(nil), data...))
	l.mu.Unlock()
}

func (l *mockLink) TxLog() []sentFrame {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]sentFrame(nil), l.tx...)
}

// fakeClock advances instantly on Sleep and runs onSleep afterwards.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  []time.Duration
	onSleep func(n int)
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func (f *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.sleeps = append(f.sleeps, d)
	n := len(f.sleeps)
	hook := f.onSleep
	f.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RealtimePriority = false
	return cfg
}

func newTestController(t *testing.T, cfg Config) (*Controller, *mockLink, *fakeClock) {
	t.Helper()
	link := newMockLink()
	clk := newFakeClock()
	c := New(link, &Sticks{}, cfg, WithClock(clk))
	return c, link, clk
}

// opcodes lists the uplink records of an encoded frame.
func opcodes(t *testing.T, data []byte) []proto.Opcode {
	t.Helper()
	var ops []proto.Opcode
	for op, r := range proto.Uplink.Records(data) {
		require.True(t, proto.Uplink.Known(op), "unexpected opcode %v", op)
		_, _ = r.ReadBytes(r.Remaining())
		ops = append(ops, op)
	}
	return ops
}

func downlink(build func(f *proto.Frame)) []byte {
	f := proto.NewFrame()
	build(f)
	return f.Bytes()
}
