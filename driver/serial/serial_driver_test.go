package serial

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	proto "github.com/ystepanoff/flightlink/protocol"
)

type fakePort struct {
	mu      sync.Mutex
	rx      bytes.Buffer
	tx      [][]byte
	readErr error
	closed  bool
}

func (f *fakePort) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return 0, f.readErr
	}
	if f.rx.Len() == 0 {
		return 0, nil
	}
	return f.rx.Read(p)
}

func (f *fakePort) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tx = append(f.tx, append([]byte(nil), p...))
	return len(p), nil
}

func (f *fakePort) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakePort) feed(b []byte) {
	f.mu.Lock()
	f.rx.Write(b)
	f.mu.Unlock()
}

func (f *fakePort) written() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.tx...)
}

// slowPort blocks every read for the read timeout, like an idle UART.
type slowPort struct {
	*fakePort
	delay time.Duration
}

func (s *slowPort) Read(p []byte) (int, error) {
	time.Sleep(s.delay)
	return s.fakePort.Read(p)
}

func newTestDriver(t *testing.T) (*Driver, *fakePort) {
	t.Helper()
	port := &fakePort{}
	return newDriverOn(t, port), port
}

func newDriverOn(t *testing.T, port Port) *Driver {
	t.Helper()
	d := New(Config{Path: "/dev/ttyTEST"}, WithOpener(func(path string, baud int, _ time.Duration) (Port, error) {
		assert.Equal(t, "/dev/ttyTEST", path)
		assert.Equal(t, DefaultBaudRate, baud)
		return port, nil
	}))
	require.NoError(t, d.Connect())
	return d
}

func envelope(t *testing.T, e *proto.Envelope) []byte {
	t.Helper()
	b, err := proto.EncodeEnvelope(e)
	require.NoError(t, err)
	return b
}

func TestConnectFailure(t *testing.T) {
	d := New(Config{Path: "/dev/none"}, WithOpener(func(string, int, time.Duration) (Port, error) {
		return nil, errors.New("no such device")
	}))
	assert.Error(t, d.Connect())
	assert.False(t, d.IsConnected())
	assert.ErrorIs(t, d.Write([]byte{1}, false), proto.ErrNotConnected)
}

func TestReadSplitEnvelope(t *testing.T) {
	d, port := newTestDriver(t)
	b := envelope(t, &proto.Envelope{Seq: 10, Payload: []byte{0x01, 0x02}})
	buf := make([]byte, 32)

	port.feed(b[:5])
	n, err := d.Read(buf)
	require.NoError(t, err)
	assert.Zero(t, n, "half an envelope is buffered")

	port.feed(b[5:])
	n, err = d.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, buf[:n])
}

func TestReadResyncsAfterGarbage(t *testing.T) {
	d, port := newTestDriver(t)
	port.feed([]byte{0x00, 0x07, 0x13, 0x55, 0xAA})
	port.feed(envelope(t, &proto.Envelope{Seq: 1, Payload: []byte{0x11}}))
	port.feed(envelope(t, &proto.Envelope{Seq: 2, Payload: []byte{0x22}}))

	buf := make([]byte, 32)
	var frames [][]byte
	for range 4 {
		n, err := d.Read(buf)
		require.NoError(t, err)
		if n > 0 {
			frames = append(frames, append([]byte(nil), buf[:n]...))
		}
	}
	assert.Equal(t, [][]byte{{0x11}, {0x22}}, frames)
}

func TestReadAcksAndDropsDuplicates(t *testing.T) {
	d, port := newTestDriver(t)
	in := envelope(t, &proto.Envelope{Flags: proto.FlagAckRequest, Seq: 77, Payload: []byte{0x05}})
	port.feed(in)
	port.feed(in)

	buf := make([]byte, 32)
	n, err := d.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x05}, buf[:n])
	n, err = d.Read(buf)
	require.NoError(t, err)
	assert.Zero(t, n)

	acks := port.written()
	require.Len(t, acks, 2)
	for _, b := range acks {
		e, _, err := proto.DecodeEnvelope(b)
		require.NoError(t, err)
		assert.True(t, e.IsAck())
		assert.Equal(t, uint32(77), e.Seq)
	}
}

func TestWriteRetriesAndQuality(t *testing.T) {
	d, port := newTestDriver(t)
	d.SetRetriesCount(2)
	require.NoError(t, d.Write([]byte{0x09}, true))

	sent := port.written()
	require.Len(t, sent, 2)
	assert.Equal(t, sent[0], sent[1])
	e, _, err := proto.DecodeEnvelope(sent[0])
	require.NoError(t, err)
	assert.True(t, e.AckRequested())
	assert.Zero(t, d.RxQuality())

	port.feed(envelope(t, &proto.Envelope{Flags: proto.FlagAck, Seq: e.Seq}))
	n, err := d.Read(make([]byte, 8))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 100, d.RxQuality())
}

func TestReadErrorDropsPort(t *testing.T) {
	d, port := newTestDriver(t)
	port.readErr = errors.New("device unplugged")

	_, err := d.Read(make([]byte, 8))
	assert.Error(t, err)
	assert.False(t, d.IsConnected())
	assert.True(t, port.closed)

	_, err = d.Read(make([]byte, 8))
	assert.ErrorIs(t, err, proto.ErrNotConnected)
}

func TestWriteDoesNotWaitForRead(t *testing.T) {
	port := &slowPort{fakePort: &fakePort{}, delay: 10 * time.Millisecond}
	d := newDriverOn(t, port)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		buf := make([]byte, 64)
		for {
			select {
			case <-stop:
				return
			default:
				_, _ = d.Read(buf)
			}
		}
	}()
	defer func() {
		close(stop)
		wg.Wait()
	}()

	time.Sleep(5 * time.Millisecond)
	const writes = 20
	start := time.Now()
	for range writes {
		require.NoError(t, d.Write([]byte{0x01}, false))
	}
	// a write queued behind a read would cost a full read timeout each
	assert.Less(t, time.Since(start), writes*port.delay/2)
	assert.Len(t, port.written(), writes)
}

func TestReadAcksOnSlowPort(t *testing.T) {
	port := &slowPort{fakePort: &fakePort{}, delay: 2 * time.Millisecond}
	d := newDriverOn(t, port)
	port.feed(envelope(t, &proto.Envelope{Flags: proto.FlagAckRequest, Seq: 5, Payload: []byte{0x33}}))

	buf := make([]byte, 32)
	n, err := d.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x33}, buf[:n])

	acks := port.written()
	require.Len(t, acks, 1)
	e, _, err := proto.DecodeEnvelope(acks[0])
	require.NoError(t, err)
	assert.True(t, e.IsAck())
}
