package recorder

import (
	"bytes"
	"context"
	"encoding/csv"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ystepanoff/flightlink/transport"
)

type fakeSource struct {
	reads atomic.Int32
}

func (f *fakeSource) Telemetry() transport.Telemetry {
	f.reads.Add(1)
	return transport.Telemetry{BatteryVoltage: 12.6, BatteryLevel: 0.75, CPULoad: 40, CPUTemp: 55, RxQuality: 98}
}

func (f *fakeSource) Status() transport.Status {
	return transport.Status{Armed: true, Mode: transport.ModeStabilize}
}

func (f *fakeSource) RPY() transport.Vec3 { return transport.Vec3{X: 1.5, Y: -2, Z: 90} }

func (f *fakeSource) Altitude() float32 { return 12.25 }

func (f *fakeSource) LinkQuality() (int, int) { return 87, -42 }

func openTest(t *testing.T) *Recorder {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "sub", "flight.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestSnapshot(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	s := Snapshot(&fakeSource{}, now)
	assert.Equal(t, now, s.Time)
	assert.Equal(t, 87, s.LinkQuality)
	assert.True(t, s.Armed)
	assert.Equal(t, transport.ModeStabilize, s.Mode)
	assert.InDelta(t, 0.75, s.Telemetry.BatteryLevel, 1e-6)
	assert.Equal(t, float32(12.25), s.Altitude)
}

func TestInsertAndExport(t *testing.T) {
	r := openTest(t)
	ctx := context.Background()

	ts := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := range 3 {
		s := Snapshot(&fakeSource{}, ts.Add(time.Duration(i)*time.Second))
		require.NoError(t, r.Insert(ctx, s))
	}
	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	var buf bytes.Buffer
	require.NoError(t, r.ExportCSV(ctx, &buf, false))
	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, columns, records[0])

	row := records[1]
	assert.Equal(t, "2026-05-01T12:00:00Z", row[0])
	assert.Equal(t, "12.600", row[1])
	assert.Equal(t, "0.750", row[2])
	assert.Equal(t, "40", row[5])
	assert.Equal(t, "87", row[8])
	assert.Equal(t, "90.000", row[11])
	assert.Equal(t, "true", row[13])
	assert.Equal(t, "stabilize", row[14])
	assert.Equal(t, "2026-05-01T12:00:02Z", records[3][0])

	n, err = r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "export without purge keeps rows")
}

func TestExportPurges(t *testing.T) {
	r := openTest(t)
	ctx := context.Background()
	require.NoError(t, r.Insert(ctx, Snapshot(&fakeSource{}, time.Now())))

	var buf bytes.Buffer
	require.NoError(t, r.ExportCSV(ctx, &buf, true))
	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flight.db")
	ctx := context.Background()

	r, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, r.Insert(ctx, Snapshot(&fakeSource{}, time.Now())))
	require.NoError(t, r.Close())

	r, err = Open(path, nil)
	require.NoError(t, err)
	defer r.Close()
	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecordLoop(t *testing.T) {
	r := openTest(t)
	src := &fakeSource{}
	ctx := context.Background()

	require.NoError(t, r.Start(ctx, src, 5*time.Millisecond))
	assert.True(t, r.IsRecording())
	assert.Error(t, r.Start(ctx, src, time.Millisecond), "already recording")

	require.Eventually(t, func() bool { return src.reads.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	r.Stop()
	assert.False(t, r.IsRecording())

	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 3)

	// stopped means stopped
	before := src.reads.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, before, src.reads.Load())
}

func TestRecordLoopEndsWithContext(t *testing.T) {
	r := openTest(t)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, r.Start(ctx, &fakeSource{}, time.Millisecond))
	cancel()
	r.Stop()
	assert.False(t, r.IsRecording())
}
