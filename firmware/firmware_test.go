package firmware

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ystepanoff/flightlink/driver/stub"
	"github.com/ystepanoff/flightlink/transport"
)

type call struct {
	step   string
	offset uint32
	size   int
}

type fakeUploader struct {
	calls   []call
	failAt  int
	dataErr error
}

func (f *fakeUploader) UploadUpdateInit(context.Context) error {
	f.calls = append(f.calls, call{step: "init"})
	return nil
}

func (f *fakeUploader) UploadUpdateData(_ context.Context, data []byte, offset uint32) error {
	f.calls = append(f.calls, call{step: "data", offset: offset, size: len(data)})
	if f.dataErr != nil && len(f.calls)-1 == f.failAt {
		return f.dataErr
	}
	return nil
}

func (f *fakeUploader) UploadUpdateProcess(_ context.Context, image []byte) error {
	f.calls = append(f.calls, call{step: "process", size: len(image)})
	return nil
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(nil, "1.0.0")
	assert.ErrorIs(t, err, ErrEmptyImage)

	_, err = New([]byte{1}, "one point oh")
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fc.bin")
	require.NoError(t, os.WriteFile(path, []byte("firmware"), 0o644))

	img, err := Load(path, "v2.3.1")
	require.NoError(t, err)
	assert.Equal(t, "2.3.1", img.Version.String())
	assert.Equal(t, []byte("firmware"), img.Data)

	_, err = Load(filepath.Join(t.TempDir(), "missing.bin"), "1.0.0")
	assert.Error(t, err)
}

func TestChunks(t *testing.T) {
	img, err := New(bytes.Repeat([]byte{0xAB}, 2500), "1.0.0")
	require.NoError(t, err)

	var offsets []uint32
	var sizes []int
	for off, data := range img.Chunks(1000) {
		offsets = append(offsets, off)
		sizes = append(sizes, len(data))
	}
	assert.Equal(t, []uint32{0, 1000, 2000}, offsets)
	assert.Equal(t, []int{1000, 1000, 500}, sizes)
	assert.Equal(t, 3, img.ChunkCount(1000))
	assert.Equal(t, 3, img.ChunkCount(0), "default chunk size")
}

func TestCheck(t *testing.T) {
	img, err := New([]byte{1}, "2.1.0")
	require.NoError(t, err)

	tests := []struct {
		name       string
		running    string
		constraint string
		force      bool
		want       error
	}{
		{name: "unknown running version", running: ""},
		{name: "upgrade", running: "2.0.9"},
		{name: "same version", running: "2.1.0", want: ErrDowngrade},
		{name: "downgrade", running: "3.0.0", want: ErrDowngrade},
		{name: "forced downgrade", running: "3.0.0", force: true},
		{name: "constraint met", running: "2.0.0", constraint: ">= 2.0, < 3"},
		{name: "constraint failed", running: "1.0.0", constraint: "^1.2", want: ErrIncompatible},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := img.Check(tt.running, tt.constraint, tt.force)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}

	assert.Error(t, img.Check("garbage", "", false))
	assert.Error(t, img.Check("", "not a range", false))
}

func TestUploadOrder(t *testing.T) {
	img, err := New(make([]byte, 10), "1.0.0")
	require.NoError(t, err)
	u := &fakeUploader{}

	var progress []int
	err = Upload(context.Background(), u, img, Options{
		ChunkSize: 4,
		Progress:  func(sent, total int) { progress = append(progress, sent*10+total) },
	})
	require.NoError(t, err)
	assert.Equal(t, []call{
		{step: "init"},
		{step: "data", offset: 0, size: 4},
		{step: "data", offset: 4, size: 4},
		{step: "data", offset: 8, size: 2},
		{step: "process", size: 10},
	}, u.calls)
	assert.Equal(t, []int{13, 23, 33}, progress)
}

func TestUploadStopsOnChunkFailure(t *testing.T) {
	img, err := New(make([]byte, 10), "1.0.0")
	require.NoError(t, err)
	boom := errors.New("not confirmed")
	u := &fakeUploader{failAt: 2, dataErr: boom}

	err = Upload(context.Background(), u, img, Options{ChunkSize: 4})
	assert.ErrorIs(t, err, boom)
	require.Len(t, u.calls, 3)
	assert.Equal(t, "data", u.calls[2].step)
}

func TestUploadRefusesDowngrade(t *testing.T) {
	img, err := New([]byte{1}, "1.0.0")
	require.NoError(t, err)
	u := &fakeUploader{}
	err = Upload(context.Background(), u, img, Options{Running: "1.2.0"})
	assert.ErrorIs(t, err, ErrDowngrade)
	assert.Empty(t, u.calls)
}

func TestUploadOverLoopback(t *testing.T) {
	vehicle := stub.NewVehicle("pilot")
	cfg := transport.DefaultConfig()
	cfg.RealtimePriority = false
	c := transport.New(stub.NewLoopback(vehicle.Responder()), nil, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	c.Start(ctx)
	defer c.Stop()
	require.NoError(t, c.WaitEstablished(ctx, 3*time.Second))

	data := bytes.Repeat([]byte("0123456789"), 30)
	img, err := New(data, "1.1.0")
	require.NoError(t, err)
	require.NoError(t, Upload(ctx, c, img, Options{ChunkSize: 128}))

	got := vehicle.Firmware()
	require.Len(t, got, 3)
	var rebuilt []byte
	for _, off := range []uint32{0, 128, 256} {
		rebuilt = append(rebuilt, got[off]...)
	}
	assert.Equal(t, data, rebuilt)
}
