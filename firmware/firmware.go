// Package firmware splits a versioned firmware image into chunks and drives
// the three-step vehicle update: init, data chunks, process.
package firmware

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"

	"github.com/Masterminds/semver/v3"
)

// DefaultChunkSize keeps one chunk record well inside a single radio frame.
const DefaultChunkSize = 1024

var (
	ErrEmptyImage   = errors.New("firmware: empty image")
	ErrDowngrade    = errors.New("firmware: image is not newer than the running version")
	ErrIncompatible = errors.New("firmware: image version rejected by constraint")
)

type Image struct {
	Version *semver.Version
	Data    []byte
}

func New(data []byte, version string) (*Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return nil, fmt.Errorf("firmware: version %q: %w", version, err)
	}
	return &Image{Version: v, Data: data}, nil
}

// Load reads an image from disk.
func Load(path, version string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("firmware: read image: %w", err)
	}
	return New(data, version)
}

// Chunks yields the image in order as (offset, data) pairs of at most size
// bytes.
func (img *Image) Chunks(size int) iter.Seq2[uint32, []byte] {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return func(yield func(uint32, []byte) bool) {
		for off := 0; off < len(img.Data); off += size {
			end := min(off+size, len(img.Data))
			if !yield(uint32(off), img.Data[off:end]) {
				return
			}
		}
	}
}

// ChunkCount is the number of chunks Chunks(size) yields.
func (img *Image) ChunkCount(size int) int {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return (len(img.Data) + size - 1) / size
}

// Check gates an update. running is the version the vehicle reports and
// may be empty when unknown. constraint, when set, is a semver range the
// image must satisfy (">= 2.0, < 3").
func (img *Image) Check(running, constraint string, force bool) error {
	if constraint != "" {
		c, err := semver.NewConstraint(constraint)
		if err != nil {
			return fmt.Errorf("firmware: constraint %q: %w", constraint, err)
		}
		if ok, errs := c.Validate(img.Version); !ok {
			return fmt.Errorf("%w: %v", ErrIncompatible, errors.Join(errs...))
		}
	}
	if running == "" || force {
		return nil
	}
	cur, err := semver.NewVersion(running)
	if err != nil {
		return fmt.Errorf("firmware: running version %q: %w", running, err)
	}
	if !img.Version.GreaterThan(cur) {
		return fmt.Errorf("%w: %s <= %s", ErrDowngrade, img.Version, cur)
	}
	return nil
}

// Uploader is the vehicle side of an update, implemented by
// transport.Controller.
type Uploader interface {
	UploadUpdateInit(ctx context.Context) error
	UploadUpdateData(ctx context.Context, data []byte, offset uint32) error
	UploadUpdateProcess(ctx context.Context, image []byte) error
}

type Options struct {
	ChunkSize int
	// Running and Constraint feed Image.Check.
	Running    string
	Constraint string
	Force      bool
	// Progress is called after every confirmed chunk.
	Progress func(sent, total int)
	Logger   *slog.Logger
}

// Upload transfers img through u. Each chunk is confirmed by the vehicle
// before the next one is sent.
func Upload(ctx context.Context, u Uploader, img *Image, opts Options) error {
	if err := img.Check(opts.Running, opts.Constraint, opts.Force); err != nil {
		return err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "firmware")
	}
	total := img.ChunkCount(opts.ChunkSize)

	logger.Info("update started", "version", img.Version.String(), "bytes", len(img.Data), "chunks", total)
	if err := u.UploadUpdateInit(ctx); err != nil {
		return fmt.Errorf("firmware: init: %w", err)
	}
	sent := 0
	for off, data := range img.Chunks(opts.ChunkSize) {
		if err := u.UploadUpdateData(ctx, data, off); err != nil {
			return fmt.Errorf("firmware: %w", err)
		}
		sent++
		if opts.Progress != nil {
			opts.Progress(sent, total)
		}
	}
	if err := u.UploadUpdateProcess(ctx, img.Data); err != nil {
		return fmt.Errorf("firmware: process: %w", err)
	}
	logger.Info("update sent", "version", img.Version.String())
	return nil
}
