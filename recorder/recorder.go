// Package recorder persists periodic telemetry snapshots to SQLite and
// exports them as CSV.
package recorder

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ystepanoff/flightlink/transport"
)

const schema = `CREATE TABLE IF NOT EXISTS telemetry (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	battery_voltage REAL,
	battery_level REAL,
	total_current REAL,
	current_draw REAL,
	cpu_load INTEGER,
	cpu_temp INTEGER,
	rx_quality INTEGER,
	link_quality INTEGER,
	roll REAL,
	pitch REAL,
	yaw REAL,
	altitude REAL,
	armed INTEGER,
	mode TEXT
)`

var columns = []string{
	"timestamp", "battery_voltage", "battery_level", "total_current", "current_draw",
	"cpu_load", "cpu_temp", "rx_quality", "link_quality",
	"roll", "pitch", "yaw", "altitude", "armed", "mode",
}

// Sample is one recorded row.
type Sample struct {
	Time        time.Time
	Telemetry   transport.Telemetry
	LinkQuality int
	Attitude    transport.Vec3
	Altitude    float32
	Armed       bool
	Mode        transport.Mode
}

// Source is the part of transport.Controller a recorder samples.
type Source interface {
	Telemetry() transport.Telemetry
	Status() transport.Status
	RPY() transport.Vec3
	Altitude() float32
	LinkQuality() (quality, level int)
}

// Snapshot reads one sample from src.
func Snapshot(src Source, now time.Time) Sample {
	st := src.Status()
	quality, _ := src.LinkQuality()
	return Sample{
		Time:        now,
		Telemetry:   src.Telemetry(),
		LinkQuality: quality,
		Attitude:    src.RPY(),
		Altitude:    src.Altitude(),
		Armed:       st.Armed,
		Mode:        st.Mode,
	}
}

type Recorder struct {
	db     *sql.DB
	logger *slog.Logger

	mu        sync.Mutex
	recording bool
	stopCh    chan struct{}
	done      chan struct{}
}

// Open creates or opens the database at path, creating parent directories.
func Open(path string, logger *slog.Logger) (*Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}
	if logger == nil {
		logger = slog.Default().With("component", "recorder")
	}
	return &Recorder{db: db, logger: logger}, nil
}

func (r *Recorder) Close() error {
	r.Stop()
	return r.db.Close()
}

func (r *Recorder) Insert(ctx context.Context, s Sample) error {
	t := s.Telemetry
	_, err := r.db.ExecContext(ctx, `INSERT INTO telemetry
		(timestamp, battery_voltage, battery_level, total_current, current_draw,
		 cpu_load, cpu_temp, rx_quality, link_quality, roll, pitch, yaw, altitude, armed, mode)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Time.UnixMilli(),
		float64(t.BatteryVoltage), float64(t.BatteryLevel), float64(t.TotalCurrent), float64(t.CurrentDraw),
		int64(t.CPULoad), int64(t.CPUTemp), int64(t.RxQuality), int64(s.LinkQuality),
		float64(s.Attitude.X), float64(s.Attitude.Y), float64(s.Attitude.Z), float64(s.Altitude),
		s.Armed, s.Mode.String())
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

func (r *Recorder) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM telemetry`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count samples: %w", err)
	}
	return n, nil
}

// Start samples src every interval until Stop or ctx is done.
func (r *Recorder) Start(ctx context.Context, src Source, interval time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		return fmt.Errorf("already recording")
	}
	r.recording = true
	r.stopCh = make(chan struct{})
	r.done = make(chan struct{})
	go r.recordLoop(ctx, src, interval, r.stopCh, r.done)
	r.logger.Info("recording started", "interval", interval)
	return nil
}

func (r *Recorder) Stop() {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return
	}
	r.recording = false
	close(r.stopCh)
	done := r.done
	r.mu.Unlock()
	<-done
	r.logger.Info("recording stopped")
}

func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

func (r *Recorder) recordLoop(ctx context.Context, src Source, interval time.Duration, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case now := <-ticker.C:
			if err := r.Insert(ctx, Snapshot(src, now)); err != nil {
				r.logger.Warn("sample dropped", "err", err)
			}
		}
	}
}

// ExportCSV writes every sample in insertion order. With purge set the
// table is emptied afterwards.
func (r *Recorder) ExportCSV(ctx context.Context, w io.Writer, purge bool) error {
	rows, err := r.db.QueryContext(ctx, `SELECT timestamp, battery_voltage, battery_level, total_current,
		current_draw, cpu_load, cpu_temp, rx_quality, link_quality, roll, pitch, yaw, altitude, armed, mode
		FROM telemetry ORDER BY id`)
	if err != nil {
		return fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}
	for rows.Next() {
		var (
			ts                                 int64
			vbat, level, total, draw           float64
			cpuLoad, cpuTemp, rxQuality, linkQ int64
			roll, pitch, yaw, alt              float64
			armed                              bool
			mode                               string
		)
		if err := rows.Scan(&ts, &vbat, &level, &total, &draw, &cpuLoad, &cpuTemp, &rxQuality, &linkQ,
			&roll, &pitch, &yaw, &alt, &armed, &mode); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		err := cw.Write([]string{
			time.UnixMilli(ts).UTC().Format(time.RFC3339Nano),
			formatFloat(vbat),
			formatFloat(level),
			formatFloat(total),
			formatFloat(draw),
			strconv.FormatInt(cpuLoad, 10),
			strconv.FormatInt(cpuTemp, 10),
			strconv.FormatInt(rxQuality, 10),
			strconv.FormatInt(linkQ, 10),
			formatFloat(roll),
			formatFloat(pitch),
			formatFloat(yaw),
			formatFloat(alt),
			strconv.FormatBool(armed),
			mode,
		})
		if err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read rows: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	rows.Close()

	if purge {
		if _, err := r.db.ExecContext(ctx, `DELETE FROM telemetry`); err != nil {
			return fmt.Errorf("purge db: %w", err)
		}
	}
	return nil
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }
