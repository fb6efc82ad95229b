// Package config stores the ground station settings as a JSON file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ystepanoff/flightlink/transport"
)

const (
	LinkStub   = "stub"
	LinkUDP    = "udp"
	LinkSerial = "serial"
)

type Settings struct {
	Link       string `json:"link"`
	UDPRemote  string `json:"udpRemote"`
	UDPLocal   string `json:"udpLocal"`
	SerialPath string `json:"serialPath"`
	SerialBaud int    `json:"serialBaud"`
	Username   string `json:"username"`

	TickRate         int  `json:"tickRate"`
	PingIntervalMs   int  `json:"pingIntervalMs"`
	ConnectRetryMs   int  `json:"connectRetryMs"`
	PIDRetries       int  `json:"pidRetries"`
	Spectate         bool `json:"spectate"`
	RealtimePriority bool `json:"realtimePriority"`

	RecorderPath       string `json:"recorderPath"`
	RecorderIntervalMs int    `json:"recorderIntervalMs"`
}

func Default() Settings {
	cfg := transport.DefaultConfig()
	dir, _ := os.UserConfigDir()
	return Settings{
		Link:               LinkStub,
		UDPRemote:          "192.168.32.1:2020",
		SerialPath:         "/dev/ttyUSB0",
		SerialBaud:         115200,
		Username:           "pilot",
		TickRate:           cfg.TickRate,
		PingIntervalMs:     int(cfg.PingInterval / time.Millisecond),
		ConnectRetryMs:     int(cfg.ConnectRetry / time.Millisecond),
		PIDRetries:         cfg.PIDRetries,
		RealtimePriority:   cfg.RealtimePriority,
		RecorderPath:       filepath.Join(dir, "flightlink", "telemetry.db"),
		RecorderIntervalMs: 200,
	}
}

// DefaultPath is settings.json under the user config directory.
func DefaultPath() string {
	dir, _ := os.UserConfigDir()
	return filepath.Join(dir, "flightlink", "settings.json")
}

// Controller converts the timing fields to a transport.Config. Zero fields
// keep the transport defaults.
func (s Settings) Controller() transport.Config {
	cfg := transport.DefaultConfig()
	if s.TickRate > 0 {
		cfg.TickRate = s.TickRate
	}
	if s.PingIntervalMs > 0 {
		cfg.PingInterval = time.Duration(s.PingIntervalMs) * time.Millisecond
	}
	if s.ConnectRetryMs > 0 {
		cfg.ConnectRetry = time.Duration(s.ConnectRetryMs) * time.Millisecond
	}
	if s.PIDRetries > 0 {
		cfg.PIDRetries = s.PIDRetries
	}
	cfg.Spectate = s.Spectate
	cfg.RealtimePriority = s.RealtimePriority
	return cfg
}

func (s Settings) RecorderInterval() time.Duration {
	if s.RecorderIntervalMs <= 0 {
		return time.Second
	}
	return time.Duration(s.RecorderIntervalMs) * time.Millisecond
}

func (s Settings) Validate() error {
	switch s.Link {
	case LinkStub:
	case LinkUDP:
		if s.UDPRemote == "" {
			return errors.New("config: udp link needs udpRemote")
		}
	case LinkSerial:
		if s.SerialPath == "" {
			return errors.New("config: serial link needs serialPath")
		}
	default:
		return fmt.Errorf("config: unknown link %q", s.Link)
	}
	return nil
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Settings, error) {
	s := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("read settings: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return Default(), fmt.Errorf("parse settings: %w", err)
	}
	return s, nil
}

func Save(path string, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Store keeps the current settings and persists every update.
type Store struct {
	mu       sync.RWMutex
	settings Settings
	path     string
}

func NewStore(path string) (*Store, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Store{settings: s, path: path}, nil
}

func (st *Store) Get() Settings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.settings
}

func (st *Store) Update(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.settings = s
	return Save(st.path, s)
}
