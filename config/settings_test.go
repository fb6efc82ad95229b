package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ystepanoff/flightlink/transport"
)

func TestDefaults(t *testing.T) {
	s := Default()
	assert.Equal(t, LinkStub, s.Link)
	assert.NoError(t, s.Validate())

	cfg := s.Controller()
	assert.Equal(t, transport.DefaultConfig(), cfg)
	assert.Equal(t, 200*time.Millisecond, s.RecorderInterval())
}

func TestLoadMissingFile(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "nonexistent.json"))
	require.NoError(t, err)
	assert.Equal(t, Default(), s)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"link":"udp","udpRemote":"10.0.0.2:2020","tickRate":100}`), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, LinkUDP, s.Link)
	assert.Equal(t, "10.0.0.2:2020", s.UDPRemote)
	assert.Equal(t, 100, s.Controller().TickRate)
	assert.Equal(t, Default().SerialBaud, s.SerialBaud, "untouched fields keep defaults")
}

func TestLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	s, err := Load(path)
	assert.Error(t, err)
	assert.Equal(t, Default(), s)
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "settings.json")
	st, err := NewStore(path)
	require.NoError(t, err)

	updated := st.Get()
	updated.Link = LinkSerial
	updated.SerialPath = "/dev/ttyACM0"
	updated.Spectate = true
	updated.PingIntervalMs = 250
	require.NoError(t, st.Update(updated))
	assert.Equal(t, updated, st.Get())

	st2, err := NewStore(path)
	require.NoError(t, err)
	assert.Equal(t, updated, st2.Get())

	cfg := st2.Get().Controller()
	assert.True(t, cfg.Spectate)
	assert.Equal(t, 250*time.Millisecond, cfg.PingInterval)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Settings)
		ok   bool
	}{
		{"stub", func(*Settings) {}, true},
		{"udp", func(s *Settings) { s.Link = LinkUDP }, true},
		{"udp without remote", func(s *Settings) { s.Link, s.UDPRemote = LinkUDP, "" }, false},
		{"serial without path", func(s *Settings) { s.Link, s.SerialPath = LinkSerial, "" }, false},
		{"unknown link", func(s *Settings) { s.Link = "carrier pigeon" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.edit(&s)
			if tt.ok {
				assert.NoError(t, s.Validate())
			} else {
				assert.Error(t, s.Validate())
			}
		})
	}
}

func TestStoreRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	st, err := NewStore(path)
	require.NoError(t, err)

	bad := st.Get()
	bad.Link = "smoke signals"
	assert.Error(t, st.Update(bad))
	assert.Equal(t, LinkStub, st.Get().Link)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
