package flightlink

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopbackSession(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RealtimePriority = false
	c, vehicle := NewLoopback("observer", nil, cfg)
	require.NotNil(t, vehicle)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	require.NoError(t, c.WaitEstablished(ctx, 3*time.Second))
	require.Eventually(t, func() bool { return c.Username() == "observer" }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, Connected, c.LinkState())
	assert.ErrorIs(t, c.Arm(), ErrNotCalibrated)

	require.NoError(t, c.SetConfigFile(ctx, "camera.night = false"))
	assert.Equal(t, "camera.night = false", vehicle.Config())
}

func TestReexports(t *testing.T) {
	assert.Equal(t, 256, HistoryCapacity)
	assert.Equal(t, "stabilize", ModeStabilize.String())
	assert.Equal(t, "rate", Mode(0).String())
}
