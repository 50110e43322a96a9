package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8081, cfg.StreamPort())
	assert.Equal(t, 180, cfg.Page.StreamRotation)
	assert.Equal(t, 10.8231, cfg.GPS.DefaultLatitude)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "carcam.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  stream_addr: ":9091"
camera:
  pixel_format: rgb565
  quality: 20
gps:
  poll_interval: 100ms
page:
  map_key: secret
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9091, cfg.StreamPort())
	assert.Equal(t, ":8080", cfg.Server.ControlAddr, "untouched keys keep defaults")
	assert.Equal(t, "rgb565", cfg.Camera.PixelFormat)
	assert.Equal(t, 20, cfg.Camera.Quality)
	assert.Equal(t, 100*time.Millisecond, cfg.GPS.PollInterval)
	assert.Equal(t, "secret", cfg.Page.MapKey)
	assert.Equal(t, 2, cfg.Camera.FrameBuffers)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("camera: [oops"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.StreamAddr = "nowhere"
	cfg.Camera.Backend = "usb"
	cfg.Camera.Quality = 99
	cfg.Camera.FrameSize = 20
	cfg.GPS.SerialPort = "/dev/ttyS0"
	cfg.GPS.ReplayFile = "trip.nmea"
	cfg.Page.StreamRotation = 45
	cfg.Log.Level = "chatty"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"server.stream_addr", "camera.backend", "camera.quality", "camera.framesize",
		"gps: serial_port and replay_file", "page.stream_rotation", "log.level",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestShippedConfigIsValid(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "carcam.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "configs/route.nmea", cfg.GPS.ReplayFile)
	assert.Equal(t, 18, cfg.Page.MapZoom)
	assert.Equal(t, 8081, cfg.StreamPort())
}
