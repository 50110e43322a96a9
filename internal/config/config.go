// Package config loads the car's YAML configuration over built-in defaults.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/dj-oyu/carcam/internal/camera"
	"github.com/dj-oyu/carcam/internal/logger"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	ControlAddr     string        `yaml:"control_addr"`
	StreamAddr      string        `yaml:"stream_addr"`
	MetricsAddr     string        `yaml:"metrics_addr"` // empty disables
	PprofAddr       string        `yaml:"pprof_addr"`   // empty disables
	MaxStreams      int           `yaml:"max_streams"`  // 0 means unlimited
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type CameraConfig struct {
	Backend        string        `yaml:"backend"` // "sim" or "v4l2"
	Device         string        `yaml:"device"`
	PixelFormat    string        `yaml:"pixel_format"`
	FrameSize      int           `yaml:"framesize"`
	Quality        int           `yaml:"quality"`
	FrameBuffers   int           `yaml:"fb_count"`
	FPS            int           `yaml:"fps"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	VFlip          bool          `yaml:"vflip"`
	HMirror        bool          `yaml:"hmirror"`
}

type GPSConfig struct {
	SerialPort       string        `yaml:"serial_port"`
	BaudRate         int           `yaml:"baud_rate"`
	ReplayFile       string        `yaml:"replay_file"`
	ReplayInterval   time.Duration `yaml:"replay_interval"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	DefaultLatitude  float64       `yaml:"default_latitude"`
	DefaultLongitude float64       `yaml:"default_longitude"`
}

type DriveConfig struct {
	SerialPort string `yaml:"serial_port"` // empty logs commands only
	BaudRate   int    `yaml:"baud_rate"`
}

type PageConfig struct {
	Title          string        `yaml:"title"`
	MapKey         string        `yaml:"map_key"`
	StreamRotation int           `yaml:"stream_rotation"`
	StatusInterval time.Duration `yaml:"status_interval"`
	MapZoom        int           `yaml:"map_zoom"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Color bool   `yaml:"color"`
}

// Config is the complete runtime configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Camera CameraConfig `yaml:"camera"`
	GPS    GPSConfig    `yaml:"gps"`
	Drive  DriveConfig  `yaml:"drive"`
	Page   PageConfig   `yaml:"page"`
	Log    LogConfig    `yaml:"log"`
}

// DefaultConfig returns the settings the car boots with when no file is
// given.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			ControlAddr:     ":8080",
			StreamAddr:      ":8081",
			MetricsAddr:     ":9090",
			PprofAddr:       ":6060",
			MaxStreams:      4,
			ShutdownTimeout: 5 * time.Second,
		},
		Camera: CameraConfig{
			Backend:        "sim",
			Device:         "/dev/video0",
			PixelFormat:    "jpeg",
			FrameSize:      int(camera.FrameSizeCIF),
			Quality:        10,
			FrameBuffers:   2,
			FPS:            25,
			AcquireTimeout: time.Second,
			VFlip:          true,
			HMirror:        true,
		},
		GPS: GPSConfig{
			BaudRate:         9600,
			ReplayInterval:   time.Second,
			PollInterval:     50 * time.Millisecond,
			DefaultLatitude:  10.8231,
			DefaultLongitude: 106.6297,
		},
		Drive: DriveConfig{
			BaudRate: 115200,
		},
		Page: PageConfig{
			Title:          "ESP32-CAM Car",
			StreamRotation: 180,
			StatusInterval: time.Second,
			MapZoom:        18,
		},
		Log: LogConfig{
			Level: "info",
			Color: true,
		},
	}
}

// Load reads path over DefaultConfig. Keys missing from the file keep
// their defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if _, err := portOf(c.Server.ControlAddr); err != nil {
		add("server.control_addr: %w", err)
	}
	if _, err := portOf(c.Server.StreamAddr); err != nil {
		add("server.stream_addr: %w", err)
	}
	if c.Server.MaxStreams < 0 {
		add("server.max_streams: must not be negative")
	}

	switch c.Camera.Backend {
	case "sim", "v4l2":
	default:
		add("camera.backend: %q is not sim or v4l2", c.Camera.Backend)
	}
	if _, err := camera.ParsePixelFormat(c.Camera.PixelFormat); err != nil {
		add("camera.pixel_format: %w", err)
	}
	if !camera.FrameSize(c.Camera.FrameSize).Valid() {
		add("camera.framesize: %d out of range", c.Camera.FrameSize)
	}
	if c.Camera.Quality < 0 || c.Camera.Quality > 63 {
		add("camera.quality: %d not in 0..63", c.Camera.Quality)
	}
	if c.Camera.FrameBuffers < 1 {
		add("camera.fb_count: need at least one buffer")
	}
	if c.Camera.FPS < 0 {
		add("camera.fps: must not be negative")
	}

	if c.GPS.SerialPort != "" && c.GPS.ReplayFile != "" {
		add("gps: serial_port and replay_file are exclusive")
	}
	if c.GPS.BaudRate <= 0 {
		add("gps.baud_rate: must be positive")
	}
	if c.GPS.DefaultLatitude < -90 || c.GPS.DefaultLatitude > 90 {
		add("gps.default_latitude: %v out of range", c.GPS.DefaultLatitude)
	}
	if c.GPS.DefaultLongitude < -180 || c.GPS.DefaultLongitude > 180 {
		add("gps.default_longitude: %v out of range", c.GPS.DefaultLongitude)
	}

	if c.Drive.SerialPort != "" && c.Drive.BaudRate <= 0 {
		add("drive.baud_rate: must be positive")
	}

	switch c.Page.StreamRotation {
	case 0, 90, 180, 270:
	default:
		add("page.stream_rotation: %d is not a quarter turn", c.Page.StreamRotation)
	}
	if c.Page.StatusInterval <= 0 {
		add("page.status_interval: must be positive")
	}

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		add("log.level: %w", err)
	}

	return errors.Join(errs...)
}

// StreamPort is the port the control page points the <img> at.
func (c Config) StreamPort() int {
	p, _ := portOf(c.Server.StreamAddr)
	return p
}

func portOf(addr string) (int, error) {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return 0, fmt.Errorf("bad port %q", port)
	}
	return n, nil
}
