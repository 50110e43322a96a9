package webserver

import "time"

// Config defines the runtime configuration for the control and stream
// listeners.
type Config struct {
	StreamPort     int
	MaxStreams     int
	SmootherSize   int
	StreamQuality  int
	Title          string
	MapKey         string
	StreamRotation int
	StatusInterval time.Duration
	MapZoom        int
	PingInterval   time.Duration
}

// DefaultConfig returns a config matching the car firmware's behaviour.
func DefaultConfig() Config {
	return Config{
		StreamPort:     8081,
		MaxStreams:     4,
		SmootherSize:   20,
		StreamQuality:  80,
		Title:          "ESP32-CAM Car",
		StreamRotation: 180,
		StatusInterval: time.Second,
		MapZoom:        18,
		PingInterval:   30 * time.Second,
	}
}
