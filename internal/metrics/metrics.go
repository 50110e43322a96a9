package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	// Stream counters
	FramesSent     atomic.Uint64
	BytesSent      atomic.Uint64
	FramesEncoded  atomic.Uint64
	CaptureErrors  atomic.Uint64
	ConvertErrors  atomic.Uint64
	SendErrors     atomic.Uint64
	StreamsActive  atomic.Int64
	StreamsTotal   atomic.Uint64
	StreamsRefused atomic.Uint64

	// Frame timing
	FrameIntervalMs    atomic.Uint64 // Last frame interval of any stream
	FrameIntervalAvgMs atomic.Uint64 // Smoothed frame interval
	EncodeLatencyMs    atomic.Uint64

	// Control surface
	ControlRequests atomic.Uint64
	ControlRejected atomic.Uint64 // 404 responses from /control
	ControlFailed   atomic.Uint64 // 500 responses from /control
	DriveCommands   atomic.Uint64
	AutoMode        atomic.Uint64 // 0 = manual, 1 = auto

	// Telemetry websocket clients
	TelemetryClients atomic.Int64

	// Prometheus collectors
	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.registerPrometheusMetrics()

	return m
}

func (m *Metrics) gauge(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: name, Help: help},
		fn,
	))
}

func (m *Metrics) registerPrometheusMetrics() {
	// Stream metrics
	m.gauge("carcam_stream_frames_sent_total", "Total MJPEG parts written to clients",
		func() float64 { return float64(m.FramesSent.Load()) })
	m.gauge("carcam_stream_bytes_sent_total", "Total JPEG payload bytes written to clients",
		func() float64 { return float64(m.BytesSent.Load()) })
	m.gauge("carcam_stream_frames_encoded_total", "Raw frames converted to JPEG",
		func() float64 { return float64(m.FramesEncoded.Load()) })
	m.gauge("carcam_stream_active", "Open /stream connections",
		func() float64 { return float64(m.StreamsActive.Load()) })
	m.gauge("carcam_stream_connections_total", "Total /stream connections accepted",
		func() float64 { return float64(m.StreamsTotal.Load()) })
	m.gauge("carcam_stream_refused_total", "Streams refused because the limit was reached",
		func() float64 { return float64(m.StreamsRefused.Load()) })

	// Error metrics
	m.gauge("carcam_stream_capture_errors_total", "Frame acquisitions that failed",
		func() float64 { return float64(m.CaptureErrors.Load()) })
	m.gauge("carcam_stream_convert_errors_total", "JPEG conversions that failed",
		func() float64 { return float64(m.ConvertErrors.Load()) })
	m.gauge("carcam_stream_send_errors_total", "Streams ended by a write or flush error",
		func() float64 { return float64(m.SendErrors.Load()) })

	// Latency metrics
	m.gauge("carcam_stream_frame_interval_ms", "Last frame interval in milliseconds",
		func() float64 { return float64(m.FrameIntervalMs.Load()) })
	m.gauge("carcam_stream_frame_interval_avg_ms", "Running average frame interval in milliseconds",
		func() float64 { return float64(m.FrameIntervalAvgMs.Load()) })
	m.gauge("carcam_stream_encode_latency_ms", "Last raw-to-JPEG conversion time in milliseconds",
		func() float64 { return float64(m.EncodeLatencyMs.Load()) })

	// Control metrics
	m.gauge("carcam_control_requests_total", "Total /control requests",
		func() float64 { return float64(m.ControlRequests.Load()) })
	m.gauge("carcam_control_rejected_total", "Malformed /control requests",
		func() float64 { return float64(m.ControlRejected.Load()) })
	m.gauge("carcam_control_failed_total", "/control requests the sensor refused",
		func() float64 { return float64(m.ControlFailed.Load()) })
	m.gauge("carcam_drive_commands_total", "Drive commands received over HTTP",
		func() float64 { return float64(m.DriveCommands.Load()) })
	m.gauge("carcam_auto_mode", "Auto mode (0=manual, 1=auto)",
		func() float64 { return float64(m.AutoMode.Load()) })

	m.gauge("carcam_telemetry_clients", "Connected telemetry websocket clients",
		func() float64 { return float64(m.TelemetryClients.Load()) })
}

// AddGaugeFunc exports a value owned by another component.
func (m *Metrics) AddGaugeFunc(name, help string, fn func() float64) {
	m.gauge(name, help, fn)
}

// UpdateFrameInterval records the raw and smoothed frame intervals
func (m *Metrics) UpdateFrameInterval(last, avg time.Duration) {
	m.FrameIntervalMs.Store(uint64(last.Milliseconds()))
	m.FrameIntervalAvgMs.Store(uint64(avg.Milliseconds()))
}

// UpdateEncodeLatency records how long the last conversion took
func (m *Metrics) UpdateEncodeLatency(d time.Duration) {
	m.EncodeLatencyMs.Store(uint64(d.Milliseconds()))
}

// SetAutoMode mirrors the auto-mode flag
func (m *Metrics) SetAutoMode(on bool) {
	if on {
		m.AutoMode.Store(1)
	} else {
		m.AutoMode.Store(0)
	}
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gather exposes the registry for tests and probes
func (m *Metrics) Gather() (map[string]float64, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(families))
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			if g := metric.GetGauge(); g != nil {
				out[mf.GetName()] = g.GetValue()
			}
		}
	}
	return out, nil
}

// StartServer starts the metrics HTTP server
func (m *Metrics) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
