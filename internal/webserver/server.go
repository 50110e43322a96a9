// Package webserver implements the car's two HTTP listeners: the control
// surface (page, status, sensor control, drive commands) and the MJPEG
// stream.
package webserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/dj-oyu/carcam/internal/camera"
	"github.com/dj-oyu/carcam/internal/logger"
	"github.com/dj-oyu/carcam/internal/metrics"
	"github.com/dj-oyu/carcam/internal/vehicle"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// Server owns the handlers for both listeners.
type Server struct {
	cfg       Config
	cam       camera.Camera
	state     *vehicle.State
	driver    *vehicle.Driver
	metrics   *metrics.Metrics
	log       logger.Module
	controls  map[string]setter
	streamer  *Streamer
	telemetry *TelemetryBroadcaster
}

// NewServer wires the handlers. It fails when the camera's sensor exposes
// a control the server cannot dispatch, or the reverse.
func NewServer(cfg Config, cam camera.Camera, state *vehicle.State, driver *vehicle.Driver, m *metrics.Metrics) (*Server, error) {
	def := DefaultConfig()
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = def.StatusInterval
	}
	if cfg.MapZoom <= 0 {
		cfg.MapZoom = def.MapZoom
	}
	if cfg.StreamPort <= 0 {
		cfg.StreamPort = def.StreamPort
	}

	controls, err := controlTable(cam.Sensor())
	if err != nil {
		return nil, fmt.Errorf("control table: %w", err)
	}

	return &Server{
		cfg:       cfg,
		cam:       cam,
		state:     state,
		driver:    driver,
		metrics:   m,
		log:       logger.For("HTTP"),
		controls:  controls,
		streamer:  NewStreamer(cam, m, cfg),
		telemetry: NewTelemetryBroadcaster(state.Telemetry, cfg.PingInterval, m),
	}, nil
}

// Telemetry returns the broadcaster GPS fixes are published to.
func (s *Server) Telemetry() *TelemetryBroadcaster {
	return s.telemetry
}

// Streamer returns the MJPEG handler.
func (s *Server) Streamer() *Streamer {
	return s.streamer
}

// ControlHandler serves the control listener.
func (s *Server) ControlHandler() http.Handler {
	r := newRouter()

	r.Handle("/", handlers.CompressHandler(http.HandlerFunc(s.handleIndex)))
	r.PathPrefix("/status").HandlerFunc(s.handleStatus)
	r.HandleFunc("/control", s.handleControl)
	r.HandleFunc("/go", s.handleDrive(vehicle.Forward))
	r.HandleFunc("/back", s.handleDrive(vehicle.Backward))
	r.HandleFunc("/left", s.handleDrive(vehicle.Left))
	r.HandleFunc("/right", s.handleDrive(vehicle.Right))
	r.HandleFunc("/stop", s.handleDrive(vehicle.Stop))
	r.HandleFunc("/tongleautomode", s.handleToggleAutoMode)
	r.HandleFunc("/health", s.handleHealth)
	r.Handle("/ws/telemetry", s.telemetry)

	return s.wrap(r)
}

// StreamHandler serves the stream listener.
func (s *Server) StreamHandler() http.Handler {
	r := newRouter()
	r.Handle("/stream", s.streamer)
	return s.wrap(r)
}

// newRouter answers OPTIONS on every path and 404 for any other request
// no route takes.
func newRouter() *mux.Router {
	r := mux.NewRouter()
	r.MethodNotAllowedHandler = http.NotFoundHandler()
	r.Methods(http.MethodOptions).HandlerFunc(handleOptions)
	return r
}

func (s *Server) wrap(h http.Handler) http.Handler {
	access := handlers.LoggingHandler(logger.For("Access").Writer(logger.DEBUG), h)
	recovered := handlers.RecoveryHandler(handlers.RecoveryLogger(s.log))(access)
	return withCORS(recovered)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	pos := s.state.Position()
	data := pageData{
		Title:          s.cfg.Title,
		StreamURL:      s.streamURL(r),
		StreamRotation: s.cfg.StreamRotation,
		Latitude:       float64(pos.Latitude),
		Longitude:      float64(pos.Longitude),
		MapKey:         s.cfg.MapKey,
		MapZoom:        s.cfg.MapZoom,
		StatusInterval: s.cfg.StatusInterval.Milliseconds(),
	}

	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, data); err != nil {
		s.log.Error("Render index: %v", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// streamURL points at the stream listener on whatever host the page was
// requested through.
func (s *Server) streamURL(r *http.Request) string {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(s.cfg.StreamPort)) + "/stream"
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	pos := s.state.Position()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":            "ok",
		"streams":           s.streamer.Active(),
		"telemetry_clients": s.telemetry.Clients(),
		"auto_mode":         s.state.AutoMode(),
		"has_fix":           !pos.UpdatedAt.IsZero(),
		"drive_commands":    s.driver.Sent(),
	})
}
