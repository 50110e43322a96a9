package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	_ "net/http/pprof" // Enable pprof
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dj-oyu/carcam/internal/camera"
	"github.com/dj-oyu/carcam/internal/config"
	"github.com/dj-oyu/carcam/internal/gps"
	"github.com/dj-oyu/carcam/internal/logger"
	"github.com/dj-oyu/carcam/internal/metrics"
	"github.com/dj-oyu/carcam/internal/vehicle"
	"github.com/dj-oyu/carcam/internal/webserver"
	"github.com/dj-oyu/carcam/pkg/types"
)

var (
	// Command-line flags. Flags given explicitly override the config file.
	configPath    = flag.String("config", "", "YAML config file")
	controlAddr   = flag.String("http", ":8080", "Control server address")
	streamAddr    = flag.String("stream", ":8081", "Stream server address")
	metricsAddr   = flag.String("metrics", ":9090", "Metrics server address (empty disables)")
	pprofAddr     = flag.String("pprof", ":6060", "pprof server address (empty disables)")
	cameraBackend = flag.String("camera", "sim", "Camera backend (sim, v4l2)")
	videoDevice   = flag.String("device", "/dev/video0", "V4L2 device")
	pixelFormat   = flag.String("pixel-format", "jpeg", "Sensor pixel format (jpeg, rgb565, yuv422, grayscale, rgb888)")
	gpsPort       = flag.String("gps", "", "GPS serial port")
	gpsReplay     = flag.String("gps-replay", "", "NMEA file replayed as the GPS source")
	drivePort     = flag.String("drive", "", "Motor controller serial port (empty logs commands only)")
	mapKey        = flag.String("map-key", "", "Azure Maps subscription key")
	logLevel      = flag.String("log-level", "info", "Log level (debug, info, warn, error, silent)")
	logColor      = flag.Bool("log-color", true, "Enable colored log output")
)

// Server runs the car: camera, GPS loop, drive link and the HTTP listeners.
type Server struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	cfg     config.Config
	metrics *metrics.Metrics
	cam     camera.Camera
	state   *vehicle.State
	driver  *vehicle.Driver
	web     *webserver.Server

	gps     *gps.Reader
	closers []io.Closer // GPS source, drive link

	controlServer *http.Server
	streamServer  *http.Server
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Config: %v", err)
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, cfg.Log.Color)

	logger.Info("Main", "Car server starting...")
	logger.Info("Main", "Log level: %s", level)

	srv, err := NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Main", "Shutting down...")
	if err := srv.Shutdown(); err != nil {
		logger.Error("Main", "Error during shutdown: %v", err)
	}
	logger.Info("Main", "Server stopped")
}

func loadConfig() (config.Config, error) {
	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return cfg, err
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "http":
			cfg.Server.ControlAddr = *controlAddr
		case "stream":
			cfg.Server.StreamAddr = *streamAddr
		case "metrics":
			cfg.Server.MetricsAddr = *metricsAddr
		case "pprof":
			cfg.Server.PprofAddr = *pprofAddr
		case "camera":
			cfg.Camera.Backend = *cameraBackend
		case "device":
			cfg.Camera.Device = *videoDevice
		case "pixel-format":
			cfg.Camera.PixelFormat = *pixelFormat
		case "gps":
			cfg.GPS.SerialPort = *gpsPort
		case "gps-replay":
			cfg.GPS.ReplayFile = *gpsReplay
		case "drive":
			cfg.Drive.SerialPort = *drivePort
		case "map-key":
			cfg.Page.MapKey = *mapKey
		case "log-level":
			cfg.Log.Level = *logLevel
		case "log-color":
			cfg.Log.Color = *logColor
		}
	})

	return cfg, cfg.Validate()
}

// NewServer builds every component but starts nothing.
func NewServer(cfg config.Config) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		ctx:     ctx,
		cancel:  cancel,
		cfg:     cfg,
		metrics: metrics.New(),
	}

	fail := func(err error) (*Server, error) {
		cancel()
		s.closeAll()
		return nil, err
	}

	cam, err := openCamera(cfg.Camera)
	if err != nil {
		return fail(fmt.Errorf("failed to open camera: %w", err))
	}
	s.cam = cam

	s.state = vehicle.NewState(types.Position{
		Latitude:  types.Coordinate(cfg.GPS.DefaultLatitude),
		Longitude: types.Coordinate(cfg.GPS.DefaultLongitude),
	})

	var link io.Writer
	if cfg.Drive.SerialPort != "" {
		port, err := vehicle.OpenLink(cfg.Drive.SerialPort, cfg.Drive.BaudRate)
		if err != nil {
			return fail(fmt.Errorf("failed to open drive link: %w", err))
		}
		s.closers = append(s.closers, port)
		link = port
	}
	s.driver = vehicle.NewDriver(link)

	web, err := webserver.NewServer(webserver.Config{
		StreamPort:     cfg.StreamPort(),
		MaxStreams:     cfg.Server.MaxStreams,
		SmootherSize:   webserver.DefaultConfig().SmootherSize,
		StreamQuality:  camera.StreamQuality,
		Title:          cfg.Page.Title,
		MapKey:         cfg.Page.MapKey,
		StreamRotation: cfg.Page.StreamRotation,
		StatusInterval: cfg.Page.StatusInterval,
		MapZoom:        cfg.Page.MapZoom,
		PingInterval:   webserver.DefaultConfig().PingInterval,
	}, s.cam, s.state, s.driver, s.metrics)
	if err != nil {
		return fail(err)
	}
	s.web = web

	src, err := openGPS(cfg.GPS)
	if err != nil {
		return fail(fmt.Errorf("failed to open GPS: %w", err))
	}
	if src != nil {
		s.closers = append(s.closers, src)
		s.gps = gps.NewReader(src, s.state, cfg.GPS.PollInterval)
		s.gps.OnFix = func(types.Position) {
			s.web.Telemetry().Publish(s.state.Telemetry())
		}
	}

	s.registerGauges()

	base := func(net.Listener) context.Context { return s.ctx }
	s.controlServer = &http.Server{
		Addr:        cfg.Server.ControlAddr,
		Handler:     s.web.ControlHandler(),
		BaseContext: base,
	}
	s.streamServer = &http.Server{
		Addr:        cfg.Server.StreamAddr,
		Handler:     s.web.StreamHandler(),
		BaseContext: base,
	}

	return s, nil
}

func openCamera(cfg config.CameraConfig) (camera.Camera, error) {
	format, err := camera.ParsePixelFormat(cfg.PixelFormat)
	if err != nil {
		return nil, err
	}
	sensor := camera.NewRegisterSensor(format, camera.FrameSize(cfg.FrameSize), cfg.Quality)
	if cfg.VFlip {
		_ = sensor.SetVFlip(1)
	}
	if cfg.HMirror {
		_ = sensor.SetHMirror(1)
	}

	switch cfg.Backend {
	case "v4l2":
		return camera.OpenV4L2(camera.V4L2Config{
			Device:         cfg.Device,
			FrameBuffers:   cfg.FrameBuffers,
			FPS:            cfg.FPS,
			AcquireTimeout: cfg.AcquireTimeout,
		}, sensor)
	default:
		w, h := camera.FrameSize(cfg.FrameSize).Dimensions()
		logger.Info("Main", "Using simulated camera (%s, %dx%d)", format, w, h)
		return camera.NewSimulated(camera.SimConfig{
			FPS:            cfg.FPS,
			FrameBuffers:   cfg.FrameBuffers,
			AcquireTimeout: cfg.AcquireTimeout,
		}, sensor), nil
	}
}

// openGPS returns nil when no source is configured; the car then reports
// its default position.
func openGPS(cfg config.GPSConfig) (io.ReadCloser, error) {
	switch {
	case cfg.SerialPort != "":
		return gps.OpenSerial(cfg.SerialPort, cfg.BaudRate)
	case cfg.ReplayFile != "":
		return gps.NewReplay(cfg.ReplayFile, cfg.ReplayInterval)
	default:
		logger.Warn("Main", "No GPS source configured, reporting default position")
		return nil, nil
	}
}

func (s *Server) registerGauges() {
	m := s.metrics
	m.AddGaugeFunc("carcam_drive_link_failures", "Drive commands the motor link failed to accept",
		func() float64 { return float64(s.driver.LinkFailures()) })
	m.AddGaugeFunc("carcam_telemetry_broadcast_clients", "Subscribers registered with the telemetry broadcaster",
		func() float64 { return float64(s.web.Telemetry().Clients()) })
	if s.gps == nil {
		return
	}
	m.AddGaugeFunc("carcam_gps_sentences", "NMEA sentences parsed",
		func() float64 { return float64(s.gps.Stats().Sentences) })
	m.AddGaugeFunc("carcam_gps_fixes", "GPS fixes accepted",
		func() float64 { return float64(s.gps.Stats().Fixes) })
	m.AddGaugeFunc("carcam_gps_rejected", "NMEA sentences rejected",
		func() float64 { return float64(s.gps.Stats().Rejected + s.gps.Stats().Overlong) })
	m.AddGaugeFunc("carcam_gps_read_errors", "GPS source read errors",
		func() float64 { return float64(s.gps.ReadErrors()) })
}

// Start starts all server components
func (s *Server) Start() error {
	logger.Info("Main", "Starting car server...")
	logger.Info("Main", "  Control server: %s", s.cfg.Server.ControlAddr)
	logger.Info("Main", "  Stream server: %s", s.cfg.Server.StreamAddr)
	logger.Info("Main", "  Metrics server: %s", s.cfg.Server.MetricsAddr)
	logger.Info("Main", "  pprof server: %s", s.cfg.Server.PprofAddr)

	if addr := s.cfg.Server.PprofAddr; addr != "" {
		go func() {
			logger.Info("Main", "Starting pprof server on %s", addr)
			if err := http.ListenAndServe(addr, nil); err != nil {
				logger.Warn("Main", "pprof server error: %v", err)
			}
		}()
	}

	if addr := s.cfg.Server.MetricsAddr; addr != "" {
		go func() {
			logger.Info("Main", "Starting metrics server on %s", addr)
			if err := s.metrics.StartServer(addr); err != nil {
				logger.Warn("Main", "Metrics server error: %v", err)
			}
		}()
	}

	// Listen synchronously so a busy port fails Start instead of a goroutine.
	controlLn, err := net.Listen("tcp", s.controlServer.Addr)
	if err != nil {
		return fmt.Errorf("control listener: %w", err)
	}
	streamLn, err := net.Listen("tcp", s.streamServer.Addr)
	if err != nil {
		controlLn.Close()
		return fmt.Errorf("stream listener: %w", err)
	}

	s.serve(s.controlServer, controlLn)
	s.serve(s.streamServer, streamLn)

	s.driver.Send(vehicle.Stop)

	if s.gps != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.gps.Run(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("GPS", "Reader stopped: %v", err)
			}
		}()
	}

	logReachableAddrs(s.cfg.Server.ControlAddr)
	logger.Info("Main", "Server started successfully")
	return nil
}

func (s *Server) serve(srv *http.Server, ln net.Listener) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		logger.Info("Main", "Serving on %s", ln.Addr())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Main", "HTTP server %s: %v", ln.Addr(), err)
		}
	}()
}

// logReachableAddrs prints the URLs a phone on the same network can open.
func logReachableAddrs(controlAddr string) {
	_, port, err := net.SplitHostPort(controlAddr)
	if err != nil {
		return
	}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		logger.Warn("Main", "List interface addresses: %v", err)
		return
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() || ipnet.IP.To4() == nil {
			continue
		}
		logger.Info("Main", "Camera Ready! Use 'http://%s' to connect", net.JoinHostPort(ipnet.IP.String(), port))
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	// Cancel context to stop the GPS loop and open streams
	s.cancel()

	s.driver.Send(vehicle.Stop)
	s.web.Telemetry().Close()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	err := errors.Join(
		s.controlServer.Shutdown(ctx),
		s.streamServer.Shutdown(ctx),
	)

	s.wg.Wait()
	return errors.Join(err, s.closeAll())
}

func (s *Server) closeAll() error {
	var errs []error
	if s.cam != nil {
		errs = append(errs, s.cam.Close())
	}
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
