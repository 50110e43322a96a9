package webserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dj-oyu/carcam/internal/camera"
	"github.com/dj-oyu/carcam/internal/logger"
	"github.com/dj-oyu/carcam/internal/metrics"
	"github.com/dj-oyu/carcam/internal/ravg"
	"github.com/google/uuid"
)

// Boundary separates MJPEG parts on /stream.
const Boundary = "123456789000000000000987654321"

const (
	streamContentType = "multipart/x-mixed-replace;boundary=" + Boundary
	streamSeparator   = "\r\n--" + Boundary + "\r\n"
	streamPartHeader  = "Content-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n"
)

var (
	errCapture = errors.New("camera capture failed")
	errConvert = errors.New("JPEG compression failed")
	errSend    = errors.New("send failed")
)

// Streamer serves the camera as multipart JPEG. Each connection pulls
// frames itself; there is no shared fanout.
type Streamer struct {
	cam        camera.Camera
	metrics    *metrics.Metrics
	log        logger.Module
	quality    int
	maxStreams int
	active     atomic.Int64

	bufPool sync.Pool

	mu       sync.Mutex
	smoother *ravg.Filter

	now func() time.Time
}

// NewStreamer returns a streamer limited to maxStreams concurrent clients
// (0 for no limit). A smoother that cannot be allocated leaves frame
// times unsmoothed.
func NewStreamer(cam camera.Camera, m *metrics.Metrics, cfg Config) *Streamer {
	log := logger.For("MJPEG")
	smoother, err := ravg.New(cfg.SmootherSize)
	if err != nil {
		log.Warn("Frame-time smoother disabled: %v", err)
	}
	quality := cfg.StreamQuality
	if quality <= 0 {
		quality = camera.StreamQuality
	}
	return &Streamer{
		cam:        cam,
		metrics:    m,
		log:        log,
		quality:    quality,
		maxStreams: cfg.MaxStreams,
		bufPool: sync.Pool{
			New: func() any { return new(bytes.Buffer) },
		},
		smoother: smoother,
		now:      time.Now,
	}
}

// Active returns the number of open streams.
func (s *Streamer) Active() int {
	return int(s.active.Load())
}

func (s *Streamer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	if s.maxStreams > 0 && n > int64(s.maxStreams) {
		s.metrics.StreamsRefused.Add(1)
		s.log.Warn("Refusing %s: %d streams already open", r.RemoteAddr, s.maxStreams)
		http.Error(w, "Too many streams", http.StatusServiceUnavailable)
		return
	}

	s.metrics.StreamsTotal.Add(1)
	s.metrics.StreamsActive.Add(1)
	defer s.metrics.StreamsActive.Add(-1)

	id := uuid.NewString()[:8]
	s.log.Info("Stream %s opened by %s", id, r.RemoteAddr)

	w.Header().Set("Content-Type", streamContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	frames, err := s.stream(r.Context(), w, http.NewResponseController(w))
	switch {
	case errors.Is(err, context.Canceled):
		s.log.Info("Stream %s closed by client after %d frames", id, frames)
	case errors.Is(err, errSend):
		s.metrics.SendErrors.Add(1)
		s.log.Info("Stream %s ended after %d frames: %v", id, frames, err)
	default:
		s.log.Warn("Stream %s ended after %d frames: %v", id, frames, err)
	}
}

// stream writes frames until a step fails. The cadence marker is local, so
// every connection starts its interval measurement afresh.
func (s *Streamer) stream(ctx context.Context, w io.Writer, rc *http.ResponseController) (int, error) {
	last := s.now()
	frames := 0
	for {
		if err := ctx.Err(); err != nil {
			return frames, err
		}

		size, err := s.sendFrame(w, rc)
		if err != nil {
			return frames, err
		}
		frames++

		end := s.now()
		frameTime := end.Sub(last).Milliseconds()
		last = end
		avg := s.smooth(int(frameTime))

		s.log.Debug("MJPG: %dB %dms (%.1ffps), AVG: %dms (%.1ffps)",
			size, frameTime, fps(frameTime), avg, fps(int64(avg)))
		s.metrics.FramesSent.Add(1)
		s.metrics.BytesSent.Add(uint64(size))
		s.metrics.UpdateFrameInterval(time.Duration(frameTime)*time.Millisecond, time.Duration(avg)*time.Millisecond)
	}
}

// sendFrame acquires, converts when needed, writes one part and releases
// the single buffer it still holds.
func (s *Streamer) sendFrame(w io.Writer, rc *http.ResponseController) (int, error) {
	fb, err := s.cam.Acquire()
	if err != nil {
		s.metrics.CaptureErrors.Add(1)
		return 0, fmt.Errorf("%w: %w", errCapture, err)
	}

	var (
		payload []byte
		encoded *bytes.Buffer
	)
	if fb.Format == camera.PixelFormatJPEG {
		payload = fb.Data
		defer s.cam.Release(fb)
	} else {
		encoded = s.bufPool.Get().(*bytes.Buffer)
		encoded.Reset()
		defer s.bufPool.Put(encoded)

		start := s.now()
		err := camera.EncodeJPEG(encoded, fb, s.quality)
		s.cam.Release(fb)
		if err != nil {
			s.metrics.ConvertErrors.Add(1)
			return 0, fmt.Errorf("%w: %w", errConvert, err)
		}
		s.metrics.FramesEncoded.Add(1)
		s.metrics.UpdateEncodeLatency(s.now().Sub(start))
		payload = encoded.Bytes()
	}

	if _, err := fmt.Fprintf(w, streamPartHeader, len(payload)); err != nil {
		return 0, fmt.Errorf("%w: part header: %w", errSend, err)
	}
	if _, err := w.Write(payload); err != nil {
		return 0, fmt.Errorf("%w: payload: %w", errSend, err)
	}
	if _, err := io.WriteString(w, streamSeparator); err != nil {
		return 0, fmt.Errorf("%w: boundary: %w", errSend, err)
	}
	if err := rc.Flush(); err != nil {
		return 0, fmt.Errorf("%w: flush: %w", errSend, err)
	}
	return len(payload), nil
}

func (s *Streamer) smooth(ms int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.smoother.Run(ms)
}

func fps(ms int64) float64 {
	if ms <= 0 {
		return 0
	}
	return 1000.0 / float64(ms)
}
