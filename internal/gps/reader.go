package gps

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dj-oyu/carcam/internal/logger"
	"github.com/dj-oyu/carcam/pkg/types"
)

// DefaultPollInterval matches a 9600 baud receiver emitting a handful of
// sentences per second.
const DefaultPollInterval = 50 * time.Millisecond

// PositionSink receives every completed fix.
type PositionSink interface {
	SetPosition(types.Position)
}

// Reader drains a byte source into a Decoder on a fixed tick.
//
// The source must not block indefinitely: a serial port opened with
// OpenSerial returns (0, nil) once its read timeout expires, which ends
// the drain for that tick.
type Reader struct {
	src      io.Reader
	sink     PositionSink
	interval time.Duration
	log      logger.Module

	// OnFix, when set, runs after the sink is updated.
	OnFix func(types.Position)

	mu  sync.Mutex
	dec *Decoder
	buf []byte

	readErrors atomic.Uint64
}

func NewReader(src io.Reader, sink PositionSink, interval time.Duration) *Reader {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Reader{
		src:      src,
		sink:     sink,
		interval: interval,
		log:      logger.For("GPS"),
		dec:      NewDecoder(),
		buf:      make([]byte, 256),
	}
}

// Poll drains the currently buffered bytes once and returns the number of
// fixes completed.
func (r *Reader) Poll() int {
	n, err := r.poll()
	if err != nil && !errors.Is(err, io.EOF) {
		r.readErrors.Add(1)
		r.log.Warn("Read failed: %v", err)
	}
	return n
}

func (r *Reader) poll() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fixes := 0
	for {
		n, err := r.src.Read(r.buf)
		for _, b := range r.buf[:n] {
			if !r.dec.Feed(b) {
				continue
			}
			fixes++
			r.publish(r.dec.Fix())
		}
		if err != nil {
			return fixes, err
		}
		if n < len(r.buf) {
			return fixes, nil
		}
	}
}

func (r *Reader) publish(p types.Position) {
	if r.sink != nil {
		r.sink.SetPosition(p)
	}
	r.log.Info("Latitude= %.6f Longitude= %.6f", float64(p.Latitude), float64(p.Longitude))
	if r.OnFix != nil {
		r.OnFix(p)
	}
}

// Run polls until ctx is cancelled or the source reports io.EOF.
func (r *Reader) Run(ctx context.Context) error {
	r.log.Info("Starting GPS reader (interval=%v)", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.poll(); err != nil {
				if errors.Is(err, io.EOF) {
					r.log.Info("Source closed")
					return nil
				}
				r.readErrors.Add(1)
				r.log.Warn("Read failed: %v", err)
			}
		}
	}
}

// Stats returns the decoder counters.
func (r *Reader) Stats() DecoderStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dec.Stats()
}

// ReadErrors counts failed reads other than io.EOF.
func (r *Reader) ReadErrors() uint64 {
	return r.readErrors.Load()
}
