//go:build linux

package camera

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dj-oyu/carcam/internal/logger"
	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"
)

// V4L2Config selects the capture device.
type V4L2Config struct {
	Device         string
	FrameBuffers   int
	FPS            int
	AcquireTimeout time.Duration
}

// V4L2 captures MJPEG from a video4linux device. The resolution is fixed
// when the device is opened; later framesize writes only change the
// register bank.
type V4L2 struct {
	sensor *RegisterSensor
	dev    *device.Device
	out    <-chan []byte
	cancel context.CancelFunc
	pool   *framePool
	width  int
	height int
	seq    atomic.Uint64
	log    logger.Module
}

// OpenV4L2 opens and starts the device.
func OpenV4L2(cfg V4L2Config, sensor *RegisterSensor) (*V4L2, error) {
	w, h := sensor.FrameSize().Dimensions()
	buffers := cfg.FrameBuffers
	if buffers <= 0 {
		buffers = 2
	}

	opts := []device.Option{
		device.WithBufferSize(uint32(buffers)),
		device.WithPixFormat(v4l2.PixFormat{
			PixelFormat: v4l2.PixelFmtMJPEG,
			Width:       uint32(w),
			Height:      uint32(h),
		}),
	}
	if cfg.FPS > 0 {
		opts = append(opts, device.WithFPS(uint32(cfg.FPS)))
	}

	dev, err := device.Open(cfg.Device, opts...)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := dev.Start(ctx); err != nil {
		cancel()
		dev.Close()
		return nil, fmt.Errorf("start %s: %w", cfg.Device, err)
	}

	log := logger.For("Camera")
	log.Info("V4L2 %s started: %dx%d mjpeg, %d buffers", cfg.Device, w, h, buffers)

	sensor.SetPixelFormat(PixelFormatJPEG)
	return &V4L2{
		sensor: sensor,
		dev:    dev,
		out:    dev.GetOutput(),
		cancel: cancel,
		pool:   newFramePool(buffers, cfg.AcquireTimeout, log),
		width:  w,
		height: h,
		log:    log,
	}, nil
}

func (c *V4L2) Sensor() Sensor {
	return c.sensor
}

func (c *V4L2) Acquire() (*Frame, error) {
	fb, err := c.pool.get()
	if err != nil {
		return nil, err
	}

	t := time.NewTimer(c.pool.timeout)
	defer t.Stop()

	var data []byte
	select {
	case d, ok := <-c.out:
		if !ok {
			c.pool.put(fb)
			return nil, ErrClosed
		}
		data = d
	case <-c.pool.done:
		c.pool.put(fb)
		return nil, ErrClosed
	case <-t.C:
		c.pool.put(fb)
		return nil, ErrCaptureTimeout
	}

	fb.Data = append(fb.Data[:0], data...)
	fb.Width = c.width
	fb.Height = c.height
	fb.Format = PixelFormatJPEG
	fb.Timestamp = time.Now()
	fb.Seq = c.seq.Add(1)

	c.pool.lend(fb)
	return fb, nil
}

func (c *V4L2) Release(fb *Frame) {
	c.pool.release(fb)
}

func (c *V4L2) Close() error {
	c.pool.close()
	c.cancel()
	return c.dev.Close()
}
