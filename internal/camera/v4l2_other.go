//go:build !linux

package camera

import (
	"errors"
	"time"
)

type V4L2Config struct {
	Device         string
	FrameBuffers   int
	FPS            int
	AcquireTimeout time.Duration
}

// V4L2 is only available on linux.
type V4L2 struct{ Camera }

func OpenV4L2(cfg V4L2Config, sensor *RegisterSensor) (*V4L2, error) {
	return nil, errors.New("camera: v4l2 capture requires linux")
}
