// Package camera defines the frame-buffer model shared by the capture
// backends, the sensor register bank behind /control and /status, and the
// raw-to-JPEG conversion used by the stream.
package camera

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrCaptureTimeout    = errors.New("camera: no frame buffer available")
	ErrClosed            = errors.New("camera: closed")
	ErrUnsupportedFormat = errors.New("camera: unsupported pixel format")
	ErrShortFrame        = errors.New("camera: frame shorter than its geometry")
	ErrOutOfRange        = errors.New("camera: value out of range")
)

// PixelFormat is the layout of Frame.Data.
type PixelFormat int

const (
	PixelFormatJPEG PixelFormat = iota
	PixelFormatRGB565
	PixelFormatYUV422
	PixelFormatGrayscale
	PixelFormatRGB888
)

var pixelFormatNames = map[PixelFormat]string{
	PixelFormatJPEG:      "jpeg",
	PixelFormatRGB565:    "rgb565",
	PixelFormatYUV422:    "yuv422",
	PixelFormatGrayscale: "grayscale",
	PixelFormatRGB888:    "rgb888",
}

func (p PixelFormat) String() string {
	if name, ok := pixelFormatNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PixelFormat(%d)", int(p))
}

// ParsePixelFormat accepts the names printed by PixelFormat.String.
func ParsePixelFormat(s string) (PixelFormat, error) {
	for p, name := range pixelFormatNames {
		if strings.EqualFold(s, name) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// BytesPerPixel is zero for compressed formats.
func (p PixelFormat) BytesPerPixel() int {
	switch p {
	case PixelFormatRGB565, PixelFormatYUV422:
		return 2
	case PixelFormatGrayscale:
		return 1
	case PixelFormatRGB888:
		return 3
	default:
		return 0
	}
}

// FrameSize indexes the sensor resolution table.
type FrameSize int

const (
	FrameSize96x96 FrameSize = iota
	FrameSizeQQVGA
	FrameSizeQCIF
	FrameSizeHQVGA
	FrameSize240x240
	FrameSizeQVGA
	FrameSizeCIF
	FrameSizeHVGA
	FrameSizeVGA
	FrameSizeSVGA
	FrameSizeXGA
	FrameSizeHD
	FrameSizeSXGA
	FrameSizeUXGA
)

var frameSizes = [...]struct{ w, h int }{
	{96, 96},
	{160, 120},
	{176, 144},
	{240, 176},
	{240, 240},
	{320, 240},
	{400, 296},
	{480, 320},
	{640, 480},
	{800, 600},
	{1024, 768},
	{1280, 720},
	{1280, 1024},
	{1600, 1200},
}

// Valid reports whether s is in the resolution table.
func (s FrameSize) Valid() bool {
	return s >= 0 && int(s) < len(frameSizes)
}

// Dimensions returns width and height in pixels; invalid sizes map to CIF.
func (s FrameSize) Dimensions() (int, int) {
	if !s.Valid() {
		s = FrameSizeCIF
	}
	d := frameSizes[s]
	return d.w, d.h
}

// Frame is one captured image. It belongs to the camera between Acquire
// and Release and must not be retained after Release.
type Frame struct {
	Data      []byte
	Width     int
	Height    int
	Format    PixelFormat
	Timestamp time.Time
	Seq       uint64
}

// Len is the payload length in bytes.
func (f *Frame) Len() int {
	return len(f.Data)
}

// Camera hands out frame buffers. Every successful Acquire must be paired
// with exactly one Release.
type Camera interface {
	Acquire() (*Frame, error)
	Release(*Frame)
	Sensor() Sensor
	Close() error
}
