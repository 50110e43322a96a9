package camera

import (
	"bytes"
	"image/color"
	"image/jpeg"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameSizeDimensions(t *testing.T) {
	w, h := FrameSizeUXGA.Dimensions()
	assert.Equal(t, 1600, w)
	assert.Equal(t, 1200, h)

	w, h = FrameSize(99).Dimensions()
	assert.Equal(t, 400, w)
	assert.Equal(t, 296, h)

	assert.False(t, FrameSize(-1).Valid())
	assert.True(t, FrameSize96x96.Valid())
}

func TestParsePixelFormat(t *testing.T) {
	p, err := ParsePixelFormat("RGB565")
	require.NoError(t, err)
	assert.Equal(t, PixelFormatRGB565, p)
	assert.Equal(t, "rgb565", p.String())

	_, err = ParsePixelFormat("bayer")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestSensorRanges(t *testing.T) {
	s := NewRegisterSensor(PixelFormatJPEG, FrameSizeCIF, 12)

	require.NoError(t, s.SetQuality(63))
	assert.ErrorIs(t, s.SetQuality(64), ErrOutOfRange)
	assert.ErrorIs(t, s.SetBrightness(3), ErrOutOfRange)
	require.NoError(t, s.SetBrightness(-2))
	assert.ErrorIs(t, s.SetHMirror(2), ErrOutOfRange)
	assert.ErrorIs(t, s.SetFrameSize(14), ErrOutOfRange)
	require.NoError(t, s.SetAECValue(1200))
	require.NoError(t, s.SetVFlip(1))

	st := s.Status()
	assert.Equal(t, 63, st.Quality)
	assert.Equal(t, -2, st.Brightness)
	assert.Equal(t, 1200, st.AECValue)
	assert.Equal(t, 1, s.VFlip())
	assert.Equal(t, 0, st.HMirror)
}

func TestSensorControlsListsEverySetter(t *testing.T) {
	s := NewRegisterSensor(PixelFormatJPEG, FrameSizeCIF, 12)
	names := s.Controls()
	assert.Len(t, names, 24)
	assert.Contains(t, names, "vflip")
	assert.Contains(t, names, "ae_level")

	// Callers get a copy.
	names[0] = "x"
	assert.Equal(t, "framesize", s.Controls()[0])
}

func TestEncodeJPEGFormats(t *testing.T) {
	for _, format := range []PixelFormat{PixelFormatRGB565, PixelFormatYUV422, PixelFormatGrayscale, PixelFormatRGB888} {
		t.Run(format.String(), func(t *testing.T) {
			f := &Frame{Width: 16, Height: 8, Format: format, Data: make([]byte, 16*8*format.BytesPerPixel())}
			for i := range f.Data {
				f.Data[i] = byte(i)
			}

			var buf bytes.Buffer
			require.NoError(t, EncodeJPEG(&buf, f, StreamQuality))

			img, err := jpeg.Decode(&buf)
			require.NoError(t, err)
			assert.Equal(t, 16, img.Bounds().Dx())
			assert.Equal(t, 8, img.Bounds().Dy())
		})
	}
}

func TestEncodeJPEGErrors(t *testing.T) {
	var buf bytes.Buffer

	err := EncodeJPEG(&buf, &Frame{Format: PixelFormatJPEG, Data: []byte{0xff, 0xd8}}, StreamQuality)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	err = EncodeJPEG(&buf, &Frame{Format: PixelFormatRGB888, Width: 4, Height: 4, Data: make([]byte, 10)}, StreamQuality)
	assert.ErrorIs(t, err, ErrShortFrame)

	err = EncodeJPEG(&buf, &Frame{Format: PixelFormatYUV422, Width: 3, Height: 2, Data: make([]byte, 12)}, StreamQuality)
	assert.ErrorIs(t, err, ErrShortFrame)

	err = EncodeJPEG(&buf, &Frame{Format: PixelFormat(42), Width: 1, Height: 1, Data: []byte{0}}, StreamQuality)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestRGB565RoundTrip(t *testing.T) {
	for _, c := range []color.RGBA{
		{R: 255, G: 255, B: 255, A: 255},
		{R: 0, G: 0, B: 0, A: 255},
		{R: 248, G: 0, B: 0, A: 255},
		{R: 0, G: 252, B: 0, A: 255},
	} {
		hi, lo := packRGB565(c)
		got := rgb565(uint16(hi)<<8 | uint16(lo))
		assert.InDelta(t, c.R, got.R, 8)
		assert.InDelta(t, c.G, got.G, 4)
		assert.InDelta(t, c.B, got.B, 8)
	}
}

func newTestSim(t *testing.T, format PixelFormat, buffers int) *Simulated {
	t.Helper()
	s := NewRegisterSensor(format, FrameSizeQQVGA, 12)
	c := NewSimulated(SimConfig{FrameBuffers: buffers, AcquireTimeout: 50 * time.Millisecond}, s)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSimulatedJPEGFrame(t *testing.T) {
	c := newTestSim(t, PixelFormatJPEG, 2)

	fb, err := c.Acquire()
	require.NoError(t, err)
	defer c.Release(fb)

	assert.Equal(t, PixelFormatJPEG, fb.Format)
	assert.Equal(t, 160, fb.Width)
	assert.Equal(t, 120, fb.Height)
	assert.Equal(t, uint64(1), fb.Seq)

	img, err := jpeg.Decode(bytes.NewReader(fb.Data))
	require.NoError(t, err)
	assert.Equal(t, 160, img.Bounds().Dx())
}

func TestSimulatedRawFrameFollowsFrameSize(t *testing.T) {
	c := newTestSim(t, PixelFormatRGB565, 1)
	require.NoError(t, c.sensor.SetFrameSize(FrameSize96x96))

	fb, err := c.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 96*96*2, fb.Len())
	c.Release(fb)
}

func TestSimulatedPoolExhaustion(t *testing.T) {
	c := newTestSim(t, PixelFormatGrayscale, 2)

	a, err := c.Acquire()
	require.NoError(t, err)
	b, err := c.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 2, c.Outstanding())

	_, err = c.Acquire()
	assert.ErrorIs(t, err, ErrCaptureTimeout)

	c.Release(a)
	d, err := c.Acquire()
	require.NoError(t, err)
	c.Release(b)
	c.Release(d)
	assert.Equal(t, 0, c.Outstanding())
}

func TestSimulatedDoubleReleaseIgnored(t *testing.T) {
	c := newTestSim(t, PixelFormatGrayscale, 1)

	fb, err := c.Acquire()
	require.NoError(t, err)
	c.Release(fb)
	c.Release(fb)
	c.Release(&Frame{})

	// A second buffer was not smuggled into the pool.
	_, err = c.Acquire()
	require.NoError(t, err)
	_, err = c.Acquire()
	assert.ErrorIs(t, err, ErrCaptureTimeout)
}

func TestSimulatedClosed(t *testing.T) {
	c := newTestSim(t, PixelFormatJPEG, 1)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err := c.Acquire()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSimulatedMirrorAndFlip(t *testing.T) {
	c := newTestSim(t, PixelFormatRGB888, 1)
	require.NoError(t, c.sensor.SetColorbar(1))

	fb, err := c.Acquire()
	require.NoError(t, err)
	plain := append([]byte(nil), fb.Data...)
	c.Release(fb)

	require.NoError(t, c.sensor.SetHMirror(1))
	require.NoError(t, c.sensor.SetVFlip(1))
	fb, err = c.Acquire()
	require.NoError(t, err)
	defer c.Release(fb)

	// Mirrored and flipped, the bottom-right corner shows the first (white)
	// colour bar instead of the last (black) one.
	last := (fb.Width*fb.Height - 1) * 3
	bottomLeft := (fb.Width * (fb.Height - 1)) * 3
	assert.Equal(t, plain[bottomLeft:bottomLeft+3], fb.Data[last:last+3])
}

func TestJPEGQualityScale(t *testing.T) {
	assert.Equal(t, 100, jpegQuality(0))
	assert.Equal(t, 2, jpegQuality(63))
	assert.Equal(t, 82, jpegQuality(12))
}
