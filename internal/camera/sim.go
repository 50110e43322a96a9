package camera

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dj-oyu/carcam/internal/logger"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	patternWidth  = 320
	patternHeight = 240
)

// SimConfig configures the test-pattern camera.
type SimConfig struct {
	FPS            int
	FrameBuffers   int
	AcquireTimeout time.Duration
}

// Simulated renders a test pattern that follows the sensor registers.
// It owns a fixed pool of frame buffers like the hardware driver does.
type Simulated struct {
	cfg    SimConfig
	sensor *RegisterSensor
	pool   *framePool

	mu   sync.Mutex
	next time.Time

	seq atomic.Uint64
}

// NewSimulated creates a simulated camera backed by sensor.
func NewSimulated(cfg SimConfig, sensor *RegisterSensor) *Simulated {
	return &Simulated{
		cfg:    cfg,
		sensor: sensor,
		pool:   newFramePool(cfg.FrameBuffers, cfg.AcquireTimeout, logger.For("Camera")),
	}
}

func (c *Simulated) Sensor() Sensor {
	return c.sensor
}

// Acquire waits for a free buffer and the next frame slot, then renders.
func (c *Simulated) Acquire() (*Frame, error) {
	fb, err := c.pool.get()
	if err != nil {
		return nil, err
	}

	c.pace()

	if err := c.render(fb); err != nil {
		c.pool.put(fb)
		return nil, fmt.Errorf("render frame: %w", err)
	}
	c.pool.lend(fb)
	return fb, nil
}

// Release returns fb to the pool. Unknown or already released frames are
// logged and ignored.
func (c *Simulated) Release(fb *Frame) {
	c.pool.release(fb)
}

// Outstanding returns the number of acquired, unreleased frames.
func (c *Simulated) Outstanding() int {
	return c.pool.count()
}

func (c *Simulated) Close() error {
	c.pool.close()
	return nil
}

func (c *Simulated) pace() {
	if c.cfg.FPS <= 0 {
		return
	}
	interval := time.Second / time.Duration(c.cfg.FPS)

	c.mu.Lock()
	now := time.Now()
	if c.next.Before(now) {
		c.next = now
	}
	wait := c.next.Sub(now)
	c.next = c.next.Add(interval)
	c.mu.Unlock()

	if wait <= 0 {
		return
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
	case <-c.pool.done:
	}
}

func (c *Simulated) render(fb *Frame) error {
	st := c.sensor.Status()
	format := c.sensor.PixelFormat()
	vflip := c.sensor.VFlip()
	w, h := FrameSize(st.FrameSize).Dimensions()

	seq := c.seq.Add(1)
	now := time.Now()

	base := image.NewRGBA(image.Rect(0, 0, patternWidth, patternHeight))
	drawPattern(base, st.Colorbar == 1, seq)

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(img, img.Bounds(), base, base.Bounds(), draw.Src, nil)

	adjust(img, st)
	if st.HMirror == 1 {
		mirror(img)
	}
	if vflip == 1 {
		flip(img)
	}
	drawLabel(img, fmt.Sprintf("#%d %s", seq, now.Format("15:04:05.000")))

	data, err := pack(fb.Data[:0], img, format, st.Quality)
	if err != nil {
		return err
	}

	fb.Data = data
	fb.Width = w
	fb.Height = h
	fb.Format = format
	fb.Timestamp = now
	fb.Seq = seq
	return nil
}

var barColors = []color.RGBA{
	{R: 255, G: 255, B: 255, A: 255},
	{R: 255, G: 255, B: 0, A: 255},
	{R: 0, G: 255, B: 255, A: 255},
	{R: 0, G: 255, B: 0, A: 255},
	{R: 255, G: 0, B: 255, A: 255},
	{R: 255, G: 0, B: 0, A: 255},
	{R: 0, G: 0, B: 255, A: 255},
	{R: 0, G: 0, B: 0, A: 255},
}

func drawPattern(img *image.RGBA, colorbar bool, seq uint64) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	barWidth := w / len(barColors)
	marker := int(seq*2) % w

	for y := range h {
		for x := range w {
			var c color.RGBA
			switch {
			case x == marker || x == marker+1:
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			case colorbar:
				c = barColors[min(x/barWidth, len(barColors)-1)]
			default:
				c = color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
}

// adjust applies brightness, contrast, saturation and the special effect.
func adjust(img *image.RGBA, st Status) {
	if st.Brightness == 0 && st.Contrast == 0 && st.Saturation == 0 && st.SpecialEffect == 0 {
		return
	}
	contrast := 1 + float64(st.Contrast)*0.25
	saturation := 1 + float64(st.Saturation)*0.3
	bright := float64(st.Brightness * 24)

	for i := 0; i < len(img.Pix); i += 4 {
		r, g, b := float64(img.Pix[i]), float64(img.Pix[i+1]), float64(img.Pix[i+2])
		gray := 0.299*r + 0.587*g + 0.114*b

		r = gray + (r-gray)*saturation
		g = gray + (g-gray)*saturation
		b = gray + (b-gray)*saturation

		r = (r-128)*contrast + 128 + bright
		g = (g-128)*contrast + 128 + bright
		b = (b-128)*contrast + 128 + bright

		gray = 0.299*r + 0.587*g + 0.114*b
		switch st.SpecialEffect {
		case 1: // negative
			r, g, b = 255-r, 255-g, 255-b
		case 2: // grayscale
			r, g, b = gray, gray, gray
		case 3: // red tint
			r, g, b = gray+40, gray, gray
		case 4: // green tint
			r, g, b = gray, gray+40, gray
		case 5: // blue tint
			r, g, b = gray, gray, gray+40
		case 6: // sepia
			r, g, b = gray+40, gray+20, gray-20
		}

		img.Pix[i] = clamp8(r)
		img.Pix[i+1] = clamp8(g)
		img.Pix[i+2] = clamp8(b)
	}
}

func clamp8(v float64) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v)
}

func mirror(img *image.RGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-b.Min.Y)*img.Stride:]
		for l, r := 0, b.Dx()-1; l < r; l, r = l+1, r-1 {
			for k := range 4 {
				row[l*4+k], row[r*4+k] = row[r*4+k], row[l*4+k]
			}
		}
	}
}

func flip(img *image.RGBA) {
	h := img.Bounds().Dy()
	tmp := make([]byte, img.Stride)
	for top, bottom := 0, h-1; top < bottom; top, bottom = top+1, bottom-1 {
		a := img.Pix[top*img.Stride : (top+1)*img.Stride]
		b := img.Pix[bottom*img.Stride : (bottom+1)*img.Stride]
		copy(tmp, a)
		copy(a, b)
		copy(b, tmp)
	}
}

func drawLabel(img *image.RGBA, text string) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	bg := image.Rect(4, 4, 4+width+6, 4+face.Height+4).Intersect(img.Bounds())
	draw.Draw(img, bg, image.NewUniform(color.RGBA{A: 255}), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{R: 255, G: 255, B: 255, A: 255}),
		Face: face,
		Dot:  fixed.P(7, 4+face.Ascent+2),
	}
	d.DrawString(text)
}

// jpegQuality maps the sensor scale (0 best .. 63 worst) to image/jpeg's.
func jpegQuality(q int) int {
	return max(1, min(100, 100-q*100/64))
}

func pack(dst []byte, img *image.RGBA, format PixelFormat, quality int) ([]byte, error) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()

	if format == PixelFormatJPEG {
		buf := bytes.NewBuffer(dst)
		if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: jpegQuality(quality)}); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	bpp := format.BytesPerPixel()
	if bpp == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	need := w * h * bpp
	if cap(dst) < need {
		dst = make([]byte, need)
	}
	dst = dst[:need]

	for i := 0; i < w*h; i++ {
		p := img.Pix[i*4 : i*4+4]
		c := color.RGBA{R: p[0], G: p[1], B: p[2], A: 0xff}
		switch format {
		case PixelFormatGrayscale:
			dst[i] = color.GrayModel.Convert(c).(color.Gray).Y
		case PixelFormatRGB888:
			dst[i*3], dst[i*3+1], dst[i*3+2] = c.R, c.G, c.B
		case PixelFormatRGB565:
			dst[i*2], dst[i*2+1] = packRGB565(c)
		case PixelFormatYUV422:
			y, cb, cr := color.RGBToYCbCr(c.R, c.G, c.B)
			dst[i*2] = y
			if i%2 == 0 {
				dst[i*2+1] = cb
			} else {
				dst[i*2+1] = cr
			}
		}
	}
	return dst, nil
}
