package camera

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
)

// StreamQuality is the JPEG quality used when a raw frame is converted for
// the MJPEG stream.
const StreamQuality = 80

// EncodeJPEG converts a raw frame to JPEG and writes it to w. JPEG frames
// are rejected: they are sent as-is and never re-encoded.
func EncodeJPEG(w io.Writer, f *Frame, quality int) error {
	if f.Format == PixelFormatJPEG {
		return fmt.Errorf("%w: frame is already jpeg", ErrUnsupportedFormat)
	}
	img, err := f.Image()
	if err != nil {
		return err
	}
	return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
}

// Image decodes the frame payload into an image.Image.
func (f *Frame) Image() (image.Image, error) {
	if f.Format == PixelFormatJPEG {
		return jpeg.Decode(bytes.NewReader(f.Data))
	}

	bpp := f.Format.BytesPerPixel()
	if bpp == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f.Format)
	}
	if f.Width <= 0 || f.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrShortFrame, f.Width, f.Height)
	}
	if need := f.Width * f.Height * bpp; len(f.Data) < need {
		return nil, fmt.Errorf("%w: have %d bytes, need %d", ErrShortFrame, len(f.Data), need)
	}

	rect := image.Rect(0, 0, f.Width, f.Height)
	switch f.Format {
	case PixelFormatGrayscale:
		img := image.NewGray(rect)
		copy(img.Pix, f.Data)
		return img, nil

	case PixelFormatRGB888:
		img := image.NewRGBA(rect)
		for i, j := 0, 0; i < f.Width*f.Height; i, j = i+1, j+3 {
			img.Pix[i*4+0] = f.Data[j]
			img.Pix[i*4+1] = f.Data[j+1]
			img.Pix[i*4+2] = f.Data[j+2]
			img.Pix[i*4+3] = 0xff
		}
		return img, nil

	case PixelFormatRGB565:
		img := image.NewRGBA(rect)
		for i := 0; i < f.Width*f.Height; i++ {
			c := rgb565(uint16(f.Data[i*2])<<8 | uint16(f.Data[i*2+1]))
			img.Pix[i*4+0] = c.R
			img.Pix[i*4+1] = c.G
			img.Pix[i*4+2] = c.B
			img.Pix[i*4+3] = 0xff
		}
		return img, nil

	case PixelFormatYUV422:
		if f.Width%2 != 0 {
			return nil, fmt.Errorf("%w: yuv422 width %d is odd", ErrShortFrame, f.Width)
		}
		img := image.NewYCbCr(rect, image.YCbCrSubsampleRatio422)
		for y := 0; y < f.Height; y++ {
			row := f.Data[y*f.Width*2:]
			for x := 0; x < f.Width; x += 2 {
				// YUYV: Y0 U Y1 V
				p := row[x*2:]
				img.Y[y*img.YStride+x] = p[0]
				img.Y[y*img.YStride+x+1] = p[2]
				ci := y*img.CStride + x/2
				img.Cb[ci] = p[1]
				img.Cr[ci] = p[3]
			}
		}
		return img, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f.Format)
}

func rgb565(v uint16) color.RGBA {
	r := uint8(v>>11) & 0x1f
	g := uint8(v>>5) & 0x3f
	b := uint8(v) & 0x1f
	return color.RGBA{
		R: r<<3 | r>>2,
		G: g<<2 | g>>4,
		B: b<<3 | b>>2,
		A: 0xff,
	}
}

func packRGB565(c color.RGBA) (byte, byte) {
	v := uint16(c.R>>3)<<11 | uint16(c.G>>2)<<5 | uint16(c.B>>3)
	return byte(v >> 8), byte(v)
}
