package camera

import (
	"fmt"
	"sync"
)

// Sensor proxies image-sensor registers. Setters fail with ErrOutOfRange
// when the driver would reject the value.
type Sensor interface {
	Status() Status
	PixelFormat() PixelFormat
	// Controls lists the parameter names the sensor accepts.
	Controls() []string

	SetFrameSize(FrameSize) error
	SetQuality(int) error
	SetBrightness(int) error
	SetContrast(int) error
	SetSaturation(int) error
	SetGainCeiling(int) error
	SetColorbar(int) error
	SetWhitebal(int) error
	SetGainCtrl(int) error
	SetExposureCtrl(int) error
	SetHMirror(int) error
	SetVFlip(int) error
	SetAWBGain(int) error
	SetAGCGain(int) error
	SetAECValue(int) error
	SetAEC2(int) error
	SetDCW(int) error
	SetBPC(int) error
	SetWPC(int) error
	SetRawGMA(int) error
	SetLenc(int) error
	SetSpecialEffect(int) error
	SetWBMode(int) error
	SetAELevel(int) error
}

// Status is the readable register set, in /status order.
type Status struct {
	FrameSize     int `json:"framesize"`
	Quality       int `json:"quality"`
	Brightness    int `json:"brightness"`
	Contrast      int `json:"contrast"`
	Saturation    int `json:"saturation"`
	SpecialEffect int `json:"special_effect"`
	WBMode        int `json:"wb_mode"`
	AWB           int `json:"awb"`
	AWBGain       int `json:"awb_gain"`
	AEC           int `json:"aec"`
	AEC2          int `json:"aec2"`
	AELevel       int `json:"ae_level"`
	AECValue      int `json:"aec_value"`
	AGC           int `json:"agc"`
	AGCGain       int `json:"agc_gain"`
	GainCeiling   int `json:"gainceiling"`
	BPC           int `json:"bpc"`
	WPC           int `json:"wpc"`
	RawGMA        int `json:"raw_gma"`
	Lenc          int `json:"lenc"`
	HMirror       int `json:"hmirror"`
	DCW           int `json:"dcw"`
	Colorbar      int `json:"colorbar"`
}

var controlNames = []string{
	"framesize", "quality", "brightness", "contrast", "saturation",
	"gainceiling", "colorbar", "awb", "agc", "aec", "hmirror", "vflip",
	"awb_gain", "agc_gain", "aec_value", "aec2", "dcw", "bpc", "wpc",
	"raw_gma", "lenc", "special_effect", "wb_mode", "ae_level",
}

// RegisterSensor is an in-memory register bank with OV2640 value ranges.
// The capture backends read it to decide how to produce frames.
type RegisterSensor struct {
	mu     sync.RWMutex
	format PixelFormat
	status Status
	vflip  int
}

// NewRegisterSensor returns a sensor with power-on defaults.
func NewRegisterSensor(format PixelFormat, size FrameSize, quality int) *RegisterSensor {
	if !size.Valid() {
		size = FrameSizeCIF
	}
	return &RegisterSensor{
		format: format,
		status: Status{
			FrameSize: int(size),
			Quality:   quality,
			AWB:       1,
			AWBGain:   1,
			AEC:       1,
			AECValue:  168,
			AGC:       1,
			WPC:       1,
			RawGMA:    1,
			Lenc:      1,
			DCW:       1,
		},
	}
}

func (s *RegisterSensor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *RegisterSensor) PixelFormat() PixelFormat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.format
}

// SetPixelFormat is a boot-time setting; it is not reachable from /control.
func (s *RegisterSensor) SetPixelFormat(p PixelFormat) {
	s.mu.Lock()
	s.format = p
	s.mu.Unlock()
}

func (s *RegisterSensor) Controls() []string {
	return append([]string(nil), controlNames...)
}

// VFlip is not part of Status but the renderer needs it.
func (s *RegisterSensor) VFlip() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vflip
}

// FrameSize returns the current resolution index.
func (s *RegisterSensor) FrameSize() FrameSize {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return FrameSize(s.status.FrameSize)
}

func (s *RegisterSensor) set(reg *int, name string, v, lo, hi int) error {
	if v < lo || v > hi {
		return fmt.Errorf("%w: %s=%d (want %d..%d)", ErrOutOfRange, name, v, lo, hi)
	}
	s.mu.Lock()
	*reg = v
	s.mu.Unlock()
	return nil
}

func (s *RegisterSensor) flag(reg *int, name string, v int) error {
	return s.set(reg, name, v, 0, 1)
}

func (s *RegisterSensor) SetFrameSize(v FrameSize) error {
	return s.set(&s.status.FrameSize, "framesize", int(v), 0, len(frameSizes)-1)
}

func (s *RegisterSensor) SetQuality(v int) error {
	return s.set(&s.status.Quality, "quality", v, 0, 63)
}

func (s *RegisterSensor) SetBrightness(v int) error {
	return s.set(&s.status.Brightness, "brightness", v, -2, 2)
}

func (s *RegisterSensor) SetContrast(v int) error {
	return s.set(&s.status.Contrast, "contrast", v, -2, 2)
}

func (s *RegisterSensor) SetSaturation(v int) error {
	return s.set(&s.status.Saturation, "saturation", v, -2, 2)
}

func (s *RegisterSensor) SetGainCeiling(v int) error {
	return s.set(&s.status.GainCeiling, "gainceiling", v, 0, 6)
}

func (s *RegisterSensor) SetColorbar(v int) error { return s.flag(&s.status.Colorbar, "colorbar", v) }
func (s *RegisterSensor) SetWhitebal(v int) error { return s.flag(&s.status.AWB, "awb", v) }
func (s *RegisterSensor) SetGainCtrl(v int) error { return s.flag(&s.status.AGC, "agc", v) }
func (s *RegisterSensor) SetExposureCtrl(v int) error {
	return s.flag(&s.status.AEC, "aec", v)
}
func (s *RegisterSensor) SetHMirror(v int) error { return s.flag(&s.status.HMirror, "hmirror", v) }
func (s *RegisterSensor) SetVFlip(v int) error   { return s.flag(&s.vflip, "vflip", v) }
func (s *RegisterSensor) SetAWBGain(v int) error { return s.flag(&s.status.AWBGain, "awb_gain", v) }

func (s *RegisterSensor) SetAGCGain(v int) error {
	return s.set(&s.status.AGCGain, "agc_gain", v, 0, 30)
}

func (s *RegisterSensor) SetAECValue(v int) error {
	return s.set(&s.status.AECValue, "aec_value", v, 0, 1200)
}

func (s *RegisterSensor) SetAEC2(v int) error   { return s.flag(&s.status.AEC2, "aec2", v) }
func (s *RegisterSensor) SetDCW(v int) error    { return s.flag(&s.status.DCW, "dcw", v) }
func (s *RegisterSensor) SetBPC(v int) error    { return s.flag(&s.status.BPC, "bpc", v) }
func (s *RegisterSensor) SetWPC(v int) error    { return s.flag(&s.status.WPC, "wpc", v) }
func (s *RegisterSensor) SetRawGMA(v int) error { return s.flag(&s.status.RawGMA, "raw_gma", v) }
func (s *RegisterSensor) SetLenc(v int) error   { return s.flag(&s.status.Lenc, "lenc", v) }

func (s *RegisterSensor) SetSpecialEffect(v int) error {
	return s.set(&s.status.SpecialEffect, "special_effect", v, 0, 6)
}

func (s *RegisterSensor) SetWBMode(v int) error {
	return s.set(&s.status.WBMode, "wb_mode", v, 0, 4)
}

func (s *RegisterSensor) SetAELevel(v int) error {
	return s.set(&s.status.AELevel, "ae_level", v, -2, 2)
}
