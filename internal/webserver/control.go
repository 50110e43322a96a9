package webserver

import (
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/dj-oyu/carcam/internal/camera"
	"github.com/dj-oyu/carcam/internal/vehicle"
)

// maxQueryValue mirrors the 32-byte buffers the sensor API accepts,
// including the terminator.
const maxQueryValue = 31

type setter func(camera.Sensor, int) error

func setFrameSize(s camera.Sensor, v int) error {
	return s.SetFrameSize(camera.FrameSize(v))
}

var setters = map[string]setter{
	"framesize":      setFrameSize,
	"quality":        camera.Sensor.SetQuality,
	"brightness":     camera.Sensor.SetBrightness,
	"contrast":       camera.Sensor.SetContrast,
	"saturation":     camera.Sensor.SetSaturation,
	"gainceiling":    camera.Sensor.SetGainCeiling,
	"colorbar":       camera.Sensor.SetColorbar,
	"awb":            camera.Sensor.SetWhitebal,
	"agc":            camera.Sensor.SetGainCtrl,
	"aec":            camera.Sensor.SetExposureCtrl,
	"hmirror":        camera.Sensor.SetHMirror,
	"vflip":          camera.Sensor.SetVFlip,
	"awb_gain":       camera.Sensor.SetAWBGain,
	"agc_gain":       camera.Sensor.SetAGCGain,
	"aec_value":      camera.Sensor.SetAECValue,
	"aec2":           camera.Sensor.SetAEC2,
	"dcw":            camera.Sensor.SetDCW,
	"bpc":            camera.Sensor.SetBPC,
	"wpc":            camera.Sensor.SetWPC,
	"raw_gma":        camera.Sensor.SetRawGMA,
	"lenc":           camera.Sensor.SetLenc,
	"special_effect": camera.Sensor.SetSpecialEffect,
	"wb_mode":        camera.Sensor.SetWBMode,
	"ae_level":       camera.Sensor.SetAELevel,
}

// controlTable checks that the setter table and the sensor agree on the
// parameter names.
func controlTable(sensor camera.Sensor) (map[string]setter, error) {
	names := sensor.Controls()
	for _, name := range names {
		if _, ok := setters[name]; !ok {
			return nil, fmt.Errorf("sensor control %q has no setter", name)
		}
	}
	for name := range setters {
		if !slices.Contains(names, name) {
			return nil, fmt.Errorf("setter %q is not a sensor control", name)
		}
	}
	return setters, nil
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	s.metrics.ControlRequests.Add(1)

	variable, value, ok := controlQuery(r.URL.RawQuery)
	if !ok {
		s.metrics.ControlRejected.Add(1)
		http.NotFound(w, r)
		return
	}
	val, err := strconv.Atoi(value)
	if err != nil {
		s.metrics.ControlRejected.Add(1)
		http.NotFound(w, r)
		return
	}

	set, ok := s.controls[variable]
	if !ok {
		s.metrics.ControlFailed.Add(1)
		s.log.Warn("Unknown control %q", variable)
		http.Error(w, "Unknown control", http.StatusInternalServerError)
		return
	}

	sensor := s.cam.Sensor()
	if variable == "framesize" && sensor.PixelFormat() != camera.PixelFormatJPEG {
		s.log.Debug("Ignoring framesize=%d for %s output", val, sensor.PixelFormat())
		w.WriteHeader(http.StatusOK)
		return
	}
	if err := set(sensor, val); err != nil {
		s.metrics.ControlFailed.Add(1)
		s.log.Warn("Set %s=%d: %v", variable, val, err)
		http.Error(w, "Sensor rejected value", http.StatusInternalServerError)
		return
	}

	s.log.Info("Set %s=%d", variable, val)
	w.WriteHeader(http.StatusOK)
}

func controlQuery(raw string) (variable, value string, ok bool) {
	if raw == "" {
		return "", "", false
	}
	q, err := url.ParseQuery(raw)
	if err != nil {
		return "", "", false
	}
	if !q.Has("var") || !q.Has("val") {
		return "", "", false
	}
	variable, value = q.Get("var"), q.Get("val")
	if len(variable) > maxQueryValue || len(value) > maxQueryValue {
		return "", "", false
	}
	return variable, value, true
}

func (s *Server) handleDrive(cmd vehicle.Command) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.metrics.DriveCommands.Add(1)
		s.driver.Send(cmd)
		writeOK(w)
	}
}

func (s *Server) handleToggleAutoMode(w http.ResponseWriter, r *http.Request) {
	on := s.state.ToggleAutoMode()
	s.metrics.SetAutoMode(on)
	if on {
		s.driver.Send(vehicle.Auto)
	} else {
		s.driver.Send(vehicle.Manual)
	}
	s.telemetry.Publish(s.state.Telemetry())
	writeOK(w)
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte("OK"))
}
