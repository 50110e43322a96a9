package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/dj-oyu/carcam/internal/logger"
	"github.com/mattn/go-mjpeg"
)

func main() {
	var (
		streamURL string
		statusURL string
		frames    int
		timeout   time.Duration
		output    string
		logLevel  string
		logColor  bool
	)
	flag.StringVar(&streamURL, "stream", "http://192.168.4.1:8081/stream", "MJPEG stream URL")
	flag.StringVar(&statusURL, "status", "http://192.168.4.1:8080/status", "Status URL (empty skips)")
	flag.IntVar(&frames, "frames", 30, "Frames to decode")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "Overall timeout")
	flag.StringVar(&output, "o", "", "Write the last decoded frame to this JPEG file")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error, silent)")
	flag.BoolVar(&logColor, "log-color", true, "Enable colored log output")
	flag.Parse()

	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, logColor)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if statusURL != "" {
		if err := printStatus(ctx, statusURL); err != nil {
			logger.Warn("Probe", "Status: %v", err)
		}
	}

	last, err := probe(ctx, streamURL, frames)
	if err != nil {
		log.Fatalf("Stream: %v", err)
	}

	if output != "" && last != nil {
		if err := writeJPEG(output, last); err != nil {
			log.Fatalf("Write frame: %v", err)
		}
		logger.Info("Probe", "Last frame written to %s", output)
	}
}

// probe decodes up to n frames and reports the observed rate.
func probe(ctx context.Context, url string, n int) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("content type: %w", err)
	}
	boundary := strings.TrimLeft(params["boundary"], "-")
	if !strings.HasPrefix(mediaType, "multipart/") || boundary == "" {
		return nil, fmt.Errorf("not a multipart stream: %q", resp.Header.Get("Content-Type"))
	}
	logger.Info("Probe", "Connected to %s (boundary %s)", url, boundary)

	// The camera sends its first part without a leading delimiter; supply
	// one so that frame is not lost as preamble.
	body := io.MultiReader(strings.NewReader("--"+boundary+"\r\n"), resp.Body)
	dec := mjpeg.NewDecoder(body, boundary)

	var (
		last  image.Image
		start = time.Now()
		prev  = start
		count int
	)
	for count < n {
		img, err := dec.Decode()
		if err != nil {
			if ctx.Err() != nil || count > 0 {
				logger.Warn("Probe", "Stopped after %d frames: %v", count, err)
				break
			}
			return nil, fmt.Errorf("decode: %w", err)
		}
		now := time.Now()
		count++
		b := img.Bounds()
		logger.Debug("Probe", "Frame %d: %dx%d in %dms", count, b.Dx(), b.Dy(), now.Sub(prev).Milliseconds())
		prev = now
		last = img
	}

	elapsed := time.Since(start)
	if count > 0 && elapsed > 0 {
		b := last.Bounds()
		logger.Info("Probe", "%d frames (%dx%d) in %v: %.1ffps",
			count, b.Dx(), b.Dy(), elapsed.Round(time.Millisecond), float64(count)/elapsed.Seconds())
	}
	return last, nil
}

func printStatus(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var status map[string]json.Number
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&status); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	logger.Info("Probe", "Position %s, %s (framesize=%s quality=%s)",
		status["latitude"], status["longitude"], status["framesize"], status["quality"])
	return nil
}

func writeJPEG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
