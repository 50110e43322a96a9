package compat

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"testing"
	"time"
)

const (
	defaultBaseURL        = "http://localhost:8080"
	defaultStreamPort     = "8081"
	defaultRequestTimeout = 2 * time.Second
)

// carClient talks to a running car selected with CARCAM_BASE_URL. The
// stream listener defaults to the same host on port 8081 and can be
// overridden with CARCAM_STREAM_URL.
type carClient struct {
	baseURL   string
	streamURL string
	client    *http.Client
}

func newCarClient(t *testing.T) *carClient {
	t.Helper()
	baseURL := os.Getenv("CARCAM_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := &http.Client{Timeout: defaultRequestTimeout}

	if !isReachable(client, baseURL+"/status") {
		t.Skipf("car not reachable at %s (set CARCAM_BASE_URL to run)", baseURL)
	}

	streamURL := os.Getenv("CARCAM_STREAM_URL")
	if streamURL == "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			t.Fatalf("parse CARCAM_BASE_URL: %v", err)
		}
		u.Host = net.JoinHostPort(u.Hostname(), defaultStreamPort)
		u.Path = "/stream"
		streamURL = u.String()
	}

	return &carClient{
		baseURL:   baseURL,
		streamURL: streamURL,
		client:    client,
	}
}

func isReachable(client *http.Client, url string) bool {
	resp, err := client.Get(url)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 500
}

func (c *carClient) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := c.client.Get(c.baseURL + path)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	_ = resp.Body.Close()
	return resp, body
}

func decodeJSONMap(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode json: %v\nbody=%s", err, string(body))
	}
	return payload
}

func requireNumber(t *testing.T, value any, field string) float64 {
	t.Helper()
	num, ok := value.(float64)
	if !ok {
		t.Fatalf("expected %s to be number, got %T", field, value)
	}
	return num
}

var statusFields = []string{
	"framesize", "quality", "brightness", "contrast", "saturation",
	"special_effect", "wb_mode", "awb", "awb_gain", "aec", "aec2",
	"ae_level", "aec_value", "agc", "agc_gain", "gainceiling", "bpc",
	"wpc", "raw_gma", "lenc", "hmirror", "dcw", "colorbar",
	"latitude", "longitude",
}

func assertStatusPayload(t *testing.T, payload map[string]any) {
	t.Helper()
	if len(payload) != len(statusFields) {
		t.Fatalf("status has %d fields, want %d", len(payload), len(statusFields))
	}
	for _, field := range statusFields {
		requireNumber(t, payload[field], field)
	}
	if lat := requireNumber(t, payload["latitude"], "latitude"); lat < -90 || lat > 90 {
		t.Fatalf("latitude %v out of range", lat)
	}
	if lon := requireNumber(t, payload["longitude"], "longitude"); lon < -180 || lon > 180 {
		t.Fatalf("longitude %v out of range", lon)
	}
}

func assertCORS(t *testing.T, resp *http.Response) {
	t.Helper()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Access-Control-Allow-Origin = %q", got)
	}
}
