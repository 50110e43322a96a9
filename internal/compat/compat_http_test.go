package compat

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"testing"
)

func TestCompatIndex(t *testing.T) {
	client := newCarClient(t)
	resp, body := client.get(t, "/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET / status = %d", resp.StatusCode)
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		t.Fatalf("GET / content-type = %q", resp.Header.Get("Content-Type"))
	}
	assertCORS(t, resp)
	html := string(body)
	mustContain := []string{
		"/stream",
		"atlas.min.js",
		"getsend('go')",
		"getsend('stop')",
		"getsend('/tongleautomode')",
		`id="latitude"`,
		`id="longitude"`,
	}
	for _, needle := range mustContain {
		if !strings.Contains(html, needle) {
			t.Fatalf("GET / missing %q", needle)
		}
	}
}

var sixDecimals = regexp.MustCompile(`"(latitude|longitude)":-?\d+\.\d{6}[,}]`)

func TestCompatStatus(t *testing.T) {
	client := newCarClient(t)
	resp, body := client.get(t, "/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /status status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "application/json" {
		t.Fatalf("GET /status content-type = %q", got)
	}
	assertCORS(t, resp)
	assertStatusPayload(t, decodeJSONMap(t, body))
	if n := len(sixDecimals.FindAll(body, -1)); n != 2 {
		t.Fatalf("expected 6-decimal latitude and longitude, body=%s", body)
	}
}

func TestCompatControl(t *testing.T) {
	client := newCarClient(t)
	_, body := client.get(t, "/status")
	quality := int(requireNumber(t, decodeJSONMap(t, body)["quality"], "quality"))

	// Writing the current value back leaves the car unchanged.
	resp, body := client.get(t, fmt.Sprintf("/control?var=quality&val=%d", quality))
	if resp.StatusCode != http.StatusOK || len(body) != 0 {
		t.Fatalf("valid control: status=%d body=%q", resp.StatusCode, body)
	}

	resp, _ = client.get(t, "/control?var=bogus&val=1")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("unknown control status = %d", resp.StatusCode)
	}

	resp, _ = client.get(t, "/control")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("control without query status = %d", resp.StatusCode)
	}
}

func TestCompatStop(t *testing.T) {
	client := newCarClient(t)
	resp, body := client.get(t, "/stop")
	if resp.StatusCode != http.StatusOK || string(body) != "OK" {
		t.Fatalf("GET /stop: status=%d body=%q", resp.StatusCode, body)
	}
}

func TestCompatToggleAutoModeTwice(t *testing.T) {
	client := newCarClient(t)
	for i := 0; i < 2; i++ {
		resp, body := client.get(t, "/tongleautomode")
		if resp.StatusCode != http.StatusOK || string(body) != "OK" {
			t.Fatalf("toggle %d: status=%d body=%q", i, resp.StatusCode, body)
		}
	}
}

func TestCompatPreflight(t *testing.T) {
	client := newCarClient(t)
	req, err := http.NewRequest(http.MethodOptions, client.baseURL+"/control", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := client.client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("OPTIONS status = %d", resp.StatusCode)
	}
	assertCORS(t, resp)
	if got := resp.Header.Get("Access-Control-Allow-Methods"); !strings.Contains(got, "OPTIONS") {
		t.Fatalf("Access-Control-Allow-Methods = %q", got)
	}
}
