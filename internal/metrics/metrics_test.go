package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGaugesFollowCounters(t *testing.T) {
	m := New()
	m.FramesSent.Add(3)
	m.StreamsActive.Add(1)
	m.UpdateFrameInterval(40*time.Millisecond, 33*time.Millisecond)
	m.SetAutoMode(true)

	var fixes uint64 = 7
	m.AddGaugeFunc("carcam_gps_fixes_total", "GPS fixes", func() float64 { return float64(fixes) })

	values, err := m.Gather()
	require.NoError(t, err)
	assert.Equal(t, 3.0, values["carcam_stream_frames_sent_total"])
	assert.Equal(t, 1.0, values["carcam_stream_active"])
	assert.Equal(t, 40.0, values["carcam_stream_frame_interval_ms"])
	assert.Equal(t, 33.0, values["carcam_stream_frame_interval_avg_ms"])
	assert.Equal(t, 1.0, values["carcam_auto_mode"])
	assert.Equal(t, 7.0, values["carcam_gps_fixes_total"])
}

func TestHandlerExposesText(t *testing.T) {
	m := New()
	m.DriveCommands.Add(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "carcam_drive_commands_total 2")
}
