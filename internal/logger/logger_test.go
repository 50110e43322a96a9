package logger

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   DEBUG,
		"INFO":    INFO,
		"warning": WARN,
		"Error":   ERROR,
		"none":    SILENT,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(WARN, &buf, false)

	l.Info("GPS", "hidden")
	l.Warn("GPS", "shown %d", 1)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] [GPS] shown 1")
}

func TestSilentDropsEverything(t *testing.T) {
	var buf bytes.Buffer
	l := New(SILENT, &buf, false)
	l.Error("Main", "boom")
	assert.Empty(t, buf.String())
}

func TestModuleWriterSplitsLines(t *testing.T) {
	var buf bytes.Buffer
	l := New(DEBUG, &buf, false)
	w := l.Module("HTTP").Writer(INFO)

	_, err := fmt.Fprint(w, "GET /go 200\nGET /st")
	require.NoError(t, err)
	_, err = fmt.Fprint(w, "op 200\n")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "[INFO] [HTTP] GET /go 200")
	assert.Contains(t, lines[1], "[INFO] [HTTP] GET /stop 200")
}

func TestModulePrintlnLogsError(t *testing.T) {
	var buf bytes.Buffer
	l := New(DEBUG, &buf, false)
	l.Module("Recovery").Println("panic:", "nil map")
	assert.Contains(t, buf.String(), "[ERROR] [Recovery] panic: nil map")
}
