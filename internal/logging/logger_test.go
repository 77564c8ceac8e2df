package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestJSONFieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSONTo(&buf, LevelInfo).Component("fetch")

	log.Debug("hidden")
	log.Info("fetched page", "url", "https://example.test/boxes/BAL/BAL201606040.shtml", "bytes", 1024)
	log.Warn("retrying", "err", errors.New("status 429"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, "fetch", lines[0]["component"])
	assert.Equal(t, float64(1024), lines[0]["bytes"])
	assert.Equal(t, "status 429", lines[1]["err"])
}

func TestOddArgsAndJobContext(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSONTo(&buf, LevelDebug)

	log.InfoContext(WithJob(context.Background(), 42), "page done", "box_score_id")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "box_score_id")
	assert.Nil(t, lines[0]["box_score_id"])
	assert.Equal(t, float64(42), lines[0]["job_id"])
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{"debug": LevelDebug, "": LevelInfo, "WARN": LevelWarn, "error": LevelError} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNilLoggerFallsBackToDefault(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() { l.Info("nothing") })
	assert.NoError(t, l.Sync())
}
