package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, parseLevel(" DEBUG "))
	require.Equal(t, slog.LevelWarn, parseLevel("warn"))
	require.Equal(t, slog.LevelError, parseLevel("error"))
	require.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestJSONFormatCarriesService(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter("api", &buf, "info", "json").Info("hello", slog.Int("n", 1))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "api", line["service"])
	require.Equal(t, "hello", line["msg"])
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("worker", &buf, "warn", "text")
	log.Info("quiet")
	require.Zero(t, buf.Len())
	log.Warn("loud")
	require.Contains(t, buf.String(), "service=worker")
}

func TestPrettyFormatWrites(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter("ctl", &buf, "", "pretty").Info("refresh completed")
	require.Contains(t, buf.String(), "refresh completed")
}
