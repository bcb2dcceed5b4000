package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{level: "debug", want: slog.LevelDebug},
		{level: "DEBUG", want: slog.LevelDebug},
		{level: "warn", want: slog.LevelWarn},
		{level: "error", want: slog.LevelError},
		{level: "info", want: slog.LevelInfo},
		{level: "", want: slog.LevelInfo},
		{level: "verbose", want: slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.level))
		})
	}
}

func TestSetupWriter(t *testing.T) {
	var buf bytes.Buffer
	l := SetupWriter(&buf, "warn", "json")
	assert.Same(t, l, L())

	l.Info("ignored")
	l.Warn("query_out_of_scope", "lat", 52.1, "long", 5.2)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "query_out_of_scope", record["msg"])
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, 52.1, record["lat"])

	buf.Reset()
	SetupWriter(&buf, "", "text").Info("stitch_tile", "tile", "N47")
	assert.Contains(t, buf.String(), "msg=stitch_tile tile=N47")
}
