package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_WritesFlatJSONLine(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf)

	logger.Info("server_start", map[string]any{"addr": ":3000"})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "server_start", entry["message"])
	assert.Equal(t, ":3000", entry["addr"])
	assert.NotEmpty(t, entry["timestamp"])
}

func TestLogger_Levels(t *testing.T) {
	cases := []struct {
		name  string
		log   func(*Logger)
		level string
	}{
		{"warn", func(l *Logger) { l.Warn("slow_query", nil) }, "warn"},
		{"error", func(l *Logger) { l.Error("db_down", map[string]any{"error": "refused"}) }, "error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			tc.log(NewLoggerWithWriter(&buf))

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, tc.level, entry["level"])
		})
	}
}
