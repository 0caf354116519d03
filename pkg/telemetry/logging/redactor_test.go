package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactor_RedactString(t *testing.T) {
	r, err := NewRedactor([]RedactPattern{
		{Name: "session", Pattern: `sess_[a-z0-9]+`, Replacement: "sess_***"},
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"api key", "rejected key pc_abcdefghijklmnop123", "rejected key pc_***"},
		{"short pc prefix untouched", "pc_short", "pc_short"},
		{"bearer token", "header Bearer abc.def-ghi", "header Bearer ***"},
		{"password assignment", "dsn password=hunter2 host=db", "dsn password: *** host=db"},
		{"custom pattern", "cookie sess_9f8e7d", "cookie sess_***"},
		{"plain text", "canary promoted", "canary promoted"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.RedactString(tt.in))
		})
	}
}

func TestNewRedactor_InvalidPattern(t *testing.T) {
	_, err := NewRedactor([]RedactPattern{{Name: "bad", Pattern: "(unclosed"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"bad"`)

	_, err = New(Config{RedactPatterns: []RedactPattern{{Name: "bad", Pattern: "["}}})
	require.Error(t, err)
}

func TestRedaction_ValuesAndErrors(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{
		Format: "json",
		Writer: &buf,
		RedactPatterns: []RedactPattern{
			{Name: "session", Pattern: `sess_[a-z0-9]+`, Replacement: "sess_***"},
		},
	})
	require.NoError(t, err)

	logger.Warn("request rejected",
		"detail", "presented pc_abcdefghijklmnop123",
		"error", errors.New("upstream said Bearer abc123"),
		"client_secret", "anything",
		"note", "sess_42",
		"release_id", "r1",
	)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "presented pc_***", entry["detail"])
	assert.Equal(t, "upstream said Bearer ***", entry["error"])
	assert.Equal(t, Redacted, entry["client_secret"])
	assert.Equal(t, "sess_***", entry["note"])
	assert.Equal(t, "r1", entry["release_id"])
}
