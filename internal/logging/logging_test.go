package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevels(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		enabled zerolog.Level
	}{
		{"default", Options{}, zerolog.InfoLevel},
		{"named", Options{Level: "WARN"}, zerolog.WarnLevel},
		{"unknown", Options{Level: "loud"}, zerolog.InfoLevel},
		{"verbose wins", Options{Level: "error", Verbose: true}, zerolog.DebugLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Console = &bytes.Buffer{}
			l, err := New(tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.enabled, l.GetLevel())
		})
	}
}

func TestJSONAndRunFile(t *testing.T) {
	var buf bytes.Buffer
	dir := t.TempDir()

	l, err := New(Options{Format: "json", Dir: dir, Console: &buf})
	require.NoError(t, err)
	l.Info().Str("file", "a.hl7").Msg("file sanitized")
	require.NoError(t, l.Close())

	var event map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, "file sanitized", event["message"])
	assert.Equal(t, "a.hl7", event["file"])

	require.NotEmpty(t, l.Path())
	data, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"file":"a.hl7"`)
}
