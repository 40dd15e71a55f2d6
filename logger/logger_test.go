package logger

import (
	"bytes"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevels(t *testing.T) {
	buf := &bytes.Buffer{}
	SetOutput(buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel("info")
	})

	SetLevel("warn")
	Infof("hidden %d", 1)
	Warnf("shown %d", 2)

	assert.NotContains(t, buf.String(), "hidden 1")
	assert.Contains(t, buf.String(), "shown 2")

	buf.Reset()
	SetLevel("debug")
	For("adblock").Debug("rules loaded", "url", 3)

	assert.Contains(t, buf.String(), "rules loaded")
	assert.Contains(t, buf.String(), "adblock")
}

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		in   string
		want slog.Level
	}{{
		in:   "debug",
		want: slog.LevelDebug,
	}, {
		in:   "WARNING",
		want: slog.LevelWarn,
	}, {
		in:   "fatal",
		want: slog.LevelError,
	}, {
		in:   "bogus",
		want: slog.LevelInfo,
	}}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseLevel(tc.in))
		})
	}
}

func TestSetFormat(t *testing.T) {
	t.Cleanup(func() { require.NoError(t, SetFormat("text")) })

	require.NoError(t, SetFormat("json"))
	assert.Error(t, SetFormat("yaml"))
}
