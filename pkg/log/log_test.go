package log_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/log"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}

	for input, expected := range cases {
		assert.Equal(t, expected, log.ParseLevel(input), "level %q", input)
	}
}

func TestNew_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer

	logger := log.New(&buf, "warn")
	logger.Info("hidden")
	logger.Warn("shown", "run_id", "r1")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "run_id=r1")
}
