package commands

import (
	"testing"

	"github.com/mantra-hq/mantra/internal/logger"
)

func TestRunServeInvalidFlag(t *testing.T) {
	err := RunServe([]string{"--invalid-flag"})
	if err == nil {
		t.Error("expected error for invalid flag")
	}
}

func TestLogLevelFromString(t *testing.T) {
	tests := []struct {
		in   string
		want logger.Level
	}{
		{"debug", logger.LevelDebug},
		{"off", logger.LevelOff},
		{"info", logger.LevelInfo},
		{"", logger.LevelInfo},
		{"garbage", logger.LevelInfo},
	}

	for _, tt := range tests {
		if got := logLevelFromString(tt.in); got != tt.want {
			t.Errorf("logLevelFromString(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// Note: a full serve lifecycle test would require binding a real listener
// and racing it against a cancellable context, which belongs with the
// gateway package's own tests rather than here. This file covers flag
// parsing and the logLevelFromString mapping; the command itself hands the
// configured level string to logger.Init, which maps it on its own.
