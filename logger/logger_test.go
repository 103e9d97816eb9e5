package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}
	for _, tc := range testCases {
		if got := parseLevel(tc.in); got != tc.want {
			t.Errorf("parseLevel(%q) = %v want %v", tc.in, got, tc.want)
		}
	}
}

func TestNew(t *testing.T) {
	for _, format := range []string{"console", "json"} {
		l, err := New("debug", format)
		if err != nil {
			t.Fatalf("New(debug, %s) unexpected error: %v", format, err)
		}
		if !l.Desugar().Core().Enabled(zapcore.DebugLevel) {
			t.Errorf("New(debug, %s) does not log at debug level", format)
		}
	}
}
