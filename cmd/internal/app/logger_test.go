package app

import (
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "unknown", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		got := parseLogLevel(tc.in)
		if got != tc.want {
			t.Fatalf("parseLogLevel(%q)=%v want=%v", tc.in, got, tc.want)
		}
	}
}

func TestNewLogger_Formats(t *testing.T) {
	var jsonOut, prettyOut strings.Builder

	newLoggerTo(&jsonOut, "info", "json", false).Info("server.start", "addr", ":8080")
	newLoggerTo(&prettyOut, "info", "pretty", false).Info("server.start", "addr", ":8080")

	if !strings.HasPrefix(jsonOut.String(), "{") || !strings.Contains(jsonOut.String(), `"msg":"server.start"`) {
		t.Fatalf("unexpected json output: %q", jsonOut.String())
	}
	if !strings.Contains(prettyOut.String(), "[INFO] server.start") || !strings.Contains(prettyOut.String(), "addr=:8080") {
		t.Fatalf("unexpected pretty output: %q", prettyOut.String())
	}
}

func TestNewLogger_LevelFilters(t *testing.T) {
	var out strings.Builder
	log := newLoggerTo(&out, "warn", "json", false)

	log.Info("dropped")
	log.Warn("kept")

	if strings.Contains(out.String(), "dropped") || !strings.Contains(out.String(), "kept") {
		t.Fatalf("level filter not applied: %q", out.String())
	}
}
