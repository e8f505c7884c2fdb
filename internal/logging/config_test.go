package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		"DEBUG":   zerolog.DebugLevel,
		" info ":  zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
	}
	for raw, want := range cases {
		got, ok := parseLevel(raw)
		if !ok || got != want {
			t.Fatalf("parseLevel(%q)=%v,%v want %v", raw, got, ok, want)
		}
	}
	if _, ok := parseLevel("loud"); ok {
		t.Fatalf("unknown level should not parse")
	}
	if _, ok := parseLevel(""); ok {
		t.Fatalf("empty level should not parse")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvLogTimestamp, "false")
	t.Setenv(EnvLogNoColor, "true")
	t.Setenv(EnvLogBypass, "nope")

	cfg := defaultConfig(ProfileRuntime)
	applyEnvOverrides(&cfg)
	if cfg.Level != zerolog.WarnLevel {
		t.Fatalf("unexpected level=%v", cfg.Level)
	}
	if cfg.Timestamp {
		t.Fatalf("expected timestamp disabled")
	}
	if !cfg.NoColor {
		t.Fatalf("expected no color")
	}
	if cfg.Bypass {
		t.Fatalf("invalid bool must not enable bypass")
	}
}

func TestApplyWritesConsoleOutput(t *testing.T) {
	prevLogger := log.Logger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	var buf bytes.Buffer
	Apply(Config{Level: zerolog.InfoLevel, NoColor: true, Out: &buf})
	log.Debug().Msg("hidden")
	log.Info().Str("session_id", "leg-a").Msg("connected")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line should be filtered: %q", out)
	}
	if !strings.Contains(out, "connected") || !strings.Contains(out, "session_id=leg-a") {
		t.Fatalf("unexpected output: %q", out)
	}
}
