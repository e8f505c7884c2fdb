package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel     = "MRCPLINK_LOG_LEVEL"
	EnvLogTimestamp = "MRCPLINK_LOG_TIMESTAMP"
	EnvLogNoColor   = "MRCPLINK_LOG_NOCOLOR"
	EnvLogBypass    = "MRCPLINK_LOG_BYPASS"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Config is the resolved logger setup.
type Config struct {
	Level     zerolog.Level
	Timestamp bool
	NoColor   bool
	Bypass    bool
	Out       io.Writer
}

var configureOnce sync.Once

func ConfigureRuntime() {
	Configure(ProfileRuntime)
}

func ConfigureTests() {
	Configure(ProfileTest)
}

// Configure installs the global zerolog logger once per process.
func Configure(profile Profile) {
	configureOnce.Do(func() {
		cfg := defaultConfig(profile)
		applyEnvOverrides(&cfg)
		Apply(cfg)
	})
}

// SetLevel adjusts the global level after Configure, e.g. from a CLI flag.
func SetLevel(raw string) bool {
	lvl, ok := parseLevel(raw)
	if ok {
		zerolog.SetGlobalLevel(lvl)
	}
	return ok
}

// Apply installs cfg as the global logger.
func Apply(cfg Config) {
	if cfg.Bypass {
		zerolog.SetGlobalLevel(zerolog.Disabled)
		log.Logger = zerolog.Nop()
		return
	}
	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}
	writer := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    cfg.NoColor,
		TimeFormat: time.RFC3339,
	}
	if !cfg.Timestamp {
		writer.PartsExclude = []string{zerolog.TimestampFieldName}
	}
	zerolog.SetGlobalLevel(cfg.Level)
	ctx := zerolog.New(writer).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	log.Logger = ctx.Logger()
}

func defaultConfig(profile Profile) Config {
	cfg := Config{Out: os.Stderr}
	switch profile {
	case ProfileTest:
		cfg.Level = zerolog.DebugLevel
		cfg.Timestamp = false
	default:
		cfg.Level = zerolog.InfoLevel
		cfg.Timestamp = true
	}
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogBypass)); ok {
		cfg.Bypass = v
	}
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace", "diagnostics":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none", "inactive":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
