package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/mrcplink/internal/protocol/event"
	"github.com/danmuck/mrcplink/internal/protocol/session"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("config: invalid value")

// Config is the resolved mrcpctl configuration.
type Config struct {
	Address      string
	SessionID    string
	Session      session.Config
	MetricsAddr  string
	WelcomeText  string
	NoInputText  string
	DetectSpeech event.DetectSpeechParams
}

func Default() Config {
	return Config{
		Address:      "127.0.0.1:9090",
		Session:      session.DefaultConfig(),
		DetectSpeech: event.DefaultDetectSpeechParams(),
	}
}

type fileConfig struct {
	Address         string           `toml:"address" yaml:"address"`
	SessionID       string           `toml:"session_id" yaml:"session_id"`
	ConnectTimeout  string           `toml:"connect_timeout" yaml:"connect_timeout"`
	ReadTimeout     string           `toml:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    string           `toml:"write_timeout" yaml:"write_timeout"`
	DisconnectGrace string           `toml:"disconnect_grace" yaml:"disconnect_grace"`
	ReadChunkSize   int              `toml:"read_chunk_size" yaml:"read_chunk_size"`
	MaxPayloadBytes int64            `toml:"max_payload_bytes" yaml:"max_payload_bytes"`
	MetricsAddr     string           `toml:"metrics_addr" yaml:"metrics_addr"`
	WelcomeText     string           `toml:"welcome_text" yaml:"welcome_text"`
	NoInputText     string           `toml:"no_input_text" yaml:"no_input_text"`
	DetectSpeech    detectSpeechFile `toml:"detect_speech" yaml:"detect_speech"`
}

type detectSpeechFile struct {
	StartInputTimers      bool  `toml:"start_input_timers" yaml:"start_input_timers"`
	NoInputTimeoutMS      int64 `toml:"no_input_timeout_ms" yaml:"no_input_timeout_ms"`
	SpeechCompleteTimeout int64 `toml:"speech_complete_timeout_ms" yaml:"speech_complete_timeout_ms"`
	AutomaticInterruption bool  `toml:"automatic_interruption" yaml:"automatic_interruption"`
}

// definedFunc reports whether a key path was present in the file.
type definedFunc func(key ...string) bool

// Load reads a TOML file, or YAML when the extension is .yaml or .yml, and
// applies the keys it defines over Default.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}

	var raw fileConfig
	var defined definedFunc
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		defined, err = decodeYAML(data, &raw)
	default:
		defined, err = decodeTOML(data, &raw)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}

	cfg, err := apply(Default(), raw, defined)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func decodeTOML(data []byte, raw *fileConfig) (definedFunc, error) {
	meta, err := toml.Decode(string(data), raw)
	if err != nil {
		return nil, err
	}
	return meta.IsDefined, nil
}

func decodeYAML(data []byte, raw *fileConfig) (definedFunc, error) {
	if err := yaml.Unmarshal(data, raw); err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return func(key ...string) bool {
		var node any = tree
		for _, k := range key {
			m, ok := node.(map[string]any)
			if !ok {
				return false
			}
			if node, ok = m[k]; !ok {
				return false
			}
		}
		return true
	}, nil
}

func apply(cfg Config, raw fileConfig, defined definedFunc) (Config, error) {
	if defined("address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}
	if defined("session_id") {
		cfg.SessionID = strings.TrimSpace(raw.SessionID)
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, &cfg.Session.ConnectTimeout},
		{"read_timeout", raw.ReadTimeout, &cfg.Session.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.Session.WriteTimeout},
		{"disconnect_grace", raw.DisconnectGrace, &cfg.Session.DisconnectGrace},
	}
	for _, d := range durations {
		if !defined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if defined("read_chunk_size") {
		if raw.ReadChunkSize <= 0 {
			return Config{}, fmt.Errorf("%w: read_chunk_size=%d", ErrInvalid, raw.ReadChunkSize)
		}
		cfg.Session.ReadChunkSize = raw.ReadChunkSize
	}
	if defined("max_payload_bytes") {
		if raw.MaxPayloadBytes <= 0 || raw.MaxPayloadBytes > int64(^uint32(0)) {
			return Config{}, fmt.Errorf("%w: max_payload_bytes=%d", ErrInvalid, raw.MaxPayloadBytes)
		}
		cfg.Session.MaxPayloadBytes = uint32(raw.MaxPayloadBytes)
	}
	if defined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if defined("welcome_text") {
		cfg.WelcomeText = raw.WelcomeText
	}
	if defined("no_input_text") {
		cfg.NoInputText = raw.NoInputText
	}

	ds := raw.DetectSpeech
	if defined("detect_speech", "start_input_timers") {
		cfg.DetectSpeech.StartInputTimers = ds.StartInputTimers
	}
	if defined("detect_speech", "no_input_timeout_ms") {
		cfg.DetectSpeech.NoInputTimeout = ds.NoInputTimeoutMS
	}
	if defined("detect_speech", "speech_complete_timeout_ms") {
		cfg.DetectSpeech.SpeechCompleteTimeout = ds.SpeechCompleteTimeout
	}
	if defined("detect_speech", "automatic_interruption") {
		cfg.DetectSpeech.AutomaticInterruption = ds.AutomaticInterruption
	}
	if cfg.DetectSpeech.NoInputTimeout < 0 || cfg.DetectSpeech.SpeechCompleteTimeout < 0 {
		return Config{}, fmt.Errorf("%w: negative detect_speech timeout", ErrInvalid)
	}
	return cfg, nil
}
