package session

import (
	"time"

	"github.com/danmuck/mrcplink/internal/protocol/frame"
)

// Config defines transport timeouts and buffer bounds for one session.
type Config struct {
	ConnectTimeout  time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	DisconnectGrace time.Duration
	ReadChunkSize   int
	MaxPayloadBytes uint32
}

// DefaultConfig returns the defaults used by the EasyMrcp telephony scripts.
// ReadTimeout bounds one chunk read so the receive loop re-checks its state.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:  5 * time.Second,
		ReadTimeout:     time.Second,
		WriteTimeout:    5 * time.Second,
		DisconnectGrace: 500 * time.Millisecond,
		ReadChunkSize:   frame.DefaultChunkSize,
		MaxPayloadBytes: frame.DefaultLimits().MaxPayloadBytes,
	}
}

// WithDefaults fills zero fields from DefaultConfig. A negative
// DisconnectGrace disables the grace wait.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.DisconnectGrace == 0 {
		c.DisconnectGrace = d.DisconnectGrace
	}
	if c.ReadChunkSize <= 0 {
		c.ReadChunkSize = d.ReadChunkSize
	}
	if c.MaxPayloadBytes == 0 {
		c.MaxPayloadBytes = d.MaxPayloadBytes
	}
	return c
}

// FrameLimits returns the reader limits derived from c.
func (c Config) FrameLimits() frame.Limits {
	return frame.Limits{MaxPayloadBytes: c.MaxPayloadBytes}
}
