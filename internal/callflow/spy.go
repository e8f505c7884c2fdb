package callflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/mrcplink/internal/client"
	"github.com/danmuck/mrcplink/internal/protocol/event"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultPortTimeout = 10 * time.Second

var (
	ErrNoRTPPort   = errors.New("callflow: server returned no rtp port")
	ErrPortTimeout = errors.New("callflow: timed out waiting for rtp port")
)

type SpyConfig struct {
	DetectSpeech event.DetectSpeechParams
	// PortTimeout bounds WaitPort.
	PortTimeout time.Duration
	// OnText receives each recognized utterance. Optional.
	OnText func(text string)
}

func DefaultSpyConfig() SpyConfig {
	params := event.DefaultDetectSpeechParams()
	params.StartInputTimers = false
	return SpyConfig{
		DetectSpeech: params,
		PortTimeout:  DefaultPortTimeout,
	}
}

// Spy drives a monitoring leg: the server allocates an RTP port for pushed
// audio and reports recognition results without prompting the caller.
type Spy struct {
	c      *client.Client
	cfg    SpyConfig
	logger zerolog.Logger

	once  sync.Once
	ready chan struct{}
	port  int
	err   error
}

func NewSpy(c *client.Client, cfg SpyConfig) *Spy {
	if cfg.PortTimeout <= 0 {
		cfg.PortTimeout = DefaultPortTimeout
	}
	s := &Spy{
		c:   c,
		cfg: cfg,
		logger: log.With().
			Str("component", "callflow.spy").
			Str("session_id", c.SessionID()).
			Logger(),
		ready: make(chan struct{}),
	}
	c.OnFunc(event.ClientConnect, s.onConnect)
	c.OnFunc(event.RecognitionComplete, s.onRecognition)
	c.OnFunc(event.NoInputTimeout, s.onNoInput)
	return s
}

// ConnectParams is the init data that requests a spy session.
func (s *Spy) ConnectParams() event.ConnectParams {
	return event.ConnectParams{Type: event.ConnectTypeSpy}
}

// WaitPort blocks until the server reports the RTP port, ctx is done, or
// PortTimeout elapses.
func (s *Spy) WaitPort(ctx context.Context) (int, error) {
	select {
	case <-s.ready:
		return s.port, s.err
	default:
	}
	timer := time.NewTimer(s.cfg.PortTimeout)
	defer timer.Stop()
	select {
	case <-s.ready:
		return s.port, s.err
	case <-timer.C:
		return 0, ErrPortTimeout
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-s.c.Done():
		select {
		case <-s.ready:
			return s.port, s.err
		default:
		}
		return 0, fmt.Errorf("%w: connection ended", ErrNoRTPPort)
	}
}

func (s *Spy) publish(port int, err error) {
	s.once.Do(func() {
		s.port, s.err = port, err
		close(s.ready)
	})
}

func (s *Spy) onConnect(ctx context.Context, ev event.Inbound) error {
	var res event.ConnectResult
	if err := ev.Data.Decode(&res); err != nil {
		err = fmt.Errorf("%w: %w", ErrNoRTPPort, err)
		s.publish(0, err)
		return err
	}
	if res.RTPPort <= 0 {
		s.publish(0, ErrNoRTPPort)
		return ErrNoRTPPort
	}
	s.logger.Info().Int("rtp_port", res.RTPPort).Msg("server allocated rtp port")
	s.publish(res.RTPPort, nil)
	return s.c.SendEvent(ctx, event.DetectSpeech, s.cfg.DetectSpeech)
}

func (s *Spy) onRecognition(_ context.Context, ev event.Inbound) error {
	text := ev.Data.String()
	s.logger.Info().Str("text", text).Msg("recognition result")
	if s.cfg.OnText != nil {
		s.cfg.OnText(text)
	}
	return nil
}

func (s *Spy) onNoInput(_ context.Context, _ event.Inbound) error {
	s.logger.Info().Msg("no input before timeout")
	return nil
}
