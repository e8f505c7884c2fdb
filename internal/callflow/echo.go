package callflow

import (
	"context"
	"strings"

	"github.com/danmuck/mrcplink/internal/client"
	"github.com/danmuck/mrcplink/internal/protocol/event"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultWelcomeText = "Hello, say something and I will repeat it."
	DefaultNoInputText = "Hello, can you still hear me?"
)

type EchoConfig struct {
	WelcomeText  string
	NoInputText  string
	DetectSpeech event.DetectSpeechParams
}

func DefaultEchoConfig() EchoConfig {
	return EchoConfig{
		WelcomeText:  DefaultWelcomeText,
		NoInputText:  DefaultNoInputText,
		DetectSpeech: event.DefaultDetectSpeechParams(),
	}
}

// Echo greets the caller, starts recognition and speaks every recognized
// utterance back.
type Echo struct {
	c      *client.Client
	cfg    EchoConfig
	logger zerolog.Logger
}

// NewEcho registers the echo handlers on c. Empty texts fall back to the
// defaults.
func NewEcho(c *client.Client, cfg EchoConfig) *Echo {
	if strings.TrimSpace(cfg.WelcomeText) == "" {
		cfg.WelcomeText = DefaultWelcomeText
	}
	if strings.TrimSpace(cfg.NoInputText) == "" {
		cfg.NoInputText = DefaultNoInputText
	}
	e := &Echo{
		c:   c,
		cfg: cfg,
		logger: log.With().
			Str("component", "callflow.echo").
			Str("session_id", c.SessionID()).
			Logger(),
	}
	c.OnFunc(event.ClientConnect, e.onConnect)
	c.OnFunc(event.RecognitionComplete, e.onRecognition)
	c.OnFunc(event.NoInputTimeout, e.onNoInput)
	c.OnFunc(event.SpeakComplete, e.onSpeakDone)
	c.OnFunc(event.SpeakInterrupted, e.onSpeakDone)
	return e
}

func (e *Echo) onConnect(ctx context.Context, _ event.Inbound) error {
	e.logger.Info().Msg("server leg ready, greeting caller")
	if err := e.c.SendEvent(ctx, event.Speak, e.cfg.WelcomeText); err != nil {
		return err
	}
	return e.c.SendEvent(ctx, event.DetectSpeech, e.cfg.DetectSpeech)
}

func (e *Echo) onRecognition(ctx context.Context, ev event.Inbound) error {
	text := ev.Data.String()
	e.logger.Info().Str("text", text).Msg("recognition complete")
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return e.c.SendEvent(ctx, event.Speak, text)
}

func (e *Echo) onNoInput(ctx context.Context, _ event.Inbound) error {
	e.logger.Info().Msg("no input before timeout")
	return e.c.SendEvent(ctx, event.Speak, e.cfg.NoInputText)
}

func (e *Echo) onSpeakDone(_ context.Context, ev event.Inbound) error {
	e.logger.Info().Str("event", ev.Name).Msg("prompt finished")
	return nil
}
