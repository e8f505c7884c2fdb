package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/mrcplink/internal/observability"
	"github.com/danmuck/mrcplink/internal/protocol/event"
	"github.com/danmuck/mrcplink/internal/protocol/frame"
	"github.com/danmuck/mrcplink/internal/protocol/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrAddressRequired   = errors.New("client: server address required")
	ErrSessionIDRequired = errors.New("client: session id required")
	ErrAlreadyConnected  = errors.New("client: already connected")
	ErrClosed            = errors.New("client: closed")
	ErrNotConnected      = errors.New("client: not connected")
	ErrConnectFailed     = errors.New("client: connect failed")
	ErrSendFailed        = errors.New("client: send failed")
	ErrConnectionLost    = errors.New("client: connection lost")
)

type Config struct {
	// Address is the EasyMrcp server host:port.
	Address string
	// SessionID correlates traffic to one call leg; sent as the envelope id.
	SessionID string
	Session   session.Config
	// Metrics defaults to observability.DefaultMetrics.
	Metrics *observability.Metrics
}

// Client is one EasyMrcp connection for one call leg.
type Client struct {
	cfg     Config
	logger  zerolog.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer

	mu          sync.Mutex
	state       State
	conn        net.Conn
	cancel      context.CancelFunc
	loopStarted bool
	err         error
	done        chan struct{}
	doneOnce    sync.Once

	writeMu sync.Mutex

	handlersMu sync.RWMutex
	handlers   map[string]EventHandler
	response   ResponseHandler
}

func New(cfg Config) (*Client, error) {
	cfg.Address = strings.TrimSpace(cfg.Address)
	cfg.SessionID = strings.TrimSpace(cfg.SessionID)
	if cfg.Address == "" {
		return nil, ErrAddressRequired
	}
	if cfg.SessionID == "" {
		return nil, ErrSessionIDRequired
	}
	cfg.Session = cfg.Session.WithDefaults()
	if cfg.Metrics == nil {
		cfg.Metrics = observability.DefaultMetrics()
	}
	return &Client{
		cfg: cfg,
		logger: log.With().
			Str("component", "client").
			Str("session_id", cfg.SessionID).
			Str("addr", cfg.Address).
			Logger(),
		metrics:  cfg.Metrics,
		tracer:   observability.Tracer(),
		state:    StateIdle,
		done:     make(chan struct{}),
		handlers: make(map[string]EventHandler),
	}, nil
}

func (c *Client) SessionID() string {
	return c.cfg.SessionID
}

func (c *Client) Address() string {
	return c.cfg.Address
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed when the receive loop has exited, or on Close when the
// client never connected.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns a wrapped ErrConnectionLost when the peer or transport ended
// the session while it was still connected. It is nil after an orderly close.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Connect dials the server, starts the receive loop and sends ClientConnect
// carrying initData. On dial failure the client stays Idle.
func (c *Client) Connect(ctx context.Context, initData any) error {
	c.mu.Lock()
	switch c.state {
	case StateIdle:
	case StateClosed:
		c.mu.Unlock()
		return ErrClosed
	default:
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.state = StateConnecting
	c.mu.Unlock()

	dialer := net.Dialer{Timeout: c.cfg.Session.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Address)
	if err != nil {
		c.mu.Lock()
		if c.state == StateConnecting {
			c.state = StateIdle
		}
		c.mu.Unlock()
		c.logger.Error().Err(err).Msg("connect to EasyMrcp server failed")
		return fmt.Errorf("%w: %s: %w", ErrConnectFailed, c.cfg.Address, err)
	}

	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	reader := frame.NewReader(conn,
		frame.WithChunkSize(c.cfg.Session.ReadChunkSize),
		frame.WithLimits(c.cfg.Session.FrameLimits()),
		frame.WithObserver(c.frameObserver()),
	)
	c.conn = conn
	c.cancel = cancel
	c.loopStarted = true
	c.state = StateConnected
	c.mu.Unlock()

	c.metrics.ConnectionOpened()
	c.logger.Info().Str("local", conn.LocalAddr().String()).Msg("connected to EasyMrcp server")
	go c.receiveLoop(loopCtx, conn, reader)

	if err := c.SendEvent(ctx, event.ClientConnect, initData); err != nil {
		_ = c.Close()
		return err
	}
	return nil
}

// SendEvent writes one event. It fails with ErrNotConnected outside the
// Connected and Disconnecting states; it never panics.
func (c *Client) SendEvent(ctx context.Context, name string, data any) error {
	ev, err := event.New(c.cfg.SessionID, name, data)
	if err != nil {
		return err
	}
	payload, err := ev.Marshal()
	if err != nil {
		return err
	}

	c.mu.Lock()
	state, conn := c.state, c.conn
	c.mu.Unlock()
	if !state.CanSend() || conn == nil {
		c.logger.Error().Str("event", name).Str("state", state.String()).Msg("send while not connected")
		return fmt.Errorf("%w: state=%s event=%s", ErrNotConnected, state, name)
	}

	_, span := c.tracer.Start(ctx, "mrcp.send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("mrcp.session_id", c.cfg.SessionID),
			attribute.String("mrcp.event", name),
			attribute.Int("mrcp.payload_bytes", len(payload)),
		),
	)
	defer span.End()

	c.writeMu.Lock()
	err = c.setWriteDeadline(ctx, conn)
	if err == nil {
		err = frame.WriteFrame(conn, payload)
	}
	c.writeMu.Unlock()
	if err != nil {
		c.metrics.RecordSendError(name)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error().Err(err).Str("event", name).Msg("send event failed")
		return fmt.Errorf("%w: %s: %w", ErrSendFailed, name, err)
	}
	c.metrics.RecordSent(name)
	c.logger.Info().Str("event", name).Msg("event sent")
	c.logger.Debug().RawJSON("payload", payload).Msg("event payload")
	return nil
}

func (c *Client) setWriteDeadline(ctx context.Context, conn net.Conn) error {
	deadline := time.Now().Add(c.cfg.Session.WriteTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	return conn.SetWriteDeadline(deadline)
}

// Disconnect sends ClientDisConnect, waits the grace period so the server
// observes it, then closes. Send failures are logged and swallowed. It is a
// no-op unless the client is Connected.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateDisconnecting
	c.mu.Unlock()

	c.logger.Info().Msg("sending disconnect request")
	if err := c.SendEvent(ctx, event.ClientDisConnect, nil); err != nil {
		c.logger.Warn().Err(err).Msg("disconnect event not delivered")
	}

	if grace := c.cfg.Session.DisconnectGrace; grace > 0 {
		timer := time.NewTimer(grace)
		select {
		case <-timer.C:
		case <-ctx.Done():
		case <-c.done:
		}
		timer.Stop()
	}

	err := c.Close()
	c.logger.Info().Msg("disconnected from EasyMrcp server")
	return err
}

// Close releases the transport and stops the receive loop. It is
// idempotent and never waits for the loop, so callbacks may call it.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	conn, cancel, started := c.conn, c.cancel, c.loopStarted
	c.conn = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if conn != nil {
		if cerr := conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
	}
	if !started {
		c.closeDone()
	}
	c.logger.Debug().Msg("client closed")
	return err
}

func (c *Client) closeDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

// connectionLost moves a live session to Closed after the transport ended
// underneath it.
func (c *Client) connectionLost(cause error) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	c.err = fmt.Errorf("%w: %w", ErrConnectionLost, cause)
	conn, cancel := c.conn, c.cancel
	c.conn = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	c.logger.Error().Err(cause).Msg("connection to EasyMrcp server lost")
}
