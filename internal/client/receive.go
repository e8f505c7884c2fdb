package client

import (
	"context"
	"errors"
	"io"
	"net"
	"runtime/debug"
	"time"

	"github.com/danmuck/mrcplink/internal/observability"
	"github.com/danmuck/mrcplink/internal/protocol/event"
	"github.com/danmuck/mrcplink/internal/protocol/frame"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxLoggedPayload = 256

func (c *Client) frameObserver() frame.Observer {
	return frame.Observer{
		Resync: func(discarded int, found bool) {
			c.metrics.RecordResync(discarded)
			c.logger.Warn().
				Int("discarded", discarded).
				Bool("magic_found", found).
				Msg("frame magic mismatch, resynchronizing")
		},
		Frame: func(int) {
			c.metrics.RecordFrame()
		},
	}
}

// receiveLoop owns reads on conn until ctx is cancelled or the transport
// ends. Read timeouts only re-check ctx.
func (c *Client) receiveLoop(ctx context.Context, conn net.Conn, r *frame.Reader) {
	var lost error
	defer func() {
		c.metrics.ConnectionClosed(lost != nil)
		c.closeDone()
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		if err := conn.SetReadDeadline(time.Now().Add(c.cfg.Session.ReadTimeout)); err != nil && ctx.Err() != nil {
			return
		}
		msgs, err := r.ReadMessages()
		for _, payload := range msgs {
			if ctx.Err() != nil {
				return
			}
			c.dispatch(ctx, payload)
		}
		if err == nil {
			continue
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if c.State() == StateDisconnecting {
			c.logger.Debug().Err(err).Msg("transport ended during disconnect")
			return
		}
		if errors.Is(err, io.EOF) {
			c.logger.Info().Msg("server closed the connection")
		}
		lost = err
		c.connectionLost(err)
		return
	}
}

func (c *Client) dispatch(ctx context.Context, payload string) {
	msg, err := event.Parse(payload)
	if err != nil {
		c.metrics.RecordDispatchError(observability.KindNonJSON)
		c.logger.Warn().Str("payload", truncate(payload)).Msg("non-JSON payload received")
		return
	}
	switch msg.Kind {
	case event.KindHeartbeat:
		c.logger.Debug().Msg("empty payload received")
	case event.KindEvent:
		c.dispatchEvent(ctx, msg.Event)
	case event.KindResponse:
		c.dispatchResponse(ctx, msg.Response)
	default:
		c.metrics.RecordDispatchError(observability.KindUnknownShape)
		c.logger.Warn().Str("payload", truncate(payload)).Msg("unrecognized message")
	}
}

func (c *Client) dispatchEvent(ctx context.Context, ev event.Inbound) {
	h, ok := c.eventHandler(ev.Name)
	c.metrics.RecordReceived(ev.Name, ok)
	if !ok {
		c.logger.Info().Str("event", ev.Name).Str("data", truncate(ev.Data.String())).Msg("unhandled event")
		return
	}

	ctx, span := c.tracer.Start(ctx, "mrcp.event",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("mrcp.session_id", c.cfg.SessionID),
			attribute.String("mrcp.event", ev.Name),
		),
	)
	defer span.End()

	if err := invoke(func() error { return h.HandleEvent(ctx, ev) }); err != nil {
		c.handlerFailed(span, err)
		c.logger.Error().Err(err).Str("event", ev.Name).Msg("event handler failed")
	}
}

func (c *Client) dispatchResponse(ctx context.Context, resp event.Response) {
	c.metrics.RecordResponse(resp.Code)
	h := c.responseHandler()
	if h == nil {
		c.logger.Debug().Int("code", resp.Code).Str("message", resp.Message).Msg("response received")
		return
	}

	ctx, span := c.tracer.Start(ctx, "mrcp.response",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("mrcp.session_id", c.cfg.SessionID),
			attribute.Int("mrcp.code", resp.Code),
		),
	)
	defer span.End()

	if err := invoke(func() error { return h.HandleResponse(ctx, resp) }); err != nil {
		c.handlerFailed(span, err)
		c.logger.Error().Err(err).Int("code", resp.Code).Msg("response handler failed")
	}
}

func (c *Client) handlerFailed(span trace.Span, err error) {
	kind := observability.KindHandlerError
	var perr *PanicError
	if errors.As(err, &perr) {
		kind = observability.KindHandlerPanic
		c.logger.Debug().Bytes("stack", perr.Stack).Msg("handler panic stack")
	}
	c.metrics.RecordDispatchError(kind)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// invoke runs fn, converting a panic into a *PanicError.
func invoke(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

func truncate(s string) string {
	if len(s) <= maxLoggedPayload {
		return s
	}
	return s[:maxLoggedPayload] + "..."
}
