package client

import (
	"context"
	"fmt"

	"github.com/danmuck/mrcplink/internal/protocol/event"
)

// EventHandler receives one server event.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev event.Inbound) error
}

type EventHandlerFunc func(ctx context.Context, ev event.Inbound) error

func (f EventHandlerFunc) HandleEvent(ctx context.Context, ev event.Inbound) error {
	return f(ctx, ev)
}

// ResponseHandler receives server responses (code/message/data replies).
type ResponseHandler interface {
	HandleResponse(ctx context.Context, resp event.Response) error
}

type ResponseHandlerFunc func(ctx context.Context, resp event.Response) error

func (f ResponseHandlerFunc) HandleResponse(ctx context.Context, resp event.Response) error {
	return f(ctx, resp)
}

// PanicError reports a handler panic recovered at the dispatch boundary.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("client: handler panic: %v", e.Value)
}

// On registers h for name, replacing any earlier handler. A nil h removes
// the registration.
func (c *Client) On(name string, h EventHandler) *Client {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	if h == nil {
		delete(c.handlers, name)
		return c
	}
	c.handlers[name] = h
	return c
}

func (c *Client) OnFunc(name string, fn func(ctx context.Context, ev event.Inbound) error) *Client {
	if fn == nil {
		return c.On(name, nil)
	}
	return c.On(name, EventHandlerFunc(fn))
}

// OnResponse sets the single response handler.
func (c *Client) OnResponse(h ResponseHandler) *Client {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.response = h
	return c
}

func (c *Client) OnResponseFunc(fn func(ctx context.Context, resp event.Response) error) *Client {
	if fn == nil {
		return c.OnResponse(nil)
	}
	return c.OnResponse(ResponseHandlerFunc(fn))
}

func (c *Client) eventHandler(name string) (EventHandler, bool) {
	c.handlersMu.RLock()
	defer c.handlersMu.RUnlock()
	h, ok := c.handlers[name]
	return h, ok
}

func (c *Client) responseHandler() ResponseHandler {
	c.handlersMu.RLock()
	defer c.handlersMu.RUnlock()
	return c.response
}
