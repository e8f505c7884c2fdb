package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/danmuck/mrcplink/internal/client"
	"github.com/danmuck/mrcplink/internal/protocol/event"
	"github.com/spf13/cobra"
)

// inboundEvents are the server events printed while send waits.
var inboundEvents = []string{
	event.ClientConnect,
	event.RecognitionComplete,
	event.SpeakComplete,
	event.SpeakInterrupted,
	event.NoInputTimeout,
}

type printedMessage struct {
	ID      string     `json:"id,omitempty"`
	Event   string     `json:"event,omitempty"`
	Code    *int       `json:"code,omitempty"`
	Message string     `json:"message,omitempty"`
	Data    event.Data `json:"data"`
}

// messagePrinter writes inbound messages as indented JSON. It is called from
// the receive goroutine.
type messagePrinter struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *messagePrinter) print(m printedMessage) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err = fmt.Fprintln(p.out, string(b))
	return err
}

func (p *messagePrinter) attach(c *client.Client) {
	for _, name := range inboundEvents {
		c.OnFunc(name, func(_ context.Context, ev event.Inbound) error {
			return p.print(printedMessage{ID: ev.ID, Event: ev.Name, Data: ev.Data})
		})
	}
	c.OnResponseFunc(func(_ context.Context, resp event.Response) error {
		code := resp.Code
		return p.print(printedMessage{ID: resp.ID, Code: &code, Message: resp.Message, Data: resp.Data})
	})
}

func sendCmd(opts *options) *cobra.Command {
	var (
		initData string
		wait     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send <event> [data]",
		Short: "Connect, send one event and disconnect",
		Long: `Connect to the server, send ClientConnect with --init as its data, send
<event> with [data], print inbound messages for --wait, then disconnect.

Data is sent as given; pass JSON text for structured payloads:

  mrcpctl send DetectSpeech '{"StartInputTimers":true,"NoInputTimeout":60000}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data any
			if len(args) == 2 {
				data = args[1]
			}
			var init any
			if initData != "" {
				init = initData
			}
			return runSend(cmd.Context(), opts, cmd.OutOrStdout(), args[0], data, init, wait)
		},
	}
	cmd.Flags().StringVar(&initData, "init", "", "ClientConnect data, e.g. '{\"Type\":\"spy\"}'")
	cmd.Flags().DurationVarP(&wait, "wait", "w", 2*time.Second, "how long to print inbound messages before disconnecting")
	return cmd
}

func runSend(ctx context.Context, opts *options, out io.Writer, name string, data, init any, wait time.Duration) error {
	stopMetrics, err := opts.serveMetrics()
	if err != nil {
		return err
	}
	defer stopMetrics()

	c, err := opts.newClient()
	if err != nil {
		return err
	}
	defer c.Close()
	(&messagePrinter{out: out}).attach(c)

	if err := c.Connect(ctx, init); err != nil {
		return err
	}
	if err := c.SendEvent(ctx, name, data); err != nil {
		_ = c.Disconnect(context.Background())
		return err
	}

	if wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
		case <-c.Done():
		}
		timer.Stop()
	}
	if err := c.Disconnect(context.Background()); err != nil {
		return err
	}
	// Let an in-flight handler finish printing.
	select {
	case <-c.Done():
	case <-time.After(time.Second):
	}
	return c.Err()
}
