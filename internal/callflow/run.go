package callflow

import (
	"context"
	"time"

	"github.com/danmuck/mrcplink/internal/client"
)

// DisconnectTimeout bounds the Disconnect issued by Run after the leg ends.
const DisconnectTimeout = 2 * time.Second

// Run connects c with init, blocks until ctx is cancelled or the connection
// ends, then disconnects. Cancelling ctx is an orderly hangup and returns
// nil; a lost connection returns the client's error.
func Run(ctx context.Context, c *client.Client, init any) error {
	if err := c.Connect(ctx, init); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-c.Done():
	}

	dctx, cancel := context.WithTimeout(context.Background(), DisconnectTimeout)
	defer cancel()
	if err := c.Disconnect(dctx); err != nil {
		return err
	}
	return c.Err()
}
