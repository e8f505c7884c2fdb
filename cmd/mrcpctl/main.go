package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "mrcpctl: %v\n", err)
		stop()
		os.Exit(1)
	}
}
