// Package main is the moviestar terminal client: sign in, browse the
// catalog incrementally and check watchlist status.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd(&cli{}).ExecuteContext(ctx)
	cancel()
	if err != nil {
		os.Exit(1)
	}
}
