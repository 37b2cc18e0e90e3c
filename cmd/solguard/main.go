package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/xab-mack/solguard/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.BuildRoot().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
