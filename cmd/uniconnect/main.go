package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hitoshi/uniconnect/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		if msg := app.ErrorMessage(err); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		stop()
		os.Exit(1)
	}
}
