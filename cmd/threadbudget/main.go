// Package main provides the threadbudget CLI.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := Execute(ctx)
	stop()

	if err != nil {
		var exitErr *childExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		printError("%v", err)
		os.Exit(1)
	}
}
