// Command companion is a terminal client for the learning-companion API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := execute(ctx, newRootCmd(newCLI(os.Stdin, os.Stdout, os.Stderr)), os.Stderr)
	stop()
	if err != nil {
		os.Exit(1) //nolint:forbidigo // CLI must signal command failure to shell scripts
	}
}
