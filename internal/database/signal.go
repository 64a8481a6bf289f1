package database

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// SetupSignalHandlerWithCallback creates a context that is canceled on SIGTERM or SIGINT,
// and calls the provided callback function when a signal is received.
//
// The callback runs before cancellation so that a shutdown request can be
// queued for the worker ahead of the context closing.
func SetupSignalHandlerWithCallback(callback func(os.Signal)) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			if callback != nil {
				callback(sig)
			}
			cancel()
		case <-ctx.Done():
			// Context was cancelled elsewhere
		}
	}()

	return ctx, cancel
}
