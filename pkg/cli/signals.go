package cli

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// SetupSignalHandler returns a context that is cancelled on SIGINT or SIGTERM.
// A second signal exits the process immediately. The returned function
// releases the handler and must be called.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	stop := make(chan struct{})
	var once sync.Once

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-stop:
			return
		}
		select {
		case <-sigChan:
			os.Exit(ExitFailure)
		case <-stop:
		}
	}()

	return ctx, func() {
		once.Do(func() {
			signal.Stop(sigChan)
			close(stop)
		})
		cancel()
	}
}

// WaitForShutdown returns a channel that receives SIGINT and SIGTERM.
func WaitForShutdown() <-chan os.Signal {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	return sigChan
}
