package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// shutdownContext returns a context that is canceled on the first SIGINT or
// SIGTERM, letting in-flight items finish. A second signal calls forceExit.
// The returned stop function cancels the context and stops listening.
func shutdownContext(parent context.Context, logger *slog.Logger, forceExit func()) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)

	stopped := make(chan struct{})
	stop := sync.OnceFunc(func() {
		cancel()
		close(stopped)
	})

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("received signal, finishing in-flight items",
				slog.String("signal", sig.String()),
			)
			cancel()
		case <-ctx.Done():
			return
		}

		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing exit",
				slog.String("signal", sig.String()),
			)
			forceExit()
		case <-parent.Done():
		case <-stopped:
		}
	}()

	return ctx, stop
}
