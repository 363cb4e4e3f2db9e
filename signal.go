package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// shutdownSignal returns a channel that closes on the first SIGINT/SIGTERM
// and force-exits the process on the second. The daemon path uses this
// instead of a canceled context so the in-flight sync cycle keeps a live
// context through its REMOTE commit and LOCAL delete; the scheduler's stop
// fence bounds the wait.
func shutdownSignal(logger *slog.Logger) <-chan struct{} {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return watchShutdown(sigCh, logger, os.Exit)
}

// watchShutdown is the signal loop behind shutdownSignal, with the process
// exit injectable.
func watchShutdown(sigCh <-chan os.Signal, logger *slog.Logger, exit func(int)) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		sig := <-sigCh
		logger.Info("received signal, initiating graceful shutdown",
			slog.String("signal", sig.String()),
		)
		close(done)

		sig = <-sigCh
		logger.Warn("received second signal, forcing exit",
			slog.String("signal", sig.String()),
		)
		exit(1)
	}()

	return done
}

// shutdownContext returns a context that cancels on the first SIGINT/SIGTERM
// and force-exits on the second. Only the one-shot sync command uses this:
// there the user runs the cycle in the foreground and cancellation is the
// expected Ctrl-C behavior.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("received signal, initiating graceful shutdown",
				slog.String("signal", sig.String()),
			)
			cancel()
		case <-ctx.Done():
			return
		}

		// Wait for second signal — force exit.
		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing exit",
				slog.String("signal", sig.String()),
			)
			os.Exit(1)
		case <-parent.Done():
			return
		}
	}()

	return ctx
}
