package service

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// RunFunc runs the agent until ctx is cancelled.
type RunFunc func(ctx context.Context) error

func runForeground(logger *zap.Logger, run RunFunc) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			logger.Info("Received signal, shutting down")
		case <-done:
		}
	}()
	return run(ctx)
}
