//go:build !windows

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-scanner/internal/control"
)

func notifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// watchPause toggles gate on every SIGUSR1 until ctx ends.
func watchPause(ctx context.Context, gate *control.Gate, logger *zap.Logger) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				if gate.Toggle() {
					logger.Info("scan paused; send SIGUSR1 again to resume")
				} else {
					logger.Info("scan resumed")
				}
			}
		}
	}()
}
