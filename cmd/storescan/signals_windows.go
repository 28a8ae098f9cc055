package main

import (
	"context"
	"os"
	"os/signal"

	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-scanner/internal/control"
)

func notifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt)
}

// watchPause is unavailable without SIGUSR1.
func watchPause(context.Context, *control.Gate, *zap.Logger) {}
