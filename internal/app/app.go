// Package app provides the top-level application lifecycle management for the
// trading bot. It wires together all dependencies (stores, caches, cold
// storage, the signal pipeline, trade coordination, and notifications) and
// starts the appropriate goroutines based on the configured operating mode.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/quantpulse/pulsebot/internal/config"
	"github.com/quantpulse/pulsebot/internal/notify"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, selects the
// operating mode, starts the corresponding goroutines, and blocks until the
// context is cancelled. On return it runs all registered cleanup functions.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	mode := strings.ToLower(a.cfg.Mode)
	switch mode {
	case "signal":
		err = a.SignalMode(ctx, deps)
	case "paper":
		err = a.PaperMode(ctx, deps)
	case "live":
		err = a.LiveMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		// The run context is already dead at this point; give the alert its
		// own deadline so operators hear about the crash.
		alertCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if nerr := deps.Notifier.Notify(alertCtx, notify.EventError,
			"Bot stopped",
			fmt.Sprintf("mode %s exited: %v", mode, err),
		); nerr != nil {
			a.logger.Error("crash notification failed", slog.String("error", nerr.Error()))
		}
	}
	return err
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
