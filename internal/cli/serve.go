// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jeranaias/nova/internal/config"
	"github.com/jeranaias/nova/internal/server"
)

type serveOptions struct {
	addr  string
	watch bool
}

func newServeCommand(g *globalOptions) *cobra.Command {
	o := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat session as a JSON API",
		Long: `Serve the chat session as a JSON API for the browser client.

The API shares chats and settings with the terminal commands. Prometheus
metrics are exposed at /metrics. With --watch, log and provider timeout
changes in the config file apply without a restart.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, g, o)
		},
	}
	cmd.Flags().StringVar(&o.addr, "addr", "", "listen address (default from config)")
	cmd.Flags().BoolVar(&o.watch, "watch", true, "reload the config file when it changes")
	return cmd
}

func runServe(cmd *cobra.Command, g *globalOptions, o *serveOptions) error {
	app, err := g.App(cmd)
	if err != nil {
		return err
	}
	cfg := app.Config

	addr := cfg.Server.Addr
	if o.addr != "" {
		addr = o.addr
	}
	srv := server.NewServer(addr, app.Session).
		WithVersion(Version).
		WithRoutes(app.Dispatcher).
		WithCORS(cfg.Server.CORSOrigins).
		WithRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst).
		WithGatherer(app.Registry).
		WithLogger(app.Log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if o.watch {
		if path := g.watchPath(); path != "" {
			if err := config.Watch(ctx, path, g.reloader(app, cfg)); err != nil {
				app.Log.WithError(err).Warn("Config reload disabled")
			}
		}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// watchPath is the config file to watch, or "" when its directory is
// missing.
func (o *globalOptions) watchPath() string {
	path, err := o.filePath()
	if err != nil {
		return ""
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		return ""
	}
	return path
}

// reloader applies the settings that can change on a running server:
// logging and the provider timeout. Anything else is logged as needing a
// restart.
func (o *globalOptions) reloader(app *App, running *config.Config) func(*config.Config, error) {
	return func(next *config.Config, err error) {
		if err != nil {
			app.Log.WithError(err).Warn("Ignoring invalid config change")
			return
		}
		if o.logLevel != "" {
			next.Log.Level = o.logLevel
		}
		if err := next.Log.Apply(app.Log); err != nil {
			app.Log.WithError(err).Warn("Ignoring invalid log settings")
		}
		app.Dispatcher.SetTimeout(next.Provider.RequestTimeout.Duration)

		if next.Server.Addr != running.Server.Addr ||
			next.Storage != running.Storage ||
			next.Server.RateLimit != running.Server.RateLimit ||
			next.Server.RateBurst != running.Server.RateBurst {
			app.Log.Warn("Server and storage changes take effect after a restart")
		}
		app.Log.WithFields(logrus.Fields{
			"level":   next.Log.Level,
			"timeout": next.Provider.RequestTimeout.Duration,
		}).Info("Config reloaded")
	}
}
