// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/jeranaias/nova/internal/cloud"
	"github.com/jeranaias/nova/internal/config"
	"github.com/jeranaias/nova/internal/conversation"
	"github.com/jeranaias/nova/internal/session"
	"github.com/jeranaias/nova/internal/settings"
	"github.com/jeranaias/nova/internal/storage"
)

// App holds everything a command needs once storage is open.
type App struct {
	Config     *config.Config
	Log        *logrus.Logger
	Registry   *prometheus.Registry
	Dispatcher *cloud.Dispatcher
	Session    *session.Session

	kv storage.KV
}

// NewApp opens storage, loads chats and settings, and builds the
// dispatcher described by cfg.
func NewApp(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*App, error) {
	kv, err := storage.Open(cfg.StorageOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	dispatcher := cloud.NewDispatcher().
		WithHostedKey(cloud.HostedKeyFromEnv()).
		WithHostedModel(cfg.Provider.HostedModel).
		WithSite(cfg.Provider.SiteURL, cfg.Provider.SiteName).
		WithTimeout(cfg.Provider.RequestTimeout.Duration).
		WithMetrics(cloud.NewMetrics(reg)).
		WithLogger(log)

	chats := conversation.Load(ctx, kv, log)
	prefs := settings.Load(ctx, kv, log)

	log.WithFields(logrus.Fields{
		"backend": cfg.StorageOptions().Backend,
		"chats":   chats.Len(),
		"hosted":  dispatcher.HasHostedFallback(),
	}).Debug("Session loaded")

	return &App{
		Config:     cfg,
		Log:        log,
		Registry:   reg,
		Dispatcher: dispatcher,
		Session:    session.New(chats, prefs, dispatcher).WithLogger(log),
		kv:         kv,
	}, nil
}

// Close releases storage.
func (a *App) Close() error {
	if a == nil || a.kv == nil {
		return nil
	}
	return a.kv.Close()
}
