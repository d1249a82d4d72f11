// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jeranaias/nova/internal/model"
	"github.com/jeranaias/nova/internal/util"
)

// DefaultRequestTimeout bounds a single dispatch.
const DefaultRequestTimeout = 120 * time.Second

// =============================================================================
// DISPATCHER
// =============================================================================

// Dispatcher resolves the route for each dispatch and performs exactly one
// request. It never retries.
type Dispatcher struct {
	httpClient  *http.Client
	hostedKey   string
	hostedModel string
	factory     GeneratorFactory
	siteURL     string
	siteName    string
	log         logrus.FieldLogger
	metrics     *Metrics
	timeout     atomic.Int64

	genMu sync.Mutex
	gen   Generator
}

// NewDispatcher creates a dispatcher with no hosted fallback key.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{
		httpClient:  &http.Client{},
		hostedModel: DefaultHostedModel,
		siteURL:     DefaultSiteURL,
		siteName:    DefaultSiteName,
		log:         logrus.StandardLogger(),
	}
	d.factory = GenAIFactory(nil, "")
	d.timeout.Store(int64(DefaultRequestTimeout))
	return d
}

// WithHTTPClient sets the client used for the user-configured route.
func (d *Dispatcher) WithHTTPClient(hc *http.Client) *Dispatcher {
	if hc != nil {
		d.httpClient = hc
	}
	return d
}

// WithHostedKey sets the operator key enabling the hosted fallback route.
func (d *Dispatcher) WithHostedKey(key string) *Dispatcher {
	d.hostedKey = strings.TrimSpace(key)
	return d
}

// WithHostedModel overrides the hosted model identifier.
func (d *Dispatcher) WithHostedModel(name string) *Dispatcher {
	if name != "" {
		d.hostedModel = name
	}
	return d
}

// WithGeneratorFactory replaces how the hosted Generator is built.
func (d *Dispatcher) WithGeneratorFactory(f GeneratorFactory) *Dispatcher {
	if f != nil {
		d.factory = f
	}
	return d
}

// WithSite sets the attribution headers sent on the user-configured route.
func (d *Dispatcher) WithSite(siteURL, siteName string) *Dispatcher {
	if siteURL != "" {
		d.siteURL = siteURL
	}
	if siteName != "" {
		d.siteName = siteName
	}
	return d
}

// WithLogger sets the logger.
func (d *Dispatcher) WithLogger(log logrus.FieldLogger) *Dispatcher {
	if log != nil {
		d.log = log
	}
	return d
}

// WithMetrics enables Prometheus metrics.
func (d *Dispatcher) WithMetrics(m *Metrics) *Dispatcher {
	d.metrics = m
	return d
}

// WithTimeout sets the per-dispatch timeout.
func (d *Dispatcher) WithTimeout(timeout time.Duration) *Dispatcher {
	d.SetTimeout(timeout)
	return d
}

// SetTimeout changes the per-dispatch timeout; safe to call concurrently.
// Non-positive values restore DefaultRequestTimeout.
func (d *Dispatcher) SetTimeout(timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	d.timeout.Store(int64(timeout))
}

// Timeout returns the per-dispatch timeout.
func (d *Dispatcher) Timeout() time.Duration {
	return time.Duration(d.timeout.Load())
}

// HasHostedFallback reports whether an operator key is available.
func (d *Dispatcher) HasHostedFallback() bool {
	return d.hostedKey != ""
}

// RouteFor returns the route a dispatch with settings would take.
func (d *Dispatcher) RouteFor(settings model.AISettings) Route {
	switch {
	case settings.Configured():
		return RouteUserConfigured
	case d.HasHostedFallback():
		return RouteHostedFallback
	default:
		return RouteNone
	}
}

// Resolve returns the provider for settings. With no route available it
// fails with a configuration error and nothing is contacted.
func (d *Dispatcher) Resolve(ctx context.Context, settings model.AISettings) (Provider, Route, error) {
	route := d.RouteFor(settings)
	switch route {
	case RouteUserConfigured:
		client := NewCompatibleClient(settings).
			WithHTTPClient(d.httpClient).
			WithSite(d.siteURL, d.siteName).
			WithLogger(d.log)
		return client, route, nil
	case RouteHostedFallback:
		gen, err := d.generator(ctx)
		if err != nil {
			return nil, route, &Error{
				Kind:    KindProvider,
				Route:   route,
				Message: hostedErrorPrefix + err.Error(),
				Err:     err,
			}
		}
		return NewHostedClient(gen, d.hostedModel).WithLogger(d.log), route, nil
	default:
		return nil, RouteNone, configurationError()
	}
}

// Dispatch sends messages over the resolved route under the configured
// timeout and returns the reply text.
func (d *Dispatcher) Dispatch(ctx context.Context, settings model.AISettings, messages []model.OutboundMessage) (string, error) {
	start := time.Now()

	provider, route, err := d.Resolve(ctx, settings)
	if err != nil {
		d.metrics.observe(route, err, time.Since(start))
		d.log.WithField("route", route.String()).Warn(err.Error())
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, d.Timeout())
	defer cancel()

	reply, err := provider.Send(ctx, messages)
	elapsed := time.Since(start)
	d.metrics.observe(route, err, elapsed)

	fields := logrus.Fields{
		"route":    route.String(),
		"messages": len(messages),
		"duration": elapsed.Round(time.Millisecond),
	}
	if route == RouteUserConfigured {
		fields["key"] = util.KeyFingerprint(settings.APIKey)
	}
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			fields["kind"] = e.Kind.String()
			if e.Status != 0 {
				fields["status"] = e.Status
			}
		}
		d.log.WithFields(fields).Warn("Dispatch failed")
		return "", err
	}
	d.log.WithFields(fields).Debug("Dispatch complete")
	return reply, nil
}

// generator lazily builds and caches the hosted Generator.
func (d *Dispatcher) generator(ctx context.Context) (Generator, error) {
	d.genMu.Lock()
	defer d.genMu.Unlock()
	if d.gen != nil {
		return d.gen, nil
	}
	gen, err := d.factory(ctx, d.hostedKey)
	if err != nil {
		return nil, err
	}
	d.gen = gen
	return gen, nil
}
