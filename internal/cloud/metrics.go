// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records dispatch outcomes. A nil *Metrics records nothing.
type Metrics struct {
	dispatches *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics registers the dispatch metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nova_dispatch_total",
			Help: "Number of provider dispatches by route and outcome.",
		}, []string{"route", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nova_dispatch_duration_seconds",
			Help:    "Provider dispatch latency by route.",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"route"}),
	}
}

// observe records one dispatch. outcome is "ok" or the error kind.
func (m *Metrics) observe(route Route, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
	}
	m.dispatches.WithLabelValues(route.String(), outcome).Inc()
	if route != RouteNone {
		m.duration.WithLabelValues(route.String()).Observe(elapsed.Seconds())
	}
}
