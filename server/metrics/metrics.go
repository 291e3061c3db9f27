// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

// Package metrics exposes Prometheus instrumentation for the payment
// middleware.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the middleware's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	SettlementsTotal       *prometheus.CounterVec
	SettlementFailures     prometheus.Counter
	WebhookDeliveriesTotal *prometheus.CounterVec
	TasksTotal             *prometheus.CounterVec
}

// New creates and registers the middleware collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		SettlementsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_settlements_total",
			Help: "Credit settlements attempted, by redemption method and outcome.",
		}, []string{"method", "outcome"}),
		SettlementFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payments_settlement_failures_total",
			Help: "Settlement attempts that failed and were swallowed.",
		}),
		WebhookDeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_webhook_deliveries_total",
			Help: "Webhook delivery attempts, by outcome.",
		}, []string{"outcome"}),
		TasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_tasks_total",
			Help: "Tasks reaching a terminal state, by state.",
		}, []string{"state"}),
	}

	registry.MustRegister(
		m.SettlementsTotal,
		m.SettlementFailures,
		m.WebhookDeliveriesTotal,
		m.TasksTotal,
	)
	return m
}

// Handler returns the HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
