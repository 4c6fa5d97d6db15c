/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telemetry provides Prometheus metrics and OpenTelemetry tracing.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// API metrics
var (
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skuld_api_requests_total",
		Help: "Total number of API requests",
	}, []string{"method", "endpoint", "status"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "skuld_api_request_duration_seconds",
		Help:    "API request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "skuld_api_active_connections",
		Help: "Number of in-flight API requests",
	})
)

// Planner metrics
var (
	PlanRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skuld_plan_runs_total",
		Help: "Total number of planning runs by outcome",
	}, []string{"outcome"})

	PlanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "skuld_plan_duration_seconds",
		Help:    "Time spent building one plan",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	TasksScheduledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skuld_tasks_scheduled_total",
		Help: "Total number of tasks placed into calendar slots",
	})

	TasksUnscheduledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skuld_tasks_unscheduled_total",
		Help: "Total number of tasks that could not be placed before their deadline",
	})
)

// Calendar metrics
var (
	FreeBusyFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skuld_freebusy_fetches_total",
		Help: "Calendar free/busy fetches by result (ok, degraded, cached)",
	}, []string{"result"})

	CalendarInsertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skuld_calendar_inserts_total",
		Help: "Calendar event insert attempts by result",
	}, []string{"result"})
)

// Breakdown metrics
var (
	BreakdownRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skuld_breakdown_requests_total",
		Help: "Goal decomposition requests by outcome",
	}, []string{"outcome"})

	BreakdownDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "skuld_breakdown_duration_seconds",
		Help:    "Time spent on one goal decomposition round trip",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})
)

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
