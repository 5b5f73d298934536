// Copyright (C) 2026 Medicare Health (dev@medicare-health.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the chat service.
//
// Metrics are exposed via the /metrics endpoint. All metric operations are
// thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "medicare"
	chatSubsystem    = "chat"
)

var (
	// MessagesAppended counts messages written to the store, by sender.
	MessagesAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: chatSubsystem,
		Name:      "messages_appended_total",
		Help:      "Messages appended to session logs by sender",
	}, []string{"sender"})

	// SummaryUpsertFailures counts non-fatal session summary write
	// failures (the message append itself succeeded).
	SummaryUpsertFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: chatSubsystem,
		Name:      "summary_upsert_failures_total",
		Help:      "Session summary upserts that failed after a successful message append",
	})

	// ActiveSubscriptions tracks live session message subscriptions.
	ActiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: chatSubsystem,
		Name:      "active_subscriptions",
		Help:      "Currently registered session message subscriptions",
	})

	// AIAttempts counts calls to the AI backend by outcome
	// (ok, rate_limited, http_error, network_error, empty).
	AIAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: chatSubsystem,
		Name:      "ai_attempts_total",
		Help:      "AI backend attempts by outcome",
	}, []string{"outcome"})

	// AIDegraded counts turns answered with a fallback apology instead
	// of a real AI answer.
	AIDegraded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: chatSubsystem,
		Name:      "ai_degraded_total",
		Help:      "Turns that resolved to a fallback apology",
	})

	// TurnDuration observes the wall-clock time of a full send turn
	// (user append, AI call with retries, ai append).
	TurnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: chatSubsystem,
		Name:      "turn_duration_seconds",
		Help:      "Full chat turn duration",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})
)
