// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability holds the service's Prometheus metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts the request outcomes operators care about. Persistence
// failures get their own counter because they are invisible to callers by
// design and would otherwise go unnoticed.
type Metrics struct {
	GenerationsTotal    prometheus.Counter
	GenerationsFailed   prometheus.Counter
	QuotaRejections     prometheus.Counter
	PersistenceFailures prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		GenerationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "reactor_generations_total",
			Help: "Generation requests that produced at least one result.",
		}),
		GenerationsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "reactor_generations_failed_total",
			Help: "Generation requests that produced no results or aborted.",
		}),
		QuotaRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "reactor_quota_rejections_total",
			Help: "Requests rejected by the quota gate.",
		}),
		PersistenceFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "reactor_persistence_failures_total",
			Help: "Generation record writes that failed after the response was computed.",
		}),
	}
}
