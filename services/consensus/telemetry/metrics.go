// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics contains pre-defined metrics for the consensus service.
//
// Description:
//
//	Provides counters and histograms for chain runs, sweeps, scoring, and
//	HTTP requests. All metrics use the "consensus_" prefix for consistent
//	naming.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// --- Chain Metrics ---

	// ChainRunsTotal counts completed Gibbs chain runs.
	ChainRunsTotal metric.Int64Counter

	// ChainDuration records full chain duration in seconds.
	ChainDuration metric.Float64Histogram

	// SweepsTotal counts completed Gibbs sweeps across all runs.
	SweepsTotal metric.Int64Counter

	// SweepDuration records single-sweep duration in seconds.
	SweepDuration metric.Float64Histogram

	// --- Scoring Metrics ---

	// ScoresTotal counts held-out log-likelihood evaluations.
	ScoresTotal metric.Int64Counter

	// --- HTTP Metrics ---

	// HTTPRequestsTotal counts total HTTP requests.
	HTTPRequestsTotal metric.Int64Counter

	// --- Error Metrics ---

	// ErrorsTotal counts errors by component.
	ErrorsTotal metric.Int64Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
//
// Returns an error if any metric registration fails.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.ChainRunsTotal, err = meter.Int64Counter(
		"consensus_chain_runs_total",
		metric.WithDescription("Completed Gibbs chain runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create chain_runs_total: %w", err)
	}

	m.ChainDuration, err = meter.Float64Histogram(
		"consensus_chain_duration_seconds",
		metric.WithDescription("Full chain duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300),
	)
	if err != nil {
		return nil, fmt.Errorf("create chain_duration: %w", err)
	}

	m.SweepsTotal, err = meter.Int64Counter(
		"consensus_sweeps_total",
		metric.WithDescription("Completed Gibbs sweeps"),
		metric.WithUnit("{sweep}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create sweeps_total: %w", err)
	}

	m.SweepDuration, err = meter.Float64Histogram(
		"consensus_sweep_duration_seconds",
		metric.WithDescription("Single sweep duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1),
	)
	if err != nil {
		return nil, fmt.Errorf("create sweep_duration: %w", err)
	}

	m.ScoresTotal, err = meter.Int64Counter(
		"consensus_scores_total",
		metric.WithDescription("Held-out log-likelihood evaluations"),
		metric.WithUnit("{evaluation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create scores_total: %w", err)
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"consensus_http_requests_total",
		metric.WithDescription("Total HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_requests_total: %w", err)
	}

	m.ErrorsTotal, err = meter.Int64Counter(
		"consensus_errors_total",
		metric.WithDescription("Total errors by component"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create errors_total: %w", err)
	}

	return m, nil
}
