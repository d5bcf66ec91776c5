// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package consensus

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/AleutianConsensus/services/consensus/engine"
	"github.com/AleutianAI/AleutianConsensus/services/consensus/telemetry"
)

var serviceTracer = otel.Tracer("consensus.service")

// SamplerDefaults supplies sampling options for fit requests that leave
// them unset.
type SamplerDefaults struct {
	BurnIn   int
	Thinning int
	Samples  int
	Alpha    float64
	Workers  int
}

// HealthCheck reports service liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleFit runs a Gibbs chain over the posted outputs and retains the
// fitted sampler for later scoring.
//
// # Description
//
// Validates the request, applies server defaults for unset sampling
// options, runs the chain synchronously under the request context, and
// returns per-domain posterior summaries together with a fresh run id.
//
// # Limitations
//
//   - The chain runs on the request goroutine; long chains hold the
//     connection open until done or the client disconnects.
func HandleFit(store *RunStore, defaults SamplerDefaults, metrics *telemetry.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := serviceTracer.Start(c.Request.Context(), "HandleFit")
		defer span.End()

		var req FitRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to parse fit request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		opts := engine.Options{
			BurnIn:   req.BurnIn,
			Thinning: req.Thinning,
			Samples:  req.Samples,
			Alpha:    req.Alpha,
			Seed:     req.Seed,
			Workers:  req.Workers,
			Metrics:  metrics,
		}
		if opts.BurnIn == 0 {
			opts.BurnIn = defaults.BurnIn
		}
		if opts.Thinning == 0 {
			opts.Thinning = defaults.Thinning
		}
		if opts.Samples == 0 {
			opts.Samples = defaults.Samples
		}
		if opts.Alpha == 0 {
			opts.Alpha = defaults.Alpha
		}
		if opts.Workers == 0 {
			opts.Workers = defaults.Workers
		}

		sampler, err := engine.New(req.Outputs, opts)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Rejected fit request", "error", err)
			recordError(ctx, metrics, "fit")
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		runID := uuid.NewString()
		span.SetAttributes(
			attribute.String("run.id", runID),
			attribute.Int("run.domains", sampler.NumDomains()),
			attribute.Int("run.functions", sampler.NumFunctions()),
		)

		post, err := sampler.Run(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Gibbs chain failed", "run_id", runID, "error", err)
			recordError(ctx, metrics, "fit")
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		store.Put(runID, sampler)
		slog.Info("Fit run completed",
			"run_id", runID,
			"domains", sampler.NumDomains(),
			"functions", sampler.NumFunctions(),
			"samples", opts.Samples)

		resp := FitResponse{
			RunID:        runID,
			NumDomains:   sampler.NumDomains(),
			NumFunctions: sampler.NumFunctions(),
			Samples:      opts.Samples,
			Domains:      Summarize(sampler, post),
		}
		c.JSON(http.StatusOK, resp)
	}
}

// HandleScore evaluates held-out outputs under a retained fit run.
func HandleScore(store *RunStore, metrics *telemetry.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := serviceTracer.Start(c.Request.Context(), "HandleScore")
		defer span.End()

		var req ScoreRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to parse score request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		span.SetAttributes(attribute.String("run.id", req.RunID))

		sampler, ok := store.Get(req.RunID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown run id"})
			return
		}

		ll, err := sampler.LogLikelihood(ctx, req.Outputs)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Score evaluation failed", "run_id", req.RunID, "error", err)
			recordError(ctx, metrics, "score")
			status := http.StatusInternalServerError
			if errors.Is(err, engine.ErrDomainCountMismatch) ||
				errors.Is(err, engine.ErrFunctionCountMismatch) ||
				errors.Is(err, engine.ErrRaggedMatrix) {
				status = http.StatusBadRequest
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		if metrics != nil {
			metrics.ScoresTotal.Add(ctx, 1)
		}
		c.JSON(http.StatusOK, ScoreResponse{RunID: req.RunID, LogLikelihood: ll})
	}
}

// ListRuns returns summaries of all retained fit runs, newest first.
func ListRuns(store *RunStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, ListRunsResponse{Runs: store.List()})
	}
}

// DeleteRun drops a retained fit run.
func DeleteRun(store *RunStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		runID := c.Param("runId")
		if _, err := uuid.Parse(runID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}
		if !store.Delete(runID) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown run id"})
			return
		}
		slog.Info("Deleted fit run", "run_id", runID)
		c.JSON(http.StatusOK, gin.H{"deleted": runID})
	}
}

// Summarize flattens a posterior into per-domain summaries, in the domain
// order of the fit data.
func Summarize(s *engine.Sampler, post *engine.Posterior) []DomainPosterior {
	out := make([]DomainPosterior, s.NumDomains())
	for p := range out {
		instances := s.NumInstances(p)
		dp := DomainPosterior{
			Domain:             p,
			LabelPriorMean:     post.PriorMean(p),
			LabelPriorVariance: post.PriorVariance(p),
			LabelMeans:         make([]float64, instances),
			LabelVariances:     make([]float64, instances),
			ErrorRateMeans:     make([]float64, s.NumFunctions()),
			ErrorRateVariances: make([]float64, s.NumFunctions()),
		}
		for i := 0; i < instances; i++ {
			dp.LabelMeans[i] = post.LabelMean(p, i)
			dp.LabelVariances[i] = post.LabelVariance(p, i)
		}
		for j := 0; j < s.NumFunctions(); j++ {
			dp.ErrorRateMeans[j] = post.ErrorRateMean(p, j)
			dp.ErrorRateVariances[j] = post.ErrorRateVariance(p, j)
		}
		out[p] = dp
	}
	return out
}

func recordError(ctx context.Context, metrics *telemetry.Metrics, component string) {
	if metrics == nil {
		return
	}
	metrics.ErrorsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("component", component)))
}
