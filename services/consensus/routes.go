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
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/AleutianConsensus/services/consensus/telemetry"
)

// SetupRoutes registers all consensus service routes on the router.
func SetupRoutes(router *gin.Engine, store *RunStore, defaults SamplerDefaults,
	metrics *telemetry.Metrics) {

	if metrics != nil {
		router.Use(countRequests(metrics))
	}

	router.GET("/health", HealthCheck)
	router.GET("/metrics", func(c *gin.Context) {
		h := telemetry.MetricsHandler()
		if h == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "metrics exporter not enabled"})
			return
		}
		h.ServeHTTP(c.Writer, c.Request)
	})

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/fit", HandleFit(store, defaults, metrics))
		v1.POST("/score", HandleScore(store, metrics))
		runs := v1.Group("/runs")
		{
			runs.GET("", ListRuns(store))
			runs.DELETE("/:runId", DeleteRun(store))
		}
	}
}

// countRequests increments the request counter per route.
func countRequests(metrics *telemetry.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestsTotal.Add(c.Request.Context(), 1,
			metric.WithAttributes(
				attribute.String("route", route),
				attribute.String("method", c.Request.Method),
				attribute.Int("status", c.Writer.Status()),
			))
	}
}
