// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package consensus exposes the Gibbs consensus engine over HTTP.
//
// This package wires the sampler in services/consensus/engine into a Gin
// service: fit runs chains over posted output matrices, score evaluates
// held-out data under retained runs, and runs are administered by id.
//
// # Usage
//
//	cfg := consensus.Config{Port: 12230}
//	svc, err := consensus.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package consensus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/AleutianConsensus/services/consensus/telemetry"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the consensus HTTP service.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and should
// only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds consensus service configuration options.
//
// All fields are optional with defaults applied by New().
type Config struct {
	// Port is the HTTP server port. Default: 12230
	Port int

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test"
	GinMode string

	// MaxRuns bounds the number of fitted runs retained in memory.
	// Default: 16
	MaxRuns int

	// Defaults supplies sampling options for fit requests that leave
	// them unset.
	Defaults SamplerDefaults

	// Telemetry configures tracing and metrics export.
	Telemetry telemetry.Config
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns; the run store guards its own state.
type service struct {
	config           Config
	router           *gin.Engine
	store            *RunStore
	metrics          *telemetry.Metrics
	telemetryCleanup func(context.Context) error
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a consensus Service with the given configuration.
//
// # Description
//
// New applies defaults, initializes tracing and metrics export, creates the
// run store, and registers all routes.
//
// # Outputs
//
//   - Service: Ready-to-run consensus service
//   - error: Non-nil if telemetry initialization fails
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	shutdown, err := telemetry.Init(context.Background(), s.config.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	s.telemetryCleanup = shutdown

	meter := otel.Meter("consensus.service")
	s.metrics, err = telemetry.NewMetrics(meter)
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	s.store = NewRunStore(s.config.MaxRuns)
	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting consensus server", "port", s.config.Port)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12230
	}
	if cfg.MaxRuns == 0 {
		cfg.MaxRuns = 16
	}
	if cfg.Defaults.Samples == 0 {
		cfg.Defaults.Samples = 200
	}
	if cfg.Defaults.BurnIn == 0 {
		cfg.Defaults.BurnIn = 500
	}
	if cfg.Defaults.Alpha == 0 {
		cfg.Defaults.Alpha = 1
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry = telemetry.DefaultConfig()
	}
	return cfg
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware(s.config.Telemetry.ServiceName))

	SetupRoutes(s.router, s.store, s.config.Defaults, s.metrics)
}

// cleanup releases telemetry resources held by the service.
func (s *service) cleanup() {
	if s.telemetryCleanup == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.telemetryCleanup(ctx); err != nil {
		slog.Error("failed to shutdown telemetry", "error", err)
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
