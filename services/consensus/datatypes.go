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
	"time"

	"github.com/go-playground/validator/v10"
)

// requestValidate is the validator instance for consensus request types.
var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New()
}

// =============================================================================
// Request Types
// =============================================================================

// FitRequest carries observed classifier outputs and sampling options for a
// fit run.
//
// # Description
//
// Outputs is indexed as [domain][instance][function]. Every instance row in
// every domain must have the same number of function outputs. Sampling
// options left at zero take the server defaults from the service Config.
//
// Uses go-playground/validator:
//
//	req := FitRequest{Outputs: outputs, Samples: 200}
//	if err := req.Validate(); err != nil { ... }
type FitRequest struct {
	Outputs  [][][]bool `json:"outputs" validate:"required,min=1,dive,min=1"`
	BurnIn   int        `json:"burn_in" validate:"gte=0"`
	Thinning int        `json:"thinning" validate:"gte=0"`
	Samples  int        `json:"samples" validate:"gte=0"`
	Alpha    float64    `json:"alpha" validate:"gte=0"`
	Seed     uint64     `json:"seed"`
	Workers  int        `json:"workers" validate:"gte=0"`
}

// Validate checks the request against its validation tags.
func (r *FitRequest) Validate() error {
	return requestValidate.Struct(r)
}

// ScoreRequest asks for the held-out log likelihood of new outputs under a
// previously fitted run.
//
// Outputs must cover the same domains and functions as the fit data, in the
// same order. Instance counts may differ per domain.
type ScoreRequest struct {
	RunID   string     `json:"run_id" validate:"required,uuid4"`
	Outputs [][][]bool `json:"outputs" validate:"required,min=1,dive,min=1"`
}

// Validate checks the request against its validation tags.
func (r *ScoreRequest) Validate() error {
	return requestValidate.Struct(r)
}

// =============================================================================
// Response Types
// =============================================================================

// DomainPosterior summarizes the posterior for one domain.
//
// Slices are indexed by instance (label fields) or by function (error rate
// fields), matching the order of the fit request.
type DomainPosterior struct {
	Domain             int       `json:"domain" yaml:"domain"`
	Source             string    `json:"source,omitempty" yaml:"source,omitempty"`
	LabelPriorMean     float64   `json:"label_prior_mean" yaml:"label_prior_mean"`
	LabelPriorVariance float64   `json:"label_prior_variance" yaml:"label_prior_variance"`
	LabelMeans         []float64 `json:"label_means" yaml:"label_means"`
	LabelVariances     []float64 `json:"label_variances" yaml:"label_variances"`
	ErrorRateMeans     []float64 `json:"error_rate_means" yaml:"error_rate_means"`
	ErrorRateVariances []float64 `json:"error_rate_variances" yaml:"error_rate_variances"`
}

// FitResponse reports the posterior summaries for a completed fit run.
type FitResponse struct {
	RunID        string            `json:"run_id" yaml:"run_id"`
	NumDomains   int               `json:"num_domains" yaml:"num_domains"`
	NumFunctions int               `json:"num_functions" yaml:"num_functions"`
	Samples      int               `json:"samples" yaml:"samples"`
	Domains      []DomainPosterior `json:"domains" yaml:"domains"`
}

// ScoreResponse reports the averaged held-out log likelihood for a run.
type ScoreResponse struct {
	RunID         string  `json:"run_id" yaml:"run_id"`
	LogLikelihood float64 `json:"log_likelihood" yaml:"log_likelihood"`
}

// RunSummary describes a retained fit run.
type RunSummary struct {
	RunID        string    `json:"run_id" yaml:"run_id"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	NumDomains   int       `json:"num_domains" yaml:"num_domains"`
	NumFunctions int       `json:"num_functions" yaml:"num_functions"`
}

// ListRunsResponse lists the runs currently held in memory.
type ListRunsResponse struct {
	Runs []RunSummary `json:"runs" yaml:"runs"`
}
