// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine implements collapsed Gibbs sampling for combining noisy
// binary classifiers without ground truth.
//
// # Description
//
// Given the boolean outputs of several independent classifiers ("functions")
// over one or more datasets ("domains"), the engine jointly infers:
//
//   - a per-domain label prior,
//   - a latent consensus label for every data item,
//   - a partition of the functions into behavior clusters, drawn from a
//     Dirichlet Process (Chinese Restaurant Process) prior, and
//   - a 2x2 confusion matrix per cluster describing how the functions in
//     that cluster err relative to the latent label.
//
// The chain alternates four steps per sweep: label priors (Beta posterior),
// confusion matrices (Beta posterior per row), cluster assignments
// (collapsed categorical over active clusters plus one open slot, sampled
// in log space), and consensus labels (two-outcome categorical). Burn-in
// sweeps are discarded; retained samples are thinned and aggregated into
// posterior means and variances.
//
// # Basic Usage
//
//	s, err := engine.New(outputs, engine.Options{
//	    BurnIn:   500,
//	    Thinning: 4,
//	    Samples:  200,
//	    Alpha:    1.0,
//	    Seed:     42,
//	})
//	if err != nil {
//	    return err
//	}
//	post, err := s.Run(ctx)
//	if err != nil {
//	    return err
//	}
//	consensus := post.LabelMean(0, 17) // P(label=1) for domain 0, item 17
//
// # Modeling Notes
//
// Clustering is per-domain: a function may sit in different clusters in
// different domains, and cluster identities do not carry over between a
// function's appearances across domains. This mirrors how the model sizes
// one CRP per domain and is a known modeling limitation.
//
// The consensus-label step multiplies per-function likelihood factors
// directly rather than in log space. With very many functions or extremely
// skewed confusion matrices the products can underflow; this is a
// documented limitation, not an error path.
//
// # Thread Safety
//
// A Sampler is not safe for concurrent use. Run parallelizes internally
// across domains; callers must not share a Sampler between goroutines.
package engine
