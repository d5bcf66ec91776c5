// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import "errors"

// Sentinel errors for the consensus engine.
//
// These cover construction-time validation only. Steady-state sampling has
// no recoverable error paths: once inputs are validated the sweep is pure
// arithmetic, and an inconsistency detected mid-chain (for example removing
// a member from an empty cluster) is a bug, reported by panic.
var (
	// ErrNoDomains indicates the input contained no domains.
	ErrNoDomains = errors.New("at least one domain is required")

	// ErrNoFunctions indicates a domain reported zero functions.
	ErrNoFunctions = errors.New("at least one function is required")

	// ErrRaggedMatrix indicates instance rows within a domain disagree on length.
	ErrRaggedMatrix = errors.New("ragged output matrix: rows differ in length")

	// ErrFunctionCountMismatch indicates domains disagree on the function count.
	ErrFunctionCountMismatch = errors.New("all domains must share the same function count")

	// ErrDomainCountMismatch indicates a scoring matrix with a different
	// number of domains than the fitted chain.
	ErrDomainCountMismatch = errors.New("scoring data must cover the same domains as training")

	// ErrNoSamples indicates a retained-sample count below one. Aggregation
	// divides by the sample count, so this must fail fast rather than
	// silently return NaN.
	ErrNoSamples = errors.New("number of retained samples must be at least 1")

	// ErrNotRun indicates a posterior accessor or scoring call before Run.
	ErrNotRun = errors.New("chain has not been run")
)
