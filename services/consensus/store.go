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
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianConsensus/services/consensus/engine"
)

// fittedRun pairs a fitted sampler with its metadata.
type fittedRun struct {
	sampler   *engine.Sampler
	createdAt time.Time
}

// RunStore holds fitted samplers in memory so later score requests can
// reference them by run id.
//
// # Description
//
// Runs are retained until deleted or until the store exceeds maxRuns, at
// which point the oldest run is evicted. Retained samplers hold their full
// posterior sample set, so the store bounds memory by count rather than
// bytes.
//
// # Thread Safety
//
// Safe for concurrent use.
type RunStore struct {
	mu      sync.RWMutex
	runs    map[string]fittedRun
	maxRuns int
}

// NewRunStore creates a store retaining at most maxRuns fitted runs.
// A maxRuns of zero or less defaults to 16.
func NewRunStore(maxRuns int) *RunStore {
	if maxRuns <= 0 {
		maxRuns = 16
	}
	return &RunStore{
		runs:    make(map[string]fittedRun),
		maxRuns: maxRuns,
	}
}

// Put stores a fitted sampler under the given run id, evicting the oldest
// run if the store is full.
func (rs *RunStore) Put(runID string, s *engine.Sampler) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if len(rs.runs) >= rs.maxRuns {
		oldestID := ""
		var oldestAt time.Time
		for id, run := range rs.runs {
			if oldestID == "" || run.createdAt.Before(oldestAt) {
				oldestID = id
				oldestAt = run.createdAt
			}
		}
		delete(rs.runs, oldestID)
	}

	rs.runs[runID] = fittedRun{sampler: s, createdAt: time.Now().UTC()}
}

// Get returns the sampler for a run id, or false if the run is not held.
func (rs *RunStore) Get(runID string) (*engine.Sampler, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	run, ok := rs.runs[runID]
	return run.sampler, ok
}

// Delete removes a run. Returns false if the run was not held.
func (rs *RunStore) Delete(runID string) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if _, ok := rs.runs[runID]; !ok {
		return false
	}
	delete(rs.runs, runID)
	return true
}

// List returns summaries of all held runs, newest first.
func (rs *RunStore) List() []RunSummary {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	out := make([]RunSummary, 0, len(rs.runs))
	for id, run := range rs.runs {
		out = append(out, RunSummary{
			RunID:        id,
			CreatedAt:    run.createdAt,
			NumDomains:   run.sampler.NumDomains(),
			NumFunctions: run.sampler.NumFunctions(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of held runs.
func (rs *RunStore) Len() int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.runs)
}
