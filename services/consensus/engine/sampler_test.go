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

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syntheticDomain builds an instances x functions output matrix where each
// function reports the true label flipped independently with the given
// error rate. Returns the matrix and the true labels.
func syntheticDomain(rng *rand.Rand, instances, functions int, errorRate float64) ([][]bool, []int) {
	outputs := make([][]bool, instances)
	truth := make([]int, instances)
	for i := range outputs {
		if rng.Float64() < 0.5 {
			truth[i] = 1
		}
		outputs[i] = make([]bool, functions)
		for j := range outputs[i] {
			out := truth[i]
			if rng.Float64() < errorRate {
				out = 1 - out
			}
			outputs[i][j] = out == 1
		}
	}
	return outputs, truth
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		outputs [][][]bool
		opts    Options
		wantErr error
	}{
		{
			name:    "no domains",
			outputs: nil,
			opts:    Options{Samples: 10},
			wantErr: ErrNoDomains,
		},
		{
			name:    "zero samples",
			outputs: [][][]bool{{{true}}},
			opts:    Options{},
			wantErr: ErrNoSamples,
		},
		{
			name:    "ragged rows",
			outputs: [][][]bool{{{true, false}, {true}}},
			opts:    Options{Samples: 10},
			wantErr: ErrRaggedMatrix,
		},
		{
			name: "function count mismatch",
			outputs: [][][]bool{
				{{true, false}},
				{{true, false, true}},
			},
			opts:    Options{Samples: 10},
			wantErr: ErrFunctionCountMismatch,
		},
		{
			name:    "all domains empty",
			outputs: [][][]bool{{}, {}},
			opts:    Options{Samples: 10},
			wantErr: ErrNoFunctions,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.outputs, tt.opts)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// recomputeAndCompare rebuilds every count from scratch from the latent
// state and compares against the incrementally maintained statistics.
func recomputeAndCompare(t *testing.T, d *domainState) {
	t.Helper()

	var labels [2]int
	cells := make(map[int]*cellCounts)
	for i, row := range d.outputs {
		labels[d.labels[i]]++
		for j, out := range row {
			c, ok := cells[d.assign[j]]
			if !ok {
				c = &cellCounts{}
				cells[d.assign[j]] = c
			}
			c[d.labels[i]][out]++
		}
	}

	require.Equal(t, labels, d.stats.labels, "label-prior counts diverged")
	require.Equal(t, len(cells), len(d.stats.cells), "populated cluster sets diverged")
	for id, want := range cells {
		require.Equal(t, *want, d.stats.cell(id), "confusion counts diverged for cluster %d", id)
	}
}

func TestCountsStayConsistentAcrossSweeps(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 0))
	outputs := make([][][]bool, 3)
	for p := range outputs {
		outputs[p], _ = syntheticDomain(rng, 40, 6, 0.2)
	}

	s, err := New(outputs, Options{Samples: 1, Alpha: 1, Seed: 11})
	require.NoError(t, err)

	for _, d := range s.domains {
		recomputeAndCompare(t, d)
	}
	for sweep := 0; sweep < 25; sweep++ {
		s.sweep(context.Background())
		for _, d := range s.domains {
			recomputeAndCompare(t, d)
		}
	}
}

func TestEveryFunctionInExactlyOneCluster(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 0))
	outputs := make([][][]bool, 2)
	for p := range outputs {
		outputs[p], _ = syntheticDomain(rng, 30, 8, 0.15)
	}

	s, err := New(outputs, Options{Samples: 1, Alpha: 2, Seed: 5})
	require.NoError(t, err)

	for sweep := 0; sweep < 20; sweep++ {
		s.sweep(context.Background())
		for _, d := range s.domains {
			total := 0
			for _, id := range d.crp.activeIDs() {
				require.Greater(t, d.crp.size(id), 0)
				total += d.crp.size(id)
			}
			require.Equal(t, len(d.assign), total, "memberships must sum to the function count")
			for _, id := range d.assign {
				require.Greater(t, d.crp.size(id), 0, "assigned cluster must be active")
			}
		}
	}
}

func TestDeterministicTrajectories(t *testing.T) {
	rng := rand.New(rand.NewPCG(19, 0))
	outputs := make([][][]bool, 2)
	for p := range outputs {
		outputs[p], _ = syntheticDomain(rng, 50, 5, 0.1)
	}

	run := func(workers int) *Posterior {
		s, err := New(outputs, Options{
			BurnIn:   50,
			Thinning: 1,
			Samples:  30,
			Alpha:    1,
			Seed:     42,
			Workers:  workers,
		})
		require.NoError(t, err)
		post, err := s.Run(context.Background())
		require.NoError(t, err)
		return post
	}

	a := run(1)
	b := run(1)
	// Domain-level parallelism must not change the trajectory either:
	// every domain owns an independent random stream.
	c := run(4)

	for p := 0; p < 2; p++ {
		assert.Equal(t, a.PriorMean(p), b.PriorMean(p))
		assert.Equal(t, a.PriorMean(p), c.PriorMean(p))
		assert.Equal(t, a.PriorVariance(p), c.PriorVariance(p))
		for i := 0; i < 50; i++ {
			assert.Equal(t, a.LabelMean(p, i), b.LabelMean(p, i))
			assert.Equal(t, a.LabelMean(p, i), c.LabelMean(p, i))
		}
		for j := 0; j < 5; j++ {
			assert.Equal(t, a.ErrorRateMean(p, j), b.ErrorRateMean(p, j))
			assert.Equal(t, a.ErrorRateMean(p, j), c.ErrorRateMean(p, j))
		}
	}
}

func TestSingleEverythingBoundary(t *testing.T) {
	s, err := New([][][]bool{{{true}}}, Options{
		BurnIn:  20,
		Samples: 10,
		Alpha:   1,
		Seed:    1,
	})
	require.NoError(t, err)

	post, err := s.Run(context.Background())
	require.NoError(t, err)

	mean := post.LabelMean(0, 0)
	assert.False(t, math.IsNaN(mean))
	assert.GreaterOrEqual(t, mean, 0.0)
	assert.LessOrEqual(t, mean, 1.0)
	assert.False(t, math.IsNaN(post.PriorMean(0)))
	assert.False(t, math.IsNaN(post.ErrorRateMean(0, 0)))
}

func TestConvergenceOnIndependentFunctions(t *testing.T) {
	rng := rand.New(rand.NewPCG(101, 0))
	outputs, _ := syntheticDomain(rng, 300, 10, 0.1)

	s, err := New([][][]bool{outputs}, Options{
		BurnIn:   200,
		Thinning: 1,
		Samples:  100,
		Alpha:    1,
		Seed:     23,
	})
	require.NoError(t, err)
	post, err := s.Run(context.Background())
	require.NoError(t, err)

	// On unambiguous instances the posterior label should agree with the
	// majority vote essentially always.
	unambiguous, agree := 0, 0
	for i, row := range outputs {
		votes := 0
		for _, out := range row {
			if out {
				votes++
			}
		}
		if votes < 3 || votes > 7 {
			unambiguous++
			majority := 0
			if votes > 5 {
				majority = 1
			}
			rounded := 0
			if post.LabelMean(0, i) > 0.5 {
				rounded = 1
			}
			if rounded == majority {
				agree++
			}
		}
	}
	require.Greater(t, unambiguous, 0)
	assert.Greater(t, float64(agree)/float64(unambiguous), 0.95)

	// Error-rate posteriors should sit near the generating rate.
	for j := 0; j < 10; j++ {
		assert.InDelta(t, 0.1, post.ErrorRateMean(0, j), 0.05,
			"function %d error rate", j)
	}
}

func TestIdenticalFunctionsCollapseToOneCluster(t *testing.T) {
	rng := rand.New(rand.NewPCG(55, 0))
	outputs := make([][][]bool, 3)
	for p := range outputs {
		single, _ := syntheticDomain(rng, 50, 1, 0.1)
		domain := make([][]bool, 50)
		for i := range domain {
			domain[i] = make([]bool, 5)
			for j := range domain[i] {
				domain[i][j] = single[i][0] // perfectly correlated functions
			}
		}
		outputs[p] = domain
	}

	s, err := New(outputs, Options{
		BurnIn:   150,
		Thinning: 1,
		Samples:  50,
		Alpha:    1,
		Seed:     9,
	})
	require.NoError(t, err)
	_, err = s.Run(context.Background())
	require.NoError(t, err)

	// Expected active-cluster count over the retained samples should be
	// close to one, not five.
	for p := 0; p < 3; p++ {
		total := 0.0
		for i := range s.store.samples {
			snap := &s.store.samples[i]
			distinct := make(map[int]struct{})
			for _, id := range snap.assign[p] {
				distinct[id] = struct{}{}
			}
			total += float64(len(distinct))
		}
		mean := total / float64(len(s.store.samples))
		assert.Less(t, mean, 2.0, "domain %d mean active clusters", p)
	}
}

func TestRunCancellation(t *testing.T) {
	rng := rand.New(rand.NewPCG(77, 0))
	outputs, _ := syntheticDomain(rng, 20, 4, 0.2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := New([][][]bool{outputs}, Options{BurnIn: 100, Samples: 10, Seed: 2})
	require.NoError(t, err)
	_, err = s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = s.Posterior()
	assert.ErrorIs(t, err, ErrNotRun)
}

func TestPosteriorBeforeRun(t *testing.T) {
	s, err := New([][][]bool{{{true, false}}}, Options{Samples: 5})
	require.NoError(t, err)
	_, err = s.Posterior()
	assert.ErrorIs(t, err, ErrNotRun)
}
