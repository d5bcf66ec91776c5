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
	"sort"
)

// evalSeedSalt derives the scoring random streams from the training seed
// without reusing the training streams.
const evalSeedSalt = 0x9e3779b97f4a7c15

// LogLikelihood scores a new output matrix against the fitted chain.
//
// # Description
//
// The held-out matrix must have the same domain and function counts as the
// training data; instance counts are arbitrary. Labels for the new
// instances are initialized by majority vote, then for each retained
// sample the label step is replayed once under that sample's prior,
// confusion matrices, and cluster assignment, and the closed-form joint
// log-likelihood is accumulated: label-prior Beta term, CRP partition term
// in multinomial-coefficient form, label Bernoulli term, confusion-matrix
// Beta-prior term, and the data term. The result is the average over the
// retained samples.
//
// The fitted chain state is not touched; scoring may be repeated with
// different matrices and is itself deterministic for a fixed Seed.
//
// # Outputs
//
//   - float64: averaged log-likelihood (less negative is a better fit).
//   - error: ErrNotRun before Run, or a construction-style validation error.
func (s *Sampler) LogLikelihood(ctx context.Context, outputs [][][]bool) (float64, error) {
	if s.post == nil {
		return 0, ErrNotRun
	}
	if len(outputs) != len(s.domains) {
		return 0, ErrDomainCountMismatch
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	// Convert and validate, then majority-vote warm start for the labels.
	// Only the label layer is reinitialized; the prior, confusion, and
	// cluster samples come from the fitted chain.
	data := make([][][]int, len(outputs))
	labels := make([][]int, len(outputs))
	rngs := make([]*rand.Rand, len(outputs))
	for p, domain := range outputs {
		data[p] = make([][]int, len(domain))
		labels[p] = make([]int, len(domain))
		rngs[p] = rand.New(rand.NewPCG(s.opts.Seed^evalSeedSalt, uint64(p)))
		for i, row := range domain {
			if len(row) != s.numFunctions {
				return 0, ErrFunctionCountMismatch
			}
			data[p][i] = make([]int, s.numFunctions)
			sum := 0
			for j, out := range row {
				if out {
					data[p][i][j] = 1
					sum++
				}
			}
			if sum >= s.numFunctions/2 {
				labels[p][i] = 1
			}
		}
	}

	total := 0.0
	for _, snap := range s.store.samples {
		for p := range data {
			resampleEvalLabels(&snap, p, data[p], labels[p], rngs[p])
			total += sampleLogLikelihood(&snap, p, data[p], labels[p], s.numFunctions)
		}
	}
	return total / float64(len(s.store.samples)), nil
}

// resampleEvalLabels replays the label-sampling step for one domain under
// one retained sample's parameters. No sufficient statistics exist on the
// evaluation side, so a flip is just a write.
func resampleEvalLabels(snap *sample, p int, data [][]int, labels []int, rng *rand.Rand) {
	prior := snap.priors[p]
	for i, row := range data {
		p0 := 1 - prior
		p1 := prior
		for j, out := range row {
			cm := snap.conf[p][snap.assign[p][j]]
			p0 *= cm[0][out]
			p1 *= cm[1][out]
		}
		labels[i] = 0
		if rng.Float64() < p1/(p0+p1) {
			labels[i] = 1
		}
	}
}

// sampleLogLikelihood accumulates the closed-form joint log-likelihood of
// one domain under one retained sample.
func sampleLogLikelihood(snap *sample, p int, data [][]int, labels []int, numFunctions int) float64 {
	prior := snap.priors[p]
	ll := (labelPriorAlpha-1)*math.Log(prior) + (labelPriorBeta-1)*math.Log(1-prior)

	// CRP partition term, multinomial-coefficient form.
	sizes := make(map[int]int)
	for _, id := range snap.assign[p] {
		sizes[id]++
	}
	logFunctions := math.Log(float64(numFunctions))
	for _, id := range snap.assign[p] {
		ll += math.Log(float64(sizes[id])) - logFunctions
	}

	// Label Bernoulli term.
	for _, label := range labels {
		if label == 1 {
			ll += math.Log(prior)
		} else {
			ll += math.Log(1 - prior)
		}
	}

	// Confusion-matrix Beta-prior term, one block per occupied cluster.
	// Iterate ids in sorted order: map order must not perturb the float
	// accumulation between identical runs.
	ids := make([]int, 0, len(sizes))
	for id := range sizes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		cm := snap.conf[p][id]
		for t := 0; t < 2; t++ {
			for o := 0; o < 2; o++ {
				ll += confusionPrior[t][o] * math.Log(cm[t][o])
			}
		}
	}

	// Data term.
	for i, row := range data {
		for j, out := range row {
			cm := snap.conf[p][snap.assign[p][j]]
			ll += math.Log(cm[labels[i]][out])
		}
	}
	return ll
}
