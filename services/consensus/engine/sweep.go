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

import "math"

// =============================================================================
// The four-step Gibbs sweep (one domain)
// =============================================================================

// sweep runs one full Gibbs sweep for this domain: label prior, confusion
// matrices, cluster assignments, consensus labels. Order matters: each step
// conditions on the state the previous step left behind.
func (d *domainState) sweep() {
	d.samplePrior()
	d.sampleConfusions()
	d.sampleAssignments()
	d.sampleLabels()
}

// samplePrior draws the label prior from its Beta posterior given the
// current label counts.
func (d *domainState) samplePrior() {
	d.prior = d.beta(
		labelPriorAlpha+float64(d.stats.labels[1]),
		labelPriorBeta+float64(d.stats.labels[0]),
	)
}

// sampleConfusions redraws the confusion matrix of every currently
// populated cluster from its per-row Beta posterior. Clusters nobody
// belongs to are not touched (lazy), and the second column of each row is
// the complement of the first, never sampled independently.
func (d *domainState) sampleConfusions() {
	for _, id := range d.crp.activeIDs() {
		d.sampleClusterConfusion(id)
	}
}

func (d *domainState) sampleClusterConfusion(id int) {
	counts := d.stats.cell(id)
	cm, ok := d.conf[id]
	if !ok {
		cm = &confusion{}
		d.conf[id] = cm
	}
	for t := 0; t < 2; t++ {
		cm[t][0] = d.beta(
			confusionPrior[t][0]+float64(counts[t][0]),
			confusionPrior[t][1]+float64(counts[t][1]),
		)
		cm[t][1] = 1 - cm[t][0]
	}
}

// sampleAssignments resamples every function's cluster membership.
//
// For each function the step removes the function's membership and its
// confusion-count contributions, scores every populated cluster plus one
// open slot with log(CRP weight) plus the collapsed likelihood of the
// counts currently attributed to that cluster, and draws from the
// resulting categorical by inverse CDF entirely in log space. The running
// cumulative log-sum-exp subtracts the maximum first so the exponentials
// cannot underflow even with many functions and clusters.
func (d *domainState) sampleAssignments() {
	for j := range d.assign {
		d.removeFunction(j)

		k := d.crp.candidateCount()
		cdf := make([]float64, k)
		max := math.Inf(-1)
		for c := 0; c < k; c++ {
			id := d.crp.clusterIDAt(c)
			lw := math.Log(d.crp.weight(id))
			counts := d.stats.cell(id)
			if cm, ok := d.conf[id]; ok {
				for t := 0; t < 2; t++ {
					for o := 0; o < 2; o++ {
						if counts[t][o] != 0 {
							lw += float64(counts[t][o]) * math.Log(cm[t][o])
						}
					}
				}
			}
			cdf[c] = lw
			if lw > max {
				max = lw
			}
		}
		cdf[0] -= max
		for c := 1; c < k; c++ {
			cdf[c] -= max
			cdf[c] = math.Log(math.Exp(cdf[c-1]) + math.Exp(cdf[c]))
		}

		target := math.Log(d.rng.Float64()) + cdf[k-1]
		chosen := d.crp.clusterIDAt(k - 1)
		for c := 0; c < k-1; c++ {
			if cdf[c] > target {
				chosen = d.crp.clusterIDAt(c)
				break
			}
		}
		d.insertFunction(j, chosen)
	}
}

// removeFunction subtracts function j's confusion-count contributions and
// drops its cluster membership. The cluster's sampled matrix is discarded
// if the cluster retires, so a later reopening starts from a fresh draw.
func (d *domainState) removeFunction(j int) {
	id := d.assign[j]
	for i := range d.outputs {
		d.stats.decCell(id, d.labels[i], d.outputs[i][j])
	}
	d.crp.removeMember(id)
	if d.crp.size(id) == 0 {
		delete(d.conf, id)
	}
}

// insertFunction adds function j to the chosen cluster, restoring counts
// and membership. A cluster opened by this insertion gets its confusion
// matrix drawn immediately from the Beta conditional given the counts just
// added, so the same-sweep label step never sees an unsampled matrix.
func (d *domainState) insertFunction(j, id int) {
	d.assign[j] = id
	d.crp.addMember(id)
	for i := range d.outputs {
		d.stats.incCell(id, d.labels[i], d.outputs[i][j])
	}
	if _, ok := d.conf[id]; !ok {
		d.sampleClusterConfusion(id)
	}
}

// sampleLabels resamples the consensus label of every instance from the
// two-outcome categorical proportional to prior times the product of each
// function's confusion likelihood.
//
// The two weights are computed by direct multiplication rather than in log
// space. With very many functions the products can underflow to zero, in
// which case the draw degrades to label 0; this is a known limitation
// carried from the model's definition, not an error path.
func (d *domainState) sampleLabels() {
	for i, row := range d.outputs {
		p0 := 1 - d.prior
		p1 := d.prior
		for j, out := range row {
			cm := d.conf[d.assign[j]]
			p0 *= cm[0][out]
			p1 *= cm[1][out]
		}
		label := 0
		if d.rng.Float64() < p1/(p0+p1) {
			label = 1
		}
		if label == d.labels[i] {
			continue
		}
		// Decrement under the old label, flip, increment under the new.
		d.stats.decLabel(d.labels[i])
		for j, out := range row {
			d.stats.decCell(d.assign[j], d.labels[i], out)
		}
		d.labels[i] = label
		d.stats.incLabel(label)
		for j, out := range row {
			d.stats.incCell(d.assign[j], label, out)
		}
	}
}
