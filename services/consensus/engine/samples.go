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

// =============================================================================
// Retained samples and posterior aggregation
// =============================================================================

// sample is one immutable retained snapshot of the chain state across all
// domains. Snapshots are deep copies: the live state keeps mutating after
// the copy is taken.
type sample struct {
	priors []float64           // per domain
	labels [][]int             // per domain, per instance
	assign [][]int             // per domain, per function
	conf   []map[int]confusion // per domain, cluster id -> sampled matrix
}

// sampleStore is a fixed-length ordered sequence of retained snapshots.
// All slots are allocated up front and written by index, so collection
// never allocates per-sweep beyond the per-domain confusion maps.
type sampleStore struct {
	samples []sample
}

func newSampleStore(n int, domains []*domainState) *sampleStore {
	st := &sampleStore{samples: make([]sample, n)}
	for s := range st.samples {
		st.samples[s] = sample{
			priors: make([]float64, len(domains)),
			labels: make([][]int, len(domains)),
			assign: make([][]int, len(domains)),
			conf:   make([]map[int]confusion, len(domains)),
		}
		for p, d := range domains {
			st.samples[s].labels[p] = make([]int, len(d.labels))
			st.samples[s].assign[p] = make([]int, len(d.assign))
		}
	}
	return st
}

// snapshot copies the live state of every domain into slot s. This is the
// explicit, typed replacement for reflective deep copying: every field the
// aggregation and likelihood passes read is cloned here and nowhere else.
func (st *sampleStore) snapshot(s int, domains []*domainState) {
	snap := &st.samples[s]
	for p, d := range domains {
		snap.priors[p] = d.prior
		copy(snap.labels[p], d.labels)
		copy(snap.assign[p], d.assign)
		conf := make(map[int]confusion, len(d.conf))
		for id, cm := range d.conf {
			conf[id] = *cm
		}
		snap.conf[p] = conf
	}
}

// Posterior holds the aggregated posterior summaries of a completed chain:
// means and variances of the label prior, the consensus labels, and the
// per-function error rates.
//
// The error rate is the confusion-weighted expectation
//
//	prior * P(observed=0 | true=1) + (1-prior) * P(observed=1 | true=0)
//
// evaluated per retained sample at the function's sampled cluster. The same
// definition is used for both the mean and the variance. (The alternative,
// the empirical mismatch rate against the sampled labels, depends on the
// particular instances and is undefined for empty domains.)
type Posterior struct {
	priorMeans []float64
	priorVars  []float64
	labelMeans [][]float64
	labelVars  [][]float64
	errMeans   [][]float64
	errVars    [][]float64
}

// PriorMean returns the posterior mean of the label prior for a domain.
func (p *Posterior) PriorMean(domain int) float64 { return p.priorMeans[domain] }

// PriorVariance returns the posterior variance of the label prior.
func (p *Posterior) PriorVariance(domain int) float64 { return p.priorVars[domain] }

// LabelMean returns the posterior mean of an instance's consensus label,
// i.e. the posterior probability the latent label is 1.
func (p *Posterior) LabelMean(domain, instance int) float64 {
	return p.labelMeans[domain][instance]
}

// LabelVariance returns the posterior variance of an instance's label.
func (p *Posterior) LabelVariance(domain, instance int) float64 {
	return p.labelVars[domain][instance]
}

// ErrorRateMean returns the posterior mean error rate of a function in a
// domain, under the confusion-weighted definition documented on Posterior.
func (p *Posterior) ErrorRateMean(domain, function int) float64 {
	return p.errMeans[domain][function]
}

// ErrorRateVariance returns the posterior variance of a function's error rate.
func (p *Posterior) ErrorRateVariance(domain, function int) float64 {
	return p.errVars[domain][function]
}

// errorRate evaluates the confusion-weighted error rate of function j in
// domain p for retained sample s.
func errorRate(s *sample, p, j int) float64 {
	cm := s.conf[p][s.assign[p][j]]
	return s.priors[p]*cm[1][0] + (1-s.priors[p])*cm[0][1]
}

// aggregate reduces the retained samples to posterior means and variances
// with the plain two-pass algorithm: sums first, then squared deviations
// from the finished means. The store always holds at least one sample
// (enforced at construction), so the divisions are safe.
func aggregate(st *sampleStore) *Posterior {
	n := float64(len(st.samples))
	first := &st.samples[0]
	numDomains := len(first.priors)

	post := &Posterior{
		priorMeans: make([]float64, numDomains),
		priorVars:  make([]float64, numDomains),
		labelMeans: make([][]float64, numDomains),
		labelVars:  make([][]float64, numDomains),
		errMeans:   make([][]float64, numDomains),
		errVars:    make([][]float64, numDomains),
	}
	for p := 0; p < numDomains; p++ {
		post.labelMeans[p] = make([]float64, len(first.labels[p]))
		post.labelVars[p] = make([]float64, len(first.labels[p]))
		post.errMeans[p] = make([]float64, len(first.assign[p]))
		post.errVars[p] = make([]float64, len(first.assign[p]))
	}

	// Pass one: means.
	for s := range st.samples {
		snap := &st.samples[s]
		for p := 0; p < numDomains; p++ {
			post.priorMeans[p] += snap.priors[p]
			for i, label := range snap.labels[p] {
				post.labelMeans[p][i] += float64(label)
			}
			for j := range snap.assign[p] {
				post.errMeans[p][j] += errorRate(snap, p, j)
			}
		}
	}
	for p := 0; p < numDomains; p++ {
		post.priorMeans[p] /= n
		for i := range post.labelMeans[p] {
			post.labelMeans[p][i] /= n
		}
		for j := range post.errMeans[p] {
			post.errMeans[p][j] /= n
		}
	}

	// Pass two: variances around the just-computed means.
	for s := range st.samples {
		snap := &st.samples[s]
		for p := 0; p < numDomains; p++ {
			dev := snap.priors[p] - post.priorMeans[p]
			post.priorVars[p] += dev * dev
			for i, label := range snap.labels[p] {
				dev = float64(label) - post.labelMeans[p][i]
				post.labelVars[p][i] += dev * dev
			}
			for j := range snap.assign[p] {
				dev = errorRate(snap, p, j) - post.errMeans[p][j]
				post.errVars[p][j] += dev * dev
			}
		}
	}
	for p := 0; p < numDomains; p++ {
		post.priorVars[p] /= n
		for i := range post.labelVars[p] {
			post.labelVars[p][i] /= n
		}
		for j := range post.errVars[p] {
			post.errVars[p][j] /= n
		}
	}
	return post
}
