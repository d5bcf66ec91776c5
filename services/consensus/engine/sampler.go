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
	"log/slog"
	"math/rand/v2"
	"runtime"
	"time"

	"github.com/AleutianAI/AleutianConsensus/services/consensus/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/distuv"
)

var chainTracer = otel.Tracer("consensus.engine")

// Fixed hyperparameters. The Beta(1,1) prior added to every count keeps the
// Beta draws away from degenerate 0/0 parameters.
const (
	labelPriorAlpha = 1.0
	labelPriorBeta  = 1.0
)

// confusionPrior is the Beta prior on each confusion-matrix row, indexed
// [latent label][observed output].
var confusionPrior = [2][2]float64{{1, 1}, {1, 1}}

// Options configures a Sampler.
//
// Zero values get defaults where a default is safe: Alpha defaults to 1,
// Workers to GOMAXPROCS. Samples has no default; a chain with no retained
// samples cannot be aggregated and is rejected.
type Options struct {
	// BurnIn is the number of initial sweeps discarded before collection.
	BurnIn int

	// Thinning is the number of sweeps skipped between retained samples.
	// Each retained sample costs Thinning+1 sweeps.
	Thinning int

	// Samples is the number of retained posterior samples. Must be >= 1.
	Samples int

	// Alpha is the CRP concentration parameter shared by all domains.
	// Larger values favor more clusters. Defaults to 1.
	Alpha float64

	// Seed is the base seed for the per-domain random streams. Two runs
	// with the same seed and inputs produce identical trajectories.
	Seed uint64

	// Workers bounds domain-level parallelism within a sweep. Domains are
	// conditionally independent given the hyperparameters, so they can
	// run concurrently; each has its own random stream. Defaults to
	// GOMAXPROCS.
	Workers int

	// Metrics receives sweep counters and durations. Optional.
	Metrics *telemetry.Metrics

	// Logger receives progress logging. Optional; defaults to slog.Default.
	Logger *slog.Logger
}

// confusion is a sampled 2x2 confusion matrix, indexed
// [latent label][observed output]. Rows sum to one.
type confusion [2][2]float64

// domainState is the complete live chain state for one domain. Domains
// share nothing but hyperparameters, which is what makes the per-domain
// sweep loop parallelizable.
type domainState struct {
	outputs [][]int // [instance][function], fixed for the whole run
	labels  []int   // latent consensus label per instance
	prior   float64 // current label-prior sample
	assign  []int   // cluster id per function
	conf    map[int]*confusion
	stats   *suffStats
	crp     *crp
	rng     *rand.Rand
}

// beta draws a Beta(a, b) variate from this domain's random stream.
func (d *domainState) beta(a, b float64) float64 {
	return distuv.Beta{Alpha: a, Beta: b, Src: d.rng}.Rand()
}

// Sampler owns the live chain state for all domains plus the retained
// sample store. Create with New, run once with Run.
type Sampler struct {
	opts         Options
	numFunctions int
	domains      []*domainState
	store        *sampleStore
	post         *Posterior
	logger       *slog.Logger
}

// New validates the input matrices and builds a Sampler with a
// majority-vote warm start.
//
// # Description
//
// outputs is one boolean matrix per domain, shaped instances x functions;
// all domains must share the same function count and rows within a domain
// must not be ragged. The warm start places every function in a single
// cluster per domain, sets each instance's label by majority vote, builds
// the sufficient statistics from that state, and draws initial prior and
// confusion samples.
//
// # Outputs
//
//   - *Sampler: ready to Run.
//   - error: ErrNoDomains, ErrNoFunctions, ErrRaggedMatrix,
//     ErrFunctionCountMismatch, or ErrNoSamples.
func New(outputs [][][]bool, opts Options) (*Sampler, error) {
	if len(outputs) == 0 {
		return nil, ErrNoDomains
	}
	if opts.Samples < 1 {
		return nil, ErrNoSamples
	}
	if opts.Alpha <= 0 {
		opts.Alpha = 1
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	numFunctions := -1
	for _, domain := range outputs {
		if len(domain) == 0 {
			continue // a domain with no instances is legal
		}
		width := len(domain[0])
		for _, row := range domain {
			if len(row) != width {
				return nil, ErrRaggedMatrix
			}
		}
		if numFunctions == -1 {
			numFunctions = width
		} else if width != numFunctions {
			return nil, ErrFunctionCountMismatch
		}
	}
	if numFunctions <= 0 {
		return nil, ErrNoFunctions
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sampler{
		opts:         opts,
		numFunctions: numFunctions,
		domains:      make([]*domainState, len(outputs)),
		logger:       logger,
	}
	for p, domain := range outputs {
		s.domains[p] = newDomainState(domain, numFunctions, opts.Alpha,
			rand.New(rand.NewPCG(opts.Seed, uint64(p))))
	}
	s.store = newSampleStore(opts.Samples, s.domains)
	return s, nil
}

// newDomainState builds the warm-start state for one domain.
func newDomainState(outputs [][]bool, numFunctions int, alpha float64, rng *rand.Rand) *domainState {
	d := &domainState{
		outputs: make([][]int, len(outputs)),
		labels:  make([]int, len(outputs)),
		assign:  make([]int, numFunctions),
		conf:    make(map[int]*confusion),
		stats:   newSuffStats(),
		crp:     newCRP(alpha),
		rng:     rng,
	}
	for i, row := range outputs {
		d.outputs[i] = make([]int, numFunctions)
		for j, out := range row {
			if out {
				d.outputs[i][j] = 1
			}
		}
	}
	// All functions start in one cluster.
	for j := 0; j < numFunctions; j++ {
		d.assign[j] = d.crp.clusterIDAt(0)
		d.crp.addMember(d.assign[j])
	}
	// Majority-vote labels, then counts under that assignment.
	for i, row := range d.outputs {
		sum := 0
		for _, out := range row {
			sum += out
		}
		if sum >= numFunctions/2 {
			d.labels[i] = 1
		}
		d.stats.incLabel(d.labels[i])
		for j, out := range row {
			d.stats.incCell(d.assign[j], d.labels[i], out)
		}
	}
	d.prior = 0.5
	d.samplePrior()
	d.sampleConfusions()
	return d
}

// NumDomains returns the number of domains the chain was built over.
func (s *Sampler) NumDomains() int { return len(s.domains) }

// NumFunctions returns the shared function count.
func (s *Sampler) NumFunctions() int { return s.numFunctions }

// NumInstances returns the instance count of one domain.
func (s *Sampler) NumInstances(domain int) int { return len(s.domains[domain].outputs) }

// Run executes the chain to completion: BurnIn discarded sweeps, then
// Samples retained snapshots at Thinning+1 sweeps each, then posterior
// aggregation.
//
// Cancellation is checked once per completed sweep, never mid-sweep, so
// the sufficient statistics are always left in a consistent state. The
// returned Posterior is also retained on the Sampler for LogLikelihood.
func (s *Sampler) Run(ctx context.Context) (*Posterior, error) {
	totalSweeps := s.opts.BurnIn + s.opts.Samples*(s.opts.Thinning+1)
	ctx, span := chainTracer.Start(ctx, "Sampler.Run",
		trace.WithAttributes(
			attribute.Int("domains", len(s.domains)),
			attribute.Int("functions", s.numFunctions),
			attribute.Int("burn_in", s.opts.BurnIn),
			attribute.Int("samples", s.opts.Samples),
			attribute.Int("total_sweeps", totalSweeps),
		),
	)
	defer span.End()

	start := time.Now()
	s.logger.Info("starting gibbs chain",
		"domains", len(s.domains),
		"functions", s.numFunctions,
		"burn_in", s.opts.BurnIn,
		"thinning", s.opts.Thinning,
		"samples", s.opts.Samples,
		"alpha", s.opts.Alpha,
	)

	for i := 0; i < s.opts.BurnIn; i++ {
		if err := ctx.Err(); err != nil {
			span.AddEvent("context_cancelled", trace.WithAttributes(attribute.Int("sweep", i)))
			return nil, err
		}
		s.sweep(ctx)
	}
	span.AddEvent("burn_in_complete")

	for n := 0; n < s.opts.Samples; n++ {
		for i := 0; i <= s.opts.Thinning; i++ {
			if err := ctx.Err(); err != nil {
				span.AddEvent("context_cancelled", trace.WithAttributes(attribute.Int("sample", n)))
				return nil, err
			}
			s.sweep(ctx)
		}
		s.store.snapshot(n, s.domains)
	}

	s.post = aggregate(s.store)
	if s.opts.Metrics != nil {
		s.opts.Metrics.ChainRunsTotal.Add(ctx, 1)
		s.opts.Metrics.ChainDuration.Record(ctx, time.Since(start).Seconds())
	}
	s.logger.Info("gibbs chain complete",
		"sweeps", totalSweeps,
		"duration", time.Since(start),
	)
	return s.post, nil
}

// Posterior returns the aggregated posterior, or ErrNotRun before Run.
func (s *Sampler) Posterior() (*Posterior, error) {
	if s.post == nil {
		return nil, ErrNotRun
	}
	return s.post, nil
}

// sweep runs the four sampling steps over every domain. Domains run
// concurrently up to Workers; each touches only its own state and random
// stream, so no locking is needed.
func (s *Sampler) sweep(ctx context.Context) {
	start := time.Now()
	if s.opts.Workers > 1 && len(s.domains) > 1 {
		g := new(errgroup.Group)
		g.SetLimit(s.opts.Workers)
		for _, d := range s.domains {
			d := d
			g.Go(func() error {
				d.sweep()
				return nil
			})
		}
		_ = g.Wait() // domain sweeps are pure arithmetic and never fail
	} else {
		for _, d := range s.domains {
			d.sweep()
		}
	}
	if s.opts.Metrics != nil {
		s.opts.Metrics.SweepsTotal.Add(ctx, 1)
		s.opts.Metrics.SweepDuration.Record(ctx, time.Since(start).Seconds())
	}
}
