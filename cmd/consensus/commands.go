// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianConsensus/services/consensus"
	"github.com/AleutianAI/AleutianConsensus/services/consensus/config"
	"github.com/AleutianAI/AleutianConsensus/services/consensus/engine"
)

var (
	rootCmd = &cobra.Command{
		Use:   "consensus",
		Short: "Aggregate noisy binary classifiers into consensus labels",
		Long: `Consensus fits a collapsed Gibbs sampler over the outputs of multiple
binary classifiers, estimating the underlying true labels together with
per-classifier error rates, without any ground truth.`,
	}

	configPath string

	fitCmd = &cobra.Command{
		Use:   "fit [domain.csv...]",
		Short: "Fit a consensus model over one or more domain CSV files",
		Long: `Runs the Gibbs chain over the given domains. Each CSV file holds one
domain: rows are instances, columns are 0/1 classifier outputs. All files
must share the same column count. Posterior summaries are written as YAML.`,
		Args: cobra.MinimumNArgs(1),
		Run:  runFitCommand,
	}
	fitOutput string

	scoreCmd = &cobra.Command{
		Use:   "score [eval.csv...]",
		Short: "Score held-out domain CSV files under a freshly fitted model",
		Long: `Fits the model on the --train files, then reports the averaged
log likelihood of the eval files under the retained posterior samples.
Eval files must cover the same domains and classifiers as the training
files, in the same order.`,
		Args: cobra.MinimumNArgs(1),
		Run:  runScoreCommand,
	}
	scoreTrainFiles []string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the consensus HTTP service",
		Run:   runServeCommand,
	}

	burnIn   int
	thinning int
	samples  int
	alpha    float64
	seed     uint64
	workers  int
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to the config file (default ~/.aleutian/consensus.yaml)")

	for _, cmd := range []*cobra.Command{fitCmd, scoreCmd} {
		cmd.Flags().IntVar(&burnIn, "burn-in", -1, "Sweeps discarded before collection")
		cmd.Flags().IntVar(&thinning, "thinning", -1, "Sweeps skipped between retained samples")
		cmd.Flags().IntVar(&samples, "samples", -1, "Retained posterior samples")
		cmd.Flags().Float64Var(&alpha, "alpha", 0, "CRP concentration parameter")
		cmd.Flags().Uint64Var(&seed, "seed", 0, "Base seed for the random streams")
		cmd.Flags().IntVar(&workers, "workers", 0, "Domain-level parallelism (0 = all cores)")
	}

	rootCmd.AddCommand(fitCmd)
	fitCmd.Flags().StringVarP(&fitOutput, "output", "o", "",
		"Write posterior summaries to this file instead of stdout")

	rootCmd.AddCommand(scoreCmd)
	scoreCmd.Flags().StringArrayVar(&scoreTrainFiles, "train", nil,
		"Training CSV file, one per domain (repeatable, required)")
	scoreCmd.MarkFlagRequired("train")

	rootCmd.AddCommand(serveCmd)
}

// samplerOptions merges command-line flags over the config file defaults.
func samplerOptions() engine.Options {
	cfg := config.Global.Sampler
	opts := engine.Options{
		BurnIn:   cfg.BurnIn,
		Thinning: cfg.Thinning,
		Samples:  cfg.Samples,
		Alpha:    cfg.Alpha,
		Seed:     cfg.Seed,
		Workers:  cfg.Workers,
	}
	if burnIn >= 0 {
		opts.BurnIn = burnIn
	}
	if thinning >= 0 {
		opts.Thinning = thinning
	}
	if samples > 0 {
		opts.Samples = samples
	}
	if alpha > 0 {
		opts.Alpha = alpha
	}
	if seed != 0 {
		opts.Seed = seed
	}
	if workers > 0 {
		opts.Workers = workers
	}
	return opts
}

// fitSampler reads domain CSVs and runs the Gibbs chain over them.
func fitSampler(ctx context.Context, paths []string) (*engine.Sampler, *engine.Posterior, error) {
	outputs, err := readOutputs(paths)
	if err != nil {
		return nil, nil, err
	}
	sampler, err := engine.New(outputs, samplerOptions())
	if err != nil {
		return nil, nil, err
	}
	post, err := sampler.Run(ctx)
	if err != nil {
		return nil, nil, err
	}
	return sampler, post, nil
}

func runFitCommand(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sampler, post, err := fitSampler(ctx, args)
	if err != nil {
		log.Fatalf("Fit failed: %v", err)
	}

	summary := fitSummary{
		NumDomains:   sampler.NumDomains(),
		NumFunctions: sampler.NumFunctions(),
		Domains:      consensus.Summarize(sampler, post),
	}
	for p := range summary.Domains {
		summary.Domains[p].Source = args[p]
	}
	if err := writeSummary(fitOutput, summary); err != nil {
		log.Fatalf("Failed to write posterior summary: %v", err)
	}
}

func runScoreCommand(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(scoreTrainFiles) != len(args) {
		log.Fatalf("Got %d eval files for %d training domains; counts must match",
			len(args), len(scoreTrainFiles))
	}

	sampler, _, err := fitSampler(ctx, scoreTrainFiles)
	if err != nil {
		log.Fatalf("Fit failed: %v", err)
	}

	evalOutputs, err := readOutputs(args)
	if err != nil {
		log.Fatalf("Failed to read eval files: %v", err)
	}
	ll, err := sampler.LogLikelihood(ctx, evalOutputs)
	if err != nil {
		log.Fatalf("Score failed: %v", err)
	}

	if err := writeSummary("", scoreSummary{LogLikelihood: ll}); err != nil {
		log.Fatalf("Failed to write score: %v", err)
	}
}

func runServeCommand(cmd *cobra.Command, args []string) {
	cfg := config.Global
	svc, err := consensus.New(consensus.Config{
		Port:    cfg.Server.Port,
		GinMode: cfg.Server.GinMode,
		MaxRuns: cfg.Server.MaxRuns,
		Defaults: consensus.SamplerDefaults{
			BurnIn:   cfg.Sampler.BurnIn,
			Thinning: cfg.Sampler.Thinning,
			Samples:  cfg.Sampler.Samples,
			Alpha:    cfg.Sampler.Alpha,
			Workers:  cfg.Sampler.Workers,
		},
		Telemetry: cfg.Telemetry,
	})
	if err != nil {
		log.Fatalf("Failed to initialize service: %v", err)
	}
	if err := svc.Run(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
