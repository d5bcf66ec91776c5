// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"github.com/AleutianAI/AleutianConsensus/services/consensus/telemetry"
)

// ConsensusConfig is the root configuration for the consensus binary.
//
// Loaded from YAML, validated with go-playground/validator on load.
type ConsensusConfig struct {
	// Server configures the HTTP service.
	Server ServerConfig `yaml:"server"`

	// Sampler supplies defaults for chain runs that leave options unset.
	Sampler SamplerConfig `yaml:"sampler"`

	// Telemetry: tracing and metrics exporters
	Telemetry telemetry.Config `yaml:"telemetry"`

	// Logging: level and optional log directory
	Logging LogConfig `yaml:"logging"`
}

type ServerConfig struct {
	Port    int    `yaml:"port" validate:"gte=0,lte=65535"`
	GinMode string `yaml:"gin_mode" validate:"omitempty,oneof=debug release test"`
	// MaxRuns bounds fitted runs retained in memory for scoring.
	MaxRuns int `yaml:"max_runs" validate:"gte=0"`
}

type SamplerConfig struct {
	BurnIn   int     `yaml:"burn_in" validate:"gte=0"`
	Thinning int     `yaml:"thinning" validate:"gte=0"`
	Samples  int     `yaml:"samples" validate:"gte=1"`
	Alpha    float64 `yaml:"alpha" validate:"gt=0"`
	Seed     uint64  `yaml:"seed"`
	Workers  int     `yaml:"workers" validate:"gte=0"`
}

type LogConfig struct {
	// Level can be "debug", "info", "warn", or "error".
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	// Dir, when set, enables JSON file logging under the directory.
	Dir string `yaml:"dir"`
	// JSON switches console output from text to JSON.
	JSON bool `yaml:"json"`
}

func DefaultConfig() ConsensusConfig {
	return ConsensusConfig{
		Server: ServerConfig{
			Port:    12230,
			GinMode: "release",
			MaxRuns: 16,
		},
		Sampler: SamplerConfig{
			BurnIn:   500,
			Thinning: 0,
			Samples:  200,
			Alpha:    1,
			Seed:     0,
			Workers:  0,
		},
		Telemetry: telemetry.DefaultConfig(),
		Logging: LogConfig{
			Level: "info",
		},
	}
}
