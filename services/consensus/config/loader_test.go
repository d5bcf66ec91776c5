// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for consensus config loading

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// TestCreateDefault verifies default config creation.
func TestCreateDefault(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, ".aleutian", "consensus.yaml")

	if err := createDefault(configPath); err != nil {
		t.Fatalf("createDefault() failed: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatal("config file was not created")
	}

	// The created file must round-trip back to the defaults.
	var cfg ConsensusConfig
	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read created config: %v", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("created config is not valid yaml: %v", err)
	}
	if cfg.Server.Port != 12230 {
		t.Errorf("Server.Port = %d, want 12230", cfg.Server.Port)
	}
	if cfg.Sampler.Samples != 200 {
		t.Errorf("Sampler.Samples = %d, want 200", cfg.Sampler.Samples)
	}
}

// TestParse verifies partial configs merge over defaults.
func TestParse(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "consensus.yaml")

	content := `
server:
  port: 9000
sampler:
  burn_in: 50
  samples: 10
  alpha: 2.5
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Parse(configPath)
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Sampler.BurnIn != 50 {
		t.Errorf("Sampler.BurnIn = %d, want 50", cfg.Sampler.BurnIn)
	}
	if cfg.Sampler.Alpha != 2.5 {
		t.Errorf("Sampler.Alpha = %v, want 2.5", cfg.Sampler.Alpha)
	}
	// Unset fields keep defaults.
	if cfg.Server.MaxRuns != 16 {
		t.Errorf("Server.MaxRuns = %d, want default 16", cfg.Server.MaxRuns)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want default info", cfg.Logging.Level)
	}
}

// TestParseRejectsInvalid verifies validation failures surface.
func TestParseRejectsInvalid(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "consensus.yaml")

	content := `
sampler:
  alpha: -1
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := Parse(configPath); err == nil {
		t.Fatal("Parse() accepted a negative alpha")
	} else if !strings.Contains(err.Error(), "invalid config") {
		t.Errorf("unexpected error: %v", err)
	}
}

// TestParseMissingFile verifies a readable error for absent files.
func TestParseMissingFile(t *testing.T) {
	if _, err := Parse(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Parse() succeeded on a missing file")
	}
}
