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
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianConsensus/services/consensus"
)

// fitSummary is the YAML document written by the fit command.
type fitSummary struct {
	NumDomains   int                         `yaml:"num_domains"`
	NumFunctions int                         `yaml:"num_functions"`
	Domains      []consensus.DomainPosterior `yaml:"domains"`
}

// scoreSummary is the YAML document written by the score command.
type scoreSummary struct {
	LogLikelihood float64 `yaml:"log_likelihood"`
}

// readOutputs reads one CSV file per domain into an output tensor.
func readOutputs(paths []string) ([][][]bool, error) {
	outputs := make([][][]bool, len(paths))
	for p, path := range paths {
		domain, err := readDomainCSV(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		outputs[p] = domain
	}
	return outputs, nil
}

// readDomainCSV parses one domain of classifier outputs.
//
// # Description
//
// Rows are instances, columns are classifier outputs. Cells must be "0",
// "1", "true", or "false". A single header row of non-binary cells is
// tolerated and skipped.
func readDomainCSV(path string) ([][]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv parse error: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("file is empty")
	}

	start := 0
	if _, err := parseCell(records[0][0]); err != nil {
		// Treat a non-binary first row as a header.
		start = 1
	}
	if start == len(records) {
		return nil, fmt.Errorf("no data rows")
	}

	domain := make([][]bool, 0, len(records)-start)
	for r := start; r < len(records); r++ {
		row := make([]bool, len(records[r]))
		for c, cell := range records[r] {
			v, err := parseCell(cell)
			if err != nil {
				return nil, fmt.Errorf("row %d column %d: %w", r+1, c+1, err)
			}
			row[c] = v
		}
		domain = append(domain, row)
	}
	return domain, nil
}

func parseCell(cell string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "0", "false":
		return false, nil
	case "1", "true":
		return true, nil
	default:
		return false, fmt.Errorf("cell %q is not a binary output", cell)
	}
}

// writeSummary marshals v as YAML to the given path, or stdout when empty.
func writeSummary(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0644)
}
