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

// cellCounts is the 2x2 confusion-cell count block for one cluster,
// indexed [latent label][observed output].
type cellCounts [2][2]int

func (c *cellCounts) empty() bool {
	return c[0][0] == 0 && c[0][1] == 0 && c[1][0] == 0 && c[1][1] == 0
}

// suffStats holds the incrementally maintained sufficient statistics for
// one domain: label-prior counts and per-cluster confusion-cell counts.
//
// Every conditional posterior the sweep draws from is fully determined by
// these counts, so the sweep never rescans raw data. The counts are kept
// consistent with the latent state by a strict discipline: decrement under
// the old assignment before mutating a latent variable, increment under the
// new assignment after. Callers that skip the decrement half corrupt the
// chain silently, which is why the mutation entry points in sweep.go pair
// both halves.
type suffStats struct {
	// labels counts instances currently carrying label 0 and 1.
	labels [2]int

	// cells maps cluster id to its confusion-cell counts. Entries are
	// created on first increment and dropped when they reach zero, so the
	// map tracks exactly the populated clusters.
	cells map[int]*cellCounts
}

func newSuffStats() *suffStats {
	return &suffStats{cells: make(map[int]*cellCounts)}
}

func (s *suffStats) incLabel(label int) { s.labels[label]++ }

func (s *suffStats) decLabel(label int) {
	s.labels[label]--
	if s.labels[label] < 0 {
		panic("engine: negative label-prior count")
	}
}

func (s *suffStats) incCell(cluster, label, observed int) {
	c, ok := s.cells[cluster]
	if !ok {
		c = &cellCounts{}
		s.cells[cluster] = c
	}
	c[label][observed]++
}

func (s *suffStats) decCell(cluster, label, observed int) {
	c, ok := s.cells[cluster]
	if !ok || c[label][observed] == 0 {
		panic("engine: negative confusion-cell count")
	}
	c[label][observed]--
	if c.empty() {
		delete(s.cells, cluster)
	}
}

// cell returns the count block for a cluster, or a zero block if the
// cluster currently has no attributed (instance, function) pairs. The
// returned block must not be retained across mutations.
func (s *suffStats) cell(cluster int) cellCounts {
	if c, ok := s.cells[cluster]; ok {
		return *c
	}
	return cellCounts{}
}
