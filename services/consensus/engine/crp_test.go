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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRPOpenFirstCluster(t *testing.T) {
	c := newCRP(1.5)

	// Before anything is populated there is exactly one candidate: the
	// open slot, with weight alpha.
	require.Equal(t, 1, c.candidateCount())
	id := c.clusterIDAt(0)
	assert.Equal(t, 0, id)
	assert.Equal(t, 1.5, c.weight(id))

	c.addMember(id)
	assert.Equal(t, 2, c.candidateCount())
	assert.Equal(t, 1.0, c.weight(id))
	assert.Equal(t, 1, c.size(id))
}

func TestCRPMembershipCounts(t *testing.T) {
	c := newCRP(1)
	c.addMember(c.clusterIDAt(0)) // opens cluster 0
	c.addMember(0)
	c.addMember(0)
	assert.Equal(t, 3, c.size(0))
	assert.Equal(t, 3.0, c.weight(0))

	c.removeMember(0)
	assert.Equal(t, 2, c.size(0))
}

func TestCRPRetireAndReuse(t *testing.T) {
	c := newCRP(1)
	c.addMember(c.clusterIDAt(0)) // id 0
	c.addMember(c.clusterIDAt(1)) // open slot -> id 1
	require.Equal(t, []int{0, 1}, c.activeIDs())

	// Retiring id 0 pushes it onto the free list; it becomes the next
	// open-slot candidate and carries weight alpha again.
	c.removeMember(0)
	assert.Equal(t, []int{1}, c.activeIDs())
	assert.Equal(t, 2, c.candidateCount())
	assert.Equal(t, 0, c.clusterIDAt(1))
	assert.Equal(t, 1.0, c.weight(0))

	// Reopening reuses the retired id rather than minting id 2.
	c.addMember(c.clusterIDAt(1))
	assert.Equal(t, []int{1, 0}, c.activeIDs())
	assert.Equal(t, 1, c.size(0))
	assert.Equal(t, 2, c.clusterIDAt(2))
}

func TestCRPRemoveFromEmptyPanics(t *testing.T) {
	c := newCRP(1)
	assert.Panics(t, func() { c.removeMember(0) })

	c.addMember(c.clusterIDAt(0))
	c.removeMember(0)
	assert.Panics(t, func() { c.removeMember(0) })
}

func TestCRPAddNonCandidatePanics(t *testing.T) {
	c := newCRP(1)
	// Id 7 was never minted; only the open-slot candidate may be opened.
	assert.Panics(t, func() { c.addMember(7) })
}

func TestSuffStatsLabelCounts(t *testing.T) {
	s := newSuffStats()
	s.incLabel(1)
	s.incLabel(1)
	s.incLabel(0)
	assert.Equal(t, [2]int{1, 2}, s.labels)

	s.decLabel(1)
	assert.Equal(t, [2]int{1, 1}, s.labels)
	s.decLabel(0)
	assert.Panics(t, func() { s.decLabel(0) })
}

func TestSuffStatsCells(t *testing.T) {
	s := newSuffStats()
	s.incCell(3, 0, 1)
	s.incCell(3, 0, 1)
	s.incCell(3, 1, 0)
	assert.Equal(t, cellCounts{{0, 2}, {1, 0}}, s.cell(3))

	// An untouched cluster reads as a zero block.
	assert.Equal(t, cellCounts{}, s.cell(9))

	// Draining a cluster drops its map entry.
	s.decCell(3, 0, 1)
	s.decCell(3, 0, 1)
	s.decCell(3, 1, 0)
	_, ok := s.cells[3]
	assert.False(t, ok)

	assert.Panics(t, func() { s.decCell(3, 0, 0) })
}
