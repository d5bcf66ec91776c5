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

// crp tracks Chinese Restaurant Process state for one domain: active
// cluster ids, per-cluster member counts, and the concentration parameter.
//
// # Description
//
// Cluster ids are small integers minted on demand. A cluster whose member
// count drops to zero is retired and its id pushed onto a free list; the
// most recently retired id is reused as the next "open a new cluster"
// candidate. Active ids are kept in an ordered slice so candidate
// enumeration is deterministic for a fixed random seed (Go map iteration
// order is randomized and must never drive a sampling loop).
//
// The concentration parameter alpha enters the model only here, as the
// unnormalized prior weight of the open slot.
//
// # Thread Safety
//
// Not safe for concurrent use. Each domain owns its own crp and domains
// never touch each other's state.
type crp struct {
	alpha   float64
	members map[int]int // cluster id -> member count, active clusters only
	active  []int       // active ids in activation order
	free    []int       // retired ids, reused LIFO
	next    int         // next never-used id
}

func newCRP(alpha float64) *crp {
	return &crp{alpha: alpha, members: make(map[int]int)}
}

// addMember records one more member in the given cluster, activating the
// cluster if it was not currently populated. The id may be the current
// open-slot candidate (see clusterIDAt) or any already-active id.
func (c *crp) addMember(id int) {
	if _, ok := c.members[id]; ok {
		c.members[id]++
		return
	}
	// Activating: consume the id from wherever it was minted.
	if n := len(c.free); n > 0 && c.free[n-1] == id {
		c.free = c.free[:n-1]
	} else if id == c.next {
		c.next++
	} else {
		// Reopening an id that is neither the free-list head nor fresh
		// would double-count retired state.
		panic("engine: cluster id is not the open-slot candidate")
	}
	c.members[id] = 1
	c.active = append(c.active, id)
}

// removeMember drops one member from the given cluster, retiring the
// cluster when its count reaches zero. Removing from an empty or unknown
// cluster is a contract violation: the sweep maintains membership exactly,
// so this can only mean corrupted bookkeeping.
func (c *crp) removeMember(id int) {
	n, ok := c.members[id]
	if !ok || n == 0 {
		panic("engine: removing member from empty cluster")
	}
	if n == 1 {
		delete(c.members, id)
		for i, a := range c.active {
			if a == id {
				c.active = append(c.active[:i], c.active[i+1:]...)
				break
			}
		}
		c.free = append(c.free, id)
		return
	}
	c.members[id] = n - 1
}

// candidateCount returns the number of assignment candidates: all populated
// clusters plus one conceptual open slot.
func (c *crp) candidateCount() int {
	return len(c.active) + 1
}

// clusterIDAt returns the candidate id at position k. Position
// candidateCount()-1 is the open slot: the id a new cluster would receive.
func (c *crp) clusterIDAt(k int) int {
	if k < len(c.active) {
		return c.active[k]
	}
	if n := len(c.free); n > 0 {
		return c.free[n-1]
	}
	return c.next
}

// weight returns the unnormalized CRP prior weight for a candidate id: the
// member count for populated clusters, alpha for the open slot.
func (c *crp) weight(id int) float64 {
	if n, ok := c.members[id]; ok {
		return float64(n)
	}
	return c.alpha
}

// size returns the member count of a populated cluster, zero otherwise.
func (c *crp) size(id int) int {
	return c.members[id]
}

// activeIDs returns the populated cluster ids in activation order. The
// returned slice is the internal one; callers must not mutate it.
func (c *crp) activeIDs() []int {
	return c.active
}
