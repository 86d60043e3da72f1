// Package dsu implements the eager disjoint-set forest the streaming
// engine updates on every insertion: a lock-free, CAS-based union-by-size
// over an atomic parent array, with a per-vertex spanning-forest set used
// to detect when a newly observed edge closes a cycle against the forest
// built so far. While the forest stays valid, connected components can be
// read straight off it without running a single Borůvka round.
package dsu

import (
	"sync"
	"sync/atomic"
)

// DSU is a disjoint-set forest over vertices [0, n). Find is lock-free;
// UnionOnEdge serializes only with other calls sharing the same
// min(u,v), via a per-vertex mutex.
type DSU struct {
	parent         []atomic.Uint32
	size           []atomic.Uint32
	sfMtx          []sync.Mutex
	spanningForest []map[uint32]struct{}
	valid          atomic.Bool
}

// New builds a DSU over n singleton vertices, each its own root.
func New(n uint32) *DSU {
	d := &DSU{
		parent:         make([]atomic.Uint32, n),
		size:           make([]atomic.Uint32, n),
		sfMtx:          make([]sync.Mutex, n),
		spanningForest: make([]map[uint32]struct{}, n),
	}
	for v := uint32(0); v < n; v++ {
		d.parent[v].Store(v)
		d.size[v].Store(1)
		d.spanningForest[v] = make(map[uint32]struct{})
	}
	d.valid.Store(true)
	return d
}

// N returns the number of vertices the DSU was built over.
func (d *DSU) N() uint32 { return uint32(len(d.parent)) }

// Valid reports whether the forest is currently an exact spanning forest
// of the live graph -- i.e. no cycle-closing edge has been observed since
// the last time it was cleared.
func (d *DSU) Valid() bool { return d.valid.Load() }

// Invalidate unconditionally clears validity. Called on every delete
// update, since a removed edge can turn a previously-valid spanning tree
// edge into a dangling reference without the DSU itself noticing.
func (d *DSU) Invalidate() { d.valid.Store(false) }

// Find returns v's root, path-halving along the way. Safe to call
// concurrently with other Finds and with UnionOnEdge.
func (d *DSU) Find(v uint32) uint32 {
	for {
		p := d.parent[v].Load()
		if p == v {
			return v
		}
		gp := d.parent[p].Load()
		if gp == p {
			return p
		}
		d.parent[v].CompareAndSwap(p, gp)
		v = gp
	}
}

// Connected reports whether u and v currently share a root.
func (d *DSU) Connected(u, v uint32) bool { return d.Find(u) == d.Find(v) }

// UnionOnEdge records a newly observed edge {u, v} in the spanning forest.
// If this exact pair has already been recorded, or if u and v are already
// connected through some other tree edge, the edge closes a cycle against
// the forest and the DSU is marked invalid; no union is attempted in that
// case, since there is nothing left to union. Otherwise the smaller-sized
// tree is grafted under the larger by CAS, retrying on contention from a
// concurrent union sharing a root.
func (d *DSU) UnionOnEdge(u, v uint32) {
	lo, hi := u, v
	if lo > hi {
		lo, hi = hi, lo
	}

	d.sfMtx[lo].Lock()
	defer d.sfMtx[lo].Unlock()

	if _, seen := d.spanningForest[lo][hi]; seen {
		d.valid.Store(false)
		return
	}

	a, b := d.Find(u), d.Find(v)
	if a == b {
		d.valid.Store(false)
		return
	}
	for a != b {
		if d.size[a].Load() < d.size[b].Load() {
			a, b = b, a
		}
		if d.parent[b].CompareAndSwap(b, a) {
			d.size[a].Add(d.size[b].Load())
			break
		}
		a, b = d.Find(a), d.Find(b)
	}
	d.spanningForest[lo][hi] = struct{}{}
}

// Components groups every vertex under its root.
func (d *DSU) Components() map[uint32][]uint32 {
	out := make(map[uint32][]uint32)
	for v := uint32(0); v < d.N(); v++ {
		r := d.Find(v)
		out[r] = append(out[r], v)
	}
	return out
}
