// Package gutter defines the guttering-system contract the streaming
// engine buffers updates through before they reach a vertex's supernode,
// and ships the one in-memory implementation this module supports.
package gutter

import (
	"sync"

	"github.com/sketchgraph/streamcc/workerpool"
)

// Edge is a directed (owner, neighbor) pair handed to the guttering
// system: the update fast path inserts both {src,dst} and {dst,src} so
// each endpoint's own gutter sees the incident edge.
type Edge struct {
	Src uint32
	Dst uint32
}

// Callback receives a batched list of neighbors buffered for one source
// vertex, delivered either once a bucket fills or on ForceFlush.
type Callback func(src uint32, dsts []uint32)

// GutteringSystem buffers incoming edges keyed by source vertex and
// delivers them in batches to a registered callback.
type GutteringSystem interface {
	Insert(e Edge, tid int)
	ForceFlush()
	RegisterCallback(cb Callback)
}

// StandaloneGutters is a fixed array of per-vertex buckets, each guarded
// by its own mutex, flushed asynchronously once full or synchronously on
// ForceFlush. It holds no reference to the graph it feeds -- only a plain
// callback value -- so construction order between the guttering system
// and the graph never creates an ownership cycle.
type StandaloneGutters struct {
	bufSize int
	mu      []sync.Mutex
	buckets [][]uint32
	cb      Callback
	flushWg sync.WaitGroup
	pool    *workerpool.Pool
}

// NewStandaloneGutters allocates one bucket per vertex in a graph of n
// vertices, each flushed once it accumulates bufSize pending neighbors.
// Flushes run on pool rather than one-goroutine-per-flush, so the number
// of in-flight callback invocations is bounded by pool's size.
func NewStandaloneGutters(n uint32, bufSize int, pool *workerpool.Pool) *StandaloneGutters {
	if bufSize < 1 {
		bufSize = 1
	}
	return &StandaloneGutters{
		bufSize: bufSize,
		mu:      make([]sync.Mutex, n),
		buckets: make([][]uint32, n),
		pool:    pool,
	}
}

// RegisterCallback sets the function invoked with each flushed batch.
// Must be called before the first Insert/ForceFlush that could trigger a
// flush; later registrations replace earlier ones.
func (g *StandaloneGutters) RegisterCallback(cb Callback) { g.cb = cb }

// Insert buffers dst under src's bucket, dispatching it to the callback
// on the worker pool once the bucket reaches bufSize. tid is accepted for
// interface parity with the engine's thread-indexed update path; standalone
// gutters need no per-thread routing since buckets are already keyed by
// vertex.
func (g *StandaloneGutters) Insert(e Edge, tid int) {
	g.mu[e.Src].Lock()
	g.buckets[e.Src] = append(g.buckets[e.Src], e.Dst)
	var batch []uint32
	if len(g.buckets[e.Src]) >= g.bufSize {
		batch = g.buckets[e.Src]
		g.buckets[e.Src] = nil
	}
	g.mu[e.Src].Unlock()

	if batch != nil {
		g.dispatch(e.Src, batch)
	}
}

func (g *StandaloneGutters) dispatch(src uint32, batch []uint32) {
	if g.cb == nil {
		return
	}
	g.flushWg.Add(1)
	g.pool.Submit(func() {
		defer g.flushWg.Done()
		g.cb(src, batch)
	})
}

// ForceFlush drains every non-empty bucket and blocks until every
// dispatched worker -- including ones already in flight from a prior
// Insert -- has returned. The CC driver relies on this to guarantee no
// update activity remains before Borůvka sampling begins.
func (g *StandaloneGutters) ForceFlush() {
	for src := range g.buckets {
		g.mu[src].Lock()
		batch := g.buckets[src]
		g.buckets[src] = nil
		g.mu[src].Unlock()
		if len(batch) > 0 {
			g.dispatch(uint32(src), batch)
		}
	}
	g.flushWg.Wait()
}
