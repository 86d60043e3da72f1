// Package streamgraph is the streaming connected-components engine: it
// owns one supernode per vertex, an eager DSU kept valid as long as every
// update has been a simple non-cycle-closing insertion, and the
// guttering system batching raw updates before they reach a vertex's
// sketch stack. Only one Graph may be open in a process at a time.
package streamgraph

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sketchgraph/streamcc/binpb"
	"github.com/sketchgraph/streamcc/config"
	"github.com/sketchgraph/streamcc/dsu"
	"github.com/sketchgraph/streamcc/gutter"
	"github.com/sketchgraph/streamcc/supernode"
	"github.com/sketchgraph/streamcc/workerpool"
)

// ErrMultipleGraphs is returned by NewGraph/LoadGraph when a Graph is
// already open; this module supports exactly one live engine per process,
// matching the original's single on-disk stream file and backup area.
var ErrMultipleGraphs = errors.New("streamgraph: a Graph is already open in this process")

// ErrUpdateLocked is returned by Update while a ConnectedComponents or
// PointQuery call holds the graph locked for sampling.
var ErrUpdateLocked = errors.New("streamgraph: graph is locked for a connected-components query")

// PartialResultError wraps a best-effort component partition returned
// when one or more Borůvka representatives exhausted their entire sketch
// stack without ever producing a definitive GOOD or ZERO verdict. The
// partition is still the caller's best available answer -- it is exact
// for every representative that did resolve -- but Exhausted names the
// vertices whose component membership could not be confirmed.
type PartialResultError struct {
	Components []map[uint32]struct{}
	Exhausted  []uint32
}

func (e *PartialResultError) Error() string {
	return fmt.Sprintf("streamgraph: partial result: %d representative(s) exhausted their sketch stack without a verdict", len(e.Exhausted))
}

var (
	singletonMu   sync.Mutex
	singletonOpen bool
)

func claimSingleton() error {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	if singletonOpen {
		return ErrMultipleGraphs
	}
	singletonOpen = true
	return nil
}

func releaseSingleton() {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	singletonOpen = false
}

// UpdateType mirrors streamio's wire discriminator at the engine layer, so
// callers driving Update directly (tests, alternative front ends) need not
// import streamio just to name an insertion or deletion.
type UpdateType uint8

const (
	InsertUpdate UpdateType = 0
	DeleteUpdate UpdateType = 1
)

// Update is one streamed graph mutation.
type Update struct {
	Type UpdateType
	Src  uint32
	Dst  uint32
}

// Graph is the single open streaming-CC engine instance.
type Graph struct {
	n            uint32
	seed         uint64
	cfg          *config.Config
	numInserters int
	eagerDSU     bool

	nodes []*supernode.Supernode
	d     *dsu.DSU
	gut   gutter.GutteringSystem
	pool  *workerpool.Pool

	updateLocked atomic.Bool
	hooks        capabilityHooks

	backupMu   sync.Mutex
	backupMem  []*supernode.Supernode
	backupPath string

	closed bool
}

// NewGraph allocates a fresh graph over n vertices. numInserters declares
// how many concurrent threads the caller intends to drive Update from;
// Update bounds-checks tid against it and rejects out-of-range callers,
// the same "fixed, known set of inserter threads" assumption the original
// multithreaded stream reader makes. It is otherwise independent of
// cfg's num_groups/group_size pool, which sizes the gutter-flush and
// Borůvka-sampling worker pool instead.
func NewGraph(n uint32, cfg *config.Config, numInserters int) (*Graph, error) {
	if err := claimSingleton(); err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if numInserters < 1 {
		numInserters = 1
	}
	g := &Graph{
		n:            n,
		seed:         rand.New(rand.NewSource(time.Now().UnixNano())).Uint64(),
		cfg:          cfg,
		numInserters: numInserters,
		eagerDSU:     true,
		nodes:        make([]*supernode.Supernode, n),
		d:            dsu.New(n),
		hooks:        defaultHooks(),
		pool:         workerpool.New(cfg.WorkerPoolSize()),
	}
	for v := uint32(0); v < n; v++ {
		g.nodes[v] = supernode.New(n, g.seed, v)
	}
	g.gut = cfg.NewGuttering(n, g.pool)
	g.gut.RegisterCallback(g.gutterCallback)
	cfg.LogBanner()
	return g, nil
}

// LoadGraph reconstructs a graph from a binpb dump written by
// (*Graph).WriteBinary. The DSU starts invalid unconditionally: a
// serialized dump carries no spanning-forest state, so the first
// ConnectedComponents call after loading always runs the full Borůvka
// driver rather than trusting a stale fast path.
func LoadGraph(path string, cfg *config.Config, numInserters int) (*Graph, error) {
	if err := claimSingleton(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		releaseSingleton()
		return nil, fmt.Errorf("streamgraph: opening %s: %w", path, err)
	}
	nodes, seed, _, err := binpb.ReadGraph(f)
	f.Close()
	if err != nil {
		releaseSingleton()
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if numInserters < 1 {
		numInserters = 1
	}
	n := uint32(len(nodes))
	g := &Graph{
		n:            n,
		seed:         seed,
		cfg:          cfg,
		numInserters: numInserters,
		eagerDSU:     true,
		nodes:        nodes,
		d:            dsu.New(n),
		hooks:        defaultHooks(),
		pool:         workerpool.New(cfg.WorkerPoolSize()),
	}
	g.d.Invalidate()
	g.gut = cfg.NewGuttering(n, g.pool)
	g.gut.RegisterCallback(g.gutterCallback)
	cfg.LogBanner()
	return g, nil
}

// gutterCallback folds one vertex's flushed batch of neighbors into its
// supernode. It is a plain method value, not a struct field holding a
// back-reference to g embedded inside the gutter -- the gutter never
// outlives or owns the graph, so there is no cyclic-ownership hazard to
// manage on Close.
func (g *Graph) gutterCallback(src uint32, dsts []uint32) {
	if err := g.nodes[src].BatchUpdate(dsts, g.cfg.GroupSize); err != nil {
		log.Error().Err(err).Uint32("src", src).Msg("streamgraph: batch update failed")
	}
}

// Update applies one streamed mutation on behalf of thread tid. It fails
// fast with ErrUpdateLocked while a query holds the graph for sampling,
// rather than queuing -- callers are expected to stop feeding new updates
// once they call ConnectedComponents with cont=false, and to simply retry
// on ErrUpdateLocked otherwise.
func (g *Graph) Update(upd Update, tid int) error {
	if g.updateLocked.Load() {
		return ErrUpdateLocked
	}
	if tid < 0 || tid >= g.numInserters {
		return fmt.Errorf("streamgraph: tid %d out of range [0,%d)", tid, g.numInserters)
	}
	if upd.Src == upd.Dst {
		return fmt.Errorf("streamgraph: self edge (%d,%d) is not representable", upd.Src, upd.Dst)
	}

	g.gut.Insert(gutter.Edge{Src: upd.Src, Dst: upd.Dst}, tid)
	g.gut.Insert(gutter.Edge{Src: upd.Dst, Dst: upd.Src}, tid)

	switch upd.Type {
	case InsertUpdate:
		if g.eagerDSU {
			g.d.UnionOnEdge(upd.Src, upd.Dst)
		} else {
			g.d.Invalidate()
		}
	case DeleteUpdate:
		g.d.Invalidate()
	default:
		return fmt.Errorf("streamgraph: unknown update type %d", upd.Type)
	}
	return nil
}

// WriteBinary dumps the current sketch state to path via binpb, for a
// later LoadGraph in this or another process. Pending gutter batches are
// flushed first, so the dump never misses an update still sitting in a
// bucket below its flush threshold.
func (g *Graph) WriteBinary(path string) error {
	g.gut.ForceFlush()
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("streamgraph: creating %s: %w", path, err)
	}
	defer f.Close()
	_, err = binpb.WriteGraph(f, g.seed, g.nodes)
	return err
}

// Close releases the process-wide open-graph slot. Safe to call more than
// once.
func (g *Graph) Close() error {
	if g.closed {
		return nil
	}
	g.closed = true
	g.pool.Close()
	releaseSingleton()
	return nil
}
