// Package supernode implements the per-vertex sketch stack and its Borůvka
// bookkeeping: a vertex's dense stack of up to logn+1 independent sketches,
// batched delta-node construction from a gutter's edge batch, and the merge
// step that folds one vertex's running sketch state into another's.
package supernode

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/sketchgraph/streamcc/mathutils"
	"github.com/sketchgraph/streamcc/sketch"
)

// Outcome classifies the result of Sample, one level up from sketch.Outcome:
// a supernode additionally knows when its whole stack has been consumed.
type Outcome int

const (
	// GOOD means a level isolated a single incident edge.
	GOOD Outcome = iota
	// ZERO means a level's admitted coordinates were definitively empty.
	ZERO
	// FAIL means the current level's current column isolated nothing;
	// retry with another call.
	FAIL
	// Exhausted means every level in the stack has been consumed without a
	// usable verdict. sketches_exhausted is then permanently set.
	Exhausted
)

func (o Outcome) String() string {
	switch o {
	case GOOD:
		return "GOOD"
	case ZERO:
		return "ZERO"
	case FAIL:
		return "FAIL"
	default:
		return "EXHAUSTED"
	}
}

// NumLevels returns ⌈log2(n)⌉+1, the stack depth for a supernode over n
// vertices: enough independent sketches to survive that many Borůvka rounds.
func NumLevels(n uint32) uint32 {
	return mathutils.Log2Ceil(uint64(n)) + 1
}

// ShapeLen returns the total bucket count of one supernode's backing arena
// over n vertices, without constructing a supernode first.
func ShapeLen(n uint32) uint32 {
	numColumns, bktPerCol := sketch.BucketShape(n)
	return NumLevels(n) * numColumns * bktPerCol
}

// Supernode is a dense stack of independent sketches for one vertex, plus
// the Borůvka consumption cursor over that stack. Every level shares one
// seed across all vertices in the graph -- not a per-vertex seed -- so that
// merging two vertices' supernodes correctly cancels the coordinates of any
// edge internal to the merged set under XOR. See DESIGN.md for why this
// departs from a literal per-vertex seed.
type Supernode struct {
	v          uint32
	n          uint32
	seed       uint64
	numLevels  uint32
	storage    []sketch.Bucket
	levels     []*sketch.Sketch
	sampleIdx  uint32
	exhausted  bool
	mu         sync.Mutex
}

// New allocates a fresh supernode for vertex v, owning its own bucket arena.
func New(n uint32, seed uint64, v uint32) *Supernode {
	numLevels := NumLevels(n)
	numColumns, bktPerCol := sketch.BucketShape(n)
	shapeLen := numColumns * bktPerCol

	s := &Supernode{
		v:         v,
		n:         n,
		seed:      seed,
		numLevels: numLevels,
		storage:   make([]sketch.Bucket, numLevels*shapeLen),
		levels:    make([]*sketch.Sketch, numLevels),
	}
	for l := uint32(0); l < numLevels; l++ {
		s.levels[l] = sketch.Place(n, levelSeed(seed, l), s.storage[l*shapeLen:(l+1)*shapeLen])
	}
	return s
}

// levelSeed derives level l's own sketch seed from the graph-wide seed, so
// that every level in the stack is an independent sampler rather than
// byte-identical copies of the same one -- a FAIL retired at one level must
// hand the next level a genuinely fresh set of hash functions. The mix is a
// pure function of (seed, l): every vertex in the graph derives the same
// level l seed from the same shared seed, which is what lets Merge combine
// two vertices' level-l sketches under XOR.
func levelSeed(seed uint64, l uint32) uint64 {
	var buf [12]byte
	binary.LittleEndian.PutUint64(buf[0:8], seed)
	binary.LittleEndian.PutUint32(buf[8:12], l)
	return xxhash.Sum64(buf[:])
}

func (s *Supernode) V() uint32             { return s.v }
func (s *Supernode) N() uint32             { return s.n }
func (s *Supernode) Seed() uint64          { return s.seed }
func (s *Supernode) NumLevels() uint32     { return s.numLevels }
func (s *Supernode) SampleIdx() uint32     { return s.sampleIdx }
func (s *Supernode) SketchesExhausted() bool { return s.exhausted }

// Reset rewinds a supernode to its just-constructed state, for reuse as
// per-thread delta scratch across many batch_update calls.
func (s *Supernode) Reset() {
	for i := range s.storage {
		s.storage[i] = sketch.Bucket{}
	}
	for _, lvl := range s.levels {
		lvl.Reset()
	}
	s.sampleIdx = 0
	s.exhausted = false
}

// Clone deep-copies a supernode into a fresh backing arena. The stack's
// dense, contiguous layout makes this a single slice copy rather than a
// level-by-level walk -- the same property that lets the original design
// bit-copy a supernode for Borůvka backup snapshots.
func (s *Supernode) Clone() *Supernode {
	out := New(s.n, s.seed, s.v)
	copy(out.storage, s.storage)
	out.sampleIdx = s.sampleIdx
	out.exhausted = s.exhausted
	return out
}

// Sample delegates to the stack's current level, examining exactly one
// column of that level's sketch. GOOD and ZERO are definitive for that
// level and retire it (advance past it permanently); FAIL retries the same
// level's next column until the level itself is exhausted, at which point
// it is retired with no verdict and the stack advances. Once every level
// has been retired, Sample returns Exhausted forever.
func (s *Supernode) Sample() (Outcome, sketch.Edge) {
	if s.sampleIdx >= s.numLevels {
		s.exhausted = true
		return Exhausted, sketch.Edge{}
	}
	lvl := s.levels[s.sampleIdx]
	outcome, e := lvl.Sample()
	switch outcome {
	case sketch.GOOD:
		s.sampleIdx++
		return GOOD, e
	case sketch.ZERO:
		s.sampleIdx++
		return ZERO, sketch.Edge{}
	default:
		if lvl.Exhausted() {
			s.sampleIdx++
		}
		return FAIL, sketch.Edge{}
	}
}

// Merge XOR-combines other's sketch state into s, level by level, and
// advances s's consumption cursor to whichever of the two has progressed
// further. Retired levels are merged too -- their content is never sampled
// again, so doing so is harmless and keeps the operation a flat sweep
// instead of needing agreement on exactly which levels are still live.
func (s *Supernode) Merge(other *Supernode) error {
	if s.n != other.n || s.seed != other.seed || s.numLevels != other.numLevels {
		return fmt.Errorf("supernode: merge shape mismatch: (n=%d,seed=%d,levels=%d) vs (n=%d,seed=%d,levels=%d)",
			s.n, s.seed, s.numLevels, other.n, other.seed, other.numLevels)
	}
	for l := uint32(0); l < s.numLevels; l++ {
		if err := s.levels[l].Merge(other.levels[l]); err != nil {
			return err
		}
	}
	if other.sampleIdx > s.sampleIdx {
		s.sampleIdx = other.sampleIdx
	}
	if other.exhausted {
		s.exhausted = true
	}
	return nil
}

// BatchUpdate folds a batch of edges incident to this supernode's vertex
// into its running sketch state: a fresh delta supernode is built from the
// batch and merged in under the supernode's own lock, matching the gutter
// callback's contract of serializing writes per source vertex while still
// allowing the delta construction itself to run unlocked and in parallel.
func (s *Supernode) BatchUpdate(dsts []uint32, workers int) error {
	delta, err := GenerateDeltaNode(s.n, s.seed, s.v, dsts, workers)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Merge(delta)
}

// GenerateDeltaNode builds a standalone supernode whose every level holds
// the sketch-sum of updates (src, dst) for dst in edges. The edge batch is
// fanned out across workers private delta scratch spaces -- each handles a
// disjoint slice of the batch, touching no shared memory -- then the
// partials are merged sequentially into the result.
func GenerateDeltaNode(n uint32, seed uint64, src uint32, edges []uint32, workers int) (*Supernode, error) {
	if workers < 1 {
		workers = 1
	}
	if workers == 1 || len(edges) < workers {
		out := New(n, seed, src)
		applyEdges(out, src, edges)
		return out, nil
	}

	chunks := partitionEdges(edges, workers)
	partials := make([]*Supernode, len(chunks))
	var wg sync.WaitGroup
	for i, chunk := range chunks {
		wg.Add(1)
		go func(i int, chunk []uint32) {
			defer wg.Done()
			partials[i] = New(n, seed, src)
			applyEdges(partials[i], src, chunk)
		}(i, chunk)
	}
	wg.Wait()

	out := partials[0]
	for _, p := range partials[1:] {
		if err := out.Merge(p); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func applyEdges(out *Supernode, src uint32, dsts []uint32) {
	for _, dst := range dsts {
		if dst == src {
			continue
		}
		e := sketch.NewEdge(src, dst)
		for _, lvl := range out.levels {
			lvl.UpdateEdge(e)
		}
	}
}

func partitionEdges(edges []uint32, workers int) [][]uint32 {
	chunkSize := (len(edges) + workers - 1) / workers
	chunks := make([][]uint32, 0, workers)
	for i := 0; i < len(edges); i += chunkSize {
		end := i + chunkSize
		if end > len(edges) {
			end = len(edges)
		}
		chunks = append(chunks, edges[i:end])
	}
	return chunks
}

// WriteTo dumps the supernode in the layout binpb expects for one vertex's
// blob: (v, num_levels, sample_idx, exhausted) followed by each level's
// sketch in WriteTo order.
func (s *Supernode) WriteTo(w io.Writer) (int64, error) {
	var hdr [13]byte
	putUint32(hdr[0:4], s.v)
	putUint32(hdr[4:8], s.numLevels)
	putUint32(hdr[8:12], s.sampleIdx)
	if s.exhausted {
		hdr[12] = 1
	}
	n, err := w.Write(hdr[:])
	if err != nil {
		return int64(n), err
	}
	total := int64(n)
	for _, lvl := range s.levels {
		written, err := lvl.WriteTo(w)
		total += written
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ReadFrom reconstructs a supernode written by WriteTo. n and seed are
// supplied by the caller (binpb carries them once in its file header rather
// than per vertex) since they are shared across every vertex in a dump.
func ReadFrom(r io.Reader, n uint32, seed uint64) (*Supernode, int64, error) {
	var hdr [13]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, 0, err
	}
	v := getUint32(hdr[0:4])
	numLevels := getUint32(hdr[4:8])
	sampleIdx := getUint32(hdr[8:12])
	exhausted := hdr[12] != 0

	expected := NumLevels(n)
	if numLevels != expected {
		return nil, 0, fmt.Errorf("supernode: read %d levels, want %d for n=%d", numLevels, expected, n)
	}

	s := New(n, seed, v)
	total := int64(len(hdr))
	for l := uint32(0); l < numLevels; l++ {
		read, err := s.levels[l].ReadInto(r)
		total += read
		if err != nil {
			return nil, total, err
		}
	}
	s.sampleIdx = sampleIdx
	s.exhausted = exhausted
	return s, total, nil
}

func putUint32(buf []byte, v uint32) { binary.LittleEndian.PutUint32(buf, v) }
func getUint32(buf []byte) uint32    { return binary.LittleEndian.Uint32(buf) }
