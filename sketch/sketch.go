// Package sketch implements a single ℓ₀-sampling sketch: a column-stack of
// XOR buckets over the simulated frequency vector f ∈ Z^(n(n-1)/2), one
// slot per possible undirected edge on n vertices. A Sketch supports
// toggling coordinates (Update), XOR-combining two sketches of identical
// shape (Merge), and recovering a uniformly random nonzero coordinate with
// bounded failure probability (Sample).
package sketch

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"

	"github.com/sketchgraph/streamcc/mathutils"
	"github.com/sketchgraph/streamcc/pairing"
)

// DepthConstant (k in spec §4.1) is added to ceil(log2(n)) to size
// bkt_per_col, bounding the per-query failure probability at O(1/n^DepthConstant).
const DepthConstant = 4

// Edge is an undirected, non-self edge, normalized so Src < Dst.
type Edge struct {
	Src uint32
	Dst uint32
}

func NewEdge(a, b uint32) Edge {
	if a > b {
		a, b = b, a
	}
	return Edge{Src: a, Dst: b}
}

// Idx returns the triangular-pairing index of the edge.
func (e Edge) Idx() uint64 { return pairing.NonDirectional(e.Src, e.Dst) }

// Outcome classifies the result of Sample.
type Outcome int

const (
	// GOOD means a single coordinate was isolated in a good bucket.
	GOOD Outcome = iota
	// ZERO means every bucket of the examined column was empty and so was
	// every bucket of column 0, which admits every coordinate: the vector is
	// certainly zero.
	ZERO
	// FAIL means no bucket in the examined column isolated a coordinate;
	// the caller should retry Sample (advancing to the next column) or
	// move to a higher-level sketch once all columns are exhausted.
	FAIL
)

func (o Outcome) String() string {
	switch o {
	case GOOD:
		return "GOOD"
	case ZERO:
		return "ZERO"
	default:
		return "FAIL"
	}
}

// Bucket holds the XOR accumulators for one cell of the column-stack.
// Exported so callers (the supernode package) can allocate a single
// contiguous arena of buckets and hand out sub-slices for placement
// construction, matching the "sketches own their bucket arrays unless
// placed into externally provided memory" invariant from SPEC_FULL §3.
type Bucket struct {
	Alpha uint64 // XOR of coordinate indices hashed into this bucket
	Gamma uint64 // XOR of a second, independent hash of the same indices
}

func (b Bucket) empty() bool { return b.Alpha == 0 && b.Gamma == 0 }

// Sketch is a column_count x bkt_per_col grid of buckets for one
// (vertex, level) slot.
type Sketch struct {
	n          uint32
	seed       uint64
	numColumns uint32
	bktPerCol  uint32
	buckets    []Bucket // row-major: buckets[c*bktPerCol+b]
	sampleIdx  uint32   // next column to examine
	ownsMemory bool
}

// New allocates a fresh, zeroed sketch sized for n vertices.
func New(n uint32, seed uint64) *Sketch {
	numColumns := mathutils.Max(mathutils.Log2Ceil(uint64(n)), 1)
	bktPerCol := numColumns + DepthConstant
	return &Sketch{
		n:          n,
		seed:       seed,
		numColumns: numColumns,
		bktPerCol:  bktPerCol,
		buckets:    make([]Bucket, numColumns*bktPerCol),
		ownsMemory: true,
	}
}

// Place constructs a sketch into caller-provided bucket storage (the
// supernode's placement-construction mechanism for delta nodes), matching
// shape exactly. The caller owns the backing array; Place does not.
func Place(n uint32, seed uint64, storage []Bucket) *Sketch {
	numColumns := mathutils.Max(mathutils.Log2Ceil(uint64(n)), 1)
	bktPerCol := numColumns + DepthConstant
	if uint32(len(storage)) != numColumns*bktPerCol {
		panic("sketch: placement storage has the wrong shape")
	}
	for i := range storage {
		storage[i] = Bucket{}
	}
	return &Sketch{n: n, seed: seed, numColumns: numColumns, bktPerCol: bktPerCol, buckets: storage}
}

// BucketShape returns (num_columns, bkt_per_col) for a sketch over n
// vertices, without allocating one. Used by the supernode and serializer to
// size placement storage up front.
func BucketShape(n uint32) (numColumns, bktPerCol uint32) {
	numColumns = mathutils.Max(mathutils.Log2Ceil(uint64(n)), 1)
	return numColumns, numColumns + DepthConstant
}

func (s *Sketch) NumColumns() uint32 { return s.numColumns }
func (s *Sketch) BktPerCol() uint32  { return s.bktPerCol }
func (s *Sketch) Seed() uint64       { return s.seed }
func (s *Sketch) N() uint32          { return s.n }
func (s *Sketch) OwnsMemory() bool   { return s.ownsMemory }
func (s *Sketch) Exhausted() bool    { return s.sampleIdx >= s.numColumns }

// ExportBuckets exposes the sketch's backing bucket arena directly (not a
// copy), for callers that need to inspect or bulk-verify bucket state, such
// as tests and the delta-construction arena owner.
func (s *Sketch) ExportBuckets() []Bucket { return s.buckets }

// hashes. cespare/xxhash/v2 has no built-in seed parameter, so distinct
// "independent" hashes are produced by hashing seed||tag||payload with
// distinct tags, the same way a seeded hash family is derived from one
// primitive hash function.
func hashWithTag(seed uint64, tag byte, payload uint64) uint64 {
	var buf [17]byte
	binary.LittleEndian.PutUint64(buf[0:8], seed)
	buf[8] = tag
	binary.LittleEndian.PutUint64(buf[9:17], payload)
	return xxhash.Sum64(buf[:])
}

func hashFilter(seed uint64, i uint64) uint64    { return hashWithTag(seed, 'f', i) }
func hashBucket(seed uint64, col uint32, i uint64) uint64 {
	return hashWithTag(seed^uint64(col)*0x9E3779B97F4A7C15, 'b', i)
}
func hashCheck(seed uint64, i uint64) uint64 { return hashWithTag(seed, 'c', i) }

// trailingZeros64 counts trailing zero bits, used by the geometric
// admission filter: column c admits index i iff hashFilter(i) has >= c
// trailing zero bits.
func trailingZeros64(x uint64) uint32 {
	if x == 0 {
		return 64
	}
	n := uint32(0)
	for x&1 == 0 {
		x >>= 1
		n++
	}
	return n
}

// Update toggles coordinate i (an edge index) in every column that admits
// it under the geometric subsampling filter.
func (s *Sketch) Update(i uint64) {
	depth := trailingZeros64(hashFilter(s.seed, i))
	limit := s.numColumns
	if depth < limit {
		limit = depth + 1
	}
	check := hashCheck(s.seed, i)
	for c := uint32(0); c < limit; c++ {
		b := uint32(hashBucket(s.seed, c, i) % uint64(s.bktPerCol))
		idx := c*s.bktPerCol + b
		s.buckets[idx].Alpha ^= i
		s.buckets[idx].Gamma ^= check
	}
}

// UpdateEdge is a convenience wrapper over Update for an Edge.
func (s *Sketch) UpdateEdge(e Edge) { s.Update(e.Idx()) }

// Merge XOR-combines other into s. Both sketches must share shape and seed.
func (s *Sketch) Merge(other *Sketch) error {
	if s.n != other.n || s.seed != other.seed || s.numColumns != other.numColumns || s.bktPerCol != other.bktPerCol {
		return fmt.Errorf("sketch: merge shape mismatch: (%d,%d,%d,%d) vs (%d,%d,%d,%d)",
			s.n, s.seed, s.numColumns, s.bktPerCol, other.n, other.seed, other.numColumns, other.bktPerCol)
	}
	for i := range s.buckets {
		s.buckets[i].Alpha ^= other.buckets[i].Alpha
		s.buckets[i].Gamma ^= other.buckets[i].Gamma
	}
	return nil
}

// Sample examines exactly one column of the stack (the current
// sample_idx), advances sample_idx, and returns GOOD with the isolated edge,
// ZERO if every bucket in the column is empty and column 0 is empty too, or
// FAIL otherwise. Once all columns have been examined, every subsequent call
// returns FAIL.
func (s *Sketch) Sample() (Outcome, Edge) {
	if s.sampleIdx >= s.numColumns {
		return FAIL, Edge{}
	}
	c := s.sampleIdx
	s.sampleIdx++

	allEmpty := true
	for b := uint32(0); b < s.bktPerCol; b++ {
		buk := s.buckets[c*s.bktPerCol+b]
		if buk.empty() {
			continue
		}
		allEmpty = false
		if buk.Gamma == hashCheck(s.seed, buk.Alpha) {
			i, j := pairing.InvertNonDirectional(buk.Alpha)
			return GOOD, NewEdge(i, j)
		}
	}
	if allEmpty {
		// A column c > 0 only sees the coordinates its filter admits, so its
		// emptiness proves nothing unless column 0 is empty as well.
		for b := uint32(0); c > 0 && b < s.bktPerCol; b++ {
			if !s.buckets[b].empty() {
				return FAIL, Edge{}
			}
		}
		return ZERO, Edge{}
	}
	return FAIL, Edge{}
}

// Reset zeroes every bucket and rewinds sample_idx, for reuse as delta-node
// scratch space.
func (s *Sketch) Reset() {
	for i := range s.buckets {
		s.buckets[i] = Bucket{}
	}
	s.sampleIdx = 0
}

// WriteTo dumps the sketch in the stable on-disk layout described in
// SPEC_FULL §4.1: (n, seed, num_columns, bkt_per_col) followed by the
// bucket array in row-major column order.
func (s *Sketch) WriteTo(w io.Writer) (int64, error) {
	var hdr [24]byte
	binary.LittleEndian.PutUint32(hdr[0:4], s.n)
	binary.LittleEndian.PutUint64(hdr[4:12], s.seed)
	binary.LittleEndian.PutUint32(hdr[12:16], s.numColumns)
	binary.LittleEndian.PutUint32(hdr[16:20], s.bktPerCol)
	n, err := w.Write(hdr[:20])
	if err != nil {
		return int64(n), err
	}
	total := int64(n)
	buf := make([]byte, 16*len(s.buckets))
	for i, buk := range s.buckets {
		binary.LittleEndian.PutUint64(buf[i*16:i*16+8], buk.Alpha)
		binary.LittleEndian.PutUint64(buf[i*16+8:i*16+16], buk.Gamma)
	}
	n2, err := w.Write(buf)
	return total + int64(n2), err
}

// ReadFrom reconstructs a sketch from the WriteTo layout, allocating its own
// bucket storage.
func ReadFrom(r io.Reader) (*Sketch, int64, error) {
	var hdr [20]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, 0, err
	}
	n := binary.LittleEndian.Uint32(hdr[0:4])
	seed := binary.LittleEndian.Uint64(hdr[4:12])
	numColumns := binary.LittleEndian.Uint32(hdr[12:16])
	bktPerCol := binary.LittleEndian.Uint32(hdr[16:20])

	s := &Sketch{n: n, seed: seed, numColumns: numColumns, bktPerCol: bktPerCol,
		buckets: make([]Bucket, numColumns*bktPerCol), ownsMemory: true}
	buf := make([]byte, 16*len(s.buckets))
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, 0, err
	}
	for i := range s.buckets {
		s.buckets[i].Alpha = binary.LittleEndian.Uint64(buf[i*16 : i*16+8])
		s.buckets[i].Gamma = binary.LittleEndian.Uint64(buf[i*16+8 : i*16+16])
	}
	return s, int64(20 + len(buf)), nil
}

// ReadInto overwrites s's own buckets from the WriteTo layout, leaving s's
// backing storage (and hence any placement-construction relationship to a
// caller's arena) untouched. The encoded shape and seed must match s's;
// sample_idx is reset, since the decoded buckets are a fresh, unsampled
// sketch.
func (s *Sketch) ReadInto(r io.Reader) (int64, error) {
	var hdr [20]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, err
	}
	n := binary.LittleEndian.Uint32(hdr[0:4])
	seed := binary.LittleEndian.Uint64(hdr[4:12])
	numColumns := binary.LittleEndian.Uint32(hdr[12:16])
	bktPerCol := binary.LittleEndian.Uint32(hdr[16:20])
	if n != s.n || seed != s.seed || numColumns != s.numColumns || bktPerCol != s.bktPerCol {
		return 0, fmt.Errorf("sketch: ReadInto shape mismatch: stream (%d,%d,%d,%d) vs sketch (%d,%d,%d,%d)",
			n, seed, numColumns, bktPerCol, s.n, s.seed, s.numColumns, s.bktPerCol)
	}
	buf := make([]byte, 16*len(s.buckets))
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	for i := range s.buckets {
		s.buckets[i].Alpha = binary.LittleEndian.Uint64(buf[i*16 : i*16+8])
		s.buckets[i].Gamma = binary.LittleEndian.Uint64(buf[i*16+8 : i*16+16])
	}
	s.sampleIdx = 0
	return int64(20 + len(buf)), nil
}
