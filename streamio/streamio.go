// Package streamio reads the binary graph update stream: a header
// followed by fixed-size records, either from a single thread or from a
// pool of threads sharing one file via positioned reads and a pair of
// cooperative query barriers.
package streamio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
)

// UpdateType is the one-byte record discriminator on the wire.
type UpdateType uint8

const (
	InsertUpdate UpdateType = 0
	DeleteUpdate UpdateType = 1
)

// GraphUpdate is one parsed stream record. Breakpoint is set instead of
// Type/Src/Dst when a multithreaded reader's thread hits a query barrier
// with no edge to return.
type GraphUpdate struct {
	Type       UpdateType
	Src, Dst   uint32
	Breakpoint bool
}

const (
	edgeSize   = 9 // 1 (type) + 4 (src) + 4 (dst)
	headerSize = 4 + 8
)

var (
	ErrBadStream    = errors.New("streamio: stream file was not correctly opened")
	ErrStreamFailed = errors.New("streamio: read_data encountered a failed stream")
)

// alignBufSize rounds b down to a multiple of edgeSize, matching the
// original's buffer sizing so no record ever straddles a refill boundary.
func alignBufSize(b uint32) uint32 {
	b -= b % edgeSize
	if b == 0 {
		b = edgeSize
	}
	return b
}

// Reader is the single-threaded stream reader: open, buffer, get_edge.
type Reader struct {
	f        *os.File
	buf      []byte
	pos      int
	n        int
	numNodes uint32
	numEdges uint64
}

// Open opens path and reads its header. bufSize is rounded down to a
// multiple of the wire record size.
func Open(path string, bufSize uint32) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadStream, err)
	}
	var hdr [headerSize]byte
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrBadStream, err)
	}
	r := &Reader{
		f:        f,
		buf:      make([]byte, alignBufSize(bufSize)),
		numNodes: binary.LittleEndian.Uint32(hdr[0:4]),
		numEdges: binary.LittleEndian.Uint64(hdr[4:12]),
	}
	if err := r.fill(); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) Nodes() uint32 { return r.numNodes }
func (r *Reader) Edges() uint64 { return r.numEdges }
func (r *Reader) Close() error  { return r.f.Close() }

func (r *Reader) fill() error {
	n, err := r.f.Read(r.buf)
	if err != nil && err != io.EOF {
		return fmt.Errorf("%w: %v", ErrStreamFailed, err)
	}
	r.n, r.pos = n, 0
	return nil
}

// GetEdge returns the next record, refilling the buffer as it drains.
// Returns io.EOF once the stream is exhausted.
func (r *Reader) GetEdge() (GraphUpdate, error) {
	if r.pos >= r.n {
		if err := r.fill(); err != nil {
			return GraphUpdate{}, err
		}
		if r.n == 0 {
			return GraphUpdate{}, io.EOF
		}
	}
	u := GraphUpdate{
		Type: UpdateType(r.buf[r.pos]),
		Src:  binary.LittleEndian.Uint32(r.buf[r.pos+1 : r.pos+5]),
		Dst:  binary.LittleEndian.Uint32(r.buf[r.pos+5 : r.pos+9]),
	}
	r.pos += edgeSize
	return u, nil
}

// MTReader is the shared state behind a pool of ThreadReaders: one file,
// one atomic read cursor, and the two query barriers. fd-open failure is
// reported through Go's ordinary (*os.File, error) return rather than an
// integer file descriptor, which sidesteps the `fd == 0` vs `fd < 0`
// ambiguity the original C had around a falsy-but-valid descriptor 0.
type MTReader struct {
	f          *os.File
	numNodes   uint32
	numEdges   uint64
	bufSize    uint32
	endOfFile  uint64
	streamOff  atomic.Uint64
	queryIndex atomic.Int64 // -1 means unset
	queryBlock atomic.Bool
}

// OpenMT opens path for concurrent positioned reads across a pool of
// ThreadReaders.
func OpenMT(path string, bufSize uint32) (*MTReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadStream, err)
	}
	var hdr [headerSize]byte
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrBadStream, err)
	}
	m := &MTReader{
		f:        f,
		bufSize:  alignBufSize(bufSize),
		numNodes: binary.LittleEndian.Uint32(hdr[0:4]),
		numEdges: binary.LittleEndian.Uint64(hdr[4:12]),
	}
	m.endOfFile = uint64(headerSize) + m.numEdges*edgeSize
	m.streamOff.Store(uint64(headerSize))
	m.queryIndex.Store(-1)
	return m, nil
}

func (m *MTReader) Nodes() uint32 { return m.numNodes }
func (m *MTReader) Edges() uint64 { return m.numEdges }
func (m *MTReader) Close() error  { return m.f.Close() }

// Reset rewinds the shared read cursor to the start of the update
// records, for replaying a stream from the top.
func (m *MTReader) Reset() { m.streamOff.Store(uint64(headerSize)) }

// OnDemandQuery pauses the stream: every subsequent readData call returns
// 0 (BREAKPOINT to callers) until PostQueryResume. The caller is
// responsible for observing BREAKPOINT from every reader thread before
// treating the graph as quiesced.
func (m *MTReader) OnDemandQuery() { m.queryBlock.Store(true) }

// PostQueryResume lets the stream continue and clears any registered
// query index. Call once per query, whether on-demand or registered.
func (m *MTReader) PostQueryResume() {
	m.queryBlock.Store(false)
	m.queryIndex.Store(-1)
}

// RegisterQuery pre-arms a barrier at the byte offset of record queryIdx
// (0-based), so exactly the first queryIdx updates are read before it and a
// query can be scheduled without waiting for every thread to hit an
// arbitrary buffer-sized boundary. Returns false if the shared cursor has
// already reached or passed that offset: a registration landing exactly on
// the current offset is rejected rather than silently accepted at a
// position some thread may already be past.
func (m *MTReader) RegisterQuery(queryIdx uint64) bool {
	byteIndex := uint64(headerSize) + queryIdx*edgeSize
	if byteIndex <= m.streamOff.Load() {
		return false
	}
	m.queryIndex.Store(int64(byteIndex))
	return true
}

// readData claims a bufSize-aligned slice of the stream via fetch-add,
// truncated by end-of-file or a pending query index, and reads it with a
// positioned read so concurrent callers never race on a shared cursor.
func (m *MTReader) readData(buf []byte) (int, error) {
	if m.queryBlock.Load() {
		return 0, nil
	}
	off := m.streamOff.Load()
	qi := m.queryIndex.Load()
	if off >= m.endOfFile || (qi >= 0 && off >= uint64(qi)) {
		return 0, nil
	}

	readOff := m.streamOff.Add(uint64(m.bufSize)) - uint64(m.bufSize)

	qi = m.queryIndex.Load()
	if qi >= 0 && readOff >= uint64(qi) {
		m.streamOff.Store(uint64(qi))
		return 0, nil
	}
	if readOff >= m.endOfFile {
		return 0, nil
	}

	toRead := uint64(m.bufSize)
	if qi >= 0 && uint64(qi) >= readOff && uint64(qi) < readOff+toRead {
		toRead = uint64(qi) - readOff
		m.streamOff.Store(uint64(qi))
	}
	if readOff+toRead > m.endOfFile {
		toRead = m.endOfFile - readOff
	}

	n, err := m.f.ReadAt(buf[:toRead], int64(readOff))
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("%w: %v", ErrStreamFailed, err)
	}
	return n, nil
}

// ThreadReader is one thread's view onto an MTReader: its own buffer,
// refilled from the shared stream as it drains.
type ThreadReader struct {
	stream *MTReader
	buf    []byte
	pos    int
	n      int
}

func NewThreadReader(stream *MTReader) *ThreadReader {
	return &ThreadReader{stream: stream, buf: make([]byte, stream.bufSize)}
}

// GetEdge returns the next record, or a Breakpoint update if the shared
// stream has nothing left to hand this thread right now -- either because
// a query barrier is active or the stream is exhausted.
func (t *ThreadReader) GetEdge() (GraphUpdate, error) {
	if t.pos >= t.n {
		n, err := t.stream.readData(t.buf)
		if err != nil {
			return GraphUpdate{}, err
		}
		if n == 0 {
			return GraphUpdate{Breakpoint: true}, nil
		}
		t.n, t.pos = n, 0
	}
	u := GraphUpdate{
		Type: UpdateType(t.buf[t.pos]),
		Src:  binary.LittleEndian.Uint32(t.buf[t.pos+1 : t.pos+5]),
		Dst:  binary.LittleEndian.Uint32(t.buf[t.pos+5 : t.pos+9]),
	}
	t.pos += edgeSize
	return u, nil
}
