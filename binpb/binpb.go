// Package binpb implements the write_binary full-graph sketch-state dump:
// a header naming the vertex count and shared seed, followed by each
// vertex's supernode blob in order.
package binpb

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sketchgraph/streamcc/supernode"
)

// WriteGraph dumps n supernodes (indexed by vertex id) to w: header
// (u32 num_nodes, u64 seed) followed by each supernode's WriteTo blob in
// vertex order.
func WriteGraph(w io.Writer, seed uint64, nodes []*supernode.Supernode) (int64, error) {
	var hdr [12]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(len(nodes)))
	binary.LittleEndian.PutUint64(hdr[4:12], seed)
	n, err := w.Write(hdr[:])
	if err != nil {
		return int64(n), err
	}
	total := int64(n)
	for v, sn := range nodes {
		if sn == nil {
			return total, fmt.Errorf("binpb: nil supernode at vertex %d", v)
		}
		written, err := sn.WriteTo(w)
		total += written
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ReadGraph reconstructs the supernode array written by WriteGraph. n is
// derived from the decoded vertex count; the returned seed is the shared
// per-level seed every supernode (and every sketch within it) was built
// with, needed by the caller to keep feeding the same sketch family on any
// subsequent updates.
func ReadGraph(r io.Reader) (nodes []*supernode.Supernode, seed uint64, total int64, err error) {
	var hdr [12]byte
	if _, err = io.ReadFull(r, hdr[:]); err != nil {
		return nil, 0, 0, err
	}
	numNodes := binary.LittleEndian.Uint32(hdr[0:4])
	seed = binary.LittleEndian.Uint64(hdr[4:12])
	total = int64(len(hdr))

	nodes = make([]*supernode.Supernode, numNodes)
	for v := uint32(0); v < numNodes; v++ {
		sn, read, err := supernode.ReadFrom(r, numNodes, seed)
		total += read
		if err != nil {
			return nil, 0, total, fmt.Errorf("binpb: reading vertex %d: %w", v, err)
		}
		nodes[v] = sn
	}
	return nodes, seed, total, nil
}
