package streamgraph

import (
	"errors"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/sketchgraph/streamcc/config"
)

func newTestGraph(t *testing.T, n uint32) *Graph {
	t.Helper()
	g, err := NewGraph(n, config.Default(), 1)
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })
	return g
}

func insert(t *testing.T, g *Graph, src, dst uint32) {
	t.Helper()
	require.NoError(t, g.Update(Update{Type: InsertUpdate, Src: src, Dst: dst}, 0))
}

func canonicalize(comps []map[uint32]struct{}) [][]uint32 {
	out := make([][]uint32, 0, len(comps))
	for _, set := range comps {
		members := make([]uint32, 0, len(set))
		for v := range set {
			members = append(members, v)
		}
		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
		out = append(out, members)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

func TestNewGraphSingletonRejectsSecondOpen(t *testing.T) {
	g := newTestGraph(t, 4)
	_, err := NewGraph(4, config.Default(), 1)
	require.ErrorIs(t, err, ErrMultipleGraphs)

	require.NoError(t, g.Close())

	g2, err := NewGraph(4, config.Default(), 1)
	require.NoError(t, err)
	g2.Close()
}

func TestConnectedComponentsFastPathFromValidDSU(t *testing.T) {
	g := newTestGraph(t, 6)
	insert(t, g, 0, 1)
	insert(t, g, 1, 2)
	insert(t, g, 3, 4)

	comps, err := g.ConnectedComponents(false)
	require.NoError(t, err)
	require.True(t, equalPartitions(canonicalize(comps), [][]uint32{{0, 1, 2}, {3, 4}, {5}}))
}

func TestConnectedComponentsRunsBoruvkaAfterCycle(t *testing.T) {
	g := newTestGraph(t, 6)
	insert(t, g, 0, 1)
	insert(t, g, 1, 2)
	insert(t, g, 0, 2) // closes a cycle, invalidates the eager DSU
	insert(t, g, 3, 4)

	require.False(t, g.d.Valid(), "expected the eager DSU to be invalidated by the cycle-closing insert")

	comps, err := g.ConnectedComponents(true)
	require.NoError(t, err)
	require.True(t, equalPartitions(canonicalize(comps), [][]uint32{{0, 1, 2}, {3, 4}, {5}}))

	// cont=true must leave the graph accepting updates again.
	require.NoError(t, g.Update(Update{Type: InsertUpdate, Src: 4, Dst: 5}, 0))
}

func TestConnectedComponentsContinuationRestoresOnInjectedFailure(t *testing.T) {
	g := newTestGraph(t, 6)
	insert(t, g, 0, 1)
	insert(t, g, 1, 2)
	insert(t, g, 0, 2) // invalidate the eager DSU so the query runs Borůvka

	g.hooks.failRound = 2

	_, err := g.ConnectedComponents(true)
	require.Error(t, err, "expected the injected round-2 failure to surface as an error")

	require.False(t, g.updateLocked.Load(), "expected the graph to be unlocked for updates after a failed continuation query")
	require.Nil(t, g.backupMem, "expected the in-memory backup to have been consumed by restoreNodes")

	g.hooks.failRound = 0
	comps, err := g.ConnectedComponents(false)
	require.NoError(t, err)
	require.True(t, equalPartitions(canonicalize(comps), [][]uint32{{0, 1, 2}, {3}, {4}, {5}}))
}

func TestPointQueryMatchesConnectedComponents(t *testing.T) {
	g := newTestGraph(t, 6)
	insert(t, g, 0, 1)
	insert(t, g, 1, 2)
	insert(t, g, 0, 2)
	insert(t, g, 3, 4)

	connected, err := g.PointQuery(0, 2)
	require.NoError(t, err)
	require.True(t, connected)

	disconnected, err := g.PointQuery(0, 3)
	require.NoError(t, err)
	require.False(t, disconnected)
}

func TestWriteBinaryLoadGraphRoundTrip(t *testing.T) {
	g := newTestGraph(t, 5)
	insert(t, g, 0, 1)
	insert(t, g, 1, 2)

	path := t.TempDir() + "/dump.bin"
	require.NoError(t, g.WriteBinary(path))
	require.NoError(t, g.Close())

	g2, err := LoadGraph(path, config.Default(), 1)
	require.NoError(t, err)
	defer g2.Close()

	require.False(t, g2.d.Valid(), "expected a freshly loaded graph's DSU to start invalid")
	comps, err := g2.ConnectedComponents(false)
	require.NoError(t, err)
	require.True(t, equalPartitions(canonicalize(comps), [][]uint32{{0, 1, 2}, {3}, {4}}))
}

func TestConnectedComponentsAgainstGonumOracle(t *testing.T) {
	const n = 24
	rng := rand.New(rand.NewSource(7))

	g := newTestGraph(t, n)
	ref := simple.NewUndirectedGraph()
	for v := int64(0); v < n; v++ {
		ref.AddNode(simple.Node(v))
	}

	// Updates toggle an edge, so a pair inserted an even number of times
	// cancels out; the oracle gets only the pairs with odd multiplicity.
	odd := make(map[[2]uint32]bool)
	for i := 0; i < 40; i++ {
		a := uint32(rng.Intn(n))
		b := uint32(rng.Intn(n))
		if a == b {
			continue
		}
		insert(t, g, a, b)
		lo, hi := a, b
		if lo > hi {
			lo, hi = hi, lo
		}
		odd[[2]uint32{lo, hi}] = !odd[[2]uint32{lo, hi}]
	}
	for e, isOdd := range odd {
		if isOdd {
			ref.SetEdge(simple.Edge{F: simple.Node(e[0]), T: simple.Node(e[1])})
		}
	}

	got, err := g.ConnectedComponents(false)
	if err != nil {
		var partial *PartialResultError
		require.True(t, errors.As(err, &partial), "ConnectedComponents failed: %v", err)
		got = partial.Components
	}
	gotPartition := canonicalize(got)

	var wantPartition [][]uint32
	for _, nodes := range topo.ConnectedComponents(ref) {
		members := make([]uint32, 0, len(nodes))
		for _, nd := range nodes {
			members = append(members, uint32(nd.ID()))
		}
		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
		wantPartition = append(wantPartition, members)
	}
	sort.Slice(wantPartition, func(i, j int) bool { return wantPartition[i][0] < wantPartition[j][0] })

	require.True(t, equalPartitions(gotPartition, wantPartition),
		"streamgraph partition %v does not match gonum oracle partition %v", gotPartition, wantPartition)
}

func equalPartitions(a, b [][]uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				return false
			}
		}
	}
	return true
}

func TestUpdateRejectedWhileLocked(t *testing.T) {
	g := newTestGraph(t, 4)
	g.updateLocked.Store(true)
	err := g.Update(Update{Type: InsertUpdate, Src: 0, Dst: 1}, 0)
	require.ErrorIs(t, err, ErrUpdateLocked)
}

func TestUpdateRejectsSelfEdge(t *testing.T) {
	g := newTestGraph(t, 4)
	err := g.Update(Update{Type: InsertUpdate, Src: 2, Dst: 2}, 0)
	require.Error(t, err, "expected a self-edge update to be rejected")
}

func TestDeleteUpdateInvalidatesEagerDSU(t *testing.T) {
	g := newTestGraph(t, 4)
	insert(t, g, 0, 1)
	require.True(t, g.d.Valid(), "expected the DSU to still be valid after one clean insert")

	require.NoError(t, g.Update(Update{Type: DeleteUpdate, Src: 0, Dst: 1}, 0))
	require.False(t, g.d.Valid(), "expected a delete update to invalidate the eager DSU")
}
