package streamgraph

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sketchgraph/streamcc/sketch"
	"github.com/sketchgraph/streamcc/supernode"
)

// scopedUF is a small, single-threaded union-find used only to resolve,
// within one Borůvka round, which active representatives a batch of GOOD
// edges bridges together. It carries no cycle-detection bookkeeping --
// that belongs to the engine's own dsu package -- this one exists purely
// to group representatives ahead of the physical supernode merge step.
type scopedUF struct {
	parent map[uint32]uint32
}

func newScopedUF() *scopedUF { return &scopedUF{parent: make(map[uint32]uint32)} }

func (u *scopedUF) find(x uint32) uint32 {
	if _, ok := u.parent[x]; !ok {
		u.parent[x] = x
	}
	for u.parent[x] != x {
		x = u.parent[x]
	}
	return x
}

func (u *scopedUF) union(a, b uint32) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}

// ConnectedComponents answers a connected-components query. If the eager
// DSU is still valid it answers directly off it; otherwise it runs the
// Borůvka emulation over the supernode stacks. If cont is true, the
// supernode array is snapshotted before sampling and restored afterward
// -- even if sampling fails -- so the graph can keep accepting updates
// once the query returns; if cont is false the graph stays locked and the
// backup is never taken.
func (g *Graph) ConnectedComponents(cont bool) ([]map[uint32]struct{}, error) {
	g.updateLocked.Store(true)
	g.gut.ForceFlush()

	if g.d.Valid() {
		comps := componentsFromDSU(g.d.Components())
		if cont {
			g.updateLocked.Store(false)
		}
		return comps, nil
	}

	if cont {
		if err := g.snapshotNodes(); err != nil {
			g.updateLocked.Store(false)
			return nil, err
		}
	}

	repOf, exhausted, _, runErr := g.runBoruvka(nil)

	if cont {
		if restoreErr := g.restoreNodes(); restoreErr != nil {
			if runErr != nil {
				return nil, fmt.Errorf("streamgraph: %v (restore also failed: %w)", runErr, restoreErr)
			}
			return nil, restoreErr
		}
		g.updateLocked.Store(false)
	}

	if runErr != nil {
		return nil, runErr
	}
	comps := componentsFromRepOf(repOf, g.n)
	if len(exhausted) > 0 {
		return comps, &PartialResultError{Components: comps, Exhausted: exhausted}
	}
	g.hooks.VerifyCC()
	return comps, nil
}

// PointQuery reports whether a and b are currently connected, stopping
// the Borůvka driver as soon as a round places them in the same group
// rather than running it to full completion. Like a continuation query,
// it snapshots the supernode array before sampling and restores it
// afterward, so the graph keeps accepting updates once it returns.
func (g *Graph) PointQuery(a, b uint32) (bool, error) {
	g.updateLocked.Store(true)
	defer g.updateLocked.Store(false)
	g.gut.ForceFlush()

	if g.d.Valid() {
		return g.d.Connected(a, b), nil
	}

	if err := g.snapshotNodes(); err != nil {
		return false, err
	}
	repOf, _, _, err := g.runBoruvka(func(repOf []uint32) bool {
		return repOf[a] == repOf[b]
	})
	if restoreErr := g.restoreNodes(); restoreErr != nil && err == nil {
		err = restoreErr
	}
	if err != nil {
		return false, err
	}
	return repOf[a] == repOf[b], nil
}

func componentsFromDSU(comps map[uint32][]uint32) []map[uint32]struct{} {
	out := make([]map[uint32]struct{}, 0, len(comps))
	for _, members := range comps {
		set := make(map[uint32]struct{}, len(members))
		for _, v := range members {
			set[v] = struct{}{}
		}
		out = append(out, set)
	}
	return out
}

func componentsFromRepOf(repOf []uint32, n uint32) []map[uint32]struct{} {
	byRep := make(map[uint32][]uint32)
	for v := uint32(0); v < n; v++ {
		byRep[repOf[v]] = append(byRep[repOf[v]], v)
	}
	out := make([]map[uint32]struct{}, 0, len(byRep))
	for _, members := range byRep {
		set := make(map[uint32]struct{}, len(members))
		for _, v := range members {
			set[v] = struct{}{}
		}
		out = append(out, set)
	}
	return out
}

type sampleOutcome struct {
	rep     uint32
	outcome supernode.Outcome
	edge    sketch.Edge
}

// runBoruvka is the Borůvka emulation: round by round, sample every
// active representative in parallel, union-find which representatives a
// GOOD edge bridges together, physically merge each group's supernodes
// into its minimum-id member, and drop ZERO'd-out representatives from
// future rounds. Every remaining FAIL representative keeps its own
// sampling cursor, so it resumes at the next column (or level) on its
// next turn rather than restarting. The loop terminates because every
// representative's sketch stack is finite: a representative that never
// produces GOOD or ZERO eventually exhausts its whole stack and is
// retired as Exhausted.
//
// If earlyStop is non-nil it is evaluated against the current membership
// map after every round's merges, and sampling stops the moment it
// returns true -- used by PointQuery to avoid running the driver to
// completion just to answer one pair.
func (g *Graph) runBoruvka(earlyStop func(repOf []uint32) bool) (repOf []uint32, exhausted []uint32, stoppedEarly bool, err error) {
	started := time.Now()
	defer func() {
		log.Debug().Dur("elapsed", time.Since(started)).Msg("streamgraph: boruvka driver finished")
	}()

	repOf = make([]uint32, g.n)
	members := make([][]uint32, g.n)
	for v := uint32(0); v < g.n; v++ {
		repOf[v] = v
		members[v] = []uint32{v}
	}

	active := make([]uint32, g.n)
	for v := range active {
		active[v] = uint32(v)
	}

	round := 0
	for len(active) > 0 {
		round++
		results := make([]sampleOutcome, len(active))
		var wg sync.WaitGroup
		for i, r := range active {
			wg.Add(1)
			i, r := i, r
			g.pool.Submit(func() {
				defer wg.Done()
				outcome, e := g.nodes[r].Sample()
				results[i] = sampleOutcome{rep: r, outcome: outcome, edge: e}
			})
		}
		wg.Wait()

		if g.hooks.failRound != 0 && round == g.hooks.failRound {
			return nil, nil, false, fmt.Errorf("streamgraph: injected failure at Borůvka round %d", round)
		}
		for _, res := range results {
			g.hooks.VerifySample(round, res.rep, res.outcome)
		}
		g.hooks.VerifyRound(round, len(active))

		bridge := newScopedUF()
		outcomeOf := make(map[uint32]supernode.Outcome, len(active))
		for _, res := range results {
			outcomeOf[res.rep] = res.outcome
			if res.outcome != supernode.GOOD {
				continue
			}
			ru, rv := repOf[res.edge.Src], repOf[res.edge.Dst]
			if ru != rv {
				bridge.union(ru, rv)
			}
		}

		groups := make(map[uint32][]uint32)
		for _, r := range active {
			groups[bridge.find(r)] = append(groups[bridge.find(r)], r)
		}

		var next []uint32
		for _, group := range groups {
			if len(group) > 1 {
				canonical := group[0]
				for _, r := range group[1:] {
					if r < canonical {
						canonical = r
					}
				}
				for _, r := range group {
					if r == canonical {
						continue
					}
					if err := g.nodes[canonical].Merge(g.nodes[r]); err != nil {
						return nil, nil, false, fmt.Errorf("streamgraph: merging representative %d into %d: %w", r, canonical, err)
					}
					for _, v := range members[r] {
						repOf[v] = canonical
					}
					members[canonical] = append(members[canonical], members[r]...)
					members[r] = nil
				}
				next = append(next, canonical)
				continue
			}

			rep := group[0]
			switch outcomeOf[rep] {
			case supernode.ZERO:
				// definitively done: no cross-cut edge remains, freeze it.
			case supernode.Exhausted:
				exhausted = append(exhausted, rep)
			default: // FAIL: retry with the next column or level next round.
				next = append(next, rep)
			}
		}

		active = next

		if earlyStop != nil && earlyStop(repOf) {
			return repOf, exhausted, true, nil
		}
	}

	return repOf, exhausted, false, nil
}
