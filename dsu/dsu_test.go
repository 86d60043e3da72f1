package dsu

import (
	"sync"
	"testing"
)

func TestUnionOnEdgeConnects(t *testing.T) {
	d := New(10)
	d.UnionOnEdge(1, 2)
	d.UnionOnEdge(2, 3)

	if !d.Connected(1, 3) {
		t.Fatal("1 and 3 should be connected through 2")
	}
	if d.Connected(1, 5) {
		t.Fatal("1 and 5 should not be connected")
	}
	if !d.Valid() {
		t.Fatal("a tree with no repeated or cycle-closing edge should stay valid")
	}
}

func TestUnionOnEdgeDetectsDuplicateEdge(t *testing.T) {
	d := New(10)
	d.UnionOnEdge(4, 7)
	d.UnionOnEdge(4, 7)

	if !d.Connected(4, 7) {
		t.Fatal("4 and 7 should be connected")
	}
	if d.Valid() {
		t.Fatal("observing the same edge twice should invalidate the DSU")
	}
}

func TestUnionOnEdgeDetectsIndirectCycle(t *testing.T) {
	d := New(10)
	d.UnionOnEdge(1, 2)
	d.UnionOnEdge(2, 3)
	d.UnionOnEdge(1, 3)

	if d.Valid() {
		t.Fatal("a third edge closing a triangle should invalidate the DSU even though (1,3) was never seen before")
	}
}

func TestInvalidate(t *testing.T) {
	d := New(4)
	if !d.Valid() {
		t.Fatal("a fresh DSU should start valid")
	}
	d.Invalidate()
	if d.Valid() {
		t.Fatal("Invalidate should clear validity unconditionally")
	}
}

func TestComponentsGroupsByRoot(t *testing.T) {
	d := New(6)
	d.UnionOnEdge(0, 1)
	d.UnionOnEdge(1, 2)
	d.UnionOnEdge(3, 4)

	comps := d.Components()
	byMember := make(map[uint32]uint32)
	for root, members := range comps {
		for _, m := range members {
			byMember[m] = root
		}
	}
	if byMember[0] != byMember[1] || byMember[1] != byMember[2] {
		t.Fatal("0, 1, 2 should share a root")
	}
	if byMember[3] != byMember[4] {
		t.Fatal("3, 4 should share a root")
	}
	if byMember[5] == byMember[0] {
		t.Fatal("5 should be its own component")
	}
}

func TestConcurrentUnionsConverge(t *testing.T) {
	const n = 200
	d := New(n)

	var wg sync.WaitGroup
	for i := uint32(0); i < n-1; i++ {
		wg.Add(1)
		go func(i uint32) {
			defer wg.Done()
			d.UnionOnEdge(i, i+1)
		}(i)
	}
	wg.Wait()

	root := d.Find(0)
	for v := uint32(1); v < n; v++ {
		if d.Find(v) != root {
			t.Fatalf("vertex %d did not end up in the single spanning component", v)
		}
	}
}
