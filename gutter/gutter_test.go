package gutter

import (
	"sort"
	"sync"
	"testing"

	"github.com/sketchgraph/streamcc/workerpool"
)

func TestInsertFlushesAtBufSize(t *testing.T) {
	g := NewStandaloneGutters(4, 2, workerpool.New(2))

	var mu sync.Mutex
	var delivered []uint32
	g.RegisterCallback(func(src uint32, dsts []uint32) {
		mu.Lock()
		defer mu.Unlock()
		delivered = append(delivered, dsts...)
	})

	g.Insert(Edge{Src: 0, Dst: 1}, 0)
	g.Insert(Edge{Src: 0, Dst: 2}, 0) // reaches bufSize=2, triggers async flush
	g.ForceFlush()

	mu.Lock()
	defer mu.Unlock()
	sort.Slice(delivered, func(i, j int) bool { return delivered[i] < delivered[j] })
	if len(delivered) != 2 || delivered[0] != 1 || delivered[1] != 2 {
		t.Fatalf("expected [1 2] delivered, got %v", delivered)
	}
}

func TestForceFlushDrainsPartialBucket(t *testing.T) {
	g := NewStandaloneGutters(4, 100, workerpool.New(2))

	var mu sync.Mutex
	var delivered []uint32
	g.RegisterCallback(func(src uint32, dsts []uint32) {
		mu.Lock()
		defer mu.Unlock()
		delivered = append(delivered, dsts...)
	})

	g.Insert(Edge{Src: 1, Dst: 3}, 0)
	g.ForceFlush()

	mu.Lock()
	defer mu.Unlock()
	if len(delivered) != 1 || delivered[0] != 3 {
		t.Fatalf("expected ForceFlush to deliver the partial bucket, got %v", delivered)
	}
}

func TestForceFlushOnEmptyGuttersIsNoOp(t *testing.T) {
	g := NewStandaloneGutters(4, 10, workerpool.New(2))
	called := false
	g.RegisterCallback(func(src uint32, dsts []uint32) { called = true })
	g.ForceFlush()
	if called {
		t.Fatal("ForceFlush on an empty guttering system should not invoke the callback")
	}
}

func TestInsertWithoutCallbackDoesNotPanic(t *testing.T) {
	g := NewStandaloneGutters(4, 1, workerpool.New(2))
	g.Insert(Edge{Src: 0, Dst: 1}, 0)
	g.ForceFlush()
}
