package streamio

import (
	"encoding/binary"
	"io"
	"os"
	"testing"
)

func writeTestStream(t *testing.T, numNodes uint32, records [][3]uint32) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "stream-*.bin")
	if err != nil {
		t.Fatalf("CreateTemp failed: %v", err)
	}
	defer f.Close()

	var hdr [headerSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], numNodes)
	binary.LittleEndian.PutUint64(hdr[4:12], uint64(len(records)))
	if _, err := f.Write(hdr[:]); err != nil {
		t.Fatalf("writing header failed: %v", err)
	}

	for _, rec := range records {
		var buf [edgeSize]byte
		buf[0] = byte(rec[0])
		binary.LittleEndian.PutUint32(buf[1:5], rec[1])
		binary.LittleEndian.PutUint32(buf[5:9], rec[2])
		if _, err := f.Write(buf[:]); err != nil {
			t.Fatalf("writing record failed: %v", err)
		}
	}
	return f.Name()
}

func TestReaderSequentialGetEdge(t *testing.T) {
	records := [][3]uint32{
		{uint32(InsertUpdate), 1, 2},
		{uint32(InsertUpdate), 3, 4},
		{uint32(DeleteUpdate), 1, 2},
	}
	path := writeTestStream(t, 10, records)

	r, err := Open(path, 4096)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	if r.Nodes() != 10 || r.Edges() != uint64(len(records)) {
		t.Fatalf("header mismatch: nodes=%d edges=%d", r.Nodes(), r.Edges())
	}

	for i, want := range records {
		got, err := r.GetEdge()
		if err != nil {
			t.Fatalf("GetEdge(%d) failed: %v", i, err)
		}
		if uint32(got.Type) != want[0] || got.Src != want[1] || got.Dst != want[2] {
			t.Fatalf("GetEdge(%d) = %+v, want type=%d src=%d dst=%d", i, got, want[0], want[1], want[2])
		}
	}
	if _, err := r.GetEdge(); err != io.EOF {
		t.Fatalf("expected io.EOF after the last record, got %v", err)
	}
}

func TestReaderSmallBufferForcesRefill(t *testing.T) {
	records := [][3]uint32{
		{uint32(InsertUpdate), 1, 2},
		{uint32(InsertUpdate), 3, 4},
		{uint32(InsertUpdate), 5, 6},
	}
	path := writeTestStream(t, 10, records)

	// Buffer sized for exactly one record forces a refill on every call.
	r, err := Open(path, edgeSize)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	for i, want := range records {
		got, err := r.GetEdge()
		if err != nil {
			t.Fatalf("GetEdge(%d) failed: %v", i, err)
		}
		if got.Src != want[1] || got.Dst != want[2] {
			t.Fatalf("GetEdge(%d) = %+v", i, got)
		}
	}
}

func TestMTReaderSingleThreadDrainsAllRecords(t *testing.T) {
	records := make([][3]uint32, 50)
	for i := range records {
		records[i] = [3]uint32{uint32(InsertUpdate), uint32(i), uint32(i + 1)}
	}
	path := writeTestStream(t, 100, records)

	m, err := OpenMT(path, 64) // smaller than the full record set, forces multiple reads
	if err != nil {
		t.Fatalf("OpenMT failed: %v", err)
	}
	defer m.Close()

	tr := NewThreadReader(m)
	count := 0
	for {
		u, err := tr.GetEdge()
		if err != nil {
			t.Fatalf("GetEdge failed: %v", err)
		}
		if u.Breakpoint {
			break
		}
		count++
	}
	if count != len(records) {
		t.Fatalf("drained %d records, want %d", count, len(records))
	}
}

func TestMTReaderOnDemandQueryBlocksThenResumes(t *testing.T) {
	records := make([][3]uint32, 20)
	for i := range records {
		records[i] = [3]uint32{uint32(InsertUpdate), uint32(i), uint32(i + 1)}
	}
	path := writeTestStream(t, 100, records)

	m, err := OpenMT(path, 4096)
	if err != nil {
		t.Fatalf("OpenMT failed: %v", err)
	}
	defer m.Close()

	m.OnDemandQuery()
	tr := NewThreadReader(m)
	u, err := tr.GetEdge()
	if err != nil {
		t.Fatalf("GetEdge failed: %v", err)
	}
	if !u.Breakpoint {
		t.Fatal("expected a BREAKPOINT while query_block is set")
	}

	m.PostQueryResume()
	u, err = tr.GetEdge()
	if err != nil {
		t.Fatalf("GetEdge failed: %v", err)
	}
	if u.Breakpoint {
		t.Fatal("expected the stream to resume after PostQueryResume")
	}
}

func TestMTReaderRegisterQueryRejectsPastOffset(t *testing.T) {
	records := make([][3]uint32, 20)
	for i := range records {
		records[i] = [3]uint32{uint32(InsertUpdate), uint32(i), uint32(i + 1)}
	}
	path := writeTestStream(t, 100, records)

	m, err := OpenMT(path, 4096)
	if err != nil {
		t.Fatalf("OpenMT failed: %v", err)
	}
	defer m.Close()

	if !m.RegisterQuery(5) {
		t.Fatal("registering a query ahead of the current offset should succeed")
	}
	if m.RegisterQuery(0) {
		t.Fatal("registering a query at or behind the current stream offset should be rejected")
	}
}

func TestMTReaderRegisteredQueryTruncatesRead(t *testing.T) {
	records := make([][3]uint32, 20)
	for i := range records {
		records[i] = [3]uint32{uint32(InsertUpdate), uint32(i), uint32(i + 1)}
	}
	path := writeTestStream(t, 100, records)

	m, err := OpenMT(path, 4096)
	if err != nil {
		t.Fatalf("OpenMT failed: %v", err)
	}
	defer m.Close()

	if !m.RegisterQuery(5) {
		t.Fatal("expected RegisterQuery(5) to succeed")
	}

	tr := NewThreadReader(m)
	count := 0
	for {
		u, err := tr.GetEdge()
		if err != nil {
			t.Fatalf("GetEdge failed: %v", err)
		}
		if u.Breakpoint {
			break
		}
		count++
	}
	if count != 5 {
		t.Fatalf("expected exactly 5 records before the registered query barrier, got %d", count)
	}
}
