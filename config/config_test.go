package config

import (
	"strings"
	"testing"

	"github.com/sketchgraph/streamcc/gutter"
	"github.com/sketchgraph/streamcc/workerpool"
)

func TestParseReaderBasic(t *testing.T) {
	text := `
# a comment
buffering_system=standalone
disk_dir=/tmp/streamcc
backup_in_mem=ON
num_groups=4
group_size=8
`
	c, err := ParseReader(strings.NewReader(text))
	if err != nil {
		t.Fatalf("ParseReader failed: %v", err)
	}
	if c.GutterSys != Standalone {
		t.Fatalf("GutterSys = %v, want standalone", c.GutterSys)
	}
	if c.DiskDir != "/tmp/streamcc" {
		t.Fatalf("DiskDir = %q", c.DiskDir)
	}
	if !c.BackupInMem {
		t.Fatal("BackupInMem should be true")
	}
	if c.NumGroups != 4 || c.GroupSize != 8 {
		t.Fatalf("NumGroups=%d GroupSize=%d", c.NumGroups, c.GroupSize)
	}
}

func TestParseReaderOutOfBoundsDefaultsToOne(t *testing.T) {
	text := "num_groups=0\ngroup_size=-3\n"
	c, err := ParseReader(strings.NewReader(text))
	if err != nil {
		t.Fatalf("ParseReader failed: %v", err)
	}
	if c.NumGroups != 1 {
		t.Fatalf("NumGroups = %d, want 1 (defaulted)", c.NumGroups)
	}
	if c.GroupSize != 1 {
		t.Fatalf("GroupSize = %d, want 1 (defaulted)", c.GroupSize)
	}
}

func TestParseReaderRejectsMalformedLine(t *testing.T) {
	if _, err := ParseReader(strings.NewReader("not-a-kv-line")); err == nil {
		t.Fatal("expected an error for a line without '='")
	}
}

func TestParseReaderRejectsBadBackupInMem(t *testing.T) {
	if _, err := ParseReader(strings.NewReader("backup_in_mem=maybe")); err == nil {
		t.Fatal("expected an error for a non-ON/OFF backup_in_mem value")
	}
}

func TestParseReaderTreeFallsBackToStandaloneGutters(t *testing.T) {
	c, err := ParseReader(strings.NewReader("buffering_system=tree\n"))
	if err != nil {
		t.Fatalf("ParseReader failed: %v", err)
	}
	if c.GutterSys != Tree {
		t.Fatalf("GutterSys = %v, want tree (config still records the requested value)", c.GutterSys)
	}
	g := c.NewGuttering(8, workerpool.New(c.WorkerPoolSize()))
	if _, ok := g.(*gutter.StandaloneGutters); !ok {
		t.Fatalf("NewGuttering for tree = %T, want *gutter.StandaloneGutters", g)
	}
}

func TestDefaultConfig(t *testing.T) {
	c := Default()
	if c.GutterSys != Standalone || c.NumGroups != 1 || c.GroupSize != 1 {
		t.Fatalf("unexpected defaults: %+v", c)
	}
}
