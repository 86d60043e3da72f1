package streamgraph

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sketchgraph/streamcc/binpb"
	"github.com/sketchgraph/streamcc/supernode"
)

// snapshotNodes saves the current supernode array so ConnectedComponents
// can restore it after a continuation query, either by cloning every
// supernode in memory or by dumping them to disk, per cfg.BackupInMem --
// the same choice the original engine's graph_configuration exposes.
func (g *Graph) snapshotNodes() error {
	g.backupMu.Lock()
	defer g.backupMu.Unlock()

	if g.cfg.BackupInMem {
		mem := make([]*supernode.Supernode, len(g.nodes))
		for v, sn := range g.nodes {
			mem[v] = sn.Clone()
		}
		g.backupMem = mem
		return nil
	}

	path := filepath.Join(g.cfg.DiskDir, "streamcc-backup-"+strconv.Itoa(int(g.n))+".bin")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("streamgraph: creating backup file: %w", err)
	}
	defer f.Close()
	if _, err := binpb.WriteGraph(f, g.seed, g.nodes); err != nil {
		return fmt.Errorf("streamgraph: writing backup: %w", err)
	}
	g.backupPath = path
	return nil
}

// restoreNodes reinstates the supernode array taken by snapshotNodes and
// discards the backup. Called unconditionally after a continuation query,
// whether Borůvka sampling succeeded or failed, so the graph is always
// left consuming updates against the pre-query sketch state.
func (g *Graph) restoreNodes() error {
	g.backupMu.Lock()
	defer g.backupMu.Unlock()

	if g.cfg.BackupInMem {
		if g.backupMem == nil {
			return fmt.Errorf("streamgraph: no in-memory backup to restore")
		}
		g.nodes = g.backupMem
		g.backupMem = nil
		return nil
	}

	if g.backupPath == "" {
		return fmt.Errorf("streamgraph: no backup file to restore")
	}
	f, err := os.Open(g.backupPath)
	if err != nil {
		return fmt.Errorf("streamgraph: opening backup file: %w", err)
	}
	nodes, _, _, err := binpb.ReadGraph(f)
	f.Close()
	os.Remove(g.backupPath)
	g.backupPath = ""
	if err != nil {
		return fmt.Errorf("streamgraph: reading backup: %w", err)
	}
	g.nodes = nodes
	return nil
}
