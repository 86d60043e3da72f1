// Command streamcc drives the streaming connected-components engine over
// a binary graph update stream: parse flags, load or build the graph,
// replay the stream, and report connected components (or answer a single
// point query) at the end.
package main

import (
	"flag"
	"fmt"
	"runtime"

	"github.com/rs/zerolog/log"

	"github.com/sketchgraph/streamcc/config"
	"github.com/sketchgraph/streamcc/streamgraph"
	"github.com/sketchgraph/streamcc/streamio"
	"github.com/sketchgraph/streamcc/xlog"
)

func main() {
	streamPtr := flag.String("s", "", "Binary graph update stream file.")
	confPtr := flag.String("conf", "", "Path to a streaming-engine config file (key=value). Defaults baked in if omitted.")
	loadPtr := flag.String("load", "", "Load a previously dumped sketch state (from -dump) instead of replaying from scratch.")
	dumpPtr := flag.String("dump", "", "If set, write the final sketch state to this path after the stream finishes.")
	threadPtr := flag.Int("t", runtime.NumCPU(), "Thread count for concurrent stream insertion.")
	bufPtr := flag.Uint("b", 1<<20, "Per-thread read buffer size in bytes.")
	queryAPtr := flag.Int("qa", -1, "Point-query endpoint A. Set together with -qb to answer one query instead of dumping full components.")
	queryBPtr := flag.Int("qb", -1, "Point-query endpoint B.")
	debugPtr := flag.Int("debug", 0, "0 for info, 1 for debug logging.")
	flag.Parse()

	xlog.SetLevel(*debugPtr)
	xlog.SetConsole(false)

	if *streamPtr == "" && *loadPtr == "" {
		log.Fatal().Msg("streamcc: one of -s (stream file) or -load (sketch dump) is required")
	}

	cfg := config.Default()
	if *confPtr != "" {
		parsed, err := config.Parse(*confPtr)
		if err != nil {
			log.Fatal().Err(err).Msg("streamcc: parsing config file")
		}
		cfg = parsed
	}

	var g *streamgraph.Graph
	var err error
	if *loadPtr != "" {
		g, err = streamgraph.LoadGraph(*loadPtr, cfg, *threadPtr)
		if err != nil {
			log.Fatal().Err(err).Msg("streamcc: loading sketch dump")
		}
	}

	if *streamPtr != "" {
		g, err = replayStream(*streamPtr, cfg, *threadPtr, uint32(*bufPtr), g)
		if err != nil {
			log.Fatal().Err(err).Msg("streamcc: replaying stream")
		}
	}
	defer g.Close()

	if *dumpPtr != "" {
		if err := g.WriteBinary(*dumpPtr); err != nil {
			log.Fatal().Err(err).Msg("streamcc: writing sketch dump")
		}
		log.Info().Str("path", *dumpPtr).Msg("streamcc: wrote sketch dump")
	}

	if *queryAPtr >= 0 && *queryBPtr >= 0 {
		connected, err := g.PointQuery(uint32(*queryAPtr), uint32(*queryBPtr))
		if err != nil {
			log.Fatal().Err(err).Msg("streamcc: point query failed")
		}
		fmt.Printf("%d %d connected: %v\n", *queryAPtr, *queryBPtr, connected)
		return
	}

	comps, err := g.ConnectedComponents(false)
	if err != nil {
		log.Fatal().Err(err).Msg("streamcc: connected components query failed")
	}
	log.Info().Int("num_components", len(comps)).Msg("streamcc: connected components computed")
	for i, c := range comps {
		fmt.Printf("component %d: %d vertices\n", i, len(c))
	}
}

// replayStream opens path and feeds every record into g (constructing a
// fresh Graph first if g is nil, sized off the stream's own header), one
// inserter goroutine per thread, joined before returning.
func replayStream(path string, cfg *config.Config, threads int, bufSize uint32, g *streamgraph.Graph) (*streamgraph.Graph, error) {
	m, err := streamio.OpenMT(path, bufSize)
	if err != nil {
		return g, err
	}
	defer m.Close()

	if g == nil {
		g, err = streamgraph.NewGraph(m.Nodes(), cfg, threads)
		if err != nil {
			return nil, err
		}
	}

	if threads < 1 {
		threads = 1
	}
	errs := make(chan error, threads)
	for tid := 0; tid < threads; tid++ {
		go func(tid int) {
			tr := streamio.NewThreadReader(m)
			for {
				rec, err := tr.GetEdge()
				if err != nil {
					errs <- err
					return
				}
				if rec.Breakpoint {
					errs <- nil
					return
				}
				updType := streamgraph.InsertUpdate
				if rec.Type == streamio.DeleteUpdate {
					updType = streamgraph.DeleteUpdate
				}
				if uerr := g.Update(streamgraph.Update{Type: updType, Src: rec.Src, Dst: rec.Dst}, tid); uerr != nil {
					log.Warn().Err(uerr).Msg("streamcc: update rejected")
				}
			}
		}(tid)
	}

	for i := 0; i < threads; i++ {
		if err := <-errs; err != nil {
			return g, err
		}
	}
	log.Info().Uint64("edges", m.Edges()).Msg("streamcc: stream replay complete")
	return g, nil
}
