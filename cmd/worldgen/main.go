package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"terragen.ai/internal/catalogs"
	"terragen.ai/internal/persistence/indexdb"
	persistlog "terragen.ai/internal/persistence/log"
	"terragen.ai/internal/terrain/cache"
	"terragen.ai/internal/terrain/chunkcodec"
	"terragen.ai/internal/terrain/coord"
	"terragen.ai/internal/terrain/noise"
	"terragen.ai/internal/terrain/pipeline"
	"terragen.ai/internal/terrain/profile"
	"terragen.ai/internal/terrain/scheduler"
	"terragen.ai/internal/terrain/structure"
	"terragen.ai/internal/tuning"
)

func main() {
	var (
		configDir   = flag.String("configs", "./configs", "config directory (blocks.json, schematics/)")
		profilePath = flag.String("profile", "", "generation profile (default: <configs>/profile.yaml)")
		tuningPath  = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dataDir     = flag.String("data", "./data", "runtime data directory")
		seed        = flag.Int64("seed", 1337, "world seed")
		radius      = flag.Int("radius", 8, "generate chunks within this many chunks of -center")
		center      = flag.String("center", "0,0", "center chunk as x,z")
		verify      = flag.Bool("verify", false, "compare digests against the index instead of overwriting them")
		dumpPath    = flag.String("dump", "", "write encoded chunks, in host block ids, to this file (optional)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[worldgen] ", log.LstdFlags|log.Lmicroseconds)

	var cx, cz int
	if _, err := fmt.Sscanf(*center, "%d,%d", &cx, &cz); err != nil {
		logger.Fatalf("bad -center %q: %v", *center, err)
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	pp := strings.TrimSpace(*profilePath)
	if pp == "" {
		pp = filepath.Join(*configDir, "profile.yaml")
	}
	prof, err := profile.LoadFile(pp, profile.Options{
		Seed:       *seed,
		Palette:    &cats.Blocks,
		Schematics: cats.Schematics.ByID,
	})
	if err != nil {
		logger.Fatalf("load profile: %v", err)
	}
	logger.Printf("profile %s digest=%s seed=%d dims=%+v climate=%v", prof.Name(), prof.Digest(), prof.Seed(), prof.Dimensions(), prof.ClimateAxes())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	idx, err := indexdb.OpenSQLite(underData(*dataDir, tune.IndexPath))
	if err != nil {
		logger.Fatalf("open index: %v", err)
	}
	defer idx.Close()
	if *verify {
		// Host block ids in dumps depend on the catalog; say so when it moved.
		if prev, ok, err := idx.CatalogDigest(ctx, "blocks_palette"); err == nil && ok && prev != cats.Blocks.PaletteDigest {
			logger.Printf("verify: block palette changed since last run (%s -> %s)", prev, cats.Blocks.PaletteDigest)
		}
	}
	if err := idx.UpsertProfile(ctx, prof); err != nil {
		logger.Printf("index: upsert profile: %v", err)
	}
	if err := idx.UpsertCatalogs(ctx, cats, tune); err != nil {
		logger.Printf("index: upsert catalogs: %v", err)
	}

	faultLog := persistlog.NewFaultLogger(underData(*dataDir, tune.FaultLogDir))
	defer faultLog.Close()

	var sinks scheduler.MultiSink
	var ver *verifier
	if *verify {
		recorded, err := idx.Digests(ctx, prof.Seed(), prof.Digest())
		if err != nil {
			logger.Fatalf("load recorded digests: %v", err)
		}
		logger.Printf("verify: %d recorded chunks", len(recorded))
		ver = newVerifier(recorded, idx, logger)
		sinks = append(sinks, ver)
	} else {
		sinks = append(sinks, idx)
	}

	var (
		dump     *bufio.Writer
		dumpSink *chunkcodec.EncodedSink
	)
	if *dumpPath != "" {
		f, err := os.Create(*dumpPath)
		if err != nil {
			logger.Fatalf("create dump: %v", err)
		}
		defer f.Close()
		dump = bufio.NewWriterSize(f, 1<<20)
		dumpSink = chunkcodec.NewEncodedSink(dump, &cats.Blocks)
		sinks = append(sinks, dumpSink)
	}

	genOpts := pipeline.Options{
		Logger: logger,
		Faults: pipeline.FaultRecorders{faultLog, idx},
	}
	var slabs *noise.SlabCache
	if tune.CacheEnabled {
		slabs = cache.New[[]float64](cache.Config{Capacity: tune.CacheCapacity, Shards: tune.CacheShards})
		genOpts.Cache = slabs
		if tune.PlacementCapacity > 0 {
			genOpts.Placements = cache.New[[]structure.Placement](cache.Config{Capacity: tune.PlacementCapacity, Shards: tune.CacheShards})
		}
	}
	gen := pipeline.New(prof, genOpts)

	pool := scheduler.NewPool(gen, sinks, scheduler.Config{
		Workers:   tune.Workers,
		QueueSize: tune.QueueSize,
		Logger:    logger,
	})

	start := time.Now()
	coords := spiral(coord.ChunkCoord{X: cx, Z: cz}, *radius)
	tickets := make([]*scheduler.Ticket, 0, len(coords))
	for _, c := range coords {
		t, err := pool.SubmitWait(ctx, c)
		if err != nil {
			logger.Printf("submit stopped at chunk=%s: %v", c, err)
			break
		}
		tickets = append(tickets, t)
	}
	if ctx.Err() != nil {
		for _, t := range tickets {
			t.Cancel()
		}
	}
	if err := pool.Close(); err != nil {
		logger.Printf("pool: %v", err)
	}
	if dump != nil {
		if err := dump.Flush(); err != nil {
			logger.Printf("flush dump: %v", err)
		}
		logger.Printf("dump: %d chunks written to %s", dumpSink.Count(), *dumpPath)
	}

	st := pool.Stats()
	logger.Printf("done in %s: submitted=%d completed=%d failed=%d canceled=%d",
		time.Since(start).Round(time.Millisecond), st.Submitted, st.Completed, st.Failed, st.Canceled)
	if slabs != nil {
		cs := slabs.Stats()
		logger.Printf("slab cache: hits=%d misses=%d coalesced=%d evictions=%d size=%d",
			cs.Hits, cs.Misses, cs.Coalesced, cs.Evictions, cs.Size)
	}
	is := idx.Stats()
	if is.DropChunkTotal > 0 || is.DropFaultTotal > 0 {
		logger.Printf("index dropped chunks=%d faults=%d", is.DropChunkTotal, is.DropFaultTotal)
	}

	exit := 0
	if st.Failed > 0 {
		exit = 1
	}
	if ver != nil {
		logger.Printf("verify: matched=%d new=%d mismatched=%d", ver.matched.Load(), ver.fresh.Load(), ver.mismatch.Load())
		if bad := ver.Mismatched(); len(bad) > 0 {
			exit = 3
		}
	}
	if exit != 0 {
		// Deferred closers must still flush the index and fault log.
		_ = faultLog.Close()
		_ = idx.Close()
		os.Exit(exit)
	}
}

// underData resolves p against the data directory unless it is absolute.
func underData(dataDir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dataDir, p)
}
