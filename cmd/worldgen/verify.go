package main

import (
	"log"
	"sync"
	"sync/atomic"

	"terragen.ai/internal/terrain/coord"
	"terragen.ai/internal/terrain/pipeline"
	"terragen.ai/internal/terrain/scheduler"
)

// verifier compares delivered chunks with digests from an earlier run.
// Chunks with no recorded digest are passed on to next so they get recorded.
type verifier struct {
	recorded map[coord.ChunkCoord]string
	next     scheduler.Sink
	logger   *log.Logger

	matched  atomic.Int64
	fresh    atomic.Int64
	mismatch atomic.Int64

	mu         sync.Mutex
	mismatched []coord.ChunkCoord
}

func newVerifier(recorded map[coord.ChunkCoord]string, next scheduler.Sink, logger *log.Logger) *verifier {
	return &verifier{recorded: recorded, next: next, logger: logger}
}

func (v *verifier) Deliver(res *pipeline.ChunkResult) error {
	want, ok := v.recorded[res.Coord]
	if !ok {
		v.fresh.Add(1)
		if v.next == nil {
			return nil
		}
		return v.next.Deliver(res)
	}
	got := res.Digest()
	if got == want {
		v.matched.Add(1)
		return nil
	}
	v.mismatch.Add(1)
	v.logger.Printf("verify: chunk=%s digest=%s recorded=%s", res.Coord, got, want)
	v.mu.Lock()
	v.mismatched = append(v.mismatched, res.Coord)
	v.mu.Unlock()
	return nil
}

func (v *verifier) Fail(c coord.ChunkCoord, err error) {
	if fs, ok := v.next.(scheduler.FailureSink); ok {
		fs.Fail(c, err)
	}
}

func (v *verifier) Mismatched() []coord.ChunkCoord {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]coord.ChunkCoord(nil), v.mismatched...)
}
