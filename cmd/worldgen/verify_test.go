package main

import (
	"io"
	"log"
	"testing"

	"terragen.ai/internal/terrain/coord"
	"terragen.ai/internal/terrain/pipeline"
	"terragen.ai/internal/terrain/profile"
)

const verifyProfile = `
name: verify
chunk: {width: 4, depth: 4, min_y: 0, height: 8}
palette: [AIR, STONE]
base: STONE
noise:
  - {name: h, type: constant, value: 3}
fields: {height: h}
biomes:
  - name: rock
    layers: [{palette: STONE}]
`

func TestVerifierSortsMatchesMismatchesAndNewChunks(t *testing.T) {
	p, err := profile.Parse([]byte(verifyProfile), "verify.yaml", profile.Options{Seed: 9})
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	g := pipeline.New(p, pipeline.Options{})
	gen := func(c coord.ChunkCoord) *pipeline.ChunkResult {
		res, err := g.Generate(c)
		if err != nil {
			t.Fatalf("generate %s: %v", c, err)
		}
		return res
	}

	a, b, c := coord.ChunkCoord{X: 0}, coord.ChunkCoord{X: 1}, coord.ChunkCoord{X: 2}
	recorded := map[coord.ChunkCoord]string{
		a: gen(a).Digest(),
		b: "not-a-digest",
	}
	var forwarded []coord.ChunkCoord
	next := pipeline.SinkFunc(func(res *pipeline.ChunkResult) error {
		forwarded = append(forwarded, res.Coord)
		return nil
	})
	v := newVerifier(recorded, next, log.New(io.Discard, "", 0))
	for _, cc := range []coord.ChunkCoord{a, b, c} {
		if err := v.Deliver(gen(cc)); err != nil {
			t.Fatalf("Deliver %s: %v", cc, err)
		}
	}

	if v.matched.Load() != 1 || v.mismatch.Load() != 1 || v.fresh.Load() != 1 {
		t.Fatalf("counts: matched=%d mismatch=%d fresh=%d", v.matched.Load(), v.mismatch.Load(), v.fresh.Load())
	}
	if bad := v.Mismatched(); len(bad) != 1 || bad[0] != b {
		t.Fatalf("mismatched=%v", bad)
	}
	if len(forwarded) != 1 || forwarded[0] != c {
		t.Fatalf("forwarded=%v want only %s", forwarded, c)
	}
}
