package main

import (
	"testing"

	"terragen.ai/internal/terrain/coord"
	"terragen.ai/internal/terrain/mathx"
)

func TestSpiralCoversSquareOnce(t *testing.T) {
	center := coord.ChunkCoord{X: 5, Z: -3}
	for r := 0; r <= 4; r++ {
		got := spiral(center, r)
		if want := (2*r + 1) * (2*r + 1); len(got) != want {
			t.Fatalf("radius %d: %d coords want %d", r, len(got), want)
		}
		seen := map[coord.ChunkCoord]bool{}
		prevRing := 0
		for i, c := range got {
			if seen[c] {
				t.Fatalf("radius %d: %s listed twice", r, c)
			}
			seen[c] = true
			ring := max(mathx.AbsInt(c.X-center.X), mathx.AbsInt(c.Z-center.Z))
			if ring > r {
				t.Fatalf("radius %d: %s outside square", r, c)
			}
			if ring < prevRing {
				t.Fatalf("radius %d: index %d ring %d after ring %d", r, i, ring, prevRing)
			}
			prevRing = ring
		}
	}
}

func TestSpiralNegativeRadius(t *testing.T) {
	if got := spiral(coord.ChunkCoord{}, -1); got != nil {
		t.Fatalf("got %v", got)
	}
}
