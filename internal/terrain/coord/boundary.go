package coord

import (
	"fmt"

	"terragen.ai/internal/terrain/mathx"
)

type BoundaryMode string

const (
	BoundaryNone  BoundaryMode = "none"
	BoundaryVoid  BoundaryMode = "void"
	BoundaryClamp BoundaryMode = "clamp"
	BoundaryWrap  BoundaryMode = "wrap"
)

func ParseBoundaryMode(s string) (BoundaryMode, error) {
	switch BoundaryMode(s) {
	case "", BoundaryNone:
		return BoundaryNone, nil
	case BoundaryVoid, BoundaryClamp, BoundaryWrap:
		return BoundaryMode(s), nil
	default:
		return "", fmt.Errorf("unknown boundary mode %q", s)
	}
}

// Boundary limits the world to chunks in [-RadiusChunks, RadiusChunks) on
// both axes. With mode none the world is unbounded.
type Boundary struct {
	Mode         BoundaryMode
	RadiusChunks int
	Dims         Dimensions
}

func (b Boundary) Bounded() bool {
	return b.Mode != BoundaryNone && b.Mode != "" && b.RadiusChunks > 0
}

func (b Boundary) InBounds(c ChunkCoord) bool {
	if !b.Bounded() {
		return true
	}
	r := b.RadiusChunks
	return c.X >= -r && c.X < r && c.Z >= -r && c.Z < r
}

// ColumnInBounds reports whether block column (x, z) lies inside the world.
func (b Boundary) ColumnInBounds(x, z int) bool {
	c, _, _ := b.Dims.BlockToChunk(x, z)
	return b.InBounds(c)
}

// MapColumn translates a block column to the column that is sampled for it.
// Clamp pins out-of-range columns to the edge; wrap folds them around.
func (b Boundary) MapColumn(x, z int) (int, int) {
	if !b.Bounded() {
		return x, z
	}
	minX, maxX := -b.RadiusChunks*b.Dims.Width, b.RadiusChunks*b.Dims.Width-1
	minZ, maxZ := -b.RadiusChunks*b.Dims.Depth, b.RadiusChunks*b.Dims.Depth-1
	switch b.Mode {
	case BoundaryClamp:
		return mathx.ClampInt(x, minX, maxX), mathx.ClampInt(z, minZ, maxZ)
	case BoundaryWrap:
		return minX + mathx.Mod(x-minX, maxX-minX+1), minZ + mathx.Mod(z-minZ, maxZ-minZ+1)
	default:
		return x, z
	}
}

// WrapRegion folds a structure region coordinate for seeding. Only the wrap
// mode changes it; resolution guarantees the world width is a whole number
// of regions.
func (b Boundary) WrapRegion(r ChunkCoord, regionChunks int) ChunkCoord {
	if b.Mode != BoundaryWrap || !b.Bounded() {
		return r
	}
	n := 2 * b.RadiusChunks / regionChunks
	lo := -b.RadiusChunks / regionChunks
	return ChunkCoord{X: lo + mathx.Mod(r.X-lo, n), Z: lo + mathx.Mod(r.Z-lo, n)}
}
