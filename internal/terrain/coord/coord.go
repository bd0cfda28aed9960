package coord

import (
	"fmt"

	"terragen.ai/internal/terrain/mathx"
)

// ChunkCoord addresses one column of blocks Width x Depth wide.
type ChunkCoord struct {
	X int `json:"x"`
	Z int `json:"z"`
}

func (c ChunkCoord) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Z)
}

// Dimensions is the block extent of every chunk in a world.
type Dimensions struct {
	Width  int `json:"width"`
	Depth  int `json:"depth"`
	MinY   int `json:"min_y"`
	Height int `json:"height"`
}

func (d Dimensions) MaxY() int { return d.MinY + d.Height - 1 }

func (d Dimensions) Columns() int { return d.Width * d.Depth }

func (d Dimensions) Volume() int { return d.Width * d.Depth * d.Height }

// Index returns the block index for chunk-local (x, z) and absolute y.
func (d Dimensions) Index(x, y, z int) int {
	return (y-d.MinY)*d.Width*d.Depth + z*d.Width + x
}

func (d Dimensions) ColumnIndex(x, z int) int {
	return z*d.Width + x
}

// BlockToChunk returns the chunk holding block column (x, z) and the local
// offsets inside it.
func (d Dimensions) BlockToChunk(x, z int) (ChunkCoord, int, int) {
	c := ChunkCoord{X: mathx.FloorDiv(x, d.Width), Z: mathx.FloorDiv(z, d.Depth)}
	return c, mathx.Mod(x, d.Width), mathx.Mod(z, d.Depth)
}

// Origin returns the world block coordinate of the chunk's (0, 0) column.
func (d Dimensions) Origin(c ChunkCoord) (int, int) {
	return c.X * d.Width, c.Z * d.Depth
}

// RegionOf returns the structure region holding chunk c.
func RegionOf(c ChunkCoord, regionChunks int) ChunkCoord {
	return ChunkCoord{X: mathx.FloorDiv(c.X, regionChunks), Z: mathx.FloorDiv(c.Z, regionChunks)}
}

// Box is an inclusive axis-aligned block box.
type Box struct {
	MinX, MinY, MinZ int
	MaxX, MaxY, MaxZ int
}

func (b Box) Intersects(o Box) bool {
	return b.MinX <= o.MaxX && o.MinX <= b.MaxX &&
		b.MinY <= o.MaxY && o.MinY <= b.MaxY &&
		b.MinZ <= o.MaxZ && o.MinZ <= b.MaxZ
}

func (b Box) Offset(dx, dy, dz int) Box {
	return Box{
		MinX: b.MinX + dx, MinY: b.MinY + dy, MinZ: b.MinZ + dz,
		MaxX: b.MaxX + dx, MaxY: b.MaxY + dy, MaxZ: b.MaxZ + dz,
	}
}

// ChunkBox is the block box covered by chunk c.
func (d Dimensions) ChunkBox(c ChunkCoord) Box {
	ox, oz := d.Origin(c)
	return Box{
		MinX: ox, MinY: d.MinY, MinZ: oz,
		MaxX: ox + d.Width - 1, MaxY: d.MaxY(), MaxZ: oz + d.Depth - 1,
	}
}
