package structure

import (
	"fmt"
	"sort"

	"terragen.ai/internal/terrain/coord"
	"terragen.ai/internal/terrain/noise"
	"terragen.ai/internal/terrain/profile"
)

// Volume is the chunk a placement is written into. Coordinates passed to
// its methods are world block coordinates; writes outside the chunk are
// dropped.
type Volume struct {
	Dims   coord.Dimensions
	Chunk  coord.ChunkCoord
	Blocks []uint16
	// Heights and Biomes are per column, index z*Width+x.
	Heights []int32
	Biomes  []uint16

	ox, oz int
}

func NewVolume(dims coord.Dimensions, c coord.ChunkCoord, blocks []uint16, heights []int32, biomes []uint16) *Volume {
	ox, oz := dims.Origin(c)
	return &Volume{Dims: dims, Chunk: c, Blocks: blocks, Heights: heights, Biomes: biomes, ox: ox, oz: oz}
}

func (v *Volume) index(x, y, z int) (int, bool) {
	lx, lz := x-v.ox, z-v.oz
	if lx < 0 || lx >= v.Dims.Width || lz < 0 || lz >= v.Dims.Depth || y < v.Dims.MinY || y > v.Dims.MaxY() {
		return 0, false
	}
	return v.Dims.Index(lx, y, lz), true
}

func (v *Volume) Get(x, y, z int) (uint16, bool) {
	i, ok := v.index(x, y, z)
	if !ok {
		return 0, false
	}
	return v.Blocks[i], true
}

func (v *Volume) Set(x, y, z int, e uint16) bool {
	i, ok := v.index(x, y, z)
	if ok {
		v.Blocks[i] = e
	}
	return ok
}

// Apply writes the part of pl that falls inside v.
func (e *Engine) Apply(ctx *noise.Context, pl *Placement, v *Volume) error {
	air := e.prof.Air()
	switch pl.Rule.Kind {
	case profile.KindVein:
		e.applyVein(pl, v, air)
	case profile.KindTree:
		e.applyTree(pl, v, air)
	case profile.KindSchematic:
		for _, b := range pl.Rule.Schematic.Blocks {
			v.Set(pl.X+b.DX, pl.Y+b.DY, pl.Z+b.DZ, b.Entry)
		}
	case profile.KindCarver:
		return e.applyCarver(ctx, pl, v, air)
	default:
		return fmt.Errorf("structure %s: unknown kind %q", pl.Rule.Name, pl.Rule.Kind)
	}
	return nil
}

func (e *Engine) applyVein(pl *Placement, v *Volume, air uint16) {
	vr := pl.Rule.Vein
	rx, ry, rz := pl.Radii[0], pl.Radii[1], pl.Radii[2]
	for dy := -ry; dy <= ry; dy++ {
		for dz := -rz; dz <= rz; dz++ {
			for dx := -rx; dx <= rx; dx++ {
				fx, fy, fz := float64(dx)/float64(rx), float64(dy)/float64(ry), float64(dz)/float64(rz)
				if fx*fx+fy*fy+fz*fz > 1 {
					continue
				}
				x, y, z := pl.X+dx, pl.Y+dy, pl.Z+dz
				cur, ok := v.Get(x, y, z)
				if !ok || cur == air || !replaces(vr.Replace, cur) {
					continue
				}
				v.Set(x, y, z, vr.Block)
			}
		}
	}
}

func replaces(list []uint16, e uint16) bool {
	if len(list) == 0 {
		return true
	}
	i := sort.Search(len(list), func(i int) bool { return list[i] >= e })
	return i < len(list) && list[i] == e
}

func (e *Engine) applyTree(pl *Placement, v *Volume, air uint16) {
	tr := pl.Rule.Tree
	top := pl.Y + pl.Size
	for y := pl.Y + 1; y <= top; y++ {
		v.Set(pl.X, y, pl.Z, tr.Trunk)
	}
	c := tr.Canopy
	for dy := -c; dy <= 1; dy++ {
		for dz := -c; dz <= c; dz++ {
			for dx := -c; dx <= c; dx++ {
				if dx == 0 && dz == 0 && dy <= 0 {
					continue
				}
				if dx*dx+dy*dy+dz*dz > c*c+1 {
					continue
				}
				x, y, z := pl.X+dx, top+dy, pl.Z+dz
				if cur, ok := v.Get(x, y, z); ok && cur == air {
					v.Set(x, y, z, tr.Leaves)
				}
			}
		}
	}
}

// applyCarver clears solid voxels where the carver field exceeds its
// threshold, from the bottom of its range up to the column surface.
func (e *Engine) applyCarver(ctx *noise.Context, pl *Placement, v *Volume, air uint16) error {
	cr := pl.Rule.Carver
	g := e.prof.Graph()
	lo := max(cr.MinY, v.Dims.MinY)
	var buf []float64
	for lz := 0; lz < v.Dims.Depth; lz++ {
		for lx := 0; lx < v.Dims.Width; lx++ {
			col := v.Dims.ColumnIndex(lx, lz)
			if !pl.Rule.AllowsBiome(int(v.Biomes[col])) {
				continue
			}
			hi := min(cr.MaxY, int(v.Heights[col]), v.Dims.MaxY())
			if hi < lo {
				continue
			}
			x, z := v.ox+lx, v.oz+lz
			mx, mz := e.bound.MapColumn(x, z)
			r := noise.Region{X: mx, Y: lo, Z: mz, W: 1, H: hi - lo + 1, D: 1}
			if cap(buf) < r.Len() {
				buf = make([]float64, r.Len())
			}
			buf = buf[:r.Len()]
			if err := g.SampleRegion(ctx, cr.Field, r, buf); err != nil {
				return fmt.Errorf("carver %s: %w", pl.Rule.Name, err)
			}
			for i, val := range buf {
				if val <= cr.Threshold {
					continue
				}
				y := lo + i
				if cur, _ := v.Get(x, y, z); cur == air {
					continue
				}
				if cr.HasFill && y <= cr.FillBelow {
					v.Set(x, y, z, cr.Fill)
				} else {
					v.Set(x, y, z, air)
				}
			}
		}
	}
	return nil
}
