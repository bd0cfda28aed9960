package noise

import (
	"fmt"
	"math"

	"terragen.ai/internal/terrain/cache"
	"terragen.ai/internal/terrain/mathx"
)

// SectionHeight is the vertical extent of a 3-D cache slab.
const SectionHeight = 16

func (g *Graph) slabKey(id NodeID, dims int, sx, sy, sz int) cache.Key {
	field := uint32(id) << 1
	if dims == 3 {
		field |= 1
	}
	return cache.Key{Space: g.space, Field: field, X: int32(sx), Y: int32(sy), Z: int32(sz)}
}

func integral(v float64) (int, bool) {
	if v != math.Floor(v) || math.Abs(v) > 1<<30 {
		return 0, false
	}
	return int(v), true
}

// cached serves a cache node from its slab when the point lies on the
// integer lattice.
func (g *Graph) cached(ctx *Context, id NodeID, x, y, z float64) (float64, bool) {
	ix, okx := integral(x)
	iz, okz := integral(z)
	if !okx || !okz {
		return 0, false
	}
	sx, lx := mathx.FloorDiv(ix, g.slabW), mathx.Mod(ix, g.slabW)
	sz, lz := mathx.FloorDiv(iz, g.slabD), mathx.Mod(iz, g.slabD)

	if g.nodes[id].p.Dims == 2 {
		slab, err := g.ColumnSlab(ctx, id, sx, sz)
		if err != nil {
			panic(&SampleFault{Node: g.nodes[id].name, Err: err})
		}
		return slab[lz*g.slabW+lx], true
	}
	iy, oky := integral(y)
	if !oky {
		return 0, false
	}
	sy, ly := mathx.FloorDiv(iy, SectionHeight), mathx.Mod(iy, SectionHeight)
	slab, err := g.SectionSlab(ctx, id, sx, sy, sz)
	if err != nil {
		panic(&SampleFault{Node: g.nodes[id].name, Err: err})
	}
	return slab[(ly*g.slabD+lz)*g.slabW+lx], true
}

// ColumnSlab returns node id evaluated at y=0 over the slab of columns
// (sx, sz), index z*SlabWidth+x. Slabs line up with chunks when the graph
// is compiled with the chunk dimensions.
func (g *Graph) ColumnSlab(ctx *Context, id NodeID, sx, sz int) ([]float64, error) {
	compute := func() ([]float64, error) {
		out := make([]float64, g.slabW*g.slabD)
		ox, oz := sx*g.slabW, sz*g.slabD
		for lz := 0; lz < g.slabD; lz++ {
			for lx := 0; lx < g.slabW; lx++ {
				out[lz*g.slabW+lx] = g.eval(ctx, id, float64(ox+lx), 0, float64(oz+lz), true)
			}
		}
		return out, nil
	}
	if ctx == nil || ctx.Cache == nil {
		return compute()
	}
	return ctx.Cache.GetOrCompute(g.slabKey(id, 2, sx, 0, sz), compute)
}

// SectionSlab returns node id evaluated over a SlabWidth x SectionHeight x
// SlabDepth block section, index (y*SlabDepth+z)*SlabWidth+x.
func (g *Graph) SectionSlab(ctx *Context, id NodeID, sx, sy, sz int) ([]float64, error) {
	compute := func() ([]float64, error) {
		out := make([]float64, g.slabW*g.slabD*SectionHeight)
		ox, oy, oz := sx*g.slabW, sy*SectionHeight, sz*g.slabD
		for ly := 0; ly < SectionHeight; ly++ {
			for lz := 0; lz < g.slabD; lz++ {
				for lx := 0; lx < g.slabW; lx++ {
					out[(ly*g.slabD+lz)*g.slabW+lx] = g.eval(ctx, id, float64(ox+lx), float64(oy+ly), float64(oz+lz), true)
				}
			}
		}
		return out, nil
	}
	if ctx == nil || ctx.Cache == nil {
		return compute()
	}
	return ctx.Cache.GetOrCompute(g.slabKey(id, 3, sx, sy, sz), compute)
}

// Region is an integer lattice box sampled by SampleRegion.
type Region struct {
	X, Y, Z int
	W, H, D int
}

func (r Region) Len() int { return r.W * r.H * r.D }

// SampleRegion fills out with node id over r, index (y*D+z)*W+x.
func (g *Graph) SampleRegion(ctx *Context, id NodeID, r Region, out []float64) error {
	if len(out) != r.Len() {
		return fmt.Errorf("sample region: out has %d values, region needs %d", len(out), r.Len())
	}
	i := 0
	for ly := 0; ly < r.H; ly++ {
		for lz := 0; lz < r.D; lz++ {
			for lx := 0; lx < r.W; lx++ {
				out[i] = g.Sample(ctx, id, float64(r.X+lx), float64(r.Y+ly), float64(r.Z+lz))
				i++
			}
		}
	}
	return nil
}
