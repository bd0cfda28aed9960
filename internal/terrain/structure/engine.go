// Package structure places multi-block structures. Placement decisions are
// made per region from a region-stable seed, so every chunk a structure
// touches sees the same instance no matter which chunk is generated first.
package structure

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"

	"terragen.ai/internal/terrain/cache"
	"terragen.ai/internal/terrain/coord"
	"terragen.ai/internal/terrain/mathx"
	"terragen.ai/internal/terrain/profile"
	"terragen.ai/internal/terrain/seed"
)

// Terrain answers column queries used by placement predicates. Both methods
// must be pure functions of the block column.
type Terrain interface {
	Surface(x, z int) int
	Biome(x, z int) int
}

// Placement is one accepted structure instance. Placements may be shared
// between goroutines and must not be modified.
type Placement struct {
	Rule    *profile.StructureRule
	Region  coord.ChunkCoord
	Attempt int
	X, Y, Z int
	Bounds  coord.Box
	TieKey  uint64

	// Size is the trunk height of a tree.
	Size int
	// Radii are the vein blob half-extents.
	Radii [3]int
}

// PlacementCache memoizes region placement lists keyed by rule and region.
type PlacementCache = cache.Cache[[]Placement]

type Options struct {
	Cache *PlacementCache
}

type Engine struct {
	prof  *profile.Profile
	rules []profile.StructureRule
	world int64
	dims  coord.Dimensions
	bound coord.Boundary
	sea   int
	cache *PlacementCache
	space uint64
}

func NewEngine(p *profile.Profile, opts Options) *Engine {
	return &Engine{
		prof:  p,
		rules: p.Structures(),
		world: p.Seed(),
		dims:  p.Dimensions(),
		bound: p.Boundary(),
		sea:   p.SeaLevel(),
		cache: opts.Cache,
		space: engineSpace(p),
	}
}

// engineSpace keys this engine's regions in a shared PlacementCache.
func engineSpace(p *profile.Profile) uint64 {
	h := xxhash.New()
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(p.Seed()))
	h.Write(tmp[:])
	h.WriteString(p.Digest())
	return h.Sum64()
}

// PlacementsFor lists every placement whose bounds intersect chunk c, in
// application order: ascending rank, so later placements overwrite earlier
// ones where they overlap.
func (e *Engine) PlacementsFor(c coord.ChunkCoord, t Terrain) []Placement {
	box := e.dims.ChunkBox(c)
	var out []Placement
	for i := range e.rules {
		rule := &e.rules[i]
		if rule.Kind == profile.KindCarver {
			out = append(out, Placement{
				Rule:   rule,
				Region: c,
				X:      box.MinX,
				Y:      e.dims.MinY,
				Z:      box.MinZ,
				Bounds: box,
				TieKey: seed.Derive(e.world, c.X, 0, c.Z, rule.Salt),
			})
			continue
		}
		rw, rd := rule.RegionChunks*e.dims.Width, rule.RegionChunks*e.dims.Depth
		rx0, rx1 := mathx.FloorDiv(box.MinX-rule.Reach, rw), mathx.FloorDiv(box.MaxX+rule.Reach, rw)
		rz0, rz1 := mathx.FloorDiv(box.MinZ-rule.Reach, rd), mathx.FloorDiv(box.MaxZ+rule.Reach, rd)
		for rz := rz0; rz <= rz1; rz++ {
			for rx := rx0; rx <= rx1; rx++ {
				for _, pl := range e.regionPlacements(rule, coord.ChunkCoord{X: rx, Z: rz}, t) {
					if pl.Bounds.Intersects(box) {
						out = append(out, pl)
					}
				}
			}
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return less(&out[a], &out[b]) })
	return out
}

func less(a, b *Placement) bool {
	switch {
	case a.Rule.Priority != b.Rule.Priority:
		return a.Rule.Priority < b.Rule.Priority
	case a.TieKey != b.TieKey:
		return a.TieKey < b.TieKey
	case a.Rule.Salt != b.Rule.Salt:
		return a.Rule.Salt < b.Rule.Salt
	case a.Rule.Index != b.Rule.Index:
		return a.Rule.Index < b.Rule.Index
	case a.Region != b.Region:
		if a.Region.X != b.Region.X {
			return a.Region.X < b.Region.X
		}
		return a.Region.Z < b.Region.Z
	}
	return a.Attempt < b.Attempt
}

func (e *Engine) regionPlacements(rule *profile.StructureRule, region coord.ChunkCoord, t Terrain) []Placement {
	if e.cache == nil {
		return e.computeRegion(rule, region, t)
	}
	key := cache.Key{Space: e.space, Field: uint32(rule.Index), X: int32(region.X), Z: int32(region.Z)}
	pls, err := e.cache.GetOrCompute(key, func() ([]Placement, error) {
		return e.computeRegion(rule, region, t), nil
	})
	if err != nil {
		panic(fmt.Errorf("structure %s region %s: %w", rule.Name, region, err))
	}
	return pls
}

// RegionPlacements returns every placement rule makes in one region,
// regardless of which chunks they touch.
func (e *Engine) RegionPlacements(rule *profile.StructureRule, region coord.ChunkCoord, t Terrain) []Placement {
	return e.regionPlacements(rule, region, t)
}

// computeRegion draws a fixed number of values per attempt so an attempt
// rejected by a terrain check never shifts the attempts after it.
func (e *Engine) computeRegion(rule *profile.StructureRule, region coord.ChunkCoord, t Terrain) []Placement {
	seedRegion := e.bound.WrapRegion(region, rule.RegionChunks)
	rng := seed.NewRandom(seed.Derive2(e.world, seedRegion.X, seedRegion.Z, rule.Salt))
	rw, rd := rule.RegionChunks*e.dims.Width, rule.RegionChunks*e.dims.Depth
	ox, oz := region.X*rw, region.Z*rd

	var out []Placement
	for a := 0; a < rule.Attempts; a++ {
		dx, dz := rng.Intn(rw), rng.Intn(rd)
		roll := rng.Float64()
		shape := seed.NewRandom(rng.Uint64())
		if roll >= rule.Chance {
			continue
		}
		x, z := ox+dx, oz+dz
		if e.bound.Mode == coord.BoundaryVoid && !e.bound.ColumnInBounds(x, z) {
			continue
		}
		biome := t.Biome(x, z)
		if !rule.AllowsBiome(biome) {
			continue
		}
		pl := Placement{Rule: rule, Region: region, Attempt: a, X: x, Z: z}
		if !e.shape(&pl, shape, biome, t) {
			continue
		}
		pl.TieKey = seed.Derive(e.world, pl.X, pl.Y, pl.Z, rule.Salt)
		out = append(out, pl)
	}
	return out
}

// shape fills in the kind-specific part of a placement and reports whether
// the anchor is usable.
func (e *Engine) shape(pl *Placement, rng *seed.Random, biome int, t Terrain) bool {
	rule := pl.Rule
	switch rule.Kind {
	case profile.KindVein:
		v := rule.Vein
		pl.Y = rng.Range(v.MinY, v.MaxY)
		lo := max(1, v.Radius-1)
		pl.Radii = [3]int{rng.Range(lo, v.Radius), rng.Range(lo, v.Radius), rng.Range(lo, v.Radius)}
		pl.Bounds = coord.Box{
			MinX: pl.X - pl.Radii[0], MinY: pl.Y - pl.Radii[1], MinZ: pl.Z - pl.Radii[2],
			MaxX: pl.X + pl.Radii[0], MaxY: pl.Y + pl.Radii[1], MaxZ: pl.Z + pl.Radii[2],
		}
		return true

	case profile.KindTree:
		tr := rule.Tree
		pl.Size = rng.Range(tr.MinTrunk, tr.MaxTrunk)
		pl.Y = t.Surface(pl.X, pl.Z)
		if !e.surfaceUsable(pl.Y, biome) || pl.Y+pl.Size+1 > e.dims.MaxY() {
			return false
		}
		c := tr.Canopy
		pl.Bounds = coord.Box{
			MinX: pl.X - c, MinY: pl.Y + 1, MinZ: pl.Z - c,
			MaxX: pl.X + c, MaxY: pl.Y + pl.Size + 1, MaxZ: pl.Z + c,
		}
		return true

	case profile.KindSchematic:
		s := rule.Schematic
		if s.Fixed {
			pl.Y = s.FixedY
		} else {
			pl.Y = t.Surface(pl.X, pl.Z)
			if !e.surfaceUsable(pl.Y, biome) {
				return false
			}
		}
		b := coord.Box{MinX: s.Blocks[0].DX, MinY: s.Blocks[0].DY, MinZ: s.Blocks[0].DZ, MaxX: s.Blocks[0].DX, MaxY: s.Blocks[0].DY, MaxZ: s.Blocks[0].DZ}
		for _, blk := range s.Blocks[1:] {
			b.MinX, b.MaxX = min(b.MinX, blk.DX), max(b.MaxX, blk.DX)
			b.MinY, b.MaxY = min(b.MinY, blk.DY), max(b.MaxY, blk.DY)
			b.MinZ, b.MaxZ = min(b.MinZ, blk.DZ), max(b.MaxZ, blk.DZ)
		}
		pl.Bounds = b.Offset(pl.X, pl.Y, pl.Z)
		return true
	}
	return false
}

// surfaceUsable rejects surfaces outside the world and submerged surfaces.
func (e *Engine) surfaceUsable(surface, biome int) bool {
	if surface < e.dims.MinY || surface >= e.dims.MaxY() {
		return false
	}
	bs := e.prof.Biomes()
	if biome >= 0 && biome < len(bs) && bs[biome].HasFluid && surface < e.sea {
		return false
	}
	return true
}
