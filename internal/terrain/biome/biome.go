// Package biome maps climate samples to biomes and biomes to palette
// entries.
package biome

import "terragen.ai/internal/terrain/profile"

// Resolver is read-only after construction; share one per profile.
type Resolver struct {
	biomes   []profile.Biome
	base     uint16
	air      uint16
	seaLevel int
}

func NewResolver(p *profile.Profile) *Resolver {
	return &Resolver{
		biomes:   p.Biomes(),
		base:     p.Base(),
		air:      p.Air(),
		seaLevel: p.SeaLevel(),
	}
}

func (r *Resolver) Len() int { return len(r.biomes) }

func (r *Resolver) Biome(i int) *profile.Biome { return &r.biomes[i] }

// Resolve picks the biome for a climate vector. The first declared biome
// whose ranges all contain the vector wins. Otherwise the biome with the
// smallest squared distance to its ranges wins, and equal distances go to
// the earlier declaration.
func (r *Resolver) Resolve(climate []float64) int {
	best, bestDist := 0, -1.0
	for i := range r.biomes {
		d := distance(r.biomes[i].Ranges, climate)
		if d == 0 {
			return i
		}
		if bestDist < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func distance(ranges []profile.Range, climate []float64) float64 {
	var sum float64
	for a, rg := range ranges {
		if a >= len(climate) {
			break
		}
		d := rg.Distance(climate[a])
		sum += d * d
	}
	return sum
}

// Block returns the entry for a voxel at y in a column of biome b whose
// surface is at surface. Layers are tried top-down; solid voxels no layer
// claims get the base entry. Voxels above the surface are fluid up to sea
// level and air beyond.
func (r *Resolver) Block(b, y, surface int) uint16 {
	bi := &r.biomes[b]
	if y > surface {
		if y <= r.seaLevel && bi.HasFluid {
			return bi.Fluid
		}
		return r.air
	}
	depth := surface - y
	for _, l := range bi.Layers {
		if l.Matches(depth, y) {
			return l.Entry
		}
	}
	return r.base
}

// FillColumn writes the entries for ys [minY, minY+len(out)) into out.
func (r *Resolver) FillColumn(b, minY, surface int, out []uint16) {
	for i := range out {
		out[i] = r.Block(b, minY+i, surface)
	}
}
