// Package profile resolves declarative generation profiles into immutable
// rule sets with a compiled noise graph.
package profile

import (
	"math"

	"terragen.ai/internal/terrain/coord"
	"terragen.ai/internal/terrain/noise"
)

// Unbounded sentinels for open layer and structure ranges.
const (
	OpenMin = math.MinInt32
	OpenMax = math.MaxInt32
)

// Profile is a resolved generation profile bound to one world seed. It is
// never mutated after Resolve returns and is safe to share between
// goroutines.
type Profile struct {
	name   string
	source string
	seed   int64
	digest string

	dims     coord.Dimensions
	boundary coord.Boundary
	seaLevel int

	palette []string
	index   map[string]uint16
	air     uint16
	base    uint16
	fluid   uint16
	hasFl   bool

	graph   *noise.Graph
	height  noise.NodeID
	climate []noise.NodeID
	axes    []string

	biomes     []Biome
	structures []StructureRule
}

// Range is a closed interval on one climate axis.
type Range struct {
	Min, Max float64
}

func (r Range) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

// Distance is how far v lies outside the range; zero inside.
func (r Range) Distance(v float64) float64 {
	switch {
	case v < r.Min:
		return r.Min - v
	case v > r.Max:
		return v - r.Max
	}
	return 0
}

type Biome struct {
	Name  string
	Index int
	// Ranges has one entry per climate axis, in Axes order.
	Ranges   []Range
	Layers   []Layer
	Fluid    uint16
	HasFluid bool
}

// Layer assigns Entry to voxels whose depth below the surface and absolute
// y both fall inside the closed bounds.
type Layer struct {
	Entry              uint16
	MinDepth, MaxDepth int
	MinY, MaxY         int
}

func (l Layer) Matches(depth, y int) bool {
	return depth >= l.MinDepth && depth <= l.MaxDepth && y >= l.MinY && y <= l.MaxY
}

type StructureKind string

const (
	KindVein      StructureKind = "vein"
	KindTree      StructureKind = "tree"
	KindSchematic StructureKind = "schematic"
	KindCarver    StructureKind = "carver"
)

// StructureRule is one resolved placement rule. Exactly one of the kind
// specific fields is set.
type StructureRule struct {
	Name         string
	Index        int
	Kind         StructureKind
	Priority     int
	Salt         uint64
	RegionChunks int
	Attempts     int
	Chance       float64
	// BiomeMask is indexed by biome index; nil allows every biome.
	BiomeMask []bool

	// Reach is the largest horizontal distance, in blocks, between the
	// anchor column and any block the structure writes.
	Reach int

	Vein      *VeinRule
	Tree      *TreeRule
	Schematic *SchematicRule
	Carver    *CarverRule
}

func (r *StructureRule) AllowsBiome(b int) bool {
	if r.BiomeMask == nil {
		return true
	}
	return b >= 0 && b < len(r.BiomeMask) && r.BiomeMask[b]
}

type VeinRule struct {
	Block uint16
	// Replace is sorted; empty replaces any non-air voxel.
	Replace    []uint16
	Radius     int
	MinY, MaxY int
}

type TreeRule struct {
	Trunk, Leaves      uint16
	MinTrunk, MaxTrunk int
	Canopy             int
}

type SchematicRule struct {
	ID     string
	Blocks []PlacedBlock
	// Fixed anchors at FixedY instead of the surface.
	Fixed  bool
	FixedY int
}

type PlacedBlock struct {
	DX, DY, DZ int
	Entry      uint16
}

type CarverRule struct {
	Field      noise.NodeID
	Threshold  float64
	MinY, MaxY int
	Fill       uint16
	FillBelow  int
	HasFill    bool
}

func (p *Profile) Name() string                  { return p.name }
func (p *Profile) Source() string                { return p.source }
func (p *Profile) Seed() int64                   { return p.seed }
func (p *Profile) Digest() string                { return p.digest }
func (p *Profile) Dimensions() coord.Dimensions  { return p.dims }
func (p *Profile) Boundary() coord.Boundary      { return p.boundary }
func (p *Profile) SeaLevel() int                 { return p.seaLevel }
func (p *Profile) Graph() *noise.Graph           { return p.graph }
func (p *Profile) HeightField() noise.NodeID     { return p.height }
func (p *Profile) Air() uint16                   { return p.air }
func (p *Profile) Base() uint16                  { return p.base }
func (p *Profile) Fluid() (uint16, bool)         { return p.fluid, p.hasFl }
func (p *Profile) Biomes() []Biome               { return p.biomes }
func (p *Profile) Structures() []StructureRule   { return p.structures }
func (p *Profile) ClimateFields() []noise.NodeID { return p.climate }
func (p *Profile) ClimateAxes() []string         { return p.axes }

// Palette returns the profile's palette entries; ids are slice indices.
func (p *Profile) Palette() []string { return p.palette }

func (p *Profile) Entry(id uint16) string {
	if int(id) >= len(p.palette) {
		return ""
	}
	return p.palette[id]
}

func (p *Profile) Lookup(entry string) (uint16, bool) {
	id, ok := p.index[entry]
	return id, ok
}

// Field returns the root node of a named field of the noise graph.
func (p *Profile) Field(name string) (noise.NodeID, bool) {
	return p.graph.Lookup(name)
}

func (p *Profile) Biome(name string) (int, bool) {
	for i := range p.biomes {
		if p.biomes[i].Name == name {
			return i, true
		}
	}
	return -1, false
}
