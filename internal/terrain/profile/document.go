package profile

import "terragen.ai/internal/terrain/noise"

// Document is the declarative, unresolved form of a generation profile as
// written in YAML. It is only an input to Resolve; nothing reads it after
// resolution.
type Document struct {
	Name     string   `yaml:"name" json:"name"`
	Version  int      `yaml:"version,omitempty" json:"version,omitempty"`
	Chunk    ChunkDoc `yaml:"chunk,omitempty" json:"chunk"`
	SeaLevel *int     `yaml:"sea_level,omitempty" json:"sea_level,omitempty"`

	Boundary BoundaryDoc `yaml:"boundary,omitempty" json:"boundary"`

	Palette []string `yaml:"palette" json:"palette"`
	Air     string   `yaml:"air,omitempty" json:"air,omitempty"`
	Base    string   `yaml:"base" json:"base"`
	Fluid   string   `yaml:"fluid,omitempty" json:"fluid,omitempty"`

	Noise      []noise.Def    `yaml:"noise" json:"noise"`
	Fields     FieldsDoc      `yaml:"fields" json:"fields"`
	Biomes     []BiomeDoc     `yaml:"biomes" json:"biomes"`
	Structures []StructureDoc `yaml:"structures,omitempty" json:"structures,omitempty"`
}

type ChunkDoc struct {
	Width  int  `yaml:"width,omitempty" json:"width,omitempty"`
	Depth  int  `yaml:"depth,omitempty" json:"depth,omitempty"`
	MinY   *int `yaml:"min_y,omitempty" json:"min_y,omitempty"`
	Height int  `yaml:"height,omitempty" json:"height,omitempty"`
}

type BoundaryDoc struct {
	Mode         string `yaml:"mode,omitempty" json:"mode,omitempty"`
	RadiusChunks int    `yaml:"radius_chunks,omitempty" json:"radius_chunks,omitempty"`
}

// FieldsDoc names the graph nodes the pipeline samples. Height is the
// terrain surface; Climate lists the axes biomes are matched on, in order.
type FieldsDoc struct {
	Height  string   `yaml:"height" json:"height"`
	Climate []string `yaml:"climate,omitempty" json:"climate,omitempty"`
}

type BiomeDoc struct {
	Name    string               `yaml:"name" json:"name"`
	Climate map[string][]float64 `yaml:"climate,omitempty" json:"climate,omitempty"`
	Layers  []LayerDoc           `yaml:"layers" json:"layers"`
	Fluid   string               `yaml:"fluid,omitempty" json:"fluid,omitempty"`
}

// LayerDoc matches voxels by depth below the surface (0 is the surface
// voxel itself) and by absolute y. Missing bounds are open.
type LayerDoc struct {
	Palette  string `yaml:"palette" json:"palette"`
	MinDepth int    `yaml:"min_depth,omitempty" json:"min_depth,omitempty"`
	MaxDepth *int   `yaml:"max_depth,omitempty" json:"max_depth,omitempty"`
	MinY     *int   `yaml:"min_y,omitempty" json:"min_y,omitempty"`
	MaxY     *int   `yaml:"max_y,omitempty" json:"max_y,omitempty"`
}

type StructureDoc struct {
	Name         string   `yaml:"name" json:"name"`
	Kind         string   `yaml:"kind" json:"kind"`
	Priority     int      `yaml:"priority,omitempty" json:"priority,omitempty"`
	Salt         *int64   `yaml:"salt,omitempty" json:"salt,omitempty"`
	RegionChunks int      `yaml:"region_chunks,omitempty" json:"region_chunks,omitempty"`
	Attempts     *int     `yaml:"attempts,omitempty" json:"attempts,omitempty"`
	Chance       *float64 `yaml:"chance,omitempty" json:"chance,omitempty"`
	Biomes       []string `yaml:"biomes,omitempty" json:"biomes,omitempty"`

	// vein
	Block   string   `yaml:"block,omitempty" json:"block,omitempty"`
	Replace []string `yaml:"replace,omitempty" json:"replace,omitempty"`
	Radius  int      `yaml:"radius,omitempty" json:"radius,omitempty"`
	MinY    *int     `yaml:"min_y,omitempty" json:"min_y,omitempty"`
	MaxY    *int     `yaml:"max_y,omitempty" json:"max_y,omitempty"`

	// tree
	Trunk        string `yaml:"trunk,omitempty" json:"trunk,omitempty"`
	Leaves       string `yaml:"leaves,omitempty" json:"leaves,omitempty"`
	TrunkHeight  []int  `yaml:"trunk_height,omitempty" json:"trunk_height,omitempty"`
	CanopyRadius int    `yaml:"canopy_radius,omitempty" json:"canopy_radius,omitempty"`

	// schematic
	Schematic string              `yaml:"schematic,omitempty" json:"schematic,omitempty"`
	Blocks    []SchematicBlockDoc `yaml:"blocks,omitempty" json:"blocks,omitempty"`
	Y         *int                `yaml:"y,omitempty" json:"y,omitempty"`

	// carver
	Field     string   `yaml:"field,omitempty" json:"field,omitempty"`
	Threshold *float64 `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	Fill      string   `yaml:"fill,omitempty" json:"fill,omitempty"`
	FillBelow *int     `yaml:"fill_below,omitempty" json:"fill_below,omitempty"`
}

type SchematicBlockDoc struct {
	Pos   [3]int `yaml:"pos" json:"pos"`
	Block string `yaml:"block" json:"block"`
}
