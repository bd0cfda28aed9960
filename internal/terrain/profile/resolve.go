package profile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"gopkg.in/yaml.v3"

	"terragen.ai/internal/catalogs"
	"terragen.ai/internal/terrain/coord"
	"terragen.ai/internal/terrain/mathx"
	"terragen.ai/internal/terrain/noise"
	"terragen.ai/internal/terrain/seed"
)

const (
	defaultChunkSide   = 16
	defaultChunkHeight = 256
	maxChunkSide       = 64
	maxChunkHeight     = 4096
	maxRegionChunks    = 64
	maxAttempts        = 64
	maxReach           = 128
	maxPalette         = math.MaxUint16
)

// BlockPalette is the host's block registry. Every palette entry of a
// profile must be mappable by it.
type BlockPalette interface {
	Has(entry string) bool
}

type Options struct {
	Seed int64
	// Palette, when set, must know every entry the profile can emit.
	Palette BlockPalette
	// Schematics resolves schematic structure rules that refer to a
	// catalog id instead of listing blocks inline.
	Schematics map[string]catalogs.SchematicDef
}

// LoadFile reads and resolves the profile at path.
func LoadFile(path string, opts Options) (*Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	return Parse(raw, path, opts)
}

// Parse decodes a YAML profile, checks it against the profile schema and
// resolves it. source is only used in error messages.
func Parse(raw []byte, source string, opts Options) (*Profile, error) {
	var tree any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, &ConfigError{Rule: RuleSyntax, Path: source, Err: err}
	}
	if err := validateShape(tree); err != nil {
		return nil, &ConfigError{Rule: RuleSchema, Path: source, Err: err}
	}
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, &ConfigError{Rule: RuleSyntax, Path: source, Err: err}
	}
	p, err := Resolve(doc, opts)
	if err != nil {
		return nil, err
	}
	p.source = source
	return p, nil
}

// Resolve validates doc and binds it to opts.Seed. Every check runs here so
// chunk generation never meets an invalid rule.
func Resolve(doc Document, opts Options) (*Profile, error) {
	r := &resolver{doc: &doc, opts: opts, p: &Profile{seed: opts.Seed}}
	steps := []func() error{
		r.header,
		r.chunk,
		r.palette,
		r.graph,
		r.fields,
		r.biomes,
		r.structures,
		r.boundary,
		r.digest,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return r.p, nil
}

type resolver struct {
	doc  *Document
	opts Options
	p    *Profile
}

func (r *resolver) header() error {
	name := strings.TrimSpace(r.doc.Name)
	if name == "" {
		return cfgErr(RuleRequired, "name", "profile name is required")
	}
	r.p.name = name
	return nil
}

func (r *resolver) chunk() error {
	c := r.doc.Chunk
	d := coord.Dimensions{Width: c.Width, Depth: c.Depth, Height: c.Height}
	if d.Width == 0 {
		d.Width = defaultChunkSide
	}
	if d.Depth == 0 {
		d.Depth = defaultChunkSide
	}
	if d.Height == 0 {
		d.Height = defaultChunkHeight
	}
	if c.MinY != nil {
		d.MinY = *c.MinY
	}
	if d.Width < 1 || d.Width > maxChunkSide {
		return cfgErr(RuleRange, "chunk.width", "must be in [1,%d], got %d", maxChunkSide, d.Width)
	}
	if d.Depth < 1 || d.Depth > maxChunkSide {
		return cfgErr(RuleRange, "chunk.depth", "must be in [1,%d], got %d", maxChunkSide, d.Depth)
	}
	if d.Height < 1 || d.Height > maxChunkHeight {
		return cfgErr(RuleRange, "chunk.height", "must be in [1,%d], got %d", maxChunkHeight, d.Height)
	}
	if d.MinY < -1<<20 || d.MinY > 1<<20 {
		return cfgErr(RuleRange, "chunk.min_y", "out of range: %d", d.MinY)
	}
	r.p.dims = d

	r.p.seaLevel = d.MinY - 1
	if r.doc.SeaLevel != nil {
		s := *r.doc.SeaLevel
		if s < d.MinY-1 || s > d.MaxY() {
			return cfgErr(RuleRange, "sea_level", "must be in [%d,%d], got %d", d.MinY-1, d.MaxY(), s)
		}
		r.p.seaLevel = s
	}
	return nil
}

func (r *resolver) palette() error {
	if len(r.doc.Palette) == 0 {
		return cfgErr(RuleRequired, "palette", "palette is empty")
	}
	if len(r.doc.Palette) > maxPalette {
		return cfgErr(RuleRange, "palette", "too many entries: %d", len(r.doc.Palette))
	}
	r.p.palette = make([]string, 0, len(r.doc.Palette))
	r.p.index = make(map[string]uint16, len(r.doc.Palette))
	for i, e := range r.doc.Palette {
		e = strings.TrimSpace(e)
		path := fmt.Sprintf("palette[%d]", i)
		if e == "" {
			return cfgErr(RuleRequired, path, "empty palette entry")
		}
		if _, dup := r.p.index[e]; dup {
			return cfgErr(RuleDuplicate, path, "duplicate palette entry %q", e)
		}
		if r.opts.Palette != nil && !r.opts.Palette.Has(e) {
			return cfgErr(RuleHostPalette, path, "block palette has no entry %q", e)
		}
		r.p.index[e] = uint16(len(r.p.palette))
		r.p.palette = append(r.p.palette, e)
	}

	air := r.doc.Air
	if air == "" {
		air = catalogs.Air
	}
	var err error
	if r.p.air, err = r.entry(air, "air"); err != nil {
		return err
	}
	if strings.TrimSpace(r.doc.Base) == "" {
		return cfgErr(RuleRequired, "base", "base entry is required")
	}
	if r.p.base, err = r.entry(r.doc.Base, "base"); err != nil {
		return err
	}
	if r.doc.Fluid != "" {
		if r.p.fluid, err = r.entry(r.doc.Fluid, "fluid"); err != nil {
			return err
		}
		r.p.hasFl = true
	}
	return nil
}

func (r *resolver) entry(name, path string) (uint16, error) {
	id, ok := r.p.index[strings.TrimSpace(name)]
	if !ok {
		return 0, cfgErr(RulePalette, path, "palette has no entry %q", name)
	}
	return id, nil
}

func (r *resolver) graph() error {
	g, err := noise.Compile(r.doc.Noise, noise.Options{
		Seed:      r.opts.Seed,
		SlabWidth: r.p.dims.Width,
		SlabDepth: r.p.dims.Depth,
	})
	if err != nil {
		var de *noise.DefError
		if errors.As(err, &de) {
			path := fmt.Sprintf("noise[%d]", de.Index)
			if de.Field != "" {
				path += "." + de.Field
			}
			return &ConfigError{Rule: RuleNoise, Path: path, Err: de}
		}
		return &ConfigError{Rule: RuleNoise, Path: "noise", Err: err}
	}
	r.p.graph = g
	return nil
}

func (r *resolver) fields() error {
	f := r.doc.Fields
	if strings.TrimSpace(f.Height) == "" {
		return cfgErr(RuleRequired, "fields.height", "height field is required")
	}
	id, ok := r.p.graph.Lookup(f.Height)
	if !ok {
		return cfgErr(RuleField, "fields.height", "no noise node named %q", f.Height)
	}
	r.p.height = id

	seen := map[string]bool{}
	for i, name := range f.Climate {
		path := fmt.Sprintf("fields.climate[%d]", i)
		if seen[name] {
			return cfgErr(RuleDuplicate, path, "climate axis %q listed twice", name)
		}
		seen[name] = true
		id, ok := r.p.graph.Lookup(name)
		if !ok {
			return cfgErr(RuleField, path, "no noise node named %q", name)
		}
		r.p.climate = append(r.p.climate, id)
		r.p.axes = append(r.p.axes, name)
	}
	return nil
}

func (r *resolver) biomes() error {
	if len(r.doc.Biomes) == 0 {
		return cfgErr(RuleRequired, "biomes", "at least one biome is required")
	}
	axisOf := make(map[string]int, len(r.p.axes))
	for i, a := range r.p.axes {
		axisOf[a] = i
	}
	names := map[string]bool{}
	for i, bd := range r.doc.Biomes {
		path := fmt.Sprintf("biomes[%d]", i)
		name := strings.TrimSpace(bd.Name)
		if name == "" {
			return cfgErr(RuleRequired, path+".name", "biome name is required")
		}
		if names[name] {
			return cfgErr(RuleDuplicate, path+".name", "duplicate biome %q", name)
		}
		names[name] = true

		b := Biome{Name: name, Index: i, Ranges: make([]Range, len(r.p.axes))}
		for a := range b.Ranges {
			b.Ranges[a] = Range{Min: math.Inf(-1), Max: math.Inf(1)}
		}
		keys := make([]string, 0, len(bd.Climate))
		for k := range bd.Climate {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			kp := path + ".climate." + k
			a, ok := axisOf[k]
			if !ok {
				return cfgErr(RuleField, kp, "%q is not a climate axis", k)
			}
			v := bd.Climate[k]
			if len(v) != 2 {
				return cfgErr(RuleRange, kp, "range needs [min, max], got %d values", len(v))
			}
			if !(v[0] <= v[1]) {
				return cfgErr(RuleRange, kp, "min %v > max %v", v[0], v[1])
			}
			b.Ranges[a] = Range{Min: v[0], Max: v[1]}
		}

		if len(bd.Layers) == 0 {
			return cfgErr(RuleRequired, path+".layers", "biome needs at least one layer")
		}
		for j, ld := range bd.Layers {
			l, err := r.layer(ld, fmt.Sprintf("%s.layers[%d]", path, j))
			if err != nil {
				return err
			}
			b.Layers = append(b.Layers, l)
		}
		if bd.Fluid != "" {
			id, err := r.entry(bd.Fluid, path+".fluid")
			if err != nil {
				return err
			}
			b.Fluid, b.HasFluid = id, true
		} else {
			b.Fluid, b.HasFluid = r.p.fluid, r.p.hasFl
		}
		r.p.biomes = append(r.p.biomes, b)
	}
	return nil
}

func (r *resolver) layer(ld LayerDoc, path string) (Layer, error) {
	id, err := r.entry(ld.Palette, path+".palette")
	if err != nil {
		return Layer{}, err
	}
	l := Layer{Entry: id, MinDepth: ld.MinDepth, MaxDepth: OpenMax, MinY: OpenMin, MaxY: OpenMax}
	if ld.MaxDepth != nil {
		l.MaxDepth = *ld.MaxDepth
	}
	if ld.MinY != nil {
		l.MinY = *ld.MinY
	}
	if ld.MaxY != nil {
		l.MaxY = *ld.MaxY
	}
	if l.MinDepth < 0 || l.MinDepth > l.MaxDepth {
		return Layer{}, cfgErr(RuleRange, path, "depth range [%d,%d] is empty", l.MinDepth, l.MaxDepth)
	}
	if l.MinY > l.MaxY {
		return Layer{}, cfgErr(RuleRange, path, "y range [%d,%d] is empty", l.MinY, l.MaxY)
	}
	return l, nil
}

func (r *resolver) structures() error {
	names := map[string]bool{}
	for i, sd := range r.doc.Structures {
		path := fmt.Sprintf("structures[%d]", i)
		name := strings.TrimSpace(sd.Name)
		if name == "" {
			return cfgErr(RuleRequired, path+".name", "structure name is required")
		}
		if names[name] {
			return cfgErr(RuleDuplicate, path+".name", "duplicate structure %q", name)
		}
		names[name] = true

		rule := StructureRule{
			Name:         name,
			Index:        i,
			Kind:         StructureKind(sd.Kind),
			Priority:     sd.Priority,
			Salt:         seed.SaltOf(name),
			RegionChunks: sd.RegionChunks,
			Attempts:     1,
			Chance:       1,
		}
		if sd.Salt != nil {
			rule.Salt = uint64(*sd.Salt)
		}
		if rule.RegionChunks == 0 {
			rule.RegionChunks = 1
		}
		if rule.RegionChunks < 1 || rule.RegionChunks > maxRegionChunks {
			return cfgErr(RuleRange, path+".region_chunks", "must be in [1,%d], got %d", maxRegionChunks, rule.RegionChunks)
		}
		if sd.Attempts != nil {
			rule.Attempts = *sd.Attempts
		}
		if rule.Attempts < 0 || rule.Attempts > maxAttempts {
			return cfgErr(RuleRange, path+".attempts", "must be in [0,%d], got %d", maxAttempts, rule.Attempts)
		}
		if sd.Chance != nil {
			rule.Chance = *sd.Chance
		}
		if !(rule.Chance >= 0 && rule.Chance <= 1) {
			return cfgErr(RuleRange, path+".chance", "must be in [0,1], got %v", rule.Chance)
		}
		if len(sd.Biomes) > 0 {
			rule.BiomeMask = make([]bool, len(r.p.biomes))
			for j, bn := range sd.Biomes {
				b, ok := r.p.Biome(bn)
				if !ok {
					return cfgErr(RuleBiome, fmt.Sprintf("%s.biomes[%d]", path, j), "no biome named %q", bn)
				}
				rule.BiomeMask[b] = true
			}
		}

		var err error
		switch rule.Kind {
		case KindVein:
			err = r.vein(&rule, sd, path)
		case KindTree:
			err = r.tree(&rule, sd, path)
		case KindSchematic:
			err = r.schematic(&rule, sd, path)
		case KindCarver:
			err = r.carver(&rule, sd, path)
		default:
			err = cfgErr(RuleStructureKind, path+".kind", "unknown structure kind %q", sd.Kind)
		}
		if err != nil {
			return err
		}
		if rule.Reach > maxReach {
			return cfgErr(RuleRange, path, "structure reaches %d blocks from its anchor, max %d", rule.Reach, maxReach)
		}
		r.p.structures = append(r.p.structures, rule)
	}
	return nil
}

func (r *resolver) yRange(minY, maxY *int, path string) (int, int, error) {
	lo, hi := r.p.dims.MinY, r.p.dims.MaxY()
	if minY != nil {
		lo = *minY
	}
	if maxY != nil {
		hi = *maxY
	}
	if lo > hi {
		return 0, 0, cfgErr(RuleRange, path, "y range [%d,%d] is empty", lo, hi)
	}
	return lo, hi, nil
}

func (r *resolver) vein(rule *StructureRule, sd StructureDoc, path string) error {
	v := &VeinRule{Radius: sd.Radius}
	var err error
	if sd.Block == "" {
		return cfgErr(RuleRequired, path+".block", "vein needs a block")
	}
	if v.Block, err = r.entry(sd.Block, path+".block"); err != nil {
		return err
	}
	for j, e := range sd.Replace {
		id, err := r.entry(e, fmt.Sprintf("%s.replace[%d]", path, j))
		if err != nil {
			return err
		}
		v.Replace = append(v.Replace, id)
	}
	sort.Slice(v.Replace, func(a, b int) bool { return v.Replace[a] < v.Replace[b] })
	if v.Radius == 0 {
		v.Radius = 2
	}
	if v.Radius < 1 || v.Radius > 16 {
		return cfgErr(RuleRange, path+".radius", "must be in [1,16], got %d", v.Radius)
	}
	if v.MinY, v.MaxY, err = r.yRange(sd.MinY, sd.MaxY, path); err != nil {
		return err
	}
	rule.Vein = v
	rule.Reach = v.Radius
	return nil
}

func (r *resolver) tree(rule *StructureRule, sd StructureDoc, path string) error {
	t := &TreeRule{MinTrunk: 4, MaxTrunk: 6, Canopy: 2}
	var err error
	if sd.Trunk == "" || sd.Leaves == "" {
		return cfgErr(RuleRequired, path, "tree needs trunk and leaves")
	}
	if t.Trunk, err = r.entry(sd.Trunk, path+".trunk"); err != nil {
		return err
	}
	if t.Leaves, err = r.entry(sd.Leaves, path+".leaves"); err != nil {
		return err
	}
	if len(sd.TrunkHeight) > 0 {
		if len(sd.TrunkHeight) != 2 {
			return cfgErr(RuleRange, path+".trunk_height", "needs [min, max]")
		}
		t.MinTrunk, t.MaxTrunk = sd.TrunkHeight[0], sd.TrunkHeight[1]
	}
	if t.MinTrunk < 1 || t.MinTrunk > t.MaxTrunk || t.MaxTrunk > 64 {
		return cfgErr(RuleRange, path+".trunk_height", "need 1 <= min <= max <= 64, got [%d,%d]", t.MinTrunk, t.MaxTrunk)
	}
	if sd.CanopyRadius != 0 {
		t.Canopy = sd.CanopyRadius
	}
	if t.Canopy < 0 || t.Canopy > 8 {
		return cfgErr(RuleRange, path+".canopy_radius", "must be in [0,8], got %d", t.Canopy)
	}
	rule.Tree = t
	rule.Reach = t.Canopy
	return nil
}

func (r *resolver) schematic(rule *StructureRule, sd StructureDoc, path string) error {
	blocks := sd.Blocks
	s := &SchematicRule{ID: sd.Schematic}
	if sd.Schematic != "" {
		if len(blocks) > 0 {
			return cfgErr(RuleSchematic, path, "set either schematic or blocks, not both")
		}
		def, ok := r.opts.Schematics[sd.Schematic]
		if !ok {
			return cfgErr(RuleSchematic, path+".schematic", "no schematic %q", sd.Schematic)
		}
		for _, b := range def.Blocks {
			blocks = append(blocks, SchematicBlockDoc{Pos: b.Pos, Block: b.Block})
		}
	}
	if len(blocks) == 0 {
		return cfgErr(RuleRequired, path+".blocks", "schematic has no blocks")
	}
	for j, b := range blocks {
		id, err := r.entry(b.Block, fmt.Sprintf("%s.blocks[%d].block", path, j))
		if err != nil {
			return err
		}
		s.Blocks = append(s.Blocks, PlacedBlock{DX: b.Pos[0], DY: b.Pos[1], DZ: b.Pos[2], Entry: id})
		rule.Reach = max(rule.Reach, mathx.AbsInt(b.Pos[0]), mathx.AbsInt(b.Pos[2]))
	}
	if sd.Y != nil {
		s.Fixed, s.FixedY = true, *sd.Y
	}
	rule.Schematic = s
	return nil
}

func (r *resolver) carver(rule *StructureRule, sd StructureDoc, path string) error {
	c := &CarverRule{}
	if sd.Field == "" {
		return cfgErr(RuleRequired, path+".field", "carver needs a field")
	}
	id, ok := r.p.graph.Lookup(sd.Field)
	if !ok {
		return cfgErr(RuleField, path+".field", "no noise node named %q", sd.Field)
	}
	c.Field = id
	if sd.Threshold != nil {
		c.Threshold = *sd.Threshold
	}
	if math.IsNaN(c.Threshold) || math.IsInf(c.Threshold, 0) {
		return cfgErr(RuleRange, path+".threshold", "must be finite")
	}
	var err error
	if c.MinY, c.MaxY, err = r.yRange(sd.MinY, sd.MaxY, path); err != nil {
		return err
	}
	if sd.Fill != "" {
		if c.Fill, err = r.entry(sd.Fill, path+".fill"); err != nil {
			return err
		}
		c.HasFill = true
		c.FillBelow = r.p.dims.MinY - 1
		if sd.FillBelow != nil {
			c.FillBelow = *sd.FillBelow
		}
	} else if sd.FillBelow != nil {
		return cfgErr(RuleRequired, path+".fill", "fill_below needs a fill entry")
	}
	rule.Carver = c
	return nil
}

func (r *resolver) boundary() error {
	mode, err := coord.ParseBoundaryMode(r.doc.Boundary.Mode)
	if err != nil {
		return &ConfigError{Rule: RuleBoundary, Path: "boundary.mode", Err: err}
	}
	radius := r.doc.Boundary.RadiusChunks
	if radius < 0 {
		return cfgErr(RuleBoundary, "boundary.radius_chunks", "must not be negative")
	}
	if mode != coord.BoundaryNone && radius == 0 {
		return cfgErr(RuleBoundary, "boundary.radius_chunks", "mode %s needs a radius", mode)
	}
	if mode == coord.BoundaryWrap {
		for i, s := range r.p.structures {
			if s.Kind == KindCarver {
				continue
			}
			if radius%s.RegionChunks != 0 {
				return cfgErr(RuleBoundary, fmt.Sprintf("structures[%d].region_chunks", i),
					"wrapped world radius %d is not a multiple of region size %d", radius, s.RegionChunks)
			}
		}
	}
	r.p.boundary = coord.Boundary{Mode: mode, RadiusChunks: radius, Dims: r.p.dims}
	return nil
}

// digest fingerprints the document, not the seed; two worlds built from
// the same profile share it.
func (r *resolver) digest() error {
	raw, err := json.Marshal(r.doc)
	if err != nil {
		return fmt.Errorf("profile digest: %w", err)
	}
	r.p.digest = fmt.Sprintf("%016x", xxhash.Sum64(raw))
	return nil
}
