package profile

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"terragen.ai/internal/catalogs"
	"terragen.ai/internal/terrain/coord"
	"terragen.ai/internal/terrain/noise"
	"terragen.ai/internal/terrain/seed"
)

const sampleProfile = `
name: sample
chunk: {width: 16, depth: 16, min_y: -16, height: 64}
sea_level: 8
palette: [AIR, STONE, DIRT, GRASS, SAND, WATER, LOG, LEAVES, COAL_ORE]
base: STONE
fluid: WATER
noise:
  - {name: base, type: gradient, frequency: 0.01}
  - {name: height_raw, type: fractal, inputs: [base], octaves: 3}
  - {name: height, type: remap, inputs: [height_raw], from: [-1, 1], to: [0, 24]}
  - {name: temp, type: simplex, frequency: 0.002, salt: 7}
  - {name: caves, type: gradient, frequency: 0.05, dims: 3}
fields:
  height: height
  climate: [temp]
biomes:
  - name: desert
    climate: {temp: [0.3, 1]}
    layers:
      - {palette: SAND, max_depth: 3}
  - name: plains
    layers:
      - {palette: GRASS, max_depth: 0}
      - {palette: DIRT, min_depth: 1, max_depth: 3}
structures:
  - {name: coal, kind: vein, block: COAL_ORE, replace: [STONE], radius: 2, max_y: 0, attempts: 4}
  - {name: oak, kind: tree, trunk: LOG, leaves: LEAVES, biomes: [plains], chance: 0.5, region_chunks: 2, priority: 5}
  - {name: hut, kind: schematic, blocks: [{pos: [0, 1, 0], block: LOG}, {pos: [3, 1, -2], block: LOG}]}
  - {name: caves, kind: carver, field: caves, threshold: 0.6, fill: WATER, fill_below: -10}
`

func mustParse(t *testing.T, src string, opts Options) *Profile {
	t.Helper()
	p, err := Parse([]byte(src), "test.yaml", opts)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return p
}

func wantConfigError(t *testing.T, err error, rule, pathPrefix string) *ConfigError {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", rule)
	}
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("error %v is not a *ConfigError", err)
	}
	if ce.Rule != rule {
		t.Fatalf("rule: got %q want %q (%v)", ce.Rule, rule, err)
	}
	if !strings.HasPrefix(ce.Path, pathPrefix) {
		t.Fatalf("path: got %q want prefix %q", ce.Path, pathPrefix)
	}
	return ce
}

func TestParseResolvesProfile(t *testing.T) {
	p := mustParse(t, sampleProfile, Options{Seed: 42})

	if got, want := p.Dimensions(), (coord.Dimensions{Width: 16, Depth: 16, MinY: -16, Height: 64}); got != want {
		t.Fatalf("dims: got %+v want %+v", got, want)
	}
	if p.SeaLevel() != 8 || p.Seed() != 42 || p.Source() != "test.yaml" {
		t.Fatalf("header: sea=%d seed=%d source=%q", p.SeaLevel(), p.Seed(), p.Source())
	}
	if id, ok := p.Lookup("GRASS"); !ok || p.Entry(id) != "GRASS" {
		t.Fatalf("lookup GRASS: id=%d ok=%v", id, ok)
	}
	if p.Entry(p.Air()) != "AIR" || p.Entry(p.Base()) != "STONE" {
		t.Fatalf("air/base: %q %q", p.Entry(p.Air()), p.Entry(p.Base()))
	}
	if fl, ok := p.Fluid(); !ok || p.Entry(fl) != "WATER" {
		t.Fatalf("fluid: %d %v", fl, ok)
	}

	if ax := p.ClimateAxes(); len(ax) != 1 || ax[0] != "temp" || len(p.ClimateFields()) != 1 {
		t.Fatalf("climate axes: %v", ax)
	}

	bs := p.Biomes()
	if len(bs) != 2 || bs[0].Name != "desert" || bs[1].Name != "plains" {
		t.Fatalf("biomes: %+v", bs)
	}
	if r := bs[0].Ranges[0]; r.Min != 0.3 || r.Max != 1 {
		t.Fatalf("desert range: %+v", r)
	}
	if r := bs[1].Ranges[0]; !math.IsInf(r.Min, -1) || !math.IsInf(r.Max, 1) {
		t.Fatalf("plains range should be open: %+v", r)
	}
	if !bs[1].HasFluid {
		t.Fatalf("plains should inherit the profile fluid")
	}
	if l := bs[1].Layers[1]; l.MinDepth != 1 || l.MaxDepth != 3 || l.MinY != OpenMin {
		t.Fatalf("dirt layer: %+v", l)
	}

	ss := p.Structures()
	if len(ss) != 4 {
		t.Fatalf("structures: %d", len(ss))
	}
	if ss[0].Salt != seed.SaltOf("coal") || ss[0].Vein.MaxY != 0 || ss[0].Vein.MinY != -16 || ss[0].Attempts != 4 {
		t.Fatalf("vein: %+v %+v", ss[0], ss[0].Vein)
	}
	if ss[1].AllowsBiome(0) || !ss[1].AllowsBiome(1) || ss[1].Priority != 5 || ss[1].Chance != 0.5 {
		t.Fatalf("tree: %+v", ss[1])
	}
	if ss[2].Reach != 3 || len(ss[2].Schematic.Blocks) != 2 || ss[2].Schematic.Fixed {
		t.Fatalf("schematic: %+v %+v", ss[2], ss[2].Schematic)
	}
	if c := ss[3].Carver; c == nil || !c.HasFill || c.FillBelow != -10 || c.Threshold != 0.6 {
		t.Fatalf("carver: %+v", ss[3].Carver)
	}
	if _, ok := p.Field("caves"); !ok {
		t.Fatalf("field caves missing")
	}
	if p.Graph().Kind(p.HeightField()) != noise.KindRemap {
		t.Fatalf("height root kind: %v", p.Graph().Kind(p.HeightField()))
	}
}

func TestDigestIgnoresSeedButTracksContent(t *testing.T) {
	a := mustParse(t, sampleProfile, Options{Seed: 1})
	b := mustParse(t, sampleProfile, Options{Seed: 2})
	if a.Digest() != b.Digest() {
		t.Fatalf("digest depends on seed: %s vs %s", a.Digest(), b.Digest())
	}
	c := mustParse(t, strings.Replace(sampleProfile, "sea_level: 8", "sea_level: 9", 1), Options{Seed: 1})
	if a.Digest() == c.Digest() {
		t.Fatalf("digest did not change with content")
	}
}

func TestCyclicGraphIsConfigError(t *testing.T) {
	src := strings.Replace(sampleProfile,
		"{name: base, type: gradient, frequency: 0.01}",
		"{name: base, type: abs, inputs: [height]}", 1)
	_, err := Parse([]byte(src), "cyclic.yaml", Options{Seed: 42})
	ce := wantConfigError(t, err, RuleNoise, "noise[")
	var de *noise.DefError
	if !errors.As(ce, &de) || !strings.Contains(de.Msg, "cycle") {
		t.Fatalf("expected cycle DefError, got %v", err)
	}
}

func TestUnknownReferences(t *testing.T) {
	cases := []struct {
		name, from, to, rule, path string
	}{
		{"layer palette", "{palette: SAND, max_depth: 3}", "{palette: GLASS, max_depth: 3}", RulePalette, "biomes[0].layers[0].palette"},
		{"base", "base: STONE", "base: BEDROCK", RulePalette, "base"},
		{"structure biome", "biomes: [plains]", "biomes: [tundra]", RuleBiome, "structures[1].biomes[0]"},
		{"vein block", "block: COAL_ORE", "block: IRON_ORE", RulePalette, "structures[0].block"},
		{"carver field", "field: caves", "field: tunnels", RuleField, "structures[3].field"},
		{"climate axis", "climate: {temp: [0.3, 1]}", "climate: {rain: [0.3, 1]}", RuleField, "biomes[0].climate.rain"},
		{"height field", "height: height\n", "height: nope\n", RuleField, "fields.height"},
		{"duplicate biome", "name: plains", "name: desert", RuleDuplicate, "biomes[1].name"},
		{"noise input", "inputs: [base]", "inputs: [missing]", RuleNoise, "noise[1]"},
		{"missing air", "palette: [AIR, ", "palette: [", RulePalette, "air"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := strings.Replace(sampleProfile, tc.from, tc.to, 1)
			if src == sampleProfile {
				t.Fatalf("fixture replacement %q did not apply", tc.from)
			}
			_, err := Parse([]byte(src), "x.yaml", Options{})
			wantConfigError(t, err, tc.rule, tc.path)
		})
	}
}

func TestRangeChecks(t *testing.T) {
	cases := []struct {
		name, from, to, path string
	}{
		{"chance", "chance: 0.5", "chance: 1.5", "structures[1].chance"},
		{"attempts", "attempts: 4", "attempts: 65", "structures[0].attempts"},
		{"region", "region_chunks: 2", "region_chunks: 65", "structures[1].region_chunks"},
		{"climate min>max", "[0.3, 1]", "[1, 0.3]", "biomes[0].climate.temp"},
		{"depth", "min_depth: 1, max_depth: 3", "min_depth: 4, max_depth: 3", "biomes[1].layers[1]"},
		{"sea level", "sea_level: 8", "sea_level: 100", "sea_level"},
		{"vein y", "max_y: 0", "max_y: -20", "structures[0]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := strings.Replace(sampleProfile, tc.from, tc.to, 1)
			_, err := Parse([]byte(src), "x.yaml", Options{})
			wantConfigError(t, err, RuleRange, tc.path)
		})
	}
}

func TestSchemaRejectsMalformedDocuments(t *testing.T) {
	cases := map[string]string{
		"unknown key":    strings.Replace(sampleProfile, "sea_level: 8", "sea_levle: 8", 1),
		"missing fields": strings.Replace(sampleProfile, "fields:\n  height: height\n  climate: [temp]\n", "", 1),
		"bad kind":       strings.Replace(sampleProfile, "kind: carver", "kind: dungeon", 1),
		"chunk too wide": strings.Replace(sampleProfile, "width: 16", "width: 128", 1),
		"empty":          "",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src), "x.yaml", Options{})
			wantConfigError(t, err, RuleSchema, "x.yaml")
		})
	}

	_, err := Parse([]byte("name: [unterminated"), "x.yaml", Options{})
	wantConfigError(t, err, RuleSyntax, "x.yaml")
}

func TestHostPaletteMustMapEveryEntry(t *testing.T) {
	full, err := catalogs.NewBlockCatalog("AIR", "STONE", "DIRT", "GRASS", "SAND", "WATER", "LOG", "LEAVES", "COAL_ORE")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	mustParse(t, sampleProfile, Options{Palette: full})

	partial, err := catalogs.NewBlockCatalog("AIR", "STONE", "DIRT", "GRASS")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	_, err = Parse([]byte(sampleProfile), "x.yaml", Options{Palette: partial})
	wantConfigError(t, err, RuleHostPalette, "palette[4]")
}

func TestSchematicFromCatalog(t *testing.T) {
	src := strings.Replace(sampleProfile,
		"blocks: [{pos: [0, 1, 0], block: LOG}, {pos: [3, 1, -2], block: LOG}]",
		"schematic: well, y: 4", 1)
	_, err := Parse([]byte(src), "x.yaml", Options{})
	wantConfigError(t, err, RuleSchematic, "structures[2].schematic")

	defs := map[string]catalogs.SchematicDef{
		"well": {ID: "well", Blocks: []catalogs.SchematicBlock{{Pos: [3]int{-5, 0, 1}, Block: "STONE"}}},
	}
	p := mustParse(t, src, Options{Schematics: defs})
	s := p.Structures()[2]
	if !s.Schematic.Fixed || s.Schematic.FixedY != 4 || s.Reach != 5 || s.Schematic.ID != "well" {
		t.Fatalf("schematic: %+v %+v", s, s.Schematic)
	}
}

func TestWrapBoundaryNeedsWholeRegions(t *testing.T) {
	ok := strings.Replace(sampleProfile, "sea_level: 8", "sea_level: 8\nboundary: {mode: wrap, radius_chunks: 4}", 1)
	p := mustParse(t, ok, Options{})
	if b := p.Boundary(); b.Mode != coord.BoundaryWrap || b.RadiusChunks != 4 || b.Dims != p.Dimensions() {
		t.Fatalf("boundary: %+v", b)
	}

	bad := strings.Replace(sampleProfile, "sea_level: 8", "sea_level: 8\nboundary: {mode: wrap, radius_chunks: 3}", 1)
	_, err := Parse([]byte(bad), "x.yaml", Options{})
	wantConfigError(t, err, RuleBoundary, "structures[1].region_chunks")

	noRadius := strings.Replace(sampleProfile, "sea_level: 8", "sea_level: 8\nboundary: {mode: void}", 1)
	_, err = Parse([]byte(noRadius), "x.yaml", Options{})
	wantConfigError(t, err, RuleBoundary, "boundary.radius_chunks")
}

func TestResolveRequiresHeightField(t *testing.T) {
	doc := Document{
		Name:    "bare",
		Palette: []string{"AIR", "STONE"},
		Base:    "STONE",
		Noise:   []noise.Def{{Name: "flat", Type: "constant", Params: noise.Params{Value: 3}}},
		Biomes:  []BiomeDoc{{Name: "plains", Layers: []LayerDoc{{Palette: "STONE"}}}},
	}
	_, err := Resolve(doc, Options{})
	wantConfigError(t, err, RuleRequired, "fields.height")

	doc.Fields.Height = "flat"
	p, err := Resolve(doc, Options{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.Dimensions().Width != 16 || p.Dimensions().Height != 256 || p.SeaLevel() != -1 {
		t.Fatalf("defaults: %+v sea=%d", p.Dimensions(), p.SeaLevel())
	}
	if _, ok := p.Fluid(); ok {
		t.Fatalf("no fluid expected")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "p.yaml")
	if err := os.WriteFile(path, []byte(sampleProfile), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := LoadFile(path, Options{Seed: 3})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Name() != "sample" || p.Source() != path {
		t.Fatalf("loaded: %q %q", p.Name(), p.Source())
	}
	if _, err := LoadFile(filepath.Join(dir, "missing.yaml"), Options{}); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
