// Package pipeline turns a chunk coordinate into a finished ChunkResult:
// base noise, biomes and palette, structures, then validation.
package pipeline

import (
	"fmt"
	"io"
	"log"
	"math"
	"runtime/debug"
	"slices"

	"terragen.ai/internal/terrain/biome"
	"terragen.ai/internal/terrain/coord"
	"terragen.ai/internal/terrain/noise"
	"terragen.ai/internal/terrain/profile"
	"terragen.ai/internal/terrain/structure"
)

type Options struct {
	// Cache memoizes noise slabs; nil disables it. Output is identical
	// either way.
	Cache *noise.SlabCache
	// Placements memoizes structure placements per region.
	Placements *structure.PlacementCache
	Logger     *log.Logger
	Faults     FaultRecorder
	// OnStage observes every stage transition. It runs on the generating
	// goroutine and must be safe for concurrent use.
	OnStage func(c coord.ChunkCoord, s Stage)
}

// Generator is safe for concurrent use; Generate may run for many chunks at
// once and for the same chunk more than once.
type Generator struct {
	prof    *profile.Profile
	graph   *noise.Graph
	ctx     *noise.Context
	dims    coord.Dimensions
	bound   coord.Boundary
	biomes  *biome.Resolver
	structs *structure.Engine
	terrain columns

	biomeNames []string

	logger  *log.Logger
	faults  FaultRecorder
	onStage func(coord.ChunkCoord, Stage)
}

func New(p *profile.Profile, opts Options) *Generator {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	g := &Generator{
		prof:    p,
		graph:   p.Graph(),
		ctx:     &noise.Context{Cache: opts.Cache},
		dims:    p.Dimensions(),
		bound:   p.Boundary(),
		biomes:  biome.NewResolver(p),
		structs: structure.NewEngine(p, structure.Options{Cache: opts.Placements}),
		logger:  logger,
		faults:  opts.Faults,
		onStage: opts.OnStage,
	}
	g.terrain = columns{g: g}
	for i := 0; i < g.biomes.Len(); i++ {
		g.biomeNames = append(g.biomeNames, g.biomes.Biome(i).Name)
	}
	return g
}

func (g *Generator) Profile() *profile.Profile { return g.prof }

// Generate builds chunk c. Failures come back as *GenerationFault.
func (g *Generator) Generate(c coord.ChunkCoord) (*ChunkResult, error) {
	res, err := g.generate(c)
	if err != nil {
		return nil, err
	}
	g.enter(c, StageDelivered)
	return res, nil
}

// GenerateTo builds chunk c and hands it to sink.
func (g *Generator) GenerateTo(c coord.ChunkCoord, sink Sink) error {
	res, err := g.generate(c)
	if err != nil {
		return err
	}
	if err := sink.Deliver(res); err != nil {
		return fmt.Errorf("deliver chunk %s: %w", c, err)
	}
	g.enter(c, StageDelivered)
	return nil
}

func (g *Generator) enter(c coord.ChunkCoord, s Stage) {
	if g.onStage != nil {
		g.onStage(c, s)
	}
}

func (g *Generator) generate(c coord.ChunkCoord) (res *ChunkResult, err error) {
	st := StageRequested
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, g.fail(c, st, panicErr(r), debug.Stack())
		}
	}()
	advance := func(s Stage) {
		st = s
		g.enter(c, s)
	}
	advance(StageRequested)

	d := g.dims
	res = &ChunkResult{
		Coord:         c,
		Seed:          g.prof.Seed(),
		ProfileDigest: g.prof.Digest(),
		Dims:          d,
		Blocks:        make([]uint16, d.Volume()),
		Biomes:        make([]uint16, d.Columns()),
		Heights:       make([]int32, d.Columns()),
		Palette:       slices.Clone(g.prof.Palette()),
		BiomeNames:    slices.Clone(g.biomeNames),
	}

	if g.bound.Mode == coord.BoundaryVoid && !g.bound.InBounds(c) {
		return g.generateVoid(res, advance)
	}

	advance(StageSamplingBaseNoise)
	axes := len(g.prof.ClimateFields())
	climate := make([]float64, d.Columns()*axes)
	ox, oz := d.Origin(c)
	for lz := 0; lz < d.Depth; lz++ {
		for lx := 0; lx < d.Width; lx++ {
			col := d.ColumnIndex(lx, lz)
			mx, mz := g.bound.MapColumn(ox+lx, oz+lz)
			res.Heights[col] = int32(g.surfaceAt(mx, mz))
			g.climateAt(mx, mz, climate[col*axes:(col+1)*axes])
		}
	}

	advance(StageResolvingBiomes)
	column := make([]uint16, d.Height)
	layer := d.Width * d.Depth
	for col := range res.Biomes {
		b := g.biomes.Resolve(climate[col*axes : (col+1)*axes])
		res.Biomes[col] = uint16(b)
		g.biomes.FillColumn(b, d.MinY, int(res.Heights[col]), column)
		for i, e := range column {
			res.Blocks[i*layer+col] = e
		}
	}

	advance(StagePlacingStructures)
	vol := structure.NewVolume(d, c, res.Blocks, res.Heights, res.Biomes)
	pls := g.structs.PlacementsFor(c, g.terrain)
	for i := range pls {
		pl := &pls[i]
		if err := g.structs.Apply(g.ctx, pl, vol); err != nil {
			return nil, g.fail(c, st, err, nil)
		}
		res.Structures = append(res.Structures, StructureInstance{
			Rule:    pl.Rule.Name,
			Kind:    string(pl.Rule.Kind),
			Anchor:  [3]int{pl.X, pl.Y, pl.Z},
			Region:  pl.Region,
			Attempt: pl.Attempt,
			Bounds:  pl.Bounds,
		})
	}

	advance(StageFinalizing)
	if err := res.Validate(); err != nil {
		return nil, g.fail(c, st, err, nil)
	}
	return res, nil
}

// generateVoid fills a chunk outside a void boundary with air. It still
// walks every stage so observers see the same sequence as for land.
func (g *Generator) generateVoid(res *ChunkResult, advance func(Stage)) (*ChunkResult, error) {
	advance(StageSamplingBaseNoise)
	for i := range res.Heights {
		res.Heights[i] = int32(res.Dims.MinY - 1)
	}
	advance(StageResolvingBiomes)
	air := g.prof.Air()
	for i := range res.Blocks {
		res.Blocks[i] = air
	}
	advance(StagePlacingStructures)
	advance(StageFinalizing)
	if err := res.Validate(); err != nil {
		return nil, g.fail(res.Coord, StageFinalizing, err, nil)
	}
	return res, nil
}

// surfaceAt is the top solid y of a column, clamped to one below the world
// floor and the world ceiling.
func (g *Generator) surfaceAt(x, z int) int {
	h := g.graph.Sample(g.ctx, g.prof.HeightField(), float64(x), 0, float64(z))
	if math.IsNaN(h) {
		panic(fmt.Errorf("height field is NaN at column (%d,%d)", x, z))
	}
	lo, hi := float64(g.dims.MinY-1), float64(g.dims.MaxY())
	return int(math.Floor(math.Max(lo, math.Min(hi, h))))
}

func (g *Generator) climateAt(x, z int, out []float64) {
	for a, id := range g.prof.ClimateFields() {
		out[a] = g.graph.Sample(g.ctx, id, float64(x), 0, float64(z))
	}
}

// check validates the invariants every delivered chunk must hold.
func (g *Generator) fail(c coord.ChunkCoord, st Stage, err error, stack []byte) error {
	f := &GenerationFault{Coord: c, Seed: g.prof.Seed(), Stage: st, Err: err, Stack: stack}
	g.logger.Printf("fault: chunk=%s seed=%d stage=%s err=%v", c, f.Seed, st, err)
	if g.faults != nil {
		g.faults.RecordFault(f)
	}
	g.enter(c, StageFailed)
	return f
}

func panicErr(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", r)
}

// columns exposes surface and biome lookups at arbitrary columns to the
// structure engine, through the same boundary mapping chunks use.
type columns struct {
	g *Generator
}

func (t columns) Surface(x, z int) int {
	mx, mz := t.g.bound.MapColumn(x, z)
	return t.g.surfaceAt(mx, mz)
}

func (t columns) Biome(x, z int) int {
	mx, mz := t.g.bound.MapColumn(x, z)
	climate := make([]float64, len(t.g.prof.ClimateFields()))
	t.g.climateAt(mx, mz, climate)
	return t.g.biomes.Resolve(climate)
}
