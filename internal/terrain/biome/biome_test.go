package biome

import (
	"sync"
	"testing"

	"terragen.ai/internal/terrain/noise"
	"terragen.ai/internal/terrain/profile"
)

func resolveDoc(t *testing.T, doc profile.Document) *profile.Profile {
	t.Helper()
	p, err := profile.Resolve(doc, profile.Options{Seed: 1})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	return p
}

func intp(v int) *int { return &v }

func climateDoc() profile.Document {
	return profile.Document{
		Name:     "climate",
		Chunk:    profile.ChunkDoc{Height: 32},
		SeaLevel: intp(10),
		Palette:  []string{"AIR", "STONE", "GRASS", "DIRT", "SAND", "WATER", "ICE"},
		Base:     "STONE",
		Fluid:    "WATER",
		Noise: []noise.Def{
			{Name: "h", Type: "constant", Params: noise.Params{Value: 8}},
			{Name: "temp", Type: "constant"},
			{Name: "rain", Type: "constant"},
		},
		Fields: profile.FieldsDoc{Height: "h", Climate: []string{"temp", "rain"}},
		Biomes: []profile.BiomeDoc{
			{Name: "warm", Climate: map[string][]float64{"temp": {0, 1}}, Layers: []profile.LayerDoc{{Palette: "SAND"}}},
			{Name: "wet", Climate: map[string][]float64{"rain": {0.5, 1}}, Layers: []profile.LayerDoc{{Palette: "DIRT"}}},
			{Name: "cold", Climate: map[string][]float64{"temp": {-1, -0.5}}, Fluid: "ICE", Layers: []profile.LayerDoc{
				{Palette: "GRASS", MaxDepth: intp(0)},
				{Palette: "DIRT", MinDepth: 1, MaxDepth: intp(2), MinY: intp(3)},
			}},
		},
	}
}

func TestResolveFirstDeclaredMatchWins(t *testing.T) {
	r := NewResolver(resolveDoc(t, climateDoc()))
	cases := []struct {
		climate []float64
		want    int
	}{
		{[]float64{0.5, 0.7}, 0},  // warm and wet both match
		{[]float64{-0.2, 0.7}, 1}, // only wet
		{[]float64{-0.7, 0.1}, 2}, // only cold
		{[]float64{-0.3, 0.2}, 2}, // none match; cold is nearest
	}
	for _, tc := range cases {
		if got := r.Resolve(tc.climate); got != tc.want {
			t.Fatalf("Resolve(%v) = %d, want %d", tc.climate, got, tc.want)
		}
	}
}

func TestResolveNearestTieGoesToFirst(t *testing.T) {
	r := NewResolver(resolveDoc(t, climateDoc()))
	// temp=-0.25 is 0.25 from warm and 0.25 from cold; rain=0.25 is 0.25 from
	// wet. All three tie.
	if got := r.Resolve([]float64{-0.25, 0.25}); got != 0 {
		t.Fatalf("tie: got %d want 0", got)
	}
}

func TestResolveConcurrentIsStable(t *testing.T) {
	r := NewResolver(resolveDoc(t, climateDoc()))
	var wg sync.WaitGroup
	errs := make(chan int, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				if got := r.Resolve([]float64{0.5, 0.7}); got != 0 {
					errs <- got
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for got := range errs {
		t.Fatalf("concurrent resolve picked %d", got)
	}
}

func TestBlockLayers(t *testing.T) {
	p := resolveDoc(t, climateDoc())
	r := NewResolver(p)
	entry := func(b, y, surface int) string { return p.Entry(r.Block(b, y, surface)) }

	cases := []struct {
		b, y, surface int
		want          string
	}{
		{2, 8, 8, "GRASS"}, // surface
		{2, 7, 8, "DIRT"},  // depth 1
		{2, 6, 8, "DIRT"},  // depth 2
		{2, 5, 8, "STONE"}, // below dirt band, base
		{2, 2, 3, "STONE"}, // depth 1 but y below dirt min_y
		{2, 9, 8, "ICE"},   // biome fluid up to sea level
		{2, 10, 8, "ICE"},  // sea level itself
		{2, 11, 8, "AIR"},  // above sea level
		{0, 9, 8, "WATER"}, // profile fluid
		{0, 0, 8, "SAND"},  // open layer
	}
	for _, tc := range cases {
		if got := entry(tc.b, tc.y, tc.surface); got != tc.want {
			t.Fatalf("Block(%d,%d,%d) = %s want %s", tc.b, tc.y, tc.surface, got, tc.want)
		}
	}

	col := make([]uint16, 4)
	r.FillColumn(2, 6, 8, col)
	want := []string{"DIRT", "DIRT", "GRASS", "ICE"}
	for i, id := range col {
		if p.Entry(id) != want[i] {
			t.Fatalf("FillColumn[%d] = %s want %s", i, p.Entry(id), want[i])
		}
	}
}
