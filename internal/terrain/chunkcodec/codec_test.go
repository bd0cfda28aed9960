package chunkcodec

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"terragen.ai/internal/catalogs"
	"terragen.ai/internal/terrain/coord"
	"terragen.ai/internal/terrain/pipeline"
	"terragen.ai/internal/terrain/profile"
)

const codecProfile = `
name: codec
chunk: {width: 16, depth: 16, min_y: -4, height: 40}
sea_level: 10
palette: [AIR, STONE, GRASS, WATER, LOG, LEAVES]
base: STONE
fluid: WATER
noise:
  - {name: n, type: gradient, frequency: 0.04, dims: 2}
  - {name: h, type: remap, inputs: [n], from: [-1, 1], to: [2, 24]}
  - {name: t, type: white, dims: 2}
fields: {height: h, climate: [t]}
biomes:
  - name: low
    climate: {t: [0, 0.5]}
    layers: [{palette: GRASS, max_depth: 0}]
  - name: high
    layers: [{palette: STONE}]
structures:
  - {name: oak, kind: tree, trunk: LOG, leaves: LEAVES, attempts: 6}
`

func generate(t *testing.T, coords ...coord.ChunkCoord) []*pipeline.ChunkResult {
	t.Helper()
	p, err := profile.Parse([]byte(codecProfile), "codec.yaml", profile.Options{Seed: 77})
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	g := pipeline.New(p, pipeline.Options{})
	var out []*pipeline.ChunkResult
	for _, c := range coords {
		res, err := g.Generate(c)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		out = append(out, res)
	}
	return out
}

func TestMarshalRoundTrip(t *testing.T) {
	res := generate(t, coord.ChunkCoord{X: -3, Z: 2})[0]
	data, err := Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(data) >= len(res.Blocks)*2 {
		t.Fatalf("encoded chunk is not compact: %d bytes", len(data))
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Digest() != res.Digest() {
		t.Fatalf("digest changed across the codec")
	}
	if got.ProfileDigest != res.ProfileDigest || len(got.Structures) != len(res.Structures) {
		t.Fatalf("metadata lost: %q %d", got.ProfileDigest, len(got.Structures))
	}
	for i := range res.Structures {
		if got.Structures[i] != res.Structures[i] {
			t.Fatalf("structure %d: got %+v want %+v", i, got.Structures[i], res.Structures[i])
		}
	}
}

func TestEncodedSinkFrames(t *testing.T) {
	results := generate(t, coord.ChunkCoord{}, coord.ChunkCoord{X: 1}, coord.ChunkCoord{Z: -1})
	var buf bytes.Buffer
	sink := NewEncodedSink(&buf, nil)
	for _, res := range results {
		if err := sink.Deliver(res); err != nil {
			t.Fatalf("deliver: %v", err)
		}
	}
	if sink.Count() != 3 {
		t.Fatalf("count: %d", sink.Count())
	}
	for i := 0; ; i++ {
		got, err := ReadFrame(&buf)
		if errors.Is(err, io.EOF) {
			if i != len(results) {
				t.Fatalf("read %d frames, want %d", i, len(results))
			}
			break
		}
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if got.Digest() != results[i].Digest() {
			t.Fatalf("frame %d digest mismatch", i)
		}
	}
}

func TestUnmarshalRejectsCorruptInput(t *testing.T) {
	res := generate(t, coord.ChunkCoord{})[0]
	data, err := Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	cases := map[string][]byte{
		"empty":     nil,
		"magic":     append([]byte("XYZ"), data[3:]...),
		"version":   append(append([]byte{}, data[:3]...), append([]byte{9}, data[4:]...)...),
		"truncated": data[:len(data)/2],
	}
	corrupt := func(mut func(r *pipeline.ChunkResult)) []byte {
		c := *res
		c.Blocks = append([]uint16(nil), res.Blocks...)
		c.Biomes = append([]uint16(nil), res.Biomes...)
		c.Heights = append([]int32(nil), res.Heights...)
		mut(&c)
		b, err := Marshal(&c)
		if err != nil {
			t.Fatalf("marshal corrupt: %v", err)
		}
		return b
	}
	cases["block id"] = corrupt(func(r *pipeline.ChunkResult) { r.Blocks[0] = uint16(len(r.Palette) + 990) })
	cases["biome id"] = corrupt(func(r *pipeline.ChunkResult) { r.Biomes[3] = uint16(len(r.BiomeNames)) })
	cases["height"] = corrupt(func(r *pipeline.ChunkResult) { r.Heights[0] = int32(r.Dims.MaxY() + 1) })
	for name, in := range cases {
		if _, err := Unmarshal(in); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	var buf bytes.Buffer
	if err := WriteFrame(&buf, res); err != nil {
		t.Fatalf("write: %v", err)
	}
	short := bytes.NewReader(buf.Bytes()[:buf.Len()-5])
	if _, err := ReadFrame(short); err == nil || errors.Is(err, io.EOF) {
		t.Fatalf("expected truncated frame error, got %v", err)
	}
}

func TestEncodedSinkMapsToHostPalette(t *testing.T) {
	// The host has no LEAVES block; it degrades to AIR.
	host, err := catalogs.NewBlockCatalog("AIR", "STONE", "GRASS", "WATER", "LOG", "DIRT", "SAND")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	res := generate(t, coord.ChunkCoord{X: 2, Z: 2})[0]
	var buf bytes.Buffer
	sink := NewEncodedSink(&buf, host)
	if err := sink.Deliver(res); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got.Palette) != len(host.Palette) {
		t.Fatalf("palette: got %v want host palette %v", got.Palette, host.Palette)
	}
	d := res.Dims
	for y := d.MinY; y <= d.MaxY(); y++ {
		for z := 0; z < d.Depth; z++ {
			for x := 0; x < d.Width; x++ {
				want := res.Entry(x, y, z)
				if want == "LEAVES" {
					want = catalogs.Air
				}
				if e := got.Entry(x, y, z); e != want {
					t.Fatalf("voxel (%d,%d,%d): got %q want %q", x, y, z, e, want)
				}
			}
		}
	}
	if len(res.Palette) != 6 {
		t.Fatalf("source chunk palette was replaced: %v", res.Palette)
	}
}
