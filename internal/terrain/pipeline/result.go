package pipeline

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"terragen.ai/internal/terrain/coord"
)

// ChunkResult is the finished content of one chunk. Once handed to a sink
// the sink owns it; the generator keeps no reference.
type ChunkResult struct {
	Coord         coord.ChunkCoord
	Seed          int64
	ProfileDigest string
	Dims          coord.Dimensions

	// Blocks holds palette ids, index (y-MinY)*Width*Depth + z*Width + x.
	Blocks []uint16
	// Biomes and Heights are per column, index z*Width + x. Heights is the
	// surface y before structures are applied.
	Biomes  []uint16
	Heights []int32

	Structures []StructureInstance
	Palette    []string
	BiomeNames []string
}

// StructureInstance records a placement that wrote into the chunk.
type StructureInstance struct {
	Rule    string           `json:"rule"`
	Kind    string           `json:"kind"`
	Anchor  [3]int           `json:"anchor"`
	Region  coord.ChunkCoord `json:"region"`
	Attempt int              `json:"attempt"`
	Bounds  coord.Box        `json:"bounds"`
}

// Entry returns the palette entry at chunk-local (x, z) and world y.
func (r *ChunkResult) Entry(x, y, z int) string {
	if x < 0 || x >= r.Dims.Width || z < 0 || z >= r.Dims.Depth || y < r.Dims.MinY || y > r.Dims.MaxY() {
		return ""
	}
	return r.Palette[r.Blocks[r.Dims.Index(x, y, z)]]
}

func (r *ChunkResult) Biome(x, z int) string {
	return r.BiomeNames[r.Biomes[r.Dims.ColumnIndex(x, z)]]
}

// Digest fingerprints everything a sink can observe. Equal digests mean
// equal chunks.
func (r *ChunkResult) Digest() string {
	h := sha256.New()
	var tmp [8]byte
	writeI64 := func(v int64) {
		binary.LittleEndian.PutUint64(tmp[:], uint64(v))
		h.Write(tmp[:])
	}
	writeStr := func(s string) {
		writeI64(int64(len(s)))
		h.Write([]byte(s))
	}

	writeI64(r.Seed)
	writeI64(int64(r.Coord.X))
	writeI64(int64(r.Coord.Z))
	writeI64(int64(r.Dims.Width))
	writeI64(int64(r.Dims.Depth))
	writeI64(int64(r.Dims.MinY))
	writeI64(int64(r.Dims.Height))

	writeI64(int64(len(r.Palette)))
	for _, e := range r.Palette {
		writeStr(e)
	}
	for _, v := range r.Blocks {
		binary.LittleEndian.PutUint16(tmp[:2], v)
		h.Write(tmp[:2])
	}
	for _, v := range r.Biomes {
		binary.LittleEndian.PutUint16(tmp[:2], v)
		h.Write(tmp[:2])
	}
	for _, v := range r.Heights {
		writeI64(int64(v))
	}
	writeI64(int64(len(r.Structures)))
	for _, s := range r.Structures {
		writeStr(s.Rule)
		writeI64(int64(s.Anchor[0]))
		writeI64(int64(s.Anchor[1]))
		writeI64(int64(s.Anchor[2]))
		writeI64(int64(s.Attempt))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Validate checks that buffer sizes match Dims and that every id indexes
// its name table. Entry and Biome are safe to call on a valid result.
func (r *ChunkResult) Validate() error {
	d := r.Dims
	if len(r.Blocks) != d.Volume() || len(r.Biomes) != d.Columns() || len(r.Heights) != d.Columns() {
		return fmt.Errorf("invariant: buffer sizes %d/%d/%d do not match dimensions", len(r.Blocks), len(r.Biomes), len(r.Heights))
	}
	for i, b := range r.Blocks {
		if int(b) >= len(r.Palette) {
			return fmt.Errorf("invariant: block %d has palette id %d outside palette of %d", i, b, len(r.Palette))
		}
	}
	for i, b := range r.Biomes {
		if int(b) >= len(r.BiomeNames) {
			return fmt.Errorf("invariant: column %d has biome %d of %d", i, b, len(r.BiomeNames))
		}
	}
	for i, h := range r.Heights {
		if int(h) < d.MinY-1 || int(h) > d.MaxY() {
			return fmt.Errorf("invariant: column %d surface %d outside [%d,%d]", i, h, d.MinY-1, d.MaxY())
		}
	}
	return nil
}
