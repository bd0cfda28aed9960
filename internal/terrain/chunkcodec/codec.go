// Package chunkcodec is the binary wire form of a ChunkResult, for sinks
// that hand chunks to another process. It is not a storage format.
package chunkcodec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"

	"terragen.ai/internal/encoding"
	"terragen.ai/internal/terrain/coord"
	"terragen.ai/internal/terrain/pipeline"
)

const (
	Version  = 1
	maxFrame = 1 << 28
)

var magic = [3]byte{'T', 'G', 'C'}

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

func codecs() (*zstd.Encoder, *zstd.Decoder, error) {
	codecOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxFrame))
	})
	return encoder, decoder, codecErr
}

// Marshal encodes res as magic, version byte and a zstd frame holding the
// payload.
func Marshal(res *pipeline.ChunkResult) ([]byte, error) {
	enc, _, err := codecs()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 4096)
	out = append(out, magic[:]...)
	out = append(out, Version)
	return enc.EncodeAll(payload(res), out), nil
}

func payload(res *pipeline.ChunkResult) []byte {
	var b []byte
	str := func(s string) {
		b = binary.AppendUvarint(b, uint64(len(s)))
		b = append(b, s...)
	}
	ints := func(vs ...int) {
		for _, v := range vs {
			b = binary.AppendVarint(b, int64(v))
		}
	}

	b = binary.AppendVarint(b, res.Seed)
	ints(res.Coord.X, res.Coord.Z, res.Dims.Width, res.Dims.Depth, res.Dims.MinY, res.Dims.Height)
	str(res.ProfileDigest)

	b = binary.AppendUvarint(b, uint64(len(res.Palette)))
	for _, e := range res.Palette {
		str(e)
	}
	b = binary.AppendUvarint(b, uint64(len(res.BiomeNames)))
	for _, n := range res.BiomeNames {
		str(n)
	}

	blocks := encoding.AppendRLE(nil, res.Blocks)
	b = binary.AppendUvarint(b, uint64(len(blocks)))
	b = append(b, blocks...)
	biomes := encoding.AppendRLE(nil, res.Biomes)
	b = binary.AppendUvarint(b, uint64(len(biomes)))
	b = append(b, biomes...)
	b = encoding.AppendVarints(b, res.Heights)

	b = binary.AppendUvarint(b, uint64(len(res.Structures)))
	for _, s := range res.Structures {
		str(s.Rule)
		str(s.Kind)
		ints(s.Anchor[0], s.Anchor[1], s.Anchor[2], s.Region.X, s.Region.Z, s.Attempt)
		ints(s.Bounds.MinX, s.Bounds.MinY, s.Bounds.MinZ, s.Bounds.MaxX, s.Bounds.MaxY, s.Bounds.MaxZ)
	}
	return b
}

func Unmarshal(data []byte) (*pipeline.ChunkResult, error) {
	if len(data) < len(magic)+1 || !bytes.Equal(data[:len(magic)], magic[:]) {
		return nil, errors.New("chunkcodec: bad magic")
	}
	if v := data[len(magic)]; v != Version {
		return nil, fmt.Errorf("chunkcodec: unsupported version %d", v)
	}
	_, dec, err := codecs()
	if err != nil {
		return nil, err
	}
	raw, err := dec.DecodeAll(data[len(magic)+1:], nil)
	if err != nil {
		return nil, fmt.Errorf("chunkcodec: %w", err)
	}
	r := &reader{b: raw}
	res := r.result()
	if r.err != nil {
		return nil, fmt.Errorf("chunkcodec: %w", r.err)
	}
	if r.off != len(r.b) {
		return nil, fmt.Errorf("chunkcodec: %d trailing bytes", len(r.b)-r.off)
	}
	if err := res.Validate(); err != nil {
		return nil, fmt.Errorf("chunkcodec: %w", err)
	}
	return res, nil
}

// reader decodes the payload; the first error sticks and later reads
// return zero values.
type reader struct {
	b   []byte
	off int
	err error
}

func (r *reader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf(format, args...)
	}
}

func (r *reader) varint() int64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Varint(r.b[r.off:])
	if n <= 0 {
		r.fail("bad varint at %d", r.off)
		return 0
	}
	r.off += n
	return v
}

func (r *reader) int() int { return int(r.varint()) }

func (r *reader) uvarint(limit uint64) int {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.b[r.off:])
	if n <= 0 {
		r.fail("bad uvarint at %d", r.off)
		return 0
	}
	if v > limit {
		r.fail("length %d at %d exceeds %d", v, r.off, limit)
		return 0
	}
	r.off += n
	return int(v)
}

func (r *reader) bytes() []byte {
	n := r.uvarint(uint64(len(r.b) - r.off))
	if r.err != nil {
		return nil
	}
	out := r.b[r.off : r.off+n]
	r.off += n
	return out
}

func (r *reader) str() string { return string(r.bytes()) }

func (r *reader) strs() []string {
	n := r.uvarint(uint64(len(r.b) - r.off))
	out := make([]string, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		out = append(out, r.str())
	}
	return out
}

func (r *reader) result() *pipeline.ChunkResult {
	res := &pipeline.ChunkResult{Seed: r.varint()}
	res.Coord = coord.ChunkCoord{X: r.int(), Z: r.int()}
	res.Dims = coord.Dimensions{Width: r.int(), Depth: r.int(), MinY: r.int(), Height: r.int()}
	res.ProfileDigest = r.str()
	res.Palette = r.strs()
	res.BiomeNames = r.strs()
	if r.err != nil {
		return nil
	}
	d := res.Dims
	if d.Width <= 0 || d.Depth <= 0 || d.Height <= 0 || d.Volume() > maxFrame {
		r.fail("bad dimensions %+v", d)
		return nil
	}

	var err error
	if res.Blocks, err = encoding.DecodeRLE(r.bytes(), d.Volume()); err != nil {
		r.fail("blocks: %v", err)
	}
	if res.Biomes, err = encoding.DecodeRLE(r.bytes(), d.Columns()); err != nil {
		r.fail("biomes: %v", err)
	}
	if r.err != nil {
		return nil
	}
	if len(res.Blocks) != d.Volume() || len(res.Biomes) != d.Columns() {
		r.fail("got %d blocks and %d biomes for %+v", len(res.Blocks), len(res.Biomes), d)
		return nil
	}
	heights, n, err := encoding.DecodeVarints(r.b[r.off:], d.Columns())
	if err != nil {
		r.fail("heights: %v", err)
		return nil
	}
	r.off += n
	res.Heights = heights

	count := r.uvarint(uint64(len(r.b) - r.off))
	for i := 0; i < count && r.err == nil; i++ {
		s := pipeline.StructureInstance{Rule: r.str(), Kind: r.str()}
		s.Anchor = [3]int{r.int(), r.int(), r.int()}
		s.Region = coord.ChunkCoord{X: r.int(), Z: r.int()}
		s.Attempt = r.int()
		s.Bounds = coord.Box{MinX: r.int(), MinY: r.int(), MinZ: r.int(), MaxX: r.int(), MaxY: r.int(), MaxZ: r.int()}
		res.Structures = append(res.Structures, s)
	}
	return res
}

// WriteFrame writes res as a big-endian uint32 length followed by its
// Marshal form.
func WriteFrame(w io.Writer, res *pipeline.ChunkResult) error {
	body, err := Marshal(res)
	if err != nil {
		return err
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// ReadFrame reads one frame written by WriteFrame. It returns io.EOF when
// r is exhausted at a frame boundary.
func ReadFrame(r io.Reader) (*pipeline.ChunkResult, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("chunkcodec: truncated frame header")
		}
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrame {
		return nil, fmt.Errorf("chunkcodec: frame of %d bytes too large", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("chunkcodec: truncated frame: %w", err)
	}
	return Unmarshal(body)
}
