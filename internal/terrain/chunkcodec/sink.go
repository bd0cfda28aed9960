package chunkcodec

import (
	"io"
	"sync"

	"terragen.ai/internal/terrain/pipeline"
)

// HostPalette maps profile palette entries to a host's numeric block ids.
// catalogs.BlockCatalog is the reference implementation.
type HostPalette interface {
	LookupOrAir(entry string) uint16
	Entries() []string
}

// ToHost returns a copy of res whose block ids index the host palette.
// Entries the host does not know become its AIR. Biomes, heights and
// structures are shared with res.
func ToHost(res *pipeline.ChunkResult, host HostPalette) *pipeline.ChunkResult {
	table := make([]uint16, len(res.Palette))
	for i, entry := range res.Palette {
		table[i] = host.LookupOrAir(entry)
	}
	out := *res
	out.Palette = host.Entries()
	out.Blocks = make([]uint16, len(res.Blocks))
	for i, b := range res.Blocks {
		out.Blocks[i] = table[b]
	}
	return &out
}

// EncodedSink writes every delivered chunk as a frame to w. Deliveries from
// concurrent workers are serialized. With a host palette, frames carry host
// block ids instead of profile palette ids.
type EncodedSink struct {
	host HostPalette

	mu    sync.Mutex
	w     io.Writer
	count int
}

// NewEncodedSink writes to w. host may be nil.
func NewEncodedSink(w io.Writer, host HostPalette) *EncodedSink {
	return &EncodedSink{w: w, host: host}
}

func (s *EncodedSink) Deliver(res *pipeline.ChunkResult) error {
	if s.host != nil {
		res = ToHost(res, s.host)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := WriteFrame(s.w, res); err != nil {
		return err
	}
	s.count++
	return nil
}

// Count is the number of frames written so far.
func (s *EncodedSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
