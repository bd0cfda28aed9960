package pipeline

import (
	"fmt"

	"terragen.ai/internal/terrain/coord"
)

// GenerationFault is a failure confined to one chunk: a recovered panic or
// a broken internal invariant. Retrying the same coordinate is safe.
type GenerationFault struct {
	Coord coord.ChunkCoord
	Seed  int64
	Stage Stage
	Err   error
	Stack []byte
}

func (f *GenerationFault) Error() string {
	return fmt.Sprintf("generate chunk %s (seed %d) at %s: %v", f.Coord, f.Seed, f.Stage, f.Err)
}

func (f *GenerationFault) Unwrap() error { return f.Err }

// FaultRecorder receives every fault after it is logged.
type FaultRecorder interface {
	RecordFault(f *GenerationFault)
}

// Sink receives finished chunks.
type Sink interface {
	Deliver(res *ChunkResult) error
}

type SinkFunc func(res *ChunkResult) error

func (f SinkFunc) Deliver(res *ChunkResult) error { return f(res) }

// FaultRecorders fans a fault out to several recorders in order.
type FaultRecorders []FaultRecorder

func (rs FaultRecorders) RecordFault(f *GenerationFault) {
	for _, r := range rs {
		if r != nil {
			r.RecordFault(f)
		}
	}
}
