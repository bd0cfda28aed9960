package scheduler

import (
	"errors"

	"terragen.ai/internal/terrain/coord"
	"terragen.ai/internal/terrain/pipeline"
)

type (
	Sink     = pipeline.Sink
	SinkFunc = pipeline.SinkFunc
)

// FailureSink is implemented by sinks that want to hear about chunks that
// could not be generated or delivered.
type FailureSink interface {
	Fail(c coord.ChunkCoord, err error)
}

// MultiSink delivers to every member in order. All members see the result
// even when an earlier one fails.
type MultiSink []Sink

func (m MultiSink) Deliver(res *pipeline.ChunkResult) error {
	var errs []error
	for _, s := range m {
		if err := s.Deliver(res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiSink) Fail(c coord.ChunkCoord, err error) {
	for _, s := range m {
		if fs, ok := s.(FailureSink); ok {
			fs.Fail(c, err)
		}
	}
}
