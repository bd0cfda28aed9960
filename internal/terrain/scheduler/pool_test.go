package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"terragen.ai/internal/terrain/coord"
	"terragen.ai/internal/terrain/pipeline"
	"terragen.ai/internal/terrain/profile"
)

const poolProfile = `
name: pool
chunk: {width: 8, depth: 8, min_y: 0, height: 16}
palette: [AIR, STONE, GRASS]
base: STONE
noise:
  - {name: n, type: gradient, frequency: 0.05, dims: 2}
  - {name: h, type: remap, inputs: [n], from: [-1, 1], to: [2, 12]}
fields: {height: h}
biomes:
  - name: plains
    layers: [{palette: GRASS, max_depth: 0}]
`

func newGenerator(t *testing.T, opts pipeline.Options) *pipeline.Generator {
	t.Helper()
	p, err := profile.Parse([]byte(poolProfile), "pool.yaml", profile.Options{Seed: 9})
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	return pipeline.New(p, opts)
}

type collectSink struct {
	mu       sync.Mutex
	results  map[coord.ChunkCoord][]string
	failures map[coord.ChunkCoord]error
}

func newCollectSink() *collectSink {
	return &collectSink{results: map[coord.ChunkCoord][]string{}, failures: map[coord.ChunkCoord]error{}}
}

func (s *collectSink) Deliver(res *pipeline.ChunkResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[res.Coord] = append(s.results[res.Coord], res.Digest())
	return nil
}

func (s *collectSink) Fail(c coord.ChunkCoord, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[c] = err
}

// gateSink blocks every delivery until release is closed and reports each
// delivery start on started.
type gateSink struct {
	started chan coord.ChunkCoord
	release chan struct{}
	inner   Sink
}

func (g *gateSink) Deliver(res *pipeline.ChunkResult) error {
	g.started <- res.Coord
	<-g.release
	return g.inner.Deliver(res)
}

func TestPoolDeliversEveryChunkOnce(t *testing.T) {
	gen := newGenerator(t, pipeline.Options{})
	sink := newCollectSink()
	pool := NewPool(gen, sink, Config{Workers: 4, QueueSize: 64})

	var tickets []*Ticket
	for z := -3; z <= 3; z++ {
		for x := -3; x <= 3; x++ {
			tk, err := pool.Submit(coord.ChunkCoord{X: x, Z: z})
			if err != nil {
				t.Fatalf("submit: %v", err)
			}
			tickets = append(tickets, tk)
		}
	}
	if err := pool.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	for _, tk := range tickets {
		if err := tk.Wait(context.Background()); err != nil {
			t.Fatalf("ticket %s: %v", tk.Coord, err)
		}
		got := sink.results[tk.Coord]
		if len(got) != 1 {
			t.Fatalf("chunk %s delivered %d times", tk.Coord, len(got))
		}
		res, err := gen.Generate(tk.Coord)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if res.Digest() != got[0] {
			t.Fatalf("chunk %s: pooled result differs from direct generation", tk.Coord)
		}
	}
	st := pool.Stats()
	if st.Submitted != 49 || st.Completed != 49 || st.Failed != 0 || st.Workers != 4 {
		t.Fatalf("stats: %+v", st)
	}
	if tickets[0].ID == tickets[1].ID {
		t.Fatalf("ticket ids should be unique")
	}
}

func TestPoolBackpressureAndCancel(t *testing.T) {
	gate := &gateSink{started: make(chan coord.ChunkCoord, 4), release: make(chan struct{}), inner: newCollectSink()}
	pool := NewPool(newGenerator(t, pipeline.Options{}), gate, Config{Workers: 1, QueueSize: 1})

	first, err := pool.Submit(coord.ChunkCoord{X: 1})
	if err != nil {
		t.Fatalf("submit first: %v", err)
	}
	<-gate.started // worker is busy with the first request

	second, err := pool.Submit(coord.ChunkCoord{X: 2})
	if err != nil {
		t.Fatalf("submit second: %v", err)
	}
	if _, err := pool.Submit(coord.ChunkCoord{X: 3}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := pool.SubmitWait(ctx, coord.ChunkCoord{X: 4}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}

	if first.Cancel() {
		t.Fatalf("started request must not be cancelable")
	}
	if !second.Cancel() {
		t.Fatalf("queued request should be cancelable")
	}
	if !errors.Is(second.Err(), ErrCanceled) {
		t.Fatalf("canceled ticket err: %v", second.Err())
	}

	close(gate.release)
	if err := first.Wait(context.Background()); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := pool.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := pool.Submit(coord.ChunkCoord{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	inner := gate.inner.(*collectSink)
	if _, ok := inner.results[coord.ChunkCoord{X: 2}]; ok {
		t.Fatalf("canceled chunk was delivered")
	}
	st := pool.Stats()
	if st.Completed != 1 || st.Canceled != 1 || st.Rejected != 2 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestPoolCloseReleasesBlockedSubmitWait(t *testing.T) {
	gate := &gateSink{started: make(chan coord.ChunkCoord, 4), release: make(chan struct{}), inner: newCollectSink()}
	pool := NewPool(newGenerator(t, pipeline.Options{}), gate, Config{Workers: 1, QueueSize: 1})

	if _, err := pool.Submit(coord.ChunkCoord{X: 1}); err != nil {
		t.Fatalf("submit first: %v", err)
	}
	<-gate.started
	if _, err := pool.Submit(coord.ChunkCoord{X: 2}); err != nil {
		t.Fatalf("submit second: %v", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		_, err := pool.SubmitWait(context.Background(), coord.ChunkCoord{X: 3})
		waitErr <- err
	}()
	closeErr := make(chan error, 1)
	go func() { closeErr <- pool.Close() }()

	select {
	case err := <-waitErr:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("SubmitWait still blocked after Close")
	}
	// The worker is still gated, so Close has not returned yet.
	if _, err := pool.Submit(coord.ChunkCoord{X: 4}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}

	close(gate.release)
	if err := <-closeErr; err != nil {
		t.Fatalf("close: %v", err)
	}
	inner := gate.inner.(*collectSink)
	if len(inner.results) != 2 {
		t.Fatalf("queued chunks should drain on close, got %d", len(inner.results))
	}
}

func TestPoolReportsFailuresToSink(t *testing.T) {
	bad := coord.ChunkCoord{X: -2, Z: 5}
	gen := newGenerator(t, pipeline.Options{
		OnStage: func(c coord.ChunkCoord, s pipeline.Stage) {
			if c == bad && s == pipeline.StageSamplingBaseNoise {
				panic("boom")
			}
		},
	})
	sink := newCollectSink()
	pool := NewPool(gen, MultiSink{sink}, Config{Workers: 2})
	badTicket, err := pool.Submit(bad)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	goodTicket, err := pool.Submit(coord.ChunkCoord{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := pool.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var gf *pipeline.GenerationFault
	if !errors.As(badTicket.Err(), &gf) || gf.Stage != pipeline.StageSamplingBaseNoise {
		t.Fatalf("bad ticket: %v", badTicket.Err())
	}
	if !errors.As(sink.failures[bad], &gf) {
		t.Fatalf("failure sink got %v", sink.failures[bad])
	}
	if goodTicket.Err() != nil || len(sink.results[coord.ChunkCoord{}]) != 1 {
		t.Fatalf("good chunk not delivered: %v", goodTicket.Err())
	}
	if st := pool.Stats(); st.Failed != 1 || st.Completed != 1 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestMultiSinkJoinsErrors(t *testing.T) {
	errA := errors.New("a")
	var calls int
	m := MultiSink{
		SinkFunc(func(*pipeline.ChunkResult) error { calls++; return errA }),
		SinkFunc(func(*pipeline.ChunkResult) error { calls++; return nil }),
	}
	if err := m.Deliver(&pipeline.ChunkResult{}); !errors.Is(err, errA) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("every sink should be called, got %d", calls)
	}
}
