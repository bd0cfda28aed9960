// Package scheduler runs chunk requests on a fixed set of workers behind a
// bounded queue.
package scheduler

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"terragen.ai/internal/terrain/coord"
	"terragen.ai/internal/terrain/pipeline"
)

var (
	ErrQueueFull = errors.New("scheduler: queue full")
	ErrClosed    = errors.New("scheduler: closed")
	ErrCanceled  = errors.New("scheduler: request canceled")
)

type Config struct {
	Workers   int
	QueueSize int
	Logger    *log.Logger
}

type Stats struct {
	Workers   int
	Queued    int
	Submitted uint64
	Rejected  uint64
	Completed uint64
	Failed    uint64
	Canceled  uint64
}

const (
	ticketPending int32 = iota
	ticketRunning
	ticketDone
	ticketCanceled
)

// Ticket tracks one submitted chunk request.
type Ticket struct {
	ID    uuid.UUID
	Coord coord.ChunkCoord

	state atomic.Int32
	done  chan struct{}
	err   error
}

// Cancel drops the request if no worker has started it. Started work always
// runs to completion; Cancel then reports false.
func (t *Ticket) Cancel() bool {
	if !t.state.CompareAndSwap(ticketPending, ticketCanceled) {
		return false
	}
	t.err = ErrCanceled
	close(t.done)
	return true
}

func (t *Ticket) Done() <-chan struct{} { return t.done }

// Err is valid once Done is closed.
func (t *Ticket) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type Pool struct {
	gen    *pipeline.Generator
	sink   Sink
	logger *log.Logger

	mu      sync.RWMutex
	closed  bool
	stop    chan struct{}
	waiters sync.WaitGroup
	queue   chan *Ticket
	group   errgroup.Group

	workers   int
	submitted atomic.Uint64
	rejected  atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	canceled  atomic.Uint64
}

func NewPool(gen *pipeline.Generator, sink Sink, cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 4
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	p := &Pool{
		gen:     gen,
		sink:    sink,
		logger:  logger,
		stop:    make(chan struct{}),
		queue:   make(chan *Ticket, cfg.QueueSize),
		workers: cfg.Workers,
	}
	for i := 0; i < cfg.Workers; i++ {
		p.group.Go(func() error {
			for t := range p.queue {
				p.run(t)
			}
			return nil
		})
	}
	return p
}

func newTicket(c coord.ChunkCoord) *Ticket {
	return &Ticket{ID: uuid.New(), Coord: c, done: make(chan struct{})}
}

// Submit enqueues c without blocking. A full queue yields ErrQueueFull.
func (p *Pool) Submit(c coord.ChunkCoord) (*Ticket, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrClosed
	}
	t := newTicket(c)
	select {
	case p.queue <- t:
		p.submitted.Add(1)
		return t, nil
	default:
		p.rejected.Add(1)
		return nil, ErrQueueFull
	}
}

// SubmitWait enqueues c, waiting for queue space until ctx is done or the
// pool is closed. The pool lock is not held while waiting.
func (p *Pool) SubmitWait(ctx context.Context, c coord.ChunkCoord) (*Ticket, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, ErrClosed
	}
	p.waiters.Add(1)
	p.mu.RUnlock()
	defer p.waiters.Done()

	t := newTicket(c)
	select {
	case p.queue <- t:
		p.submitted.Add(1)
		return t, nil
	case <-ctx.Done():
		p.rejected.Add(1)
		return nil, ctx.Err()
	case <-p.stop:
		p.rejected.Add(1)
		return nil, ErrClosed
	}
}

func (p *Pool) run(t *Ticket) {
	if !t.state.CompareAndSwap(ticketPending, ticketRunning) {
		p.canceled.Add(1)
		return
	}
	err := p.gen.GenerateTo(t.Coord, p.sink)
	if err != nil {
		p.failed.Add(1)
		p.logger.Printf("request=%s chunk=%s failed: %v", t.ID, t.Coord, err)
		if fs, ok := p.sink.(FailureSink); ok {
			fs.Fail(t.Coord, err)
		}
	} else {
		p.completed.Add(1)
	}
	t.err = err
	t.state.Store(ticketDone)
	close(t.done)
}

// Close stops accepting requests, lets the workers drain the queue and
// waits for them.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.stop)
	p.mu.Unlock()
	// Blocked SubmitWait callers see stop and leave before the queue closes.
	p.waiters.Wait()
	close(p.queue)
	return p.group.Wait()
}

func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.workers,
		Queued:    len(p.queue),
		Submitted: p.submitted.Load(),
		Rejected:  p.rejected.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Canceled:  p.canceled.Load(),
	}
}
