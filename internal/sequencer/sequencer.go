// Package sequencer serializes operations per key.
//
// Each key (an auction ID) gets its own worker goroutine draining a bounded
// channel, so operations on one auction run one at a time in arrival order
// while different auctions proceed in parallel. Workers start on first use
// and exit after sitting idle.
package sequencer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/metrics"
	"auction-engine/utils"
)

// Op is one serialized operation. The context passed in is detached from
// the submitter's cancellation: once started, an op runs to completion.
type Op func(ctx context.Context) error

// Config bounds the per-key queues
type Config struct {
	QueueSize   int
	MaxWait     time.Duration
	IdleTimeout time.Duration
}

const (
	taskPending int32 = iota
	taskRunning
	taskWithdrawn
)

type task struct {
	ctx   context.Context
	op    Op
	state atomic.Int32
	done  chan struct{}
	err   error
}

func (t *task) start() bool    { return t.state.CompareAndSwap(taskPending, taskRunning) }
func (t *task) withdraw() bool { return t.state.CompareAndSwap(taskPending, taskWithdrawn) }

type queue struct {
	key   string
	tasks chan *task
}

// Sequencer runs operations one at a time per key
type Sequencer struct {
	cfg Config

	mu      sync.Mutex
	queues  map[string]*queue
	stopped bool

	quit chan struct{}
	wg   sync.WaitGroup
}

// New creates a sequencer; zero config fields fall back to small defaults
func New(cfg Config) *Sequencer {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = time.Minute
	}
	return &Sequencer{
		cfg:    cfg,
		queues: make(map[string]*queue),
		quit:   make(chan struct{}),
	}
}

// Submit enqueues op on key's queue and waits for it to finish.
// A full queue fails immediately; an op not started within MaxWait, or
// before ctx ends, is withdrawn. Both cases return ErrBackpressure.
func (s *Sequencer) Submit(ctx context.Context, key string, op Op) error {
	t := &task{ctx: context.WithoutCancel(ctx), op: op, done: make(chan struct{})}
	if err := s.enqueue(key, t); err != nil {
		return err
	}

	var deadline <-chan time.Time
	if s.cfg.MaxWait > 0 {
		timer := time.NewTimer(s.cfg.MaxWait)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case <-t.done:
		return t.err
	case <-deadline:
		if t.withdraw() {
			metrics.SequencerRejected.WithLabelValues("timeout").Inc()
			return fmt.Errorf("sequencer: %w - not started within %s", biddingerrors.ErrBackpressure, s.cfg.MaxWait)
		}
	case <-ctx.Done():
		if t.withdraw() {
			metrics.SequencerRejected.WithLabelValues("canceled").Inc()
			return fmt.Errorf("sequencer: %w - %v", biddingerrors.ErrBackpressure, ctx.Err())
		}
	}

	// already running, it always completes
	<-t.done
	return t.err
}

func (s *Sequencer) enqueue(key string, t *task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return biddingerrors.ErrSequencerStopped
	}

	q, ok := s.queues[key]
	if !ok {
		q = &queue{key: key, tasks: make(chan *task, s.cfg.QueueSize)}
		s.queues[key] = q
		s.wg.Add(1)
		metrics.SequencerActiveQueues.Inc()
		go s.run(q)
	}

	select {
	case q.tasks <- t:
		metrics.SequencerQueueDepth.Inc()
		return nil
	default:
		metrics.SequencerRejected.WithLabelValues("queue_full").Inc()
		return fmt.Errorf("sequencer: %w - queue for %s is full", biddingerrors.ErrBackpressure, key)
	}
}

func (s *Sequencer) run(q *queue) {
	defer s.wg.Done()
	defer metrics.SequencerActiveQueues.Dec()

	idle := time.NewTimer(s.cfg.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case t := <-q.tasks:
			metrics.SequencerQueueDepth.Dec()
			if t.start() {
				t.err = s.execute(q.key, t)
				close(t.done)
			}
			idle.Reset(s.cfg.IdleTimeout)

		case <-idle.C:
			// enqueue holds s.mu while sending, so an empty queue here stays empty
			s.mu.Lock()
			if len(q.tasks) == 0 {
				delete(s.queues, q.key)
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()
			idle.Reset(s.cfg.IdleTimeout)

		case <-s.quit:
			s.drain(q)
			return
		}
	}
}

func (s *Sequencer) execute(key string, t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			utils.Error("sequencer: operation panicked", map[string]any{"key": key, "panic": fmt.Sprint(r)})
			err = fmt.Errorf("sequencer: operation on %s panicked: %v", key, r)
		}
	}()
	return t.op(t.ctx)
}

func (s *Sequencer) drain(q *queue) {
	for {
		select {
		case t := <-q.tasks:
			metrics.SequencerQueueDepth.Dec()
			if t.start() {
				t.err = biddingerrors.ErrSequencerStopped
				close(t.done)
			}
		default:
			return
		}
	}
}

// ActiveQueues returns the number of keys with a running worker
func (s *Sequencer) ActiveQueues() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues)
}

// Stop refuses new submissions, fails queued ones and waits for workers
func (s *Sequencer) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.quit)
	s.mu.Unlock()

	s.wg.Wait()
}
