package usecase

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"

	"go.uber.org/zap"

	"dupguard/internal/domain"
)

// ErrDispatcherClosed is returned by Submit after Close.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// Handler processes one file event.
type Handler func(ctx context.Context, ev domain.FileEvent) error

// Dispatcher fans file events out to a fixed set of workers. Each path
// always hashes to the same worker and every worker drains its own FIFO
// queue, so events for one path are applied in order while distinct paths
// proceed in parallel.
type Dispatcher struct {
	queues  []chan domain.FileEvent
	handle  Handler
	logger  *zap.Logger
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	started bool
}

func NewDispatcher(workers, queueSize int, handle Handler, logger *zap.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	perWorker := queueSize / workers
	if perWorker < 1 {
		perWorker = 1
	}
	d := &Dispatcher{
		queues: make([]chan domain.FileEvent, workers),
		handle: handle,
		logger: logger,
	}
	for i := range d.queues {
		d.queues[i] = make(chan domain.FileEvent, perWorker)
	}
	return d
}

// Start launches the workers. Handler errors are logged and never stop a
// worker.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true

	for i, q := range d.queues {
		d.wg.Add(1)
		go func(worker int, q <-chan domain.FileEvent) {
			defer d.wg.Done()
			for ev := range q {
				if err := d.handle(ctx, ev); err != nil {
					d.logger.Warn("index event failed",
						zap.Int("worker", worker),
						zap.String("path", ev.Path),
						zap.String("op", ev.Op.String()),
						zap.Error(err))
				}
			}
		}(i, q)
	}
}

// Submit queues ev on its path's worker, blocking while that queue is full.
func (d *Dispatcher) Submit(ctx context.Context, ev domain.FileEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.queues[d.partition(ev.Path)] <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events and waits until every queued event has
// been handled.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, q := range d.queues {
		close(q)
	}
	started := d.started
	d.mu.Unlock()

	if started {
		d.wg.Wait()
	}
}

func (d *Dispatcher) partition(path string) int {
	h := fnv.New32a()
	h.Write([]byte(path))
	return int(h.Sum32() % uint32(len(d.queues)))
}
