package host

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"flats-rental-backend/internal/logging"
)

// Pool is an in-process Runner backed by a fixed set of worker goroutines.
// Chains queued when the process stops are picked up again by Recover.
type Pool struct {
	size     int
	jobs     chan uuid.UUID
	exec     ChainExecutor
	inflight sync.WaitGroup
}

// NewPool creates a pool of size workers with a queue of depth chains.
func NewPool(size, depth int, exec ChainExecutor) *Pool {
	if size <= 0 {
		size = 1
	}
	if depth < size {
		depth = size
	}
	return &Pool{
		size: size,
		jobs: make(chan uuid.UUID, depth),
		exec: exec,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		go p.worker(ctx, i)
	}
}

// workerKey marks contexts handed to RunChain by a pool worker.
type workerKey struct{}

func (p *Pool) worker(ctx context.Context, id int) {
	log := logging.Logger.WithField("worker", id)
	log.Debug("Chain worker started")
	wctx := context.WithValue(ctx, workerKey{}, id)
	for {
		select {
		case chainID := <-p.jobs:
			p.run(wctx, log, chainID)
		case <-ctx.Done():
			log.Debug("Chain worker shutting down")
			return
		}
	}
}

func (p *Pool) run(ctx context.Context, log *logrus.Entry, chainID uuid.UUID) {
	defer p.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			log.WithField("chain", chainID).Errorf("Chain execution panicked: %v", r)
		}
	}()
	if err := p.exec.RunChain(ctx, chainID); err != nil {
		log.WithError(err).WithField("chain", chainID).Error("Chain execution aborted")
	}
}

// Submit queues a chain. Outside the pool it blocks while the queue is full.
// A worker submitting chains scheduled by a step never blocks: when the
// queue is full the hand-off continues in the background, since every
// worker waiting on the queue would otherwise stall the pool for good.
func (p *Pool) Submit(ctx context.Context, chainID uuid.UUID) error {
	p.inflight.Add(1)
	select {
	case p.jobs <- chainID:
		return nil
	default:
	}
	if ctx.Value(workerKey{}) != nil {
		go func() {
			select {
			case p.jobs <- chainID:
			case <-ctx.Done():
				// Left pending in the database; Recover picks it up.
				p.inflight.Done()
			}
		}()
		return nil
	}
	select {
	case p.jobs <- chainID:
		return nil
	case <-ctx.Done():
		p.inflight.Done()
		return ctx.Err()
	}
}

// Wait blocks until every submitted chain has been executed, including
// chains submitted by steps of running chains.
func (p *Pool) Wait() {
	p.inflight.Wait()
}
