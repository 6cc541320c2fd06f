package host

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
)

// ChainJobArgs is the river job that runs one chain.
type ChainJobArgs struct {
	ChainID uuid.UUID `json:"chain_id"`
}

func (ChainJobArgs) Kind() string { return "run_chain" }

// InsertOpts disables river's own retries: a failed step parks the chain
// until an operator resumes it.
func (ChainJobArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 1}
}

type ChainWorker struct {
	river.WorkerDefaults[ChainJobArgs]
	exec ChainExecutor
}

func NewChainWorker(exec ChainExecutor) *ChainWorker {
	return &ChainWorker{exec: exec}
}

func (w *ChainWorker) Work(ctx context.Context, job *river.Job[ChainJobArgs]) error {
	return w.exec.RunChain(ctx, job.Args.ChainID)
}

// RiverRunner delivers chains through a river queue on postgres.
type RiverRunner struct {
	client *river.Client[pgx.Tx]
}

// NewRiverRunner migrates river's schema and builds a client whose workers
// execute chains with exec. The client still has to be started.
func NewRiverRunner(ctx context.Context, pool *pgxpool.Pool, exec ChainExecutor, maxWorkers int) (*RiverRunner, error) {
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return nil, fmt.Errorf("river migrate up failed: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, NewChainWorker(exec))

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: maxWorkers},
		},
		Workers: workers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create river client: %w", err)
	}
	return &RiverRunner{client: client}, nil
}

func (r *RiverRunner) Start(ctx context.Context) error {
	return r.client.Start(ctx)
}

func (r *RiverRunner) Stop(ctx context.Context) error {
	return r.client.Stop(ctx)
}

func (r *RiverRunner) Submit(ctx context.Context, chainID uuid.UUID) error {
	if _, err := r.client.Insert(ctx, ChainJobArgs{ChainID: chainID}, nil); err != nil {
		return fmt.Errorf("failed to enqueue chain %s: %w", chainID, err)
	}
	return nil
}
