package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"flats-rental-backend/internal/logging"
	"flats-rental-backend/internal/model"
)

// errChainAdvanced means another delivery of the same chain committed the
// step first.
var errChainAdvanced = errors.New("chain advanced concurrently")

// Runtime executes contract calls and chains against the database.
type Runtime struct {
	db        *gorm.DB
	accounts  *Accounts
	locks     *keyedMutex
	now       func() time.Time
	mu        sync.RWMutex
	contracts map[model.Code]Contract
	runner    Runner
	listeners []Listener
}

// NewRuntime creates a runtime with no contracts and no runner. Chains
// scheduled before SetRunner stay pending until Recover.
func NewRuntime(db *gorm.DB) *Runtime {
	return &Runtime{
		db:        db,
		accounts:  &Accounts{db: db},
		locks:     newKeyedMutex(),
		now:       time.Now,
		contracts: make(map[model.Code]Contract),
	}
}

func (r *Runtime) Accounts() *Accounts {
	return r.accounts
}

// Register makes code deployable.
func (r *Runtime) Register(code model.Code, c Contract) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contracts[code] = c
}

func (r *Runtime) SetRunner(runner Runner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runner = runner
}

// Subscribe adds a listener for committed events.
func (r *Runtime) Subscribe(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// SetClock overrides the block time source.
func (r *Runtime) SetClock(now func() time.Time) {
	r.now = now
}

// Invoke runs method on account as one atomic call. The attached deposit is
// credited to account; an error rolls back the deposit together with every
// other state change of the call.
func (r *Runtime) Invoke(ctx context.Context, account, method string, call Call, args any) (json.RawMessage, error) {
	raw, err := encodeArgs(args)
	if err != nil {
		return nil, model.Errorf(model.KindInvalidInput, "%v", err)
	}

	unlock := r.locks.Lock(account)
	defer unlock()

	var (
		out json.RawMessage
		env *Env
	)
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if call.Deposit.IsPositive() {
			if err := credit(tx, account, call.Deposit); err != nil {
				return err
			}
		}
		var err error
		out, env, err = r.invokeTx(ctx, tx, account, method, call, raw)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.afterCommit(ctx, env)
	return out, nil
}

func (r *Runtime) invokeTx(ctx context.Context, tx *gorm.DB, account, method string, call Call, args json.RawMessage) (json.RawMessage, *Env, error) {
	acct, err := getAccount(tx, account)
	if err != nil {
		return nil, nil, err
	}
	r.mu.RLock()
	contract, ok := r.contracts[acct.Code]
	r.mu.RUnlock()
	if acct.Code == model.CodeNone || !ok {
		return nil, nil, model.Errorf(model.KindNotFound, "no code deployed on %s", account)
	}

	call.Current = account
	if call.Now.IsZero() {
		call.Now = r.now()
	}
	env := NewEnv(tx, call)
	res, err := contract.Invoke(ctx, env, method, args)
	if err != nil {
		return nil, nil, err
	}
	out, err := json.Marshal(res)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode %s result: %w", method, err)
	}
	for _, c := range env.chains {
		if err := tx.Create(c).Error; err != nil {
			return nil, nil, fmt.Errorf("failed to store chain %s: %w", c.ID, err)
		}
	}
	return out, env, nil
}

func (r *Runtime) afterCommit(ctx context.Context, env *Env) {
	if env == nil {
		return
	}
	r.mu.RLock()
	runner := r.runner
	listeners := append([]Listener(nil), r.listeners...)
	r.mu.RUnlock()

	for _, c := range env.chains {
		if runner == nil {
			logging.Logger.WithField("chain", c.ID).Warn("No runner configured; chain left pending")
			continue
		}
		if err := runner.Submit(ctx, c.ID); err != nil {
			logging.Logger.WithError(err).WithField("chain", c.ID).Error("Failed to submit chain; it stays pending until recovery")
		}
	}
	for _, ev := range env.events {
		for _, l := range listeners {
			l(ctx, ev)
		}
	}
}

// RunChain executes the remaining steps of a chain in order. Each step
// commits together with the chain's progress marker. The first failing step
// is recorded and the chain stops there; earlier steps stay committed.
func (r *Runtime) RunChain(ctx context.Context, chainID uuid.UUID) error {
	unlock := r.locks.Lock("chain:" + chainID.String())
	defer unlock()

	chain, err := r.loadChain(r.db.WithContext(ctx), chainID)
	if err != nil {
		return err
	}
	if chain.Status == model.ChainSucceeded || chain.Status == model.ChainFailed {
		return nil
	}

	log := logging.Logger.WithFields(logrus.Fields{"chain": chainID, "origin": chain.Origin})
	if err := r.db.WithContext(ctx).Model(&model.Chain{}).
		Where("id = ?", chainID).
		Update("status", model.ChainRunning).Error; err != nil {
		return fmt.Errorf("failed to mark chain %s running: %w", chainID, err)
	}

	for chain.Completed < len(chain.Steps) {
		seq := chain.Completed
		step := chain.Steps[seq]

		env, err := r.runStep(ctx, chain, seq, step)
		if errors.Is(err, errChainAdvanced) {
			log.Debug("Chain advanced by another delivery")
			return nil
		}
		if err != nil {
			log.WithError(err).WithFields(logrus.Fields{"step": seq, "kind": step.Kind, "account": step.Account}).
				Warn("Chain step failed")
			return r.failChain(ctx, chain, seq, step, err)
		}
		chain.Completed++
		r.afterCommit(ctx, env)
	}

	if err := r.db.WithContext(ctx).Model(&model.Chain{}).
		Where("id = ?", chainID).
		Update("status", model.ChainSucceeded).Error; err != nil {
		return fmt.Errorf("failed to mark chain %s succeeded: %w", chainID, err)
	}
	log.Info("Chain completed")
	return nil
}

// runStep commits one step. A panic inside the step rolls its transaction
// back and comes out as an error, so the chain fails instead of the runner.
func (r *Runtime) runStep(ctx context.Context, chain *model.Chain, seq int, step model.Step) (env *Env, err error) {
	keys := []string{step.Account}
	if step.Kind == model.StepTransfer || step.Amount.IsPositive() {
		keys = append(keys, chain.Origin)
	}
	unlock := r.locks.Lock(keys...)
	defer unlock()
	defer func() {
		if p := recover(); p != nil {
			env, err = nil, fmt.Errorf("step %d (%s on %s) panicked: %v", seq, step.Kind, step.Account, p)
		}
	}()

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		switch step.Kind {
		case model.StepCreateAccount:
			if err := createAccount(tx, step.Account, chain.ID); err != nil {
				return err
			}
		case model.StepTransfer:
			if err := transfer(tx, chain.Origin, step.Account, step.Amount); err != nil {
				return err
			}
		case model.StepDeploy:
			if err := deploy(tx, step.Account, step.Code); err != nil {
				return err
			}
		case model.StepFunctionCall:
			if err := transfer(tx, chain.Origin, step.Account, step.Amount); err != nil {
				return err
			}
			call := Call{Predecessor: chain.Origin, Signer: chain.Signer, Deposit: step.Amount}
			var err error
			if _, env, err = r.invokeTx(ctx, tx, step.Account, step.Method, call, step.Args); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown step kind %q", step.Kind)
		}

		res := tx.Model(&model.Chain{}).
			Where("id = ? AND completed = ?", chain.ID, seq).
			Update("completed", seq+1)
		if res.Error != nil {
			return fmt.Errorf("failed to advance chain %s: %w", chain.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return errChainAdvanced
		}
		return tx.Create(&model.Receipt{
			ChainID:    chain.ID,
			Seq:        seq,
			Kind:       step.Kind,
			Account:    step.Account,
			Succeeded:  true,
			ExecutedAt: r.now(),
		}).Error
	})
	return env, err
}

func (r *Runtime) failChain(ctx context.Context, chain *model.Chain, seq int, step model.Step, cause error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model.Receipt{
			ChainID:    chain.ID,
			Seq:        seq,
			Kind:       step.Kind,
			Account:    step.Account,
			Error:      cause.Error(),
			ExecutedAt: r.now(),
		}).Error; err != nil {
			return fmt.Errorf("failed to record receipt for chain %s: %w", chain.ID, err)
		}
		return tx.Model(&model.Chain{}).
			Where("id = ?", chain.ID).
			Updates(map[string]any{
				"status":      model.ChainFailed,
				"failed_step": seq,
				"last_error":  cause.Error(),
			}).Error
	})
}

// Resume resubmits a failed chain from its failed step. Steps that already
// committed are not repeated.
func (r *Runtime) Resume(ctx context.Context, chainID uuid.UUID) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		chain, err := r.loadChain(tx, chainID)
		if err != nil {
			return err
		}
		if chain.Status != model.ChainFailed {
			return model.Errorf(model.KindInvalidInput, "chain %s is %s; only failed chains can resume", chainID, chain.Status)
		}
		return tx.Model(&model.Chain{}).
			Where("id = ?", chainID).
			Updates(map[string]any{
				"status":      model.ChainPending,
				"failed_step": nil,
				"last_error":  "",
			}).Error
	})
	if err != nil {
		return err
	}
	logging.Logger.WithField("chain", chainID).Info("Resuming failed chain")
	return r.submit(ctx, chainID)
}

// Recover resubmits every pending or running chain, e.g. after a restart.
func (r *Runtime) Recover(ctx context.Context) (int, error) {
	var open []model.Chain
	if err := r.db.WithContext(ctx).
		Select("id").
		Where("status IN ?", []model.ChainStatus{model.ChainPending, model.ChainRunning}).
		Order("created_at").
		Find(&open).Error; err != nil {
		return 0, fmt.Errorf("failed to list open chains: %w", err)
	}
	for _, c := range open {
		if err := r.submit(ctx, c.ID); err != nil {
			return 0, err
		}
	}
	return len(open), nil
}

func (r *Runtime) submit(ctx context.Context, chainID uuid.UUID) error {
	r.mu.RLock()
	runner := r.runner
	r.mu.RUnlock()
	if runner == nil {
		return fmt.Errorf("no runner configured for chain %s", chainID)
	}
	if err := runner.Submit(ctx, chainID); err != nil {
		return fmt.Errorf("failed to submit chain %s: %w", chainID, err)
	}
	return nil
}

// Chain returns a chain with its receipts in execution order.
func (r *Runtime) Chain(ctx context.Context, chainID uuid.UUID) (*model.Chain, []model.Receipt, error) {
	db := r.db.WithContext(ctx)
	chain, err := r.loadChain(db, chainID)
	if err != nil {
		return nil, nil, err
	}
	var receipts []model.Receipt
	if err := db.Where("chain_id = ?", chainID).Order("id").Find(&receipts).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to load receipts of chain %s: %w", chainID, err)
	}
	return chain, receipts, nil
}

// FailedChains lists failed chains, most recently updated first.
func (r *Runtime) FailedChains(ctx context.Context, limit int) ([]model.Chain, error) {
	var chains []model.Chain
	if err := r.db.WithContext(ctx).
		Where("status = ?", model.ChainFailed).
		Order("updated_at DESC").
		Limit(limit).
		Find(&chains).Error; err != nil {
		return nil, fmt.Errorf("failed to list failed chains: %w", err)
	}
	return chains, nil
}

// StalledChains lists open chains not touched since before.
func (r *Runtime) StalledChains(ctx context.Context, before time.Time) ([]model.Chain, error) {
	var chains []model.Chain
	if err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []model.ChainStatus{model.ChainPending, model.ChainRunning}, before).
		Order("updated_at").
		Find(&chains).Error; err != nil {
		return nil, fmt.Errorf("failed to list stalled chains: %w", err)
	}
	return chains, nil
}

func (r *Runtime) loadChain(db *gorm.DB, chainID uuid.UUID) (*model.Chain, error) {
	var chain model.Chain
	if err := db.First(&chain, "id = ?", chainID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.Errorf(model.KindNotFound, "chain %s does not exist", chainID)
		}
		return nil, fmt.Errorf("failed to load chain %s: %w", chainID, err)
	}
	return &chain, nil
}

func encodeArgs(args any) (json.RawMessage, error) {
	switch v := args.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		if len(v) == 0 {
			return json.RawMessage("{}"), nil
		}
		return v, nil
	case []byte:
		if len(v) == 0 {
			return json.RawMessage("{}"), nil
		}
		return v, nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode args: %w", err)
	}
	return raw, nil
}
