// Package host is the execution and account host contracts run on. Every
// call against an account is atomic; cross-account work is expressed as
// chains of steps that commit one step at a time.
package host

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"flats-rental-backend/internal/model"
)

// Call is the context attached to one invocation.
type Call struct {
	Current     string          // account executing the code
	Predecessor string          // immediate caller
	Signer      string          // account that originated the transaction
	Deposit     decimal.Decimal // value attached to the call, credited to Current
	Now         time.Time
}

// Event is a post-commit notification emitted by a contract.
type Event struct {
	Account string
	Kind    string
	Data    map[string]any
}

// Env is the view a contract gets of the host during a call. Storage access
// goes through DB, which is bound to the call's transaction.
type Env struct {
	Call
	tx     *gorm.DB
	chains []*model.Chain
	events []Event
}

// NewEnv binds a call to tx.
func NewEnv(tx *gorm.DB, call Call) *Env {
	return &Env{Call: call, tx: tx}
}

func (e *Env) DB() *gorm.DB {
	return e.tx
}

// Schedule queues a chain issued by the current account. The chain is stored
// with the call and handed to the runner only once the call commits.
func (e *Env) Schedule(steps ...model.Step) uuid.UUID {
	c := &model.Chain{
		ID:     uuid.New(),
		Origin: e.Current,
		Signer: e.Signer,
		Steps:  steps,
		Status: model.ChainPending,
	}
	e.chains = append(e.chains, c)
	return c.ID
}

// Emit queues an event delivered to listeners after commit.
func (e *Env) Emit(kind string, data map[string]any) {
	e.events = append(e.events, Event{Account: e.Current, Kind: kind, Data: data})
}

// Chains returns the chains scheduled so far.
func (e *Env) Chains() []*model.Chain {
	return e.chains
}

// Events returns the events emitted so far.
func (e *Env) Events() []Event {
	return e.events
}

// Contract is executable code deployed on an account.
type Contract interface {
	Invoke(ctx context.Context, env *Env, method string, args json.RawMessage) (any, error)
}

// Runner delivers chains for execution. Delivery is at-least-once.
type Runner interface {
	Submit(ctx context.Context, chainID uuid.UUID) error
}

// ChainExecutor runs a chain to completion or first failure.
type ChainExecutor interface {
	RunChain(ctx context.Context, chainID uuid.UUID) error
}

// Listener receives events after the emitting call commits.
type Listener func(ctx context.Context, ev Event)
