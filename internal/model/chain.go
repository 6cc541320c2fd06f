package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ChainStatus is the progress of an asynchronous chain.
type ChainStatus string

const (
	ChainPending   ChainStatus = "pending"
	ChainRunning   ChainStatus = "running"
	ChainSucceeded ChainStatus = "succeeded"
	ChainFailed    ChainStatus = "failed"
)

// StepKind tags a step descriptor.
type StepKind string

const (
	StepCreateAccount StepKind = "create_account"
	StepTransfer      StepKind = "transfer"
	StepDeploy        StepKind = "deploy"
	StepFunctionCall  StepKind = "function_call"
)

// Step is one host-level operation of a chain. Amount is the value moved
// from the chain origin (transfer) or attached to a function call.
type Step struct {
	Kind    StepKind        `json:"kind"`
	Account string          `json:"account"`
	Amount  decimal.Decimal `json:"amount"`
	Code    Code            `json:"code,omitempty"`
	Method  string          `json:"method,omitempty"`
	Args    json.RawMessage `json:"args,omitempty"`
}

// Chain is an ordered sequence of steps issued by Origin on behalf of Signer.
// Completed counts the steps whose effects are committed.
type Chain struct {
	ID         uuid.UUID   `gorm:"type:varchar(36);primaryKey" json:"id"`
	Origin     string      `gorm:"size:64;not null" json:"origin"`
	Signer     string      `gorm:"size:64;not null" json:"signer"`
	Steps      []Step      `gorm:"type:text;serializer:json" json:"steps"`
	Status     ChainStatus `gorm:"size:16;not null;index" json:"status"`
	Completed  int         `gorm:"not null" json:"completed"`
	FailedStep *int        `json:"failed_step,omitempty"`
	LastError  string      `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt  time.Time   `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Receipt is the success/failure signal of one step attempt. Receipts are
// append-only; a resumed chain adds new receipts for the retried step.
type Receipt struct {
	ID         int64     `gorm:"primaryKey" json:"-"`
	ChainID    uuid.UUID `gorm:"type:varchar(36);not null;index" json:"chain_id"`
	Seq        int       `gorm:"not null" json:"seq"`
	Kind       StepKind  `gorm:"size:16;not null" json:"kind"`
	Account    string    `gorm:"size:64;not null" json:"account"`
	Succeeded  bool      `gorm:"not null" json:"succeeded"`
	Error      string    `gorm:"type:text" json:"error,omitempty"`
	ExecutedAt time.Time `gorm:"not null" json:"executed_at"`
}
