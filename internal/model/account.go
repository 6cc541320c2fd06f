package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Code names the executable deployed on an account.
type Code string

const (
	CodeNone        Code = ""
	CodeFactory     Code = "factory"
	CodeHouseLedger Code = "house_ledger"
	CodeFlatsLedger Code = "flats_ledger"
)

// CodeFor returns the ledger code that serves kind.
func CodeFor(kind LedgerKind) Code {
	if kind == KindFlats {
		return CodeFlatsLedger
	}
	return CodeHouseLedger
}

// Account is an execution account on the host.
type Account struct {
	ID        string          `gorm:"primaryKey;size:64" json:"id"`
	Balance   decimal.Decimal `gorm:"type:varchar(80);not null" json:"balance"`
	Code      Code            `gorm:"size:32" json:"code"`
	ChainID   string          `gorm:"size:36;index" json:"chain_id,omitempty"` // chain that created it, empty for bootstrap accounts
	CreatedAt time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
