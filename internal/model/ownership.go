package model

import "time"

// Factory is the state header of a factory account.
type Factory struct {
	Account   string    `gorm:"primaryKey;size:64"`
	Owner     string    `gorm:"size:64;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

// Ownership is one member of an owner's set of provisioned ledgers.
// The composite key gives set semantics.
type Ownership struct {
	FactoryAccount string    `gorm:"primaryKey;size:64"`
	Owner          string    `gorm:"primaryKey;size:64"`
	LedgerAccount  string    `gorm:"primaryKey;size:64"`
	CreatedAt      time.Time `gorm:"not null"`
}
