package model

import "time"

// UnitState is the lifecycle position of a unit.
type UnitState string

const (
	UnitAvailable             UnitState = "available"
	UnitOccupied              UnitState = "occupied"
	UnitOccupiedPendingVacate UnitState = "occupied_pending_vacate"
)

// Unit is an individually bookable room of a multi-unit ledger.
type Unit struct {
	ID            int64     `gorm:"primaryKey" json:"-"`
	LedgerAccount string    `gorm:"size:64;not null;uniqueIndex:idx_units_ledger_number" json:"-"`
	Number        uint64    `gorm:"not null;uniqueIndex:idx_units_ledger_number" json:"id"`
	IsAvailable   bool      `gorm:"not null" json:"is_available"`
	Occupant      *string   `gorm:"size:64" json:"occupant"`
	PendingVacate bool      `gorm:"not null" json:"pending_vacate"`
	UpdatedAt     time.Time `json:"-"`
}

// State derives the lifecycle state from the stored flags.
func (u Unit) State() UnitState {
	switch {
	case u.IsAvailable:
		return UnitAvailable
	case u.PendingVacate:
		return UnitOccupiedPendingVacate
	default:
		return UnitOccupied
	}
}

// OccupiedBy reports whether account is the current occupant.
func (u Unit) OccupiedBy(account string) bool {
	return u.Occupant != nil && *u.Occupant == account
}
