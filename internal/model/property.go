package model

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"flats-rental-backend/internal/parse"
)

var validate = validator.New()

// LedgerKind selects which ledger code a property account runs.
type LedgerKind string

const (
	// KindHouse is a single-unit ledger keyed by date.
	KindHouse LedgerKind = "house"
	// KindFlats is a multi-unit ledger with a per-unit lifecycle.
	KindFlats LedgerKind = "flats"
)

// Property describes a rentable property. Price is per booking, in yocto units.
type Property struct {
	Name     string          `json:"name" validate:"required"`
	Price    decimal.Decimal `json:"price"`
	Location string          `json:"location" validate:"required"`
	Features []string        `json:"features"`
	Image    string          `json:"image"`
}

// NewProperty builds a Property and checks its invariants.
func NewProperty(name string, price decimal.Decimal, location string, features []string, image string) (Property, error) {
	p := Property{
		Name:     name,
		Price:    price,
		Location: location,
		Features: features,
		Image:    image,
	}
	if err := p.Validate(); err != nil {
		return Property{}, err
	}
	return p, nil
}

// Validate asserts the Property invariants: non-empty name, positive integral
// price and a location made of exactly two float components.
func (p Property) Validate() error {
	if err := validate.Struct(p); err != nil {
		return Errorf(KindInvalidInput, "property: %v", err)
	}
	if !p.Price.IsPositive() || !p.Price.IsInteger() {
		return Errorf(KindInvalidInput, "price must be a positive integer, got %s", p.Price)
	}
	if _, err := parse.ParseLocation(p.Location); err != nil {
		return Errorf(KindInvalidInput, "%v", err)
	}
	return nil
}

// Ledger is the persisted state header of one ledger account.
type Ledger struct {
	Account   string          `gorm:"primaryKey;size:64"`
	Kind      LedgerKind      `gorm:"size:16;not null"`
	Owner     string          `gorm:"size:64;not null"`
	Name      string          `gorm:"size:64;not null"`
	Price     decimal.Decimal `gorm:"type:varchar(80);not null"`
	Location  string          `gorm:"size:128;not null"`
	Features  []string        `gorm:"type:text;serializer:json"`
	Image     string          `gorm:"type:text"`
	Rooms     uint64
	CreatedAt time.Time `gorm:"not null"`
}

// Property returns the value object held by the ledger.
func (l Ledger) Property() Property {
	return Property{
		Name:     l.Name,
		Price:    l.Price,
		Location: l.Location,
		Features: l.Features,
		Image:    l.Image,
	}
}

// PropertyInfo is the read-only projection served by get_property_info.
// Price marshals as a decimal string so it survives JSON number limits.
type PropertyInfo struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Location string          `json:"location"`
	Features []string        `json:"features"`
	Image    string          `json:"image"`
	Rooms    uint64          `json:"rooms,omitempty"`
	Timezone string          `json:"timezone,omitempty"`
}
