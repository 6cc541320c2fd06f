package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Date is a reservation key for date-keyed ledgers. Only the year is
// checked; calendar-invalid day/month combinations are accepted as keys.
type Date struct {
	Day   uint32 `json:"day"`
	Month uint32 `json:"month"`
	Year  int32  `json:"year" validate:"gt=0"`
}

// NewDate returns a validated Date.
func NewDate(day, month uint32, year int32) (Date, error) {
	d := Date{Day: day, Month: month, Year: year}
	return d, d.Validate()
}

// Validate enforces year > 0.
func (d Date) Validate() error {
	if err := validate.Struct(d); err != nil {
		return Errorf(KindInvalidInput, "year must be positive, got %d", d.Year)
	}
	return nil
}

// Reservation maps a booked date of a ledger to its occupant.
type Reservation struct {
	LedgerAccount string    `gorm:"primaryKey;size:64"`
	Year          int32     `gorm:"primaryKey;autoIncrement:false"`
	Month         uint32    `gorm:"primaryKey;autoIncrement:false"`
	Day           uint32    `gorm:"primaryKey;autoIncrement:false"`
	Occupant      string    `gorm:"size:64;not null"`
	CreatedAt     time.Time `gorm:"not null"`
}

// Date returns the reservation key.
func (r Reservation) Date() Date {
	return Date{Day: r.Day, Month: r.Month, Year: r.Year}
}

// ReferenceKind says what a payment paid for.
type ReferenceKind string

const (
	ReferenceDate ReferenceKind = "date"
	ReferenceUnit ReferenceKind = "unit"
)

// Payment is one append-only entry of a payer's history on a ledger.
type Payment struct {
	ID            int64           `gorm:"primaryKey"`
	LedgerAccount string          `gorm:"size:64;not null;index:idx_payments_ledger_payer"`
	Payer         string          `gorm:"size:64;not null;index:idx_payments_ledger_payer"`
	PaidAt        time.Time       `gorm:"not null"`
	Amount        decimal.Decimal `gorm:"type:varchar(80);not null"`
	RefKind       ReferenceKind   `gorm:"size:8;not null"`
	RefYear       int32
	RefMonth      uint32
	RefDay        uint32
	RefUnit       uint64
}

// NewDatePayment records a payment for a booked date.
func NewDatePayment(ledger, payer string, at time.Time, amount decimal.Decimal, d Date) Payment {
	return Payment{
		LedgerAccount: ledger,
		Payer:         payer,
		PaidAt:        at,
		Amount:        amount,
		RefKind:       ReferenceDate,
		RefYear:       d.Year,
		RefMonth:      d.Month,
		RefDay:        d.Day,
	}
}

// NewUnitPayment records a payment for a booked unit.
func NewUnitPayment(ledger, payer string, at time.Time, amount decimal.Decimal, unit uint64) Payment {
	return Payment{
		LedgerAccount: ledger,
		Payer:         payer,
		PaidAt:        at,
		Amount:        amount,
		RefKind:       ReferenceUnit,
		RefUnit:       unit,
	}
}

// PaymentRecord is the wire form of a Payment.
type PaymentRecord struct {
	Time   time.Time       `json:"time"`
	Amount decimal.Decimal `json:"amount"`
	Date   *Date           `json:"date,omitempty"`
	Unit   *uint64         `json:"unit,omitempty"`
}

// Record projects the payment for readers.
func (p Payment) Record() PaymentRecord {
	rec := PaymentRecord{Time: p.PaidAt, Amount: p.Amount}
	switch p.RefKind {
	case ReferenceDate:
		rec.Date = &Date{Day: p.RefDay, Month: p.RefMonth, Year: p.RefYear}
	case ReferenceUnit:
		u := p.RefUnit
		rec.Unit = &u
	}
	return rec
}
