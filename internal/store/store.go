package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"flats-rental-backend/internal/model"
)

// Store is the persistent keyed storage behind ledgers and factories.
// Point lookups are keyed by domain identifiers; Each* methods iterate the
// full key space of one contract in O(n).
type Store interface {
	DB() *gorm.DB
	Transaction(ctx context.Context, fn func(Store) error) error

	CreateLedger(ctx context.Context, l *model.Ledger) error
	GetLedger(ctx context.Context, account string) (*model.Ledger, error)
	LedgerExists(ctx context.Context, account string) (bool, error)

	GetReservation(ctx context.Context, account string, d model.Date) (*model.Reservation, error)
	CreateReservation(ctx context.Context, r *model.Reservation) error

	AppendPayment(ctx context.Context, p *model.Payment) error
	ListPayments(ctx context.Context, account, payer string, page Page) ([]model.Payment, error)

	CreateUnits(ctx context.Context, account string, count uint64) error
	GetUnit(ctx context.Context, account string, number uint64) (*model.Unit, error)
	SaveUnit(ctx context.Context, u *model.Unit) error
	EachUnit(ctx context.Context, account string, fn func(model.Unit) error) error
	CountUnits(ctx context.Context, account string) (int64, error)

	CreateFactory(ctx context.Context, f *model.Factory) error
	GetFactory(ctx context.Context, account string) (*model.Factory, error)
	AddOwnership(ctx context.Context, o *model.Ownership) (bool, error)
	EachOwnership(ctx context.Context, factory string, fn func(model.Ownership) error) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store. Passing a transaction handle
// binds every operation to that transaction.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// Transaction runs fn against a store bound to a single database transaction.
func (s *gormStore) Transaction(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

func (s *gormStore) CreateLedger(ctx context.Context, l *model.Ledger) error {
	if err := s.db.WithContext(ctx).Create(l).Error; err != nil {
		return fmt.Errorf("failed to create ledger %s: %w", l.Account, err)
	}
	return nil
}

func (s *gormStore) GetLedger(ctx context.Context, account string) (*model.Ledger, error) {
	var l model.Ledger
	if err := s.db.WithContext(ctx).First(&l, "account = ?", account).Error; err != nil {
		return nil, notFound(err, "ledger %s", account)
	}
	return &l, nil
}

func (s *gormStore) LedgerExists(ctx context.Context, account string) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Ledger{}).Where("account = ?", account).Count(&n).Error; err != nil {
		return false, fmt.Errorf("failed to check ledger %s: %w", account, err)
	}
	return n > 0, nil
}

func (s *gormStore) GetReservation(ctx context.Context, account string, d model.Date) (*model.Reservation, error) {
	var r model.Reservation
	err := s.db.WithContext(ctx).
		Where("ledger_account = ? AND year = ? AND month = ? AND day = ?", account, d.Year, d.Month, d.Day).
		Take(&r).Error
	if err != nil {
		return nil, notFound(err, "reservation %s %d-%d-%d", account, d.Year, d.Month, d.Day)
	}
	return &r, nil
}

func (s *gormStore) CreateReservation(ctx context.Context, r *model.Reservation) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("failed to create reservation on %s: %w", r.LedgerAccount, err)
	}
	return nil
}

func (s *gormStore) AppendPayment(ctx context.Context, p *model.Payment) error {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("failed to record payment from %s: %w", p.Payer, err)
	}
	return nil
}

func (s *gormStore) ListPayments(ctx context.Context, account, payer string, page Page) ([]model.Payment, error) {
	page = page.Normalize()
	var payments []model.Payment
	err := s.db.WithContext(ctx).
		Where("ledger_account = ? AND payer = ?", account, payer).
		Order("id").
		Offset(page.Offset).
		Limit(page.Limit).
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list payments of %s: %w", payer, err)
	}
	return payments, nil
}

// CreateUnits inserts units 0..count-1, all available.
func (s *gormStore) CreateUnits(ctx context.Context, account string, count uint64) error {
	units := make([]model.Unit, 0, count)
	for n := uint64(0); n < count; n++ {
		units = append(units, model.Unit{LedgerAccount: account, Number: n, IsAvailable: true})
	}
	if err := s.db.WithContext(ctx).CreateInBatches(&units, scanBatchSize).Error; err != nil {
		return fmt.Errorf("failed to create %d units on %s: %w", count, account, err)
	}
	return nil
}

func (s *gormStore) GetUnit(ctx context.Context, account string, number uint64) (*model.Unit, error) {
	var u model.Unit
	if err := s.db.WithContext(ctx).Where("ledger_account = ? AND number = ?", account, number).Take(&u).Error; err != nil {
		return nil, notFound(err, "unit %d on %s", number, account)
	}
	return &u, nil
}

func (s *gormStore) SaveUnit(ctx context.Context, u *model.Unit) error {
	if err := s.db.WithContext(ctx).Save(u).Error; err != nil {
		return fmt.Errorf("failed to save unit %d on %s: %w", u.Number, u.LedgerAccount, err)
	}
	return nil
}

func (s *gormStore) EachUnit(ctx context.Context, account string, fn func(model.Unit) error) error {
	var batch []model.Unit
	res := s.db.WithContext(ctx).
		Where("ledger_account = ?", account).
		FindInBatches(&batch, scanBatchSize, func(tx *gorm.DB, _ int) error {
			for _, u := range batch {
				if err := fn(u); err != nil {
					return err
				}
			}
			return nil
		})
	if res.Error != nil {
		return fmt.Errorf("failed to scan units of %s: %w", account, res.Error)
	}
	return nil
}

func (s *gormStore) CountUnits(ctx context.Context, account string) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Unit{}).Where("ledger_account = ?", account).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count units of %s: %w", account, err)
	}
	return n, nil
}

func (s *gormStore) CreateFactory(ctx context.Context, f *model.Factory) error {
	if err := s.db.WithContext(ctx).Create(f).Error; err != nil {
		return fmt.Errorf("failed to create factory %s: %w", f.Account, err)
	}
	return nil
}

func (s *gormStore) GetFactory(ctx context.Context, account string) (*model.Factory, error) {
	var f model.Factory
	if err := s.db.WithContext(ctx).First(&f, "account = ?", account).Error; err != nil {
		return nil, notFound(err, "factory %s", account)
	}
	return &f, nil
}

// AddOwnership inserts o unless the same (factory, owner, ledger) triple
// exists. It reports whether a row was written.
func (s *gormStore) AddOwnership(ctx context.Context, o *model.Ownership) (bool, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(o)
	if res.Error != nil {
		return false, fmt.Errorf("failed to register %s for %s: %w", o.LedgerAccount, o.Owner, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// EachOwnership visits every registry entry of factory ordered by owner,
// then ledger account.
func (s *gormStore) EachOwnership(ctx context.Context, factory string, fn func(model.Ownership) error) error {
	for offset := 0; ; offset += scanBatchSize {
		var batch []model.Ownership
		err := s.db.WithContext(ctx).
			Where("factory_account = ?", factory).
			Order("owner").Order("ledger_account").
			Offset(offset).Limit(scanBatchSize).
			Find(&batch).Error
		if err != nil {
			return fmt.Errorf("failed to scan ownership of %s: %w", factory, err)
		}
		for _, o := range batch {
			if err := fn(o); err != nil {
				return err
			}
		}
		if len(batch) < scanBatchSize {
			return nil
		}
	}
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
	}
	return fmt.Errorf("failed to load %s: %w", fmt.Sprintf(format, args...), err)
}
