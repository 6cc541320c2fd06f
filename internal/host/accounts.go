package host

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"flats-rental-backend/internal/model"
	"flats-rental-backend/internal/parse"
)

var (
	// ErrAccountExists is returned when creating an account id already in use.
	ErrAccountExists = errors.New("account already exists")
	// ErrInsufficientBalance is returned when a transfer exceeds the sender's balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Accounts manages account rows. Exported methods run in their own
// transaction; the lower-case variants join the caller's.
type Accounts struct {
	db *gorm.DB
}

// Get returns the account or a NotFound error.
func (a *Accounts) Get(ctx context.Context, id string) (*model.Account, error) {
	return getAccount(a.db.WithContext(ctx), id)
}

// Bootstrap creates a top-level account with code deployed on it. It is a
// no-op if the account already exists with the same code.
func (a *Accounts) Bootstrap(ctx context.Context, id string, code model.Code, balance decimal.Decimal) (bool, error) {
	if err := parse.ValidateAccountID(id); err != nil {
		return false, err
	}
	created := false
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := getAccount(tx, id)
		if err == nil {
			if existing.Code != code {
				return fmt.Errorf("account %s already runs %q", id, existing.Code)
			}
			return nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return err
		}
		created = true
		return tx.Create(&model.Account{ID: id, Balance: balance, Code: code}).Error
	})
	return created, err
}

// Credit adds amount to an account balance. Operators use it to top up a
// factory whose transfers failed.
func (a *Accounts) Credit(ctx context.Context, id string, amount decimal.Decimal) error {
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return credit(tx, id, amount)
	})
}

func getAccount(tx *gorm.DB, id string) (*model.Account, error) {
	var acct model.Account
	if err := tx.First(&acct, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.Errorf(model.KindNotFound, "account %s does not exist", id)
		}
		return nil, fmt.Errorf("failed to load account %s: %w", id, err)
	}
	return &acct, nil
}

// createAccount is idempotent for the chain that created the account, so a
// redelivered chain can replay its first step.
func createAccount(tx *gorm.DB, id string, chainID uuid.UUID) error {
	if err := parse.ValidateAccountID(id); err != nil {
		return err
	}
	existing, err := getAccount(tx, id)
	if err == nil {
		if existing.ChainID == chainID.String() {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrAccountExists, id)
	}
	if !errors.Is(err, model.ErrNotFound) {
		return err
	}
	acct := &model.Account{ID: id, Balance: decimal.Zero, ChainID: chainID.String()}
	if err := tx.Create(acct).Error; err != nil {
		return fmt.Errorf("failed to create account %s: %w", id, err)
	}
	return nil
}

func setBalance(tx *gorm.DB, id string, balance decimal.Decimal) error {
	err := tx.Model(&model.Account{}).Where("id = ?", id).Update("balance", balance).Error
	if err != nil {
		return fmt.Errorf("failed to update balance of %s: %w", id, err)
	}
	return nil
}

func credit(tx *gorm.DB, id string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return model.Errorf(model.KindInvalidInput, "negative amount %s", amount)
	}
	acct, err := getAccount(tx, id)
	if err != nil {
		return err
	}
	return setBalance(tx, id, acct.Balance.Add(amount))
}

func transfer(tx *gorm.DB, from, to string, amount decimal.Decimal) error {
	if amount.IsZero() {
		return nil
	}
	src, err := getAccount(tx, from)
	if err != nil {
		return err
	}
	if src.Balance.LessThan(amount) {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance, from, src.Balance, amount)
	}
	if _, err := getAccount(tx, to); err != nil {
		return err
	}
	if err := setBalance(tx, from, src.Balance.Sub(amount)); err != nil {
		return err
	}
	return credit(tx, to, amount)
}

func deploy(tx *gorm.DB, id string, code model.Code) error {
	if _, err := getAccount(tx, id); err != nil {
		return err
	}
	if err := tx.Model(&model.Account{}).Where("id = ?", id).Update("code", code).Error; err != nil {
		return fmt.Errorf("failed to deploy %s on %s: %w", code, id, err)
	}
	return nil
}
