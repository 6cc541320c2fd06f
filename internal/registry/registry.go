// Package registry keeps the owner -> ledger accounts sets of a factory.
package registry

import (
	"context"
	"errors"

	"flats-rental-backend/internal/model"
	"flats-rental-backend/internal/parse"
	"flats-rental-backend/internal/store"
)

var errStop = errors.New("stop scan")

// Registry is the ownership registry of one factory account. Entries are
// only ever added.
type Registry struct {
	store   store.Store
	factory string
}

func New(s store.Store, factory string) *Registry {
	return &Registry{store: s, factory: factory}
}

// Register adds account to owner's set. Registering an existing pair is a
// no-op; the result reports whether anything was added.
func (r *Registry) Register(ctx context.Context, owner, account string) (bool, error) {
	return r.store.AddOwnership(ctx, &model.Ownership{
		FactoryAccount: r.factory,
		Owner:          owner,
		LedgerAccount:  account,
	})
}

// NameTaken scans every registered account for name, either as given or as
// the sub-account it would be provisioned at.
func (r *Registry) NameTaken(ctx context.Context, name string) (bool, error) {
	sub := name + parse.AccountSeparator + r.factory
	taken := false
	err := r.store.EachOwnership(ctx, r.factory, func(o model.Ownership) error {
		if o.LedgerAccount == name || o.LedgerAccount == sub {
			taken = true
			return errStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return false, err
	}
	return taken, nil
}

// ListAll flattens every owner's set, ordered by owner then account.
func (r *Registry) ListAll(ctx context.Context) ([]string, error) {
	out := []string{}
	err := r.store.EachOwnership(ctx, r.factory, func(o model.Ownership) error {
		out = append(out, o.LedgerAccount)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Owned returns the accounts registered to owner.
func (r *Registry) Owned(ctx context.Context, owner string) ([]string, error) {
	out := []string{}
	err := r.store.EachOwnership(ctx, r.factory, func(o model.Ownership) error {
		if o.Owner == owner {
			out = append(out, o.LedgerAccount)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
