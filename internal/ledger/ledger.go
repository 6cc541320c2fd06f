// Package ledger implements the per-property booking contracts: House, a
// single-unit ledger keyed by date, and Flats, a multi-unit ledger with a
// per-unit occupancy lifecycle.
package ledger

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/bradfitz/latlong"

	"flats-rental-backend/internal/host"
	"flats-rental-backend/internal/model"
	"flats-rental-backend/internal/parse"
	"flats-rental-backend/internal/store"
)

// Method names shared by both ledger kinds.
const (
	MethodNew             = "new"
	MethodGetPropertyInfo = "get_property_info"
	MethodGetOwner        = "get_owner"
	MethodPayments        = "payments"
)

// InitArgs initializes a ledger. Rooms is ignored by House.
type InitArgs struct {
	Owner    string         `json:"owner"`
	Property model.Property `json:"property"`
	Rooms    uint64         `json:"rooms,omitempty"`
}

// PaymentsArgs selects a page of the caller's payment history.
type PaymentsArgs struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return model.Errorf(model.KindInvalidInput, "malformed arguments: %v", err)
	}
	return nil
}

func storeFor(env *host.Env) store.Store {
	return store.NewGormStore(env.DB())
}

// initialize writes the ledger header. A ledger can be initialized once.
func initialize(ctx context.Context, env *host.Env, kind model.LedgerKind, args InitArgs) (*model.Ledger, error) {
	s := storeFor(env)
	exists, err := s.LedgerExists(ctx, env.Current)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, model.Errorf(model.KindAlreadyInitialized, "ledger %s is already initialized", env.Current)
	}
	if err := parse.ValidateAccountID(args.Owner); err != nil {
		return nil, model.Errorf(model.KindInvalidInput, "owner: %v", err)
	}
	if err := args.Property.Validate(); err != nil {
		return nil, err
	}

	p := args.Property
	l := &model.Ledger{
		Account:  env.Current,
		Kind:     kind,
		Owner:    args.Owner,
		Name:     p.Name,
		Price:    p.Price,
		Location: p.Location,
		Features: p.Features,
		Image:    p.Image,
		Rooms:    args.Rooms,
	}
	if err := s.CreateLedger(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// load returns the ledger header of the current account.
func load(ctx context.Context, env *host.Env) (*model.Ledger, error) {
	l, err := storeFor(env).GetLedger(ctx, env.Current)
	if errors.Is(err, store.ErrNotFound) {
		return nil, model.Errorf(model.KindNotFound, "ledger %s is not initialized", env.Current)
	}
	return l, err
}

func propertyInfo(l *model.Ledger) model.PropertyInfo {
	info := model.PropertyInfo{
		Name:     l.Name,
		Price:    l.Price,
		Location: l.Location,
		Features: l.Features,
		Image:    l.Image,
		Rooms:    l.Rooms,
	}
	if info.Features == nil {
		info.Features = []string{}
	}
	if loc, err := parse.ParseLocation(l.Location); err == nil && loc.InRange() {
		info.Timezone = latlong.LookupZoneName(loc.Latitude, loc.Longitude)
	}
	return info
}

func payments(ctx context.Context, env *host.Env, args PaymentsArgs) ([]model.PaymentRecord, error) {
	rows, err := storeFor(env).ListPayments(ctx, env.Current, env.Signer, store.Page{Offset: args.Offset, Limit: args.Limit})
	if err != nil {
		return nil, err
	}
	out := make([]model.PaymentRecord, 0, len(rows))
	for _, p := range rows {
		out = append(out, p.Record())
	}
	return out, nil
}

// common serves the read methods both ledger kinds expose.
func common(ctx context.Context, env *host.Env, method string, args json.RawMessage) (any, bool, error) {
	switch method {
	case MethodGetPropertyInfo:
		l, err := load(ctx, env)
		if err != nil {
			return nil, true, err
		}
		return propertyInfo(l), true, nil
	case MethodGetOwner:
		l, err := load(ctx, env)
		if err != nil {
			return nil, true, err
		}
		return l.Owner, true, nil
	case MethodPayments:
		var a PaymentsArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, true, err
		}
		if _, err := load(ctx, env); err != nil {
			return nil, true, err
		}
		out, err := payments(ctx, env, a)
		return out, true, err
	}
	return nil, false, nil
}

func unknownMethod(method string) error {
	return model.Errorf(model.KindNotFound, "method %s does not exist", method)
}
