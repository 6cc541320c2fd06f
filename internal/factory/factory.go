// Package factory provisions per-property ledger accounts. create_property
// validates a request and schedules the provisioning chain; the chain ends
// with a call back into register_ownership on the factory itself.
package factory

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"

	"flats-rental-backend/internal/host"
	"flats-rental-backend/internal/ledger"
	"flats-rental-backend/internal/logging"
	"flats-rental-backend/internal/model"
	"flats-rental-backend/internal/parse"
	"flats-rental-backend/internal/registry"
	"flats-rental-backend/internal/store"
)

const (
	MethodNew               = "new"
	MethodGetOwner          = "get_owner"
	MethodCreateProperty    = "create_property"
	MethodRegisterOwnership = "register_ownership"
	MethodNameTaken         = "name_taken"
	MethodListAll           = "list_all"
	MethodOwnedBy           = "owned_by"

	// Ack is returned by a successful register_ownership.
	Ack = "OK"
)

// Config holds the amounts a factory charges and forwards, in yocto units.
type Config struct {
	Fee     decimal.Decimal
	Funding decimal.Decimal
	// MaxRooms bounds multi-unit requests. Zero means ledger.DefaultMaxRooms.
	MaxRooms uint64
}

func DefaultConfig() Config {
	return Config{Fee: model.Near(10), Funding: model.Near(5), MaxRooms: ledger.DefaultMaxRooms}
}

type InitArgs struct {
	Owner string `json:"owner"`
}

// CreatePropertyArgs is a provisioning request. Name becomes both the
// property name and the sub-account label.
type CreatePropertyArgs struct {
	Name     string           `json:"name"`
	Kind     model.LedgerKind `json:"kind,omitempty"`
	Rooms    uint64           `json:"rooms,omitempty"`
	Price    decimal.Decimal  `json:"price"`
	Location string           `json:"location"`
	Features []string         `json:"features"`
	Image    string           `json:"image"`
}

type RegisterArgs struct {
	Owner   string `json:"owner"`
	Account string `json:"account"`
}

type NameArgs struct {
	Name string `json:"name"`
}

type OwnerArgs struct {
	Owner string `json:"owner"`
}

// Factory is the provisioning contract.
type Factory struct {
	cfg Config
}

func New(cfg Config) *Factory {
	if cfg.MaxRooms == 0 {
		cfg.MaxRooms = ledger.DefaultMaxRooms
	}
	return &Factory{cfg: cfg}
}

func (f *Factory) Invoke(ctx context.Context, env *host.Env, method string, args json.RawMessage) (any, error) {
	switch method {
	case MethodNew:
		var a InitArgs
		if err := decode(args, &a); err != nil {
			return nil, err
		}
		return f.Init(ctx, env, a.Owner)
	case MethodGetOwner:
		st, err := state(ctx, env)
		if err != nil {
			return nil, err
		}
		return st.Owner, nil
	case MethodCreateProperty:
		var a CreatePropertyArgs
		if err := decode(args, &a); err != nil {
			return nil, err
		}
		return f.CreateProperty(ctx, env, a)
	case MethodRegisterOwnership:
		var a RegisterArgs
		if err := decode(args, &a); err != nil {
			return nil, err
		}
		return f.RegisterOwnership(ctx, env, a.Owner, a.Account)
	case MethodNameTaken:
		var a NameArgs
		if err := decode(args, &a); err != nil {
			return nil, err
		}
		return withRegistry(ctx, env, func(r *registry.Registry) (bool, error) {
			return r.NameTaken(ctx, a.Name)
		})
	case MethodListAll:
		return withRegistry(ctx, env, func(r *registry.Registry) ([]string, error) {
			return r.ListAll(ctx)
		})
	case MethodOwnedBy:
		var a OwnerArgs
		if err := decode(args, &a); err != nil {
			return nil, err
		}
		return withRegistry(ctx, env, func(r *registry.Registry) ([]string, error) {
			return r.Owned(ctx, a.Owner)
		})
	}
	return nil, model.Errorf(model.KindNotFound, "method %s does not exist", method)
}

// Init records the factory owner. It may run once.
func (f *Factory) Init(ctx context.Context, env *host.Env, owner string) (bool, error) {
	s := store.NewGormStore(env.DB())
	if _, err := s.GetFactory(ctx, env.Current); err == nil {
		return false, model.Errorf(model.KindAlreadyInitialized, "factory %s is already initialized", env.Current)
	} else if !errors.Is(err, store.ErrNotFound) {
		return false, err
	}
	if err := parse.ValidateAccountID(owner); err != nil {
		return false, model.Errorf(model.KindInvalidInput, "owner: %v", err)
	}
	if err := s.CreateFactory(ctx, &model.Factory{Account: env.Current, Owner: owner}); err != nil {
		return false, err
	}
	return true, nil
}

// CreateProperty validates the request and schedules the provisioning
// chain. It returns the account the ledger will live at. The name check is
// advisory: the chain's create_account step fails if the account exists.
func (f *Factory) CreateProperty(ctx context.Context, env *host.Env, req CreatePropertyArgs) (string, error) {
	if _, err := state(ctx, env); err != nil {
		return "", err
	}
	if !env.Deposit.Equal(f.cfg.Fee) {
		return "", model.Errorf(model.KindInsufficientDeposit, "attach exactly %s, got %s", f.cfg.Fee, env.Deposit)
	}
	account, err := parse.SubAccount(req.Name, env.Current)
	if err != nil {
		return "", model.Errorf(model.KindInvalidName, "%v", err)
	}

	kind := req.Kind
	if kind == "" {
		kind = model.KindHouse
	}
	if kind != model.KindHouse && kind != model.KindFlats {
		return "", model.Errorf(model.KindInvalidProperty, "unknown property kind %q", kind)
	}
	rooms := req.Rooms
	if kind == model.KindFlats && rooms == 0 {
		return "", model.Errorf(model.KindInvalidProperty, "a multi-unit property needs at least one room")
	}
	if kind == model.KindFlats && rooms > f.cfg.MaxRooms {
		return "", model.Errorf(model.KindInvalidProperty, "%d rooms exceeds the limit of %d", rooms, f.cfg.MaxRooms)
	}
	if kind == model.KindHouse {
		rooms = 0
	}
	prop, err := model.NewProperty(req.Name, req.Price, req.Location, req.Features, req.Image)
	if err != nil {
		return "", model.Errorf(model.KindInvalidProperty, "%v", err)
	}

	reg := registry.New(store.NewGormStore(env.DB()), env.Current)
	taken, err := reg.NameTaken(ctx, req.Name)
	if err != nil {
		return "", err
	}
	if taken {
		return "", model.Errorf(model.KindNameTaken, "%s is already registered", account)
	}

	steps, err := f.provisioningSteps(env, account, kind, prop, rooms)
	if err != nil {
		return "", err
	}
	chainID := env.Schedule(steps...)
	logging.Logger.WithField("chain", chainID).WithField("account", account).Info("Provisioning scheduled")
	return account, nil
}

// provisioningSteps builds create -> fund -> deploy -> initialize -> register.
func (f *Factory) provisioningSteps(env *host.Env, account string, kind model.LedgerKind, prop model.Property, rooms uint64) ([]model.Step, error) {
	initCall, err := host.FunctionCall(account, ledger.MethodNew, ledger.InitArgs{
		Owner:    env.Signer,
		Property: prop,
		Rooms:    rooms,
	}, decimal.Zero)
	if err != nil {
		return nil, err
	}
	registerCall, err := host.FunctionCall(env.Current, MethodRegisterOwnership, RegisterArgs{
		Owner:   env.Signer,
		Account: account,
	}, decimal.Zero)
	if err != nil {
		return nil, err
	}
	return []model.Step{
		host.CreateAccount(account),
		host.Transfer(account, f.cfg.Funding),
		host.Deploy(account, model.CodeFor(kind)),
		initCall,
		registerCall,
	}, nil
}

// RegisterOwnership records account under owner. Only the factory itself,
// acting on its own chain, may call it.
func (f *Factory) RegisterOwnership(ctx context.Context, env *host.Env, owner, account string) (string, error) {
	if env.Predecessor != env.Current {
		return "", model.Errorf(model.KindForbidden, "register_ownership may only be called by %s", env.Current)
	}
	if _, err := state(ctx, env); err != nil {
		return "", err
	}
	if _, err := registry.New(store.NewGormStore(env.DB()), env.Current).Register(ctx, owner, account); err != nil {
		return "", err
	}
	return Ack, nil
}

func state(ctx context.Context, env *host.Env) (*model.Factory, error) {
	st, err := store.NewGormStore(env.DB()).GetFactory(ctx, env.Current)
	if errors.Is(err, store.ErrNotFound) {
		return nil, model.Errorf(model.KindNotFound, "factory %s is not initialized", env.Current)
	}
	return st, err
}

func withRegistry[T any](ctx context.Context, env *host.Env, fn func(*registry.Registry) (T, error)) (any, error) {
	if _, err := state(ctx, env); err != nil {
		return nil, err
	}
	return fn(registry.New(store.NewGormStore(env.DB()), env.Current))
}

func decode(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return model.Errorf(model.KindInvalidInput, "malformed arguments: %v", err)
	}
	return nil
}
