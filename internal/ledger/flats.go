package ledger

import (
	"context"
	"encoding/json"
	"errors"

	"flats-rental-backend/internal/host"
	"flats-rental-backend/internal/model"
	"flats-rental-backend/internal/store"
)

const (
	MethodBookUnit          = "book_unit"
	MethodFlagNonRenewal    = "flag_non_renewal"
	MethodUnlockUnit        = "unlock_unit"
	MethodListPendingVacate = "list_pending_vacate"
	MethodUnitCount         = "unit_count"
	MethodRoomIsAvailable   = "room_is_available"

	// EventUnitAvailable is emitted when an owner unlocks a vacated unit.
	EventUnitAvailable = "unit_available"

	// DefaultMaxRooms caps the units a single ledger is created with.
	DefaultMaxRooms uint64 = 1000
)

// UnitArgs addresses one unit.
type UnitArgs struct {
	Unit uint64 `json:"unit"`
}

// Flats is the unit lifecycle ledger of a multi-unit property. Units move
// available -> occupied -> occupied_pending_vacate -> available.
type Flats struct {
	maxRooms uint64
}

func NewFlats() *Flats {
	return NewFlatsWithMaxRooms(DefaultMaxRooms)
}

// NewFlatsWithMaxRooms is NewFlats with a different unit cap. Zero means
// DefaultMaxRooms.
func NewFlatsWithMaxRooms(maxRooms uint64) *Flats {
	if maxRooms == 0 {
		maxRooms = DefaultMaxRooms
	}
	return &Flats{maxRooms: maxRooms}
}

func (f *Flats) Invoke(ctx context.Context, env *host.Env, method string, args json.RawMessage) (any, error) {
	if out, ok, err := common(ctx, env, method, args); ok {
		return out, err
	}

	switch method {
	case MethodNew:
		var a InitArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return f.Init(ctx, env, a)
	case MethodListPendingVacate:
		return f.ListPendingVacate(ctx, env)
	case MethodUnitCount:
		return f.UnitCount(ctx, env)
	case MethodBookUnit, MethodFlagNonRenewal, MethodUnlockUnit, MethodRoomIsAvailable:
		var a UnitArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		switch method {
		case MethodBookUnit:
			return f.BookUnit(ctx, env, a.Unit)
		case MethodFlagNonRenewal:
			return f.FlagNonRenewal(ctx, env, a.Unit)
		case MethodUnlockUnit:
			return f.UnlockUnit(ctx, env, a.Unit)
		default:
			return f.RoomIsAvailable(ctx, env, a.Unit)
		}
	}
	return nil, unknownMethod(method)
}

// Init writes the ledger header and creates units 0..rooms-1, all available.
func (f *Flats) Init(ctx context.Context, env *host.Env, args InitArgs) (bool, error) {
	if args.Rooms == 0 {
		return false, model.Errorf(model.KindInvalidInput, "a multi-unit property needs at least one room")
	}
	if args.Rooms > f.maxRooms {
		return false, model.Errorf(model.KindInvalidInput, "%d rooms exceeds the limit of %d", args.Rooms, f.maxRooms)
	}
	if _, err := initialize(ctx, env, model.KindFlats, args); err != nil {
		return false, err
	}
	if err := storeFor(env).CreateUnits(ctx, env.Current, args.Rooms); err != nil {
		return false, err
	}
	return true, nil
}

// BookUnit gives an available unit to the signer against the exact price.
func (f *Flats) BookUnit(ctx context.Context, env *host.Env, number uint64) (bool, error) {
	l, err := load(ctx, env)
	if err != nil {
		return false, err
	}
	u, err := unit(ctx, env, number)
	if err != nil {
		return false, err
	}
	if !u.IsAvailable {
		return false, model.Errorf(model.KindUnavailable, "unit %d is occupied", number)
	}
	if !env.Deposit.Equal(l.Price) {
		return false, model.Errorf(model.KindPriceMismatch, "attached %s, price is %s", env.Deposit, l.Price)
	}

	occupant := env.Signer
	u.Occupant = &occupant
	u.IsAvailable = false
	u.PendingVacate = false
	s := storeFor(env)
	if err := s.SaveUnit(ctx, u); err != nil {
		return false, err
	}
	p := model.NewUnitPayment(env.Current, env.Signer, env.Now, env.Deposit, number)
	if err := s.AppendPayment(ctx, &p); err != nil {
		return false, err
	}
	return true, nil
}

// FlagNonRenewal marks the signer's unit as vacating.
func (f *Flats) FlagNonRenewal(ctx context.Context, env *host.Env, number uint64) (bool, error) {
	if _, err := load(ctx, env); err != nil {
		return false, err
	}
	u, err := unit(ctx, env, number)
	if err != nil {
		return false, err
	}
	if u.Occupant == nil {
		return false, model.Errorf(model.KindNotOccupied, "unit %d has no occupant", number)
	}
	if !u.OccupiedBy(env.Signer) {
		return false, model.Errorf(model.KindForbidden, "only the occupant of unit %d may give notice", number)
	}
	u.PendingVacate = true
	if err := storeFor(env).SaveUnit(ctx, u); err != nil {
		return false, err
	}
	return true, nil
}

// UnlockUnit releases a vacating unit back to available. It returns false
// when the unit is not pending vacate.
func (f *Flats) UnlockUnit(ctx context.Context, env *host.Env, number uint64) (bool, error) {
	l, err := load(ctx, env)
	if err != nil {
		return false, err
	}
	if env.Signer != l.Owner {
		return false, model.Errorf(model.KindForbidden, "only the owner may unlock units")
	}
	u, err := unit(ctx, env, number)
	if err != nil {
		return false, err
	}
	if !u.PendingVacate {
		return false, nil
	}

	u.Occupant = nil
	u.IsAvailable = true
	u.PendingVacate = false
	if err := storeFor(env).SaveUnit(ctx, u); err != nil {
		return false, err
	}
	env.Emit(EventUnitAvailable, map[string]any{"unit": number, "name": l.Name})
	return true, nil
}

// ListPendingVacate scans every unit and returns those vacating, by id.
func (f *Flats) ListPendingVacate(ctx context.Context, env *host.Env) ([]model.Unit, error) {
	if _, err := load(ctx, env); err != nil {
		return nil, err
	}
	out := []model.Unit{}
	err := storeFor(env).EachUnit(ctx, env.Current, func(u model.Unit) error {
		if u.PendingVacate {
			out = append(out, u)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (f *Flats) UnitCount(ctx context.Context, env *host.Env) (uint64, error) {
	if _, err := load(ctx, env); err != nil {
		return 0, err
	}
	n, err := storeFor(env).CountUnits(ctx, env.Current)
	return uint64(n), err
}

func (f *Flats) RoomIsAvailable(ctx context.Context, env *host.Env, number uint64) (bool, error) {
	if _, err := load(ctx, env); err != nil {
		return false, err
	}
	u, err := unit(ctx, env, number)
	if err != nil {
		return false, err
	}
	return u.IsAvailable, nil
}

func unit(ctx context.Context, env *host.Env, number uint64) (*model.Unit, error) {
	u, err := storeFor(env).GetUnit(ctx, env.Current, number)
	if errors.Is(err, store.ErrNotFound) {
		return nil, model.Errorf(model.KindNotFound, "unit %d does not exist", number)
	}
	return u, err
}
