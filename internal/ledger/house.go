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
	MethodIsDateAvailable = "is_date_available"
	MethodBook            = "book"
	MethodVerifyOccupant  = "verify_occupant"
)

// DateArgs addresses one reservation date.
type DateArgs struct {
	Date model.Date `json:"date"`
}

// House is the date-keyed booking ledger of a single-unit property.
type House struct{}

func NewHouse() *House {
	return &House{}
}

func (h *House) Invoke(ctx context.Context, env *host.Env, method string, args json.RawMessage) (any, error) {
	if out, ok, err := common(ctx, env, method, args); ok {
		return out, err
	}

	switch method {
	case MethodNew:
		var a InitArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if _, err := initialize(ctx, env, model.KindHouse, InitArgs{Owner: a.Owner, Property: a.Property}); err != nil {
			return nil, err
		}
		return true, nil
	case MethodIsDateAvailable, MethodBook, MethodVerifyOccupant:
		var a DateArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		switch method {
		case MethodIsDateAvailable:
			return h.IsDateAvailable(ctx, env, a.Date)
		case MethodBook:
			return h.Book(ctx, env, a.Date)
		default:
			return h.VerifyOccupant(ctx, env, a.Date)
		}
	}
	return nil, unknownMethod(method)
}

// IsDateAvailable reports whether d has no reservation.
func (h *House) IsDateAvailable(ctx context.Context, env *host.Env, d model.Date) (bool, error) {
	if _, err := load(ctx, env); err != nil {
		return false, err
	}
	r, err := reservation(ctx, env, d)
	if err != nil {
		return false, err
	}
	return r == nil, nil
}

// Book reserves d for the signer against the attached deposit, which must
// equal the property price exactly.
func (h *House) Book(ctx context.Context, env *host.Env, d model.Date) (bool, error) {
	l, err := load(ctx, env)
	if err != nil {
		return false, err
	}
	if err := d.Validate(); err != nil {
		return false, err
	}
	r, err := reservation(ctx, env, d)
	if err != nil {
		return false, err
	}
	if r != nil {
		return false, model.Errorf(model.KindUnavailable, "%d-%d-%d is already booked", d.Year, d.Month, d.Day)
	}
	if !env.Deposit.Equal(l.Price) {
		return false, model.Errorf(model.KindPriceMismatch, "attached %s, price is %s", env.Deposit, l.Price)
	}

	s := storeFor(env)
	if err := s.CreateReservation(ctx, &model.Reservation{
		LedgerAccount: env.Current,
		Year:          d.Year,
		Month:         d.Month,
		Day:           d.Day,
		Occupant:      env.Signer,
	}); err != nil {
		return false, err
	}
	p := model.NewDatePayment(env.Current, env.Signer, env.Now, env.Deposit, d)
	if err := s.AppendPayment(ctx, &p); err != nil {
		return false, err
	}
	return true, nil
}

// VerifyOccupant reports whether d is reserved by the signer.
func (h *House) VerifyOccupant(ctx context.Context, env *host.Env, d model.Date) (bool, error) {
	if _, err := load(ctx, env); err != nil {
		return false, err
	}
	r, err := reservation(ctx, env, d)
	if err != nil {
		return false, err
	}
	return r != nil && r.Occupant == env.Signer, nil
}

func reservation(ctx context.Context, env *host.Env, d model.Date) (*model.Reservation, error) {
	r, err := storeFor(env).GetReservation(ctx, env.Current, d)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return r, err
}
