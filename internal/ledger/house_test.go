package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flats-rental-backend/internal/host"
	"flats-rental-backend/internal/model"
)

const cottage = "cottage.factory.testnet"

func newHouse(t *testing.T) *host.Runtime {
	rt := newTestRuntime(t)
	deploy(t, rt, cottage, model.CodeHouseLedger, InitArgs{Owner: owner, Property: testProperty("Cottage")})
	return rt
}

func TestHouse_BookFlipsAvailability(t *testing.T) {
	rt := newHouse(t)
	date := DateArgs{Date: model.Date{Day: 24, Month: 12, Year: 2025}}

	free, err := call[bool](rt, cottage, MethodIsDateAvailable, renter, decimal.Zero, date)
	require.NoError(t, err)
	assert.True(t, free)

	ok, err := call[bool](rt, cottage, MethodBook, renter, price, date)
	require.NoError(t, err)
	assert.True(t, ok)

	free, err = call[bool](rt, cottage, MethodIsDateAvailable, renter, decimal.Zero, date)
	require.NoError(t, err)
	assert.False(t, free)
	assert.True(t, price.Equal(balance(t, rt, cottage)), "the ledger keeps the payment")
}

func TestHouse_SecondBookingFails(t *testing.T) {
	rt := newHouse(t)
	date := DateArgs{Date: model.Date{Day: 1, Month: 1, Year: 2026}}

	_, err := call[bool](rt, cottage, MethodBook, renter, price, date)
	require.NoError(t, err)

	_, err = call[bool](rt, cottage, MethodBook, renter, price, date)
	assert.ErrorIs(t, err, model.ErrUnavailable)
	_, err = call[bool](rt, cottage, MethodBook, other, price, date)
	assert.ErrorIs(t, err, model.ErrUnavailable)
	assert.True(t, price.Equal(balance(t, rt, cottage)))
}

func TestHouse_ExactPrice(t *testing.T) {
	rt := newHouse(t)
	date := DateArgs{Date: model.Date{Day: 2, Month: 2, Year: 2026}}

	for _, paid := range []decimal.Decimal{price.Sub(decimal.NewFromInt(1)), price.Add(decimal.NewFromInt(1)), decimal.Zero} {
		_, err := call[bool](rt, cottage, MethodBook, renter, paid, date)
		assert.ErrorIs(t, err, model.ErrPriceMismatch, "paid %s", paid)
	}

	free, err := call[bool](rt, cottage, MethodIsDateAvailable, renter, decimal.Zero, date)
	require.NoError(t, err)
	assert.True(t, free)
	assert.True(t, balance(t, rt, cottage).IsZero(), "rejected deposits are not retained")

	page, err := call[[]model.PaymentRecord](rt, cottage, MethodPayments, renter, decimal.Zero, nil)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestHouse_DateValidation(t *testing.T) {
	rt := newHouse(t)

	_, err := call[bool](rt, cottage, MethodBook, renter, price, DateArgs{Date: model.Date{Day: 1, Month: 1, Year: 0}})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	// Only the year is validated.
	ok, err := call[bool](rt, cottage, MethodBook, renter, price, DateArgs{Date: model.Date{Day: 40, Month: 13, Year: 2025}})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHouse_VerifyOccupant(t *testing.T) {
	rt := newHouse(t)
	date := DateArgs{Date: model.Date{Day: 5, Month: 5, Year: 2026}}

	got, err := call[bool](rt, cottage, MethodVerifyOccupant, renter, decimal.Zero, date)
	require.NoError(t, err)
	assert.False(t, got, "unreserved")

	_, err = call[bool](rt, cottage, MethodBook, renter, price, date)
	require.NoError(t, err)

	got, err = call[bool](rt, cottage, MethodVerifyOccupant, renter, decimal.Zero, date)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = call[bool](rt, cottage, MethodVerifyOccupant, other, decimal.Zero, date)
	require.NoError(t, err)
	assert.False(t, got)
}
