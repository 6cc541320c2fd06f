package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"flats-rental-backend/internal/model"
)

// A helper function to create a mock database connection.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

// newTestDB opens an isolated in-memory SQLite database with the ledger tables.
func newTestDB(t *testing.T) *gorm.DB {
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	testDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := testDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, testDB.AutoMigrate(
		&model.Ledger{}, &model.Reservation{}, &model.Payment{}, &model.Unit{},
		&model.Factory{}, &model.Ownership{},
	))
	return testDB
}

// Any is a helper for sqlmock to match any argument.
type Any struct{}

// Match satisfies the sqlmock.Argument interface
func (a Any) Match(v driver.Value) bool {
	return true
}

func TestGormStore_AddOwnership(t *testing.T) {
	testCases := []struct {
		name         string
		rowsAffected int64
		expected     bool
	}{
		{name: "New entry is written", rowsAffected: 1, expected: true},
		{name: "Existing entry is left alone", rowsAffected: 0, expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gormDB, mock := newMockDB(t)
			s := NewGormStore(gormDB)

			mock.ExpectBegin()
			mock.ExpectExec(`INSERT INTO "ownerships" .* ON CONFLICT DO NOTHING`).
				WithArgs("hse.testnet", "borwe.testnet", "tower.hse.testnet", Any{}).
				WillReturnResult(sqlmock.NewResult(0, tc.rowsAffected))
			mock.ExpectCommit()

			inserted, err := s.AddOwnership(context.Background(), &model.Ownership{
				FactoryAccount: "hse.testnet",
				Owner:          "borwe.testnet",
				LedgerAccount:  "tower.hse.testnet",
			})
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, inserted)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGormStore_GetLedgerNotFound(t *testing.T) {
	gormDB, mock := newMockDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "ledgers" WHERE account = $1`)).
		WithArgs("missing.testnet", 1).
		WillReturnRows(sqlmock.NewRows([]string{"account"}))

	_, err := s.GetLedger(context.Background(), "missing.testnet")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_Units(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(newTestDB(t))

	require.NoError(t, s.CreateUnits(ctx, "flats.testnet", 250))
	require.NoError(t, s.CreateUnits(ctx, "other.testnet", 3))

	n, err := s.CountUnits(ctx, "flats.testnet")
	require.NoError(t, err)
	assert.Equal(t, int64(250), n)

	u, err := s.GetUnit(ctx, "flats.testnet", 10)
	require.NoError(t, err)
	assert.True(t, u.IsAvailable)
	assert.Nil(t, u.Occupant)

	occupant := "bob.testnet"
	u.IsAvailable = false
	u.Occupant = &occupant
	require.NoError(t, s.SaveUnit(ctx, u))

	var seen []uint64
	var occupied []uint64
	err = s.EachUnit(ctx, "flats.testnet", func(u model.Unit) error {
		seen = append(seen, u.Number)
		if !u.IsAvailable {
			occupied = append(occupied, u.Number)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, seen, 250, "scan crosses batch boundaries and stays within one ledger")
	assert.Equal(t, []uint64{10}, occupied)

	_, err = s.GetUnit(ctx, "flats.testnet", 250)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStore_ReservationsAndPayments(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(newTestDB(t))
	d := model.Date{Day: 1, Month: 1, Year: 2022}

	_, err := s.GetReservation(ctx, "house.testnet", d)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.CreateReservation(ctx, &model.Reservation{
		LedgerAccount: "house.testnet", Year: d.Year, Month: d.Month, Day: d.Day, Occupant: "bob.testnet",
	}))
	r, err := s.GetReservation(ctx, "house.testnet", d)
	require.NoError(t, err)
	assert.Equal(t, "bob.testnet", r.Occupant)

	err = s.CreateReservation(ctx, &model.Reservation{
		LedgerAccount: "house.testnet", Year: d.Year, Month: d.Month, Day: d.Day, Occupant: "alice.testnet",
	})
	assert.Error(t, err, "the date key is unique per ledger")

	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		p := model.NewDatePayment("house.testnet", "bob.testnet", now, model.Near(int64(i+1)), d)
		require.NoError(t, s.AppendPayment(ctx, &p))
	}
	page, err := s.ListPayments(ctx, "house.testnet", "bob.testnet", Page{Offset: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.True(t, model.Near(2).Equal(page[0].Amount))
	assert.True(t, model.Near(3).Equal(page[1].Amount))

	none, err := s.ListPayments(ctx, "house.testnet", "alice.testnet", Page{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGormStore_TransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(newTestDB(t))

	boom := errors.New("boom")
	err := s.Transaction(ctx, func(tx Store) error {
		require.NoError(t, tx.CreateFactory(ctx, &model.Factory{Account: "hse.testnet", Owner: "borwe.testnet"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetFactory(ctx, "hse.testnet")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStore_EachOwnership(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(newTestDB(t))

	entries := []model.Ownership{
		{FactoryAccount: "hse.testnet", Owner: "zed.testnet", LedgerAccount: "a.hse.testnet"},
		{FactoryAccount: "hse.testnet", Owner: "amy.testnet", LedgerAccount: "c.hse.testnet"},
		{FactoryAccount: "hse.testnet", Owner: "amy.testnet", LedgerAccount: "b.hse.testnet"},
		{FactoryAccount: "other.testnet", Owner: "amy.testnet", LedgerAccount: "x.other.testnet"},
	}
	for i := range entries {
		inserted, err := s.AddOwnership(ctx, &entries[i])
		require.NoError(t, err)
		assert.True(t, inserted)
	}
	again := entries[0]
	inserted, err := s.AddOwnership(ctx, &again)
	require.NoError(t, err)
	assert.False(t, inserted)

	var got []string
	require.NoError(t, s.EachOwnership(ctx, "hse.testnet", func(o model.Ownership) error {
		got = append(got, o.Owner+"/"+o.LedgerAccount)
		return nil
	}))
	assert.Equal(t, []string{"amy.testnet/b.hse.testnet", "amy.testnet/c.hse.testnet", "zed.testnet/a.hse.testnet"}, got)
}
