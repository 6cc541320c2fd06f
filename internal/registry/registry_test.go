package registry

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"flats-rental-backend/internal/model"
	"flats-rental-backend/internal/store"
)

const factory = "factory.testnet"

func newTestRegistry(t *testing.T) (*Registry, store.Store) {
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	testDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := testDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, testDB.AutoMigrate(&model.Ownership{}))

	s := store.NewGormStore(testDB)
	return New(s, factory), s
}

func TestRegistry_RegisterIsIdempotent(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	added, err := r.Register(ctx, "alice.testnet", "tower.factory.testnet")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = r.Register(ctx, "alice.testnet", "tower.factory.testnet")
	require.NoError(t, err)
	assert.False(t, added)

	added, err = r.Register(ctx, "alice.testnet", "annex.factory.testnet")
	require.NoError(t, err)
	assert.True(t, added)

	owned, err := r.Owned(ctx, "alice.testnet")
	require.NoError(t, err)
	assert.Equal(t, []string{"annex.factory.testnet", "tower.factory.testnet"}, owned)

	owned, err = r.Owned(ctx, "nobody.testnet")
	require.NoError(t, err)
	assert.Empty(t, owned)
}

func TestRegistry_NameTaken(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	_, err := r.Register(ctx, "alice.testnet", "tower.factory.testnet")
	require.NoError(t, err)

	tests := []struct {
		name string
		want bool
	}{
		{"tower", true},
		{"tower.factory.testnet", true},
		{"towers", false},
		{"annex", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.NameTaken(ctx, tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegistry_ListAllIsStable(t *testing.T) {
	r, s := newTestRegistry(t)
	ctx := context.Background()

	// Spread entries over more than one scan batch.
	for i := 0; i < 130; i++ {
		owner := fmt.Sprintf("owner%d.testnet", i%3)
		_, err := r.Register(ctx, owner, fmt.Sprintf("p%03d.factory.testnet", i))
		require.NoError(t, err)
	}
	// Entries of other factories are not listed.
	_, err := s.AddOwnership(ctx, &model.Ownership{FactoryAccount: "other.testnet", Owner: "owner0.testnet", LedgerAccount: "x.other.testnet"})
	require.NoError(t, err)

	first, err := r.ListAll(ctx)
	require.NoError(t, err)
	second, err := r.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, first, 130)
	assert.Equal(t, first, second)
	assert.Equal(t, "p000.factory.testnet", first[0])
	assert.NotContains(t, first, "x.other.testnet")

	taken, err := r.NameTaken(ctx, "p129")
	require.NoError(t, err)
	assert.True(t, taken)
}
