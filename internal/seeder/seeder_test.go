package seeder

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"go.uber.org/zap"

	"github.com/Additional-Code/comanda/internal/database"
	"github.com/Additional-Code/comanda/internal/entity"
)

func newSQLite(t *testing.T) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	for _, model := range []any{(*entity.Customer)(nil), (*entity.Restaurant)(nil), (*entity.Product)(nil)} {
		_, err := db.NewCreateTable().Model(model).Exec(context.Background())
		require.NoError(t, err)
	}
	return db
}

func TestCatalogIsRepeatable(t *testing.T) {
	db := newSQLite(t)
	s := New(database.NewFromDB(db), zap.NewNop())
	ctx := context.Background()

	first, err := s.Catalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Customers: 3, Restaurants: 3, Products: 5}, first)

	second, err := s.Catalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{}, second)

	var products []entity.Product
	require.NoError(t, db.NewSelect().Model(&products).OrderExpr("id ASC").Scan(ctx))
	require.Len(t, products, 5)

	var cantina entity.Restaurant
	require.NoError(t, db.NewSelect().Model(&cantina).Where("name = ?", "Cantina da Nonna").Scan(ctx))
	assert.Equal(t, "5.00", cantina.DeliveryFee.StringFixed(2))
	assert.Equal(t, cantina.ID, products[0].RestaurantID)
	assert.Equal(t, "12.90", products[0].UnitPrice.StringFixed(2))
}
