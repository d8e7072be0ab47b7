package seeder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/comanda/internal/database"
	"github.com/Additional-Code/comanda/internal/entity"
)

// Module provides the Seeder.
var Module = fx.Provide(New)

// Seeder performs database seeding for local/dev setups.
type Seeder struct {
	db     *bun.DB
	logger *zap.Logger
}

// New constructs a Seeder backed by the primary database connection.
func New(conns *database.Connections, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{db: conns.Writer, logger: logger}
}

type menuItem struct {
	name      string
	price     string
	available bool
}

type restaurantSeed struct {
	name        string
	deliveryFee string
	active      bool
	menu        []menuItem
}

var customerSeeds = []entity.Customer{
	{Name: "Ana Souza", Email: "ana@comanda.local", Active: true},
	{Name: "Bruno Lima", Email: "bruno@comanda.local", Active: true},
	{Name: "Carla Dias", Email: "carla@comanda.local", Active: false},
}

var restaurantSeeds = []restaurantSeed{
	{
		name: "Cantina da Nonna", deliveryFee: "5.00", active: true,
		menu: []menuItem{
			{name: "Lasagna", price: "12.90", available: true},
			{name: "Soda", price: "4.90", available: true},
			{name: "Tiramisu", price: "9.50", available: false},
		},
	},
	{
		name: "Sushi Bar", deliveryFee: "7.50", active: true,
		menu: []menuItem{
			{name: "Combo 20 pieces", price: "59.90", available: true},
		},
	},
	{
		name: "Closed Grill", deliveryFee: "3.00", active: false,
		menu: []menuItem{
			{name: "Burger", price: "25.00", available: true},
		},
	},
}

// Summary counts the rows a seeding run inserted.
type Summary struct {
	Customers   int
	Restaurants int
	Products    int
}

// Catalog seeds customers, restaurants and their menus. Rows that already
// exist, matched by natural key, are left untouched so the run is repeatable.
func (s *Seeder) Catalog(ctx context.Context) (Summary, error) {
	var summary Summary
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, seed := range customerSeeds {
			customer := seed
			inserted, err := ensure(ctx, tx, &customer, "email = ?", customer.Email)
			if err != nil {
				return fmt.Errorf("seed customer %s: %w", customer.Email, err)
			}
			if inserted {
				summary.Customers++
			}
		}

		for _, seed := range restaurantSeeds {
			restaurant := &entity.Restaurant{
				Name:        seed.name,
				DeliveryFee: decimal.RequireFromString(seed.deliveryFee),
				Active:      seed.active,
			}
			inserted, err := ensure(ctx, tx, restaurant, "name = ?", restaurant.Name)
			if err != nil {
				return fmt.Errorf("seed restaurant %s: %w", restaurant.Name, err)
			}
			if inserted {
				summary.Restaurants++
			}

			for _, item := range seed.menu {
				product := &entity.Product{
					RestaurantID: restaurant.ID,
					Name:         item.name,
					UnitPrice:    decimal.RequireFromString(item.price),
					Available:    item.available,
				}
				inserted, err := ensure(ctx, tx, product, "restaurant_id = ? AND name = ?", restaurant.ID, product.Name)
				if err != nil {
					return fmt.Errorf("seed product %s: %w", product.Name, err)
				}
				if inserted {
					summary.Products++
				}
			}
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}

	s.logger.Info("seeded catalog",
		zap.Int("customers", summary.Customers),
		zap.Int("restaurants", summary.Restaurants),
		zap.Int("products", summary.Products),
	)
	return summary, nil
}

// ensure loads the row matching where into model, inserting model when none exists.
func ensure(ctx context.Context, db bun.IDB, model any, where string, args ...any) (bool, error) {
	err := db.NewSelect().Model(model).Where(where, args...).Limit(1).Scan(ctx)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}
	if _, err := db.NewInsert().Model(model).Exec(ctx); err != nil {
		return false, err
	}
	return true, nil
}
