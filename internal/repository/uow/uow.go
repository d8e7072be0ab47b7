// Package uow implements repository.UnitOfWork on top of bun transactions.
package uow

import (
	"context"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"

	"github.com/Additional-Code/comanda/internal/database"
	"github.com/Additional-Code/comanda/internal/repository"
	"github.com/Additional-Code/comanda/internal/repository/customer"
	"github.com/Additional-Code/comanda/internal/repository/order"
	"github.com/Additional-Code/comanda/internal/repository/product"
	"github.com/Additional-Code/comanda/internal/repository/restaurant"
)

var uowTracer = otel.Tracer("github.com/Additional-Code/comanda/repository/uow")

// Module provides the repositories and the bun-backed UnitOfWork.
var Module = fx.Options(
	order.Module,
	customer.Module,
	restaurant.Module,
	product.Module,
	fx.Provide(
		fx.Annotate(New, fx.As(new(repository.UnitOfWork))),
	),
)

// Params defines dependencies for constructing UnitOfWork.
type Params struct {
	fx.In

	Connections *database.Connections
	Orders      *order.Repository
	Customers   *customer.Repository
	Restaurants *restaurant.Repository
	Products    *product.Repository
}

// UnitOfWork runs repository calls inside a writer transaction.
type UnitOfWork struct {
	db          *bun.DB
	orders      *order.Repository
	customers   *customer.Repository
	restaurants *restaurant.Repository
	products    *product.Repository
}

// New wires a UnitOfWork.
func New(p Params) *UnitOfWork {
	return &UnitOfWork{
		db:          p.Connections.Writer,
		orders:      p.Orders,
		customers:   p.Customers,
		restaurants: p.Restaurants,
		products:    p.Products,
	}
}

func (u *UnitOfWork) Orders() repository.Orders           { return u.orders }
func (u *UnitOfWork) Customers() repository.Customers     { return u.customers }
func (u *UnitOfWork) Restaurants() repository.Restaurants { return u.restaurants }
func (u *UnitOfWork) Products() repository.Products       { return u.products }

// Do runs fn in a transaction on the writer connection. bun rolls back when fn
// returns an error or panics and commits otherwise.
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	ctx, span := uowTracer.Start(ctx, "UnitOfWork.Do")
	defer span.End()

	err := u.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, txStore{
			orders:      u.orders.WithTx(tx),
			customers:   u.customers.WithTx(tx),
			restaurants: u.restaurants.WithTx(tx),
			products:    u.products.WithTx(tx),
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transaction rolled back")
	}
	return err
}

type txStore struct {
	orders      *order.Repository
	customers   *customer.Repository
	restaurants *restaurant.Repository
	products    *product.Repository
}

func (s txStore) Orders() repository.Orders           { return s.orders }
func (s txStore) Customers() repository.Customers     { return s.customers }
func (s txStore) Restaurants() repository.Restaurants { return s.restaurants }
func (s txStore) Products() repository.Products       { return s.products }
