// Package repository declares the storage contracts the order engine consumes.
// Concrete implementations live in the sub-packages.
package repository

import (
	"context"
	"errors"

	"github.com/Additional-Code/comanda/internal/entity"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

// ListFilter narrows order listings. Zero values mean "any".
type ListFilter struct {
	CustomerID int64
	Status     entity.OrderStatus
	ActiveOnly bool
	Limit      int
	Offset     int
}

// Orders persists order headers and their lines.
type Orders interface {
	// Save inserts the order when its ID is zero, assigning the ID, and updates it otherwise.
	Save(ctx context.Context, order *entity.Order) error
	SaveLine(ctx context.Context, line *entity.OrderLine) error
	GetByID(ctx context.Context, id int64) (*entity.Order, error)
	// GetByIDForUpdate loads the order and locks its row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id int64) (*entity.Order, error)
	ListLines(ctx context.Context, orderID int64) ([]entity.OrderLine, error)
	List(ctx context.Context, filter ListFilter) ([]entity.Order, error)
}

// Customers looks customers up by id.
type Customers interface {
	GetByID(ctx context.Context, id int64) (*entity.Customer, error)
}

// Restaurants looks restaurants up by id.
type Restaurants interface {
	GetByID(ctx context.Context, id int64) (*entity.Restaurant, error)
}

// Products looks products up by id.
type Products interface {
	GetByID(ctx context.Context, id int64) (*entity.Product, error)
}

// Store groups the repositories bound to one connection or transaction.
type Store interface {
	Orders() Orders
	Customers() Customers
	Restaurants() Restaurants
	Products() Products
}

// UnitOfWork runs fn inside a single transaction. The transaction commits when
// fn returns nil and rolls back when it returns an error or panics. The
// embedded Store serves reads outside any transaction.
type UnitOfWork interface {
	Store
	Do(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
