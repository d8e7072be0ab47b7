package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Customer places orders. Inactive customers cannot order.
type Customer struct {
	bun.BaseModel `bun:"table:customers"`

	ID        int64     `bun:",pk,autoincrement" json:"id"`
	Name      string    `bun:"name,notnull" json:"name"`
	Email     string    `bun:"email,unique,nullzero" json:"email"`
	Active    bool      `bun:"active,notnull" json:"active"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP" json:"created_at"`
}

// Restaurant sells products and charges a flat delivery fee per order.
type Restaurant struct {
	bun.BaseModel `bun:"table:restaurants"`

	ID          int64           `bun:",pk,autoincrement" json:"id"`
	Name        string          `bun:"name,notnull,unique" json:"name"`
	DeliveryFee decimal.Decimal `bun:"delivery_fee,type:decimal(12,2),notnull" json:"delivery_fee"`
	Active      bool            `bun:"active,notnull" json:"active"`
	CreatedAt   time.Time       `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP" json:"created_at"`
}

// Product belongs to exactly one restaurant.
type Product struct {
	bun.BaseModel `bun:"table:products"`

	ID           int64           `bun:",pk,autoincrement" json:"id"`
	RestaurantID int64           `bun:"restaurant_id,notnull" json:"restaurant_id"`
	Name         string          `bun:"name,notnull" json:"name"`
	UnitPrice    decimal.Decimal `bun:"unit_price,type:decimal(12,2),notnull" json:"unit_price"`
	Available    bool            `bun:"available,notnull" json:"available"`
	CreatedAt    time.Time       `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP" json:"created_at"`
}
