package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/Additional-Code/comanda/internal/money"
)

// Order represents one customer purchase stored in the relational database.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID           int64           `bun:",pk,autoincrement" json:"id"`
	Description  string          `bun:"description" json:"description"`
	CustomerID   int64           `bun:"customer_id,notnull" json:"customer_id"`
	RestaurantID int64           `bun:"restaurant_id,notnull" json:"restaurant_id"`
	Status       OrderStatus     `bun:"status,notnull" json:"status"`
	Subtotal     decimal.Decimal `bun:"subtotal,type:decimal(12,2),notnull" json:"subtotal"`
	DeliveryFee  decimal.Decimal `bun:"delivery_fee,type:decimal(12,2),notnull" json:"delivery_fee"`
	Total        decimal.Decimal `bun:"total,type:decimal(12,2),notnull" json:"total"`
	Active       bool            `bun:"active,notnull" json:"active"`
	CreatedAt    time.Time       `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time       `bun:"updated_at,nullzero" json:"updated_at"`
}

// OrderLine is one product line owned by an order. Unit price and product name
// are copied from the product when the order is placed.
type OrderLine struct {
	bun.BaseModel `bun:"table:order_lines"`

	ID          int64           `bun:",pk,autoincrement" json:"id"`
	OrderID     int64           `bun:"order_id,notnull" json:"order_id"`
	ProductID   int64           `bun:"product_id,notnull" json:"product_id"`
	ProductName string          `bun:"product_name" json:"product_name"`
	Quantity    int             `bun:"quantity,notnull" json:"quantity"`
	UnitPrice   decimal.Decimal `bun:"unit_price,type:decimal(12,2),notnull" json:"unit_price"`
	LineTotal   decimal.Decimal `bun:"line_total,type:decimal(12,2),notnull" json:"line_total"`
	Note        string          `bun:"note" json:"note,omitempty"`
}

// NewOrderLine snapshots the product into a line for the given order.
func NewOrderLine(orderID int64, product *Product, quantity int, note string) *OrderLine {
	line := &OrderLine{
		OrderID:     orderID,
		ProductID:   product.ID,
		ProductName: product.Name,
		Note:        note,
	}
	line.SetQuantity(quantity)
	line.SetUnitPrice(product.UnitPrice)
	return line
}

// SetQuantity updates the quantity and recomputes the line total.
func (l *OrderLine) SetQuantity(quantity int) {
	l.Quantity = quantity
	l.recompute()
}

// SetUnitPrice updates the unit price and recomputes the line total.
func (l *OrderLine) SetUnitPrice(price decimal.Decimal) {
	l.UnitPrice = price
	l.recompute()
}

func (l *OrderLine) recompute() {
	l.LineTotal = money.LineTotal(l.Quantity, l.UnitPrice)
}
