package dto

import "time"

// OrderResponse represents an order as exposed via transport layers. Money
// fields are decimal strings with two fraction digits.
type OrderResponse struct {
	ID           int64               `json:"id"`
	Description  string              `json:"description,omitempty"`
	Status       string              `json:"status"`
	Active       bool                `json:"active"`
	CustomerID   int64               `json:"customer_id"`
	RestaurantID int64               `json:"restaurant_id"`
	Subtotal     string              `json:"subtotal"`
	DeliveryFee  string              `json:"delivery_fee"`
	Total        string              `json:"total"`
	Lines        []OrderLineResponse `json:"lines,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// OrderLineResponse is one product line of an order, priced as it was when ordered.
type OrderLineResponse struct {
	ID          int64  `json:"id"`
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	LineTotal   string `json:"line_total"`
	Note        string `json:"note,omitempty"`
}

// CreateOrderRequest is the payload accepted when placing an order.
type CreateOrderRequest struct {
	CustomerID   int64                    `json:"customer_id"`
	RestaurantID int64                    `json:"restaurant_id"`
	Description  string                   `json:"description"`
	Items        []CreateOrderItemRequest `json:"items"`
}

// CreateOrderItemRequest asks for a quantity of one product.
type CreateOrderItemRequest struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Note      string `json:"note"`
}

// UpdateOrderStatusRequest carries the target status of a transition.
type UpdateOrderStatusRequest struct {
	Status string `json:"status"`
}

// SetOrderActiveRequest toggles whether an order shows up in listings.
type SetOrderActiveRequest struct {
	Active *bool `json:"active"`
}
