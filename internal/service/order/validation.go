package order

import (
	"context"
	"fmt"

	"github.com/Additional-Code/comanda/internal/entity"
	"github.com/Additional-Code/comanda/internal/repository"
	"github.com/Additional-Code/comanda/pkg/errorbank"
)

// CreateRequest describes an order to be placed.
type CreateRequest struct {
	CustomerID   int64
	RestaurantID int64
	Description  string
	Items        []ItemRequest
}

// ItemRequest asks for quantity units of one product. Repeated product ids
// produce separate lines.
type ItemRequest struct {
	ProductID int64
	Quantity  int
	Note      string
}

// check rejects malformed requests before any storage access.
func (r CreateRequest) check() error {
	if r.CustomerID <= 0 {
		return errorbank.BadRequest("customer_id is required")
	}
	if r.RestaurantID <= 0 {
		return errorbank.BadRequest("restaurant_id is required")
	}
	if len(r.Items) == 0 {
		return errorbank.BadRequest("at least one item is required")
	}
	for i, item := range r.Items {
		if item.ProductID <= 0 {
			return errorbank.BadRequest(fmt.Sprintf("items[%d].product_id is required", i))
		}
		if item.Quantity <= 0 {
			return errorbank.BadRequest(fmt.Sprintf("items[%d].quantity must be positive", i))
		}
	}
	return nil
}

type resolvedLine struct {
	product  *entity.Product
	quantity int
	note     string
}

// validated is what the pipeline hands to the creation transaction.
type validated struct {
	customer   *entity.Customer
	restaurant *entity.Restaurant
	lines      []resolvedLine
}

type validationStep func(ctx context.Context, store repository.Store, req CreateRequest, out *validated) error

// creationPipeline runs in order and stops at the first failure.
var creationPipeline = []validationStep{
	resolveCustomer,
	resolveRestaurant,
	resolveProducts,
}

func validate(ctx context.Context, store repository.Store, req CreateRequest) (*validated, error) {
	out := &validated{}
	for _, step := range creationPipeline {
		if err := step(ctx, store, req, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func resolveCustomer(ctx context.Context, store repository.Store, req CreateRequest, out *validated) error {
	customer, err := store.Customers().GetByID(ctx, req.CustomerID)
	if err != nil {
		return lookupError(EntityCustomer, req.CustomerID, err)
	}
	if !customer.Active {
		return errorbank.Business(ReasonCustomerInactive,
			fmt.Sprintf("customer %d is inactive", customer.ID),
			errorbank.WithDetail("customer_id", customer.ID),
		)
	}
	out.customer = customer
	return nil
}

func resolveRestaurant(ctx context.Context, store repository.Store, req CreateRequest, out *validated) error {
	restaurant, err := store.Restaurants().GetByID(ctx, req.RestaurantID)
	if err != nil {
		return lookupError(EntityRestaurant, req.RestaurantID, err)
	}
	if !restaurant.Active {
		return errorbank.Business(ReasonRestaurantClosed,
			fmt.Sprintf("restaurant %d is closed", restaurant.ID),
			errorbank.WithDetail("restaurant_id", restaurant.ID),
		)
	}
	out.restaurant = restaurant
	return nil
}

func resolveProducts(ctx context.Context, store repository.Store, req CreateRequest, out *validated) error {
	out.lines = make([]resolvedLine, 0, len(req.Items))
	for i, item := range req.Items {
		product, err := store.Products().GetByID(ctx, item.ProductID)
		if err != nil {
			return lookupError(EntityProduct, item.ProductID, err)
		}
		if !product.Available {
			return errorbank.Business(ReasonProductUnavailable,
				fmt.Sprintf("product %d is unavailable", product.ID),
				errorbank.WithDetail("product_id", product.ID),
				errorbank.WithDetail("line", i),
			)
		}
		if product.RestaurantID != req.RestaurantID {
			return errorbank.Business(ReasonProductRestaurantMismatch,
				fmt.Sprintf("product %d does not belong to restaurant %d", product.ID, req.RestaurantID),
				errorbank.WithDetail("product_id", product.ID),
				errorbank.WithDetail("restaurant_id", req.RestaurantID),
				errorbank.WithDetail("line", i),
			)
		}
		out.lines = append(out.lines, resolvedLine{product: product, quantity: item.Quantity, note: item.Note})
	}
	return nil
}
