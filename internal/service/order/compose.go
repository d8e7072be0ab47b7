package order

import (
	"context"

	"github.com/Additional-Code/comanda/internal/dto"
	"github.com/Additional-Code/comanda/internal/entity"
	"github.com/Additional-Code/comanda/internal/repository"
	"github.com/Additional-Code/comanda/pkg/errorbank"
)

// compose loads an order header and its lines and assembles the read view.
func compose(ctx context.Context, store repository.Store, id int64) (*dto.OrderResponse, error) {
	order, err := store.Orders().GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(EntityOrder, id, err)
	}
	lines, err := store.Orders().ListLines(ctx, id)
	if err != nil {
		return nil, errorbank.Internal("failed to load order lines", errorbank.WithCause(err))
	}

	view := toSummary(order)
	view.Lines = make([]dto.OrderLineResponse, 0, len(lines))
	for _, line := range lines {
		view.Lines = append(view.Lines, dto.OrderLineResponse{
			ID:          line.ID,
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice.StringFixed(2),
			LineTotal:   line.LineTotal.StringFixed(2),
			Note:        line.Note,
		})
	}
	return view, nil
}

func toSummary(order *entity.Order) *dto.OrderResponse {
	return &dto.OrderResponse{
		ID:           order.ID,
		Description:  order.Description,
		Status:       order.Status.String(),
		Active:       order.Active,
		CustomerID:   order.CustomerID,
		RestaurantID: order.RestaurantID,
		Subtotal:     order.Subtotal.StringFixed(2),
		DeliveryFee:  order.DeliveryFee.StringFixed(2),
		Total:        order.Total.StringFixed(2),
		CreatedAt:    order.CreatedAt,
		UpdatedAt:    order.UpdatedAt,
	}
}
