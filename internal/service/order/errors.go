package order

import (
	"errors"
	"fmt"

	"github.com/Additional-Code/comanda/internal/entity"
	"github.com/Additional-Code/comanda/internal/repository"
	"github.com/Additional-Code/comanda/pkg/errorbank"
)

// Business rule codes attached to errorbank errors.
const (
	ReasonCustomerInactive          errorbank.Reason = "customer_inactive"
	ReasonRestaurantClosed          errorbank.Reason = "restaurant_closed"
	ReasonProductUnavailable        errorbank.Reason = "product_unavailable"
	ReasonProductRestaurantMismatch errorbank.Reason = "product_restaurant_mismatch"
	ReasonInvalidTransition         errorbank.Reason = "invalid_transition"
	ReasonCannotCancel              errorbank.Reason = "cannot_cancel"
)

// EntityKind names the kind of record a NotFound error refers to.
type EntityKind string

const (
	EntityCustomer   EntityKind = "customer"
	EntityRestaurant EntityKind = "restaurant"
	EntityProduct    EntityKind = "product"
	EntityOrder      EntityKind = "order"
)

func notFound(kind EntityKind, id int64) *errorbank.AppError {
	return errorbank.NotFound(
		fmt.Sprintf("%s %d not found", kind, id),
		errorbank.WithDetail("entity", string(kind)),
		errorbank.WithDetail("id", id),
	)
}

// lookupError maps a repository failure onto the public taxonomy.
func lookupError(kind EntityKind, id int64, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(kind, id)
	}
	return errorbank.Internal(fmt.Sprintf("failed to load %s", kind), errorbank.WithCause(err))
}

func storageError(message string, err error) error {
	var appErr *errorbank.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return errorbank.Internal(message, errorbank.WithCause(err))
}

func invalidTransition(id int64, from, to entity.OrderStatus, cause error) *errorbank.AppError {
	return errorbank.Business(ReasonInvalidTransition,
		fmt.Sprintf("order %d cannot move from %s to %s", id, from, to),
		errorbank.WithCause(cause),
		errorbank.WithDetail("from", string(from)),
		errorbank.WithDetail("to", string(to)),
	)
}

func cannotCancel(id int64, status entity.OrderStatus) *errorbank.AppError {
	return errorbank.Business(ReasonCannotCancel,
		fmt.Sprintf("order %d cannot be cancelled while %s", id, status),
		errorbank.WithDetail("status", string(status)),
	)
}
