// Package lifecycle encodes the order status state machine as data.
package lifecycle

import (
	"errors"
	"fmt"

	"go.uber.org/fx"

	"github.com/Additional-Code/comanda/internal/entity"
)

// Module provides the default Machine.
var Module = fx.Provide(Default)

// ErrInvalidTransition is matched by every *TransitionError.
var ErrInvalidTransition = errors.New("invalid status transition")

// TransitionError describes a rejected move between two statuses.
type TransitionError struct {
	From entity.OrderStatus
	To   entity.OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}

// Is lets errors.Is match ErrInvalidTransition.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Table maps a status to the statuses it may move to. Statuses absent from
// the table, or mapped to an empty set, are terminal.
type Table map[entity.OrderStatus][]entity.OrderStatus

// DefaultTable is the order lifecycle:
//
//	PENDING -> CONFIRMED -> PREPARING -> OUT_FOR_DELIVERY -> DELIVERED
//	   |           |
//	   +-----------+-> CANCELLED
var DefaultTable = Table{
	entity.StatusPending:        {entity.StatusConfirmed, entity.StatusCancelled},
	entity.StatusConfirmed:      {entity.StatusPreparing, entity.StatusCancelled},
	entity.StatusPreparing:      {entity.StatusOutForDelivery},
	entity.StatusOutForDelivery: {entity.StatusDelivered},
	entity.StatusDelivered:      {},
	entity.StatusCancelled:      {},
}

// Machine answers transition questions against a Table.
type Machine struct {
	allowed map[entity.OrderStatus]map[entity.OrderStatus]struct{}
	table   Table
}

// New builds a Machine from table.
func New(table Table) *Machine {
	allowed := make(map[entity.OrderStatus]map[entity.OrderStatus]struct{}, len(table))
	for from, targets := range table {
		set := make(map[entity.OrderStatus]struct{}, len(targets))
		for _, to := range targets {
			set[to] = struct{}{}
		}
		allowed[from] = set
	}
	return &Machine{allowed: allowed, table: table}
}

// Default returns a Machine over DefaultTable.
func Default() *Machine {
	return New(DefaultTable)
}

// Allowed returns the statuses reachable in one step from from.
func (m *Machine) Allowed(from entity.OrderStatus) []entity.OrderStatus {
	targets := m.table[from]
	out := make([]entity.OrderStatus, len(targets))
	copy(out, targets)
	return out
}

// CanTransition reports whether from -> to is a single permitted step.
func (m *Machine) CanTransition(from, to entity.OrderStatus) bool {
	_, ok := m.allowed[from][to]
	return ok
}

// Transition returns to when the step is permitted, or a *TransitionError.
func (m *Machine) Transition(from, to entity.OrderStatus) (entity.OrderStatus, error) {
	if !m.CanTransition(from, to) {
		return from, &TransitionError{From: from, To: to}
	}
	return to, nil
}

// IsTerminal reports whether no transition leaves s.
func (m *Machine) IsTerminal(s entity.OrderStatus) bool {
	return len(m.allowed[s]) == 0
}

// CanCancel reports whether an order in s may still be cancelled.
func (m *Machine) CanCancel(s entity.OrderStatus) bool {
	return m.CanTransition(s, entity.StatusCancelled)
}
