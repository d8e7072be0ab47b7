package order

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Additional-Code/comanda/internal/dto"
	"github.com/Additional-Code/comanda/internal/messaging"
)

// Event types published on the lifecycle topic.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderUpdated       = "order.updated"
)

// Event is the envelope of every order lifecycle message.
type Event struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	OccurredAt time.Time  `json:"occurred_at"`
	Order      OrderEvent `json:"order"`
}

// OrderEvent carries the order fields consumers care about.
type OrderEvent struct {
	ID             int64  `json:"id"`
	CustomerID     int64  `json:"customer_id"`
	RestaurantID   int64  `json:"restaurant_id"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status,omitempty"`
	Total          string `json:"total"`
	Active         bool   `json:"active"`
}

func newEvent(eventType string, view *dto.OrderResponse, previous string, now time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: now,
		Order: OrderEvent{
			ID:             view.ID,
			CustomerID:     view.CustomerID,
			RestaurantID:   view.RestaurantID,
			Status:         view.Status,
			PreviousStatus: previous,
			Total:          view.Total,
			Active:         view.Active,
		},
	}
}

// publish is best effort: the order is already committed.
func (s *Service) publish(ctx context.Context, event Event) {
	if !s.messaging.enabled || s.publisher == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal order event", zap.String("type", event.Type), zap.Error(err))
		return
	}
	// Keyed by order so one order's events stay on one partition, in order.
	key := []byte(fmt.Sprintf("order-%d", event.Order.ID))
	headers := []messaging.Header{
		{Key: "event-id", Value: event.ID},
		{Key: "event-type", Value: event.Type},
	}
	if err := s.publisher.Publish(ctx, key, payload, headers...); err != nil {
		s.logger.Error("publish order event",
			zap.String("topic", s.messaging.topic),
			zap.String("type", event.Type),
			zap.Int64("order_id", event.Order.ID),
			zap.Error(err),
		)
	}
}
