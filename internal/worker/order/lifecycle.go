package order

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/comanda/internal/cache"
	"github.com/Additional-Code/comanda/internal/config"
	"github.com/Additional-Code/comanda/internal/messaging"
	ordersvc "github.com/Additional-Code/comanda/internal/service/order"
	"github.com/Additional-Code/comanda/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/comanda/worker/order")

// Module registers order-related worker handlers.
var Module = fx.Module("worker_order",
	fx.Provide(
		fx.Annotate(
			NewLifecycleHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// NewLifecycleHandler consumes order lifecycle events. Status and visibility
// changes evict the cached order view so replicas that did not perform the change reload it.
func NewLifecycleHandler(logger *zap.Logger, cfg config.Config, store cache.Store) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.orders.process", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
			attribute.Int64("messaging.offset", msg.Offset),
		))
		defer span.End()

		var event ordersvc.Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			// Undecodable payloads would be redelivered forever; drop them.
			logger.Error("failed to decode order event", zap.Int64("offset", msg.Offset), zap.Error(err))

			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return nil
		}
		span.SetAttributes(
			attribute.String("event.type", event.Type),
			attribute.Int64("order.id", event.Order.ID),
		)

		switch event.Type {
		case ordersvc.EventOrderCreated:
			logger.Info("order created event processed",
				zap.String("event_id", event.ID),
				zap.Int64("order_id", event.Order.ID),
				zap.String("total", event.Order.Total),
			)
		case ordersvc.EventOrderStatusChanged, ordersvc.EventOrderUpdated:
			if store != nil {
				if err := store.Delete(ctx, ordersvc.CacheKey(event.Order.ID)); err != nil {
					span.RecordError(err)
					span.SetStatus(codes.Error, "cache eviction failed")
					return err
				}
			}
			logger.Info("order change event processed",
				zap.String("event_id", event.ID),
				zap.String("type", event.Type),
				zap.Int64("order_id", event.Order.ID),
				zap.String("from", event.Order.PreviousStatus),
				zap.String("to", event.Order.Status),
				zap.Bool("active", event.Order.Active),
			)
		default:
			logger.Warn("unknown order event type", zap.String("type", event.Type), zap.String("event_id", event.ID))
		}

		return nil
	}

	return worker.HandlerRegistration{
		Name:    "order-lifecycle",
		Topic:   cfg.Messaging.Kafka.Topic,
		Handler: handler,
	}
}
