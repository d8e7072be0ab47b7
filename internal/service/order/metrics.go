package order

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/Additional-Code/comanda/internal/entity"
	"github.com/Additional-Code/comanda/pkg/errorbank"
)

type metrics struct {
	created     metric.Int64Counter
	transitions metric.Int64Counter
	rejected    metric.Int64Counter
	duration    metric.Float64Histogram
}

func newMetrics() *metrics {
	meter := otel.Meter("github.com/Additional-Code/comanda/service/order")
	fallback := noop.Meter{}

	created, err := meter.Int64Counter("orders.created", metric.WithDescription("Orders placed"))
	if err != nil {
		created, _ = fallback.Int64Counter("orders.created")
	}
	transitions, err := meter.Int64Counter("orders.status_transitions", metric.WithDescription("Applied status transitions"))
	if err != nil {
		transitions, _ = fallback.Int64Counter("orders.status_transitions")
	}
	rejected, err := meter.Int64Counter("orders.rejected", metric.WithDescription("Requests refused by a business rule"))
	if err != nil {
		rejected, _ = fallback.Int64Counter("orders.rejected")
	}
	duration, err := meter.Float64Histogram("orders.operation.duration",
		metric.WithDescription("Time spent in write operations, transaction included"),
		metric.WithUnit("s"),
	)
	if err != nil {
		duration, _ = fallback.Float64Histogram("orders.operation.duration")
	}
	return &metrics{created: created, transitions: transitions, rejected: rejected, duration: duration}
}

func (m *metrics) orderCreated(ctx context.Context) {
	m.created.Add(ctx, 1)
}

func (m *metrics) statusChanged(ctx context.Context, to entity.OrderStatus) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("to", to.String())))
}

func (m *metrics) rejection(ctx context.Context, err error) {
	var appErr *errorbank.AppError
	if !errors.As(err, &appErr) || appErr.Reason() == "" {
		return
	}
	m.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(appErr.Reason()))))
}

// observe records how long operation took and whether it succeeded, was
// refused by a rule, or failed.
func (m *metrics) observe(ctx context.Context, operation string, start time.Time, err error) {
	m.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome(err)),
	))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errorbank.IsKind(err, errorbank.KindInternal), !errors.As(err, new(*errorbank.AppError)):
		return "error"
	default:
		return "rejected"
	}
}
