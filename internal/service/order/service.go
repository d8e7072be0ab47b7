package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/comanda/internal/cache"
	"github.com/Additional-Code/comanda/internal/config"
	"github.com/Additional-Code/comanda/internal/dto"
	"github.com/Additional-Code/comanda/internal/entity"
	"github.com/Additional-Code/comanda/internal/lifecycle"
	"github.com/Additional-Code/comanda/internal/messaging"
	"github.com/Additional-Code/comanda/internal/money"
	"github.com/Additional-Code/comanda/internal/repository"
	"github.com/Additional-Code/comanda/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/comanda/service/order")

// Service owns order creation, status transitions and cancellation.
type Service struct {
	uow       repository.UnitOfWork
	machine   *lifecycle.Machine
	cache     cache.Store
	cacheTTL  time.Duration
	logger    *zap.Logger
	publisher messaging.Client
	messaging messagingConfig
	metrics   *metrics
	now       func() time.Time
}

// messagingConfig contains messaging specific knobs we care about.
type messagingConfig struct {
	enabled bool
	topic   string
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	UnitOfWork repository.UnitOfWork
	Machine    *lifecycle.Machine `optional:"true"`
	Cache      cache.Store
	Config     config.Config
	Logger     *zap.Logger
	Publisher  messaging.Client
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	machine := p.Machine
	if machine == nil {
		machine = lifecycle.Default()
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		uow:       p.UnitOfWork,
		machine:   machine,
		cache:     p.Cache,
		cacheTTL:  p.Config.Cache.DefaultTTL,
		logger:    logger,
		publisher: p.Publisher,
		messaging: messagingConfig{
			enabled: p.Config.Messaging.Enabled,
			topic:   p.Config.Messaging.Kafka.Topic,
		},
		metrics: newMetrics(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the composed order, consulting cache when available.
func (s *Service) Get(ctx context.Context, id int64) (*dto.OrderResponse, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Get", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	if view, err := s.getFromCache(ctx, id); err == nil {
		return view, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("orders cache read failed", zap.Int64("id", id), zap.Error(err))
	}

	view, err := compose(ctx, s.uow, id)
	if err != nil {
		s.fail(span, err)
		return nil, err
	}

	s.fill(ctx, view)
	return view, nil
}

// List returns order headers without lines, newest first.
func (s *Service) List(ctx context.Context, filter repository.ListFilter) ([]dto.OrderResponse, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.List")
	defer span.End()

	if filter.Status != "" && !filter.Status.Valid() {
		return nil, errorbank.BadRequest(fmt.Sprintf("unknown status %q", filter.Status))
	}

	orders, err := s.uow.Orders().List(ctx, filter)
	if err != nil {
		s.fail(span, err)
		return nil, storageError("failed to list orders", err)
	}
	out := make([]dto.OrderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, *toSummary(&orders[i]))
	}
	return out, nil
}

// Create validates req, prices it and persists the order with one line per
// requested item in a single transaction.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*dto.OrderResponse, error) {
	if err := req.check(); err != nil {
		return nil, err
	}
	ctx, span := serviceTracer.Start(ctx, "OrderService.Create", trace.WithAttributes(
		attribute.Int64("customer.id", req.CustomerID),
		attribute.Int64("restaurant.id", req.RestaurantID),
		attribute.Int("order.items", len(req.Items)),
	))
	defer span.End()

	start := time.Now()
	var view *dto.OrderResponse
	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Store) error {
		v, err := validate(ctx, tx, req)
		if err != nil {
			return err
		}

		lines := make([]*entity.OrderLine, 0, len(v.lines))
		lineTotals := make([]decimal.Decimal, 0, len(v.lines))
		for _, item := range v.lines {
			line := entity.NewOrderLine(0, item.product, item.quantity, item.note)
			lines = append(lines, line)
			lineTotals = append(lineTotals, line.LineTotal)
		}
		subtotal, total := money.OrderTotal(lineTotals, v.restaurant.DeliveryFee)

		order := &entity.Order{
			Description:  req.Description,
			CustomerID:   v.customer.ID,
			RestaurantID: v.restaurant.ID,
			Status:       entity.StatusPending,
			Subtotal:     subtotal,
			DeliveryFee:  v.restaurant.DeliveryFee,
			Total:        total,
			Active:       true,
			CreatedAt:    s.now(),
		}
		if err := tx.Orders().Save(ctx, order); err != nil {
			return storageError("failed to create order", err)
		}
		for _, line := range lines {
			line.OrderID = order.ID
			if err := tx.Orders().SaveLine(ctx, line); err != nil {
				return storageError("failed to create order line", err)
			}
		}

		view, err = compose(ctx, tx, order.ID)
		return err
	})
	s.metrics.observe(ctx, "create", start, err)
	if err != nil {
		s.fail(span, err)
		s.metrics.rejection(ctx, err)
		return nil, err
	}

	span.SetAttributes(attribute.Int64("order.id", view.ID))
	s.logger.Info("order created",
		zap.Int64("order_id", view.ID),
		zap.Int64("customer_id", view.CustomerID),
		zap.Int64("restaurant_id", view.RestaurantID),
		zap.String("total", view.Total),
		zap.Int("lines", len(view.Lines)),
	)
	s.metrics.orderCreated(ctx)
	s.evict(ctx, view.ID)
	s.publish(ctx, newEvent(EventOrderCreated, view, "", s.now()))
	return view, nil
}

// ChangeStatus moves an order one step along the lifecycle.
func (s *Service) ChangeStatus(ctx context.Context, id int64, target entity.OrderStatus) (*dto.OrderResponse, error) {
	if !target.Valid() {
		return nil, errorbank.BadRequest(fmt.Sprintf("unknown status %q", target))
	}
	ctx, span := serviceTracer.Start(ctx, "OrderService.ChangeStatus", trace.WithAttributes(
		attribute.Int64("order.id", id),
		attribute.String("order.target_status", target.String()),
	))
	defer span.End()

	return s.transition(ctx, span, "change_status", id, func(order *entity.Order) (entity.OrderStatus, error) {
		next, err := s.machine.Transition(order.Status, target)
		if err != nil {
			return "", invalidTransition(order.ID, order.Status, target, err)
		}
		return next, nil
	})
}

// Cancel cancels an order that has not started preparation.
func (s *Service) Cancel(ctx context.Context, id int64) (*dto.OrderResponse, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Cancel", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	return s.transition(ctx, span, "cancel", id, func(order *entity.Order) (entity.OrderStatus, error) {
		if !s.machine.CanCancel(order.Status) {
			return "", cannotCancel(order.ID, order.Status)
		}
		return entity.StatusCancelled, nil
	})
}

// transition locks the order, asks decide for the next status and persists it.
func (s *Service) transition(ctx context.Context, span trace.Span, operation string, id int64, decide func(*entity.Order) (entity.OrderStatus, error)) (*dto.OrderResponse, error) {
	start := time.Now()
	var (
		view     *dto.OrderResponse
		previous entity.OrderStatus
	)
	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Store) error {
		order, err := tx.Orders().GetByIDForUpdate(ctx, id)
		if err != nil {
			return lookupError(EntityOrder, id, err)
		}
		next, err := decide(order)
		if err != nil {
			return err
		}

		previous = order.Status
		order.Status = next
		if err := tx.Orders().Save(ctx, order); err != nil {
			return storageError("failed to update order status", err)
		}
		view, err = compose(ctx, tx, id)
		return err
	})
	s.metrics.observe(ctx, operation, start, err)
	if err != nil {
		s.fail(span, err)
		s.metrics.rejection(ctx, err)
		return nil, err
	}

	s.logger.Info("order status changed",
		zap.Int64("order_id", id),
		zap.String("from", previous.String()),
		zap.String("to", view.Status),
	)
	s.metrics.statusChanged(ctx, entity.OrderStatus(view.Status))
	s.evict(ctx, id)
	s.publish(ctx, newEvent(EventOrderStatusChanged, view, previous.String(), s.now()))
	return view, nil
}

// SetActive toggles the listing flag. Status is left untouched.
func (s *Service) SetActive(ctx context.Context, id int64, active bool) (*dto.OrderResponse, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.SetActive", trace.WithAttributes(
		attribute.Int64("order.id", id),
		attribute.Bool("order.active", active),
	))
	defer span.End()

	var view *dto.OrderResponse
	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Store) error {
		order, err := tx.Orders().GetByIDForUpdate(ctx, id)
		if err != nil {
			return lookupError(EntityOrder, id, err)
		}
		order.Active = active
		if err := tx.Orders().Save(ctx, order); err != nil {
			return storageError("failed to update order", err)
		}
		view, err = compose(ctx, tx, id)
		return err
	})
	if err != nil {
		s.fail(span, err)
		return nil, err
	}

	s.logger.Info("order visibility changed", zap.Int64("order_id", id), zap.Bool("active", view.Active))
	s.evict(ctx, id)
	s.publish(ctx, newEvent(EventOrderUpdated, view, "", s.now()))
	return view, nil
}

func (s *Service) fail(span trace.Span, err error) {
	span.RecordError(err)
	if errorbank.IsKind(err, errorbank.KindInternal) || !errors.As(err, new(*errorbank.AppError)) {
		span.SetStatus(codes.Error, "order operation failed")
	}
}

// CacheKey is the cache entry holding the composed view of order id.
func CacheKey(id int64) string {
	return fmt.Sprintf("orders:%d", id)
}

func (s *Service) getFromCache(ctx context.Context, id int64) (*dto.OrderResponse, error) {
	var view dto.OrderResponse
	if err := cache.GetJSON(ctx, s.cache, CacheKey(id), &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// fill caches a view read from storage. Writers evict after they commit, and
// fill re-reads the header after its own write, so an entry that went stale
// while in flight is always removed by one side or the other.
func (s *Service) fill(ctx context.Context, view *dto.OrderResponse) {
	if s.cache == nil || view == nil {
		return
	}
	if err := cache.SetJSON(ctx, s.cache, CacheKey(view.ID), view, s.cacheTTL); err != nil {
		s.logger.Warn("orders cache write failed", zap.Int64("id", view.ID), zap.Error(err))
		return
	}
	current, err := s.uow.Orders().GetByID(ctx, view.ID)
	if err != nil || !sameRevision(current, view) {
		s.evict(ctx, view.ID)
	}
}

func sameRevision(order *entity.Order, view *dto.OrderResponse) bool {
	return order.UpdatedAt.Equal(view.UpdatedAt) &&
		order.Status.String() == view.Status &&
		order.Active == view.Active
}

// evict drops the cached view of id after a committed write.
func (s *Service) evict(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, CacheKey(id)); err != nil {
		s.logger.Warn("orders cache eviction failed", zap.Int64("id", id), zap.Error(err))
	}
}
