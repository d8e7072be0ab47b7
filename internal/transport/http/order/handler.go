package order

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/comanda/internal/dto"
	"github.com/Additional-Code/comanda/internal/entity"
	"github.com/Additional-Code/comanda/internal/presentation/http/response"
	"github.com/Additional-Code/comanda/internal/repository"
	service "github.com/Additional-Code/comanda/internal/service/order"
	"github.com/Additional-Code/comanda/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/comanda/transport/http/order")

// Handler exposes order endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs an order Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo group.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/orders")
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/:id", h.getByID)
	g.PATCH("/:id/status", h.changeStatus)
	g.POST("/:id/cancel", h.cancel)
	g.PATCH("/:id/active", h.setActive)
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)

	id, err := orderID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByID", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(order).Build()
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	var (
		filter repository.ListFilter
		status string
	)
	err := echo.QueryParamsBinder(c).
		Int64("customer_id", &filter.CustomerID).
		String("status", &status).
		Bool("active", &filter.ActiveOnly).
		Int("limit", &filter.Limit).
		Int("offset", &filter.Offset).
		BindError()
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid query", errorbank.WithCause(err))).Build()
	}
	if status != "" {
		parsed, err := entity.ParseOrderStatus(status)
		if err != nil {
			return b.WithError(errorbank.BadRequest(err.Error())).Build()
		}
		filter.Status = parsed
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.list")
	defer span.End()

	orders, err := h.svc.List(ctx, filter)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(orders).WithPage(filter.Limit, filter.Offset, len(orders)).Build()
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	var payload dto.CreateOrderRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	req := service.CreateRequest{
		CustomerID:   payload.CustomerID,
		RestaurantID: payload.RestaurantID,
		Description:  payload.Description,
		Items:        make([]service.ItemRequest, 0, len(payload.Items)),
	}
	for _, item := range payload.Items {
		req.Items = append(req.Items, service.ItemRequest{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Note:      item.Note,
		})
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.create")
	span.SetAttributes(
		attribute.Int64("customer.id", req.CustomerID),
		attribute.Int64("restaurant.id", req.RestaurantID),
	)
	defer span.End()

	order, err := h.svc.Create(ctx, req)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithStatus(http.StatusCreated).WithData(order).Build()
}

func (h *Handler) changeStatus(c echo.Context) error {
	b := response.New(c)

	id, err := orderID(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	var payload dto.UpdateOrderStatusRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	target, err := entity.ParseOrderStatus(payload.Status)
	if err != nil {
		return b.WithError(errorbank.BadRequest(err.Error())).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.changeStatus", trace.WithAttributes(
		attribute.Int64("order.id", id),
		attribute.String("order.target_status", target.String()),
	))
	defer span.End()

	order, err := h.svc.ChangeStatus(ctx, id, target)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(order).Build()
}

func (h *Handler) cancel(c echo.Context) error {
	b := response.New(c)

	id, err := orderID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.cancel", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := h.svc.Cancel(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(order).Build()
}

func (h *Handler) setActive(c echo.Context) error {
	b := response.New(c)

	id, err := orderID(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	var payload dto.SetOrderActiveRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	if payload.Active == nil {
		return b.WithError(errorbank.BadRequest("active is required")).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.setActive", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := h.svc.SetActive(ctx, id, *payload.Active)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(order).Build()
}

func orderID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errorbank.BadRequest("invalid id", errorbank.WithCause(err))
	}
	return id, nil
}
