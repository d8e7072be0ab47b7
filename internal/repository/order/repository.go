package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/comanda/internal/database"
	"github.com/Additional-Code/comanda/internal/entity"
	"github.com/Additional-Code/comanda/internal/repository"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/comanda/repository/order")

const defaultListLimit = 50

// Repository encapsulates read/write access for orders and order lines.
type Repository struct {
	writer bun.IDB
	reader bun.IDB
}

var _ repository.Orders = (*Repository)(nil)

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// WithTx returns a copy that reads and writes through tx.
func (r *Repository) WithTx(tx bun.IDB) *Repository {
	return &Repository{writer: tx, reader: tx}
}

// Save inserts a new order or updates an existing one.
func (r *Repository) Save(ctx context.Context, order *entity.Order) error {
	if order == nil {
		return errors.New("nil order")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Save", trace.WithAttributes(attribute.Int64("order.id", order.ID)))
	defer span.End()

	order.UpdatedAt = time.Now().UTC()
	if order.ID == 0 {
		if order.CreatedAt.IsZero() {
			order.CreatedAt = order.UpdatedAt
		}
		if _, err := r.writer.NewInsert().Model(order).Exec(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "insert failed")
			return fmt.Errorf("insert order: %w", err)
		}
		span.SetAttributes(attribute.Int64("order.id", order.ID))
		return nil
	}

	if _, err := r.writer.NewUpdate().Model(order).WherePK().Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return fmt.Errorf("update order %d: %w", order.ID, err)
	}
	return nil
}

// SaveLine inserts a line for an already persisted order.
func (r *Repository) SaveLine(ctx context.Context, line *entity.OrderLine) error {
	if line == nil {
		return errors.New("nil order line")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.SaveLine", trace.WithAttributes(
		attribute.Int64("order.id", line.OrderID),
		attribute.Int64("product.id", line.ProductID),
	))
	defer span.End()

	if line.OrderID == 0 {
		return errors.New("order line without order id")
	}
	if _, err := r.writer.NewInsert().Model(line).Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return fmt.Errorf("insert order line: %w", err)
	}
	return nil
}

// GetByID fetches an order by primary key using the read replica when available.
func (r *Repository) GetByID(ctx context.Context, id int64) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByID", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	return r.get(ctx, span, r.reader.NewSelect(), id)
}

// GetByIDForUpdate fetches an order from the writer and locks the row on
// dialects that support SELECT ... FOR UPDATE.
func (r *Repository) GetByIDForUpdate(ctx context.Context, id int64) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByIDForUpdate", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	q := r.writer.NewSelect()
	if r.writer.Dialect().Name() != dialect.SQLite {
		q = q.For("UPDATE")
	}
	return r.get(ctx, span, q, id)
}

func (r *Repository) get(ctx context.Context, span trace.Span, q *bun.SelectQuery, id int64) (*entity.Order, error) {
	order := new(entity.Order)
	err := q.Model(order).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, repository.ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, fmt.Errorf("select order %d: %w", id, err)
	}
	return order, nil
}

// ListLines returns the lines of an order in insertion order.
func (r *Repository) ListLines(ctx context.Context, orderID int64) ([]entity.OrderLine, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ListLines", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	lines := make([]entity.OrderLine, 0)
	err := r.reader.NewSelect().Model(&lines).Where("order_id = ?", orderID).OrderExpr("id ASC").Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, fmt.Errorf("select lines of order %d: %w", orderID, err)
	}
	return lines, nil
}

// List returns order headers matching filter, newest first.
func (r *Repository) List(ctx context.Context, filter repository.ListFilter) ([]entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.List")
	defer span.End()

	orders := make([]entity.Order, 0)
	q := r.reader.NewSelect().Model(&orders).OrderExpr("id DESC")
	if filter.CustomerID > 0 {
		q = q.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.ActiveOnly {
		q = q.Where("active = ?", true)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	q = q.Limit(limit)
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	if err := q.Scan(ctx); err != nil && !errors.Is(err, sql.ErrNoRows) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}
