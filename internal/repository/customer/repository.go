package customer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/comanda/internal/database"
	"github.com/Additional-Code/comanda/internal/entity"
	"github.com/Additional-Code/comanda/internal/repository"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/comanda/repository/customer")

// Repository reads customers.
type Repository struct {
	db bun.IDB
}

var _ repository.Customers = (*Repository)(nil)

// NewRepository reads from the replica; customer rows are never written by the order engine.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{db: conns.Reader}
}

// WithTx returns a copy bound to tx.
func (r *Repository) WithTx(tx bun.IDB) *Repository {
	return &Repository{db: tx}
}

// GetByID fetches a customer by primary key.
func (r *Repository) GetByID(ctx context.Context, id int64) (*entity.Customer, error) {
	ctx, span := repoTracer.Start(ctx, "CustomerRepository.GetByID", trace.WithAttributes(attribute.Int64("customer.id", id)))
	defer span.End()

	customer := new(entity.Customer)
	err := r.db.NewSelect().Model(customer).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, repository.ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, fmt.Errorf("select customer %d: %w", id, err)
	}
	return customer, nil
}
