package product

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

var repoTracer = otel.Tracer("github.com/Additional-Code/comanda/repository/product")

// Repository reads products.
type Repository struct {
	db bun.IDB
}

var _ repository.Products = (*Repository)(nil)

func NewRepository(conns *database.Connections) *Repository {
	return &Repository{db: conns.Reader}
}

func (r *Repository) WithTx(tx bun.IDB) *Repository {
	return &Repository{db: tx}
}

// GetByID fetches a product by primary key. Price and availability are read
// inside the order transaction so the line snapshot matches what was validated.
func (r *Repository) GetByID(ctx context.Context, id int64) (*entity.Product, error) {
	ctx, span := repoTracer.Start(ctx, "ProductRepository.GetByID", trace.WithAttributes(attribute.Int64("product.id", id)))
	defer span.End()

	product := new(entity.Product)
	err := r.db.NewSelect().Model(product).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, repository.ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, fmt.Errorf("select product %d: %w", id, err)
	}
	return product, nil
}
