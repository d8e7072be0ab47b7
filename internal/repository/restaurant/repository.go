package restaurant

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

var repoTracer = otel.Tracer("github.com/Additional-Code/comanda/repository/restaurant")

// Repository reads restaurants.
type Repository struct {
	db bun.IDB
}

var _ repository.Restaurants = (*Repository)(nil)

func NewRepository(conns *database.Connections) *Repository {
	return &Repository{db: conns.Reader}
}

func (r *Repository) WithTx(tx bun.IDB) *Repository {
	return &Repository{db: tx}
}

// GetByID fetches a restaurant by primary key.
func (r *Repository) GetByID(ctx context.Context, id int64) (*entity.Restaurant, error) {
	ctx, span := repoTracer.Start(ctx, "RestaurantRepository.GetByID", trace.WithAttributes(attribute.Int64("restaurant.id", id)))
	defer span.End()

	restaurant := new(entity.Restaurant)
	err := r.db.NewSelect().Model(restaurant).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, fmt.Errorf("select restaurant %d: %w", id, err)
	}
	return restaurant, nil
}
