package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/comanda/internal/entity"
	"github.com/Additional-Code/comanda/internal/repository"
	"github.com/Additional-Code/comanda/internal/repository/memory"
)

func TestDo_CommitsOnSuccess(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	var id int64
	err := store.Do(ctx, func(ctx context.Context, tx repository.Store) error {
		order := &entity.Order{Status: entity.StatusPending, Active: true}
		if err := tx.Orders().Save(ctx, order); err != nil {
			return err
		}
		id = order.ID
		return tx.Orders().SaveLine(ctx, &entity.OrderLine{OrderID: order.ID, Quantity: 1})
	})
	require.NoError(t, err)

	got, err := store.Orders().GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, got.Status)
	assert.Equal(t, 1, store.LineCount())
}

func TestDo_RollsBackOnError(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.Do(ctx, func(ctx context.Context, tx repository.Store) error {
		order := &entity.Order{Status: entity.StatusPending}
		require.NoError(t, tx.Orders().Save(ctx, order))

		inside, err := tx.Orders().GetByID(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, order.ID, inside.ID)
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Zero(t, store.OrderCount())
}

func TestSaveLine_HookAborts(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	store.SetLineHook(func(*entity.OrderLine) error { return errors.New("disk full") })

	err := store.Do(ctx, func(ctx context.Context, tx repository.Store) error {
		order := &entity.Order{}
		if err := tx.Orders().Save(ctx, order); err != nil {
			return err
		}
		return tx.Orders().SaveLine(ctx, &entity.OrderLine{OrderID: order.ID})
	})

	require.Error(t, err)
	assert.Zero(t, store.OrderCount())
	assert.Zero(t, store.LineCount())
}

func TestGetByID_NotFound(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	_, err := store.Customers().GetByID(ctx, 42)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = store.Orders().GetByID(ctx, 42)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestList_Filters(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	for i, status := range []entity.OrderStatus{entity.StatusPending, entity.StatusCancelled, entity.StatusPending} {
		order := &entity.Order{CustomerID: int64(i%2 + 1), Status: status, Active: i != 2}
		require.NoError(t, store.Orders().Save(ctx, order))
	}

	pending, err := store.Orders().List(ctx, repository.ListFilter{Status: entity.StatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Greater(t, pending[0].ID, pending[1].ID)

	active, err := store.Orders().List(ctx, repository.ListFilter{ActiveOnly: true, CustomerID: 1})
	require.NoError(t, err)
	assert.Len(t, active, 1)

	paged, err := store.Orders().List(ctx, repository.ListFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, paged, 1)
}
