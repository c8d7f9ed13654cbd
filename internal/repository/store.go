package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/happyhour-app/happyhour/internal/domain/store"
)

const (
	getStoreByIDSQL = `SELECT id, name, lat, lng, category, active
		FROM stores WHERE id = $1`

	getMenuByIDSQL = `SELECT id, store_id, name, price
		FROM menus WHERE id = $1`
)

var _ store.Repository = (*StoreRepository)(nil)

// StoreRepository implements store.Repository backed by PostgreSQL.
type StoreRepository struct {
	pool *pgxpool.Pool
}

// NewStoreRepository returns a StoreRepository that uses the given pool.
func NewStoreRepository(pool *pgxpool.Pool) *StoreRepository {
	return &StoreRepository{pool: pool}
}

// GetByID returns a single store by its identifier.
func (r *StoreRepository) GetByID(ctx context.Context, id string) (*store.Store, error) {
	rows, err := r.pool.Query(ctx, getStoreByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting store %q: %w", id, err)
	}

	s, err := pgx.CollectExactlyOneRow(rows, scanStore)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("getting store %q: %w", id, err)
	}
	return &s, nil
}

// GetMenu returns a single menu entry by its identifier.
func (r *StoreRepository) GetMenu(ctx context.Context, id string) (*store.Menu, error) {
	rows, err := r.pool.Query(ctx, getMenuByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting menu %q: %w", id, err)
	}

	m, err := pgx.CollectExactlyOneRow(rows, scanMenu)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrMenuNotFound
		}
		return nil, fmt.Errorf("getting menu %q: %w", id, err)
	}
	return &m, nil
}

func scanStore(row pgx.CollectableRow) (store.Store, error) {
	var s store.Store
	err := row.Scan(&s.ID, &s.Name, &s.Lat, &s.Lng, &s.Category, &s.Active)
	return s, err
}

func scanMenu(row pgx.CollectableRow) (store.Menu, error) {
	var (
		m     store.Menu
		price decimal.Decimal
	)
	err := row.Scan(&m.ID, &m.StoreID, &m.Name, &price)
	m.Price = price
	return m, err
}
