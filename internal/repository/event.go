package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/happyhour-app/happyhour/internal/domain/event"
)

const (
	eventColumns = `id, store_id, title, start_date, end_date,
		happy_hour_start, happy_hour_end, weekdays,
		max_discount_rate, max_final_price, max_original_price,
		active, created_at`

	getEventByIDSQL = `SELECT ` + eventColumns + `
		FROM events WHERE id = $1 AND active = TRUE`

	listEventsByStoreSQL = `SELECT ` + eventColumns + `
		FROM events WHERE store_id = $1 AND active = TRUE
		ORDER BY start_date, id`
)

var _ event.Repository = (*EventRepository)(nil)

// EventRepository implements event.Repository backed by PostgreSQL.
type EventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository returns an EventRepository that uses the given pool.
func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

// GetByID returns an active event by its identifier. Inactive and unknown
// events both map to event.ErrNotFound.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*event.Event, error) {
	rows, err := r.pool.Query(ctx, getEventByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting event %q: %w", id, err)
	}

	ev, err := pgx.CollectExactlyOneRow(rows, scanEvent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, event.ErrNotFound
		}
		return nil, fmt.Errorf("getting event %q: %w", id, err)
	}
	return &ev, nil
}

// ListByStore returns the store's active events ordered by start date.
func (r *EventRepository) ListByStore(ctx context.Context, storeID string) ([]event.Event, error) {
	rows, err := r.pool.Query(ctx, listEventsByStoreSQL, storeID)
	if err != nil {
		return nil, fmt.Errorf("listing events for store %q: %w", storeID, err)
	}
	return pgx.CollectRows(rows, scanEvent)
}

func scanEvent(row pgx.CollectableRow) (event.Event, error) {
	var (
		ev       event.Event
		hhStart  string
		hhEnd    string
		weekdays []int32
	)
	err := row.Scan(
		&ev.ID, &ev.StoreID, &ev.Title, &ev.StartDate, &ev.EndDate,
		&hhStart, &hhEnd, &weekdays,
		&ev.MaxDiscountRate, &ev.MaxFinalPrice, &ev.MaxOriginalPrice,
		&ev.Active, &ev.CreatedAt,
	)
	if err != nil {
		return ev, err
	}

	if ev.HappyHourStart, err = event.ParseTimeOfDay(hhStart); err != nil {
		return ev, fmt.Errorf("event %q happy_hour_start: %w", ev.ID, err)
	}
	if ev.HappyHourEnd, err = event.ParseTimeOfDay(hhEnd); err != nil {
		return ev, fmt.Errorf("event %q happy_hour_end: %w", ev.ID, err)
	}

	ev.Weekdays = make(map[time.Weekday]bool, len(weekdays))
	for _, d := range weekdays {
		ev.Weekdays[time.Weekday(d)] = true
	}
	return ev, nil
}
