package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/happyhour-app/happyhour/internal/domain/inventory"
)

// Offer kinds live in separate tables; the table name is resolved from the
// kind enum, never from request input.
func offerTable(kind inventory.Kind) (string, error) {
	switch kind {
	case inventory.KindDiscount:
		return "discounts", nil
	case inventory.KindGift:
		return "gift_options", nil
	default:
		return "", fmt.Errorf("unknown offer kind %q: %w", kind, inventory.ErrNotFound)
	}
}

const (
	getDiscountOfferSQL = `SELECT d.id, d.event_id, d.menu_id, m.name, m.price,
			d.discount_rate, d.final_price, d.is_active
		FROM discounts d JOIN menus m ON m.id = d.menu_id
		WHERE d.id = $1`

	getGiftOfferSQL = `SELECT g.id, g.event_id, g.group_id, g.menu_id, m.name, m.price, g.is_active
		FROM gift_options g JOIN menus m ON m.id = g.menu_id
		WHERE g.id = $1`

	listGiftGroupsSQL = `SELECT g.id, g.event_id, g.group_id, g.menu_id, m.name, m.price, g.is_active
		FROM gift_options g JOIN menus m ON m.id = g.menu_id
		WHERE g.event_id = $1
		ORDER BY g.group_id, g.id`

	// Check-and-decrement in a single statement. The WHERE clause is the
	// guard: a row with insufficient stock is simply not matched, so the
	// counter can never go negative. Draining the last unit also flips the
	// offer inactive, mirroring what exhaustion means to readers.
	tryDecrementSQL = `UPDATE %s SET
			remaining = CASE WHEN remaining IS NULL THEN NULL ELSE remaining - $2 END,
			is_active = CASE WHEN remaining IS NULL THEN is_active ELSE remaining - $2 > 0 END
		WHERE id = $1 AND is_active AND (remaining IS NULL OR remaining >= $2)`

	restoreSQL = `UPDATE %s SET
			remaining = CASE WHEN remaining IS NULL THEN NULL ELSE remaining + $2 END,
			is_active = CASE WHEN remaining IS NULL THEN is_active ELSE TRUE END
		WHERE id = $1`

	setActiveSQL = `UPDATE %s SET is_active = $2 WHERE id = $1`

	getRemainingSQL = `SELECT remaining FROM %s WHERE id = $1`

	offerExistsSQL = `SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`
)

var (
	_ inventory.Catalog = (*InventoryRepository)(nil)
	_ inventory.Ledger  = (*InventoryRepository)(nil)
)

// InventoryRepository implements both the offer catalog and the stock ledger
// backed by PostgreSQL. Atomicity of TryDecrement rests on single-statement
// conditional updates, not on explicit locking.
type InventoryRepository struct {
	pool *pgxpool.Pool
}

// NewInventoryRepository returns an InventoryRepository that uses the given pool.
func NewInventoryRepository(pool *pgxpool.Pool) *InventoryRepository {
	return &InventoryRepository{pool: pool}
}

// GetOffer returns the offer joined with its menu row. Gift options carry an
// implied 100% rate and a zero final price.
func (r *InventoryRepository) GetOffer(ctx context.Context, kind inventory.Kind, refID string) (*inventory.Offer, error) {
	switch kind {
	case inventory.KindDiscount:
		return r.getDiscountOffer(ctx, refID)
	case inventory.KindGift:
		return r.getGiftOffer(ctx, refID)
	default:
		return nil, inventory.ErrNotFound
	}
}

func (r *InventoryRepository) getDiscountOffer(ctx context.Context, refID string) (*inventory.Offer, error) {
	rows, err := r.pool.Query(ctx, getDiscountOfferSQL, refID)
	if err != nil {
		return nil, fmt.Errorf("getting discount %q: %w", refID, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (inventory.Offer, error) {
		o := inventory.Offer{Kind: inventory.KindDiscount}
		err := row.Scan(&o.RefID, &o.EventID, &o.MenuID, &o.MenuName,
			&o.OriginalPrice, &o.DiscountRate, &o.FinalPrice, &o.Active)
		return o, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, inventory.ErrNotFound
		}
		return nil, fmt.Errorf("getting discount %q: %w", refID, err)
	}
	return &o, nil
}

func (r *InventoryRepository) getGiftOffer(ctx context.Context, refID string) (*inventory.Offer, error) {
	rows, err := r.pool.Query(ctx, getGiftOfferSQL, refID)
	if err != nil {
		return nil, fmt.Errorf("getting gift option %q: %w", refID, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanGiftOffer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, inventory.ErrNotFound
		}
		return nil, fmt.Errorf("getting gift option %q: %w", refID, err)
	}
	return &o, nil
}

func scanGiftOffer(row pgx.CollectableRow) (inventory.Offer, error) {
	o := inventory.Offer{Kind: inventory.KindGift, DiscountRate: 100, FinalPrice: decimal.Zero}
	err := row.Scan(&o.RefID, &o.EventID, &o.GroupID, &o.MenuID, &o.MenuName, &o.OriginalPrice, &o.Active)
	return o, err
}

// ListGiftGroups returns the event's gift options bucketed by group, in stable
// group order. The rows come back sorted, so grouping is a single pass.
func (r *InventoryRepository) ListGiftGroups(ctx context.Context, eventID string) ([]inventory.GiftGroup, error) {
	rows, err := r.pool.Query(ctx, listGiftGroupsSQL, eventID)
	if err != nil {
		return nil, fmt.Errorf("listing gift groups for event %q: %w", eventID, err)
	}

	options, err := pgx.CollectRows(rows, scanGiftOffer)
	if err != nil {
		return nil, fmt.Errorf("listing gift groups for event %q: %w", eventID, err)
	}

	var groups []inventory.GiftGroup
	for _, o := range options {
		if len(groups) == 0 || groups[len(groups)-1].ID != o.GroupID {
			groups = append(groups, inventory.GiftGroup{ID: o.GroupID, EventID: eventID})
		}
		g := &groups[len(groups)-1]
		g.Options = append(g.Options, o)
	}
	return groups, nil
}

// TryDecrement atomically consumes stock. Zero rows affected means the guard
// failed; a follow-up existence probe distinguishes a missing offer from an
// exhausted or deactivated one.
func (r *InventoryRepository) TryDecrement(ctx context.Context, kind inventory.Kind, refID string, by int) error {
	table, err := offerTable(kind)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, fmt.Sprintf(tryDecrementSQL, table), refID, by)
	if err != nil {
		return fmt.Errorf("decrementing %s %q: %w", kind, refID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, fmt.Sprintf(offerExistsSQL, table), refID).Scan(&exists); err != nil {
		return fmt.Errorf("probing %s %q: %w", kind, refID, err)
	}
	if !exists {
		return inventory.ErrNotFound
	}
	return &inventory.StockExhaustedError{Kind: kind, RefID: refID}
}

// Restore returns previously consumed units and reactivates the offer. It is
// unconditional: compensation must succeed even for offers drained to zero.
func (r *InventoryRepository) Restore(ctx context.Context, kind inventory.Kind, refID string, by int) error {
	table, err := offerTable(kind)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, fmt.Sprintf(restoreSQL, table), refID, by)
	if err != nil {
		return fmt.Errorf("restoring %s %q: %w", kind, refID, err)
	}
	if tag.RowsAffected() == 0 {
		return inventory.ErrNotFound
	}
	return nil
}

// SetActive toggles the offer's active flag.
func (r *InventoryRepository) SetActive(ctx context.Context, kind inventory.Kind, refID string, active bool) error {
	table, err := offerTable(kind)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, fmt.Sprintf(setActiveSQL, table), refID, active)
	if err != nil {
		return fmt.Errorf("toggling %s %q: %w", kind, refID, err)
	}
	if tag.RowsAffected() == 0 {
		return inventory.ErrNotFound
	}
	return nil
}

// GetRemaining reports the counter, nil meaning unlimited stock.
func (r *InventoryRepository) GetRemaining(ctx context.Context, kind inventory.Kind, refID string) (*int, error) {
	table, err := offerTable(kind)
	if err != nil {
		return nil, err
	}

	var remaining *int32
	err = r.pool.QueryRow(ctx, fmt.Sprintf(getRemainingSQL, table), refID).Scan(&remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, inventory.ErrNotFound
		}
		return nil, fmt.Errorf("reading remaining for %s %q: %w", kind, refID, err)
	}
	if remaining == nil {
		return nil, nil
	}
	v := int(*remaining)
	return &v, nil
}
