package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/happyhour-app/happyhour/internal/domain/coupon"
	"github.com/happyhour-app/happyhour/internal/domain/inventory"
)

const (
	insertCouponSQL = `INSERT INTO coupons
			(id, user_id, store_id, event_id, status,
			 expected_visit_time, expired_time, activated_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	insertCouponItemSQL = `INSERT INTO coupon_items
			(id, coupon_id, kind, ref_id, menu_id, menu_name,
			 quantity, original_price, discount_rate, final_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	couponColumns = `id, user_id, store_id, event_id, status,
		expected_visit_time, expired_time, activated_at, created_at`

	getCouponByIDSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`

	listCouponsByUserSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE user_id = $1 ORDER BY created_at DESC`

	listCouponItemsSQL = `SELECT id, coupon_id, kind, ref_id, menu_id, menu_name,
			quantity, original_price, discount_rate, final_price
		FROM coupon_items WHERE coupon_id = $1 ORDER BY id`

	// Status transitions are conditional updates: the WHERE clause names the
	// only statuses the transition is legal from, so concurrent writers race
	// on rows affected instead of overwriting each other.
	markActivatingSQL = `UPDATE coupons SET status = 'activating', activated_at = $2
		WHERE id = $1 AND status = 'issued' AND expired_time > $2`

	markRedeemedSQL = `UPDATE coupons SET status = 'redeemed'
		WHERE id = $1 AND status = 'activating'`

	markCancelledSQL = `UPDATE coupons SET status = 'cancelled'
		WHERE id = $1 AND status IN ('issued', 'activating')`

	markExpiredSQL = `UPDATE coupons SET status = 'expired'
		WHERE id = $1 AND status IN ('issued', 'activating')`

	expireDueSQL = `UPDATE coupons SET status = 'expired'
		WHERE status IN ('issued', 'activating') AND expired_time <= $1`

	expireDueByUserSQL = expireDueSQL + ` AND user_id = $2`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// CreateWithItems persists the coupon and its item snapshots in one
// transaction. Either the whole coupon lands or nothing does.
func (r *CouponRepository) CreateWithItems(ctx context.Context, c *coupon.Coupon, items []coupon.Item) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning coupon transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, insertCouponSQL,
		c.ID, c.UserID, c.StoreID, c.EventID, string(c.Status),
		c.ExpectedVisitTime, c.ExpiredTime, c.ActivatedAt, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating coupon %q: %w", c.ID, err)
	}

	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(insertCouponItemSQL,
			it.ID, it.CouponID, string(it.Kind), it.RefID, it.MenuID, it.MenuName,
			it.Quantity, it.OriginalPrice, it.DiscountRate, it.FinalPrice,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("creating items for coupon %q: %w", c.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing coupon %q: %w", c.ID, err)
	}
	return nil
}

// GetByID returns a coupon by its identifier.
func (r *CouponRepository) GetByID(ctx context.Context, id string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting coupon %q: %w", id, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("getting coupon %q: %w", id, err)
	}
	return &c, nil
}

// GetWithItems returns the coupon together with its frozen item snapshots.
func (r *CouponRepository) GetWithItems(ctx context.Context, id string) (*coupon.WithItems, error) {
	c, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := r.ListItems(ctx, id)
	if err != nil {
		return nil, err
	}
	return &coupon.WithItems{Coupon: *c, Items: items}, nil
}

// ListByUser returns the user's coupons, newest first.
func (r *CouponRepository) ListByUser(ctx context.Context, userID string) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, listCouponsByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing coupons for user %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanCoupon)
}

// ListItems returns the item snapshots of a coupon.
func (r *CouponRepository) ListItems(ctx context.Context, couponID string) ([]coupon.Item, error) {
	rows, err := r.pool.Query(ctx, listCouponItemsSQL, couponID)
	if err != nil {
		return nil, fmt.Errorf("listing items for coupon %q: %w", couponID, err)
	}
	return pgx.CollectRows(rows, scanCouponItem)
}

// MarkActivating transitions issued -> activating and stamps activated_at.
// Returns false when the coupon was not in a state that permits it.
func (r *CouponRepository) MarkActivating(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.mark(ctx, markActivatingSQL, id, at)
}

// MarkRedeemed transitions activating -> redeemed.
func (r *CouponRepository) MarkRedeemed(ctx context.Context, id string) (bool, error) {
	return r.mark(ctx, markRedeemedSQL, id)
}

// MarkCancelled transitions issued or activating -> cancelled.
func (r *CouponRepository) MarkCancelled(ctx context.Context, id string) (bool, error) {
	return r.mark(ctx, markCancelledSQL, id)
}

// MarkExpired transitions issued or activating -> expired.
func (r *CouponRepository) MarkExpired(ctx context.Context, id string) (bool, error) {
	return r.mark(ctx, markExpiredSQL, id)
}

func (r *CouponRepository) mark(ctx context.Context, sql, id string, args ...any) (bool, error) {
	tag, err := r.pool.Exec(ctx, sql, append([]any{id}, args...)...)
	if err != nil {
		return false, fmt.Errorf("transitioning coupon %q: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ExpireDue expires every non-terminal coupon whose deadline has passed,
// optionally limited to one user. Returns the number of rows expired.
func (r *CouponRepository) ExpireDue(ctx context.Context, now time.Time, userID string) (int64, error) {
	var (
		tag pgconn.CommandTag
		err error
	)
	if userID == "" {
		tag, err = r.pool.Exec(ctx, expireDueSQL, now)
	} else {
		tag, err = r.pool.Exec(ctx, expireDueByUserSQL, now, userID)
	}
	if err != nil {
		return 0, fmt.Errorf("expiring due coupons: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c      coupon.Coupon
		status string
	)
	err := row.Scan(
		&c.ID, &c.UserID, &c.StoreID, &c.EventID, &status,
		&c.ExpectedVisitTime, &c.ExpiredTime, &c.ActivatedAt, &c.CreatedAt,
	)
	c.Status = coupon.Status(status)
	return c, err
}

func scanCouponItem(row pgx.CollectableRow) (coupon.Item, error) {
	var (
		it   coupon.Item
		kind string
	)
	err := row.Scan(
		&it.ID, &it.CouponID, &kind, &it.RefID, &it.MenuID, &it.MenuName,
		&it.Quantity, &it.OriginalPrice, &it.DiscountRate, &it.FinalPrice,
	)
	it.Kind = inventory.Kind(kind)
	return it, err
}
