package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/happyhour-app/happyhour/internal/domain/cart"
	"github.com/happyhour-app/happyhour/internal/domain/event"
	"github.com/happyhour-app/happyhour/internal/domain/inventory"
)

// Service coordinates coupon creation and drives the lifecycle state machine.
//
// Creation is all-or-nothing: the validity window is re-evaluated against
// current server time, every line item's stock is consumed through the
// ledger's atomic decrement, and the header plus item snapshots are persisted
// in one transaction. Any failure after the first decrement triggers
// compensating restores, so partial stock consumption is never observable.
//
// Every lifecycle entry point re-derives validity from the authoritative
// current time; scheduled callbacks are never trusted.
type Service struct {
	events  event.Repository
	catalog inventory.Catalog
	ledger  inventory.Ledger
	coupons Repository
	now     func() time.Time
}

// NewService creates a Service with the required domain dependencies.
func NewService(
	events event.Repository,
	catalog inventory.Catalog,
	ledger inventory.Ledger,
	coupons Repository,
) *Service {
	return &Service{
		events:  events,
		catalog: catalog,
		ledger:  ledger,
		coupons: coupons,
		now:     time.Now,
	}
}

type applied struct {
	kind  inventory.Kind
	refID string
	qty   int
}

// Create converts a cart submission into a persisted coupon and returns its id.
func (s *Service) Create(ctx context.Context, sub *cart.Submission) (string, error) {
	if sub == nil || len(sub.Items) == 0 {
		return "", cart.ErrEmptySubmission
	}
	// Direct submissions bypass the cart, so the item rules are re-checked
	// here before anything touches the ledger. A non-positive quantity must
	// never reach TryDecrement.
	for _, line := range sub.Items {
		if err := line.Validate(); err != nil {
			return "", err
		}
	}

	now := s.now()

	// Authoritative window check; the client's advisory copy is never trusted.
	ev, err := s.events.GetByID(ctx, sub.EventID)
	if err != nil {
		return "", err
	}
	if ev.StoreID != sub.StoreID {
		return "", ErrStoreMismatch
	}
	if err := event.EvaluateWindow(ev, now); err != nil {
		return "", err
	}

	// Consume stock item by item. On any failure, restore what this operation
	// already consumed before reporting the offending item.
	consumed := make([]applied, 0, len(sub.Items))
	rollback := func() {
		for i := len(consumed) - 1; i >= 0; i-- {
			a := consumed[i]
			if rerr := s.ledger.Restore(ctx, a.kind, a.refID, a.qty); rerr != nil {
				zctx.From(ctx).Error("stock rollback failed",
					zap.String("kind", string(a.kind)),
					zap.String("ref_id", a.refID),
					zap.Error(rerr),
				)
			}
		}
	}

	items := make([]Item, 0, len(sub.Items))
	seenGroups := make(map[string]bool)
	couponID := uuid.New().String()
	for _, line := range sub.Items {
		offer, err := s.catalog.GetOffer(ctx, line.Kind, line.RefID)
		if err != nil {
			rollback()
			return "", err
		}
		if !offer.Active || offer.EventID != sub.EventID {
			// Deactivated or foreign offers read as sold out so the client can
			// drop just this line.
			rollback()
			return "", &inventory.StockExhaustedError{Kind: line.Kind, RefID: line.RefID}
		}
		if offer.GroupID != "" {
			if seenGroups[offer.GroupID] {
				rollback()
				return "", ErrGiftGroupConflict
			}
			seenGroups[offer.GroupID] = true
		}

		if err := s.ledger.TryDecrement(ctx, line.Kind, line.RefID, line.Quantity); err != nil {
			rollback()
			return "", err
		}
		consumed = append(consumed, applied{kind: line.Kind, refID: line.RefID, qty: line.Quantity})

		items = append(items, snapshotItem(couponID, line.Quantity, offer))
	}

	expiredTime := now.Add(DefaultExpiry)
	if sub.ExpiredTime != nil {
		expiredTime = *sub.ExpiredTime
	}

	c := &Coupon{
		ID:                couponID,
		UserID:            sub.UserID,
		StoreID:           sub.StoreID,
		EventID:           sub.EventID,
		Status:            StatusIssued,
		ExpectedVisitTime: sub.ExpectedVisitTime,
		ExpiredTime:       expiredTime,
		CreatedAt:         now,
	}
	if err := s.coupons.CreateWithItems(ctx, c, items); err != nil {
		rollback()
		return "", errors.Wrap(err, "persist coupon")
	}

	return couponID, nil
}

// snapshotItem freezes the offer's server-side prices into a coupon item.
func snapshotItem(couponID string, qty int, offer *inventory.Offer) Item {
	rate := offer.DiscountRate
	final := offer.FinalPrice
	if offer.Kind == inventory.KindGift {
		rate = 100
		final = decimal.Zero
	}
	return Item{
		ID:            uuid.New().String(),
		CouponID:      couponID,
		Kind:          offer.Kind,
		RefID:         offer.RefID,
		MenuID:        offer.MenuID,
		MenuName:      offer.MenuName,
		Quantity:      qty,
		OriginalPrice: offer.OriginalPrice,
		DiscountRate:  rate,
		FinalPrice:    final,
	}
}

// Activate moves an issued coupon to activating and stamps ActivatedAt.
// A second activate fails with ErrInvalidTransition and never resets the stamp.
func (s *Service) Activate(ctx context.Context, id string) error {
	c, err := s.coupons.GetByID(ctx, id)
	if err != nil {
		return err
	}

	now := s.now()
	if c.expiredBy(now) {
		s.expire(ctx, id)
		return ErrExpired
	}
	if c.Status != StatusIssued {
		return ErrInvalidTransition
	}

	ok, err := s.coupons.MarkActivating(ctx, id, now)
	if err != nil {
		return errors.Wrap(err, "mark activating")
	}
	if !ok {
		// Lost a race: someone else transitioned the row first.
		return ErrInvalidTransition
	}
	return nil
}

// Redeem moves an activating coupon to redeemed, provided the call arrives
// within the activation window and before the hard deadline. A late call
// expires the coupon so subsequent reads see a terminal state.
func (s *Service) Redeem(ctx context.Context, id string) error {
	c, err := s.coupons.GetByID(ctx, id)
	if err != nil {
		return err
	}

	now := s.now()
	if c.expiredBy(now) {
		s.expire(ctx, id)
		return ErrExpired
	}
	if c.Status != StatusActivating {
		return ErrInvalidTransition
	}
	if c.activationElapsed(now) {
		s.expire(ctx, id)
		return ErrActivationWindowElapsed
	}

	ok, err := s.coupons.MarkRedeemed(ctx, id)
	if err != nil {
		return errors.Wrap(err, "mark redeemed")
	}
	if !ok {
		return ErrInvalidTransition
	}
	return nil
}

// Cancel moves an issued or activating coupon to cancelled and restores the
// stock it consumed at issuance. The restore is an explicit compensating
// operation: if an individual restore fails, the cancellation stands and the
// failure is logged for reconciliation.
func (s *Service) Cancel(ctx context.Context, id string) error {
	c, err := s.coupons.GetByID(ctx, id)
	if err != nil {
		return err
	}

	now := s.now()
	if c.expiredBy(now) {
		s.expire(ctx, id)
		return ErrAlreadyTerminal
	}
	if c.Status.Terminal() {
		return ErrAlreadyTerminal
	}

	ok, err := s.coupons.MarkCancelled(ctx, id)
	if err != nil {
		return errors.Wrap(err, "mark cancelled")
	}
	if !ok {
		return ErrAlreadyTerminal
	}

	items, err := s.coupons.ListItems(ctx, id)
	if err != nil {
		zctx.From(ctx).Error("list items for stock restore failed",
			zap.String("coupon_id", id), zap.Error(err))
		return nil
	}
	for _, it := range items {
		if err := s.ledger.Restore(ctx, it.Kind, it.RefID, it.Quantity); err != nil {
			zctx.From(ctx).Error("stock restore on cancel failed",
				zap.String("coupon_id", id),
				zap.String("ref_id", it.RefID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// GetWithItems returns the coupon and its items, applying passive expiry
// first: a non-terminal coupon past its deadline, or an activating coupon
// whose redemption window has elapsed, is persisted as expired before the
// status is returned.
func (s *Service) GetWithItems(ctx context.Context, id string) (*WithItems, error) {
	w, err := s.coupons.GetWithItems(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if w.expiredBy(now) || w.activationElapsed(now) {
		s.expire(ctx, id)
		w.Status = StatusExpired
	}
	return w, nil
}

// ListByUser returns the user's coupons with passive expiry applied.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]Coupon, error) {
	if _, err := s.coupons.ExpireDue(ctx, s.now(), userID); err != nil {
		return nil, errors.Wrap(err, "expire due coupons")
	}
	return s.coupons.ListByUser(ctx, userID)
}

// ExpireOverdue is the best-effort background sweep. Lazy evaluation at each
// entry point remains load-bearing; this only improves read freshness.
func (s *Service) ExpireOverdue(ctx context.Context) (int64, error) {
	return s.coupons.ExpireDue(ctx, s.now(), "")
}

func (s *Service) expire(ctx context.Context, id string) {
	if _, err := s.coupons.MarkExpired(ctx, id); err != nil {
		zctx.From(ctx).Error("mark expired failed", zap.String("coupon_id", id), zap.Error(err))
	}
}
