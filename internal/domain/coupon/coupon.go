// Package coupon implements the transactional conversion of a cart submission
// into a redeemable coupon, and the coupon's redemption lifecycle.
package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/happyhour-app/happyhour/internal/domain/inventory"
)

// Status is the coupon lifecycle state. Transitions are monotonic over
// issued → activating → redeemed; cancelled and expired are terminal and
// reachable from issued or activating only.
type Status string

const (
	StatusIssued     Status = "issued"
	StatusActivating Status = "activating"
	StatusRedeemed   Status = "redeemed"
	StatusCancelled  Status = "cancelled"
	StatusExpired    Status = "expired"
)

// Terminal reports whether no further transition is possible out of s.
func (s Status) Terminal() bool {
	switch s {
	case StatusRedeemed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

const (
	// ActivationWindow is how long an activated coupon stays redeemable.
	ActivationWindow = 5 * time.Minute
	// DefaultExpiry is applied when a submission carries no expiry time.
	DefaultExpiry = 7 * 24 * time.Hour
)

var (
	ErrNotFound = errors.New("coupon not found")
	// ErrExpired is returned when the hard activation deadline has passed.
	ErrExpired = errors.New("coupon expired")
	// ErrInvalidTransition is returned for state machine misuse, e.g. a second
	// activate or redeeming a coupon that was never activated.
	ErrInvalidTransition = errors.New("invalid coupon state transition")
	// ErrAlreadyTerminal is returned by cancel on a redeemed/cancelled/expired coupon.
	ErrAlreadyTerminal = errors.New("coupon already in a terminal state")
	// ErrActivationWindowElapsed is returned when redemption is attempted more
	// than ActivationWindow after activation. Detecting it expires the coupon.
	ErrActivationWindowElapsed = errors.New("activation window elapsed")
	// ErrStoreMismatch is returned when a submission's event belongs to a
	// different store than the one the cart was locked to.
	ErrStoreMismatch = errors.New("event does not belong to the submitted store")
	// ErrGiftGroupConflict is returned when a submission selects more than one
	// option from the same gift group; a group grants exactly one free item.
	ErrGiftGroupConflict = errors.New("gift group allows exactly one selection")
)

// Coupon is the redeemable result of a cart conversion. Only Status and
// ActivatedAt change after creation; everything else is frozen.
type Coupon struct {
	ID                string
	UserID            string
	StoreID           string
	EventID           string
	Status            Status
	ExpectedVisitTime *time.Time
	ExpiredTime       time.Time
	ActivatedAt       *time.Time
	CreatedAt         time.Time
}

// expiredBy reports whether the hard deadline has passed for a non-terminal coupon.
func (c *Coupon) expiredBy(now time.Time) bool {
	return !c.Status.Terminal() && !now.Before(c.ExpiredTime)
}

// activationElapsed reports whether an activating coupon has outlived its
// redemption window at now.
func (c *Coupon) activationElapsed(now time.Time) bool {
	return c.Status == StatusActivating && c.ActivatedAt != nil &&
		now.After(c.ActivatedAt.Add(ActivationWindow))
}

// Item is a frozen snapshot of a Discount or GiftOption taken at coupon
// creation. Immutable once written; later changes to the source offer never
// affect it. Kind and RefID are kept so cancellation can compensate stock.
type Item struct {
	ID            string
	CouponID      string
	Kind          inventory.Kind
	RefID         string
	MenuID        string
	MenuName      string
	Quantity      int
	OriginalPrice decimal.Decimal
	DiscountRate  int
	FinalPrice    decimal.Decimal
}

// IsGift reports whether the item came from a gift option.
func (i *Item) IsGift() bool {
	return i.Kind == inventory.KindGift
}

// WithItems bundles a coupon header with its line items for read paths.
type WithItems struct {
	Coupon
	Items []Item
}

// Repository defines coupon persistence. Every transition method is a single
// conditional update keyed on the current status: it returns false when the
// row was not in the expected state, so near-simultaneous actors (the shopper's
// session and a clerk's terminal) cannot lose updates.
type Repository interface {
	// CreateWithItems persists the header and all items in one transaction.
	CreateWithItems(ctx context.Context, c *Coupon, items []Item) error
	GetByID(ctx context.Context, id string) (*Coupon, error)
	GetWithItems(ctx context.Context, id string) (*WithItems, error)
	ListByUser(ctx context.Context, userID string) ([]Coupon, error)
	ListItems(ctx context.Context, couponID string) ([]Item, error)

	// MarkActivating: issued → activating, only while expired_time > at.
	MarkActivating(ctx context.Context, id string, at time.Time) (bool, error)
	// MarkRedeemed: activating → redeemed.
	MarkRedeemed(ctx context.Context, id string) (bool, error)
	// MarkCancelled: issued|activating → cancelled.
	MarkCancelled(ctx context.Context, id string) (bool, error)
	// MarkExpired: issued|activating → expired.
	MarkExpired(ctx context.Context, id string) (bool, error)
	// ExpireDue flips every non-terminal coupon whose deadline has passed,
	// returning how many rows changed. userID narrows the sweep when non-empty.
	ExpireDue(ctx context.Context, now time.Time, userID string) (int64, error)
}
