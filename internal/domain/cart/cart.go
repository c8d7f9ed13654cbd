// Package cart implements the session-scoped pending request that accumulates
// discount and gift selections before conversion to a coupon.
//
// A cart is an explicit finite-state value: either empty, or locked to exactly
// one store and event with at least one item. Expiry is derived data:
// expiresAt is computed from startedAt and checked synchronously on every
// mutation, never left to a timer that may be delayed or absent after a
// process restart.
package cart

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/happyhour-app/happyhour/internal/domain/inventory"
)

// TTL is the fixed window after which an untouched pending cart is discarded.
const TTL = 30 * time.Minute

var (
	// ErrDifferentStore rejects adding an item from a store other than the one
	// the cart is locked to. The existing contents are never silently replaced.
	ErrDifferentStore = errors.New("cart is locked to a different store")
	// ErrDifferentEvent rejects mixing items from two events of the same store;
	// a coupon draws against exactly one event.
	ErrDifferentEvent = errors.New("cart is locked to a different event")
	// ErrExpired is returned by mutations (other than add) on a cart whose TTL
	// has elapsed. The cart is cleared as a side effect.
	ErrExpired = errors.New("cart expired")
	// ErrEmptySubmission is returned when converting an empty or unlocked cart.
	ErrEmptySubmission = errors.New("cart has nothing to submit")
	// ErrIndexOutOfRange is returned for item mutations with a bad index.
	ErrIndexOutOfRange = errors.New("cart item index out of range")
	// ErrInvalidQuantity rejects non-positive quantities.
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
	// ErrGiftQuantity rejects gift selections with quantity other than 1.
	ErrGiftQuantity = errors.New("gift items always have quantity 1")
)

// Item is one pending selection, tagged as either a discount or a gift option.
// The price and rate fields are display metadata copied at selection time;
// the transaction coordinator re-reads authoritative values at submission.
type Item struct {
	Kind          inventory.Kind
	RefID         string // source Discount or GiftOption id
	MenuID        string
	Quantity      int
	MenuName      string
	OriginalPrice decimal.Decimal
	DiscountRate  int
	FinalPrice    decimal.Decimal
}

// EventMeta is the happy-hour/weekday display metadata copied from the event
// when the cart locks. Advisory only; the server re-validates on submission.
type EventMeta struct {
	HappyHourStart string
	HappyHourEnd   string
	Weekdays       []time.Weekday
}

// Cart accumulates items against a single store lock. The zero value is an
// empty, unlocked cart.
type Cart struct {
	StoreID   string
	EventID   string
	Meta      EventMeta
	Items     []Item
	StartedAt time.Time
}

// Empty reports whether the cart holds no items.
func (c *Cart) Empty() bool {
	return len(c.Items) == 0
}

// ExpiresAt returns the instant the cart's TTL elapses. Zero for empty carts.
func (c *Cart) ExpiresAt() time.Time {
	if c.Empty() {
		return time.Time{}
	}
	return c.StartedAt.Add(TTL)
}

// expired reports whether a non-empty cart's TTL has elapsed at now.
func (c *Cart) expired(now time.Time) bool {
	return !c.Empty() && !now.Before(c.ExpiresAt())
}

// Add appends an item from the given store and event. The first add locks the
// cart to the store and starts the TTL clock. An expired cart is discarded and
// treated as fresh before the add, so stale state is never appended to.
func (c *Cart) Add(now time.Time, storeID, eventID string, meta EventMeta, item Item) error {
	if err := item.Validate(); err != nil {
		return err
	}

	if c.expired(now) {
		c.Clear()
	}

	if c.Empty() {
		c.StoreID = storeID
		c.EventID = eventID
		c.Meta = meta
		c.StartedAt = now
		c.Items = append(c.Items, item)
		return nil
	}

	if storeID != c.StoreID {
		return ErrDifferentStore
	}
	if eventID != c.EventID {
		return ErrDifferentEvent
	}

	c.Items = append(c.Items, item)
	return nil
}

// Remove deletes the item at index, preserving the order of the rest. It does
// not reset the TTL. Removing the last item releases the store lock.
func (c *Cart) Remove(now time.Time, index int) error {
	if c.expired(now) {
		c.Clear()
		return ErrExpired
	}
	if index < 0 || index >= len(c.Items) {
		return ErrIndexOutOfRange
	}

	c.Items = append(c.Items[:index], c.Items[index+1:]...)
	if c.Empty() {
		c.Clear()
	}
	return nil
}

// UpdateQuantity changes the quantity of the item at index in place. It does
// not reset the TTL.
func (c *Cart) UpdateQuantity(now time.Time, index, quantity int) error {
	if c.expired(now) {
		c.Clear()
		return ErrExpired
	}
	if index < 0 || index >= len(c.Items) {
		return ErrIndexOutOfRange
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if c.Items[index].Kind == inventory.KindGift && quantity != 1 {
		return ErrGiftQuantity
	}

	c.Items[index].Quantity = quantity
	return nil
}

// Clear empties the cart, releasing the store lock and the TTL clock.
func (c *Cart) Clear() {
	*c = Cart{}
}

// Submission is the immutable payload consumed by the coupon transaction
// coordinator. Item order is the cart's insertion order.
type Submission struct {
	UserID            string
	StoreID           string
	EventID           string
	ExpectedVisitTime *time.Time
	ExpiredTime       *time.Time // optional; coordinator defaults it
	Items             []Item
}

// Submission converts the cart into a submission for the given user. It fails
// with ErrExpired when the TTL has elapsed (clearing the cart) and with
// ErrEmptySubmission when the cart is empty or missing its store/event lock.
func (c *Cart) Submission(now time.Time, userID string, expectedVisit *time.Time) (*Submission, error) {
	if c.expired(now) {
		c.Clear()
		return nil, ErrExpired
	}
	if c.Empty() || c.StoreID == "" || c.EventID == "" {
		return nil, ErrEmptySubmission
	}

	items := make([]Item, len(c.Items))
	copy(items, c.Items)

	return &Submission{
		UserID:            userID,
		StoreID:           c.StoreID,
		EventID:           c.EventID,
		ExpectedVisitTime: expectedVisit,
		Items:             items,
	}, nil
}

// Validate checks the kind and quantity rules for a single selection. The
// coupon coordinator applies the same check to direct submissions that never
// passed through a cart.
func (i Item) Validate() error {
	if !i.Kind.Valid() {
		return errors.Errorf("unknown item kind %q", i.Kind)
	}
	if i.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if i.Kind == inventory.KindGift && i.Quantity != 1 {
		return ErrGiftQuantity
	}
	return nil
}
