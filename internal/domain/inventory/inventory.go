// Package inventory defines the limited-stock offer catalog and the ledger
// that guards remaining-quantity counters.
package inventory

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Kind discriminates the two offer variants that draw against limited stock.
type Kind string

const (
	// KindDiscount is a time-boxed percentage discount on a menu item.
	KindDiscount Kind = "discount"
	// KindGift is a free-item option inside a pick-one gift group.
	KindGift Kind = "gift"
)

// Valid reports whether k is a known offer kind.
func (k Kind) Valid() bool {
	return k == KindDiscount || k == KindGift
}

// ErrNotFound is returned when a referenced offer does not exist.
var ErrNotFound = errors.New("offer not found")

// StockExhaustedError indicates a decrement lost the race for remaining stock,
// or the offer has been deactivated. It names the specific item so callers can
// drop just that line instead of discarding the whole cart.
type StockExhaustedError struct {
	Kind  Kind
	RefID string
}

func (e *StockExhaustedError) Error() string {
	return fmt.Sprintf("%s %s is out of stock", e.Kind, e.RefID)
}

// Offer is an authoritative snapshot of a discount or gift option joined with
// its menu item. Prices and rate come from the server, never from the client.
// GroupID is set for gift options only: options sharing a group are mutually
// exclusive, a shopper picks exactly one.
type Offer struct {
	Kind          Kind
	RefID         string
	EventID       string
	GroupID       string
	MenuID        string
	MenuName      string
	OriginalPrice decimal.Decimal
	DiscountRate  int
	FinalPrice    decimal.Decimal
	Active        bool
}

// GiftGroup is a pick-exactly-one bundle of free-item options within an event.
type GiftGroup struct {
	ID      string
	EventID string
	Options []Offer
}

// Catalog provides read access to offers for snapshotting at coupon creation
// and for the event display path.
type Catalog interface {
	GetOffer(ctx context.Context, kind Kind, refID string) (*Offer, error)
	// ListGiftGroups returns the event's gift groups with their options, in
	// stable group order.
	ListGiftGroups(ctx context.Context, eventID string) ([]GiftGroup, error)
}

// Ledger guards the remaining-quantity counters of discounts and gift options.
//
// TryDecrement is the single authoritative primitive: it must check-and-decrement
// in one atomic step so that concurrent callers never observe a negative
// counter. A NULL counter means unlimited stock and always succeeds. Decrements
// are never reversed by the ledger itself; Restore is an explicit compensating
// operation invoked by the coupon state machine.
type Ledger interface {
	// TryDecrement atomically consumes `by` units, or fails with
	// *StockExhaustedError (insufficient or inactive) / ErrNotFound.
	TryDecrement(ctx context.Context, kind Kind, refID string, by int) error
	// Restore returns `by` units previously consumed by TryDecrement. It is a
	// no-op for unlimited offers and reactivates offers that were deactivated
	// by exhaustion.
	Restore(ctx context.Context, kind Kind, refID string, by int) error
	// SetActive toggles an offer's active flag.
	SetActive(ctx context.Context, kind Kind, refID string, active bool) error
	// GetRemaining reports the current counter, nil meaning unlimited. The
	// value is informational only; correctness decisions must go through
	// TryDecrement.
	GetRemaining(ctx context.Context, kind Kind, refID string) (*int, error)
}
