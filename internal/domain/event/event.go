// Package event models store events: a date range, a daily happy-hour window,
// and the weekdays on which the event's offers are usable.
package event

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested event does not exist or is inactive.
var ErrNotFound = errors.New("event not found")

// TimeOfDay is a wall-clock time within a single day, minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS"; seconds are discarded.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m, sec int
	if _, err := fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec); err != nil {
		if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
			return TimeOfDay{}, errors.Errorf("invalid time of day %q", s)
		}
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return TimeOfDay{}, errors.Errorf("time of day %q out of range", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// MinuteOfDay returns the minutes elapsed since midnight.
func (t TimeOfDay) MinuteOfDay() int {
	return t.Hour*60 + t.Minute
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Event is a store-owned promotion period. The Max* summary fields are
// denormalized for display and carry no authority in transaction logic.
type Event struct {
	ID             string
	StoreID        string
	Title          string
	StartDate      time.Time // civil date, midnight
	EndDate        time.Time // civil date, midnight, inclusive
	HappyHourStart TimeOfDay
	HappyHourEnd   TimeOfDay
	Weekdays       map[time.Weekday]bool
	Active         bool
	CreatedAt      time.Time

	MaxDiscountRate  *int
	MaxFinalPrice    *decimal.Decimal
	MaxOriginalPrice *decimal.Decimal
}

// Repository provides read access to events.
type Repository interface {
	// GetByID returns an active event, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*Event, error)
	ListByStore(ctx context.Context, storeID string) ([]Event, error)
}
