package event

import (
	"fmt"
	"time"

	"github.com/go-faster/errors"
)

// Violation identifies which window constraint rejected a candidate instant.
type Violation string

const (
	ViolationDateRange  Violation = "date_range"
	ViolationTimeWindow Violation = "time_window"
	ViolationWeekday    Violation = "weekday"
)

// ErrInvalidWindow indicates a misconfigured happy-hour window: the end is not
// after the start. Windows never cross midnight; such configuration is
// rejected rather than interpreted.
var ErrInvalidWindow = errors.New("happy hour window end must be after start")

// WindowClosedError is returned when an instant falls outside an event's
// usable window, naming the violated constraint for error reporting.
type WindowClosedError struct {
	Violated Violation
}

func (e *WindowClosedError) Error() string {
	return fmt.Sprintf("event window closed: %s constraint violated", e.Violated)
}

// EvaluateWindow reports whether the event is usable at the given instant.
// It checks, in order: the date range (inclusive on both ends), the permitted
// weekday set, and the daily happy-hour window (start inclusive, end
// exclusive). The instant's own wall clock is used; callers pass server time
// in the store's zone. Pure, no side effects.
func EvaluateWindow(ev *Event, at time.Time) error {
	if ev.HappyHourEnd.MinuteOfDay() <= ev.HappyHourStart.MinuteOfDay() {
		return ErrInvalidWindow
	}

	day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
	start := time.Date(ev.StartDate.Year(), ev.StartDate.Month(), ev.StartDate.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(ev.EndDate.Year(), ev.EndDate.Month(), ev.EndDate.Day(), 0, 0, 0, 0, time.UTC)
	if day.Before(start) || day.After(end) {
		return &WindowClosedError{Violated: ViolationDateRange}
	}

	if !ev.Weekdays[at.Weekday()] {
		return &WindowClosedError{Violated: ViolationWeekday}
	}

	minute := at.Hour()*60 + at.Minute()
	if minute < ev.HappyHourStart.MinuteOfDay() || minute >= ev.HappyHourEnd.MinuteOfDay() {
		return &WindowClosedError{Violated: ViolationTimeWindow}
	}

	return nil
}
