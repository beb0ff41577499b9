package recurrence

import (
	"errors"
	"time"

	"todo-planner/internal/model"
)

var (
	ErrUnknownPattern   = errors.New("unknown recurrence pattern")
	ErrMissingReference = errors.New("recurring task has no reference date")
)

// NextDueDate advances ref by exactly one period of p. Month and year steps
// keep the day of month, falling back to the last day of a shorter month.
// An Unknown pattern returns ref unchanged.
func NextDueDate(p Pattern, ref time.Time) time.Time {
	switch p {
	case Daily:
		return ref.AddDate(0, 0, 1)
	case Weekly:
		return ref.AddDate(0, 0, 7)
	case Monthly:
		return addMonths(ref, 1)
	case Yearly:
		return addMonths(ref, 12)
	default:
		return ref
	}
}

// IsDue reports whether now is strictly past the next due date computed from
// ref. Unknown patterns are never due.
func IsDue(p Pattern, ref, now time.Time) bool {
	if !p.Valid() {
		return false
	}
	return now.After(NextDueDate(p, ref))
}

// ReferenceDate is the date a task's next instance is computed from: its due
// date when set, otherwise its creation time.
//
// The origin's own due date stands in for "last generated instance"; it does
// not move when instances are generated.
func ReferenceDate(task model.Task) (time.Time, bool) {
	if task.DueDate != nil && !task.DueDate.IsZero() {
		return *task.DueDate, true
	}
	if task.CreatedAt.IsZero() {
		return time.Time{}, false
	}
	return task.CreatedAt, true
}

// TrackedReferenceDate prefers the due date of the last generated instance
// recorded on the origin, then falls back to ReferenceDate.
func TrackedReferenceDate(task model.Task) (time.Time, bool) {
	if task.LastGeneratedAt != nil && !task.LastGeneratedAt.IsZero() {
		return *task.LastGeneratedAt, true
	}
	return ReferenceDate(task)
}

// Decision is the outcome of evaluating one recurring task at a point in time.
type Decision struct {
	Pattern   Pattern
	Reference time.Time
	Next      time.Time
	Due       bool
}

// Evaluate runs the whole policy for task at now. tracked selects
// TrackedReferenceDate over ReferenceDate.
//
// ErrUnknownPattern means the task is inert; ErrMissingReference means the
// stored row is unusable.
func Evaluate(task model.Task, now time.Time, tracked bool) (Decision, error) {
	d := Decision{Pattern: ParsePattern(task.RecurrencePattern)}
	if !d.Pattern.Valid() {
		return d, ErrUnknownPattern
	}

	var ok bool
	if tracked {
		d.Reference, ok = TrackedReferenceDate(task)
	} else {
		d.Reference, ok = ReferenceDate(task)
	}
	if !ok {
		return d, ErrMissingReference
	}

	d.Next = NextDueDate(d.Pattern, d.Reference)
	d.Due = now.After(d.Next)
	return d, nil
}

func addMonths(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	hour, minute, sec := t.Clock()

	total := int(month) - 1 + months
	year += total / 12
	total %= 12
	if total < 0 {
		total += 12
		year--
	}
	target := time.Month(total + 1)

	if last := daysInMonth(target, year); day > last {
		day = last
	}
	return time.Date(year, target, day, hour, minute, sec, t.Nanosecond(), t.Location())
}

func daysInMonth(month time.Month, year int) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
