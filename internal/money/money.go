// Package money holds the pure allocation helpers shared by the
// receivable and payable ledgers. All amounts are int64 minor units
// (cents) so splits and balance arithmetic stay exact.
package money

import (
	"errors"
	"time"
)

// Status enumerates ledger entry and installment statuses.
type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusPartial   Status = "PARTIAL"
	StatusPaid      Status = "PAID"
	StatusOverdue   Status = "OVERDUE"
	StatusCancelled Status = "CANCELLED"
)

var (
	ErrInvalidCount  = errors.New("money: installment count must be at least 1")
	ErrNegativeTotal = errors.New("money: total must not be negative")
)

// Split divides totalCents into n parts that sum exactly to totalCents.
// The first totalCents%n parts receive one extra cent, so parts are
// either base or base+1 and cent drift is impossible.
func Split(totalCents int64, n int) ([]int64, error) {
	if n < 1 {
		return nil, ErrInvalidCount
	}
	if totalCents < 0 {
		return nil, ErrNegativeTotal
	}
	base := totalCents / int64(n)
	remainder := totalCents - base*int64(n)
	parts := make([]int64, n)
	for i := range parts {
		parts[i] = base
		if int64(i) < remainder {
			parts[i]++
		}
	}
	return parts, nil
}

// DueDates computes the installment due date series: the first date is
// issue + firstDays, each following one is spaced intervalDays apart.
func DueDates(issue time.Time, firstDays, intervalDays, n int) []time.Time {
	if n < 1 {
		return nil
	}
	dates := make([]time.Time, n)
	first := issue.AddDate(0, 0, firstDays)
	for i := range dates {
		dates[i] = first.AddDate(0, 0, i*intervalDays)
	}
	return dates
}

// DeriveStatus is the single source of truth for entry and installment
// statuses. Callers must never assign a status literal that this rule
// would not produce for the same amounts.
func DeriveStatus(amount, paid int64, due time.Time, cancelled bool, today time.Time) Status {
	switch {
	case cancelled:
		return StatusCancelled
	case amount > 0 && paid >= amount:
		return StatusPaid
	case paid > 0:
		return StatusPartial
	case BeforeDay(due, today):
		return StatusOverdue
	default:
		return StatusOpen
	}
}

// Remaining returns amount-paid floored at zero, guarding against
// negative remainders from double reversal.
func Remaining(amount, paid int64) int64 {
	if rem := amount - paid; rem > 0 {
		return rem
	}
	return 0
}

// BeforeDay reports whether due falls on a calendar day strictly before
// today, ignoring the time of day.
func BeforeDay(due, today time.Time) bool {
	dy, dm, dd := due.Date()
	ty, tm, td := today.Date()
	if dy != ty {
		return dy < ty
	}
	if dm != tm {
		return dm < tm
	}
	return dd < td
}
