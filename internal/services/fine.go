package services

import "time"

const (
	// GracePeriodDays is how long a book may be held before a fine accrues.
	GracePeriodDays = 5

	// FinePerDay is charged for every day held once the grace period is
	// exceeded. The whole loan is charged, not just the days past grace,
	// unless FinePolicy.ChargeExcessOnly is set.
	FinePerDay = 5
)

// FinePolicy decides what a return costs.
type FinePolicy struct {
	GraceDays        int
	RatePerDay       int
	ChargeExcessOnly bool
}

// DefaultFinePolicy charges 5 per day held once a loan exceeds 5 days.
func DefaultFinePolicy() FinePolicy {
	return FinePolicy{GraceDays: GracePeriodDays, RatePerDay: FinePerDay}
}

// Fine computes the charge for a loan held daysHeld whole days.
//
// Rules:
//   - daysHeld <= GraceDays : no fine.
//   - otherwise             : daysHeld * RatePerDay, or
//     (daysHeld - GraceDays) * RatePerDay with ChargeExcessOnly.
func (p FinePolicy) Fine(daysHeld int) int {
	if daysHeld <= p.GraceDays {
		return 0
	}
	if p.ChargeExcessOnly {
		return (daysHeld - p.GraceDays) * p.RatePerDay
	}
	return daysHeld * p.RatePerDay
}

// CalendarDay truncates t to its civil date in loc. The result is midnight
// UTC of that date, which is how dates are persisted.
func CalendarDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysHeld counts whole calendar days between two persisted dates.
// A return before the issue date (clock skew) counts as zero.
func DaysHeld(issueDate, returnDate time.Time) int {
	issue := CalendarDay(issueDate, time.UTC)
	ret := CalendarDay(returnDate, time.UTC)
	days := int(ret.Sub(issue).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
