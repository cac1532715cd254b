package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DATE - Day-granularity calendar date
// =============================================================================

// Date is a calendar day, normalized to UTC midnight. All record dates and
// period bounds in this system are day-granular; wall-clock times appear only
// on audit timestamps.
type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a wall-clock time to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func Today() Date {
	return DateOf(time.Now().UTC())
}

// ParseDate parses an ISO-8601 date (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// Comparison
func (d Date) Before(other Date) bool        { return d.t.Before(other.t) }
func (d Date) After(other Date) bool         { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool         { return d.t.Equal(other.t) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

// Arithmetic
func (d Date) AddDays(n int) Date   { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) AddMonths(n int) Date { return Date{t: d.t.AddDate(0, n, 0)} }

// Properties
func (d Date) Year() int         { return d.t.Year() }
func (d Date) Month() time.Month { return d.t.Month() }
func (d Date) Day() int          { return d.t.Day() }
func (d Date) IsZero() bool      { return d.t.IsZero() }
func (d Date) Time() time.Time   { return d.t }

func (d Date) String() string { return d.t.Format("2006-01-02") }

// DaysBetween returns to minus from in whole days (negative if to < from).
func DaysBetween(from, to Date) int {
	return int(to.t.Sub(from.t).Hours() / 24)
}

func MaxDate(a, b Date) Date {
	if a.After(b) {
		return a
	}
	return b
}

func MinDate(a, b Date) Date {
	if a.Before(b) {
		return a
	}
	return b
}

func StartOfMonth(d Date) Date {
	return NewDate(d.Year(), d.Month(), 1)
}

func EndOfMonth(d Date) Date {
	return NewDate(d.Year(), d.Month(), 1).AddMonths(1).AddDays(-1)
}

// =============================================================================
// PERIOD - Inclusive date window [Start, End]
// =============================================================================

// Period is the time boundary for every programmed/executed computation.
// Both ends are inclusive: a one-day period has Start == End and Days() == 1.
type Period struct {
	Start Date
	End   Date
}

// CurrentMonth returns the calendar month containing today, the default
// window when a caller supplies no period.
func CurrentMonth() Period {
	today := Today()
	return MonthOf(today)
}

// MonthOf returns the calendar month containing d.
func MonthOf(d Date) Period {
	return Period{Start: StartOfMonth(d), End: EndOfMonth(d)}
}

// Valid reports Start <= End.
func (p Period) Valid() bool {
	return p.Start.BeforeOrEqual(p.End)
}

// Days returns the inclusive day count, End - Start + 1.
func (p Period) Days() int {
	return DaysBetween(p.Start, p.End) + 1
}

func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Intersects reports whether the two inclusive windows share at least one day.
func (p Period) Intersects(other Period) bool {
	return p.Start.BeforeOrEqual(other.End) && p.End.AfterOrEqual(other.Start)
}

// Intersection clamps p to other. ok is false when the windows are disjoint.
func (p Period) Intersection(other Period) (Period, bool) {
	if !p.Intersects(other) {
		return Period{}, false
	}
	return Period{Start: MaxDate(p.Start, other.Start), End: MinDate(p.End, other.End)}, true
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// OverlapFraction returns the share of p's duration that falls inside window:
// overlap_days / total_days, clamped to 1 when the overlap covers the whole
// window, and 0 when p has a non-positive duration or no overlap at all.
func (p Period) OverlapFraction(window Period) decimal.Decimal {
	overlap, ok := p.Intersection(window)
	if !ok {
		return decimal.Zero
	}
	totalDays := p.Days()
	if totalDays <= 0 {
		return decimal.Zero
	}
	overlapDays := overlap.Days()
	if overlapDays >= totalDays {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(int64(overlapDays)).Div(decimal.NewFromInt(int64(totalDays)))
}

// Weeks partitions p into consecutive 7-day windows; the last window is
// truncated to End. The union of the buckets is exactly p, with no overlap.
func (p Period) Weeks() []Period {
	if !p.Valid() {
		return nil
	}
	var weeks []Period
	start := p.Start
	for start.BeforeOrEqual(p.End) {
		end := MinDate(start.AddDays(6), p.End)
		weeks = append(weeks, Period{Start: start, End: end})
		start = end.AddDays(1)
	}
	return weeks
}

// Months partitions p by calendar month, capped at max buckets. The first
// bucket starts at p.Start and every bucket is clamped to p.End.
func (p Period) Months(max int) []Period {
	if !p.Valid() || max <= 0 {
		return nil
	}
	var months []Period
	start := p.Start
	for start.BeforeOrEqual(p.End) && len(months) < max {
		end := MinDate(EndOfMonth(start), p.End)
		months = append(months, Period{Start: start, End: end})
		start = StartOfMonth(start).AddMonths(1)
	}
	return months
}
