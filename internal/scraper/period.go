package scraper

import (
	"fmt"
	"time"
)

// Period is a single month of daily consumption on the portal
type Period struct {
	Year  int
	Month time.Month
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Date returns the calendar date y-m-d as midnight UTC
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf strips the time of day from t, keeping its calendar date
func DateOf(t time.Time) time.Time {
	return Date(t.Year(), t.Month(), t.Day())
}

// Today returns the local calendar date
func Today() time.Time {
	return DateOf(time.Now())
}

// ExpandPeriods returns every month intersecting [from, to] in ascending order.
//
// The walk starts on the first of from's month; starting on from's own day
// would drop the last month whenever from.Day() > to.Day() (2020-03-09 to
// 2020-08-01 must include August).
func ExpandPeriods(from, to time.Time) []Period {
	from, to = DateOf(from), DateOf(to)

	var periods []Period
	for dt := Date(from.Year(), from.Month(), 1); !dt.After(to); dt = dt.AddDate(0, 1, 0) {
		periods = append(periods, Period{Year: dt.Year(), Month: dt.Month()})
	}
	return periods
}
