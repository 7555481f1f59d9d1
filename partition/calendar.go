package partition

import (
	"strings"
	"time"

	"github.com/relloyd/forklift/errs"
)

// YearMode selects how a year is derived from an instant.
type YearMode string

const (
	YearCalendar YearMode = "calendar" // the calendar year, as toYear
	YearISO      YearMode = "iso"      // the ISO-8601 week-numbering year, as toISOYear
)

// ParseYearMode accepts "calendar" (or empty) and "iso".
func ParseYearMode(s string) (YearMode, error) {
	switch YearMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", YearCalendar:
		return YearCalendar, nil
	case YearISO:
		return YearISO, nil
	default:
		return "", errs.InvalidArgument("unknown year mode %q", s)
	}
}

// YearOf returns the year of t in UTC according to mode.
// The two differ only around New Year, e.g. 2024-12-30 is ISO year 2025.
func YearOf(t time.Time, mode YearMode) int {
	t = t.UTC()
	if mode == YearISO {
		y, _ := t.ISOWeek()
		return y
	}
	return t.Year()
}

// MonthStarts returns the first instant (UTC) of every month from startMonthsAgo months before now
// up to endMonthsAgo months before now, inclusive and ascending.
// e.g. now=2025-02-07, (2, 0) => 2024-12-01, 2025-01-01, 2025-02-01.
func MonthStarts(now time.Time, startMonthsAgo, endMonthsAgo int) ([]time.Time, error) {
	if startMonthsAgo < 0 || endMonthsAgo < 0 {
		return nil, errs.InvalidArgument("months ago must not be negative, got %v and %v", startMonthsAgo, endMonthsAgo)
	}
	if startMonthsAgo < endMonthsAgo {
		return nil, errs.InvalidArgument("start months ago (%v) must be greater than or equal to end months ago (%v)", startMonthsAgo, endMonthsAgo)
	}
	now = now.UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	retval := make([]time.Time, 0, startMonthsAgo-endMonthsAgo+1)
	for ago := startMonthsAgo; ago >= endMonthsAgo; ago-- {
		retval = append(retval, first.AddDate(0, -ago, 0))
	}
	return retval, nil
}

// MonthKeys returns the month keys for MonthStarts(now, startMonthsAgo, endMonthsAgo).
func MonthKeys(now time.Time, startMonthsAgo, endMonthsAgo int) ([]Key, error) {
	starts, err := MonthStarts(now, startMonthsAgo, endMonthsAgo)
	if err != nil {
		return nil, err
	}
	retval := make([]Key, len(starts))
	for idx, s := range starts {
		retval[idx] = KeyForTime(s)
	}
	return retval, nil
}

// YearKeys returns the year keys from startYearsAgo to endYearsAgo before the year of now, ascending.
func YearKeys(now time.Time, mode YearMode, startYearsAgo, endYearsAgo int) ([]Key, error) {
	if startYearsAgo < 0 || endYearsAgo < 0 || startYearsAgo < endYearsAgo {
		return nil, errs.InvalidArgument("bad years ago range %v to %v", startYearsAgo, endYearsAgo)
	}
	year := YearOf(now, mode)
	retval := make([]Key, 0, startYearsAgo-endYearsAgo+1)
	for ago := startYearsAgo; ago >= endYearsAgo; ago-- {
		k, err := NewYearKey(year - ago)
		if err != nil {
			return nil, err
		}
		retval = append(retval, k)
	}
	return retval, nil
}

// Strings converts keys to a string slice for logging and parameter passing.
func Strings(keys []Key) []string {
	retval := make([]string, len(keys))
	for idx, k := range keys {
		retval[idx] = k.String()
	}
	return retval
}
