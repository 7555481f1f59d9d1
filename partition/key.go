// Package partition builds the canonical identifiers of time-bucketed warehouse partitions.
// Nothing here performs I/O.
package partition

import (
	"fmt"
	"strconv"
	"time"

	"github.com/relloyd/forklift/errs"
)

const (
	MinYear = 1000
	MaxYear = 9999
)

// Key identifies a partition: "YYYYMM" for a month or "YYYY" for a year.
// Construct it with NewMonthKey, NewYearKey, MakeKey or ParseKey.
type Key string

// NewMonthKey returns the zero-padded YYYYMM key after validating that (year, month, 1) is a real date.
func NewMonthKey(year, month int) (Key, error) {
	if err := validateYear(year); err != nil {
		return "", err
	}
	if month < 1 || month > 12 {
		return "", errs.InvalidArgument("month %v is outside 1-12", month)
	}
	d := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	if d.Year() != year || int(d.Month()) != month { // if the date did not round-trip...
		return "", errs.InvalidArgument("year %v month %v is not a calendar date", year, month)
	}
	return Key(fmt.Sprintf("%04d%02d", year, month)), nil
}

// NewYearKey returns the YYYY key for a plausible four digit year.
func NewYearKey(year int) (Key, error) {
	if err := validateYear(year); err != nil {
		return "", err
	}
	return Key(fmt.Sprintf("%04d", year)), nil
}

// MakeKey returns a month key, or a year key when month is 0 (absent).
func MakeKey(year, month int) (Key, error) {
	if month == 0 {
		return NewYearKey(year)
	}
	return NewMonthKey(year, month)
}

// ParseKey validates s as a YYYY or YYYYMM key.
func ParseKey(s string) (Key, error) {
	switch len(s) {
	case 4, 6:
	default:
		return "", errs.InvalidArgument("partition key %q must be YYYY or YYYYMM", s)
	}
	year, err := strconv.Atoi(s[:4])
	if err != nil {
		return "", errs.InvalidArgument("partition key %q has a bad year: %v", s, err)
	}
	if len(s) == 4 {
		return NewYearKey(year)
	}
	month, err := strconv.Atoi(s[4:])
	if err != nil {
		return "", errs.InvalidArgument("partition key %q has a bad month: %v", s, err)
	}
	return NewMonthKey(year, month)
}

// KeyForTime returns the month key of t in UTC.
func KeyForTime(t time.Time) Key {
	t = t.UTC()
	return Key(fmt.Sprintf("%04d%02d", t.Year(), int(t.Month())))
}

func (k Key) String() string {
	return string(k)
}

// IsMonth returns true for YYYYMM keys.
func (k Key) IsMonth() bool {
	return len(k) == 6
}

// Year returns the year of the key.
func (k Key) Year() int {
	y, _ := strconv.Atoi(string(k)[:4])
	return y
}

// Month returns the month of the key, or 0 for a year key.
func (k Key) Month() int {
	if !k.IsMonth() {
		return 0
	}
	m, _ := strconv.Atoi(string(k)[4:])
	return m
}

// Bounds returns the half-open UTC interval [start, end) covered by the key.
func (k Key) Bounds() (start time.Time, end time.Time) {
	if k.IsMonth() {
		start = time.Date(k.Year(), time.Month(k.Month()), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	}
	start = time.Date(k.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(1, 0, 0)
}

func validateYear(year int) error {
	if year < MinYear || year > MaxYear {
		return errs.InvalidArgument("year %v is outside %v-%v", year, MinYear, MaxYear)
	}
	return nil
}
