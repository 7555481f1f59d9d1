package partition

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/relloyd/forklift/errs"
)

func TestMakeKey(t *testing.T) {
	t.Log("Test 1 - month keys are zero padded")
	k, err := MakeKey(2020, 5)
	if err != nil || k != "202005" {
		t.Fatalf("expected 202005, got %q (err %v)", k, err)
	}

	t.Log("Test 2 - year keys")
	k, err = MakeKey(2025, 0)
	if err != nil || k != "2025" {
		t.Fatalf("expected 2025, got %q (err %v)", k, err)
	}

	t.Log("Test 3 - invalid input fails before any I/O")
	for _, tc := range []struct{ year, month int }{
		{2020, 13},
		{20200, 3},
		{2020, -1},
		{999, 1},
		{10000, 0},
	} {
		if _, err := MakeKey(tc.year, tc.month); !errors.Is(err, errs.ErrInvalidArgument) {
			t.Fatalf("(%v, %v): expected ErrInvalidArgument, got %v", tc.year, tc.month, err)
		}
	}
}

func TestParseKeyAndBounds(t *testing.T) {
	k, err := ParseKey("202412")
	if err != nil {
		t.Fatal(err)
	}
	if k.Year() != 2024 || k.Month() != 12 || !k.IsMonth() {
		t.Fatalf("unexpected parts of %v", k)
	}
	start, end := k.Bounds()
	if !start.Equal(time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)) || !end.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected bounds %v %v", start, end)
	}
	y, err := ParseKey("2024")
	if err != nil || y.Month() != 0 || y.IsMonth() {
		t.Fatalf("unexpected year key %v (err %v)", y, err)
	}
	start, end = y.Bounds()
	if start.Year() != 2024 || end.Year() != 2025 {
		t.Fatalf("unexpected year bounds %v %v", start, end)
	}
	for _, bad := range []string{"", "20241", "202413", "abcd", "2024ab"} {
		if _, err := ParseKey(bad); !errors.Is(err, errs.ErrInvalidArgument) {
			t.Fatalf("%q: expected ErrInvalidArgument, got %v", bad, err)
		}
	}
	if KeyForTime(time.Date(2025, 2, 7, 10, 0, 0, 0, time.UTC)) != "202502" {
		t.Fatal("unexpected KeyForTime result")
	}
}

func TestMonthKeys(t *testing.T) {
	now := time.Date(2025, 2, 7, 0, 0, 0, 0, time.UTC)

	t.Log("Test 1 - two months back to now")
	keys, err := MonthKeys(now, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(Strings(keys), []string{"202412", "202501", "202502"}) {
		t.Fatalf("unexpected keys %v", keys)
	}

	t.Log("Test 2 - a single month")
	keys, err = MonthKeys(now, 1, 1)
	if err != nil || !reflect.DeepEqual(Strings(keys), []string{"202501"}) {
		t.Fatalf("unexpected keys %v (err %v)", keys, err)
	}

	t.Log("Test 3 - end before start is rejected")
	if _, err := MonthStarts(now, 0, 1); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := MonthStarts(now, -1, -2); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}

	t.Log("Test 4 - month arithmetic does not overflow from the 31st")
	keys, err = MonthKeys(time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), 1, 0)
	if err != nil || !reflect.DeepEqual(Strings(keys), []string{"202502", "202503"}) {
		t.Fatalf("unexpected keys %v (err %v)", keys, err)
	}
}

func TestYearModes(t *testing.T) {
	d := time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC)
	if YearOf(d, YearCalendar) != 2024 {
		t.Fatal("expected calendar year 2024")
	}
	if YearOf(d, YearISO) != 2025 {
		t.Fatal("expected ISO year 2025")
	}
	keys, err := YearKeys(d, YearCalendar, 1, 0)
	if err != nil || !reflect.DeepEqual(Strings(keys), []string{"2023", "2024"}) {
		t.Fatalf("unexpected year keys %v (err %v)", keys, err)
	}
	if m, err := ParseYearMode("ISO"); err != nil || m != YearISO {
		t.Fatalf("unexpected mode %v (err %v)", m, err)
	}
	if _, err := ParseYearMode("fiscal"); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}
