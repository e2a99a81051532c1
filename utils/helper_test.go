package utils

import (
	"errors"
	"slices"
	"testing"
	"time"
)

func TestSortedUniqueMonths(t *testing.T) {
	in := []YearMonth{
		{2025, time.April}, {2024, time.December}, {2025, time.March},
		{2025, time.April}, {2024, time.December},
	}
	got := SortedUniqueMonths(in...)
	want := []YearMonth{{2024, time.December}, {2025, time.March}, {2025, time.April}}
	if !slices.Equal(got, want) {
		t.Fatalf("SortedUniqueMonths = %v, want %v", got, want)
	}
	if in[0] != (YearMonth{2025, time.April}) {
		t.Fatalf("input was reordered: %v", in)
	}
	if got := SortedUniqueMonths(); len(got) != 0 {
		t.Fatalf("expected no months, got %v", got)
	}
}

func TestMonthsBetween(t *testing.T) {
	got := MonthsBetween(YearMonth{2024, time.November}, YearMonth{2025, time.February})
	if len(got) != 4 || got[0].String() != "2024-11" || got[3].String() != "2025-02" {
		t.Fatalf("MonthsBetween = %v", got)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate(" 2025-03-15 ")
	if err != nil || FormatDate(d) != "2025-03-15" {
		t.Fatalf("ParseDate = %v, %v", d, err)
	}
	if _, err := ParseDate("15/03/2025"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
