package calendar

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestIsWorkday(t *testing.T) {
	c := NewFinland()
	cases := []struct {
		name string
		day  time.Time
		want bool
	}{
		{"monday", date(2024, time.March, 4), true},
		{"saturday", date(2024, time.March, 9), false},
		{"sunday", date(2024, time.March, 10), false},
		{"new year", date(2024, time.January, 1), false},
		{"independence day", date(2024, time.December, 6), false},
		{"christmas", date(2024, time.December, 25), false},
	}
	for _, tc := range cases {
		if got := c.IsWorkday(tc.day); got != tc.want {
			t.Errorf("%s: IsWorkday = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestWorkdaysBetween(t *testing.T) {
	c := NewFinland()
	if got := c.WorkdaysBetween(date(2024, time.March, 4), date(2024, time.March, 10)); got != 5 {
		t.Fatalf("week = %d, want 5", got)
	}
	if got := c.WorkdaysBetween(date(2024, time.March, 10), date(2024, time.March, 4)); got != 5 {
		t.Fatalf("reversed week = %d, want 5", got)
	}
	if got := c.WorkdaysBetween(date(2024, time.March, 9), date(2024, time.March, 9)); got != 0 {
		t.Fatalf("saturday = %d, want 0", got)
	}
}
