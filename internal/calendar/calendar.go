// Package calendar answers working-day questions against the Finnish
// business calendar.
package calendar

import (
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/fi"
)

type Calendar struct {
	business *cal.BusinessCalendar
}

func NewFinland() *Calendar {
	business := cal.NewBusinessCalendar()
	business.Name = "Finland"
	business.AddHoliday(fi.Holidays...)
	return &Calendar{business: business}
}

func (c *Calendar) IsWorkday(t time.Time) bool {
	return c.business.IsWorkday(dateOf(t))
}

// WorkdaysBetween counts working days from start to end, both included.
func (c *Calendar) WorkdaysBetween(start, end time.Time) int {
	start, end = dateOf(start), dateOf(end)
	if end.Before(start) {
		start, end = end, start
	}
	count := 0
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if c.business.IsWorkday(day) {
			count++
		}
	}
	return count
}

func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 12, 0, 0, 0, time.UTC)
}
