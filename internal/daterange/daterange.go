// Package daterange implements inclusive day ranges. Range starts are floored
// to midnight UTC and ends are ceiled to the last nanosecond of the day.
package daterange

import (
	"errors"
	"time"
)

const Layout = "2006-01-02"

var ErrEmpty = errors.New("empty date range")

// Range is an inclusive range of days. The zero value is empty.
type Range struct {
	start time.Time
	end   time.Time
	set   bool
}

func New(start, end time.Time) Range {
	if end.Before(start) {
		start, end = end, start
	}
	return Range{start: start.UTC(), end: end.UTC(), set: true}
}

// Days returns a range from today spanning n days forward, or backward when
// n is negative.
func Days(n int) Range {
	today := FloorDay(time.Now())
	return New(today, today.AddDate(0, 0, n))
}

func Empty() Range {
	return Range{}
}

// Parse builds a range from two YYYY-MM-DD strings.
func Parse(start, end string) (Range, error) {
	s, err := time.Parse(Layout, start)
	if err != nil {
		return Range{}, err
	}
	e, err := time.Parse(Layout, end)
	if err != nil {
		return Range{}, err
	}
	return New(s, e), nil
}

func (r Range) IsEmpty() bool {
	return !r.set
}

func (r Range) Start() time.Time {
	if !r.set {
		return time.Time{}
	}
	return FloorDay(r.start)
}

func (r Range) End() time.Time {
	if !r.set {
		return time.Time{}
	}
	return CeilDay(r.end)
}

// Len is the number of days in the range.
func (r Range) Len() int {
	if !r.set {
		return 0
	}
	return int(r.End().Sub(r.Start())/(24*time.Hour)) + 1
}

func (r Range) Contains(t time.Time) bool {
	if !r.set {
		return false
	}
	return !t.Before(r.Start()) && !t.After(r.End())
}

func (r Range) Equal(other Range) bool {
	if r.set != other.set {
		return false
	}
	if !r.set {
		return true
	}
	return r.Start().Equal(other.Start()) && r.End().Equal(other.End())
}

func (r Range) Intersection(other Range) Range {
	if !r.set || !other.set {
		return Empty()
	}

	start := r.Start()
	if other.Start().After(start) {
		start = other.Start()
	}
	end := r.End()
	if other.End().Before(end) {
		end = other.End()
	}
	if end.Before(start) {
		return Empty()
	}
	return New(start, end)
}

// Cut splits the range at the day of at. The past part ends on the day
// before at and the future part starts on the day of at.
func (r Range) Cut(at time.Time) (past Range, future Range) {
	if !r.set {
		return Empty(), Empty()
	}

	day := FloorDay(at)
	switch {
	case !day.After(r.Start()):
		return Empty(), r
	case day.After(r.End()):
		return r, Empty()
	}
	return New(r.Start(), day.AddDate(0, 0, -1)), New(day, r.End())
}

// EachDay calls fn with the midnight of every day in the range.
func (r Range) EachDay(fn func(day time.Time)) {
	if !r.set {
		return
	}
	end := r.End()
	for day := r.Start(); !day.After(end); day = day.AddDate(0, 0, 1) {
		fn(day)
	}
}

// Params returns the range as startDate/endDate query parameters.
func (r Range) Params() (map[string]string, error) {
	if !r.set {
		return nil, ErrEmpty
	}
	return map[string]string{
		"startDate": r.Start().Format(Layout),
		"endDate":   r.End().Format(Layout),
	}, nil
}

func (r Range) String() string {
	if !r.set {
		return "<DateRange [Empty]>"
	}
	return r.Start().Format(Layout) + " .. " + r.End().Format(Layout)
}

func FloorDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func CeilDay(t time.Time) time.Time {
	return FloorDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

func FloorMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func CeilMonth(t time.Time) time.Time {
	return FloorMonth(t).AddDate(0, 1, 0).Add(-time.Nanosecond)
}
