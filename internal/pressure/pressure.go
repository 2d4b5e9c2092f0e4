// Package pressure stores and summarizes the workload survey ("kiire"
// kysely) answers.
package pressure

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"kpi-backend/internal/daterange"
	"kpi-backend/internal/models"
	"kpi-backend/internal/store"
)

var ErrOutOfRange = errors.New("x and y must be between 0 and 1")

type Service struct {
	store *store.Store
	loc   *time.Location
	now   func() time.Time
}

func NewService(st *store.Store, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: st, loc: loc, now: time.Now}
}

// DefaultSpan covers the last year up to the end of today.
func DefaultSpan(now time.Time) daterange.Range {
	return daterange.New(daterange.FloorDay(now.AddDate(-1, 0, 0)), daterange.FloorDay(now))
}

// Save stores a reading of user taken now.
func (s *Service) Save(ctx context.Context, user string, x, y float64) (models.PressureReading, error) {
	if !valid(x) || !valid(y) {
		return models.PressureReading{}, fmt.Errorf("%w: x=%v y=%v", ErrOutOfRange, x, y)
	}
	reading := models.PressureReading{User: user, Date: s.now(), X: x, Y: y}
	if err := s.store.SavePressure(ctx, &reading); err != nil {
		return models.PressureReading{}, err
	}
	log.WithFields(log.Fields{"user": user, "x": x, "y": y}).Info("pressure saved")
	return reading, nil
}

func valid(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// Fetch returns the readings of the days of span, optionally only those of
// the given users.
func (s *Service) Fetch(ctx context.Context, span daterange.Range, users []string) ([]models.PressureReading, error) {
	if span.IsEmpty() {
		return []models.PressureReading{}, nil
	}
	return s.store.FindPressure(ctx, span.Start(), daterange.CeilDay(span.End()), users)
}

// WeekMean is the mean of the readings of one ISO week.
type WeekMean struct {
	Week  time.Time `json:"week"`
	X     float64   `json:"x"`
	Y     float64   `json:"y"`
	Count int       `json:"count"`
}

// Summary compares the last full week with the week before it.
type Summary struct {
	Current   WeekMean  `json:"current"`
	Previous  *WeekMean `json:"previous,omitempty"`
	DiffX     float64   `json:"diff_x"`
	DiffY     float64   `json:"diff_y"`
	Responses int       `json:"responses"`
}

// WeeklySummary summarizes the last two full ISO weeks. ok is false when
// neither week has readings.
func (s *Service) WeeklySummary(ctx context.Context) (summary Summary, ok bool, err error) {
	now := s.now().In(s.loc)
	start := weekStart(now.AddDate(0, 0, -14))
	end := weekStart(now).Add(-time.Nanosecond)

	readings, err := s.store.FindPressure(ctx, start, end, nil)
	if err != nil {
		return Summary{}, false, err
	}
	summary, ok = Summarize(readings, now, s.loc)
	return summary, ok, nil
}

// Summarize groups readings by ISO week in loc and compares the latest
// week with the one before it.
func Summarize(readings []models.PressureReading, now time.Time, loc *time.Location) (Summary, bool) {
	lastWeek := weekStart(now.In(loc).AddDate(0, 0, -7))

	byWeek := map[time.Time]*WeekMean{}
	var weeks []time.Time
	responses := 0
	for _, r := range readings {
		week := weekStart(r.Date.In(loc))
		mean, seen := byWeek[week]
		if !seen {
			mean = &WeekMean{Week: week}
			byWeek[week] = mean
			weeks = append(weeks, week)
		}
		mean.X += r.X
		mean.Y += r.Y
		mean.Count++
		if !r.Date.Before(lastWeek) {
			responses++
		}
	}
	if len(weeks) == 0 {
		return Summary{}, false
	}

	latest, previous := weeks[0], time.Time{}
	for _, w := range weeks[1:] {
		if w.After(latest) {
			latest, previous = w, latest
		} else if w.After(previous) {
			previous = w
		}
	}

	average := func(m *WeekMean) WeekMean {
		return WeekMean{Week: m.Week, X: m.X / float64(m.Count), Y: m.Y / float64(m.Count), Count: m.Count}
	}
	summary := Summary{Current: average(byWeek[latest]), Responses: responses}
	if prev, found := byWeek[previous]; found {
		p := average(prev)
		summary.Previous = &p
		summary.DiffX = summary.Current.X - p.X
		summary.DiffY = summary.Current.Y - p.Y
	}
	return summary, true
}

// weekStart is the Monday midnight of the ISO week of t, in t's location.
func weekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.AddDate(0, 0, -offset).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
