// Package process turns fetched metric rows into daily rows that the
// dashboards can aggregate.
package process

import (
	"time"

	"kpi-backend/internal/calendar"
	"kpi-backend/internal/daterange"
	"kpi-backend/internal/models"
)

// Rules decide how the span rows of one data set are spread over days.
type Rules struct {
	Name string

	ZeroOnHoliday   func(kind string) bool
	ScaleByDays     func(kind string) bool
	ScaleByWorkdays func(kind string) bool

	// CullPastKinds lists kinds whose unraveled forecast days before today
	// are dropped.
	CullPastKinds []string

	// OpenEndedToSpanEnd closes rows that have a start but no end at the
	// end of the processed span.
	OpenEndedToSpanEnd bool
}

func is(kinds ...string) func(string) bool {
	return func(kind string) bool {
		for _, k := range kinds {
			if k == kind {
				return true
			}
		}
		return false
	}
}

func always(string) bool { return true }
func never(string) bool  { return false }

var (
	Hours = Rules{
		Name:            "hours",
		ZeroOnHoliday:   is(models.KindAbsences),
		ScaleByDays:     is(models.KindAbsences),
		ScaleByWorkdays: is(models.KindWorkhours, models.KindSaleswork),
		CullPastKinds:   []string{models.KindWorkhours, models.KindSaleswork},
	}
	Billing = Rules{
		Name:            "billing",
		ZeroOnHoliday:   always,
		ScaleByDays:     never,
		ScaleByWorkdays: always,
		CullPastKinds:   []string{models.KindBilling},
	}
	Sales = Rules{
		Name:            "sales",
		ZeroOnHoliday:   never,
		ScaleByDays:     never,
		ScaleByWorkdays: never,
	}
	Users = Rules{
		Name:               "users",
		ZeroOnHoliday:      is(models.KindMaximum),
		ScaleByDays:        never,
		ScaleByWorkdays:    never,
		OpenEndedToSpanEnd: true,
	}
)

type Processor struct {
	Calendar *calendar.Calendar
	Now      func() time.Time
}

func NewProcessor(cal *calendar.Calendar) *Processor {
	return &Processor{Calendar: cal, Now: time.Now}
}

// Process orders span ends, unravels span rows into days, culls the days
// outside span and drops forecast days that are already in the past.
func (p *Processor) Process(rows []models.MetricRow, span daterange.Range, rules Rules) []models.MetricRow {
	if span.IsEmpty() {
		return nil
	}

	prepared := make([]models.MetricRow, 0, len(rows))
	for _, row := range rows {
		if rules.OpenEndedToSpanEnd && row.Date == nil && row.StartDate != nil && row.EndDate == nil {
			end := span.End()
			row.EndDate = &end
		}
		ensureOrder(&row)
		prepared = append(prepared, row)
	}

	unraveled := p.Unravel(prepared, rules)
	unraveled = CullToSpan(unraveled, span)
	if len(rules.CullPastKinds) > 0 {
		unraveled = CullPastForecasts(unraveled, daterange.FloorDay(p.Now()), rules.CullPastKinds)
	}
	return unraveled
}

// Unravel spreads every row that has a start and an end date but no date
// into one row per day. Other rows are returned unchanged.
func (p *Processor) Unravel(rows []models.MetricRow, rules Rules) []models.MetricRow {
	result := make([]models.MetricRow, 0, len(rows))
	for _, row := range rows {
		if row.Date != nil || row.StartDate == nil || row.EndDate == nil {
			result = append(result, row)
			continue
		}

		days := daterange.New(*row.StartDate, *row.EndDate)
		scale := 1.0
		if rules.ScaleByDays(row.Kind) {
			scale = float64(days.Len())
		}
		if rules.ScaleByWorkdays(row.Kind) {
			scale = float64(p.Calendar.WorkdaysBetween(days.Start(), days.End()))
		}
		zeroOnHoliday := rules.ZeroOnHoliday(row.Kind)

		days.EachDay(func(day time.Time) {
			daily := row
			date := day
			daily.Date = &date
			daily.Unraveled = true

			factor := 0.0
			if scale > 0 && !(zeroOnHoliday && !p.Calendar.IsWorkday(day)) {
				factor = 1 / scale
			}
			daily.Value = row.Value * factor
			daily.Billing = row.Billing * factor
			daily.Expense = row.Expense * factor
			daily.Revenue = row.Revenue * factor
			daily.LaborExpense = row.LaborExpense * factor
			result = append(result, daily)
		})
	}
	return result
}

// CullToSpan keeps rows dated within span.
func CullToSpan(rows []models.MetricRow, span daterange.Range) []models.MetricRow {
	result := rows[:0:0]
	for _, row := range rows {
		if row.Date != nil && span.Contains(*row.Date) {
			result = append(result, row)
		}
	}
	return result
}

// CullPastForecasts drops unraveled rows of the given kinds dated before
// cutoff. Rows that were dated when fetched are realized and always kept.
func CullPastForecasts(rows []models.MetricRow, cutoff time.Time, kinds []string) []models.MetricRow {
	cullable := is(kinds...)
	result := rows[:0:0]
	for _, row := range rows {
		if cullable(row.Kind) && row.Unraveled && row.Date != nil && row.Date.Before(cutoff) {
			continue
		}
		result = append(result, row)
	}
	return result
}

func ensureOrder(row *models.MetricRow) {
	if row.StartDate != nil && row.EndDate != nil && row.EndDate.Before(*row.StartDate) {
		row.StartDate, row.EndDate = row.EndDate, row.StartDate
	}
}
