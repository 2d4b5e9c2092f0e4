package kpi

import (
	"context"
	"time"

	"kpi-backend/internal/daterange"
	"kpi-backend/internal/models"
	"kpi-backend/internal/window"
)

// Rolling total columns.
const (
	ColAbsences      = "absences"
	ColBilling       = "billing"
	ColMaximum       = "maximum"
	ColHourCost      = "hour_cost"
	ColSalesvalue    = "salesvalue"
	ColSaleswork     = "saleswork"
	ColWorkhours     = "workhours"
	ColProductive    = "workhours_productive"
	ColUnproductive  = "workhours_unproductive"
	ColTotalHours    = "total_hours"
	ColCost          = "cost"
	ColMargin        = "margin"
	ColMarginPercent = "margin%"
	ColBillingRate   = "billing_rate"
	ColUncounted     = "uncounted_hours"
)

// TotalsColumns is the column order of exported totals.
var TotalsColumns = []string{
	ColAbsences, ColBilling, ColMaximum, ColSalesvalue,
	ColWorkhours, ColProductive, ColUnproductive, ColSaleswork,
	ColTotalHours, ColCost, ColMargin, ColMarginPercent,
	ColBillingRate, ColUncounted,
}

// summed are the columns that are rolled; the ratios are derived from the
// rolled sums afterwards.
var summed = []string{
	ColAbsences, ColBilling, ColMaximum, ColSalesvalue,
	ColWorkhours, ColProductive, ColUnproductive, ColSaleswork,
	ColTotalHours, ColCost, ColUncounted,
}

func totalsColumn(row models.MetricRow) string {
	if row.Kind != models.KindWorkhours {
		return row.Kind
	}
	if row.Productive {
		return ColProductive
	}
	return ColUnproductive
}

func byUser(row models.MetricRow) string { return row.User }

// PivotTotals turns merged rows into one record per day with the KPI
// columns summed over window days ending at that day.
func PivotTotals(rows []models.MetricRow, span daterange.Range, windowDays int, now time.Time) window.Table {
	perUser := window.Pivot(rows, span, byUser, totalsColumn).
		Calculate(ColWorkhours, func(r window.Record) float64 {
			return r.Get(ColProductive) + r.Get(ColUnproductive)
		}).
		Calculate(ColTotalHours, func(r window.Record) float64 {
			return r.Get(ColWorkhours) + r.Get(ColAbsences)
		}).
		Calculate(ColCost, func(r window.Record) float64 {
			hours := r.Get(ColMaximum)
			if !r.Day.After(now) {
				hours = r.Get(ColTotalHours) + r.Get(ColSaleswork)
			}
			return r.Get(ColHourCost) * hours
		}).
		Calculate(ColUncounted, func(r window.Record) float64 {
			if r.Day.After(now) {
				return 0
			}
			return max(r.Get(ColMaximum)-r.Get(ColTotalHours), 0)
		})

	preceding := windowDays - 1
	if preceding < 0 {
		preceding = 0
	}
	rolled := perUser.Collapse().Rolling(window.Trailing(preceding), summed...)

	return rolled.
		Calculate(ColMargin, func(r window.Record) float64 {
			return r.Get(ColBilling) - r.Get(ColCost)
		}).
		Calculate(ColMarginPercent, func(r window.Record) float64 {
			return ratio(r.Get(ColMargin), r.Get(ColBilling))
		}).
		Calculate(ColBillingRate, func(r window.Record) float64 {
			return ratio(r.Get(ColProductive), r.Get(ColMaximum)-r.Get(ColAbsences))
		})
}

func ratio(a, b float64) float64 {
	if b <= 0 {
		return 0
	}
	return a / b
}

// RollingTotals loads the days of span and rolls the KPI totals over
// windowDays.
func (s *Service) RollingTotals(ctx context.Context, span daterange.Range, windowDays int) (window.Table, error) {
	rows, err := s.LoadAndMerge(ctx, span, true)
	if err != nil {
		return window.Table{}, err
	}
	return PivotTotals(rows, span, windowDays, s.now()), nil
}

// WeeklyComparison holds the rolling totals of the latest day and their
// change over the preceding week.
type WeeklyComparison struct {
	Day     time.Time
	Current map[string]float64
	Diff    map[string]float64
	Billing []float64
}

// CompareWeeks rolls totals over the last 40 days, enough for a full
// 30 day window today and a week ago.
func (s *Service) CompareWeeks(ctx context.Context, windowDays int) (WeeklyComparison, error) {
	table, err := s.RollingTotals(ctx, daterange.Days(-40), windowDays)
	if err != nil {
		return WeeklyComparison{}, err
	}
	return Compare(table), nil
}

// Compare picks the last record of table and its difference to the record
// six records earlier.
func Compare(table window.Table) WeeklyComparison {
	n := len(table.Records)
	if n == 0 {
		return WeeklyComparison{Current: map[string]float64{}, Diff: map[string]float64{}}
	}
	last := table.Records[n-1]
	prev := table.Records[max(n-7, 0)]

	cmp := WeeklyComparison{
		Day:     last.Day,
		Current: map[string]float64{},
		Diff:    map[string]float64{},
		Billing: table.Column(ColBilling),
	}
	for _, col := range TotalsColumns {
		cmp.Current[col] = last.Get(col)
		cmp.Diff[col] = last.Get(col) - prev.Get(col)
	}
	return cmp
}
