package vegalite

import (
	"fmt"
	"time"

	"kpi-backend/internal/daterange"
)

const historyScheme = "category20c"

// ImputeDays lists every day from first to now as epoch milliseconds, the
// key values the realized series is imputed over.
func ImputeDays(first, now time.Time) []float64 {
	var days []float64
	for d := daterange.FloorDay(first); !d.After(now); d = d.AddDate(0, 0, 1) {
		days = append(days, float64(d.UnixMilli()))
	}
	return days
}

// BillingHistory compares each stored billing forecast, summed over the
// window that starts at its forecast date, with the billing that was
// realized over the same window. first is the earliest forecast date.
func BillingHistory(p Params, forecastURL, realizedURL string, first, now time.Time) Spec {
	span := p.Frame().Preceding
	frame := p.Frame()
	firstInRange := daterange.FloorDay(first).AddDate(0, 0, span)

	spec := base(forecastURL)
	spec.Transform = []Transform{
		timeUnit("yearmonthdate", "date", "date"),
		timeUnit("yearmonthdate", "forecast_date", "forecast_datevalue"),
	}

	axis := dayAxis()
	axis.Title = nil

	forecasts := Spec{
		Params: []Param{{
			Name:   "user-selection",
			Select: map[string]any{"type": "point", "fields": []string{"first_name"}},
			Bind:   "legend",
		}},
		Height: chartHeight,
		Transform: []Transform{
			{Filter: FieldPredicate{Field: "forecast_length", Lte: span}},
			{Aggregate: []AggregateOp{sum("value", "w_value")}, GroupBy: []string{"forecast_datevalue", "first_name"}},
			calculate(fmt.Sprintf("timeOffset('date', datum.forecast_datevalue, %d)", span), "new_date"),
			calculate("datum.new_date <= toDate(now())", "is_in_range"),
			{Filter: FieldPredicate{Field: "is_in_range", Equal: true}},
			{JoinAggregate: []AggregateOp{sum("w_value", "total_value")}, GroupBy: []string{"new_date"}},
		},
		Mark: &Mark{Type: "area", Tooltip: true},
		Encoding: &Encoding{
			X: &Channel{Field: "new_date", Type: "temporal", Axis: axis},
			Y: &Channel{
				Field:     "w_value",
				Type:      "quantitative",
				Aggregate: "sum",
				Axis:      &Axis{Title: fmt.Sprintf("Laskutus + ennuste, juokseva %d vrk", span+1)},
			},
			Color: &Channel{
				Condition: &Condition{
					Param: "user-selection",
					Field: "first_name",
					Type:  "nominal",
					Title: "Projektipäällikkö",
					Scale: &Scale{Scheme: historyScheme},
				},
				Value: "#bbb",
				Title: "Projektipäällikkö",
				Scale: &Scale{Scheme: historyScheme},
			},
			Opacity: &Channel{
				Condition: &Condition{Param: "user-selection", Value: 1.0},
				Value:     0.5,
			},
			Tooltip: []Channel{
				{Field: "forecast_datevalue", Type: "temporal", Title: "Aikavälin alku", Format: "%d.%m.%Y"},
				{Field: "new_date", Type: "temporal", Title: "Aikavälin loppu", Format: "%d.%m.%Y"},
				{Field: "first_name", Type: "nominal", Title: "Projektipäällikkö"},
				tipSum("w_value", "Laskutusennuste", "$.2f"),
				tipSum("total_value", "Laskutusennuste, yhteensä", "$.2f"),
			},
		},
	}

	realized := Spec{
		Data:   &Data{URL: realizedURL, Format: &Format{Type: "json"}},
		Height: chartHeight,
		Transform: []Transform{
			{Impute: "value", Key: "date", Value: 0, GroupBy: []string{"first_name"}, KeyVals: ImputeDays(first, now)},
			{Aggregate: []AggregateOp{sum("value", "value")}, GroupBy: []string{"date", "first_name"}},
			{
				Window:      []AggregateOp{sum("value", "w_value")},
				Sort:        []SortField{{Field: "date", Order: "ascending"}},
				IgnorePeers: boolPtr(false),
				GroupBy:     []string{"first_name"},
				Frame:       &frame,
			},
			calculate(fmt.Sprintf("datum.date >= toDate(%d) && datum.date <= toDate(now())", firstInRange.UnixMilli()), "is_in_range"),
			{Filter: FieldPredicate{Field: "is_in_range", Equal: true}},
			{Filter: FieldPredicate{Param: "user-selection"}},
		},
		Mark: &Mark{Type: "line", Point: true, Tooltip: true},
		Encoding: &Encoding{
			X: &Channel{Field: "date", TimeUnit: "yearmonthdate", Type: "temporal"},
			Y: summed("w_value"),
			Tooltip: []Channel{
				{Field: "date", Type: "temporal", Title: "Aikavälin loppu", Format: "%d.%m.%Y"},
				tipSum("w_value", "Toteutunut laskutus", "$.2f"),
			},
		},
	}

	spec.VConcat = []Spec{{Layer: []Spec{forecasts, realized}}}
	return spec
}
