package vegalite

import (
	"fmt"

	"kpi-backend/internal/models"
	"kpi-backend/internal/window"
)

// SalesMargin charts monthly billing against cost, and the rolling margin
// over the window, per project manager.
func SalesMargin(p Params) Spec {
	frame := p.Frame()
	spec := base(p.DataURL)
	spec.Transform = []Transform{
		filterKinds(models.KindBilling, models.KindHourCost, models.KindMaximum,
			models.KindWorkhours, models.KindAbsences, models.KindSaleswork),
		timeUnit("yearmonthdate", "date", "datevalue"),
		calculate("if(datum.date <= now(), 1, 0)", "is_past"),
		{Pivot: "id", Value: "value", GroupBy: []string{"datevalue", "first_name", "is_past"}, Op: "sum"},
		calculate("datum.hour_cost * if(datum.is_past, datum.workhours + datum.absences + datum.saleswork, datum.maximum)", "cost"),
		{
			Window: []AggregateOp{
				sum("billing", "w_billing"),
				sum("cost", "w_cost"),
				sum("maximum", "w_maximum"),
				sum("workhours", "w_workhours"),
				sum("absences", "w_absences"),
				sum("saleswork", "w_saleswork"),
			},
			Sort:        []SortField{{Field: "datevalue", Order: "ascending"}},
			IgnorePeers: boolPtr(false),
			GroupBy:     []string{"first_name"},
			Frame:       &frame,
		},
		{Extent: "w_billing", Param: "w_billing_extent"},
	}

	monthly := func(field string) *Channel {
		return &Channel{Field: field, Type: "temporal", TimeUnit: "yearmonth"}
	}
	bar := &Mark{Type: "bar", Width: map[string]float64{"band": 0.9}}
	period := tipDate("datevalue", "Ajanjakso", "%B")
	periodEnd := tipDate("datevalue", "Jakson päätöspäivä", "%d.%m.%Y")

	months := Spec{Layer: []Spec{
		{
			Height: chartHeight,
			Mark:   bar,
			Encoding: &Encoding{
				X:       &Channel{Field: "datevalue", TimeUnit: "yearmonth", Type: "temporal", Axis: monthAxis()},
				Y:       &Channel{Field: "billing", Type: "quantitative", Aggregate: "sum", Axis: &Axis{Title: "Kate"}, Format: "$.2f"},
				Color:   &Channel{Value: colorBlue},
				Opacity: &Channel{Value: 0.3},
				Tooltip: []Channel{period, tipSum("billing", "Laskutus", "$.2f")},
			},
		},
		{
			Height:    chartHeight,
			Transform: []Transform{calculate("-datum.cost", "negative_cost")},
			Mark:      bar,
			Encoding: &Encoding{
				X:       monthly("datevalue"),
				Y:       summed("negative_cost"),
				Color:   &Channel{Value: colorRed},
				Opacity: &Channel{Value: 0.3},
				Tooltip: []Channel{period, tipSum("negative_cost", "Kulut", "$.2f")},
			},
		},
		{
			Height:    chartHeight,
			Transform: []Transform{calculate("datum.billing - datum.cost", "salesmargin")},
			Mark:      bar,
			Encoding: &Encoding{
				X: monthly("datevalue"),
				Y: summed("salesmargin"),
				Color: &Channel{
					Condition: &Condition{Test: FieldPredicate{Field: "salesmargin", Aggregate: "sum", Lte: 0}, Value: colorRed},
					Value:     colorBlue,
				},
				Tooltip: []Channel{period, tipSum("salesmargin", "Kate", "+$.2f")},
			},
		},
		nowRule(),
		targetRule(p.MonthlyTarget),
	}}

	marginPart := func(expr, as, color string) Spec {
		return Spec{
			Height: chartHeight,
			Transform: []Transform{
				{Aggregate: []AggregateOp{sum("w_billing", "w_billing"), sum("w_cost", "w_cost")}, GroupBy: []string{"datevalue"}},
				calculate(expr, as),
			},
			Mark: &Mark{Type: "area"},
			Encoding: &Encoding{
				X:       temporal("datevalue"),
				Y:       summed(as),
				Color:   &Channel{Value: color},
				Tooltip: []Channel{periodEnd, tipSum(as, "Kate", "+$.2f")},
			},
		}
	}

	rolling := Spec{Layer: []Spec{
		{
			Height: chartHeight,
			Mark:   &Mark{Type: "area"},
			Encoding: &Encoding{
				X:       &Channel{Field: "datevalue", Type: "temporal", Axis: dayAxis()},
				Y:       &Channel{Field: "w_billing", Type: "quantitative", Aggregate: "sum", Axis: &Axis{Title: "Kate"}},
				Color:   &Channel{Value: colorBlue},
				Opacity: &Channel{Value: 0.3},
				Tooltip: []Channel{periodEnd, tipSum("w_billing", "Laskutus", "$.2f")},
			},
		},
		{
			Height:    chartHeight,
			Transform: []Transform{calculate("-datum.w_cost", "w_negative_cost")},
			Mark:      &Mark{Type: "area"},
			Encoding: &Encoding{
				X:       temporal("datevalue"),
				Y:       summed("w_negative_cost"),
				Color:   &Channel{Value: colorRed},
				Opacity: &Channel{Value: 0.3},
				Tooltip: []Channel{periodEnd, tipSum("w_negative_cost", "Kulut", "$.2f")},
			},
		},
		marginPart("max(datum.w_billing-datum.w_cost, 0)", "w_salesmargin_p", colorBlue),
		marginPart("min(datum.w_billing-datum.w_cost, 0)", "w_salesmargin_n", colorRed),
		nowRule(),
		targetRule(p.TargetBilling()),
	}}

	spec.VConcat = []Spec{months, rolling}
	return spec
}

// Hours charts monthly hour entries by kind against the contract maximum,
// and the same as rolling sums over the window.
func Hours(p Params) Spec {
	frame := p.Frame()
	spec := base(p.DataURL)
	spec.Width = chartWidth
	spec.Transform = []Transform{
		filterKinds(models.KindMaximum, models.KindWorkhours, models.KindAbsences, models.KindSaleswork),
		timeUnit("yearmonthdate", "date", "datevalue"),
		timeUnit("yearmonth", "date", "monthvalue"),
		calculate("if(datum.date > now(), true, false)", "is_forecast"),
		calculate("if(datum.productive === false, false, true)", "is_productive"),
		calculate("if(datum.id == 'workhours', datum.value, 0)", "workhours"),
		calculate("if(datum.id != 'maximum', datum.value, 0)", "hours"),
		calculate("if(datum.id == 'workhours' && datum.productive, datum.value, 0)", "productive_workhours"),
		calculate("if(datum.id == 'absences', datum.value, 0)", "absences"),
		calculate("if(datum.id == 'saleswork', datum.value, 0)", "saleswork"),
		calculate("if(datum.id == 'maximum', datum.value, 0)", "maximum"),
		calculate("if(datum.id == 'workhours', if(datum.productive, 'workhours_productive', 'workhours_unproductive'), datum.id)", "id"),
		{
			Window: []AggregateOp{
				sum("value", "w_value"),
				sum("maximum", "w_maximum"),
				sum("workhours", "w_workhours"),
				sum("productive_workhours", "w_productive_workhours"),
				sum("absences", "w_absences"),
				sum("saleswork", "w_saleswork"),
			},
			Sort:        []SortField{{Field: "datevalue", Order: "ascending"}},
			IgnorePeers: boolPtr(false),
			GroupBy:     []string{"user", "id"},
			Frame:       &frame,
		},
	}

	totals := []AggregateOp{
		sum("maximum", "total_maximum"),
		sum("hours", "total_hours"),
		sum("workhours", "total_workhours"),
		sum("productive_workhours", "total_productive_workhours"),
		sum("absences", "total_absences"),
		sum("saleswork", "total_saleswork"),
	}

	months := Spec{Layer: []Spec{
		{
			Height: chartHeight,
			Transform: []Transform{
				{JoinAggregate: totals, GroupBy: []string{"monthvalue"}},
				{Filter: "datum.id != 'maximum'"},
			},
			Mark: &Mark{Type: "bar", Width: map[string]float64{"band": 0.9}},
			Encoding: &Encoding{
				X:     &Channel{Field: "datevalue", TimeUnit: "yearmonth", Type: "temporal", Axis: monthAxis()},
				Y:     &Channel{Field: "value", Type: "quantitative", Aggregate: "sum", Title: "Tuntikirjauksia"},
				Color: &Channel{Field: "id", Type: "nominal"},
				Tooltip: []Channel{
					tipDate("datevalue", "Ajanjakso", "%B"),
					tipMax("total_maximum", "Työsop. mukainen maksimi", ".1f"),
					tipMax("total_hours", "Tunteja yhteensä", ".1f"),
					tipMax("total_workhours", "Työtunteja", ".1f"),
					tipMax("total_productive_workhours", "Joista tuottavia", ".1f"),
					tipMax("total_saleswork", "Tarjottua työtä", ".1f"),
					tipMax("total_absences", "Poissaoloja", ".1f"),
				},
			},
		},
		{
			Height:    chartHeight,
			Transform: []Transform{{Filter: "datum.id == 'maximum'"}},
			Mark:      &Mark{Type: "line", Point: true, Interpolate: "step-after", StrokeDash: []int{8, 4}},
			Encoding: &Encoding{
				X:     &Channel{Field: "datevalue", TimeUnit: "yearmonth", Type: "temporal"},
				Y:     summed("value"),
				Color: &Channel{Value: colorNavy},
			},
		},
		nowRule(),
	}}

	rolling := Spec{Layer: []Spec{
		{
			Height: chartHeight,
			Transform: []Transform{
				{Impute: "value", Key: "datevalue", Value: 0, GroupBy: []string{"datevalue", "id"}},
				{
					Aggregate: []AggregateOp{
						sum("maximum", "maximum"),
						sum("hours", "hours"),
						sum("value", "agg_value"),
						sum("workhours", "workhours"),
						sum("productive_workhours", "productive_workhours"),
						sum("absences", "absences"),
						sum("saleswork", "saleswork"),
					},
					GroupBy: []string{"datevalue", "id"},
				},
				{
					JoinAggregate: []AggregateOp{
						sum("maximum", "total_maximum"),
						sum("hours", "total_hours"),
						sum("workhours", "total_workhours"),
						sum("productive_workhours", "total_productive_workhours"),
						sum("absences", "total_absences"),
						sum("saleswork", "total_saleswork"),
					},
					GroupBy: []string{"datevalue"},
				},
				{Filter: "datum.id != 'maximum'"},
				{
					Sort: []SortField{{Field: "datevalue"}},
					Window: []AggregateOp{
						sum("agg_value", "w_value"),
						sum("total_hours", "w_hours"),
						sum("total_maximum", "w_maximum"),
						sum("total_workhours", "w_workhours"),
						sum("total_productive_workhours", "w_productive_workhours"),
						sum("total_saleswork", "w_saleswork"),
						sum("total_absences", "w_absences"),
					},
					Frame:   &frame,
					GroupBy: []string{"id"},
				},
			},
			Mark: &Mark{Type: "area", Tooltip: true},
			Encoding: &Encoding{
				X: &Channel{Field: "datevalue", Type: "temporal", Axis: dayAxis()},
				Y: &Channel{Field: "w_value", Type: "quantitative", Aggregate: "sum", Title: "Tuntikirjauksia"},
				Color: &Channel{
					Field: "id",
					Type:  "nominal",
					Title: "Tuntikirjaukset",
					Scale: &Scale{
						Domain: []string{"workhours_productive", "workhours_unproductive", models.KindSaleswork, models.KindAbsences},
						Range:  []string{"#EF6262", "#f59e8c", colorNavy, "#468B97"},
					},
					Legend: &Legend{LabelExpr: "datum.label == 'workhours_productive' ? 'Asiakastyö' : datum.label == 'workhours_unproductive' ? 'Sisäinen työ' : datum.label == 'saleswork' ? 'Tarjottu työ' : datum.label == 'absences' ? 'Poissaolot' : datum.label"},
				},
				Tooltip: []Channel{
					tipDate("datevalue", "Jakson päätöspäivä", "%d.%m.%Y"),
					tipMax("w_maximum", "Työsop. mukainen maksimi", ".1f"),
					tipMax("w_hours", "Tunteja yhteensä", ".1f"),
					tipSum("w_workhours", "Työtunteja", ".1f"),
					tipMax("w_productive_workhours", "Joista tuottavia", ".1f"),
					tipMax("w_saleswork", "Tarjottua työtä", ".1f"),
					tipMax("w_absences", "Poissaoloja", ".1f"),
				},
			},
		},
		{
			Height: chartHeight,
			Transform: []Transform{
				{Filter: "datum.id == 'maximum'"},
				{Impute: "value", Key: "datevalue", Value: 0, GroupBy: []string{"datevalue", "id"}},
				{Aggregate: []AggregateOp{sum("value", "agg_value")}, GroupBy: []string{"datevalue", "id"}},
				{
					Sort:    []SortField{{Field: "datevalue"}},
					Window:  []AggregateOp{sum("agg_value", "w_value")},
					Frame:   &frame,
					GroupBy: []string{"id"},
				},
			},
			Mark: &Mark{Type: "line", StrokeDash: []int{8, 4}},
			Encoding: &Encoding{
				X:     &Channel{Field: "datevalue", TimeUnit: "yearmonthdate", Type: "temporal"},
				Y:     summed("w_value"),
				Color: &Channel{Value: colorNavy},
			},
		},
		nowRule(),
	}}

	spec.VConcat = []Spec{months, rolling}
	return spec
}

// Sales charts cumulative sales value against a linear target that
// reaches TargetBilling over the window.
func Sales(p Params) Spec {
	cumulative := window.Cumulative()
	spec := base(p.DataURL)
	spec.Transform = []Transform{
		filterKinds(models.KindSalesvalue, models.KindMaximum),
		timeUnit("yearmonthdate", "date", "datevalue"),
		timeUnit("yearmonth", "date", "monthvalue"),
		{Impute: "value", Key: "datevalue", Value: 0, GroupBy: []string{"datevalue", "id"}},
		filterKinds(models.KindSalesvalue),
		{Aggregate: []AggregateOp{sum("value", "value")}, GroupBy: []string{"datevalue"}},
		calculate(fmt.Sprintf("%g / %d", p.TargetBilling(), maxInt(p.Frame().Preceding, 1)), "target"),
		{
			Window:      []AggregateOp{sum("value", "w_value"), sum("target", "w_target")},
			Sort:        []SortField{{Field: "datevalue", Order: "ascending"}},
			IgnorePeers: boolPtr(false),
			Frame:       &cumulative,
		},
		calculate("datum.w_value - datum.w_target", "w_diff"),
		calculate("min(datum.w_diff, 0)", "w_pos_diff"),
		calculate("max(datum.w_diff, 0)", "w_neg_diff"),
	}

	diffArea := func(field, color string, opacity float64) Spec {
		return Spec{
			Height: chartHeight,
			Mark:   &Mark{Type: "area"},
			Encoding: &Encoding{
				X:       temporal("datevalue"),
				Y:       &Channel{Field: field, Type: "quantitative"},
				Color:   &Channel{Value: color},
				Opacity: &Channel{Value: opacity},
			},
		}
	}

	spec.VConcat = []Spec{{Layer: []Spec{
		{
			Height: chartHeight,
			Mark:   &Mark{Type: "area"},
			Encoding: &Encoding{
				X:       &Channel{Field: "datevalue", TimeUnit: "yearmonthdate", Type: "temporal", Axis: monthAxis()},
				Y:       &Channel{Field: "w_value", Type: "quantitative", Aggregate: "sum", Axis: &Axis{Title: "Myynti"}, Format: "$.2f"},
				Color:   &Channel{Value: colorBlue},
				Opacity: &Channel{Value: 0.3},
				Tooltip: []Channel{
					tipDate("datevalue", "Päiväys", "%d.%m.%Y"),
					tipSum("w_target", "Kumuloituva tavoite", "$.2f"),
					tipSum("w_value", "Kumuloituva myynti", "$.2f"),
				},
			},
		},
		{
			Height: chartHeight,
			Mark:   &Mark{Type: "line", StrokeDash: []int{8, 4}},
			Encoding: &Encoding{
				X:     temporal("datevalue"),
				Y:     &Channel{Field: "w_target", Type: "quantitative"},
				Color: &Channel{Value: colorBlue},
				Size:  &Channel{Value: 2},
			},
		},
		diffArea("w_pos_diff", colorRed, 0.8),
		diffArea("w_neg_diff", colorBlue, 0.9),
		{
			Height:    chartHeight,
			Data:      &Data{URL: p.DataURL, Format: &Format{Type: "json"}},
			Transform: []Transform{filterKinds(models.KindSalesvalue)},
			Mark:      &Mark{Type: "bar"},
			Encoding: &Encoding{
				X:     temporal("date"),
				Y:     &Channel{Field: "value", Type: "quantitative"},
				Color: &Channel{Value: colorBlue},
				Tooltip: []Channel{
					{Field: "value", Type: "quantitative", Title: "Myyntityön arvo", Format: "$.2f"},
					{Field: "project", Type: "nominal", Title: "Myyntityö"},
					{Field: "sold_by", Type: "nominal", Title: "Myyjä"},
				},
			},
		},
		nowRule(),
	}}}
	return spec
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
