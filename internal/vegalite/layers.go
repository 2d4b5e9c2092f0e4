package vegalite

import "kpi-backend/internal/window"

const (
	chartHeight = 350
	chartWidth  = 1300

	colorBlue   = "#4c78a8"
	colorRed    = "#e45756"
	colorOrange = "#F3AA60"
	colorNavy   = "#1D5B79"
)

// AverageDaysInMonth converts monthly targets into daily ones.
const AverageDaysInMonth = 30.4368499

// Params are the page inputs a dashboard spec depends on.
type Params struct {
	DataURL       string
	SpanDays      int
	MonthlyTarget float64
}

// Frame is the window over SpanDays days ending at the current day.
func (p Params) Frame() window.Frame {
	n := p.SpanDays - 1
	if n < 0 {
		n = 0
	}
	return window.Trailing(n)
}

// TargetBilling is the billing target over the window.
func (p Params) TargetBilling() float64 {
	return p.MonthlyTarget / AverageDaysInMonth * float64(p.Frame().Preceding)
}

func base(dataURL string) Spec {
	return Spec{
		Schema:     Schema,
		Background: "rgba(0,0,0,0%)",
		Data:       &Data{URL: dataURL, Format: &Format{Type: "json"}},
		Config:     &Config{View: View{Fill: "white", Width: chartWidth}},
	}
}

func filterKinds(kinds ...string) Transform {
	return Transform{Filter: FieldOneOf{Field: "id", OneOf: kinds}}
}

func timeUnit(unit, field, as string) Transform {
	return Transform{TimeUnit: unit, Field: field, As: as}
}

func calculate(expr, as string) Transform {
	return Transform{Calculate: expr, As: as}
}

func firstOfMonth() FieldPredicate {
	return FieldPredicate{Field: "value", TimeUnit: "date", Equal: 1}
}

// monthAxis labels days and marks month starts and week numbers.
func monthAxis() *Axis {
	dash := map[string]any{
		"condition": map[string]any{"test": firstOfMonth(), "value": []int{}},
		"value":     []int{5, 5},
	}
	return &Axis{
		Grid:         true,
		LabelAlign:   "left",
		LabelExpr:    "[timeFormat(datum.value, '%-d.%-m.'), timeFormat(datum.value, '%d') == '01' ? timeFormat(datum.value, '%B') : timeFormat(datum.value, '%u') == '1' ? 'vko ' + timeFormat(datum.value, '%V') : '']",
		TickSize:     30,
		TickCount:    "month",
		LabelOffset:  4,
		LabelPadding: -24,
		LabelBound:   true,
		GridDash:     dash,
		TickDash:     dash,
	}
}

// dayAxis is the dense axis of the rolling charts.
func dayAxis() *Axis {
	dash := map[string]any{
		"condition": map[string]any{"test": firstOfMonth(), "value": []int{}},
		"value":     []int{2, 6},
	}
	return &Axis{
		Grid:         true,
		LabelAlign:   "left",
		LabelExpr:    "[timeFormat(datum.value, '%d') == '01' ? timeFormat(datum.value, '%b') : '', timeFormat(datum.value, '%u') == '1' ? 'v' + timeFormat(datum.value, '%V') : '']",
		TickSize:     13,
		TickCount:    "date",
		LabelOffset:  3,
		LabelPadding: -11,
		LabelBound:   true,
		LabelOverlap: boolPtr(false),
		GridDash:     dash,
		GridOpacity: map[string]any{
			"condition": map[string]any{
				"test":  FieldPredicate{Or: []FieldPredicate{{Field: "value", TimeUnit: "day", Equal: "Monday"}, firstOfMonth()}},
				"value": 1,
			},
			"value": 0,
		},
		TickDash: dash,
		TickOpacity: map[string]any{
			"condition": map[string]any{"test": FieldPredicate{Or: []FieldPredicate{firstOfMonth()}}, "value": 1},
			"value":     0,
		},
	}
}

// nowRule draws a vertical line at the current time.
func nowRule() Spec {
	return Spec{
		Height:    chartHeight,
		Data:      &Data{Values: map[string]string{"dummy": "dummy"}},
		Transform: []Transform{calculate("now()", "current_time")},
		Mark:      &Mark{Type: "rule", StrokeDash: []int{8, 4}},
		Encoding: &Encoding{
			X:     &Channel{Field: "current_time", Type: "temporal"},
			Color: &Channel{Value: colorOrange},
			Size:  &Channel{Value: 3},
		},
	}
}

// targetRule draws a horizontal line at y.
func targetRule(y float64) Spec {
	return Spec{
		Height: chartHeight,
		Data:   &Data{Values: map[string]float64{"y": y}},
		Mark:   &Mark{Type: "rule", StrokeDash: []int{8, 4}},
		Encoding: &Encoding{
			Y:     &Channel{Field: "y", Type: "quantitative"},
			Color: &Channel{Value: "black"},
			Size:  &Channel{Value: 0.5},
		},
	}
}

func temporal(field string) *Channel {
	return &Channel{Field: field, Type: "temporal"}
}

func summed(field string) *Channel {
	return &Channel{Field: field, Type: "quantitative", Aggregate: "sum"}
}

func tipDate(field, title, format string) Channel {
	return Channel{Field: field, Type: "temporal", Title: title, Format: format, Aggregate: "max"}
}

func tipSum(field, title, format string) Channel {
	return Channel{Field: field, Type: "quantitative", Title: title, Format: format, Aggregate: "sum"}
}

func tipMax(field, title, format string) Channel {
	return Channel{Field: field, Type: "quantitative", Title: title, Format: format, Aggregate: "max"}
}
