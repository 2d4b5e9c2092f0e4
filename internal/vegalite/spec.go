// Package vegalite builds the Vega-Lite v5 chart specifications that the
// dashboard pages hand to vega-embed.
package vegalite

import "kpi-backend/internal/window"

const Schema = "https://vega.github.io/schema/vega-lite/v5.json"

type Spec struct {
	Schema     string      `json:"$schema,omitempty"`
	Background string      `json:"background,omitempty"`
	Data       *Data       `json:"data,omitempty"`
	Config     *Config     `json:"config,omitempty"`
	Params     []Param     `json:"params,omitempty"`
	Width      int         `json:"width,omitempty"`
	Height     int         `json:"height,omitempty"`
	Transform  []Transform `json:"transform,omitempty"`
	Mark       *Mark       `json:"mark,omitempty"`
	Encoding   *Encoding   `json:"encoding,omitempty"`
	Layer      []Spec      `json:"layer,omitempty"`
	VConcat    []Spec      `json:"vconcat,omitempty"`
}

type Data struct {
	URL    string  `json:"url,omitempty"`
	Values any     `json:"values,omitempty"`
	Format *Format `json:"format,omitempty"`
}

type Format struct {
	Type  string            `json:"type"`
	Parse map[string]string `json:"parse,omitempty"`
}

type Config struct {
	View View `json:"view"`
}

type View struct {
	Fill  string `json:"fill,omitempty"`
	Width int    `json:"width,omitempty"`
}

type Param struct {
	Name   string `json:"name"`
	Select any    `json:"select,omitempty"`
	Bind   string `json:"bind,omitempty"`
}

// Transform is one step of a transform chain. Only the fields of a single
// transform kind are set on each value.
type Transform struct {
	Filter any `json:"filter,omitempty"`

	TimeUnit string `json:"timeUnit,omitempty"`
	Field    string `json:"field,omitempty"`

	Calculate string `json:"calculate,omitempty"`

	Impute  string    `json:"impute,omitempty"`
	Key     string    `json:"key,omitempty"`
	KeyVals []float64 `json:"keyvals,omitempty"`

	Pivot string `json:"pivot,omitempty"`
	Op    string `json:"op,omitempty"`

	// Value is the impute fill value or the pivot value field.
	Value any `json:"value,omitempty"`

	Aggregate     []AggregateOp `json:"aggregate,omitempty"`
	JoinAggregate []AggregateOp `json:"joinaggregate,omitempty"`

	Window      []AggregateOp `json:"window,omitempty"`
	Sort        []SortField   `json:"sort,omitempty"`
	IgnorePeers *bool         `json:"ignorePeers,omitempty"`
	Frame       *window.Frame `json:"frame,omitempty"`

	GroupBy []string `json:"groupby,omitempty"`

	Extent string `json:"extent,omitempty"`
	Param  string `json:"param,omitempty"`

	As string `json:"as,omitempty"`
}

type AggregateOp struct {
	Op    string `json:"op"`
	Field string `json:"field,omitempty"`
	As    string `json:"as"`
}

type SortField struct {
	Field string `json:"field"`
	Order string `json:"order,omitempty"`
}

// FieldOneOf filters rows whose field is one of the values.
type FieldOneOf struct {
	Field string   `json:"field"`
	OneOf []string `json:"oneOf"`
}

type FieldPredicate struct {
	Field     string           `json:"field,omitempty"`
	TimeUnit  string           `json:"timeUnit,omitempty"`
	Equal     any              `json:"equal,omitempty"`
	Lte       any              `json:"lte,omitempty"`
	Aggregate string           `json:"aggregate,omitempty"`
	Param     string           `json:"param,omitempty"`
	Or        []FieldPredicate `json:"or,omitempty"`
}

type Mark struct {
	Type        string `json:"type"`
	StrokeDash  []int  `json:"strokeDash,omitempty"`
	Width       any    `json:"width,omitempty"`
	Point       bool   `json:"point,omitempty"`
	Interpolate string `json:"interpolate,omitempty"`
	Tooltip     bool   `json:"tooltip,omitempty"`
}

type Encoding struct {
	X       *Channel  `json:"x,omitempty"`
	Y       *Channel  `json:"y,omitempty"`
	Color   *Channel  `json:"color,omitempty"`
	Opacity *Channel  `json:"opacity,omitempty"`
	Size    *Channel  `json:"size,omitempty"`
	Tooltip []Channel `json:"tooltip,omitempty"`
}

type Channel struct {
	Field     string     `json:"field,omitempty"`
	TimeUnit  string     `json:"timeUnit,omitempty"`
	Type      string     `json:"type,omitempty"`
	Aggregate string     `json:"aggregate,omitempty"`
	Title     string     `json:"title,omitempty"`
	Format    string     `json:"format,omitempty"`
	Axis      *Axis      `json:"axis,omitempty"`
	Scale     *Scale     `json:"scale,omitempty"`
	Legend    *Legend    `json:"legend,omitempty"`
	Condition *Condition `json:"condition,omitempty"`
	Value     any        `json:"value,omitempty"`
}

type Condition struct {
	Test  any    `json:"test,omitempty"`
	Param string `json:"param,omitempty"`
	Field string `json:"field,omitempty"`
	Type  string `json:"type,omitempty"`
	Title string `json:"title,omitempty"`
	Scale *Scale `json:"scale,omitempty"`
	Value any    `json:"value,omitempty"`
}

// Axis always carries a title. A nil title hides it.
type Axis struct {
	Title        any    `json:"title"`
	Grid         bool   `json:"grid,omitempty"`
	LabelAlign   string `json:"labelAlign,omitempty"`
	LabelExpr    string `json:"labelExpr,omitempty"`
	TickSize     int    `json:"tickSize,omitempty"`
	TickCount    string `json:"tickCount,omitempty"`
	LabelOffset  int    `json:"labelOffset,omitempty"`
	LabelPadding int    `json:"labelPadding,omitempty"`
	LabelBound   bool   `json:"labelBound,omitempty"`
	LabelOverlap *bool  `json:"labelOverlap,omitempty"`
	GridDash     any    `json:"gridDash,omitempty"`
	GridOpacity  any    `json:"gridOpacity,omitempty"`
	TickDash     any    `json:"tickDash,omitempty"`
	TickOpacity  any    `json:"tickOpacity,omitempty"`
}

type Scale struct {
	Domain []string `json:"domain,omitempty"`
	Range  []string `json:"range,omitempty"`
	Scheme string   `json:"scheme,omitempty"`
}

type Legend struct {
	LabelExpr string `json:"labelExpr,omitempty"`
}

func boolPtr(v bool) *bool { return &v }

func sum(field, as string) AggregateOp {
	return AggregateOp{Op: "sum", Field: field, As: as}
}
