package pressure

import (
	"io"
	"text/template"

	"kpi-backend/internal/models"
)

const (
	plotSize  = 500
	crossSize = 5
)

type point struct {
	X, Y  float64
	Color string
}

type plot struct {
	Size       int
	Cross      float64
	Background [3]string
	Points     []point
	Mean       *point
	Count      int
}

var svgTemplate = template.Must(template.New("pressure.svg").
	Funcs(template.FuncMap{"mul": func(a, b float64) float64 { return a * b }}).
	Parse(`<svg xmlns="http://www.w3.org/2000/svg" width="{{.Size}}" height="{{.Size}}" viewBox="0 0 {{.Size}} {{.Size}}">
<defs><linearGradient id="bg" x1="0" y1="1" x2="1" y2="0">
<stop offset="0" stop-color="{{index .Background 0}}"/>
<stop offset="0.5" stop-color="{{index .Background 1}}"/>
<stop offset="1" stop-color="{{index .Background 2}}"/>
</linearGradient></defs>
<rect width="{{.Size}}" height="{{.Size}}" fill="url(#bg)"/>
<g stroke="rgba(0, 0, 0, 50%)" stroke-width="2" stroke-linecap="round">
{{- range .Points}}
<path d="M{{printf "%.1f" .X}} {{printf "%.1f" .Y}}m-{{$.Cross}} -{{$.Cross}}l{{mul $.Cross 2}} {{mul $.Cross 2}}m0 -{{mul $.Cross 2}}l-{{mul $.Cross 2}} {{mul $.Cross 2}}"/>
{{- end}}
</g>
{{- with .Mean}}
<g stroke-linecap="round">
<path stroke="rgba(0, 0, 0, 70%)" stroke-width="6" d="M{{printf "%.1f" .X}} {{printf "%.1f" .Y}}m-10 -10l20 20m0 -20l-20 20"/>
<path stroke="{{.Color}}" stroke-width="3" d="M{{printf "%.1f" .X}} {{printf "%.1f" .Y}}m-10 -10l20 20m0 -20l-20 20"/>
</g>
<text x="{{printf "%.1f" .X}}" y="{{printf "%.1f" .Y}}" dx="20" dy="5" font-family="Lato, sans-serif" font-size="18">keskiarvo ({{$.Count}})</text>
{{- end}}
</svg>
`))

// RenderSVG plots readings as crosses on the colour gradient, with their
// mean marked. Workload grows to the right and urgency upwards.
func RenderSVG(w io.Writer, readings []models.PressureReading) error {
	size := float64(plotSize)
	p := plot{
		Size:       plotSize,
		Cross:      crossSize,
		Background: [3]string{Color(0, 0, 30), Color(0.5, 0.5, 30), Color(1, 1, 30)},
		Count:      len(readings),
	}

	var sumX, sumY float64
	for _, r := range readings {
		p.Points = append(p.Points, point{X: r.X * size, Y: (1 - r.Y) * size})
		sumX += r.X
		sumY += r.Y
	}
	if n := float64(len(readings)); n > 0 {
		mx, my := sumX/n, sumY/n
		p.Mean = &point{X: mx * size, Y: (1 - my) * size, Color: Color(mx, my, 100)}
	}
	return svgTemplate.Execute(w, p)
}
