// Package web holds the HTML pages served by the dashboard routes.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"math"
)

//go:embed templates/*.html
var files embed.FS

var funcs = template.FuncMap{
	"percent": func(v float64) int { return int(math.Round(v * 100)) },
	"signed":  func(v float64) string { return fmt.Sprintf("%+d", int(math.Round(v*100))) },
}

// Templates parses every page. It panics on a broken template.
func Templates() *template.Template {
	return template.Must(template.New("").Funcs(funcs).ParseFS(files, "templates/*.html"))
}
