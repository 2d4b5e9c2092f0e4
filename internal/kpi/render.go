package kpi

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/xuri/excelize/v2"

	"kpi-backend/internal/daterange"
	"kpi-backend/internal/window"
)

var columnTitles = map[string]string{
	ColAbsences:      "Poissaolot",
	ColBilling:       "Laskutus",
	ColMaximum:       "Työsop. mukainen maksimi",
	ColSalesvalue:    "Tilaukset",
	ColSaleswork:     "Tarjottu työ",
	ColWorkhours:     "Työtunnit",
	ColProductive:    "Asiakastyö",
	ColUnproductive:  "Sisäinen työ",
	ColTotalHours:    "Tunnit yhteensä",
	ColCost:          "Kulut",
	ColMargin:        "Kate",
	ColMarginPercent: "Kate-%",
	ColBillingRate:   "Laskutusaste",
	ColUncounted:     "Tuntikirjauksia hukassa",
}

func lineData(values []float64) []opts.LineData {
	data := make([]opts.LineData, len(values))
	for i, v := range values {
		data[i] = opts.LineData{Value: v}
	}
	return data
}

func rollingLine(table window.Table, title string, columns ...string) *charts.Line {
	days := table.Days()
	labels := make([]string, len(days))
	for i, d := range days {
		labels[i] = d.Format("2.1.")
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1300px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
	)
	line.SetXAxis(labels)
	for _, col := range columns {
		line.AddSeries(columnTitles[col], lineData(table.Column(col)))
	}
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(false)}))
	return line
}

// RenderRolling writes an HTML page charting the rolling totals.
func RenderRolling(w io.Writer, table window.Table, windowDays int) error {
	page := components.NewPage()
	page.PageTitle = "Tunnusluvut"
	page.AddCharts(
		rollingLine(table, fmt.Sprintf("Laskutus ja kulut, juokseva %d vrk", windowDays),
			ColBilling, ColCost, ColMargin, ColSalesvalue),
		rollingLine(table, fmt.Sprintf("Tunnit, juokseva %d vrk", windowDays),
			ColMaximum, ColTotalHours, ColProductive, ColUnproductive, ColAbsences, ColUncounted),
	)
	return page.Render(w)
}

// WriteTotalsXLSX writes the rolling totals as a spreadsheet, one row per
// day.
func WriteTotalsXLSX(w io.Writer, table window.Table) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const sheet = "Tunnusluvut"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	header := append([]any{"Päivä"}, make([]any, len(TotalsColumns))...)
	for i, col := range TotalsColumns {
		header[i+1] = columnTitles[col]
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	for i, record := range table.Records {
		row := make([]any, 0, len(TotalsColumns)+1)
		row = append(row, record.Day.Format(daterange.Layout))
		for _, col := range TotalsColumns {
			row = append(row, record.Get(col))
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}
	return f.Write(w)
}
