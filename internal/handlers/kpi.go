package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"kpi-backend/internal/daterange"
	"kpi-backend/internal/kpi"
	"kpi-backend/internal/models"
	"kpi-backend/internal/vegalite"
	"kpi-backend/internal/window"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type KPIHandler struct {
	Service  *kpi.Service
	Settings *SettingsHandler
	Now      func() time.Time
}

func NewKPIHandler(svc *kpi.Service, settings *SettingsHandler) *KPIHandler {
	return &KPIHandler{Service: svc, Settings: settings, Now: time.Now}
}

func (h *KPIHandler) defaultSpan() daterange.Range {
	return kpi.DefaultSpan(h.Now())
}

func (h *KPIHandler) rows(c *gin.Context, load func(context.Context, daterange.Range) ([]models.MetricRow, error)) {
	span, ok := spanQuery(c, h.defaultSpan())
	if !ok {
		return
	}
	rows, err := load(c.Request.Context(), span)
	if err != nil {
		log.WithError(err).WithField("path", c.FullPath()).Error("loading rows failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load data"})
		return
	}
	if rows == nil {
		rows = []models.MetricRow{}
	}
	c.JSON(http.StatusOK, rows)
}

func (h *KPIHandler) Totals(c *gin.Context)      { h.rows(c, h.Service.Totals) }
func (h *KPIHandler) Billing(c *gin.Context)     { h.rows(c, h.Service.Billing) }
func (h *KPIHandler) Hours(c *gin.Context)       { h.rows(c, h.Service.Hours) }
func (h *KPIHandler) SalesMargin(c *gin.Context) { h.rows(c, h.Service.SalesMargin) }

func (h *KPIHandler) BillingHistory(c *gin.Context) {
	rows, err := h.Service.BillingHistory(c.Request.Context())
	if err != nil {
		log.WithError(err).Error("billing history failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load data"})
		return
	}
	if rows == nil {
		rows = []models.MetricRow{}
	}
	c.JSON(http.StatusOK, rows)
}

// rollingTable reads the span and window parameters and rolls the totals.
func (h *KPIHandler) rollingTable(c *gin.Context) (kpiTable, bool) {
	span, ok := spanQuery(c, h.defaultSpan())
	if !ok {
		return kpiTable{}, false
	}
	windowDays, ok := intQuery(c, "window", defaultSpanDays)
	if !ok {
		return kpiTable{}, false
	}
	table, err := h.Service.RollingTotals(c.Request.Context(), span, windowDays)
	if err != nil {
		log.WithError(err).Error("rolling totals failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load data"})
		return kpiTable{}, false
	}
	return kpiTable{table: table, span: span, windowDays: windowDays}, true
}

func (h *KPIHandler) RollingChart(c *gin.Context) {
	t, ok := h.rollingTable(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := kpi.RenderRolling(&buf, t.table, t.windowDays); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render chart"})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (h *KPIHandler) TotalsXLSX(c *gin.Context) {
	t, ok := h.rollingTable(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := kpi.WriteTotalsXLSX(&buf, t.table); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to write spreadsheet"})
		return
	}
	name := fmt.Sprintf("kpi_%s_%s.xlsx", t.span.Start().Format(daterange.Layout), t.span.End().Format(daterange.Layout))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// specParams reads span, target and the date range of a dashboard.
func (h *KPIHandler) specParams(c *gin.Context) (vegalite.Params, daterange.Range, bool) {
	defaults := h.Settings.load(c.Request.Context())
	span, ok := spanQuery(c, h.defaultSpan())
	if !ok {
		return vegalite.Params{}, daterange.Range{}, false
	}
	spanDays, ok := intQuery(c, "span", defaults.SpanDays)
	if !ok {
		return vegalite.Params{}, daterange.Range{}, false
	}
	target, set, ok := floatQuery(c, "target")
	if !ok {
		return vegalite.Params{}, daterange.Range{}, false
	}
	if !set {
		target = float64(defaults.MonthlyBillingTarget)
	}
	return vegalite.Params{SpanDays: spanDays, MonthlyTarget: target}, span, true
}

var errUnknownChart = errors.New("unknown chart")

func (h *KPIHandler) buildSpec(ctx context.Context, chart string, p vegalite.Params, span daterange.Range) (vegalite.Spec, error) {
	query := "?" + spanValues(span).Encode()
	switch chart {
	case "salesmargin":
		p.DataURL = "/kpi/salesmargin.json" + query
		return vegalite.SalesMargin(p), nil
	case "hours":
		p.DataURL = "/kpi/hours.json" + query
		return vegalite.Hours(p), nil
	case "sales":
		p.DataURL = "/kpi/totals" + query
		return vegalite.Sales(p), nil
	case "history":
		first, ok, err := h.Service.EarliestForecastDate(ctx)
		if err != nil {
			return vegalite.Spec{}, err
		}
		now := h.Now()
		if !ok {
			first = now
		}
		realized := "/kpi/billing?" + spanValues(daterange.New(first, now)).Encode()
		return vegalite.BillingHistory(p, "/kpi/billing_history", realized, first, now), nil
	}
	return vegalite.Spec{}, fmt.Errorf("%w: %q", errUnknownChart, chart)
}

func (h *KPIHandler) Spec(c *gin.Context) {
	p, span, ok := h.specParams(c)
	if !ok {
		return
	}
	spec, err := h.buildSpec(c.Request.Context(), c.Param("chart"), p, span)
	if errors.Is(err, errUnknownChart) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		log.WithError(err).Error("building chart spec failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load data"})
		return
	}
	// Vega expressions contain < > and &.
	c.PureJSON(http.StatusOK, spec)
}

func embedOptions() template.JS {
	raw, err := json.Marshal(vegalite.FinnishEmbedOptions())
	if err != nil {
		return "{}"
	}
	return template.JS(raw)
}

func (h *KPIHandler) page(c *gin.Context, title string, charts []string) {
	p, span, ok := h.specParams(c)
	if !ok {
		return
	}
	query := spanValues(span)
	query.Set("span", fmt.Sprint(p.SpanDays))
	query.Set("target", fmt.Sprint(p.MonthlyTarget))

	c.HTML(http.StatusOK, "kpi.html", gin.H{
		"title":   title,
		"charts":  charts,
		"query":   query.Encode(),
		"options": embedOptions(),
		"start":   span.Start().Format(daterange.Layout),
		"end":     span.End().Format(daterange.Layout),
		"span":    p.SpanDays,
		"target":  p.MonthlyTarget,
	})
}

func (h *KPIHandler) Dashboard(c *gin.Context) {
	h.page(c, "Tunnusluvut", []string{"salesmargin", "hours", "sales"})
}

func (h *KPIHandler) HistoryPage(c *gin.Context) {
	h.page(c, "Laskutusennusteiden historia", []string{"history"})
}

type kpiTable struct {
	table      window.Table
	span       daterange.Range
	windowDays int
}
