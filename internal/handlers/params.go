package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"kpi-backend/internal/daterange"
)

func firstQuery(c *gin.Context, keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(c.Query(key)); value != "" {
			return value
		}
	}
	return ""
}

// spanQuery reads startDate/endDate (or start/end) as YYYY-MM-DD. A
// missing bound comes from def. On a bad value it answers 400 and returns
// false.
func spanQuery(c *gin.Context, def daterange.Range) (daterange.Range, bool) {
	start := firstQuery(c, "startDate", "start")
	end := firstQuery(c, "endDate", "end")
	if start == "" && end == "" {
		return def, true
	}
	if start == "" {
		start = def.Start().Format(daterange.Layout)
	}
	if end == "" {
		end = def.End().Format(daterange.Layout)
	}

	span, err := daterange.Parse(start, end)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid date, expected YYYY-MM-DD: %v", err)})
		return daterange.Range{}, false
	}
	return span, true
}

// listQuery splits a comma separated parameter.
func listQuery(c *gin.Context, key string) []string {
	values := []string{}
	for _, v := range strings.Split(c.Query(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}

func intQuery(c *gin.Context, key string, def int) (int, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s: expected a positive integer", key)})
		return 0, false
	}
	return v, true
}

func floatQuery(c *gin.Context, key string) (float64, bool, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, false, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s: expected a number", key)})
		return 0, false, false
	}
	return v, true, true
}

func spanValues(span daterange.Range) url.Values {
	return url.Values{
		"startDate": {span.Start().Format(daterange.Layout)},
		"endDate":   {span.End().Format(daterange.Layout)},
	}
}
