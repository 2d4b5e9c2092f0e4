package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"kpi-backend/internal/daterange"
	"kpi-backend/internal/models"
	"kpi-backend/internal/pressure"
)

type PressureHandler struct {
	Service *pressure.Service
	Now     func() time.Time
}

func NewPressureHandler(svc *pressure.Service) *PressureHandler {
	return &PressureHandler{Service: svc, Now: time.Now}
}

func (h *PressureHandler) readings(c *gin.Context) ([]models.PressureReading, bool) {
	span, ok := spanQuery(c, pressure.DefaultSpan(h.Now()))
	if !ok {
		return nil, false
	}
	readings, err := h.Service.Fetch(c.Request.Context(), span, listQuery(c, "users"))
	if err != nil {
		log.WithError(err).Error("fetching pressure readings failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch readings"})
		return nil, false
	}
	return readings, true
}

func (h *PressureHandler) JSON(c *gin.Context) {
	readings, ok := h.readings(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, readings)
}

func (h *PressureHandler) SVG(c *gin.Context) {
	readings, ok := h.readings(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := pressure.RenderSVG(&buf, readings); err != nil {
		log.WithError(err).Error("rendering pressure plot failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render plot"})
		return
	}
	c.Data(http.StatusOK, "image/svg+xml", buf.Bytes())
}

func (h *PressureHandler) Save(c *gin.Context) {
	user := strings.TrimSpace(c.Param("user"))
	if user == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user is required"})
		return
	}
	x, xSet, ok := floatQuery(c, "x")
	if !ok {
		return
	}
	y, ySet, ok := floatQuery(c, "y")
	if !ok {
		return
	}
	if !xSet || !ySet {
		c.JSON(http.StatusBadRequest, gin.H{"error": "x and y are required"})
		return
	}

	reading, err := h.Service.Save(c.Request.Context(), user, x, y)
	if errors.Is(err, pressure.ErrOutOfRange) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		log.WithError(err).Error("saving pressure failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save reading"})
		return
	}
	c.JSON(http.StatusOK, reading)
}

func (h *PressureHandler) Dashboard(c *gin.Context) {
	span, ok := spanQuery(c, pressure.DefaultSpan(h.Now()))
	if !ok {
		return
	}
	summary, found, err := h.Service.WeeklySummary(c.Request.Context())
	if err != nil {
		log.WithError(err).Error("pressure summary failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to summarize readings"})
		return
	}
	query := spanValues(span)
	if users := c.Query("users"); users != "" {
		query.Set("users", users)
	}
	c.HTML(http.StatusOK, "pressure_dashboard.html", gin.H{
		"query":   query.Encode(),
		"start":   span.Start().Format(daterange.Layout),
		"end":     span.End().Format(daterange.Layout),
		"found":   found,
		"summary": summary,
	})
}

func (h *PressureHandler) Capture(c *gin.Context) {
	c.HTML(http.StatusOK, "pressure.html", gin.H{"user": c.Param("user")})
}
