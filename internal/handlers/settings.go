package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"kpi-backend/internal/models"
	"kpi-backend/internal/store"
)

const defaultSpanDays = 30

type SettingsHandler struct {
	Store         *store.Store
	DefaultTarget int
}

type dashboardSettings struct {
	MonthlyBillingTarget int `json:"monthlyBillingTarget"`
	SpanDays             int `json:"spanDays"`
}

func NewSettingsHandler(st *store.Store, defaultTarget int) *SettingsHandler {
	return &SettingsHandler{Store: st, DefaultTarget: defaultTarget}
}

// load reads the stored dashboard defaults. Missing or broken values fall
// back to the configured ones.
func (h *SettingsHandler) load(ctx context.Context) dashboardSettings {
	settings := dashboardSettings{MonthlyBillingTarget: h.DefaultTarget, SpanDays: defaultSpanDays}
	read := func(key string, into *int) {
		raw, err := h.Store.Setting(ctx, key)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				log.WithError(err).WithField("key", key).Warn("setting unavailable")
			}
			return
		}
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			*into = v
		}
	}
	read(models.SettingMonthlyBillingTarget, &settings.MonthlyBillingTarget)
	read(models.SettingSpanDays, &settings.SpanDays)
	return settings
}

func (h *SettingsHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, h.load(c.Request.Context()))
}

func (h *SettingsHandler) Update(c *gin.Context) {
	var req dashboardSettings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
		return
	}
	if req.MonthlyBillingTarget < 0 || req.SpanDays < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "values cannot be negative"})
		return
	}

	updates := map[string]int{
		models.SettingMonthlyBillingTarget: req.MonthlyBillingTarget,
		models.SettingSpanDays:             req.SpanDays,
	}
	for key, value := range updates {
		if value == 0 {
			continue
		}
		if err := h.Store.SetSetting(c.Request.Context(), key, strconv.Itoa(value)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
			return
		}
	}

	c.JSON(http.StatusOK, h.load(c.Request.Context()))
}
