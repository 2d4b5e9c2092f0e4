package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"kpi-backend/internal/jobs"
)

type StatusHandler struct {
	Scheduler *jobs.Scheduler
}

func NewStatusHandler(s *jobs.Scheduler) *StatusHandler {
	return &StatusHandler{Scheduler: s}
}

func (h *StatusHandler) Get(c *gin.Context) {
	if h.Scheduler == nil {
		c.String(http.StatusOK, "scheduler not running\n")
		return
	}
	c.String(http.StatusOK, h.Scheduler.Status(time.Now()))
}
