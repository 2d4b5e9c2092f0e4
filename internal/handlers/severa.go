package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"kpi-backend/internal/kpi"
	"kpi-backend/internal/models"
	"kpi-backend/internal/severa"
)

// SeveraHandler serves the sales case findings and the admin routes that
// touch the ERP and the stored snapshots directly.
type SeveraHandler struct {
	Service *kpi.Service
	Client  *severa.Client
}

func NewSeveraHandler(svc *kpi.Service, client *severa.Client) *SeveraHandler {
	return &SeveraHandler{Service: svc, Client: client}
}

func (h *SeveraHandler) SalesCases(c *gin.Context) {
	cases, err := h.Service.InvalidSalesCases(c.Request.Context())
	if err != nil {
		log.WithError(err).Error("invalid sales cases failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to fetch sales cases"})
		return
	}
	if cases == nil {
		cases = []models.InvalidSalesCase{}
	}
	c.JSON(http.StatusOK, cases)
}

func (h *SeveraHandler) SaveSparse(c *gin.Context) {
	result, err := h.Service.SaveSparse(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *SeveraHandler) Load(c *gin.Context) {
	rows, err := h.Service.Stored(c.Request.Context(), c.Param("collection"))
	if errors.Is(err, kpi.ErrUnknownCollection) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load rows"})
		return
	}
	c.JSON(http.StatusOK, rows)
}

// Read passes a GET through to the ERP and returns every page.
func (h *SeveraHandler) Read(c *gin.Context) {
	endpoint := strings.TrimPrefix(c.Param("endpoint"), "/")
	if endpoint == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endpoint is required"})
		return
	}
	params := url.Values{}
	for key, values := range c.Request.URL.Query() {
		params[key] = values
	}
	items, err := h.Client.GetAll(c.Request.Context(), endpoint, params)
	var status *severa.StatusError
	if errors.As(err, &status) {
		c.JSON(status.Code, gin.H{"error": status.Error()})
		return
	}
	if err != nil {
		log.WithError(err).WithField("endpoint", endpoint).Error("passthrough failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to read from the ERP"})
		return
	}
	c.JSON(http.StatusOK, items)
}
