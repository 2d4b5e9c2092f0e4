package routes

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprometheus "github.com/mcuadros/go-gin-prometheus"

	"kpi-backend/internal/config"
	"kpi-backend/internal/handlers"
	"kpi-backend/internal/jobs"
	"kpi-backend/internal/kpi"
	"kpi-backend/internal/middleware"
	"kpi-backend/internal/pressure"
	"kpi-backend/internal/severa"
	"kpi-backend/internal/slackbot"
	"kpi-backend/internal/store"
	"kpi-backend/internal/web"
)

// Services are the dependencies the routes are built from. Bot, Reporter
// and Jobs are optional.
type Services struct {
	Store    *store.Store
	KPI      *kpi.Service
	Pressure *pressure.Service
	Severa   *severa.Client
	Bot      *slackbot.Bot
	Reporter *slackbot.Reporter
	Jobs     *jobs.Scheduler
}

func Register(router *gin.Engine, svc Services, cfg config.Config) {
	if cfg.PrometheusAddr != "" && cfg.PrometheusAddr != "false" {
		usePrometheus(router, cfg.PrometheusAddr)
	}
	router.Use(corsMiddleware(cfg.AllowedOrigins()))
	router.SetHTMLTemplate(web.Templates())

	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Hello from %s!", cfg.SlackBotName)
	})

	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	settingsHandler := handlers.NewSettingsHandler(svc.Store, cfg.MonthlyBillingTarget)
	kpiHandler := handlers.NewKPIHandler(svc.KPI, settingsHandler)
	pressureHandler := handlers.NewPressureHandler(svc.Pressure)
	severaHandler := handlers.NewSeveraHandler(svc.KPI, svc.Severa)
	statusHandler := handlers.NewStatusHandler(svc.Jobs)
	slackHandler := handlers.NewSlackHandler(svc.Bot, svc.Reporter, handlers.SlackOptions{
		OffersChannel: cfg.ChannelOffers,
		Reaction:      cfg.OffersResolvedEmoji,
		DebugChannel:  cfg.ChannelDebug,
		SigningSecret: cfg.SlackSigningSecret,
	})

	router.GET("/status", statusHandler.Get)
	router.GET("/api/settings", settingsHandler.Get)

	debug := router.Group("/")
	debug.Use(middleware.RequireDebugRoutes(cfg.DebugRoutes))
	{
		debug.GET("/save_sparse", severaHandler.SaveSparse)
		debug.GET("/load/:collection", severaHandler.Load)
		debug.GET("/read/*endpoint", severaHandler.Read)
		debug.GET("/slack/send_debug_message", slackHandler.SendDebug)
		debug.PUT("/api/settings", settingsHandler.Update)
	}

	k := router.Group("/kpi")
	{
		k.GET("/", kpiHandler.Dashboard)
		k.GET("/history", kpiHandler.HistoryPage)
		k.GET("/rolling", kpiHandler.RollingChart)
		k.GET("/totals", kpiHandler.Totals)
		k.GET("/totals.xlsx", kpiHandler.TotalsXLSX)
		k.GET("/billing", kpiHandler.Billing)
		k.GET("/billing_history", kpiHandler.BillingHistory)
		k.GET("/hours.json", kpiHandler.Hours)
		k.GET("/salesmargin.json", kpiHandler.SalesMargin)
		k.GET("/spec/:chart", kpiHandler.Spec)
	}

	kiire := router.Group("/kiire")
	{
		kiire.GET("/", pressureHandler.Dashboard)
		kiire.GET("/pressure.json", pressureHandler.JSON)
		kiire.GET("/pressure.svg", pressureHandler.SVG)
		kiire.GET("/save/:user", pressureHandler.Save)
		kiire.GET("/:user", pressureHandler.Capture)
	}

	s := router.Group("/slack")
	{
		s.GET("/offers.json", slackHandler.Offers)
		s.POST("/event", slackHandler.Event)
	}

	router.GET("/severa/salescases.json", severaHandler.SalesCases)
}

// usePrometheus exposes request metrics on /metrics, or on a separate
// listener when addr is an address.
func usePrometheus(router *gin.Engine, addr string) {
	p := ginprometheus.NewPrometheus("kpi_backend")
	p.ReqCntURLLabelMappingFn = func(c *gin.Context) string {
		if route := c.FullPath(); route != "" {
			return route
		}
		return strings.ReplaceAll(c.Request.URL.Path, "//", "/")
	}
	if addr != "true" {
		p.SetListenAddress(addr)
	}
	p.Use(router)
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		return cors.Default()
	}
	conf := cors.DefaultConfig()
	conf.AllowOrigins = origins
	conf.AllowHeaders = append(conf.AllowHeaders, "X-Slack-Signature", "X-Slack-Request-Timestamp")
	return cors.New(conf)
}
