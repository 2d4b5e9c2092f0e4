package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"kpi-backend/internal/calendar"
	"kpi-backend/internal/daterange"
	"kpi-backend/internal/db"
	"kpi-backend/internal/kpi"
	"kpi-backend/internal/middleware"
	"kpi-backend/internal/models"
	"kpi-backend/internal/pressure"
	"kpi-backend/internal/process"
	"kpi-backend/internal/store"
	"kpi-backend/internal/web"
)

type emptySource struct{}

func (emptySource) UserInformation(context.Context) ([]models.MetricRow, error) { return nil, nil }
func (emptySource) AllUsers(context.Context) ([]models.UserInfo, error)         { return nil, nil }
func (emptySource) Hours(context.Context, daterange.Range) ([]models.MetricRow, error) {
	return nil, nil
}
func (emptySource) Billing(context.Context, daterange.Range) ([]models.MetricRow, error) {
	return nil, nil
}
func (emptySource) Salesvalue(context.Context, daterange.Range) ([]models.MetricRow, error) {
	return nil, nil
}
func (emptySource) InvalidSalesCases(context.Context) ([]models.InvalidSalesCase, error) {
	return nil, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	database, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatal(err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.Migrate(database); err != nil {
		t.Fatal(err)
	}
	return store.New(database)
}

func newTestRouter(t *testing.T) (*gin.Engine, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st := newTestStore(t)
	svc := kpi.NewService(emptySource{}, st, process.NewProcessor(calendar.NewFinland()))
	settings := NewSettingsHandler(st, 120000)
	kpiHandler := NewKPIHandler(svc, settings)
	pressureHandler := NewPressureHandler(pressure.NewService(st, time.UTC))
	severaHandler := NewSeveraHandler(svc, nil)

	router := gin.New()
	router.SetHTMLTemplate(web.Templates())
	router.GET("/api/settings", settings.Get)
	router.PUT("/api/settings", settings.Update)
	router.GET("/kpi/", kpiHandler.Dashboard)
	router.GET("/kpi/totals", kpiHandler.Totals)
	router.GET("/kpi/spec/:chart", kpiHandler.Spec)
	router.GET("/kiire/", pressureHandler.Dashboard)
	router.GET("/kiire/pressure.json", pressureHandler.JSON)
	router.GET("/kiire/pressure.svg", pressureHandler.SVG)
	router.GET("/kiire/save/:user", pressureHandler.Save)
	router.GET("/kiire/:user", pressureHandler.Capture)
	router.GET("/load/:collection", severaHandler.Load)
	router.GET("/status", NewStatusHandler(nil).Get)
	return router, st
}

func do(router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestBadDatesAreRejected(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []string{
		"/kpi/totals?startDate=2024-13-01",
		"/kpi/totals?startDate=2024-03-01&endDate=tomorrow",
		"/kpi/spec/hours?end=2024/01/01",
		"/kiire/pressure.json?start=yesterday",
	}
	for _, target := range tests {
		w := do(router, http.MethodGet, target, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", target, w.Code)
		}
		if !strings.Contains(w.Body.String(), "YYYY-MM-DD") {
			t.Errorf("%s: unexpected body %s", target, w.Body.String())
		}
	}
}

func TestTotalsWithoutData(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(router, http.MethodGet, "/kpi/totals?startDate=2024-01-01&endDate=2024-01-31", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("expected empty list, got %s", w.Body.String())
	}
}

func TestSpec(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(router, http.MethodGet, "/kpi/spec/salesmargin?startDate=2024-01-01&endDate=2024-03-31&span=14&target=100000", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `/kpi/salesmargin.json?endDate=2024-03-31&startDate=2024-01-01`) {
		t.Fatalf("data url missing from %s", w.Body.String())
	}

	w = do(router, http.MethodGet, "/kpi/spec/history", "")
	if w.Code != http.StatusOK {
		t.Fatalf("history: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = do(router, http.MethodGet, "/kpi/spec/pie", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown chart, got %d", w.Code)
	}

	w = do(router, http.MethodGet, "/kpi/spec/hours?span=0", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero span, got %d", w.Code)
	}
}

func TestDashboardPage(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(router, http.MethodGet, "/kpi/?startDate=2024-01-01&endDate=2024-03-31", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	for _, want := range []string{"vega-embed", `value="2024-01-01"`, `id="chart-salesmargin"`, `"shortDays":["Su","Ma"`} {
		if !strings.Contains(body, want) {
			t.Errorf("page is missing %q", want)
		}
	}
}

func TestSettings(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(router, http.MethodGet, "/api/settings", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"monthlyBillingTarget":120000`) {
		t.Fatalf("unexpected defaults %d %s", w.Code, w.Body.String())
	}

	w = do(router, http.MethodPut, "/api/settings", `{"spanDays": 14}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got dashboardSettings
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.SpanDays != 14 || got.MonthlyBillingTarget != 120000 {
		t.Fatalf("unexpected settings %+v", got)
	}

	w = do(router, http.MethodPut, "/api/settings", `{"spanDays": -1}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestPressureRoutes(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		target string
		code   int
	}{
		{"/kiire/save/matti?x=0.25&y=0.75", http.StatusOK},
		{"/kiire/save/maija?x=1&y=0", http.StatusOK},
		{"/kiire/save/matti?x=1.5&y=0.5", http.StatusBadRequest},
		{"/kiire/save/matti?x=0.5", http.StatusBadRequest},
		{"/kiire/save/matti?x=abc&y=0.5", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if w := do(router, http.MethodGet, tt.target, ""); w.Code != tt.code {
			t.Errorf("%s: expected %d, got %d", tt.target, tt.code, w.Code)
		}
	}

	w := do(router, http.MethodGet, "/kiire/pressure.json", "")
	var readings []models.PressureReading
	if err := json.Unmarshal(w.Body.Bytes(), &readings); err != nil {
		t.Fatal(err)
	}
	if len(readings) != 2 {
		t.Fatalf("expected 2 readings, got %d", len(readings))
	}

	w = do(router, http.MethodGet, "/kiire/pressure.json?users=maija", "")
	if err := json.Unmarshal(w.Body.Bytes(), &readings); err != nil {
		t.Fatal(err)
	}
	if len(readings) != 1 || readings[0].User != "maija" {
		t.Fatalf("unexpected filtered readings %+v", readings)
	}

	w = do(router, http.MethodGet, "/kiire/pressure.svg", "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/svg+xml" {
		t.Fatalf("unexpected svg response %d %q", w.Code, w.Header().Get("Content-Type"))
	}
	if !strings.Contains(w.Body.String(), "keskiarvo (2)") {
		t.Fatalf("svg is missing the mean marker")
	}

	w = do(router, http.MethodGet, "/kiire/", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/kiire/pressure.svg?") {
		t.Fatalf("unexpected dashboard %d", w.Code)
	}

	w = do(router, http.MethodGet, "/kiire/matti", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `const user = "matti"`) {
		t.Fatalf("unexpected capture page %d %s", w.Code, w.Body.String())
	}
}

func TestLoad(t *testing.T) {
	router, st := newTestRouter(t)

	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	rows := []models.MetricRow{{Kind: models.KindBilling, User: "Matti", Date: &date, Value: 100}}
	if _, err := st.UpsertRows(context.Background(), models.CollectionBilling, rows); err != nil {
		t.Fatal(err)
	}

	w := do(router, http.MethodGet, "/load/billing", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"Matti"`) {
		t.Fatalf("unexpected response %d %s", w.Code, w.Body.String())
	}

	w = do(router, http.MethodGet, "/load/invoices", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestDebugRoutesGate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, enabled := range []bool{true, false} {
		router := gin.New()
		router.GET("/save_sparse", middleware.RequireDebugRoutes(enabled), func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})
		w := do(router, http.MethodGet, "/save_sparse", "")
		want := http.StatusNotFound
		if enabled {
			want = http.StatusNoContent
		}
		if w.Code != want {
			t.Errorf("enabled=%v: expected %d, got %d", enabled, want, w.Code)
		}
	}
}

func TestSlackEventChallenge(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewSlackHandler(nil, nil, SlackOptions{})
	router := gin.New()
	router.POST("/slack/event", h.Event)
	router.GET("/slack/offers.json", h.Offers)

	w := do(router, http.MethodPost, "/slack/event", `{"token":"x","challenge":"c4ll3ng3","type":"url_verification"}`)
	if w.Code != http.StatusOK || w.Body.String() != "c4ll3ng3" {
		t.Fatalf("unexpected challenge response %d %q", w.Code, w.Body.String())
	}

	w = do(router, http.MethodPost, "/slack/event", `not json`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	w = do(router, http.MethodGet, "/slack/offers.json", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a bot, got %d", w.Code)
	}
}

func TestStatusWithoutScheduler(t *testing.T) {
	router, _ := newTestRouter(t)
	w := do(router, http.MethodGet, "/status", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "not running") {
		t.Fatalf("unexpected status %d %q", w.Code, w.Body.String())
	}
}
