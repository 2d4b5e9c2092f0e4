package severa

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"kpi-backend/internal/calendar"
	"kpi-backend/internal/daterange"
	"kpi-backend/internal/models"
)

type fakeERP struct {
	t         *testing.T
	tokens    atomic.Int32
	refreshes atomic.Int32
	routes    map[string]http.HandlerFunc

	mu            sync.Mutex
	refreshBody   string
	refreshClient string
}

func newFakeERP(t *testing.T) (*fakeERP, *httptest.Server) {
	f := &fakeERP{t: t, routes: map[string]http.HandlerFunc{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeERP) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	switch path {
	case "token":
		n := f.tokens.Add(1)
		writeAuth(w, "token"+string(rune('0'+n)))
		return
	case "refreshtoken":
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.refreshBody, f.refreshClient = string(body), r.Header.Get("client_Id")
		f.mu.Unlock()
		n := f.refreshes.Add(1)
		writeAuth(w, "tokenR"+string(rune('0'+n)))
		return
	}
	if r.Header.Get("client_Id") != "id" || !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer token") {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	h, ok := f.routes[path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	h(w, r)
}

func writeAuth(w http.ResponseWriter, access string) {
	writeJSON(w, map[string]any{
		"access_token":              access,
		"access_token_type":         "Bearer",
		"access_token_expires_utc":  time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		"refresh_token":             "refresh",
		"refresh_token_expires_utc": time.Now().Add(2 * time.Hour).UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(srv.URL, Credentials{ClientID: "id", ClientSecret: "secret", Scope: "scope"})
	if err != nil {
		t.Fatal(err)
	}
	c.retryWait = time.Millisecond
	return c
}

func TestGetAllFollowsPages(t *testing.T) {
	erp, srv := newFakeERP(t)
	erp.routes["users"] = func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pageToken") == "" {
			w.Header().Set("NextPageToken", "p2")
			writeJSON(w, []map[string]string{{"guid": "a"}, {"guid": "b"}})
			return
		}
		writeJSON(w, []map[string]string{{"guid": "c"}})
	}
	erp.routes["users/a"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"guid": "a"})
	}

	c := newTestClient(t, srv)
	users, err := getAll[User](context.Background(), c, "users", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 3 || users[2].GUID != "c" {
		t.Fatalf("users = %+v", users)
	}

	single, err := c.GetAll(context.Background(), "users/a", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(single) != 1 {
		t.Fatalf("single object should be wrapped, got %d items", len(single))
	}
	if n := erp.tokens.Load(); n != 1 {
		t.Errorf("authenticated %d times, want 1", n)
	}
}

func TestRetries(t *testing.T) {
	erp, srv := newFakeERP(t)
	var calls atomic.Int32
	erp.routes["flaky"] = func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusUnauthorized)
		default:
			writeJSON(w, []int{1})
		}
	}
	erp.routes["busy"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}
	erp.routes["broken"] = func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}

	c := newTestClient(t, srv)
	ctx := context.Background()

	items, err := c.GetAll(ctx, "flaky", nil)
	if err != nil || len(items) != 1 {
		t.Fatalf("flaky: items=%v err=%v", items, err)
	}
	if erp.tokens.Load() != 2 {
		t.Errorf("401 should re-authenticate, tokens = %d", erp.tokens.Load())
	}

	if _, err := c.GetAll(ctx, "busy", nil); !errors.Is(err, ErrRetryLimit) {
		t.Errorf("busy: err = %v, want ErrRetryLimit", err)
	}

	_, err = c.GetAll(ctx, "broken", nil)
	var status *StatusError
	if !errors.As(err, &status) || status.Code != http.StatusInternalServerError {
		t.Errorf("broken: err = %v", err)
	}
}

func TestRefreshToken(t *testing.T) {
	erp, srv := newFakeERP(t)
	erp.routes["users"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]string{{"guid": "a"}})
	}

	c := newTestClient(t, srv)
	ctx := context.Background()
	start := time.Now()

	if _, err := c.GetAll(ctx, "users", nil); err != nil {
		t.Fatal(err)
	}

	// Access token expired, refresh token still valid.
	c.now = func() time.Time { return start.Add(90 * time.Minute) }
	if _, err := c.GetAll(ctx, "users", nil); err != nil {
		t.Fatal(err)
	}
	if n := erp.refreshes.Load(); n != 1 {
		t.Fatalf("refreshed %d times, want 1", n)
	}
	if n := erp.tokens.Load(); n != 1 {
		t.Fatalf("authenticated %d times, want 1", n)
	}
	erp.mu.Lock()
	body, client := erp.refreshBody, erp.refreshClient
	erp.mu.Unlock()
	if body != `"refresh"` {
		t.Errorf("refresh body = %s, want the refresh token as a JSON string", body)
	}
	if client != "id" {
		t.Errorf("refresh client_Id = %q", client)
	}

	// Both expired.
	c.now = func() time.Time { return start.Add(3 * time.Hour) }
	if _, err := c.GetAll(ctx, "users", nil); err != nil {
		t.Fatal(err)
	}
	if n := erp.tokens.Load(); n != 2 {
		t.Fatalf("authenticated %d times, want 2", n)
	}
	if n := erp.refreshes.Load(); n != 1 {
		t.Fatalf("refreshed %d times, want 1", n)
	}
}

func newTestFetcher(t *testing.T, srv *httptest.Server, now time.Time) *Fetcher {
	f := NewFetcher(newTestClient(t, srv), []string{"unit"}, calendar.NewFinland())
	f.now = func() time.Time { return now }
	return f
}

func TestAbsences(t *testing.T) {
	erp, srv := newFakeERP(t)
	erp.routes["users"] = func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("businessUnitGuids") != "unit" {
			t.Errorf("missing business unit filter: %s", r.URL.RawQuery)
		}
		writeJSON(w, []map[string]any{{"guid": "u1", "workContract": map[string]any{"dailyHours": 7.5}}})
	}
	erp.routes["activities"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{
			// two hours on a Monday
			{"guid": "a1", "startDateTime": "2024-03-04T08:00:00+02:00", "endDateTime": "2024-03-04T10:00:00+02:00", "ownerUser": map[string]string{"guid": "u1"}},
			// all day Monday to Sunday: five workdays
			{"guid": "a2", "isAllDay": true, "startDateTime": "2024-03-11T00:00:00+02:00", "endDateTime": "2024-03-17T23:59:00+02:00", "ownerUser": map[string]string{"guid": "u1"}},
			// all day on a Saturday is dropped
			{"guid": "a3", "isAllDay": true, "startDateTime": "2024-03-09T00:00:00+02:00", "endDateTime": "2024-03-09T23:59:00+02:00", "ownerUser": map[string]string{"guid": "u1"}},
		})
	}

	f := newTestFetcher(t, srv, time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC))
	span, _ := daterange.Parse("2024-03-01", "2024-03-31")
	rows, err := f.Absences(context.Background(), span)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].Value != 2 || rows[0].Date == nil {
		t.Errorf("single day absence = %+v", rows[0])
	}
	if rows[1].Value != 7.5*5 || rows[1].StartDate == nil || rows[1].EndDate == nil {
		t.Errorf("multi day absence = %+v", rows[1])
	}
}

func TestSalesFindings(t *testing.T) {
	erp, srv := newFakeERP(t)
	erp.routes["salescases"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{
			{
				"guid": "s1", "name": "Koulu", "probability": 50,
				"expectedOrderDate": "2024-04-01", "expectedValue": map[string]any{"amount": 10000},
				"deadline": "2024-05-01", "keywords": []any{},
				"salesPerson":  map[string]string{"guid": "seller", "firstName": "Sari"},
				"projectOwner": map[string]string{"guid": "owner", "firstName": "Olli"},
			},
			{
				"guid": "s2", "name": "Vanha",
				"expectedOrderDate": "2024-01-01",
				"keywords":          []map[string]string{{"name": "Tie_Puitesopimus"}},
			},
		})
	}
	erp.routes["projects/s1/phaseswithhierarchy"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{
			{"guid": "p1", "name": "Suunnittelu", "workHoursEstimate": 100, "startDate": "2024-04-01", "deadline": "2024-04-30", "project": map[string]string{"guid": "s1"}},
			{"guid": "p2", "name": "Valvonta"},
			{"guid": "p3", "name": "Juuri", "hasChildren": true},
		})
	}
	erp.routes["projects/s2/phaseswithhierarchy"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []any{})
	}

	f := newTestFetcher(t, srv, time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC))
	rows, err := f.Sales(context.Background(), false, nil)
	if err != nil {
		t.Fatal(err)
	}

	byKind := map[string]models.MetricRow{}
	for _, r := range rows {
		byKind[r.Kind] = r
	}
	if got := byKind[models.KindSalesvalue].Value; got != 5000 {
		t.Errorf("salesvalue = %v, want 5000", got)
	}
	if got := byKind[models.KindSaleswork]; got.Value != 50 || got.User != "owner" || got.SoldBy != "seller" {
		t.Errorf("saleswork = %+v", got)
	}

	cases, err := f.InvalidSalesCases(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]bool{}
	for _, c := range cases {
		got[c.Category+"/"+c.Phase] = true
		if c.RowID == "" {
			t.Error("finding without id")
		}
	}
	for _, want := range []string{MissingPhaseDeadline + "/Valvonta", MissingPhaseEstimate + "/Valvonta"} {
		if !got[want] {
			t.Errorf("missing finding %s in %v", want, got)
		}
	}
	if got[MissingPhaseDeadline+"/Juuri"] {
		t.Error("parent phases should not be reported")
	}
	for k := range got {
		if strings.HasPrefix(k, OrderDateInThePast) {
			t.Error("keyword filtered case was reported")
		}
	}
}

func TestBillingUsesProjectOwner(t *testing.T) {
	erp, srv := newFakeERP(t)
	erp.routes["projects"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{
			{"guid": "pr1", "projectOwner": map[string]string{"guid": "owner"}},
		})
	}
	erp.routes["invoices"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{
			{"guid": "i1", "date": "2024-03-05", "totalExcludingTax": map[string]any{"amount": 1200}, "projects": []map[string]string{{"guid": "pr1"}}},
			{"guid": "i2", "date": "2024-03-06", "totalExcludingTax": map[string]any{"amount": 300}, "projects": []map[string]string{{"guid": "other"}}},
		})
	}
	erp.routes["projects/pr1/projectforecasts"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{
			{"guid": "f1", "year": 2024, "month": 4, "project": map[string]string{"guid": "pr1"}, "billingForecast": map[string]any{"amount": 5000}},
			{"guid": "f2", "year": 2024, "month": 5, "project": map[string]string{"guid": "pr1"}},
		})
	}

	now := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)
	f := newTestFetcher(t, srv, now)
	span, _ := daterange.Parse("2024-03-01", "2024-05-31")
	rows, err := f.Billing(context.Background(), span)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3 (zero forecast dropped)", len(rows))
	}
	users := map[string]string{}
	for _, r := range rows {
		users[r.InternalGUID] = r.User
		if r.ForecastDate == nil || !r.ForecastDate.Equal(daterange.FloorDay(now)) {
			t.Errorf("forecast date = %v", r.ForecastDate)
		}
	}
	if users["i1"] != "owner" || users["i2"] != CacheMiss || users["f1"] != "owner" {
		t.Errorf("users = %v", users)
	}
}
