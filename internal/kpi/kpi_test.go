package kpi

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"kpi-backend/internal/calendar"
	"kpi-backend/internal/daterange"
	"kpi-backend/internal/db"
	"kpi-backend/internal/models"
	"kpi-backend/internal/process"
	"kpi-backend/internal/store"
	"kpi-backend/internal/window"
)

type fakeSource struct {
	users      []models.UserInfo
	userInfo   []models.MetricRow
	hours      []models.MetricRow
	billing    []models.MetricRow
	salesvalue []models.MetricRow
	cases      []models.InvalidSalesCase
	billingErr error
}

func (f *fakeSource) UserInformation(context.Context) ([]models.MetricRow, error) {
	return f.userInfo, nil
}

func (f *fakeSource) AllUsers(context.Context) ([]models.UserInfo, error) { return f.users, nil }

func (f *fakeSource) Hours(context.Context, daterange.Range) ([]models.MetricRow, error) {
	return append([]models.MetricRow(nil), f.hours...), nil
}

func (f *fakeSource) Billing(context.Context, daterange.Range) ([]models.MetricRow, error) {
	if f.billingErr != nil {
		return nil, f.billingErr
	}
	return append([]models.MetricRow(nil), f.billing...), nil
}

func (f *fakeSource) Salesvalue(context.Context, daterange.Range) ([]models.MetricRow, error) {
	return append([]models.MetricRow(nil), f.salesvalue...), nil
}

func (f *fakeSource) InvalidSalesCases(context.Context) ([]models.InvalidSalesCase, error) {
	return f.cases, nil
}

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func newTestService(t *testing.T, source Source, now time.Time) (*Service, *store.Store) {
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
	st := store.New(database)

	processor := process.NewProcessor(calendar.NewFinland())
	processor.Now = func() time.Time { return now }
	return NewService(source, st, processor), st
}

func TestPivotTotals(t *testing.T) {
	// Mon 2024-03-04 .. Wed 2024-03-06, all in the past.
	now := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
	span := daterange.New(*day(2024, time.March, 4), *day(2024, time.March, 6))

	var rows []models.MetricRow
	for d := 4; d <= 6; d++ {
		rows = append(rows,
			models.MetricRow{Kind: models.KindMaximum, User: "u1", Value: 7.5, Date: day(2024, time.March, d)},
			models.MetricRow{Kind: models.KindHourCost, User: "u1", Value: 50, Date: day(2024, time.March, d)},
		)
	}
	rows = append(rows,
		models.MetricRow{Kind: models.KindWorkhours, User: "u1", Value: 6, Productive: true, Date: day(2024, time.March, 4)},
		models.MetricRow{Kind: models.KindWorkhours, User: "u1", Value: 7.5, Productive: true, Date: day(2024, time.March, 5)},
		models.MetricRow{Kind: models.KindAbsences, User: "u1", Value: 7.5, Date: day(2024, time.March, 6)},
		models.MetricRow{Kind: models.KindBilling, User: "u1", Value: 1000, Date: day(2024, time.March, 5)},
	)

	table := PivotTotals(rows, span, 2, now)
	if len(table.Records) != 3 {
		t.Fatalf("records = %d, want 3", len(table.Records))
	}

	tests := []struct {
		record int
		column string
		want   float64
	}{
		{0, ColProductive, 6},
		{0, ColCost, 300},
		{0, ColUncounted, 1.5},
		{0, ColMargin, -300},
		{0, ColMarginPercent, 0},
		{2, ColBilling, 1000},
		{2, ColCost, 750},
		{2, ColMargin, 250},
		{2, ColMarginPercent, 0.25},
		{2, ColMaximum, 15},
		{2, ColTotalHours, 15},
		{2, ColBillingRate, 1},
		{2, ColUncounted, 0},
	}
	for _, tt := range tests {
		got := table.Records[tt.record].Get(tt.column)
		if !near(got, tt.want) {
			t.Errorf("record %d %s = %v, want %v", tt.record, tt.column, got, tt.want)
		}
	}
}

func TestPivotTotalsCostsFutureByMaximum(t *testing.T) {
	now := time.Date(2024, time.March, 4, 12, 0, 0, 0, time.UTC)
	span := daterange.New(*day(2024, time.March, 5), *day(2024, time.March, 5))
	rows := []models.MetricRow{
		{Kind: models.KindMaximum, User: "u1", Value: 7.5, Date: day(2024, time.March, 5)},
		{Kind: models.KindHourCost, User: "u1", Value: 40, Date: day(2024, time.March, 5)},
		{Kind: models.KindWorkhours, User: "u1", Value: 2, Date: day(2024, time.March, 5)},
	}
	table := PivotTotals(rows, span, 30, now)
	if got := table.Records[0].Get(ColCost); !near(got, 300) {
		t.Fatalf("cost = %v, want 300", got)
	}
	if got := table.Records[0].Get(ColUncounted); got != 0 {
		t.Fatalf("uncounted = %v, want 0", got)
	}
}

func TestCompare(t *testing.T) {
	var table window.Table
	for i := 0; i < 8; i++ {
		table.Records = append(table.Records, window.Record{
			Day:    *day(2024, time.March, i+1),
			Values: map[string]float64{ColBilling: float64(i * 10)},
		})
	}

	cmp := Compare(table)
	if !cmp.Day.Equal(*day(2024, time.March, 8)) {
		t.Fatalf("day = %v", cmp.Day)
	}
	if cmp.Current[ColBilling] != 70 || cmp.Diff[ColBilling] != 60 {
		t.Fatalf("current = %v diff = %v", cmp.Current[ColBilling], cmp.Diff[ColBilling])
	}
	if len(cmp.Billing) != 8 {
		t.Fatalf("billing series = %d", len(cmp.Billing))
	}

	empty := Compare(window.Table{})
	if len(empty.Current) != 0 || empty.Billing != nil {
		t.Fatalf("empty comparison = %+v", empty)
	}
}

func TestLoadAndMergeUsesSnapshotForFuture(t *testing.T) {
	// Friday 2024-03-15.
	now := time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)
	source := &fakeSource{
		users: []models.UserInfo{{User: "u1", FirstName: "Matti", LastName: "Meikäläinen"}},
		billing: []models.MetricRow{
			{Kind: models.KindBilling, User: "u1", Value: 100, Date: day(2024, time.March, 12)},
		},
	}
	svc, st := newTestService(t, source, now)
	ctx := context.Background()

	snapshot := []models.MetricRow{{
		RowID: "forecast", Kind: models.KindBilling, User: "u1", Value: 1000,
		StartDate: day(2024, time.March, 11), EndDate: day(2024, time.March, 22),
		ForecastDate: day(2024, time.March, 10),
	}}
	if _, err := st.UpsertRows(ctx, models.CollectionBilling, snapshot); err != nil {
		t.Fatal(err)
	}

	span := daterange.New(*day(2024, time.March, 11), *day(2024, time.March, 22))
	rows, err := svc.LoadAndMerge(ctx, span, true)
	if err != nil {
		t.Fatal(err)
	}

	total, past := 0.0, 0
	for _, r := range rows {
		if r.Kind != models.KindBilling {
			continue
		}
		total += r.Value
		if r.IsPast {
			past++
		}
		if r.FirstName != "Matti" {
			t.Errorf("first name = %q", r.FirstName)
		}
	}
	// 100 realized plus six of the ten forecast workdays.
	if !near(total, 700) {
		t.Fatalf("billing = %v, want 700", total)
	}
	// The realized row and today's forecast.
	if past != 2 {
		t.Fatalf("past rows = %d, want 2", past)
	}
}

func TestLoadAndMergeWithoutSnapshot(t *testing.T) {
	now := time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, &fakeSource{}, now)

	span := daterange.New(*day(2024, time.March, 11), *day(2024, time.March, 22))
	rows, err := svc.LoadAndMerge(context.Background(), span, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Fatalf("rows = %d, want 0", len(rows))
	}
}

func TestSaveSparse(t *testing.T) {
	now := time.Now()
	source := &fakeSource{
		hours:      []models.MetricRow{{Kind: models.KindWorkhours, User: "u1", Value: 3, Date: &now}},
		salesvalue: []models.MetricRow{{Kind: models.KindSalesvalue, User: "u1", Value: 5, Date: &now}},
		cases:      []models.InvalidSalesCase{{RowID: "case", Category: "Tilauspäivä puuttuu", Name: "Kauppa", Inserted: now.UTC()}},
		billingErr: errors.New("erp down"),
	}
	svc, st := newTestService(t, source, now)
	ctx := context.Background()

	result, err := svc.SaveSparse(ctx)
	if err == nil || !strings.Contains(err.Error(), "erp down") {
		t.Fatalf("err = %v, want the billing failure", err)
	}
	if result.Rows[models.CollectionHours] != 1 || result.Rows[models.CollectionSales] != 1 {
		t.Fatalf("rows = %v", result.Rows)
	}
	if _, ok := result.Rows[models.CollectionBilling]; ok {
		t.Fatal("billing should not be counted")
	}
	if len(result.Errors) != 1 || result.InvalidCases != 1 {
		t.Fatalf("result = %+v", result)
	}

	stored, err := svc.Stored(ctx, models.CollectionHours)
	if err != nil || len(stored) != 1 {
		t.Fatalf("stored hours = %v, %v", stored, err)
	}
	cases, err := st.InvalidSalesCases(ctx, InvalidSalesCaseTTL)
	if err != nil || len(cases) != 1 {
		t.Fatalf("stored cases = %v, %v", cases, err)
	}
}

func TestStoredRejectsUnknownCollection(t *testing.T) {
	svc, _ := newTestService(t, &fakeSource{}, time.Now())
	if _, err := svc.Stored(context.Background(), "users"); !errors.Is(err, ErrUnknownCollection) {
		t.Fatalf("err = %v", err)
	}
}

func TestBillingHistory(t *testing.T) {
	now := time.Date(2024, time.March, 20, 12, 0, 0, 0, time.UTC)
	source := &fakeSource{users: []models.UserInfo{{User: "u1", FirstName: "Maija"}}}
	svc, st := newTestService(t, source, now)
	ctx := context.Background()

	if _, ok, err := svc.EarliestForecastDate(ctx); err != nil || ok {
		t.Fatalf("empty store: ok = %v, err = %v", ok, err)
	}

	rows := []models.MetricRow{
		{
			RowID: "f1", Kind: models.KindBilling, User: "u1", Value: 1000,
			StartDate: day(2024, time.March, 4), EndDate: day(2024, time.March, 15),
			ForecastDate: day(2024, time.March, 10),
		},
		{RowID: "realized", Kind: models.KindBilling, User: "u1", Value: 5, Date: day(2024, time.March, 11), ForecastDate: day(2024, time.March, 10)},
	}
	if _, err := st.UpsertRows(ctx, models.CollectionBilling, rows); err != nil {
		t.Fatal(err)
	}

	history, err := svc.BillingHistory(ctx)
	if err != nil {
		t.Fatal(err)
	}
	// Sunday the 10th through Friday the 15th.
	if len(history) != 6 {
		t.Fatalf("rows = %d, want 6", len(history))
	}
	for _, r := range history {
		length := *r.ForecastLength
		if want := r.Date.Day() - 10; length != want {
			t.Errorf("length on %v = %d, want %d", r.Date, length, want)
		}
		if r.FirstName != "Maija" {
			t.Errorf("first name = %q", r.FirstName)
		}
	}

	first, ok, err := svc.EarliestForecastDate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || !first.Equal(*day(2024, time.March, 10)) {
		t.Fatalf("first forecast = %v, %v", first, ok)
	}
}

func TestDefaultSpan(t *testing.T) {
	span := DefaultSpan(time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC))
	if got := span.Start().Format(daterange.Layout); got != "2024-02-01" {
		t.Errorf("start = %s", got)
	}
	if got := span.End().Format(daterange.Layout); got != "2024-08-31" {
		t.Errorf("end = %s", got)
	}
}

func rollingTable() window.Table {
	var table window.Table
	for i := 0; i < 3; i++ {
		table.Records = append(table.Records, window.Record{
			Day:    *day(2024, time.March, i+1),
			Values: map[string]float64{ColBilling: 100 * float64(i), ColCost: 50},
		})
	}
	return table
}

func TestRenderRolling(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderRolling(&buf, rollingTable(), 30); err != nil {
		t.Fatal(err)
	}
	page := buf.String()
	for _, want := range []string{"Laskutus", "juokseva 30 vrk", "echarts"} {
		if !strings.Contains(page, want) {
			t.Errorf("page does not contain %q", want)
		}
	}
}

func TestWriteTotalsXLSX(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTotalsXLSX(&buf, rollingTable()); err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows("Tunnusluvut")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(rows))
	}
	if rows[0][0] != "Päivä" || rows[0][2] != "Laskutus" {
		t.Fatalf("header = %v", rows[0])
	}
	if rows[3][0] != "2024-03-03" || rows[3][2] != "200" {
		t.Fatalf("last row = %v", rows[3])
	}
}
