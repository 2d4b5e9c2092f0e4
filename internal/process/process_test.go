package process

import (
	"math"
	"testing"
	"time"

	"kpi-backend/internal/calendar"
	"kpi-backend/internal/daterange"
	"kpi-backend/internal/models"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func newProcessor(now time.Time) *Processor {
	p := NewProcessor(calendar.NewFinland())
	p.Now = func() time.Time { return now }
	return p
}

func sumByKind(rows []models.MetricRow) map[string]float64 {
	sums := map[string]float64{}
	for _, row := range rows {
		sums[row.Kind] += row.Value
	}
	return sums
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestUnravelHours(t *testing.T) {
	// Mon 2024-03-04 .. Sun 2024-03-10: five workdays, seven days.
	p := newProcessor(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))
	rows := []models.MetricRow{
		{Kind: models.KindWorkhours, Value: 20, StartDate: date(2024, time.March, 4), EndDate: date(2024, time.March, 10)},
		{Kind: models.KindAbsences, Value: 14, StartDate: date(2024, time.March, 10), EndDate: date(2024, time.March, 4)},
		{Kind: models.KindWorkhours, Value: 3, Date: date(2024, time.March, 5)},
	}
	span := daterange.New(*date(2024, time.March, 1), *date(2024, time.March, 31))
	out := p.Process(rows, span, Hours)

	if len(out) != 7+7+1 {
		t.Fatalf("rows = %d, want 15", len(out))
	}
	for _, row := range out {
		if row.Kind == models.KindWorkhours && row.Unraveled && !near(row.Value, 4) {
			t.Errorf("workhours on %v = %v, want 4", row.Date, row.Value)
		}
		if row.Kind == models.KindAbsences {
			weekend := row.Date.Weekday() == time.Saturday || row.Date.Weekday() == time.Sunday
			want := 2.0
			if weekend {
				want = 0
			}
			if !near(row.Value, want) {
				t.Errorf("absences on %v = %v, want %v", row.Date, row.Value, want)
			}
		}
	}

	sums := sumByKind(out)
	// Workhours are spread by workdays, weekend days carry the value too
	// since only absences zero out holidays.
	if !near(sums[models.KindWorkhours], 3+20+2*4) {
		t.Errorf("workhours sum = %v", sums[models.KindWorkhours])
	}
	if !near(sums[models.KindAbsences], 10) {
		t.Errorf("absences sum = %v", sums[models.KindAbsences])
	}
}

func TestBillingForecastIsSpreadOverWorkdaysAndCulled(t *testing.T) {
	now := time.Date(2024, time.March, 6, 15, 0, 0, 0, time.UTC)
	p := newProcessor(now)
	rows := []models.MetricRow{
		{Kind: models.KindBilling, Value: 500, Billing: 500, StartDate: date(2024, time.March, 4), EndDate: date(2024, time.March, 10)},
		{Kind: models.KindBilling, Value: 99, Date: date(2024, time.March, 1)},
	}
	span := daterange.New(*date(2024, time.March, 1), *date(2024, time.March, 31))
	out := p.Process(rows, span, Billing)

	var days []string
	total := 0.0
	for _, row := range out {
		if row.Unraveled {
			days = append(days, row.Date.Format(daterange.Layout))
			if !near(row.Billing, row.Value) {
				t.Errorf("billing column not scaled: %v vs %v", row.Billing, row.Value)
			}
		}
		total += row.Value
	}
	if len(days) != 5 || days[0] != "2024-03-06" {
		t.Fatalf("unraveled days = %v", days)
	}
	// Wed, Thu, Fri at 100 each; the weekend is zero; realized row is kept.
	if !near(total, 99+300) {
		t.Fatalf("total = %v", total)
	}
}

func TestUsersOpenEndedContract(t *testing.T) {
	p := newProcessor(time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC))
	rows := []models.MetricRow{
		{Kind: models.KindMaximum, User: "u1", Value: 7.5, StartDate: date(2023, time.January, 1)},
		{Kind: models.KindHourCost, User: "u1", Value: 40, StartDate: date(2023, time.January, 1)},
	}
	span := daterange.New(*date(2024, time.March, 4), *date(2024, time.March, 10))
	out := p.Process(rows, span, Users)

	if len(out) != 14 {
		t.Fatalf("rows = %d, want 14", len(out))
	}
	sums := sumByKind(out)
	if !near(sums[models.KindMaximum], 5*7.5) {
		t.Errorf("maximum sum = %v", sums[models.KindMaximum])
	}
	if !near(sums[models.KindHourCost], 7*40) {
		t.Errorf("hour cost sum = %v", sums[models.KindHourCost])
	}
}

func TestSalesAreKeptAsIs(t *testing.T) {
	p := newProcessor(time.Now())
	rows := []models.MetricRow{
		{Kind: models.KindSalesvalue, Value: 1000, Date: date(2024, time.March, 4)},
		{Kind: models.KindSalesvalue, Value: 1000, Date: date(2025, time.March, 4)},
	}
	span := daterange.New(*date(2024, time.March, 1), *date(2024, time.March, 31))
	out := p.Process(rows, span, Sales)
	if len(out) != 1 || out[0].Value != 1000 {
		t.Fatalf("out = %+v", out)
	}
}

func TestProcessEmptySpan(t *testing.T) {
	p := newProcessor(time.Now())
	if out := p.Process([]models.MetricRow{{Kind: models.KindBilling, Date: date(2024, 1, 1)}}, daterange.Empty(), Billing); out != nil {
		t.Fatalf("out = %+v", out)
	}
}

func TestMergeUserInfo(t *testing.T) {
	users := []models.UserInfo{
		{User: "u1", FirstName: "Old", LastName: "Name"},
		{User: "u1", FirstName: "Anna", LastName: "Aalto", BusinessUnit: "bu"},
	}
	rows := MergeUserInfo(users, []models.MetricRow{{User: "u1"}, {User: "ghost", FirstName: "stale"}})
	if rows[0].FirstName != "Anna" || rows[0].BusinessUnit != "bu" {
		t.Fatalf("row = %+v", rows[0])
	}
	if rows[1].FirstName != "" {
		t.Fatalf("unknown user should have no name: %+v", rows[1])
	}
	if got := Concat(rows, rows[:1]); len(got) != 3 {
		t.Fatalf("concat = %d", len(got))
	}
}
