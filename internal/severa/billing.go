package severa

import (
	"context"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"

	"kpi-backend/internal/daterange"
	"kpi-backend/internal/models"
)

// Projects returns the ordered projects of the business units by guid,
// cached for an hour.
func (f *Fetcher) Projects(ctx context.Context) (map[string]Project, error) {
	if projects, ok := f.projects.Get(allKey); ok {
		return projects, nil
	}
	return shared(f, "projects", func() (map[string]Project, error) {
		list, err := getAll[Project](ctx, f.client, "projects", url.Values{
			"businessUnitGuids":    f.businessUnits,
			"salesStatusTypeGuids": {StatusOrder},
		})
		if err != nil {
			return nil, err
		}
		projects := make(map[string]Project, len(list))
		for _, p := range list {
			projects[p.GUID] = p
		}
		f.projects.Add(allKey, projects)
		return projects, nil
	})
}

// Billing returns invoices for the past part of span and project billing
// forecasts for its future part. The user of a row is the owner of its
// project.
func (f *Fetcher) Billing(ctx context.Context, span daterange.Range) ([]models.MetricRow, error) {
	if span.IsEmpty() {
		return nil, nil
	}
	projects, err := f.Projects(ctx)
	if err != nil {
		return nil, err
	}

	past, future := span.Cut(f.now())
	var rows []models.MetricRow
	if !past.IsEmpty() {
		realized, err := f.RealizedBilling(ctx, past)
		if err != nil {
			return nil, err
		}
		rows = append(rows, realized...)
	}
	if !future.IsEmpty() {
		forecast, err := f.ForecastedBilling(ctx, future)
		if err != nil {
			return nil, err
		}
		rows = append(rows, forecast...)
	}

	for i := range rows {
		if p, ok := projects[rows[i].Project]; ok && p.ownerGUID() != "" {
			rows[i].User = p.ownerGUID()
		} else {
			rows[i].User = CacheMiss
		}
	}
	return stamp(rows, f.today()), nil
}

// RealizedBilling returns the invoices dated within span.
func (f *Fetcher) RealizedBilling(ctx context.Context, span daterange.Range) ([]models.MetricRow, error) {
	params, err := spanParams(span)
	if err != nil {
		return nil, err
	}
	params["projectBusinessUnitGuids"] = f.businessUnits

	invoices, err := getAll[Invoice](ctx, f.client, "invoices", params)
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		log.WithField("span", span.String()).Warn("severa: no invoices")
	}

	rows := make([]models.MetricRow, 0, len(invoices))
	for _, inv := range invoices {
		project := ""
		if len(inv.Projects) > 0 {
			project = inv.Projects[0].GUID
		}
		value := inv.TotalExcludingTax.Value()
		rows = append(rows, models.MetricRow{
			Kind:         models.KindBilling,
			Value:        value,
			Billing:      value,
			Project:      project,
			Date:         timePtr(inv.Date.Midnight()),
			InternalGUID: inv.GUID,
		})
	}
	return rows, nil
}

// ForecastedBilling returns the monthly forecasts of open external
// projects within span. Forecasts that are zero in every column are
// dropped.
func (f *Fetcher) ForecastedBilling(ctx context.Context, span daterange.Range) ([]models.MetricRow, error) {
	params, err := spanParams(span)
	if err != nil {
		return nil, err
	}
	projects, err := f.Projects(ctx)
	if err != nil {
		return nil, err
	}

	var open []Project
	for _, p := range projects {
		if !p.IsClosed && !p.IsInternal {
			open = append(open, p)
		}
	}

	forecasts, err := gather(ctx, open, func(ctx context.Context, p Project) ([]ProjectForecast, error) {
		return getAll[ProjectForecast](ctx, f.client, "projects/"+p.GUID+"/projectforecasts", params)
	})
	if err != nil {
		return nil, err
	}

	var rows []models.MetricRow
	for _, fc := range forecasts {
		row := models.MetricRow{
			Kind:         models.KindBilling,
			Project:      fc.Project.GUID,
			InternalGUID: fc.GUID,
			Value:        fc.BillingForecast.Value(),
			Billing:      fc.BillingForecast.Value(),
			Expense:      fc.ExpenseForecast.Value(),
			Revenue:      fc.RevenueForecast.Value(),
			LaborExpense: fc.LaborExpenseForecast.Value(),
		}
		if row.Billing+row.Expense+row.Revenue+row.LaborExpense == 0 {
			continue
		}
		month := time.Date(fc.Year, time.Month(fc.Month), 1, 0, 0, 0, 0, time.UTC)
		row.StartDate = timePtr(daterange.FloorMonth(month))
		row.EndDate = timePtr(daterange.CeilMonth(month))
		rows = append(rows, row)
	}
	return rows, nil
}

// Salesvalue returns the value of projects ordered within the past part of
// span and the expected value of open sales cases for its future part.
func (f *Fetcher) Salesvalue(ctx context.Context, span daterange.Range) ([]models.MetricRow, error) {
	if span.IsEmpty() {
		return nil, nil
	}
	past, future := span.Cut(f.now())

	var rows []models.MetricRow
	if !past.IsEmpty() {
		realized, err := f.RealizedSalesvalue(ctx, past)
		if err != nil {
			return nil, err
		}
		rows = append(rows, realized...)
	}
	if !future.IsEmpty() {
		sales, err := f.Sales(ctx, false, nil)
		if err != nil {
			return nil, err
		}
		rows = append(rows, filterKind(sales, models.KindSalesvalue)...)
	}
	return stamp(rows, f.today()), nil
}

// RealizedSalesvalue returns the full expected value of ordered projects
// whose order date falls within span.
func (f *Fetcher) RealizedSalesvalue(ctx context.Context, span daterange.Range) ([]models.MetricRow, error) {
	projects, err := f.Projects(ctx)
	if err != nil {
		return nil, err
	}
	var rows []models.MetricRow
	for _, p := range projects {
		if p.ExpectedOrderDate == nil || p.ExpectedOrderDate.IsZero() || !span.Contains(p.ExpectedOrderDate.Midnight()) {
			continue
		}
		rows = append(rows, models.MetricRow{
			Kind:         models.KindSalesvalue,
			Value:        p.ExpectedValue.Value(),
			Project:      p.GUID,
			Date:         dayPtr(p.ExpectedOrderDate),
			User:         p.ownerGUID(),
			SoldBy:       p.sellerGUID(),
			InternalGUID: p.GUID,
		})
	}
	return rows, nil
}
