package severa

import (
	"context"
	"net/url"

	"kpi-backend/internal/daterange"
	"kpi-backend/internal/models"
)

const activityTimeLayout = "2006-01-02T15:04:05-07:00"

func spanParams(span daterange.Range) (url.Values, error) {
	params, err := span.Params()
	if err != nil {
		return nil, err
	}
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	return values, nil
}

// Absences returns absence hours within span. All-day absences are counted
// as the user's daily hours on each workday; absences that end up as zero
// hours are dropped.
func (f *Fetcher) Absences(ctx context.Context, span daterange.Range) ([]models.MetricRow, error) {
	if span.IsEmpty() {
		return nil, nil
	}
	guids, err := f.userGUIDs(ctx)
	if err != nil {
		return nil, err
	}

	activities, err := getAll[Activity](ctx, f.client, "activities", url.Values{
		"activityCategories": {"Absences"},
		"startDateTime":      {span.Start().Format(activityTimeLayout)},
		"endDateTime":        {span.End().Format(activityTimeLayout)},
		"userGuids":          guids,
	})
	if err != nil {
		return nil, err
	}

	var rows []models.MetricRow
	for _, a := range activities {
		row := models.MetricRow{
			Kind:         models.KindAbsences,
			User:         a.OwnerUser.GUID,
			Value:        a.EndDateTime.Sub(a.StartDateTime.Time).Hours(),
			InternalGUID: a.GUID,
		}
		start, end := a.StartDateTime.Midnight(), a.EndDateTime.Midnight()
		singleDay := start.Equal(end)
		if singleDay {
			row.Date = timePtr(start)
		} else {
			row.StartDate, row.EndDate = timePtr(start), timePtr(end)
		}

		if a.IsAllDay {
			user, _, err := f.UserByGUID(ctx, a.OwnerUser.GUID)
			if err != nil {
				return nil, err
			}
			workdays := 0
			if singleDay {
				if f.calendar.IsWorkday(start) {
					workdays = 1
				}
			} else {
				workdays = f.calendar.WorkdaysBetween(start, end)
			}
			row.Value = user.DailyHours() * float64(workdays)
		}

		if row.Value > 0 {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// RealizedWorkhours returns the logged hours of every user within span.
func (f *Fetcher) RealizedWorkhours(ctx context.Context, span daterange.Range) ([]models.MetricRow, error) {
	if span.IsEmpty() {
		return nil, nil
	}
	params, err := spanParams(span)
	if err != nil {
		return nil, err
	}
	users, err := f.Users(ctx)
	if err != nil {
		return nil, err
	}
	return gather(ctx, users, func(ctx context.Context, user User) ([]models.MetricRow, error) {
		hours, err := getAll[WorkHour](ctx, f.client, "users/"+user.GUID+"/workhours", params)
		if err != nil {
			return nil, err
		}
		rows := make([]models.MetricRow, len(hours))
		for i, h := range hours {
			rows[i] = models.MetricRow{
				Kind:         models.KindWorkhours,
				User:         user.GUID,
				Value:        h.Quantity,
				Date:         timePtr(h.EventDate.Midnight()),
				Project:      h.Project.GUID,
				Phase:        h.Phase.GUID,
				Productive:   h.IsProductive,
				InternalGUID: h.GUID,
			}
		}
		return rows, nil
	})
}

// ForecastedWorkhours returns resource allocations within span as rows
// spanning the allocation dates.
func (f *Fetcher) ForecastedWorkhours(ctx context.Context, span daterange.Range) ([]models.MetricRow, error) {
	if span.IsEmpty() {
		return nil, nil
	}
	params, err := spanParams(span)
	if err != nil {
		return nil, err
	}
	users, err := f.Users(ctx)
	if err != nil {
		return nil, err
	}
	return gather(ctx, users, func(ctx context.Context, user User) ([]models.MetricRow, error) {
		allocations, err := getAll[ResourceAllocation](ctx, f.client, "users/"+user.GUID+"/resourceallocations/allocations", params)
		if err != nil {
			return nil, err
		}
		rows := make([]models.MetricRow, len(allocations))
		for i, a := range allocations {
			rows[i] = models.MetricRow{
				Kind:         models.KindWorkhours,
				User:         user.GUID,
				Value:        a.CalculatedAllocationHours,
				StartDate:    timePtr(a.DerivedStartDate.Midnight()),
				EndDate:      timePtr(a.DerivedEndDate.Midnight()),
				Project:      a.Project.GUID,
				Phase:        a.Phase.GUID,
				Productive:   !a.Project.IsInternal,
				InternalGUID: a.GUID,
			}
		}
		return rows, nil
	})
}

// ForecastedSaleswork returns the expected work of open sales cases.
func (f *Fetcher) ForecastedSaleswork(ctx context.Context) ([]models.MetricRow, error) {
	sales, err := f.Sales(ctx, false, nil)
	if err != nil {
		return nil, err
	}
	return filterKind(sales, models.KindSaleswork), nil
}

// Hours returns absences over the whole span, realized hours for its past
// part and allocations plus sales work for its future part.
func (f *Fetcher) Hours(ctx context.Context, span daterange.Range) ([]models.MetricRow, error) {
	if span.IsEmpty() {
		return nil, nil
	}
	past, future := span.Cut(f.now())

	parts := []func(context.Context) ([]models.MetricRow, error){
		func(ctx context.Context) ([]models.MetricRow, error) { return f.Absences(ctx, span) },
	}
	if !past.IsEmpty() {
		parts = append(parts, func(ctx context.Context) ([]models.MetricRow, error) {
			return f.RealizedWorkhours(ctx, past)
		})
	}
	if !future.IsEmpty() {
		parts = append(parts,
			func(ctx context.Context) ([]models.MetricRow, error) { return f.ForecastedWorkhours(ctx, future) },
			f.ForecastedSaleswork,
		)
	}

	rows, err := gather(ctx, parts, func(ctx context.Context, part func(context.Context) ([]models.MetricRow, error)) ([]models.MetricRow, error) {
		return part(ctx)
	})
	if err != nil {
		return nil, err
	}
	return stamp(rows, f.today()), nil
}

func filterKind(rows []models.MetricRow, kind string) []models.MetricRow {
	var out []models.MetricRow
	for _, r := range rows {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}
