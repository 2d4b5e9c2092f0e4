// Package kpi loads, processes and merges the metric data sets the
// dashboards and reports are built from.
package kpi

import (
	"context"
	"errors"
	"slices"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"kpi-backend/internal/daterange"
	"kpi-backend/internal/models"
	"kpi-backend/internal/process"
	"kpi-backend/internal/store"
)

// Source is the ERP data the service reads.
type Source interface {
	UserInformation(ctx context.Context) ([]models.MetricRow, error)
	AllUsers(ctx context.Context) ([]models.UserInfo, error)
	Hours(ctx context.Context, span daterange.Range) ([]models.MetricRow, error)
	Billing(ctx context.Context, span daterange.Range) ([]models.MetricRow, error)
	Salesvalue(ctx context.Context, span daterange.Range) ([]models.MetricRow, error)
	InvalidSalesCases(ctx context.Context) ([]models.InvalidSalesCase, error)
}

type Service struct {
	source    Source
	store     *store.Store
	processor *process.Processor
	now       func() time.Time
}

func NewService(source Source, st *store.Store, processor *process.Processor) *Service {
	return &Service{source: source, store: st, processor: processor, now: processor.Now}
}

// DefaultSpan runs from the start of the month four months back to the end
// of the month two months ahead.
func DefaultSpan(now time.Time) daterange.Range {
	return daterange.New(
		daterange.FloorMonth(now.AddDate(0, -4, 0)),
		daterange.CeilMonth(now.AddDate(0, 2, 0)),
	)
}

// LoadAndMerge returns the daily rows of users, billing, hours and sales
// within span with user names merged in. When forecastsFromDatabase is set
// the future part of span comes from the latest stored snapshot instead of
// the ERP.
func (s *Service) LoadAndMerge(ctx context.Context, span daterange.Range, forecastsFromDatabase bool) ([]models.MetricRow, error) {
	if span.IsEmpty() {
		return nil, nil
	}

	erpSpan, future := span, daterange.Empty()
	if forecastsFromDatabase {
		erpSpan, future = span.Cut(s.now())
	}
	fromDB := forecastsFromDatabase && !future.IsEmpty()

	log.WithFields(log.Fields{
		"erp":      erpSpan.String(),
		"database": future.String(),
	}).Debug("kpi: load and merge")

	var (
		userInfo, billing, hours, sales []models.MetricRow
		billingF, hoursF, salesF        []models.MetricRow
		allUsers                        []models.UserInfo
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		userInfo, err = s.source.UserInformation(gctx)
		return err
	})
	g.Go(func() (err error) {
		allUsers, err = s.source.AllUsers(gctx)
		return err
	})
	if !erpSpan.IsEmpty() {
		g.Go(func() (err error) {
			billing, err = s.source.Billing(gctx, erpSpan)
			return err
		})
		g.Go(func() (err error) {
			hours, err = s.source.Hours(gctx, erpSpan)
			return err
		})
		g.Go(func() (err error) {
			sales, err = s.source.Salesvalue(gctx, erpSpan)
			return err
		})
	}
	if fromDB {
		g.Go(func() (err error) {
			billingF, hoursF, salesF, err = s.latestSnapshot(gctx)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sets := [][]models.MetricRow{s.processor.Process(userInfo, span, process.Users)}
	if !erpSpan.IsEmpty() {
		sets = append(sets,
			s.processor.Process(billing, span, process.Billing),
			s.processor.Process(hours, span, process.Hours),
			s.processor.Process(sales, span, process.Sales),
		)
	}
	if fromDB {
		// The snapshot also holds days before it was taken; only its
		// future days are used so the ERP rows are not counted twice.
		sets = append(sets,
			s.processor.Process(billingF, future, process.Billing),
			s.processor.Process(hoursF, future, process.Hours),
			s.processor.Process(salesF, future, process.Sales),
		)
	}

	rows := process.MergeUserInfo(allUsers, process.Concat(sets...))
	now := s.now()
	for i := range rows {
		rows[i].IsPast = rows[i].Date != nil && !rows[i].Date.After(now)
	}
	return rows, nil
}

// latestSnapshot loads the newest stored forecast of each collection.
func (s *Service) latestSnapshot(ctx context.Context) (billing, hours, sales []models.MetricRow, err error) {
	latest, err := s.store.LatestForecastDate(ctx, models.CollectionBilling)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("kpi: no stored forecasts")
		return nil, nil, nil, nil
	}
	if err != nil {
		return nil, nil, nil, err
	}

	at := store.RowFilter{ForecastDate: &latest}
	if billing, err = s.store.FindRows(ctx, models.CollectionBilling, at); err != nil {
		return nil, nil, nil, err
	}
	hoursFilter := at
	hoursFilter.ExcludeKinds = []string{models.KindMaximum}
	if hours, err = s.store.FindRows(ctx, models.CollectionHours, hoursFilter); err != nil {
		return nil, nil, nil, err
	}
	if sales, err = s.store.FindRows(ctx, models.CollectionSales, at); err != nil {
		return nil, nil, nil, err
	}
	return billing, hours, sales, nil
}

func filterKinds(rows []models.MetricRow, kinds ...string) []models.MetricRow {
	out := make([]models.MetricRow, 0, len(rows))
	for _, r := range rows {
		if slices.Contains(kinds, r.Kind) {
			out = append(out, r)
		}
	}
	return out
}

// Totals is every merged row within span.
func (s *Service) Totals(ctx context.Context, span daterange.Range) ([]models.MetricRow, error) {
	return s.LoadAndMerge(ctx, span, true)
}

// Hours is the data of the hours dashboard.
func (s *Service) Hours(ctx context.Context, span daterange.Range) ([]models.MetricRow, error) {
	rows, err := s.LoadAndMerge(ctx, span, true)
	if err != nil {
		return nil, err
	}
	return filterKinds(rows, models.KindMaximum, models.KindWorkhours, models.KindAbsences, models.KindSaleswork), nil
}

// SalesMargin is the data of the sales margin dashboard.
func (s *Service) SalesMargin(ctx context.Context, span daterange.Range) ([]models.MetricRow, error) {
	rows, err := s.LoadAndMerge(ctx, span, true)
	if err != nil {
		return nil, err
	}
	return filterKinds(rows,
		models.KindBilling, models.KindHourCost, models.KindMaximum,
		models.KindWorkhours, models.KindAbsences, models.KindSaleswork,
	), nil
}

// Billing returns realized billing within the past part of span.
func (s *Service) Billing(ctx context.Context, span daterange.Range) ([]models.MetricRow, error) {
	past, _ := span.Cut(s.now())
	if past.IsEmpty() {
		return []models.MetricRow{}, nil
	}

	var (
		rows  []models.MetricRow
		users []models.UserInfo
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		rows, err = s.source.Billing(gctx, past)
		return err
	})
	g.Go(func() (err error) {
		users, err = s.source.AllUsers(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return process.MergeUserInfo(users, s.processor.Process(rows, past, process.Billing)), nil
}

// BillingHistory returns every stored billing forecast spread over days,
// with the number of days between the forecast and the forecast day.
// Days before the forecast was made are dropped.
func (s *Service) BillingHistory(ctx context.Context) ([]models.MetricRow, error) {
	stored, err := s.store.FindRows(ctx, models.CollectionBilling, store.RowFilter{Kinds: []string{models.KindBilling}})
	if err != nil {
		return nil, err
	}
	users, err := s.source.AllUsers(ctx)
	if err != nil {
		return nil, err
	}

	var forecasts []models.MetricRow
	for _, r := range stored {
		if r.Date == nil && r.StartDate != nil && r.EndDate != nil && r.ForecastDate != nil {
			forecasts = append(forecasts, r)
		}
	}

	var out []models.MetricRow
	for _, r := range s.processor.Unravel(forecasts, process.Billing) {
		length := int(daterange.FloorDay(*r.Date).Sub(daterange.FloorDay(*r.ForecastDate)).Hours() / 24)
		if length < 0 {
			continue
		}
		r.ForecastLength = &length
		out = append(out, r)
	}
	return process.MergeUserInfo(users, out), nil
}

// EarliestForecastDate is the day the first stored billing forecast was
// made. ok is false when nothing has been saved yet.
func (s *Service) EarliestForecastDate(ctx context.Context) (first time.Time, ok bool, err error) {
	first, err = s.store.EarliestForecastDate(ctx, models.CollectionBilling, models.KindBilling)
	if errors.Is(err, store.ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return first, true, nil
}
