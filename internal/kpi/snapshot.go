package kpi

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"kpi-backend/internal/daterange"
	"kpi-backend/internal/models"
	"kpi-backend/internal/store"
)

var ErrUnknownCollection = errors.New("unknown collection")

// InvalidSalesCaseTTL is how long an invalid sales case finding is kept.
const InvalidSalesCaseTTL = 23 * time.Hour

type snapshotTarget struct {
	collection string
	days       int
	fetch      func(context.Context, daterange.Range) ([]models.MetricRow, error)
}

// SnapshotResult counts the rows written per collection.
type SnapshotResult struct {
	Rows         map[string]int64 `json:"rows"`
	InvalidCases int              `json:"invalid_cases"`
	Errors       []string         `json:"errors,omitempty"`
}

// SaveSparse stores today's hours, sales value and billing forecasts and
// refreshes the invalid sales case findings. A failing collection is logged
// and skipped; the returned error joins every failure.
func (s *Service) SaveSparse(ctx context.Context) (SnapshotResult, error) {
	targets := []snapshotTarget{
		{models.CollectionHours, 540, s.source.Hours},
		{models.CollectionSales, 540, s.source.Salesvalue},
		{models.CollectionBilling, 120, s.source.Billing},
	}

	result := SnapshotResult{Rows: map[string]int64{}}
	var errs []error
	fail := func(what string, err error) {
		log.WithField("source", "save_sparse").WithError(err).Errorf("%s failed", what)
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", what, err))
		errs = append(errs, fmt.Errorf("%s: %w", what, err))
	}

	for _, target := range targets {
		started := time.Now()
		rows, err := target.fetch(ctx, daterange.Days(target.days))
		if err != nil {
			fail(target.collection, err)
			continue
		}
		n, err := s.store.UpsertRows(ctx, target.collection, rows)
		if err != nil {
			fail(target.collection, err)
			continue
		}
		result.Rows[target.collection] = n
		log.WithFields(log.Fields{
			"source":     "save_sparse",
			"collection": target.collection,
			"rows":       len(rows),
			"took":       time.Since(started).Round(time.Millisecond).String(),
		}).Info("snapshot saved")
	}

	if err := s.RefreshInvalidSalesCases(ctx, &result); err != nil {
		fail("invalid sales cases", err)
	}
	return result, errors.Join(errs...)
}

// RefreshInvalidSalesCases expires stale findings and stores fresh ones.
func (s *Service) RefreshInvalidSalesCases(ctx context.Context, result *SnapshotResult) error {
	cases, err := s.source.InvalidSalesCases(ctx)
	if err != nil {
		return err
	}
	if _, err := s.store.ExpireInvalidSalesCases(ctx, InvalidSalesCaseTTL); err != nil {
		return err
	}
	if err := s.store.UpsertInvalidSalesCases(ctx, cases); err != nil {
		return err
	}
	if result != nil {
		result.InvalidCases = len(cases)
	}
	return nil
}

// InvalidSalesCases fetches fresh findings, stores them and returns them.
func (s *Service) InvalidSalesCases(ctx context.Context) ([]models.InvalidSalesCase, error) {
	cases, err := s.source.InvalidSalesCases(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpsertInvalidSalesCases(ctx, cases); err != nil {
		return nil, err
	}
	return cases, nil
}

// StoredInvalidSalesCases lists the findings that have not expired.
func (s *Service) StoredInvalidSalesCases(ctx context.Context) ([]models.InvalidSalesCase, error) {
	return s.store.InvalidSalesCases(ctx, InvalidSalesCaseTTL)
}

// Stored dumps a stored collection.
func (s *Service) Stored(ctx context.Context, collection string) ([]models.MetricRow, error) {
	switch collection {
	case models.CollectionHours, models.CollectionSales, models.CollectionBilling:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCollection, collection)
	}
	return s.store.FindRows(ctx, collection, store.RowFilter{})
}
