package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"kpi-backend/internal/models"
)

// RowFilter narrows FindRows. Zero fields do not filter.
type RowFilter struct {
	Kinds        []string
	ExcludeKinds []string
	ForecastDate *time.Time
	Since        *time.Time
}

// UpsertRows writes rows into a collection. Rows with an id replace the
// stored row with the same id, rows without one are inserted.
func (s *Store) UpsertRows(ctx context.Context, collection string, rows []models.MetricRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	for i := range rows {
		rows[i].Collection = collection
	}

	start := time.Now()
	result := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "row_id"}}, UpdateAll: true}).
		CreateInBatches(rows, batchSize)
	if result.Error != nil {
		return 0, fmt.Errorf("upsert %s: %w", collection, result.Error)
	}

	log.WithFields(log.Fields{
		"collection": collection,
		"rows":       len(rows),
		"affected":   result.RowsAffected,
		"took":       time.Since(start).String(),
	}).Info("upserted rows")
	return result.RowsAffected, nil
}

func (s *Store) FindRows(ctx context.Context, collection string, filter RowFilter) ([]models.MetricRow, error) {
	query := s.DB.WithContext(ctx).Where("collection = ?", collection)
	if len(filter.Kinds) > 0 {
		query = query.Where("kind IN ?", filter.Kinds)
	}
	if len(filter.ExcludeKinds) > 0 {
		query = query.Where("kind NOT IN ?", filter.ExcludeKinds)
	}
	if filter.ForecastDate != nil {
		query = query.Where("forecast_date = ?", *filter.ForecastDate)
	}
	if filter.Since != nil {
		query = query.Where("forecast_date >= ?", *filter.Since)
	}

	start := time.Now()
	var rows []models.MetricRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	log.WithFields(log.Fields{
		"collection": collection,
		"rows":       len(rows),
		"took":       time.Since(start).String(),
	}).Debug("found rows")
	return rows, nil
}

// LatestForecastDate returns the newest snapshot date in a collection.
func (s *Store) LatestForecastDate(ctx context.Context, collection string) (time.Time, error) {
	return s.forecastDate(ctx, collection, "forecast_date desc", nil)
}

// EarliestForecastDate returns the oldest forecast date among the span
// rows of the given kinds. It reads a single row through the forecast date
// index.
func (s *Store) EarliestForecastDate(ctx context.Context, collection string, kinds ...string) (time.Time, error) {
	return s.forecastDate(ctx, collection, "forecast_date asc", func(q *gorm.DB) *gorm.DB {
		q = q.Where("date IS NULL AND start_date IS NOT NULL AND end_date IS NOT NULL")
		if len(kinds) > 0 {
			q = q.Where("kind IN ?", kinds)
		}
		return q
	})
}

func (s *Store) forecastDate(ctx context.Context, collection, order string, scope func(*gorm.DB) *gorm.DB) (time.Time, error) {
	query := s.DB.WithContext(ctx).Where("collection = ? AND forecast_date IS NOT NULL", collection)
	if scope != nil {
		query = scope(query)
	}
	var row models.MetricRow
	err := query.Order(order).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	return row.ForecastDate.UTC(), nil
}
