package store

import (
	"context"
	"time"

	"kpi-backend/internal/models"
)

func (s *Store) SavePressure(ctx context.Context, reading *models.PressureReading) error {
	reading.Date = reading.Date.UTC()
	return s.DB.WithContext(ctx).Create(reading).Error
}

// FindPressure returns readings dated within [start, end], optionally only
// for the given users, oldest first.
func (s *Store) FindPressure(ctx context.Context, start, end time.Time, users []string) ([]models.PressureReading, error) {
	query := s.DB.WithContext(ctx).Where("date >= ? AND date <= ?", start.UTC(), end.UTC())
	if len(users) > 0 {
		query = query.Where("`user` IN ?", users)
	}

	var readings []models.PressureReading
	if err := query.Order("date asc").Find(&readings).Error; err != nil {
		return nil, err
	}
	return readings, nil
}
