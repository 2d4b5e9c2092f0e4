package store

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm/clause"

	"kpi-backend/internal/models"
)

func (s *Store) UpsertInvalidSalesCases(ctx context.Context, cases []models.InvalidSalesCase) error {
	if len(cases) == 0 {
		return nil
	}
	return s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "row_id"}}, UpdateAll: true}).
		CreateInBatches(cases, batchSize).Error
}

// InvalidSalesCases lists findings inserted within ttl.
func (s *Store) InvalidSalesCases(ctx context.Context, ttl time.Duration) ([]models.InvalidSalesCase, error) {
	var cases []models.InvalidSalesCase
	err := s.DB.WithContext(ctx).
		Where("inserted >= ?", time.Now().UTC().Add(-ttl)).
		Order("category asc, name asc").
		Find(&cases).Error
	return cases, err
}

// ExpireInvalidSalesCases deletes findings older than ttl.
func (s *Store) ExpireInvalidSalesCases(ctx context.Context, ttl time.Duration) (int64, error) {
	result := s.DB.WithContext(ctx).
		Where("inserted < ?", time.Now().UTC().Add(-ttl)).
		Delete(&models.InvalidSalesCase{})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		log.WithField("deleted", result.RowsAffected).Info("expired invalid sales cases")
	}
	return result.RowsAffected, nil
}
