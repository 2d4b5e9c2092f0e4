package store

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"kpi-backend/internal/models"
)

func (s *Store) Setting(ctx context.Context, key string) (string, error) {
	var setting models.Setting
	err := s.DB.WithContext(ctx).Where("`key` = ?", key).Take(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(setting.Value), nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	var setting models.Setting
	err := s.DB.WithContext(ctx).Where("`key` = ?", key).Take(&setting).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			setting = models.Setting{Key: key, Value: value}
			return s.DB.WithContext(ctx).Create(&setting).Error
		}
		return err
	}

	setting.Value = value
	return s.DB.WithContext(ctx).Save(&setting).Error
}
