package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/KAsare1/trainer-booking-server/cmd/models"
	"github.com/KAsare1/trainer-booking-server/db"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) User(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", id, err)
	}
	return &user, nil
}

func (s *GormStore) TrainerProfile(ctx context.Context, id uint) (*models.TrainerProfile, error) {
	var profile models.TrainerProfile
	err := s.db.WithContext(ctx).Preload("User").First(&profile, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load trainer %d: %w", id, err)
	}
	return &profile, nil
}

func (s *GormStore) DeviceTokens(ctx context.Context, userID uint) ([]string, error) {
	var tokens []string
	err := s.db.WithContext(ctx).Model(&models.Device{}).Where("user_id = ?", userID).Pluck("token", &tokens).Error
	if err != nil {
		return nil, fmt.Errorf("load devices for user %d: %w", userID, err)
	}
	return tokens, nil
}

func (s *GormStore) RemoveTokens(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Where("token IN ?", tokens).Delete(&models.Device{}).Error
}

func (s *GormStore) RecordHistory(ctx context.Context, entries []models.NotificationHistory) error {
	if len(entries) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&entries).Error
}

// SaveDevice registers the token for the user, refreshing its metadata when
// it is already known.
func (s *GormStore) SaveDevice(ctx context.Context, d *models.Device) error {
	refresh := clause.Assignments(map[string]interface{}{
		"device_type": d.DeviceType,
		"device_name": d.DeviceName,
		"updated_at":  time.Now(),
		"deleted_at":  nil,
	})
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}, {Name: "user_id"}},
		DoUpdates: refresh,
	}).Create(d).Error
}

func (s *GormStore) ListDevices(ctx context.Context, userID uint) ([]models.Device, error) {
	var devices []models.Device
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return devices, nil
}

func (s *GormStore) DeleteDevice(ctx context.Context, userID, id uint) (bool, error) {
	result := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Device{}, id)
	if result.Error != nil {
		return false, fmt.Errorf("delete device %d: %w", id, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (s *GormStore) History(ctx context.Context, userID uint, page, pageSize int) ([]models.NotificationHistory, int64, error) {
	if page < 1 {
		page = 1
	}
	var total int64
	if err := s.db.WithContext(ctx).Model(&models.NotificationHistory{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}
	var history []models.NotificationHistory
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("sent_at DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&history).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	return history, total, nil
}
