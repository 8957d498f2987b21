package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"anoa.com/notifeed/internal/model"
)

type ActivityRepository interface {
	SaveMany(ctx context.Context, records []model.ActivityRecord) error
	GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.ActivityRecord, error)
}

type activityRepository struct {
	db *gorm.DB
}

func NewActivityRepository(db *gorm.DB) ActivityRepository {
	return &activityRepository{db: db}
}

func (r *activityRepository) SaveMany(ctx context.Context, records []model.ActivityRecord) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&records).Error
}

func (r *activityRepository) GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.ActivityRecord, error) {
	var records []model.ActivityRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("occurred_at desc").
		Limit(limit).
		Offset(offset).
		Find(&records).Error
	return records, err
}
