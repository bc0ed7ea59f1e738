package repository

import (
	"context"

	"backend/internal/model"

	"gorm.io/gorm"
)

type EventLogRepository interface {
	Append(ctx context.Context, entry *model.EventLog) error
	List(ctx context.Context, page, limit int) ([]model.EventLog, int64, error)
}

type eventLogRepository struct {
	db *gorm.DB
}

func NewEventLogRepository(db *gorm.DB) EventLogRepository {
	return &eventLogRepository{db: db}
}

func (r *eventLogRepository) Append(ctx context.Context, entry *model.EventLog) error {
	return GetDB(ctx, r.db).Create(entry).Error
}

func (r *eventLogRepository) List(ctx context.Context, page, limit int) ([]model.EventLog, int64, error) {
	var entries []model.EventLog
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.EventLog{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Order("created_at desc").Offset(offset).Limit(limit).Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
