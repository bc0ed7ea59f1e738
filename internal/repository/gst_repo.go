package repository

import (
	"context"
	"errors"

	"backend/internal/model"

	"gorm.io/gorm"
)

type GSTRepository interface {
	// FindByGSTIN returns (nil, nil) when the GSTIN is not cached.
	// Cache absence is an expected, non-fatal outcome.
	FindByGSTIN(ctx context.Context, gstin string) (*model.GSTRecord, error)
	List(ctx context.Context) ([]model.GSTRecord, error)
	Update(ctx context.Context, record *model.GSTRecord) error
}

type gstRepository struct {
	db *gorm.DB
}

func NewGSTRepository(db *gorm.DB) GSTRepository {
	return &gstRepository{db: db}
}

func (r *gstRepository) FindByGSTIN(ctx context.Context, gstin string) (*model.GSTRecord, error) {
	var record model.GSTRecord
	err := GetDB(ctx, r.db).First(&record, "gstin = ?", gstin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *gstRepository) List(ctx context.Context) ([]model.GSTRecord, error) {
	var records []model.GSTRecord
	if err := GetDB(ctx, r.db).Order("gstin asc").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *gstRepository) Update(ctx context.Context, record *model.GSTRecord) error {
	return GetDB(ctx, r.db).Save(record).Error
}
