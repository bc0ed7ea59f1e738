package repository

import (
	"context"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PurchaseOrderRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.PurchaseOrder, error)
	FindByIDWithItems(ctx context.Context, id uuid.UUID) (*model.PurchaseOrder, error)
	List(ctx context.Context, page, limit int) ([]model.PurchaseOrder, int64, error)
	FindGRNByID(ctx context.Context, id uuid.UUID) (*model.GoodsReceiptNote, error)
	FindGRNByIDWithItems(ctx context.Context, id uuid.UUID) (*model.GoodsReceiptNote, error)
}

type purchaseOrderRepository struct {
	db *gorm.DB
}

func NewPurchaseOrderRepository(db *gorm.DB) PurchaseOrderRepository {
	return &purchaseOrderRepository{db: db}
}

func (r *purchaseOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.PurchaseOrder, error) {
	var po model.PurchaseOrder
	if err := GetDB(ctx, r.db).First(&po, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &po, nil
}

func (r *purchaseOrderRepository) FindByIDWithItems(ctx context.Context, id uuid.UUID) (*model.PurchaseOrder, error) {
	var po model.PurchaseOrder
	err := GetDB(ctx, r.db).
		Preload("LineItems", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order asc") }).
		First(&po, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &po, nil
}

func (r *purchaseOrderRepository) List(ctx context.Context, page, limit int) ([]model.PurchaseOrder, int64, error) {
	var pos []model.PurchaseOrder
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.PurchaseOrder{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Order("po_number asc").Offset(offset).Limit(limit).Find(&pos).Error; err != nil {
		return nil, 0, err
	}
	return pos, total, nil
}

func (r *purchaseOrderRepository) FindGRNByID(ctx context.Context, id uuid.UUID) (*model.GoodsReceiptNote, error) {
	var grn model.GoodsReceiptNote
	if err := GetDB(ctx, r.db).First(&grn, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &grn, nil
}

func (r *purchaseOrderRepository) FindGRNByIDWithItems(ctx context.Context, id uuid.UUID) (*model.GoodsReceiptNote, error) {
	var grn model.GoodsReceiptNote
	if err := GetDB(ctx, r.db).Preload("LineItems").First(&grn, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &grn, nil
}
