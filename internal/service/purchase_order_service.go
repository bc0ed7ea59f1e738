package service

import (
	"context"
	"fmt"

	"backend/internal/model"
	"backend/internal/repository"
	"backend/pkg/apperr"

	"github.com/google/uuid"
)

type PurchaseOrderService interface {
	Get(ctx context.Context, id string) (*model.PurchaseOrder, error)
	List(ctx context.Context, page, limit int) ([]model.PurchaseOrder, int64, error)
	GetGRN(ctx context.Context, id string) (*model.GoodsReceiptNote, error)
}

type purchaseOrderService struct {
	poRepo repository.PurchaseOrderRepository
}

func NewPurchaseOrderService(poRepo repository.PurchaseOrderRepository) PurchaseOrderService {
	return &purchaseOrderService{poRepo: poRepo}
}

func (s *purchaseOrderService) Get(ctx context.Context, id string) (*model.PurchaseOrder, error) {
	poID, err := uuid.Parse(id)
	if err != nil {
		return nil, apperr.Validation("invalid purchase order id: %s", id)
	}
	po, err := s.poRepo.FindByIDWithItems(ctx, poID)
	if err != nil {
		return nil, apperr.NotFound("Purchase order %s not found", id)
	}
	return po, nil
}

func (s *purchaseOrderService) List(ctx context.Context, page, limit int) ([]model.PurchaseOrder, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	pos, total, err := s.poRepo.List(ctx, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch purchase orders: %w", err)
	}
	return pos, total, nil
}

func (s *purchaseOrderService) GetGRN(ctx context.Context, id string) (*model.GoodsReceiptNote, error) {
	grnID, err := uuid.Parse(id)
	if err != nil {
		return nil, apperr.Validation("invalid GRN id: %s", id)
	}
	grn, err := s.poRepo.FindGRNByIDWithItems(ctx, grnID)
	if err != nil {
		return nil, apperr.NotFound("GRN %s not found", id)
	}
	return grn, nil
}
