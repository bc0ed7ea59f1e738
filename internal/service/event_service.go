package service

import (
	"context"
	"fmt"

	"backend/internal/model"
	"backend/internal/repository"
)

// EventService exposes the append-only domain event log for audit reads.
type EventService interface {
	List(ctx context.Context, page, limit int) ([]model.EventLog, int64, error)
}

type eventService struct {
	eventLogRepo repository.EventLogRepository
}

func NewEventService(eventLogRepo repository.EventLogRepository) EventService {
	return &eventService{eventLogRepo: eventLogRepo}
}

func (s *eventService) List(ctx context.Context, page, limit int) ([]model.EventLog, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}
	entries, total, err := s.eventLogRepo.List(ctx, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch event log: %w", err)
	}
	return entries, total, nil
}
