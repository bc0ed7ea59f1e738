package service

import (
	"context"
	"fmt"
	"time"

	"backend/internal/model"
	"backend/internal/repository"
	"backend/pkg/apperr"
)

type GSTLookupResponse struct {
	model.GSTRecord
	CacheAgeHours float64 `json:"cache_age_hours"`
}

type GSTCacheSummary struct {
	TotalRecords   int   `json:"total_records"`
	Active         int   `json:"active"`
	Suspended      int   `json:"suspended"`
	Cancelled      int   `json:"cancelled"`
	ITCEligible    int   `json:"itc_eligible"`
	TotalCacheHits int64 `json:"total_cache_hits"`
}

type GSTListResponse struct {
	Summary GSTCacheSummary   `json:"summary"`
	Records []model.GSTRecord `json:"records"`
}

type GSTService interface {
	// Lookup reads one cached GST record and counts the hit.
	Lookup(ctx context.Context, gstin string) (GSTLookupResponse, error)
	List(ctx context.Context) (GSTListResponse, error)
}

type gstService struct {
	gstRepo repository.GSTRepository
	now     func() time.Time
}

func NewGSTService(gstRepo repository.GSTRepository) GSTService {
	return &gstService{
		gstRepo: gstRepo,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *gstService) Lookup(ctx context.Context, gstin string) (GSTLookupResponse, error) {
	record, err := s.gstRepo.FindByGSTIN(ctx, gstin)
	if err != nil {
		return GSTLookupResponse{}, fmt.Errorf("failed to read GST cache: %w", err)
	}
	if record == nil {
		return GSTLookupResponse{}, apperr.NotFound("GSTIN %s not in cache", gstin)
	}

	record.CacheHitCount++
	if err := s.gstRepo.Update(ctx, record); err != nil {
		return GSTLookupResponse{}, fmt.Errorf("failed to record cache hit: %w", err)
	}

	resp := GSTLookupResponse{GSTRecord: *record}
	if record.LastSynced != nil {
		resp.CacheAgeHours = s.now().Sub(*record.LastSynced).Hours()
	}
	return resp, nil
}

func (s *gstService) List(ctx context.Context) (GSTListResponse, error) {
	records, err := s.gstRepo.List(ctx)
	if err != nil {
		return GSTListResponse{}, fmt.Errorf("failed to fetch GST cache: %w", err)
	}

	out := GSTListResponse{Records: records}
	out.Summary.TotalRecords = len(records)
	for _, r := range records {
		switch r.Status {
		case model.GSTRecordActive:
			out.Summary.Active++
		case model.GSTRecordSuspended:
			out.Summary.Suspended++
		case model.GSTRecordCancelled:
			out.Summary.Cancelled++
		}
		if r.ITCEligible {
			out.Summary.ITCEligible++
		}
		out.Summary.TotalCacheHits += int64(r.CacheHitCount)
	}
	return out, nil
}
