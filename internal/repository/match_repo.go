package repository

import (
	"context"
	"errors"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MatchSummary aggregates matching outcomes for the dashboard.
type MatchSummary struct {
	TotalMatches   int64 `json:"total_matches"`
	Passed         int64 `json:"passed"`
	Exceptions     int64 `json:"exceptions"`
	BlockedFraud   int64 `json:"blocked_fraud"`
	OpenExceptions int64 `json:"open_exceptions"`
}

type MatchRepository interface {
	CreateResult(ctx context.Context, result *model.MatchResult) error
	LatestResultForInvoice(ctx context.Context, invoiceID uuid.UUID) (*model.MatchResult, error)
	ListResults(ctx context.Context) ([]model.MatchResult, error)
	CreateException(ctx context.Context, exc *model.MatchingException) error
	FindExceptionByID(ctx context.Context, id uuid.UUID) (*model.MatchingException, error)
	FindExceptionByResultID(ctx context.Context, resultID uuid.UUID) (*model.MatchingException, error)
	ListExceptions(ctx context.Context, openOnly bool) ([]model.MatchingException, error)
	UpdateException(ctx context.Context, exc *model.MatchingException) error
	Summary(ctx context.Context) (MatchSummary, error)
}

type matchRepository struct {
	db *gorm.DB
}

func NewMatchRepository(db *gorm.DB) MatchRepository {
	return &matchRepository{db: db}
}

func (r *matchRepository) CreateResult(ctx context.Context, result *model.MatchResult) error {
	return GetDB(ctx, r.db).Create(result).Error
}

// LatestResultForInvoice returns the most recent match run for the
// invoice, or nil when the invoice has never been matched.
func (r *matchRepository) LatestResultForInvoice(ctx context.Context, invoiceID uuid.UUID) (*model.MatchResult, error) {
	var result model.MatchResult
	err := GetDB(ctx, r.db).
		Where("invoice_id = ?", invoiceID).
		Order("created_at desc").
		First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *matchRepository) ListResults(ctx context.Context) ([]model.MatchResult, error) {
	var results []model.MatchResult
	if err := GetDB(ctx, r.db).Order("created_at desc").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *matchRepository) CreateException(ctx context.Context, exc *model.MatchingException) error {
	return GetDB(ctx, r.db).Create(exc).Error
}

func (r *matchRepository) FindExceptionByID(ctx context.Context, id uuid.UUID) (*model.MatchingException, error) {
	var exc model.MatchingException
	if err := GetDB(ctx, r.db).First(&exc, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &exc, nil
}

func (r *matchRepository) FindExceptionByResultID(ctx context.Context, resultID uuid.UUID) (*model.MatchingException, error) {
	var exc model.MatchingException
	err := GetDB(ctx, r.db).First(&exc, "match_result_id = ?", resultID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &exc, nil
}

func (r *matchRepository) ListExceptions(ctx context.Context, openOnly bool) ([]model.MatchingException, error) {
	var excs []model.MatchingException
	query := GetDB(ctx, r.db).Model(&model.MatchingException{})
	if openOnly {
		query = query.Where("resolution IS NULL")
	}
	if err := query.Order("created_at desc").Find(&excs).Error; err != nil {
		return nil, err
	}
	return excs, nil
}

func (r *matchRepository) UpdateException(ctx context.Context, exc *model.MatchingException) error {
	return GetDB(ctx, r.db).Save(exc).Error
}

func (r *matchRepository) Summary(ctx context.Context) (MatchSummary, error) {
	var summary MatchSummary
	db := GetDB(ctx, r.db)

	if err := db.Model(&model.MatchResult{}).Count(&summary.TotalMatches).Error; err != nil {
		return summary, err
	}
	counts := []struct {
		status string
		dest   *int64
	}{
		{model.MatchPassed, &summary.Passed},
		{model.MatchException, &summary.Exceptions},
		{model.MatchBlockedFraud, &summary.BlockedFraud},
	}
	for _, c := range counts {
		if err := db.Model(&model.MatchResult{}).Where("status = ?", c.status).Count(c.dest).Error; err != nil {
			return summary, err
		}
	}
	if err := db.Model(&model.MatchingException{}).Where("resolution IS NULL").Count(&summary.OpenExceptions).Error; err != nil {
		return summary, err
	}
	return summary, nil
}
