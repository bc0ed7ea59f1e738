package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"backend/internal/events"
	"backend/internal/model"
	"backend/internal/repository"
	"backend/pkg/apperr"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// priceVarianceTolerancePct is the allowed invoice-vs-PO price deviation.
const priceVarianceTolerancePct = 5.0

// highSeverityVariancePct is the variance at or above which a price
// exception is HIGH.
const highSeverityVariancePct = 10.0

// --- DTOs ---

type RunMatchRequest struct {
	InvoiceNumber string `json:"invoice_number" binding:"required"`
	MatchType     string `json:"match_type" binding:"required,oneof=2WAY 3WAY"`
}

type MatchResultResponse struct {
	ID              string  `json:"id"`
	InvoiceNumber   string  `json:"invoice_number"`
	SupplierName    string  `json:"supplier_name"`
	MatchType       string  `json:"match_type"`
	Status          string  `json:"status"`
	VariancePct     float64 `json:"variance_pct"`
	ExceptionReason string  `json:"exception_reason"`
	Note            string  `json:"note"`
	CreatedAt       string  `json:"created_at"`
}

type MatchingExceptionResponse struct {
	ID              string  `json:"id"`
	MatchResultID   string  `json:"match_result_id"`
	InvoiceNumber   string  `json:"invoice_number"`
	SupplierName    string  `json:"supplier_name"`
	ExceptionType   string  `json:"exception_type"`
	Severity        string  `json:"severity"`
	Description     string  `json:"description"`
	Resolution      *string `json:"resolution"`
	ResolvedBy      string  `json:"resolved_by"`
	ResolvedAt      *string `json:"resolved_at"`
	ResolutionNotes string  `json:"resolution_notes"`
	CreatedAt       string  `json:"created_at"`
}

type ResolveExceptionRequest struct {
	Resolution string `json:"resolution" binding:"required,oneof=APPROVED_OVERRIDE REJECTED ESCALATED"`
	ResolvedBy string `json:"resolved_by" binding:"required"`
	Notes      string `json:"notes"`
}

// --- Interface ---

type MatchingService interface {
	RunMatch(ctx context.Context, invoiceNumber, matchType string) (MatchResultResponse, error)
	ResolveException(ctx context.Context, exceptionID string, req ResolveExceptionRequest) (MatchingExceptionResponse, error)
	ListResults(ctx context.Context) ([]MatchResultResponse, error)
	ListExceptions(ctx context.Context, openOnly bool) ([]MatchingExceptionResponse, error)
	GetSummary(ctx context.Context) (repository.MatchSummary, error)
}

type matchingService struct {
	invoiceRepo  repository.InvoiceRepository
	matchRepo    repository.MatchRepository
	poRepo       repository.PurchaseOrderRepository
	supplierRepo repository.SupplierRepository
	txManager    repository.TransactionManager
	bus          *events.Bus
}

func NewMatchingService(
	invoiceRepo repository.InvoiceRepository,
	matchRepo repository.MatchRepository,
	poRepo repository.PurchaseOrderRepository,
	supplierRepo repository.SupplierRepository,
	txManager repository.TransactionManager,
	bus *events.Bus,
) MatchingService {
	return &matchingService{
		invoiceRepo:  invoiceRepo,
		matchRepo:    matchRepo,
		poRepo:       poRepo,
		supplierRepo: supplierRepo,
		txManager:    txManager,
		bus:          bus,
	}
}

// --- Match evaluation (pure) ---

type matchOutcome struct {
	status        string
	variancePct   float64
	reasons       []string
	exceptionType string
	severity      string
}

// evaluateMatch decides the outcome of one matching run. It has no side
// effects; callers persist the outcome atomically afterwards.
//
// Rules, in order:
//  1. fraud short-circuit (dominates everything, reason appended first)
//  2. no linked PO
//  3. price variance against the PO beyond 5% tolerance
//  4. 3-way only: missing GRN, or GRN still PARTIAL
//
// Reasons accumulate; an invoice may carry several at once.
func evaluateMatch(inv *model.Invoice, po *model.PurchaseOrder, grn *model.GoodsReceiptNote, matchType string) matchOutcome {
	out := matchOutcome{}

	if inv.FraudFlag {
		out.reasons = append(out.reasons, "Invoice flagged for fraud")
	}

	if po == nil {
		out.reasons = append(out.reasons, "No matching PO found")
	} else {
		if po.Amount.IsPositive() {
			variance := inv.Subtotal.Sub(po.Amount).Abs().
				Div(po.Amount).
				Mul(decimal.NewFromInt(100))
			out.variancePct, _ = variance.Round(2).Float64()
			if out.variancePct > priceVarianceTolerancePct {
				out.reasons = append(out.reasons, fmt.Sprintf(
					"Price variance %.1f%% exceeds %.0f%% tolerance",
					out.variancePct, priceVarianceTolerancePct,
				))
			}
		}

		if matchType == model.MatchType3Way {
			switch {
			case grn == nil:
				out.reasons = append(out.reasons, "No GRN found for 3-way match")
			case grn.Status == model.GRNStatusPartial:
				out.reasons = append(out.reasons, "GRN shows partial delivery — quantity mismatch")
			}
		}
	}

	switch {
	case inv.FraudFlag:
		out.status = model.MatchBlockedFraud
	case len(out.reasons) > 0:
		out.status = model.MatchException
	default:
		out.status = model.MatchPassed
	}

	if out.status != model.MatchPassed {
		switch {
		case inv.FraudFlag:
			out.exceptionType = model.ExceptionFraudBlock
		case out.variancePct > priceVarianceTolerancePct:
			out.exceptionType = model.ExceptionPriceVariance
		case po == nil:
			out.exceptionType = model.ExceptionNoPO
		default:
			out.exceptionType = model.ExceptionQuantityMismatch
		}
		switch {
		case inv.FraudFlag:
			out.severity = model.SeverityCritical
		case out.variancePct >= highSeverityVariancePct:
			out.severity = model.SeverityHigh
		default:
			out.severity = model.SeverityMedium
		}
	}

	return out
}

// --- Implementation ---

func (s *matchingService) RunMatch(ctx context.Context, invoiceNumber, matchType string) (MatchResultResponse, error) {
	if matchType != model.MatchType2Way && matchType != model.MatchType3Way {
		return MatchResultResponse{}, apperr.Validation("invalid match type %q: expected 2WAY or 3WAY", matchType)
	}

	var (
		result  *model.MatchResult
		invoice *model.Invoice
		outcome matchOutcome
	)

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		inv, err := s.invoiceRepo.FindByNumber(txCtx, invoiceNumber)
		if err != nil {
			return apperr.NotFound("Invoice %s not found", invoiceNumber)
		}
		invoice = inv

		// At most one committed match per invoicing cycle: a PASSED
		// result is final, and an exception must be resolved before a
		// new run may start.
		latest, err := s.matchRepo.LatestResultForInvoice(txCtx, inv.ID)
		if err != nil {
			return fmt.Errorf("failed to check existing match results: %w", err)
		}
		if latest != nil {
			if latest.Status == model.MatchPassed {
				return apperr.Conflict("Invoice %s already matched", invoiceNumber)
			}
			exc, err := s.matchRepo.FindExceptionByResultID(txCtx, latest.ID)
			if err != nil {
				return fmt.Errorf("failed to load match exception: %w", err)
			}
			if exc == nil || exc.IsOpen() {
				return apperr.Conflict("Invoice %s already has an unresolved match exception", invoiceNumber)
			}
		}

		var po *model.PurchaseOrder
		if inv.POID != nil {
			po, err = s.poRepo.FindByID(txCtx, *inv.POID)
			if err != nil {
				return apperr.NotFound("Purchase order for invoice %s not found", invoiceNumber)
			}
		}

		var grn *model.GoodsReceiptNote
		if inv.GRNID != nil {
			grn, err = s.poRepo.FindGRNByID(txCtx, *inv.GRNID)
			if err != nil {
				return apperr.NotFound("GRN for invoice %s not found", invoiceNumber)
			}
		}

		outcome = evaluateMatch(inv, po, grn, matchType)

		reason := strings.Join(outcome.reasons, "; ")
		note := reason
		if note == "" {
			note = fmt.Sprintf("%s match passed", matchType)
		}

		result = &model.MatchResult{
			InvoiceID:       inv.ID,
			MatchType:       matchType,
			Status:          outcome.status,
			VariancePct:     outcome.variancePct,
			ExceptionReason: reason,
			Note:            note,
		}
		if err := s.matchRepo.CreateResult(txCtx, result); err != nil {
			return fmt.Errorf("failed to create match result: %w", err)
		}

		if outcome.status != model.MatchPassed {
			exc := &model.MatchingException{
				MatchResultID: result.ID,
				InvoiceID:     inv.ID,
				ExceptionType: outcome.exceptionType,
				Severity:      outcome.severity,
				Description:   reason,
			}
			if err := s.matchRepo.CreateException(txCtx, exc); err != nil {
				return fmt.Errorf("failed to create matching exception: %w", err)
			}
		}

		// Mirror the result onto the invoice for fast reads. Variance is
		// only meaningful when there was a PO to compare against.
		inv.MatchStatus = mirrorMatchStatus(matchType, outcome.status)
		if po != nil {
			variance := outcome.variancePct
			inv.MatchVariance = &variance
		} else {
			inv.MatchVariance = nil
		}
		inv.MatchExceptionReason = reason
		inv.MatchNote = note
		if err := s.invoiceRepo.Update(txCtx, inv); err != nil {
			return fmt.Errorf("failed to update invoice match fields: %w", err)
		}

		return nil
	})
	if err != nil {
		return MatchResultResponse{}, err
	}

	s.bus.Publish(ctx, "matching", events.MatchCompleted{
		InvoiceNumber: invoice.InvoiceNumber,
		MatchType:     matchType,
		Status:        outcome.status,
		VariancePct:   outcome.variancePct,
	})

	return s.toResultResponse(ctx, *result, invoice), nil
}

// mirrorMatchStatus composes the denormalized invoice match_status, e.g.
// "3WAY_MATCH_PASSED". Fraud blocks mirror as plain BLOCKED_FRAUD.
func mirrorMatchStatus(matchType, status string) string {
	if status == model.MatchBlockedFraud {
		return model.MatchStatusBlockedFraud
	}
	return fmt.Sprintf("%s_MATCH_%s", matchType, status)
}

func (s *matchingService) ResolveException(ctx context.Context, exceptionID string, req ResolveExceptionRequest) (MatchingExceptionResponse, error) {
	excID, err := uuid.Parse(exceptionID)
	if err != nil {
		return MatchingExceptionResponse{}, apperr.Validation("invalid exception id: %s", exceptionID)
	}
	switch req.Resolution {
	case model.ResolutionApprovedOverride, model.ResolutionRejected, model.ResolutionEscalated:
	default:
		return MatchingExceptionResponse{}, apperr.Validation("invalid resolution %q", req.Resolution)
	}

	var (
		exc     *model.MatchingException
		invoice *model.Invoice
	)

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var findErr error
		exc, findErr = s.matchRepo.FindExceptionByID(txCtx, excID)
		if findErr != nil {
			return apperr.NotFound("Exception %s not found", exceptionID)
		}
		if exc.Resolution != nil {
			return apperr.Conflict("Exception %s already resolved as %s", exceptionID, *exc.Resolution)
		}

		now := time.Now().UTC()
		resolution := req.Resolution
		exc.Resolution = &resolution
		exc.ResolvedBy = req.ResolvedBy
		exc.ResolvedAt = &now
		exc.ResolutionNotes = req.Notes
		if err := s.matchRepo.UpdateException(txCtx, exc); err != nil {
			return fmt.Errorf("failed to update exception: %w", err)
		}

		var invErr error
		invoice, invErr = s.invoiceRepo.FindByID(txCtx, exc.InvoiceID)
		if invErr != nil {
			return fmt.Errorf("failed to load invoice for exception: %w", invErr)
		}

		// Approved override is the only path by which an exception
		// invoice proceeds toward approval without a fresh match run.
		if req.Resolution == model.ResolutionApprovedOverride {
			notes := req.Notes
			if notes == "" {
				notes = "N/A"
			}
			invoice.MatchStatus = model.MatchStatusOverrideApproved
			invoice.MatchNote = fmt.Sprintf("Exception overridden by %s: %s", req.ResolvedBy, notes)
			if err := s.invoiceRepo.Update(txCtx, invoice); err != nil {
				return fmt.Errorf("failed to update invoice match status: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return MatchingExceptionResponse{}, err
	}

	s.bus.Publish(ctx, "matching", events.ExceptionResolved{
		ExceptionID:   exc.ID.String(),
		InvoiceNumber: invoice.InvoiceNumber,
		Resolution:    req.Resolution,
		ResolvedBy:    req.ResolvedBy,
	})

	return s.toExceptionResponse(ctx, *exc, invoice), nil
}

func (s *matchingService) ListResults(ctx context.Context) ([]MatchResultResponse, error) {
	results, err := s.matchRepo.ListResults(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch match results: %w", err)
	}

	out := make([]MatchResultResponse, 0, len(results))
	for _, mr := range results {
		inv, err := s.invoiceRepo.FindByID(ctx, mr.InvoiceID)
		if err != nil {
			inv = nil
		}
		out = append(out, s.toResultResponse(ctx, mr, inv))
	}
	return out, nil
}

func (s *matchingService) ListExceptions(ctx context.Context, openOnly bool) ([]MatchingExceptionResponse, error) {
	excs, err := s.matchRepo.ListExceptions(ctx, openOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch matching exceptions: %w", err)
	}

	out := make([]MatchingExceptionResponse, 0, len(excs))
	for _, exc := range excs {
		inv, err := s.invoiceRepo.FindByID(ctx, exc.InvoiceID)
		if err != nil {
			inv = nil
		}
		out = append(out, s.toExceptionResponse(ctx, exc, inv))
	}
	return out, nil
}

func (s *matchingService) GetSummary(ctx context.Context) (repository.MatchSummary, error) {
	return s.matchRepo.Summary(ctx)
}

// --- Mapping ---

func (s *matchingService) resolveSupplierName(ctx context.Context, inv *model.Invoice) (invoiceNumber, supplierName string) {
	if inv == nil {
		return "", "Unknown Supplier"
	}
	supplierName = "Unknown Supplier"
	if supplier, err := s.supplierRepo.FindByID(ctx, inv.SupplierID); err == nil {
		supplierName = supplier.LegalName
	}
	return inv.InvoiceNumber, supplierName
}

func (s *matchingService) toResultResponse(ctx context.Context, mr model.MatchResult, inv *model.Invoice) MatchResultResponse {
	invoiceNumber, supplierName := s.resolveSupplierName(ctx, inv)
	return MatchResultResponse{
		ID:              mr.ID.String(),
		InvoiceNumber:   invoiceNumber,
		SupplierName:    supplierName,
		MatchType:       mr.MatchType,
		Status:          mr.Status,
		VariancePct:     mr.VariancePct,
		ExceptionReason: mr.ExceptionReason,
		Note:            mr.Note,
		CreatedAt:       mr.CreatedAt.Format(time.RFC3339),
	}
}

func (s *matchingService) toExceptionResponse(ctx context.Context, exc model.MatchingException, inv *model.Invoice) MatchingExceptionResponse {
	invoiceNumber, supplierName := s.resolveSupplierName(ctx, inv)
	resp := MatchingExceptionResponse{
		ID:              exc.ID.String(),
		MatchResultID:   exc.MatchResultID.String(),
		InvoiceNumber:   invoiceNumber,
		SupplierName:    supplierName,
		ExceptionType:   exc.ExceptionType,
		Severity:        exc.Severity,
		Description:     exc.Description,
		Resolution:      exc.Resolution,
		ResolvedBy:      exc.ResolvedBy,
		ResolutionNotes: exc.ResolutionNotes,
		CreatedAt:       exc.CreatedAt.Format(time.RFC3339),
	}
	if exc.ResolvedAt != nil {
		t := exc.ResolvedAt.Format(time.RFC3339)
		resp.ResolvedAt = &t
	}
	return resp
}
