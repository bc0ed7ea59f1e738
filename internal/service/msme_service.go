package service

import (
	"context"
	"fmt"
	"time"

	"backend/internal/model"
	"backend/internal/repository"
	"backend/pkg/apperr"

	"github.com/shopspring/decimal"
)

// MSMEPaymentWindowDays is the Section 43B(h) statutory payment window.
// Fixed by statute, not configurable per category.
const MSMEPaymentWindowDays = 45

// DefaultMSMEReferenceRate is the annual reference rate (percent) used
// for penalty accrual when none is configured.
var DefaultMSMEReferenceRate = decimal.NewFromFloat(6.5)

// msmeAtRiskWindowDays is the days-remaining threshold below which an
// on-time invoice is flagged AT_RISK.
const msmeAtRiskWindowDays = 7

// --- Pure classifier ---

// MSMEInput carries everything the classifier needs; "today" is always
// injected by the caller, never read from the wall clock here.
type MSMEInput struct {
	InvoiceDate *time.Time
	IsMSME      bool
	Category    string // MICRO, SMALL, MEDIUM or empty
	Outstanding decimal.Decimal
}

// MSMEClassification is the derived Section 43B(h) state for one invoice.
type MSMEClassification struct {
	DueDate       time.Time
	DaysRemaining int
	Status        string // ON_TRACK, AT_RISK, BREACHED
	PenaltyAmount decimal.Decimal
}

// ClassifyMSME computes the 45-day payment SLA status. It is a pure
// function: same inputs and same today always produce the same output.
// Returns (nil, nil) for non-MSME suppliers.
//
// Penalty accrues linearly on the outstanding principal at three times
// the annual reference rate, recomputed fresh on every evaluation:
//
//	penalty = outstanding × (3 × rate/100 / 365) × daysOverdue
func ClassifyMSME(in MSMEInput, today time.Time, referenceRate decimal.Decimal) (*MSMEClassification, error) {
	if !in.IsMSME {
		return nil, nil
	}
	if in.InvoiceDate == nil {
		return nil, apperr.Validation("cannot classify MSME status without invoice date")
	}

	dueDate := truncateToDate(*in.InvoiceDate).AddDate(0, 0, MSMEPaymentWindowDays)
	daysRemaining := int(dueDate.Sub(truncateToDate(today)).Hours() / 24)

	out := &MSMEClassification{
		DueDate:       dueDate,
		DaysRemaining: daysRemaining,
		PenaltyAmount: decimal.Zero,
	}

	switch {
	case daysRemaining > msmeAtRiskWindowDays:
		out.Status = model.MSMEOnTrack
	case daysRemaining >= 0:
		out.Status = model.MSMEAtRisk
	default:
		out.Status = model.MSMEBreached
		daysOverdue := decimal.NewFromInt(int64(-daysRemaining))
		out.PenaltyAmount = in.Outstanding.
			Mul(referenceRate).
			Mul(decimal.NewFromInt(3)).
			Mul(daysOverdue).
			Div(decimal.NewFromInt(36500)).
			Round(2)
	}

	return out, nil
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// --- DTOs ---

type MSMEInvoiceResponse struct {
	InvoiceNumber string  `json:"invoice_number"`
	SupplierName  string  `json:"supplier_name"`
	MSMECategory  string  `json:"msme_category"`
	Amount        string  `json:"amount"`
	DueDate       *string `json:"due_date"`
	MSMEDueDate   *string `json:"msme_due_date"`
	DaysRemaining *int    `json:"days_remaining"`
	Status        string  `json:"status"`
	PenaltyAmount string  `json:"penalty_amount"`
}

type MSMESummary struct {
	TotalMSMEInvoices    int    `json:"total_msme_invoices"`
	OnTrack              int    `json:"on_track"`
	AtRisk               int    `json:"at_risk"`
	Breached             int    `json:"breached"`
	TotalPenaltyExposure string `json:"total_penalty_exposure"`
	AvgDaysRemaining     float64 `json:"avg_days_remaining"`
}

type MSMEComplianceResponse struct {
	Summary  MSMESummary           `json:"summary"`
	Invoices []MSMEInvoiceResponse `json:"invoices"`
}

// --- Interface ---

type MSMEService interface {
	// ClassifyInvoice evaluates one invoice as of the given date and
	// persists the derived MSME fields.
	ClassifyInvoice(ctx context.Context, invoiceNumber string, asOf time.Time) (MSMEInvoiceResponse, error)
	// GetCompliance builds the Section 43B(h) dashboard.
	GetCompliance(ctx context.Context) (MSMEComplianceResponse, error)
}

type msmeService struct {
	invoiceRepo   repository.InvoiceRepository
	supplierRepo  repository.SupplierRepository
	referenceRate decimal.Decimal
}

func NewMSMEService(
	invoiceRepo repository.InvoiceRepository,
	supplierRepo repository.SupplierRepository,
	referenceRate decimal.Decimal,
) MSMEService {
	if referenceRate.IsZero() {
		referenceRate = DefaultMSMEReferenceRate
	}
	return &msmeService{
		invoiceRepo:   invoiceRepo,
		supplierRepo:  supplierRepo,
		referenceRate: referenceRate,
	}
}

// --- Implementation ---

func (s *msmeService) ClassifyInvoice(ctx context.Context, invoiceNumber string, asOf time.Time) (MSMEInvoiceResponse, error) {
	inv, err := s.invoiceRepo.FindByNumber(ctx, invoiceNumber)
	if err != nil {
		return MSMEInvoiceResponse{}, apperr.NotFound("Invoice %s not found", invoiceNumber)
	}

	if err := applyMSMEClassification(inv, asOf, s.referenceRate); err != nil {
		return MSMEInvoiceResponse{}, err
	}

	if err := s.invoiceRepo.Update(ctx, inv); err != nil {
		return MSMEInvoiceResponse{}, fmt.Errorf("failed to persist MSME classification: %w", err)
	}

	return s.toMSMEResponse(ctx, *inv), nil
}

func (s *msmeService) GetCompliance(ctx context.Context) (MSMEComplianceResponse, error) {
	invoices, err := s.invoiceRepo.ListMSME(ctx)
	if err != nil {
		return MSMEComplianceResponse{}, fmt.Errorf("failed to fetch MSME invoices: %w", err)
	}

	out := MSMEComplianceResponse{
		Invoices: make([]MSMEInvoiceResponse, 0, len(invoices)),
	}
	totalPenalty := decimal.Zero
	daysSum, daysCount := 0, 0

	for _, inv := range invoices {
		resp := s.toMSMEResponse(ctx, inv)
		out.Invoices = append(out.Invoices, resp)

		switch inv.MSMEStatus {
		case model.MSMEOnTrack:
			out.Summary.OnTrack++
		case model.MSMEAtRisk:
			out.Summary.AtRisk++
		case model.MSMEBreached:
			out.Summary.Breached++
		}
		totalPenalty = totalPenalty.Add(inv.MSMEPenaltyAmount)
		if inv.MSMEDaysRemaining != nil {
			daysSum += *inv.MSMEDaysRemaining
			daysCount++
		}
	}

	out.Summary.TotalMSMEInvoices = len(invoices)
	out.Summary.TotalPenaltyExposure = totalPenalty.StringFixed(2)
	if daysCount > 0 {
		avg := decimal.NewFromInt(int64(daysSum)).Div(decimal.NewFromInt(int64(daysCount))).Round(1)
		out.Summary.AvgDaysRemaining, _ = avg.Float64()
	}

	return out, nil
}

// applyMSMEClassification runs the pure classifier against an invoice and
// writes the derived fields back onto it. A no-op for non-MSME suppliers.
func applyMSMEClassification(inv *model.Invoice, asOf time.Time, referenceRate decimal.Decimal) error {
	result, err := ClassifyMSME(MSMEInput{
		InvoiceDate: inv.InvoiceDate,
		IsMSME:      inv.IsMSMESupplier,
		Category:    inv.MSMECategory,
		Outstanding: inv.NetPayable,
	}, asOf, referenceRate)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}

	dueDate := result.DueDate
	days := result.DaysRemaining
	inv.MSMEDueDate = &dueDate
	inv.MSMEDaysRemaining = &days
	inv.MSMEStatus = result.Status
	inv.MSMEPenaltyAmount = result.PenaltyAmount
	return nil
}

func (s *msmeService) toMSMEResponse(ctx context.Context, inv model.Invoice) MSMEInvoiceResponse {
	supplierName := "Unknown Supplier"
	if supplier, err := s.supplierRepo.FindByID(ctx, inv.SupplierID); err == nil {
		supplierName = supplier.LegalName
	}

	resp := MSMEInvoiceResponse{
		InvoiceNumber: inv.InvoiceNumber,
		SupplierName:  supplierName,
		MSMECategory:  inv.MSMECategory,
		Amount:        inv.TotalAmount.StringFixed(2),
		DaysRemaining: inv.MSMEDaysRemaining,
		Status:        inv.MSMEStatus,
		PenaltyAmount: inv.MSMEPenaltyAmount.StringFixed(2),
	}
	if inv.DueDate != nil {
		d := inv.DueDate.Format("2006-01-02")
		resp.DueDate = &d
	}
	if inv.MSMEDueDate != nil {
		d := inv.MSMEDueDate.Format("2006-01-02")
		resp.MSMEDueDate = &d
	}
	return resp
}
