package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"backend/internal/events"
	"backend/internal/model"
	"backend/internal/repository"
	"backend/pkg/apperr"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// simulatedOCRConfidence stands in for a real OCR engine during extract.
const simulatedOCRConfidence = 95.2

// --- Transition table ---

// Lifecycle actions exposed by the state machine.
const (
	ActionExtract  = "extract"
	ActionValidate = "validate"
	ActionMatch    = "match"
	ActionQueue    = "queue"
	ActionApprove  = "approve"
	ActionReject   = "reject"
	ActionPost     = "post"
	ActionSettle   = "settle"
)

type transition struct {
	from []string
	to   string
}

// transitionTable is the single source of truth for legal lifecycle
// moves. reject is handled separately: it is legal from every status
// except POSTED_TO_EBS, PAID, and REJECTED.
var transitionTable = map[string]transition{
	ActionExtract:  {from: []string{model.InvoiceCaptured}, to: model.InvoiceExtracted},
	ActionValidate: {from: []string{model.InvoiceExtracted}, to: model.InvoiceValidated},
	ActionMatch:    {from: []string{model.InvoiceValidated}, to: model.InvoiceMatched},
	ActionQueue:    {from: []string{model.InvoiceMatched}, to: model.InvoicePendingApproval},
	ActionApprove:  {from: []string{model.InvoicePendingApproval, model.InvoiceMatched}, to: model.InvoiceApproved},
	ActionPost:     {from: []string{model.InvoiceApproved}, to: model.InvoicePostedToEBS},
	ActionSettle:   {from: []string{model.InvoicePostedToEBS}, to: model.InvoicePaid},
}

// nonRejectable are the statuses reject is illegal from; posted
// financials need a reversal/credit-note flow, not a rejection.
var nonRejectable = map[string]bool{
	model.InvoicePostedToEBS: true,
	model.InvoicePaid:        true,
	model.InvoiceRejected:    true,
}

// guardTransition verifies the invoice may perform the action. Failing
// the guard is a client error: re-invoking an already-performed
// transition fails rather than being silently ignored.
func guardTransition(inv *model.Invoice, action string) error {
	if action == ActionReject {
		if nonRejectable[inv.Status] {
			return apperr.Validation("Cannot reject invoice %s: current status is %s", inv.InvoiceNumber, inv.Status)
		}
		return nil
	}

	t, ok := transitionTable[action]
	if !ok {
		return apperr.Validation("unknown transition action %q", action)
	}
	for _, from := range t.from {
		if inv.Status == from {
			return nil
		}
	}
	expected := append([]string(nil), t.from...)
	sort.Strings(expected)
	return apperr.Validation(
		"Cannot %s invoice %s: current status is %s, expected one of %s",
		action, inv.InvoiceNumber, inv.Status, strings.Join(expected, ", "),
	)
}

// --- DTOs ---

type CreateInvoiceRequest struct {
	SupplierID   string   `json:"supplier_id" binding:"required"`
	POID         string   `json:"po_id"`
	GRNID        string   `json:"grn_id"`
	InvoiceDate  string   `json:"invoice_date" binding:"required"` // YYYY-MM-DD
	DueDate      string   `json:"due_date"`
	Subtotal     string   `json:"subtotal" binding:"required"`
	GSTRate      string   `json:"gst_rate"` // percent, e.g. "18"
	TDSRate      string   `json:"tds_rate"` // percent
	GSTINBuyer   string   `json:"gstin_buyer"`
	HSNSAC       string   `json:"hsn_sac"`
	FraudFlag    bool     `json:"fraud_flag"`
	FraudReasons []string `json:"fraud_reasons"`
	UploadedBy   string   `json:"uploaded_by"`
}

type InvoiceResponse struct {
	InvoiceNumber  string   `json:"invoice_number"`
	SupplierCode   string   `json:"supplier_code"`
	SupplierName   string   `json:"supplier_name"`
	PONumber       *string  `json:"po_number"`
	GRNNumber      *string  `json:"grn_number"`
	InvoiceDate    *string  `json:"invoice_date"`
	DueDate        *string  `json:"due_date"`
	Subtotal       string   `json:"subtotal"`
	GSTAmount      string   `json:"gst_amount"`
	TDSAmount      string   `json:"tds_amount"`
	TotalAmount    string   `json:"total_amount"`
	NetPayable     string   `json:"net_payable"`
	Status         string   `json:"status"`
	MatchStatus    string   `json:"match_status"`
	MatchVariance  *float64 `json:"match_variance"`
	IsMSMESupplier bool     `json:"is_msme_supplier"`
	MSMEStatus     string   `json:"msme_status"`
	FraudFlag      bool     `json:"fraud_flag"`
	EBSAPStatus    string   `json:"ebs_ap_status"`
	CreatedAt      string   `json:"created_at"`
}

type PODetailResponse struct {
	PONumber     string             `json:"po_number"`
	Amount       string             `json:"amount"`
	Currency     string             `json:"currency"`
	Status       string             `json:"status"`
	DeliveryDate *string            `json:"delivery_date"`
	Items        []model.POLineItem `json:"items"`
}

type GRNDetailResponse struct {
	GRNNumber    string              `json:"grn_number"`
	PONumber     string              `json:"po_number"`
	ReceivedDate *string             `json:"received_date"`
	ReceivedBy   string              `json:"received_by"`
	Status       string              `json:"status"`
	Notes        string              `json:"notes"`
	Items        []model.GRNLineItem `json:"items"`
}

type InvoiceDetailResponse struct {
	InvoiceResponse

	GSTRate              string   `json:"gst_rate"`
	TDSRate              string   `json:"tds_rate"`
	GSTINSupplier        string   `json:"gstin_supplier"`
	GSTINBuyer           string   `json:"gstin_buyer"`
	HSNSAC               string   `json:"hsn_sac"`
	IRN                  string   `json:"irn"`
	OCRConfidence        *float64 `json:"ocr_confidence"`
	GSTINCacheStatus     string   `json:"gstin_cache_status"`
	GSTR2BITCEligible    *bool    `json:"gstr2b_itc_eligible"`
	GSTINCacheAgeHours   *float64 `json:"gstin_cache_age_hours"`
	MatchExceptionReason string   `json:"match_exception_reason"`
	MatchNote            string   `json:"match_note"`
	FraudReasons         []string `json:"fraud_reasons"`
	EBSAPRef             string   `json:"ebs_ap_ref"`
	EBSPostedAt          *string  `json:"ebs_posted_at"`
	ApprovedBy           string   `json:"approved_by"`
	ApprovedAt           *string  `json:"approved_at"`
	RejectedBy           string   `json:"rejected_by"`
	RejectedAt           *string  `json:"rejected_at"`
	RejectionReason      string   `json:"rejection_reason"`
	MSMECategory         string   `json:"msme_category"`
	MSMEDueDate          *string  `json:"msme_due_date"`
	MSMEDaysRemaining    *int     `json:"msme_days_remaining"`
	MSMEPenaltyAmount    string   `json:"msme_penalty_amount"`
	UploadedBy           string   `json:"uploaded_by"`

	PO        *PODetailResponse  `json:"po"`
	GRN       *GRNDetailResponse `json:"grn"`
	GSTRecord *model.GSTRecord   `json:"gst_record"`
}

type InvoiceFilter struct {
	Status      string
	MatchStatus string
	Page        int
	Limit       int
}

// --- Interface ---

type InvoiceService interface {
	CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (InvoiceDetailResponse, error)
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]InvoiceResponse, int64, error)
	GetInvoice(ctx context.Context, invoiceNumber string) (InvoiceDetailResponse, error)

	// Lifecycle transitions. Each is guarded by the transition table and
	// commits within one transaction.
	Extract(ctx context.Context, invoiceNumber string) (InvoiceDetailResponse, error)
	Validate(ctx context.Context, invoiceNumber string) (InvoiceDetailResponse, error)
	Match(ctx context.Context, invoiceNumber, matchType string) (InvoiceDetailResponse, error)
	Queue(ctx context.Context, invoiceNumber string) (InvoiceDetailResponse, error)
	Approve(ctx context.Context, invoiceNumber, approvedBy string) (InvoiceDetailResponse, error)
	Reject(ctx context.Context, invoiceNumber, rejectedBy, reason string) (InvoiceDetailResponse, error)
	PostToEBS(ctx context.Context, invoiceNumber string) (InvoiceDetailResponse, error)
	Settle(ctx context.Context, invoiceNumber string) (InvoiceDetailResponse, error)
}

type invoiceService struct {
	invoiceRepo   repository.InvoiceRepository
	supplierRepo  repository.SupplierRepository
	poRepo        repository.PurchaseOrderRepository
	gstRepo       repository.GSTRepository
	matching      MatchingService
	txManager     repository.TransactionManager
	bus           *events.Bus
	referenceRate decimal.Decimal
	now           func() time.Time
}

func NewInvoiceService(
	invoiceRepo repository.InvoiceRepository,
	supplierRepo repository.SupplierRepository,
	poRepo repository.PurchaseOrderRepository,
	gstRepo repository.GSTRepository,
	matching MatchingService,
	txManager repository.TransactionManager,
	bus *events.Bus,
	referenceRate decimal.Decimal,
) InvoiceService {
	if referenceRate.IsZero() {
		referenceRate = DefaultMSMEReferenceRate
	}
	return &invoiceService{
		invoiceRepo:   invoiceRepo,
		supplierRepo:  supplierRepo,
		poRepo:        poRepo,
		gstRepo:       gstRepo,
		matching:      matching,
		txManager:     txManager,
		bus:           bus,
		referenceRate: referenceRate,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// --- Creation (capture) ---

func (s *invoiceService) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (InvoiceDetailResponse, error) {
	supplierID, err := uuid.Parse(req.SupplierID)
	if err != nil {
		return InvoiceDetailResponse{}, apperr.Validation("invalid supplier_id: %s", req.SupplierID)
	}
	supplier, err := s.supplierRepo.FindByID(ctx, supplierID)
	if err != nil {
		return InvoiceDetailResponse{}, apperr.NotFound("Supplier %s not found", req.SupplierID)
	}

	subtotal, err := decimal.NewFromString(req.Subtotal)
	if err != nil {
		return InvoiceDetailResponse{}, apperr.Validation("invalid subtotal: %s", req.Subtotal)
	}

	gstRate := decimal.Zero
	if req.GSTRate != "" {
		if gstRate, err = decimal.NewFromString(req.GSTRate); err != nil {
			return InvoiceDetailResponse{}, apperr.Validation("invalid gst_rate: %s", req.GSTRate)
		}
	}
	tdsRate := decimal.Zero
	if req.TDSRate != "" {
		if tdsRate, err = decimal.NewFromString(req.TDSRate); err != nil {
			return InvoiceDetailResponse{}, apperr.Validation("invalid tds_rate: %s", req.TDSRate)
		}
	}

	invoiceDate, err := time.Parse("2006-01-02", req.InvoiceDate)
	if err != nil {
		return InvoiceDetailResponse{}, apperr.Validation("invalid invoice_date, expected YYYY-MM-DD: %s", req.InvoiceDate)
	}

	var dueDate *time.Time
	if req.DueDate != "" {
		d, err := time.Parse("2006-01-02", req.DueDate)
		if err != nil {
			return InvoiceDetailResponse{}, apperr.Validation("invalid due_date, expected YYYY-MM-DD: %s", req.DueDate)
		}
		dueDate = &d
	}

	var poID *uuid.UUID
	if req.POID != "" {
		parsed, err := uuid.Parse(req.POID)
		if err != nil {
			return InvoiceDetailResponse{}, apperr.Validation("invalid po_id: %s", req.POID)
		}
		if _, err := s.poRepo.FindByID(ctx, parsed); err != nil {
			return InvoiceDetailResponse{}, apperr.NotFound("Purchase order %s not found", req.POID)
		}
		poID = &parsed
	}

	var grnID *uuid.UUID
	if req.GRNID != "" {
		parsed, err := uuid.Parse(req.GRNID)
		if err != nil {
			return InvoiceDetailResponse{}, apperr.Validation("invalid grn_id: %s", req.GRNID)
		}
		if _, err := s.poRepo.FindGRNByID(ctx, parsed); err != nil {
			return InvoiceDetailResponse{}, apperr.NotFound("GRN %s not found", req.GRNID)
		}
		grnID = &parsed
	}

	// Financial amounts are computed once at creation and never
	// re-derived on read.
	hundred := decimal.NewFromInt(100)
	gstAmount := subtotal.Mul(gstRate).Div(hundred).Round(2)
	tdsAmount := subtotal.Mul(tdsRate).Div(hundred).Round(2)
	totalAmount := subtotal.Add(gstAmount)
	netPayable := totalAmount.Sub(tdsAmount)

	invoiceNumber, err := s.generateInvoiceNumber(ctx)
	if err != nil {
		return InvoiceDetailResponse{}, fmt.Errorf("failed to generate invoice number: %w", err)
	}

	invoice := model.Invoice{
		InvoiceNumber: invoiceNumber,
		SupplierID:    supplier.ID,
		POID:          poID,
		GRNID:         grnID,
		InvoiceDate:   &invoiceDate,
		DueDate:       dueDate,
		Subtotal:      subtotal,
		GSTRate:       gstRate,
		GSTAmount:     gstAmount,
		TDSRate:       tdsRate,
		TDSAmount:     tdsAmount,
		TotalAmount:   totalAmount,
		NetPayable:    netPayable,
		GSTINSupplier: supplier.GSTIN,
		GSTINBuyer:    req.GSTINBuyer,
		HSNSAC:        req.HSNSAC,
		Status:        model.InvoiceCaptured,
		MatchStatus:   model.MatchStatusPending,
		FraudFlag:     req.FraudFlag,
		FraudReasons:  req.FraudReasons,
		EBSAPStatus:   model.EBSAPNotStarted,
		// Supplier MSME snapshot is taken at capture time.
		IsMSMESupplier: supplier.IsMSME,
		MSMECategory:   supplier.MSMECategory,
		UploadedBy:     req.UploadedBy,
	}

	if err := s.invoiceRepo.Create(ctx, &invoice); err != nil {
		return InvoiceDetailResponse{}, fmt.Errorf("failed to create invoice: %w", err)
	}

	return s.buildDetail(ctx, &invoice), nil
}

func (s *invoiceService) generateInvoiceNumber(ctx context.Context) (string, error) {
	prefix := "INV-" + s.now().Format("20060102") + "-"
	count, err := s.invoiceRepo.CountByPrefix(ctx, prefix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%05d", prefix, count+1), nil
}

// --- Reads ---

func (s *invoiceService) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]InvoiceResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	invoices, total, err := s.invoiceRepo.List(ctx, repository.InvoiceListFilter{
		Status:      filter.Status,
		MatchStatus: filter.MatchStatus,
		Page:        filter.Page,
		Limit:       filter.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch invoices: %w", err)
	}

	out := make([]InvoiceResponse, 0, len(invoices))
	for i := range invoices {
		out = append(out, s.buildSummary(ctx, &invoices[i]))
	}
	return out, total, nil
}

func (s *invoiceService) GetInvoice(ctx context.Context, invoiceNumber string) (InvoiceDetailResponse, error) {
	inv, err := s.invoiceRepo.FindByNumber(ctx, invoiceNumber)
	if err != nil {
		return InvoiceDetailResponse{}, apperr.NotFound("Invoice %s not found", invoiceNumber)
	}
	return s.buildDetail(ctx, inv), nil
}

// --- Transitions ---

func (s *invoiceService) Extract(ctx context.Context, invoiceNumber string) (InvoiceDetailResponse, error) {
	inv, err := s.transition(ctx, invoiceNumber, ActionExtract, func(inv *model.Invoice) error {
		confidence := simulatedOCRConfidence
		inv.OCRConfidence = &confidence
		return nil
	})
	if err != nil {
		return InvoiceDetailResponse{}, err
	}

	s.bus.Publish(ctx, "invoices", events.InvoiceTransitioned{
		InvoiceNumber: inv.InvoiceNumber,
		OldStatus:     model.InvoiceCaptured,
		NewStatus:     inv.Status,
	})
	return s.buildDetail(ctx, inv), nil
}

// Validate populates GST-cache-derived fields. A GSTIN absent from the
// cache is non-fatal; a cache lookup failure leaves the invoice in
// EXTRACTED without surfacing an error, so the caller can retry by
// invoking validate again.
func (s *invoiceService) Validate(ctx context.Context, invoiceNumber string) (InvoiceDetailResponse, error) {
	inv, err := s.invoiceRepo.FindByNumber(ctx, invoiceNumber)
	if err != nil {
		return InvoiceDetailResponse{}, apperr.NotFound("Invoice %s not found", invoiceNumber)
	}
	if err := guardTransition(inv, ActionValidate); err != nil {
		return InvoiceDetailResponse{}, err
	}

	record, lookupErr := s.gstRepo.FindByGSTIN(ctx, inv.GSTINSupplier)
	if lookupErr != nil {
		log.Printf("GST cache lookup failed for %s (invoice %s), will retry on next validate: %v",
			inv.GSTINSupplier, invoiceNumber, lookupErr)
		return s.buildDetail(ctx, inv), nil
	}

	inv, err = s.transition(ctx, invoiceNumber, ActionValidate, func(inv *model.Invoice) error {
		if record == nil {
			inv.GSTINCacheStatus = model.GSTCacheNotInCache
			return nil
		}
		if record.Status == model.GSTRecordActive {
			inv.GSTINCacheStatus = model.GSTCacheValid
		} else {
			inv.GSTINCacheStatus = model.GSTCacheInvalid
		}
		inv.GSTINValidatedFromCache = true
		eligible := record.ITCEligible
		inv.GSTR2BITCEligible = &eligible
		if record.LastSynced != nil {
			age := s.now().Sub(*record.LastSynced).Hours()
			inv.GSTINCacheAgeHours = &age
		}
		return nil
	})
	if err != nil {
		return InvoiceDetailResponse{}, err
	}

	if record != nil {
		record.CacheHitCount++
		if err := s.gstRepo.Update(ctx, record); err != nil {
			log.Printf("failed to bump GST cache hit count for %s: %v", record.GSTIN, err)
		}
	}

	s.bus.Publish(ctx, "invoices", events.InvoiceTransitioned{
		InvoiceNumber: inv.InvoiceNumber,
		OldStatus:     model.InvoiceExtracted,
		NewStatus:     inv.Status,
	})
	return s.buildDetail(ctx, inv), nil
}

// Match runs the matching engine. On PASSED the invoice advances to
// MATCHED; on EXCEPTION or BLOCKED_FRAUD it stays in VALIDATED and the
// exception must be resolved (or the match re-run) before it can move.
// An invoice whose committed verdict already clears it advances without
// a fresh run: a PASSED result is final, and an APPROVED_OVERRIDE
// resolution exists so the invoice can proceed without being re-blocked
// by the same data.
func (s *invoiceService) Match(ctx context.Context, invoiceNumber, matchType string) (InvoiceDetailResponse, error) {
	inv, err := s.invoiceRepo.FindByNumber(ctx, invoiceNumber)
	if err != nil {
		return InvoiceDetailResponse{}, apperr.NotFound("Invoice %s not found", invoiceNumber)
	}
	if err := guardTransition(inv, ActionMatch); err != nil {
		return InvoiceDetailResponse{}, err
	}

	if !matchVerdictClears(inv) {
		result, err := s.matching.RunMatch(ctx, invoiceNumber, matchType)
		if err != nil {
			return InvoiceDetailResponse{}, err
		}

		if result.Status != model.MatchPassed {
			inv, reloadErr := s.invoiceRepo.FindByNumber(ctx, invoiceNumber)
			if reloadErr != nil {
				return InvoiceDetailResponse{}, fmt.Errorf("failed to reload invoice: %w", reloadErr)
			}
			return s.buildDetail(ctx, inv), nil
		}
	}

	inv, err = s.transition(ctx, invoiceNumber, ActionMatch, func(inv *model.Invoice) error { return nil })
	if err != nil {
		return InvoiceDetailResponse{}, err
	}

	s.bus.Publish(ctx, "invoices", events.InvoiceTransitioned{
		InvoiceNumber: inv.InvoiceNumber,
		OldStatus:     model.InvoiceValidated,
		NewStatus:     inv.Status,
	})
	return s.buildDetail(ctx, inv), nil
}

// matchVerdictClears reports whether the invoice's committed match
// verdict already permits advancing: the latest run PASSED, or its
// exception was resolved APPROVED_OVERRIDE. The mirror is written in
// the same transaction as the MatchResult, so it reflects the latest
// committed run.
func matchVerdictClears(inv *model.Invoice) bool {
	return inv.MatchStatus == model.MatchStatusOverrideApproved ||
		strings.HasSuffix(inv.MatchStatus, "_MATCH_"+model.MatchPassed)
}

// Queue moves a matched invoice into the approval queue and runs the
// MSME classifier, since payment-SLA urgency is most actionable once an
// invoice is approval-ready.
func (s *invoiceService) Queue(ctx context.Context, invoiceNumber string) (InvoiceDetailResponse, error) {
	inv, err := s.transition(ctx, invoiceNumber, ActionQueue, func(inv *model.Invoice) error {
		if err := applyMSMEClassification(inv, s.now(), s.referenceRate); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return InvoiceDetailResponse{}, err
	}

	s.bus.Publish(ctx, "invoices", events.InvoiceTransitioned{
		InvoiceNumber: inv.InvoiceNumber,
		OldStatus:     model.InvoiceMatched,
		NewStatus:     inv.Status,
	})
	return s.buildDetail(ctx, inv), nil
}

func (s *invoiceService) Approve(ctx context.Context, invoiceNumber, approvedBy string) (InvoiceDetailResponse, error) {
	inv, err := s.transition(ctx, invoiceNumber, ActionApprove, func(inv *model.Invoice) error {
		now := s.now()
		inv.ApprovedBy = approvedBy
		inv.ApprovedAt = &now
		inv.EBSAPStatus = model.EBSAPPending
		return nil
	})
	if err != nil {
		return InvoiceDetailResponse{}, err
	}

	supplierCode := ""
	if supplier, err := s.supplierRepo.FindByID(ctx, inv.SupplierID); err == nil {
		supplierCode = supplier.Code
	}
	s.bus.Publish(ctx, "invoices", events.InvoiceApproved{
		InvoiceNumber: inv.InvoiceNumber,
		SupplierCode:  supplierCode,
		TotalAmount:   inv.TotalAmount.StringFixed(2),
		NetPayable:    inv.NetPayable.StringFixed(2),
		ApprovedBy:    approvedBy,
	})
	return s.buildDetail(ctx, inv), nil
}

func (s *invoiceService) Reject(ctx context.Context, invoiceNumber, rejectedBy, reason string) (InvoiceDetailResponse, error) {
	inv, err := s.transitionTo(ctx, invoiceNumber, ActionReject, model.InvoiceRejected, func(inv *model.Invoice) error {
		now := s.now()
		inv.RejectedBy = rejectedBy
		inv.RejectedAt = &now
		inv.RejectionReason = reason
		inv.EBSAPStatus = model.EBSAPBlocked
		return nil
	})
	if err != nil {
		return InvoiceDetailResponse{}, err
	}

	supplierCode := ""
	if supplier, err := s.supplierRepo.FindByID(ctx, inv.SupplierID); err == nil {
		supplierCode = supplier.Code
	}
	s.bus.Publish(ctx, "invoices", events.InvoiceRejected{
		InvoiceNumber: inv.InvoiceNumber,
		SupplierCode:  supplierCode,
		TotalAmount:   inv.TotalAmount.StringFixed(2),
		Reason:        reason,
		RejectedBy:    rejectedBy,
	})
	return s.buildDetail(ctx, inv), nil
}

func (s *invoiceService) PostToEBS(ctx context.Context, invoiceNumber string) (InvoiceDetailResponse, error) {
	inv, err := s.transition(ctx, invoiceNumber, ActionPost, func(inv *model.Invoice) error {
		now := s.now()
		inv.EBSAPStatus = model.EBSAPPosted
		inv.EBSAPRef = "EBS-AP-" + inv.InvoiceNumber
		inv.EBSPostedAt = &now
		return nil
	})
	if err != nil {
		return InvoiceDetailResponse{}, err
	}

	s.bus.Publish(ctx, "invoices", events.InvoiceTransitioned{
		InvoiceNumber: inv.InvoiceNumber,
		OldStatus:     model.InvoiceApproved,
		NewStatus:     inv.Status,
	})
	return s.buildDetail(ctx, inv), nil
}

func (s *invoiceService) Settle(ctx context.Context, invoiceNumber string) (InvoiceDetailResponse, error) {
	inv, err := s.transition(ctx, invoiceNumber, ActionSettle, func(inv *model.Invoice) error { return nil })
	if err != nil {
		return InvoiceDetailResponse{}, err
	}

	s.bus.Publish(ctx, "invoices", events.InvoiceTransitioned{
		InvoiceNumber: inv.InvoiceNumber,
		OldStatus:     model.InvoicePostedToEBS,
		NewStatus:     inv.Status,
	})
	return s.buildDetail(ctx, inv), nil
}

// transition applies a table-driven lifecycle move within one
// transaction. The invoice is reloaded and re-guarded inside the
// transaction, so two concurrent attempts serialize at the database and
// the loser fails the guard against the already-updated row.
func (s *invoiceService) transition(ctx context.Context, invoiceNumber, action string, mutate func(*model.Invoice) error) (*model.Invoice, error) {
	return s.transitionTo(ctx, invoiceNumber, action, transitionTable[action].to, mutate)
}

func (s *invoiceService) transitionTo(ctx context.Context, invoiceNumber, action, target string, mutate func(*model.Invoice) error) (*model.Invoice, error) {
	var invoice *model.Invoice
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		inv, err := s.invoiceRepo.FindByNumber(txCtx, invoiceNumber)
		if err != nil {
			return apperr.NotFound("Invoice %s not found", invoiceNumber)
		}
		if err := guardTransition(inv, action); err != nil {
			return err
		}
		if err := mutate(inv); err != nil {
			return err
		}
		inv.Status = target
		if err := s.invoiceRepo.Update(txCtx, inv); err != nil {
			return fmt.Errorf("failed to update invoice: %w", err)
		}
		invoice = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// --- Mapping ---

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	d := t.Format("2006-01-02")
	return &d
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	d := t.Format(time.RFC3339)
	return &d
}

func (s *invoiceService) buildSummary(ctx context.Context, inv *model.Invoice) InvoiceResponse {
	resp := InvoiceResponse{
		InvoiceNumber:  inv.InvoiceNumber,
		SupplierCode:   inv.SupplierID.String(),
		SupplierName:   "Unknown Supplier",
		InvoiceDate:    formatDate(inv.InvoiceDate),
		DueDate:        formatDate(inv.DueDate),
		Subtotal:       inv.Subtotal.StringFixed(2),
		GSTAmount:      inv.GSTAmount.StringFixed(2),
		TDSAmount:      inv.TDSAmount.StringFixed(2),
		TotalAmount:    inv.TotalAmount.StringFixed(2),
		NetPayable:     inv.NetPayable.StringFixed(2),
		Status:         inv.Status,
		MatchStatus:    inv.MatchStatus,
		MatchVariance:  inv.MatchVariance,
		IsMSMESupplier: inv.IsMSMESupplier,
		MSMEStatus:     inv.MSMEStatus,
		FraudFlag:      inv.FraudFlag,
		EBSAPStatus:    inv.EBSAPStatus,
		CreatedAt:      inv.CreatedAt.Format(time.RFC3339),
	}

	// Resolve weak references to human-readable codes.
	if supplier, err := s.supplierRepo.FindByID(ctx, inv.SupplierID); err == nil {
		resp.SupplierCode = supplier.Code
		resp.SupplierName = supplier.LegalName
	}
	if inv.POID != nil {
		if po, err := s.poRepo.FindByID(ctx, *inv.POID); err == nil {
			n := po.PONumber
			resp.PONumber = &n
		}
	}
	if inv.GRNID != nil {
		if grn, err := s.poRepo.FindGRNByID(ctx, *inv.GRNID); err == nil {
			n := grn.GRNNumber
			resp.GRNNumber = &n
		}
	}
	return resp
}

func (s *invoiceService) buildDetail(ctx context.Context, inv *model.Invoice) InvoiceDetailResponse {
	resp := InvoiceDetailResponse{
		InvoiceResponse:      s.buildSummary(ctx, inv),
		GSTRate:              inv.GSTRate.StringFixed(2),
		TDSRate:              inv.TDSRate.StringFixed(2),
		GSTINSupplier:        inv.GSTINSupplier,
		GSTINBuyer:           inv.GSTINBuyer,
		HSNSAC:               inv.HSNSAC,
		IRN:                  inv.IRN,
		OCRConfidence:        inv.OCRConfidence,
		GSTINCacheStatus:     inv.GSTINCacheStatus,
		GSTR2BITCEligible:    inv.GSTR2BITCEligible,
		GSTINCacheAgeHours:   inv.GSTINCacheAgeHours,
		MatchExceptionReason: inv.MatchExceptionReason,
		MatchNote:            inv.MatchNote,
		FraudReasons:         inv.FraudReasons,
		EBSAPRef:             inv.EBSAPRef,
		EBSPostedAt:          formatTime(inv.EBSPostedAt),
		ApprovedBy:           inv.ApprovedBy,
		ApprovedAt:           formatTime(inv.ApprovedAt),
		RejectedBy:           inv.RejectedBy,
		RejectedAt:           formatTime(inv.RejectedAt),
		RejectionReason:      inv.RejectionReason,
		MSMECategory:         inv.MSMECategory,
		MSMEDueDate:          formatDate(inv.MSMEDueDate),
		MSMEDaysRemaining:    inv.MSMEDaysRemaining,
		MSMEPenaltyAmount:    inv.MSMEPenaltyAmount.StringFixed(2),
		UploadedBy:           inv.UploadedBy,
	}
	if resp.FraudReasons == nil {
		resp.FraudReasons = []string{}
	}

	if inv.POID != nil {
		if po, err := s.poRepo.FindByIDWithItems(ctx, *inv.POID); err == nil {
			resp.PO = &PODetailResponse{
				PONumber:     po.PONumber,
				Amount:       po.Amount.StringFixed(2),
				Currency:     po.Currency,
				Status:       po.Status,
				DeliveryDate: formatDate(po.DeliveryDate),
				Items:        po.LineItems,
			}
		}
	}
	if inv.GRNID != nil {
		if grn, err := s.poRepo.FindGRNByIDWithItems(ctx, *inv.GRNID); err == nil {
			poNumber := ""
			if resp.PO != nil {
				poNumber = resp.PO.PONumber
			}
			resp.GRN = &GRNDetailResponse{
				GRNNumber:    grn.GRNNumber,
				PONumber:     poNumber,
				ReceivedDate: formatDate(grn.ReceivedDate),
				ReceivedBy:   grn.ReceivedBy,
				Status:       grn.Status,
				Notes:        grn.Notes,
				Items:        grn.LineItems,
			}
		}
	}
	if inv.GSTINSupplier != "" {
		if record, err := s.gstRepo.FindByGSTIN(ctx, inv.GSTINSupplier); err == nil && record != nil {
			resp.GSTRecord = record
		}
	}
	return resp
}
