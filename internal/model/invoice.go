package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Invoice lifecycle status enum constants.
// Forward-only progression except REJECTED, which is reachable from any
// non-terminal status.
const (
	InvoiceCaptured        = "CAPTURED"
	InvoiceExtracted       = "EXTRACTED"
	InvoiceValidated       = "VALIDATED"
	InvoiceMatched         = "MATCHED"
	InvoicePendingApproval = "PENDING_APPROVAL"
	InvoiceApproved        = "APPROVED"
	InvoiceRejected        = "REJECTED"
	InvoicePostedToEBS     = "POSTED_TO_EBS"
	InvoicePaid            = "PAID"
)

// Invoice match_status enum constants (denormalized mirror of the latest
// MatchResult; e.g. "3WAY_MATCH_PASSED" is composed from type + outcome).
const (
	MatchStatusPending          = "PENDING"
	MatchStatusBlockedFraud     = "BLOCKED_FRAUD"
	MatchStatusOverrideApproved = "OVERRIDE_APPROVED"
)

// MSME payment-SLA status enum constants
const (
	MSMEOnTrack  = "ON_TRACK"
	MSMEAtRisk   = "AT_RISK"
	MSMEBreached = "BREACHED"
)

// EBS AP posting status enum constants
const (
	EBSAPNotStarted = "NOT_STARTED"
	EBSAPPending    = "PENDING"
	EBSAPPosted     = "POSTED"
	EBSAPBlocked    = "BLOCKED"
	EBSAPFailed     = "FAILED"
)

// GST cache validation status enum constants
const (
	GSTCacheValid      = "VALID"
	GSTCacheInvalid    = "INVALID"
	GSTCacheNotInCache = "NOT_IN_CACHE"
)

// Invoice is the central document of the procure-to-pay lifecycle.
//
// Lifecycle:
//
//	CAPTURED -> EXTRACTED -> VALIDATED -> MATCHED -> PENDING_APPROVAL
//	         -> APPROVED -> POSTED_TO_EBS -> PAID
//	         -> REJECTED (from any non-terminal status)
//
// PO/GRN/Supplier links are plain foreign-key values resolved on demand,
// never owning pointers. Financial amounts are computed once at creation.
type Invoice struct {
	ID            uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	InvoiceNumber string     `gorm:"type:varchar(50);uniqueIndex;not null" json:"invoice_number"`
	SupplierID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"supplier_id"`
	POID          *uuid.UUID `gorm:"type:uuid;index" json:"po_id"`
	GRNID         *uuid.UUID `gorm:"type:uuid" json:"grn_id"`

	InvoiceDate *time.Time `gorm:"type:date" json:"invoice_date"`
	DueDate     *time.Time `gorm:"type:date" json:"due_date"`

	Subtotal    decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"subtotal"`
	GSTRate     decimal.Decimal `gorm:"type:decimal(10,4);not null;default:0" json:"gst_rate"` // percent, e.g. 18
	GSTAmount   decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"gst_amount"`
	TDSRate     decimal.Decimal `gorm:"type:decimal(10,4);not null;default:0" json:"tds_rate"` // percent
	TDSAmount   decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"tds_amount"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"total_amount"` // subtotal + gst_amount
	NetPayable  decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"net_payable"`  // total_amount - tds_amount

	GSTINSupplier string `gorm:"type:varchar(15)" json:"gstin_supplier"`
	GSTINBuyer    string `gorm:"type:varchar(15)" json:"gstin_buyer"`
	HSNSAC        string `gorm:"type:varchar(10)" json:"hsn_sac"`
	IRN           string `gorm:"type:varchar(128)" json:"irn"` // e-Invoice Reference Number

	Status string `gorm:"type:varchar(30);not null;default:'CAPTURED';index" json:"status"`

	OCRConfidence *float64 `json:"ocr_confidence"`

	GSTINCacheStatus        string   `gorm:"type:varchar(20)" json:"gstin_cache_status"`
	GSTINValidatedFromCache bool     `gorm:"not null;default:false" json:"gstin_validated_from_cache"`
	GSTR2BITCEligible       *bool    `json:"gstr2b_itc_eligible"`
	GSTINCacheAgeHours      *float64 `json:"gstin_cache_age_hours"`

	MatchStatus          string   `gorm:"type:varchar(30);index" json:"match_status"`
	MatchVariance        *float64 `json:"match_variance"` // percent
	MatchExceptionReason string   `gorm:"type:text" json:"match_exception_reason"`
	MatchNote            string   `gorm:"type:text" json:"match_note"`

	FraudFlag    bool     `gorm:"not null;default:false" json:"fraud_flag"`
	FraudReasons []string `gorm:"type:jsonb;serializer:json" json:"fraud_reasons"`

	EBSAPStatus string     `gorm:"type:varchar(20);not null;default:'NOT_STARTED'" json:"ebs_ap_status"`
	EBSAPRef    string     `gorm:"type:varchar(50)" json:"ebs_ap_ref"`
	EBSPostedAt *time.Time `json:"ebs_posted_at"`

	ApprovedBy      string     `gorm:"type:varchar(255)" json:"approved_by"`
	ApprovedAt      *time.Time `json:"approved_at"`
	RejectedBy      string     `gorm:"type:varchar(255)" json:"rejected_by"`
	RejectedAt      *time.Time `json:"rejected_at"`
	RejectionReason string     `gorm:"type:text" json:"rejection_reason"`

	// MSME Section 43B(h): is_msme_supplier and msme_category are
	// snapshotted from the supplier at creation; the remaining fields are
	// derived by the classifier and recomputed on evaluation.
	IsMSMESupplier    bool            `gorm:"not null;default:false;index" json:"is_msme_supplier"`
	MSMECategory      string          `gorm:"type:varchar(10)" json:"msme_category"`
	MSMEDueDate       *time.Time      `gorm:"type:date" json:"msme_due_date"`
	MSMEDaysRemaining *int            `json:"msme_days_remaining"`
	MSMEStatus        string          `gorm:"type:varchar(20);index" json:"msme_status"`
	MSMEPenaltyAmount decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"msme_penalty_amount"`

	UploadedBy string    `gorm:"type:varchar(255)" json:"uploaded_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IsTerminal reports whether no further lifecycle transition is legal.
func (i *Invoice) IsTerminal() bool {
	return i.Status == InvoiceRejected || i.Status == InvoicePaid
}
