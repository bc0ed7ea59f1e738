package model

import (
	"time"

	"github.com/google/uuid"
)

// MatchType enum constants
const (
	MatchType2Way = "2WAY"
	MatchType3Way = "3WAY"
)

// MatchResult status enum constants
const (
	MatchPassed       = "PASSED"
	MatchException    = "EXCEPTION"
	MatchBlockedFraud = "BLOCKED_FRAUD"
)

// MatchingException type enum constants
const (
	ExceptionPriceVariance    = "PRICE_VARIANCE"
	ExceptionQuantityMismatch = "QUANTITY_MISMATCH"
	ExceptionNoPO             = "NO_PO"
	ExceptionFraudBlock       = "FRAUD_BLOCK"
	ExceptionOther            = "OTHER"
)

// Severity enum constants
const (
	SeverityLow      = "LOW"
	SeverityMedium   = "MEDIUM"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"
)

// Resolution enum constants
const (
	ResolutionApprovedOverride = "APPROVED_OVERRIDE"
	ResolutionRejected         = "REJECTED"
	ResolutionEscalated        = "ESCALATED"
)

// MatchResult is the immutable outcome of one matching run. Historical
// runs are retained; the invoice mirrors only the latest one.
type MatchResult struct {
	ID              uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	InvoiceID       uuid.UUID `gorm:"type:uuid;not null;index" json:"invoice_id"`
	MatchType       string    `gorm:"type:varchar(20);not null" json:"match_type"`        // 2WAY, 3WAY
	Status          string    `gorm:"type:varchar(30);not null;index" json:"status"`      // PASSED, EXCEPTION, BLOCKED_FRAUD
	VariancePct     float64   `gorm:"type:decimal(8,2);not null;default:0" json:"variance_pct"`
	ExceptionReason string    `gorm:"type:text" json:"exception_reason"`
	Note            string    `gorm:"type:text" json:"note"`
	CreatedAt       time.Time `gorm:"index" json:"created_at"`
}

// MatchingException records an EXCEPTION or BLOCKED_FRAUD outcome for
// manual resolution. Created atomically with its MatchResult; resolution
// is write-once.
type MatchingException struct {
	ID              uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	MatchResultID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"match_result_id"`
	InvoiceID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"invoice_id"`
	ExceptionType   string     `gorm:"type:varchar(30);not null" json:"exception_type"` // PRICE_VARIANCE, QUANTITY_MISMATCH, NO_PO, FRAUD_BLOCK, OTHER
	Severity        string     `gorm:"type:varchar(10);not null" json:"severity"`       // LOW, MEDIUM, HIGH, CRITICAL
	Description     string     `gorm:"type:text" json:"description"`
	Resolution      *string    `gorm:"type:varchar(30)" json:"resolution"` // null until resolved
	ResolvedBy      string     `gorm:"type:varchar(255)" json:"resolved_by"`
	ResolvedAt      *time.Time `json:"resolved_at"`
	ResolutionNotes string     `gorm:"type:text" json:"resolution_notes"`
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`
}

// IsOpen reports whether the exception still awaits manual resolution.
func (e *MatchingException) IsOpen() bool { return e.Resolution == nil }
