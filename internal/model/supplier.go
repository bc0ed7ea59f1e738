package model

import (
	"time"

	"github.com/google/uuid"
)

// Supplier status enum constants
const (
	SupplierActive    = "ACTIVE"
	SupplierSuspended = "SUSPENDED"
	SupplierBlocked   = "BLOCKED"
)

// MSME category enum constants (Udyam registration classes)
const (
	MSMECategoryMicro  = "MICRO"
	MSMECategorySmall  = "SMALL"
	MSMECategoryMedium = "MEDIUM"
)

// Supplier is the vendor master record. The invoice pipeline treats it
// as read-only: MSME and GSTIN fields are snapshotted onto the invoice
// at capture time so later supplier edits never rewrite history.
type Supplier struct {
	ID               uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Code             string    `gorm:"type:varchar(20);uniqueIndex;not null" json:"code"` // e.g. SUP001
	LegalName        string    `gorm:"type:varchar(500);not null" json:"legal_name"`
	GSTIN            string    `gorm:"type:varchar(15)" json:"gstin"`
	PAN              string    `gorm:"type:varchar(10)" json:"pan"`
	IsMSME           bool      `gorm:"not null;default:false;index" json:"is_msme"`
	MSMECategory     string    `gorm:"type:varchar(10)" json:"msme_category"` // MICRO, SMALL, MEDIUM
	UdyamRegNumber   string    `gorm:"type:varchar(30)" json:"udyam_reg_number"`
	PaymentTermsDays int       `gorm:"not null;default:30" json:"payment_terms_days"`
	ContactEmail     string    `gorm:"type:varchar(255)" json:"contact_email"`
	State            string    `gorm:"type:varchar(100)" json:"state"`
	Status           string    `gorm:"type:varchar(20);not null;default:'ACTIVE'" json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
