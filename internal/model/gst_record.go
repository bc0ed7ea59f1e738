package model

import (
	"time"

	"github.com/google/uuid"
)

// GSTRecord status enum constants
const (
	GSTRecordActive    = "ACTIVE"
	GSTRecordSuspended = "SUSPENDED"
	GSTRecordCancelled = "CANCELLED"
)

// GSTRecord is a cached snapshot of a supplier's GST registration and
// return-filing state, keyed by GSTIN. The cache may be stale or absent;
// absence is non-fatal to invoice validation.
type GSTRecord struct {
	ID               uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	GSTIN            string     `gorm:"type:varchar(15);uniqueIndex;not null" json:"gstin"`
	LegalName        string     `gorm:"type:varchar(500)" json:"legal_name"`
	Status           string     `gorm:"type:varchar(20);not null;default:'ACTIVE'" json:"status"`
	State            string     `gorm:"type:varchar(100)" json:"state"`
	RegistrationType string     `gorm:"type:varchar(50)" json:"registration_type"`
	LastGSTR1Filed   string     `gorm:"type:varchar(20)" json:"last_gstr1_filed"` // filing period, e.g. 2024-06
	GSTR2BAvailable  bool       `gorm:"not null;default:false" json:"gstr2b_available"`
	GSTR2BPeriod     string     `gorm:"type:varchar(20)" json:"gstr2b_period"`
	GSTR1Compliance  string     `gorm:"type:varchar(20)" json:"gstr1_compliance"`
	ITCEligible      bool       `gorm:"not null;default:false" json:"itc_eligible"`
	LastSynced       *time.Time `json:"last_synced"`
	SyncSource       string     `gorm:"type:varchar(50)" json:"sync_source"`
	CacheHitCount    int        `gorm:"not null;default:0" json:"cache_hit_count"`
	ITCNote          string     `gorm:"type:text" json:"itc_note"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
