package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PurchaseOrder status enum constants
const (
	POStatusDraft     = "DRAFT"
	POStatusIssued    = "ISSUED"
	POStatusPartial   = "PARTIALLY_RECEIVED"
	POStatusReceived  = "RECEIVED"
	POStatusClosed    = "CLOSED"
	POStatusCancelled = "CANCELLED"
)

// GoodsReceiptNote status enum constants
const (
	GRNStatusPartial  = "PARTIAL"
	GRNStatusComplete = "COMPLETE"
)

// PurchaseOrder is a committed order against a supplier. The invoice
// pipeline reads it for amount comparison; it never mutates one.
type PurchaseOrder struct {
	ID           uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	PONumber     string          `gorm:"type:varchar(30);uniqueIndex;not null" json:"po_number"` // e.g. PO2024-001
	SupplierID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"supplier_id"`
	Amount       decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"amount"` // pre-tax committed amount
	Currency     string          `gorm:"type:varchar(3);not null;default:'INR'" json:"currency"`
	Status       string          `gorm:"type:varchar(30);not null;default:'DRAFT'" json:"status"`
	IssuedDate   *time.Time      `gorm:"type:date" json:"issued_date"`
	DeliveryDate *time.Time      `gorm:"type:date" json:"delivery_date"`
	CreatedBy    string          `gorm:"type:varchar(255)" json:"created_by"`
	LineItems    []POLineItem    `gorm:"foreignKey:POID" json:"line_items,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type POLineItem struct {
	ID          uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	POID        uuid.UUID       `gorm:"type:uuid;not null;index" json:"po_id"`
	Description string          `gorm:"type:varchar(500);not null" json:"description"`
	HSNSAC      string          `gorm:"type:varchar(10)" json:"hsn_sac"`
	Quantity    decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"unit_price"`
	LineTotal   decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"line_total"`
	SortOrder   int             `gorm:"not null;default:0" json:"sort_order"`
}

// GoodsReceiptNote records physical or service delivery against a PO.
// PARTIAL means not all ordered quantity has arrived yet.
type GoodsReceiptNote struct {
	ID           uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	GRNNumber    string          `gorm:"type:varchar(30);uniqueIndex;not null" json:"grn_number"`
	POID         uuid.UUID       `gorm:"type:uuid;not null;index" json:"po_id"`
	Status       string          `gorm:"type:varchar(20);not null;default:'PARTIAL'" json:"status"`
	ReceivedDate *time.Time      `gorm:"type:date" json:"received_date"`
	ReceivedBy   string          `gorm:"type:varchar(255)" json:"received_by"`
	Notes        string          `gorm:"type:text" json:"notes"`
	LineItems    []GRNLineItem   `gorm:"foreignKey:GRNID" json:"line_items,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type GRNLineItem struct {
	ID           uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	GRNID        uuid.UUID       `gorm:"type:uuid;not null;index" json:"grn_id"`
	POLineItemID *uuid.UUID      `gorm:"type:uuid" json:"po_line_item_id"`
	Description  string          `gorm:"type:varchar(500)" json:"description"`
	QtyOrdered   decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"qty_ordered"`
	QtyReceived  decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"qty_received"`
	QtyAccepted  decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"qty_accepted"`
	Condition    string          `gorm:"type:varchar(50)" json:"condition"`
}
