package events

import "strings"

// Event name constants, used by subscribers registered at startup.
const (
	EventInvoiceExtracted       = "invoice.extracted"
	EventInvoiceValidated       = "invoice.validated"
	EventInvoiceMatched         = "invoice.matched"
	EventInvoicePendingApproval = "invoice.pending-approval"
	EventInvoiceApproved        = "invoice.approved"
	EventInvoiceRejected        = "invoice.rejected"
	EventInvoicePostedToEBS     = "invoice.posted-to-ebs"
	EventInvoicePaid            = "invoice.paid"
	EventMatchingPassed         = "matching.passed"
	EventMatchingException      = "matching.exception"
	EventMatchingBlockedFraud   = "matching.blocked_fraud"
	EventExceptionResolved      = "matching.exception_resolved"
)

// AllEventNames lists every event the platform publishes.
func AllEventNames() []string {
	return []string{
		EventInvoiceExtracted,
		EventInvoiceValidated,
		EventInvoiceMatched,
		EventInvoicePendingApproval,
		EventInvoiceApproved,
		EventInvoiceRejected,
		EventInvoicePostedToEBS,
		EventInvoicePaid,
		EventMatchingPassed,
		EventMatchingException,
		EventMatchingBlockedFraud,
		EventExceptionResolved,
	}
}

// Payload is implemented by every event payload variant. Each variant
// knows its own event name so handlers can subscribe by name and
// type-switch on the payload without probing loose maps.
type Payload interface {
	EventName() string
}

// InvoiceTransitioned is published for every lifecycle status change that
// has no richer dedicated payload (extract, validate, match, queue, post,
// settle).
type InvoiceTransitioned struct {
	InvoiceNumber string `json:"invoice_number"`
	OldStatus     string `json:"old_status"`
	NewStatus     string `json:"new_status"`
}

func (p InvoiceTransitioned) EventName() string {
	return "invoice." + strings.ReplaceAll(strings.ToLower(p.NewStatus), "_", "-")
}

// InvoiceApproved is published when an invoice is approved for payment.
type InvoiceApproved struct {
	InvoiceNumber string `json:"invoice_number"`
	SupplierCode  string `json:"supplier_code"`
	TotalAmount   string `json:"total_amount"`
	NetPayable    string `json:"net_payable"`
	ApprovedBy    string `json:"approved_by"`
}

func (p InvoiceApproved) EventName() string { return EventInvoiceApproved }

// InvoiceRejected is published when an invoice is rejected.
type InvoiceRejected struct {
	InvoiceNumber string `json:"invoice_number"`
	SupplierCode  string `json:"supplier_code"`
	TotalAmount   string `json:"total_amount"`
	Reason        string `json:"reason"`
	RejectedBy    string `json:"rejected_by"`
}

func (p InvoiceRejected) EventName() string { return EventInvoiceRejected }

// MatchCompleted is published after every matching run.
type MatchCompleted struct {
	InvoiceNumber string  `json:"invoice_number"`
	MatchType     string  `json:"match_type"`
	Status        string  `json:"status"` // PASSED, EXCEPTION, BLOCKED_FRAUD
	VariancePct   float64 `json:"variance_pct"`
}

func (p MatchCompleted) EventName() string {
	return "matching." + strings.ToLower(p.Status)
}

// ExceptionResolved is published when a matching exception is resolved.
type ExceptionResolved struct {
	ExceptionID   string `json:"exception_id"`
	InvoiceNumber string `json:"invoice_number"`
	Resolution    string `json:"resolution"`
	ResolvedBy    string `json:"resolved_by"`
}

func (p ExceptionResolved) EventName() string { return EventExceptionResolved }
