package entity

import "time"

// Invoice statuses. An invoice is immutable until paid; both engines read
// these records but only the approval engine flips sent -> approved downstream.
const (
	InvoiceStatusDraft    = "draft"
	InvoiceStatusSent     = "sent"
	InvoiceStatusOverdue  = "overdue"
	InvoiceStatusPaid     = "paid"
	InvoiceStatusApproved = "approved"
	InvoiceStatusVoided   = "voided"
)

// Invoice represents a billing document referenced by the approval and
// collections engines. Owned by the accounting subsystem.
type Invoice struct {
	ID            string     `json:"id"`
	InvoiceNumber string     `json:"invoice_number"`
	CustomerID    string     `json:"customer_id"`
	LineItems     []LineItem `json:"line_items"`
	Subtotal      float64    `json:"subtotal"`
	TaxRate       float64    `json:"tax_rate"`
	TaxAmount     float64    `json:"tax_amount"`
	Total         float64    `json:"total"`
	Balance       float64    `json:"balance"`
	IssueDate     time.Time  `json:"issue_date"`
	DueDate       time.Time  `json:"due_date"`
	Status        string     `json:"status"`
	VendorName    string     `json:"vendor_name"`
	Notes         string     `json:"notes"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// LineItem is a single billed line on an invoice.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Amount      float64 `json:"amount"`
}

// DaysOverdue returns how many whole days past due the invoice is at now.
// Returns 0 when the invoice is not yet due.
func (i *Invoice) DaysOverdue(now time.Time) int {
	if !now.After(i.DueDate) {
		return 0
	}
	return int(now.Sub(i.DueDate).Hours() / 24)
}

// Customer is a read-only input to both engines.
type Customer struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	PaymentTerms int       `json:"payment_terms"` // net-N days
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}
