package port

import (
	"context"
	"time"

	"github.com/apflow/invoice-approval/internal/domain/entity"
)

// WorkflowRepository defines persistence operations for ApprovalWorkflow
type WorkflowRepository interface {
	Create(ctx context.Context, wf *entity.ApprovalWorkflow) error
	GetByID(ctx context.Context, id string) (*entity.ApprovalWorkflow, error)
	ListActive(ctx context.Context) ([]*entity.ApprovalWorkflow, error)
	List(ctx context.Context, limit, offset int) ([]*entity.ApprovalWorkflow, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// RequestRepository defines persistence operations for InvoiceApprovalRequest.
// Update must apply optimistic concurrency on Version: the write succeeds only
// when the stored version matches the request's, and bumps it by one.
type RequestRepository interface {
	Create(ctx context.Context, req *entity.InvoiceApprovalRequest) error
	GetByID(ctx context.Context, id string) (*entity.InvoiceApprovalRequest, error)
	GetByInvoiceID(ctx context.Context, invoiceID string) (*entity.InvoiceApprovalRequest, error)
	Update(ctx context.Context, req *entity.InvoiceApprovalRequest) error
	List(ctx context.Context, status string, limit, offset int) ([]*entity.InvoiceApprovalRequest, error)
	ListDueBefore(ctx context.Context, t time.Time) ([]*entity.InvoiceApprovalRequest, error)
}

// CustomerInvoiceStats aggregates a customer's invoice history for fraud
// baseline comparison.
type CustomerInvoiceStats struct {
	InvoiceCount int     `json:"invoice_count"`
	AverageTotal float64 `json:"average_total"`
	MaxTotal     float64 `json:"max_total"`
}

// InvoiceRepository defines persistence operations for Invoice
type InvoiceRepository interface {
	Create(ctx context.Context, inv *entity.Invoice) error
	GetByID(ctx context.Context, id string) (*entity.Invoice, error)
	UpdateStatus(ctx context.Context, id, status string) error
	ListOverdue(ctx context.Context, asOf time.Time) ([]*entity.Invoice, error)
	CustomerStats(ctx context.Context, customerID string) (*CustomerInvoiceStats, error)
	CountDuplicates(ctx context.Context, excludeID, invoiceNumber string, amount float64, since time.Time) (int, error)
}

// CustomerRepository defines persistence operations for Customer
type CustomerRepository interface {
	Create(ctx context.Context, c *entity.Customer) error
	GetByID(ctx context.Context, id string) (*entity.Customer, error)
}

// AutomationRepository defines persistence operations for CollectionAutomation
type AutomationRepository interface {
	Create(ctx context.Context, a *entity.CollectionAutomation) error
	GetByID(ctx context.Context, id string) (*entity.CollectionAutomation, error)
	GetByInvoiceID(ctx context.Context, invoiceID string) (*entity.CollectionAutomation, error)
	Update(ctx context.Context, a *entity.CollectionAutomation) error
	ListActive(ctx context.Context) ([]*entity.CollectionAutomation, error)
	List(ctx context.Context, limit, offset int) ([]*entity.CollectionAutomation, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
