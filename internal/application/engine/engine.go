package engine

import (
	"context"

	"github.com/apflow/invoice-approval/internal/domain/entity"
)

// ActionInput carries one approver decision into the engine.
type ActionInput struct {
	RequestID  string   `json:"request_id"`
	ApproverID string   `json:"approver_id"`
	Action     string   `json:"action"`
	Comments   string   `json:"comments,omitempty"`
	Conditions []string `json:"conditions,omitempty"`
	DelegateTo string   `json:"delegate_to,omitempty"`
}

// ActionResult reports what the engine did with an action.
type ActionResult struct {
	Request           *entity.InvoiceApprovalRequest `json:"request"`
	NextAction        string                         `json:"next_action"`
	NotificationsSent []string                       `json:"notifications_sent"`
}

// Engine orchestrates the invoice approval workflow: workflow selection,
// fraud/compliance analysis, auto-approval, multi-level sign-off, escalation
// and cancellation. Every mutation is all-or-nothing.
type Engine interface {
	// Submit routes an invoice into a workflow, runs the analyzers and either
	// auto-approves or creates a pending request at level 1.
	Submit(ctx context.Context, invoiceID, submitterID, workflowID string) (*entity.InvoiceApprovalRequest, error)

	// ProcessAction applies one approver decision to a request.
	ProcessAction(ctx context.Context, in ActionInput) (*ActionResult, error)

	// Cancel aborts a request. Allowed only from pending or in_review.
	Cancel(ctx context.Context, requestID, actorID, reason string) (*entity.InvoiceApprovalRequest, error)

	// AttachDocument stores a supporting document on a request, extracting
	// text and candidate invoice numbers from PDFs.
	AttachDocument(ctx context.Context, requestID, uploaderID, fileName, filePath string) (*entity.InvoiceApprovalRequest, error)

	// GetRequest returns a request by ID.
	GetRequest(ctx context.Context, requestID string) (*entity.InvoiceApprovalRequest, error)

	// ListRequests returns requests filtered by status ("" for all).
	ListRequests(ctx context.Context, status string, limit, offset int) ([]*entity.InvoiceApprovalRequest, error)

	// CheckTimeouts escalates every pending/in_review request past its due
	// date whose level allows auto-escalation. Invoked by the scheduler.
	// Returns the number of requests escalated.
	CheckTimeouts(ctx context.Context) (int, error)
}

// FraudAnalyzer scores an invoice for fraud likelihood.
type FraudAnalyzer interface {
	Analyze(ctx context.Context, inv *entity.Invoice, cust *entity.Customer, rules []entity.FraudDetectionRule) *entity.FraudRiskBreakdown
}

// ComplianceChecker validates an invoice against configured checks.
type ComplianceChecker interface {
	Check(ctx context.Context, inv *entity.Invoice, checks []entity.ComplianceCheck) *entity.ComplianceStatus
}

// Recommender produces advisory approval guidance.
type Recommender interface {
	Generate(ctx context.Context, inv *entity.Invoice, fraud *entity.FraudRiskBreakdown, compliance *entity.ComplianceStatus, wf *entity.ApprovalWorkflow) []entity.ApprovalRecommendation
}
