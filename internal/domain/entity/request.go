package entity

import "time"

// Request statuses mirror the workflow state machine states.
const (
	RequestStatusPending   = "pending"
	RequestStatusInReview  = "in_review"
	RequestStatusApproved  = "approved"
	RequestStatusRejected  = "rejected"
	RequestStatusEscalated = "escalated"
	RequestStatusCancelled = "cancelled"
)

// Approver actions accepted by the engine.
const (
	ActionApprove     = "approve"
	ActionReject      = "reject"
	ActionRequestInfo = "request_info"
	ActionEscalate    = "escalate"
	ActionDelegate    = "delegate"
	ActionResume      = "resume"
)

// SystemActorID is recorded as the approver on synthetic engine actions
// (auto-approval, timeout escalation).
const SystemActorID = "system"

// InvoiceApprovalRequest is the mutable workflow instance for one invoice.
// The captured Workflow is frozen at submission time. Mutations go through
// the engine only; History and AuditTrail are append-only.
type InvoiceApprovalRequest struct {
	ID                         string                   `json:"id"`
	InvoiceID                  string                   `json:"invoice_id"`
	Invoice                    *Invoice                 `json:"invoice,omitempty"`
	Workflow                   ApprovalWorkflow         `json:"workflow"`
	SubmitterID                string                   `json:"submitter_id"`
	Status                     string                   `json:"status"`
	CurrentLevel               int                      `json:"current_level"`
	RequiredApprovalsRemaining int                      `json:"required_approvals_remaining"`
	AssignedRoles              []string                 `json:"assigned_roles"`
	AssignedUserIDs            []string                 `json:"assigned_user_ids"`
	SubmittedAt                time.Time                `json:"submitted_at"`
	DueDate                    time.Time                `json:"due_date"`
	FraudRisk                  *FraudRiskBreakdown      `json:"fraud_risk,omitempty"`
	Compliance                 *ComplianceStatus        `json:"compliance,omitempty"`
	Recommendations            []ApprovalRecommendation `json:"recommendations,omitempty"`
	History                    []ApprovalAction         `json:"history"`
	AuditTrail                 []AuditEntry             `json:"audit_trail"`
	Documents                  []SupportingDocument     `json:"documents,omitempty"`
	Comments                   []RequestComment         `json:"comments,omitempty"`
	Version                    int                      `json:"version"`
	CreatedAt                  time.Time                `json:"created_at"`
	UpdatedAt                  time.Time                `json:"updated_at"`
}

// IsTerminal reports whether the request can no longer change.
func (r *InvoiceApprovalRequest) IsTerminal() bool {
	switch r.Status {
	case RequestStatusApproved, RequestStatusRejected, RequestStatusCancelled:
		return true
	}
	return false
}

// CurrentApprovalLevel returns the level configuration the request sits at,
// or nil when CurrentLevel is out of range.
func (r *InvoiceApprovalRequest) CurrentApprovalLevel() *ApprovalLevel {
	for i := range r.Workflow.ApprovalLevels {
		if r.Workflow.ApprovalLevels[i].Level == r.CurrentLevel {
			return &r.Workflow.ApprovalLevels[i]
		}
	}
	return nil
}

// IsLastLevel reports whether the request is on the final approval level.
func (r *InvoiceApprovalRequest) IsLastLevel() bool {
	last := 0
	for _, l := range r.Workflow.ApprovalLevels {
		if l.Level > last {
			last = l.Level
		}
	}
	return r.CurrentLevel >= last
}

// ApprovalAction is one approver decision. Append-only; never mutated or
// deleted. The history is the source of truth for audit.
type ApprovalAction struct {
	ID         string    `json:"id"`
	ApproverID string    `json:"approver_id"`
	Action     string    `json:"action"`
	Level      int       `json:"level"`
	Comments   string    `json:"comments,omitempty"`
	Conditions []string  `json:"conditions,omitempty"`
	DelegateTo string    `json:"delegate_to,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// AuditEntry records one state mutation. Every engine mutation appends
// exactly one entry.
type AuditEntry struct {
	ID             string    `json:"id"`
	ActorID        string    `json:"actor_id"`
	EventType      string    `json:"event_type"`
	PreviousStatus string    `json:"previous_status"`
	NewStatus      string    `json:"new_status"`
	Detail         string    `json:"detail,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// SupportingDocument is a file attached to a request. ExtractedText and
// DetectedNumbers come from the PDF extractor and feed duplicate-invoice
// evidence.
type SupportingDocument struct {
	ID              string    `json:"id"`
	FileName        string    `json:"file_name"`
	FilePath        string    `json:"file_path"`
	PageCount       int       `json:"page_count"`
	ExtractedText   string    `json:"extracted_text,omitempty"`
	DetectedNumbers []string  `json:"detected_numbers,omitempty"`
	UploadedBy      string    `json:"uploaded_by"`
	UploadedAt      time.Time `json:"uploaded_at"`
}

// RequestComment is free-form discussion on a request.
type RequestComment struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
