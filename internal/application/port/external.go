package port

import (
	"context"

	"github.com/apflow/invoice-approval/internal/domain/entity"
)

// Notification is one dispatch to approvers, submitters or escalation targets.
type Notification struct {
	TargetRoles   []string `json:"target_roles,omitempty"`
	TargetUserIDs []string `json:"target_user_ids,omitempty"`
	Method        string   `json:"method"` // email, sms, push, portal
	Urgency       string   `json:"urgency"`
	Subject       string   `json:"subject"`
	Body          string   `json:"body"`
	RequestID     string   `json:"request_id,omitempty"`
}

// Notifier dispatches notifications fire-and-forget. Delivery failures are
// the collaborator's problem, not the engine's; the returned IDs are recorded
// for traceability.
type Notifier interface {
	Notify(ctx context.Context, n Notification) ([]string, error)
}

// RecommendationNarrator optionally enriches a generated recommendation with
// a human-readable narrative. Implementations may call an LLM; a nil narrator
// is valid and skips enrichment.
type RecommendationNarrator interface {
	Narrate(ctx context.Context, inv *entity.Invoice, rec *entity.ApprovalRecommendation) (string, error)
}

// DocumentExtractor pulls text and candidate invoice numbers out of an
// uploaded supporting document.
type DocumentExtractor interface {
	Extract(ctx context.Context, path string) (text string, pages int, err error)
}
