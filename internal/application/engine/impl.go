package engine

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/apflow/invoice-approval/internal/application/port"
	"github.com/apflow/invoice-approval/internal/domain/apperr"
	"github.com/apflow/invoice-approval/internal/domain/entity"
	domainwf "github.com/apflow/invoice-approval/internal/domain/workflow"
)

const defaultLevelTimeoutHours = 72

// invoiceNumberPattern matches invoice numbers detected in extracted
// supporting-document text, e.g. "INV-2024-00317".
var invoiceNumberPattern = regexp.MustCompile(`(?i)\bINV[-/]?[0-9][0-9-/]{3,}\b`)

type engineImpl struct {
	workflowRepo port.WorkflowRepository
	requestRepo  port.RequestRepository
	invoiceRepo  port.InvoiceRepository
	customerRepo port.CustomerRepository
	txManager    port.TransactionManager

	fraud       FraudAnalyzer
	compliance  ComplianceChecker
	recommender Recommender

	notifier  port.Notifier
	extractor port.DocumentExtractor

	now   func() time.Time
	newID func() string

	logger *zap.Logger
}

// Option configures the engine
type Option func(*engineImpl)

// WithClock overrides the engine's time source
func WithClock(now func() time.Time) Option {
	return func(e *engineImpl) {
		e.now = now
	}
}

// WithIDGenerator overrides the engine's ID source
func WithIDGenerator(newID func() string) Option {
	return func(e *engineImpl) {
		e.newID = newID
	}
}

// New creates the approval workflow engine. The analyzer collaborators are
// injected so test doubles or ML-backed scorers can replace them.
func New(
	workflowRepo port.WorkflowRepository,
	requestRepo port.RequestRepository,
	invoiceRepo port.InvoiceRepository,
	customerRepo port.CustomerRepository,
	txManager port.TransactionManager,
	fraud FraudAnalyzer,
	compliance ComplianceChecker,
	recommender Recommender,
	notifier port.Notifier,
	extractor port.DocumentExtractor,
	logger *zap.Logger,
	opts ...Option,
) Engine {
	e := &engineImpl{
		workflowRepo: workflowRepo,
		requestRepo:  requestRepo,
		invoiceRepo:  invoiceRepo,
		customerRepo: customerRepo,
		txManager:    txManager,
		fraud:        fraud,
		compliance:   compliance,
		recommender:  recommender,
		notifier:     notifier,
		extractor:    extractor,
		now:          time.Now,
		newID:        uuid.NewString,
		logger:       logger,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Submit implements Engine.
func (e *engineImpl) Submit(ctx context.Context, invoiceID, submitterID, workflowID string) (*entity.InvoiceApprovalRequest, error) {
	if invoiceID == "" {
		return nil, apperr.Validation("invoice_id is required")
	}
	if submitterID == "" {
		return nil, apperr.Validation("submitter_id is required")
	}

	inv, err := e.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("load invoice: %w", err)
	}
	if inv == nil {
		return nil, apperr.NotFound("invoice", invoiceID)
	}
	if inv.Total <= 0 {
		return nil, apperr.Validation("invoice %s has non-positive total %.2f", invoiceID, inv.Total)
	}
	if inv.CustomerID == "" {
		return nil, apperr.Validation("invoice %s has no customer", invoiceID)
	}

	cust, err := e.customerRepo.GetByID(ctx, inv.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("load customer: %w", err)
	}

	wf, err := e.selectWorkflow(ctx, inv, workflowID)
	if err != nil {
		return nil, err
	}

	fraud := e.fraud.Analyze(ctx, inv, cust, wf.FraudRules)
	compliance := e.compliance.Check(ctx, inv, wf.ComplianceChecks)
	recommendations := e.recommender.Generate(ctx, inv, fraud, compliance, wf)

	now := e.now()
	req := &entity.InvoiceApprovalRequest{
		ID:              e.newID(),
		InvoiceID:       inv.ID,
		Workflow:        *wf, // captured by value; admin edits never reach in-flight requests
		SubmitterID:     submitterID,
		SubmittedAt:     now,
		FraudRisk:       fraud,
		Compliance:      compliance,
		Recommendations: recommendations,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	e.appendAudit(req, submitterID, "submitted", "", "", fmt.Sprintf("workflow %s selected", wf.ID))
	e.auditDegradedRules(req, fraud, compliance)

	autoApprove := wf.AutomationSettings.AutoApproveLowRisk &&
		fraud.OverallScore < wf.AutomationSettings.AutoApproveThreshold &&
		compliance.Overall == entity.ComplianceCompliant

	var sent []string
	if autoApprove {
		req.Status = entity.RequestStatusApproved
		req.CurrentLevel = 1
		req.RequiredApprovalsRemaining = 0
		req.History = append(req.History, entity.ApprovalAction{
			ID:         e.newID(),
			ApproverID: entity.SystemActorID,
			Action:     entity.ActionApprove,
			Level:      1,
			Comments:   fmt.Sprintf("auto-approved: fraud score %.0f below threshold %.0f and fully compliant", fraud.OverallScore, wf.AutomationSettings.AutoApproveThreshold),
			Timestamp:  now,
		})
		e.appendAudit(req, entity.SystemActorID, "auto_approved", "", entity.RequestStatusApproved, "")

		err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			if err := e.requestRepo.Create(txCtx, req); err != nil {
				return fmt.Errorf("create request: %w", err)
			}
			if err := e.invoiceRepo.UpdateStatus(txCtx, inv.ID, entity.InvoiceStatusApproved); err != nil {
				return fmt.Errorf("update invoice status: %w", err)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		e.logger.Info("Request auto-approved",
			zap.String("request_id", req.ID),
			zap.String("invoice_id", inv.ID),
			zap.Float64("fraud_score", fraud.OverallScore))
		return req, nil
	}

	level := levelByNumber(wf, 1)
	if level == nil {
		return nil, apperr.Validation("workflow %s has no approval levels", wf.ID)
	}

	req.Status = entity.RequestStatusPending
	req.CurrentLevel = 1
	req.RequiredApprovalsRemaining = level.Quorum()
	req.AssignedRoles = append([]string{}, level.ApproverRoles...)
	req.AssignedUserIDs = append([]string{}, level.ApproverUserIDs...)
	req.DueDate = now.Add(levelTimeout(level))
	e.appendAudit(req, entity.SystemActorID, "approvers_assigned", "", entity.RequestStatusPending,
		fmt.Sprintf("level 1 requires %d approval(s)", req.RequiredApprovalsRemaining))

	if err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return e.requestRepo.Create(txCtx, req)
	}); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if wf.AutomationSettings.NotifyOnSubmission {
		sent = e.notify(ctx, port.Notification{
			TargetRoles:   req.AssignedRoles,
			TargetUserIDs: req.AssignedUserIDs,
			Method:        "email",
			Urgency:       "normal",
			Subject:       fmt.Sprintf("Invoice %s awaiting approval", inv.InvoiceNumber),
			Body:          fmt.Sprintf("Invoice %s for %.2f needs level 1 sign-off by %s", inv.InvoiceNumber, inv.Total, req.DueDate.Format(time.RFC3339)),
			RequestID:     req.ID,
		})
	}

	e.logger.Info("Request submitted",
		zap.String("request_id", req.ID),
		zap.String("invoice_id", inv.ID),
		zap.Float64("fraud_score", fraud.OverallScore),
		zap.String("compliance", compliance.Overall),
		zap.Int("notifications", len(sent)))
	return req, nil
}

// ProcessAction implements Engine. The mutation is staged on a copy and
// committed with a single versioned update, so a failure leaves prior state
// untouched.
func (e *engineImpl) ProcessAction(ctx context.Context, in ActionInput) (*ActionResult, error) {
	if in.ApproverID == "" {
		return nil, apperr.Validation("approver_id is required")
	}

	req, err := e.requestRepo.GetByID(ctx, in.RequestID)
	if err != nil {
		return nil, fmt.Errorf("load request: %w", err)
	}
	if req == nil {
		return nil, apperr.NotFound("request", in.RequestID)
	}
	if req.IsTerminal() {
		return nil, apperr.StateConflict(req.ID, req.Status, "request is terminal")
	}

	result := &ActionResult{Request: req}
	var notifications []port.Notification

	switch in.Action {
	case entity.ActionApprove:
		notifications, err = e.applyApprove(req, in, result)
	case entity.ActionReject:
		notifications, err = e.applyReject(ctx, req, in, result)
	case entity.ActionRequestInfo:
		notifications, err = e.applyRequestInfo(ctx, req, in, result)
	case entity.ActionEscalate:
		notifications, err = e.applyEscalate(ctx, req, in, result)
	case entity.ActionDelegate:
		notifications, err = e.applyDelegate(req, in, result)
	case entity.ActionResume:
		notifications, err = e.applyResume(ctx, req, in, result)
	default:
		return nil, apperr.Validation("unknown action %q", in.Action)
	}
	if err != nil {
		return nil, err
	}

	req.UpdatedAt = e.now()

	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.requestRepo.Update(txCtx, req); err != nil {
			return err
		}
		if req.Status == entity.RequestStatusApproved {
			if err := e.invoiceRepo.UpdateStatus(txCtx, req.InvoiceID, entity.InvoiceStatusApproved); err != nil {
				return fmt.Errorf("update invoice status: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, n := range notifications {
		result.NotificationsSent = append(result.NotificationsSent, e.notify(ctx, n)...)
	}

	e.logger.Info("Action processed",
		zap.String("request_id", req.ID),
		zap.String("approver_id", in.ApproverID),
		zap.String("action", in.Action),
		zap.String("status", req.Status),
		zap.String("next_action", result.NextAction))
	return result, nil
}

func (e *engineImpl) applyApprove(req *entity.InvoiceApprovalRequest, in ActionInput, result *ActionResult) ([]port.Notification, error) {
	if req.Status == entity.RequestStatusEscalated {
		return nil, apperr.StateConflict(req.ID, req.Status, "escalated request must be resumed before approval")
	}
	level := req.CurrentApprovalLevel()
	if level == nil {
		return nil, apperr.StateConflict(req.ID, req.Status, "no configuration for level %d", req.CurrentLevel)
	}
	if err := e.checkApprover(req, level, in.ApproverID); err != nil {
		return nil, err
	}
	if req.RequiredApprovalsRemaining <= 0 {
		return nil, apperr.StateConflict(req.ID, req.Status, "level %d already satisfied", req.CurrentLevel)
	}

	e.appendHistory(req, in, req.CurrentLevel)
	req.RequiredApprovalsRemaining--

	if req.RequiredApprovalsRemaining > 0 {
		e.appendAudit(req, in.ApproverID, "approval_recorded", req.Status, req.Status,
			fmt.Sprintf("%d approval(s) remaining at level %d", req.RequiredApprovalsRemaining, req.CurrentLevel))
		result.NextAction = "awaiting_approvals"
		return nil, nil
	}

	if req.IsLastLevel() {
		if err := e.fire(req, domainwf.TriggerApprove); err != nil {
			return nil, err
		}
		prev := req.Status
		req.Status = entity.RequestStatusApproved
		e.appendAudit(req, in.ApproverID, "final_approval", prev, req.Status, "all levels satisfied")
		result.NextAction = "finalized_approved"

		return []port.Notification{{
			TargetUserIDs: []string{req.SubmitterID},
			Method:        "email",
			Urgency:       "normal",
			Subject:       "Invoice approved",
			Body:          fmt.Sprintf("Request %s fully approved", req.ID),
			RequestID:     req.ID,
		}}, nil
	}

	next := levelByNumber(&req.Workflow, req.CurrentLevel+1)
	if next == nil {
		return nil, apperr.StateConflict(req.ID, req.Status, "missing configuration for level %d", req.CurrentLevel+1)
	}
	req.CurrentLevel = next.Level
	req.RequiredApprovalsRemaining = next.Quorum()
	req.AssignedRoles = append([]string{}, next.ApproverRoles...)
	req.AssignedUserIDs = append([]string{}, next.ApproverUserIDs...)
	req.DueDate = e.now().Add(levelTimeout(next))
	e.appendAudit(req, in.ApproverID, "level_advanced", req.Status, req.Status,
		fmt.Sprintf("advanced to level %d, %d approval(s) required", next.Level, req.RequiredApprovalsRemaining))
	result.NextAction = fmt.Sprintf("advanced_to_level_%d", next.Level)

	var notifications []port.Notification
	if req.Workflow.AutomationSettings.NotifyOnSubmission {
		notifications = append(notifications, port.Notification{
			TargetRoles:   req.AssignedRoles,
			TargetUserIDs: req.AssignedUserIDs,
			Method:        "email",
			Urgency:       "normal",
			Subject:       fmt.Sprintf("Approval request at level %d", next.Level),
			Body:          fmt.Sprintf("Request %s advanced to level %d", req.ID, next.Level),
			RequestID:     req.ID,
		})
	}
	return notifications, nil
}

func (e *engineImpl) applyReject(_ context.Context, req *entity.InvoiceApprovalRequest, in ActionInput, result *ActionResult) ([]port.Notification, error) {
	if err := e.fire(req, domainwf.TriggerReject); err != nil {
		return nil, err
	}
	prev := req.Status
	e.appendHistory(req, in, req.CurrentLevel)
	req.Status = entity.RequestStatusRejected
	e.appendAudit(req, in.ApproverID, "rejected", prev, req.Status, in.Comments)
	result.NextAction = "rejected"

	return []port.Notification{{
		TargetUserIDs: []string{req.SubmitterID},
		Method:        "email",
		Urgency:       "high",
		Subject:       "Invoice rejected",
		Body:          fmt.Sprintf("Request %s was rejected by %s: %s", req.ID, in.ApproverID, in.Comments),
		RequestID:     req.ID,
	}}, nil
}

func (e *engineImpl) applyRequestInfo(_ context.Context, req *entity.InvoiceApprovalRequest, in ActionInput, result *ActionResult) ([]port.Notification, error) {
	prev := req.Status
	if req.Status == entity.RequestStatusPending {
		if err := e.fire(req, domainwf.TriggerBeginReview); err != nil {
			return nil, err
		}
		req.Status = entity.RequestStatusInReview
	}
	e.appendHistory(req, in, req.CurrentLevel)
	e.appendAudit(req, in.ApproverID, "information_requested", prev, req.Status, in.Comments)
	result.NextAction = "awaiting_information"

	return []port.Notification{{
		TargetUserIDs: []string{req.SubmitterID},
		Method:        "email",
		Urgency:       "normal",
		Subject:       "More information requested",
		Body:          fmt.Sprintf("Approver %s needs more information on request %s: %s", in.ApproverID, req.ID, in.Comments),
		RequestID:     req.ID,
	}}, nil
}

func (e *engineImpl) applyEscalate(_ context.Context, req *entity.InvoiceApprovalRequest, in ActionInput, result *ActionResult) ([]port.Notification, error) {
	if err := e.fire(req, domainwf.TriggerEscalate); err != nil {
		return nil, err
	}
	prev := req.Status
	e.appendHistory(req, in, req.CurrentLevel)
	req.Status = entity.RequestStatusEscalated

	rule := escalationRuleFor(&req.Workflow)
	detail := "no escalation rule configured"
	var notifications []port.Notification
	if rule != nil {
		detail = fmt.Sprintf("escalation rule %s applied", rule.ID)
		if req.Workflow.AutomationSettings.NotifyOnEscalation {
			notifications = append(notifications, port.Notification{
				TargetRoles:   rule.TargetRoles,
				TargetUserIDs: rule.TargetUserIDs,
				Method:        notificationMethod(rule),
				Urgency:       rule.Urgency,
				Subject:       "Approval request escalated",
				Body:          fmt.Sprintf("Request %s escalated at level %d by %s: %s", req.ID, req.CurrentLevel, in.ApproverID, in.Comments),
				RequestID:     req.ID,
			})
		}
	}
	e.appendAudit(req, in.ApproverID, "escalated", prev, req.Status, detail)
	result.NextAction = "escalated"
	return notifications, nil
}

func (e *engineImpl) applyDelegate(req *entity.InvoiceApprovalRequest, in ActionInput, result *ActionResult) ([]port.Notification, error) {
	if in.DelegateTo == "" {
		return nil, apperr.Validation("delegate_to is required for delegate actions")
	}
	if req.Status == entity.RequestStatusEscalated {
		return nil, apperr.StateConflict(req.ID, req.Status, "cannot delegate an escalated request")
	}

	replaced := false
	for i, id := range req.AssignedUserIDs {
		if id == in.ApproverID {
			req.AssignedUserIDs[i] = in.DelegateTo
			replaced = true
			break
		}
	}
	if !replaced {
		req.AssignedUserIDs = append(req.AssignedUserIDs, in.DelegateTo)
	}

	e.appendHistory(req, in, req.CurrentLevel)
	e.appendAudit(req, in.ApproverID, "delegated", req.Status, req.Status,
		fmt.Sprintf("approval delegated to %s", in.DelegateTo))
	result.NextAction = "delegated"

	return []port.Notification{{
		TargetUserIDs: []string{in.DelegateTo},
		Method:        "email",
		Urgency:       "normal",
		Subject:       "Approval delegated to you",
		Body:          fmt.Sprintf("%s delegated request %s to you", in.ApproverID, req.ID),
		RequestID:     req.ID,
	}}, nil
}

// applyResume re-enters pending at the same level. The escalation targets
// replace the level's approver assignment for this round and the quorum
// counter resets.
func (e *engineImpl) applyResume(_ context.Context, req *entity.InvoiceApprovalRequest, in ActionInput, result *ActionResult) ([]port.Notification, error) {
	if err := e.fire(req, domainwf.TriggerResume); err != nil {
		return nil, err
	}
	prev := req.Status
	level := req.CurrentApprovalLevel()
	if level == nil {
		return nil, apperr.StateConflict(req.ID, req.Status, "no configuration for level %d", req.CurrentLevel)
	}

	e.appendHistory(req, in, req.CurrentLevel)
	req.Status = entity.RequestStatusPending
	req.RequiredApprovalsRemaining = level.Quorum()
	req.DueDate = e.now().Add(levelTimeout(level))

	if rule := escalationRuleFor(&req.Workflow); rule != nil {
		req.AssignedRoles = append([]string{}, rule.TargetRoles...)
		req.AssignedUserIDs = append([]string{}, rule.TargetUserIDs...)
	}

	e.appendAudit(req, in.ApproverID, "resumed", prev, req.Status,
		fmt.Sprintf("resumed at level %d under escalation authority", req.CurrentLevel))
	result.NextAction = "resumed"
	return nil, nil
}

// Cancel implements Engine.
func (e *engineImpl) Cancel(ctx context.Context, requestID, actorID, reason string) (*entity.InvoiceApprovalRequest, error) {
	if actorID == "" {
		return nil, apperr.Validation("actor_id is required")
	}

	req, err := e.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load request: %w", err)
	}
	if req == nil {
		return nil, apperr.NotFound("request", requestID)
	}
	if req.IsTerminal() {
		return nil, apperr.StateConflict(req.ID, req.Status, "request is terminal")
	}

	if err := e.fire(req, domainwf.TriggerCancel); err != nil {
		return nil, err
	}
	prev := req.Status
	req.Status = entity.RequestStatusCancelled
	e.appendAudit(req, actorID, "cancelled", prev, req.Status, reason)
	req.UpdatedAt = e.now()

	if err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return e.requestRepo.Update(txCtx, req)
	}); err != nil {
		return nil, err
	}

	e.logger.Info("Request cancelled", zap.String("request_id", req.ID), zap.String("actor_id", actorID))
	return req, nil
}

// AttachDocument implements Engine.
func (e *engineImpl) AttachDocument(ctx context.Context, requestID, uploaderID, fileName, filePath string) (*entity.InvoiceApprovalRequest, error) {
	if fileName == "" || filePath == "" {
		return nil, apperr.Validation("file_name and file_path are required")
	}

	req, err := e.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load request: %w", err)
	}
	if req == nil {
		return nil, apperr.NotFound("request", requestID)
	}
	if req.IsTerminal() {
		return nil, apperr.StateConflict(req.ID, req.Status, "cannot attach documents to a terminal request")
	}

	doc := entity.SupportingDocument{
		ID:         e.newID(),
		FileName:   fileName,
		FilePath:   filePath,
		UploadedBy: uploaderID,
		UploadedAt: e.now(),
	}

	if e.extractor != nil {
		text, pages, err := e.extractor.Extract(ctx, filePath)
		if err != nil {
			// Attachment is secondary; keep the document without extracted text
			e.logger.Warn("Document extraction failed",
				zap.String("request_id", requestID),
				zap.String("file", fileName),
				zap.Error(err))
		} else {
			doc.ExtractedText = text
			doc.PageCount = pages
			doc.DetectedNumbers = invoiceNumberPattern.FindAllString(text, -1)
		}
	}

	req.Documents = append(req.Documents, doc)
	e.appendAudit(req, uploaderID, "document_attached", req.Status, req.Status,
		fmt.Sprintf("document %s (%d pages, %d detected numbers)", fileName, doc.PageCount, len(doc.DetectedNumbers)))
	req.UpdatedAt = e.now()

	if err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return e.requestRepo.Update(txCtx, req)
	}); err != nil {
		return nil, err
	}
	return req, nil
}

// GetRequest implements Engine.
func (e *engineImpl) GetRequest(ctx context.Context, requestID string) (*entity.InvoiceApprovalRequest, error) {
	req, err := e.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load request: %w", err)
	}
	if req == nil {
		return nil, apperr.NotFound("request", requestID)
	}
	return req, nil
}

// ListRequests implements Engine.
func (e *engineImpl) ListRequests(ctx context.Context, status string, limit, offset int) ([]*entity.InvoiceApprovalRequest, error) {
	return e.requestRepo.List(ctx, status, limit, offset)
}

// CheckTimeouts implements Engine.
func (e *engineImpl) CheckTimeouts(ctx context.Context) (int, error) {
	due, err := e.requestRepo.ListDueBefore(ctx, e.now())
	if err != nil {
		return 0, fmt.Errorf("list overdue requests: %w", err)
	}

	escalated := 0
	for _, req := range due {
		level := req.CurrentApprovalLevel()
		if level == nil || !level.AutoEscalateOnTimeout {
			continue
		}

		_, err := e.ProcessAction(ctx, ActionInput{
			RequestID:  req.ID,
			ApproverID: entity.SystemActorID,
			Action:     entity.ActionEscalate,
			Comments:   fmt.Sprintf("level %d timed out at %s", req.CurrentLevel, req.DueDate.Format(time.RFC3339)),
		})
		if err != nil {
			// One stuck request must not block the rest of the sweep
			e.logger.Error("Timeout escalation failed",
				zap.String("request_id", req.ID),
				zap.Error(err))
			continue
		}
		escalated++
	}

	if escalated > 0 {
		e.logger.Info("Timeout sweep complete", zap.Int("escalated", escalated), zap.Int("candidates", len(due)))
	}
	return escalated, nil
}

// checkApprover validates the actor against the level's assignment and
// criteria. Role-based assignments accept any actor since the engine has no
// role directory; explicit user lists are enforced.
func (e *engineImpl) checkApprover(req *entity.InvoiceApprovalRequest, level *entity.ApprovalLevel, approverID string) error {
	if approverID == entity.SystemActorID {
		return nil
	}

	for _, a := range req.History {
		if a.Action == entity.ActionApprove && a.Level == req.CurrentLevel && a.ApproverID == approverID {
			return apperr.StateConflict(req.ID, req.Status, "approver %s already approved level %d", approverID, req.CurrentLevel)
		}
	}

	if level.Criteria == entity.CriteriaSequentialApproval {
		// The request's assignment carries the level's approver order and
		// reflects in-place delegation; the workflow definition is the
		// fallback for requests persisted before assignment.
		order := req.AssignedUserIDs
		if len(order) == 0 {
			order = level.ApproverUserIDs
		}
		if len(order) > 0 {
			idx := level.Quorum() - req.RequiredApprovalsRemaining
			if idx >= 0 && idx < len(order) && order[idx] != approverID {
				return apperr.Validation("sequential approval expects %s next, got %s", order[idx], approverID)
			}
			return nil
		}
	}

	if len(req.AssignedUserIDs) == 0 {
		return nil
	}
	for _, id := range req.AssignedUserIDs {
		if id == approverID {
			return nil
		}
	}
	if len(req.AssignedRoles) > 0 {
		// Role membership is resolved by the identity collaborator upstream
		return nil
	}
	return apperr.NotFound("approver", approverID)
}

// fire validates the transition against the state machine built from the
// request's current status.
func (e *engineImpl) fire(req *entity.InvoiceApprovalRequest, trigger domainwf.Trigger) error {
	m := domainwf.BuildApprovalStateMachine(domainwf.State(req.Status))
	if err := m.Fire(context.Background(), trigger); err != nil {
		return apperr.StateConflict(req.ID, req.Status, "%s not allowed: %v", trigger, err)
	}
	return nil
}

func (e *engineImpl) appendHistory(req *entity.InvoiceApprovalRequest, in ActionInput, level int) {
	req.History = append(req.History, entity.ApprovalAction{
		ID:         e.newID(),
		ApproverID: in.ApproverID,
		Action:     in.Action,
		Level:      level,
		Comments:   in.Comments,
		Conditions: in.Conditions,
		DelegateTo: in.DelegateTo,
		Timestamp:  e.now(),
	})
}

func (e *engineImpl) appendAudit(req *entity.InvoiceApprovalRequest, actorID, eventType, prev, next, detail string) {
	req.AuditTrail = append(req.AuditTrail, entity.AuditEntry{
		ID:             e.newID(),
		ActorID:        actorID,
		EventType:      eventType,
		PreviousStatus: prev,
		NewStatus:      next,
		Detail:         detail,
		Timestamp:      e.now(),
	})
}

// auditDegradedRules records every fraud/compliance rule that degraded to
// skipped so the malformed configuration can be investigated later.
func (e *engineImpl) auditDegradedRules(req *entity.InvoiceApprovalRequest, fraud *entity.FraudRiskBreakdown, compliance *entity.ComplianceStatus) {
	for _, f := range fraud.Factors {
		if f.Skipped {
			e.appendAudit(req, entity.SystemActorID, "fraud_rule_skipped", "", "",
				fmt.Sprintf("rule %s: %v", f.RuleID, f.Evidence))
		}
	}
	for _, r := range compliance.Results {
		if r.Outcome == entity.CheckSkipped {
			e.appendAudit(req, entity.SystemActorID, "compliance_check_skipped", "", "",
				fmt.Sprintf("check %s: %v", r.CheckID, r.Violations))
		}
	}
}

func (e *engineImpl) notify(ctx context.Context, n port.Notification) []string {
	if e.notifier == nil {
		return nil
	}
	ids, err := e.notifier.Notify(ctx, n)
	if err != nil {
		// Fire-and-forget: delivery problems belong to the collaborator
		e.logger.Warn("Notification dispatch failed", zap.String("request_id", n.RequestID), zap.Error(err))
		return nil
	}
	return ids
}

func (e *engineImpl) selectWorkflow(ctx context.Context, inv *entity.Invoice, workflowID string) (*entity.ApprovalWorkflow, error) {
	if workflowID != "" {
		wf, err := e.workflowRepo.GetByID(ctx, workflowID)
		if err != nil {
			return nil, fmt.Errorf("load workflow: %w", err)
		}
		if wf == nil {
			return nil, apperr.NotFound("workflow", workflowID)
		}
		if !wf.IsActive {
			return nil, apperr.Validation("workflow %s is not active", workflowID)
		}
		return wf, nil
	}

	active, err := e.workflowRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}

	now := e.now()
	for _, wf := range active {
		if wf.TriggerConditions.Matches(inv, now) {
			return wf, nil
		}
	}
	return nil, apperr.NotFound("workflow", fmt.Sprintf("no active workflow matches invoice %s", inv.ID))
}

func levelByNumber(wf *entity.ApprovalWorkflow, n int) *entity.ApprovalLevel {
	for i := range wf.ApprovalLevels {
		if wf.ApprovalLevels[i].Level == n {
			return &wf.ApprovalLevels[i]
		}
	}
	return nil
}

func levelTimeout(level *entity.ApprovalLevel) time.Duration {
	hours := level.TimeoutHours
	if hours <= 0 {
		hours = defaultLevelTimeoutHours
	}
	return time.Duration(hours) * time.Hour
}

func escalationRuleFor(wf *entity.ApprovalWorkflow) *entity.EscalationRule {
	if len(wf.EscalationRules) == 0 {
		return nil
	}
	return &wf.EscalationRules[0]
}

func notificationMethod(rule *entity.EscalationRule) string {
	if rule.NotificationMethod == "" {
		return "email"
	}
	return rule.NotificationMethod
}
