package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/apflow/invoice-approval/internal/application/collections"
	"github.com/apflow/invoice-approval/internal/application/engine"
	"github.com/apflow/invoice-approval/internal/application/port"
	"github.com/apflow/invoice-approval/internal/domain/apperr"
	"github.com/apflow/invoice-approval/internal/domain/entity"
)

// Handlers contains the HTTP request handlers
type Handlers struct {
	engine      engine.Engine
	collections *collections.Engine
	workflows   port.WorkflowRepository
	logger      *zap.Logger
}

// NewHandlers creates a new handlers instance
func NewHandlers(eng engine.Engine, coll *collections.Engine, workflows port.WorkflowRepository, logger *zap.Logger) *Handlers {
	return &Handlers{
		engine:      eng,
		collections: coll,
		workflows:   workflows,
		logger:      logger,
	}
}

func respondData(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"data": data})
}

func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperr.IsValidation(err):
		status = http.StatusBadRequest
	case apperr.IsNotFound(err):
		status = http.StatusNotFound
	case apperr.IsStateConflict(err):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	respondData(c, http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

// SubmitRequestInput is the request body for submitting an invoice
type SubmitRequestInput struct {
	InvoiceID   string `json:"invoice_id" binding:"required"`
	SubmitterID string `json:"submitter_id" binding:"required"`
	WorkflowID  string `json:"workflow_id"`
}

// SubmitRequest handles POST /api/v1/requests
func (h *Handlers) SubmitRequest(c *gin.Context) {
	var in SubmitRequestInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, apperr.Validation("invalid request body: %v", err))
		return
	}

	req, err := h.engine.Submit(c.Request.Context(), in.InvoiceID, in.SubmitterID, in.WorkflowID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, req)
}

// ListRequestsQuery is the query string for listing requests
type ListRequestsQuery struct {
	Status string `form:"status"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

// ListRequests handles GET /api/v1/requests
func (h *Handlers) ListRequests(c *gin.Context) {
	var q ListRequestsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, apperr.Validation("invalid query parameters: %v", err))
		return
	}
	if q.Limit <= 0 {
		q.Limit = 20
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	requests, err := h.engine.ListRequests(c.Request.Context(), q.Status, q.Limit, q.Offset)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, gin.H{
		"requests": requests,
		"count":    len(requests),
	})
}

// GetRequest handles GET /api/v1/requests/:id
func (h *Handlers) GetRequest(c *gin.Context) {
	req, err := h.engine.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, req)
}

// ActionInput is the request body for an approver action
type ActionInput struct {
	ApproverID string   `json:"approver_id" binding:"required"`
	Action     string   `json:"action" binding:"required"`
	Comments   string   `json:"comments"`
	Conditions []string `json:"conditions"`
	DelegateTo string   `json:"delegate_to"`
}

// ProcessAction handles POST /api/v1/requests/:id/actions
func (h *Handlers) ProcessAction(c *gin.Context) {
	var in ActionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, apperr.Validation("invalid request body: %v", err))
		return
	}

	result, err := h.engine.ProcessAction(c.Request.Context(), engine.ActionInput{
		RequestID:  c.Param("id"),
		ApproverID: in.ApproverID,
		Action:     in.Action,
		Comments:   in.Comments,
		Conditions: in.Conditions,
		DelegateTo: in.DelegateTo,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, result)
}

// CancelInput is the request body for cancelling a request
type CancelInput struct {
	ActorID string `json:"actor_id" binding:"required"`
	Reason  string `json:"reason"`
}

// CancelRequest handles POST /api/v1/requests/:id/cancel
func (h *Handlers) CancelRequest(c *gin.Context) {
	var in CancelInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, apperr.Validation("invalid request body: %v", err))
		return
	}

	req, err := h.engine.Cancel(c.Request.Context(), c.Param("id"), in.ActorID, in.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, req)
}

// AttachDocumentInput is the request body for attaching a document
type AttachDocumentInput struct {
	UploaderID string `json:"uploader_id" binding:"required"`
	FileName   string `json:"file_name" binding:"required"`
	FilePath   string `json:"file_path" binding:"required"`
}

// AttachDocument handles POST /api/v1/requests/:id/documents
func (h *Handlers) AttachDocument(c *gin.Context) {
	var in AttachDocumentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, apperr.Validation("invalid request body: %v", err))
		return
	}

	req, err := h.engine.AttachDocument(c.Request.Context(), c.Param("id"), in.UploaderID, in.FileName, in.FilePath)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, req)
}

// CreateWorkflow handles POST /api/v1/workflows
func (h *Handlers) CreateWorkflow(c *gin.Context) {
	var wf entity.ApprovalWorkflow
	if err := c.ShouldBindJSON(&wf); err != nil {
		respondError(c, apperr.Validation("invalid request body: %v", err))
		return
	}
	if wf.Name == "" {
		respondError(c, apperr.Validation("workflow name is required"))
		return
	}
	if len(wf.ApprovalLevels) == 0 {
		respondError(c, apperr.Validation("workflow must define at least one approval level"))
		return
	}

	now := time.Now().UTC()
	wf.ID = uuid.NewString()
	wf.Version = 1
	wf.IsActive = true
	wf.CreatedAt = now
	wf.UpdatedAt = now

	if err := h.workflows.Create(c.Request.Context(), &wf); err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, &wf)
}

// ListWorkflowsQuery is the query string for listing workflows
type ListWorkflowsQuery struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

// ListWorkflows handles GET /api/v1/workflows
func (h *Handlers) ListWorkflows(c *gin.Context) {
	var q ListWorkflowsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, apperr.Validation("invalid query parameters: %v", err))
		return
	}
	if q.Limit <= 0 {
		q.Limit = 20
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	workflows, err := h.workflows.List(c.Request.Context(), q.Limit, q.Offset)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, gin.H{
		"workflows": workflows,
		"count":     len(workflows),
	})
}

// GetWorkflow handles GET /api/v1/workflows/:id
func (h *Handlers) GetWorkflow(c *gin.Context) {
	id := c.Param("id")
	wf, err := h.workflows.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if wf == nil {
		respondError(c, apperr.NotFound("workflow", id))
		return
	}
	respondData(c, http.StatusOK, wf)
}

// ActivateWorkflow handles POST /api/v1/workflows/:id/activate
func (h *Handlers) ActivateWorkflow(c *gin.Context) {
	h.setWorkflowActive(c, true)
}

// DeactivateWorkflow handles POST /api/v1/workflows/:id/deactivate
func (h *Handlers) DeactivateWorkflow(c *gin.Context) {
	h.setWorkflowActive(c, false)
}

func (h *Handlers) setWorkflowActive(c *gin.Context, active bool) {
	id := c.Param("id")
	if err := h.workflows.SetActive(c.Request.Context(), id, active); err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, gin.H{
		"id":        id,
		"is_active": active,
	})
}

// SweepTimeouts handles POST /api/v1/sweeps/timeouts
func (h *Handlers) SweepTimeouts(c *gin.Context) {
	escalated, err := h.engine.CheckTimeouts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, gin.H{"escalated": escalated})
}

// StartAutomationInput is the request body for starting a collection automation
type StartAutomationInput struct {
	InvoiceID string `json:"invoice_id" binding:"required"`
}

// StartAutomation handles POST /api/v1/collections
func (h *Handlers) StartAutomation(c *gin.Context) {
	var in StartAutomationInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, apperr.Validation("invalid request body: %v", err))
		return
	}

	auto, err := h.collections.StartAutomation(c.Request.Context(), in.InvoiceID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, auto)
}

// ListAutomations handles GET /api/v1/collections
func (h *Handlers) ListAutomations(c *gin.Context) {
	var q ListWorkflowsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, apperr.Validation("invalid query parameters: %v", err))
		return
	}
	if q.Limit <= 0 {
		q.Limit = 20
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	automations, err := h.collections.ListAutomations(c.Request.Context(), q.Limit, q.Offset)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, gin.H{
		"automations": automations,
		"count":       len(automations),
	})
}

// GetAutomation handles GET /api/v1/collections/:id
func (h *Handlers) GetAutomation(c *gin.Context) {
	auto, err := h.collections.GetAutomation(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, auto)
}

// RecordAttemptInput is the request body for recording a collection attempt
type RecordAttemptInput struct {
	Outcome   string  `json:"outcome" binding:"required"`
	Recovered float64 `json:"recovered"`
}

// RecordAttempt handles POST /api/v1/collections/:id/attempts
func (h *Handlers) RecordAttempt(c *gin.Context) {
	var in RecordAttemptInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, apperr.Validation("invalid request body: %v", err))
		return
	}

	auto, err := h.collections.RecordAttempt(c.Request.Context(), c.Param("id"), in.Outcome, in.Recovered)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, auto)
}

// PauseAutomation handles POST /api/v1/collections/:id/pause
func (h *Handlers) PauseAutomation(c *gin.Context) {
	auto, err := h.collections.Pause(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, auto)
}

// ResumeAutomation handles POST /api/v1/collections/:id/resume
func (h *Handlers) ResumeAutomation(c *gin.Context) {
	auto, err := h.collections.Resume(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, auto)
}

// SweepCollections handles POST /api/v1/collections/sweep
func (h *Handlers) SweepCollections(c *gin.Context) {
	started, err := h.collections.SweepOverdue(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, gin.H{"started": started})
}

// MonitorAutomations handles GET /api/v1/collections/monitor
func (h *Handlers) MonitorAutomations(c *gin.Context) {
	report, err := h.collections.MonitorAutomations(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, report)
}

// CollectionsReport handles GET /api/v1/collections/report
// and streams the monitoring report as an xlsx workbook.
func (h *Handlers) CollectionsReport(c *gin.Context) {
	ctx := c.Request.Context()

	report, err := h.collections.MonitorAutomations(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	automations, err := h.collections.ListAutomations(ctx, 1000, 0)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", `attachment; filename="collections-report.xlsx"`)
	c.Status(http.StatusOK)

	if err := collections.WriteReport(c.Writer, report, automations); err != nil {
		h.logger.Error("Failed to write collections report", zap.Error(err))
	}
}
