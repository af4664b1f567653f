package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/apflow/invoice-approval/internal/application/port"
	"github.com/apflow/invoice-approval/internal/domain/apperr"
	"github.com/apflow/invoice-approval/internal/domain/entity"
	"github.com/apflow/invoice-approval/pkg/database"
)

// WorkflowRepository implements port.WorkflowRepository. The nested workflow
// definition (levels, checks, rules) is stored as a JSON document; the
// columns exist for filtering only.
type WorkflowRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(db *database.DB, logger *zap.Logger) port.WorkflowRepository {
	return &WorkflowRepository{
		db:     db,
		logger: logger,
	}
}

// Create persists a new workflow
func (r *WorkflowRepository) Create(ctx context.Context, wf *entity.ApprovalWorkflow) error {
	definition, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow: %w", err)
	}

	query := `
		INSERT INTO approval_workflows (
			id, name, version, is_active, definition, created_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Executor(ctx).ExecContext(ctx, query,
		wf.ID,
		wf.Name,
		wf.Version,
		wf.IsActive,
		string(definition),
		wf.CreatedBy,
		wf.CreatedAt,
		wf.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create workflow", zap.String("id", wf.ID), zap.Error(err))
		return fmt.Errorf("failed to create workflow: %w", err)
	}
	return nil
}

// GetByID retrieves a workflow by ID
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*entity.ApprovalWorkflow, error) {
	query := `SELECT definition, is_active FROM approval_workflows WHERE id = ?`

	var definition string
	var isActive bool
	err := r.db.Executor(ctx).QueryRowContext(ctx, query, id).Scan(&definition, &isActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	wf, err := unmarshalWorkflow(definition)
	if err != nil {
		return nil, err
	}
	wf.IsActive = isActive
	return wf, nil
}

// ListActive retrieves all active workflows, newest first
func (r *WorkflowRepository) ListActive(ctx context.Context) ([]*entity.ApprovalWorkflow, error) {
	query := `SELECT definition, is_active FROM approval_workflows WHERE is_active = 1 ORDER BY created_at DESC`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list active workflows", zap.Error(err))
		return nil, fmt.Errorf("failed to list active workflows: %w", err)
	}
	defer rows.Close()

	return scanWorkflows(rows)
}

// List retrieves workflows with pagination
func (r *WorkflowRepository) List(ctx context.Context, limit, offset int) ([]*entity.ApprovalWorkflow, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT definition, is_active FROM approval_workflows ORDER BY created_at DESC LIMIT ? OFFSET ?`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list workflows", zap.Error(err))
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	return scanWorkflows(rows)
}

// SetActive toggles a workflow's active flag
func (r *WorkflowRepository) SetActive(ctx context.Context, id string, active bool) error {
	result, err := r.db.Executor(ctx).ExecContext(ctx,
		`UPDATE approval_workflows SET is_active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		active, id)
	if err != nil {
		r.logger.Error("Failed to set workflow active flag", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to set workflow active flag: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return apperr.NotFound("workflow", id)
	}
	return nil
}

func scanWorkflows(rows *sql.Rows) ([]*entity.ApprovalWorkflow, error) {
	var out []*entity.ApprovalWorkflow
	for rows.Next() {
		var definition string
		var isActive bool
		if err := rows.Scan(&definition, &isActive); err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		wf, err := unmarshalWorkflow(definition)
		if err != nil {
			return nil, err
		}
		wf.IsActive = isActive
		out = append(out, wf)
	}
	return out, rows.Err()
}

func unmarshalWorkflow(definition string) (*entity.ApprovalWorkflow, error) {
	var wf entity.ApprovalWorkflow
	if err := json.Unmarshal([]byte(definition), &wf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow: %w", err)
	}
	return &wf, nil
}
