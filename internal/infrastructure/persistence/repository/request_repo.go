package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/apflow/invoice-approval/internal/application/port"
	"github.com/apflow/invoice-approval/internal/domain/apperr"
	"github.com/apflow/invoice-approval/internal/domain/entity"
	"github.com/apflow/invoice-approval/pkg/database"
)

// RequestRepository implements port.RequestRepository. The request document
// (frozen workflow, history, audit trail) lives in a JSON payload column;
// status, due date and version are split out for queries and concurrency
// control.
type RequestRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *database.DB, logger *zap.Logger) port.RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: logger,
	}
}

// Create persists a new approval request
func (r *RequestRepository) Create(ctx context.Context, req *entity.InvoiceApprovalRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	query := `
		INSERT INTO approval_requests (
			id, invoice_id, submitter_id, status, current_level,
			due_date, submitted_at, payload, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Executor(ctx).ExecContext(ctx, query,
		req.ID,
		req.InvoiceID,
		req.SubmitterID,
		req.Status,
		req.CurrentLevel,
		req.DueDate,
		req.SubmittedAt,
		string(payload),
		req.Version,
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create request", zap.String("id", req.ID), zap.Error(err))
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

// GetByID retrieves a request by ID
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*entity.InvoiceApprovalRequest, error) {
	return r.getOne(ctx, `SELECT payload, version FROM approval_requests WHERE id = ?`, id)
}

// GetByInvoiceID retrieves the most recent request for an invoice
func (r *RequestRepository) GetByInvoiceID(ctx context.Context, invoiceID string) (*entity.InvoiceApprovalRequest, error) {
	return r.getOne(ctx,
		`SELECT payload, version FROM approval_requests WHERE invoice_id = ? ORDER BY submitted_at DESC LIMIT 1`,
		invoiceID)
}

func (r *RequestRepository) getOne(ctx context.Context, query string, arg interface{}) (*entity.InvoiceApprovalRequest, error) {
	var payload string
	var version int

	err := r.db.Executor(ctx).QueryRowContext(ctx, query, arg).Scan(&payload, &version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get request", zap.Error(err))
		return nil, fmt.Errorf("failed to get request: %w", err)
	}

	req, err := unmarshalRequest(payload)
	if err != nil {
		return nil, err
	}
	req.Version = version
	return req, nil
}

// Update writes the request back with a compare-and-swap on the version
// column. A lost race surfaces as a state conflict so the caller can retry
// with fresh state.
func (r *RequestRepository) Update(ctx context.Context, req *entity.InvoiceApprovalRequest) error {
	next := req.Version + 1
	req.Version = next
	payload, err := json.Marshal(req)
	if err != nil {
		req.Version = next - 1
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	query := `
		UPDATE approval_requests
		SET status = ?, current_level = ?, due_date = ?, payload = ?,
			version = ?, updated_at = ?
		WHERE id = ? AND version = ?
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		req.Status,
		req.CurrentLevel,
		req.DueDate,
		string(payload),
		next,
		req.UpdatedAt,
		req.ID,
		next-1,
	)
	if err != nil {
		req.Version = next - 1
		r.logger.Error("Failed to update request", zap.String("id", req.ID), zap.Error(err))
		return fmt.Errorf("failed to update request: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		req.Version = next - 1
		return apperr.StateConflict(req.ID, req.Status, "request was modified concurrently")
	}
	return nil
}

// List retrieves requests filtered by status ("" for all), newest first
func (r *RequestRepository) List(ctx context.Context, status string, limit, offset int) ([]*entity.InvoiceApprovalRequest, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT payload, version FROM approval_requests`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY submitted_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list requests", zap.Error(err))
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	return scanRequests(rows)
}

// ListDueBefore retrieves non-terminal requests whose due date has passed
func (r *RequestRepository) ListDueBefore(ctx context.Context, t time.Time) ([]*entity.InvoiceApprovalRequest, error) {
	query := `
		SELECT payload, version FROM approval_requests
		WHERE status IN (?, ?) AND due_date < ?
		ORDER BY due_date ASC
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query,
		entity.RequestStatusPending, entity.RequestStatusInReview, t)
	if err != nil {
		r.logger.Error("Failed to list due requests", zap.Error(err))
		return nil, fmt.Errorf("failed to list due requests: %w", err)
	}
	defer rows.Close()

	return scanRequests(rows)
}

func scanRequests(rows *sql.Rows) ([]*entity.InvoiceApprovalRequest, error) {
	var out []*entity.InvoiceApprovalRequest
	for rows.Next() {
		var payload string
		var version int
		if err := rows.Scan(&payload, &version); err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		req, err := unmarshalRequest(payload)
		if err != nil {
			return nil, err
		}
		req.Version = version
		out = append(out, req)
	}
	return out, rows.Err()
}

func unmarshalRequest(payload string) (*entity.InvoiceApprovalRequest, error) {
	var req entity.InvoiceApprovalRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal request: %w", err)
	}
	return &req, nil
}
