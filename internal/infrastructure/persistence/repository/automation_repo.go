package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/apflow/invoice-approval/internal/application/port"
	"github.com/apflow/invoice-approval/internal/domain/entity"
	"github.com/apflow/invoice-approval/pkg/database"
)

// AutomationRepository implements port.AutomationRepository. The schedule and
// metrics travel in the JSON payload column.
type AutomationRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewAutomationRepository creates a new automation repository
func NewAutomationRepository(db *database.DB, logger *zap.Logger) port.AutomationRepository {
	return &AutomationRepository{
		db:     db,
		logger: logger,
	}
}

// Create persists a new collection automation
func (r *AutomationRepository) Create(ctx context.Context, a *entity.CollectionAutomation) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal automation: %w", err)
	}

	query := `
		INSERT INTO collection_automations (
			id, invoice_id, customer_id, strategy, status, payload, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Executor(ctx).ExecContext(ctx, query,
		a.ID, a.InvoiceID, a.CustomerID, a.Strategy, a.Status,
		string(payload), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to create automation", zap.String("id", a.ID), zap.Error(err))
		return fmt.Errorf("failed to create automation: %w", err)
	}
	return nil
}

// GetByID retrieves an automation by ID
func (r *AutomationRepository) GetByID(ctx context.Context, id string) (*entity.CollectionAutomation, error) {
	return r.getOne(ctx, `SELECT payload FROM collection_automations WHERE id = ?`, id)
}

// GetByInvoiceID retrieves the most recent automation for an invoice
func (r *AutomationRepository) GetByInvoiceID(ctx context.Context, invoiceID string) (*entity.CollectionAutomation, error) {
	return r.getOne(ctx,
		`SELECT payload FROM collection_automations WHERE invoice_id = ? ORDER BY created_at DESC LIMIT 1`,
		invoiceID)
}

func (r *AutomationRepository) getOne(ctx context.Context, query string, arg interface{}) (*entity.CollectionAutomation, error) {
	var payload string
	err := r.db.Executor(ctx).QueryRowContext(ctx, query, arg).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get automation", zap.Error(err))
		return nil, fmt.Errorf("failed to get automation: %w", err)
	}
	return unmarshalAutomation(payload)
}

// Update writes an automation back
func (r *AutomationRepository) Update(ctx context.Context, a *entity.CollectionAutomation) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal automation: %w", err)
	}

	query := `
		UPDATE collection_automations
		SET strategy = ?, status = ?, payload = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		a.Strategy, a.Status, string(payload), a.UpdatedAt, a.ID)
	if err != nil {
		r.logger.Error("Failed to update automation", zap.String("id", a.ID), zap.Error(err))
		return fmt.Errorf("failed to update automation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("automation %s not found", a.ID)
	}
	return nil
}

// ListActive retrieves all active automations
func (r *AutomationRepository) ListActive(ctx context.Context) ([]*entity.CollectionAutomation, error) {
	return r.list(ctx,
		`SELECT payload FROM collection_automations WHERE status = ? ORDER BY created_at ASC`,
		entity.AutomationActive)
}

// List retrieves automations with pagination
func (r *AutomationRepository) List(ctx context.Context, limit, offset int) ([]*entity.CollectionAutomation, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.list(ctx,
		`SELECT payload FROM collection_automations ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset)
}

func (r *AutomationRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.CollectionAutomation, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list automations", zap.Error(err))
		return nil, fmt.Errorf("failed to list automations: %w", err)
	}
	defer rows.Close()

	var out []*entity.CollectionAutomation
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan automation: %w", err)
		}
		a, err := unmarshalAutomation(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func unmarshalAutomation(payload string) (*entity.CollectionAutomation, error) {
	var a entity.CollectionAutomation
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal automation: %w", err)
	}
	return &a, nil
}
