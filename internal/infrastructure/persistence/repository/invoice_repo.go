package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/apflow/invoice-approval/internal/application/port"
	"github.com/apflow/invoice-approval/internal/domain/entity"
	"github.com/apflow/invoice-approval/pkg/database"
)

const invoiceColumns = `
	id, invoice_number, customer_id, line_items, subtotal, tax_rate,
	tax_amount, total, balance, issue_date, due_date, status,
	vendor_name, notes, created_at, updated_at
`

// InvoiceRepository implements port.InvoiceRepository
type InvoiceRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *database.DB, logger *zap.Logger) port.InvoiceRepository {
	return &InvoiceRepository{
		db:     db,
		logger: logger,
	}
}

// Create persists a new invoice
func (r *InvoiceRepository) Create(ctx context.Context, inv *entity.Invoice) error {
	lineItems, err := json.Marshal(inv.LineItems)
	if err != nil {
		return fmt.Errorf("failed to marshal line items: %w", err)
	}

	query := `
		INSERT INTO invoices (` + invoiceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Executor(ctx).ExecContext(ctx, query,
		inv.ID,
		inv.InvoiceNumber,
		inv.CustomerID,
		string(lineItems),
		inv.Subtotal,
		inv.TaxRate,
		inv.TaxAmount,
		inv.Total,
		inv.Balance,
		inv.IssueDate,
		inv.DueDate,
		inv.Status,
		inv.VendorName,
		inv.Notes,
		inv.CreatedAt,
		inv.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create invoice", zap.String("id", inv.ID), zap.Error(err))
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

// GetByID retrieves an invoice by ID
func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = ?`

	inv, err := scanInvoice(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get invoice", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return inv, nil
}

// UpdateStatus updates an invoice's status
func (r *InvoiceRepository) UpdateStatus(ctx context.Context, id, status string) error {
	result, err := r.db.Executor(ctx).ExecContext(ctx,
		`UPDATE invoices SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, id)
	if err != nil {
		r.logger.Error("Failed to update invoice status", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to update invoice status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("invoice %s not found", id)
	}
	return nil
}

// ListOverdue retrieves unpaid invoices past their due date
func (r *InvoiceRepository) ListOverdue(ctx context.Context, asOf time.Time) ([]*entity.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + ` FROM invoices
		WHERE due_date < ? AND balance > 0 AND status NOT IN (?, ?)
		ORDER BY due_date ASC
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query,
		asOf, entity.InvoiceStatusPaid, entity.InvoiceStatusVoided)
	if err != nil {
		r.logger.Error("Failed to list overdue invoices", zap.Error(err))
		return nil, fmt.Errorf("failed to list overdue invoices: %w", err)
	}
	defer rows.Close()

	var out []*entity.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// CustomerStats aggregates a customer's invoice history
func (r *InvoiceRepository) CustomerStats(ctx context.Context, customerID string) (*port.CustomerInvoiceStats, error) {
	query := `
		SELECT COUNT(*), COALESCE(AVG(total), 0), COALESCE(MAX(total), 0)
		FROM invoices
		WHERE customer_id = ? AND status != ?
	`

	var stats port.CustomerInvoiceStats
	err := r.db.Executor(ctx).QueryRowContext(ctx, query, customerID, entity.InvoiceStatusVoided).
		Scan(&stats.InvoiceCount, &stats.AverageTotal, &stats.MaxTotal)
	if err != nil {
		r.logger.Error("Failed to get customer stats", zap.String("customer_id", customerID), zap.Error(err))
		return nil, fmt.Errorf("failed to get customer stats: %w", err)
	}
	return &stats, nil
}

// CountDuplicates counts other invoices sharing a number or amount since the
// given time
func (r *InvoiceRepository) CountDuplicates(ctx context.Context, excludeID, invoiceNumber string, amount float64, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM invoices
		WHERE id != ?
			AND (invoice_number = ? OR ABS(total - ?) < 0.01)
			AND created_at >= ?
			AND status != ?
	`

	var count int
	err := r.db.Executor(ctx).QueryRowContext(ctx, query,
		excludeID, invoiceNumber, amount, since, entity.InvoiceStatusVoided).Scan(&count)
	if err != nil {
		r.logger.Error("Failed to count duplicates", zap.String("invoice_number", invoiceNumber), zap.Error(err))
		return 0, fmt.Errorf("failed to count duplicates: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInvoice(row rowScanner) (*entity.Invoice, error) {
	var inv entity.Invoice
	var lineItems string

	err := row.Scan(
		&inv.ID,
		&inv.InvoiceNumber,
		&inv.CustomerID,
		&lineItems,
		&inv.Subtotal,
		&inv.TaxRate,
		&inv.TaxAmount,
		&inv.Total,
		&inv.Balance,
		&inv.IssueDate,
		&inv.DueDate,
		&inv.Status,
		&inv.VendorName,
		&inv.Notes,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lineItems != "" {
		if err := json.Unmarshal([]byte(lineItems), &inv.LineItems); err != nil {
			return nil, fmt.Errorf("failed to unmarshal line items: %w", err)
		}
	}
	return &inv, nil
}
