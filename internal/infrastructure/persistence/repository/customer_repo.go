package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/apflow/invoice-approval/internal/application/port"
	"github.com/apflow/invoice-approval/internal/domain/entity"
	"github.com/apflow/invoice-approval/pkg/database"
)

// CustomerRepository implements port.CustomerRepository
type CustomerRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewCustomerRepository creates a new customer repository
func NewCustomerRepository(db *database.DB, logger *zap.Logger) port.CustomerRepository {
	return &CustomerRepository{
		db:     db,
		logger: logger,
	}
}

// Create persists a new customer
func (r *CustomerRepository) Create(ctx context.Context, c *entity.Customer) error {
	query := `
		INSERT INTO customers (id, name, email, phone, payment_terms, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		c.ID, c.Name, c.Email, c.Phone, c.PaymentTerms, c.IsActive, c.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create customer", zap.String("id", c.ID), zap.Error(err))
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

// GetByID retrieves a customer by ID
func (r *CustomerRepository) GetByID(ctx context.Context, id string) (*entity.Customer, error) {
	query := `
		SELECT id, name, email, phone, payment_terms, is_active, created_at
		FROM customers WHERE id = ?
	`

	var c entity.Customer
	err := r.db.Executor(ctx).QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.Email, &c.Phone, &c.PaymentTerms, &c.IsActive, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get customer", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return &c, nil
}
