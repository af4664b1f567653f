package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/apflow/invoice-approval/internal/application/port"
	"github.com/apflow/invoice-approval/pkg/database"
)

// LedgerNotifier implements port.Notifier by recording every dispatch in the
// notifications table. Actual delivery (email, SMS, push) belongs to an
// external gateway polling the ledger; the engine only needs traceable IDs.
type LedgerNotifier struct {
	db     *database.DB
	now    func() time.Time
	newID  func() string
	logger *zap.Logger
}

// Option configures the notifier.
type Option func(*LedgerNotifier)

// WithClock overrides the notifier's time source.
func WithClock(now func() time.Time) Option {
	return func(n *LedgerNotifier) {
		n.now = now
	}
}

// WithIDGenerator overrides the notifier's ID source.
func WithIDGenerator(newID func() string) Option {
	return func(n *LedgerNotifier) {
		n.newID = newID
	}
}

// NewLedgerNotifier creates a ledger-backed notifier
func NewLedgerNotifier(db *database.DB, logger *zap.Logger, opts ...Option) *LedgerNotifier {
	n := &LedgerNotifier{
		db:     db,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: logger,
	}

	for _, opt := range opts {
		opt(n)
	}

	return n
}

// Notify records one ledger entry per target and returns the entry IDs.
func (n *LedgerNotifier) Notify(ctx context.Context, notification port.Notification) ([]string, error) {
	targets := make([]string, 0, len(notification.TargetUserIDs)+len(notification.TargetRoles))
	for _, id := range notification.TargetUserIDs {
		targets = append(targets, "user:"+id)
	}
	for _, role := range notification.TargetRoles {
		targets = append(targets, "role:"+role)
	}
	if len(targets) == 0 {
		return nil, nil
	}

	method := notification.Method
	if method == "" {
		method = "email"
	}

	query := `
		INSERT INTO notifications (
			id, request_id, target, method, urgency, subject, body, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := n.now()
	ids := make([]string, 0, len(targets))
	for _, target := range targets {
		id := n.newID()
		_, err := n.db.Executor(ctx).ExecContext(ctx, query,
			id,
			notification.RequestID,
			target,
			method,
			notification.Urgency,
			notification.Subject,
			notification.Body,
			now,
		)
		if err != nil {
			n.logger.Error("Failed to record notification",
				zap.String("request_id", notification.RequestID),
				zap.String("target", target),
				zap.Error(err))
			return ids, fmt.Errorf("failed to record notification: %w", err)
		}
		ids = append(ids, id)
	}

	n.logger.Info("Notification recorded",
		zap.String("request_id", notification.RequestID),
		zap.String("method", method),
		zap.String("targets", strings.Join(targets, ",")),
		zap.Int("count", len(ids)))
	return ids, nil
}
