package collections

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/apflow/invoice-approval/internal/application/port"
	"github.com/apflow/invoice-approval/internal/domain/apperr"
	"github.com/apflow/invoice-approval/internal/domain/entity"
)

const defaultMaxAttempts = 5

// Attempt outcomes recorded by RecordAttempt.
const (
	OutcomePaid       = "paid"
	OutcomePromised   = "payment_promised"
	OutcomeNoResponse = "no_response"
	OutcomeDisputed   = "disputed"
)

// Engine runs collections automations for overdue invoices. It shares no
// mutable state with the approval engine; both read the same invoice and
// customer records.
type Engine struct {
	invoiceRepo    port.InvoiceRepository
	customerRepo   port.CustomerRepository
	automationRepo port.AutomationRepository
	txManager      port.TransactionManager

	maxAttempts int
	now         func() time.Time
	newID       func() string
	logger      *zap.Logger
}

// Option configures the engine.
type Option func(*Engine)

// WithMaxAttempts caps the outreach schedule length.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithIDGenerator overrides the engine's ID source.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) {
		e.newID = newID
	}
}

// New creates a collections engine.
func New(
	invoiceRepo port.InvoiceRepository,
	customerRepo port.CustomerRepository,
	automationRepo port.AutomationRepository,
	txManager port.TransactionManager,
	logger *zap.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		invoiceRepo:    invoiceRepo,
		customerRepo:   customerRepo,
		automationRepo: automationRepo,
		txManager:      txManager,
		maxAttempts:    defaultMaxAttempts,
		now:            time.Now,
		newID:          uuid.NewString,
		logger:         logger,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// StartAutomation creates an automation for an overdue invoice: picks a
// strategy from days overdue and the customer's payment history, then builds
// the outreach schedule.
func (e *Engine) StartAutomation(ctx context.Context, invoiceID string) (*entity.CollectionAutomation, error) {
	inv, err := e.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("load invoice: %w", err)
	}
	if inv == nil {
		return nil, apperr.NotFound("invoice", invoiceID)
	}

	now := e.now()
	daysOverdue := inv.DaysOverdue(now)
	if daysOverdue <= 0 {
		return nil, apperr.Validation("invoice %s is not overdue", invoiceID)
	}
	if inv.Balance <= 0 {
		return nil, apperr.Validation("invoice %s has no outstanding balance", invoiceID)
	}

	existing, err := e.automationRepo.GetByInvoiceID(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("check existing automation: %w", err)
	}
	if existing != nil && existing.Status == entity.AutomationActive {
		return nil, apperr.StateConflict(existing.ID, existing.Status, "automation already active for invoice %s", invoiceID)
	}

	cust, err := e.customerRepo.GetByID(ctx, inv.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("load customer: %w", err)
	}
	stats, err := e.invoiceRepo.CustomerStats(ctx, inv.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("customer stats: %w", err)
	}

	strategy := selectStrategy(daysOverdue, cust, stats)
	auto := &entity.CollectionAutomation{
		ID:          e.newID(),
		InvoiceID:   inv.ID,
		CustomerID:  inv.CustomerID,
		Strategy:    strategy,
		Status:      entity.AutomationActive,
		DaysOverdue: daysOverdue,
		Schedule:    buildSchedule(strategy, now, e.maxAttempts),
		Metrics: entity.PerformanceMetrics{
			TotalOutstanding: inv.Balance,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return e.automationRepo.Create(txCtx, auto)
	}); err != nil {
		return nil, fmt.Errorf("create automation: %w", err)
	}

	e.logger.Info("Collection automation started",
		zap.String("automation_id", auto.ID),
		zap.String("invoice_id", inv.ID),
		zap.String("strategy", strategy),
		zap.Int("days_overdue", daysOverdue),
		zap.Int("attempts_planned", len(auto.Schedule)))
	return auto, nil
}

// SweepOverdue starts automations for every overdue invoice that has none
// yet. Returns how many were started. Invoked by the scheduler.
func (e *Engine) SweepOverdue(ctx context.Context) (int, error) {
	overdue, err := e.invoiceRepo.ListOverdue(ctx, e.now())
	if err != nil {
		return 0, fmt.Errorf("list overdue invoices: %w", err)
	}

	started := 0
	for _, inv := range overdue {
		_, err := e.StartAutomation(ctx, inv.ID)
		if err != nil {
			if apperr.IsStateConflict(err) || apperr.IsValidation(err) {
				continue // already covered or nothing to collect
			}
			e.logger.Error("Sweep failed to start automation",
				zap.String("invoice_id", inv.ID),
				zap.Error(err))
			continue
		}
		started++
	}

	if started > 0 {
		e.logger.Info("Overdue sweep complete", zap.Int("started", started), zap.Int("candidates", len(overdue)))
	}
	return started, nil
}

// RecordAttempt marks the next scheduled attempt as executed with the given
// outcome and updates the automation's metrics. A paid outcome completes the
// automation; exhausting the schedule without payment escalates it.
func (e *Engine) RecordAttempt(ctx context.Context, automationID, outcome string, recovered float64) (*entity.CollectionAutomation, error) {
	switch outcome {
	case OutcomePaid, OutcomePromised, OutcomeNoResponse, OutcomeDisputed:
	default:
		return nil, apperr.Validation("unknown attempt outcome %q", outcome)
	}

	auto, err := e.automationRepo.GetByID(ctx, automationID)
	if err != nil {
		return nil, fmt.Errorf("load automation: %w", err)
	}
	if auto == nil {
		return nil, apperr.NotFound("automation", automationID)
	}
	if auto.Status != entity.AutomationActive {
		return nil, apperr.StateConflict(auto.ID, auto.Status, "automation is not active")
	}

	idx := nextPendingAttempt(auto)
	if idx < 0 {
		return nil, apperr.StateConflict(auto.ID, auto.Status, "no attempts left on the schedule")
	}

	now := e.now()
	auto.Schedule[idx].SentAt = &now
	auto.Schedule[idx].Outcome = outcome

	m := &auto.Metrics
	m.AttemptsMade++
	m.LastAttemptResult = outcome
	m.ResponseRate = float64(countResponses(auto)) / float64(m.AttemptsMade)

	switch {
	case outcome == OutcomePaid:
		if recovered <= 0 {
			recovered = m.TotalOutstanding
		}
		m.TotalRecovered += recovered
		m.TotalOutstanding -= recovered
		if m.TotalOutstanding < 0 {
			m.TotalOutstanding = 0
		}
		if m.TotalRecovered+m.TotalOutstanding > 0 {
			m.RecoveryRate = m.TotalRecovered / (m.TotalRecovered + m.TotalOutstanding)
		}
		m.AvgDaysToPayment = float64(auto.DaysOverdue) + now.Sub(auto.CreatedAt).Hours()/24
		auto.Status = entity.AutomationCompleted
	case nextPendingAttempt(auto) < 0:
		// Schedule exhausted without payment; hand off to a human
		auto.Status = entity.AutomationEscalated
	}

	auto.UpdatedAt = now

	if err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return e.automationRepo.Update(txCtx, auto)
	}); err != nil {
		return nil, fmt.Errorf("update automation: %w", err)
	}

	e.logger.Info("Collection attempt recorded",
		zap.String("automation_id", auto.ID),
		zap.String("outcome", outcome),
		zap.String("status", auto.Status))
	return auto, nil
}

// Pause suspends an active automation.
func (e *Engine) Pause(ctx context.Context, automationID string) (*entity.CollectionAutomation, error) {
	return e.setStatus(ctx, automationID, entity.AutomationActive, entity.AutomationPaused)
}

// Resume reactivates a paused automation.
func (e *Engine) Resume(ctx context.Context, automationID string) (*entity.CollectionAutomation, error) {
	return e.setStatus(ctx, automationID, entity.AutomationPaused, entity.AutomationActive)
}

func (e *Engine) setStatus(ctx context.Context, automationID, from, to string) (*entity.CollectionAutomation, error) {
	auto, err := e.automationRepo.GetByID(ctx, automationID)
	if err != nil {
		return nil, fmt.Errorf("load automation: %w", err)
	}
	if auto == nil {
		return nil, apperr.NotFound("automation", automationID)
	}
	if auto.Status != from {
		return nil, apperr.StateConflict(auto.ID, auto.Status, "expected status %s", from)
	}

	auto.Status = to
	auto.UpdatedAt = e.now()

	if err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return e.automationRepo.Update(txCtx, auto)
	}); err != nil {
		return nil, fmt.Errorf("update automation: %w", err)
	}
	return auto, nil
}

// GetAutomation returns one automation by ID.
func (e *Engine) GetAutomation(ctx context.Context, automationID string) (*entity.CollectionAutomation, error) {
	auto, err := e.automationRepo.GetByID(ctx, automationID)
	if err != nil {
		return nil, fmt.Errorf("load automation: %w", err)
	}
	if auto == nil {
		return nil, apperr.NotFound("automation", automationID)
	}
	return auto, nil
}

// ListAutomations returns automations with pagination.
func (e *Engine) ListAutomations(ctx context.Context, limit, offset int) ([]*entity.CollectionAutomation, error) {
	return e.automationRepo.List(ctx, limit, offset)
}

// MonitorAutomations aggregates metrics across all active automations and
// surfaces alerts plus improvement recommendations.
func (e *Engine) MonitorAutomations(ctx context.Context) (*entity.MonitoringReport, error) {
	active, err := e.automationRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active automations: %w", err)
	}

	report := &entity.MonitoringReport{
		ActiveAutomations: len(active),
		GeneratedAt:       e.now(),
	}

	var responded int
	for _, auto := range active {
		m := auto.Metrics
		report.Fleet.AttemptsMade += m.AttemptsMade
		report.Fleet.TotalRecovered += m.TotalRecovered
		report.Fleet.TotalOutstanding += m.TotalOutstanding
		responded += countResponses(auto)
	}

	if total := report.Fleet.TotalRecovered + report.Fleet.TotalOutstanding; total > 0 {
		report.Fleet.RecoveryRate = report.Fleet.TotalRecovered / total
	}
	if report.Fleet.AttemptsMade > 0 {
		report.Fleet.ResponseRate = float64(responded) / float64(report.Fleet.AttemptsMade)
	}

	report.Alerts = fleetAlerts(active, report.Fleet)
	report.Recommendations = fleetRecommendations(active, report.Fleet)

	e.logger.Info("Collections monitoring report generated",
		zap.Int("active", report.ActiveAutomations),
		zap.Float64("recovery_rate", report.Fleet.RecoveryRate),
		zap.Int("alerts", len(report.Alerts)))
	return report, nil
}

// selectStrategy maps days overdue to a baseline strategy, then softens it
// for customers with a solid payment record and hardens it for inactive ones.
func selectStrategy(daysOverdue int, cust *entity.Customer, stats *port.CustomerInvoiceStats) string {
	var base string
	switch {
	case daysOverdue <= 15:
		base = entity.StrategyGentle
	case daysOverdue <= 45:
		base = entity.StrategyStandard
	case daysOverdue <= 90:
		base = entity.StrategyAggressive
	default:
		base = entity.StrategyLegal
	}

	goodHistory := stats != nil && stats.InvoiceCount >= 5
	inactive := cust != nil && !cust.IsActive

	switch {
	case inactive:
		return harden(base)
	case goodHistory:
		return soften(base)
	default:
		return base
	}
}

var strategyOrder = []string{entity.StrategyGentle, entity.StrategyStandard, entity.StrategyAggressive, entity.StrategyLegal}

func soften(s string) string {
	for i, v := range strategyOrder {
		if v == s && i > 0 {
			return strategyOrder[i-1]
		}
	}
	return s
}

func harden(s string) string {
	for i, v := range strategyOrder {
		if v == s && i < len(strategyOrder)-1 {
			return strategyOrder[i+1]
		}
	}
	return s
}

// buildSchedule lays out the outreach touches for a strategy, up to
// maxAttempts, cycling the strategy's channel rotation.
func buildSchedule(strategy string, from time.Time, maxAttempts int) []entity.CollectionAttempt {
	var channels []string
	var spacingDays int

	switch strategy {
	case entity.StrategyGentle:
		channels = []string{entity.ChannelEmail}
		spacingDays = 7
	case entity.StrategyStandard:
		channels = []string{entity.ChannelEmail, entity.ChannelEmail, entity.ChannelPhone}
		spacingDays = 5
	case entity.StrategyAggressive:
		channels = []string{entity.ChannelEmail, entity.ChannelPhone, entity.ChannelSMS, entity.ChannelPhone}
		spacingDays = 3
	default: // legal
		channels = []string{entity.ChannelEmail, entity.ChannelPhone, entity.ChannelPortal}
		spacingDays = 2
	}

	schedule := make([]entity.CollectionAttempt, 0, maxAttempts)
	for i := 0; i < maxAttempts; i++ {
		schedule = append(schedule, entity.CollectionAttempt{
			Sequence:    i + 1,
			Channel:     channels[i%len(channels)],
			ScheduledAt: from.AddDate(0, 0, spacingDays*(i+1)),
		})
	}
	return schedule
}

func nextPendingAttempt(auto *entity.CollectionAutomation) int {
	for i := range auto.Schedule {
		if auto.Schedule[i].SentAt == nil {
			return i
		}
	}
	return -1
}

func countResponses(auto *entity.CollectionAutomation) int {
	n := 0
	for _, att := range auto.Schedule {
		if att.SentAt != nil && att.Outcome != "" && att.Outcome != OutcomeNoResponse {
			n++
		}
	}
	return n
}

func fleetAlerts(active []*entity.CollectionAutomation, fleet entity.PerformanceMetrics) []entity.PerformanceAlert {
	var alerts []entity.PerformanceAlert

	if fleet.AttemptsMade >= 5 && fleet.RecoveryRate < 0.3 {
		alerts = append(alerts, entity.PerformanceAlert{
			Code:     "recovery_rate_low",
			Severity: entity.SeverityHigh,
			Message:  fmt.Sprintf("fleet recovery rate %.0f%% is below the 30%% floor", fleet.RecoveryRate*100),
		})
	}
	if fleet.AttemptsMade >= 5 && fleet.ResponseRate < 0.2 {
		alerts = append(alerts, entity.PerformanceAlert{
			Code:     "response_rate_low",
			Severity: entity.SeverityMedium,
			Message:  fmt.Sprintf("only %.0f%% of attempts get a customer response", fleet.ResponseRate*100),
		})
	}

	legal := 0
	for _, auto := range active {
		if auto.Strategy == entity.StrategyLegal {
			legal++
		}
	}
	if len(active) > 0 && legal*2 > len(active) {
		alerts = append(alerts, entity.PerformanceAlert{
			Code:     "legal_strategy_dominant",
			Severity: entity.SeverityHigh,
			Message:  fmt.Sprintf("%d of %d active automations are on the legal strategy", legal, len(active)),
		})
	}
	return alerts
}

func fleetRecommendations(active []*entity.CollectionAutomation, fleet entity.PerformanceMetrics) []string {
	var recs []string

	if fleet.AttemptsMade >= 5 && fleet.ResponseRate < 0.2 {
		recs = append(recs, "shift early attempts from email to phone; email response is weak")
	}
	if fleet.AttemptsMade >= 5 && fleet.RecoveryRate < 0.3 {
		recs = append(recs, "start automations earlier in the overdue window to improve recovery")
	}

	stale := 0
	for _, auto := range active {
		if auto.Metrics.AttemptsMade == 0 {
			stale++
		}
	}
	if stale > 0 {
		recs = append(recs, fmt.Sprintf("%d automation(s) have made no attempts yet; check the outreach worker", stale))
	}

	if len(recs) == 0 {
		recs = append(recs, "collections performance is within expected bounds")
	}
	return recs
}
