package collections

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/apflow/invoice-approval/internal/application/port"
	"github.com/apflow/invoice-approval/internal/domain/apperr"
	"github.com/apflow/invoice-approval/internal/domain/entity"
)

type mockInvoiceRepo struct {
	invoices map[string]*entity.Invoice
	overdue  []*entity.Invoice
	stats    *port.CustomerInvoiceStats
}

func (m *mockInvoiceRepo) Create(ctx context.Context, inv *entity.Invoice) error { return nil }

func (m *mockInvoiceRepo) GetByID(ctx context.Context, id string) (*entity.Invoice, error) {
	return m.invoices[id], nil
}

func (m *mockInvoiceRepo) UpdateStatus(ctx context.Context, id, status string) error { return nil }

func (m *mockInvoiceRepo) ListOverdue(ctx context.Context, asOf time.Time) ([]*entity.Invoice, error) {
	return m.overdue, nil
}

func (m *mockInvoiceRepo) CustomerStats(ctx context.Context, customerID string) (*port.CustomerInvoiceStats, error) {
	if m.stats != nil {
		return m.stats, nil
	}
	return &port.CustomerInvoiceStats{}, nil
}

func (m *mockInvoiceRepo) CountDuplicates(ctx context.Context, excludeID, invoiceNumber string, amount float64, since time.Time) (int, error) {
	return 0, nil
}

type mockCustomerRepo struct {
	customers map[string]*entity.Customer
}

func (m *mockCustomerRepo) Create(ctx context.Context, c *entity.Customer) error { return nil }

func (m *mockCustomerRepo) GetByID(ctx context.Context, id string) (*entity.Customer, error) {
	return m.customers[id], nil
}

type mockAutomationRepo struct {
	byID        map[string]*entity.CollectionAutomation
	byInvoiceID map[string]*entity.CollectionAutomation
	created     []*entity.CollectionAutomation
	updated     []*entity.CollectionAutomation
}

func newMockAutomationRepo() *mockAutomationRepo {
	return &mockAutomationRepo{
		byID:        map[string]*entity.CollectionAutomation{},
		byInvoiceID: map[string]*entity.CollectionAutomation{},
	}
}

func (m *mockAutomationRepo) Create(ctx context.Context, a *entity.CollectionAutomation) error {
	m.created = append(m.created, a)
	m.byID[a.ID] = a
	m.byInvoiceID[a.InvoiceID] = a
	return nil
}

func (m *mockAutomationRepo) GetByID(ctx context.Context, id string) (*entity.CollectionAutomation, error) {
	return m.byID[id], nil
}

func (m *mockAutomationRepo) GetByInvoiceID(ctx context.Context, invoiceID string) (*entity.CollectionAutomation, error) {
	return m.byInvoiceID[invoiceID], nil
}

func (m *mockAutomationRepo) Update(ctx context.Context, a *entity.CollectionAutomation) error {
	m.updated = append(m.updated, a)
	return nil
}

func (m *mockAutomationRepo) ListActive(ctx context.Context) ([]*entity.CollectionAutomation, error) {
	var out []*entity.CollectionAutomation
	for _, a := range m.created {
		if a.Status == entity.AutomationActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockAutomationRepo) List(ctx context.Context, limit, offset int) ([]*entity.CollectionAutomation, error) {
	return m.created, nil
}

type passthroughTx struct{}

func (passthroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var collectionsNow = time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)

func overdueInvoice(id string, daysOverdue int, balance float64) *entity.Invoice {
	return &entity.Invoice{
		ID:         id,
		CustomerID: "cust-1",
		Total:      balance,
		Balance:    balance,
		DueDate:    collectionsNow.AddDate(0, 0, -daysOverdue),
		Status:     entity.InvoiceStatusOverdue,
	}
}

type fixture struct {
	engine      *Engine
	invoices    *mockInvoiceRepo
	customers   *mockCustomerRepo
	automations *mockAutomationRepo
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		invoices:    &mockInvoiceRepo{invoices: map[string]*entity.Invoice{}},
		customers:   &mockCustomerRepo{customers: map[string]*entity.Customer{}},
		automations: newMockAutomationRepo(),
	}
	f.customers.customers["cust-1"] = &entity.Customer{ID: "cust-1", Name: "Acme", IsActive: true}

	seq := 0
	base := []Option{
		WithClock(func() time.Time { return collectionsNow }),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("auto-%d", seq)
		}),
	}
	f.engine = New(f.invoices, f.customers, f.automations, passthroughTx{}, zap.NewNop(),
		append(base, opts...)...)
	return f
}

func TestStartAutomationBuildsSchedule(t *testing.T) {
	f := newFixture(t)
	f.invoices.invoices["inv-1"] = overdueInvoice("inv-1", 30, 1200)

	auto, err := f.engine.StartAutomation(context.Background(), "inv-1")
	require.NoError(t, err)

	assert.Equal(t, entity.StrategyStandard, auto.Strategy)
	assert.Equal(t, entity.AutomationActive, auto.Status)
	assert.Equal(t, 30, auto.DaysOverdue)
	assert.Equal(t, 1200.0, auto.Metrics.TotalOutstanding)

	require.Len(t, auto.Schedule, defaultMaxAttempts)
	assert.Equal(t, entity.ChannelEmail, auto.Schedule[0].Channel)
	assert.Equal(t, entity.ChannelPhone, auto.Schedule[2].Channel)
	assert.Equal(t, collectionsNow.AddDate(0, 0, 5), auto.Schedule[0].ScheduledAt)
	for i, att := range auto.Schedule {
		assert.Equal(t, i+1, att.Sequence)
		assert.Nil(t, att.SentAt)
	}
}

func TestStartAutomationValidation(t *testing.T) {
	f := newFixture(t)
	f.invoices.invoices["inv-current"] = overdueInvoice("inv-current", -5, 500)
	f.invoices.invoices["inv-paid"] = overdueInvoice("inv-paid", 20, 0)

	_, err := f.engine.StartAutomation(context.Background(), "inv-404")
	assert.True(t, apperr.IsNotFound(err))

	_, err = f.engine.StartAutomation(context.Background(), "inv-current")
	assert.True(t, apperr.IsValidation(err))

	_, err = f.engine.StartAutomation(context.Background(), "inv-paid")
	assert.True(t, apperr.IsValidation(err))
}

func TestStartAutomationRejectsDuplicate(t *testing.T) {
	f := newFixture(t)
	f.invoices.invoices["inv-1"] = overdueInvoice("inv-1", 30, 1200)

	_, err := f.engine.StartAutomation(context.Background(), "inv-1")
	require.NoError(t, err)

	_, err = f.engine.StartAutomation(context.Background(), "inv-1")
	require.Error(t, err)
	assert.True(t, apperr.IsStateConflict(err))
}

func TestSelectStrategy(t *testing.T) {
	active := &entity.Customer{ID: "c", IsActive: true}
	inactive := &entity.Customer{ID: "c", IsActive: false}
	goodStats := &port.CustomerInvoiceStats{InvoiceCount: 12}

	tests := []struct {
		name  string
		days  int
		cust  *entity.Customer
		stats *port.CustomerInvoiceStats
		want  string
	}{
		{name: "fresh overdue", days: 10, cust: active, want: entity.StrategyGentle},
		{name: "mid overdue", days: 30, cust: active, want: entity.StrategyStandard},
		{name: "long overdue", days: 60, cust: active, want: entity.StrategyAggressive},
		{name: "very long overdue", days: 120, cust: active, want: entity.StrategyLegal},
		{name: "good history softens", days: 30, cust: active, stats: goodStats, want: entity.StrategyGentle},
		{name: "inactive customer hardens", days: 30, cust: inactive, want: entity.StrategyAggressive},
		{name: "gentle cannot soften further", days: 10, cust: active, stats: goodStats, want: entity.StrategyGentle},
		{name: "legal cannot harden further", days: 120, cust: inactive, want: entity.StrategyLegal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, selectStrategy(tt.days, tt.cust, tt.stats))
		})
	}
}

func TestSweepOverdueStartsMissingAutomations(t *testing.T) {
	f := newFixture(t)
	covered := overdueInvoice("inv-covered", 30, 900)
	fresh := overdueInvoice("inv-fresh", 20, 400)
	f.invoices.invoices[covered.ID] = covered
	f.invoices.invoices[fresh.ID] = fresh
	f.invoices.overdue = []*entity.Invoice{covered, fresh}

	_, err := f.engine.StartAutomation(context.Background(), covered.ID)
	require.NoError(t, err)

	started, err := f.engine.SweepOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, started)
	assert.Len(t, f.automations.created, 2)
}

func TestRecordAttemptPaidCompletesAutomation(t *testing.T) {
	f := newFixture(t)
	f.invoices.invoices["inv-1"] = overdueInvoice("inv-1", 30, 1000)
	auto, err := f.engine.StartAutomation(context.Background(), "inv-1")
	require.NoError(t, err)

	got, err := f.engine.RecordAttempt(context.Background(), auto.ID, OutcomePaid, 1000)
	require.NoError(t, err)

	assert.Equal(t, entity.AutomationCompleted, got.Status)
	assert.Equal(t, 1, got.Metrics.AttemptsMade)
	assert.Equal(t, 1000.0, got.Metrics.TotalRecovered)
	assert.Equal(t, 0.0, got.Metrics.TotalOutstanding)
	assert.Equal(t, 1.0, got.Metrics.RecoveryRate)
	require.NotNil(t, got.Schedule[0].SentAt)
	assert.Equal(t, OutcomePaid, got.Schedule[0].Outcome)
}

func TestRecordAttemptExhaustionEscalates(t *testing.T) {
	f := newFixture(t, WithMaxAttempts(2))
	f.invoices.invoices["inv-1"] = overdueInvoice("inv-1", 30, 1000)
	auto, err := f.engine.StartAutomation(context.Background(), "inv-1")
	require.NoError(t, err)
	require.Len(t, auto.Schedule, 2)

	got, err := f.engine.RecordAttempt(context.Background(), auto.ID, OutcomeNoResponse, 0)
	require.NoError(t, err)
	assert.Equal(t, entity.AutomationActive, got.Status)

	got, err = f.engine.RecordAttempt(context.Background(), auto.ID, OutcomeNoResponse, 0)
	require.NoError(t, err)
	assert.Equal(t, entity.AutomationEscalated, got.Status)
	assert.Equal(t, 0.0, got.Metrics.ResponseRate)

	_, err = f.engine.RecordAttempt(context.Background(), auto.ID, OutcomeNoResponse, 0)
	require.Error(t, err)
	assert.True(t, apperr.IsStateConflict(err))
}

func TestRecordAttemptRejectsUnknownOutcome(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.RecordAttempt(context.Background(), "auto-1", "ghosted", 0)
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
}

func TestPauseResume(t *testing.T) {
	f := newFixture(t)
	f.invoices.invoices["inv-1"] = overdueInvoice("inv-1", 30, 1000)
	auto, err := f.engine.StartAutomation(context.Background(), "inv-1")
	require.NoError(t, err)

	got, err := f.engine.Pause(context.Background(), auto.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.AutomationPaused, got.Status)

	// Attempts are blocked while paused
	_, err = f.engine.RecordAttempt(context.Background(), auto.ID, OutcomePromised, 0)
	require.Error(t, err)
	assert.True(t, apperr.IsStateConflict(err))

	got, err = f.engine.Resume(context.Background(), auto.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.AutomationActive, got.Status)

	_, err = f.engine.Resume(context.Background(), auto.ID)
	require.Error(t, err)
	assert.True(t, apperr.IsStateConflict(err))
}

func TestMonitorAutomationsAggregatesFleet(t *testing.T) {
	f := newFixture(t)
	for i, days := range []int{20, 30, 120} {
		id := fmt.Sprintf("inv-%d", i)
		f.invoices.invoices[id] = overdueInvoice(id, days, 1000)
		_, err := f.engine.StartAutomation(context.Background(), id)
		require.NoError(t, err)
	}

	report, err := f.engine.MonitorAutomations(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.ActiveAutomations)
	assert.Equal(t, 3000.0, report.Fleet.TotalOutstanding)
	assert.Equal(t, 0.0, report.Fleet.RecoveryRate)
	assert.Equal(t, collectionsNow, report.GeneratedAt)
	// Nothing attempted yet: the stale-automation recommendation fires
	require.NotEmpty(t, report.Recommendations)
	assert.Contains(t, report.Recommendations[0], "no attempts yet")
}

func TestMonitorAutomationsAlerts(t *testing.T) {
	f := newFixture(t)

	// Six automations all on the legal strategy with poor results
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("inv-%d", i)
		f.invoices.invoices[id] = overdueInvoice(id, 120, 1000)
		auto, err := f.engine.StartAutomation(context.Background(), id)
		require.NoError(t, err)
		_, err = f.engine.RecordAttempt(context.Background(), auto.ID, OutcomeNoResponse, 0)
		require.NoError(t, err)
	}

	report, err := f.engine.MonitorAutomations(context.Background())
	require.NoError(t, err)

	codes := make([]string, 0, len(report.Alerts))
	for _, a := range report.Alerts {
		codes = append(codes, a.Code)
	}
	assert.Contains(t, codes, "recovery_rate_low")
	assert.Contains(t, codes, "response_rate_low")
	assert.Contains(t, codes, "legal_strategy_dominant")
}

func TestWriteReportProducesWorkbook(t *testing.T) {
	f := newFixture(t)
	f.invoices.invoices["inv-1"] = overdueInvoice("inv-1", 30, 1000)
	_, err := f.engine.StartAutomation(context.Background(), "inv-1")
	require.NoError(t, err)

	report, err := f.engine.MonitorAutomations(context.Background())
	require.NoError(t, err)
	automations, err := f.engine.ListAutomations(context.Background(), 50, 0)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, report, automations))
	// xlsx files are zip archives
	assert.Equal(t, "PK", buf.String()[:2])
}
