package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/apflow/invoice-approval/internal/application/port"
	"github.com/apflow/invoice-approval/internal/domain/entity"
)

type mockHistory struct {
	stats      *port.CustomerInvoiceStats
	statsErr   error
	duplicates int
	dupErr     error
	gotSince   time.Time
}

func (m *mockHistory) CustomerStats(ctx context.Context, customerID string) (*port.CustomerInvoiceStats, error) {
	return m.stats, m.statsErr
}

func (m *mockHistory) CountDuplicates(ctx context.Context, excludeID, invoiceNumber string, amount float64, since time.Time) (int, error) {
	m.gotSince = since
	return m.duplicates, m.dupErr
}

// Monday 10:00, inside business days and hours.
var businessHours = time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)

func newAnalyzer(history *mockHistory, at time.Time) *FraudAnalyzer {
	return NewFraudAnalyzer(history, zap.NewNop(), WithClock(func() time.Time { return at }))
}

func establishedCustomer() *entity.Customer {
	return &entity.Customer{
		ID:        "cust-1",
		Name:      "Acme",
		IsActive:  true,
		CreatedAt: businessHours.AddDate(-2, 0, 0),
	}
}

func amountRule(weight, threshold float64) entity.FraudDetectionRule {
	return entity.FraudDetectionRule{
		ID: "r-amount", Name: "Amount deviation", Type: entity.FraudRuleAmountDeviation,
		RiskScoreWeight: weight, Threshold: threshold, Enabled: true,
	}
}

func TestAnalyzeCleanInvoiceScoresLow(t *testing.T) {
	history := &mockHistory{stats: &port.CustomerInvoiceStats{InvoiceCount: 20, AverageTotal: 1000}}
	a := newAnalyzer(history, businessHours)

	inv := &entity.Invoice{ID: "inv-1", InvoiceNumber: "INV-1", Total: 1100}
	rules := []entity.FraudDetectionRule{
		amountRule(40, 2.0),
		{ID: "r-dup", Type: entity.FraudRuleDuplicateInvoice, RiskScoreWeight: 30, Enabled: true},
		{ID: "r-new", Type: entity.FraudRuleNewVendor, RiskScoreWeight: 20, Enabled: true},
		{ID: "r-time", Type: entity.FraudRuleTimeAnomaly, RiskScoreWeight: 10, Enabled: true},
	}

	got := a.Analyze(context.Background(), inv, establishedCustomer(), rules)

	assert.Equal(t, 0.0, got.OverallScore)
	assert.Equal(t, RiskLevelLow, got.RiskLevel)
	assert.Len(t, got.Factors, 4)
	for _, f := range got.Factors {
		assert.False(t, f.Skipped, f.RuleID)
	}
	assert.Equal(t, 20, got.Historical.SimilarInvoicesAnalyzed)
}

func TestAnalyzeDisabledRulesAreIgnored(t *testing.T) {
	a := newAnalyzer(&mockHistory{}, businessHours)

	got := a.Analyze(context.Background(), &entity.Invoice{ID: "inv-1"}, nil, []entity.FraudDetectionRule{
		{ID: "r-off", Type: entity.FraudRuleTimeAnomaly, RiskScoreWeight: 50, Enabled: false},
	})

	assert.Empty(t, got.Factors)
	assert.Equal(t, 0.0, got.OverallScore)
}

func TestAnalyzeDegradesMalformedRuleToSkipped(t *testing.T) {
	history := &mockHistory{stats: &port.CustomerInvoiceStats{InvoiceCount: 5, AverageTotal: 100}}
	a := newAnalyzer(history, businessHours)

	inv := &entity.Invoice{ID: "inv-1", Total: 120}
	got := a.Analyze(context.Background(), inv, establishedCustomer(), []entity.FraudDetectionRule{
		{ID: "r-bad", Type: "nonexistent_type", RiskScoreWeight: 50, Enabled: true},
		{ID: "r-neg", Type: entity.FraudRuleTimeAnomaly, RiskScoreWeight: -10, Enabled: true},
		amountRule(40, 2.0),
	})

	require.Len(t, got.Factors, 3)
	assert.True(t, got.Factors[0].Skipped)
	assert.True(t, got.Factors[1].Skipped)
	assert.False(t, got.Factors[2].Skipped)
	// Skipped rules contribute nothing
	assert.Equal(t, 0.0, got.OverallScore)
}

func TestAnalyzeEvaluatorErrorSkipsRule(t *testing.T) {
	history := &mockHistory{statsErr: errors.New("db down")}
	a := newAnalyzer(history, businessHours)

	got := a.Analyze(context.Background(), &entity.Invoice{ID: "inv-1", Total: 500}, establishedCustomer(),
		[]entity.FraudDetectionRule{amountRule(40, 2.0)})

	require.Len(t, got.Factors, 1)
	assert.True(t, got.Factors[0].Skipped)
	require.NotEmpty(t, got.Factors[0].Evidence)
	assert.Contains(t, got.Factors[0].Evidence[0], "db down")
}

func TestAmountDeviation(t *testing.T) {
	tests := []struct {
		name      string
		stats     *port.CustomerInvoiceStats
		total     float64
		wantValue float64
	}{
		{name: "no prior invoices", stats: &port.CustomerInvoiceStats{}, total: 500, wantValue: 0.3},
		{name: "within threshold", stats: &port.CustomerInvoiceStats{InvoiceCount: 10, AverageTotal: 1000}, total: 1500, wantValue: 0},
		{name: "double the threshold saturates", stats: &port.CustomerInvoiceStats{InvoiceCount: 10, AverageTotal: 1000}, total: 4000, wantValue: 1},
		{name: "between threshold and saturation", stats: &port.CustomerInvoiceStats{InvoiceCount: 10, AverageTotal: 1000}, total: 3000, wantValue: 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := &amountDeviationEvaluator{history: &mockHistory{stats: tt.stats}}
			sig, err := ev.Evaluate(context.Background(), &entity.Invoice{ID: "inv-1", Total: tt.total},
				establishedCustomer(), amountRule(40, 2.0))
			require.NoError(t, err)
			assert.InDelta(t, tt.wantValue, sig.Value, 1e-9)
		})
	}
}

func TestAmountDeviationNoCustomer(t *testing.T) {
	ev := &amountDeviationEvaluator{history: &mockHistory{}}
	sig, err := ev.Evaluate(context.Background(), &entity.Invoice{Total: 500}, nil, amountRule(40, 2.0))
	require.NoError(t, err)
	assert.Equal(t, 0.3, sig.Value)
	assert.NotEmpty(t, sig.Mitigation)
}

func TestDuplicateInvoice(t *testing.T) {
	rule := entity.FraudDetectionRule{ID: "r-dup", Type: entity.FraudRuleDuplicateInvoice, RiskScoreWeight: 30, WindowDays: 60, Enabled: true}
	inv := &entity.Invoice{ID: "inv-1", InvoiceNumber: "INV-9", Total: 250}

	ev := &duplicateInvoiceEvaluator{history: &mockHistory{duplicates: 0}, now: func() time.Time { return businessHours }}
	sig, err := ev.Evaluate(context.Background(), inv, nil, rule)
	require.NoError(t, err)
	assert.Equal(t, 0.0, sig.Value)

	ev = &duplicateInvoiceEvaluator{history: &mockHistory{duplicates: 2}, now: func() time.Time { return businessHours }}
	sig, err = ev.Evaluate(context.Background(), inv, nil, rule)
	require.NoError(t, err)
	assert.Equal(t, 1.0, sig.Value)
	assert.Equal(t, 0.95, sig.Confidence)
}

func TestDuplicateInvoiceWindowUsesClock(t *testing.T) {
	rule := entity.FraudDetectionRule{ID: "r-dup", Type: entity.FraudRuleDuplicateInvoice, RiskScoreWeight: 30, WindowDays: 60, Enabled: true}
	inv := &entity.Invoice{ID: "inv-1", InvoiceNumber: "INV-9", Total: 250}
	history := &mockHistory{}

	ev := &duplicateInvoiceEvaluator{history: history, now: func() time.Time { return businessHours }}
	_, err := ev.Evaluate(context.Background(), inv, nil, rule)
	require.NoError(t, err)
	assert.Equal(t, businessHours.AddDate(0, 0, -60), history.gotSince)
}

func TestNewVendor(t *testing.T) {
	rule := entity.FraudDetectionRule{ID: "r-new", Type: entity.FraudRuleNewVendor, RiskScoreWeight: 20, Enabled: true}
	now := func() time.Time { return businessHours }

	t.Run("recently registered customer", func(t *testing.T) {
		cust := &entity.Customer{ID: "cust-2", CreatedAt: businessHours.AddDate(0, 0, -5)}
		ev := &newVendorEvaluator{history: &mockHistory{}, now: now}
		sig, err := ev.Evaluate(context.Background(), &entity.Invoice{}, cust, rule)
		require.NoError(t, err)
		assert.Equal(t, 0.7, sig.Value)
	})

	t.Run("established customer without invoices", func(t *testing.T) {
		ev := &newVendorEvaluator{history: &mockHistory{stats: &port.CustomerInvoiceStats{}}, now: now}
		sig, err := ev.Evaluate(context.Background(), &entity.Invoice{}, establishedCustomer(), rule)
		require.NoError(t, err)
		assert.Equal(t, 0.4, sig.Value)
	})

	t.Run("established customer with invoices", func(t *testing.T) {
		ev := &newVendorEvaluator{history: &mockHistory{stats: &port.CustomerInvoiceStats{InvoiceCount: 8}}, now: now}
		sig, err := ev.Evaluate(context.Background(), &entity.Invoice{}, establishedCustomer(), rule)
		require.NoError(t, err)
		assert.Equal(t, 0.0, sig.Value)
	})
}

func TestTimeAnomaly(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want float64
	}{
		{name: "business hours", at: businessHours, want: 0},
		{name: "weekday off hours", at: time.Date(2024, 6, 3, 23, 0, 0, 0, time.UTC), want: 0.4},
		{name: "weekend business hours", at: time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC), want: 0.6},
		{name: "weekend off hours", at: time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC), want: 0.8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := &timeAnomalyEvaluator{now: func() time.Time { return tt.at }}
			sig, err := ev.Evaluate(context.Background(), nil, nil, entity.FraudDetectionRule{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, sig.Value)
		})
	}
}

func TestOverallScoreClampedAndLeveled(t *testing.T) {
	// Weekend off-hours plus duplicates with heavy weights pushes past 100
	at := time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC)
	history := &mockHistory{duplicates: 3}
	a := newAnalyzer(history, at)

	got := a.Analyze(context.Background(), &entity.Invoice{ID: "inv-1", Total: 900}, nil,
		[]entity.FraudDetectionRule{
			{ID: "r-dup", Type: entity.FraudRuleDuplicateInvoice, RiskScoreWeight: 80, Enabled: true},
			{ID: "r-time", Type: entity.FraudRuleTimeAnomaly, RiskScoreWeight: 80, Enabled: true},
		})

	assert.Equal(t, 100.0, got.OverallScore)
	assert.Equal(t, RiskLevelCritical, got.RiskLevel)
}

func TestRegisterReplacesEvaluator(t *testing.T) {
	a := newAnalyzer(&mockHistory{}, businessHours)
	a.Register(entity.FraudRuleTimeAnomaly, evaluatorFunc(func(ctx context.Context, inv *entity.Invoice, cust *entity.Customer, rule entity.FraudDetectionRule) (Signal, error) {
		return Signal{Value: 0.5, Confidence: 1}, nil
	}))

	got := a.Analyze(context.Background(), &entity.Invoice{ID: "inv-1"}, nil, []entity.FraudDetectionRule{
		{ID: "r-time", Type: entity.FraudRuleTimeAnomaly, RiskScoreWeight: 50, Enabled: true},
	})
	assert.Equal(t, 25.0, got.OverallScore)
}

type evaluatorFunc func(ctx context.Context, inv *entity.Invoice, cust *entity.Customer, rule entity.FraudDetectionRule) (Signal, error)

func (f evaluatorFunc) Evaluate(ctx context.Context, inv *entity.Invoice, cust *entity.Customer, rule entity.FraudDetectionRule) (Signal, error) {
	return f(ctx, inv, cust, rule)
}
