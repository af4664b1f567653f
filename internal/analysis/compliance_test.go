package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/apflow/invoice-approval/internal/domain/entity"
)

func validInvoice() *entity.Invoice {
	issue := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	return &entity.Invoice{
		ID:            "inv-1",
		InvoiceNumber: "INV-2024-00317",
		CustomerID:    "cust-1",
		LineItems: []entity.LineItem{
			{Description: "consulting", Quantity: 10, UnitPrice: 100, Amount: 1000},
		},
		Subtotal:  1000,
		TaxRate:   0.08,
		TaxAmount: 80,
		Total:     1080,
		Balance:   1080,
		IssueDate: issue,
		DueDate:   issue.AddDate(0, 0, 30),
		Status:    entity.InvoiceStatusSent,
	}
}

func taxCheck(severity string, autoFix bool) entity.ComplianceCheck {
	return entity.ComplianceCheck{
		ID: "chk-tax", Name: "Tax consistency", Category: entity.CheckCategoryTax,
		Regulation: "GAAP", Severity: severity, AutoFixAvailable: autoFix,
		Rules: []entity.ValidationRule{
			{Type: entity.RuleCalculationConsistency, Field: "tax_amount"},
			{Type: entity.RuleCalculationConsistency, Field: "total"},
		},
	}
}

func TestCheckAllPassing(t *testing.T) {
	c := NewComplianceChecker(zap.NewNop())

	checks := []entity.ComplianceCheck{
		taxCheck(entity.SeverityHigh, false),
		{
			ID: "chk-fields", Name: "Required fields", Category: entity.CheckCategoryInternalPolicy,
			Severity: entity.SeverityMedium,
			Rules: []entity.ValidationRule{
				{Type: entity.RuleRequiredField, Field: "invoice_number"},
				{Type: entity.RuleRequiredField, Field: "customer_id"},
				{Type: entity.RuleRequiredField, Field: "line_items"},
			},
		},
	}

	got := c.Check(context.Background(), validInvoice(), checks)

	assert.Equal(t, entity.ComplianceCompliant, got.Overall)
	require.Len(t, got.Results, 2)
	for _, r := range got.Results {
		assert.Equal(t, entity.CheckPassed, r.Outcome, r.CheckID)
	}
}

func TestCheckRuleTypes(t *testing.T) {
	c := NewComplianceChecker(zap.NewNop())

	tests := []struct {
		name    string
		rule    entity.ValidationRule
		mutate  func(*entity.Invoice)
		outcome string
	}{
		{
			name:    "format pass",
			rule:    entity.ValidationRule{Type: entity.RuleFormat, Field: "invoice_number", Pattern: `^INV-\d{4}-\d{5}$`},
			outcome: entity.CheckPassed,
		},
		{
			name:    "format fail",
			rule:    entity.ValidationRule{Type: entity.RuleFormat, Field: "invoice_number", Pattern: `^INV-\d{4}-\d{5}$`},
			mutate:  func(inv *entity.Invoice) { inv.InvoiceNumber = "2024/317" },
			outcome: entity.CheckFailed,
		},
		{
			name:    "numeric range fail",
			rule:    entity.ValidationRule{Type: entity.RuleNumericRange, Field: "tax_rate", Min: 0, Max: 0.25},
			mutate:  func(inv *entity.Invoice) { inv.TaxRate = 0.4 },
			outcome: entity.CheckFailed,
		},
		{
			name:    "lookup pass case insensitive",
			rule:    entity.ValidationRule{Type: entity.RuleLookup, Field: "status", Allowed: []string{"Sent", "Overdue"}},
			outcome: entity.CheckPassed,
		},
		{
			name:    "lookup fail",
			rule:    entity.ValidationRule{Type: entity.RuleLookup, Field: "status", Allowed: []string{"draft"}},
			outcome: entity.CheckFailed,
		},
		{
			name:    "custom predicate fail",
			rule:    entity.ValidationRule{Type: entity.RuleCustomPredicate, Predicate: "due_after_issue"},
			mutate:  func(inv *entity.Invoice) { inv.DueDate = inv.IssueDate.AddDate(0, 0, -1) },
			outcome: entity.CheckFailed,
		},
		{
			name:    "required field fail",
			rule:    entity.ValidationRule{Type: entity.RuleRequiredField, Field: "vendor_name"},
			outcome: entity.CheckFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := validInvoice()
			if tt.mutate != nil {
				tt.mutate(inv)
			}
			check := entity.ComplianceCheck{
				ID: "chk-1", Severity: entity.SeverityHigh, Rules: []entity.ValidationRule{tt.rule},
			}
			got := c.Check(context.Background(), inv, []entity.ComplianceCheck{check})
			require.Len(t, got.Results, 1)
			assert.Equal(t, tt.outcome, got.Results[0].Outcome)
		})
	}
}

func TestCheckMalformedRuleDegradesToSkipped(t *testing.T) {
	c := NewComplianceChecker(zap.NewNop())

	checks := []entity.ComplianceCheck{
		{
			ID: "chk-bad", Severity: entity.SeverityHigh,
			Rules: []entity.ValidationRule{
				{Type: entity.RuleFormat, Field: "invoice_number", Pattern: `[unclosed`},
			},
		},
		{
			ID: "chk-unknown-pred", Severity: entity.SeverityHigh,
			Rules: []entity.ValidationRule{
				{Type: entity.RuleCustomPredicate, Predicate: "no_such_predicate"},
			},
		},
	}

	got := c.Check(context.Background(), validInvoice(), checks)

	require.Len(t, got.Results, 2)
	for _, r := range got.Results {
		assert.Equal(t, entity.CheckSkipped, r.Outcome, r.CheckID)
		assert.NotEmpty(t, r.Violations, r.CheckID)
	}
	// Skipped is neutral, not a failure
	assert.Equal(t, entity.ComplianceCompliant, got.Overall)
}

func TestCheckAutoFixRecomputesTax(t *testing.T) {
	c := NewComplianceChecker(zap.NewNop())

	inv := validInvoice()
	inv.TaxAmount = 50 // wrong; should be 80
	inv.Total = 1050

	got := c.Check(context.Background(), inv, []entity.ComplianceCheck{taxCheck(entity.SeverityHigh, true)})

	require.Len(t, got.Results, 1)
	assert.Equal(t, entity.CheckPassed, got.Results[0].Outcome)
	assert.True(t, got.Results[0].AutoFixed)
	assert.Equal(t, 80.0, inv.TaxAmount)
	assert.Equal(t, 1080.0, inv.Total)
	assert.Equal(t, entity.ComplianceCompliant, got.Overall)
}

func TestCheckAutoFixNotAppliedOutsideTaxCategories(t *testing.T) {
	c := NewComplianceChecker(zap.NewNop())

	inv := validInvoice()
	inv.Total = 900

	check := taxCheck(entity.SeverityHigh, true)
	check.Category = entity.CheckCategoryRegulatory

	got := c.Check(context.Background(), inv, []entity.ComplianceCheck{check})

	require.Len(t, got.Results, 1)
	assert.Equal(t, entity.CheckFailed, got.Results[0].Outcome)
	assert.False(t, got.Results[0].AutoFixed)
	assert.Equal(t, 900.0, inv.Total)
}

func TestAggregateCompliance(t *testing.T) {
	c := NewComplianceChecker(zap.NewNop())
	inv := validInvoice()
	inv.VendorName = "" // keep a failing rule handy

	failing := func(id, severity string) entity.ComplianceCheck {
		return entity.ComplianceCheck{
			ID: id, Severity: severity,
			Rules: []entity.ValidationRule{{Type: entity.RuleRequiredField, Field: "vendor_name"}},
		}
	}
	passing := entity.ComplianceCheck{
		ID: "chk-ok", Severity: entity.SeverityHigh,
		Rules: []entity.ValidationRule{{Type: entity.RuleRequiredField, Field: "customer_id"}},
	}

	tests := []struct {
		name   string
		checks []entity.ComplianceCheck
		want   string
	}{
		{name: "all passed", checks: []entity.ComplianceCheck{passing}, want: entity.ComplianceCompliant},
		{name: "low severity failure is a warning", checks: []entity.ComplianceCheck{failing("chk-low", entity.SeverityLow)}, want: entity.ComplianceCompliant},
		{name: "non-critical failure", checks: []entity.ComplianceCheck{passing, failing("chk-high", entity.SeverityHigh)}, want: entity.CompliancePartial},
		{name: "critical failure", checks: []entity.ComplianceCheck{failing("chk-crit", entity.SeverityCritical)}, want: entity.ComplianceNonCompliant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Check(context.Background(), inv, tt.checks)
			assert.Equal(t, tt.want, got.Overall)
		})
	}
}

func TestRegulatorySummaries(t *testing.T) {
	c := NewComplianceChecker(zap.NewNop())
	inv := validInvoice()
	inv.VendorName = ""

	checks := []entity.ComplianceCheck{
		{
			ID: "chk-sox-1", Regulation: "SOX", Severity: entity.SeverityHigh,
			Rules: []entity.ValidationRule{{Type: entity.RuleRequiredField, Field: "customer_id"}},
		},
		{
			ID: "chk-sox-2", Regulation: "SOX", Severity: entity.SeverityHigh,
			Rules: []entity.ValidationRule{{Type: entity.RuleRequiredField, Field: "vendor_name"}},
		},
		taxCheck(entity.SeverityHigh, false),
	}

	got := c.Check(context.Background(), inv, checks)

	require.Len(t, got.Regulations, 2)
	sox := got.Regulations[0]
	assert.Equal(t, "SOX", sox.Regulation)
	assert.Equal(t, 2, sox.Checks)
	assert.Equal(t, 1, sox.Failures)
	assert.False(t, sox.Satisfied)

	gaap := got.Regulations[1]
	assert.Equal(t, "GAAP", gaap.Regulation)
	assert.True(t, gaap.Satisfied)
}

func TestRuleMessageOverridesViolation(t *testing.T) {
	c := NewComplianceChecker(zap.NewNop())
	inv := validInvoice()
	inv.VendorName = ""

	check := entity.ComplianceCheck{
		ID: "chk-msg", Severity: entity.SeverityHigh,
		Rules: []entity.ValidationRule{
			{Type: entity.RuleRequiredField, Field: "vendor_name", Message: "vendor name must be captured for 1099 reporting"},
		},
	}

	got := c.Check(context.Background(), inv, []entity.ComplianceCheck{check})
	require.Len(t, got.Results, 1)
	require.Len(t, got.Results[0].Violations, 1)
	assert.Equal(t, "vendor name must be captured for 1099 reporting", got.Results[0].Violations[0])
}
