package analysis

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/apflow/invoice-approval/internal/domain/apperr"
	"github.com/apflow/invoice-approval/internal/domain/entity"
)

// amountTolerance absorbs float rounding when comparing money values.
const amountTolerance = 0.01

// Predicate is a named custom validation over a whole invoice. Returns a
// violation message, or "" when the invoice passes.
type Predicate func(inv *entity.Invoice) string

// ComplianceChecker validates an invoice against configured rule bundles.
type ComplianceChecker struct {
	predicates map[string]Predicate
	now        func() time.Time
	logger     *zap.Logger
}

// NewComplianceChecker creates a checker with the built-in predicates.
func NewComplianceChecker(logger *zap.Logger) *ComplianceChecker {
	c := &ComplianceChecker{
		predicates: make(map[string]Predicate),
		now:        time.Now,
		logger:     logger,
	}

	c.RegisterPredicate("balance_within_total", func(inv *entity.Invoice) string {
		if inv.Balance > inv.Total+amountTolerance {
			return fmt.Sprintf("balance %.2f exceeds total %.2f", inv.Balance, inv.Total)
		}
		return ""
	})
	c.RegisterPredicate("positive_line_items", func(inv *entity.Invoice) string {
		for _, li := range inv.LineItems {
			if li.Amount < 0 || li.Quantity < 0 {
				return fmt.Sprintf("negative line item %q", li.Description)
			}
		}
		return ""
	})
	c.RegisterPredicate("due_after_issue", func(inv *entity.Invoice) string {
		if inv.DueDate.Before(inv.IssueDate) {
			return "due date precedes issue date"
		}
		return ""
	})

	return c
}

// RegisterPredicate installs or replaces a named custom predicate.
func (c *ComplianceChecker) RegisterPredicate(name string, p Predicate) {
	c.predicates[name] = p
}

// Check runs each configured compliance check against the invoice. A check
// whose rules cannot be evaluated degrades to skipped rather than aborting
// the run. Deterministic auto-fixes (tax recomputation) are applied in place
// when the check allows it.
func (c *ComplianceChecker) Check(_ context.Context, inv *entity.Invoice, checks []entity.ComplianceCheck) *entity.ComplianceStatus {
	status := &entity.ComplianceStatus{
		Results:   make([]entity.CheckResult, 0, len(checks)),
		CheckedAt: c.now(),
	}

	for _, check := range checks {
		result := c.runCheck(inv, check)
		status.Results = append(status.Results, result)
	}

	status.Overall = aggregateCompliance(status.Results)
	status.Regulations = regulatorySummaries(checks, status.Results)
	return status
}

func (c *ComplianceChecker) runCheck(inv *entity.Invoice, check entity.ComplianceCheck) entity.CheckResult {
	result := entity.CheckResult{
		CheckID:   check.ID,
		CheckName: check.Name,
		Category:  check.Category,
		Severity:  check.Severity,
	}

	violations, err := c.evaluateRules(inv, check.Rules)
	if err != nil {
		c.logger.Warn("Compliance check degraded to skipped",
			zap.String("check_id", check.ID),
			zap.Error(err))
		result.Outcome = entity.CheckSkipped
		result.Violations = []string{err.Error()}
		return result
	}

	if len(violations) > 0 && check.AutoFixAvailable && c.autoFix(inv, check) {
		refixed, err := c.evaluateRules(inv, check.Rules)
		if err == nil && len(refixed) == 0 {
			result.Outcome = entity.CheckPassed
			result.AutoFixed = true
			result.AutoFixNotes = "tax and total recomputed from rate"
			return result
		}
		violations = refixed
	}

	switch {
	case len(violations) == 0:
		result.Outcome = entity.CheckPassed
	case check.Severity == entity.SeverityLow:
		result.Outcome = entity.CheckWarning
		result.Violations = violations
	default:
		result.Outcome = entity.CheckFailed
		result.Violations = violations
	}
	return result
}

func (c *ComplianceChecker) evaluateRules(inv *entity.Invoice, rules []entity.ValidationRule) ([]string, error) {
	var violations []string

	for _, rule := range rules {
		violation, err := c.evaluateRule(inv, rule)
		if err != nil {
			return nil, err
		}
		if violation != "" {
			if rule.Message != "" {
				violation = rule.Message
			}
			violations = append(violations, violation)
		}
	}
	return violations, nil
}

func (c *ComplianceChecker) evaluateRule(inv *entity.Invoice, rule entity.ValidationRule) (string, error) {
	switch rule.Type {
	case entity.RuleRequiredField:
		if isZeroField(inv, rule.Field) {
			return fmt.Sprintf("required field %q is missing", rule.Field), nil
		}
		return "", nil

	case entity.RuleFormat:
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return "", apperr.RuleEvaluation(rule.Field, fmt.Errorf("bad pattern %q: %w", rule.Pattern, err))
		}
		v, ok := stringField(inv, rule.Field)
		if !ok {
			return "", apperr.RuleEvaluation(rule.Field, fmt.Errorf("field %q is not a string field", rule.Field))
		}
		if !re.MatchString(v) {
			return fmt.Sprintf("field %q value %q does not match %s", rule.Field, v, rule.Pattern), nil
		}
		return "", nil

	case entity.RuleNumericRange:
		v, ok := numericField(inv, rule.Field)
		if !ok {
			return "", apperr.RuleEvaluation(rule.Field, fmt.Errorf("field %q is not numeric", rule.Field))
		}
		if v < rule.Min || (rule.Max > 0 && v > rule.Max) {
			return fmt.Sprintf("field %q value %.2f outside range [%.2f, %.2f]", rule.Field, v, rule.Min, rule.Max), nil
		}
		return "", nil

	case entity.RuleLookup:
		if len(rule.Allowed) == 0 {
			return "", apperr.RuleEvaluation(rule.Field, fmt.Errorf("lookup rule has no allowed values"))
		}
		v, ok := stringField(inv, rule.Field)
		if !ok {
			return "", apperr.RuleEvaluation(rule.Field, fmt.Errorf("field %q is not a string field", rule.Field))
		}
		for _, allowed := range rule.Allowed {
			if strings.EqualFold(v, allowed) {
				return "", nil
			}
		}
		return fmt.Sprintf("field %q value %q not in reference table", rule.Field, v), nil

	case entity.RuleCalculationConsistency:
		return checkCalculation(inv, rule.Field), nil

	case entity.RuleCustomPredicate:
		p, ok := c.predicates[rule.Predicate]
		if !ok {
			return "", apperr.RuleEvaluation(rule.Predicate, fmt.Errorf("unknown predicate %q", rule.Predicate))
		}
		return p(inv), nil

	default:
		return "", apperr.RuleEvaluation(rule.Field, fmt.Errorf("unknown rule type %q", rule.Type))
	}
}

// autoFix recomputes derived money fields from the tax rate. Deterministic
// only, so it is the single fix implemented.
func (c *ComplianceChecker) autoFix(inv *entity.Invoice, check entity.ComplianceCheck) bool {
	if check.Category != entity.CheckCategoryTax && check.Category != entity.CheckCategoryAccounting {
		return false
	}
	if inv.TaxRate < 0 {
		return false
	}
	inv.TaxAmount = round2(inv.Subtotal * inv.TaxRate)
	inv.Total = round2(inv.Subtotal + inv.TaxAmount)
	c.logger.Info("Applied compliance auto-fix",
		zap.String("check_id", check.ID),
		zap.String("invoice_id", inv.ID),
		zap.Float64("tax_amount", inv.TaxAmount),
		zap.Float64("total", inv.Total))
	return true
}

func checkCalculation(inv *entity.Invoice, field string) string {
	switch field {
	case "tax_amount":
		want := round2(inv.Subtotal * inv.TaxRate)
		if math.Abs(inv.TaxAmount-want) > amountTolerance {
			return fmt.Sprintf("tax amount %.2f does not equal subtotal %.2f x rate %.4f", inv.TaxAmount, inv.Subtotal, inv.TaxRate)
		}
	case "subtotal":
		sum := 0.0
		for _, li := range inv.LineItems {
			sum += li.Amount
		}
		if len(inv.LineItems) > 0 && math.Abs(sum-inv.Subtotal) > amountTolerance {
			return fmt.Sprintf("line items sum %.2f does not equal subtotal %.2f", sum, inv.Subtotal)
		}
	default: // total
		want := inv.Subtotal + inv.TaxAmount
		if math.Abs(inv.Total-want) > amountTolerance {
			return fmt.Sprintf("total %.2f does not equal subtotal %.2f + tax %.2f", inv.Total, inv.Subtotal, inv.TaxAmount)
		}
	}
	return ""
}

func aggregateCompliance(results []entity.CheckResult) string {
	failed := 0
	critical := false
	for _, r := range results {
		if r.Outcome == entity.CheckFailed {
			failed++
			if r.Severity == entity.SeverityCritical {
				critical = true
			}
		}
	}
	switch {
	case failed == 0:
		return entity.ComplianceCompliant
	case !critical:
		return entity.CompliancePartial
	default:
		return entity.ComplianceNonCompliant
	}
}

func regulatorySummaries(checks []entity.ComplianceCheck, results []entity.CheckResult) []entity.RegulatorySummary {
	byRegulation := make(map[string]*entity.RegulatorySummary)
	var order []string

	for i, check := range checks {
		if check.Regulation == "" || i >= len(results) {
			continue
		}
		summary, ok := byRegulation[check.Regulation]
		if !ok {
			summary = &entity.RegulatorySummary{Regulation: check.Regulation, Satisfied: true}
			byRegulation[check.Regulation] = summary
			order = append(order, check.Regulation)
		}
		summary.Checks++
		if results[i].Outcome == entity.CheckFailed {
			summary.Failures++
			summary.Satisfied = false
		}
	}

	out := make([]entity.RegulatorySummary, 0, len(order))
	for _, reg := range order {
		out = append(out, *byRegulation[reg])
	}
	return out
}

func stringField(inv *entity.Invoice, field string) (string, bool) {
	switch field {
	case "invoice_number":
		return inv.InvoiceNumber, true
	case "customer_id":
		return inv.CustomerID, true
	case "vendor_name":
		return inv.VendorName, true
	case "status":
		return inv.Status, true
	case "notes":
		return inv.Notes, true
	default:
		return "", false
	}
}

func numericField(inv *entity.Invoice, field string) (float64, bool) {
	switch field {
	case "subtotal":
		return inv.Subtotal, true
	case "tax_rate":
		return inv.TaxRate, true
	case "tax_amount":
		return inv.TaxAmount, true
	case "total":
		return inv.Total, true
	case "balance":
		return inv.Balance, true
	default:
		return 0, false
	}
}

func isZeroField(inv *entity.Invoice, field string) bool {
	if v, ok := stringField(inv, field); ok {
		return strings.TrimSpace(v) == ""
	}
	if v, ok := numericField(inv, field); ok {
		return v == 0
	}
	switch field {
	case "due_date":
		return inv.DueDate.IsZero()
	case "issue_date":
		return inv.IssueDate.IsZero()
	case "line_items":
		return len(inv.LineItems) == 0
	}
	return true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
