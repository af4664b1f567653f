package entity

import "time"

// Approval criteria govern how individual approvals tally toward a level's quorum.
const (
	CriteriaAllMustApprove     = "all_must_approve"
	CriteriaMajorityRequired   = "majority_required"
	CriteriaAnyCanApprove      = "any_can_approve"
	CriteriaSequentialApproval = "sequential_approval"
)

// Fraud detection rule types.
const (
	FraudRuleAmountDeviation  = "amount_deviation"
	FraudRuleDuplicateInvoice = "duplicate_invoice"
	FraudRuleNewVendor        = "new_vendor"
	FraudRuleTimeAnomaly      = "time_anomaly"
)

// Compliance check categories.
const (
	CheckCategoryRegulatory     = "regulatory"
	CheckCategoryTax            = "tax"
	CheckCategoryAccounting     = "accounting_standard"
	CheckCategoryInternalPolicy = "internal_policy"
	CheckCategoryIndustry       = "industry_specific"
)

// Validation rule types evaluated by the compliance checker.
const (
	RuleRequiredField          = "required_field"
	RuleFormat                 = "format"
	RuleNumericRange           = "numeric_range"
	RuleLookup                 = "lookup"
	RuleCalculationConsistency = "calculation_consistency"
	RuleCustomPredicate        = "custom_predicate"
)

// Severity levels for compliance checks.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// ApprovalWorkflow is a named, versioned approval configuration. A request
// captures the workflow by value at submission time, so administrator edits
// never affect in-flight requests.
type ApprovalWorkflow struct {
	ID                 string               `json:"id"`
	Name               string               `json:"name"`
	Description        string               `json:"description"`
	Version            int                  `json:"version"`
	IsActive           bool                 `json:"is_active"`
	TriggerConditions  TriggerConditions    `json:"trigger_conditions"`
	ApprovalLevels     []ApprovalLevel      `json:"approval_levels"`
	ComplianceChecks   []ComplianceCheck    `json:"compliance_checks"`
	FraudRules         []FraudDetectionRule `json:"fraud_rules"`
	EscalationRules    []EscalationRule     `json:"escalation_rules"`
	AutomationSettings AutomationSettings   `json:"automation_settings"`
	CreatedBy          string               `json:"created_by"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

// TriggerConditions decide which workflow a submitted invoice routes to.
type TriggerConditions struct {
	MinAmount         float64  `json:"min_amount"`
	MaxAmount         float64  `json:"max_amount"` // 0 means unbounded
	RiskThreshold     float64  `json:"risk_threshold"`
	BusinessDaysOnly  bool     `json:"business_days_only"`
	BusinessHoursOnly bool     `json:"business_hours_only"`
	CustomerIDs       []string `json:"customer_ids,omitempty"`
}

// Matches reports whether the invoice satisfies the trigger conditions at now.
func (tc TriggerConditions) Matches(inv *Invoice, now time.Time) bool {
	if inv.Total < tc.MinAmount {
		return false
	}
	if tc.MaxAmount > 0 && inv.Total > tc.MaxAmount {
		return false
	}
	if tc.BusinessDaysOnly {
		wd := now.Weekday()
		if wd == time.Saturday || wd == time.Sunday {
			return false
		}
	}
	if tc.BusinessHoursOnly {
		h := now.Hour()
		if h < 8 || h >= 18 {
			return false
		}
	}
	if len(tc.CustomerIDs) > 0 {
		found := false
		for _, id := range tc.CustomerIDs {
			if id == inv.CustomerID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// ApprovalLevel is one stage of sign-off with its own approver set and quorum rule.
type ApprovalLevel struct {
	Level                 int      `json:"level"`
	Name                  string   `json:"name"`
	RequiredApprovers     int      `json:"required_approvers"`
	ApproverRoles         []string `json:"approver_roles"`
	ApproverUserIDs       []string `json:"approver_user_ids"`
	Criteria              string   `json:"criteria"`
	TimeoutHours          int      `json:"timeout_hours"`
	AutoEscalateOnTimeout bool     `json:"auto_escalate_on_timeout"`
}

// Quorum returns how many approvals the level needs under its criteria.
func (l ApprovalLevel) Quorum() int {
	switch l.Criteria {
	case CriteriaAnyCanApprove:
		return 1
	case CriteriaMajorityRequired:
		return l.RequiredApprovers/2 + 1
	default:
		if l.RequiredApprovers < 1 {
			return 1
		}
		return l.RequiredApprovers
	}
}

// ComplianceCheck is a named rule bundle verifying an invoice against a
// regulatory or internal standard.
type ComplianceCheck struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Category         string           `json:"category"`
	Regulation       string           `json:"regulation,omitempty"` // e.g. SOX, GAAP
	Severity         string           `json:"severity"`
	AutoFixAvailable bool             `json:"auto_fix_available"`
	Rules            []ValidationRule `json:"rules"`
}

// ValidationRule is one field-level assertion inside a compliance check.
type ValidationRule struct {
	Type      string   `json:"type"`
	Field     string   `json:"field"`
	Pattern   string   `json:"pattern,omitempty"`
	Min       float64  `json:"min,omitempty"`
	Max       float64  `json:"max,omitempty"`
	Allowed   []string `json:"allowed,omitempty"`
	Predicate string   `json:"predicate,omitempty"`
	Message   string   `json:"message,omitempty"`
}

// FraudDetectionRule configures one weighted fraud signal.
type FraudDetectionRule struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Type            string  `json:"type"`
	RiskScoreWeight float64 `json:"risk_score_weight"`
	Threshold       float64 `json:"threshold"`
	WindowDays      int     `json:"window_days,omitempty"`
	Enabled         bool    `json:"enabled"`
}

// EscalationRule names who gets pulled in when a request escalates.
type EscalationRule struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	TriggerAfterHours  int      `json:"trigger_after_hours"`
	TargetRoles        []string `json:"target_roles"`
	TargetUserIDs      []string `json:"target_user_ids"`
	NotificationMethod string   `json:"notification_method"`
	Urgency            string   `json:"urgency"`
}

// AutomationSettings configure auto-approval and notification behavior.
type AutomationSettings struct {
	AutoApproveLowRisk   bool    `json:"auto_approve_low_risk"`
	AutoApproveThreshold float64 `json:"auto_approve_threshold"`
	NotifyOnSubmission   bool    `json:"notify_on_submission"`
	NotifyOnDecision     bool    `json:"notify_on_decision"`
	NotifyOnEscalation   bool    `json:"notify_on_escalation"`
}
