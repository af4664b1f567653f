package entity

import "time"

// FraudRiskBreakdown is the decomposed, weighted scoring of why an invoice is
// considered risky. Attached to a request at submission time and never
// recomputed retroactively.
type FraudRiskBreakdown struct {
	OverallScore float64              `json:"overall_score"` // [0,100]
	RiskLevel    string               `json:"risk_level"`
	Factors      []RiskFactor         `json:"factors"`
	Historical   HistoricalComparison `json:"historical"`
	AnalyzedAt   time.Time            `json:"analyzed_at"`
}

// RiskFactor is one weighted fraud signal contribution.
type RiskFactor struct {
	RuleID     string   `json:"rule_id"`
	RuleName   string   `json:"rule_name"`
	Type       string   `json:"type"`
	Score      float64  `json:"score"` // weighted contribution
	Confidence float64  `json:"confidence"`
	Evidence   []string `json:"evidence"`
	Mitigation string   `json:"mitigation,omitempty"`
	Skipped    bool     `json:"skipped,omitempty"`
}

// HistoricalComparison summarizes how this invoice sits against prior analyses.
type HistoricalComparison struct {
	SimilarInvoicesAnalyzed int     `json:"similar_invoices_analyzed"`
	AverageHistoricalScore  float64 `json:"average_historical_score"`
	FalsePositiveRate       float64 `json:"false_positive_rate"`
	DetectionAccuracy       float64 `json:"detection_accuracy"`
}

// Aggregate compliance outcomes.
const (
	ComplianceCompliant    = "compliant"
	CompliancePartial      = "partial_compliance"
	ComplianceNonCompliant = "non_compliant"
)

// Per-check outcomes.
const (
	CheckPassed  = "passed"
	CheckFailed  = "failed"
	CheckWarning = "warning"
	CheckSkipped = "skipped"
)

// ComplianceStatus is the aggregate result of running all configured checks.
type ComplianceStatus struct {
	Overall     string              `json:"overall"`
	Results     []CheckResult       `json:"results"`
	Regulations []RegulatorySummary `json:"regulations,omitempty"`
	CheckedAt   time.Time           `json:"checked_at"`
}

// CheckResult is the outcome of a single compliance check.
type CheckResult struct {
	CheckID      string   `json:"check_id"`
	CheckName    string   `json:"check_name"`
	Category     string   `json:"category"`
	Severity     string   `json:"severity"`
	Outcome      string   `json:"outcome"`
	Violations   []string `json:"violations,omitempty"`
	AutoFixed    bool     `json:"auto_fixed,omitempty"`
	AutoFixNotes string   `json:"auto_fix_notes,omitempty"`
}

// RegulatorySummary maps check outcomes onto a named regulation.
type RegulatorySummary struct {
	Regulation string `json:"regulation"`
	Satisfied  bool   `json:"satisfied"`
	Checks     int    `json:"checks"`
	Failures   int    `json:"failures"`
}

// Recommendation kinds produced by the recommendation generator.
const (
	RecommendApprove            = "approve"
	RecommendReject             = "reject"
	RecommendRequestInfo        = "request_info"
	RecommendEscalate           = "escalate"
	RecommendConditionalApprove = "conditional_approve"
)

// ApprovalRecommendation is advisory output only; it never mutates request
// state directly.
type ApprovalRecommendation struct {
	Action       string         `json:"action"`
	Confidence   float64        `json:"confidence"` // [0,1]
	Reasoning    []string       `json:"reasoning"`
	Impact       ImpactAnalysis `json:"impact"`
	Alternatives []string       `json:"alternatives,omitempty"`
	Narrative    string         `json:"narrative,omitempty"` // optional LLM enrichment
}

// ImpactAnalysis states what acting on a recommendation exposes.
type ImpactAnalysis struct {
	FinancialExposure float64 `json:"financial_exposure"`
	ComplianceImpact  string  `json:"compliance_impact"`
	BusinessImpact    string  `json:"business_impact"`
	TimelineImpact    string  `json:"timeline_impact"`
}
