package analysis

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/apflow/invoice-approval/internal/application/port"
	"github.com/apflow/invoice-approval/internal/domain/entity"
)

// RecommendationGenerator turns the fraud and compliance analyses into ranked,
// advisory approve/reject guidance. It never mutates request state.
type RecommendationGenerator struct {
	narrator port.RecommendationNarrator // nil disables narrative enrichment
	logger   *zap.Logger
}

// NewRecommendationGenerator creates a generator. narrator may be nil.
func NewRecommendationGenerator(narrator port.RecommendationNarrator, logger *zap.Logger) *RecommendationGenerator {
	return &RecommendationGenerator{
		narrator: narrator,
		logger:   logger,
	}
}

// Generate produces one or more recommendations sorted by confidence,
// strongest first.
func (g *RecommendationGenerator) Generate(
	ctx context.Context,
	inv *entity.Invoice,
	fraud *entity.FraudRiskBreakdown,
	compliance *entity.ComplianceStatus,
	wf *entity.ApprovalWorkflow,
) []entity.ApprovalRecommendation {
	impact := entity.ImpactAnalysis{
		FinancialExposure: inv.Total,
		ComplianceImpact:  complianceImpact(compliance),
		BusinessImpact:    businessImpact(inv, fraud),
		TimelineImpact:    timelineImpact(fraud, compliance),
	}

	recs := g.build(inv, fraud, compliance, wf, impact)

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Confidence > recs[j].Confidence
	})

	if g.narrator != nil && len(recs) > 0 {
		narrative, err := g.narrator.Narrate(ctx, inv, &recs[0])
		if err != nil {
			g.logger.Warn("Recommendation narration failed", zap.String("invoice_id", inv.ID), zap.Error(err))
		} else {
			recs[0].Narrative = narrative
		}
	}

	return recs
}

func (g *RecommendationGenerator) build(
	inv *entity.Invoice,
	fraud *entity.FraudRiskBreakdown,
	compliance *entity.ComplianceStatus,
	wf *entity.ApprovalWorkflow,
	impact entity.ImpactAnalysis,
) []entity.ApprovalRecommendation {
	threshold := wf.AutomationSettings.AutoApproveThreshold

	// Critical compliance failures dominate regardless of fraud score.
	if compliance.Overall == entity.ComplianceNonCompliant {
		return []entity.ApprovalRecommendation{
			{
				Action:     entity.RecommendReject,
				Confidence: 0.9,
				Reasoning:  append([]string{"critical compliance check failed"}, complianceFailures(compliance)...),
				Impact:     impact,
				Alternatives: []string{
					"request corrected invoice from vendor",
					"escalate to the compliance officer",
				},
			},
			{
				Action:     entity.RecommendRequestInfo,
				Confidence: 0.6,
				Reasoning:  []string{"missing or inconsistent data may be correctable by the submitter"},
				Impact:     impact,
			},
		}
	}

	switch {
	case fraud.OverallScore < threshold && compliance.Overall == entity.ComplianceCompliant:
		return []entity.ApprovalRecommendation{{
			Action:     entity.RecommendApprove,
			Confidence: 0.95,
			Reasoning: []string{
				fmt.Sprintf("fraud score %.0f below auto-approve threshold %.0f", fraud.OverallScore, threshold),
				"all compliance checks passed",
			},
			Impact:       impact,
			Alternatives: []string{"hold for routine spot check"},
		}}

	case fraud.OverallScore >= 75:
		return []entity.ApprovalRecommendation{
			{
				Action:     entity.RecommendReject,
				Confidence: 0.85,
				Reasoning: append([]string{
					fmt.Sprintf("fraud score %.0f indicates %s risk", fraud.OverallScore, fraud.RiskLevel),
				}, topEvidence(fraud, 3)...),
				Impact:       impact,
				Alternatives: []string{"escalate to fraud investigation"},
			},
			{
				Action:     entity.RecommendEscalate,
				Confidence: 0.7,
				Reasoning:  []string{"elevated authority should weigh the flagged factors"},
				Impact:     impact,
			},
		}

	case fraud.OverallScore >= 50 || compliance.Overall == entity.CompliancePartial:
		recs := []entity.ApprovalRecommendation{{
			Action:     entity.RecommendConditionalApprove,
			Confidence: 0.65,
			Reasoning: append([]string{
				fmt.Sprintf("fraud score %.0f is moderate", fraud.OverallScore),
			}, complianceFailures(compliance)...),
			Impact:       impact,
			Alternatives: []string{"approve with documented conditions", "request missing information"},
		}}
		if compliance.Overall == entity.CompliancePartial {
			recs = append(recs, entity.ApprovalRecommendation{
				Action:     entity.RecommendRequestInfo,
				Confidence: 0.6,
				Reasoning:  []string{"non-critical compliance gaps may be resolved by the submitter"},
				Impact:     impact,
			})
		}
		return recs

	default:
		return []entity.ApprovalRecommendation{{
			Action:     entity.RecommendApprove,
			Confidence: 0.75,
			Reasoning: []string{
				fmt.Sprintf("fraud score %.0f is %s risk", fraud.OverallScore, fraud.RiskLevel),
				fmt.Sprintf("compliance status: %s", compliance.Overall),
				"human sign-off still required by workflow configuration",
			},
			Impact: impact,
		}}
	}
}

func complianceImpact(c *entity.ComplianceStatus) string {
	switch c.Overall {
	case entity.ComplianceCompliant:
		return "none: all configured checks passed"
	case entity.CompliancePartial:
		return "moderate: non-critical checks failed and need follow-up"
	default:
		return "severe: critical regulatory exposure if approved"
	}
}

func businessImpact(inv *entity.Invoice, fraud *entity.FraudRiskBreakdown) string {
	if fraud.OverallScore >= 50 {
		return fmt.Sprintf("potential loss of %.2f if the invoice is fraudulent", inv.Total)
	}
	return "routine payable; vendor relationship unaffected"
}

func timelineImpact(fraud *entity.FraudRiskBreakdown, c *entity.ComplianceStatus) string {
	if fraud.OverallScore >= 75 || c.Overall == entity.ComplianceNonCompliant {
		return "payment delayed pending investigation"
	}
	if c.Overall == entity.CompliancePartial || fraud.OverallScore >= 50 {
		return "payment may slip one review cycle"
	}
	return "no delay expected"
}

func complianceFailures(c *entity.ComplianceStatus) []string {
	var out []string
	for _, r := range c.Results {
		if r.Outcome == entity.CheckFailed {
			out = append(out, fmt.Sprintf("check %q failed: %v", r.CheckName, r.Violations))
		}
	}
	return out
}

func topEvidence(f *entity.FraudRiskBreakdown, n int) []string {
	factors := make([]entity.RiskFactor, 0, len(f.Factors))
	for _, factor := range f.Factors {
		if !factor.Skipped && factor.Score > 0 {
			factors = append(factors, factor)
		}
	}
	sort.Slice(factors, func(i, j int) bool { return factors[i].Score > factors[j].Score })

	var out []string
	for i, factor := range factors {
		if i >= n {
			break
		}
		out = append(out, factor.Evidence...)
	}
	return out
}
