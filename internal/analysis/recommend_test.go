package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/apflow/invoice-approval/internal/domain/entity"
)

type stubNarrator struct {
	narrative string
	err       error
}

func (s stubNarrator) Narrate(ctx context.Context, inv *entity.Invoice, rec *entity.ApprovalRecommendation) (string, error) {
	return s.narrative, s.err
}

func recWorkflow(threshold float64) *entity.ApprovalWorkflow {
	return &entity.ApprovalWorkflow{
		AutomationSettings: entity.AutomationSettings{AutoApproveThreshold: threshold},
	}
}

func fraudAt(score float64) *entity.FraudRiskBreakdown {
	return &entity.FraudRiskBreakdown{OverallScore: score, RiskLevel: riskLevel(score)}
}

func complianceAt(overall string) *entity.ComplianceStatus {
	return &entity.ComplianceStatus{Overall: overall}
}

func TestGenerateLowRiskCompliant(t *testing.T) {
	g := NewRecommendationGenerator(nil, zap.NewNop())

	recs := g.Generate(context.Background(), &entity.Invoice{ID: "inv-1", Total: 200},
		fraudAt(10), complianceAt(entity.ComplianceCompliant), recWorkflow(30))

	require.Len(t, recs, 1)
	assert.Equal(t, entity.RecommendApprove, recs[0].Action)
	assert.Equal(t, 0.95, recs[0].Confidence)
	assert.Equal(t, 200.0, recs[0].Impact.FinancialExposure)
}

func TestGenerateNonCompliantDominates(t *testing.T) {
	g := NewRecommendationGenerator(nil, zap.NewNop())

	// Low fraud score must not rescue a critically non-compliant invoice
	recs := g.Generate(context.Background(), &entity.Invoice{ID: "inv-1", Total: 5000},
		fraudAt(5), complianceAt(entity.ComplianceNonCompliant), recWorkflow(30))

	require.Len(t, recs, 2)
	assert.Equal(t, entity.RecommendReject, recs[0].Action)
	assert.Equal(t, 0.9, recs[0].Confidence)
	assert.Equal(t, entity.RecommendRequestInfo, recs[1].Action)
}

func TestGenerateHighFraud(t *testing.T) {
	g := NewRecommendationGenerator(nil, zap.NewNop())

	fraud := fraudAt(85)
	fraud.Factors = []entity.RiskFactor{
		{RuleID: "r-dup", Score: 45, Evidence: []string{"duplicate invoice number"}},
		{RuleID: "r-skip", Score: 0, Skipped: true, Evidence: []string{"skipped"}},
	}

	recs := g.Generate(context.Background(), &entity.Invoice{ID: "inv-1", Total: 9000},
		fraud, complianceAt(entity.ComplianceCompliant), recWorkflow(30))

	require.Len(t, recs, 2)
	assert.Equal(t, entity.RecommendReject, recs[0].Action)
	assert.Equal(t, entity.RecommendEscalate, recs[1].Action)
	assert.Contains(t, recs[0].Reasoning, "duplicate invoice number")
	assert.Equal(t, "payment delayed pending investigation", recs[0].Impact.TimelineImpact)
}

func TestGenerateModerateRisk(t *testing.T) {
	g := NewRecommendationGenerator(nil, zap.NewNop())

	tests := []struct {
		name       string
		score      float64
		compliance string
		wantFirst  string
		wantLen    int
	}{
		{name: "moderate fraud", score: 55, compliance: entity.ComplianceCompliant, wantFirst: entity.RecommendConditionalApprove, wantLen: 1},
		{name: "partial compliance", score: 10, compliance: entity.CompliancePartial, wantFirst: entity.RecommendConditionalApprove, wantLen: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs := g.Generate(context.Background(), &entity.Invoice{ID: "inv-1", Total: 800},
				fraudAt(tt.score), complianceAt(tt.compliance), recWorkflow(30))
			require.Len(t, recs, tt.wantLen)
			assert.Equal(t, tt.wantFirst, recs[0].Action)
		})
	}
}

func TestGenerateAboveThresholdBelowModerate(t *testing.T) {
	g := NewRecommendationGenerator(nil, zap.NewNop())

	recs := g.Generate(context.Background(), &entity.Invoice{ID: "inv-1", Total: 800},
		fraudAt(40), complianceAt(entity.ComplianceCompliant), recWorkflow(30))

	require.Len(t, recs, 1)
	assert.Equal(t, entity.RecommendApprove, recs[0].Action)
	assert.Equal(t, 0.75, recs[0].Confidence)
}

func TestGenerateSortedByConfidence(t *testing.T) {
	g := NewRecommendationGenerator(nil, zap.NewNop())

	recs := g.Generate(context.Background(), &entity.Invoice{ID: "inv-1", Total: 800},
		fraudAt(85), complianceAt(entity.ComplianceCompliant), recWorkflow(30))

	for i := 1; i < len(recs); i++ {
		assert.GreaterOrEqual(t, recs[i-1].Confidence, recs[i].Confidence)
	}
}

func TestGenerateNarration(t *testing.T) {
	t.Run("narrative attached to top recommendation", func(t *testing.T) {
		g := NewRecommendationGenerator(stubNarrator{narrative: "the invoice fits the vendor's billing pattern"}, zap.NewNop())
		recs := g.Generate(context.Background(), &entity.Invoice{ID: "inv-1", Total: 200},
			fraudAt(10), complianceAt(entity.ComplianceCompliant), recWorkflow(30))
		require.Len(t, recs, 1)
		assert.Equal(t, "the invoice fits the vendor's billing pattern", recs[0].Narrative)
	})

	t.Run("narration failure is non-fatal", func(t *testing.T) {
		g := NewRecommendationGenerator(stubNarrator{err: errors.New("model unavailable")}, zap.NewNop())
		recs := g.Generate(context.Background(), &entity.Invoice{ID: "inv-1", Total: 200},
			fraudAt(10), complianceAt(entity.ComplianceCompliant), recWorkflow(30))
		require.Len(t, recs, 1)
		assert.Empty(t, recs[0].Narrative)
	})
}
