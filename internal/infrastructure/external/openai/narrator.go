package openai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/apflow/invoice-approval/internal/domain/entity"
)

// Narrator turns the top recommendation into a short plain-language summary
// for approvers. Implements port.RecommendationNarrator.
type Narrator struct {
	client *openai.Client
	model  string
	temp   float32
	logger *zap.Logger
}

// NewNarrator creates a new recommendation narrator
func NewNarrator(apiKey, model string, temperature float32, logger *zap.Logger) *Narrator {
	client := openai.NewClient(apiKey)

	return &Narrator{
		client: client,
		model:  model,
		temp:   temperature,
		logger: logger,
	}
}

// Narrate produces a two or three sentence narrative for the recommendation.
func (n *Narrator) Narrate(ctx context.Context, inv *entity.Invoice, rec *entity.ApprovalRecommendation) (string, error) {
	prompt := n.buildPrompt(inv, rec)

	n.logger.Debug("Sending narration request to OpenAI",
		zap.String("invoice_id", inv.ID),
		zap.String("action", rec.Action))

	resp, err := n.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       n.model,
		Temperature: n.temp,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are an accounts-payable analyst. Explain an automated approval recommendation to a human approver in two or three plain sentences. Do not invent facts beyond the provided reasoning.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	})
	if err != nil {
		n.logger.Error("OpenAI API call failed", zap.Error(err))
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (n *Narrator) buildPrompt(inv *entity.Invoice, rec *entity.ApprovalRecommendation) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Invoice %s from %s for %.2f.\n", inv.InvoiceNumber, inv.VendorName, inv.Total)
	fmt.Fprintf(&sb, "Recommended action: %s (confidence %.0f%%).\n", rec.Action, rec.Confidence*100)
	sb.WriteString("Reasoning:\n")
	for _, reason := range rec.Reasoning {
		fmt.Fprintf(&sb, "- %s\n", reason)
	}
	if rec.Impact.FinancialExposure > 0 {
		fmt.Fprintf(&sb, "Financial exposure: %.2f.\n", rec.Impact.FinancialExposure)
	}
	return sb.String()
}
