package nutrition

import (
	"context"
	"encoding/json"
	"strings"

	"nutrivision-server-go/src/core/types"
	"nutrivision-server-go/src/core/utils"
)

// TextClient is the text-only inference call the analyzer depends on.
type TextClient interface {
	Chat(ctx context.Context, prompt string) (string, error)
}

// Analyzer produces the fixed-length meal insight list from an extracted
// summary text.
type Analyzer struct {
	client TextClient
	logger *utils.Logger
}

// NewAnalyzer creates an analyzer bound to a text inference client.
func NewAnalyzer(client TextClient, logger *utils.Logger) *Analyzer {
	return &Analyzer{
		client: client,
		logger: logger,
	}
}

// Analyze returns exactly InsightCount short insight strings or fails with
// InferenceTransportError / InferenceContractError.
func (a *Analyzer) Analyze(ctx context.Context, summary string) ([]string, error) {
	raw, err := a.client.Chat(ctx, MealAnalysisPrompt(summary))
	if err != nil {
		return nil, types.NewInferenceTransportError("meal analysis request failed", err)
	}

	insights, err := parseInsights(raw)
	if err != nil {
		return nil, err
	}
	return insights, nil
}

// parseInsights tries a direct structural parse of the whole response first,
// then falls back to bracket extraction.
func parseInsights(raw string) ([]string, error) {
	var insights []string
	if err := json.Unmarshal([]byte(raw), &insights); err != nil {
		span, ok := ExtractJSONArray(raw)
		if !ok {
			return nil, types.NewInferenceContractError("no valid JSON array found in the response")
		}
		if err := json.Unmarshal([]byte(span), &insights); err != nil {
			return nil, types.NewInferenceContractError("no valid JSON array found in the response", err)
		}
	}

	if len(insights) != InsightCount {
		return nil, types.NewInferenceContractError("invalid meal analysis format")
	}
	for _, insight := range insights {
		if strings.TrimSpace(insight) == "" {
			return nil, types.NewInferenceContractError("invalid meal analysis format")
		}
	}
	return insights, nil
}
