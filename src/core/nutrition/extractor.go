package nutrition

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	imageproc "nutrivision-server-go/src/core/image"
	"nutrivision-server-go/src/core/types"
	"nutrivision-server-go/src/core/utils"
)

// Fact is one labeled nutrition value: a single-key object whose key is a
// category from FactVocabulary and whose value is a free-form string carrying
// units ("450 kcal", "25-30g", ...).
type Fact map[string]string

// VisionClient is the multimodal inference call the extractor depends on.
type VisionClient interface {
	ChatWithImage(ctx context.Context, prompt string, img *imageproc.NormalizedImage) (string, error)
}

// Extractor turns a normalized food image into the ordered list of nutrition
// facts defined by the v1 prompt contract.
type Extractor struct {
	client VisionClient
	logger *utils.Logger
}

// NewExtractor creates an extractor bound to a vision inference client.
func NewExtractor(client VisionClient, logger *utils.Logger) *Extractor {
	return &Extractor{
		client: client,
		logger: logger,
	}
}

// Extract submits the image and parses the response into facts. Transport
// failures surface as InferenceTransportError, unusable responses as
// InferenceContractError; values are never guessed or repaired.
func (e *Extractor) Extract(ctx context.Context, img *imageproc.NormalizedImage) ([]Fact, error) {
	raw, err := e.client.ChatWithImage(ctx, NutritionPrompt(), img)
	if err != nil {
		return nil, types.NewInferenceTransportError("food analysis request failed", err)
	}

	span, ok := ExtractJSONArray(raw)
	if !ok {
		e.logger.Warn(fmt.Sprintf("营养分析响应中未找到JSON数组 len=%d", len(raw)))
		return nil, types.NewInferenceContractError("no valid food data found")
	}

	var facts []Fact
	if err := json.Unmarshal([]byte(span), &facts); err != nil {
		return nil, types.NewInferenceContractError("no valid food data found", err)
	}
	if len(facts) == 0 {
		return nil, types.NewInferenceContractError("no valid food data found")
	}

	e.checkVocabulary(facts)
	return facts, nil
}

// checkVocabulary logs drift from the fixed schema but does not reject it.
// Category keys are compared case-insensitively; downstream consumers bucket
// values by label and tolerate minor variations.
func (e *Extractor) checkVocabulary(facts []Fact) {
	if len(facts) != FactCount {
		e.logger.Warn(fmt.Sprintf("营养结果条目数偏离约定: got=%d want=%d", len(facts), FactCount))
	}
	for i, fact := range facts {
		if len(fact) != 1 {
			e.logger.Warn(fmt.Sprintf("营养条目%d不是单键对象: keys=%d", i, len(fact)))
			continue
		}
		if i >= len(FactVocabulary) {
			continue
		}
		for key := range fact {
			if !strings.EqualFold(key, FactVocabulary[i]) {
				e.logger.Warn(fmt.Sprintf("营养条目%d类别偏离约定: got=%q want=%q", i, key, FactVocabulary[i]))
			}
		}
	}
}

// Summary returns the value of the summary category, located by
// case-insensitive key match across the fact list.
func Summary(facts []Fact) (string, bool) {
	for _, fact := range facts {
		for key, value := range fact {
			if strings.EqualFold(key, "summary") {
				return value, true
			}
		}
	}
	return "", false
}
