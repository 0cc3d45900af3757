package llm

import "strings"

// ModelPricing holds per-token pricing for a model family.
type ModelPricing struct {
	Input  float64
	Output float64
}

// modelPricingMap maps model names to their per-token pricing. Unknown models
// fall back to a model-family match, then to zero cost.
var modelPricingMap = map[string]ModelPricing{
	"gpt-4o": {
		Input:  0.0000025, // $2.50 per million tokens
		Output: 0.00001,   // $10.00 per million tokens
	},
	"gpt-4o-mini": {
		Input:  0.00000015, // $0.15 per million tokens
		Output: 0.0000006,  // $0.60 per million tokens
	},
	"claude-sonnet-4-20250514": {
		Input:  0.000003, // $3.00 per million tokens
		Output: 0.000015, // $15.00 per million tokens
	},
	"claude-3-5-haiku-latest": {
		Input:  0.0000008, // $0.80 per million tokens
		Output: 0.000004,  // $4.00 per million tokens
	},
}

// Cost computes the dollar cost of one completion.
func Cost(model string, inputTokens, outputTokens int) float64 {
	p := pricingFor(model)
	return float64(inputTokens)*p.Input + float64(outputTokens)*p.Output
}

func pricingFor(model string) ModelPricing {
	if p, ok := modelPricingMap[model]; ok {
		return p
	}
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "gpt-4o-mini"):
		return modelPricingMap["gpt-4o-mini"]
	case strings.Contains(lower, "gpt-4o"):
		return modelPricingMap["gpt-4o"]
	case strings.Contains(lower, "haiku"):
		return modelPricingMap["claude-3-5-haiku-latest"]
	case strings.Contains(lower, "claude"):
		return modelPricingMap["claude-sonnet-4-20250514"]
	}
	return ModelPricing{}
}
