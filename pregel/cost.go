package pregel

// ModelPricing is the USD cost per 1M tokens for a chat model, input and
// output priced separately since providers charge output tokens at a
// premium.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// defaultModelPricing covers the model names pregel/model's adapters
// default to or commonly take as overrides. Prices are illustrative
// snapshots, not a billing source of truth; RegisterModelPricing adds or
// overrides entries in this map in place.
var defaultModelPricing = map[string]ModelPricing{
	"gpt-4o":                    {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini":                {InputPer1M: 0.15, OutputPer1M: 0.60},
	"claude-sonnet-4-5-20250929": {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-haiku-4-5":           {InputPer1M: 0.80, OutputPer1M: 4.00},
	"gemini-2.5-flash":           {InputPer1M: 0.30, OutputPer1M: 2.50},
	"gemini-2.5-pro":             {InputPer1M: 1.25, OutputPer1M: 10.00},
}

// EstimateCost returns the USD cost of a call against modelName given its
// input/output token counts. An unrecognized modelName returns 0; use
// RegisterModelPricing to extend the table with custom or newer models.
func EstimateCost(modelName string, inputTokens, outputTokens int) float64 {
	pricing, ok := defaultModelPricing[modelName]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1e6*pricing.InputPer1M + float64(outputTokens)/1e6*pricing.OutputPer1M
}

// RegisterModelPricing adds or overrides the pricing entry for modelName,
// for a custom deployment or a model newer than this table's snapshot.
func RegisterModelPricing(modelName string, pricing ModelPricing) {
	defaultModelPricing[modelName] = pricing
}
