package llm

import "strings"

// price is USD per million tokens.
type price struct {
	Input  float64
	Output float64
}

var anthropicPricing = map[string]price{
	"claude-3-5-sonnet-20241022": {3.00, 15.00},
	"claude-3-5-sonnet-latest":   {3.00, 15.00},
	"claude-3-5-haiku-latest":    {0.80, 4.00},
	"claude-3-opus-20240229":     {15.00, 75.00},
	"claude-3-opus-latest":       {15.00, 75.00},
	"claude-3-haiku-20240307":    {0.25, 1.25},
}

var openAIPricing = map[string]price{
	"gpt-4o":        {5.00, 15.00},
	"gpt-4o-mini":   {0.15, 0.60},
	"gpt-4-turbo":   {10.00, 30.00},
	"gpt-4":         {30.00, 60.00},
	"gpt-3.5-turbo": {0.50, 1.50},
}

var geminiPricing = map[string]price{
	"gemini-1.5-pro":   {1.25, 5.00},
	"gemini-1.5-flash": {0.075, 0.30},
	"gemini-2.0-flash": {0.10, 0.40},
}

// lookupPrice finds the model price, falling back to the longest known prefix and
// then to fallback.
func lookupPrice(table map[string]price, model string, fallback price) price {
	if p, ok := table[model]; ok {
		return p
	}
	best, bestLen := fallback, 0
	for name, p := range table {
		if strings.HasPrefix(model, name) && len(name) > bestLen {
			best, bestLen = p, len(name)
		}
	}
	return best
}

func (p price) cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1_000_000*p.Input + float64(outputTokens)/1_000_000*p.Output
}
