package engine

import "github.com/miradorstack/mirador-rob/internal/models"

// AggregateFunc reduces a study's domain judgments to one overall judgment.
type AggregateFunc func(judgments []models.JudgmentLevel) models.JudgmentLevel

// aggregators is keyed by tool type. Tools without an entry use countingRule.
var aggregators = map[models.ToolType]AggregateFunc{
	models.ToolRoB2:    worstOf(models.JudgmentHigh, models.JudgmentSomeConcerns),
	models.ToolJBIRCT:  worstOf(models.JudgmentHigh, models.JudgmentSomeConcerns),
	models.ToolROBINSI: worstOf(models.JudgmentCritical, models.JudgmentSerious, models.JudgmentModerate),
	models.ToolQUADAS2: worstOf(models.JudgmentHigh, models.JudgmentUnclear),
}

// AggregatorFor returns the overall-judgment rule for tool.
func AggregatorFor(tool models.ToolType) AggregateFunc {
	if fn, ok := aggregators[tool]; ok {
		return fn
	}
	return countingRule
}

// Aggregate computes the overall judgment for tool.
func Aggregate(tool models.ToolType, judgments []models.JudgmentLevel) models.JudgmentLevel {
	return AggregatorFor(tool)(judgments)
}

// worstOf returns the first level in ladder present in the judgments, most severe
// first, and Low when none is present.
func worstOf(ladder ...models.JudgmentLevel) AggregateFunc {
	return func(judgments []models.JudgmentLevel) models.JudgmentLevel {
		present := make(map[models.JudgmentLevel]bool, len(judgments))
		for _, j := range judgments {
			present[j] = true
		}
		for _, level := range ladder {
			if present[level] {
				return level
			}
		}
		return models.JudgmentLow
	}
}

// countingRule: two or more high-severity domains give High, one high-severity
// domain or any intermediate concern gives Some Concerns.
func countingRule(judgments []models.JudgmentLevel) models.JudgmentLevel {
	severe := 0
	intermediate := false
	for _, j := range judgments {
		switch j {
		case models.JudgmentHigh, models.JudgmentSerious, models.JudgmentCritical:
			severe++
		case models.JudgmentSomeConcerns, models.JudgmentModerate:
			intermediate = true
		}
	}
	switch {
	case severe >= 2:
		return models.JudgmentHigh
	case severe == 1 || intermediate:
		return models.JudgmentSomeConcerns
	default:
		return models.JudgmentLow
	}
}
