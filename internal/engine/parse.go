package engine

import (
	"strconv"
	"strings"

	"github.com/miradorstack/mirador-rob/internal/models"
)

const (
	defaultConfidence = 0.5
	defaultResponse   = "No Information"
)

// parsedAssessment is the model's answer mapped onto the template.
type parsedAssessment struct {
	domains          []models.DomainJudgment
	overallRationale string
}

// parseAssessment never fails: domains missing from data get Unclear at the
// default confidence.
func parseAssessment(tmpl *models.Template, data map[string]any, threshold float64) parsedAssessment {
	answers, _ := data["domain_assessments"].(map[string]any)
	out := parsedAssessment{
		domains:          make([]models.DomainJudgment, 0, len(tmpl.Domains)),
		overallRationale: stringField(data, "overall_rationale"),
	}
	for _, domain := range tmpl.Domains {
		block := lookupDomain(answers, domain)

		judgment := models.JudgmentUnclear
		if raw := stringField(block, "judgment"); raw != "" {
			judgment = models.NormalizeJudgment(raw)
		}
		confidence, ok := floatField(block, "confidence")
		if !ok {
			confidence = defaultConfidence
		}
		confidence = clamp01(confidence)

		out.domains = append(out.domains, models.DomainJudgment{
			DomainID:            domain.ID,
			DomainName:          domain.Name,
			SignalingResponses:  parseResponses(block["signaling_responses"]),
			Judgment:            judgment,
			Rationale:           stringField(block, "rationale"),
			SupportingQuotes:    stringSlice(block["supporting_quotes"]),
			AISuggestedJudgment: judgment,
			AIConfidence:        confidence,
			IsAIGenerated:       true,
			IsFlaggedUncertain:  confidence < threshold,
		})
	}
	return out
}

// lookupDomain finds the answer block by domain name, then by id, then by a
// case-insensitive name match.
func lookupDomain(answers map[string]any, domain models.DomainTemplate) map[string]any {
	if answers == nil {
		return nil
	}
	for _, key := range []string{domain.Name, domain.ID} {
		if block, ok := answers[key].(map[string]any); ok {
			return block
		}
	}
	for key, value := range answers {
		if strings.EqualFold(strings.TrimSpace(key), domain.Name) {
			if block, ok := value.(map[string]any); ok {
				return block
			}
		}
	}
	return nil
}

func parseResponses(raw any) []models.SignalingResponse {
	items, _ := raw.([]any)
	out := make([]models.SignalingResponse, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		response := stringField(m, "response")
		if response == "" {
			response = defaultResponse
		}
		out = append(out, models.SignalingResponse{
			QuestionID:      stringField(m, "question_id"),
			Response:        response,
			SupportingQuote: stringField(m, "supporting_quote"),
			Notes:           stringField(m, "notes"),
		})
	}
	return out
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func floatField(m map[string]any, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func stringSlice(raw any) []string {
	items, _ := raw.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
