package engine

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/miradorstack/mirador-rob/internal/models"
)

const truncationMarker = "\n\n[...text truncated...]\n\n"

const assessmentSystemPrompt = `You are an expert systematic review methodologist performing risk of bias assessments.
Evaluate the study against each bias domain and its signaling questions and give evidence-based judgments.

Rules:
1. Judge only from what the manuscript states explicitly.
2. Support every judgment with verbatim quotes.
3. Answer "No Information" when the text is silent; do not assume.
4. Follow the guidance attached to each signaling question.
5. Apply the criteria consistently across domains.

For every domain answer each signaling question from the text, cite supporting quotes,
reach a domain judgment using the tool's algorithm, explain the rationale, and state
how confident you are in the judgment.`

const assessmentUserPrompt = `Assess risk of bias for the study below with the %s.

Title: %s
Authors: %s
Year: %s

Study text:
%s

Domains:
%s

For each domain answer the signaling questions with evidence, quote the manuscript verbatim,
decide the domain judgment from the answers and explain the rationale.

Respond with a JSON object:
{
  "domain_assessments": {
    "<domain name>": {
      "signaling_responses": [
        {"question_id": "<id>", "response": "<one of the listed options>", "supporting_quote": "<verbatim quote or null>", "notes": "<optional>"}
      ],
      "judgment": "Low" | "Some concerns" | "High" | "Moderate" | "Serious" | "Critical" | "Unclear" | "No information",
      "confidence": 0.0 to 1.0,
      "rationale": "<explanation>",
      "supporting_quotes": ["<quote>"]
    }
  },
  "overall_judgment": "<overall judgment>",
  "overall_rationale": "<explanation>"
}`

// systemPrompt appends the tool guidance to the base instructions.
func systemPrompt(guidance string) string {
	return assessmentSystemPrompt + "\n\n" + guidance
}

func userPrompt(tmpl *models.Template, study models.Study, studyText string) string {
	year := "Unknown"
	if study.Year > 0 {
		year = strconv.Itoa(study.Year)
	}
	return fmt.Sprintf(assessmentUserPrompt,
		tmpl.Name,
		orUnknown(study.Title),
		orUnknown(study.Authors),
		year,
		studyText,
		renderDomains(tmpl),
	)
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}

// renderDomains lists domains in display order with their questions, options and
// judgment guidance.
func renderDomains(tmpl *models.Template) string {
	var b strings.Builder
	for _, d := range tmpl.OrderedDomains() {
		fmt.Fprintf(&b, "\n## %s\n", d.Name)
		fmt.Fprintf(&b, "Description: %s\n", d.Description)
		b.WriteString("\nSignaling Questions:\n")
		for i, q := range d.SignalingQuestions {
			fmt.Fprintf(&b, "  %d. [%s] %s\n", i+1, q.ID, q.Text)
			if q.Guidance != "" {
				fmt.Fprintf(&b, "     Guidance: %s\n", q.Guidance)
			}
			fmt.Fprintf(&b, "     Options: %s\n", strings.Join(q.ResponseOptions, ", "))
		}
		if len(d.JudgmentGuidance) > 0 {
			b.WriteString("\nJudgment Guidance:\n")
			levels := make([]string, 0, len(d.JudgmentGuidance))
			for level := range d.JudgmentGuidance {
				levels = append(levels, level)
			}
			sort.Strings(levels)
			for _, level := range levels {
				fmt.Fprintf(&b, "  - %s: %s\n", level, d.JudgmentGuidance[level])
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// prepareStudyText joins title, abstract and full text and caps the result at
// maxChars.
func prepareStudyText(study models.Study, maxChars int) string {
	parts := make([]string, 0, 3)
	if study.Title != "" {
		parts = append(parts, "TITLE: "+study.Title)
	}
	if study.Abstract != "" {
		parts = append(parts, "\nABSTRACT:\n"+study.Abstract)
	}
	if study.FullText != "" {
		parts = append(parts, "\nFULL TEXT:\n"+study.FullText)
	}
	return truncateMiddle(strings.Join(parts, "\n"), maxChars)
}

// truncateMiddle keeps the first and last maxChars/2 runes of text.
func truncateMiddle(text string, maxChars int) string {
	if maxChars <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	half := maxChars / 2
	return string(runes[:half]) + truncationMarker + string(runes[len(runes)-half:])
}
