package models

import "strings"

// JudgmentLevel is the closed severity enumeration used for domain and overall judgments.
type JudgmentLevel string

const (
	JudgmentLow           JudgmentLevel = "low"
	JudgmentSomeConcerns  JudgmentLevel = "some_concerns"
	JudgmentModerate      JudgmentLevel = "moderate"
	JudgmentSerious       JudgmentLevel = "serious"
	JudgmentCritical      JudgmentLevel = "critical"
	JudgmentHigh          JudgmentLevel = "high"
	JudgmentUnclear       JudgmentLevel = "unclear"
	JudgmentNotApplicable JudgmentLevel = "not_applicable"
	JudgmentNoInformation JudgmentLevel = "no_information"
)

var judgmentLabels = map[JudgmentLevel]string{
	JudgmentLow:           "Low Risk",
	JudgmentSomeConcerns:  "Some Concerns",
	JudgmentModerate:      "Moderate",
	JudgmentSerious:       "Serious",
	JudgmentCritical:      "Critical",
	JudgmentHigh:          "High Risk",
	JudgmentUnclear:       "Unclear",
	JudgmentNotApplicable: "N/A",
	JudgmentNoInformation: "No Info",
}

// judgmentSynonyms is keyed by the normalised (lower-case, space separated) form.
var judgmentSynonyms = map[string]JudgmentLevel{
	"low":            JudgmentLow,
	"low risk":       JudgmentLow,
	"some concerns":  JudgmentSomeConcerns,
	"moderate":       JudgmentModerate,
	"serious":        JudgmentSerious,
	"critical":       JudgmentCritical,
	"high":           JudgmentHigh,
	"high risk":      JudgmentHigh,
	"unclear":        JudgmentUnclear,
	"not applicable": JudgmentNotApplicable,
	"no information": JudgmentNoInformation,
}

// Label returns the display label for the judgment.
func (j JudgmentLevel) Label() string {
	if label, ok := judgmentLabels[j]; ok {
		return label
	}
	return string(j)
}

// Valid reports whether j is one of the enumerated levels.
func (j JudgmentLevel) Valid() bool {
	_, ok := judgmentLabels[j]
	return ok
}

// NormalizeJudgment maps free text onto the closed enumeration. Unknown values map to unclear.
func NormalizeJudgment(raw string) JudgmentLevel {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer("_", " ", "-", " ").Replace(key)
	key = strings.Join(strings.Fields(key), " ")
	if level, ok := judgmentSynonyms[key]; ok {
		return level
	}
	return JudgmentUnclear
}
