package detector

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/miradorstack/mirador-rob/internal/catalog"
	"github.com/miradorstack/mirador-rob/internal/models"
)

// keywordPrefixChars bounds how much full text the keyword tier reads.
const keywordPrefixChars = 5000

type designPatterns struct {
	design   string
	patterns []*regexp.Regexp
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// designKeywords is ordered; the first design wins a tie.
var designKeywords = []designPatterns{
	{catalog.DesignRCT, compile(
		`\brandomized\b`, `\brandomised\b`, `\brandom allocation\b`,
		`\brct\b`, `\brandomly assigned\b`, `\brandom assignment\b`,
		`\bdouble[- ]blind\b`, `\bsingle[- ]blind\b`, `\bplacebo[- ]controlled\b`,
	)},
	{catalog.DesignCohort, compile(
		`\bcohort\b`, `\bprospective\b`, `\bretrospective\b`,
		`\bfollow[- ]up\b`, `\blongitudinal\b`, `\bexposed.*unexposed\b`,
	)},
	{catalog.DesignCaseControl, compile(
		`\bcase[- ]control\b`, `\bcases and controls\b`,
		`\bmatched controls\b`, `\bodds ratio\b`,
	)},
	{catalog.DesignCrossSectional, compile(
		`\bcross[- ]sectional\b`, `\bprevalence\b`, `\bsurvey\b`,
		`\bpoint[- ]in[- ]time\b`,
	)},
	{catalog.DesignDiagnostic, compile(
		`\bdiagnostic accuracy\b`, `\bsensitivity.*specificity\b`,
		`\breference standard\b`, `\bindex test\b`, `\bauc\b`,
		`\broc curve\b`, `\bgold standard\b`,
	)},
	{catalog.DesignQualitative, compile(
		`\bqualitative\b`, `\bphenomenolog\w*\b`, `\bgrounded theory\b`,
		`\bethnograph\w*\b`, `\bthematic analysis\b`, `\binterviews\b`,
		`\bfocus groups?\b`,
	)},
	{catalog.DesignNonRandomized, compile(
		`\bquasi[- ]experimental\b`, `\bbefore[- ]after\b`,
		`\bpre[- ]post\b`, `\binterrupted time series\b`,
		`\bnon[- ]randomized.*intervention\b`,
	)},
}

// DesignScore is the number of distinct patterns of one design found in a text.
type DesignScore struct {
	Design string
	Score  int
}

// keywordText is title, abstract and a full-text prefix, lower-cased.
func keywordText(study models.Study) string {
	var b strings.Builder
	b.WriteString(study.Title)
	b.WriteByte(' ')
	b.WriteString(study.Abstract)
	if study.FullText != "" {
		b.WriteByte(' ')
		b.WriteString(prefix(study.FullText, keywordPrefixChars))
	}
	return strings.ToLower(b.String())
}

// Score counts each pattern at most once per design, in design order.
func Score(text string) []DesignScore {
	lower := strings.ToLower(text)
	out := make([]DesignScore, len(designKeywords))
	for i, dk := range designKeywords {
		n := 0
		for _, p := range dk.patterns {
			if p.MatchString(lower) {
				n++
			}
		}
		out[i] = DesignScore{Design: dk.design, Score: n}
	}
	return out
}

// keywordDetect accepts the best design only when it has at least two matches
// and more than double the runner-up.
func keywordDetect(study models.Study) (models.DesignResult, bool) {
	scores := Score(keywordText(study))
	best, second := 0, 0
	for i, s := range scores {
		if s.Score > scores[best].Score {
			best = i
		}
	}
	for i, s := range scores {
		if i != best && s.Score > second {
			second = s.Score
		}
	}
	top := scores[best]
	if top.Score < 2 || top.Score <= second*2 {
		return models.DesignResult{}, false
	}
	confidence := 0.6 + 0.1*float64(top.Score)
	if confidence > 0.95 {
		confidence = 0.95
	}
	return models.DesignResult{
		StudyID:         study.ID,
		Design:          top.Design,
		Confidence:      confidence,
		Reasoning:       fmt.Sprintf("Detected %d keyword matches for %s study design", top.Score, top.Design),
		RecommendedTool: catalog.ToolForDesign(top.Design),
		Method:          models.DetectionKeyword,
	}, true
}

// prefix returns at most n runes of s.
func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
