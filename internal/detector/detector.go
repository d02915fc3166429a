// Package detector classifies study designs and recommends an assessment tool.
package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/miradorstack/mirador-rob/internal/catalog"
	"github.com/miradorstack/mirador-rob/internal/cost"
	"github.com/miradorstack/mirador-rob/internal/llm"
	"github.com/miradorstack/mirador-rob/internal/metrics"
	"github.com/miradorstack/mirador-rob/internal/models"
)

const (
	llmExcerptChars = 8000
	llmTemperature  = 0.2
	llmMaxTokens    = 500
	// fallbackConfidence marks a default recommendation made without evidence.
	fallbackConfidence = 0.3
)

const detectionSystemPrompt = `You are an expert systematic review methodologist.
Identify the design of the research study described below so the correct risk of bias tool can be chosen.

Classify the study as one of:
- RCT: randomised controlled trial, including parallel, cluster and crossover trials
- Non-randomized interventional: quasi-experimental and before-after studies
- Cohort: prospective or retrospective cohorts
- Case-control: including nested case-control
- Cross-sectional: including prevalence studies
- Diagnostic accuracy: including validation studies
- Qualitative: phenomenology, grounded theory, ethnography

Distinguish carefully between random allocation and its absence, follow-up over time and a single time point,
and comparisons of cases with controls versus exposed with unexposed groups.`

const detectionUserPrompt = `Determine the design of this study.

Title: %s
Abstract: %s
%s
Respond with a JSON object:
{
  "study_design": "RCT" | "Non-randomized interventional" | "Cohort" | "Case-control" | "Cross-sectional" | "Diagnostic accuracy" | "Qualitative" | "Other",
  "confidence": 0.0 to 1.0,
  "reasoning": "key features that led to the classification",
  "recommended_tool": "rob_2" | "robins_i" | "nos_cohort" | "nos_case_control" | "nos_cross_sectional" | "quadas_2" | "jbi_rct" | "jbi_cohort" | "jbi_qualitative"
}`

// ProgressFunc is called before each study of a batch with a 1-based index.
type ProgressFunc func(current, total int)

// Detector runs the keyword tier and, when that is ambiguous, the LLM tier.
type Detector struct {
	client  llm.ChatClient
	tracker *cost.Tracker
	logger  *slog.Logger
}

// New builds a detector. client and tracker may be nil.
func New(client llm.ChatClient, tracker *cost.Tracker, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{client: client, tracker: tracker, logger: logger}
}

// Detect classifies one study. Only a budget error is returned; LLM transport and
// parse failures degrade to the fallback result.
func (d *Detector) Detect(ctx context.Context, study models.Study) (models.DesignResult, error) {
	result, err := d.detect(ctx, study)
	if err != nil {
		return result, err
	}
	metrics.ObserveDetection(result.Method)
	return result, nil
}

func (d *Detector) detect(ctx context.Context, study models.Study) (models.DesignResult, error) {
	if result, ok := keywordDetect(study); ok {
		return result, nil
	}
	if d.client == nil {
		return fallback(study.ID, "Could not determine study design: no LLM available"), nil
	}
	return d.detectWithLLM(ctx, study)
}

func (d *Detector) detectWithLLM(ctx context.Context, study models.Study) (models.DesignResult, error) {
	excerpt := ""
	if study.FullText != "" {
		excerpt = "\nFull text excerpt (methods):\n" + prefix(study.FullText, llmExcerptChars) + "\n"
	}
	title := study.Title
	if title == "" {
		title = "Unknown"
	}
	abstract := study.Abstract
	if abstract == "" {
		abstract = "Not available"
	}

	resp, err := d.client.Chat(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: detectionSystemPrompt},
			{Role: llm.RoleUser, Content: fmt.Sprintf(detectionUserPrompt, title, abstract, excerpt)},
		},
		Temperature: llmTemperature,
		MaxTokens:   llmMaxTokens,
		JSONMode:    true,
	})
	if err != nil {
		if ctx.Err() != nil {
			return models.DesignResult{}, ctx.Err()
		}
		d.logger.Warn("design detection LLM call failed",
			slog.String("study_id", study.ID),
			slog.Any("error", err))
		return fallback(study.ID, fmt.Sprintf("LLM detection failed: %v", err)), nil
	}

	if d.tracker != nil {
		if err := d.tracker.AddCost(cost.OperationDesignDetection, resp.InputTokens, resp.OutputTokens, resp.Cost, study.ID, resp.Model); err != nil {
			return models.DesignResult{}, err
		}
	}
	metrics.ObserveLLMUsage(string(cost.OperationDesignDetection), resp.Model, resp.InputTokens, resp.OutputTokens, resp.Cost)

	data := llm.ExtractJSON(resp.Content)
	if data == nil {
		return fallback(study.ID, "LLM detection returned no parseable JSON"), nil
	}
	return parseDetection(study.ID, data), nil
}

func parseDetection(studyID string, data map[string]any) models.DesignResult {
	design := stringField(data, "study_design")
	if design == "" {
		design = catalog.DesignUnknown
	}
	reasoning := stringField(data, "reasoning")
	if reasoning == "" {
		reasoning = "LLM-based detection"
	}
	confidence, ok := floatField(data, "confidence")
	if !ok {
		confidence = 0.5
	}
	tool, err := models.ParseToolType(stringField(data, "recommended_tool"))
	if err != nil || tool == models.ToolCustom {
		tool = catalog.ToolForDesign(catalog.NormalizeDesign(design))
	}
	return models.DesignResult{
		StudyID:         studyID,
		Design:          design,
		Confidence:      clamp01(confidence),
		Reasoning:       reasoning,
		RecommendedTool: tool,
		Method:          models.DetectionLLM,
	}
}

func fallback(studyID, reasoning string) models.DesignResult {
	return models.DesignResult{
		StudyID:         studyID,
		Design:          catalog.DesignUnknown,
		Confidence:      fallbackConfidence,
		Reasoning:       reasoning,
		RecommendedTool: models.ToolNOSCohort,
		Method:          models.DetectionFallback,
	}
}

// DetectBatch classifies studies in order and aggregates the results. On a
// budget error it returns the aggregate of the studies processed so far along
// with the error.
func (d *Detector) DetectBatch(ctx context.Context, studies []models.Study, progress ProgressFunc) (models.BatchDetection, error) {
	batch := models.BatchDetection{
		Total:               len(studies),
		DesignDistribution:  make(map[string]int),
		ToolRecommendations: make(map[models.ToolType]int),
		Results:             make([]models.DesignResult, 0, len(studies)),
	}
	var runErr error
	for i, study := range studies {
		if progress != nil {
			progress(i+1, len(studies))
		}
		result, err := d.Detect(ctx, study)
		if err != nil {
			if errors.Is(err, cost.ErrBudgetExceeded) {
				metrics.ObserveBatchStop("detection")
				d.logger.Warn("design detection stopped by budget",
					slog.Int("processed", i),
					slog.Int("total", len(studies)))
			}
			runErr = err
			break
		}
		batch.Results = append(batch.Results, result)
		batch.DesignDistribution[result.Design]++
		batch.ToolRecommendations[result.RecommendedTool]++
	}
	batch.SuggestedPrimaryTool = primaryTool(batch.Results)
	batch.MixedDesigns = len(batch.DesignDistribution) > 1
	return batch, runErr
}

// primaryTool is the most recommended tool; ties go to the one recommended first.
func primaryTool(results []models.DesignResult) models.ToolType {
	counts := make(map[models.ToolType]int)
	var order []models.ToolType
	for _, r := range results {
		if counts[r.RecommendedTool] == 0 {
			order = append(order, r.RecommendedTool)
		}
		counts[r.RecommendedTool]++
	}
	var best models.ToolType
	for _, tool := range order {
		if best == "" || counts[tool] > counts[best] {
			best = tool
		}
	}
	return best
}

func stringField(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func floatField(data map[string]any, key string) (float64, bool) {
	switch v := data[key].(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
