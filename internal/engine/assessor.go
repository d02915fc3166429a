// Package engine runs AI-assisted risk of bias assessments and the human
// verification workflow on top of them.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-rob/internal/cache"
	"github.com/miradorstack/mirador-rob/internal/catalog"
	"github.com/miradorstack/mirador-rob/internal/cost"
	"github.com/miradorstack/mirador-rob/internal/llm"
	"github.com/miradorstack/mirador-rob/internal/metrics"
	"github.com/miradorstack/mirador-rob/internal/models"
	"github.com/miradorstack/mirador-rob/internal/repo"
	"github.com/miradorstack/mirador-rob/internal/templates"
	"github.com/miradorstack/mirador-rob/internal/utils"
)

const (
	// DefaultMaxTextChars caps the study text sent with one prompt.
	DefaultMaxTextChars = 50000
	// DefaultAvgTextLen is assumed by EstimateCost when no average is given.
	DefaultAvgTextLen = 20000

	llmTemperature = 0.2
	llmMaxTokens   = 4000
)

// Options tunes an Assessor. Zero values select the defaults.
type Options struct {
	MaxTextChars         int
	CacheTTL             time.Duration
	UncertaintyThreshold float64
}

// ProgressFunc reports batch progress with a 0-based index before each study
// and (total, total) at the end.
type ProgressFunc func(current, total int, message string)

// BatchOptions apply to every study in an AssessBatch run.
type BatchOptions struct {
	ComparisonLabel string
	AssessorID      string
	ForceRefresh    bool
	Progress        ProgressFunc
}

// Assessor drives per-study assessment: cache or store lookup, prompt, parse,
// aggregate, persist. It assumes a single writer per project.
type Assessor struct {
	client    llm.ChatClient
	templates *templates.Manager
	store     repo.Store
	cache     cache.Provider
	tracker   *cost.Tracker
	guidance  *catalog.GuidancePack
	logger    *slog.Logger
	now       utils.Clock

	maxTextChars     int
	cacheTTL         time.Duration
	defaultThreshold float64
}

// NewAssessor wires an assessor. client, tracker and guidance may be nil; a nil
// cache disables caching.
func NewAssessor(
	client llm.ChatClient,
	tmpls *templates.Manager,
	store repo.Store,
	provider cache.Provider,
	tracker *cost.Tracker,
	guidance *catalog.GuidancePack,
	logger *slog.Logger,
	opts Options,
) *Assessor {
	if logger == nil {
		logger = slog.Default()
	}
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	if opts.MaxTextChars <= 0 {
		opts.MaxTextChars = DefaultMaxTextChars
	}
	if opts.UncertaintyThreshold <= 0 || opts.UncertaintyThreshold > 1 {
		opts.UncertaintyThreshold = models.DefaultUncertaintyThreshold
	}
	return &Assessor{
		client:           client,
		templates:        tmpls,
		store:            store,
		cache:            provider,
		tracker:          tracker,
		guidance:         guidance,
		logger:           logger,
		now:              utils.SystemClock,
		maxTextChars:     opts.MaxTextChars,
		cacheTTL:         opts.CacheTTL,
		defaultThreshold: opts.UncertaintyThreshold,
	}
}

// Assess returns the assessment of req.Study under the project's template for
// req.Tool. Unless ForceRefresh is set a cached or stored result is returned
// without an LLM call. A budget or persistence error leaves nothing saved or cached.
func (a *Assessor) Assess(ctx context.Context, req models.AssessRequest) (*models.Assessment, error) {
	if req.Study.ID == "" {
		return nil, utils.NewAppError("engine.Assess", "study id is required", nil)
	}
	settings, err := a.Settings(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}
	if !settings.ToolEnabled(req.Tool) {
		return nil, fmt.Errorf("%w: %s", models.ErrToolDisabled, req.Tool)
	}
	tmpl, err := a.templates.Get(ctx, req.ProjectID, req.Tool)
	if err != nil {
		return nil, err
	}

	key := repo.AssessmentKey{
		ProjectID:       req.ProjectID,
		StudyID:         req.Study.ID,
		TemplateID:      tmpl.ID,
		ComparisonLabel: req.ComparisonLabel,
	}
	cacheKey := assessmentCacheKey(key)

	var previous *models.Assessment
	if !req.ForceRefresh {
		if cached, ok := a.fromCache(ctx, cacheKey); ok {
			return cached, nil
		}
	}
	stored, err := a.store.GetAssessment(ctx, key)
	switch {
	case err == nil && !req.ForceRefresh:
		a.toCache(ctx, cacheKey, stored)
		return stored, nil
	case err == nil:
		previous = stored
	case !errors.Is(err, repo.ErrNotFound):
		return nil, utils.NewAppError("engine.Assess", "load stored assessment", err)
	}

	if a.client == nil {
		return nil, llm.ErrNoClient
	}

	studyText := prepareStudyText(req.Study, a.maxTextChars)
	resp, err := a.client.Chat(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt(a.guidance.For(tmpl.ToolType))},
			{Role: llm.RoleUser, Content: userPrompt(tmpl, req.Study, studyText)},
		},
		Temperature: llmTemperature,
		MaxTokens:   llmMaxTokens,
		JSONMode:    true,
	})
	if err != nil {
		return nil, utils.NewAppError("engine.Assess", "assessment LLM call failed", err)
	}
	a.logger.Debug("assessment response received",
		slog.String("study_id", req.Study.ID),
		slog.String("model", resp.Model),
		slog.Int("input_tokens", resp.InputTokens),
		slog.Int("output_tokens", resp.OutputTokens))

	data := llm.ExtractJSON(resp.Content)
	if data == nil {
		a.logger.Warn("assessment response was not JSON; defaulting every domain",
			slog.String("study_id", req.Study.ID))
	}
	parsed := parseAssessment(tmpl, data, settings.Threshold())

	now := a.now().UTC().Truncate(time.Millisecond)
	assessment := &models.Assessment{
		ID:                  uuid.NewString(),
		ProjectID:           req.ProjectID,
		StudyID:             req.Study.ID,
		TemplateID:          tmpl.ID,
		ToolType:            tmpl.ToolType,
		DetectedStudyDesign: req.DetectedDesign,
		ComparisonLabel:     req.ComparisonLabel,
		DomainJudgments:     parsed.domains,
		OverallRationale:    parsed.overallRationale,
		AICost:              resp.Cost,
		AIModel:             resp.Model,
		AssessorID:          req.AssessorID,
		Status:              models.StatusDraft,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if previous != nil {
		assessment.ID = previous.ID
		assessment.CreatedAt = previous.CreatedAt
	}
	assessment.OverallJudgment = Aggregate(tmpl.ToolType, assessment.Judgments())

	if a.tracker != nil {
		if err := a.tracker.AddCost(cost.OperationRiskOfBias, resp.InputTokens, resp.OutputTokens, resp.Cost, req.Study.ID, resp.Model); err != nil {
			return nil, err
		}
	}
	metrics.ObserveLLMUsage(string(cost.OperationRiskOfBias), resp.Model, resp.InputTokens, resp.OutputTokens, resp.Cost)

	if err := a.store.SaveAssessment(ctx, assessment); err != nil {
		return nil, utils.NewAppError("engine.Assess", "save assessment", err)
	}
	if err := a.store.AppendAudit(ctx, models.AuditEntry{
		ID:           uuid.NewString(),
		ProjectID:    req.ProjectID,
		AssessmentID: assessment.ID,
		StudyID:      req.Study.ID,
		Action:       models.AuditAIGenerated,
		NewJudgment:  string(assessment.OverallJudgment),
		UserID:       req.AssessorID,
		Notes:        "AI assessment using " + tmpl.Name,
		Timestamp:    now,
	}); err != nil {
		return nil, utils.NewAppError("engine.Assess", "append audit entry", err)
	}
	a.toCache(ctx, cacheKey, assessment)
	metrics.ObserveJudgment(string(tmpl.ToolType), string(assessment.OverallJudgment), assessment.FlaggedCount())

	a.logger.Info("study assessed",
		slog.String("project_id", req.ProjectID),
		slog.String("study_id", req.Study.ID),
		slog.String("tool", string(tmpl.ToolType)),
		slog.String("overall", string(assessment.OverallJudgment)),
		slog.Int("flagged", assessment.FlaggedCount()),
		slog.Float64("cost", resp.Cost))
	return assessment, nil
}

// AssessBatch assesses studies in order. When the budget is exhausted it stops
// and returns the processed prefix with Completed=false and a nil error. Any
// other error is returned with the prefix assessed so far.
func (a *Assessor) AssessBatch(ctx context.Context, projectID string, tool models.ToolType, studies []models.Study, opts BatchOptions) (models.BatchResult, error) {
	total := len(studies)
	result := models.BatchResult{
		Assessments: make([]*models.Assessment, 0, total),
		Total:       total,
	}
	progress := opts.Progress
	if progress == nil {
		progress = func(int, int, string) {}
	}

	for i, study := range studies {
		progress(i, total, fmt.Sprintf("Assessing: %s...", prefix(study.Title, 40)))
		assessment, err := a.Assess(ctx, models.AssessRequest{
			ProjectID:       projectID,
			Study:           study,
			Tool:            tool,
			ComparisonLabel: opts.ComparisonLabel,
			AssessorID:      opts.AssessorID,
			ForceRefresh:    opts.ForceRefresh,
		})
		if err != nil {
			result.Processed = i
			result.Skipped = total - i
			if errors.Is(err, cost.ErrBudgetExceeded) {
				progress(i, total, "Stopped: budget limit exceeded")
				metrics.ObserveBatchStop("assessment")
				a.logger.Warn("batch assessment stopped by budget",
					slog.String("project_id", projectID),
					slog.Int("processed", i),
					slog.Int("total", total))
				return result, nil
			}
			return result, err
		}
		result.Assessments = append(result.Assessments, assessment)
	}
	result.Processed = total
	result.Completed = true
	progress(total, total, "Assessment complete")
	return result, nil
}

// Verify records a human decision on one domain, recomputes the overall
// judgment and marks the assessment reviewed once every domain is verified.
func (a *Assessor) Verify(ctx context.Context, req models.VerifyRequest) (*models.Assessment, error) {
	if !req.Judgment.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidJudgment, req.Judgment)
	}
	assessment, err := a.store.GetAssessmentByID(ctx, req.ProjectID, req.AssessmentID)
	if err != nil {
		return nil, err
	}
	dj := assessment.Domain(req.DomainID)
	if dj == nil {
		return nil, fmt.Errorf("%w: %s in assessment %s", models.ErrDomainNotFound, req.DomainID, req.AssessmentID)
	}

	previous := dj.Judgment
	suggested := dj.AISuggestedJudgment
	if suggested == "" {
		suggested = previous
	}
	action := models.AuditHumanVerify
	if req.Judgment != suggested {
		action = models.AuditHumanEdit
		dj.HumanOverrideNotes = req.OverrideNotes
	}
	dj.Judgment = req.Judgment
	dj.IsHumanVerified = true
	dj.IsFlaggedUncertain = false

	now := a.now().UTC().Truncate(time.Millisecond)

	assessment.OverallJudgment = Aggregate(assessment.ToolType, assessment.Judgments())
	if assessment.AllVerified() {
		assessment.Status = models.StatusReviewed
	}
	if req.UserID != "" {
		assessment.ReviewerID = req.UserID
	}
	assessment.UpdatedAt = now

	if err := a.store.SaveAssessment(ctx, assessment); err != nil {
		return nil, utils.NewAppError("engine.Verify", "save assessment", err)
	}
	if err := a.store.AppendAudit(ctx, models.AuditEntry{
		ID:               uuid.NewString(),
		ProjectID:        assessment.ProjectID,
		AssessmentID:     assessment.ID,
		StudyID:          assessment.StudyID,
		Action:           action,
		DomainID:         req.DomainID,
		PreviousJudgment: string(previous),
		NewJudgment:      string(req.Judgment),
		UserID:           req.UserID,
		Notes:            req.OverrideNotes,
		Timestamp:        now,
	}); err != nil {
		return nil, utils.NewAppError("engine.Verify", "append audit entry", err)
	}
	a.toCache(ctx, assessmentCacheKey(repo.KeyOf(assessment)), assessment)
	metrics.ObserveVerification(action)

	a.logger.Info("domain verified",
		slog.String("assessment_id", assessment.ID),
		slog.String("domain_id", req.DomainID),
		slog.String("action", action),
		slog.String("status", assessment.Status))
	return assessment, nil
}

// AuditTrail returns the audit entries of a project's assessment in insertion
// order. An assessment owned by another project is reported as not found.
func (a *Assessor) AuditTrail(ctx context.Context, projectID, assessmentID string) ([]models.AuditEntry, error) {
	if _, err := a.store.GetAssessmentByID(ctx, projectID, assessmentID); err != nil {
		return nil, err
	}
	return a.store.ListAudit(ctx, projectID, assessmentID)
}

// EstimateCost projects the spend for assessing n studies of avgTextLen
// characters with the project's template for tool.
func (a *Assessor) EstimateCost(ctx context.Context, projectID string, tool models.ToolType, n, avgTextLen int) (cost.Estimate, error) {
	tmpl, err := a.templates.Get(ctx, projectID, tool)
	if err != nil {
		return cost.Estimate{}, err
	}
	if avgTextLen <= 0 {
		avgTextLen = DefaultAvgTextLen
	}
	input := min(avgTextLen/4, a.maxTextChars/4) + 1000
	output := 200*len(tmpl.Domains) + 200
	var pricer cost.Pricer
	if a.client != nil {
		pricer = a.client
	}
	return cost.EstimateFor(pricer, cost.OperationRiskOfBias, n, input, output), nil
}

// ProjectStatistics summarises every stored assessment of a project.
func (a *Assessor) ProjectStatistics(ctx context.Context, projectID string) (models.Statistics, error) {
	list, err := a.store.ListAssessments(ctx, projectID)
	if err != nil {
		return models.Statistics{}, err
	}
	return Statistics(list), nil
}

// ListAssessments returns the project's stored assessments.
func (a *Assessor) ListAssessments(ctx context.Context, projectID string) ([]*models.Assessment, error) {
	return a.store.ListAssessments(ctx, projectID)
}

// Settings loads the project's settings, creating defaults on first use.
func (a *Assessor) Settings(ctx context.Context, projectID string) (models.ProjectSettings, error) {
	settings, err := a.store.GetSettings(ctx, projectID)
	if err == nil {
		return settings, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return models.ProjectSettings{}, utils.NewAppError("engine.Settings", "load project settings", err)
	}
	settings = models.DefaultProjectSettings(projectID)
	settings.SetThreshold(a.defaultThreshold)
	if err := a.store.SaveSettings(ctx, settings); err != nil {
		return models.ProjectSettings{}, utils.NewAppError("engine.Settings", "save default settings", err)
	}
	return settings, nil
}

// UpdateSettings validates and stores project settings.
func (a *Assessor) UpdateSettings(ctx context.Context, settings models.ProjectSettings) error {
	for _, tool := range settings.EnabledTools {
		if !tool.Valid() {
			return fmt.Errorf("%w: %q", models.ErrUnknownTool, tool)
		}
	}
	if t := settings.UncertaintyThreshold; t != nil && (*t < 0 || *t > 1) {
		return utils.NewAppError("engine.UpdateSettings", fmt.Sprintf("uncertainty threshold %v outside [0,1]", *t), nil)
	}
	return a.store.SaveSettings(ctx, settings)
}

// Statistics summarises a set of assessments.
func Statistics(assessments []*models.Assessment) models.Statistics {
	stats := models.Statistics{
		TotalStudies:      len(assessments),
		ByOverallJudgment: make(map[models.JudgmentLevel]int),
		ByDomain:          make(map[string]map[models.JudgmentLevel]int),
	}
	for _, asm := range assessments {
		stats.ByOverallJudgment[asm.OverallJudgment]++
		for _, dj := range asm.DomainJudgments {
			dist, ok := stats.ByDomain[dj.DomainName]
			if !ok {
				dist = make(map[models.JudgmentLevel]int)
				stats.ByDomain[dj.DomainName] = dist
			}
			dist[dj.Judgment]++
			if dj.IsFlaggedUncertain {
				stats.FlaggedUncertain++
			}
			if dj.IsHumanVerified {
				stats.VerifiedCount++
			}
			stats.TotalDomainAssessments++
		}
	}
	if stats.TotalDomainAssessments > 0 {
		stats.VerificationRate = float64(stats.VerifiedCount) / float64(stats.TotalDomainAssessments)
	}
	return stats
}

func (a *Assessor) fromCache(ctx context.Context, key string) (*models.Assessment, bool) {
	data, err := a.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			a.logger.Warn("assessment cache read failed", slog.String("key", key), slog.Any("error", err))
		}
		return nil, false
	}
	var out models.Assessment
	if err := json.Unmarshal(data, &out); err != nil {
		a.logger.Warn("discarding undecodable cached assessment", slog.String("key", key), slog.Any("error", err))
		_ = a.cache.Del(ctx, key)
		return nil, false
	}
	return &out, true
}

func (a *Assessor) toCache(ctx context.Context, key string, assessment *models.Assessment) {
	data, err := json.Marshal(assessment)
	if err != nil {
		a.logger.Warn("encode assessment for cache", slog.Any("error", err))
		return
	}
	if err := a.cache.Set(ctx, key, data, a.cacheTTL); err != nil {
		a.logger.Warn("assessment cache write failed", slog.String("key", key), slog.Any("error", err))
	}
}

// assessmentCacheKey hashes the assessment identity. The project is included so
// a shared cache never serves one project's result to another.
func assessmentCacheKey(key repo.AssessmentKey) string {
	sum := sha256.Sum256([]byte(key.ProjectID + "|" + key.StudyID + "|" + key.TemplateID + "|" + key.ComparisonLabel))
	return cache.Key("assessment", hex.EncodeToString(sum[:]))
}

func prefix(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
