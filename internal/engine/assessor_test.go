package engine

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-rob/internal/cache"
	"github.com/miradorstack/mirador-rob/internal/catalog"
	"github.com/miradorstack/mirador-rob/internal/cost"
	"github.com/miradorstack/mirador-rob/internal/llm/testutil"
	"github.com/miradorstack/mirador-rob/internal/models"
	"github.com/miradorstack/mirador-rob/internal/repo"
	"github.com/miradorstack/mirador-rob/internal/templates"
)

const project = "proj-1"

type answer struct {
	Judgment   string  `json:"judgment"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

type fixture struct {
	assessor *Assessor
	client   *testutil.MockClient
	store    repo.Store
	cache    *cache.MemoryProvider
	tracker  *cost.Tracker
	tmpls    *templates.Manager
}

func newFixture(t *testing.T, client *testutil.MockClient, store repo.Store, limit float64) *fixture {
	t.Helper()
	if store == nil {
		store = repo.NewMemoryStore()
	}
	guidance, err := catalog.NewGuidancePack("", nil)
	require.NoError(t, err)
	tmpls := templates.NewManager(catalog.MustDefault(), store, nil)
	provider := cache.NewMemoryProvider()
	tracker := cost.NewTracker(limit)
	a := NewAssessor(client, tmpls, store, provider, tracker, guidance, nil, Options{CacheTTL: time.Hour})
	a.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return &fixture{assessor: a, client: client, store: store, cache: provider, tracker: tracker, tmpls: tmpls}
}

// responseFor answers every domain of tool with Low at confidence 0.9 unless
// overridden by domain index.
func responseFor(t *testing.T, tool models.ToolType, overrides map[int]answer) string {
	t.Helper()
	tmpl, err := catalog.MustDefault().Builtin(tool)
	require.NoError(t, err)
	domains := make(map[string]any, len(tmpl.Domains))
	for i, d := range tmpl.Domains {
		ans, ok := overrides[i]
		if !ok {
			ans = answer{Judgment: "Low", Confidence: 0.9, Rationale: "adequate"}
		}
		domains[d.Name] = map[string]any{
			"signaling_responses": []map[string]any{
				{"question_id": d.SignalingQuestions[0].ID, "response": "Yes", "supporting_quote": "quoted"},
				{"question_id": "unanswered"},
			},
			"judgment":          ans.Judgment,
			"confidence":        ans.Confidence,
			"rationale":         ans.Rationale,
			"supporting_quotes": []string{"quote one", ""},
		}
	}
	body, err := json.Marshal(map[string]any{
		"domain_assessments": domains,
		"overall_judgment":   "low",
		"overall_rationale":  "overall reasoning",
	})
	require.NoError(t, err)
	return string(body)
}

func sampleStudy(id string) models.Study {
	return models.Study{
		ID:       id,
		Title:    "Drug X versus placebo in adults with condition Y",
		Abstract: "We randomised 200 adults.",
		FullText: "Methods: computer-generated allocation sequence.",
		Authors:  "Doe J, Roe R",
		Year:     2021,
	}
}

func TestAssessParsesAndAggregates(t *testing.T) {
	client := testutil.NewMockClient(responseFor(t, models.ToolRoB2, map[int]answer{
		0: {Judgment: "High risk", Confidence: 0.85},
		3: {Judgment: "some_concerns", Confidence: 0.4},
	}))
	f := newFixture(t, client, nil, 0)

	got, err := f.assessor.Assess(context.Background(), models.AssessRequest{
		ProjectID: project,
		Study:     sampleStudy("s1"),
		Tool:      models.ToolRoB2,
	})
	require.NoError(t, err)

	require.Len(t, got.DomainJudgments, 5)
	assert.Equal(t, models.JudgmentHigh, got.DomainJudgments[0].Judgment)
	assert.Equal(t, models.JudgmentHigh, got.DomainJudgments[0].AISuggestedJudgment)
	assert.False(t, got.DomainJudgments[0].IsFlaggedUncertain)
	assert.Equal(t, models.JudgmentSomeConcerns, got.DomainJudgments[3].Judgment)
	assert.True(t, got.DomainJudgments[3].IsFlaggedUncertain)
	assert.Equal(t, 1, got.FlaggedCount())
	assert.Equal(t, models.JudgmentHigh, got.OverallJudgment)
	assert.Equal(t, "overall reasoning", got.OverallRationale)
	assert.Equal(t, models.StatusDraft, got.Status)
	assert.Equal(t, "builtin-rob_2", got.TemplateID)
	assert.Equal(t, "mock-model", got.AIModel)

	responses := got.DomainJudgments[1].SignalingResponses
	require.Len(t, responses, 2)
	assert.Equal(t, "Yes", responses[0].Response)
	assert.Equal(t, "No Information", responses[1].Response)
	assert.Equal(t, []string{"quote one"}, got.DomainJudgments[1].SupportingQuotes)

	reqs := client.Requests()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].JSONMode)
	assert.Equal(t, 0.2, reqs[0].Temperature)
	assert.Equal(t, 4000, reqs[0].MaxTokens)
	assert.Contains(t, reqs[0].Messages[0].Content, "RoB 2")
	assert.Contains(t, reqs[0].Messages[1].Content, "Authors: Doe J, Roe R")
	assert.Contains(t, reqs[0].Messages[1].Content, "Year: 2021")

	trail, err := f.assessor.AuditTrail(context.Background(), project, got.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, models.AuditAIGenerated, trail[0].Action)
	assert.Equal(t, "high", trail[0].NewJudgment)
	assert.Equal(t, "AI assessment using Cochrane Risk of Bias 2 (RoB 2)", trail[0].Notes)

	assert.Len(t, f.tracker.EntriesForStudy("s1"), 1)
}

func TestAssessCachedResultIsByteIdentical(t *testing.T) {
	client := testutil.NewMockClient(responseFor(t, models.ToolRoB2, nil))
	f := newFixture(t, client, nil, 0)
	req := models.AssessRequest{ProjectID: project, Study: sampleStudy("s1"), Tool: models.ToolRoB2}

	first, err := f.assessor.Assess(context.Background(), req)
	require.NoError(t, err)
	second, err := f.assessor.Assess(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, client.CallCount())
	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(firstJSON), string(secondJSON))

	// A fresh process rebuilds from the durable store.
	restarted := newFixture(t, client, f.store, 0)
	third, err := restarted.assessor.Assess(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, client.CallCount())
	thirdJSON, err := json.Marshal(third)
	require.NoError(t, err)
	assert.Equal(t, string(firstJSON), string(thirdJSON))
	assert.Equal(t, 1, restarted.cache.Len())
}

func TestAssessRestartWithUnreadableReplyIsByteIdentical(t *testing.T) {
	client := testutil.NewMockClient("not json at all")
	f := newFixture(t, client, nil, 0)
	req := models.AssessRequest{ProjectID: project, Study: sampleStudy("s1"), Tool: models.ToolRoB2}

	first, err := f.assessor.Assess(context.Background(), req)
	require.NoError(t, err)
	require.Empty(t, first.DomainJudgments[0].SignalingResponses)

	restarted := newFixture(t, client, f.store, 0)
	second, err := restarted.assessor.Assess(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, client.CallCount())

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(firstJSON), string(secondJSON))
	assert.Contains(t, string(secondJSON), `"signaling_responses":[]`)
}

func TestAssessComparisonLabelsAreDistinct(t *testing.T) {
	client := testutil.NewMockClient(responseFor(t, models.ToolRoB2, nil))
	f := newFixture(t, client, nil, 0)

	a, err := f.assessor.Assess(context.Background(), models.AssessRequest{ProjectID: project, Study: sampleStudy("s1"), Tool: models.ToolRoB2, ComparisonLabel: "A vs B"})
	require.NoError(t, err)
	b, err := f.assessor.Assess(context.Background(), models.AssessRequest{ProjectID: project, Study: sampleStudy("s1"), Tool: models.ToolRoB2, ComparisonLabel: "A vs C"})
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, client.CallCount())
}

func TestAssessForceRefreshKeepsIdentity(t *testing.T) {
	client := testutil.NewMockClient(
		responseFor(t, models.ToolRoB2, nil),
		responseFor(t, models.ToolRoB2, map[int]answer{2: {Judgment: "High", Confidence: 0.9}}),
	)
	f := newFixture(t, client, nil, 0)
	req := models.AssessRequest{ProjectID: project, Study: sampleStudy("s1"), Tool: models.ToolRoB2}

	first, err := f.assessor.Assess(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.JudgmentLow, first.OverallJudgment)

	req.ForceRefresh = true
	refreshed, err := f.assessor.Assess(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, client.CallCount())
	assert.Equal(t, first.ID, refreshed.ID)
	assert.Equal(t, models.JudgmentHigh, refreshed.OverallJudgment)

	req.ForceRefresh = false
	cached, err := f.assessor.Assess(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.JudgmentHigh, cached.OverallJudgment)

	list, err := f.store.ListAssessments(context.Background(), project)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAssessMalformedResponseDefaultsDomains(t *testing.T) {
	client := testutil.NewMockClient("I am unable to produce JSON today.")
	f := newFixture(t, client, nil, 0)

	got, err := f.assessor.Assess(context.Background(), models.AssessRequest{ProjectID: project, Study: sampleStudy("s1"), Tool: models.ToolQUADAS2})
	require.NoError(t, err)
	require.Len(t, got.DomainJudgments, 4)
	for _, dj := range got.DomainJudgments {
		assert.Equal(t, models.JudgmentUnclear, dj.Judgment)
		assert.Equal(t, 0.5, dj.AIConfidence)
		assert.True(t, dj.IsFlaggedUncertain)
		assert.Empty(t, dj.SignalingResponses)
	}
	assert.Equal(t, models.JudgmentUnclear, got.OverallJudgment)
}

func TestAssessRecoversEmbeddedJSON(t *testing.T) {
	body := responseFor(t, models.ToolRoB2, map[int]answer{1: {Judgment: "Some Concerns", Confidence: 0.8}})
	client := testutil.NewMockClient("Here is the assessment:\n```json\n" + body + "\n```")
	f := newFixture(t, client, nil, 0)

	got, err := f.assessor.Assess(context.Background(), models.AssessRequest{ProjectID: project, Study: sampleStudy("s1"), Tool: models.ToolRoB2})
	require.NoError(t, err)
	assert.Equal(t, models.JudgmentSomeConcerns, got.OverallJudgment)
}

func TestAssessBudgetErrorLeavesNoState(t *testing.T) {
	client := testutil.NewMockClient(responseFor(t, models.ToolRoB2, nil))
	client.PricePerToken = 0.001
	f := newFixture(t, client, nil, 1.0)

	_, err := f.assessor.Assess(context.Background(), models.AssessRequest{ProjectID: project, Study: sampleStudy("s1"), Tool: models.ToolRoB2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, cost.ErrBudgetExceeded))

	list, err := f.store.ListAssessments(context.Background(), project)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, f.cache.Len())
}

// failingSaveStore rejects assessment writes while fail is set and counts
// audit appends.
type failingSaveStore struct {
	*repo.MemoryStore
	fail    bool
	appends int
}

func (s *failingSaveStore) SaveAssessment(ctx context.Context, a *models.Assessment) error {
	if s.fail {
		return errors.New("disk full")
	}
	return s.MemoryStore.SaveAssessment(ctx, a)
}

func (s *failingSaveStore) AppendAudit(ctx context.Context, entry models.AuditEntry) error {
	s.appends++
	return s.MemoryStore.AppendAudit(ctx, entry)
}

func TestAssessSaveErrorPropagates(t *testing.T) {
	client := testutil.NewMockClient(responseFor(t, models.ToolRoB2, nil))
	store := &failingSaveStore{MemoryStore: repo.NewMemoryStore(), fail: true}
	f := newFixture(t, client, store, 0)

	_, err := f.assessor.Assess(context.Background(), models.AssessRequest{ProjectID: project, Study: sampleStudy("s1"), Tool: models.ToolRoB2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Zero(t, f.cache.Len())
	assert.Zero(t, store.appends, "no audit entry for an assessment that was never stored")
}

func TestVerifySaveErrorLeavesAuditUntouched(t *testing.T) {
	client := testutil.NewMockClient(responseFor(t, models.ToolRoB2, nil))
	store := &failingSaveStore{MemoryStore: repo.NewMemoryStore()}
	f := newFixture(t, client, store, 0)
	ctx := context.Background()

	asm, err := f.assessor.Assess(ctx, models.AssessRequest{ProjectID: project, Study: sampleStudy("s1"), Tool: models.ToolRoB2})
	require.NoError(t, err)

	store.fail = true
	_, err = f.assessor.Verify(ctx, models.VerifyRequest{
		ProjectID:     project,
		AssessmentID:  asm.ID,
		DomainID:      asm.DomainJudgments[0].DomainID,
		Judgment:      models.JudgmentHigh,
		OverrideNotes: "blinding broken",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	trail, err := store.ListAudit(ctx, project, asm.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, models.AuditAIGenerated, trail[0].Action)

	stored, err := store.GetAssessmentByID(ctx, project, asm.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JudgmentLow, stored.DomainJudgments[0].Judgment)
}

func TestAuditTrailIsScopedToProject(t *testing.T) {
	client := testutil.NewMockClient(responseFor(t, models.ToolRoB2, nil))
	f := newFixture(t, client, nil, 0)
	ctx := context.Background()

	asm, err := f.assessor.Assess(ctx, models.AssessRequest{ProjectID: project, Study: sampleStudy("s1"), Tool: models.ToolRoB2})
	require.NoError(t, err)

	_, err = f.assessor.AuditTrail(ctx, "someone-else", asm.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestAssessRejectsDisabledTool(t *testing.T) {
	client := testutil.NewMockClient(responseFor(t, models.ToolQUADAS2, nil))
	f := newFixture(t, client, nil, 0)
	settings := models.DefaultProjectSettings(project)
	settings.EnabledTools = []models.ToolType{models.ToolRoB2}
	require.NoError(t, f.assessor.UpdateSettings(context.Background(), settings))

	_, err := f.assessor.Assess(context.Background(), models.AssessRequest{ProjectID: project, Study: sampleStudy("s1"), Tool: models.ToolQUADAS2})
	assert.ErrorIs(t, err, models.ErrToolDisabled)
	assert.Zero(t, client.CallCount())

	_, err = f.assessor.Assess(context.Background(), models.AssessRequest{ProjectID: project, Study: sampleStudy("s1"), Tool: "nope"})
	assert.Error(t, err)
}

func TestAssessUsesProjectThreshold(t *testing.T) {
	client := testutil.NewMockClient(responseFor(t, models.ToolRoB2, map[int]answer{0: {Judgment: "Low", Confidence: 0.75}}))
	f := newFixture(t, client, nil, 0)
	settings := models.DefaultProjectSettings(project)
	settings.SetThreshold(0.8)
	require.NoError(t, f.assessor.UpdateSettings(context.Background(), settings))

	got, err := f.assessor.Assess(context.Background(), models.AssessRequest{ProjectID: project, Study: sampleStudy("s1"), Tool: models.ToolRoB2})
	require.NoError(t, err)
	assert.True(t, got.DomainJudgments[0].IsFlaggedUncertain)
	assert.False(t, got.DomainJudgments[1].IsFlaggedUncertain)
}

func TestZeroThresholdDisablesFlagging(t *testing.T) {
	client := testutil.NewMockClient(responseFor(t, models.ToolRoB2, map[int]answer{0: {Judgment: "Low", Confidence: 0.1}}))
	f := newFixture(t, client, nil, 0)
	ctx := context.Background()

	settings := models.DefaultProjectSettings(project)
	settings.SetThreshold(0)
	require.NoError(t, f.assessor.UpdateSettings(ctx, settings))

	got, err := f.assessor.Assess(ctx, models.AssessRequest{ProjectID: project, Study: sampleStudy("s1"), Tool: models.ToolRoB2})
	require.NoError(t, err)
	assert.Zero(t, got.FlaggedCount())

	settings.SetThreshold(1.5)
	assert.Error(t, f.assessor.UpdateSettings(ctx, settings))
}

func TestAssessWithoutClient(t *testing.T) {
	f := newFixture(t, nil, nil, 0)
	f.assessor.client = nil
	_, err := f.assessor.Assess(context.Background(), models.AssessRequest{ProjectID: project, Study: sampleStudy("s1"), Tool: models.ToolRoB2})
	assert.Error(t, err)
}

func TestAssessBatchStopsOnBudget(t *testing.T) {
	client := testutil.NewMockClient(responseFor(t, models.ToolRoB2, nil))
	client.PricePerToken = 0.001 // 1.2 per call
	f := newFixture(t, client, nil, 2.5)

	var messages []string
	studies := []models.Study{sampleStudy("s1"), sampleStudy("s2"), sampleStudy("s3")}
	result, err := f.assessor.AssessBatch(context.Background(), project, models.ToolRoB2, studies, BatchOptions{
		Progress: func(current, total int, message string) {
			messages = append(messages, message)
		},
	})
	require.NoError(t, err)
	assert.False(t, result.Completed)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Skipped)
	require.Len(t, result.Assessments, 2)
	assert.Equal(t, "s1", result.Assessments[0].StudyID)
	assert.Equal(t, "s2", result.Assessments[1].StudyID)
	assert.Equal(t, "Stopped: budget limit exceeded", messages[len(messages)-1])
	assert.True(t, f.tracker.Paused())
}

func TestAssessBatchCompletes(t *testing.T) {
	client := testutil.NewMockClient(responseFor(t, models.ToolRoB2, nil))
	f := newFixture(t, client, nil, 0)

	var last [2]int
	result, err := f.assessor.AssessBatch(context.Background(), project, models.ToolRoB2,
		[]models.Study{sampleStudy("s1"), sampleStudy("s2")},
		BatchOptions{Progress: func(current, total int, _ string) { last = [2]int{current, total} }})
	require.NoError(t, err)
	assert.True(t, result.Completed)
	assert.Equal(t, 2, result.Processed)
	assert.Zero(t, result.Skipped)
	assert.Equal(t, [2]int{2, 2}, last)
}

func TestVerifyWorkflow(t *testing.T) {
	client := testutil.NewMockClient(responseFor(t, models.ToolRoB2, map[int]answer{
		0: {Judgment: "High", Confidence: 0.5},
	}))
	f := newFixture(t, client, nil, 0)
	ctx := context.Background()

	asm, err := f.assessor.Assess(ctx, models.AssessRequest{ProjectID: project, Study: sampleStudy("s1"), Tool: models.ToolRoB2})
	require.NoError(t, err)
	require.Equal(t, models.JudgmentHigh, asm.OverallJudgment)
	require.True(t, asm.DomainJudgments[0].IsFlaggedUncertain)

	edited, err := f.assessor.Verify(ctx, models.VerifyRequest{
		ProjectID:     project,
		AssessmentID:  asm.ID,
		DomainID:      asm.DomainJudgments[0].DomainID,
		Judgment:      models.JudgmentLow,
		OverrideNotes: "allocation was concealed (p.4)",
		UserID:        "reviewer-1",
	})
	require.NoError(t, err)
	d0 := edited.DomainJudgments[0]
	assert.Equal(t, models.JudgmentLow, d0.Judgment)
	assert.Equal(t, models.JudgmentHigh, d0.AISuggestedJudgment)
	assert.True(t, d0.IsHumanVerified)
	assert.False(t, d0.IsFlaggedUncertain)
	assert.Equal(t, "allocation was concealed (p.4)", d0.HumanOverrideNotes)
	assert.Equal(t, models.JudgmentLow, edited.OverallJudgment)
	assert.Equal(t, models.StatusDraft, edited.Status)
	assert.Equal(t, "reviewer-1", edited.ReviewerID)

	for _, dj := range edited.DomainJudgments[1:] {
		edited, err = f.assessor.Verify(ctx, models.VerifyRequest{
			ProjectID:    project,
			AssessmentID: asm.ID,
			DomainID:     dj.DomainID,
			Judgment:     dj.Judgment,
		})
		require.NoError(t, err)
	}
	assert.Equal(t, models.StatusReviewed, edited.Status)
	assert.True(t, edited.AllVerified())
	assert.Empty(t, edited.DomainJudgments[1].HumanOverrideNotes)

	trail, err := f.assessor.AuditTrail(ctx, project, asm.ID)
	require.NoError(t, err)
	require.Len(t, trail, 6)
	assert.Equal(t, models.AuditAIGenerated, trail[0].Action)
	assert.Equal(t, models.AuditHumanEdit, trail[1].Action)
	assert.Equal(t, "high", trail[1].PreviousJudgment)
	assert.Equal(t, "low", trail[1].NewJudgment)
	for _, entry := range trail[2:] {
		assert.Equal(t, models.AuditHumanVerify, entry.Action)
	}

	// The cache reflects the verified state.
	cached, err := f.assessor.Assess(ctx, models.AssessRequest{ProjectID: project, Study: sampleStudy("s1"), Tool: models.ToolRoB2})
	require.NoError(t, err)
	assert.Equal(t, models.StatusReviewed, cached.Status)
	assert.Equal(t, 1, client.CallCount())
}

func TestVerifyEditCanRaiseOverall(t *testing.T) {
	client := testutil.NewMockClient(responseFor(t, models.ToolROBINSI, nil))
	f := newFixture(t, client, nil, 0)
	ctx := context.Background()

	asm, err := f.assessor.Assess(ctx, models.AssessRequest{ProjectID: project, Study: sampleStudy("s1"), Tool: models.ToolROBINSI})
	require.NoError(t, err)
	require.Equal(t, models.JudgmentLow, asm.OverallJudgment)

	got, err := f.assessor.Verify(ctx, models.VerifyRequest{
		ProjectID:    project,
		AssessmentID: asm.ID,
		DomainID:     asm.DomainJudgments[2].DomainID,
		Judgment:     models.JudgmentSerious,
	})
	require.NoError(t, err)
	assert.Equal(t, models.JudgmentSerious, got.OverallJudgment)
}

func TestVerifyErrors(t *testing.T) {
	client := testutil.NewMockClient(responseFor(t, models.ToolRoB2, nil))
	f := newFixture(t, client, nil, 0)
	ctx := context.Background()
	asm, err := f.assessor.Assess(ctx, models.AssessRequest{ProjectID: project, Study: sampleStudy("s1"), Tool: models.ToolRoB2})
	require.NoError(t, err)

	_, err = f.assessor.Verify(ctx, models.VerifyRequest{ProjectID: project, AssessmentID: asm.ID, DomainID: "missing", Judgment: models.JudgmentLow})
	assert.ErrorIs(t, err, models.ErrDomainNotFound)

	_, err = f.assessor.Verify(ctx, models.VerifyRequest{ProjectID: project, AssessmentID: asm.ID, DomainID: asm.DomainJudgments[0].DomainID, Judgment: "fine"})
	assert.ErrorIs(t, err, models.ErrInvalidJudgment)

	_, err = f.assessor.Verify(ctx, models.VerifyRequest{ProjectID: project, AssessmentID: "nope", DomainID: "x", Judgment: models.JudgmentLow})
	assert.ErrorIs(t, err, repo.ErrNotFound)

	trail, err := f.assessor.AuditTrail(ctx, project, asm.ID)
	require.NoError(t, err)
	assert.Len(t, trail, 1)
}

func TestEstimateCost(t *testing.T) {
	client := testutil.NewMockClient()
	client.PricePerToken = 0.000001
	f := newFixture(t, client, nil, 0)

	est, err := f.assessor.EstimateCost(context.Background(), project, models.ToolRoB2, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 6000, est.AvgInputTokens)
	assert.Equal(t, 1200, est.AvgOutputTokens)
	assert.InDelta(t, (60000.0+12000.0)*0.000001, est.EstimatedCost, 1e-12)

	capped, err := f.assessor.EstimateCost(context.Background(), project, models.ToolRoB2, 1, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, 50000/4+1000, capped.AvgInputTokens)

	_, err = f.assessor.EstimateCost(context.Background(), project, "bogus", 1, 0)
	assert.ErrorIs(t, err, models.ErrUnknownTool)
}

func TestStatistics(t *testing.T) {
	stats := Statistics([]*models.Assessment{
		{
			OverallJudgment: models.JudgmentHigh,
			DomainJudgments: []models.DomainJudgment{
				{DomainName: "Randomization", Judgment: models.JudgmentHigh, IsFlaggedUncertain: true},
				{DomainName: "Missing data", Judgment: models.JudgmentLow, IsHumanVerified: true},
			},
		},
		{
			OverallJudgment: models.JudgmentLow,
			DomainJudgments: []models.DomainJudgment{
				{DomainName: "Randomization", Judgment: models.JudgmentLow, IsHumanVerified: true},
				{DomainName: "Missing data", Judgment: models.JudgmentLow, IsHumanVerified: true},
			},
		},
	})
	assert.Equal(t, 2, stats.TotalStudies)
	assert.Equal(t, 1, stats.ByOverallJudgment[models.JudgmentHigh])
	assert.Equal(t, 1, stats.ByDomain["Randomization"][models.JudgmentHigh])
	assert.Equal(t, 2, stats.ByDomain["Missing data"][models.JudgmentLow])
	assert.Equal(t, 1, stats.FlaggedUncertain)
	assert.Equal(t, 3, stats.VerifiedCount)
	assert.Equal(t, 4, stats.TotalDomainAssessments)
	assert.InDelta(t, 0.75, stats.VerificationRate, 1e-9)

	empty := Statistics(nil)
	assert.Zero(t, empty.TotalStudies)
	assert.Zero(t, empty.VerificationRate)
}

func TestCustomTemplateIsUsed(t *testing.T) {
	client := testutil.NewMockClient(`{"domain_assessments": {}}`)
	f := newFixture(t, client, nil, 0)
	ctx := context.Background()
	name := "Reporting of sponsor role"
	_, err := f.tmpls.Customize(ctx, project, models.ToolRoB2, templates.Modifications{
		Domains: []templates.DomainModification{{Name: &name}},
	})
	require.NoError(t, err)

	got, err := f.assessor.Assess(ctx, models.AssessRequest{ProjectID: project, Study: sampleStudy("s1"), Tool: models.ToolRoB2})
	require.NoError(t, err)
	assert.Len(t, got.DomainJudgments, 6)
	assert.NotEqual(t, "builtin-rob_2", got.TemplateID)
	assert.True(t, strings.Contains(client.Requests()[0].Messages[1].Content, "## "+name))
}
