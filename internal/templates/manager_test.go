package templates

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-rob/internal/catalog"
	"github.com/miradorstack/mirador-rob/internal/models"
	"github.com/miradorstack/mirador-rob/internal/repo"
)

func strPtr(s string) *string { return &s }

func newTestManager(t *testing.T) (*Manager, *repo.MemoryStore) {
	t.Helper()
	store := repo.NewMemoryStore()
	return NewManager(catalog.MustDefault(), store, nil), store
}

func TestGetFallsBackToBuiltin(t *testing.T) {
	m, _ := newTestManager(t)
	tmpl, err := m.Get(context.Background(), "p1", models.ToolRoB2)
	require.NoError(t, err)
	assert.True(t, tmpl.IsBuiltin)
	assert.False(t, tmpl.IsCustomized)
	assert.Len(t, tmpl.Domains, 5)

	_, err = m.Get(context.Background(), "p1", models.ToolCustom)
	assert.ErrorIs(t, err, models.ErrUnknownTool)
}

func TestCustomizeNeverMutatesBuiltin(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	before, err := m.Builtin(models.ToolRoB2)
	require.NoError(t, err)

	custom, err := m.Customize(ctx, "p1", models.ToolRoB2, Modifications{
		Name: strPtr("RoB 2 (trimmed)"),
		Domains: []DomainModification{
			{ID: "rob_2-d1", Name: strPtr("Randomisation")},
			{Name: strPtr("Conflicts of interest"), SignalingQuestions: []models.SignalingQuestion{
				{ID: "coi-q1", Text: "Was funding declared?", ResponseOptions: []string{"Yes", "No"}},
			}},
		},
		RemoveDomains: []string{"rob_2-d5"},
	})
	require.NoError(t, err)
	assert.True(t, custom.IsCustomized)
	assert.False(t, custom.IsBuiltin)
	assert.Equal(t, "RoB 2 (trimmed)", custom.Name)
	assert.Len(t, custom.Domains, 5)
	assert.Equal(t, "Randomisation", custom.Domains[0].Name)
	assert.Equal(t, "Conflicts of interest", custom.Domains[len(custom.Domains)-1].Name)
	_, hasD5 := custom.Domain("rob_2-d5")
	assert.False(t, hasD5)

	after, err := m.Builtin(models.ToolRoB2)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(before, after))

	resolved, err := m.Get(ctx, "p1", models.ToolRoB2)
	require.NoError(t, err)
	assert.Equal(t, "RoB 2 (trimmed)", resolved.Name)

	other, err := m.Get(ctx, "p2", models.ToolRoB2)
	require.NoError(t, err)
	assert.True(t, other.IsBuiltin)
}

func TestCustomizeInvalidatesMemo(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	_, err := m.Get(ctx, "p1", models.ToolQUADAS2)
	require.NoError(t, err)

	_, err = m.Customize(ctx, "p1", models.ToolQUADAS2, Modifications{Name: strPtr("QUADAS local")})
	require.NoError(t, err)

	got, err := m.Get(ctx, "p1", models.ToolQUADAS2)
	require.NoError(t, err)
	assert.Equal(t, "QUADAS local", got.Name)

	reset, err := m.Reset(ctx, "p1", models.ToolQUADAS2)
	require.NoError(t, err)
	assert.True(t, reset.IsBuiltin)

	got, err = m.Get(ctx, "p1", models.ToolQUADAS2)
	require.NoError(t, err)
	assert.NotEqual(t, "QUADAS local", got.Name)
}

func TestCustomizeRejectsInvalidResult(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)
	_, err := m.Customize(ctx, "p1", models.ToolNOSCohort, Modifications{
		RemoveDomains: []string{"nos_cohort-d1", "nos_cohort-d2", "nos_cohort-d3"},
	})
	assert.ErrorIs(t, err, models.ErrInvalidTemplate)

	_, err = store.GetTemplate(ctx, "p1", models.ToolNOSCohort)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	_, err = m.Customize(ctx, "p1", models.ToolCustom, Modifications{})
	assert.ErrorIs(t, err, models.ErrUnknownTool)
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	for _, format := range []string{FormatJSON, FormatYAML} {
		data, err := m.Export(ctx, "source", models.ToolROBINSI, format)
		require.NoError(t, err, format)

		imported, err := m.Import(ctx, "target-"+format, data, format)
		require.NoError(t, err, format)
		assert.False(t, imported.IsBuiltin)
		assert.True(t, imported.IsCustomized)
		assert.NotEqual(t, "builtin-robins_i", imported.ID)
		assert.Len(t, imported.Domains, 7)

		got, err := m.Get(ctx, "target-"+format, models.ToolROBINSI)
		require.NoError(t, err)
		assert.Equal(t, imported.ID, got.ID)
	}
}

func TestImportRejectsMalformed(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)

	_, err := m.Import(ctx, "p1", []byte("{not json"), FormatJSON)
	assert.ErrorIs(t, err, models.ErrInvalidTemplate)

	noDomains, _ := json.Marshal(models.Template{ToolType: models.ToolCustom, Name: "Empty"})
	_, err = m.Import(ctx, "p1", noDomains, FormatJSON)
	assert.ErrorIs(t, err, models.ErrInvalidTemplate)

	_, err = store.GetTemplate(ctx, "p1", models.ToolCustom)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	_, err = m.Import(ctx, "p1", []byte("{}"), "xml")
	assert.Error(t, err)
}

func TestListTemplatesAndSummaries(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	_, err := m.Customize(ctx, "p1", models.ToolJBIRCT, Modifications{Description: strPtr("local")})
	require.NoError(t, err)

	infos, err := m.ListTemplates(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, infos, len(models.BuiltinTools))
	for _, info := range infos {
		assert.Equal(t, info.ToolType == models.ToolJBIRCT, info.IsCustomized, info.ToolType)
		assert.NotEmpty(t, info.DisplayName)
		assert.Positive(t, info.NumDomains)
	}

	summary, err := m.DomainSummary(ctx, "p1", models.ToolQUADAS2)
	require.NoError(t, err)
	require.Len(t, summary, 4)
	for i := 1; i < len(summary); i++ {
		assert.LessOrEqual(t, summary[i-1].DisplayOrder, summary[i].DisplayOrder)
	}
	assert.Positive(t, summary[0].NumQuestions)

	assert.Equal(t, []models.ToolType{models.ToolQUADAS2}, m.TemplatesForDesign("Diagnostic accuracy"))
}

func TestGetReturnsIndependentCopies(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	first, err := m.Get(ctx, "p1", models.ToolRoB2)
	require.NoError(t, err)
	first.Domains[0].Name = "mutated"

	second, err := m.Get(ctx, "p1", models.ToolRoB2)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", second.Domains[0].Name)
}
