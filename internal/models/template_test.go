package models

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTemplate() *Template {
	return &Template{
		ID:       "t1",
		ToolType: ToolRoB2,
		Name:     "Sample",
		Domains: []DomainTemplate{
			{
				ID:           "d2",
				Name:         "Second",
				DisplayOrder: 2,
				SignalingQuestions: []SignalingQuestion{
					{ID: "d2-q1", Text: "Q?", ResponseOptions: []string{"Yes", "No"}},
				},
				JudgmentGuidance: map[string]string{"low": "fine"},
			},
			{ID: "d1", Name: "First", DisplayOrder: 1},
		},
		ApplicableStudyDesigns: []string{"RCT"},
	}
}

func TestTemplateCloneIsIndependent(t *testing.T) {
	orig := sampleTemplate()
	clone := orig.Clone()
	require.True(t, cmp.Equal(orig, clone), cmp.Diff(orig, clone))

	clone.Domains[0].Name = "Changed"
	clone.Domains[0].SignalingQuestions[0].ResponseOptions[0] = "Maybe"
	clone.Domains[0].JudgmentGuidance["low"] = "changed"
	clone.ApplicableStudyDesigns[0] = "Cohort"

	assert.Equal(t, "Second", orig.Domains[0].Name)
	assert.Equal(t, "Yes", orig.Domains[0].SignalingQuestions[0].ResponseOptions[0])
	assert.Equal(t, "fine", orig.Domains[0].JudgmentGuidance["low"])
	assert.Equal(t, "RCT", orig.ApplicableStudyDesigns[0])
}

func TestTemplateOrderedDomains(t *testing.T) {
	ordered := sampleTemplate().OrderedDomains()
	require.Len(t, ordered, 2)
	assert.Equal(t, "d1", ordered[0].ID)
	assert.Equal(t, "d2", ordered[1].ID)
}

func TestTemplateValidate(t *testing.T) {
	require.NoError(t, sampleTemplate().Validate())

	dup := sampleTemplate()
	dup.Domains[1].ID = "d2"
	assert.ErrorIs(t, dup.Validate(), ErrInvalidTemplate)

	noOptions := sampleTemplate()
	noOptions.Domains[0].SignalingQuestions[0].ResponseOptions = nil
	assert.ErrorIs(t, noOptions.Validate(), ErrInvalidTemplate)

	badTool := sampleTemplate()
	badTool.ToolType = "nope"
	assert.ErrorIs(t, badTool.Validate(), ErrInvalidTemplate)

	empty := sampleTemplate()
	empty.Domains = nil
	assert.ErrorIs(t, empty.Validate(), ErrInvalidTemplate)
}

func TestProjectSettingsDefaults(t *testing.T) {
	s := DefaultProjectSettings("p1")
	assert.True(t, s.ToolEnabled(ToolQUADAS2))
	assert.Equal(t, 0.7, s.Threshold())

	s.EnabledTools = []ToolType{ToolRoB2}
	assert.False(t, s.ToolEnabled(ToolQUADAS2))
	assert.True(t, s.ToolEnabled(ToolCustom))

	s.SetThreshold(0)
	assert.Equal(t, 0.0, s.Threshold())

	s.SetThreshold(1.5)
	assert.Equal(t, DefaultUncertaintyThreshold, s.Threshold())

	s.UncertaintyThreshold = nil
	assert.Equal(t, DefaultUncertaintyThreshold, s.Threshold())
}

func TestAssessmentCloneKeepsEmptySlices(t *testing.T) {
	a := &Assessment{DomainJudgments: []DomainJudgment{{
		DomainID:           "d1",
		SignalingResponses: []SignalingResponse{},
		SupportingQuotes:   []string{},
	}}}
	clone := a.Clone()
	assert.NotNil(t, clone.DomainJudgments[0].SignalingResponses)
	assert.NotNil(t, clone.DomainJudgments[0].SupportingQuotes)

	a.DomainJudgments[0].SupportingQuotes = append(a.DomainJudgments[0].SupportingQuotes, "later")
	assert.Empty(t, clone.DomainJudgments[0].SupportingQuotes)
}
