package models

import "time"

// Assessment status values.
const (
	StatusDraft    = "draft"
	StatusReviewed = "reviewed"
)

// Audit actions.
const (
	AuditAIGenerated = "ai_generated"
	AuditHumanVerify = "human_verify"
	AuditHumanEdit   = "human_edit"
)

// SignalingResponse is one answered signaling question for one study.
type SignalingResponse struct {
	QuestionID      string `json:"question_id" bson:"question_id"`
	Response        string `json:"response" bson:"response"`
	SupportingQuote string `json:"supporting_quote,omitempty" bson:"supporting_quote,omitempty"`
	Notes           string `json:"notes,omitempty" bson:"notes,omitempty"`
}

// DomainJudgment is the assessed outcome for one domain of one study.
type DomainJudgment struct {
	DomainID            string              `json:"domain_id" bson:"domain_id"`
	DomainName          string              `json:"domain_name" bson:"domain_name"`
	SignalingResponses  []SignalingResponse `json:"signaling_responses" bson:"signaling_responses"`
	Judgment            JudgmentLevel       `json:"judgment" bson:"judgment"`
	Rationale           string              `json:"rationale" bson:"rationale"`
	SupportingQuotes    []string            `json:"supporting_quotes" bson:"supporting_quotes"`
	AISuggestedJudgment JudgmentLevel       `json:"ai_suggested_judgment,omitempty" bson:"ai_suggested_judgment,omitempty"`
	AIConfidence        float64             `json:"ai_confidence" bson:"ai_confidence"`
	IsAIGenerated       bool                `json:"is_ai_generated" bson:"is_ai_generated"`
	IsHumanVerified     bool                `json:"is_human_verified" bson:"is_human_verified"`
	IsFlaggedUncertain  bool                `json:"is_flagged_uncertain" bson:"is_flagged_uncertain"`
	HumanOverrideNotes  string              `json:"human_override_notes,omitempty" bson:"human_override_notes,omitempty"`
}

// Assessment is the aggregate result for one study under one template.
// Identity is (StudyID, TemplateID, ComparisonLabel) within a project.
type Assessment struct {
	ID                  string           `json:"id" bson:"_id"`
	ProjectID           string           `json:"project_id" bson:"project_id"`
	StudyID             string           `json:"study_id" bson:"study_id"`
	TemplateID          string           `json:"template_id" bson:"template_id"`
	ToolType            ToolType         `json:"tool_type" bson:"tool_type"`
	DetectedStudyDesign string           `json:"detected_study_design,omitempty" bson:"detected_study_design,omitempty"`
	ComparisonLabel     string           `json:"comparison_label,omitempty" bson:"comparison_label"`
	DomainJudgments     []DomainJudgment `json:"domain_judgments" bson:"domain_judgments"`
	OverallJudgment     JudgmentLevel    `json:"overall_judgment" bson:"overall_judgment"`
	OverallRationale    string           `json:"overall_rationale" bson:"overall_rationale"`
	AICost              float64          `json:"ai_cost" bson:"ai_cost"`
	AIModel             string           `json:"ai_model" bson:"ai_model"`
	AssessorID          string           `json:"assessor_id,omitempty" bson:"assessor_id,omitempty"`
	ReviewerID          string           `json:"reviewer_id,omitempty" bson:"reviewer_id,omitempty"`
	Status              string           `json:"status" bson:"status"`
	CreatedAt           time.Time        `json:"created_at" bson:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at" bson:"updated_at"`
}

// AllVerified reports whether every domain judgment has been human-verified.
func (a *Assessment) AllVerified() bool {
	if len(a.DomainJudgments) == 0 {
		return false
	}
	for _, dj := range a.DomainJudgments {
		if !dj.IsHumanVerified {
			return false
		}
	}
	return true
}

// FlaggedCount returns the number of domains awaiting mandatory review.
func (a *Assessment) FlaggedCount() int {
	n := 0
	for _, dj := range a.DomainJudgments {
		if dj.IsFlaggedUncertain {
			n++
		}
	}
	return n
}

// VerifiedCount returns the number of human-verified domains.
func (a *Assessment) VerifiedCount() int {
	n := 0
	for _, dj := range a.DomainJudgments {
		if dj.IsHumanVerified {
			n++
		}
	}
	return n
}

// Judgments returns the domain judgment levels in order.
func (a *Assessment) Judgments() []JudgmentLevel {
	out := make([]JudgmentLevel, 0, len(a.DomainJudgments))
	for _, dj := range a.DomainJudgments {
		out = append(out, dj.Judgment)
	}
	return out
}

// AuditEntry is an append-only record of a judgment change.
type AuditEntry struct {
	ID               string    `json:"id" bson:"_id"`
	ProjectID        string    `json:"project_id" bson:"project_id"`
	AssessmentID     string    `json:"assessment_id" bson:"assessment_id"`
	StudyID          string    `json:"study_id" bson:"study_id"`
	Action           string    `json:"action" bson:"action"`
	DomainID         string    `json:"domain_id,omitempty" bson:"domain_id,omitempty"`
	PreviousJudgment string    `json:"previous_judgment,omitempty" bson:"previous_judgment,omitempty"`
	NewJudgment      string    `json:"new_judgment" bson:"new_judgment"`
	UserID           string    `json:"user_id,omitempty" bson:"user_id,omitempty"`
	Notes            string    `json:"notes,omitempty" bson:"notes,omitempty"`
	Timestamp        time.Time `json:"timestamp" bson:"timestamp"`
}

// DefaultUncertaintyThreshold is used when a project has not configured one.
const DefaultUncertaintyThreshold = 0.7

// ProjectSettings holds per-project assessment configuration.
type ProjectSettings struct {
	ProjectID               string     `json:"project_id" bson:"_id"`
	EnabledTools            []ToolType `json:"enabled_tools" bson:"enabled_tools"`
	DualReview              bool       `json:"dual_review" bson:"dual_review"`
	AutoDetect              bool       `json:"auto_detect" bson:"auto_detect"`
	RequireSupportingQuotes bool       `json:"require_supporting_quotes" bson:"require_supporting_quotes"`
	// UncertaintyThreshold is nil until configured. Zero disables flagging.
	UncertaintyThreshold    *float64   `json:"uncertainty_threshold,omitempty" bson:"uncertainty_threshold,omitempty"`
}

// DefaultProjectSettings returns settings with every builtin tool enabled.
func DefaultProjectSettings(projectID string) ProjectSettings {
	return ProjectSettings{
		ProjectID:               projectID,
		EnabledTools:            append([]ToolType(nil), BuiltinTools...),
		AutoDetect:              true,
		RequireSupportingQuotes: true,
	}
}

// SetThreshold stores an explicit uncertainty threshold.
func (s *ProjectSettings) SetThreshold(t float64) {
	s.UncertaintyThreshold = &t
}

// ToolEnabled reports whether tool may be used in the project. Custom is always allowed,
// as is any tool when the list is empty.
func (s ProjectSettings) ToolEnabled(tool ToolType) bool {
	if tool == ToolCustom || len(s.EnabledTools) == 0 {
		return true
	}
	for _, t := range s.EnabledTools {
		if t == tool {
			return true
		}
	}
	return false
}

// Threshold returns the configured uncertainty threshold, or the default when
// none is set or the stored value lies outside [0,1].
func (s ProjectSettings) Threshold() float64 {
	if s.UncertaintyThreshold == nil {
		return DefaultUncertaintyThreshold
	}
	if t := *s.UncertaintyThreshold; t >= 0 && t <= 1 {
		return t
	}
	return DefaultUncertaintyThreshold
}

// Clone returns a deep copy of the assessment.
func (a *Assessment) Clone() *Assessment {
	if a == nil {
		return nil
	}
	out := *a
	out.DomainJudgments = make([]DomainJudgment, len(a.DomainJudgments))
	for i, dj := range a.DomainJudgments {
		dj.SignalingResponses = make([]SignalingResponse, len(a.DomainJudgments[i].SignalingResponses))
		copy(dj.SignalingResponses, a.DomainJudgments[i].SignalingResponses)
		dj.SupportingQuotes = make([]string, len(a.DomainJudgments[i].SupportingQuotes))
		copy(dj.SupportingQuotes, a.DomainJudgments[i].SupportingQuotes)
		out.DomainJudgments[i] = dj
	}
	return &out
}

// Domain returns a pointer to the judgment for domainID, or nil.
func (a *Assessment) Domain(domainID string) *DomainJudgment {
	for i := range a.DomainJudgments {
		if a.DomainJudgments[i].DomainID == domainID {
			return &a.DomainJudgments[i]
		}
	}
	return nil
}
