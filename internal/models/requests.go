package models

// AssessRequest selects the study and template for a single assessment run.
type AssessRequest struct {
	ProjectID       string
	Study           Study
	Tool            ToolType
	ComparisonLabel string
	DetectedDesign  string
	AssessorID      string
	ForceRefresh    bool
}

// VerifyRequest carries a human decision on one domain.
type VerifyRequest struct {
	ProjectID     string
	AssessmentID  string
	DomainID      string
	Judgment      JudgmentLevel
	OverrideNotes string
	UserID        string
}

// BatchResult reports a sequential batch run. Completed is false when the budget
// stopped the run early; Assessments then holds the processed prefix.
type BatchResult struct {
	Assessments []*Assessment `json:"assessments"`
	Completed   bool          `json:"completed"`
	Total       int           `json:"total"`
	Processed   int           `json:"processed"`
	Skipped     int           `json:"skipped"`
}

// Statistics summarises a set of assessments.
type Statistics struct {
	TotalStudies           int                              `json:"total_studies"`
	ByOverallJudgment      map[JudgmentLevel]int            `json:"by_overall_judgment"`
	ByDomain               map[string]map[JudgmentLevel]int `json:"by_domain"`
	FlaggedUncertain       int                              `json:"flagged_uncertain"`
	VerifiedCount          int                              `json:"verified_count"`
	TotalDomainAssessments int                              `json:"total_domain_assessments"`
	VerificationRate       float64                          `json:"verification_rate"`
}

// TemplateInfo is the listing entry for one tool.
type TemplateInfo struct {
	ToolType          ToolType `json:"tool_type"`
	DisplayName       string   `json:"display_name"`
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	NumDomains        int      `json:"num_domains"`
	ApplicableDesigns []string `json:"applicable_designs"`
	IsCustomized      bool     `json:"is_customized"`
	Version           string   `json:"version"`
}

// DomainSummary is a compact description of one template domain.
type DomainSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ShortName    string `json:"short_name"`
	Description  string `json:"description"`
	NumQuestions int    `json:"num_questions"`
	DisplayOrder int    `json:"display_order"`
}
