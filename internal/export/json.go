package export

import (
	"encoding/json"
	"io"
	"time"

	"github.com/miradorstack/mirador-rob/internal/models"
)

type jsonDocument struct {
	ExportDate       time.Time        `json:"export_date"`
	TotalAssessments int              `json:"total_assessments"`
	Assessments      []jsonAssessment `json:"assessments"`
}

type jsonStudyInfo struct {
	Title   *string `json:"title"`
	Authors *string `json:"authors"`
	Year    *int    `json:"year"`
}

type jsonAssessment struct {
	ID               string               `json:"id"`
	StudyID          string               `json:"study_id"`
	StudyInfo        jsonStudyInfo        `json:"study_info"`
	ToolType         models.ToolType      `json:"tool_type"`
	ComparisonLabel  string               `json:"comparison_label,omitempty"`
	OverallJudgment  models.JudgmentLevel `json:"overall_judgment"`
	OverallRationale string               `json:"overall_rationale"`
	Status           string               `json:"status"`
	DomainJudgments  []jsonDomain         `json:"domain_judgments"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

type jsonDomain struct {
	DomainID           string                     `json:"domain_id"`
	DomainName         string                     `json:"domain_name"`
	Judgment           models.JudgmentLevel       `json:"judgment"`
	Rationale          string                     `json:"rationale"`
	AIConfidence       float64                    `json:"ai_confidence"`
	IsHumanVerified    bool                       `json:"is_human_verified"`
	IsFlagged          bool                       `json:"is_flagged"`
	SupportingQuotes   []string                   `json:"supporting_quotes"`
	SignalingResponses []models.SignalingResponse `json:"signaling_responses"`
}

// WriteJSON writes an indented document with export date, total and every
// assessment with its domains and signaling responses.
func WriteJSON(w io.Writer, assessments []*models.Assessment, opts Options) error {
	byID := opts.studyMap()
	doc := jsonDocument{
		ExportDate:       opts.now(),
		TotalAssessments: len(assessments),
		Assessments:      make([]jsonAssessment, 0, len(assessments)),
	}
	for _, a := range assessments {
		entry := jsonAssessment{
			ID:               a.ID,
			StudyID:          a.StudyID,
			ToolType:         a.ToolType,
			ComparisonLabel:  a.ComparisonLabel,
			OverallJudgment:  a.OverallJudgment,
			OverallRationale: a.OverallRationale,
			Status:           a.Status,
			DomainJudgments:  make([]jsonDomain, 0, len(a.DomainJudgments)),
			CreatedAt:        a.CreatedAt,
			UpdatedAt:        a.UpdatedAt,
		}
		if study, ok := byID[a.StudyID]; ok {
			title, authors, year := study.Title, study.Authors, study.Year
			entry.StudyInfo = jsonStudyInfo{Title: &title, Authors: &authors, Year: &year}
		}
		for _, dj := range a.DomainJudgments {
			entry.DomainJudgments = append(entry.DomainJudgments, jsonDomain{
				DomainID:           dj.DomainID,
				DomainName:         dj.DomainName,
				Judgment:           dj.Judgment,
				Rationale:          dj.Rationale,
				AIConfidence:       dj.AIConfidence,
				IsHumanVerified:    dj.IsHumanVerified,
				IsFlagged:          dj.IsFlaggedUncertain,
				SupportingQuotes:   nonNil(dj.SupportingQuotes),
				SignalingResponses: dj.SignalingResponses,
			})
		}
		doc.Assessments = append(doc.Assessments, entry)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
