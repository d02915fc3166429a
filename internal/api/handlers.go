package api

import (
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-rob/internal/models"
	"github.com/miradorstack/mirador-rob/internal/templates"
)

// TemplateRequest selects one template of a project.
type TemplateRequest struct {
	ProjectID string `json:"project_id"`
	ToolType  string `json:"tool_type"`
	Format    string `json:"format,omitempty"`
}

// CustomizeRequest applies modifications to a builtin template.
type CustomizeRequest struct {
	ProjectID     string                  `json:"project_id"`
	ToolType      string                  `json:"tool_type"`
	Modifications templates.Modifications `json:"modifications"`
}

// ImportRequest carries a serialised template document.
type ImportRequest struct {
	ProjectID string `json:"project_id"`
	Format    string `json:"format,omitempty"`
	Data      string `json:"data"`
}

// DetectRequest classifies one study.
type DetectRequest struct {
	Study models.Study `json:"study"`
}

// DetectBatchRequest classifies several studies.
type DetectBatchRequest struct {
	Studies []models.Study `json:"studies"`
}

// AssessRequest is the wire form of models.AssessRequest.
type AssessRequest struct {
	ProjectID       string       `json:"project_id"`
	Study           models.Study `json:"study"`
	ToolType        string       `json:"tool_type"`
	ComparisonLabel string       `json:"comparison_label,omitempty"`
	DetectedDesign  string       `json:"detected_design,omitempty"`
	AssessorID      string       `json:"assessor_id,omitempty"`
	ForceRefresh    bool         `json:"force_refresh,omitempty"`
}

// AssessBatchRequest assesses several studies with one tool.
type AssessBatchRequest struct {
	ProjectID       string         `json:"project_id"`
	ToolType        string         `json:"tool_type"`
	Studies         []models.Study `json:"studies"`
	ComparisonLabel string         `json:"comparison_label,omitempty"`
	AssessorID      string         `json:"assessor_id,omitempty"`
	ForceRefresh    bool           `json:"force_refresh,omitempty"`
}

// VerifyRequest is the wire form of models.VerifyRequest.
type VerifyRequest struct {
	ProjectID     string `json:"project_id"`
	AssessmentID  string `json:"assessment_id"`
	DomainID      string `json:"domain_id"`
	Judgment      string `json:"judgment"`
	OverrideNotes string `json:"override_notes,omitempty"`
	UserID        string `json:"user_id,omitempty"`
}

// AuditRequest selects the audit trail of one assessment. Since, when set, is an
// RFC 3339 timestamp; earlier entries are dropped.
type AuditRequest struct {
	ProjectID    string `json:"project_id"`
	AssessmentID string `json:"assessment_id"`
	Since        string `json:"since,omitempty"`
}

// ProjectRequest selects a project.
type ProjectRequest struct {
	ProjectID string `json:"project_id"`
}

// SettingsRequest replaces a project's settings.
type SettingsRequest struct {
	Settings models.ProjectSettings `json:"settings"`
}

// CostRequest asks for the spend summary and, when NStudies is positive, a
// projection for assessing that many studies with ToolType.
type CostRequest struct {
	ProjectID     string `json:"project_id,omitempty"`
	ToolType      string `json:"tool_type,omitempty"`
	NStudies      int    `json:"n_studies,omitempty"`
	AvgTextLength int    `json:"avg_text_length,omitempty"`
}

// DecodeStruct unmarshals a Struct into out through its JSON form.
func DecodeStruct(in *structpb.Struct, out any) error {
	if in == nil {
		return fmt.Errorf("request is nil")
	}
	data, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

// ToStruct converts v, which must encode as a JSON object, into a Struct.
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("convert response: %w", err)
	}
	return out, nil
}

// EncodeStruct marshals v into a Struct; used by clients to build requests.
func EncodeStruct(v any) (*structpb.Struct, error) {
	return ToStruct(v)
}

// FromTemplateRequest decodes and validates a TemplateRequest.
func FromTemplateRequest(in *structpb.Struct) (TemplateRequest, models.ToolType, error) {
	var req TemplateRequest
	if err := DecodeStruct(in, &req); err != nil {
		return req, "", err
	}
	if req.ProjectID == "" {
		return req, "", fmt.Errorf("project_id is required")
	}
	tool, err := models.ParseToolType(req.ToolType)
	if err != nil {
		return req, "", err
	}
	return req, tool, nil
}

// FromAssessRequest maps the wire request onto models.AssessRequest.
func FromAssessRequest(in *structpb.Struct) (models.AssessRequest, error) {
	var req AssessRequest
	if err := DecodeStruct(in, &req); err != nil {
		return models.AssessRequest{}, err
	}
	if req.ProjectID == "" {
		return models.AssessRequest{}, fmt.Errorf("project_id is required")
	}
	if req.Study.ID == "" {
		return models.AssessRequest{}, fmt.Errorf("study.id is required")
	}
	tool, err := models.ParseToolType(req.ToolType)
	if err != nil {
		return models.AssessRequest{}, err
	}
	return models.AssessRequest{
		ProjectID:       req.ProjectID,
		Study:           req.Study,
		Tool:            tool,
		ComparisonLabel: req.ComparisonLabel,
		DetectedDesign:  req.DetectedDesign,
		AssessorID:      req.AssessorID,
		ForceRefresh:    req.ForceRefresh,
	}, nil
}

// FromAssessBatchRequest decodes a batch request and validates the tool type.
func FromAssessBatchRequest(in *structpb.Struct) (AssessBatchRequest, models.ToolType, error) {
	var req AssessBatchRequest
	if err := DecodeStruct(in, &req); err != nil {
		return req, "", err
	}
	if req.ProjectID == "" {
		return req, "", fmt.Errorf("project_id is required")
	}
	for i, s := range req.Studies {
		if s.ID == "" {
			return req, "", fmt.Errorf("studies[%d].id is required", i)
		}
	}
	tool, err := models.ParseToolType(req.ToolType)
	if err != nil {
		return req, "", err
	}
	return req, tool, nil
}

// FromVerifyRequest maps the wire request onto models.VerifyRequest.
func FromVerifyRequest(in *structpb.Struct) (models.VerifyRequest, error) {
	var req VerifyRequest
	if err := DecodeStruct(in, &req); err != nil {
		return models.VerifyRequest{}, err
	}
	if req.ProjectID == "" || req.AssessmentID == "" || req.DomainID == "" {
		return models.VerifyRequest{}, fmt.Errorf("project_id, assessment_id and domain_id are required")
	}
	judgment, err := ParseJudgment(req.Judgment)
	if err != nil {
		return models.VerifyRequest{}, err
	}
	return models.VerifyRequest{
		ProjectID:     req.ProjectID,
		AssessmentID:  req.AssessmentID,
		DomainID:      req.DomainID,
		Judgment:      judgment,
		OverrideNotes: req.OverrideNotes,
		UserID:        req.UserID,
	}, nil
}

// ParseJudgment accepts an enumerated value ("some_concerns") or a label such as
// "Some concerns" or "High risk".
func ParseJudgment(raw string) (models.JudgmentLevel, error) {
	if j := models.JudgmentLevel(strings.TrimSpace(raw)); j.Valid() {
		return j, nil
	}
	j := models.NormalizeJudgment(raw)
	if j == models.JudgmentUnclear && !strings.EqualFold(strings.TrimSpace(raw), "unclear") {
		return "", fmt.Errorf("%w: %q", models.ErrInvalidJudgment, raw)
	}
	return j, nil
}
