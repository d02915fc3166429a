package models

import (
	"fmt"
	"sort"
	"time"
)

// SignalingQuestion is a closed-answer question within a domain.
type SignalingQuestion struct {
	ID              string   `json:"id" yaml:"id" bson:"id"`
	Text            string   `json:"text" yaml:"text" bson:"text"`
	Guidance        string   `json:"guidance,omitempty" yaml:"guidance,omitempty" bson:"guidance,omitempty"`
	ResponseOptions []string `json:"response_options" yaml:"response_options" bson:"response_options"`
}

// DomainTemplate describes one bias domain of an instrument.
type DomainTemplate struct {
	ID                 string              `json:"id" yaml:"id" bson:"id"`
	Name               string              `json:"name" yaml:"name" bson:"name"`
	ShortName          string              `json:"short_name" yaml:"short_name" bson:"short_name"`
	Description        string              `json:"description" yaml:"description" bson:"description"`
	DisplayOrder       int                 `json:"display_order" yaml:"display_order" bson:"display_order"`
	SignalingQuestions []SignalingQuestion `json:"signaling_questions" yaml:"signaling_questions" bson:"signaling_questions"`
	JudgmentGuidance   map[string]string   `json:"judgment_guidance,omitempty" yaml:"judgment_guidance,omitempty" bson:"judgment_guidance,omitempty"`
}

// Template is the full instrument for one tool type.
type Template struct {
	ID                       string           `json:"id" yaml:"id" bson:"_id"`
	ToolType                 ToolType         `json:"tool_type" yaml:"tool_type" bson:"tool_type"`
	Name                     string           `json:"name" yaml:"name" bson:"name"`
	Version                  string           `json:"version" yaml:"version" bson:"version"`
	Description              string           `json:"description" yaml:"description" bson:"description"`
	Domains                  []DomainTemplate `json:"domains" yaml:"domains" bson:"domains"`
	ApplicableStudyDesigns   []string         `json:"applicable_study_designs" yaml:"applicable_study_designs" bson:"applicable_study_designs"`
	OverallJudgmentAlgorithm string           `json:"overall_judgment_algorithm" yaml:"overall_judgment_algorithm" bson:"overall_judgment_algorithm"`
	IsBuiltin                bool             `json:"is_builtin" yaml:"is_builtin" bson:"is_builtin"`
	IsCustomized             bool             `json:"is_customized" yaml:"is_customized" bson:"is_customized"`
	UpdatedAt                time.Time        `json:"updated_at,omitempty" yaml:"updated_at,omitempty" bson:"updated_at"`
}

// Clone returns a structural deep copy; no slice or map is shared with t.
func (t *Template) Clone() *Template {
	if t == nil {
		return nil
	}
	out := *t
	out.ApplicableStudyDesigns = append([]string(nil), t.ApplicableStudyDesigns...)
	out.Domains = make([]DomainTemplate, len(t.Domains))
	for i, d := range t.Domains {
		out.Domains[i] = d.Clone()
	}
	return &out
}

// Clone returns a deep copy of the domain.
func (d DomainTemplate) Clone() DomainTemplate {
	out := d
	out.SignalingQuestions = make([]SignalingQuestion, len(d.SignalingQuestions))
	for i, q := range d.SignalingQuestions {
		q.ResponseOptions = append([]string(nil), q.ResponseOptions...)
		out.SignalingQuestions[i] = q
	}
	if d.JudgmentGuidance != nil {
		out.JudgmentGuidance = make(map[string]string, len(d.JudgmentGuidance))
		for k, v := range d.JudgmentGuidance {
			out.JudgmentGuidance[k] = v
		}
	}
	return out
}

// Domain returns the domain with the given id.
func (t *Template) Domain(id string) (DomainTemplate, bool) {
	for _, d := range t.Domains {
		if d.ID == id {
			return d, true
		}
	}
	return DomainTemplate{}, false
}

// OrderedDomains returns the domains sorted by display order, stable on ties.
func (t *Template) OrderedDomains() []DomainTemplate {
	out := append([]DomainTemplate(nil), t.Domains...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].DisplayOrder < out[j].DisplayOrder })
	return out
}

// Validate checks the structural integrity of the template tree.
func (t *Template) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: template is nil", ErrInvalidTemplate)
	}
	if !t.ToolType.Valid() {
		return fmt.Errorf("%w: unknown tool_type %q", ErrInvalidTemplate, t.ToolType)
	}
	if t.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidTemplate)
	}
	if len(t.Domains) == 0 {
		return fmt.Errorf("%w: at least one domain is required", ErrInvalidTemplate)
	}
	seen := make(map[string]struct{}, len(t.Domains))
	for i, d := range t.Domains {
		if d.ID == "" {
			return fmt.Errorf("%w: domain %d has no id", ErrInvalidTemplate, i)
		}
		if _, dup := seen[d.ID]; dup {
			return fmt.Errorf("%w: duplicate domain id %q", ErrInvalidTemplate, d.ID)
		}
		seen[d.ID] = struct{}{}
		if d.Name == "" {
			return fmt.Errorf("%w: domain %q has no name", ErrInvalidTemplate, d.ID)
		}
		for j, q := range d.SignalingQuestions {
			if q.ID == "" || q.Text == "" {
				return fmt.Errorf("%w: domain %q question %d needs id and text", ErrInvalidTemplate, d.ID, j)
			}
			if len(q.ResponseOptions) == 0 {
				return fmt.Errorf("%w: question %q has no response options", ErrInvalidTemplate, q.ID)
			}
		}
	}
	return nil
}
