// Package templates resolves, customises and shares assessment templates per project.
package templates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-rob/internal/catalog"
	"github.com/miradorstack/mirador-rob/internal/models"
	"github.com/miradorstack/mirador-rob/internal/repo"
	"github.com/miradorstack/mirador-rob/internal/utils"
)

// Serialisation formats for Export and Import.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Modifications are the structural edits applied by Customize. Nil pointer and
// nil slice fields leave the base value untouched.
type Modifications struct {
	Name          *string              `json:"name,omitempty" yaml:"name,omitempty"`
	Description   *string              `json:"description,omitempty" yaml:"description,omitempty"`
	Domains       []DomainModification `json:"domains,omitempty" yaml:"domains,omitempty"`
	RemoveDomains []string             `json:"remove_domains,omitempty" yaml:"remove_domains,omitempty"`
}

// DomainModification edits the domain with a matching ID, or appends a new domain
// when no domain has that ID. An empty ID always appends with a generated ID.
type DomainModification struct {
	ID                 string                     `json:"id,omitempty" yaml:"id,omitempty"`
	Name               *string                    `json:"name,omitempty" yaml:"name,omitempty"`
	ShortName          *string                    `json:"short_name,omitempty" yaml:"short_name,omitempty"`
	Description        *string                    `json:"description,omitempty" yaml:"description,omitempty"`
	DisplayOrder       *int                       `json:"display_order,omitempty" yaml:"display_order,omitempty"`
	SignalingQuestions []models.SignalingQuestion `json:"signaling_questions,omitempty" yaml:"signaling_questions,omitempty"`
	JudgmentGuidance   map[string]string          `json:"judgment_guidance,omitempty" yaml:"judgment_guidance,omitempty"`
}

type memoKey struct {
	projectID string
	tool      models.ToolType
}

// Manager returns project customisations when present and builtin templates
// otherwise. Resolved templates are memoised per (project, tool).
type Manager struct {
	catalog *catalog.Catalog
	store   repo.Store
	logger  *slog.Logger
	now     utils.Clock

	mu   sync.RWMutex
	memo map[memoKey]*models.Template
}

// NewManager builds a manager over the builtin catalog and a durable store.
func NewManager(cat *catalog.Catalog, store repo.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = repo.NewMemoryStore()
	}
	return &Manager{
		catalog: cat,
		store:   store,
		logger:  logger,
		now:     utils.SystemClock,
		memo:    make(map[memoKey]*models.Template),
	}
}

// Get resolves the template for tool in projectID. The result is a copy the
// caller may mutate.
func (m *Manager) Get(ctx context.Context, projectID string, tool models.ToolType) (*models.Template, error) {
	key := memoKey{projectID, tool}
	m.mu.RLock()
	cached, ok := m.memo[key]
	m.mu.RUnlock()
	if ok {
		return cached.Clone(), nil
	}

	tmpl, _, err := m.resolve(ctx, projectID, tool)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.memo[key] = tmpl
	m.mu.Unlock()
	return tmpl.Clone(), nil
}

// resolve reports whether the returned template is a project customisation.
func (m *Manager) resolve(ctx context.Context, projectID string, tool models.ToolType) (*models.Template, bool, error) {
	if projectID != "" {
		custom, err := m.store.GetTemplate(ctx, projectID, tool)
		switch {
		case err == nil:
			return custom, true, nil
		case !errors.Is(err, repo.ErrNotFound):
			return nil, false, utils.NewAppError("templates.Get", "load customised template", err)
		}
	}
	tmpl, err := m.catalog.Builtin(tool)
	if err != nil {
		return nil, false, err
	}
	return tmpl, false, nil
}

// Builtin returns a copy of the builtin template for tool.
func (m *Manager) Builtin(tool models.ToolType) (*models.Template, error) {
	return m.catalog.Builtin(tool)
}

// Invalidate drops the memoised template for (projectID, tool).
func (m *Manager) Invalidate(projectID string, tool models.ToolType) {
	m.mu.Lock()
	delete(m.memo, memoKey{projectID, tool})
	m.mu.Unlock()
}

// Customize deep-copies the builtin for base, applies mods, validates and
// persists the result. The builtin is never modified.
func (m *Manager) Customize(ctx context.Context, projectID string, base models.ToolType, mods Modifications) (*models.Template, error) {
	builtin, err := m.catalog.Builtin(base)
	if err != nil {
		return nil, err
	}
	customized := builtin.Clone()
	customized.IsCustomized = true
	customized.IsBuiltin = false
	customized.ID = uuid.NewString()
	customized.UpdatedAt = m.now()

	applyModifications(customized, mods)
	if err := customized.Validate(); err != nil {
		return nil, err
	}
	if err := m.store.SaveTemplate(ctx, projectID, customized); err != nil {
		return nil, utils.NewAppError("templates.Customize", "persist customised template", err)
	}
	m.Invalidate(projectID, base)
	m.logger.Info("template customised",
		slog.String("project_id", projectID),
		slog.String("tool_type", string(base)),
		slog.Int("domains", len(customized.Domains)))
	return customized.Clone(), nil
}

func applyModifications(t *models.Template, mods Modifications) {
	if mods.Name != nil {
		t.Name = *mods.Name
	}
	if mods.Description != nil {
		t.Description = *mods.Description
	}
	for _, dm := range mods.Domains {
		idx := -1
		if dm.ID != "" {
			for i := range t.Domains {
				if t.Domains[i].ID == dm.ID {
					idx = i
					break
				}
			}
		}
		if idx >= 0 {
			applyDomain(&t.Domains[idx], dm)
			continue
		}
		domain := models.DomainTemplate{ID: dm.ID, DisplayOrder: nextDisplayOrder(t)}
		if domain.ID == "" {
			domain.ID = fmt.Sprintf("%s-custom-%d", t.ToolType, len(t.Domains)+1)
		}
		applyDomain(&domain, dm)
		t.Domains = append(t.Domains, domain)
	}
	if len(mods.RemoveDomains) > 0 {
		remove := make(map[string]struct{}, len(mods.RemoveDomains))
		for _, id := range mods.RemoveDomains {
			remove[id] = struct{}{}
		}
		kept := t.Domains[:0]
		for _, d := range t.Domains {
			if _, drop := remove[d.ID]; !drop {
				kept = append(kept, d)
			}
		}
		t.Domains = kept
	}
}

func applyDomain(d *models.DomainTemplate, dm DomainModification) {
	if dm.Name != nil {
		d.Name = *dm.Name
	}
	if dm.ShortName != nil {
		d.ShortName = *dm.ShortName
	}
	if dm.Description != nil {
		d.Description = *dm.Description
	}
	if dm.DisplayOrder != nil {
		d.DisplayOrder = *dm.DisplayOrder
	}
	if dm.SignalingQuestions != nil {
		d.SignalingQuestions = models.DomainTemplate{SignalingQuestions: dm.SignalingQuestions}.Clone().SignalingQuestions
	}
	if dm.JudgmentGuidance != nil {
		d.JudgmentGuidance = models.DomainTemplate{JudgmentGuidance: dm.JudgmentGuidance}.Clone().JudgmentGuidance
	}
}

func nextDisplayOrder(t *models.Template) int {
	highest := 0
	for _, d := range t.Domains {
		if d.DisplayOrder > highest {
			highest = d.DisplayOrder
		}
	}
	return highest + 1
}

// Reset deletes the project's customisations for tool and returns the builtin.
func (m *Manager) Reset(ctx context.Context, projectID string, tool models.ToolType) (*models.Template, error) {
	if err := m.store.DeleteTemplates(ctx, projectID, tool); err != nil {
		return nil, utils.NewAppError("templates.Reset", "delete customised template", err)
	}
	m.Invalidate(projectID, tool)
	return m.catalog.Builtin(tool)
}

// Export serialises the resolved template in format (json by default).
func (m *Manager) Export(ctx context.Context, projectID string, tool models.ToolType, format string) ([]byte, error) {
	tmpl, err := m.Get(ctx, projectID, tool)
	if err != nil {
		return nil, err
	}
	switch normaliseFormat(format) {
	case FormatYAML:
		return yaml.Marshal(tmpl)
	case FormatJSON:
		return json.MarshalIndent(tmpl, "", "  ")
	default:
		return nil, fmt.Errorf("unsupported template format %q", format)
	}
}

// Import decodes data, marks it non-builtin and customised, validates it and
// persists it under its tool type. Nothing is persisted on a decode or
// validation failure.
func (m *Manager) Import(ctx context.Context, projectID string, data []byte, format string) (*models.Template, error) {
	var tmpl models.Template
	switch normaliseFormat(format) {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &tmpl); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrInvalidTemplate, err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, &tmpl); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrInvalidTemplate, err)
		}
	default:
		return nil, fmt.Errorf("unsupported template format %q", format)
	}

	tmpl.IsBuiltin = false
	tmpl.IsCustomized = true
	if tmpl.ID == "" || strings.HasPrefix(tmpl.ID, "builtin-") {
		tmpl.ID = uuid.NewString()
	}
	tmpl.UpdatedAt = m.now()
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	if err := m.store.SaveTemplate(ctx, projectID, &tmpl); err != nil {
		return nil, utils.NewAppError("templates.Import", "persist imported template", err)
	}
	m.Invalidate(projectID, tmpl.ToolType)
	m.logger.Info("template imported",
		slog.String("project_id", projectID),
		slog.String("tool_type", string(tmpl.ToolType)),
		slog.String("template_id", tmpl.ID))
	return tmpl.Clone(), nil
}

// FormatForPath picks the serialisation format from a file name.
func FormatForPath(path string) string {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") {
		return FormatYAML
	}
	return FormatJSON
}

func normaliseFormat(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatJSON:
		return FormatJSON
	case FormatYAML, "yml":
		return FormatYAML
	default:
		return format
	}
}

// ListTemplates describes every builtin tool as seen from projectID.
func (m *Manager) ListTemplates(ctx context.Context, projectID string) ([]models.TemplateInfo, error) {
	tools := m.catalog.Tools()
	out := make([]models.TemplateInfo, 0, len(tools))
	for _, tool := range tools {
		tmpl, customized, err := m.resolve(ctx, projectID, tool)
		if err != nil {
			return nil, err
		}
		out = append(out, models.TemplateInfo{
			ToolType:          tool,
			DisplayName:       catalog.DisplayName(tool),
			Name:              tmpl.Name,
			Description:       tmpl.Description,
			NumDomains:        len(tmpl.Domains),
			ApplicableDesigns: append([]string(nil), tmpl.ApplicableStudyDesigns...),
			IsCustomized:      customized,
			Version:           tmpl.Version,
		})
	}
	return out, nil
}

// TemplatesForDesign returns the recommended tools for a study design label.
func (m *Manager) TemplatesForDesign(design string) []models.ToolType {
	return catalog.RecommendedTools(design)
}

// DomainSummary lists the resolved template's domains by display order.
func (m *Manager) DomainSummary(ctx context.Context, projectID string, tool models.ToolType) ([]models.DomainSummary, error) {
	tmpl, err := m.Get(ctx, projectID, tool)
	if err != nil {
		return nil, err
	}
	ordered := tmpl.OrderedDomains()
	out := make([]models.DomainSummary, 0, len(ordered))
	for _, d := range ordered {
		out = append(out, models.DomainSummary{
			ID:           d.ID,
			Name:         d.Name,
			ShortName:    d.ShortName,
			Description:  d.Description,
			NumQuestions: len(d.SignalingQuestions),
			DisplayOrder: d.DisplayOrder,
		})
	}
	return out, nil
}
