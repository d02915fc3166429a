package repo

import (
	"context"
	"sync"

	"github.com/miradorstack/mirador-rob/internal/models"
)

type templateKey struct {
	projectID string
	tool      models.ToolType
}

// MemoryStore keeps everything in process. Values are copied on the way in and out.
type MemoryStore struct {
	mu          sync.RWMutex
	templates   map[templateKey]*models.Template
	assessments map[AssessmentKey]*models.Assessment
	byID        map[string]AssessmentKey
	order       []AssessmentKey
	audit       map[string][]models.AuditEntry
	settings    map[string]models.ProjectSettings
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		templates:   make(map[templateKey]*models.Template),
		assessments: make(map[AssessmentKey]*models.Assessment),
		byID:        make(map[string]AssessmentKey),
		audit:       make(map[string][]models.AuditEntry),
		settings:    make(map[string]models.ProjectSettings),
	}
}

func (s *MemoryStore) SaveTemplate(_ context.Context, projectID string, tmpl *models.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[templateKey{projectID, tmpl.ToolType}] = tmpl.Clone()
	return nil
}

func (s *MemoryStore) GetTemplate(_ context.Context, projectID string, tool models.ToolType) (*models.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tmpl, ok := s.templates[templateKey{projectID, tool}]
	if !ok {
		return nil, ErrNotFound
	}
	return tmpl.Clone(), nil
}

func (s *MemoryStore) DeleteTemplates(_ context.Context, projectID string, tool models.ToolType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.templates, templateKey{projectID, tool})
	return nil
}

func (s *MemoryStore) SaveAssessment(_ context.Context, a *models.Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := KeyOf(a)
	if _, exists := s.assessments[key]; !exists {
		s.order = append(s.order, key)
	}
	s.assessments[key] = a.Clone()
	s.byID[a.ID] = key
	return nil
}

func (s *MemoryStore) GetAssessment(_ context.Context, key AssessmentKey) (*models.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assessments[key]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

func (s *MemoryStore) GetAssessmentByID(_ context.Context, projectID, id string) (*models.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.byID[id]
	if !ok || key.ProjectID != projectID {
		return nil, ErrNotFound
	}
	a, ok := s.assessments[key]
	if !ok || a.ID != id {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

// ListAssessments returns the project's assessments in first-save order.
func (s *MemoryStore) ListAssessments(_ context.Context, projectID string) ([]*models.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Assessment
	for _, key := range s.order {
		if key.ProjectID != projectID {
			continue
		}
		out = append(out, s.assessments[key].Clone())
	}
	return out, nil
}

func (s *MemoryStore) AppendAudit(_ context.Context, entry models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit[entry.AssessmentID] = append(s.audit[entry.AssessmentID], entry)
	return nil
}

func (s *MemoryStore) ListAudit(_ context.Context, projectID, assessmentID string) ([]models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.AuditEntry
	for _, entry := range s.audit[assessmentID] {
		if entry.ProjectID == projectID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetSettings(_ context.Context, projectID string) (models.ProjectSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	settings, ok := s.settings[projectID]
	if !ok {
		return models.ProjectSettings{}, ErrNotFound
	}
	settings.EnabledTools = append([]models.ToolType(nil), settings.EnabledTools...)
	return settings, nil
}

func (s *MemoryStore) SaveSettings(_ context.Context, settings models.ProjectSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings.EnabledTools = append([]models.ToolType(nil), settings.EnabledTools...)
	s.settings[settings.ProjectID] = settings
	return nil
}

func (s *MemoryStore) Close() error { return nil }
