package repo

import (
	"context"
	"errors"

	"github.com/miradorstack/mirador-rob/internal/models"
)

// ErrNotFound signals a store miss.
var ErrNotFound = errors.New("not found")

// AssessmentKey is the identity of an assessment inside a project.
type AssessmentKey struct {
	ProjectID       string
	StudyID         string
	TemplateID      string
	ComparisonLabel string
}

// KeyOf returns the identity of a.
func KeyOf(a *models.Assessment) AssessmentKey {
	return AssessmentKey{
		ProjectID:       a.ProjectID,
		StudyID:         a.StudyID,
		TemplateID:      a.TemplateID,
		ComparisonLabel: a.ComparisonLabel,
	}
}

// Store is the durable persistence boundary. Saves upsert by natural key; audit
// entries are append-only.
type Store interface {
	SaveTemplate(ctx context.Context, projectID string, tmpl *models.Template) error
	// GetTemplate returns the project's customised template for tool, or ErrNotFound.
	GetTemplate(ctx context.Context, projectID string, tool models.ToolType) (*models.Template, error)
	DeleteTemplates(ctx context.Context, projectID string, tool models.ToolType) error

	SaveAssessment(ctx context.Context, a *models.Assessment) error
	GetAssessment(ctx context.Context, key AssessmentKey) (*models.Assessment, error)
	GetAssessmentByID(ctx context.Context, projectID, id string) (*models.Assessment, error)
	ListAssessments(ctx context.Context, projectID string) ([]*models.Assessment, error)

	AppendAudit(ctx context.Context, entry models.AuditEntry) error
	ListAudit(ctx context.Context, projectID, assessmentID string) ([]models.AuditEntry, error)

	GetSettings(ctx context.Context, projectID string) (models.ProjectSettings, error)
	SaveSettings(ctx context.Context, settings models.ProjectSettings) error

	Close() error
}
