package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/miradorstack/mirador-rob/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS rob_templates (
	project_id TEXT NOT NULL,
	tool_type  TEXT NOT NULL,
	body       TEXT NOT NULL,
	PRIMARY KEY (project_id, tool_type)
);
CREATE TABLE IF NOT EXISTS rob_assessments (
	seq              INTEGER PRIMARY KEY AUTOINCREMENT,
	id               TEXT NOT NULL,
	project_id       TEXT NOT NULL,
	study_id         TEXT NOT NULL,
	template_id      TEXT NOT NULL,
	comparison_label TEXT NOT NULL,
	body             TEXT NOT NULL,
	UNIQUE (project_id, study_id, template_id, comparison_label)
);
CREATE INDEX IF NOT EXISTS idx_rob_assessments_id ON rob_assessments(id);
CREATE TABLE IF NOT EXISTS rob_audit (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id    TEXT NOT NULL,
	assessment_id TEXT NOT NULL,
	body          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rob_audit_assessment ON rob_audit(project_id, assessment_id);
CREATE TABLE IF NOT EXISTS rob_settings (
	project_id TEXT PRIMARY KEY,
	body       TEXT NOT NULL
);
`

// SQLiteStore persists records as JSON documents in an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dsn and applies the schema.
// Use ":memory:" for a throwaway database.
func NewSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	// Every connection to ":memory:" is a separate database.
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveTemplate(ctx context.Context, projectID string, tmpl *models.Template) error {
	body, err := json.Marshal(tmpl)
	if err != nil {
		return fmt.Errorf("encode template: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO rob_templates (project_id, tool_type, body) VALUES (?, ?, ?)
		ON CONFLICT(project_id, tool_type) DO UPDATE SET body = excluded.body`,
		projectID, string(tmpl.ToolType), string(body))
	if err != nil {
		return fmt.Errorf("save template %s/%s: %w", projectID, tmpl.ToolType, err)
	}
	return nil
}

func (s *SQLiteStore) GetTemplate(ctx context.Context, projectID string, tool models.ToolType) (*models.Template, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM rob_templates WHERE project_id = ? AND tool_type = ?`,
		projectID, string(tool)).Scan(&body)
	if err != nil {
		return nil, notFound(err)
	}
	var tmpl models.Template
	if err := json.Unmarshal([]byte(body), &tmpl); err != nil {
		return nil, fmt.Errorf("decode template: %w", err)
	}
	return &tmpl, nil
}

func (s *SQLiteStore) DeleteTemplates(ctx context.Context, projectID string, tool models.ToolType) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rob_templates WHERE project_id = ? AND tool_type = ?`, projectID, string(tool))
	if err != nil {
		return fmt.Errorf("delete template %s/%s: %w", projectID, tool, err)
	}
	return nil
}

func (s *SQLiteStore) SaveAssessment(ctx context.Context, a *models.Assessment) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode assessment: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO rob_assessments (id, project_id, study_id, template_id, comparison_label, body)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, study_id, template_id, comparison_label) DO UPDATE SET id = excluded.id, body = excluded.body`,
		a.ID, a.ProjectID, a.StudyID, a.TemplateID, a.ComparisonLabel, string(body))
	if err != nil {
		return fmt.Errorf("save assessment %s: %w", a.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetAssessment(ctx context.Context, key AssessmentKey) (*models.Assessment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT body FROM rob_assessments
		WHERE project_id = ? AND study_id = ? AND template_id = ? AND comparison_label = ?`,
		key.ProjectID, key.StudyID, key.TemplateID, key.ComparisonLabel)
	return scanAssessment(row)
}

func (s *SQLiteStore) GetAssessmentByID(ctx context.Context, projectID, id string) (*models.Assessment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT body FROM rob_assessments WHERE project_id = ? AND id = ?`, projectID, id)
	return scanAssessment(row)
}

func (s *SQLiteStore) ListAssessments(ctx context.Context, projectID string) ([]*models.Assessment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM rob_assessments WHERE project_id = ? ORDER BY seq`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	defer rows.Close()

	var out []*models.Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AppendAudit(ctx context.Context, entry models.AuditEntry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO rob_audit (project_id, assessment_id, body) VALUES (?, ?, ?)`, entry.ProjectID, entry.AssessmentID, string(body)); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListAudit(ctx context.Context, projectID, assessmentID string) ([]models.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM rob_audit WHERE project_id = ? AND assessment_id = ? ORDER BY seq`, projectID, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	var out []models.AuditEntry
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		var entry models.AuditEntry
		if err := json.Unmarshal([]byte(body), &entry); err != nil {
			return nil, fmt.Errorf("decode audit entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetSettings(ctx context.Context, projectID string) (models.ProjectSettings, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM rob_settings WHERE project_id = ?`, projectID).Scan(&body)
	if err != nil {
		return models.ProjectSettings{}, notFound(err)
	}
	var settings models.ProjectSettings
	if err := json.Unmarshal([]byte(body), &settings); err != nil {
		return models.ProjectSettings{}, fmt.Errorf("decode settings: %w", err)
	}
	return settings, nil
}

func (s *SQLiteStore) SaveSettings(ctx context.Context, settings models.ProjectSettings) error {
	body, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO rob_settings (project_id, body) VALUES (?, ?)
		ON CONFLICT(project_id) DO UPDATE SET body = excluded.body`, settings.ProjectID, string(body))
	if err != nil {
		return fmt.Errorf("save settings %s: %w", settings.ProjectID, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scanAssessment(row scanner) (*models.Assessment, error) {
	var body string
	if err := row.Scan(&body); err != nil {
		return nil, notFound(err)
	}
	var a models.Assessment
	if err := json.Unmarshal([]byte(body), &a); err != nil {
		return nil, fmt.Errorf("decode assessment: %w", err)
	}
	return &a, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
