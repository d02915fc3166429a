package services

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-rob/internal/api"
	"github.com/miradorstack/mirador-rob/internal/cost"
	"github.com/miradorstack/mirador-rob/internal/detector"
	"github.com/miradorstack/mirador-rob/internal/engine"
	"github.com/miradorstack/mirador-rob/internal/export"
	"github.com/miradorstack/mirador-rob/internal/llm"
	"github.com/miradorstack/mirador-rob/internal/metrics"
	"github.com/miradorstack/mirador-rob/internal/models"
	"github.com/miradorstack/mirador-rob/internal/repo"
	"github.com/miradorstack/mirador-rob/internal/templates"
	"github.com/miradorstack/mirador-rob/internal/utils"
)

// Dependencies are the components behind the service. Tracker may be nil.
type Dependencies struct {
	Templates *templates.Manager
	Detector  *detector.Detector
	Assessor  *engine.Assessor
	Tracker   *cost.Tracker
	// Model names the configured LLM; empty when none is configured.
	Model  string
	Logger *slog.Logger
}

// RoBService implements rob.v1.RiskOfBias and the admin HTTP backend.
type RoBService struct {
	api.UnimplementedRiskOfBiasServer

	logger    *slog.Logger
	templates *templates.Manager
	detector  *detector.Detector
	assessor  *engine.Assessor
	tracker   *cost.Tracker
	model     string
	latencies *utils.LatencyTracker
}

// NewRoBService constructs the service facade.
func NewRoBService(deps Dependencies) *RoBService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RoBService{
		logger:    logger,
		templates: deps.Templates,
		detector:  deps.Detector,
		assessor:  deps.Assessor,
		tracker:   deps.Tracker,
		model:     deps.Model,
		latencies: utils.NewLatencyTracker(1024),
	}
}

var _ api.RiskOfBiasServer = (*RoBService)(nil)
var _ api.AdminBackend = (*RoBService)(nil)

// GetTemplate returns the template a project uses for a tool, with its domain summary.
func (s *RoBService) GetTemplate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, tool, err := api.FromTemplateRequest(in)
	if err != nil {
		return nil, invalid(err)
	}
	tmpl, err := s.templates.Get(ctx, req.ProjectID, tool)
	if err != nil {
		return nil, s.toStatus("get template", err)
	}
	domains, err := s.templates.DomainSummary(ctx, req.ProjectID, tool)
	if err != nil {
		return nil, s.toStatus("get template", err)
	}
	return respond(map[string]any{"template": tmpl, "domains": domains})
}

// ListTemplates describes every builtin tool as seen from the project.
func (s *RoBService) ListTemplates(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.ProjectRequest
	if err := api.DecodeStruct(in, &req); err != nil {
		return nil, invalid(err)
	}
	infos, err := s.templates.ListTemplates(ctx, req.ProjectID)
	if err != nil {
		return nil, s.toStatus("list templates", err)
	}
	return respond(map[string]any{"templates": infos})
}

// CustomizeTemplate stores a modified copy of a builtin template for the project.
func (s *RoBService) CustomizeTemplate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.CustomizeRequest
	if err := api.DecodeStruct(in, &req); err != nil {
		return nil, invalid(err)
	}
	tool, err := models.ParseToolType(req.ToolType)
	if err != nil {
		return nil, invalid(err)
	}
	if req.ProjectID == "" {
		return nil, status.Error(codes.InvalidArgument, "project_id is required")
	}
	tmpl, err := s.templates.Customize(ctx, req.ProjectID, tool, req.Modifications)
	if err != nil {
		return nil, s.toStatus("customize template", err)
	}
	return respond(map[string]any{"template": tmpl})
}

// ResetTemplate drops the project's customisation of a tool.
func (s *RoBService) ResetTemplate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, tool, err := api.FromTemplateRequest(in)
	if err != nil {
		return nil, invalid(err)
	}
	tmpl, err := s.templates.Reset(ctx, req.ProjectID, tool)
	if err != nil {
		return nil, s.toStatus("reset template", err)
	}
	return respond(map[string]any{"template": tmpl})
}

// ExportTemplate serialises the resolved template as JSON or YAML text.
func (s *RoBService) ExportTemplate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, tool, err := api.FromTemplateRequest(in)
	if err != nil {
		return nil, invalid(err)
	}
	data, err := s.TemplateDocument(ctx, req.ProjectID, tool, req.Format)
	if err != nil {
		return nil, s.toStatus("export template", err)
	}
	format := req.Format
	if format == "" {
		format = templates.FormatJSON
	}
	return respond(map[string]any{"format": format, "data": string(data)})
}

// ImportTemplate validates and stores a serialised template.
func (s *RoBService) ImportTemplate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.ImportRequest
	if err := api.DecodeStruct(in, &req); err != nil {
		return nil, invalid(err)
	}
	if req.ProjectID == "" {
		return nil, status.Error(codes.InvalidArgument, "project_id is required")
	}
	tmpl, err := s.templates.Import(ctx, req.ProjectID, []byte(req.Data), req.Format)
	if err != nil {
		return nil, s.toStatus("import template", err)
	}
	return respond(map[string]any{"template": tmpl})
}

// DetectDesign classifies one study.
func (s *RoBService) DetectDesign(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.DetectRequest
	if err := api.DecodeStruct(in, &req); err != nil {
		return nil, invalid(err)
	}
	start := time.Now()
	result, err := s.detector.Detect(ctx, req.Study)
	s.observe("detect", time.Since(start))
	if err != nil {
		return nil, s.toStatus("detect design", err)
	}
	return respond(result)
}

type batchDetectionResponse struct {
	models.BatchDetection
	StoppedReason string `json:"stopped_reason,omitempty"`
}

// DetectBatch classifies several studies. A budget stop returns the studies
// classified so far with stopped_reason set.
func (s *RoBService) DetectBatch(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.DetectBatchRequest
	if err := api.DecodeStruct(in, &req); err != nil {
		return nil, invalid(err)
	}
	start := time.Now()
	batch, err := s.detector.DetectBatch(ctx, req.Studies, func(current, total int) {
		s.logger.Debug("detecting study design", slog.Int("current", current), slog.Int("total", total))
	})
	s.observe("detect_batch", time.Since(start))
	resp := batchDetectionResponse{BatchDetection: batch}
	if err != nil {
		if !errors.Is(err, cost.ErrBudgetExceeded) {
			return nil, s.toStatus("detect batch", err)
		}
		resp.StoppedReason = "budget_exceeded"
	}
	return respond(resp)
}

// Assess runs, or returns the stored, assessment of one study.
func (s *RoBService) Assess(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := api.FromAssessRequest(in)
	if err != nil {
		return nil, invalid(err)
	}
	s.logger.Debug("Assess called",
		slog.String("project_id", req.ProjectID),
		slog.String("study_id", req.Study.ID),
		slog.String("tool", string(req.Tool)))

	start := time.Now()
	assessment, err := s.assessor.Assess(ctx, req)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveAssessment(string(req.Tool), duration, outcomeFor(err))
		return nil, s.toStatus("assess", err)
	}
	outcome := metrics.OutcomeSuccess
	if assessment.UpdatedAt.Before(start.UTC().Truncate(time.Millisecond)) {
		outcome = metrics.OutcomeCached
	}
	metrics.ObserveAssessment(string(req.Tool), duration, outcome)
	s.observe("assess", duration)
	return respond(map[string]any{"assessment": assessment})
}

// AssessBatch assesses studies in order and stops cleanly at the budget ceiling.
func (s *RoBService) AssessBatch(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, tool, err := api.FromAssessBatchRequest(in)
	if err != nil {
		return nil, invalid(err)
	}
	start := time.Now()
	result, err := s.assessor.AssessBatch(ctx, req.ProjectID, tool, req.Studies, engine.BatchOptions{
		ComparisonLabel: req.ComparisonLabel,
		AssessorID:      req.AssessorID,
		ForceRefresh:    req.ForceRefresh,
		Progress: func(current, total int, message string) {
			s.logger.Debug("batch progress",
				slog.String("project_id", req.ProjectID),
				slog.Int("current", current),
				slog.Int("total", total),
				slog.String("message", message))
		},
	})
	duration := time.Since(start)
	s.observe("assess_batch", duration)
	if err != nil {
		metrics.ObserveAssessment(string(tool), duration, outcomeFor(err))
		return nil, s.toStatus("assess batch", err)
	}
	if !result.Completed {
		metrics.ObserveAssessment(string(tool), duration, metrics.OutcomeBudget)
	}
	return respond(result)
}

// Verify records a human decision on one domain.
func (s *RoBService) Verify(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := api.FromVerifyRequest(in)
	if err != nil {
		return nil, invalid(err)
	}
	assessment, err := s.assessor.Verify(ctx, req)
	if err != nil {
		return nil, s.toStatus("verify", err)
	}
	return respond(map[string]any{"assessment": assessment})
}

// AuditTrail lists the audit entries of an assessment.
func (s *RoBService) AuditTrail(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.AuditRequest
	if err := api.DecodeStruct(in, &req); err != nil {
		return nil, invalid(err)
	}
	if req.ProjectID == "" || req.AssessmentID == "" {
		return nil, status.Error(codes.InvalidArgument, "project_id and assessment_id are required")
	}
	var since time.Time
	if req.Since != "" {
		parsed, err := utils.ParseRFC3339(req.Since)
		if err != nil {
			return nil, invalid(err)
		}
		since = parsed
	}
	entries, err := s.AuditEntries(ctx, req.ProjectID, req.AssessmentID, since)
	if err != nil {
		return nil, s.toStatus("audit trail", err)
	}
	return respond(map[string]any{"entries": entries})
}

// Statistics summarises the project's stored assessments.
func (s *RoBService) Statistics(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.ProjectRequest
	if err := api.DecodeStruct(in, &req); err != nil {
		return nil, invalid(err)
	}
	stats, err := s.ProjectStatistics(ctx, req.ProjectID)
	if err != nil {
		return nil, s.toStatus("statistics", err)
	}
	return respond(stats)
}

// GetSettings returns the project's settings, creating defaults on first use.
func (s *RoBService) GetSettings(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.ProjectRequest
	if err := api.DecodeStruct(in, &req); err != nil {
		return nil, invalid(err)
	}
	if req.ProjectID == "" {
		return nil, status.Error(codes.InvalidArgument, "project_id is required")
	}
	settings, err := s.assessor.Settings(ctx, req.ProjectID)
	if err != nil {
		return nil, s.toStatus("get settings", err)
	}
	return respond(map[string]any{"settings": settings})
}

// UpdateSettings replaces the project's settings.
func (s *RoBService) UpdateSettings(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.SettingsRequest
	if err := api.DecodeStruct(in, &req); err != nil {
		return nil, invalid(err)
	}
	if req.Settings.ProjectID == "" {
		return nil, status.Error(codes.InvalidArgument, "settings.project_id is required")
	}
	if err := s.assessor.UpdateSettings(ctx, req.Settings); err != nil {
		return nil, s.toStatus("update settings", err)
	}
	return respond(map[string]any{"settings": req.Settings})
}

// CostSummary reports tracked spend and, on request, a projection for a batch.
func (s *RoBService) CostSummary(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.CostRequest
	if err := api.DecodeStruct(in, &req); err != nil {
		return nil, invalid(err)
	}
	out := map[string]any{}
	if s.tracker != nil {
		out["summary"] = s.tracker.Summary()
	}
	if req.NStudies > 0 {
		tool := models.ToolRoB2
		if req.ToolType != "" {
			parsed, err := models.ParseToolType(req.ToolType)
			if err != nil {
				return nil, invalid(err)
			}
			tool = parsed
		}
		estimate, err := s.assessor.EstimateCost(ctx, req.ProjectID, tool, req.NStudies, req.AvgTextLength)
		if err != nil {
			return nil, s.toStatus("estimate cost", err)
		}
		out["estimate"] = estimate
	}
	return respond(out)
}

// HealthCheck reports liveness, LLM configuration and budget state.
func (s *RoBService) HealthCheck(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	paused := false
	if s.tracker != nil {
		paused = s.tracker.Paused()
	}
	latency := s.latencies.Summary()
	return respond(map[string]any{
		"status":         "ok",
		"llm_model":      s.model,
		"llm_configured": s.model != "",
		"budget_paused":  paused,
		"latency_p95_ms": latency.P95.Milliseconds(),
		"samples":        latency.Samples,
	})
}

// TemplateDocument serialises a project's template for the admin export endpoint.
func (s *RoBService) TemplateDocument(ctx context.Context, projectID string, tool models.ToolType, format string) ([]byte, error) {
	return s.templates.Export(ctx, projectID, tool, format)
}

// AuditEntries returns a project's audit entries for one assessment in insertion
// order, skipping entries before since when it is non-zero.
func (s *RoBService) AuditEntries(ctx context.Context, projectID, assessmentID string, since time.Time) ([]models.AuditEntry, error) {
	entries, err := s.assessor.AuditTrail(ctx, projectID, assessmentID)
	if err != nil || since.IsZero() {
		return entries, err
	}
	kept := entries[:0]
	for _, entry := range entries {
		if !entry.Timestamp.Before(since) {
			kept = append(kept, entry)
		}
	}
	return kept, nil
}

// ProjectStatistics summarises every stored assessment of a project.
func (s *RoBService) ProjectStatistics(ctx context.Context, projectID string) (models.Statistics, error) {
	return s.assessor.ProjectStatistics(ctx, projectID)
}

// ExportAssessments renders every stored assessment of a project in format.
func (s *RoBService) ExportAssessments(ctx context.Context, projectID, format string, includeSignaling bool) ([]byte, error) {
	list, err := s.assessor.ListAssessments(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := export.Write(&buf, format, list, export.Options{IncludeSignaling: includeSignaling}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *RoBService) observe(op string, duration time.Duration) {
	s.latencies.Observe(duration)
	if s.latencies.ShouldReport(20) {
		summary := s.latencies.Summary()
		s.logger.Info("request latency",
			slog.String("last_op", op),
			slog.Duration("p95", summary.P95),
			slog.Int("samples", summary.Samples))
	}
}

func (s *RoBService) toStatus(op string, err error) error {
	code := statusCode(err)
	if code == codes.Internal {
		s.logger.Error(op+" failed", slog.Any("error", err))
	}
	return status.Error(code, err.Error())
}

func statusCode(err error) codes.Code {
	switch {
	case errors.Is(err, models.ErrUnknownTool),
		errors.Is(err, models.ErrInvalidTemplate),
		errors.Is(err, models.ErrDomainNotFound),
		errors.Is(err, models.ErrInvalidJudgment),
		errors.Is(err, models.ErrToolDisabled):
		return codes.InvalidArgument
	case errors.Is(err, repo.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, cost.ErrBudgetExceeded):
		return codes.ResourceExhausted
	case errors.Is(err, llm.ErrNoClient):
		return codes.FailedPrecondition
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

func outcomeFor(err error) string {
	if errors.Is(err, cost.ErrBudgetExceeded) {
		return metrics.OutcomeBudget
	}
	return metrics.OutcomeError
}

func invalid(err error) error {
	return status.Error(codes.InvalidArgument, err.Error())
}

func respond(v any) (*structpb.Struct, error) {
	out, err := api.ToStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}
