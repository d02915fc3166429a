// Command robctl runs template, detection, assessment and verification
// operations in-process against the configured store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-rob/internal/api"
	"github.com/miradorstack/mirador-rob/internal/app"
	"github.com/miradorstack/mirador-rob/internal/config"
	"github.com/miradorstack/mirador-rob/internal/engine"
	"github.com/miradorstack/mirador-rob/internal/export"
	"github.com/miradorstack/mirador-rob/internal/models"
	"github.com/miradorstack/mirador-rob/internal/templates"
	"github.com/miradorstack/mirador-rob/internal/utils"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type globalOptions struct {
	configPath string
	logLevel   string
	projectID  string
}

func (g *globalOptions) open(ctx context.Context, cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	level := g.logLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger := utils.NewLoggerTo(cmd.ErrOrStderr(), level, cfg.Logging.JSON)
	return app.New(ctx, cfg, logger)
}

// withApp opens the components for one command and closes them afterwards.
func (g *globalOptions) withApp(fn func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := g.open(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, cmd, a, args)
	}
}

func rootCmd() *cobra.Command {
	g := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "robctl",
		Short:         "Risk of bias assessment operator CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	cmd.PersistentFlags().StringVarP(&g.projectID, "project", "p", "default", "Project id")

	cmd.AddCommand(
		templatesCmd(g),
		detectCmd(g),
		assessCmd(g),
		verifyCmd(g),
		estimateCmd(g),
		exportCmd(g),
		statsCmd(g),
	)
	return cmd
}

func templatesCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List, show, export, import and reset assessment templates",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every tool as seen from the project",
		Args:  cobra.NoArgs,
		RunE: g.withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
			infos, err := a.Templates.ListTemplates(ctx, g.projectID)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, info := range infos {
				marker := ""
				if info.IsCustomized {
					marker = " (customised)"
				}
				fmt.Fprintf(w, "%-20s %-40s %d domains%s\n", info.ToolType, info.DisplayName, info.NumDomains, marker)
			}
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <tool>",
		Short: "Show the domains of a tool's template",
		Args:  cobra.ExactArgs(1),
		RunE: g.withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			tool, err := models.ParseToolType(args[0])
			if err != nil {
				return err
			}
			domains, err := a.Templates.DomainSummary(ctx, g.projectID, tool)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), domains)
		}),
	})

	var format, out string
	exportTemplate := &cobra.Command{
		Use:   "export <tool>",
		Short: "Write a tool's resolved template as JSON or YAML",
		Args:  cobra.ExactArgs(1),
		RunE: g.withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			tool, err := models.ParseToolType(args[0])
			if err != nil {
				return err
			}
			data, err := a.Templates.Export(ctx, g.projectID, tool, format)
			if err != nil {
				return err
			}
			return writeOutput(cmd, out, data)
		}),
	}
	exportTemplate.Flags().StringVarP(&format, "format", "f", templates.FormatYAML, "json or yaml")
	exportTemplate.Flags().StringVarP(&out, "out", "o", "", "Output file (stdout when empty)")
	cmd.AddCommand(exportTemplate)

	cmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Import a template file into the project",
		Args:  cobra.ExactArgs(1),
		RunE: g.withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			tmpl, err := a.Templates.Import(ctx, g.projectID, data, templates.FormatForPath(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %s as %s (%d domains)\n", tmpl.Name, tmpl.ToolType, len(tmpl.Domains))
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset <tool>",
		Short: "Drop the project's customisation of a tool",
		Args:  cobra.ExactArgs(1),
		RunE: g.withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			tool, err := models.ParseToolType(args[0])
			if err != nil {
				return err
			}
			tmpl, err := a.Templates.Reset(ctx, g.projectID, tool)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset %s to %s\n", tool, tmpl.Name)
			return nil
		}),
	})
	return cmd
}

func detectCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "detect <studies.json>",
		Short: "Detect the design of one study or a list of studies",
		Args:  cobra.ExactArgs(1),
		RunE: g.withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			studies, single, err := readStudies(args[0])
			if err != nil {
				return err
			}
			if single {
				result, err := a.Detector.Detect(ctx, studies[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			}
			batch, err := a.Detector.DetectBatch(ctx, studies, func(current, total int) {
				fmt.Fprintf(cmd.ErrOrStderr(), "\rdetecting %d/%d", current, total)
			})
			fmt.Fprintln(cmd.ErrOrStderr())
			if printErr := printJSON(cmd.OutOrStdout(), batch); printErr != nil {
				return printErr
			}
			return err
		}),
	}
}

func assessCmd(g *globalOptions) *cobra.Command {
	var (
		toolName string
		label    string
		assessor string
		force    bool
	)
	cmd := &cobra.Command{
		Use:   "assess <studies.json>",
		Short: "Assess one study or a list of studies with a tool",
		Args:  cobra.ExactArgs(1),
		RunE: g.withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			tool, err := models.ParseToolType(toolName)
			if err != nil {
				return err
			}
			studies, single, err := readStudies(args[0])
			if err != nil {
				return err
			}
			if single {
				assessment, err := a.Assessor.Assess(ctx, models.AssessRequest{
					ProjectID:       g.projectID,
					Study:           studies[0],
					Tool:            tool,
					ComparisonLabel: label,
					AssessorID:      assessor,
					ForceRefresh:    force,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), assessment)
			}
			result, err := a.Assessor.AssessBatch(ctx, g.projectID, tool, studies, engine.BatchOptions{
				ComparisonLabel: label,
				AssessorID:      assessor,
				ForceRefresh:    force,
				Progress: func(current, total int, message string) {
					fmt.Fprintf(cmd.ErrOrStderr(), "[%d/%d] %s\n", current, total, message)
				},
			})
			if printErr := printJSON(cmd.OutOrStdout(), result); printErr != nil {
				return printErr
			}
			return err
		}),
	}
	cmd.Flags().StringVarP(&toolName, "tool", "t", string(models.ToolRoB2), "Assessment tool")
	cmd.Flags().StringVar(&label, "label", "", "Comparison label")
	cmd.Flags().StringVar(&assessor, "assessor", "", "Assessor id recorded in the audit trail")
	cmd.Flags().BoolVar(&force, "force", false, "Re-run even when a stored assessment exists")
	return cmd
}

func verifyCmd(g *globalOptions) *cobra.Command {
	var assessmentID, domainID, judgment, notes, user string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Record a human judgment for one domain of an assessment",
		Args:  cobra.NoArgs,
		RunE: g.withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
			level, err := api.ParseJudgment(judgment)
			if err != nil {
				return err
			}
			assessment, err := a.Assessor.Verify(ctx, models.VerifyRequest{
				ProjectID:     g.projectID,
				AssessmentID:  assessmentID,
				DomainID:      domainID,
				Judgment:      level,
				OverrideNotes: notes,
				UserID:        user,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "overall %s, status %s, verified %d/%d\n",
				assessment.OverallJudgment.Label(), assessment.Status,
				assessment.VerifiedCount(), len(assessment.DomainJudgments))
			return nil
		}),
	}
	cmd.Flags().StringVar(&assessmentID, "assessment", "", "Assessment id")
	cmd.Flags().StringVar(&domainID, "domain", "", "Domain id")
	cmd.Flags().StringVar(&judgment, "judgment", "", "Judgment (e.g. low, some_concerns, \"High Risk\")")
	cmd.Flags().StringVar(&notes, "notes", "", "Override notes")
	cmd.Flags().StringVar(&user, "user", "", "Reviewer id")
	_ = cmd.MarkFlagRequired("assessment")
	_ = cmd.MarkFlagRequired("domain")
	_ = cmd.MarkFlagRequired("judgment")
	return cmd
}

func estimateCmd(g *globalOptions) *cobra.Command {
	var (
		n        int
		avgLen   int
		toolName string
	)
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Project the LLM cost of assessing a number of studies",
		Args:  cobra.NoArgs,
		RunE: g.withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
			tool, err := models.ParseToolType(toolName)
			if err != nil {
				return err
			}
			est, err := a.Assessor.EstimateCost(ctx, g.projectID, tool, n, avgLen)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), est)
		}),
	}
	cmd.Flags().IntVarP(&n, "studies", "n", 1, "Number of studies")
	cmd.Flags().IntVar(&avgLen, "avg-len", engine.DefaultAvgTextLen, "Average study text length in characters")
	cmd.Flags().StringVarP(&toolName, "tool", "t", string(models.ToolRoB2), "Assessment tool")
	return cmd
}

func exportCmd(g *globalOptions) *cobra.Command {
	var format, out string
	var signaling bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the project's assessments as csv, json or revman",
		Args:  cobra.NoArgs,
		RunE: g.withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
			data, err := a.Service.ExportAssessments(ctx, g.projectID, format, signaling)
			if err != nil {
				return err
			}
			return writeOutput(cmd, out, data)
		}),
	}
	cmd.Flags().StringVarP(&format, "format", "f", export.FormatCSV, "csv, json or revman")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (stdout when empty)")
	cmd.Flags().BoolVar(&signaling, "signaling", false, "Include signaling question columns in CSV")
	return cmd
}

func statsCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarise the project's assessments",
		Args:  cobra.NoArgs,
		RunE: g.withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
			stats, err := a.Assessor.ProjectStatistics(ctx, g.projectID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		}),
	}
}

// readStudies accepts a single study object or an array of studies.
func readStudies(path string) ([]models.Study, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, err
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var studies []models.Study
		if err := json.Unmarshal(data, &studies); err != nil {
			return nil, false, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
		}
		if len(studies) == 0 {
			return nil, false, fmt.Errorf("%s contains no studies", filepath.Base(path))
		}
		return studies, false, nil
	}
	var study models.Study
	if err := json.Unmarshal(data, &study); err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if study.ID == "" {
		return nil, false, fmt.Errorf("%s: study id is required", filepath.Base(path))
	}
	return []models.Study{study}, true, nil
}

func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	slog.Debug("wrote output", slog.String("path", path), slog.Int("bytes", len(data)))
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
