package catalog

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-rob/internal/models"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Catalog holds the parsed builtin instruments. Callers only ever receive copies.
type Catalog struct {
	templates map[models.ToolType]*models.Template
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the process-wide catalog parsed from the embedded definitions.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = Load(builtinFS)
	})
	return defaultCatalog, defaultErr
}

// MustDefault is Default for program start-up paths.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// Load parses every builtin/*.yaml document in fsys.
func Load(fsys fs.FS) (*Catalog, error) {
	files, err := fs.Glob(fsys, "builtin/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("list builtin templates: %w", err)
	}
	c := &Catalog{templates: make(map[models.ToolType]*models.Template, len(files))}
	for _, name := range files {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		var tmpl models.Template
		if err := yaml.Unmarshal(data, &tmpl); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		tmpl.IsBuiltin = true
		tmpl.IsCustomized = false
		if err := tmpl.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path.Base(name), err)
		}
		if _, dup := c.templates[tmpl.ToolType]; dup {
			return nil, fmt.Errorf("%s: duplicate builtin for %s", path.Base(name), tmpl.ToolType)
		}
		c.templates[tmpl.ToolType] = &tmpl
	}
	return c, nil
}

// Builtin returns a deep copy of the builtin template for tool.
func (c *Catalog) Builtin(tool models.ToolType) (*models.Template, error) {
	tmpl, ok := c.templates[tool]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownTool, tool)
	}
	return tmpl.Clone(), nil
}

// Tools returns the builtin tool types in catalog order.
func (c *Catalog) Tools() []models.ToolType {
	out := make([]models.ToolType, 0, len(c.templates))
	for _, tool := range models.BuiltinTools {
		if _, ok := c.templates[tool]; ok {
			out = append(out, tool)
		}
	}
	return out
}

var displayNames = map[models.ToolType]string{
	models.ToolRoB2:              "Cochrane RoB 2 (RCTs)",
	models.ToolROBINSI:           "ROBINS-I (Non-randomized studies)",
	models.ToolNOSCohort:         "Newcastle-Ottawa Scale (Cohort)",
	models.ToolNOSCaseControl:    "Newcastle-Ottawa Scale (Case-Control)",
	models.ToolNOSCrossSectional: "Newcastle-Ottawa Scale (Cross-Sectional)",
	models.ToolQUADAS2:           "QUADAS-2 (Diagnostic accuracy)",
	models.ToolJBIRCT:            "JBI Critical Appraisal (RCTs)",
	models.ToolJBICohort:         "JBI Critical Appraisal (Cohort)",
	models.ToolJBIQualitative:    "JBI Critical Appraisal (Qualitative)",
	models.ToolCustom:            "Custom Template",
}

// DisplayName returns the human-facing name of a tool.
func DisplayName(tool models.ToolType) string {
	if name, ok := displayNames[tool]; ok {
		return name
	}
	return string(tool)
}

// Canonical study design labels.
const (
	DesignRCT            = "RCT"
	DesignNonRandomized  = "Non-randomized interventional"
	DesignCohort         = "Cohort"
	DesignCaseControl    = "Case-control"
	DesignCrossSectional = "Cross-sectional"
	DesignDiagnostic     = "Diagnostic accuracy"
	DesignQualitative    = "Qualitative"
	DesignUnknown        = "Unknown"
)

var designTools = map[string]models.ToolType{
	DesignRCT:            models.ToolRoB2,
	DesignNonRandomized:  models.ToolROBINSI,
	DesignCohort:         models.ToolNOSCohort,
	DesignCaseControl:    models.ToolNOSCaseControl,
	DesignCrossSectional: models.ToolNOSCrossSectional,
	DesignDiagnostic:     models.ToolQUADAS2,
	DesignQualitative:    models.ToolJBIQualitative,
}

var recommendedByDesign = map[string][]models.ToolType{
	DesignRCT:            {models.ToolRoB2, models.ToolJBIRCT},
	DesignCohort:         {models.ToolNOSCohort, models.ToolJBICohort, models.ToolROBINSI},
	DesignCaseControl:    {models.ToolNOSCaseControl},
	DesignCrossSectional: {models.ToolNOSCrossSectional},
	DesignNonRandomized:  {models.ToolROBINSI},
	DesignDiagnostic:     {models.ToolQUADAS2},
	DesignQualitative:    {models.ToolJBIQualitative},
}

// ToolForDesign returns the primary tool for a canonical design label, or nos_cohort.
func ToolForDesign(design string) models.ToolType {
	if tool, ok := designTools[design]; ok {
		return tool
	}
	return models.ToolNOSCohort
}

// RecommendedTools returns the tools suited to a free-text design description.
func RecommendedTools(design string) []models.ToolType {
	key := NormalizeDesign(design)
	if tools, ok := recommendedByDesign[key]; ok {
		return append([]models.ToolType(nil), tools...)
	}
	return []models.ToolType{models.ToolNOSCohort}
}

// NormalizeDesign maps a free-text design description onto a canonical label.
// Checks run in a fixed order so "non-randomized" is never read as randomized.
func NormalizeDesign(design string) string {
	d := strings.ToLower(design)
	switch {
	case strings.Contains(d, "non-randomized"), strings.Contains(d, "non-randomised"),
		strings.Contains(d, "nonrandomized"), strings.Contains(d, "quasi"):
		return DesignNonRandomized
	case strings.Contains(d, "rct"), strings.Contains(d, "randomized"), strings.Contains(d, "randomised"):
		return DesignRCT
	case strings.Contains(d, "cohort"):
		return DesignCohort
	case strings.Contains(d, "case-control"), strings.Contains(d, "case control"):
		return DesignCaseControl
	case strings.Contains(d, "cross-sectional"), strings.Contains(d, "cross sectional"):
		return DesignCrossSectional
	case strings.Contains(d, "diagnostic"):
		return DesignDiagnostic
	case strings.Contains(d, "qualitative"):
		return DesignQualitative
	}
	return DesignUnknown
}
