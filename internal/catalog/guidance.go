package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-rob/internal/models"
)

//go:embed guidance.yaml
var defaultGuidance []byte

// GuidancePack supplies tool-specific supplementary prompt guidance.
type GuidancePack struct {
	byTool map[models.ToolType]string
	logger *slog.Logger
}

// GuidanceEntry is one guidance block shared by one or more tools.
type GuidanceEntry struct {
	ID    string   `yaml:"id"`
	Tools []string `yaml:"tools"`
	Text  string   `yaml:"text"`
}

// GuidanceFile is the YAML root structure.
type GuidanceFile struct {
	Guidance []GuidanceEntry `yaml:"guidance"`
}

// NewGuidancePack loads the embedded guidance and layers the file at path over it.
// A missing override file is not an error.
func NewGuidancePack(path string, logger *slog.Logger) (*GuidancePack, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pack := &GuidancePack{byTool: make(map[models.ToolType]string), logger: logger}
	if err := pack.apply(defaultGuidance); err != nil {
		return nil, fmt.Errorf("embedded guidance: %w", err)
	}
	if path == "" {
		return pack, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("guidance override not found", slog.String("path", path))
			return pack, nil
		}
		return nil, err
	}
	if err := pack.apply(data); err != nil {
		return nil, fmt.Errorf("guidance %s: %w", path, err)
	}
	return pack, nil
}

func (g *GuidancePack) apply(data []byte) error {
	var file GuidanceFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}
	for _, entry := range file.Guidance {
		for _, raw := range entry.Tools {
			tool, err := models.ParseToolType(raw)
			if err != nil {
				return fmt.Errorf("entry %q: %w", entry.ID, err)
			}
			g.byTool[tool] = strings.TrimSpace(entry.Text)
		}
	}
	return nil
}

// For returns the guidance for tool, or an empty string. Safe on a nil pack.
func (g *GuidancePack) For(tool models.ToolType) string {
	if g == nil {
		return ""
	}
	return g.byTool[tool]
}
