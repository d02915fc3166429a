package templates

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/miradorstack/mirador-rob/internal/models"
)

// DefaultWatchPattern selects template files below the watched directory.
const DefaultWatchPattern = "**/*.{yaml,yml,json}"

// Importer persists a serialised template into a project.
type Importer interface {
	Import(ctx context.Context, projectID string, data []byte, format string) (*models.Template, error)
}

// Watcher imports template files from a directory into one project, once at
// start and again whenever a matching file is written.
type Watcher struct {
	dir       string
	projectID string
	pattern   string
	importer  Importer
	logger    *slog.Logger
	debounce  time.Duration

	mu      sync.Mutex
	pending map[string]time.Time
}

// NewWatcher validates the pattern and directory.
func NewWatcher(dir, projectID string, importer Importer, logger *slog.Logger) (*Watcher, error) {
	if dir == "" {
		return nil, errors.New("watch directory is required")
	}
	if importer == nil {
		return nil, errors.New("importer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if !doublestar.ValidatePattern(DefaultWatchPattern) {
		return nil, fmt.Errorf("invalid watch pattern %q", DefaultWatchPattern)
	}
	return &Watcher{
		dir:       dir,
		projectID: projectID,
		pattern:   DefaultWatchPattern,
		importer:  importer,
		logger:    logger,
		debounce:  250 * time.Millisecond,
		pending:   make(map[string]time.Time),
	}, nil
}

// Sync imports every matching file now and returns how many succeeded.
// Files that fail to import are logged and skipped.
func (w *Watcher) Sync(ctx context.Context) (int, error) {
	matches, err := doublestar.Glob(os.DirFS(w.dir), w.pattern)
	if err != nil {
		return 0, fmt.Errorf("glob %s: %w", w.dir, err)
	}
	imported := 0
	for _, rel := range matches {
		if w.importFile(ctx, filepath.Join(w.dir, filepath.FromSlash(rel))) {
			imported++
		}
	}
	return imported, nil
}

// Run syncs the directory and then watches it until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	if err := w.addDirs(fsw); err != nil {
		return err
	}
	if _, err := w.Sync(ctx); err != nil {
		return err
	}
	w.logger.Info("template watcher started",
		slog.String("dir", w.dir),
		slog.String("project_id", w.projectID))

	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(fsw, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("template watcher error", slog.Any("error", err))
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) addDirs(fsw *fsnotify.Watcher) error {
	return filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := fsw.Add(path); err != nil {
				return fmt.Errorf("watch %s: %w", path, err)
			}
		}
		return nil
	})
}

func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = fsw.Add(event.Name)
			return
		}
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	if !w.matches(event.Name) {
		return
	}
	w.mu.Lock()
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) matches(path string) bool {
	rel, err := filepath.Rel(w.dir, path)
	if err != nil {
		return false
	}
	ok, err := doublestar.Match(w.pattern, filepath.ToSlash(rel))
	return err == nil && ok
}

// flush imports files whose last event is older than the debounce window.
func (w *Watcher) flush(ctx context.Context) {
	cutoff := time.Now().Add(-w.debounce)
	var ready []string
	w.mu.Lock()
	for path, seen := range w.pending {
		if seen.Before(cutoff) {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()
	for _, path := range ready {
		w.importFile(ctx, path)
	}
}

func (w *Watcher) importFile(ctx context.Context, path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("read template file", slog.String("path", path), slog.Any("error", err))
		return false
	}
	tmpl, err := w.importer.Import(ctx, w.projectID, data, FormatForPath(path))
	if err != nil {
		w.logger.Warn("import template file", slog.String("path", path), slog.Any("error", err))
		return false
	}
	w.logger.Debug("template file imported",
		slog.String("path", path),
		slog.String("tool_type", string(tmpl.ToolType)))
	return true
}
