package templates

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-rob/internal/models"
)

func writeTemplateFile(t *testing.T, m *Manager, path string, tool models.ToolType, name string) {
	t.Helper()
	tmpl, err := m.Builtin(tool)
	require.NoError(t, err)
	tmpl.Name = name
	tmpl.ID = ""
	var data []byte
	if FormatForPath(path) == FormatYAML {
		data, err = yaml.Marshal(tmpl)
	} else {
		data, err = json.Marshal(tmpl)
	}
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func TestWatcherSyncImportsMatchingFiles(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	dir := t.TempDir()

	writeTemplateFile(t, m, filepath.Join(dir, "rob2.yaml"), models.ToolRoB2, "Team RoB 2")
	writeTemplateFile(t, m, filepath.Join(dir, "nested", "quadas.json"), models.ToolQUADAS2, "Team QUADAS")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o600))

	w, err := NewWatcher(dir, "team", m, nil)
	require.NoError(t, err)
	n, err := w.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := m.Get(ctx, "team", models.ToolQUADAS2)
	require.NoError(t, err)
	assert.Equal(t, "Team QUADAS", got.Name)
}

func TestWatcherRunPicksUpWrites(t *testing.T) {
	m, _ := newTestManager(t)
	dir := t.TempDir()
	w, err := NewWatcher(dir, "team", m, nil)
	require.NoError(t, err)
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	writeTemplateFile(t, m, filepath.Join(dir, "jbi.yml"), models.ToolJBIRCT, "Watched JBI")

	require.Eventually(t, func() bool {
		got, err := m.Get(context.Background(), "team", models.ToolJBIRCT)
		return err == nil && got.Name == "Watched JBI"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatcherMatches(t *testing.T) {
	w, err := NewWatcher("/tmp/templates", "p", &Manager{}, nil)
	require.NoError(t, err)
	assert.True(t, w.matches("/tmp/templates/a.yaml"))
	assert.True(t, w.matches("/tmp/templates/x/y/b.json"))
	assert.False(t, w.matches("/tmp/templates/c.txt"))
}
