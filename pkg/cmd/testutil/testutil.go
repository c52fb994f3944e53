package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pseudomuto/stagekeeper/pkg/config"
	"github.com/pseudomuto/stagekeeper/pkg/consts"
	"github.com/stretchr/testify/require"
)

// ProjectFixture is a temp directory holding a stagekeeper.yaml and the files
// its stages refer to.
type ProjectFixture struct {
	Dir    string
	Config *config.Config
	t      *testing.T
}

// TestProject writes configYAML to a temp dir and loads it. Use WithFile to
// add scripts before the config is used.
func TestProject(t *testing.T, configYAML string) *ProjectFixture {
	t.Helper()

	p := &ProjectFixture{Dir: t.TempDir(), t: t}
	p.WithFile(consts.DefaultConfigFile, configYAML)

	cfg, err := config.LoadConfigFile(p.ConfigPath())
	require.NoError(t, err, "Failed to load config file")

	p.Config = cfg
	return p
}

// WithFile writes content to a path relative to the project dir
func (p *ProjectFixture) WithFile(rel, content string) *ProjectFixture {
	p.t.Helper()

	path := filepath.Join(p.Dir, rel)
	require.NoError(p.t, os.MkdirAll(filepath.Dir(path), consts.ModeDir))
	require.NoError(p.t, os.WriteFile(path, []byte(content), consts.ModeFile), "Failed to write %s", rel)

	return p
}

// ConfigPath returns the absolute path of stagekeeper.yaml
func (p *ProjectFixture) ConfigPath() string {
	return filepath.Join(p.Dir, consts.DefaultConfigFile)
}

// LogDir returns the resolved log directory
func (p *ProjectFixture) LogDir() string {
	return p.Config.LogDir
}

// RequireFileContains fails unless the file at path contains every snippet
func RequireFileContains(t *testing.T, path string, snippets ...string) {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err, "File should exist: %s", path)

	for _, s := range snippets {
		require.Contains(t, string(data), s)
	}
}
