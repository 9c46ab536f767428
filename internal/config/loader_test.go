package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/modhost/internal/module"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "modhost", cfg.Host.Name)
	assert.Equal(t, "info", cfg.Host.LogLevel)
	assert.True(t, cfg.Journal.Enabled)
	assert.False(t, cfg.Display.Enabled)
	assert.Empty(t, cfg.SourcePath)
}

func TestLoadFile(t *testing.T) {
	t.Setenv("MODHOST_TEST_PW", "s3cret")
	path := writeConfig(t, `
host:
  name: lab
  log_level: debug
  log_format: text
modules:
  dirs: [mods, /opt/modhost/modules]
  preload:
    - {prefix: "ui-", name: remote, required: true}
    - {prefix: "block-", name: curl}
  dispatch_order: [trace, types]
display:
  enabled: true
  port: 5900
  password: ${MODHOST_TEST_PW}
journal:
  enabled: true
  path: data/journal.db
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	base := filepath.Dir(path)
	assert.Equal(t, path, cfg.SourcePath)
	assert.Equal(t, "lab", cfg.Host.Name)
	assert.Equal(t, "text", cfg.Host.LogFormat)
	assert.Equal(t, []string{filepath.Join(base, "mods"), "/opt/modhost/modules"}, cfg.Modules.Dirs)
	assert.Equal(t, filepath.Join(base, "data", "journal.db"), cfg.Journal.Path)
	require.Len(t, cfg.Modules.Preload, 2)
	assert.Equal(t, "ui-remote", cfg.Modules.Preload[0].ID())
	assert.True(t, cfg.Modules.Preload[0].Required)
	assert.Equal(t, "s3cret", cfg.Display.Password)
	assert.Equal(t, "127.0.0.1", cfg.Display.Addr, "unset keys keep defaults")

	order, err := cfg.DispatchOrder()
	require.NoError(t, err)
	assert.Equal(t, []module.Category{
		module.Trace, module.TypeSystem,
		module.Migration, module.Block, module.Opts, module.DisplayBackend, module.TestHarness, module.FuzzTarget,
	}, order)
}

func TestLoadDirectoryUsesConfigYAML(t *testing.T) {
	path := writeConfig(t, "host:\n  name: fromdir\n")
	cfg, err := Load(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, "fromdir", cfg.Host.Name)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MODHOST_MODULE_DIR", "/env/modules")
	t.Setenv("MODHOST_LOG_LEVEL", "WARN")
	t.Setenv("MODHOST_JOURNAL_PATH", "/env/journal.db")

	path := writeConfig(t, "modules:\n  dirs: [/file/modules]\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/env/modules", "/file/modules"}, cfg.Modules.Dirs)
	assert.Equal(t, "warn", cfg.Host.LogLevel)
	assert.Equal(t, "/env/journal.db", cfg.Journal.Path)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "bad log level",
			content: "host:\n  log_level: loud\n",
			wantErr: "host.log_level",
		},
		{
			name:    "bad log format",
			content: "host:\n  log_format: xml\n",
			wantErr: "host.log_format",
		},
		{
			name:    "preload without name",
			content: "modules:\n  preload:\n    - {prefix: \"ui-\"}\n",
			wantErr: "modules.preload[0].name is required",
		},
		{
			name:    "duplicate preload",
			content: "modules:\n  preload:\n    - {prefix: \"ui-\", name: remote}\n    - {prefix: \"ui-\", name: remote}\n",
			wantErr: `"ui-remote" already listed`,
		},
		{
			name:    "unknown category",
			content: "modules:\n  dispatch_order: [xen]\n",
			wantErr: `unknown init category "xen"`,
		},
		{
			name:    "category twice",
			content: "modules:\n  dispatch_order: [block, block]\n",
			wantErr: "listed twice",
		},
		{
			name:    "display without port",
			content: "display:\n  enabled: true\n  port: 0\n",
			wantErr: "display.port",
		},
		{
			name:    "unset env in module dir",
			content: "modules:\n  dirs: [\"${MODHOST_TEST_UNSET_VAR}\"]\n",
			wantErr: "${MODHOST_TEST_UNSET_VAR} is not set",
		},
		{
			name:    "api without listen",
			content: "api:\n  enabled: true\n  listen: \"\"\n",
			wantErr: "api.listen",
		},
		{
			name:    "journal without path",
			content: "journal:\n  enabled: true\n  path: \"\"\n",
			wantErr: "journal.path",
		},
		{
			name:    "invalid yaml",
			content: "host: [\n",
			wantErr: "failed to parse config YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "config file not found")
}

func TestSearchDirs(t *testing.T) {
	cfg := Defaults()
	cfg.Modules.Dirs = []string{"/first"}

	dirs := cfg.SearchDirs()
	require.GreaterOrEqual(t, len(dirs), 3)
	assert.Equal(t, "/first", dirs[0])

	exe, err := os.Executable()
	require.NoError(t, err)
	assert.Equal(t, filepath.Dir(exe), dirs[1])
	assert.Contains(t, dirs, filepath.Join(xdg.DataHome, AppDirName, "modules"))
}
