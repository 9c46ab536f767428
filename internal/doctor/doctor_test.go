package doctor

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/mattjoyce/modhost/internal/config"
	"github.com/mattjoyce/modhost/internal/loader"
)

func validConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.Modules.Dirs = []string{dir}
	cfg.Journal.Path = filepath.Join(t.TempDir(), "modhost.db")
	return cfg
}

func placeModule(t *testing.T, cfg *config.Config, id string) {
	t.Helper()
	path := filepath.Join(cfg.Modules.Dirs[0], loader.FileName(id))
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write module: %v", err)
	}
}

func newDoctor(cfg *config.Config, builtin ...string) *Doctor {
	d := New(cfg, builtin)
	d.supported = func() bool { return true }
	return d
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()
	r := newDoctor(validConfig(t)).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got: %v", r.Warnings)
	}
}

func TestValidate_BadLogSettings(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Host.LogLevel = "loud"
	cfg.Host.LogFormat = "xml"
	r := newDoctor(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "host", "log level")
	assertHasError(t, r, "host", "log format")
}

func TestValidate_ModuleDirs(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.Modules.Dirs = append(cfg.Modules.Dirs, filepath.Join(t.TempDir(), "missing"), file)

	r := newDoctor(cfg).Validate()
	assertHasWarning(t, r, "modules", "does not exist")
	assertHasError(t, r, "modules", "is not a directory")
}

func TestValidate_WorldWritableModuleDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not enforced on windows")
	}
	t.Parallel()
	cfg := validConfig(t)
	if err := os.Chmod(cfg.Modules.Dirs[0], 0o777); err != nil {
		t.Fatal(err)
	}

	r := newDoctor(cfg).Validate()
	assertHasError(t, r, "modules", "world-writable")
}

func TestValidate_PreloadPresent(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	placeModule(t, cfg, "block-curl")
	cfg.Modules.Preload = []config.ModuleRef{{Prefix: loader.BlockPrefix, Name: "curl", Required: true}}

	r := newDoctor(cfg).Validate()
	if !r.Valid || len(r.Warnings) != 0 {
		t.Fatalf("expected clean result, got errors=%v warnings=%v", r.Errors, r.Warnings)
	}
}

func TestValidate_PreloadMissing(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Modules.Preload = []config.ModuleRef{
		{Prefix: loader.BlockPrefix, Name: "curl"},
		{Prefix: loader.AudioPrefix, Name: "alsa", Required: true},
	}

	r := newDoctor(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasWarning(t, r, "modules", `"block-curl" not found`)
	assertHasError(t, r, "modules", `"audio-alsa" not found`)
}

func TestValidate_PreloadInvalidName(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Modules.Preload = []config.ModuleRef{{Prefix: "Block-", Name: "curl"}}

	r := newDoctor(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	if len(r.Errors) != 1 || r.Errors[0].Field != "modules.preload[0]" {
		t.Fatalf("unexpected errors: %v", r.Errors)
	}
}

func TestValidate_PreloadBuiltinNeedsNoFile(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Modules.Preload = []config.ModuleRef{{Prefix: loader.UIPrefix, Name: "remote", Required: true}}

	r := newDoctor(cfg, DisplayModuleID).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
}

func TestValidate_LoadingUnsupported(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	placeModule(t, cfg, "block-curl")
	cfg.Modules.Preload = []config.ModuleRef{
		{Prefix: loader.BlockPrefix, Name: "curl", Required: true},
		{Prefix: loader.AudioPrefix, Name: "alsa"},
	}

	d := New(cfg, nil)
	d.supported = func() bool { return false }
	r := d.Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "modules", "no module loading support")
	assertHasWarning(t, r, "modules", `"audio-alsa" cannot be loaded`)
}

func TestValidate_DispatchOrder(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Modules.DispatchOrder = []string{"block", "block"}

	r := newDoctor(cfg).Validate()
	assertHasError(t, r, "dispatch", "listed twice")
}

func TestValidate_DisplayWithoutBackend(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Display.Enabled = true
	cfg.Display.Password = "secret"

	r := newDoctor(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "display", "neither built in nor preloaded")

	r = newDoctor(cfg, DisplayModuleID).Validate()
	if !r.Valid {
		t.Fatalf("expected valid with built-in backend, got: %v", r.Errors)
	}
}

func TestValidate_DisplayChecks(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Display.Enabled = true
	cfg.Display.TLSPort = 70000

	r := newDoctor(cfg, DisplayModuleID).Validate()
	assertHasError(t, r, "display", "port 70000 out of range")
	assertHasWarning(t, r, "display", "without a ticket")
}

func TestValidate_Journal(t *testing.T) {
	t.Parallel()

	cfg := validConfig(t)
	cfg.Journal.Path = ""
	assertHasError(t, newDoctor(cfg).Validate(), "journal", "journal.path is required")

	cfg = validConfig(t)
	cfg.Journal.Path = ":memory:"
	assertHasWarning(t, newDoctor(cfg).Validate(), "journal", "lost on exit")

	cfg = validConfig(t)
	cfg.Journal.Enabled = false
	cfg.Journal.Path = ""
	if r := newDoctor(cfg).Validate(); !r.Valid {
		t.Fatalf("disabled journal should not be checked: %v", r.Errors)
	}
}

func TestValidate_API(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.API.Enabled = true
	cfg.API.Listen = ""
	assertHasError(t, newDoctor(cfg).Validate(), "api", "api.listen is required")

	cfg.API.Listen = "0.0.0.0:8931"
	assertHasWarning(t, newDoctor(cfg).Validate(), "api", "without authentication")
}

func TestFormatHuman_Valid(t *testing.T) {
	t.Parallel()
	out := FormatHuman(&Result{Valid: true})
	if out != "Configuration valid.\n" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFormatHuman_Errors(t *testing.T) {
	t.Parallel()
	r := &Result{
		Valid:    false,
		Errors:   []Issue{{Category: "test", Field: "x.y", Message: "broken"}},
		Warnings: []Issue{{Category: "test", Message: "odd"}},
	}
	out := FormatHuman(r)
	if !strings.Contains(out, "ERROR [test] x.y: broken") || !strings.Contains(out, "WARN  [test] odd") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestFormatJSON(t *testing.T) {
	t.Parallel()
	out, err := FormatJSON(&Result{Valid: true, Warnings: []Issue{{Category: "c", Message: "m"}}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"valid": true`) || strings.Contains(out, `"errors"`) {
		t.Fatalf("unexpected JSON: %s", out)
	}
}

// --- helpers ---

func assertHasError(t *testing.T, r *Result, category, substring string) {
	t.Helper()
	for _, e := range r.Errors {
		if e.Category == category && strings.Contains(e.Message, substring) {
			return
		}
	}
	t.Fatalf("expected error with category=%q containing %q, got: %v", category, substring, r.Errors)
}

func assertHasWarning(t *testing.T, r *Result, category, substring string) {
	t.Helper()
	for _, w := range r.Warnings {
		if w.Category == category && strings.Contains(w.Message, substring) {
			return
		}
	}
	t.Fatalf("expected warning with category=%q containing %q, got: %v", category, substring, r.Warnings)
}
