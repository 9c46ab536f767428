// Package doctor validates modhost configuration against the module search path.
package doctor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mattjoyce/modhost/internal/config"
	"github.com/mattjoyce/modhost/internal/loader"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// DisplayModuleID is the module that provides the display backend.
const DisplayModuleID = "ui-remote"

// Doctor validates configuration against the modules found on disk.
type Doctor struct {
	cfg     *config.Config
	builtin []string
	modules *loader.Loader

	// supported reports whether this build can open modules at all.
	supported func() bool
}

// New creates a Doctor. builtin lists the module ids linked into the host
// binary; they need no file on disk.
func New(cfg *config.Config, builtin []string) *Doctor {
	return &Doctor{
		cfg:       cfg,
		builtin:   builtin,
		modules:   loader.New(loader.Config{Dirs: cfg.SearchDirs()}),
		supported: loader.Supported,
	}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateHostConfig(r)
	d.validateModuleDirs(r)
	d.validatePreload(r)
	d.validateDispatchOrder(r)
	d.validateDisplay(r)
	d.validateJournal(r)
	d.validateAPIConfig(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateHostConfig(r *Result) {
	switch d.cfg.Host.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		d.addError(r, "host", "host.log_level",
			fmt.Sprintf("unknown log level %q (expected debug, info, warn or error)", d.cfg.Host.LogLevel))
	}
	if d.cfg.Host.LogFormat != "json" && d.cfg.Host.LogFormat != "text" {
		d.addError(r, "host", "host.log_format",
			fmt.Sprintf("unknown log format %q (expected json or text)", d.cfg.Host.LogFormat))
	}
}

// validateModuleDirs checks that configured module dirs exist.
func (d *Doctor) validateModuleDirs(r *Result) {
	for i, dir := range d.cfg.Modules.Dirs {
		field := fmt.Sprintf("modules.dirs[%d]", i)
		info, err := os.Stat(dir)
		switch {
		case os.IsNotExist(err):
			d.addWarning(r, "modules", field, fmt.Sprintf("module dir %q does not exist", dir))
		case err != nil:
			d.addError(r, "modules", field, fmt.Sprintf("module dir %q: %v", dir, err))
		case !info.IsDir():
			d.addError(r, "modules", field, fmt.Sprintf("module dir %q is not a directory", dir))
		case info.Mode().Perm()&0o002 != 0:
			d.addError(r, "modules", field, fmt.Sprintf("module dir %q is world-writable; modules in it will be refused", dir))
		}
	}
}

// validatePreload checks that every preload names a valid module id and that
// a file for it is on the search path.
func (d *Doctor) validatePreload(r *Result) {
	preload := d.cfg.Modules.Preload
	if len(preload) == 0 {
		return
	}

	if !d.supported() {
		for i, ref := range preload {
			if d.isBuiltin(ref.ID()) {
				continue
			}
			field := fmt.Sprintf("modules.preload[%d]", i)
			msg := fmt.Sprintf("module %q cannot be loaded: this build has no module loading support", ref.ID())
			if ref.Required {
				d.addError(r, "modules", field, msg)
			} else {
				d.addWarning(r, "modules", field, msg)
			}
		}
		return
	}

	for i, ref := range preload {
		field := fmt.Sprintf("modules.preload[%d]", i)
		id, err := loader.ModuleID(ref.Prefix, ref.Name)
		if err != nil {
			d.addError(r, "modules", field, err.Error())
			continue
		}
		if d.isBuiltin(id) {
			continue
		}
		if slices.Contains(d.modules.Available(ref.Prefix), id) {
			continue
		}
		msg := fmt.Sprintf("module %q not found in search path (%s)", id, loader.FileName(id))
		if ref.Required {
			d.addError(r, "modules", field, msg)
		} else {
			d.addWarning(r, "modules", field, msg)
		}
	}
}

func (d *Doctor) validateDispatchOrder(r *Result) {
	if _, err := d.cfg.DispatchOrder(); err != nil {
		d.addError(r, "dispatch", "modules.dispatch_order", err.Error())
	}
}

// validateDisplay checks that an enabled display has a backend to bind.
func (d *Doctor) validateDisplay(r *Result) {
	dc := d.cfg.Display
	if !dc.Enabled {
		return
	}
	if !d.isBuiltin(DisplayModuleID) && !d.isPreloaded(DisplayModuleID) {
		d.addError(r, "display", "display.enabled",
			fmt.Sprintf("display enabled but %q is neither built in nor preloaded", DisplayModuleID))
	}
	for field, port := range map[string]int{"display.port": dc.Port, "display.tls_port": dc.TLSPort} {
		if port < 0 || port > 65535 {
			d.addError(r, "display", field, fmt.Sprintf("port %d out of range", port))
		}
	}
	if dc.Password == "" {
		d.addWarning(r, "display", "display.password", "no password set; clients connect without a ticket")
	}
}

func (d *Doctor) validateJournal(r *Result) {
	jc := d.cfg.Journal
	if !jc.Enabled {
		return
	}
	if jc.Path == "" {
		d.addError(r, "journal", "journal.path", "journal.path is required when the journal is enabled")
		return
	}
	if jc.Path == ":memory:" {
		d.addWarning(r, "journal", "journal.path", "in-memory journal is lost on exit")
		return
	}
	if info, err := os.Stat(filepath.Dir(jc.Path)); err == nil && !info.IsDir() {
		d.addError(r, "journal", "journal.path",
			fmt.Sprintf("parent of %q is not a directory", jc.Path))
	}
}

func (d *Doctor) validateAPIConfig(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	if d.cfg.API.Listen == "" {
		d.addError(r, "api", "api.listen", "api.listen is required when API is enabled")
		return
	}
	loopback := strings.HasPrefix(d.cfg.API.Listen, "127.0.0.1:") || strings.HasPrefix(d.cfg.API.Listen, "localhost:")
	if !loopback && d.cfg.API.APIKey == "" {
		d.addWarning(r, "api", "api.listen",
			fmt.Sprintf("introspection API listens on %q without authentication", d.cfg.API.Listen))
	}
}

func (d *Doctor) isBuiltin(id string) bool {
	return slices.Contains(d.builtin, id)
}

func (d *Doctor) isPreloaded(id string) bool {
	for _, ref := range d.cfg.Modules.Preload {
		if ref.ID() == id {
			return true
		}
	}
	return false
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid {
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	} else {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		writeIssue(&b, "ERROR", e)
	}
	for _, w := range r.Warnings {
		writeIssue(&b, "WARN ", w)
	}
	return b.String()
}

func writeIssue(b *strings.Builder, level string, i Issue) {
	if i.Field != "" {
		fmt.Fprintf(b, "  %s [%s] %s: %s\n", level, i.Category, i.Field, i.Message)
		return
	}
	fmt.Fprintf(b, "  %s [%s] %s\n", level, i.Category, i.Message)
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
