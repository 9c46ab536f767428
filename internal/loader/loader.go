package loader

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/mattjoyce/modhost/internal/log"
	"github.com/mattjoyce/modhost/internal/module"
	"github.com/mattjoyce/modhost/internal/stamp"
)

var (
	ErrNotFound        = errors.New("module not found")
	ErrNotAModule      = errors.New("not a module")
	ErrVersionMismatch = errors.New("module version mismatch")
)

// LoadError reports why a module id could not be loaded.
type LoadError struct {
	ID   string
	Path string
	Err  error
	// Hint is an optional operator-facing suggestion.
	Hint string
}

func (e *LoadError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "load module %s", e.ID)
	if e.Path != "" {
		fmt.Fprintf(&b, " (%s)", e.Path)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	if e.Hint != "" {
		fmt.Fprintf(&b, "; %s", e.Hint)
	}
	return b.String()
}

func (e *LoadError) Unwrap() error { return e.Err }

// Result classifies the outcome of a load.
type Result string

const (
	Success         Result = "success"
	NotFound        Result = "not_found"
	NotAModule      Result = "not_a_module"
	VersionMismatch Result = "version_mismatch"
	Failed          Result = "failed"
)

// Outcome maps an error returned by Load to a Result.
func Outcome(err error) Result {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, ErrVersionMismatch):
		return VersionMismatch
	case errors.Is(err, ErrNotAModule):
		return NotAModule
	case errors.Is(err, ErrNotFound):
		return NotFound
	default:
		return Failed
	}
}

// Module is an entry of the loaded set.
type Module struct {
	ID       string        `json:"id"`
	Path     string        `json:"path,omitempty"`
	Origin   module.Origin `json:"origin"`
	LoadedAt time.Time     `json:"loaded_at"`
}

// Config configures a Loader.
type Config struct {
	// Dirs are searched in order.
	Dirs   []string
	Token  stamp.Token
	Opener Opener
	// Host receives the registration of accepted modules.
	Host module.Host
}

// Loader resolves module ids to libraries and keeps the loaded set.
type Loader struct {
	dirs   []string
	token  stamp.Token
	opener Opener
	host   module.Host
	logger *slog.Logger

	loaded map[string]Module
	order  []string
	// failed holds ids whose registration code ran and failed. Their
	// libraries stay resident, so they are never tried again.
	failed map[string]error
}

// New creates a loader. Empty and duplicate search dirs are dropped.
func New(cfg Config) *Loader {
	seen := make(map[string]struct{}, len(cfg.Dirs))
	dirs := make([]string, 0, len(cfg.Dirs))
	for _, d := range cfg.Dirs {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		d = filepath.Clean(d)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		dirs = append(dirs, d)
	}
	return &Loader{
		dirs:   dirs,
		token:  cfg.Token,
		opener: cfg.Opener,
		host:   cfg.Host,
		logger: log.WithComponent("loader"),
		loaded: make(map[string]Module),
		failed: make(map[string]error),
	}
}

// Dirs returns the search directories.
func (l *Loader) Dirs() []string {
	return append([]string(nil), l.dirs...)
}

// Load loads the module prefix+name. Loading an id that is already loaded
// (or linked in) succeeds without doing anything.
//
// Every search directory holding a candidate file is tried in order until one
// is accepted. If none is, the first rejection is returned, or ErrNotFound
// when no directory has the file. The search stops at a file whose
// ModuleRegister ran and failed; that error is returned again by every later
// Load of the same id.
func (l *Loader) Load(prefix, name string) error {
	id, err := ModuleID(prefix, name)
	if err != nil {
		return &LoadError{ID: prefix + name, Err: fmt.Errorf("%w: %v", ErrNotFound, err)}
	}
	if m, ok := l.loaded[id]; ok {
		l.logger.Debug("module already loaded", "module", id, "origin", string(m.Origin))
		return nil
	}
	if err, ok := l.failed[id]; ok {
		l.logger.Debug("module registration already failed", "module", id, "error", err.Error())
		return err
	}

	var first error
	for _, dir := range l.dirs {
		path := filepath.Join(dir, FileName(id))
		if _, err := os.Stat(path); err != nil {
			continue
		}
		ran := false
		err := checkTrust(dir, path)
		if err != nil {
			err = &LoadError{ID: id, Path: path, Err: err}
		} else {
			ran, err = l.loadFile(id, path)
		}
		if err == nil {
			l.add(Module{ID: id, Path: path, Origin: module.Dynamic, LoadedAt: time.Now().UTC()})
			l.logger.Info("loaded module", "module", id, "path", path)
			return nil
		}
		l.logger.Warn("module rejected", "module", id, "path", path, "outcome", string(Outcome(err)), "error", err.Error())
		if ran {
			l.failed[id] = err
			return err
		}
		if first == nil {
			first = err
		}
	}
	if first != nil {
		return first
	}

	lerr := &LoadError{ID: id, Err: ErrNotFound, Hint: l.suggest(prefix, id)}
	l.logger.Debug("module not found", "module", id, "dirs", l.dirs)
	return lerr
}

// loadFile opens and validates one candidate file and runs its registration.
// ran reports whether the module's ModuleRegister was called.
func (l *Loader) loadFile(id, path string) (ran bool, err error) {
	lib, err := l.opener.Open(path)
	if err != nil {
		if errors.Is(err, ErrVersionMismatch) || errors.Is(err, ErrNotAModule) {
			return false, &LoadError{ID: id, Path: path, Err: err}
		}
		return false, &LoadError{ID: id, Path: path, Err: fmt.Errorf("%w: %v", ErrNotFound, err)}
	}

	reject := func(kind error, format string, args ...any) error {
		if cerr := lib.Close(); cerr != nil {
			l.logger.Warn("failed to close rejected library", "module", id, "path", path, "error", cerr.Error())
		}
		return &LoadError{ID: id, Path: path, Err: fmt.Errorf("%w: "+format, append([]any{kind}, args...)...)}
	}

	if _, err := lib.Lookup(MarkerSymbol); err != nil {
		return false, reject(ErrNotAModule, "no %s symbol", MarkerSymbol)
	}

	sym, err := lib.Lookup(StampSymbol)
	if err != nil {
		return false, reject(ErrVersionMismatch, "no %s symbol", StampSymbol)
	}
	token, ok := stampValue(sym)
	if !ok {
		return false, reject(ErrVersionMismatch, "%s has type %T", StampSymbol, sym)
	}
	if !l.token.Equal(token) {
		return false, reject(ErrVersionMismatch, "module stamp %q, host stamp %q", token.Short(), l.token.Short())
	}

	sym, err = lib.Lookup(RegisterSymbol)
	if err != nil {
		return false, reject(ErrNotAModule, "no %s symbol", RegisterSymbol)
	}
	register, ok := registerValue(sym)
	if !ok {
		return false, reject(ErrNotAModule, "%s has type %T", RegisterSymbol, sym)
	}

	// The library stays open from here on: its code has run.
	stage := newStaging(l.host)
	if err := register(stage); err != nil {
		return true, &LoadError{ID: id, Path: path, Err: fmt.Errorf("register: %w", err)}
	}
	if err := stage.commit(); err != nil {
		return true, &LoadError{ID: id, Path: path, Err: fmt.Errorf("register: %w", err)}
	}
	return true, nil
}

func stampValue(sym any) (stamp.Token, bool) {
	switch v := sym.(type) {
	case string:
		return stamp.Token(v), true
	case *string:
		if v == nil {
			return "", false
		}
		return stamp.Token(*v), true
	case stamp.Token:
		return v, true
	case *stamp.Token:
		if v == nil {
			return "", false
		}
		return *v, true
	case func() string:
		return stamp.Token(v()), true
	default:
		return "", false
	}
}

func registerValue(sym any) (module.RegisterFunc, bool) {
	switch v := sym.(type) {
	case func(module.Host) error:
		return v, v != nil
	case *func(module.Host) error:
		if v == nil || *v == nil {
			return nil, false
		}
		return *v, true
	default:
		return nil, false
	}
}

// MarkBuiltin records id as provided by the host binary itself.
func (l *Loader) MarkBuiltin(id string) {
	if _, ok := l.loaded[id]; ok {
		return
	}
	l.add(Module{ID: id, Origin: module.Static, LoadedAt: time.Now().UTC()})
}

func (l *Loader) add(m Module) {
	l.loaded[m.ID] = m
	l.order = append(l.order, m.ID)
}

// IsLoaded reports whether id is in the loaded set.
func (l *Loader) IsLoaded(id string) bool {
	_, ok := l.loaded[id]
	return ok
}

// Modules returns the loaded set in load order.
func (l *Loader) Modules() []Module {
	out := make([]Module, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.loaded[id])
	}
	return out
}

// Available lists the module ids found in the search dirs whose id starts
// with prefix. Unreadable dirs are skipped.
func (l *Loader) Available(prefix string) []string {
	seen := make(map[string]struct{})
	suffix := Suffix()
	for _, dir := range l.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || !strings.HasSuffix(name, suffix) {
				continue
			}
			id := strings.TrimSuffix(name, suffix)
			if strings.HasPrefix(id, prefix) {
				seen[id] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (l *Loader) suggest(prefix, id string) string {
	best, bestDist := "", 3
	for _, cand := range l.Available(prefix) {
		if d := levenshtein.ComputeDistance(id, cand); d < bestDist {
			best, bestDist = cand, d
		}
	}
	if best == "" {
		return ""
	}
	return fmt.Sprintf("did you mean %q?", best)
}
