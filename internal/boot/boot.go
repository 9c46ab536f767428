// Package boot is the explicit startup sequencer of the host.
//
// It replaces link-time constructors: built-in feature groups are registered
// by calling their RegisterFunc in a fixed order, configured modules are then
// loaded, and finally categories are dispatched in the configured order.
package boot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/modhost/internal/binder"
	"github.com/mattjoyce/modhost/internal/config"
	"github.com/mattjoyce/modhost/internal/events"
	"github.com/mattjoyce/modhost/internal/journal"
	"github.com/mattjoyce/modhost/internal/loader"
	"github.com/mattjoyce/modhost/internal/log"
	"github.com/mattjoyce/modhost/internal/module"
	"github.com/mattjoyce/modhost/internal/stamp"
)

// StaticModule is a feature group linked into the host binary.
type StaticModule struct {
	// ID is the module id the group would have as a loadable module; loading
	// that id later is a no-op. May be empty for groups that never ship as
	// modules.
	ID       string
	Register module.RegisterFunc
}

// Recorder persists load attempts.
type Recorder interface {
	Record(ctx context.Context, a journal.Attempt) (journal.Attempt, error)
}

// Publisher receives startup lifecycle events.
type Publisher interface {
	Publish(kind string, data any) events.Event
}

// Hook runs at a fixed point of the startup sequence.
type Hook func(h *Host) error

// Options configures a Host.
type Options struct {
	Static  []StaticModule
	Preload []config.ModuleRef
	// Order is the dispatch order; see config.Config.DispatchOrder.
	Order  []module.Category
	Dirs   []string
	Token  stamp.Token
	Opener loader.Opener
	Tables []binder.Bindable
	// Journal and Events are optional.
	Journal Recorder
	Events  Publisher

	// BeforeDispatch runs after registration and preloading.
	BeforeDispatch Hook
	// AfterDispatch runs once every category is Done.
	AfterDispatch Hook
}

// LoadFailure is a preload that did not succeed.
type LoadFailure struct {
	ID       string        `json:"id"`
	Outcome  loader.Result `json:"outcome"`
	Error    string        `json:"error"`
	Required bool          `json:"required"`
}

// Report summarizes a startup run.
type Report struct {
	BootID     string            `json:"boot_id"`
	Static     []string          `json:"static"`
	Loaded     []string          `json:"loaded"`
	Failed     []LoadFailure     `json:"failed,omitempty"`
	Dispatched []module.Category `json:"dispatched"`
}

// Host owns the registry, the operation tables and the loader of one process.
type Host struct {
	bootID     string
	opts       Options
	registry   *module.Registry
	subsystems *binder.Set
	loader     *loader.Loader
	logger     *slog.Logger

	ran     bool
	started bool
	report  Report
}

// New creates a host. Nothing runs until Run.
func New(opts Options) *Host {
	if opts.Opener == nil {
		opts.Opener = loader.NewOpener()
	}
	if opts.Token == "" {
		opts.Token = stamp.Host()
	}
	if len(opts.Order) == 0 {
		opts.Order = module.Categories()
	}

	bootID := uuid.NewString()
	h := &Host{
		bootID:     bootID,
		opts:       opts,
		registry:   module.NewRegistry(),
		subsystems: binder.NewSet(opts.Tables...),
		logger:     log.WithBoot(bootID).With(slog.String("component", "boot")),
	}
	h.loader = loader.New(loader.Config{
		Dirs:   opts.Dirs,
		Token:  opts.Token,
		Opener: opts.Opener,
		Host:   h.registrar(module.Dynamic),
	})
	h.report.BootID = bootID
	return h
}

// registrar is the module.Host handed to feature groups.
type registrar struct {
	h      *Host
	origin module.Origin
}

func (r registrar) Register(c module.Category, name string, fn module.InitFunc) error {
	return r.h.registry.Register(module.Entry{Name: name, Category: c, Origin: r.origin, Fn: fn})
}

func (r registrar) Bind(subsystem string, impl any) error {
	if err := r.h.subsystems.Bind(subsystem, impl); err != nil {
		return err
	}
	r.h.logger.Debug("subsystem bound", "subsystem", subsystem, "origin", string(r.origin), "impl", fmt.Sprintf("%T", impl))
	return nil
}

func (r registrar) CheckRegister(c module.Category, name string, fn module.InitFunc) error {
	return r.h.registry.Check(module.Entry{Name: name, Category: c, Origin: r.origin, Fn: fn})
}

func (r registrar) CheckBind(subsystem string, impl any) error {
	return r.h.subsystems.Check(subsystem, impl)
}

func (h *Host) registrar(origin module.Origin) module.Host {
	return registrar{h: h, origin: origin}
}

// Run performs the startup sequence once. Failures of optional preloads are
// logged and recorded in the report; order violations, failed required
// preloads and hook errors abort startup.
func (h *Host) Run(ctx context.Context) (*Report, error) {
	if h.ran {
		return nil, fmt.Errorf("startup already ran for boot %s", h.bootID)
	}
	h.ran = true
	h.logger.Info("startup begin", "host_stamp", h.opts.Token.Short(), "dirs", h.loader.Dirs())
	h.publish(events.StartupBegin, map[string]string{"boot_id": h.bootID, "host_stamp": h.opts.Token.Short()})

	report, err := h.run(ctx)
	if err != nil {
		h.publish(events.StartupFailed, map[string]string{"boot_id": h.bootID, "error": err.Error()})
		return nil, err
	}
	h.started = true
	h.publish(events.StartupComplete, report)
	return report, nil
}

func (h *Host) run(ctx context.Context) (*Report, error) {

	static := h.registrar(module.Static)
	for _, s := range h.opts.Static {
		if err := s.Register(static); err != nil {
			return nil, fmt.Errorf("register built-in %s: %w", nameOf(s), err)
		}
		if s.ID != "" {
			h.loader.MarkBuiltin(s.ID)
			h.report.Static = append(h.report.Static, s.ID)
		}
	}

	for _, ref := range h.opts.Preload {
		err := h.load(ctx, ref.Prefix, ref.Name)
		if err == nil {
			continue
		}
		if errors.Is(err, module.ErrOrderViolation) {
			return nil, err
		}
		h.report.Failed = append(h.report.Failed, LoadFailure{
			ID:       ref.ID(),
			Outcome:  loader.Outcome(err),
			Error:    err.Error(),
			Required: ref.Required,
		})
		if ref.Required {
			return nil, fmt.Errorf("required module %s: %w", ref.ID(), err)
		}
		h.logger.Warn("optional module unavailable", "module", ref.ID(), "outcome", string(loader.Outcome(err)), "error", err.Error())
	}

	if h.opts.BeforeDispatch != nil {
		if err := h.opts.BeforeDispatch(h); err != nil {
			return nil, fmt.Errorf("before dispatch: %w", err)
		}
	}

	for _, c := range h.opts.Order {
		if err := h.registry.Dispatch(c); err != nil {
			return nil, fmt.Errorf("dispatch %s: %w", c, err)
		}
		h.report.Dispatched = append(h.report.Dispatched, c)
		h.publish(events.CategoryDispatched, map[string]string{"boot_id": h.bootID, "category": c.String()})
	}

	if h.opts.AfterDispatch != nil {
		if err := h.opts.AfterDispatch(h); err != nil {
			return nil, fmt.Errorf("after dispatch: %w", err)
		}
	}

	for _, m := range h.loader.Modules() {
		if m.Origin == module.Dynamic {
			h.report.Loaded = append(h.report.Loaded, m.ID)
		}
	}
	h.logger.Info("startup complete",
		"static", len(h.report.Static),
		"loaded", len(h.report.Loaded),
		"failed", len(h.report.Failed),
	)
	report := h.report
	return &report, nil
}

// LoadLate loads a module after a successful startup. Any init entry the
// module tries to add to an already dispatched category is reported as an
// order violation.
func (h *Host) LoadLate(ctx context.Context, prefix, name string) error {
	switch {
	case !h.ran:
		return fmt.Errorf("load %s%s: startup has not run", prefix, name)
	case !h.started:
		return fmt.Errorf("load %s%s: startup failed for boot %s", prefix, name, h.bootID)
	}
	return h.load(ctx, prefix, name)
}

func (h *Host) load(ctx context.Context, prefix, name string) error {
	id, idErr := loader.ModuleID(prefix, name)
	if idErr == nil && h.loader.IsLoaded(id) {
		return nil
	}

	err := h.loader.Load(prefix, name)
	if idErr == nil {
		h.record(ctx, id, err)
	}
	return err
}

func (h *Host) publish(kind string, data any) {
	if h.opts.Events != nil {
		h.opts.Events.Publish(kind, data)
	}
}

// record journals a load attempt and publishes its outcome.
func (h *Host) record(ctx context.Context, id string, loadErr error) {
	a := journal.Attempt{
		BootID:      h.bootID,
		ModuleID:    id,
		Outcome:     string(loader.Outcome(loadErr)),
		HostStamp:   string(h.opts.Token),
		AttemptedAt: time.Now().UTC(),
	}
	var lerr *loader.LoadError
	if errors.As(loadErr, &lerr) {
		a.Path = lerr.Path
	}
	if loadErr != nil {
		a.Detail = loadErr.Error()
	} else {
		for _, m := range h.loader.Modules() {
			if m.ID == id {
				a.Path = m.Path
			}
		}
	}
	if h.opts.Journal != nil {
		stored, err := h.opts.Journal.Record(ctx, a)
		if err != nil {
			h.logger.Warn("failed to journal load attempt", "module", id, "error", err.Error())
		} else {
			a = stored
		}
	}

	kind := events.ModuleLoaded
	if loadErr != nil {
		kind = events.ModuleFailed
	}
	h.publish(kind, a)
}

func nameOf(s StaticModule) string {
	if s.ID != "" {
		return s.ID
	}
	return fmt.Sprintf("%p", s.Register)
}

// BootID identifies this startup in logs and the journal.
func (h *Host) BootID() string { return h.bootID }

// Registry returns the host's init registry.
func (h *Host) Registry() *module.Registry { return h.registry }

// Subsystems returns the host's operation tables.
func (h *Host) Subsystems() *binder.Set { return h.subsystems }

// Loader returns the host's module loader.
func (h *Host) Loader() *loader.Loader { return h.loader }

// Order returns the dispatch order.
func (h *Host) Order() []module.Category {
	return append([]module.Category(nil), h.opts.Order...)
}
