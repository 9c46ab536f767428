package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/adrg/xdg"

	"github.com/mattjoyce/modhost/internal/binder"
	"github.com/mattjoyce/modhost/internal/boot"
	"github.com/mattjoyce/modhost/internal/config"
	"github.com/mattjoyce/modhost/internal/display"
	"github.com/mattjoyce/modhost/internal/events"
	"github.com/mattjoyce/modhost/internal/journal"
	"github.com/mattjoyce/modhost/internal/loader"
	"github.com/mattjoyce/modhost/internal/storage"
)

// hostOptions are the command-line level knobs on top of the config.
type hostOptions struct {
	preload []config.ModuleRef
	journal *journal.Store
	events  *events.Hub
	// opener overrides the platform loader; tests use it.
	opener loader.Opener
}

// newHost assembles a boot.Host from cfg: built-in modules, the display
// operation table and the display start/attach hooks.
func newHost(cfg *config.Config, opts hostOptions) (*boot.Host, *display.Table, error) {
	order, err := cfg.DispatchOrder()
	if err != nil {
		return nil, nil, err
	}

	tbl := display.NewTable()
	bo := boot.Options{
		Static:         builtinModules(cfg),
		Preload:        opts.preload,
		Order:          order,
		Dirs:           cfg.SearchDirs(),
		Opener:         opts.opener,
		Tables:         []binder.Bindable{tbl},
		BeforeDispatch: startDisplay(cfg, tbl),
		AfterDispatch:  attachDisplay(cfg, tbl),
	}
	if opts.journal != nil {
		bo.Journal = opts.journal
	}
	if opts.events != nil {
		bo.Events = opts.events
	}
	return boot.New(bo), tbl, nil
}

// startDisplay marks the display in use before the display-backend category
// runs, so the backend's init entry starts listening.
func startDisplay(cfg *config.Config, tbl *display.Table) boot.Hook {
	return func(*boot.Host) error {
		if !cfg.Display.Enabled {
			return nil
		}
		if !tbl.Bound() {
			return fmt.Errorf("display is enabled but no display backend is bound: build with the ui-remote backend or preload %s", displayModuleRef())
		}
		tbl.Ops().StartUsing()
		return nil
	}
}

func attachDisplay(cfg *config.Config, tbl *display.Table) boot.Hook {
	return func(*boot.Host) error {
		if !cfg.Display.Enabled {
			return nil
		}
		tbl.Ops().DisplayInit()
		return display.Using(tbl)
	}
}

func displayModuleRef() string {
	return loader.UIPrefix + "remote"
}

// openJournal opens the load journal, or returns nil when it is disabled.
func openJournal(ctx context.Context, cfg *config.Config) (*journal.Store, func(), error) {
	if !cfg.Journal.Enabled {
		return nil, func() {}, nil
	}
	db, err := storage.OpenSQLite(ctx, cfg.Journal.Path)
	if err != nil {
		return nil, func() {}, fmt.Errorf("open journal %s: %w", cfg.Journal.Path, err)
	}
	return journal.NewStore(db), func() { _ = db.Close() }, nil
}

// instanceLockPath places the lock beside the journal it protects. Hosts
// without an on-disk journal lock under the XDG runtime directory.
func instanceLockPath(cfg *config.Config) (string, error) {
	name := cfg.Host.Name
	if name == "" {
		name = config.AppDirName
	}
	if cfg.Journal.Enabled && cfg.Journal.Path != "" && cfg.Journal.Path != ":memory:" {
		return filepath.Join(filepath.Dir(cfg.Journal.Path), name+".pid"), nil
	}
	return xdg.RuntimeFile(filepath.Join(config.AppDirName, name+".pid"))
}

func builtinIDs(cfg *config.Config) []string {
	var ids []string
	for _, m := range builtinModules(cfg) {
		if m.ID != "" {
			ids = append(ids, m.ID)
		}
	}
	return ids
}
