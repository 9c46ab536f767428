package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/modhost/internal/api"
	"github.com/mattjoyce/modhost/internal/config"
	"github.com/mattjoyce/modhost/internal/events"
	"github.com/mattjoyce/modhost/internal/journal"
	"github.com/mattjoyce/modhost/internal/loader"
	"github.com/mattjoyce/modhost/internal/lock"
	"github.com/mattjoyce/modhost/internal/log"
	"github.com/mattjoyce/modhost/internal/tui/watch"
)

// testOpener replaces the platform loader in tests.
var testOpener loader.Opener

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	dryRun := fs.Bool("dry-run", false, "Exit after startup")
	jsonOut := fs.Bool("json", false, "Print the startup report as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Host.LogLevel, cfg.Host.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("modhost starting", "version", version, "name", cfg.Host.Name, "config", cfg.SourcePath)

	lockPath, err := instanceLockPath(cfg)
	if err != nil {
		logger.Error("failed to resolve instance lock path", "error", err)
		return 1
	}
	instance, err := lock.Acquire(lockPath)
	if err != nil {
		logger.Error("failed to acquire instance lock (another host may be running)", "path", lockPath, "error", err)
		return 1
	}
	defer func() { _ = instance.Release() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeJournal, err := openJournal(ctx, cfg)
	if err != nil {
		logger.Error("failed to open journal", "error", err)
		return 1
	}
	defer closeJournal()

	feed := events.NewHub(events.DefaultCapacity)
	h, tbl, err := newHost(cfg, hostOptions{preload: cfg.Modules.Preload, journal: store, events: feed, opener: testOpener})
	if err != nil {
		logger.Error("invalid host configuration", "error", err)
		return 1
	}
	report, err := h.Run(ctx)
	if err != nil {
		logger.Error("startup failed", "boot_id", h.BootID(), "error", err)
		return 1
	}

	if *jsonOut {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render report: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
	} else {
		renderReport(os.Stdout, report)
	}

	if *dryRun {
		return 0
	}

	if !cfg.API.Enabled {
		logger.Info("host running", "boot_id", h.BootID())
		<-ctx.Done()
		logger.Info("shutdown signal received")
		return 0
	}

	deps := api.Deps{
		Registry:   h.Registry(),
		Modules:    h.Loader(),
		Subsystems: h.Subsystems(),
		Display:    tbl,
		Events:     feed,
	}
	if store != nil {
		deps.History = store
	}
	srv := api.New(api.Config{Listen: cfg.API.Listen, APIKey: cfg.API.APIKey, BootID: h.BootID()}, deps, log.WithComponent("api"))
	if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("API server failed", "error", err)
		return 1
	}
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	apiURL := fs.String("api-url", "", "Host API URL (default: from config)")
	apiKey := fs.String("api-key", os.Getenv("MODHOST_API_KEY"), "API bearer key (default: from config)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if *apiURL == "" || *apiKey == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			return 1
		}
		if *apiURL == "" {
			if !cfg.API.Enabled {
				fmt.Fprintln(os.Stderr, "The API is disabled (api.enabled: false); pass --api-url to watch another host")
				return 1
			}
			*apiURL = "http://" + cfg.API.Listen
		}
		if *apiKey == "" {
			*apiKey = cfg.API.APIKey
		}
	}

	p := tea.NewProgram(watch.New(watch.NewClient(*apiURL, *apiKey)))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

// runModuleLoad starts a fresh host with one module preloaded and reports
// whether it was accepted.
func runModuleLoad(args []string) int {
	fs := flag.NewFlagSet("load", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output the result as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, `Usage: modhost module load [--config PATH] [--json] <prefix> <name>   (prefix may be "")`)
		return 1
	}
	ref := config.ModuleRef{Prefix: fs.Arg(0), Name: fs.Arg(1)}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	log.Setup(cfg.Host.LogLevel, cfg.Host.LogFormat)

	ctx := context.Background()
	store, closeJournal, err := openJournal(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Journal error: %v\n", err)
		return 1
	}
	defer closeJournal()

	h, _, err := newHost(cfg, hostOptions{preload: []config.ModuleRef{ref}, journal: store, opener: testOpener})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return 1
	}

	type loadResult struct {
		ID      string        `json:"id"`
		Outcome loader.Result `json:"outcome"`
		Origin  string        `json:"origin,omitempty"`
		Path    string        `json:"path,omitempty"`
		Error   string        `json:"error,omitempty"`
		BootID  string        `json:"boot_id"`
	}
	res := loadResult{ID: ref.ID(), BootID: h.BootID()}

	report, err := h.Run(ctx)
	switch {
	case err != nil:
		res.Outcome = loader.Outcome(err)
		res.Error = err.Error()
	case len(report.Failed) > 0:
		res.Outcome = report.Failed[0].Outcome
		res.Error = report.Failed[0].Error
	default:
		res.Outcome = loader.Success
		for _, m := range h.Loader().Modules() {
			if m.ID == ref.ID() {
				res.Origin = string(m.Origin)
				res.Path = m.Path
			}
		}
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(res, "", "  ")
		fmt.Println(string(data))
	} else {
		th := newTheme()
		line := fmt.Sprintf("%s: %s", res.ID, th.outcomeStyle(string(res.Outcome)).Render(string(res.Outcome)))
		if res.Origin != "" {
			line += fmt.Sprintf(" (%s", res.Origin)
			if res.Path != "" {
				line += " " + res.Path
			}
			line += ")"
		}
		fmt.Println(line)
		if res.Error != "" {
			fmt.Println(th.Dim.Render(res.Error))
		}
	}

	if res.Outcome != loader.Success {
		return 1
	}
	return 0
}

// runModuleList shows built-in modules and every module file on the search
// path. An id present in several directories is shown with its first path.
func runModuleList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	prefix := fs.String("prefix", "", "Only list modules with this prefix")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	builtin := builtinIDs(cfg)
	rows := make([]moduleRow, 0)
	for _, id := range builtin {
		if strings.HasPrefix(id, *prefix) {
			rows = append(rows, moduleRow{ID: id, Source: "built-in"})
		}
	}

	dirs := cfg.SearchDirs()
	l := loader.New(loader.Config{Dirs: dirs})
	for _, id := range l.Available(*prefix) {
		if slices.Contains(builtin, id) {
			continue
		}
		rows = append(rows, moduleRow{ID: id, Source: "file", Path: firstModulePath(l.Dirs(), id)})
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(rows, "", "  ")
		fmt.Println(string(data))
		return 0
	}
	renderModules(os.Stdout, rows)
	return 0
}

func firstModulePath(dirs []string, id string) string {
	for _, dir := range dirs {
		path := filepath.Join(dir, loader.FileName(id))
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func runModuleHistory(args []string) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	limit := fs.Int("limit", journal.DefaultLimit, "Maximum number of attempts to show")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 1 {
		fmt.Fprintln(os.Stderr, "Usage: modhost module history [--config PATH] [--limit N] [--json] [id]")
		return 1
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "--limit must be positive")
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if !cfg.Journal.Enabled {
		fmt.Fprintln(os.Stderr, "The load journal is disabled (journal.enabled: false)")
		return 1
	}

	ctx := context.Background()
	store, closeJournal, err := openJournal(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Journal error: %v\n", err)
		return 1
	}
	defer closeJournal()

	attempts, err := store.Recent(ctx, fs.Arg(0), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Journal error: %v\n", err)
		return 1
	}

	if *jsonOut {
		if attempts == nil {
			attempts = []journal.Attempt{}
		}
		data, _ := json.MarshalIndent(attempts, "", "  ")
		fmt.Println(string(data))
		return 0
	}
	renderHistory(os.Stdout, attempts)
	return 0
}

func runCategoryList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	order, err := cfg.DispatchOrder()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid dispatch order: %v\n", err)
		return 1
	}

	rows := make([]categoryRow, 0, len(order))
	for i, c := range order {
		rows = append(rows, categoryRow{
			Position: i + 1,
			Name:     c.String(),
			Listed:   i < len(cfg.Modules.DispatchOrder),
		})
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(rows, "", "  ")
		fmt.Println(string(data))
		return 0
	}
	renderCategories(os.Stdout, rows)
	return 0
}
