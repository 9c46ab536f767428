package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/mattjoyce/modhost/internal/config"
	"github.com/mattjoyce/modhost/internal/doctor"
	"github.com/mattjoyce/modhost/internal/stamp"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	// --- NOUNS ---
	case "module":
		return runModuleNoun(args)
	case "category":
		return runCategoryNoun(args)
	case "config":
		return runConfigNoun(args)

	case "start":
		if hasHelpFlag(args) {
			printStartHelp()
			return 0
		}
		return runStart(args)
	case "watch":
		if hasHelpFlag(args) {
			printWatchHelp()
			return 0
		}
		return runWatch(args)
	case "stamp":
		return runStamp(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	Stamp     string `json:"stamp"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: modhost version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("modhost %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	fmt.Printf("stamp: %s\n", info.Stamp)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
		Stamp:     stamp.Host().Short(),
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	resolvedCommit := strings.TrimSpace(gitCommit)
	if resolvedCommit == "" || resolvedCommit == "unknown" {
		resolvedCommit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if resolvedCommit != "" {
		info.Commit = shortenCommit(resolvedCommit)
	}

	resolvedBuildTime := strings.TrimSpace(buildDate)
	if resolvedBuildTime == "" || resolvedBuildTime == "unknown" {
		resolvedBuildTime = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if t, err := time.Parse(time.RFC3339Nano, resolvedBuildTime); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}
	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

// runStamp prints the host's compatibility token. With --derive it prints
// the token build tooling should inject for the given parts instead.
func runStamp(args []string) int {
	fs := flag.NewFlagSet("stamp", flag.ContinueOnError)
	derive := fs.Bool("derive", false, "Derive a token from the remaining arguments")
	short := fs.Bool("short", false, "Print the abbreviated token")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	tok := stamp.Host()
	if *derive {
		if fs.NArg() == 0 {
			fmt.Fprintln(os.Stderr, "Usage: modhost stamp --derive <part>...")
			return 1
		}
		tok = stamp.Derive(fs.Args()...)
	} else if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: modhost stamp [--short] [--derive <part>...]")
		return 1
	}

	if *short {
		fmt.Println(tok.Short())
	} else {
		fmt.Println(tok.String())
	}
	return 0
}

func printUsage() {
	fmt.Print(`modhost - modular host with loadable feature modules

Usage:
  modhost <noun> <action> [flags]

Core Resources (Nouns):
  module    Loadable feature modules
  category  Init categories and dispatch order
  config    Host configuration

Commands:
  start                       Run startup and serve until interrupted
  watch                       Live view of a running host's startup events
  module load <prefix> <name> Try loading one module into a fresh host
  module list                 Show built-in and available modules
  module history [id]         Show journalled load attempts
  category list               Show categories in dispatch order
  config check                Validate configuration and module search path
  stamp                       Print the compatibility token
  version                     Show version information
  help                        Show this help message

Use 'modhost <noun> help' for resource-specific flags.
`)
}

func printStartHelp() {
	fmt.Print(`Usage: modhost start [--config PATH] [--dry-run]

Registers built-in modules, loads configured preloads, dispatches every init
category in order, then serves the introspection API (when enabled) until
SIGINT or SIGTERM. --dry-run stops after startup and prints the report.
`)
}

func printWatchHelp() {
	fmt.Print(`Usage: modhost watch [--config PATH] [--api-url URL] [--api-key KEY]

Follows the startup event stream of a running host and shows category
progress, module outcomes and recent events. The API address and key default
to the api section of the config; MODHOST_API_KEY overrides the key.
`)
}

// --- NOUN DISPATCHERS ---

func runModuleNoun(args []string) int {
	if len(args) < 1 {
		printModuleNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printModuleNounHelp(os.Stdout)
		return 0
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "load":
		return runModuleLoad(actionArgs)
	case "list":
		return runModuleList(actionArgs)
	case "history":
		return runModuleHistory(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown module action: %s\n", action)
		return 1
	}
}

func runCategoryNoun(args []string) int {
	if len(args) < 1 {
		printCategoryNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printCategoryNounHelp(os.Stdout)
		return 0
	}

	switch args[0] {
	case "list":
		return runCategoryList(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown category action: %s\n", args[0])
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	switch args[0] {
	case "check":
		return runConfigCheck(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", args[0])
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, a := range args {
		if a == "--help" || a == "-h" {
			return true
		}
	}
	return false
}

func printModuleNounHelp(w *os.File) {
	fmt.Fprint(w, `Usage: modhost module <action> [flags]

Actions:
  load <prefix> <name>  Start a fresh host with the module preloaded and report the outcome
  list                  Show built-in modules and module files on the search path
  history [id]          Show the newest journalled load attempts (--limit N)

Prefixes: block-, ui-, audio-, or "" for unprefixed modules.
`)
}

func printCategoryNounHelp(w *os.File) {
	fmt.Fprint(w, `Usage: modhost category <action> [flags]

Actions:
  list   Show init categories in dispatch order
`)
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprint(w, `Usage: modhost config <action> [flags]

Actions:
  check  Validate configuration and module search path (--strict, --json)
`)
}

func runConfigCheck(args []string) int {
	var configPath, format string
	var strict, jsonOut bool

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration file or directory")
	fs.BoolVar(&strict, "strict", false, "Treat warnings as errors")
	fs.StringVar(&format, "format", "human", "Output format (human, json)")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if jsonOut {
		format = "json"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	result := doctor.New(cfg, builtinIDs(cfg)).Validate()
	switch format {
	case "json":
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	default:
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	if strict && len(result.Warnings) > 0 {
		return 2
	}
	return 0
}
