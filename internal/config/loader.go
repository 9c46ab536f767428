package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/adrg/xdg"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/modhost/internal/module"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// AppDirName is the per-user data directory name under XDG_DATA_HOME.
const AppDirName = "modhost"

// Load reads and parses configuration from a file. An empty path yields the
// defaults. Environment overrides are applied last.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if configPath != "" {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
		}

		info, err := os.Stat(absPath)
		if err != nil {
			return nil, fmt.Errorf("config file not found: %s\n"+
				"Hint: Check the path or run with --config flag", absPath)
		}
		if info.IsDir() {
			absPath = filepath.Join(absPath, "config.yaml")
		}

		data, err := os.ReadFile(absPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", absPath, err)
		}
		if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML %s: %w", absPath, err)
		}
		cfg.SourcePath = absPath
		resolveRelative(cfg, filepath.Dir(absPath))
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// If not found, leave the placeholder (will fail validation if required)
		return match
	})
}

// resolveRelative makes file-relative paths absolute against baseDir.
func resolveRelative(cfg *Config, baseDir string) {
	for i, d := range cfg.Modules.Dirs {
		if d != "" && !filepath.IsAbs(d) {
			cfg.Modules.Dirs[i] = filepath.Join(baseDir, d)
		}
	}
	if p := cfg.Journal.Path; p != "" && p != ":memory:" && !filepath.IsAbs(p) {
		cfg.Journal.Path = filepath.Join(baseDir, p)
	}
}

func applyEnvOverrides(cfg *Config) error {
	var o EnvOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if o.LogLevel != "" {
		cfg.Host.LogLevel = strings.ToLower(o.LogLevel)
	}
	if o.JournalPath != "" {
		cfg.Journal.Path = o.JournalPath
	}
	if o.ModuleDir != "" {
		cfg.Modules.Dirs = append([]string{o.ModuleDir}, cfg.Modules.Dirs...)
	}
	return nil
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Host.LogLevel] {
		return fmt.Errorf("host.log_level must be one of: debug, info, warn, error (got %q)", cfg.Host.LogLevel)
	}
	if cfg.Host.LogFormat != "json" && cfg.Host.LogFormat != "text" {
		return fmt.Errorf("host.log_format must be json or text (got %q)", cfg.Host.LogFormat)
	}

	for i, d := range cfg.Modules.Dirs {
		if envVarPattern.MatchString(d) {
			return fmt.Errorf("modules.dirs[%d]: environment variable %s is not set", i, envVarPattern.FindString(d))
		}
	}

	seen := make(map[string]int, len(cfg.Modules.Preload))
	for i, ref := range cfg.Modules.Preload {
		if strings.TrimSpace(ref.Name) == "" {
			return fmt.Errorf("modules.preload[%d].name is required", i)
		}
		if j, dup := seen[ref.ID()]; dup {
			return fmt.Errorf("modules.preload[%d]: %q already listed at modules.preload[%d]", i, ref.ID(), j)
		}
		seen[ref.ID()] = i
	}

	if _, err := cfg.DispatchOrder(); err != nil {
		return err
	}

	if cfg.Display.Enabled {
		if cfg.Display.Port <= 0 && cfg.Display.TLSPort <= 0 {
			return fmt.Errorf("display.port or display.tls_port is required when display is enabled")
		}
		if envVarPattern.MatchString(cfg.Display.Password) {
			return fmt.Errorf("display.password: environment variable %s is not set", envVarPattern.FindString(cfg.Display.Password))
		}
	}

	if cfg.Journal.Enabled && cfg.Journal.Path == "" {
		return fmt.Errorf("journal.path is required when journal is enabled")
	}
	if cfg.API.Enabled && cfg.API.Listen == "" {
		return fmt.Errorf("api.listen is required when api is enabled")
	}
	return nil
}

// DispatchOrder returns every category exactly once: the configured ones
// first, then the rest in declaration order.
func (c *Config) DispatchOrder() ([]module.Category, error) {
	order := make([]module.Category, 0, len(module.Categories()))
	listed := make(map[module.Category]bool)
	for i, name := range c.Modules.DispatchOrder {
		cat, err := module.ParseCategory(name)
		if err != nil {
			return nil, fmt.Errorf("modules.dispatch_order[%d]: %w", i, err)
		}
		if listed[cat] {
			return nil, fmt.Errorf("modules.dispatch_order[%d]: category %s listed twice", i, cat)
		}
		listed[cat] = true
		order = append(order, cat)
	}
	for _, cat := range module.Categories() {
		if !listed[cat] {
			order = append(order, cat)
		}
	}
	return order, nil
}

// SearchDirs returns the module search path: configured dirs, the
// executable's directory, then the XDG data dirs.
func (c *Config) SearchDirs() []string {
	dirs := append([]string{}, c.Modules.Dirs...)
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	dirs = append(dirs, filepath.Join(xdg.DataHome, AppDirName, "modules"))
	for _, d := range xdg.DataDirs {
		dirs = append(dirs, filepath.Join(d, AppDirName, "modules"))
	}
	return dirs
}
