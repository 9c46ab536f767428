package config

// Config represents the complete modhost configuration.
type Config struct {
	Host    HostConfig    `yaml:"host"`
	Modules ModulesConfig `yaml:"modules"`
	Display DisplayConfig `yaml:"display"`
	Journal JournalConfig `yaml:"journal"`
	API     APIConfig     `yaml:"api,omitempty"`

	// SourcePath is the file the config was loaded from, if any.
	SourcePath string `yaml:"-"`
}

// HostConfig defines core host settings.
type HostConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// ModulesConfig defines where loadable modules live and which to load.
type ModulesConfig struct {
	// Dirs are searched in order, before the built-in search path.
	Dirs    []string    `yaml:"dirs,omitempty"`
	Preload []ModuleRef `yaml:"preload,omitempty"`
	// DispatchOrder lists categories to dispatch first; the remaining
	// categories follow in declaration order.
	DispatchOrder []string `yaml:"dispatch_order,omitempty"`
}

// ModuleRef names a loadable module as prefix+name.
type ModuleRef struct {
	Prefix string `yaml:"prefix"`
	Name   string `yaml:"name"`
	// Required makes a failed load fatal for startup.
	Required bool `yaml:"required,omitempty"`
}

// ID returns prefix+name.
func (r ModuleRef) ID() string { return r.Prefix + r.Name }

// DisplayConfig defines the remote-display backend settings.
type DisplayConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Port     int    `yaml:"port"`
	TLSPort  int    `yaml:"tls_port,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// JournalConfig defines the load-attempt journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// APIConfig defines the introspection HTTP server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	// APIKey, when set, is required as a bearer token on every /v1 route.
	APIKey string `yaml:"api_key,omitempty"`
}

// EnvOverrides are environment variables applied on top of the file.
type EnvOverrides struct {
	ModuleDir   string `env:"MODHOST_MODULE_DIR"`
	LogLevel    string `env:"MODHOST_LOG_LEVEL"`
	JournalPath string `env:"MODHOST_JOURNAL_PATH"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Host: HostConfig{
			Name:      "modhost",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Display: DisplayConfig{
			Enabled: false,
			Addr:    "127.0.0.1",
			Port:    5930,
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    "./data/modhost.db",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8931",
		},
	}
}
