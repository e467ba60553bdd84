// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Version is reported to clients in the connection handshake and by /health.
const Version = "1.0.0"

// EnvPrefix is the prefix for server settings read from the environment.
const EnvPrefix = "APL_GUI"

// Config holds the server settings and resolved directories
type Config struct {
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`

	ProjectRoot string `mapstructure:"project_root"`
	PluginRoot  string `mapstructure:"plugin_root"`
	DataDir     string `mapstructure:"data_dir"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	Debounce        time.Duration `mapstructure:"debounce"`
	MetaDepth       int           `mapstructure:"meta_depth"`
	BackupRetention int           `mapstructure:"backup_retention"`
	PatternCacheTTL time.Duration `mapstructure:"pattern_cache_ttl"`

	Journal   JournalConfig   `mapstructure:"journal"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	MDNS      MDNSConfig      `mapstructure:"mdns"`
	Agent     AgentConfig     `mapstructure:"agent"`
}

// JournalConfig controls the rollback journal database
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// TelemetryConfig controls OpenTelemetry tracing
type TelemetryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

// MDNSConfig controls LAN advertisement of the server
type MDNSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Instance string `mapstructure:"instance"`
}

// AgentConfig describes how the supervised agent process is launched
type AgentConfig struct {
	Command      string        `mapstructure:"command"`
	Args         []string      `mapstructure:"args"`
	GoalTemplate string        `mapstructure:"goal_template"`
	StopTimeout  time.Duration `mapstructure:"stop_timeout"`
	MaxRuntime   time.Duration `mapstructure:"max_runtime"`
}

// NewViper returns a viper instance with defaults and environment bindings.
// Callers may bind command-line flags to it before calling FromViper.
func NewViper() *viper.Viper {
	v := viper.New()

	home, _ := os.UserHomeDir()
	cwd, _ := os.Getwd()

	v.SetDefault("host", "localhost")
	v.SetDefault("port", 3001)
	v.SetDefault("cors_origins", []string{"http://localhost:5173"})
	v.SetDefault("project_root", cwd)
	v.SetDefault("plugin_root", filepath.Join(home, ".claude", "plugins", "apl-autonomous-phased-looper"))
	v.SetDefault("data_dir", filepath.Join(home, ".apl-gui"))
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("debounce", 100*time.Millisecond)
	v.SetDefault("meta_depth", 2)
	v.SetDefault("backup_retention", 20)
	v.SetDefault("pattern_cache_ttl", time.Minute)
	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.path", "")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "http://127.0.0.1:4318")
	v.SetDefault("telemetry.insecure", false)
	v.SetDefault("mdns.enabled", false)
	v.SetDefault("mdns.instance", "")
	v.SetDefault("agent.command", "claude")
	v.SetDefault("agent.args", []string{"--print", "--dangerously-skip-permissions"})
	v.SetDefault("agent.goal_template", "/apl %s")
	v.SetDefault("agent.stop_timeout", 5*time.Second)
	v.SetDefault("agent.max_runtime", time.Duration(0))

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The agent itself reads APL_PROJECT_ROOT, so the server honors it too.
	_ = v.BindEnv("project_root", "APL_PROJECT_ROOT", EnvPrefix+"_PROJECT_ROOT")

	return v
}

// ReadFile merges a YAML/JSON/TOML settings file into v. An empty path is a no-op.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	return nil
}

// FromViper decodes the settings, resolves derived paths and creates the
// data directory.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}

	cfg.CORSOrigins = splitOrigins(cfg.CORSOrigins)

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.Debounce <= 0 {
		return nil, fmt.Errorf("debounce must be positive, got %s", cfg.Debounce)
	}

	root, err := filepath.Abs(cfg.ProjectRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	cfg.ProjectRoot = root

	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	if cfg.Journal.Path == "" && cfg.DataDir != "" {
		cfg.Journal.Path = filepath.Join(cfg.DataDir, "journal.db")
	}

	return &cfg, nil
}

// Load reads settings from defaults, the optional file and the environment
func Load(configFile string) (*Config, error) {
	v := NewViper()
	if err := ReadFile(v, configFile); err != nil {
		return nil, err
	}
	return FromViper(v)
}

// Addr returns the host:port the HTTP server listens on
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// splitOrigins flattens comma separated entries, which is how the origin
// list arrives from the environment.
func splitOrigins(in []string) []string {
	var out []string
	for _, entry := range in {
		for _, origin := range strings.Split(entry, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				out = append(out, origin)
			}
		}
	}
	return out
}
