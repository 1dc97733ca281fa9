package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the settings shared by the TUI, the CLI commands and the
// authority server.
type Config struct {
	Database string       `yaml:"database" mapstructure:"database"`
	LogLevel string       `yaml:"log_level" mapstructure:"log_level"`
	LogFile  string       `yaml:"log_file" mapstructure:"log_file"`
	Remote   RemoteConfig `yaml:"remote" mapstructure:"remote"`
	Engine   EngineConfig `yaml:"engine" mapstructure:"engine"`
	Server   ServerConfig `yaml:"server" mapstructure:"server"`
}

// RemoteConfig points the engine at an authority server.
type RemoteConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	BaseURL string        `yaml:"base_url" mapstructure:"base_url"`
	Token   string        `yaml:"token" mapstructure:"token"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// EngineConfig tunes the session engine's schedules.
type EngineConfig struct {
	TickInterval            time.Duration `yaml:"tick_interval" mapstructure:"tick_interval"`
	CompletionCheckInterval time.Duration `yaml:"completion_check_interval" mapstructure:"completion_check_interval"`
	AutoSaveInterval        time.Duration `yaml:"autosave_interval" mapstructure:"autosave_interval"`
	LocalFlushInterval      time.Duration `yaml:"local_flush_interval" mapstructure:"local_flush_interval"`
	SyncStaleAfter          time.Duration `yaml:"sync_stale_after" mapstructure:"sync_stale_after"`
	AutoCompleteOnExpiry    bool          `yaml:"auto_complete_on_expiry" mapstructure:"auto_complete_on_expiry"`
}

// ServerConfig configures `tempo serve`.
type ServerConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Token    string `yaml:"token" mapstructure:"token"`
	Database string `yaml:"database" mapstructure:"database"`
}

// EnvPrefix is prepended to every environment override, e.g.
// TEMPO_REMOTE_TOKEN for remote.token.
const EnvPrefix = "TEMPO"

// Load layers the YAML file at path and TEMPO_* environment variables over
// DefaultConfig. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	setDefaults(v, cfg)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if err := readFile(v, path); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Database = expandHome(cfg.Database)
	cfg.LogFile = expandHome(cfg.LogFile)
	cfg.Server.Database = expandHome(cfg.Server.Database)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readFile(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// setDefaults registers every key so that environment overrides apply even
// when the file does not mention them.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("database", cfg.Database)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_file", cfg.LogFile)

	v.SetDefault("remote.enabled", cfg.Remote.Enabled)
	v.SetDefault("remote.base_url", cfg.Remote.BaseURL)
	v.SetDefault("remote.token", cfg.Remote.Token)
	v.SetDefault("remote.timeout", cfg.Remote.Timeout)

	v.SetDefault("engine.tick_interval", cfg.Engine.TickInterval)
	v.SetDefault("engine.completion_check_interval", cfg.Engine.CompletionCheckInterval)
	v.SetDefault("engine.autosave_interval", cfg.Engine.AutoSaveInterval)
	v.SetDefault("engine.local_flush_interval", cfg.Engine.LocalFlushInterval)
	v.SetDefault("engine.sync_stale_after", cfg.Engine.SyncStaleAfter)
	v.SetDefault("engine.auto_complete_on_expiry", cfg.Engine.AutoCompleteOnExpiry)

	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.token", cfg.Server.Token)
	v.SetDefault("server.database", cfg.Server.Database)
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level: unknown level %q", c.LogLevel)
	}
	if c.Database == "" {
		return errors.New("database: path is required")
	}
	if c.Remote.Enabled && c.Remote.BaseURL == "" {
		return errors.New("remote.base_url: required when remote is enabled")
	}
	if c.Remote.Timeout <= 0 {
		return errors.New("remote.timeout: must be positive")
	}
	for name, d := range map[string]time.Duration{
		"engine.tick_interval":             c.Engine.TickInterval,
		"engine.completion_check_interval": c.Engine.CompletionCheckInterval,
		"engine.autosave_interval":         c.Engine.AutoSaveInterval,
		"engine.local_flush_interval":      c.Engine.LocalFlushInterval,
		"engine.sync_stale_after":          c.Engine.SyncStaleAfter,
	} {
		if d <= 0 {
			return fmt.Errorf("%s: must be positive", name)
		}
	}
	return nil
}

// Dir returns ~/.config/tempo, or the working directory when the user
// config directory is unknown.
func Dir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(base, "tempo")
}

// DefaultPath returns the path to the config file.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
