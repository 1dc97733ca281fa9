package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	dir := Dir()
	return &Config{
		Database: filepath.Join(dir, "tempo.db"),
		LogLevel: "info",
		LogFile:  filepath.Join(dir, "tempo.log"),
		Remote: RemoteConfig{
			Enabled: false,
			BaseURL: "http://localhost:8420",
			Timeout: 15 * time.Second,
		},
		Engine: EngineConfig{
			TickInterval:            time.Second,
			CompletionCheckInterval: 3 * time.Second,
			AutoSaveInterval:        5 * time.Minute,
			LocalFlushInterval:      2 * time.Second,
			SyncStaleAfter:          15 * time.Minute,
			AutoCompleteOnExpiry:    true,
		},
		Server: ServerConfig{
			Addr:     ":8420",
			Database: filepath.Join(dir, "server.db"),
		},
	}
}

// WriteDefault writes a commented default configuration to path. It refuses
// to overwrite an existing file.
func WriteDefault(path string) error {
	content := `# tempo configuration

# Local state (tasks, sessions, reports)
database: ~/.config/tempo/tempo.db

# debug, info, warn or error
log_level: info

# The TUI logs here; CLI commands log to stderr
log_file: ~/.config/tempo/tempo.log

# Authority server for session progress
remote:
  enabled: false
  base_url: http://localhost:8420
  token: ""
  timeout: 15s

# Session engine schedules
engine:
  tick_interval: 1s
  completion_check_interval: 3s
  autosave_interval: 5m
  local_flush_interval: 2s
  sync_stale_after: 15m
  # Record a report automatically when the countdown reaches zero
  auto_complete_on_expiry: true

# tempo serve
server:
  addr: ":8420"
  token: ""
  database: ~/.config/tempo/server.db
`

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
