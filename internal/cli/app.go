package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/sadopc/tempo/internal/config"
	"github.com/sadopc/tempo/internal/engine"
	"github.com/sadopc/tempo/internal/logging"
	"github.com/sadopc/tempo/internal/remote"
	"github.com/sadopc/tempo/internal/store"
)

// app bundles the local store and a controller restored from it.
type app struct {
	cfg   *config.Config
	log   *slog.Logger
	store *store.Store
	ctrl  *engine.Controller
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultPath()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func logLevel(cfg *config.Config) string {
	if verbose {
		return "debug"
	}
	return cfg.LogLevel
}

// stderrLogger is used by every command except the TUI.
func stderrLogger(cfg *config.Config) *slog.Logger {
	return logging.New(os.Stderr, logLevel(cfg))
}

func intervals(e config.EngineConfig) engine.Intervals {
	return engine.Intervals{
		Tick:            e.TickInterval,
		CompletionCheck: e.CompletionCheckInterval,
		AutoSave:        e.AutoSaveInterval,
		LocalFlush:      e.LocalFlushInterval,
		SyncStaleAfter:  e.SyncStaleAfter,
	}
}

// newRemote returns nil when remote sync is disabled. The nil interface
// keeps the controller offline.
func newRemote(cfg *config.Config) engine.Remote {
	if !cfg.Remote.Enabled {
		return nil
	}
	return remote.New(cfg.Remote.BaseURL, cfg.Remote.Token, remote.WithTimeout(cfg.Remote.Timeout))
}

// openApp opens the local database and restores the engine from it. The
// background schedules are not started.
func openApp(cfg *config.Config, log *slog.Logger, opts ...engine.Option) (*app, error) {
	st, err := store.New(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	state, err := st.LoadState()
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load state: %w", err)
	}
	reports, err := st.ListReports(store.ReportFilter{})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load reports: %w", err)
	}

	base := []engine.Option{
		engine.WithLogger(log),
		engine.WithIntervals(intervals(cfg.Engine)),
		engine.WithAutoCompleteOnExpiry(cfg.Engine.AutoCompleteOnExpiry),
		engine.WithReports(reports),
	}
	ctrl := engine.New(st, newRemote(cfg), append(base, opts...)...)
	ctrl.Restore(*state)

	return &app{cfg: cfg, log: log, store: st, ctrl: ctrl}, nil
}

// Close flushes the controller and closes the database.
func (a *app) Close() error {
	err := a.ctrl.Close()
	if cerr := a.store.Close(); err == nil {
		err = cerr
	}
	return err
}
