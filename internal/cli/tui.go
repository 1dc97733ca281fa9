package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/sadopc/tempo/internal/engine"
	"github.com/sadopc/tempo/internal/logging"
	"github.com/sadopc/tempo/internal/tui"
)

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, logFile, err := logging.OpenFile(cfg.LogFile, logLevel(cfg))
	if err != nil {
		return err
	}
	defer logFile.Close()

	// prog is assigned before the controller starts, so the observer never
	// sees it nil once remote calls can happen.
	var prog *tea.Program
	observer := engine.AuthObserverFunc(func(err error) {
		if prog != nil {
			prog.Send(tui.AuthFailedMsg{Err: err})
		}
	})

	a, err := openApp(cfg, log, engine.WithAuthObserver(observer))
	if err != nil {
		return err
	}

	model := tui.NewApp(a.ctrl, a.store, tui.WithExportDir(exportDir()))
	prog = tea.NewProgram(model, tea.WithAltScreen())
	a.ctrl.Start()
	log.Info("tui started", "database", cfg.Database, "remote", cfg.Remote.Enabled)

	_, runErr := prog.Run()
	if err := a.Close(); err != nil {
		log.Error("close", "error", err)
		if runErr == nil {
			runErr = fmt.Errorf("save state: %w", err)
		}
	}
	return runErr
}
