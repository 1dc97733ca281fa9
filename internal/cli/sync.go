package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push unsynced session progress to the remote",
	Long: `Commits every session with local changes the remote has not confirmed,
finished sessions included. The background autosave only covers open
sessions.`,
	RunE: runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Remote.Enabled {
		return fmt.Errorf("remote sync is disabled; set remote.enabled in %s", configPath())
	}
	a, err := openApp(cfg, stderrLogger(cfg))
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pending := 0
	for _, st := range a.ctrl.SyncStatuses() {
		if st.Pending {
			pending++
		}
	}
	syncErr := a.ctrl.Sync(ctx)

	out := cmd.OutOrStdout()
	left := 0
	for _, st := range a.ctrl.SyncStatuses() {
		if !st.Pending {
			continue
		}
		left++
		fmt.Fprintf(out, "  %s still pending: %s\n", st.SessionID, st.LastError)
	}
	fmt.Fprintf(out, "Synced %d of %d sessions\n", pending-left, pending)
	if syncErr != nil {
		return fmt.Errorf("sync: %w", syncErr)
	}
	return nil
}
