package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/sadopc/tempo/internal/engine"
	"github.com/sadopc/tempo/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active task, session progress and sync state",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cfg, stderrLogger(cfg))
	if err != nil {
		return err
	}
	defer a.Close()

	w := cmd.OutOrStdout()
	printStatus(w, a.ctrl)

	last, err := a.store.LastSavedAt()
	if err != nil {
		return err
	}
	if last != nil {
		fmt.Fprintf(w, "Saved:     %s\n", last.Local().Format(time.DateTime))
	}
	return nil
}

func printStatus(w io.Writer, c *engine.Controller) {
	active := c.ActiveTask()
	if active == nil {
		fmt.Fprintln(w, "No active task")
	} else {
		ts := c.TimerState()
		fmt.Fprintf(w, "Active:    %s (%s)\n", active.Name, active.Priority)
		fmt.Fprintf(w, "Remaining: %s of %s\n", clock(ts.RemainingSeconds), clock(ts.TotalSeconds))
		if c.AwaitingReport() {
			fmt.Fprintln(w, "           time is up, waiting for a report")
		}
	}

	if s := c.ActiveSession(); s != nil {
		fmt.Fprintf(w, "Session:   %s  %d/%d tasks  %s\n", s.Name, s.CompletedTaskCount, len(s.Tasks), s.Status)
		fmt.Fprintf(w, "Left:      %s (smart estimate)\n", clock(c.SmartRemainingTime()))
	}

	open := 0
	for _, s := range c.Sessions() {
		if !s.Status.Terminal() {
			open++
		}
	}
	fmt.Fprintf(w, "Tasks:     %d  Sessions: %d (%d open)  Reports: %d\n",
		len(c.Tasks()), len(c.Sessions()), open, len(c.Reports()))

	for _, st := range c.SyncStatuses() {
		if !st.Pending && st.LastError == "" {
			continue
		}
		line := fmt.Sprintf("Unsynced:  %s since %s", st.SessionID, st.PendingSince.Local().Format(time.Kitchen))
		if st.Stale {
			line += " (stale)"
		}
		if st.LastError != "" {
			line += ": " + st.LastError
		}
		fmt.Fprintln(w, line)
	}
}

func clock(secs int64) string {
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs/60%60, secs%60)
}

func sessionLabel(s *store.Session) string {
	return fmt.Sprintf("%s %q", s.ID, s.Name)
}
