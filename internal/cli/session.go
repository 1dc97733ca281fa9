package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sadopc/tempo/internal/export"
)

var (
	planFile     string
	cancelReason string
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Create, list and cancel work sessions",
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a session from a YAML plan",
	Long: `Creates a session from a plan file:

  name: Morning Focus
  tasks:
    - name: Write report
      priority: high
      minutes: 25
    - name: Review PR
      minutes: 15`,
	RunE: runSessionCreate,
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	RunE:  runSessionList,
}

var sessionCancelCmd = &cobra.Command{
	Use:   "cancel [id]",
	Short: "Cancel a session (the active one when no id is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSessionCancel,
}

var sessionPullCmd = &cobra.Command{
	Use:   "pull <id>",
	Short: "Fetch a session from the remote and make it active",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionPull,
}

func init() {
	sessionCmd.AddCommand(sessionCreateCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionCancelCmd)
	sessionCmd.AddCommand(sessionPullCmd)

	sessionCreateCmd.Flags().StringVar(&planFile, "file", "", "YAML plan file")
	_ = sessionCreateCmd.MarkFlagRequired("file")
	sessionCancelCmd.Flags().StringVar(&cancelReason, "reason", "", "why the session was cancelled")
}

func runSessionCreate(cmd *cobra.Command, args []string) error {
	plan, err := export.LoadPlan(planFile)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cfg, stderrLogger(cfg))
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.ctrl.CreateSession(plan.Name, plan.Specs())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created session %s with %d tasks (%s planned)\n",
		sessionLabel(s), len(s.Tasks), clock(s.TotalPlannedSeconds))
	return nil
}

func runSessionList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cfg, stderrLogger(cfg))
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	sessions := a.ctrl.Sessions()
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions")
		return nil
	}
	for _, s := range sessions {
		fmt.Fprintf(out, "%-36s  %-12s %d/%d  %s  %s\n",
			s.ID, s.Status, s.CompletedTaskCount, len(s.Tasks), clock(s.ActualTimeSeconds), s.Name)
	}
	return nil
}

func runSessionCancel(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cfg, stderrLogger(cfg))
	if err != nil {
		return err
	}
	defer a.Close()

	id := ""
	if len(args) == 1 {
		id = args[0]
	}
	out := a.ctrl.CancelSession(id, cancelReason)
	if !out.Applied {
		return fmt.Errorf("cancel session: %w", out.Reason)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Session cancelled")
	return nil
}

func runSessionPull(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cfg, stderrLogger(cfg))
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := a.ctrl.LoadRemoteSession(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Loaded session %s: %d/%d tasks, %s\n",
		sessionLabel(s), s.CompletedTaskCount, len(s.Tasks), s.Status)
	return nil
}
