package cli

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sadopc/tempo/internal/config"
)

// Cannot use t.Parallel(): commands share package-level flag variables.

func writeTestConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	content := "database: " + filepath.Join(dir, "tempo.db") + "\n" +
		"log_level: error\n" +
		"log_file: " + filepath.Join(dir, "tempo.log") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func writePlan(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "plan.yaml")
	content := `name: Morning Focus
tasks:
  - name: Write report
    priority: high
    minutes: 25
  - name: Review PR
    minutes: 15
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// run executes the root command with args and returns what it printed.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgFile, verbose = "", false
	exportFormat, exportWhat, exportOutput, importForce = "json", "reports", "-", false
	planFile, cancelReason = "", ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// ============================================================
// Sessions and status
// ============================================================

func TestSessionCreateAndStatus(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)
	plan := writePlan(t, dir)

	out, err := run(t, "--config", cfg, "session", "create", "--file", plan)
	if err != nil {
		t.Fatalf("session create: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Created session") || !strings.Contains(out, "00:40:00") {
		t.Fatalf("unexpected output %q", out)
	}

	out, err = run(t, "--config", cfg, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"Write report", "Morning Focus", "0/2 tasks", "Sessions: 1 (1 open)", "Saved:"} {
		if !strings.Contains(out, want) {
			t.Fatalf("status missing %q:\n%s", want, out)
		}
	}

	out, err = run(t, "--config", cfg, "session", "list")
	if err != nil {
		t.Fatalf("session list: %v", err)
	}
	if !strings.Contains(out, "pending") || !strings.Contains(out, "0/2") {
		t.Fatalf("unexpected list %q", out)
	}
}

func TestSessionCancel(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)
	if _, err := run(t, "--config", cfg, "session", "create", "--file", writePlan(t, dir)); err != nil {
		t.Fatal(err)
	}

	if _, err := run(t, "--config", cfg, "session", "cancel", "--reason", "meeting"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	out, _ := run(t, "--config", cfg, "session", "list")
	if !strings.Contains(out, "cancelled") {
		t.Fatalf("session not cancelled: %q", out)
	}

	if _, err := run(t, "--config", cfg, "session", "cancel"); err == nil {
		t.Fatal("expected error with no active session")
	}
}

func TestSessionCreateRejectsBadPlan(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)
	plan := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(plan, []byte("name: x\ntasks:\n  - name: a\n    minutes: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "--config", cfg, "session", "create", "--file", plan); err == nil {
		t.Fatal("expected validation error")
	}
}

// ============================================================
// Export / import
// ============================================================

func TestExportImportRoundTrip(t *testing.T) {
	src := t.TempDir()
	srcCfg := writeTestConfig(t, src)
	if _, err := run(t, "--config", srcCfg, "session", "create", "--file", writePlan(t, src)); err != nil {
		t.Fatal(err)
	}

	dump := filepath.Join(src, "out", "tempo.json")
	if _, err := run(t, "--config", srcCfg, "export", "-o", dump); err != nil {
		t.Fatalf("export: %v", err)
	}

	dst := t.TempDir()
	dstCfg := writeTestConfig(t, dst)
	out, err := run(t, "--config", dstCfg, "import", dump)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "Imported 0 tasks and 1 sessions") {
		t.Fatalf("unexpected import output %q", out)
	}

	out, _ = run(t, "--config", dstCfg, "status")
	if !strings.Contains(out, "Write report") {
		t.Fatalf("active task not imported:\n%s", out)
	}

	if _, err := run(t, "--config", dstCfg, "import", dump); err == nil {
		t.Fatal("expected import into non-empty state to fail without --force")
	}
	if _, err := run(t, "--config", dstCfg, "import", "--force", dump); err != nil {
		t.Fatalf("forced import: %v", err)
	}
}

func TestExportSessionsCSV(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)
	if _, err := run(t, "--config", cfg, "session", "create", "--file", writePlan(t, dir)); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "--config", cfg, "export", "--format", "csv", "--what", "sessions")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("invalid csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("rows = %d, want header + 1", len(records))
	}
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	cfg := writeTestConfig(t, t.TempDir())
	if _, err := run(t, "--config", cfg, "export", "--format", "xml"); err == nil {
		t.Fatal("expected unknown format error")
	}
	if _, err := run(t, "--config", cfg, "export", "--format", "csv", "--what", "tasks"); err == nil {
		t.Fatal("expected unknown csv content error")
	}
}

// ============================================================
// Config and sync
// ============================================================

func TestConfigCommands(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fresh", "config.yaml")

	out, err := run(t, "--config", path, "config", "path")
	if err != nil || strings.TrimSpace(out) != path {
		t.Fatalf("config path = %q, %v", out, err)
	}

	if _, err := run(t, "--config", path, "config", "init"); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config not written: %v", err)
	}

	out, err = run(t, "--config", path, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, "tick_interval: 1s") || !strings.Contains(out, "auto_complete_on_expiry: true") {
		t.Fatalf("unexpected config show:\n%s", out)
	}
}

func TestSyncRequiresRemote(t *testing.T) {
	cfg := writeTestConfig(t, t.TempDir())
	if _, err := run(t, "--config", cfg, "sync"); err == nil {
		t.Fatal("expected error when remote is disabled")
	}
}

// ============================================================
// Wiring
// ============================================================

func TestNewRemoteDisabledIsNilInterface(t *testing.T) {
	cfg := config.DefaultConfig()
	if r := newRemote(cfg); r != nil {
		t.Fatalf("disabled remote should be a nil interface, got %T", r)
	}
	cfg.Remote.Enabled = true
	if r := newRemote(cfg); r == nil {
		t.Fatal("enabled remote should not be nil")
	}
}

func TestIntervalsFromConfig(t *testing.T) {
	e := config.DefaultConfig().Engine
	e.AutoSaveInterval = time.Minute
	iv := intervals(e)
	if iv.AutoSave != time.Minute || iv.Tick != time.Second || iv.SyncStaleAfter != 15*time.Minute {
		t.Fatalf("unexpected intervals %+v", iv)
	}
}

func TestClock(t *testing.T) {
	cases := map[int64]string{0: "00:00:00", -5: "00:00:00", 61: "00:01:01", 3725: "01:02:05"}
	for in, want := range cases {
		if got := clock(in); got != want {
			t.Fatalf("clock(%d) = %q, want %q", in, got, want)
		}
	}
}
