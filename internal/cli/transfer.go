package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/sadopc/tempo/internal/export"
)

var (
	exportFormat string
	exportWhat   string
	exportOutput string
	importForce  bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export state as JSON, or reports and sessions as CSV",
	RunE:  runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Replace local state with a JSON export",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "json or csv")
	exportCmd.Flags().StringVar(&exportWhat, "what", "reports", "csv content: reports or sessions")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "-", "output file, - for stdout")

	importCmd.Flags().BoolVar(&importForce, "force", false, "replace existing tasks and sessions")
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cfg, stderrLogger(cfg))
	if err != nil {
		return err
	}
	defer a.Close()

	w, done, err := openOutput(cmd.OutOrStdout(), exportOutput)
	if err != nil {
		return err
	}

	switch exportFormat {
	case "json":
		err = export.WriteJSON(w, a.ctrl.Snapshot(), time.Now())
	case "csv":
		switch exportWhat {
		case "reports":
			err = export.WriteReportsCSV(w, a.ctrl.Reports())
		case "sessions":
			err = export.WriteSessionsCSV(w, a.ctrl.Sessions())
		default:
			err = fmt.Errorf("unknown csv content %q (want reports or sessions)", exportWhat)
		}
	default:
		err = fmt.Errorf("unknown format %q (want json or csv)", exportFormat)
	}
	if cerr := done(); err == nil {
		err = cerr
	}
	return err
}

func openOutput(stdout io.Writer, path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return stdout, func() error { return nil }, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output: %w", err)
	}
	return f, f.Close, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	doc, err := export.FromJSON(args[0])
	if err != nil {
		return err
	}

	a, err := openApp(cfg, stderrLogger(cfg))
	if err != nil {
		return err
	}
	defer a.Close()

	if !importForce && (len(a.ctrl.Tasks()) > 0 || len(a.ctrl.Sessions()) > 0) {
		return errors.New("local state is not empty; pass --force to replace it")
	}

	st := doc.State()
	a.ctrl.Restore(st)
	if err := a.ctrl.FlushLocal(); err != nil {
		return fmt.Errorf("save imported state: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d tasks and %d sessions\n", len(st.Tasks), len(st.Sessions))
	return nil
}

// exportDir is where the TUI writes exports.
func exportDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
