package cli

import (
	"fmt"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a workspace once and exit",
	Long: `Walk the workspace containing the given directory, embed every code unit
that changed since the last run and remove points for files that no longer
exist. The file ledger is stored in .dupguard/ledger.db under the workspace root.

Examples:
  dupguard index .                 # Index current project
  dupguard index /path/to/project  # Index specific project`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	path, err := targetDir(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	ws, err := a.workspaceFor(ctx, path)
	if err != nil {
		return err
	}
	if ws.Degraded {
		fmt.Fprintf(cmd.ErrOrStderr(), "No project marker found, indexing into shared collection %s\n", ws.Collection)
	}

	ledger, err := a.openLedger(ws)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer ledger.Close()

	svc := a.runService(ws, ledger)
	fmt.Fprintf(cmd.OutOrStdout(), "Indexing %s into %s...\n", ws.Root, ws.Collection)

	start := time.Now()
	var barMu sync.Mutex
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Indexing[reset]"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(cmd.ErrOrStderr())
		}),
	)
	done := func() {
		barMu.Lock()
		defer barMu.Unlock()
		_ = bar.Add(1)
	}

	if err := svc.RunOnce(ctx, done); err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	_ = bar.Finish()

	stats := svc.Stats()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nIndexing complete in %s:\n", formatDuration(time.Since(start)))
	fmt.Fprintf(out, "  Files indexed:   %d\n", stats.FilesIndexed)
	fmt.Fprintf(out, "  Files unchanged: %d\n", stats.FilesUnchanged)
	fmt.Fprintf(out, "  Files removed:   %d\n", stats.FilesRemoved)
	fmt.Fprintf(out, "  Files skipped:   %d\n", stats.FilesSkipped)
	fmt.Fprintf(out, "  Units embedded:  %d\n", stats.UnitsEmbedded)
	fmt.Fprintf(out, "  Units reused:    %d\n", stats.UnitsReused)
	if stats.UnitsSkipped > 0 || stats.Errors > 0 {
		fmt.Fprintf(out, "  Units skipped:   %d\n", stats.UnitsSkipped)
		fmt.Fprintf(out, "  Errors:          %d (see log)\n", stats.Errors)
	}
	fmt.Fprintf(out, "\nLedger stored at: %s\n", a.cfg.LedgerPath(ws.Root))
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
