package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [path]",
	Short: "Show workspace and index status",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Workspace:   %s\n", ws.Root)
	fmt.Fprintf(out, "Collection:  %s\n", ws.Collection)
	if ws.Degraded {
		fmt.Fprintln(out, "Mode:        degraded (no project marker, shared collection)")
	}
	fmt.Fprintf(out, "Embedding:   %s (%d dims)\n", a.embedder.ModelName(), a.embedder.Dimension())
	fmt.Fprintf(out, "Store:       %s %s:%d\n", a.cfg.Store.Transport, a.cfg.Store.Host, a.cfg.Store.Port)

	info, err := a.store.Describe(ctx, ws.Collection)
	switch {
	case err != nil:
		fmt.Fprintf(out, "Index:       unavailable (%v)\n", err)
	case !info.Exists:
		fmt.Fprintln(out, "Index:       not created (run `dupguard index`)")
	default:
		fmt.Fprintf(out, "Index:       %d points, %d dims, %s\n", info.PointsCount, info.VectorSize, info.Distance)
		if info.VectorSize != a.embedder.Dimension() {
			fmt.Fprintln(out, "Warning:     vector size differs from the embedding provider (run `dupguard reset`)")
		}
	}

	ledgerPath := a.cfg.LedgerPath(ws.Root)
	if _, err := os.Stat(ledgerPath); err != nil {
		fmt.Fprintln(out, "Ledger:      none")
		return nil
	}
	ledger, err := a.openLedger(ws)
	if err != nil {
		// a running watcher holds the lock
		fmt.Fprintf(out, "Ledger:      %s (busy)\n", ledgerPath)
		return nil
	}
	defer ledger.Close()
	files, vectors, err := ledger.Counts()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Ledger:      %d files, %d cached vectors\n", files, vectors)
	return nil
}
