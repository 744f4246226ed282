package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Keep the workspace index up to date",
	Long: `Run a full scan, then follow filesystem events until interrupted.
A periodic reconcile scan (index.reconcile, cron syntax) repairs events the
operating system dropped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	path, err := targetDir(args)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	ws, err := a.workspaceFor(ctx, path)
	if err != nil {
		return err
	}
	ledger, err := a.openLedger(ws)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer ledger.Close()

	a.logger.Info("watching workspace",
		zap.String("root", ws.Root),
		zap.String("collection", ws.Collection),
		zap.Bool("degraded", ws.Degraded))

	svc := a.runService(ws, ledger)
	if err := svc.Run(ctx); err != nil {
		return err
	}

	stats := svc.Stats()
	a.logger.Info("watcher stopped",
		zap.Int64("files_indexed", stats.FilesIndexed),
		zap.Int64("files_removed", stats.FilesRemoved),
		zap.Int64("errors", stats.Errors))
	return nil
}
