package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset [path]",
	Short: "Drop the workspace collection and ledger",
	Long: `Delete the vector store collection and clear the file ledger so the next
index run rebuilds everything. This is the recovery path after changing the
embedding provider or dimension.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
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

	if !resetYes {
		fmt.Fprintf(cmd.OutOrStdout(), "Drop collection %s and clear the ledger for %s? [y/N] ", ws.Collection, ws.Root)
		answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if ans := strings.ToLower(strings.TrimSpace(answer)); ans != "y" && ans != "yes" {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
			return nil
		}
	}

	if err := a.store.DropCollection(ctx, ws.Collection); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}

	ledger, err := a.openLedger(ws)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer ledger.Close()
	if err := ledger.Clear(); err != nil {
		return fmt.Errorf("failed to clear ledger: %w", err)
	}

	a.logger.Info("workspace reset", zap.String("collection", ws.Collection))
	fmt.Fprintf(cmd.OutOrStdout(), "Dropped %s and cleared the ledger.\n", ws.Collection)
	return nil
}
