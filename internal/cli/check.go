package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dupguard/internal/domain"
)

// exitBlocked is returned when the pending write duplicates existing code.
const exitBlocked = 2

var (
	checkTarget      string
	checkContentFile string
	checkLanguage    string
	checkOverride    string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check a pending write for duplicate code",
	Long: `Compare pending file content against the workspace index and print an
ALLOW or BLOCK decision as JSON. Without --target the hook request is read as
JSON from stdin. The exit status is 2 when the write is blocked.

The check fails open: an unreachable vector store, a missing collection or a
timeout all produce ALLOW.

Examples:
  dupguard check < request.json
  dupguard check --target src/b.py --content-file new_b.py
  cat new_b.py | dupguard check --target src/b.py --content-file -`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkTarget, "target", "", "path of the file about to be written")
	checkCmd.Flags().StringVar(&checkContentFile, "content-file", "", "file holding the pending content (- for stdin)")
	checkCmd.Flags().StringVar(&checkLanguage, "language", "", "language hint (detected from the target if empty)")
	checkCmd.Flags().StringVar(&checkOverride, "override", "", "override token")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	req, err := readRequest(cmd.InOrStdin())
	if err != nil {
		return err
	}

	var resp domain.GuardResponse
	a, err := newApp(ctx)
	if err != nil {
		// a broken setup must never block the assistant
		logger.Warn("check skipped", zap.Error(err))
		resp = domain.GuardResponse{
			Decision: domain.Allow,
			Evidence: []domain.Evidence{},
			Reason:   "check skipped: setup",
		}
	} else {
		defer a.Close()
		resp = a.guard().Check(ctx, req)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return err
	}
	if resp.Decision == domain.Block {
		return &exitError{code: exitBlocked}
	}
	return nil
}

func readRequest(stdin io.Reader) (domain.GuardRequest, error) {
	if checkTarget == "" {
		var req domain.GuardRequest
		if err := json.NewDecoder(stdin).Decode(&req); err != nil && err != io.EOF {
			return req, fmt.Errorf("invalid hook request: %w", err)
		}
		return req, nil
	}

	req := domain.GuardRequest{
		Tool:           "cli",
		TargetFilePath: checkTarget,
		Language:       checkLanguage,
		Override:       checkOverride,
		Cwd:            GetRootDir(),
	}
	var data []byte
	var err error
	switch checkContentFile {
	case "":
	case "-":
		data, err = io.ReadAll(stdin)
	default:
		data, err = os.ReadFile(checkContentFile)
	}
	if err != nil {
		return req, fmt.Errorf("failed to read content: %w", err)
	}
	req.PendingContent = string(data)
	return req, nil
}
