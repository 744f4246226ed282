package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dupguard/config"
	"dupguard/internal/adapter/logging"
	"dupguard/internal/adapter/telemetry"
)

// Version is set at build time with -ldflags.
var Version = "dev"

var (
	cfgFile string
	cfg     *config.Config
	rootDir string

	logger   *zap.Logger
	provider *telemetry.Provider
)

var rootCmd = &cobra.Command{
	Use:   "dupguard",
	Short: "Semantic duplicate-code guard for AI coding assistants",
	Long: `dupguard keeps a per-workspace semantic index of source code in a vector
store and checks pending writes against it, blocking code that already exists
elsewhere in the project.

Example usage:
  dupguard index .                          # Index the current project
  dupguard watch                            # Keep the index up to date
  dupguard check < hook.json                # Check a pending write (hook mode)
  dupguard check --target b.py --content-file -`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}
		if rootDir, err = filepath.Abs(rootDir); err != nil {
			return err
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if errs := cfg.Validate(); len(errs) > 0 {
			return errors.Join(errs...)
		}

		logger, err = logging.New(cfg)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		zap.ReplaceGlobals(logger)
		for _, w := range cfg.Warnings() {
			logger.Warn(w)
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		provider, err = telemetry.Init(ctx, cfg.Telemetry.OTLPEndpoint, Version)
		if err != nil {
			logger.Warn("tracing disabled", zap.Error(err))
			provider = &telemetry.Provider{}
		}
		cmd.SetContext(logging.WithContext(ctx, logger))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		shutdown()
		return nil
	},
}

func shutdown() {
	if provider != nil {
		_ = provider.Shutdown(context.Background())
		provider = nil
	}
	if logger != nil {
		_ = logger.Sync()
	}
}

// exitError ends the process with a specific status without printing.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Execute runs the root command and exits with its status.
func Execute() {
	os.Exit(run(context.Background(), os.Args[1:]))
}

func run(ctx context.Context, args []string) int {
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	// PersistentPostRun is skipped when RunE fails
	shutdown()

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
	return 1
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./dupguard.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "root directory (default is current directory)")
}

func GetConfig() *config.Config {
	return cfg
}

func GetRootDir() string {
	return rootDir
}
