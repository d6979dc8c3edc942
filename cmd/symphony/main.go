package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"symphony/internal/config"
	"symphony/internal/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "symphony",
	Short: "Project Symphony - multi-agent project generator",
	Long: `Project Symphony turns a one-line project request into a working
starter project through a four-phase agent pipeline:

  1. Analysis:    a manager agent decomposes the request into a task plan
  2. Specialists: coder, designer, researcher and writer agents work the plan
  3. Integration: an integrator assembles the results into project files
  4. Testing:     a reviewer grades the result and drives bounded refinement

Every run is recorded in a local SQLite store and the generated project is
written under the configured output directory, ready to zip and download.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip logger init when the run command draws its own UI
		if cmd.Name() == "run" && !runNoTUI {
			return nil
		}

		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: symphony.yaml, or $SYMPHONY_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	// Add commands to root
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(showCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveConfigPath honors the --config flag over the default lookup.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig resolves, validates, and activates the configuration shared by
// every command. File logging comes up here so the pipeline packages can log
// from the first call.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := logging.Initialize(cfg.Logging.Dir, cfg.Logging.Debug || verbose, cfg.Logging.Level); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: file logging unavailable: %v\n", err)
	}
	return cfg, nil
}
