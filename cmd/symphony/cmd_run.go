package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"symphony/cmd/symphony/ui"
	"symphony/internal/orchestrator"
	"symphony/internal/store"
	"symphony/internal/types"
)

var (
	runType   string
	runOutput string
	runNoTUI  bool
)

// runCmd executes the full pipeline for one project request
var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Generate a project from a natural language request",
	Long: `Runs the four-phase pipeline for a project request and writes the
generated project under the output directory.

Examples:
  symphony run "Create a calculator app"
  symphony run "REST API for a todo list" --type web_app
  symphony run "CLI weather tool" --output ./out --no-tui`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProject,
}

func init() {
	runCmd.Flags().StringVarP(&runType, "type", "t", "general", "Project type (general, web_app, cli_tool, api, library)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "Output directory (default from config)")
	runCmd.Flags().BoolVar(&runNoTUI, "no-tui", false, "Plain event lines instead of the progress view")
}

func runProject(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nCancelling run...")
		cancel()
	}()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runOutput != "" {
		cfg.Pipeline.OutputDir = runOutput
	}

	st, err := store.NewLocalStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open run store: %w", err)
	}
	defer st.Close()

	events := make(chan types.ProgressEvent, 64)
	orch := orchestrator.NewOrchestrator(orchestrator.Deps{
		Config: cfg,
		Store:  st,
		Events: events,
	})
	defer orch.Close()

	prompt := strings.Join(args, " ")
	brief := types.NewProjectBrief(prompt, runType)

	type outcome struct {
		res *orchestrator.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := orch.ProcessProject(ctx, brief)
		close(events)
		done <- outcome{res, err}
	}()

	if runNoTUI {
		logger.Info("Processing project request",
			zap.String("prompt", prompt),
			zap.String("type", runType))
		printEvents(events)
	} else {
		finished, uiErr := ui.RunProgress(events)
		if uiErr != nil {
			// The view could not start; fall back to plain lines.
			printEvents(events)
		} else if !finished {
			// The user left the view before the pipeline was done.
			fmt.Println("Progress view closed, cancelling run...")
			cancel()
		}
	}

	result := <-done
	if result.err != nil {
		if ctx.Err() != nil {
			fmt.Println("Run cancelled. Partial progress is recorded in the run store.")
			return nil
		}
		if result.res != nil && result.res.Run != nil {
			return fmt.Errorf("run %s failed: %w", result.res.Run.ID, result.err)
		}
		return fmt.Errorf("generation failed: %w", result.err)
	}

	printRunSummary(result.res)
	return nil
}

// printEvents renders progress as plain lines for pipes and CI.
func printEvents(events <-chan types.ProgressEvent) {
	for ev := range events {
		switch {
		case ev.Done && ev.Err != nil:
			fmt.Printf("❌ %s\n", ev.Message)
		case ev.Done:
			fmt.Printf("🏆 %s\n", ev.Message)
		case ev.Stage != "":
			fmt.Printf("   🔄 %s: %s\n", ev.Stage, ev.Message)
		default:
			fmt.Printf("📦 [%s] %s\n", ev.Phase, ev.Message)
		}
	}
}

func printRunSummary(res *orchestrator.Result) {
	run := res.Run
	fmt.Printf("\n✨ Project generated: %s\n", run.ProjectName)
	fmt.Printf("   Run ID:   %s\n", run.ID)
	fmt.Printf("   Files:    %d\n", res.Final.TotalFiles)
	fmt.Printf("   Location: %s\n", run.ProjectPath)

	if len(res.Final.Instructions) > 0 {
		fmt.Println("\nNext steps:")
		for _, line := range res.Final.Instructions {
			fmt.Printf("   %s\n", line)
		}
	}
}
