package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"symphony/internal/store"
	"symphony/internal/types"
)

var (
	projectsLimit int
	showReadme    bool
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2196F3"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// projectsCmd lists stored runs
var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List generated projects",
	RunE:  runProjects,
}

// showCmd shows one run in detail
var showCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Show the details of one run",
	Long: `Shows the phases, tasks and refinement history of a stored run.

Examples:
  symphony show 20260102_030405
  symphony show 20260102_030405 --readme`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	projectsCmd.Flags().IntVar(&projectsLimit, "limit", 20, "Maximum runs to list")
	showCmd.Flags().BoolVar(&showReadme, "readme", false, "Render the generated README.md")
}

func runProjects(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.NewLocalStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open run store: %w", err)
	}
	defer st.Close()

	runs, err := st.ListRuns(projectsLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No projects yet. Run 'symphony run \"...\"' to generate one.")
		return nil
	}

	fmt.Println(headerStyle.Render("Generated projects"))
	fmt.Println()
	for _, run := range runs {
		name := run.ProjectName
		if name == "" {
			name = truncate(run.Brief.Prompt, 48)
		}
		fmt.Printf("%s %s\n", statusIcon(run.Status), name)
		fmt.Println(mutedStyle.Render(fmt.Sprintf("   %s | %s | created %s",
			run.ID, run.Status, run.CreatedAt.Format(time.RFC822))))
	}
	fmt.Println()
	fmt.Println(mutedStyle.Render(fmt.Sprintf("%d run(s). Use 'symphony show <run-id>' for details.", len(runs))))
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.NewLocalStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open run store: %w", err)
	}
	defer st.Close()

	run, err := st.GetRun(args[0])
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fmt.Printf("Run %s not found.\n", args[0])
			return nil
		}
		return fmt.Errorf("failed to load run: %w", err)
	}

	name := run.ProjectName
	if name == "" {
		name = "(unnamed)"
	}
	fmt.Printf("%s %s\n", statusIcon(run.Status), headerStyle.Render(name))
	fmt.Printf("   ID:      %s\n", run.ID)
	fmt.Printf("   Status:  %s\n", run.Status)
	fmt.Printf("   Type:    %s\n", run.Brief.ProjectType)
	fmt.Printf("   Prompt:  %s\n", truncate(run.Brief.Prompt, 72))
	fmt.Printf("   Created: %s\n", run.CreatedAt.Format(time.RFC822))
	if !run.CompletedAt.IsZero() {
		fmt.Printf("   Took:    %s\n", run.CompletedAt.Sub(run.CreatedAt).Round(time.Second))
	}
	if run.ProjectPath != "" {
		fmt.Printf("   Output:  %s\n", run.ProjectPath)
	}

	if len(run.Phases) > 0 {
		fmt.Println("\nPhases:")
		for _, pr := range run.Phases {
			icon := "✅"
			if pr.Status == types.PhaseFailed {
				icon = "❌"
			}
			line := fmt.Sprintf("   %s %-12s attempt %d", icon, pr.Phase, pr.Attempt)
			if pr.Model != "" {
				line += "  " + pr.Model
			}
			line += fmt.Sprintf("  %s", (time.Duration(pr.LatencyMS) * time.Millisecond).Round(time.Millisecond))
			fmt.Println(line)
		}
	}

	if len(run.Tasks) > 0 {
		fmt.Println("\nTasks:")
		for _, task := range run.Tasks {
			icon := "✅"
			switch task.Status {
			case types.TaskFailed:
				icon = "❌"
			case types.TaskSkipped:
				icon = "⏭️"
			}
			line := fmt.Sprintf("   %s task %d (%s)", icon, task.TaskID, task.Agent)
			if task.Error != "" {
				line += ": " + truncate(task.Error, 60)
			}
			fmt.Println(line)
		}
	}

	if len(run.Refinements) > 0 {
		fmt.Println("\nRefinements:")
		for _, ref := range run.Refinements {
			fmt.Printf("   iteration %d: %s\n", ref.Iteration, ref.Status)
			for _, e := range ref.Errors {
				fmt.Println(mutedStyle.Render("      - " + truncate(e, 70)))
			}
		}
	}

	if showReadme {
		fmt.Println()
		return showProjectReadme(run)
	}
	return nil
}

func showProjectReadme(run *types.Run) error {
	if run.ProjectPath == "" {
		fmt.Println("No project output recorded for this run.")
		return nil
	}
	path := filepath.Join(run.ProjectPath, "README.md")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("The generated project has no README.md.")
			return nil
		}
		return fmt.Errorf("failed to read README: %w", err)
	}
	fmt.Print(renderMarkdown(string(data)))
	return nil
}

// renderMarkdown renders markdown for the terminal, falling back to the
// plain text when the renderer fails.
func renderMarkdown(content string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			result = content
		}
	}()

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return content
	}
	rendered, err := renderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

func statusIcon(status types.RunStatus) string {
	switch status {
	case types.RunCompleted:
		return "✅"
	case types.RunFailed:
		return "❌"
	case types.RunRunning:
		return "▶️"
	default:
		return "⏳"
	}
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
