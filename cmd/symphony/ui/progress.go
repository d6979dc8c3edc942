package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"symphony/internal/types"
)

const maxStageLines = 6

type phaseMark int

const (
	markPending phaseMark = iota
	markActive
	markDone
	markFailed
)

// eventMsg wraps one orchestrator progress event.
type eventMsg types.ProgressEvent

// eventsClosedMsg signals that the producer closed the event channel.
type eventsClosedMsg struct{}

// ProgressModel is the checklist shown while a run executes. It consumes
// orchestrator progress events and quits on the terminal one.
type ProgressModel struct {
	events <-chan types.ProgressEvent

	spinner spinner.Model
	styles  Styles

	runID   string
	marks   map[types.Phase]phaseMark
	message string
	stages  []string
	err     error
	done    bool
}

// NewProgressModel builds the view over an event channel.
func NewProgressModel(events <-chan types.ProgressEvent) ProgressModel {
	styles := DefaultStyles()
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Active

	marks := make(map[types.Phase]phaseMark, len(types.Phases()))
	for _, p := range types.Phases() {
		marks[p] = markPending
	}
	return ProgressModel{
		events:  events,
		spinner: sp,
		styles:  styles,
		marks:   marks,
		message: "starting",
	}
}

// RunProgress drives the view until the pipeline reports done or the user
// quits. The completed checklist stays in the terminal scrollback. The bool
// reports whether the pipeline finished before the view closed.
func RunProgress(events <-chan types.ProgressEvent) (bool, error) {
	p := tea.NewProgram(NewProgressModel(events))
	final, err := p.Run()
	if err != nil {
		return false, err
	}
	if m, ok := final.(ProgressModel); ok {
		return m.done, nil
	}
	return false, nil
}

func (m ProgressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

func waitForEvent(events <-chan types.ProgressEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		}

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		m = m.apply(types.ProgressEvent(msg))
		if m.done {
			return m, tea.Quit
		}
		return m, waitForEvent(m.events)

	case eventsClosedMsg:
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

// apply folds one event into the checklist. Phases before the event's phase
// read as done and later ones reset to pending, so refinement re-runs walk
// the list again instead of looking stuck.
func (m ProgressModel) apply(ev types.ProgressEvent) ProgressModel {
	if ev.RunID != "" {
		m.runID = ev.RunID
	}
	if ev.Message != "" {
		m.message = ev.Message
	}
	if ev.Stage != "" {
		m.stages = append(m.stages, fmt.Sprintf("%s  %s", ev.Stage, ev.Message))
		if len(m.stages) > maxStageLines {
			m.stages = m.stages[len(m.stages)-maxStageLines:]
		}
	}

	if ev.Done {
		m.done = true
		if ev.Err != nil {
			m.err = ev.Err
			m.failActivePhase()
			return m
		}
		for _, p := range types.Phases() {
			m.marks[p] = markDone
		}
		return m
	}

	for _, p := range types.Phases() {
		switch {
		case p == ev.Phase:
			m.marks[p] = markActive
		case p < ev.Phase:
			if m.marks[p] != markFailed {
				m.marks[p] = markDone
			}
		default:
			m.marks[p] = markPending
		}
	}
	return m
}

func (m ProgressModel) failActivePhase() {
	for _, p := range types.Phases() {
		if m.marks[p] == markActive {
			m.marks[p] = markFailed
			return
		}
	}
	m.marks[types.PhaseAnalysis] = markFailed
}

func (m ProgressModel) View() string {
	var sb strings.Builder

	title := "Project Symphony"
	if m.runID != "" {
		title += "  ·  run " + m.runID
	}
	sb.WriteString(m.styles.Title.Render(title) + "\n\n")

	for _, p := range types.Phases() {
		label := phaseLabel(p)
		switch m.marks[p] {
		case markDone:
			sb.WriteString(m.styles.Done.Render(" ✓ "+label) + "\n")
		case markActive:
			sb.WriteString(" " + m.spinner.View() + m.styles.Active.Render(label) + "\n")
		case markFailed:
			sb.WriteString(m.styles.Failed.Render(" ✗ "+label) + "\n")
		default:
			sb.WriteString(m.styles.Pending.Render(" ○ "+label) + "\n")
		}
	}

	if len(m.stages) > 0 {
		sb.WriteString("\n")
		for _, line := range m.stages {
			sb.WriteString(m.styles.Stage.Render(line) + "\n")
		}
	}

	sb.WriteString("\n")
	if m.err != nil {
		sb.WriteString(m.styles.Failed.Render("run failed: "+m.err.Error()) + "\n")
	} else {
		sb.WriteString(m.styles.Message.Render(m.message) + "\n")
	}

	if !m.done {
		sb.WriteString(m.styles.Help.Render("q to quit") + "\n")
	}
	return sb.String()
}

func phaseLabel(p types.Phase) string {
	switch p {
	case types.PhaseAnalysis:
		return "Analysis"
	case types.PhaseSpecialists:
		return "Specialists"
	case types.PhaseIntegration:
		return "Integration"
	case types.PhaseTesting:
		return "Testing"
	}
	return p.String()
}
