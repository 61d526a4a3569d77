package controller

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	m "github.com/mouse-blink/relocator/internal/model"
)

const (
	defaultViewportWidth  = 80
	defaultViewportHeight = 20
	// header, progress line, blank line and help line
	reservedLines = 5
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	relocatedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	unchangedStyle = lipgloss.NewStyle().Faint(true)
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle      = lipgloss.NewStyle().Faint(true)
	addedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	removedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

type keyMap struct {
	Quit   key.Binding
	Top    key.Binding
	Bottom key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Top: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "bottom"),
		),
	}
}

func (k keyMap) help() string {
	parts := make([]string, 0, 4)
	for _, b := range []key.Binding{k.Top, k.Bottom, k.Quit} {
		h := b.Help()
		parts = append(parts, h.Key+": "+h.Desc)
	}

	return "↑/k ↓/j: scroll | " + strings.Join(parts, " | ")
}

type concurrencyMsg struct {
	threads int
	files   int
}

type reportMsg struct {
	report m.Report
}

type diffMsg struct {
	source m.Path
	diff   string
}

type summaryMsg struct {
	reports []m.Report
	assets  int
	// manifest is only rendered in view mode.
	manifest m.Manifest
	err      error
}

// relocationModel is the Bubble Tea model shared by every mode.
type relocationModel struct {
	mode     StartMode
	keys     keyMap
	spinner  spinner.Model
	viewport viewport.Model
	lines    []string
	threads  int
	total    int
	finished int
	done     bool
	ready    bool
	quitting bool
}

func newRelocationModel(mode StartMode) relocationModel {
	s := spinner.New()
	s.Spinner = spinner.Dot

	return relocationModel{
		mode:     mode,
		keys:     defaultKeyMap(),
		spinner:  s,
		viewport: viewport.New(defaultViewportWidth, defaultViewportHeight),
	}
}

func (rm relocationModel) Init() tea.Cmd {
	return rm.spinner.Tick
}

func (rm relocationModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		rm.viewport.Width = msg.Width
		rm.viewport.Height = max(msg.Height-reservedLines, 1)
		rm.ready = true

		return rm, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, rm.keys.Quit):
			rm.quitting = true
			return rm, tea.Quit
		case key.Matches(msg, rm.keys.Top):
			rm.viewport.GotoTop()
			return rm, nil
		case key.Matches(msg, rm.keys.Bottom):
			rm.viewport.GotoBottom()
			return rm, nil
		}

		var cmd tea.Cmd
		rm.viewport, cmd = rm.viewport.Update(msg)

		return rm, cmd

	case spinner.TickMsg:
		if rm.done {
			return rm, nil
		}

		var cmd tea.Cmd
		rm.spinner, cmd = rm.spinner.Update(msg)

		return rm, cmd

	case concurrencyMsg:
		rm.threads = msg.threads
		rm.total = msg.files

		return rm, nil

	case reportMsg:
		rm.finished++
		if rm.mode == ModeRun {
			rm.appendLines(formatReport(msg.report))
		}

		return rm, nil

	case diffMsg:
		rm.appendLines(formatDiff(msg.diff)...)

		return rm, nil

	case summaryMsg:
		rm.done = true
		rm.appendLines(rm.formatSummary(msg)...)

		return rm, nil
	}

	return rm, nil
}

func (rm *relocationModel) appendLines(lines ...string) {
	atBottom := rm.viewport.AtBottom()

	rm.lines = append(rm.lines, lines...)
	rm.viewport.SetContent(strings.Join(rm.lines, "\n"))

	if atBottom {
		rm.viewport.GotoBottom()
	}
}

func formatReport(r m.Report) string {
	switch {
	case r.Err != nil:
		return failedStyle.Render(fmt.Sprintf("  ✗ %s: %v", r.Source, r.Err))
	case r.Status == m.Relocated:
		return relocatedStyle.Render(fmt.Sprintf("  ✓ %s (%d edits, %d assets)", r.Source, r.Edits, len(r.Assets)))
	default:
		return unchangedStyle.Render(fmt.Sprintf("  · %s", r.Source))
	}
}

func formatDiff(diff string) []string {
	raw := strings.Split(strings.TrimRight(diff, "\n"), "\n")
	lines := make([]string, 0, len(raw))

	for _, line := range raw {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			lines = append(lines, titleStyle.Render(line))
		case strings.HasPrefix(line, "+"):
			lines = append(lines, addedStyle.Render(line))
		case strings.HasPrefix(line, "-"):
			lines = append(lines, removedStyle.Render(line))
		default:
			lines = append(lines, line)
		}
	}

	return lines
}

func (rm relocationModel) formatSummary(msg summaryMsg) []string {
	lines := []string{""}

	switch rm.mode {
	case ModeList:
		for _, r := range sortReports(msg.reports) {
			if len(r.Assets) == 0 {
				continue
			}

			lines = append(lines, fmt.Sprintf("  %s", r.Source))
			for _, name := range r.Assets {
				lines = append(lines, fmt.Sprintf("    → %s", name))
			}
		}

		lines = append(lines, "", fmt.Sprintf("  📦 %d asset(s) across %d file(s)", countAssets(msg.reports), len(msg.reports)))

	case ModeView:
		for _, a := range msg.manifest.Assets {
			lines = append(lines, fmt.Sprintf("  %s [%s] ← %s", a.Name, a.Kind, a.Source))
		}

		lines = append(lines, "", fmt.Sprintf("  📦 %d asset(s) in build %s", len(msg.manifest.Assets), msg.manifest.BuildID))

	case ModeDiff:
		lines = append(lines, fmt.Sprintf("  📝 %d file(s) would change", countStatus(msg.reports, m.Relocated)))

	default:
		lines = append(lines, fmt.Sprintf("  📊 Relocated: %d | Unchanged: %d | Failed: %d | Invalid: %d | Assets: %d",
			countStatus(msg.reports, m.Relocated),
			countStatus(msg.reports, m.Unchanged),
			countStatus(msg.reports, m.Failed),
			countStatus(msg.reports, m.Invalid),
			msg.assets))
	}

	if msg.err != nil {
		lines = append(lines, failedStyle.Render(fmt.Sprintf("  relocation error: %v", msg.err)))
	}

	return lines
}

func countAssets(reports []m.Report) int {
	n := 0
	for _, r := range reports {
		n += len(r.Assets)
	}

	return n
}

func (rm relocationModel) View() string {
	if rm.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Relocator · "+rm.mode.String()) + "\n")

	if rm.done {
		fmt.Fprintf(&b, "  Done: %d/%d file(s)\n", rm.finished, rm.total)
	} else {
		fmt.Fprintf(&b, "  %s %d/%d file(s) with %d worker(s)\n", rm.spinner.View(), rm.finished, rm.total, rm.threads)
	}

	b.WriteString(rm.viewport.View())
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render(rm.keys.help()))
	b.WriteString("\n")

	return b.String()
}

// TUI implements UI using Bubble Tea for interactive display.
type TUI struct {
	output io.Writer

	mu      sync.Mutex
	program *tea.Program
	done    chan struct{}
}

// NewTUI creates a new TUI.
func NewTUI(output io.Writer) *TUI {
	return &TUI{output: output}
}

// Start launches the Bubble Tea program in the background.
func (t *TUI) Start(ctx context.Context, options ...StartOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cfg := newStartConfig(options...)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.program != nil {
		return nil
	}

	t.program = tea.NewProgram(newRelocationModel(cfg.mode),
		tea.WithOutput(t.output),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	t.done = make(chan struct{})

	go func(program *tea.Program, done chan struct{}) {
		defer close(done)

		if _, err := program.Run(); err != nil {
			slog.Error("Failed to run TUI", "error", err)
		}
	}(t.program, t.done)

	return nil
}

// Close stops the program and waits for it to restore the terminal.
func (t *TUI) Close(_ context.Context) {
	program, done := t.current()
	if program == nil {
		return
	}

	program.Quit()
	<-done

	t.mu.Lock()
	t.program = nil
	t.mu.Unlock()
}

// Wait blocks until the user quits or ctx is cancelled.
func (t *TUI) Wait(ctx context.Context) {
	_, done := t.current()
	if done == nil {
		return
	}

	select {
	case <-done:
	case <-ctx.Done():
	}
}

// DisplayConcurrencyInfo shows concurrency settings.
func (t *TUI) DisplayConcurrencyInfo(_ context.Context, threads int, files int) {
	t.send(concurrencyMsg{threads: threads, files: files})
}

// DisplayFileReport adds a finished file to the list.
func (t *TUI) DisplayFileReport(_ context.Context, report m.Report) {
	t.send(reportMsg{report: report})
}

// DisplayDiff appends a colored diff.
func (t *TUI) DisplayDiff(_ context.Context, source m.Path, diff string) {
	t.send(diffMsg{source: source, diff: diff})
}

// DisplaySummary marks the run finished and renders totals.
func (t *TUI) DisplaySummary(_ context.Context, reports []m.Report, manifest m.Manifest, err error) error {
	t.send(summaryMsg{reports: reports, assets: len(manifest.Assets), manifest: manifest, err: err})

	return err
}

func (t *TUI) current() (*tea.Program, chan struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.program, t.done
}

func (t *TUI) send(msg tea.Msg) {
	if program, _ := t.current(); program != nil {
		program.Send(msg)
	}
}
